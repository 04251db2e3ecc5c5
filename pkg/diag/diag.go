// Package diag renders compiler diagnostics: colored banners plus
// source excerpts with caret/dash underlines, mirroring the original
// jotunheim compiler's error.c but through github.com/fatih/color
// instead of hand-written ANSI escapes.
package diag

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	errBanner  = color.New(color.FgRed, color.Bold).SprintFunc()
	noteBanner = color.New(color.FgBlue, color.Bold).SprintFunc()
	helpBanner = color.New(color.FgBlue, color.Bold).SprintFunc()
	gutterBar  = color.New(color.FgBlue, color.Bold).SprintFunc()
	caretRed   = color.New(color.FgRed, color.Bold).SprintFunc()
	dashBlue   = color.New(color.FgBlue, color.Bold).SprintFunc()
)

// Pos is a 1-based line and 0-based column into a source buffer, the
// same coordinates pkg/lexer stamps onto every Token.
type Pos struct {
	Line   int
	Column int
}

// Diagnostics accumulates compile errors produced while lexing, parsing,
// or emitting. It plays the role of the original's sticky
// `parser->error` flag merged with the teacher's `Parser.errors []string`
// accumulation, threaded through every stage instead of living on one
// struct.
type Diagnostics struct {
	out     io.Writer
	src     string
	failed  bool
	reports []string
}

// New creates a Diagnostics sink that renders against src and writes to
// out (normally os.Stderr).
func New(out io.Writer, src string) *Diagnostics {
	return &Diagnostics{out: out, src: src}
}

// Failed reports whether any diagnostic has been emitted.
func (d *Diagnostics) Failed() bool { return d.failed }

// Reports returns the plain-text (banner-only, no ANSI excerpt) messages
// recorded so far, for tests that want to assert on content without
// scraping rendered output.
func (d *Diagnostics) Reports() []string { return d.reports }

func lineBounds(src string, line int) (start, end int) {
	cur := 1
	start = 0
	for i := 0; i < len(src); i++ {
		if cur == line {
			break
		}
		if src[i] == '\n' {
			cur++
			start = i + 1
		}
	}
	end = len(src)
	for i := start; i < len(src); i++ {
		if src[i] == '\n' {
			end = i
			break
		}
	}
	return start, end
}

func lineText(src string, line int) string {
	start, end := lineBounds(src, line)
	if start > len(src) || start > end {
		return ""
	}
	return src[start:end]
}

func totalLines(src string) int {
	n := 1
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			n++
		}
	}
	return n
}

// Error prints a colored "error:" banner followed by a message, then a
// source excerpt with `padding` lines of context above and below `pos`,
// underlining `length` columns starting at pos with a caret ('~') line.
func (d *Diagnostics) Error(pos Pos, length, padding int, format string, args ...any) {
	d.failed = true
	msg := fmt.Sprintf(format, args...)
	d.reports = append(d.reports, "error: "+msg)
	fmt.Fprintf(d.out, "%s: %s\n", errBanner("error"), msg)
	d.renderExcerpt(pos, length, padding, caretRed, '~')
}

// Info prints a dash-underlined secondary excerpt with no banner — used
// for the "perhaps you forgot ';' here" style secondary anchors the
// original attaches to several parse errors.
func (d *Diagnostics) Info(pos Pos, length, padding int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	d.renderExcerptMsg(pos, length, padding, dashBlue, '-', msg)
}

// Note prints a colored "note:" banner.
func (d *Diagnostics) Note(format string, args ...any) {
	fmt.Fprintf(d.out, "%s: %s\n", noteBanner("note"), fmt.Sprintf(format, args...))
}

// Help prints a colored "help:" banner.
func (d *Diagnostics) Help(format string, args ...any) {
	fmt.Fprintf(d.out, "%s: %s\n", helpBanner("help"), fmt.Sprintf(format, args...))
}

func (d *Diagnostics) renderExcerpt(pos Pos, length, padding int, color func(a ...any) string, mark byte) {
	d.renderExcerptMsg(pos, length, padding, color, mark, "")
}

func (d *Diagnostics) renderExcerptMsg(pos Pos, length, padding int, colorFn func(a ...any) string, mark byte, trailing string) {
	line := pos.Line
	if line < 1 {
		line = 1
	}
	last := totalLines(d.src)

	from := line - padding
	if from < 1 {
		from = 1
	}
	to := line + padding
	if to > last {
		to = last
	}

	gutterWidth := len(fmt.Sprintf("%d", to))

	for l := from; l < line; l++ {
		fmt.Fprintf(d.out, " %*d %s %s\n", gutterWidth, l, gutterBar("|"), lineText(d.src, l))
	}

	fmt.Fprintf(d.out, " %*d %s %s\n", gutterWidth, line, gutterBar("|"), lineText(d.src, line))

	underline := strings.Repeat(string(mark), length)
	if trailing != "" {
		fmt.Fprintf(d.out, " %*s %s %*s%s %s\n", gutterWidth, "", gutterBar("|"), pos.Column, "", colorFn(underline), trailing)
	} else {
		fmt.Fprintf(d.out, " %*s %s %*s%s\n", gutterWidth, "", gutterBar("|"), pos.Column, "", colorFn(underline))
	}

	for l := line + 1; l <= to; l++ {
		fmt.Fprintf(d.out, " %*d %s %s\n", gutterWidth, l, gutterBar("|"), lineText(d.src, l))
	}
}
