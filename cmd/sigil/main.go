// Command sigil compiles a single sigil source file to a native
// executable: lex, parse, emit SSA text, then shell out to the "qbe"
// SSA-to-assembly tool and the system C compiler, mirroring the original
// jotunheim driver's fork/execvp/waitpid pipeline via os/exec.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kristofer/sigil/pkg/diag"
	"github.com/kristofer/sigil/pkg/emit"
	"github.com/kristofer/sigil/pkg/lexer"
	"github.com/kristofer/sigil/pkg/parser"
)

// version is overridden at build time via -ldflags, the same mechanism
// the original used for JOTUNHEIM_VERSION.
var version = "unversioned"

var (
	keepTemps bool
	emitOnly  bool
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sigil <source-file>",
		Short: "Ahead-of-time compiler front end and SSA emitter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return compileFile(args[0])
		},
	}

	cmd.Flags().BoolVar(&keepTemps, "keep-temps", false, "keep the generated .ssa and .s files")
	cmd.Flags().BoolVar(&emitOnly, "emit-only", false, "stop after writing the .ssa file, skipping qbe and cc")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the sigil version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("sigil version: %s\n", version)
			return nil
		},
	})

	return cmd
}

func compileFile(filename string) error {
	fmt.Printf("sigil version: %s\n", version)

	srcBytes, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	src := string(srcBytes)

	d := diag.New(os.Stderr, src)

	root, ok := parser.ParseAst(lexer.New(src), d)
	if !ok {
		return fmt.Errorf("compilation failed")
	}

	ssaText, ok := emit.Emit(root, d)
	if !ok {
		return fmt.Errorf("compilation failed")
	}

	ssaFilename := "sigil-out.ssa"
	if err := os.WriteFile(ssaFilename, []byte(ssaText), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", ssaFilename, err)
	}
	if !keepTemps && !emitOnly {
		defer os.Remove(ssaFilename)
	}

	if emitOnly {
		return nil
	}

	sFilename := "sigil-out.s"
	if err := runTool("qbe", "-o", sFilename, ssaFilename); err != nil {
		os.Remove(sFilename)
		return err
	}
	if !keepTemps {
		defer os.Remove(sFilename)
	}

	outFilename := deriveOutputFilename(filename)
	if err := runTool("cc", "-Wno-unused-command-line-argument", "-o", outFilename, sFilename); err != nil {
		return err
	}

	return nil
}

func runTool(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}

// deriveOutputFilename strips the input filename's trailing extension,
// taking the last path separator into account so a dotted directory
// component doesn't get mistaken for an extension.
func deriveOutputFilename(filename string) string {
	lastSlash := strings.LastIndexByte(filename, '/')
	lastDot := strings.LastIndexByte(filename, '.')
	if lastDot > lastSlash {
		return filename[:lastDot]
	}
	return filename
}
