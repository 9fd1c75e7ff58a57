// Command storylang is the language front end. Only the run subcommand
// lives here; the wider CLI surface (debugger, language server, package
// manager) ships separately.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/storylang/storylang/internal/concurrency"
	"github.com/storylang/storylang/internal/interp"
	"github.com/storylang/storylang/internal/jit"
	"github.com/storylang/storylang/internal/lexer"
	"github.com/storylang/storylang/internal/manifest"
	"github.com/storylang/storylang/internal/parser"
	"github.com/storylang/storylang/internal/profiler"
	"github.com/storylang/storylang/internal/runtime"
	"github.com/storylang/storylang/internal/stdlib"
)

func main() {
	root := &cobra.Command{
		Use:           "storylang",
		Short:         "Storylang interpreter",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a story file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(args[0])
		},
	}
}

func runFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	p := parser.New(lexer.New(string(src)))
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e)
		}
		return fmt.Errorf("%s: %d error(s)", path, len(errs))
	}

	env := runtime.NewEnvironment()
	executor := concurrency.New()
	prof := profiler.New()
	stdlib.Register(env, stdlib.Options{Executor: executor, Profiler: prof})

	ev := interp.New(env, executor, prof, jit.NewBridge(), manifest.NewResolver(path), os.Stdout)
	if err := ev.Run(prog); err != nil {
		return err
	}
	executor.Wait()
	return nil
}
