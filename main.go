//go:build !js

package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/llir/llvm/asm"
	"github.com/llir/llvm/ir"
	"github.com/tebeka/atexit"

	"gobf/pkg/compiler"
	"gobf/pkg/utils"
	"gobf/pkg/vm"
)

func main() {
	inPath := flag.String("in", "", "input program file path")
	outPath := flag.String("out", "", "output LLVM IR file path (default: input with .ll extension)")
	entry := flag.String("entry", compiler.DefaultEntry, "name of the generated function")
	runProgram := flag.Bool("run", false, "run the compiled module on the IR interpreter")
	runLLPath := flag.String("run-ll", "", "run an existing .ll file on the IR interpreter")
	snapshotPath := flag.String("snapshot", "", "write a tape snapshot (zip) after running")
	maxSteps := flag.Int("max-steps", 0, "stop after this many IR instructions (0: no limit)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	if *runProgram && *runLLPath != "" {
		fmt.Fprintln(os.Stderr, "use either -run or -run-ll, not both")
		atexit.Exit(2)
	}

	var compiled *ir.Module
	if *inPath != "" {
		source, fullPath, err := utils.ReadSource(*inPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read input file %q: %v\n", *inPath, err)
			atexit.Exit(1)
		}

		compiled, err = compiler.Compile(source, *entry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "compilation failed: %v\n", err)
			atexit.Exit(1)
		}
		compiled.SourceFilename = fullPath

		output := *outPath
		if output == "" {
			output = defaultOutputPath(*inPath)
		}
		code := compiled.String()
		if err := os.WriteFile(output, []byte(code), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write IR file %q: %v\n", output, err)
			atexit.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "compiled %d bytes of IR -> %s\n", len(code), output)
	}

	if *inPath == "" && *runLLPath == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: provide -in to compile, -run to run the result, or -run-ll <file> to run existing IR")
		flag.Usage()
		atexit.Exit(2)
	}

	var target *ir.Module
	switch {
	case *runLLPath != "":
		m, err := asm.ParseFile(*runLLPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to parse %q: %v\n", *runLLPath, err)
			atexit.Exit(1)
		}
		target = m
	case *runProgram:
		target = compiled
	default:
		atexit.Exit(0)
	}

	if err := runModule(target, *entry, *maxSteps, *snapshotPath); err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func defaultOutputPath(inPath string) string {
	return utils.ReplaceExt(inPath, ".ll")
}

func runModule(m *ir.Module, entry string, maxSteps int, snapshotPath string) error {
	out := bufio.NewWriter(os.Stdout)
	atexit.Register(func() { out.Flush() })

	machine := vm.New(m, vm.NewConsole(os.Stdin, out))
	machine.MaxSteps = maxSteps

	err := machine.RunFunc(entry)
	if errors.Is(err, vm.ErrStepLimit) {
		slog.Warn("step limit reached", slog.Int("steps", machine.Steps))
	}
	if err != nil {
		return err
	}

	index, _ := machine.Tape()
	slog.Debug("run complete",
		slog.String("entry", entry),
		slog.Int("steps", machine.Steps),
		slog.Int("exit_code", int(machine.ExitCode)),
		slog.Int("index", int(index)),
	)

	if snapshotPath != "" {
		if err := machine.HibernateToFile(snapshotPath); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		slog.Info("snapshot written", slog.String("path", snapshotPath))
	}
	return nil
}
