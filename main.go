package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"orecc/pkg/asm"
	"orecc/pkg/compiler"
	"orecc/pkg/cpu"
	"orecc/pkg/utils"
)

func main() {
	inPath := flag.String("in", "", "input source file path")
	expr := flag.String("e", "", "program text to compile (instead of -in)")
	outPath := flag.String("out", "", "output assembly file path (default: input with .s extension)")
	runProgram := flag.Bool("run", false, "run the generated assembly on the emulator and exit with its status")
	dump := flag.Bool("dump", false, "print tokens, AST and frame layout to stderr")
	maxSteps := flag.Int("max-steps", cpu.DefaultMaxSteps, "instruction budget for -run")
	trace := flag.Bool("trace", false, "trace every executed instruction to stderr (with -run)")
	flag.Parse()

	log.SetFlags(0)
	log.SetPrefix("orecc-dev: ")

	if (*inPath == "") == (*expr == "") {
		fmt.Fprintln(os.Stderr, "provide exactly one of -in <file> or -e <program>")
		flag.Usage()
		os.Exit(2)
	}

	src := *expr
	output := *outPath
	if *inPath != "" {
		fullPath, _, err := utils.GetPathInfo(*inPath)
		if err != nil {
			log.Fatalf("bad input path %q: %v", *inPath, err)
		}
		data, err := os.ReadFile(fullPath)
		if err != nil {
			log.Fatalf("failed to read input file %q: %v", *inPath, err)
		}
		src = string(data)
		if output == "" {
			output = utils.ReplaceExt(fullPath, ".s")
		}
	}

	var dumpTo io.Writer
	if *dump {
		dumpTo = os.Stderr
	}

	assembly, err := build(src, dumpTo)
	if err != nil {
		var cerr *compiler.Error
		if errors.As(err, &cerr) {
			cerr.Render(os.Stderr)
			os.Exit(1)
		}
		log.Fatalf("compilation failed: %v", err)
	}

	switch {
	case output != "":
		if err := os.WriteFile(output, []byte(assembly), 0o644); err != nil {
			log.Fatalf("failed to write %q: %v", output, err)
		}
		log.Printf("wrote %d bytes -> %s", len(assembly), output)
	case !*runProgram:
		fmt.Print(assembly)
	}

	if !*runProgram {
		return
	}

	var traceTo io.Writer
	if *trace {
		traceTo = os.Stderr
	}
	status, steps, err := execute(assembly, *maxSteps, traceTo)
	if err != nil {
		log.Fatalf("run failed: %v", err)
	}
	log.Printf("run complete: exit status %d after %d steps", status, steps)
	os.Exit(status)
}

// build compiles src stage by stage, writing each stage's result to dump
// when it is non-nil.
func build(src string, dump io.Writer) (string, error) {
	tokens, err := compiler.Lex(src)
	if err != nil {
		return "", err
	}
	if dump != nil {
		fmt.Fprintf(dump, "Tokens (%d)\n", len(tokens))
		for _, tok := range tokens {
			fmt.Fprintln(dump, " ", tok)
		}
		fmt.Fprintln(dump)
	}

	prog, err := compiler.Parse(tokens, src)
	if err != nil {
		return "", err
	}
	if dump != nil {
		fmt.Fprint(dump, prog)
		fmt.Fprintln(dump)
	}

	return compiler.Generate(prog)
}

// execute runs assembly on the emulator and returns the exit status and the
// number of instructions executed.
func execute(assembly string, maxSteps int, trace io.Writer) (int, int, error) {
	prog, err := asm.Assemble(assembly)
	if err != nil {
		return 0, 0, fmt.Errorf("assembly error: %w", err)
	}

	vm := cpu.NewCPU(prog)
	vm.Trace = trace
	if err := vm.Start("main"); err != nil {
		return 0, 0, err
	}
	status, err := vm.Run(maxSteps)
	return status, vm.Steps, err
}
