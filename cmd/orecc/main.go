// Command orecc compiles a program given as its single argument and writes
// x86-64 assembly to stdout.
//
//	orecc 'a = 3; a = a + 2; return a;' > out.s
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"orecc/pkg/compiler"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run returns the process exit status. Nothing is written to stdout unless
// compilation succeeds.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintf(stderr, "usage: orecc <program>\n")
		fmt.Fprintf(stderr, "orecc: expected 1 argument, got %d\n", len(args))
		return 1
	}

	assembly, _, err := compiler.Compile(args[0])
	if err != nil {
		var cerr *compiler.Error
		if errors.As(err, &cerr) {
			cerr.Render(stderr)
		} else {
			fmt.Fprintf(stderr, "orecc: %v\n", err)
		}
		return 1
	}

	if _, err := io.WriteString(stdout, assembly); err != nil {
		fmt.Fprintf(stderr, "orecc: %v\n", err)
		return 1
	}
	return 0
}
