package compiler

import (
	"fmt"

	"orecc/pkg/asm"
)

// Compile runs the whole pipeline on src and checks the result with the
// assembler. Front-end and codegen failures are returned as *Error; the
// assembly text is still returned when only the assembler rejects it.
func Compile(src string) (string, *asm.Program, error) {
	tokens, err := Lex(src)
	if err != nil {
		return "", nil, err
	}

	prog, err := Parse(tokens, src)
	if err != nil {
		return "", nil, err
	}

	assembly, err := Generate(prog)
	if err != nil {
		return "", nil, err
	}

	code, err := asm.Assemble(assembly)
	if err != nil {
		return assembly, nil, fmt.Errorf("assembly error: %w", err)
	}

	return assembly, code, nil
}
