package shader

import (
	"fmt"

	"github.com/gogpu/naga"
)

// Validate parses, lowers and validates the program with naga.
func (p *Program) Validate() error {
	ast, err := naga.Parse(p.Source)
	if err != nil {
		return fmt.Errorf("shader: parse: %w", err)
	}
	module, err := naga.LowerWithSource(ast, p.Source)
	if err != nil {
		return fmt.Errorf("shader: lower: %w", err)
	}
	issues, err := naga.Validate(module)
	if err != nil {
		return fmt.Errorf("shader: validate: %w", err)
	}
	if len(issues) > 0 {
		return fmt.Errorf("shader: validate: %w", &issues[0])
	}
	return nil
}

// SPIRV compiles the program to SPIR-V words.
func (p *Program) SPIRV() ([]uint32, error) {
	spirvBytes, err := naga.Compile(p.Source)
	if err != nil {
		return nil, fmt.Errorf("shader: compile: %w", err)
	}

	// SPIR-V is little-endian 32-bit words
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code, nil
}
