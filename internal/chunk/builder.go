package chunk

import "github.com/NightTerror1721/kpl/internal/bytecode"

// Builder assembles a Chunk's four sections independently before a single
// Build call freezes them, mirroring the original assembler's ChunkBuilder
// protocol (constants/chunks/instructions/registers, then build).
type Builder struct {
	constants     []Constant
	children      []*Chunk
	registerCount uint8
	code          []bytecode.Instruction
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) Constants(constants []Constant) *Builder {
	b.constants = constants
	return b
}

func (b *Builder) AddConstant(c Constant) int {
	b.constants = append(b.constants, c)
	return len(b.constants) - 1
}

func (b *Builder) Children(children []*Chunk) *Builder {
	b.children = children
	return b
}

func (b *Builder) AddChild(c *Chunk) int {
	b.children = append(b.children, c)
	return len(b.children) - 1
}

func (b *Builder) Instructions(code []bytecode.Instruction) *Builder {
	b.code = code
	return b
}

func (b *Builder) Emit(inst bytecode.Instruction) int {
	b.code = append(b.code, inst)
	return len(b.code) - 1
}

// Registers sets the register_count, clamped to the 8-bit representable
// range (spec §4.2: register_count: u8, 0..=255).
func (b *Builder) Registers(count int) *Builder {
	switch {
	case count < 0:
		count = 0
	case count > 255:
		count = 255
	}
	b.registerCount = uint8(count)
	return b
}

// Build freezes the accumulated sections into a Chunk. Empty sections are
// permitted: build is total (spec §4.2).
func (b *Builder) Build() *Chunk {
	return New(b.constants, b.children, b.registerCount, b.code)
}
