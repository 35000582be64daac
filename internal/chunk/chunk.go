// Package chunk holds the immutable, externally-assembled compilation unit
// the interpreter executes: constants, nested chunks, a register count, and
// code. Chunks are produced by an assembler/compiler outside this module's
// scope (spec §1) and are ordinary Go values — they live independently of
// the managed heap (spec §3 "Lifecycles").
package chunk

import "github.com/NightTerror1721/kpl/internal/bytecode"

// ConstantKind tags the variant held by a Constant.
type ConstantKind uint8

const (
	ConstNull ConstantKind = iota
	ConstInteger
	ConstFloat
	ConstBoolean
	ConstString
)

// Constant is a typed literal stored in a Chunk's constant pool. String
// constants own their byte buffer; constants are materialized into runtime
// Values on first use by the interpreter (spec §3).
type Constant struct {
	Kind    ConstantKind
	Integer int64
	Float   float64
	Boolean bool
	String  []byte
}

func NullConstant() Constant            { return Constant{Kind: ConstNull} }
func IntegerConstant(v int64) Constant  { return Constant{Kind: ConstInteger, Integer: v} }
func FloatConstant(v float64) Constant  { return Constant{Kind: ConstFloat, Float: v} }
func BooleanConstant(v bool) Constant   { return Constant{Kind: ConstBoolean, Boolean: v} }
func StringConstant(s string) Constant  { return Constant{Kind: ConstString, String: []byte(s)} }
func BytesConstant(b []byte) Constant {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Constant{Kind: ConstString, String: cp}
}

// Chunk is an immutable bundle of constants, child chunks (no opcode reads
// them; a host/loader wraps a child into a Function via value.NewFunction),
// a fixed register count, and a flat instruction vector.
type Chunk struct {
	constants      []Constant
	children       []*Chunk
	registerCount  uint8
	code           []bytecode.Instruction
}

// New constructs a Chunk directly from its four sections. Any section may be
// nil/empty — build is total (spec §4.2).
func New(constants []Constant, children []*Chunk, registerCount uint8, code []bytecode.Instruction) *Chunk {
	return &Chunk{
		constants:     append([]Constant(nil), constants...),
		children:      append([]*Chunk(nil), children...),
		registerCount: registerCount,
		code:          append([]bytecode.Instruction(nil), code...),
	}
}

func (c *Chunk) ConstantCount() int { return len(c.constants) }

func (c *Chunk) Constant(index int) Constant { return c.constants[index] }

func (c *Chunk) ChildCount() int { return len(c.children) }

func (c *Chunk) Child(index int) *Chunk { return c.children[index] }

// RegisterCount is the number of register-file slots (1..register_count)
// CALL must allocate for an activation of this chunk, per spec §4.8.
func (c *Chunk) RegisterCount() uint8 { return c.registerCount }

func (c *Chunk) InstructionCount() int { return len(c.code) }

func (c *Chunk) Instruction(pc int) bytecode.Instruction { return c.code[pc] }

// Code returns the chunk's instruction vector. Callers must not mutate it;
// Chunks are immutable after construction (spec §4.2).
func (c *Chunk) Code() []bytecode.Instruction { return c.code }
