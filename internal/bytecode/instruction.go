package bytecode

// Instruction is one 32-bit register-machine instruction word (spec §4.1):
//
//	bits  0– 5  opcode   6-bit opcode id
//	bits  6–13  A        8-bit operand (usually a destination register)
//	bit      14  kB       1 if B addresses a constant, else a register
//	bits 15–22  B        8-bit operand
//	bit      23  kC       as kB, for C
//	bits 24–31  C        8-bit operand
//
// Bx (bits 14–31, 18-bit unsigned) and Ax (bits 6–31, 26-bit unsigned) are
// wide operand forms used in place of kB/B/kC/C or A/kB/B/kC/C respectively.
// sBx and sAx are their signed counterparts, encoded sign-magnitude: the
// field's own lowest bit is the sign, the remaining bits are magnitude, and
// a set sign bit with magnitude m denotes -m (spec §4.1/§6 fixes this as the
// symmetric, normative form).
type Instruction uint32

const (
	posOpCode = 0
	posA      = 6
	posKB     = 14
	posB      = 15
	posKC     = 23
	posC      = 24
	posBx     = 14
	posAx     = 6

	bitsOpCode = 6
	bitsA      = 8
	bitsB      = 8
	bitsC      = 8
	bitsBx     = 18
	bitsAx     = 26

	maskOpCode = (1 << bitsOpCode) - 1
	maskA      = (1 << bitsA) - 1
	maskB      = (1 << bitsB) - 1
	maskC      = (1 << bitsC) - 1
	maskBx     = (1 << bitsBx) - 1
	maskAx     = (1 << bitsAx) - 1

	// MaxRegister is the largest representable register id (8-bit A/B/C).
	MaxRegister = maskA
	// MaxBxMagnitude is the largest magnitude representable in sBx.
	MaxBxMagnitude = maskBx >> 1
	// MaxAxMagnitude is the largest magnitude representable in sAx.
	MaxAxMagnitude = maskAx >> 1
)

// NewABC packs an iABC-form instruction: opcode, A, and RK-selected B/C.
func NewABC(op OpCode, a uint8, b uint8, kb bool, c uint8, kc bool) Instruction {
	inst := Instruction(op&maskOpCode) |
		Instruction(a)<<posA |
		Instruction(b)<<posB |
		Instruction(c)<<posC
	if kb {
		inst |= 1 << posKB
	}
	if kc {
		inst |= 1 << posKC
	}
	return inst
}

// NewABx packs an iABx-form instruction: opcode, A, and a wide unsigned Bx.
func NewABx(op OpCode, a uint8, bx uint32) Instruction {
	return Instruction(op&maskOpCode) | Instruction(a)<<posA | Instruction(bx&maskBx)<<posBx
}

// NewAsBx packs an iAsBx-form instruction: opcode, A, and a signed sBx.
func NewAsBx(op OpCode, a uint8, sbx int32) Instruction {
	return Instruction(op&maskOpCode) | Instruction(a)<<posA | Instruction(encodeSignMagnitude(sbx, bitsBx-1))<<posBx
}

// NewAx packs an iAx-form instruction: opcode and a wide unsigned Ax.
func NewAx(op OpCode, ax uint32) Instruction {
	return Instruction(op&maskOpCode) | Instruction(ax&maskAx)<<posAx
}

// NewAsAx packs an iAsAx-form instruction: opcode and a signed sAx.
func NewAsAx(op OpCode, sax int32) Instruction {
	return Instruction(op&maskOpCode) | Instruction(encodeSignMagnitude(sax, bitsAx-1))<<posAx
}

func encodeSignMagnitude(v int32, magnitudeBits uint) uint32 {
	sign := uint32(0)
	magnitude := v
	if v < 0 {
		sign = 1
		magnitude = -v
	}
	mask := uint32(1)<<magnitudeBits - 1
	return sign | (uint32(magnitude)&mask)<<1
}

func decodeSignMagnitude(field uint32, magnitudeBits uint) int32 {
	sign := field & 1
	mask := uint32(1)<<magnitudeBits - 1
	magnitude := int32((field >> 1) & mask)
	if sign != 0 {
		return -magnitude
	}
	return magnitude
}

// OpCode extracts the 6-bit opcode id.
func (i Instruction) OpCode() OpCode { return OpCode(i & maskOpCode) }

// A extracts the 8-bit A operand.
func (i Instruction) A() uint8 { return uint8((i >> posA) & maskA) }

// B extracts the 8-bit B operand (register or constant index per KB).
func (i Instruction) B() uint8 { return uint8((i >> posB) & maskB) }

// C extracts the 8-bit C operand (register or constant index per KC).
func (i Instruction) C() uint8 { return uint8((i >> posC) & maskC) }

// KB reports whether B addresses the constant pool rather than a register.
func (i Instruction) KB() bool { return (i>>posKB)&1 != 0 }

// KC reports whether C addresses the constant pool rather than a register.
func (i Instruction) KC() bool { return (i>>posKC)&1 != 0 }

// Bx extracts the 18-bit unsigned wide operand.
func (i Instruction) Bx() uint32 { return uint32((i >> posBx) & maskBx) }

// SBx extracts the 18-bit field as a signed, sign-magnitude value.
func (i Instruction) SBx() int32 { return decodeSignMagnitude(uint32((i>>posBx)&maskBx), bitsBx-1) }

// Ax extracts the 26-bit unsigned wide operand.
func (i Instruction) Ax() uint32 { return uint32((i >> posAx) & maskAx) }

// SAx extracts the 26-bit field as a signed, sign-magnitude value.
func (i Instruction) SAx() int32 { return decodeSignMagnitude(uint32((i>>posAx)&maskAx), bitsAx-1) }

// RK resolves an RK(x, kx) operand against a register file and a constant
// pool: constants[x] if kx, else registers[x]. T is whatever Value type the
// caller's register file and constant pool hold; RK is a free function
// rather than a method so internal/value need not import internal/bytecode.
func RK[T any](x uint8, kx bool, registers []T, constants []T) T {
	if kx {
		return constants[x]
	}
	return registers[x]
}
