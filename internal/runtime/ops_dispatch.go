package runtime

import (
	"github.com/NightTerror1721/kpl/internal/bytecode"
	"github.com/NightTerror1721/kpl/internal/value"
	"github.com/NightTerror1721/kpl/internal/vmerr"
)

// dispatchBinary routes a two-register opcode to its internal/value
// operator implementation. Kept separate from the fetch/decode loop so the
// loop's switch stays a flat list of opcodes rather than nested dispatch.
func dispatchBinary(ctx *value.Context, op bytecode.OpCode, left, right value.Value) (value.Value, error) {
	switch op {
	case bytecode.ADD:
		return value.Add(ctx, left, right)
	case bytecode.SUB:
		return value.Sub(ctx, left, right)
	case bytecode.MUL:
		return value.Mul(ctx, left, right)
	case bytecode.DIV:
		return value.Div(ctx, left, right)
	case bytecode.IDIV:
		return value.IDiv(ctx, left, right)
	case bytecode.MOD:
		return value.Mod(ctx, left, right)
	case bytecode.EQ:
		return value.Eq(ctx, left, right)
	case bytecode.NE:
		return value.Ne(ctx, left, right)
	case bytecode.GR:
		return value.Gr(ctx, left, right)
	case bytecode.LS:
		return value.Ls(ctx, left, right)
	case bytecode.GE:
		return value.Ge(ctx, left, right)
	case bytecode.LE:
		return value.Le(ctx, left, right)
	case bytecode.SHL:
		return value.Shl(ctx, left, right)
	case bytecode.SHR:
		return value.Shr(ctx, left, right)
	case bytecode.BAND:
		return value.Band(ctx, left, right)
	case bytecode.BOR:
		return value.Bor(ctx, left, right)
	case bytecode.XOR:
		return value.Xor(ctx, left, right)
	case bytecode.IN:
		// IN A KB KC follows the uniform op(RKB, RKC) shape every binary
		// opcode uses; value.In's (container, needle) signature means B is
		// the container and C the needle.
		return value.In(ctx, left, right)
	default:
		return value.Null, vmerr.New(vmerr.BadValueOperation, "not a binary opcode: %s", op)
	}
}

func dispatchUnary(ctx *value.Context, op bytecode.OpCode, v value.Value) (value.Value, error) {
	switch op {
	case bytecode.BNOT:
		return value.Bnot(ctx, v)
	case bytecode.NOT:
		return value.Not(ctx, v)
	case bytecode.NEG:
		return value.Neg(ctx, v)
	case bytecode.LEN:
		return value.Len(ctx, v)
	default:
		return value.Null, vmerr.New(vmerr.BadValueOperation, "not a unary opcode: %s", op)
	}
}
