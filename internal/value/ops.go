package value

import (
	"fmt"
	"strings"

	"github.com/NightTerror1721/kpl/internal/vmerr"
)

// Special property names an Object or Userdata can define to override an
// operator. Probed by the ops below exactly as the interpreter's GET_PROP
// would resolve them.
const (
	propAdd = "__add__"
	propSub = "__sub__"
	propMul = "__mul__"
	propDiv = "__div__"
	propIDiv = "__idiv__"
	propMod  = "__mod__"

	propEq = "__eq__"
	propNe = "__ne__"
	propGr = "__gr__"
	propLs = "__ls__"
	propGe = "__ge__"
	propLe = "__le__"

	propShl  = "__shl__"
	propShr  = "__shr__"
	propBand = "__band__"
	propBor  = "__bor__"
	propXor  = "__xor__"
	propBnot = "__bnot__"

	propLen = "__len__"
	propNot = "__not__"
	propNeg = "__neg__"

	propIn  = "__in__"
	propGet = "__get__"
	propSet = "__set__"

	propConstructor = "__constructor__"
)

// PropCall is the special property CALL/INVOKE probe on an Object or
// Userdata when the called value isn't a Function (§4.3 call semantics).
const PropCall = "__call__"

func badOp(op string, left, right Value) *vmerr.Error {
	return vmerr.New(vmerr.BadValueOperation, "cannot %s %s with %s", op, left.Kind(), right.Kind())
}

func badUnaryOp(op string, v Value) *vmerr.Error {
	return vmerr.New(vmerr.BadValueOperation, "cannot %s %s", op, v.Kind())
}

// overload looks up name on an Object/Userdata and, if present, invokes it
// with args (the right operand for binary ops, none for unary ops, index
// and value for __set__). ok is false when no such property (or
// no Invoker) exists, in which case the caller falls back to its default
// behavior (typically an error or identity comparison).
func overload(ctx *Context, self Value, name string, args ...Value) (Value, bool, error) {
	var fn Value
	switch self.kind {
	case KindObject:
		fn = ctx.Object(self).GetProperty(name)
	case KindUserdata:
		fn = ctx.Userdata(self).Meta().GetProperty(name)
	default:
		return Null, false, nil
	}
	if fn.IsNull() {
		return Null, false, nil
	}
	if ctx.Invoke == nil {
		return Null, false, nil
	}
	result, err := ctx.Invoke.Invoke(fn, self, args)
	if err != nil {
		return Null, true, err
	}
	return result, true, nil
}

type numBinOp struct {
	ii func(a, b int64) (Value, error)
	ff func(a, b float64) (Value, error)
}

func arith(ctx *Context, op string, propName string, left, right Value, apply numBinOp) (Value, error) {
	switch left.kind {
	case KindInteger:
		switch right.kind {
		case KindInteger:
			return apply.ii(left.i, right.i)
		case KindFloat:
			return apply.ff(float64(left.i), right.f)
		}
	case KindFloat:
		switch right.kind {
		case KindInteger:
			return apply.ff(left.f, float64(right.i))
		case KindFloat:
			return apply.ff(left.f, right.f)
		}
	case KindObject, KindUserdata:
		if v, ok, err := overload(ctx, left, propName, right); ok {
			return v, err
		}
	}
	return Null, badOp(op, left, right)
}

func Add(ctx *Context, left, right Value) (Value, error) {
	if left.kind == KindString && right.kind == KindString {
		return NewString(ctx, ctx.String(left).String()+ctx.String(right).String())
	}
	if left.kind == KindArray && (right.kind == KindArray || right.kind == KindList) {
		return concatArray(ctx, left, right)
	}
	if left.kind == KindList && (right.kind == KindArray || right.kind == KindList) {
		return concatList(ctx, left, right)
	}
	return arith(ctx, "add", propAdd, left, right, numBinOp{
		ii: func(a, b int64) (Value, error) { return Int(a + b), nil },
		ff: func(a, b float64) (Value, error) { return Float(a + b), nil },
	})
}

func Sub(ctx *Context, left, right Value) (Value, error) {
	return arith(ctx, "subtract", propSub, left, right, numBinOp{
		ii: func(a, b int64) (Value, error) { return Int(a - b), nil },
		ff: func(a, b float64) (Value, error) { return Float(a - b), nil },
	})
}

func Mul(ctx *Context, left, right Value) (Value, error) {
	if left.kind == KindString && right.kind == KindInteger {
		return NewString(ctx, strings.Repeat(ctx.String(left).String(), max0(right.i)))
	}
	return arith(ctx, "multiply", propMul, left, right, numBinOp{
		ii: func(a, b int64) (Value, error) { return Int(a * b), nil },
		ff: func(a, b float64) (Value, error) { return Float(a * b), nil },
	})
}

func max0(n int64) int {
	if n < 0 {
		return 0
	}
	return int(n)
}

// Div always produces a Float, per spec.md's F÷F division row: dividing by
// zero follows IEEE 754 (+Inf/-Inf/NaN) rather than raising an error. Only
// IDiv and Mod treat division by zero as an error.
func Div(ctx *Context, left, right Value) (Value, error) {
	return arith(ctx, "divide", propDiv, left, right, numBinOp{
		ii: func(a, b int64) (Value, error) { return Float(float64(a) / float64(b)), nil },
		ff: func(a, b float64) (Value, error) { return Float(a / b), nil },
	})
}

func IDiv(ctx *Context, left, right Value) (Value, error) {
	return arith(ctx, "integer-divide", propIDiv, left, right, numBinOp{
		ii: func(a, b int64) (Value, error) {
			if b == 0 {
				return Null, vmerr.New(vmerr.BadValueOperation, "integer division by zero")
			}
			return Int(a / b), nil
		},
		ff: func(a, b float64) (Value, error) {
			if b == 0 {
				return Null, vmerr.New(vmerr.BadValueOperation, "integer division by zero")
			}
			return Int(int64(a / b)), nil
		},
	})
}

func Mod(ctx *Context, left, right Value) (Value, error) {
	return arith(ctx, "mod", propMod, left, right, numBinOp{
		ii: func(a, b int64) (Value, error) {
			if b == 0 {
				return Null, vmerr.New(vmerr.BadValueOperation, "integer division by zero")
			}
			return Int(a % b), nil
		},
		ff: func(a, b float64) (Value, error) {
			if int64(b) == 0 {
				return Null, vmerr.New(vmerr.BadValueOperation, "integer division by zero")
			}
			return Int(int64(a) % int64(b)), nil
		},
	})
}

func concatArray(ctx *Context, left, right Value) (Value, error) {
	var out []Value
	out = append(out, ctx.Array(left).Elements()...)
	if right.kind == KindArray {
		out = append(out, ctx.Array(right).Elements()...)
	} else {
		out = append(out, ctx.List(right).Elements()...)
	}
	return NewArrayFrom(ctx, out)
}

func concatList(ctx *Context, left, right Value) (Value, error) {
	result, err := NewList(ctx)
	if err != nil {
		return Null, err
	}
	lst := ctx.List(result)
	for _, v := range ctx.List(left).Elements() {
		lst.PushBack(v)
	}
	if right.kind == KindArray {
		for _, v := range ctx.Array(right).Elements() {
			lst.PushBack(v)
		}
	} else {
		for _, v := range ctx.List(right).Elements() {
			lst.PushBack(v)
		}
	}
	return result, nil
}

// Eq implements KPL `==`. Object/Userdata probe __eq__ before falling back
// to handle identity.
func Eq(ctx *Context, left, right Value) (Value, error) {
	switch left.kind {
	case KindNull:
		return Bool(right.kind == KindNull), nil
	case KindInteger:
		switch right.kind {
		case KindInteger:
			return Bool(left.i == right.i), nil
		case KindFloat:
			return Bool(float64(left.i) == right.f), nil
		}
		return False, nil
	case KindFloat:
		switch right.kind {
		case KindInteger:
			return Bool(left.f == float64(right.i)), nil
		case KindFloat:
			return Bool(left.f == right.f), nil
		}
		return False, nil
	case KindBoolean:
		return Bool(right.kind == KindBoolean && left.i == right.i), nil
	case KindString:
		return Bool(right.kind == KindString && ctx.String(left).String() == ctx.String(right).String()), nil
	case KindArray:
		return eqArray(ctx, left, right)
	case KindList:
		return eqList(ctx, left, right)
	case KindFunction:
		return Bool(right.kind == KindFunction && left.handle == right.handle), nil
	case KindObject:
		if right.kind != KindObject {
			return False, nil
		}
		if v, ok, err := overload(ctx, left, propEq, right); ok {
			return v, err
		}
		return Bool(left.handle == right.handle), nil
	case KindUserdata:
		if right.kind != KindUserdata {
			return False, nil
		}
		if v, ok, err := overload(ctx, left, propEq, right); ok {
			return v, err
		}
		return Bool(left.handle == right.handle), nil
	}
	return False, nil
}

func eqArray(ctx *Context, left, right Value) (Value, error) {
	if right.kind != KindArray {
		return False, nil
	}
	a, b := ctx.Array(left).Elements(), ctx.Array(right).Elements()
	if len(a) != len(b) {
		return False, nil
	}
	for i := range a {
		eq, err := Eq(ctx, a[i], b[i])
		if err != nil {
			return Null, err
		}
		if !eq.Boolean() {
			return False, nil
		}
	}
	return True, nil
}

func eqList(ctx *Context, left, right Value) (Value, error) {
	if right.kind != KindList {
		return False, nil
	}
	a, b := ctx.List(left).Elements(), ctx.List(right).Elements()
	if len(a) != len(b) {
		return False, nil
	}
	for i := range a {
		eq, err := Eq(ctx, a[i], b[i])
		if err != nil {
			return Null, err
		}
		if !eq.Boolean() {
			return False, nil
		}
	}
	return True, nil
}

// Ne implements KPL `!=`. Object/Userdata probe __ne__ first; absent that,
// they negate __eq__; absent that too, they fall back to identity.
func Ne(ctx *Context, left, right Value) (Value, error) {
	switch left.kind {
	case KindObject, KindUserdata:
		if left.kind != right.kind {
			return True, nil
		}
		if v, ok, err := overload(ctx, left, propNe, right); ok {
			return v, err
		}
		if v, ok, err := overload(ctx, left, propEq, right); ok {
			if err != nil {
				return Null, err
			}
			return Bool(!v.Boolean()), nil
		}
		return Bool(left.handle != right.handle), nil
	default:
		eq, err := Eq(ctx, left, right)
		if err != nil {
			return Null, err
		}
		return Bool(!eq.Boolean()), nil
	}
}

type ordering int

const (
	ordLess ordering = iota
	ordEqual
	ordGreater
)

func compareScalar(ctx *Context, op string, propName string, left, right Value, want func(ordering) bool) (Value, error) {
	var ord ordering
	switch left.kind {
	case KindInteger:
		switch right.kind {
		case KindInteger:
			ord = cmpInt(left.i, right.i)
		case KindFloat:
			ord = cmpFloat(float64(left.i), right.f)
		default:
			return Null, badOp(op, left, right)
		}
	case KindFloat:
		switch right.kind {
		case KindInteger:
			ord = cmpFloat(left.f, float64(right.i))
		case KindFloat:
			ord = cmpFloat(left.f, right.f)
		default:
			return Null, badOp(op, left, right)
		}
	case KindString:
		if right.kind != KindString {
			return Null, badOp(op, left, right)
		}
		ord = cmpString(ctx.String(left).String(), ctx.String(right).String())
	case KindObject, KindUserdata:
		if v, ok, err := overload(ctx, left, propName, right); ok {
			return v, err
		}
		return Null, badOp(op, left, right)
	default:
		return Null, badOp(op, left, right)
	}
	return Bool(want(ord)), nil
}

func cmpInt(a, b int64) ordering {
	switch {
	case a < b:
		return ordLess
	case a > b:
		return ordGreater
	default:
		return ordEqual
	}
}

func cmpFloat(a, b float64) ordering {
	switch {
	case a < b:
		return ordLess
	case a > b:
		return ordGreater
	default:
		return ordEqual
	}
}

func cmpString(a, b string) ordering {
	switch {
	case a < b:
		return ordLess
	case a > b:
		return ordGreater
	default:
		return ordEqual
	}
}

func Gr(ctx *Context, left, right Value) (Value, error) {
	return compareScalar(ctx, "compare", propGr, left, right, func(o ordering) bool { return o == ordGreater })
}

func Ls(ctx *Context, left, right Value) (Value, error) {
	return compareScalar(ctx, "compare", propLs, left, right, func(o ordering) bool { return o == ordLess })
}

func Ge(ctx *Context, left, right Value) (Value, error) {
	return compareScalar(ctx, "compare", propGe, left, right, func(o ordering) bool { return o != ordLess })
}

func Le(ctx *Context, left, right Value) (Value, error) {
	return compareScalar(ctx, "compare", propLe, left, right, func(o ordering) bool { return o != ordGreater })
}

func intBinOp(ctx *Context, op string, propName string, left, right Value, apply func(a, b int64) int64) (Value, error) {
	if left.kind == KindInteger && right.kind == KindInteger {
		return Int(apply(left.i, right.i)), nil
	}
	if left.kind == KindObject || left.kind == KindUserdata {
		if v, ok, err := overload(ctx, left, propName, right); ok {
			return v, err
		}
	}
	return Null, badOp(op, left, right)
}

func Shl(ctx *Context, left, right Value) (Value, error) {
	return intBinOp(ctx, "shift left", propShl, left, right, func(a, b int64) int64 { return a << uint64(b) })
}

func Shr(ctx *Context, left, right Value) (Value, error) {
	return intBinOp(ctx, "shift right", propShr, left, right, func(a, b int64) int64 { return a >> uint64(b) })
}

func Band(ctx *Context, left, right Value) (Value, error) {
	return intBinOp(ctx, "bitwise and", propBand, left, right, func(a, b int64) int64 { return a & b })
}

func Bor(ctx *Context, left, right Value) (Value, error) {
	return intBinOp(ctx, "bitwise or", propBor, left, right, func(a, b int64) int64 { return a | b })
}

func Xor(ctx *Context, left, right Value) (Value, error) {
	return intBinOp(ctx, "xor", propXor, left, right, func(a, b int64) int64 { return a ^ b })
}

// Bnot implements unary bitwise complement.
func Bnot(ctx *Context, v Value) (Value, error) {
	if v.kind == KindInteger {
		return Int(^v.i), nil
	}
	if v.kind == KindObject || v.kind == KindUserdata {
		if r, ok, err := overload(ctx, v, propBnot); ok {
			return r, err
		}
	}
	return Null, badUnaryOp("bitwise-complement", v)
}

// Not implements unary logical negation using ToBool's truthiness rule,
// unless an Object/Userdata overrides it via __not__.
func Not(ctx *Context, v Value) (Value, error) {
	if v.kind == KindObject || v.kind == KindUserdata {
		if r, ok, err := overload(ctx, v, propNot); ok {
			return r, err
		}
	}
	b, err := ToBool(ctx, v)
	if err != nil {
		return Null, err
	}
	return Bool(!b), nil
}

// Neg implements unary arithmetic negation.
func Neg(ctx *Context, v Value) (Value, error) {
	switch v.kind {
	case KindInteger:
		return Int(-v.i), nil
	case KindFloat:
		return Float(-v.f), nil
	case KindObject, KindUserdata:
		if r, ok, err := overload(ctx, v, propNeg); ok {
			return r, err
		}
	}
	return Null, badUnaryOp("negate", v)
}

// Len implements the LEN opcode.
func Len(ctx *Context, v Value) (Value, error) {
	switch v.kind {
	case KindString:
		return Int(int64(ctx.String(v).Len())), nil
	case KindArray:
		return Int(int64(ctx.Array(v).Len())), nil
	case KindList:
		return Int(int64(ctx.List(v).Len())), nil
	case KindObject, KindUserdata:
		if r, ok, err := overload(ctx, v, propLen); ok {
			return r, err
		}
	}
	return Null, badUnaryOp("take the length of", v)
}

// In implements the IN opcode: right-in-left membership (left.In(right) in
// the runtime_in convention, mirroring the source's receiver-is-container
// ordering: In(container, needle)).
func In(ctx *Context, container, needle Value) (Value, error) {
	switch container.kind {
	case KindString:
		if needle.kind != KindString {
			return Null, badOp("test membership in", container, needle)
		}
		return Bool(strings.Contains(ctx.String(container).String(), ctx.String(needle).String())), nil
	case KindArray:
		for _, elem := range ctx.Array(container).Elements() {
			eq, err := Eq(ctx, elem, needle)
			if err != nil {
				return Null, err
			}
			if eq.Boolean() {
				return True, nil
			}
		}
		return False, nil
	case KindList:
		for _, elem := range ctx.List(container).Elements() {
			eq, err := Eq(ctx, elem, needle)
			if err != nil {
				return Null, err
			}
			if eq.Boolean() {
				return True, nil
			}
		}
		return False, nil
	case KindObject, KindUserdata:
		if r, ok, err := overload(ctx, container, propIn, needle); ok {
			return r, err
		}
	}
	return Null, badOp("test membership in", container, needle)
}

// InstanceOf implements the INSTANCEOF opcode: whether cls is v's class or,
// transitively, one of that class's parents. v's own parents are not
// consulted, and a non-Object v is never an instance.
func InstanceOf(ctx *Context, v Value, cls Value) (Value, error) {
	if v.kind != KindObject {
		return False, nil
	}
	return Bool(isInstanceOf(ctx, ctx.Object(v).Class(), cls)), nil
}

func isInstanceOf(ctx *Context, class Value, target Value) bool {
	if class.IsNull() {
		return false
	}
	if class.Equal(target) {
		return true
	}
	if class.kind != KindObject {
		return false
	}
	obj := ctx.Object(class)
	for i := 0; i < obj.ParentCount(); i++ {
		if isInstanceOf(ctx, obj.Parent(i), target) {
			return true
		}
	}
	return false
}

// GetIndex implements the GET opcode (subscripted read).
func GetIndex(ctx *Context, container, index Value) (Value, error) {
	switch container.kind {
	case KindArray:
		arr := ctx.Array(container)
		i, err := indexInRange(index, arr.Len())
		if err != nil {
			return Null, err
		}
		return arr.Get(i), nil
	case KindList:
		lst := ctx.List(container)
		i, err := indexInRange(index, lst.Len())
		if err != nil {
			return Null, err
		}
		v, _ := lst.At(i)
		return v, nil
	case KindString:
		s := ctx.String(container)
		i, err := indexInRange(index, s.Len())
		if err != nil {
			return Null, err
		}
		return NewString(ctx, string(s.Bytes()[i:i+1]))
	case KindObject, KindUserdata:
		if r, ok, err := overload(ctx, container, propGet, index); ok {
			return r, err
		}
	}
	return Null, badOp("index", container, index)
}

// SetIndex implements the SET opcode (subscripted write).
func SetIndex(ctx *Context, container, index, rhs Value) error {
	switch container.kind {
	case KindArray:
		arr := ctx.Array(container)
		i, err := indexInRange(index, arr.Len())
		if err != nil {
			return err
		}
		arr.Set(i, rhs)
		return nil
	case KindObject, KindUserdata:
		if _, ok, err := overload(ctx, container, propSet, index, rhs); ok {
			return err
		}
	}
	return badOp("index-assign", container, index)
}

func indexInRange(index Value, length int) (int, error) {
	if index.kind != KindInteger {
		return 0, vmerr.New(vmerr.BadValueOperation, "index must be an integer, got %s", index.Kind())
	}
	i := index.i
	if i < 0 || i >= int64(length) {
		return 0, vmerr.New(vmerr.IndexOutOfRange, "index out of range [0, %d): %d", length, i)
	}
	return int(i), nil
}

// ToString implements the to_string totality: every Value has a textual
// representation, even without a KPL-level __tostring__ hook.
func ToString(ctx *Context, v Value) string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindInteger:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindBoolean:
		return fmt.Sprintf("%t", v.Boolean())
	case KindString:
		return ctx.String(v).String()
	case KindArray:
		elems := ctx.Array(v).Elements()
		parts := make([]string, len(elems))
		for i, e := range elems {
			parts[i] = ToString(ctx, e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindList:
		elems := ctx.List(v).Elements()
		parts := make([]string, len(elems))
		for i, e := range elems {
			parts[i] = ToString(ctx, e)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case KindObject:
		return fmt.Sprintf("object@%d", v.handle)
	case KindFunction:
		return fmt.Sprintf("function@%d", v.handle)
	case KindUserdata:
		return fmt.Sprintf("userdata@%d", v.handle)
	default:
		return "null"
	}
}

// ToBool implements the truthiness rule TEST/TEST_SET/NOT rely on: null and
// false are falsy, the integer/float zero values are falsy, String/Array/
// List/Object are truthy only when non-empty, and Function/Userdata are
// always truthy.
func ToBool(ctx *Context, v Value) (bool, error) {
	switch v.kind {
	case KindNull:
		return false, nil
	case KindBoolean:
		return v.Boolean(), nil
	case KindInteger:
		return v.i != 0, nil
	case KindFloat:
		return v.f != 0, nil
	case KindString:
		return ctx.String(v).Len() != 0, nil
	case KindArray:
		return ctx.Array(v).Len() != 0, nil
	case KindList:
		return ctx.List(v).Len() != 0, nil
	case KindObject:
		return ctx.Object(v).PropertyCount() != 0, nil
	default:
		return true, nil
	}
}

// ToInteger coerces a scalar Value to an integer, as string-to-number
// property access and array indexing arithmetic require.
func ToInteger(v Value) (int64, error) {
	switch v.kind {
	case KindInteger:
		return v.i, nil
	case KindFloat:
		return int64(v.f), nil
	case KindBoolean:
		return v.i, nil
	default:
		return 0, vmerr.New(vmerr.BadValueOperation, "cannot convert %s to integer", v.Kind())
	}
}
