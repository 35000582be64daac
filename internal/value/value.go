// Package value implements the tagged runtime value every register and
// global slot holds: the small scalar kinds (null, integer, float, boolean)
// stored inline, and the heap-resident kinds (string, array, list, object,
// function, userdata) stored as a heap.Handle. Null and the two Boolean
// values are header-less singletons; every other non-scalar kind is backed
// by an object allocated through a Context's heap.
package value

import "github.com/NightTerror1721/kpl/internal/heap"

// Kind discriminates the ten data types a Value may hold.
type Kind uint8

const (
	KindNull Kind = iota
	KindInteger
	KindFloat
	KindBoolean
	KindString
	KindArray
	KindList
	KindObject
	KindFunction
	KindUserdata
)

var kindNames = [...]string{
	KindNull:     "null",
	KindInteger:  "integer",
	KindFloat:    "float",
	KindBoolean:  "boolean",
	KindString:   "string",
	KindArray:    "array",
	KindList:     "list",
	KindObject:   "object",
	KindFunction: "function",
	KindUserdata: "userdata",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "null"
}

// isHeapKind reports whether a Value of this kind owns a heap.Handle that
// participates in reference counting. Userdata is heap-resident but, as in
// the source this is ported from, is not refcounted by Value copy/destroy:
// it survives only as long as something reachable from a GC root still
// points at it.
func (k Kind) isHeapKind() bool {
	switch k {
	case KindString, KindArray, KindList, KindObject, KindFunction:
		return true
	default:
		return false
	}
}

// Value is a small, copyable tagged union. Copying a Value that holds a
// refcounted heap kind does NOT itself adjust the refcount: callers that
// durably store a copy (a register, a global, a field) must call Retain,
// and callers that overwrite or discard a durably-stored copy must call
// Release. This mirrors the original's copy-constructor/destructor pair
// without needing either in a language that has neither.
type Value struct {
	kind   Kind
	i      int64
	f      float64
	handle heap.Handle
}

// Null is the singleton null value.
var Null = Value{kind: KindNull}

// True and False are the singleton boolean values.
var (
	True  = Value{kind: KindBoolean, i: 1}
	False = Value{kind: KindBoolean, i: 0}
)

// One, Zero and MinusOne mirror the convenience integer literals the
// original runtime keeps alongside its null/boolean singletons.
var (
	One      = Int(1)
	Zero     = Int(0)
	MinusOne = Int(-1)
)

func Int(v int64) Value   { return Value{kind: KindInteger, i: v} }
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

func fromHandle(kind Kind, h heap.Handle) Value {
	return Value{kind: kind, handle: h}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool     { return v.kind == KindNull }
func (v Value) IsInteger() bool  { return v.kind == KindInteger }
func (v Value) IsFloat() bool    { return v.kind == KindFloat }
func (v Value) IsBoolean() bool  { return v.kind == KindBoolean }
func (v Value) IsString() bool   { return v.kind == KindString }
func (v Value) IsArray() bool    { return v.kind == KindArray }
func (v Value) IsList() bool     { return v.kind == KindList }
func (v Value) IsObject() bool   { return v.kind == KindObject }
func (v Value) IsFunction() bool { return v.kind == KindFunction }
func (v Value) IsUserdata() bool { return v.kind == KindUserdata }

// Integer returns the raw integer payload. The caller must already know v
// holds KindInteger (or KindBoolean, which shares the field).
func (v Value) Integer() int64 { return v.i }

// Float returns the raw float payload.
func (v Value) Float() float64 { return v.f }

// Boolean returns the raw boolean payload.
func (v Value) Boolean() bool { return v.i != 0 }

// Handle returns the heap handle backing a heap-resident Value, or
// heap.NoHandle for a scalar kind.
func (v Value) Handle() heap.Handle {
	if !v.kind.isHeapKind() && v.kind != KindUserdata {
		return heap.NoHandle
	}
	return v.handle
}

// Retain increments the refcount of a heap-backed Value being durably
// stored a second time (e.g. copied into a register or a field). It is a
// no-op for scalar kinds and for Userdata.
func Retain(h *heap.Heap, v Value) {
	if v.kind.isHeapKind() {
		h.IncRef(v.handle)
	}
}

// Release decrements the refcount of a heap-backed Value whose storage
// location is being overwritten or torn down. It is a no-op for scalar
// kinds and for Userdata.
func Release(h *heap.Heap, v Value) {
	if v.kind.isHeapKind() {
		h.DecRef(v.handle)
	}
}

// WalkRefs reports the handle v itself refers to, if any, to a visitor.
// This is the leaf case GC roots use directly on register/global slots;
// composite heap objects implement heap.Object.WalkRefs the same way over
// the Values they own.
func WalkRefs(v Value, visit func(heap.Handle)) {
	if v.kind.isHeapKind() || v.kind == KindUserdata {
		if v.handle != heap.NoHandle {
			visit(v.handle)
		}
	}
}

// Equal is raw identity/bit equality, used for identity checks such as
// INSTANCEOF's class match. It is not the KPL `==` operator; see Eq in ops.go
// for that (which the Object/Userdata kinds can override).
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindInteger, KindBoolean:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindNull:
		return true
	default:
		return v.handle == other.handle
	}
}
