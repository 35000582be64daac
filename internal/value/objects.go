package value

import (
	"container/list"

	"github.com/NightTerror1721/kpl/internal/chunk"
	"github.com/NightTerror1721/kpl/internal/heap"
	"github.com/NightTerror1721/kpl/internal/vmerr"
)

// Context bundles everything object construction and operator dispatch
// need from the owning interpreter: the heap objects are allocated in, the
// root enumerator that lets an allocation trigger a mark-and-compact pass
// instead of growing unnecessarily, and the callback used to invoke a KPL
// function value (special-property operator overloads, and a Userdata's
// __call__ property). A Userdata has no invoke hook of its own.
type Context struct {
	Heap   *heap.Heap
	Roots  func(visit func(heap.Handle))
	Invoke Invoker
}

// Invoker calls a Value as a function with an explicit self and argument
// list. internal/runtime implements this; internal/value cannot depend on
// it without an import cycle (runtime already depends on value).
type Invoker interface {
	Invoke(fn Value, self Value, args []Value) (Value, error)
}

func (c *Context) alloc(obj heap.Object) (heap.Handle, error) {
	handle, err := c.Heap.Alloc(obj, c.Roots)
	if err != nil {
		return heap.NoHandle, vmerr.Wrap(vmerr.OutOfMemory, err, "out of memory")
	}
	return handle, nil
}

// releaseElements decrements the refcount of every heap-kind Value in vs,
// used by composite object Destroy methods to cascade destruction.
func releaseElements(h *heap.Heap, vs []Value) {
	for _, v := range vs {
		Release(h, v)
	}
}

func walkElements(vs []Value, visit func(heap.Handle)) {
	for _, v := range vs {
		WalkRefs(v, visit)
	}
}

// --- String ---------------------------------------------------------------

// StringObj is an owned, immutable byte buffer with a lazily computed hash.
type StringObj struct {
	bytes      []byte
	hash       uint64
	hashCached bool
}

func (s *StringObj) Size() heap.Size   { return heap.Size(len(s.bytes)) + 16 }
func (s *StringObj) Destroy()          { s.bytes = nil }
func (s *StringObj) WalkRefs(func(heap.Handle)) {}

func (s *StringObj) String() string { return string(s.bytes) }
func (s *StringObj) Bytes() []byte  { return s.bytes }
func (s *StringObj) Len() int       { return len(s.bytes) }

// Hash computes (and caches) the FNV-1a hash of the string's bytes.
func (s *StringObj) Hash() uint64 {
	if s.hashCached {
		return s.hash
	}
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for _, b := range s.bytes {
		h ^= uint64(b)
		h *= prime64
	}
	s.hash = h
	s.hashCached = true
	return h
}

// NewString allocates a String Value from s, returning a fresh, owning
// reference (refcount 1).
func NewString(ctx *Context, s string) (Value, error) {
	obj := &StringObj{bytes: []byte(s)}
	handle, err := ctx.alloc(obj)
	if err != nil {
		return Null, err
	}
	ctx.Heap.IncRef(handle)
	return fromHandle(KindString, handle), nil
}

func (ctx *Context) String(v Value) *StringObj {
	obj, _ := ctx.Heap.Get(v.handle)
	return obj.(*StringObj)
}

// --- Array ------------------------------------------------------------------

// ArrayObj is a fixed-length slot vector (NEW_ARRAY's target type).
type ArrayObj struct {
	heap     *heap.Heap
	elements []Value
}

func (a *ArrayObj) Size() heap.Size { return heap.Size(len(a.elements))*24 + 16 }
func (a *ArrayObj) Destroy() {
	releaseElements(a.heap, a.elements)
	a.elements = nil
}
func (a *ArrayObj) WalkRefs(visit func(heap.Handle)) { walkElements(a.elements, visit) }

func (a *ArrayObj) Len() int            { return len(a.elements) }
func (a *ArrayObj) Get(i int) Value     { return a.elements[i] }
func (a *ArrayObj) Elements() []Value   { return a.elements }

// Set overwrites slot i, releasing the previous occupant and retaining v.
func (a *ArrayObj) Set(i int, v Value) {
	Release(a.heap, a.elements[i])
	Retain(a.heap, v)
	a.elements[i] = v
}

// NewArray allocates a fixed-length array of length initialized to Null.
func NewArray(ctx *Context, length int) (Value, error) {
	elems := make([]Value, length)
	obj := &ArrayObj{heap: ctx.Heap, elements: elems}
	handle, err := ctx.alloc(obj)
	if err != nil {
		return Null, err
	}
	ctx.Heap.IncRef(handle)
	return fromHandle(KindArray, handle), nil
}

// NewArrayFrom allocates an array that takes ownership of elems (retaining
// each element once on the array's behalf). The caller must not reuse elems.
func NewArrayFrom(ctx *Context, elems []Value) (Value, error) {
	for _, v := range elems {
		Retain(ctx.Heap, v)
	}
	obj := &ArrayObj{heap: ctx.Heap, elements: elems}
	handle, err := ctx.alloc(obj)
	if err != nil {
		releaseElements(ctx.Heap, elems)
		return Null, err
	}
	ctx.Heap.IncRef(handle)
	return fromHandle(KindArray, handle), nil
}

func (ctx *Context) Array(v Value) *ArrayObj {
	obj, _ := ctx.Heap.Get(v.handle)
	return obj.(*ArrayObj)
}

// --- List ---------------------------------------------------------------

// ListObj is an O(1)-both-ends doubly linked list (NEW_LIST's target type).
type ListObj struct {
	heap *heap.Heap
	l    *list.List
}

func (lo *ListObj) Size() heap.Size { return heap.Size(lo.l.Len())*32 + 24 }
func (lo *ListObj) Destroy() {
	for e := lo.l.Front(); e != nil; e = e.Next() {
		Release(lo.heap, e.Value.(Value))
	}
	lo.l.Init()
}
func (lo *ListObj) WalkRefs(visit func(heap.Handle)) {
	for e := lo.l.Front(); e != nil; e = e.Next() {
		WalkRefs(e.Value.(Value), visit)
	}
}

func (lo *ListObj) Len() int { return lo.l.Len() }

func (lo *ListObj) PushBack(v Value) {
	Retain(lo.heap, v)
	lo.l.PushBack(v)
}

func (lo *ListObj) PushFront(v Value) {
	Retain(lo.heap, v)
	lo.l.PushFront(v)
}

func (lo *ListObj) PopBack() (Value, bool) {
	e := lo.l.Back()
	if e == nil {
		return Null, false
	}
	lo.l.Remove(e)
	return e.Value.(Value), true
}

func (lo *ListObj) PopFront() (Value, bool) {
	e := lo.l.Front()
	if e == nil {
		return Null, false
	}
	lo.l.Remove(e)
	return e.Value.(Value), true
}

// At returns the i-th element (0-based, front to back).
func (lo *ListObj) At(i int) (Value, bool) {
	if i < 0 || i >= lo.l.Len() {
		return Null, false
	}
	e := lo.l.Front()
	for ; i > 0; i-- {
		e = e.Next()
	}
	return e.Value.(Value), true
}

// Elements returns a snapshot slice, front to back.
func (lo *ListObj) Elements() []Value {
	out := make([]Value, 0, lo.l.Len())
	for e := lo.l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(Value))
	}
	return out
}

func NewList(ctx *Context) (Value, error) {
	obj := &ListObj{heap: ctx.Heap, l: list.New()}
	handle, err := ctx.alloc(obj)
	if err != nil {
		return Null, err
	}
	ctx.Heap.IncRef(handle)
	return fromHandle(KindList, handle), nil
}

func (ctx *Context) List(v Value) *ListObj {
	obj, _ := ctx.Heap.Get(v.handle)
	return obj.(*ListObj)
}

// --- Object ---------------------------------------------------------------

// ObjectObj is a property map with an optional class and parent chain used
// for `instanceof` and property-lookup fallback (operator overloads live
// here as ordinary properties named e.g. "__add__").
type ObjectObj struct {
	heap       *heap.Heap
	class      Value
	parents    []Value
	properties map[string]Value
}

func (o *ObjectObj) Size() heap.Size {
	return heap.Size(len(o.properties))*40 + heap.Size(len(o.parents))*16 + 32
}

func (o *ObjectObj) Destroy() {
	Release(o.heap, o.class)
	releaseElements(o.heap, o.parents)
	for _, v := range o.properties {
		Release(o.heap, v)
	}
	o.properties = nil
	o.parents = nil
}

func (o *ObjectObj) WalkRefs(visit func(heap.Handle)) {
	WalkRefs(o.class, visit)
	walkElements(o.parents, visit)
	for _, v := range o.properties {
		WalkRefs(v, visit)
	}
}

func (o *ObjectObj) Class() Value { return o.class }

func (o *ObjectObj) ParentCount() int   { return len(o.parents) }
func (o *ObjectObj) Parent(i int) Value { return o.parents[i] }

func (o *ObjectObj) PropertyCount() int { return len(o.properties) }

// GetProperty returns the named property. An instance slot hit returns
// directly; on a miss, a set class delegates to the class's own property
// lookup, otherwise each parent is consulted in order and the first
// non-null hit wins. Null means absent everywhere in the chain.
func (o *ObjectObj) GetProperty(name string) Value {
	if v, ok := o.properties[name]; ok {
		return v
	}
	if o.class.kind == KindObject {
		return o.objectAt(o.class).GetProperty(name)
	}
	for _, p := range o.parents {
		if p.kind != KindObject {
			continue
		}
		if v := o.objectAt(p).GetProperty(name); !v.IsNull() {
			return v
		}
	}
	return Null
}

func (o *ObjectObj) objectAt(v Value) *ObjectObj {
	obj, _ := o.heap.Get(v.handle)
	return obj.(*ObjectObj)
}

func (o *ObjectObj) SetProperty(name string, v Value) {
	Retain(o.heap, v)
	if old, ok := o.properties[name]; ok {
		Release(o.heap, old)
	}
	o.properties[name] = v
}

func (o *ObjectObj) DelProperty(name string) {
	if old, ok := o.properties[name]; ok {
		Release(o.heap, old)
		delete(o.properties, name)
	}
}

// NewObject allocates an empty object, optionally with a class/parent list.
// NEW_OBJECT passes only a class; parents come from host/loader callers.
func NewObject(ctx *Context, class Value, parents []Value) (Value, error) {
	Retain(ctx.Heap, class)
	for _, p := range parents {
		Retain(ctx.Heap, p)
	}
	obj := &ObjectObj{
		heap:       ctx.Heap,
		class:      class,
		parents:    append([]Value(nil), parents...),
		properties: make(map[string]Value),
	}
	handle, err := ctx.alloc(obj)
	if err != nil {
		Release(ctx.Heap, class)
		releaseElements(ctx.Heap, parents)
		return Null, err
	}
	ctx.Heap.IncRef(handle)
	return fromHandle(KindObject, handle), nil
}

func (ctx *Context) Object(v Value) *ObjectObj {
	obj, _ := ctx.Heap.Get(v.handle)
	return obj.(*ObjectObj)
}

// --- Function ---------------------------------------------------------------

// FunctionObj pairs an immutable chunk with the locals object captured at
// closure-creation time; GET_LOCAL/SET_LOCAL delegate property get/set to
// this object for upvalue-like bindings.
type FunctionObj struct {
	heap   *heap.Heap
	chunk  *chunk.Chunk
	locals Value
}

func (f *FunctionObj) Size() heap.Size { return 48 }
func (f *FunctionObj) Destroy()        { Release(f.heap, f.locals) }
func (f *FunctionObj) WalkRefs(visit func(heap.Handle)) { WalkRefs(f.locals, visit) }

func (f *FunctionObj) Chunk() *chunk.Chunk { return f.chunk }
func (f *FunctionObj) Locals() Value       { return f.locals }

func NewFunction(ctx *Context, c *chunk.Chunk, locals Value) (Value, error) {
	Retain(ctx.Heap, locals)
	obj := &FunctionObj{heap: ctx.Heap, chunk: c, locals: locals}
	handle, err := ctx.alloc(obj)
	if err != nil {
		Release(ctx.Heap, locals)
		return Null, err
	}
	ctx.Heap.IncRef(handle)
	return fromHandle(KindFunction, handle), nil
}

func (ctx *Context) Function(v Value) *FunctionObj {
	obj, _ := ctx.Heap.Get(v.handle)
	return obj.(*FunctionObj)
}

// --- Userdata ---------------------------------------------------------------

// UserdataMeta is the host-supplied property surface for an embedded Go
// value exposed to KPL code (internal/hostext's sqlite counter and
// websocket echo client both implement it). It has get/set/del only; there
// is no invoke method, and calling a Userdata goes through its __call__
// property.
type UserdataMeta interface {
	GetProperty(name string) Value
	SetProperty(name string, v Value)
	DelProperty(name string)
}

// UserdataObj wraps a host Meta implementation. Unlike the other heap
// kinds it is not refcounted by Value copy/destroy (see Kind.isHeapKind);
// it is reclaimed only when the garbage collector finds it unreachable
// from any root.
type UserdataObj struct {
	meta UserdataMeta
}

func (u *UserdataObj) Size() heap.Size { return 32 }
func (u *UserdataObj) Destroy() {
	if closer, ok := u.meta.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}
func (u *UserdataObj) WalkRefs(func(heap.Handle)) {}

func (u *UserdataObj) Meta() UserdataMeta { return u.meta }

func NewUserdata(ctx *Context, meta UserdataMeta) (Value, error) {
	obj := &UserdataObj{meta: meta}
	handle, err := ctx.alloc(obj)
	if err != nil {
		return Null, err
	}
	return fromHandle(KindUserdata, handle), nil
}

func (ctx *Context) Userdata(v Value) *UserdataObj {
	obj, _ := ctx.Heap.Get(v.handle)
	return obj.(*UserdataObj)
}
