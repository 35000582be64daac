// Package kpl is the host-facing entry point for embedding the interpreter:
// construct a State, obtain a callable Function value (typically the entry
// chunk produced by a loader outside this module's scope), and Execute it.
package kpl

import (
	"github.com/NightTerror1721/kpl/internal/chunk"
	"github.com/NightTerror1721/kpl/internal/heap"
	"github.com/NightTerror1721/kpl/internal/runtime"
	"github.com/NightTerror1721/kpl/internal/value"
)

// Re-exported so a host never has to import internal packages directly.
type (
	Value   = value.Value
	Chunk   = chunk.Chunk
	Builder = chunk.Builder
)

var (
	Null  = value.Null
	True  = value.True
	False = value.False
)

// Options configures the heap and stack capacities of a new State. A zero
// value uses every package default.
type Options struct {
	MinHeap          heap.Size
	MaxHeap          heap.Size
	CallDepth        int
	RegisterCapacity int
}

// State is one independent interpreter instance: its own heap, globals,
// call stack and register stack. Nothing here is safe for concurrent use
// by more than one goroutine (spec.md's single-threaded execution model).
type State struct {
	rt *runtime.State
	in *runtime.Interpreter
}

// NewState builds a ready-to-run interpreter instance.
func NewState(opts Options) *State {
	rt := runtime.NewState(opts.MinHeap, opts.MaxHeap, opts.CallDepth, opts.RegisterCapacity)
	return &State{rt: rt, in: runtime.NewInterpreter(rt)}
}

// ID uniquely identifies this interpreter instance, for host-side logging
// correlation across multiple concurrently-embedded States.
func (s *State) ID() string { return s.rt.ID.String() }

// HeapStats reports this State's current heap usage against its capacity,
// e.g. "24 KiB/8.0 MiB", for host-side diagnostic logging.
func (s *State) HeapStats() heap.Stats { return s.rt.Heap.Stats() }

// NewFunction wraps a chunk and its captured locals/upvalues into a
// callable Function value within this State's heap.
func (s *State) NewFunction(c *chunk.Chunk, locals Value) (Value, error) {
	return value.NewFunction(s.rt.Ctx, c, locals)
}

// NewArray, NewList and NewObject allocate the corresponding heap-resident
// value kinds within this State, for a host assembling arguments or
// globals before a call.
func (s *State) NewArray(length int) (Value, error) { return value.NewArray(s.rt.Ctx, length) }
func (s *State) NewList() (Value, error)             { return value.NewList(s.rt.Ctx) }
func (s *State) NewObject(class Value, parents []Value) (Value, error) {
	return value.NewObject(s.rt.Ctx, class, parents)
}
func (s *State) NewString(str string) (Value, error) { return value.NewString(s.rt.Ctx, str) }

// SetGlobal and Global give a host direct access to the interpreter's
// global table, e.g. to install a Userdata binding before Execute.
func (s *State) SetGlobal(name string, v Value) { s.rt.Globals.Set(name, v) }
func (s *State) Global(name string) Value        { return s.rt.Globals.Get(name) }

// Execute calls fn with the given positional arguments and returns its
// result, or the *vmerr.Error that aborted execution.
func (s *State) Execute(fn Value, args []Value) (Value, error) {
	return s.in.Execute(fn, args)
}
