// Package runtime implements the register-windowed bytecode interpreter:
// globals, call stack, register stack, and the fetch/decode/dispatch loop
// over the opcodes in internal/bytecode.
package runtime

import (
	"fmt"

	"github.com/NightTerror1721/kpl/internal/bytecode"
	"github.com/NightTerror1721/kpl/internal/chunk"
	"github.com/NightTerror1721/kpl/internal/heap"
	"github.com/NightTerror1721/kpl/internal/value"
	"github.com/NightTerror1721/kpl/internal/vmerr"
)

// Interpreter drives one State through chunk execution. It implements
// value.Invoker so operator overloads (__add__, __eq__, ...) can call back
// into KPL functions without internal/value importing internal/runtime.
type Interpreter struct {
	state     *State
	constants map[*chunk.Chunk][]value.Value
}

// NewInterpreter wires state.Ctx.Roots and state.Ctx.Invoke to this
// interpreter and returns it. The roots closure is the union spec.md §9
// names: register stack, globals, call-stack active bindings, and
// chunk-materialized constants.
func NewInterpreter(state *State) *Interpreter {
	in := &Interpreter{state: state, constants: make(map[*chunk.Chunk][]value.Value)}
	state.Ctx.Invoke = in
	state.Ctx.Roots = func(visit func(heap.Handle)) {
		state.Globals.WalkRoots(visit)
		state.Regs.WalkRoots(visit)
		state.Calls.WalkRoots(visit)
		in.walkConstantRoots(visit)
	}
	return in
}

// Execute is the host entry point: it opens a native sentinel frame (so an
// error raised at depth zero still has a frame to unwind to) and calls fn
// with the given positional arguments.
func (in *Interpreter) Execute(fn value.Value, args []value.Value) (value.Value, error) {
	if err := in.state.Calls.PushNative("<native>"); err != nil {
		return value.Null, err
	}
	defer in.state.Calls.Pop()
	return in.Call(fn, value.Null, args)
}

// Invoke satisfies value.Invoker: operator-overload dispatch in
// internal/value calls back here to run a KPL-defined special method.
func (in *Interpreter) Invoke(fn value.Value, self value.Value, args []value.Value) (value.Value, error) {
	return in.Call(fn, self, args)
}

// Call invokes fn with the given self/args. A Function runs its chunk in a
// fresh activation; an Object or Userdata is probed for __call__ and the
// call is retried against that property with fn as self, per §4.3's call
// semantics; any other kind is not callable.
func (in *Interpreter) Call(fn value.Value, self value.Value, args []value.Value) (value.Value, error) {
	switch {
	case fn.IsFunction():
		return in.callFunction(fn, self, args)
	case fn.IsObject(), fn.IsUserdata():
		callFn := getProperty(in.state.Ctx, fn, value.PropCall)
		if callFn.IsNull() {
			return value.Null, vmerr.New(vmerr.BadProperty, "value of kind %s has no __call__", fn.Kind())
		}
		return in.Call(callFn, fn, args)
	default:
		return value.Null, vmerr.New(vmerr.BadValueOperation, "value of kind %s is not callable", fn.Kind())
	}
}

func (in *Interpreter) callFunction(fn value.Value, self value.Value, args []value.Value) (value.Value, error) {
	funcObj := in.state.Ctx.Function(fn)
	c := funcObj.Chunk()
	name := fmt.Sprintf("chunk@%p", c)

	if err := in.state.Calls.Push(name, fn, self); err != nil {
		return value.Null, err
	}
	if err := in.state.Regs.Open(int(c.RegisterCount()), self, args); err != nil {
		in.state.Calls.Pop()
		return value.Null, err
	}

	result, err := in.run(c, funcObj, name)

	in.state.Regs.Close()
	in.state.Calls.Pop()
	return result, err
}

func (in *Interpreter) materializeConstants(c *chunk.Chunk) ([]value.Value, error) {
	if vs, ok := in.constants[c]; ok {
		return vs, nil
	}
	vs := make([]value.Value, c.ConstantCount())
	for i := 0; i < c.ConstantCount(); i++ {
		k := c.Constant(i)
		var v value.Value
		var err error
		switch k.Kind {
		case chunk.ConstNull:
			v = value.Null
		case chunk.ConstInteger:
			v = value.Int(k.Integer)
		case chunk.ConstFloat:
			v = value.Float(k.Float)
		case chunk.ConstBoolean:
			v = value.Bool(k.Boolean)
		case chunk.ConstString:
			v, err = value.NewString(in.state.Ctx, string(k.String))
		default:
			err = vmerr.New(vmerr.BadValueOperation, "unknown constant kind %d", k.Kind)
		}
		if err != nil {
			return nil, err
		}
		vs[i] = v
	}
	in.constants[c] = vs
	return vs, nil
}

func (in *Interpreter) walkConstantRoots(visit func(heap.Handle)) {
	for _, vs := range in.constants {
		for _, v := range vs {
			value.WalkRefs(v, visit)
		}
	}
}

// getProperty reads a named property from an Object or Userdata, returning
// Null for any other kind or an absent name.
func getProperty(ctx *value.Context, recv value.Value, name string) value.Value {
	switch {
	case recv.IsObject():
		return ctx.Object(recv).GetProperty(name)
	case recv.IsUserdata():
		return ctx.Userdata(recv).Meta().GetProperty(name)
	default:
		return value.Null
	}
}

// setProperty writes a named property on an Object or Userdata; it is a
// no-op for any other kind.
func setProperty(ctx *value.Context, recv value.Value, name string, v value.Value) {
	switch {
	case recv.IsObject():
		ctx.Object(recv).SetProperty(name, v)
	case recv.IsUserdata():
		ctx.Userdata(recv).Meta().SetProperty(name, v)
	}
}

// run executes chunk c's code starting at pc 0 against the register window
// already opened for fn's activation, returning the value of its RETURN
// instruction (or Null if the chunk falls off the end of its code without
// one). Nested KPL calls recurse through Call, so the host Go call stack
// mirrors the KPL call stack one-for-one.
func (in *Interpreter) run(c *chunk.Chunk, fn *value.FunctionObj, frameName string) (value.Value, error) {
	consts, err := in.materializeConstants(c)
	if err != nil {
		return value.Null, err
	}
	ctx := in.state.Ctx
	regs := in.state.Regs

	rk := func(x uint8, kx bool) value.Value {
		if kx {
			return consts[x]
		}
		return regs.Get(x)
	}
	rkName := func(x uint8, kx bool) string {
		return ctx.String(rk(x, kx)).String()
	}

	fail := func(pc int, err error) (value.Value, error) {
		if ve, ok := err.(*vmerr.Error); ok {
			err = ve.WithFrame(frameName, pc)
		}
		return value.Null, err
	}

	pc := 0
	for pc < c.InstructionCount() {
		inst := c.Instruction(pc)
		cur := pc
		pc++
		in.state.Calls.SetPC(cur)

		switch inst.OpCode() {
		case bytecode.NOP:
			// nothing

		case bytecode.MOVE:
			regs.Set(inst.A(), regs.Get(inst.B()))

		case bytecode.LOAD_K:
			regs.Set(inst.A(), consts[inst.Bx()])

		case bytecode.LOAD_BOOL:
			regs.Set(inst.A(), value.Bool(inst.B() != 0))
			if inst.C() != 0 {
				pc++
			}

		case bytecode.LOAD_NULL:
			for i := inst.A(); i <= inst.B(); i++ {
				regs.Set(i, value.Null)
			}

		case bytecode.LOAD_INT:
			regs.Set(inst.A(), value.Int(int64(inst.SBx())))

		case bytecode.GET_GLOBAL:
			name := rkName(inst.B(), inst.KB())
			regs.Set(inst.A(), in.state.Globals.Get(name))

		case bytecode.SET_GLOBAL:
			name := rkName(inst.B(), inst.KB())
			in.state.Globals.Set(name, rk(inst.C(), inst.KC()))

		case bytecode.GET_LOCAL:
			name := rkName(inst.B(), inst.KB())
			regs.Set(inst.A(), getProperty(ctx, fn.Locals(), name))

		case bytecode.SET_LOCAL:
			name := rkName(inst.B(), inst.KB())
			setProperty(ctx, fn.Locals(), name, rk(inst.C(), inst.KC()))

		case bytecode.GET_PROP:
			recv := rk(inst.B(), inst.KB())
			name := rkName(inst.C(), inst.KC())
			regs.Set(inst.A(), getProperty(ctx, recv, name))

		case bytecode.SET_PROP:
			recv := regs.Get(inst.A())
			name := rkName(inst.B(), inst.KB())
			setProperty(ctx, recv, name, rk(inst.C(), inst.KC()))

		case bytecode.NEW_ARRAY:
			length, err := value.ToInteger(rk(inst.B(), inst.KB()))
			if err != nil {
				return fail(cur, err)
			}
			v, err := value.NewArray(ctx, int(length))
			if err != nil {
				return fail(cur, err)
			}
			regs.Set(inst.A(), v)

		case bytecode.NEW_LIST:
			v, err := value.NewList(ctx)
			if err != nil {
				return fail(cur, err)
			}
			regs.Set(inst.A(), v)

		case bytecode.NEW_OBJECT:
			class := value.Null
			if inst.C() != 0 {
				class = rk(inst.B(), inst.KB())
			}
			v, err := value.NewObject(ctx, class, nil)
			if err != nil {
				return fail(cur, err)
			}
			regs.Set(inst.A(), v)

		case bytecode.SET_AL:
			container := regs.Get(inst.A())
			switch {
			case container.IsArray():
				arr := ctx.Array(container)
				idx := 0
				for r := inst.B(); r <= inst.C(); r++ {
					arr.Set(idx, regs.Get(r))
					idx++
				}
			case container.IsList():
				lst := ctx.List(container)
				for r := inst.B(); r <= inst.C(); r++ {
					lst.PushBack(regs.Get(r))
				}
			default:
				return fail(cur, vmerr.New(vmerr.BadValueOperation, "SET_AL target is not an array or list (kind %s)", container.Kind()))
			}

		case bytecode.SELF:
			regs.Set(inst.A(), regs.Self())

		case bytecode.ADD, bytecode.SUB, bytecode.MUL, bytecode.DIV, bytecode.IDIV, bytecode.MOD,
			bytecode.SHL, bytecode.SHR, bytecode.BAND, bytecode.BOR, bytecode.XOR, bytecode.IN:
			left := rk(inst.B(), inst.KB())
			right := rk(inst.C(), inst.KC())
			result, err := dispatchBinary(ctx, inst.OpCode(), left, right)
			if err != nil {
				return fail(cur, err)
			}
			regs.Set(inst.A(), result)

		case bytecode.EQ, bytecode.NE, bytecode.GR, bytecode.LS, bytecode.GE, bytecode.LE:
			left := rk(inst.B(), inst.KB())
			right := rk(inst.C(), inst.KC())
			result, err := dispatchBinary(ctx, inst.OpCode(), left, right)
			if err != nil {
				return fail(cur, err)
			}
			truthy, err := value.ToBool(ctx, result)
			if err != nil {
				return fail(cur, err)
			}
			if truthy {
				pc++
			}

		case bytecode.INSTANCEOF:
			v := rk(inst.B(), inst.KB())
			cls := rk(inst.C(), inst.KC())
			result, err := value.InstanceOf(ctx, v, cls)
			if err != nil {
				return fail(cur, err)
			}
			regs.Set(inst.A(), result)

		case bytecode.BNOT, bytecode.NOT, bytecode.NEG, bytecode.LEN:
			v := rk(inst.B(), inst.KB())
			result, err := dispatchUnary(ctx, inst.OpCode(), v)
			if err != nil {
				return fail(cur, err)
			}
			regs.Set(inst.A(), result)

		case bytecode.GET:
			container := rk(inst.B(), inst.KB())
			index := rk(inst.C(), inst.KC())
			result, err := value.GetIndex(ctx, container, index)
			if err != nil {
				return fail(cur, err)
			}
			regs.Set(inst.A(), result)

		case bytecode.SET:
			container := regs.Get(inst.A())
			index := rk(inst.B(), inst.KB())
			rhs := rk(inst.C(), inst.KC())
			if err := value.SetIndex(ctx, container, index, rhs); err != nil {
				return fail(cur, err)
			}

		case bytecode.JP:
			pc = int(inst.Ax())

		case bytecode.TEST:
			cond, err := value.ToBool(ctx, rk(inst.B(), inst.KB()))
			if err != nil {
				return fail(cur, err)
			}
			if cond == (inst.C() != 0) {
				pc++
			}

		case bytecode.TEST_SET:
			operand := rk(inst.B(), inst.KB())
			cond, err := value.ToBool(ctx, operand)
			if err != nil {
				return fail(cur, err)
			}
			if cond == (inst.C() != 0) {
				pc++
			} else {
				regs.Set(inst.A(), operand)
			}

		case bytecode.CALL:
			fnVal := regs.Get(inst.A())
			n := int(inst.B())
			args := make([]value.Value, n)
			for i := 0; i < n; i++ {
				args[i] = regs.Get(inst.A() + 1 + uint8(i))
			}
			result, err := in.Call(fnVal, value.Null, args)
			if err != nil {
				return fail(cur, err)
			}
			regs.Set(inst.A(), result)

		case bytecode.INVOKE:
			recv := regs.Get(inst.A())
			name := rkName(inst.B(), inst.KB())
			n := int(inst.C())
			args := make([]value.Value, n)
			for i := 0; i < n; i++ {
				args[i] = regs.Get(inst.A() + 1 + uint8(i))
			}
			method := getProperty(ctx, recv, name)
			result, err := in.Call(method, recv, args)
			if err != nil {
				return fail(cur, err)
			}
			regs.Set(inst.A(), result)

		case bytecode.RETURN:
			if inst.A() != 0 {
				return rk(inst.B(), inst.KB()), nil
			}
			return value.Null, nil

		default:
			return fail(cur, vmerr.New(vmerr.BadValueOperation, "unimplemented opcode %s", inst.OpCode()))
		}
	}
	return value.Null, nil
}
