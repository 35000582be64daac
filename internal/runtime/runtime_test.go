package runtime

import (
	"testing"

	"github.com/NightTerror1721/kpl/internal/bytecode"
	"github.com/NightTerror1721/kpl/internal/chunk"
	"github.com/NightTerror1721/kpl/internal/value"
)

func newTestInterpreter() (*Interpreter, *State) {
	st := NewState(0, 0, 0, 0)
	return NewInterpreter(st), st
}

// makeFunction wraps a chunk into a callable Function value with empty
// locals, the way a loader would after materializing a compiled unit.
func makeFunction(t *testing.T, st *State, c *chunk.Chunk) value.Value {
	t.Helper()
	locals, err := value.NewObject(st.Ctx, value.Null, nil)
	if err != nil {
		t.Fatalf("NewObject(locals): %v", err)
	}
	fn, err := value.NewFunction(st.Ctx, c, locals)
	if err != nil {
		t.Fatalf("NewFunction: %v", err)
	}
	return fn
}

func TestArithmeticAndReturn(t *testing.T) {
	in, st := newTestInterpreter()

	// R1 = 2; R2 = 3; R0 = R1 + R2; return R0
	b := chunk.NewBuilder().Registers(3)
	b.Emit(bytecode.NewAsBx(bytecode.LOAD_INT, 1, 2))
	b.Emit(bytecode.NewAsBx(bytecode.LOAD_INT, 2, 3))
	b.Emit(bytecode.NewABC(bytecode.ADD, 0, 1, false, 2, false))
	b.Emit(bytecode.NewABC(bytecode.RETURN, 1, 0, false, 0, false))
	c := b.Build()

	fn := makeFunction(t, st, c)
	result, err := in.Execute(fn, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsInteger() || result.Integer() != 5 {
		t.Fatalf("result = %v, want Integer(5)", result)
	}
}

func TestReturnWithoutFlagYieldsNull(t *testing.T) {
	in, st := newTestInterpreter()

	b := chunk.NewBuilder().Registers(1)
	b.Emit(bytecode.NewABC(bytecode.RETURN, 0, 0, false, 0, false))
	c := b.Build()

	fn := makeFunction(t, st, c)
	result, err := in.Execute(fn, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsNull() {
		t.Fatalf("result = %v, want Null", result)
	}
}

func TestGlobalsRoundTrip(t *testing.T) {
	in, st := newTestInterpreter()

	// SET_GLOBAL KB KC has no A: globals[RKB.to_string()] <- RKC.
	b := chunk.NewBuilder().Registers(2)
	nameIdx := b.AddConstant(chunk.StringConstant("answer"))
	b.Emit(bytecode.NewAsBx(bytecode.LOAD_INT, 1, 42))
	b.Emit(bytecode.NewABC(bytecode.SET_GLOBAL, 0, uint8(nameIdx), true, 1, false))
	b.Emit(bytecode.NewABC(bytecode.GET_GLOBAL, 0, uint8(nameIdx), true, 0, false))
	b.Emit(bytecode.NewABC(bytecode.RETURN, 1, 0, false, 0, false))
	c := b.Build()

	fn := makeFunction(t, st, c)
	result, err := in.Execute(fn, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Integer() != 42 {
		t.Fatalf("result = %v, want 42", result)
	}
	if got := st.Globals.Get("answer"); got.Integer() != 42 {
		t.Fatalf("Globals[answer] = %v, want 42", got)
	}
}

func TestCallBetweenFunctions(t *testing.T) {
	in, st := newTestInterpreter()

	// callee(self, x): return x + 1, where x is register 1 of the callee's
	// own window (slot 0 is self).
	calleeBuilder := chunk.NewBuilder().Registers(2)
	calleeBuilder.Emit(bytecode.NewAsBx(bytecode.LOAD_INT, 0, 1))
	calleeBuilder.Emit(bytecode.NewABC(bytecode.ADD, 0, 1, false, 0, false))
	calleeBuilder.Emit(bytecode.NewABC(bytecode.RETURN, 1, 0, false, 0, false))
	callee := calleeBuilder.Build()
	calleeFn := makeFunction(t, st, callee)

	result, err := in.Call(calleeFn, value.Null, []value.Value{value.Int(41)})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Integer() != 42 {
		t.Fatalf("Call result = %v, want 42", result)
	}
}

func TestCallOpcodeInvokesThroughAGlobal(t *testing.T) {
	in, st := newTestInterpreter()

	// identity(self, x): return x
	identityBuilder := chunk.NewBuilder().Registers(2)
	identityBuilder.Emit(bytecode.NewABC(bytecode.RETURN, 1, 1, false, 0, false))
	identity := identityBuilder.Build()
	identityFn := makeFunction(t, st, identity)
	st.Globals.Set("identity", identityFn)

	// caller(self): R1 = identity; R2 = 7; CALL R1,1 -> R1; return R1
	b := chunk.NewBuilder().Registers(3)
	nameIdx := b.AddConstant(chunk.StringConstant("identity"))
	b.Emit(bytecode.NewABC(bytecode.GET_GLOBAL, 1, uint8(nameIdx), true, 0, false))
	b.Emit(bytecode.NewAsBx(bytecode.LOAD_INT, 2, 7))
	b.Emit(bytecode.NewABC(bytecode.CALL, 1, 1, false, 0, false))
	b.Emit(bytecode.NewABC(bytecode.RETURN, 1, 1, false, 0, false))
	c := b.Build()

	fn := makeFunction(t, st, c)
	result, err := in.Execute(fn, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Integer() != 7 {
		t.Fatalf("result = %v, want 7", result)
	}
}

func TestStackOverflowOnUnboundedRecursion(t *testing.T) {
	st := NewState(0, 0, 8, 0)
	in := NewInterpreter(st)

	// self-recursive(self): CALL self,0 -> R1; return nothing (never
	// reached, since the recursive call never terminates on its own).
	b := chunk.NewBuilder().Registers(2)
	nameIdx := b.AddConstant(chunk.StringConstant("self"))
	b.Emit(bytecode.NewABC(bytecode.GET_GLOBAL, 1, uint8(nameIdx), true, 0, false))
	b.Emit(bytecode.NewABC(bytecode.CALL, 1, 0, false, 0, false))
	b.Emit(bytecode.NewABC(bytecode.RETURN, 0, 0, false, 0, false))
	c := b.Build()

	fn := makeFunction(t, st, c)
	st.Globals.Set("self", fn)

	_, err := in.Execute(fn, nil)
	if err == nil {
		t.Fatal("expected a StackOverflow error from unbounded recursion")
	}
}

// TestBooleanTruthinessBranch is spec.md's concrete scenario 2: a TEST +
// absolute JP pair selecting between two string constants based on a
// loaded boolean.
func TestBooleanTruthinessBranch(t *testing.T) {
	in, st := newTestInterpreter()

	b := chunk.NewBuilder().Registers(2)
	yes := b.AddConstant(chunk.StringConstant("yes"))
	no := b.AddConstant(chunk.StringConstant("no"))
	b.Emit(bytecode.NewABC(bytecode.LOAD_BOOL, 0, 0, false, 0, false)) // 0: R0 = false
	b.Emit(bytecode.NewABC(bytecode.TEST, 0, 0, false, 1, false))      // 1: test R0 (reg) == true? skip next
	b.Emit(bytecode.NewAx(bytecode.JP, 5))                             // 2: jp 5
	b.Emit(bytecode.NewABx(bytecode.LOAD_K, 1, uint32(yes)))           // 3: R1 = "yes"
	b.Emit(bytecode.NewAx(bytecode.JP, 6))                             // 4: jp 6
	b.Emit(bytecode.NewABx(bytecode.LOAD_K, 1, uint32(no)))            // 5: R1 = "no"
	b.Emit(bytecode.NewABC(bytecode.RETURN, 1, 1, false, 0, false))    // 6: return R1
	c := b.Build()

	fn := makeFunction(t, st, c)
	result, err := in.Execute(fn, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsString() || st.Ctx.String(result).String() != "no" {
		t.Fatalf("result = %v, want String(no)", result)
	}
}

// TestListAppendAndLength is spec.md's concrete scenario 3.
func TestListAppendAndLength(t *testing.T) {
	in, st := newTestInterpreter()

	b := chunk.NewBuilder().Registers(5)
	b.Emit(bytecode.NewABC(bytecode.NEW_LIST, 0, 0, false, 0, false))
	b.Emit(bytecode.NewAsBx(bytecode.LOAD_INT, 1, 10))
	b.Emit(bytecode.NewAsBx(bytecode.LOAD_INT, 2, 20))
	b.Emit(bytecode.NewAsBx(bytecode.LOAD_INT, 3, 30))
	b.Emit(bytecode.NewABC(bytecode.SET_AL, 0, 1, false, 3, false))
	b.Emit(bytecode.NewABC(bytecode.LEN, 4, 0, false, 0, false))
	b.Emit(bytecode.NewABC(bytecode.RETURN, 1, 4, false, 0, false))
	c := b.Build()

	fn := makeFunction(t, st, c)
	result, err := in.Execute(fn, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Integer() != 3 {
		t.Fatalf("result = %v, want 3", result)
	}
}

// TestObjectPropertyClassFallback is spec.md's concrete scenario 4: a
// child object with no own "x" delegates through its class.
func TestObjectPropertyClassFallback(t *testing.T) {
	in, st := newTestInterpreter()

	parent, err := value.NewObject(st.Ctx, value.Null, nil)
	if err != nil {
		t.Fatalf("NewObject(parent): %v", err)
	}
	st.Ctx.Object(parent).SetProperty("x", value.Int(7))
	st.Globals.Set("parent", parent)

	b := chunk.NewBuilder().Registers(3)
	parentName := b.AddConstant(chunk.StringConstant("parent"))
	xName := b.AddConstant(chunk.StringConstant("x"))
	b.Emit(bytecode.NewABC(bytecode.GET_GLOBAL, 0, uint8(parentName), true, 0, false))
	b.Emit(bytecode.NewABC(bytecode.NEW_OBJECT, 1, 0, false, 1, false)) // class = R0, C!=0
	b.Emit(bytecode.NewABC(bytecode.GET_PROP, 2, 1, false, uint8(xName), true))
	b.Emit(bytecode.NewABC(bytecode.RETURN, 1, 2, false, 0, false))
	c := b.Build()

	fn := makeFunction(t, st, c)
	result, err := in.Execute(fn, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Integer() != 7 {
		t.Fatalf("result = %v, want 7", result)
	}
}

// TestSelfReturnsActivationReceiver exercises the single-operand SELF
// opcode against a non-null receiver passed to Call.
func TestSelfReturnsActivationReceiver(t *testing.T) {
	in, st := newTestInterpreter()

	b := chunk.NewBuilder().Registers(1)
	b.Emit(bytecode.NewABC(bytecode.SELF, 0, 0, false, 0, false))
	b.Emit(bytecode.NewABC(bytecode.RETURN, 1, 0, false, 0, false))
	c := b.Build()
	fn := makeFunction(t, st, c)

	receiver := value.Int(99)
	result, err := in.Call(fn, receiver, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Integer() != 99 {
		t.Fatalf("result = %v, want 99", result)
	}
}

// TestLocalsPropertyRoundTrip exercises GET_LOCAL/SET_LOCAL, which delegate
// to the function's locals object by property name rather than indexing
// the register window.
func TestLocalsPropertyRoundTrip(t *testing.T) {
	in, st := newTestInterpreter()

	b := chunk.NewBuilder().Registers(2)
	nameIdx := b.AddConstant(chunk.StringConstant("count"))
	b.Emit(bytecode.NewAsBx(bytecode.LOAD_INT, 0, 5))
	b.Emit(bytecode.NewABC(bytecode.SET_LOCAL, 0, uint8(nameIdx), true, 0, false))
	b.Emit(bytecode.NewABC(bytecode.GET_LOCAL, 1, uint8(nameIdx), true, 0, false))
	b.Emit(bytecode.NewABC(bytecode.RETURN, 1, 1, false, 0, false))
	c := b.Build()

	fn := makeFunction(t, st, c)
	result, err := in.Execute(fn, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Integer() != 5 {
		t.Fatalf("result = %v, want 5", result)
	}
}

// TestInvokeDispatchesThroughReceiverProperty builds an object whose
// "identity" property is a Function and calls it via INVOKE, verifying the
// receiver becomes self and the result lands in R(A).
func TestInvokeDispatchesThroughReceiverProperty(t *testing.T) {
	in, st := newTestInterpreter()

	identityBuilder := chunk.NewBuilder().Registers(2)
	identityBuilder.Emit(bytecode.NewABC(bytecode.RETURN, 1, 1, false, 0, false))
	identityFn := makeFunction(t, st, identityBuilder.Build())

	recv, err := value.NewObject(st.Ctx, value.Null, nil)
	if err != nil {
		t.Fatalf("NewObject: %v", err)
	}
	st.Ctx.Object(recv).SetProperty("identity", identityFn)
	st.Globals.Set("recv", recv)

	b := chunk.NewBuilder().Registers(2)
	recvName := b.AddConstant(chunk.StringConstant("recv"))
	methodName := b.AddConstant(chunk.StringConstant("identity"))
	b.Emit(bytecode.NewABC(bytecode.GET_GLOBAL, 0, uint8(recvName), true, 0, false))
	b.Emit(bytecode.NewAsBx(bytecode.LOAD_INT, 1, 9))
	b.Emit(bytecode.NewABC(bytecode.INVOKE, 0, uint8(methodName), true, 1, false))
	b.Emit(bytecode.NewABC(bytecode.RETURN, 1, 0, false, 0, false))
	c := b.Build()

	fn := makeFunction(t, st, c)
	result, err := in.Execute(fn, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Integer() != 9 {
		t.Fatalf("result = %v, want 9", result)
	}
}

// TestEqSkipsNextInstructionInsteadOfWriting exercises the §4.9 override:
// compare opcodes never write R(A); they skip the following instruction
// when the predicate is true.
func TestEqSkipsNextInstructionInsteadOfWriting(t *testing.T) {
	in, st := newTestInterpreter()

	b := chunk.NewBuilder().Registers(3)
	b.Emit(bytecode.NewAsBx(bytecode.LOAD_INT, 0, 5))
	b.Emit(bytecode.NewAsBx(bytecode.LOAD_INT, 1, 5))
	b.Emit(bytecode.NewABC(bytecode.EQ, 0, 0, false, 1, false))
	b.Emit(bytecode.NewAsBx(bytecode.LOAD_INT, 2, 111)) // skipped: 5 == 5
	b.Emit(bytecode.NewAsBx(bytecode.LOAD_INT, 2, 222))
	b.Emit(bytecode.NewABC(bytecode.RETURN, 1, 2, false, 0, false))
	c := b.Build()

	fn := makeFunction(t, st, c)
	result, err := in.Execute(fn, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Integer() != 222 {
		t.Fatalf("result = %v, want 222 (EQ should have skipped the 111 branch)", result)
	}
}
