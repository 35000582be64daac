package kpl

import (
	"testing"

	"github.com/NightTerror1721/kpl/internal/bytecode"
	"github.com/NightTerror1721/kpl/internal/chunk"
)

func TestStateExecutesAConstantFunction(t *testing.T) {
	st := NewState(Options{})

	b := chunk.NewBuilder().Registers(1)
	b.Emit(bytecode.NewAsBx(bytecode.LOAD_INT, 0, 7))
	b.Emit(bytecode.NewABC(bytecode.RETURN, 1, 0, false, 0, false))
	c := b.Build()

	locals, err := st.NewObject(Null, nil)
	if err != nil {
		t.Fatalf("NewObject: %v", err)
	}
	fn, err := st.NewFunction(c, locals)
	if err != nil {
		t.Fatalf("NewFunction: %v", err)
	}

	result, err := st.Execute(fn, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsInteger() || result.Integer() != 7 {
		t.Fatalf("result = %v, want Integer(7)", result)
	}
}

func TestStateGlobalsAreVisibleToScripts(t *testing.T) {
	st := NewState(Options{})

	greeting, err := st.NewString("hi")
	if err != nil {
		t.Fatalf("NewString: %v", err)
	}
	st.SetGlobal("greeting", greeting)

	if got := st.Global("greeting"); got.Kind().String() != "string" {
		t.Fatalf("Global(greeting).Kind() = %v, want string", got.Kind())
	}

	// A script reading the global with GET_GLOBAL sees the host's value.
	b := chunk.NewBuilder().Registers(1)
	nameIdx := b.AddConstant(chunk.StringConstant("greeting"))
	b.Emit(bytecode.NewABC(bytecode.GET_GLOBAL, 0, uint8(nameIdx), true, 0, false))
	b.Emit(bytecode.NewABC(bytecode.RETURN, 1, 0, false, 0, false))

	locals, err := st.NewObject(Null, nil)
	if err != nil {
		t.Fatalf("NewObject: %v", err)
	}
	fn, err := st.NewFunction(b.Build(), locals)
	if err != nil {
		t.Fatalf("NewFunction: %v", err)
	}
	result, err := st.Execute(fn, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Equal(greeting) {
		t.Fatalf("script read of greeting = %v, want the host-set string", result)
	}
}
