package middleware

import (
	"errors"
	"reflect"
	"testing"
)

// recorder appends its hook invocations to a shared trace so tests can
// assert ordering across the whole chain.
type recorder struct {
	Base
	name  string
	trace *[]string

	shortCircuit any
	requestErr   error
	recoverWith  any
	recover      bool
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) ProcessRequest(ctx *Context) error {
	*r.trace = append(*r.trace, r.name+".req")
	if r.requestErr != nil {
		return r.requestErr
	}
	if r.shortCircuit != nil {
		ctx.Result = r.shortCircuit
	}
	return nil
}

func (r *recorder) ProcessResponse(ctx *Context, result any) (any, error) {
	*r.trace = append(*r.trace, r.name+".res")
	return result, nil
}

func (r *recorder) ProcessError(ctx *Context, err error) (any, error) {
	*r.trace = append(*r.trace, r.name+".err")
	if r.recover {
		return r.recoverWith, nil
	}
	return nil, err
}

func newTestContext() *Context {
	return NewContext(OpModelCall, "tester", nil, &ModelCallData{})
}

func TestChain_MirrorOrder(t *testing.T) {
	var trace []string
	m1 := &recorder{name: "m1", trace: &trace}
	m2 := &recorder{name: "m2", trace: &trace}
	m3 := &recorder{name: "m3", trace: &trace}
	chain := NewChain(m1, m2, m3)

	result, err := chain.Invoke(newTestContext(), func(ctx *Context) (any, error) {
		trace = append(trace, "call")
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %v, want ok", result)
	}

	want := []string{"m1.req", "m2.req", "m3.req", "call", "m3.res", "m2.res", "m1.res"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

func TestChain_ShortCircuitSkipsInnerAndCall(t *testing.T) {
	var trace []string
	m1 := &recorder{name: "m1", trace: &trace}
	m2 := &recorder{name: "m2", trace: &trace, shortCircuit: "cached"}
	m3 := &recorder{name: "m3", trace: &trace}
	chain := NewChain(m1, m2, m3)

	called := false
	result, err := chain.Invoke(newTestContext(), func(ctx *Context) (any, error) {
		called = true
		return "live", nil
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if called {
		t.Error("underlying call should not fire after short-circuit")
	}
	if result != "cached" {
		t.Errorf("result = %v, want cached", result)
	}

	want := []string{"m1.req", "m2.req", "m2.res", "m1.res"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

func TestChain_ErrorRecovery(t *testing.T) {
	var trace []string
	m1 := &recorder{name: "m1", trace: &trace}
	m2 := &recorder{name: "m2", trace: &trace, recover: true, recoverWith: "fallback"}
	chain := NewChain(m1, m2)

	boom := errors.New("boom")
	result, err := chain.Invoke(newTestContext(), func(ctx *Context) (any, error) {
		return nil, boom
	})
	if err != nil {
		t.Fatalf("m2 recovered, Invoke should not error: %v", err)
	}
	if result != "fallback" {
		t.Errorf("result = %v, want fallback", result)
	}

	// m2 recovers; m1 then sees a response, not an error.
	want := []string{"m1.req", "m2.req", "m2.err", "m1.res"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

func TestChain_UnrecoveredErrorPropagates(t *testing.T) {
	var trace []string
	m1 := &recorder{name: "m1", trace: &trace}
	m2 := &recorder{name: "m2", trace: &trace}
	chain := NewChain(m1, m2)

	boom := errors.New("boom")
	_, err := chain.Invoke(newTestContext(), func(ctx *Context) (any, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}

	want := []string{"m1.req", "m2.req", "m2.err", "m1.err"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

func TestChain_RequestErrorSkipsRemaining(t *testing.T) {
	var trace []string
	m1 := &recorder{name: "m1", trace: &trace}
	m2 := &recorder{name: "m2", trace: &trace, requestErr: errors.New("denied")}
	m3 := &recorder{name: "m3", trace: &trace}
	chain := NewChain(m1, m2, m3)

	called := false
	_, err := chain.Invoke(newTestContext(), func(ctx *Context) (any, error) {
		called = true
		return nil, nil
	})
	if err == nil {
		t.Fatal("request error should propagate when nothing recovers")
	}
	if called {
		t.Error("underlying call should not fire after a request error")
	}

	// The erroring middleware's own error hook runs too, then m1's.
	want := []string{"m1.req", "m2.req", "m2.err", "m1.err"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

func TestChain_Empty(t *testing.T) {
	chain := NewChain()
	result, err := chain.Invoke(newTestContext(), func(ctx *Context) (any, error) {
		return 42, nil
	})
	if err != nil || result != 42 {
		t.Errorf("empty chain = (%v, %v), want (42, nil)", result, err)
	}
}
