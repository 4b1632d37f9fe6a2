// Package workflow implements the typed step DAG engine: build-time
// validation, fan-out/fan-in, shared context, and checkpoint/resume.
package workflow

import (
	"context"
	"reflect"
)

// StepMetadata is the descriptive record every Step carries.
type StepMetadata struct {
	Name        string
	Description string
	Version     string
}

// Step is one DAG node. InputType/OutputType declare the Go type the step
// consumes/produces (via reflect.TypeOf on a zero value); Validate uses
// these to reject edges whose upstream output is not assignable to the
// downstream input.
type Step interface {
	ID() string
	Metadata() StepMetadata
	InputType() reflect.Type
	OutputType() reflect.Type
	Execute(ctx context.Context, input any, wctx *Context) (any, error)
}

// FuncStep adapts a plain function plus static type descriptors into a
// Step.
type FuncStep struct {
	StepID  string
	Meta    StepMetadata
	In, Out reflect.Type
	Fn      func(ctx context.Context, input any, wctx *Context) (any, error)
}

func (s *FuncStep) ID() string               { return s.StepID }
func (s *FuncStep) Metadata() StepMetadata   { return s.Meta }
func (s *FuncStep) InputType() reflect.Type  { return s.In }
func (s *FuncStep) OutputType() reflect.Type { return s.Out }
func (s *FuncStep) Execute(ctx context.Context, input any, wctx *Context) (any, error) {
	return s.Fn(ctx, input, wctx)
}

// NewFuncStep builds a FuncStep inferring In/Out from the zero values of
// the given types, e.g. NewFuncStep("fetch", meta, FetchInput{}, FetchOutput{}, fn).
func NewFuncStep(id string, meta StepMetadata, in, out any, fn func(ctx context.Context, input any, wctx *Context) (any, error)) *FuncStep {
	return &FuncStep{
		StepID: id,
		Meta:   meta,
		In:     reflect.TypeOf(in),
		Out:    reflect.TypeOf(out),
		Fn:     fn,
	}
}
