// Package schema validates envelope parameters and agent response
// payloads against a capability's declared CUE schema. Validation is
// opt-in: a Capability with no InputSchema/OutputSchema is unchecked,
// matching spec's "schema validation only runs for capabilities that
// declare one" rule.
package schema

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/gomind-labs/execrt/core"
)

// ValidationError is one field-level schema violation.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator compiles and caches nothing across calls: schemas are
// small and validated rarely enough (once per routed step, not once
// per byte of traffic) that a fresh cue.Context per call keeps this
// package free of shared mutable state.
type Validator struct{}

// NewValidator returns a Validator. It holds no state; callers are
// free to share one value across goroutines.
func NewValidator() *Validator { return &Validator{} }

// ValidateInput checks params against cap.InputSchema. A capability
// with no InputSchema is always valid.
func (v *Validator) ValidateInput(cap core.Capability, params map[string]core.Value) []ValidationError {
	if cap.InputSchema == "" {
		return nil
	}
	return validateAgainst(cap.InputSchema, params)
}

// ValidateOutput checks a response's Payload against cap.OutputSchema.
// A capability with no OutputSchema is always valid, and a response
// that isn't a success is never checked here — schema validation only
// constrains what an agent claims to succeed with.
func (v *Validator) ValidateOutput(cap core.Capability, resp *core.AgentResponse) []ValidationError {
	if cap.OutputSchema == "" || resp == nil || resp.Status != core.ResponseSuccess {
		return nil
	}
	return validateAgainst(cap.OutputSchema, resp.Payload)
}

func validateAgainst(schema string, data map[string]core.Value) []ValidationError {
	ctx := cuecontext.New()

	schemaVal := ctx.CompileString(schema)
	if err := schemaVal.Err(); err != nil {
		return []ValidationError{{Path: "$schema", Message: err.Error()}}
	}

	dataVal := ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return []ValidationError{{Path: "$data", Message: err.Error()}}
	}

	unified := schemaVal.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true), cue.All()); err != nil {
		return errorsFromCUE(err)
	}
	return nil
}

func errorsFromCUE(err error) []ValidationError {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return []ValidationError{{Path: "$", Message: err.Error()}}
	}
	out := make([]ValidationError, 0, len(errs))
	for _, e := range errs {
		path := "$"
		if ip := e.Path(); len(ip) > 0 {
			path = strings.Join(ip, ".")
		}
		out = append(out, ValidationError{Path: path, Message: e.Error()})
	}
	return out
}
