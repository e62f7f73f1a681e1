// Package transform runs the post-decode pipeline: geometry, then an ordered
// list of caller supplied transformations.
//
// Every step must honor the Bitmap ownership contract. A step that produces a
// new Bitmap releases its input; a step that edits in place returns its input
// unreleased. Anything else is reported as a *ContractViolationError and
// aborts the pipeline.
package transform

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ironsheep/image-fetch/internal/imaging"
)

// Transformation is one step applied to a decoded bitmap.
type Transformation interface {
	// Transform returns the transformed bitmap. See the package doc for the
	// ownership contract.
	Transform(b *imaging.Bitmap) (*imaging.Bitmap, error)

	// Key identifies the transformation and its parameters. Equal keys must
	// mean equal output, since keys are part of the request fingerprint.
	Key() string
}

// Func adapts a function to Transformation under the given key.
func Func(key string, fn func(*imaging.Bitmap) (*imaging.Bitmap, error)) Transformation {
	return funcTransformation{key: key, fn: fn}
}

type funcTransformation struct {
	key string
	fn  func(*imaging.Bitmap) (*imaging.Bitmap, error)
}

func (f funcTransformation) Transform(b *imaging.Bitmap) (*imaging.Bitmap, error) {
	return f.fn(b)
}

func (f funcTransformation) Key() string {
	return f.key
}

// Violation describes how a step broke the ownership contract.
type Violation int

const (
	// ViolationNil means the step returned no bitmap.
	ViolationNil Violation = iota
	// ViolationReleasedInput means the step returned its input after releasing it.
	ViolationReleasedInput
	// ViolationUnreleasedInput means the step returned a new bitmap without releasing its input.
	ViolationUnreleasedInput
)

// ContractViolationError reports a transformation that broke the ownership
// contract. It is never retried.
type ContractViolationError struct {
	// Step is the key of the offending transformation.
	Step string
	// Previous is the number of transformations that ran before Step.
	Previous int
	// Transforms is the full ordered key list of the pipeline.
	Transforms []string
	Violation  Violation
}

func (e *ContractViolationError) Error() string {
	var what string
	switch e.Violation {
	case ViolationNil:
		what = fmt.Sprintf("returned nil after %d previous transformation(s)", e.Previous)
	case ViolationReleasedInput:
		what = "returned its input bitmap but released it"
	case ViolationUnreleasedInput:
		what = "returned a new bitmap but failed to release its input"
	}
	return fmt.Sprintf("transformation %s %s; transformation list: [%s]",
		e.Step, what, strings.Join(e.Transforms, ", "))
}

// IsContractViolation reports whether err is, or wraps, a *ContractViolationError.
func IsContractViolation(err error) bool {
	var cv *ContractViolationError
	return errors.As(err, &cv)
}

// Keys returns the keys of ts in order.
func Keys(ts []Transformation) []string {
	keys := make([]string, len(ts))
	for i, t := range ts {
		keys[i] = t.Key()
	}
	return keys
}

// Apply sizes and orients b according to g, then applies ts in order.
//
// On success the returned bitmap is owned by the caller. On error the
// pipeline stops at the failing step.
func Apply(ctx context.Context, b *imaging.Bitmap, g imaging.Geometry, ts []Transformation) (*imaging.Bitmap, error) {
	if b == nil {
		return nil, errors.New("transform: nil input bitmap")
	}

	out, err := imaging.ApplyGeometry(ctx, b, g)
	if err != nil {
		return nil, fmt.Errorf("failed to apply geometry: %w", err)
	}

	for i, t := range ts {
		in := out
		out, err = t.Transform(in)
		if err != nil {
			return nil, fmt.Errorf("transformation %s: %w", t.Key(), err)
		}

		if v, ok := checkContract(in, out); !ok {
			return nil, &ContractViolationError{
				Step:       t.Key(),
				Previous:   i,
				Transforms: Keys(ts),
				Violation:  v,
			}
		}
	}
	return out, nil
}

// checkContract reports whether a step turning in into out kept the ownership contract.
func checkContract(in, out *imaging.Bitmap) (Violation, bool) {
	switch {
	case out == nil:
		return ViolationNil, false
	case out == in && in.Released():
		return ViolationReleasedInput, false
	case out != in && !in.Released():
		return ViolationUnreleasedInput, false
	}
	return 0, true
}
