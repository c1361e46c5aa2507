package model

import "errors"

// Validation and lifecycle errors. All are local failures detected
// synchronously at the call site; none are transient.
var (
	// ErrInvalidParameterShape reports a parameter vector whose length does
	// not match the variant's schema, or a non-finite/negative rate value.
	ErrInvalidParameterShape = errors.New("invalid parameter shape")

	// ErrInvalidStateShape reports an initial state whose length does not
	// match the variant's compartment count, or a negative compartment.
	ErrInvalidStateShape = errors.New("invalid state shape")

	// ErrParametersNotSet reports use of a model before Configure.
	ErrParametersNotSet = errors.New("parameters not set")
)
