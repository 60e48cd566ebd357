package core

import "errors"

var (
	ErrMalformedInstruction = errors.New("malformed instruction")
	ErrStepOverrun          = errors.New("step rate exceeds one step per tick")
	ErrInvalidConfig        = errors.New("invalid machine configuration")
)
