package cpu

import "errors"

var (
	ErrAlreadySetup   = errors.New("cpu tracer: tracer already set up")
	ErrNotSetup       = errors.New("cpu tracer: tracer not set up")
	ErrNoSceneData    = errors.New("cpu tracer: no scene data defined")
	ErrInvalidChange  = errors.New("cpu tracer: unsupported change payload")
	ErrBufferMismatch = errors.New("cpu tracer: buffer sizes do not match frame dimensions")
)
