package container

import (
	"errors"
	"fmt"
)

// ErrReadinessTimeout is returned by Start when the ready strategy does not
// succeed before the start timeout. It carries no partial result.
var ErrReadinessTimeout = errors.New("container takes too much time to be ready")

// ParseError is a configuration error detected while building a Spec:
// a malformed image reference, regular expression, duration, port spec,
// signal name or env file. It is always returned before the runtime is
// contacted.
type ParseError struct {
	Field string
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Input, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// RuntimeError is a failure reported by the container runtime. It is never
// retried.
type RuntimeError struct {
	Op          string
	ContainerID string
	Err         error
}

func (e *RuntimeError) Error() string {
	if e.ContainerID == "" {
		return fmt.Sprintf("runtime %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("runtime %s %s: %v", e.Op, shortID(e.ContainerID), e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func runtimeErr(op, containerID string, err error) error {
	if err == nil {
		return nil
	}
	return &RuntimeError{Op: op, ContainerID: containerID, Err: err}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
