package container

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// DefaultPollInterval is how often a ReadyStrategy re-checks the container.
const DefaultPollInterval = 100 * time.Millisecond

type strategyKind int

const (
	waitNone strategyKind = iota
	waitLog
	waitHealth
)

// ReadyStrategy decides when a started container counts as ready. The zero
// value waits for nothing.
type ReadyStrategy struct {
	kind    strategyKind
	pattern *regexp.Regexp
}

// NoWait treats the container as ready as soon as it is started.
func NoWait() ReadyStrategy {
	return ReadyStrategy{kind: waitNone}
}

// ForLog waits until the combined log history matches re. It panics if re
// is nil.
func ForLog(re *regexp.Regexp) ReadyStrategy {
	if re == nil {
		panic("container: ForLog called with a nil pattern")
	}
	return ReadyStrategy{kind: waitLog, pattern: re}
}

// ForHealthCheck waits until the runtime reports any health status.
func ForHealthCheck() ReadyStrategy {
	return ReadyStrategy{kind: waitHealth}
}

// Pattern returns the log pattern of a ForLog strategy, nil otherwise.
func (s ReadyStrategy) Pattern() *regexp.Regexp {
	return s.pattern
}

func (s ReadyStrategy) String() string {
	switch s.kind {
	case waitLog:
		return fmt.Sprintf("log(%s)", s.pattern)
	case waitHealth:
		return "health-check"
	default:
		return "none"
	}
}

// Probe is what a ReadyStrategy observes on a running container.
type Probe interface {
	// Logs returns the full log history so far.
	Logs(ctx context.Context) (string, error)
	// Health returns the current health status, empty when there is none.
	Health(ctx context.Context) (string, error)
}

// Ready runs a single readiness check.
func (s ReadyStrategy) Ready(ctx context.Context, p Probe) (bool, error) {
	switch s.kind {
	case waitLog:
		logs, err := p.Logs(ctx)
		if err != nil {
			return false, err
		}
		return s.pattern.MatchString(logs), nil
	case waitHealth:
		status, err := p.Health(ctx)
		if err != nil {
			return false, err
		}
		return status != "", nil
	default:
		return true, nil
	}
}

// Wait polls p every interval until it is ready. Probe errors are returned
// as-is. When the last failed check happens after timeout has elapsed Wait
// returns ErrReadinessTimeout, so at least one check always runs.
func (s ReadyStrategy) Wait(ctx context.Context, p Probe, timeout, interval time.Duration) error {
	if s.kind == waitNone {
		return nil
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.Now().Add(timeout)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		ok, err := s.Ready(ctx, p)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s not satisfied after %s", ErrReadinessTimeout, s, timeout)
		}
		timer.Reset(interval)
	}
}
