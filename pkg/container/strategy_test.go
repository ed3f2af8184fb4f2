package container

import (
	"context"
	"errors"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProbe serves scripted readiness answers.
type fakeProbe struct {
	calls  atomic.Int32
	logs   func(n int) (string, error)
	health func(n int) (string, error)
}

func (p *fakeProbe) Logs(context.Context) (string, error) {
	return p.logs(int(p.calls.Add(1)))
}

func (p *fakeProbe) Health(context.Context) (string, error) {
	return p.health(int(p.calls.Add(1)))
}

func TestReadyStrategy_NoWaitSucceedsImmediately(t *testing.T) {
	p := &fakeProbe{}
	err := NoWait().Wait(context.Background(), p, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, p.calls.Load(), "NoWait must not probe the container")

	var zero ReadyStrategy
	assert.NoError(t, zero.Wait(context.Background(), p, 0, 0))
}

func TestReadyStrategy_LogMatchesWithinTimeout(t *testing.T) {
	p := &fakeProbe{logs: func(n int) (string, error) {
		if n < 3 {
			return "starting\n", nil
		}
		return "starting\nready to accept connections\n", nil
	}}

	s := ForLog(regexp.MustCompile(`ready to accept`))
	err := s.Wait(context.Background(), p, time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestReadyStrategy_LogTimeout(t *testing.T) {
	p := &fakeProbe{logs: func(int) (string, error) { return "still booting", nil }}

	start := time.Now()
	err := ForLog(regexp.MustCompile(`ready`)).Wait(context.Background(), p, 30*time.Millisecond, 5*time.Millisecond)
	assert.ErrorIs(t, err, ErrReadinessTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Greater(t, p.calls.Load(), int32(1))
}

func TestReadyStrategy_AtLeastOneCheckWithZeroTimeout(t *testing.T) {
	p := &fakeProbe{logs: func(int) (string, error) { return "ready", nil }}
	err := ForLog(regexp.MustCompile(`ready`)).Wait(context.Background(), p, 0, time.Millisecond)
	assert.NoError(t, err)
}

func TestReadyStrategy_ProbeErrorIsReturned(t *testing.T) {
	boom := errors.New("logs unavailable")
	p := &fakeProbe{logs: func(int) (string, error) { return "", boom }}

	err := ForLog(regexp.MustCompile(`x`)).Wait(context.Background(), p, time.Second, time.Millisecond)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrReadinessTimeout)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestReadyStrategy_HealthAcceptsAnyStatus(t *testing.T) {
	tests := []struct {
		name   string
		status string
	}{
		{"healthy", "healthy"},
		{"starting", "starting"},
		{"unhealthy", "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProbe{health: func(n int) (string, error) {
				if n == 1 {
					return "", nil
				}
				return tt.status, nil
			}}
			err := ForHealthCheck().Wait(context.Background(), p, time.Second, time.Millisecond)
			require.NoError(t, err)
			assert.Equal(t, int32(2), p.calls.Load())
		})
	}
}

func TestReadyStrategy_HealthTimeout(t *testing.T) {
	p := &fakeProbe{health: func(int) (string, error) { return "", nil }}
	err := ForHealthCheck().Wait(context.Background(), p, 20*time.Millisecond, 5*time.Millisecond)
	assert.ErrorIs(t, err, ErrReadinessTimeout)
}

func TestReadyStrategy_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &fakeProbe{logs: func(int) (string, error) { return "", nil }}
	err := ForLog(regexp.MustCompile(`x`)).Wait(ctx, p, time.Minute, time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadyStrategy_String(t *testing.T) {
	assert.Equal(t, "none", NoWait().String())
	assert.Equal(t, "health-check", ForHealthCheck().String())
	assert.Equal(t, "log(ready)", ForLog(regexp.MustCompile("ready")).String())
	assert.Nil(t, NoWait().Pattern())
}

func TestForLog_NilPatternPanics(t *testing.T) {
	assert.PanicsWithValue(t, "container: ForLog called with a nil pattern", func() {
		ForLog(nil)
	})
}
