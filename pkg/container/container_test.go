package container

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jguan/throwaway/pkg/infra/docker"
)

// eventLog collects observer events.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) OnEvent(_ context.Context, ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

func readyPostgres(mc *docker.MockClient) Builder {
	mc.LogsHook = func(string) (string, error) {
		return "PostgreSQL init process complete\nLOG:  database system is ready to accept connections\n", nil
	}
	return Postgres().WithClient(mc).WithPollInterval(time.Millisecond)
}

func TestContainer_PostgresLifecycle(t *testing.T) {
	mc := docker.NewMockClient()
	events := &eventLog{}
	ctx := context.Background()

	c, err := readyPostgres(mc).WithObserver(events).Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"image-exists postgres:latest",
		"pull postgres:latest",
		"create postgres:latest",
	}, mc.Calls())

	_, ok := c.HostPort("5432/tcp")
	assert.False(t, ok, "no mapping before start")

	require.NoError(t, c.Start(ctx))
	port, ok := c.HostPort("5432/tcp")
	require.True(t, ok)
	assert.Equal(t, uint16(49153), port)

	endpoint, ok := c.Endpoint("5432")
	require.True(t, ok)
	assert.Equal(t, "localhost:49153", endpoint)

	state, ok := c.State()
	require.True(t, ok)
	assert.Equal(t, c.ID(), state.ID)
	assert.Equal(t, "mock_fixture_1", state.Name)

	require.NoError(t, c.Stop(ctx))
	_, ok = c.HostPort("5432/tcp")
	assert.False(t, ok, "no mapping after stop")
	assert.False(t, c.IsReady())

	assert.Equal(t, []EventType{EventCreated, EventReady, EventStopped}, events.types())
}

func TestContainer_SkipsPullWhenImageIsLocal(t *testing.T) {
	mc := docker.NewMockClient()
	mc.AddImage("redis:latest")

	_, err := FromImage("redis:latest").WithClient(mc).Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"image-exists redis:latest", "create redis:latest"}, mc.Calls())
}

func TestContainer_BuildsImageFromContext(t *testing.T) {
	mc := docker.NewMockClient()
	_, err := FromImage("app:dev").WithBuildContext(t.TempDir(), "").WithClient(mc).Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"build app:dev", "create app:dev"}, mc.Calls())
}

func TestContainer_CreateRuntimeErrors(t *testing.T) {
	boom := errors.New("daemon unavailable")
	for _, op := range []string{docker.OpImageExists, docker.OpPull, docker.OpCreate} {
		t.Run(op, func(t *testing.T) {
			mc := docker.NewMockClient()
			mc.Fail(op, boom)

			_, err := FromImage("alpine").WithClient(mc).Create(context.Background())
			var re *RuntimeError
			require.ErrorAs(t, err, &re)
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestContainer_CreateLabelsSession(t *testing.T) {
	mc := docker.NewMockClient()
	c, err := FromImage("alpine").WithClient(mc).Create(context.Background())
	require.NoError(t, err)

	ct, ok := mc.Container(c.ID())
	require.True(t, ok)
	assert.Equal(t, "true", ct.Options.Labels[docker.LabelManaged])
	assert.Equal(t, SessionID(), ct.Options.Labels[docker.LabelSession])
}

func TestContainer_StartTimeoutLeavesContainerRunning(t *testing.T) {
	mc := docker.NewMockClient()
	mc.LogsHook = func(string) (string, error) { return "booting\n", nil }
	events := &eventLog{}
	ctx := context.Background()

	c, err := FromImage("alpine").
		AddExposedTCPPort(80).
		WaitForLogOnStartup("ready").
		WithStartTimeout("30ms").
		WithPollInterval(5 * time.Millisecond).
		WithClient(mc).
		WithObserver(events).
		Create(ctx)
	require.NoError(t, err)

	err = c.Start(ctx)
	assert.ErrorIs(t, err, ErrReadinessTimeout)
	assert.False(t, c.IsReady())
	_, ok := c.HostPort("80/tcp")
	assert.False(t, ok)

	ct, _ := mc.Container(c.ID())
	assert.Equal(t, "running", ct.Status)
	assert.Equal(t, []EventType{EventCreated, EventFailed}, events.types())
}

func TestContainer_StartRuntimeError(t *testing.T) {
	mc := docker.NewMockClient()
	ctx := context.Background()
	c, err := FromImage("alpine").WithClient(mc).Create(ctx)
	require.NoError(t, err)

	boom := errors.New("port is already allocated")
	mc.Fail(docker.OpStart, boom)

	err = c.Start(ctx)
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "start", re.Op)
	assert.Equal(t, c.ID(), re.ContainerID)
	assert.ErrorIs(t, err, boom)
}

func TestContainer_LogProbeErrorIsRuntimeError(t *testing.T) {
	mc := docker.NewMockClient()
	mc.LogsHook = func(string) (string, error) { return "", errors.New("stream closed") }
	ctx := context.Background()

	c, err := FromImage("alpine").WaitForLogOnStartup("x").WithClient(mc).Create(ctx)
	require.NoError(t, err)

	err = c.Start(ctx)
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "logs", re.Op)
	assert.NotErrorIs(t, err, ErrReadinessTimeout)
}

func TestContainer_HealthCheck(t *testing.T) {
	mc := docker.NewMockClient()
	var mu sync.Mutex
	checks := 0
	mc.HealthHook = func(string) string {
		mu.Lock()
		defer mu.Unlock()
		checks++
		if checks < 3 {
			return ""
		}
		return "unhealthy"
	}
	ctx := context.Background()

	c, err := FromImage("alpine").WaitForHealthCheck().WithPollInterval(time.Millisecond).WithClient(mc).Create(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))
	assert.True(t, c.IsReady())
}

func TestContainer_StopUsesConfiguredSignal(t *testing.T) {
	mc := docker.NewMockClient()
	ctx := context.Background()

	c, err := FromImage("alpine").WithStopSignal("SIGINT").WithClient(mc).Create(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Kill(ctx))

	ct, _ := mc.Container(c.ID())
	assert.Equal(t, []string{"SIGINT", docker.SignalKill}, ct.StopSignals)
}

func TestContainer_StopClearsStateOnError(t *testing.T) {
	mc := docker.NewMockClient()
	ctx := context.Background()
	c, err := FromImage("alpine").AddExposedTCPPort(80).WithClient(mc).Create(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))

	mc.Fail(docker.OpStop, errors.New("no such process"))
	err = c.Stop(ctx)
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "stop", re.Op)
	assert.False(t, c.IsReady())
}

func TestContainer_Terminate(t *testing.T) {
	mc := docker.NewMockClient()
	events := &eventLog{}
	ctx := context.Background()
	c, err := FromImage("alpine").WithClient(mc).WithObserver(events).Create(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))

	require.NoError(t, c.Terminate(ctx))
	_, ok := mc.Container(c.ID())
	assert.False(t, ok)
	assert.Equal(t, []EventType{EventCreated, EventReady, EventKilled, EventRemoved}, events.types())
}

func TestContainer_RestartAfterStop(t *testing.T) {
	mc := docker.NewMockClient()
	ctx := context.Background()
	c, err := FromImage("alpine").AddExposedTCPPort(80).WithClient(mc).Create(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Start(ctx))

	port, ok := c.HostPort("80/tcp")
	require.True(t, ok)
	assert.NotZero(t, port)
}

func TestContainer_StateReturnsCopy(t *testing.T) {
	mc := docker.NewMockClient()
	ctx := context.Background()
	c, err := FromImage("alpine").AddExposedTCPPort(80).WithClient(mc).Create(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))

	state, ok := c.State()
	require.True(t, ok)
	state.Ports["80/tcp"] = 1

	port, _ := c.HostPort("80/tcp")
	assert.NotEqual(t, uint16(1), port)
}

func TestContainer_ConcurrentReadersDuringStop(t *testing.T) {
	mc := docker.NewMockClient()
	ctx := context.Background()
	c, err := FromImage("alpine").AddExposedTCPPort(80).WithClient(mc).Create(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if port, ok := c.HostPort("80/tcp"); ok {
					assert.NotZero(t, port)
				}
				c.State()
			}
		}()
	}
	require.NoError(t, c.Stop(ctx))
	wg.Wait()

	_, ok := c.HostPort("80/tcp")
	assert.False(t, ok)
}

func TestContainer_ParallelCreates(t *testing.T) {
	mc := docker.NewMockClient()
	ctx := context.Background()
	base := FromImage("alpine").AddExposedTCPPort(80).WithClient(mc)

	var wg sync.WaitGroup
	ids := make([]string, 4)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := base.AddEnv("INDEX", string(rune('a'+i))).Create(ctx)
			if assert.NoError(t, err) {
				assert.NoError(t, c.Start(ctx))
				ids[i] = c.ID()
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, id := range ids {
		assert.NotEmpty(t, id)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestObservers_FanOut(t *testing.T) {
	first, second := &eventLog{}, &eventLog{}
	var calls int
	obs := Observers{first, nil, second, ObserverFunc(func(context.Context, Event) { calls++ })}

	obs.OnEvent(context.Background(), Event{Type: EventCreated})
	obs.OnEvent(context.Background(), Event{Type: EventReady})

	assert.Equal(t, []EventType{EventCreated, EventReady}, first.types())
	assert.Equal(t, []EventType{EventCreated, EventReady}, second.types())
	assert.Equal(t, 2, calls)
}
