package container

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/jguan/throwaway/pkg/infra/docker"
)

// RunningState is what is known about a container once it is ready.
type RunningState struct {
	ID   string
	Name string
	// Ports maps a container port spec to its host port on 0.0.0.0.
	Ports map[string]uint16
}

// Container is a handle on a created container. Its methods are safe for
// concurrent use; state reads never block on each other.
type Container struct {
	id       string
	spec     Spec
	client   docker.Client
	logger   *slog.Logger
	observer Observer
	// closer is set when Create opened the client itself.
	closer io.Closer

	mu    sync.RWMutex
	state *RunningState
}

func newContainer(id string, spec Spec, client docker.Client, log *slog.Logger, obs Observer) *Container {
	c := &Container{
		id:       id,
		spec:     spec,
		client:   client,
		logger:   log.With("id", shortID(id)),
		observer: obs,
	}
	return c
}

// ID returns the runtime container ID.
func (c *Container) ID() string {
	return c.id
}

// Spec returns a copy of the Spec the container was created from.
func (c *Container) Spec() Spec {
	return c.spec.clone()
}

// Start starts the container, waits for its ready strategy and then records
// its RunningState. A failed start leaves the container in place; call
// Terminate to remove it.
func (c *Container) Start(ctx context.Context) error {
	c.logger.Debug("starting container", "ready", c.spec.Ready.String())

	if err := c.client.StartContainer(ctx, c.id); err != nil {
		return c.fail(ctx, runtimeErr("start", c.id, err))
	}
	if err := c.spec.Ready.Wait(ctx, c.probe(), c.spec.StartTimeout, c.spec.PollInterval); err != nil {
		return c.fail(ctx, err)
	}
	info, err := c.client.InspectContainer(ctx, c.id)
	if err != nil {
		return c.fail(ctx, runtimeErr("inspect", c.id, err))
	}

	state := RunningState{ID: c.id, Name: info.Name, Ports: ResolvePorts(info.Ports)}
	if info.ID != "" {
		state.ID = info.ID
	}
	c.mu.Lock()
	c.state = &state
	c.mu.Unlock()

	c.logger.Info("container is ready", "name", state.Name)
	c.notify(ctx, Event{Type: EventReady, Name: state.Name, Ports: maps.Clone(state.Ports)})
	return nil
}

func (c *Container) fail(ctx context.Context, err error) error {
	c.logger.Error("container failed to start", "error", err)
	c.notify(ctx, Event{Type: EventFailed, Err: err})
	return err
}

// Stop stops the container with its configured stop signal, or the image
// default when none is set. The RunningState is cleared even when the
// runtime reports an error.
func (c *Container) Stop(ctx context.Context) error {
	return c.halt(ctx, c.spec.StopSignal, "stop", EventStopped)
}

// Kill stops the container with SIGKILL. The RunningState is cleared even
// when the runtime reports an error.
func (c *Container) Kill(ctx context.Context) error {
	return c.halt(ctx, docker.SignalKill, "kill", EventKilled)
}

func (c *Container) halt(ctx context.Context, signal, op string, evType EventType) error {
	err := c.client.StopContainer(ctx, c.id, signal)

	c.mu.Lock()
	var name string
	if c.state != nil {
		name = c.state.Name
	}
	c.state = nil
	c.mu.Unlock()

	if err != nil {
		err = runtimeErr(op, c.id, err)
		c.logger.Warn("container did not stop cleanly", "name", name, "error", err)
	} else if evType == EventKilled {
		c.logger.Info("container killed", "name", name)
	} else {
		c.logger.Info("container stopped", "name", name)
	}
	c.notify(ctx, Event{Type: evType, Name: name, Err: err})
	return err
}

// Terminate kills and removes the container together with its anonymous
// volumes. The handle must not be used afterwards.
func (c *Container) Terminate(ctx context.Context) error {
	killErr := c.Kill(ctx)
	rmErr := runtimeErr("remove", c.id, c.client.RemoveContainer(ctx, c.id))
	if rmErr == nil {
		c.logger.Debug("container removed")
		c.notify(ctx, Event{Type: EventRemoved})
		// Removal supersedes a failed kill.
		killErr = nil
	}
	var closeErr error
	if c.closer != nil {
		closeErr = c.closer.Close()
	}
	return errors.Join(killErr, rmErr, closeErr)
}

// State returns a copy of the RunningState, or false when the container is
// not ready.
func (c *Container) State() (RunningState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return RunningState{}, false
	}
	s := *c.state
	s.Ports = maps.Clone(c.state.Ports)
	return s, true
}

// IsReady reports whether Start succeeded and no stop happened since.
func (c *Container) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state != nil
}

// HostPort returns the host port bound to the container port spec. It
// reports false when the container is not ready or the spec has no
// wildcard binding. A bare port number is read as tcp.
func (c *Container) HostPort(spec string) (uint16, bool) {
	if canonical, err := NormalizePortSpec(spec); err == nil {
		spec = canonical
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return 0, false
	}
	port, ok := c.state.Ports[spec]
	return port, ok
}

// Endpoint returns "localhost:<host port>" for the container port spec.
func (c *Container) Endpoint(spec string) (string, bool) {
	port, ok := c.HostPort(spec)
	if !ok {
		return "", false
	}
	return net.JoinHostPort("localhost", strconv.Itoa(int(port))), true
}

// Logs returns the container's full log history.
func (c *Container) Logs(ctx context.Context) (string, error) {
	logs, err := c.client.ContainerLogs(ctx, c.id)
	return logs, runtimeErr("logs", c.id, err)
}

func (c *Container) probe() Probe {
	return runtimeProbe{client: c.client, id: c.id}
}

func (c *Container) notify(ctx context.Context, ev Event) {
	if c.observer == nil {
		return
	}
	ev.ContainerID = c.id
	ev.Image = c.spec.Image.String()
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	c.observer.OnEvent(ctx, ev)
}

// runtimeProbe reads readiness signals from the container runtime.
type runtimeProbe struct {
	client docker.Client
	id     string
}

func (p runtimeProbe) Logs(ctx context.Context) (string, error) {
	logs, err := p.client.ContainerLogs(ctx, p.id)
	return logs, runtimeErr("logs", p.id, err)
}

func (p runtimeProbe) Health(ctx context.Context) (string, error) {
	info, err := p.client.InspectContainer(ctx, p.id)
	if err != nil {
		return "", runtimeErr("inspect", p.id, err)
	}
	return info.Health, nil
}
