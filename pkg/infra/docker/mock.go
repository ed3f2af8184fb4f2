package docker

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jguan/throwaway/pkg/image"
)

// Operation names used by MockClient.Calls and MockClient.Fail.
const (
	OpImageExists = "image-exists"
	OpPull        = "pull"
	OpBuild       = "build"
	OpCreate      = "create"
	OpStart       = "start"
	OpStop        = "stop"
	OpInspect     = "inspect"
	OpLogs        = "logs"
	OpList        = "list"
	OpRemove      = "remove"
)

// firstMockPort is where MockClient starts handing out random host ports.
const firstMockPort = 49153

// MockContainer is the in-memory state of one mock container.
type MockContainer struct {
	ID      string
	Name    string
	Options ContainerOptions
	Status  string
	Health  string
	Logs    string
	// Ports is filled on start unless a test seeded it beforehand.
	Ports       map[string][]PortBinding
	StopSignals []string
}

// MockClient is an in-memory Client for tests. It is safe for concurrent use.
type MockClient struct {
	mu         sync.Mutex
	images     map[string]bool
	containers map[string]*MockContainer
	failures   map[string]error
	calls      []string
	nextPort   int
	nextID     int

	// LogsHook, when set, replaces the stored log text on every ContainerLogs call.
	LogsHook func(containerID string) (string, error)
	// HealthHook, when set, replaces the stored health status on every inspect.
	HealthHook func(containerID string) string
}

// NewMockClient creates an empty mock runtime.
func NewMockClient() *MockClient {
	return &MockClient{
		images:     make(map[string]bool),
		containers: make(map[string]*MockContainer),
		failures:   make(map[string]error),
		nextPort:   firstMockPort,
	}
}

// AddImage marks ref as present in the local image store.
func (c *MockClient) AddImage(ref string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.images[ref] = true
}

// Fail makes every later call of op return err. A nil err clears the failure.
func (c *MockClient) Fail(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failures, op)
		return
	}
	c.failures[op] = err
}

// Calls returns the recorded operations in order, e.g. "pull postgres:latest".
func (c *MockClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// Container returns a copy of the mock container state.
func (c *MockClient) Container(containerID string) (MockContainer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ct, ok := c.containers[containerID]
	if !ok {
		return MockContainer{}, false
	}
	return *ct, true
}

// SetPorts seeds the inspection port data of a container.
func (c *MockClient) SetPorts(containerID string, ports map[string][]PortBinding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ct, ok := c.containers[containerID]; ok {
		ct.Ports = ports
	}
}

// AppendLogs appends text to the container log history.
func (c *MockClient) AppendLogs(containerID, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ct, ok := c.containers[containerID]; ok {
		ct.Logs += text
	}
}

// SetHealth sets the health status reported by inspect.
func (c *MockClient) SetHealth(containerID, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ct, ok := c.containers[containerID]; ok {
		ct.Health = status
	}
}

// begin records the call and returns the configured failure, if any.
// Callers must hold c.mu.
func (c *MockClient) begin(ctx context.Context, op, arg string) error {
	c.calls = append(c.calls, strings.TrimSpace(op+" "+arg))
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.failures[op]
}

func (c *MockClient) lookup(containerID string) (*MockContainer, error) {
	ct, ok := c.containers[containerID]
	if !ok {
		return nil, fmt.Errorf("container %s not found", containerID)
	}
	return ct, nil
}

// ImageExists implements Client.
func (c *MockClient) ImageExists(ctx context.Context, ref image.Reference) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(ctx, OpImageExists, ref.String()); err != nil {
		return false, err
	}
	return c.images[ref.String()], nil
}

// PullImage implements Client.
func (c *MockClient) PullImage(ctx context.Context, ref image.Reference, onProgress ProgressFunc) error {
	c.mu.Lock()
	if err := c.begin(ctx, OpPull, ref.String()); err != nil {
		c.mu.Unlock()
		return err
	}
	c.images[ref.String()] = true
	c.mu.Unlock()

	onProgress.emit(Progress{ID: "mock-layer", Status: "Pull complete"})
	return nil
}

// BuildImage implements Client.
func (c *MockClient) BuildImage(ctx context.Context, opts BuildOptions, onProgress ProgressFunc) error {
	c.mu.Lock()
	if err := c.begin(ctx, OpBuild, opts.Tag); err != nil {
		c.mu.Unlock()
		return err
	}
	c.images[opts.Tag] = true
	c.mu.Unlock()

	onProgress.emit(Progress{Status: "Successfully built " + opts.Tag})
	return nil
}

// CreateContainer implements Client.
func (c *MockClient) CreateContainer(ctx context.Context, opts ContainerOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(ctx, OpCreate, opts.Image); err != nil {
		return "", err
	}

	c.nextID++
	id := fmt.Sprintf("mock-container-%d", c.nextID)
	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("mock_fixture_%d", c.nextID)
	}
	c.containers[id] = &MockContainer{
		ID:      id,
		Name:    name,
		Options: opts,
		Status:  "created",
	}
	return id, nil
}

// StartContainer implements Client. Ports not seeded by SetPorts are bound on
// 0.0.0.0 and :: like the Docker daemon does.
func (c *MockClient) StartContainer(ctx context.Context, containerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(ctx, OpStart, containerID); err != nil {
		return err
	}
	ct, err := c.lookup(containerID)
	if err != nil {
		return err
	}

	ct.Status = "running"
	if ct.Ports == nil {
		specs := make([]string, 0, len(ct.Options.Ports))
		for spec := range ct.Options.Ports {
			specs = append(specs, spec)
		}
		sort.Strings(specs)

		ct.Ports = make(map[string][]PortBinding, len(specs))
		for _, spec := range specs {
			hostPort := ct.Options.Ports[spec]
			if hostPort == "" {
				hostPort = strconv.Itoa(c.nextPort)
				c.nextPort++
			}
			ct.Ports[spec] = []PortBinding{
				{HostIP: "0.0.0.0", HostPort: hostPort},
				{HostIP: "::", HostPort: hostPort},
			}
		}
	}
	return nil
}

// StopContainer implements Client.
func (c *MockClient) StopContainer(ctx context.Context, containerID string, signal string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(ctx, OpStop, strings.TrimSpace(containerID+" "+signal)); err != nil {
		return err
	}
	ct, err := c.lookup(containerID)
	if err != nil {
		return err
	}
	ct.Status = "exited"
	ct.StopSignals = append(ct.StopSignals, signal)
	return nil
}

// InspectContainer implements Client.
func (c *MockClient) InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error) {
	c.mu.Lock()
	if err := c.begin(ctx, OpInspect, containerID); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	ct, err := c.lookup(containerID)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	info := &ContainerInfo{
		ID:     ct.ID,
		Name:   ct.Name,
		State:  ct.Status,
		Health: ct.Health,
	}
	if ct.Ports != nil {
		info.Ports = make(map[string][]PortBinding, len(ct.Ports))
		for spec, bindings := range ct.Ports {
			info.Ports[spec] = append([]PortBinding(nil), bindings...)
		}
	}
	hook := c.HealthHook
	c.mu.Unlock()

	if hook != nil {
		info.Health = hook(containerID)
	}
	return info, nil
}

// ContainerLogs implements Client.
func (c *MockClient) ContainerLogs(ctx context.Context, containerID string) (string, error) {
	c.mu.Lock()
	if err := c.begin(ctx, OpLogs, containerID); err != nil {
		c.mu.Unlock()
		return "", err
	}
	ct, err := c.lookup(containerID)
	if err != nil {
		c.mu.Unlock()
		return "", err
	}
	logs := ct.Logs
	hook := c.LogsHook
	c.mu.Unlock()

	if hook != nil {
		return hook(containerID)
	}
	return logs, nil
}

// ListContainers implements Client.
func (c *MockClient) ListContainers(ctx context.Context, labels map[string]string) ([]ContainerSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(ctx, OpList, ""); err != nil {
		return nil, err
	}

	var out []ContainerSummary
	for _, ct := range c.containers {
		if ct.Options.Labels[LabelManaged] != "true" {
			continue
		}
		match := true
		for k, v := range labels {
			if ct.Options.Labels[k] != v {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		out = append(out, ContainerSummary{
			ID:     ct.ID,
			Name:   ct.Name,
			Image:  ct.Options.Image,
			State:  ct.Status,
			Labels: ct.Options.Labels,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RemoveContainer implements Client. Removing an unknown container is a no-op.
func (c *MockClient) RemoveContainer(ctx context.Context, containerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(ctx, OpRemove, containerID); err != nil {
		return err
	}
	delete(c.containers, containerID)
	return nil
}

var _ Client = (*MockClient)(nil)
