package docker

import (
	"context"
	"strings"

	"github.com/jguan/throwaway/pkg/image"
)

const (
	// LabelManaged marks every container created through this package so that
	// leftovers can be found and pruned.
	LabelManaged = "throwaway.managed"
	// LabelSession carries the id of the process that created the container.
	LabelSession = "throwaway.session"

	// SignalKill is the forceful stop signal.
	SignalKill = "SIGKILL"
)

// Progress is one decoded pull or build progress message.
type Progress struct {
	// ID is the layer id for pull progress, empty for build output.
	ID string
	// Status is the short status ("Downloading", "Pull complete", build step text).
	Status string
	// Detail is the optional progress bar or extra text.
	Detail string
}

// String renders the progress message on one line.
func (p Progress) String() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.Status, p.ID, p.Detail} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// ProgressFunc receives pull and build progress. It may be nil.
type ProgressFunc func(Progress)

func (f ProgressFunc) emit(p Progress) {
	if f != nil {
		f(p)
	}
}

// BuildOptions describes a local image build.
type BuildOptions struct {
	// Tag is the reference the built image is tagged with.
	Tag string
	// ContextDir is the directory sent as build context.
	ContextDir string
	// Dockerfile is relative to ContextDir.
	Dockerfile string
	Labels     map[string]string
}

// ContainerOptions describes a container to create.
type ContainerOptions struct {
	Image string
	Name  string
	Env   []string
	Cmd   []string
	// Ports maps a container port spec ("5432/tcp") to a fixed host port.
	// An empty host port lets the runtime pick one.
	Ports map[string]string
	// Volumes holds mount specs: "host:container[:mode]" binds or a bare
	// container path for an anonymous volume.
	Volumes []string
	Labels  map[string]string
	// StopSignal overrides the image's default stop signal.
	StopSignal string
}

// PortBinding is one host binding of a published container port.
type PortBinding struct {
	HostIP   string
	HostPort string
}

// ContainerInfo is the subset of container inspection data the lifecycle needs.
type ContainerInfo struct {
	ID   string
	Name string
	// State is the runtime status ("created", "running", "exited", ...).
	State string
	// Health is the health-check status, empty when the image defines none.
	Health string
	// Ports is nil when the runtime reports no network settings.
	Ports map[string][]PortBinding
}

// ContainerSummary is one entry of ListContainers.
type ContainerSummary struct {
	ID     string
	Name   string
	Image  string
	State  string
	Labels map[string]string
}

// Client is the interface to the container runtime.
type Client interface {
	// ImageExists reports whether ref is present in the local image store.
	ImageExists(ctx context.Context, ref image.Reference) (bool, error)

	// PullImage pulls ref, reporting progress to onProgress.
	PullImage(ctx context.Context, ref image.Reference, onProgress ProgressFunc) error

	// BuildImage builds and tags an image, reporting progress to onProgress.
	BuildImage(ctx context.Context, opts BuildOptions, onProgress ProgressFunc) error

	// CreateContainer creates (but does not start) a container, returning its ID.
	CreateContainer(ctx context.Context, opts ContainerOptions) (string, error)

	// StartContainer starts a created container.
	StartContainer(ctx context.Context, containerID string) error

	// StopContainer stops a container. An empty signal uses the runtime default.
	StopContainer(ctx context.Context, containerID string, signal string) error

	// InspectContainer returns the current state of a container.
	InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error)

	// ContainerLogs returns the whole stdout+stderr history of a container.
	ContainerLogs(ctx context.Context, containerID string) (string, error)

	// ListContainers returns all containers (running or not) carrying the
	// managed label and the given extra labels.
	ListContainers(ctx context.Context, labels map[string]string) ([]ContainerSummary, error)

	// RemoveContainer force-removes a container and its anonymous volumes.
	RemoveContainer(ctx context.Context, containerID string) error
}

// Compile-time assertion: SimpleClient must implement Client.
var _ Client = (*SimpleClient)(nil)
