package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	dockerimage "github.com/docker/docker/api/types/image"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/jguan/throwaway/pkg/image"
	"github.com/jguan/throwaway/pkg/infra/logger"
)

// SDKClient implements Client using the official Docker Go SDK.
type SDKClient struct {
	cli *dockerclient.Client
}

// NewSDKClient creates an SDKClient configured from environment variables
// (DOCKER_HOST, DOCKER_TLS_VERIFY, DOCKER_CERT_PATH, DOCKER_API_VERSION).
// A non-empty host overrides DOCKER_HOST.
func NewSDKClient(host string) (*SDKClient, error) {
	opts := []dockerclient.Opt{
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	}
	if host != "" {
		opts = append(opts, dockerclient.WithHost(host))
	}
	cli, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker sdk client: %w", err)
	}
	return &SDKClient{cli: cli}, nil
}

// Close releases the underlying HTTP transport.
func (c *SDKClient) Close() error {
	return c.cli.Close()
}

// ImageExists reports whether ref is present locally.
func (c *SDKClient) ImageExists(ctx context.Context, ref image.Reference) (bool, error) {
	images, err := c.cli.ImageList(ctx, dockerimage.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", ref.LocalFilter())),
	})
	if err != nil {
		return false, fmt.Errorf("docker ImageList %s: %w", ref, err)
	}
	return len(images) > 0, nil
}

// PullImage pulls ref and forwards the decoded progress stream.
func (c *SDKClient) PullImage(ctx context.Context, ref image.Reference, onProgress ProgressFunc) error {
	rc, err := c.cli.ImagePull(ctx, ref.String(), dockerimage.PullOptions{})
	if err != nil {
		return fmt.Errorf("docker ImagePull %s: %w", ref, err)
	}
	defer rc.Close()

	if err := decodeProgress(rc, onProgress); err != nil {
		return fmt.Errorf("docker ImagePull %s: %w", ref, err)
	}
	return nil
}

// BuildImage tars opts.ContextDir, builds it and forwards the build output.
func (c *SDKClient) BuildImage(ctx context.Context, opts BuildOptions, onProgress ProgressFunc) error {
	buildCtx, err := archive.TarWithOptions(opts.ContextDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("archive build context %s: %w", opts.ContextDir, err)
	}
	defer buildCtx.Close()

	resp, err := c.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:        []string{opts.Tag},
		Dockerfile:  filepath.ToSlash(opts.Dockerfile),
		Labels:      opts.Labels,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return fmt.Errorf("docker ImageBuild %s: %w", opts.Tag, err)
	}
	defer resp.Body.Close()

	if err := decodeProgress(resp.Body, onProgress); err != nil {
		return fmt.Errorf("docker ImageBuild %s: %w", opts.Tag, err)
	}
	return nil
}

// CreateContainer creates a container with every exposed port published.
func (c *SDKClient) CreateContainer(ctx context.Context, opts ContainerOptions) (string, error) {
	exposedPorts := nat.PortSet{}
	portBindings := nat.PortMap{}
	for spec, hostPort := range opts.Ports {
		p := nat.Port(spec)
		exposedPorts[p] = struct{}{}
		portBindings[p] = []nat.PortBinding{{HostPort: hostPort}}
	}

	binds := make([]string, 0, len(opts.Volumes))
	anonymous := map[string]struct{}{}
	for _, v := range opts.Volumes {
		if strings.Contains(v, ":") {
			binds = append(binds, v)
		} else {
			anonymous[v] = struct{}{}
		}
	}

	cfg := &container.Config{
		Image:        opts.Image,
		Cmd:          opts.Cmd,
		Env:          opts.Env,
		Labels:       opts.Labels,
		ExposedPorts: exposedPorts,
		Volumes:      anonymous,
		StopSignal:   opts.StopSignal,
	}

	hostCfg := &container.HostConfig{
		Binds:           binds,
		PortBindings:    portBindings,
		PublishAllPorts: true,
	}

	resp, err := c.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, opts.Name)
	if err != nil {
		return "", fmt.Errorf("docker ContainerCreate: %w", err)
	}
	for _, w := range resp.Warnings {
		logger.Warn("docker create warning", "container", resp.ID, "warning", w)
	}
	return resp.ID, nil
}

// StartContainer starts a created container.
func (c *SDKClient) StartContainer(ctx context.Context, containerID string) error {
	if err := c.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("docker ContainerStart: %w", err)
	}
	return nil
}

// StopContainer stops a container with signal, or the default stop signal.
func (c *SDKClient) StopContainer(ctx context.Context, containerID string, signal string) error {
	if err := c.cli.ContainerStop(ctx, containerID, container.StopOptions{Signal: signal}); err != nil {
		return fmt.Errorf("docker ContainerStop: %w", err)
	}
	return nil
}

// InspectContainer returns id, name, health and published ports.
func (c *SDKClient) InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error) {
	resp, err := c.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("docker ContainerInspect: %w", err)
	}
	return inspectToInfo(resp), nil
}

func inspectToInfo(resp container.InspectResponse) *ContainerInfo {
	info := &ContainerInfo{}
	if resp.ContainerJSONBase != nil {
		info.ID = resp.ID
		info.Name = strings.TrimPrefix(resp.Name, "/")
		if resp.State != nil {
			info.State = string(resp.State.Status)
			if resp.State.Health != nil {
				info.Health = string(resp.State.Health.Status)
			}
		}
	}
	if resp.NetworkSettings != nil && resp.NetworkSettings.Ports != nil {
		info.Ports = make(map[string][]PortBinding, len(resp.NetworkSettings.Ports))
		for port, bindings := range resp.NetworkSettings.Ports {
			converted := make([]PortBinding, 0, len(bindings))
			for _, b := range bindings {
				converted = append(converted, PortBinding{HostIP: b.HostIP, HostPort: b.HostPort})
			}
			info.Ports[string(port)] = converted
		}
	}
	return info
}

// ContainerLogs returns the full demultiplexed stdout+stderr history.
// A read error mid-stream is logged and whatever was read so far is returned.
func (c *SDKClient) ContainerLogs(ctx context.Context, containerID string) (string, error) {
	rc, err := c.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       "all",
	})
	if err != nil {
		return "", fmt.Errorf("docker ContainerLogs: %w", err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		logger.Error("reading container logs", "container", containerID, "error", err)
	}
	return buf.String(), nil
}

// ListContainers returns managed containers matching labels.
func (c *SDKClient) ListContainers(ctx context.Context, labels map[string]string) ([]ContainerSummary, error) {
	f := filters.NewArgs()
	f.Add("label", LabelManaged+"=true")
	for k, v := range labels {
		f.Add("label", fmt.Sprintf("%s=%s", k, v))
	}

	containers, err := c.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return nil, fmt.Errorf("docker ContainerList: %w", err)
	}

	out := make([]ContainerSummary, 0, len(containers))
	for _, ct := range containers {
		name := ""
		if len(ct.Names) > 0 {
			name = strings.TrimPrefix(ct.Names[0], "/")
		}
		out = append(out, ContainerSummary{
			ID:     ct.ID,
			Name:   name,
			Image:  ct.Image,
			State:  string(ct.State),
			Labels: ct.Labels,
		})
	}
	return out, nil
}

// RemoveContainer force-removes a container. A missing container is not an error.
func (c *SDKClient) RemoveContainer(ctx context.Context, containerID string) error {
	err := c.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("docker ContainerRemove: %w", err)
	}
	return nil
}

// decodeProgress reads a JSON message stream until EOF, forwarding each
// message and failing on the first error message.
func decodeProgress(r io.Reader, onProgress ProgressFunc) error {
	dec := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode progress: %w", err)
		}
		if msg.Error != nil {
			return errors.New(msg.Error.Message)
		}
		p := Progress{ID: msg.ID, Status: msg.Status}
		if msg.Stream != "" {
			p.Status = msg.Stream
		}
		if msg.Progress != nil {
			p.Detail = msg.Progress.String()
		}
		onProgress.emit(p)
	}
}

// Compile-time assertion: SDKClient must implement Client.
var _ Client = (*SDKClient)(nil)
