package docker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jguan/throwaway/pkg/image"
)

// maxProgressLine bounds a single line of pull or build output.
var maxProgressLine = 16 << 20

// SimpleClient is a lightweight Docker client using CLI commands
type SimpleClient struct {
	binary string
	host   string
}

// NewSimpleClient creates a new simple Docker client. A non-empty host is
// exported as DOCKER_HOST to every command.
func NewSimpleClient(host string) *SimpleClient {
	return &SimpleClient{binary: "docker", host: host}
}

func (c *SimpleClient) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	if c.host != "" {
		cmd.Env = append(os.Environ(), "DOCKER_HOST="+c.host)
	}
	return cmd
}

// output runs a command and returns trimmed stdout, folding stderr into the error.
func (c *SimpleClient) output(ctx context.Context, args ...string) (string, error) {
	cmd := c.command(ctx, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("docker %s failed: %w\nOutput: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(string(out)), nil
}

// stream runs a command and forwards every stdout line as progress.
func (c *SimpleClient) stream(ctx context.Context, onProgress ProgressFunc, args ...string) error {
	cmd := c.command(ctx, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("docker %s pipe failed: %w", args[0], err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("docker %s start failed: %w", args[0], err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxProgressLine)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			onProgress.emit(parseProgressLine(line))
		}
	}
	scanErr := scanner.Err()
	if scanErr != nil {
		// The command blocks on a full pipe until stdout is drained.
		_, _ = io.Copy(io.Discard, stdout)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("docker %s failed: %w\nOutput: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	if scanErr != nil {
		return fmt.Errorf("docker %s output: %w", args[0], scanErr)
	}
	return nil
}

// parseProgressLine splits "<layer>: <status>" pull lines; summary lines and
// build output are passed through as status.
func parseProgressLine(line string) Progress {
	id, status, ok := strings.Cut(line, ": ")
	if ok && id != "Digest" && id != "Status" && !strings.ContainsAny(id, " \t") {
		return Progress{ID: id, Status: status}
	}
	return Progress{Status: line}
}

// ImageExists checks the local image store
func (c *SimpleClient) ImageExists(ctx context.Context, ref image.Reference) (bool, error) {
	out, err := c.output(ctx, "image", "ls", "-q", "--filter", "reference="+ref.LocalFilter())
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// PullImage pulls a Docker image
func (c *SimpleClient) PullImage(ctx context.Context, ref image.Reference, onProgress ProgressFunc) error {
	return c.stream(ctx, onProgress, "pull", ref.String())
}

// BuildImage builds an image from a local context directory
func (c *SimpleClient) BuildImage(ctx context.Context, opts BuildOptions, onProgress ProgressFunc) error {
	args := []string{"build", "--progress", "plain", "-t", opts.Tag}
	if opts.Dockerfile != "" {
		args = append(args, "-f", filepath.Join(opts.ContextDir, opts.Dockerfile))
	}
	for k, v := range opts.Labels {
		args = append(args, "--label", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, opts.ContextDir)
	return c.stream(ctx, onProgress, args...)
}

// CreateContainer creates a container
func (c *SimpleClient) CreateContainer(ctx context.Context, opts ContainerOptions) (string, error) {
	args := []string{"create", "--publish-all"}

	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}

	// Add port mappings
	for spec, hostPort := range opts.Ports {
		if hostPort != "" {
			args = append(args, "-p", fmt.Sprintf("%s:%s", hostPort, spec))
		} else {
			args = append(args, "-p", spec)
		}
	}

	// Add volumes
	for _, v := range opts.Volumes {
		args = append(args, "-v", v)
	}

	// Add environment variables
	for _, env := range opts.Env {
		args = append(args, "-e", env)
	}

	// Add labels
	for k, v := range opts.Labels {
		args = append(args, "--label", fmt.Sprintf("%s=%s", k, v))
	}

	if opts.StopSignal != "" {
		args = append(args, "--stop-signal", opts.StopSignal)
	}

	// Add image and command
	args = append(args, opts.Image)
	args = append(args, opts.Cmd...)

	// Container ID is the output
	return c.output(ctx, args...)
}

// StartContainer starts a created container
func (c *SimpleClient) StartContainer(ctx context.Context, containerID string) error {
	_, err := c.output(ctx, "start", containerID)
	return err
}

// StopContainer stops a container, optionally with a specific signal
func (c *SimpleClient) StopContainer(ctx context.Context, containerID string, signal string) error {
	args := []string{"stop"}
	if signal != "" {
		args = append(args, "--signal", signal)
	}
	args = append(args, containerID)
	_, err := c.output(ctx, args...)
	return err
}

// inspectJSON mirrors the fields of `docker inspect` this client reads.
type inspectJSON struct {
	ID    string `json:"Id"`
	Name  string `json:"Name"`
	State *struct {
		Status string `json:"Status"`
		Health *struct {
			Status string `json:"Status"`
		} `json:"Health"`
	} `json:"State"`
	NetworkSettings *struct {
		Ports map[string][]struct {
			HostIP   string `json:"HostIp"`
			HostPort string `json:"HostPort"`
		} `json:"Ports"`
	} `json:"NetworkSettings"`
}

// InspectContainer gets container details
func (c *SimpleClient) InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error) {
	out, err := c.output(ctx, "inspect", "--type", "container", containerID)
	if err != nil {
		return nil, err
	}
	return parseInspect([]byte(out))
}

func parseInspect(data []byte) (*ContainerInfo, error) {
	var items []inspectJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode docker inspect: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("docker inspect returned no containers")
	}

	it := items[0]
	info := &ContainerInfo{ID: it.ID, Name: strings.TrimPrefix(it.Name, "/")}
	if it.State != nil {
		info.State = it.State.Status
		if it.State.Health != nil {
			info.Health = it.State.Health.Status
		}
	}
	if it.NetworkSettings != nil && it.NetworkSettings.Ports != nil {
		info.Ports = make(map[string][]PortBinding, len(it.NetworkSettings.Ports))
		for spec, bindings := range it.NetworkSettings.Ports {
			converted := make([]PortBinding, 0, len(bindings))
			for _, b := range bindings {
				converted = append(converted, PortBinding{HostIP: b.HostIP, HostPort: b.HostPort})
			}
			info.Ports[spec] = converted
		}
	}
	return info, nil
}

// ContainerLogs gets the complete container logs, stdout and stderr interleaved
func (c *SimpleClient) ContainerLogs(ctx context.Context, containerID string) (string, error) {
	cmd := c.command(ctx, "logs", containerID)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker logs failed: %w", err)
	}
	return string(output), nil
}

// psJSON is one line of `docker ps --format '{{json .}}'`.
type psJSON struct {
	ID     string `json:"ID"`
	Names  string `json:"Names"`
	Image  string `json:"Image"`
	State  string `json:"State"`
	Labels string `json:"Labels"`
}

// ListContainers lists managed containers with given labels
func (c *SimpleClient) ListContainers(ctx context.Context, labels map[string]string) ([]ContainerSummary, error) {
	args := []string{"ps", "-a", "--no-trunc", "--format", "{{json .}}", "--filter", "label=" + LabelManaged + "=true"}
	for k, v := range labels {
		args = append(args, "--filter", fmt.Sprintf("label=%s=%s", k, v))
	}

	out, err := c.output(ctx, args...)
	if err != nil {
		return nil, err
	}
	return parsePS(out)
}

func parsePS(out string) ([]ContainerSummary, error) {
	var containers []ContainerSummary
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var ps psJSON
		if err := json.Unmarshal([]byte(line), &ps); err != nil {
			return nil, fmt.Errorf("decode docker ps line: %w", err)
		}
		containers = append(containers, ContainerSummary{
			ID:     ps.ID,
			Name:   ps.Names,
			Image:  ps.Image,
			State:  ps.State,
			Labels: parseLabelList(ps.Labels),
		})
	}
	return containers, nil
}

// parseLabelList parses docker's "k=v,k=v" label rendering.
func parseLabelList(s string) map[string]string {
	labels := map[string]string{}
	for _, kv := range strings.Split(s, ",") {
		if k, v, ok := strings.Cut(kv, "="); ok {
			labels[k] = v
		}
	}
	return labels
}

// RemoveContainer force-removes a container; a missing container is ignored
func (c *SimpleClient) RemoveContainer(ctx context.Context, containerID string) error {
	_, err := c.output(ctx, "rm", "-f", "-v", containerID)
	if err != nil && strings.Contains(err.Error(), "No such container") {
		return nil
	}
	return err
}

// Check verifies that the docker binary runs and reaches the daemon.
func (c *SimpleClient) Check(ctx context.Context) error {
	if _, err := c.output(ctx, "version"); err != nil {
		return fmt.Errorf("docker is not available: %w", err)
	}
	return nil
}
