// Package fixture loads fixtures files: YAML documents declaring the
// containers a test run needs.
//
//	fixtures:
//	  - name: db
//	    image: postgres:16
//	    env: {POSTGRES_PASSWORD: test}
//	    ports: ["5432/tcp"]
//	    wait_for_log: "ready to accept connections"
package fixture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/docker/go-connections/nat"
	"gopkg.in/yaml.v3"

	"github.com/jguan/throwaway/pkg/container"
)

// File is a parsed fixtures file.
type File struct {
	Fixtures []Definition `yaml:"fixtures"`

	// dir is the directory relative paths are resolved against.
	dir string
}

// Build points at a local image build context.
type Build struct {
	Context    string `yaml:"context"`
	Dockerfile string `yaml:"dockerfile"`
}

// Definition declares one fixture.
type Definition struct {
	Name    string            `yaml:"name"`
	Image   string            `yaml:"image"`
	Env     map[string]string `yaml:"env"`
	EnvFile string            `yaml:"env_file"`
	// Ports are "5432/tcp" for a runtime-assigned host port or
	// "15432:5432/tcp" for a fixed one.
	Ports   []string          `yaml:"ports"`
	Volumes []string          `yaml:"volumes"`
	Labels  map[string]string `yaml:"labels"`
	Command []string          `yaml:"command"`

	WaitForLog    string `yaml:"wait_for_log"`
	WaitForHealth bool   `yaml:"wait_for_health"`
	StartTimeout  string `yaml:"start_timeout"`
	StopSignal    string `yaml:"stop_signal"`
	Build         *Build `yaml:"build"`
}

// Defaults are applied to every definition that leaves the field unset.
type Defaults struct {
	StartTimeout string
	PollInterval time.Duration
	StopSignal   string
}

// Load reads and validates a fixtures file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.dir = filepath.Dir(path)
	return f, nil
}

// Parse decodes and validates a fixtures document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode YAML: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the structure of the file. Field values such as image
// references or durations are checked when building.
func (f *File) Validate() error {
	if len(f.Fixtures) == 0 {
		return errors.New("no fixtures defined")
	}
	seen := make(map[string]bool, len(f.Fixtures))
	var errs []error
	for i, d := range f.Fixtures {
		switch {
		case d.Name == "":
			errs = append(errs, fmt.Errorf("fixture #%d: name is required", i+1))
		case seen[d.Name]:
			errs = append(errs, fmt.Errorf("fixture %q: duplicate name", d.Name))
		}
		seen[d.Name] = true
		if d.Image == "" {
			errs = append(errs, fmt.Errorf("fixture %q: image is required", d.Name))
		}
		if d.WaitForLog != "" && d.WaitForHealth {
			errs = append(errs, fmt.Errorf("fixture %q: wait_for_log and wait_for_health are exclusive", d.Name))
		}
		if d.Build != nil && d.Build.Context == "" {
			errs = append(errs, fmt.Errorf("fixture %q: build.context is required", d.Name))
		}
	}
	return errors.Join(errs...)
}

// Builders returns one container.Builder per definition, in file order.
func (f *File) Builders(defaults Defaults) ([]container.Builder, error) {
	out := make([]container.Builder, 0, len(f.Fixtures))
	for _, d := range f.Fixtures {
		b, err := d.builder(f.dir, defaults)
		if err != nil {
			return nil, fmt.Errorf("fixture %q: %w", d.Name, err)
		}
		out = append(out, b)
	}
	return out, nil
}

func (d Definition) builder(dir string, defaults Defaults) (container.Builder, error) {
	b := container.FromImage(d.Image)

	if d.Build != nil {
		b = b.WithBuildContext(resolve(dir, d.Build.Context), d.Build.Dockerfile)
	}
	if d.EnvFile != "" {
		b = b.WithEnvFile(resolve(dir, d.EnvFile))
	}
	for k, v := range d.Env {
		b = b.AddEnv(k, v)
	}
	for _, p := range d.Ports {
		mappings, err := nat.ParsePortSpec(p)
		if err != nil {
			return b, fmt.Errorf("invalid port %q: %w", p, err)
		}
		for _, m := range mappings {
			if m.Binding.HostIP != "" {
				return b, fmt.Errorf("invalid port %q: host IP bindings are not supported", p)
			}
			var host uint64
			if m.Binding.HostPort != "" {
				if host, err = strconv.ParseUint(m.Binding.HostPort, 10, 16); err != nil {
					return b, fmt.Errorf("invalid port %q: %w", p, err)
				}
			}
			b = b.AddExposedPort(uint16(host), string(m.Port))
		}
	}
	for _, v := range d.Volumes {
		b = b.AddVolume(v)
	}
	for k, v := range d.Labels {
		b = b.AddLabel(k, v)
	}
	if len(d.Command) > 0 {
		b = b.WithCommand(d.Command...)
	}

	switch {
	case d.WaitForLog != "":
		b = b.WaitForLogOnStartup(d.WaitForLog)
	case d.WaitForHealth:
		b = b.WaitForHealthCheck()
	}

	if timeout := firstNonEmpty(d.StartTimeout, defaults.StartTimeout); timeout != "" {
		b = b.WithStartTimeout(timeout)
	}
	if defaults.PollInterval > 0 {
		b = b.WithPollInterval(defaults.PollInterval)
	}
	if sig := firstNonEmpty(d.StopSignal, defaults.StopSignal); sig != "" {
		b = b.WithStopSignal(sig)
	}
	return b, b.Err()
}

func resolve(dir, path string) string {
	if dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
