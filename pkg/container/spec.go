package container

import (
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/jguan/throwaway/pkg/image"
	"github.com/jguan/throwaway/pkg/infra/docker"
)

// DefaultStartTimeout bounds the readiness wait when none is configured.
const DefaultStartTimeout = 30 * time.Second

// Spec is the immutable description of a container to run. It is produced
// by a Builder and never changes once a Container has been created from it.
type Spec struct {
	Image image.Reference
	// Name is an optional container name; the runtime generates one if empty.
	Name string
	Env  map[string]string
	// ExposedPorts maps a canonical port spec ("5432/tcp") to a fixed host
	// port, or 0 for a runtime-assigned one.
	ExposedPorts map[string]uint16
	// Volumes holds "host:container[:mode]" binds or bare container paths.
	Volumes      map[string]struct{}
	Labels       map[string]string
	Command      []string
	Ready        ReadyStrategy
	StartTimeout time.Duration
	PollInterval time.Duration
	// StopSignal is sent by Stop; empty means the image default.
	StopSignal string
}

func newSpec(ref image.Reference) Spec {
	return Spec{
		Image:        ref,
		Env:          make(map[string]string),
		ExposedPorts: make(map[string]uint16),
		Volumes:      make(map[string]struct{}),
		Labels:       make(map[string]string),
		Ready:        NoWait(),
		StartTimeout: DefaultStartTimeout,
		PollInterval: DefaultPollInterval,
	}
}

// clone returns a deep copy so that two specs never share a map or slice.
func (s Spec) clone() Spec {
	c := s
	c.Env = maps.Clone(s.Env)
	c.ExposedPorts = maps.Clone(s.ExposedPorts)
	c.Volumes = maps.Clone(s.Volumes)
	c.Labels = maps.Clone(s.Labels)
	c.Command = slices.Clone(s.Command)
	if s.Image.Build != nil {
		b := *s.Image.Build
		c.Image.Build = &b
	}
	return c
}

// Clone is the exported deep copy.
func (s Spec) Clone() Spec {
	return s.clone()
}

// PortSpecs returns the exposed port specs in sorted order.
func (s Spec) PortSpecs() []string {
	return slices.Sorted(maps.Keys(s.ExposedPorts))
}

func (s Spec) containerOptions(session string) docker.ContainerOptions {
	opts := docker.ContainerOptions{
		Image:      s.Image.String(),
		Name:       s.Name,
		Cmd:        slices.Clone(s.Command),
		Ports:      make(map[string]string, len(s.ExposedPorts)),
		Labels:     maps.Clone(s.Labels),
		StopSignal: s.StopSignal,
	}
	for _, k := range slices.Sorted(maps.Keys(s.Env)) {
		opts.Env = append(opts.Env, k+"="+s.Env[k])
	}
	for spec, host := range s.ExposedPorts {
		if host == 0 {
			opts.Ports[spec] = ""
		} else {
			opts.Ports[spec] = strconv.Itoa(int(host))
		}
	}
	opts.Volumes = slices.Sorted(maps.Keys(s.Volumes))
	if opts.Labels == nil {
		opts.Labels = make(map[string]string, 2)
	}
	opts.Labels[docker.LabelManaged] = "true"
	opts.Labels[docker.LabelSession] = session
	return opts
}
