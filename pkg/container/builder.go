package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/jguan/throwaway/pkg/image"
	"github.com/jguan/throwaway/pkg/infra/docker"
	"github.com/jguan/throwaway/pkg/infra/logger"
)

// Builder assembles a Spec. Every method returns a new Builder and leaves the
// receiver untouched, so a partially configured Builder can be shared and
// extended in several directions.
//
// The first configuration error sticks: later calls are ignored and Spec and
// Create return that error without contacting the runtime.
type Builder struct {
	spec     Spec
	err      error
	client   docker.Client
	logger   *slog.Logger
	observer Observer
}

// FromImage starts a Builder for the image reference raw.
func FromImage(raw string) Builder {
	ref, err := image.Parse(raw)
	if err != nil {
		return Builder{err: &ParseError{Field: "image", Input: raw, Err: err}}
	}
	return FromReference(ref)
}

// FromReference starts a Builder for an already parsed reference.
func FromReference(ref image.Reference) Builder {
	return Builder{spec: newSpec(ref)}
}

// with applies fn to a deep copy of the spec.
func (b Builder) with(field, input string, fn func(s *Spec) error) Builder {
	if b.err != nil {
		return b
	}
	s := b.spec.clone()
	if err := fn(&s); err != nil {
		b.err = &ParseError{Field: field, Input: input, Err: err}
		return b
	}
	b.spec = s
	return b
}

// AddEnv sets an environment variable. A later value for the same key wins.
func (b Builder) AddEnv(key, value string) Builder {
	return b.with("env", key, func(s *Spec) error {
		if key == "" || strings.ContainsAny(key, "= \t\n") {
			return errors.New("env name must be non-empty and contain no '=' or whitespace")
		}
		s.Env[key] = value
		return nil
	})
}

// WithEnvFile merges the variables of a dotenv file. Values already set keep
// being overridable by later AddEnv calls.
func (b Builder) WithEnvFile(path string) Builder {
	return b.with("env file", path, func(s *Spec) error {
		vars, err := godotenv.Read(path)
		if err != nil {
			return err
		}
		for k, v := range vars {
			s.Env[k] = v
		}
		return nil
	})
}

// AddExposedPort publishes a container port. A hostPort of 0 lets the runtime
// choose a free host port.
func (b Builder) AddExposedPort(hostPort uint16, spec string) Builder {
	return b.with("port spec", spec, func(s *Spec) error {
		canonical, err := NormalizePortSpec(spec)
		if err != nil {
			return err
		}
		s.ExposedPorts[canonical] = hostPort
		return nil
	})
}

// AddExposedTCPPort publishes a TCP port on a runtime-assigned host port.
func (b Builder) AddExposedTCPPort(port uint16) Builder {
	return b.AddExposedPort(0, fmt.Sprintf("%d/tcp", port))
}

// AddFixedExposedTCPPort publishes a TCP port on a fixed host port.
func (b Builder) AddFixedExposedTCPPort(hostPort, port uint16) Builder {
	return b.AddExposedPort(hostPort, fmt.Sprintf("%d/tcp", port))
}

// AddVolume mounts a volume: "host:container[:mode]" or a bare container path.
func (b Builder) AddVolume(volume string) Builder {
	return b.with("volume", volume, func(s *Spec) error {
		if strings.TrimSpace(volume) == "" {
			return errors.New("empty volume")
		}
		s.Volumes[volume] = struct{}{}
		return nil
	})
}

// AddLabel sets a container label.
func (b Builder) AddLabel(key, value string) Builder {
	return b.with("label", key, func(s *Spec) error {
		if key == "" {
			return errors.New("empty label key")
		}
		if strings.HasPrefix(key, "throwaway.") {
			return errors.New("the throwaway. label prefix is reserved")
		}
		s.Labels[key] = value
		return nil
	})
}

// WithCommand replaces the image command.
func (b Builder) WithCommand(parts ...string) Builder {
	return b.with("command", strings.Join(parts, " "), func(s *Spec) error {
		s.Command = append([]string(nil), parts...)
		return nil
	})
}

// WithName sets the container name.
func (b Builder) WithName(name string) Builder {
	return b.with("name", name, func(s *Spec) error {
		s.Name = name
		return nil
	})
}

// WaitForLogOnStartup makes Start wait until the container logs match pattern.
func (b Builder) WaitForLogOnStartup(pattern string) Builder {
	return b.with("log pattern", pattern, func(s *Spec) error {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return err
		}
		s.Ready = ForLog(re)
		return nil
	})
}

// WaitForHealthCheck makes Start wait until the runtime reports a health
// status for the container.
func (b Builder) WaitForHealthCheck() Builder {
	return b.with("ready strategy", "health-check", func(s *Spec) error {
		s.Ready = ForHealthCheck()
		return nil
	})
}

// WithoutWait makes Start return as soon as the container is started.
func (b Builder) WithoutWait() Builder {
	return b.with("ready strategy", "none", func(s *Spec) error {
		s.Ready = NoWait()
		return nil
	})
}

// WithStartTimeout bounds the readiness wait. expr accepts Go durations
// ("45s") and spelled out ones ("1 minute 30 seconds").
func (b Builder) WithStartTimeout(expr string) Builder {
	return b.with("start timeout", expr, func(s *Spec) error {
		d, err := ParseDuration(expr)
		if err != nil {
			return err
		}
		s.StartTimeout = d
		return nil
	})
}

// WithPollInterval sets how often readiness is re-checked.
func (b Builder) WithPollInterval(d time.Duration) Builder {
	return b.with("poll interval", d.String(), func(s *Spec) error {
		if d <= 0 {
			return errNonPositiveDur
		}
		s.PollInterval = d
		return nil
	})
}

// WithStopSignal sets the signal Stop sends.
func (b Builder) WithStopSignal(name string) Builder {
	return b.with("stop signal", name, func(s *Spec) error {
		sig, err := NormalizeSignal(name)
		if err != nil {
			return err
		}
		s.StopSignal = sig
		return nil
	})
}

// WithBuildContext builds the image from a local directory instead of
// pulling it. dockerfile is relative to dir and defaults to "Dockerfile".
func (b Builder) WithBuildContext(dir, dockerfile string) Builder {
	return b.with("build context", dir, func(s *Spec) error {
		fi, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return errors.New("not a directory")
		}
		s.Image = s.Image.WithBuild(dir, dockerfile)
		return nil
	})
}

// WithClient sets the runtime client. Without one, Create connects to the
// local Docker daemon through the SDK.
func (b Builder) WithClient(c docker.Client) Builder {
	b.client = c
	return b
}

// WithLogger sets the logger used by the created Container.
func (b Builder) WithLogger(l *slog.Logger) Builder {
	b.logger = l
	return b
}

// WithObserver registers an Observer for lifecycle events.
func (b Builder) WithObserver(o Observer) Builder {
	b.observer = o
	return b
}

// Err returns the sticky configuration error, if any.
func (b Builder) Err() error {
	return b.err
}

// Spec returns a copy of the accumulated Spec.
func (b Builder) Spec() (Spec, error) {
	if b.err != nil {
		return Spec{}, b.err
	}
	return b.spec.clone(), nil
}

// Create makes the image available locally, pulling or building it when
// missing, and creates a stopped container from the Spec.
func (b Builder) Create(ctx context.Context) (*Container, error) {
	spec, err := b.Spec()
	if err != nil {
		return nil, err
	}

	client := b.client
	var owned io.Closer
	if client == nil {
		sdk, err := docker.NewSDKClient("")
		if err != nil {
			return nil, runtimeErr("connect", "", err)
		}
		client, owned = sdk, sdk
	}
	closeOwned := func() {
		if owned != nil {
			_ = owned.Close()
		}
	}
	log := b.logger
	if log == nil {
		log = logger.Default()
	}
	log = logger.FromContext(ctx, log).With("image", spec.Image.String())

	if err := ensureImage(ctx, client, spec.Image, log); err != nil {
		closeOwned()
		return nil, err
	}

	id, err := client.CreateContainer(ctx, spec.containerOptions(SessionID()))
	if err != nil {
		closeOwned()
		return nil, runtimeErr("create", "", err)
	}
	log.Debug("container created", "id", shortID(id))

	c := newContainer(id, spec, client, log, b.observer)
	c.closer = owned
	c.notify(ctx, Event{Type: EventCreated})
	return c, nil
}

func ensureImage(ctx context.Context, client docker.Client, ref image.Reference, log *slog.Logger) error {
	progress := func(p docker.Progress) {
		log.Debug(p.String())
	}

	if ref.NeedsBuild() {
		log.Info("building image", "context", ref.Build.ContextDir, "dockerfile", ref.Build.Dockerfile)
		err := client.BuildImage(ctx, docker.BuildOptions{
			Tag:        ref.String(),
			ContextDir: ref.Build.ContextDir,
			Dockerfile: ref.Build.Dockerfile,
			Labels:     map[string]string{docker.LabelManaged: "true"},
		}, progress)
		return runtimeErr("build", "", err)
	}

	exists, err := client.ImageExists(ctx, ref)
	if err != nil {
		return runtimeErr("image-exists", "", err)
	}
	if exists {
		return nil
	}
	log.Info("pulling image")
	return runtimeErr("pull", "", client.PullImage(ctx, ref, progress))
}
