package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jguan/throwaway/pkg/container"
	"github.com/jguan/throwaway/pkg/fixture"
	"github.com/jguan/throwaway/pkg/infra/logger"
	"github.com/jguan/throwaway/pkg/infra/metrics"
	"github.com/jguan/throwaway/pkg/infra/store"
)

type runOptions struct {
	file   string
	hold   time.Duration
	detach bool
	kill   bool
	keep   bool
}

func NewRunCommand(root *RootCommand) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the fixtures of a fixtures file",
		Long: `Start every fixture declared in a fixtures file concurrently, wait until
each one is ready and print the host endpoints of their published ports.

The fixtures keep running until the command is interrupted (or --hold
elapses), then they are stopped and removed.`,
		Example: `  # Start fixtures and keep them until Ctrl-C
  throwaway run -f fixtures.yaml

  # Start fixtures for a CI job and leave them running
  throwaway run -f fixtures.yaml --detach -o json

  # Hold fixtures for ten minutes, then kill and remove them
  throwaway run -f fixtures.yaml --hold 10m --kill`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFixtures(cmd.Context(), root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "fixtures.yaml", "Fixtures file")
	cmd.Flags().DurationVar(&opts.hold, "hold", 0, "Tear down after this long instead of waiting for a signal")
	cmd.Flags().BoolVarP(&opts.detach, "detach", "d", false, "Leave the fixtures running and exit")
	cmd.Flags().BoolVar(&opts.kill, "kill", false, "Stop with SIGKILL instead of the stop signal")
	cmd.Flags().BoolVar(&opts.keep, "keep", false, "Stop but do not remove the containers")

	return cmd
}

type fixtureRow struct {
	Name      string            `json:"name" yaml:"name"`
	Image     string            `json:"image" yaml:"image"`
	ID        string            `json:"id" yaml:"id"`
	Container string            `json:"container" yaml:"container"`
	Ports     map[string]uint16 `json:"ports" yaml:"ports" table:"-"`
	Endpoints []string          `json:"endpoints" yaml:"endpoints"`
}

func runFixtures(ctx context.Context, root *RootCommand, opts runOptions) error {
	cfg := root.Config()

	file, err := fixture.Load(opts.file)
	if err != nil {
		return err
	}
	builders, err := file.Builders(fixture.Defaults{
		StartTimeout: cfg.Fixture.StartTimeout,
		PollInterval: cfg.Fixture.PollIntervalD,
		StopSignal:   cfg.Fixture.StopSignal,
	})
	if err != nil {
		return err
	}

	session := container.SessionID()
	ctx = logger.SetSession(ctx, session)
	recorder := store.NewRecorder(root.Store(), session, logger.Default())
	startup := metrics.NewStartupMetrics()
	observers := container.Observers{recorder, startup}

	names := make([]string, len(builders))
	for i, d := range file.Fixtures {
		names[i] = d.Name
	}
	containers := make([]*container.Container, len(builders))

	stopSpinner := startSpinner(root.OutputOptions(), fmt.Sprintf(" Starting %d fixture(s)...", len(builders)))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range builders {
		g.Go(func() error {
			fctx := logger.SetFixture(gctx, names[i])
			c, err := b.
				WithClient(root.Client()).
				WithLogger(logger.Default()).
				WithObserver(observers).
				Create(fctx)
			if err != nil {
				return fmt.Errorf("fixture %q: %w", names[i], err)
			}
			containers[i] = c
			if err := c.Start(fctx); err != nil {
				return fmt.Errorf("fixture %q: %w", names[i], err)
			}
			return nil
		})
	}
	err = g.Wait()
	stopSpinner()

	snap := startup.Snapshot()
	slog.Info("fixture startup finished",
		"started", snap.Started,
		"failed", snap.Failed,
		"avg_startup_ms", snap.AvgStartupMs,
		"max_startup_ms", snap.MaxStartupMs)

	cleanupCtx := context.WithoutCancel(ctx)
	if err != nil {
		if !opts.keep {
			if tErr := teardown(cleanupCtx, names, containers, true, false); tErr != nil {
				slog.Warn("cleanup after failed start", "error", tErr)
			}
		}
		return err
	}

	rows := make([]fixtureRow, len(containers))
	for i, c := range containers {
		rows[i] = newFixtureRow(names[i], c)
	}
	if err := PrintOutput(rows, root.OutputOptions()); err != nil {
		return err
	}

	if opts.detach {
		slog.Info("fixtures left running", "session", session, "count", len(containers))
		return nil
	}

	if opts.hold > 0 {
		timer := time.NewTimer(opts.hold)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	} else {
		<-ctx.Done()
	}

	slog.Info("tearing down fixtures", "count", len(containers))
	return teardown(cleanupCtx, names, containers, opts.kill, opts.keep)
}

func newFixtureRow(name string, c *container.Container) fixtureRow {
	spec := c.Spec()
	row := fixtureRow{
		Name:  name,
		Image: spec.Image.String(),
		ID:    c.ID(),
		Ports: map[string]uint16{},
	}
	state, ok := c.State()
	if !ok {
		return row
	}
	row.Container = state.Name
	row.Ports = state.Ports
	for _, p := range spec.PortSpecs() {
		if port, ok := state.Ports[p]; ok {
			row.Endpoints = append(row.Endpoints, p+"="+net.JoinHostPort("localhost", strconv.Itoa(int(port))))
		}
	}
	return row
}

// teardown stops every created container in parallel and removes it unless
// keep is set.
func teardown(ctx context.Context, names []string, containers []*container.Container, kill, keep bool) error {
	var g errgroup.Group
	for i, c := range containers {
		if c == nil {
			continue
		}
		g.Go(func() error {
			fctx := logger.SetFixture(ctx, names[i])
			var err error
			switch {
			case !keep:
				if !kill {
					// Graceful stop first; Terminate reports what matters.
					_ = c.Stop(fctx)
				}
				err = c.Terminate(fctx)
			case kill:
				err = c.Kill(fctx)
			default:
				err = c.Stop(fctx)
			}
			if err != nil {
				return fmt.Errorf("fixture %q: %w", names[i], err)
			}
			return nil
		})
	}
	return g.Wait()
}

func startSpinner(opts *OutputOptions, suffix string) func() {
	if opts.Quiet || opts.Format != OutputTable {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(opts.errWriter()))
	s.Suffix = suffix
	s.Start()
	return s.Stop
}
