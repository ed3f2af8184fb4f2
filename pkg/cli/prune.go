package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jguan/throwaway/pkg/infra/store"
)

// pruneConcurrency bounds parallel container removals.
const pruneConcurrency = 4

func NewPruneCommand(root *RootCommand) *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove leftover throwaway containers",
		Long: `Force-remove every container created by throwaway, for example after a
test process crashed before it could clean up.`,
		Example: `  throwaway prune
  throwaway prune --session 1f0c6c1e-9a0d-4a43-9d3c-2f1d1d5b9f00`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(cmd.Context(), root, session)
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "Only containers of this session")

	return cmd
}

func runPrune(ctx context.Context, root *RootCommand, session string) error {
	client := root.Client()
	summaries, err := client.ListContainers(ctx, sessionLabels(session))
	if err != nil {
		return fmt.Errorf("list containers: %w", err)
	}

	var removed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pruneConcurrency)
	for _, s := range summaries {
		g.Go(func() error {
			if err := client.RemoveContainer(gctx, s.ID); err != nil {
				return fmt.Errorf("remove %s: %w", s.Name, err)
			}
			removed.Add(1)
			markRemoved(gctx, root.Store(), s.ID)
			return nil
		})
	}
	err = g.Wait()

	PrintSuccess(fmt.Sprintf("Removed %d of %d container(s)", removed.Load(), len(summaries)), root.OutputOptions())
	return err
}

func markRemoved(ctx context.Context, s store.FixtureStore, id string) {
	f, err := s.Get(ctx, id)
	if errors.Is(err, store.ErrFixtureNotFound) {
		return
	}
	if err != nil {
		slog.Warn("fixture ledger read failed", "id", id, "error", err)
		return
	}
	f.Status = store.StatusRemoved
	f.Ports = nil
	f.UpdatedAt = time.Now().Unix()
	if err := s.Record(ctx, f); err != nil {
		slog.Warn("fixture ledger write failed", "id", id, "error", err)
	}
}
