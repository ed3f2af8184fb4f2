package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jguan/throwaway/pkg/infra/store"
)

type historyOptions struct {
	session string
	status  string
	limit   int
}

func NewHistoryCommand(root *RootCommand) *cobra.Command {
	opts := historyOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the fixture ledger",
		Long:  "Show fixtures recorded by previous runs, newest first.",
		Example: `  throwaway history
  throwaway history --status failed -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.session, "session", "", "Only fixtures of this session")
	cmd.Flags().StringVar(&opts.status, "status", "", "Only fixtures in this status (created, ready, failed, stopped, killed, removed)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "Maximum number of rows")

	return cmd
}

type historyRow struct {
	Name    string `json:"name" yaml:"name"`
	Image   string `json:"image" yaml:"image"`
	Status  string `json:"status" yaml:"status"`
	Ports   string `json:"ports" yaml:"ports"`
	Updated string `json:"updated" yaml:"updated"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

func runHistory(ctx context.Context, root *RootCommand, opts historyOptions) error {
	fixtures, total, err := root.Store().List(ctx, store.FixtureFilter{
		Session: opts.session,
		Status:  store.FixtureStatus(opts.status),
		Limit:   opts.limit,
	})
	if err != nil {
		return fmt.Errorf("list fixtures: %w", err)
	}

	if root.OutputOptions().Format != OutputTable {
		return PrintOutput(fixtures, root.OutputOptions())
	}

	rows := make([]historyRow, 0, len(fixtures))
	for _, f := range fixtures {
		rows = append(rows, historyRow{
			Name:    f.Name,
			Image:   f.Image,
			Status:  string(f.Status),
			Ports:   formatValue(f.Ports),
			Updated: time.Unix(f.UpdatedAt, 0).Format(time.DateTime),
			Error:   f.Error,
		})
	}
	if err := PrintOutput(rows, root.OutputOptions()); err != nil {
		return err
	}
	if total > len(fixtures) && !root.OutputOptions().Quiet {
		fmt.Fprintf(root.OutputOptions().Writer, "(%d of %d shown)\n", len(fixtures), total)
	}
	return nil
}
