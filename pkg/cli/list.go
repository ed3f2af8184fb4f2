package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jguan/throwaway/pkg/container"
	"github.com/jguan/throwaway/pkg/infra/docker"
)

func NewListCommand(root *RootCommand) *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list", "ps"},
		Short:   "List containers created by throwaway",
		Long:    "List every container carrying the throwaway label, running or not.",
		Example: `  throwaway ls
  throwaway ls --session 1f0c6c1e-9a0d-4a43-9d3c-2f1d1d5b9f00`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), root, session)
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "Only containers of this session")

	return cmd
}

type containerRow struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Image   string `json:"image" yaml:"image"`
	State   string `json:"state" yaml:"state"`
	Session string `json:"session" yaml:"session"`
}

func sessionLabels(session string) map[string]string {
	if session == "" {
		return nil
	}
	return map[string]string{docker.LabelSession: session}
}

func runList(ctx context.Context, root *RootCommand, session string) error {
	summaries, err := root.Client().ListContainers(ctx, sessionLabels(session))
	if err != nil {
		return fmt.Errorf("list containers: %w", err)
	}

	rows := make([]containerRow, 0, len(summaries))
	for _, s := range summaries {
		id := s.ID
		if root.OutputOptions().Format == OutputTable && len(id) > 12 {
			id = id[:12]
		}
		sess := s.Labels[docker.LabelSession]
		if sess == container.SessionID() {
			sess += " (current)"
		}
		rows = append(rows, containerRow{
			ID:      id,
			Name:    s.Name,
			Image:   s.Image,
			State:   s.State,
			Session: sess,
		})
	}
	return PrintOutput(rows, root.OutputOptions())
}
