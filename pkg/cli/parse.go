package cli

import (
	"github.com/spf13/cobra"

	"github.com/jguan/throwaway/pkg/image"
)

func NewParseCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <image>...",
		Short: "Parse image references",
		Long:  "Split image references into registry, repository and version without contacting any registry.",
		Example: `  throwaway parse postgres:16
  throwaway parse -o json registry.example.com:5000/team/app@sha256:0123456789abcdef0123456789abcdef`,
		Args:               cobra.MinimumNArgs(1),
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			root.opts.Format = OutputFormat(root.formatStr)
			return runParse(root, args)
		},
	}

	return cmd
}

type referenceView struct {
	Input      string `json:"input" yaml:"input"`
	Registry   string `json:"registry" yaml:"registry"`
	Repository string `json:"repository" yaml:"repository"`
	Version    string `json:"version" yaml:"version"`
	Value      string `json:"value" yaml:"value"`
}

func runParse(root *RootCommand, args []string) error {
	views := make([]referenceView, 0, len(args))
	for _, raw := range args {
		ref, err := image.Parse(raw)
		if err != nil {
			return err
		}
		views = append(views, referenceView{
			Input:      raw,
			Registry:   ref.Registry,
			Repository: ref.Repository,
			Version:    ref.Version.Kind.String(),
			Value:      ref.Version.Value,
		})
	}
	return PrintOutput(views, root.OutputOptions())
}
