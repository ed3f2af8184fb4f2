package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jguan/throwaway/pkg/container"
)

func NewVersionCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the version, build date, and git commit of throwaway.",
		// version needs neither config nor a runtime connection.
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			root.opts.Format = OutputFormat(root.formatStr)
			printVersion(root.OutputOptions())
		},
	}

	return cmd
}

type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	BuildDate string `json:"buildDate" yaml:"buildDate"`
	GitCommit string `json:"gitCommit" yaml:"gitCommit"`
	Session   string `json:"session" yaml:"session"`
}

func printVersion(opts *OutputOptions) {
	info := versionInfo{
		Version:   cliVersion,
		BuildDate: cliBuildDate,
		GitCommit: cliGitCommit,
		Session:   container.SessionID(),
	}

	if opts.Format == OutputJSON || opts.Format == OutputYAML {
		PrintOutput(info, opts)
		return
	}
	fmt.Fprintf(opts.Writer, "throwaway version %s\n", info.Version)
	fmt.Fprintf(opts.Writer, "  Commit:  %s\n", info.GitCommit)
	fmt.Fprintf(opts.Writer, "  Built:   %s\n", info.BuildDate)
	fmt.Fprintf(opts.Writer, "  Session: %s\n", info.Session)
}
