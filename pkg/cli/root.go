package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jguan/throwaway/pkg/config"
	"github.com/jguan/throwaway/pkg/infra/docker"
	"github.com/jguan/throwaway/pkg/infra/logger"
	"github.com/jguan/throwaway/pkg/infra/store"
)

var (
	cliVersion   = "dev"
	cliBuildDate = "unknown"
	cliGitCommit = "unknown"
)

type RootCommand struct {
	cmd       *cobra.Command
	cfg       *config.Config
	client    docker.Client
	store     store.FixtureStore
	opts      *OutputOptions
	formatStr string
	logLevel  string
	closers   []io.Closer
}

func NewRootCommand() *RootCommand {
	root := &RootCommand{
		opts: NewOutputOptions(),
	}

	cmd := &cobra.Command{
		Use:   "throwaway",
		Short: "Throwaway - disposable containers for tests",
		Long: `Throwaway starts short-lived containers (databases, caches, brokers)
for integration tests, waits until they are ready, reports the host
ports they were published on and removes them afterwards.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  root.persistentPreRunE,
		PersistentPostRunE: root.persistentPostRunE,
	}

	pflags := cmd.PersistentFlags()

	pflags.StringVarP(&root.formatStr, "output", "o", "table", "Output format (table, json, yaml)")
	pflags.BoolVarP(&root.opts.Quiet, "quiet", "q", false, "Suppress output")
	pflags.String("config", "", "Config file path (default: none, built-in defaults)")
	pflags.StringVar(&root.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	viper.BindPFlag("output", pflags.Lookup("output"))
	viper.BindPFlag("quiet", pflags.Lookup("quiet"))
	viper.BindPFlag("config", pflags.Lookup("config"))

	root.cmd = cmd

	root.addSubCommands()

	return root
}

func (r *RootCommand) persistentPreRunE(cmd *cobra.Command, args []string) error {
	switch OutputFormat(r.formatStr) {
	case OutputTable, OutputJSON, OutputYAML:
		r.opts.Format = OutputFormat(r.formatStr)
	default:
		return fmt.Errorf("unknown output format %q", r.formatStr)
	}

	cfgPath := viper.GetString("config")
	var err error
	r.cfg, err = config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if r.logLevel != "" {
		r.cfg.Logging.Level = r.logLevel
	}

	if err := r.initLogger(); err != nil {
		return err
	}

	if r.client == nil {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		r.client, err = r.newClient(ctx)
		if err != nil {
			return fmt.Errorf("connect to docker: %w", err)
		}
	}

	if r.store == nil {
		r.store = r.openStore()
		r.closers = append(r.closers, r.store)
	}

	return nil
}

func (r *RootCommand) initLogger() error {
	logCfg := logger.Config{
		Level:  r.cfg.Logging.Level,
		Format: r.cfg.Logging.Format,
	}
	if r.cfg.Logging.File != "" {
		f, err := logger.OpenFile(r.cfg.Logging.File)
		if err != nil {
			return err
		}
		r.closers = append(r.closers, f)
		logCfg.Output = f
	}
	logger.Reset()
	logger.Init(logCfg)
	return nil
}

func (r *RootCommand) newClient(ctx context.Context) (docker.Client, error) {
	switch strings.ToLower(r.cfg.Docker.Backend) {
	case "cli":
		c := docker.NewSimpleClient(r.cfg.Docker.Host)
		if err := c.Check(ctx); err != nil {
			return nil, err
		}
		return c, nil
	default:
		c, err := docker.NewSDKClient(r.cfg.Docker.Host)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, c)
		return c, nil
	}
}

func (r *RootCommand) openStore() store.FixtureStore {
	if !r.cfg.Store.Enabled {
		return store.NewMemoryStore()
	}
	sqliteStore, err := store.NewSQLiteStore(r.cfg.Store.Path)
	if err != nil {
		slog.Warn("failed to open fixture ledger, using memory store", "path", r.cfg.Store.Path, "error", err)
		return store.NewMemoryStore()
	}
	slog.Debug("using SQLite fixture ledger", "path", r.cfg.Store.Path)
	return sqliteStore
}

func (r *RootCommand) persistentPostRunE(cmd *cobra.Command, args []string) error {
	r.close()
	return nil
}

func (r *RootCommand) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			slog.Debug("close failed", "error", err)
		}
	}
	r.closers = nil
}

func (r *RootCommand) addSubCommands() {
	r.cmd.AddCommand(NewVersionCommand(r))
	r.cmd.AddCommand(NewParseCommand(r))
	r.cmd.AddCommand(NewRunCommand(r))
	r.cmd.AddCommand(NewListCommand(r))
	r.cmd.AddCommand(NewHistoryCommand(r))
	r.cmd.AddCommand(NewPruneCommand(r))
}

func (r *RootCommand) Command() *cobra.Command {
	return r.cmd
}

func (r *RootCommand) Config() *config.Config {
	return r.cfg
}

func (r *RootCommand) Client() docker.Client {
	return r.client
}

// SetClient replaces the runtime client; the pre-run hook keeps it.
func (r *RootCommand) SetClient(c docker.Client) {
	r.client = c
}

func (r *RootCommand) Store() store.FixtureStore {
	return r.store
}

// SetStore replaces the fixture ledger; the pre-run hook keeps it.
func (r *RootCommand) SetStore(s store.FixtureStore) {
	r.store = s
}

func (r *RootCommand) OutputOptions() *OutputOptions {
	return r.opts
}

func (r *RootCommand) SetOutputWriter(w io.Writer) {
	r.opts.Writer = w
	r.cmd.SetOut(w)
}

func (r *RootCommand) Execute() error {
	return r.cmd.Execute()
}

func (r *RootCommand) ExecuteContext(ctx context.Context) error {
	return r.cmd.ExecuteContext(ctx)
}

func Execute() {
	root := NewRootCommand()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	err := root.ExecuteContext(ctx)
	root.close()
	if err != nil {
		PrintError(err, root.OutputOptions())
		os.Exit(1)
	}
}

func SetVersion(version, buildDate, gitCommit string) {
	cliVersion = version
	cliBuildDate = buildDate
	cliGitCommit = gitCommit
}

func GetVersion() string {
	return cliVersion
}

func GetBuildDate() string {
	return cliBuildDate
}

func GetGitCommit() string {
	return cliGitCommit
}
