package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jguan/throwaway/pkg/container"
)

type Config struct {
	General GeneralConfig `toml:"general"`
	Docker  DockerConfig  `toml:"docker"`
	Fixture FixtureConfig `toml:"fixture"`
	Store   StoreConfig   `toml:"store"`
	Logging LoggingConfig `toml:"logging"`
}

type GeneralConfig struct {
	DataDir string `toml:"data_dir"`
}

// DockerConfig selects how the runtime is reached.
type DockerConfig struct {
	// Backend is "sdk" (Engine API) or "cli" (docker binary).
	Backend string `toml:"backend"`
	// Host overrides DOCKER_HOST when set.
	Host string `toml:"host"`
}

// FixtureConfig holds defaults applied to every fixture that does not set
// its own value.
type FixtureConfig struct {
	StartTimeout  string        `toml:"start_timeout"`
	PollInterval  string        `toml:"poll_interval"`
	StopSignal    string        `toml:"stop_signal"`
	StartTimeoutD time.Duration `toml:"-"`
	PollIntervalD time.Duration `toml:"-"`
}

// StoreConfig controls the local ledger of started fixtures.
type StoreConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".throwaway")

	return &Config{
		General: GeneralConfig{
			DataDir: dataDir,
		},
		Docker: DockerConfig{
			Backend: "sdk",
		},
		Fixture: FixtureConfig{
			StartTimeout: "30s",
			PollInterval: "100ms",
		},
		Store: StoreConfig{
			Enabled: true,
			Path:    filepath.Join(dataDir, "fixtures.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func LoadFromFile(path string) (*Config, error) {
	expandedPath, err := expandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expand path: %w", err)
	}

	data, err := os.ReadFile(expandedPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("decode TOML: %w", err)
	}

	if err := cfg.postProcess(); err != nil {
		return nil, fmt.Errorf("post process config: %w", err)
	}

	return cfg, nil
}

func (c *Config) postProcess() error {
	var err error

	if c.Fixture.StartTimeoutD, err = container.ParseDuration(c.Fixture.StartTimeout); err != nil {
		return fmt.Errorf("parse fixture.start_timeout: %w", err)
	}

	if c.Fixture.PollIntervalD, err = time.ParseDuration(c.Fixture.PollInterval); err != nil {
		return fmt.Errorf("parse fixture.poll_interval: %w", err)
	}

	if c.Fixture.StopSignal != "" {
		if c.Fixture.StopSignal, err = container.NormalizeSignal(c.Fixture.StopSignal); err != nil {
			return fmt.Errorf("parse fixture.stop_signal: %w", err)
		}
	}

	c.General.DataDir, err = expandPath(c.General.DataDir)
	if err != nil {
		return fmt.Errorf("expand general.data_dir: %w", err)
	}

	c.Store.Path, err = expandPath(c.Store.Path)
	if err != nil {
		return fmt.Errorf("expand store.path: %w", err)
	}

	c.Logging.File, err = expandPath(c.Logging.File)
	if err != nil {
		return fmt.Errorf("expand logging.file: %w", err)
	}

	return nil
}

func (c *Config) Validate() error {
	validBackends := map[string]bool{"sdk": true, "cli": true}
	if !validBackends[strings.ToLower(c.Docker.Backend)] {
		return fmt.Errorf("invalid docker backend: %s (valid: sdk, cli)", c.Docker.Backend)
	}

	if c.Fixture.PollIntervalD <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.Fixture.PollInterval)
	}

	if c.Fixture.PollIntervalD > c.Fixture.StartTimeoutD {
		return fmt.Errorf("poll_interval (%s) exceeds start_timeout (%s)", c.Fixture.PollInterval, c.Fixture.StartTimeout)
	}

	if c.Store.Enabled && c.Store.Path == "" {
		return fmt.Errorf("store.path is required when the store is enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid logging level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid logging format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}

func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("THROWAWAY_DATA_DIR"); v != "" {
		cfg.General.DataDir = v
	}
	if v := os.Getenv("THROWAWAY_DOCKER_BACKEND"); v != "" {
		cfg.Docker.Backend = v
	}
	if v := os.Getenv("THROWAWAY_DOCKER_HOST"); v != "" {
		cfg.Docker.Host = v
	}
	if v := os.Getenv("THROWAWAY_START_TIMEOUT"); v != "" {
		cfg.Fixture.StartTimeout = v
	}
	if v := os.Getenv("THROWAWAY_POLL_INTERVAL"); v != "" {
		cfg.Fixture.PollInterval = v
	}
	if v := os.Getenv("THROWAWAY_STOP_SIGNAL"); v != "" {
		cfg.Fixture.StopSignal = v
	}
	if v := os.Getenv("THROWAWAY_STORE_ENABLED"); v != "" {
		cfg.Store.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("THROWAWAY_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("THROWAWAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("THROWAWAY_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("THROWAWAY_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get user home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}

	return path, nil
}

func Load(configPath string) (*Config, error) {
	var cfg *Config
	var err error

	if configPath != "" {
		cfg, err = LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", configPath, err)
		}
	} else {
		cfg = Default()
	}

	ApplyEnvOverrides(cfg)

	if err := cfg.postProcess(); err != nil {
		return nil, fmt.Errorf("post process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}
