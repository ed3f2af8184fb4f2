package fixture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
fixtures:
  - name: db
    image: postgres:16
    env:
      POSTGRES_PASSWORD: secret
    ports: ["5432/tcp", "18080:8080"]
    command: [postgres, -c, fsync=off]
    wait_for_log: "ready to accept connections"
    start_timeout: 1 minute
    stop_signal: int
  - name: cache
    image: redis
    ports: ["6379"]
    labels:
      team: core
    wait_for_health: true
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, f.Fixtures, 2)
	assert.Equal(t, "db", f.Fixtures[0].Name)
	assert.Equal(t, []string{"postgres", "-c", "fsync=off"}, f.Fixtures[0].Command)
	assert.True(t, f.Fixtures[1].WaitForHealth)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errText string
	}{
		{"bad yaml", "fixtures: [", "decode YAML"},
		{"empty", "fixtures: []", "no fixtures defined"},
		{"missing name", "fixtures:\n  - image: redis", "name is required"},
		{"missing image", "fixtures:\n  - name: x", "image is required"},
		{"duplicate", "fixtures:\n  - {name: x, image: a}\n  - {name: x, image: b}", "duplicate name"},
		{"two waits", "fixtures:\n  - {name: x, image: a, wait_for_log: up, wait_for_health: true}", "exclusive"},
		{"build without context", "fixtures:\n  - {name: x, image: a, build: {dockerfile: Dockerfile}}", "build.context"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestBuilders(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	builders, err := f.Builders(Defaults{StartTimeout: "10s", PollInterval: 50 * time.Millisecond, StopSignal: "SIGQUIT"})
	require.NoError(t, err)
	require.Len(t, builders, 2)

	db, err := builders[0].Spec()
	require.NoError(t, err)
	assert.Equal(t, "postgres:16", db.Image.String())
	assert.Equal(t, map[string]string{"POSTGRES_PASSWORD": "secret"}, db.Env)
	assert.Equal(t, map[string]uint16{"5432/tcp": 0, "8080/tcp": 18080}, db.ExposedPorts)
	assert.Equal(t, time.Minute, db.StartTimeout)
	assert.Equal(t, 50*time.Millisecond, db.PollInterval)
	assert.Equal(t, "SIGINT", db.StopSignal)
	require.NotNil(t, db.Ready.Pattern())
	assert.Equal(t, "ready to accept connections", db.Ready.Pattern().String())

	cache, err := builders[1].Spec()
	require.NoError(t, err)
	assert.Equal(t, map[string]uint16{"6379/tcp": 0}, cache.ExposedPorts)
	assert.Equal(t, map[string]string{"team": "core"}, cache.Labels)
	assert.Equal(t, 10*time.Second, cache.StartTimeout)
	assert.Equal(t, "SIGQUIT", cache.StopSignal)
	assert.Equal(t, "health-check", cache.Ready.String())
}

func TestBuilders_ReportsFixtureName(t *testing.T) {
	tests := map[string]string{
		"bad image":   "fixtures:\n  - {name: broken, image: 'repo:rust:invalid'}",
		"bad port":    "fixtures:\n  - {name: broken, image: redis, ports: ['http']}",
		"host ip":     "fixtures:\n  - {name: broken, image: redis, ports: ['127.0.0.1:6379:6379']}",
		"bad timeout": "fixtures:\n  - {name: broken, image: redis, start_timeout: soon}",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			f, err := Parse([]byte(content))
			require.NoError(t, err)
			_, err = f.Builders(Defaults{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), `fixture "broken"`)
		})
	}
}

func TestLoad_ResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "app"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.env"), []byte("MODE=test\n"), 0o644))
	content := `
fixtures:
  - name: app
    image: app:dev
    env_file: app.env
    build:
      context: app
`
	path := filepath.Join(dir, "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	builders, err := f.Builders(Defaults{})
	require.NoError(t, err)

	spec, err := builders[0].Spec()
	require.NoError(t, err)
	assert.Equal(t, "test", spec.Env["MODE"])
	require.NotNil(t, spec.Image.Build)
	assert.Equal(t, filepath.Join(dir, "app"), spec.Image.Build.ContextDir)
	assert.Equal(t, "Dockerfile", spec.Image.Build.Dockerfile)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
