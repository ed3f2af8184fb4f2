package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jguan/throwaway/pkg/infra/docker"
	"github.com/jguan/throwaway/pkg/infra/store"
)

const fixturesYAML = `
fixtures:
  - name: db
    image: postgres:16
    env:
      POSTGRES_PASSWORD: test
    ports: ["5432/tcp"]
    wait_for_log: "ready to accept connections"
  - name: cache
    image: redis:7
    ports: ["6379/tcp"]
    wait_for_log: "Ready to accept connections"
`

func writeFixtures(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readyLogs(string) (string, error) {
	return "database system is ready to accept connections\nReady to accept connections tcp\n", nil
}

func TestRun_HoldThenTeardown(t *testing.T) {
	tr := newTestRoot(t)
	tr.client.LogsHook = readyLogs
	path := writeFixtures(t, fixturesYAML)

	err := tr.execute("run", "-f", path, "--hold", "10ms", "-o", "json")
	require.NoError(t, err)

	var rows []fixtureRow
	require.NoError(t, json.Unmarshal(tr.out.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "db", rows[0].Name)
	assert.Equal(t, "postgres:16", rows[0].Image)
	require.Len(t, rows[0].Endpoints, 1)
	assert.True(t, strings.HasPrefix(rows[0].Endpoints[0], "5432/tcp=localhost:"))
	assert.Contains(t, rows[1].Ports, "6379/tcp")

	for _, r := range rows {
		_, ok := tr.client.Container(r.ID)
		assert.False(t, ok, "container %s should be removed", r.Name)

		f, err := tr.store.Get(context.Background(), r.ID)
		require.NoError(t, err)
		assert.Equal(t, r.Name, f.Name)
		assert.Equal(t, store.StatusRemoved, f.Status)
	}
}

func TestRun_KeepStopsWithoutRemoving(t *testing.T) {
	tr := newTestRoot(t)
	tr.client.LogsHook = readyLogs
	path := writeFixtures(t, fixturesYAML)

	require.NoError(t, tr.execute("run", "-f", path, "--hold", "1ms", "--keep", "--kill", "-o", "json"))

	var rows []fixtureRow
	require.NoError(t, json.Unmarshal(tr.out.Bytes(), &rows))
	for _, r := range rows {
		ct, ok := tr.client.Container(r.ID)
		require.True(t, ok)
		assert.Equal(t, "exited", ct.Status)
		assert.Equal(t, []string{docker.SignalKill}, ct.StopSignals)
	}
}

func TestRun_Detach(t *testing.T) {
	tr := newTestRoot(t)
	tr.client.LogsHook = readyLogs
	path := writeFixtures(t, fixturesYAML)

	require.NoError(t, tr.execute("run", "-f", path, "--detach"))
	assert.Contains(t, tr.out.String(), "NAME")
	assert.Contains(t, tr.out.String(), "localhost:")

	running, err := tr.client.ListContainers(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, running, 2)
	for _, c := range running {
		assert.Equal(t, "running", c.State)
	}
}

func TestRun_FailedStartCleansUp(t *testing.T) {
	tr := newTestRoot(t)
	tr.client.LogsHook = func(string) (string, error) { return "still booting\n", nil }
	path := writeFixtures(t, `
fixtures:
  - name: slow
    image: postgres:16
    wait_for_log: "ready"
    start_timeout: 30ms
`)

	err := tr.execute("run", "-f", path, "--detach")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `fixture "slow"`)

	left, lerr := tr.client.ListContainers(context.Background(), nil)
	require.NoError(t, lerr)
	assert.Empty(t, left)
}

func TestRun_InvalidFixturesFile(t *testing.T) {
	tr := newTestRoot(t)
	path := writeFixtures(t, "fixtures:\n  - {name: bad, image: 'rust@invalid'}\n")

	err := tr.execute("run", "-f", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid repository")
	assert.Empty(t, tr.client.Calls())
}

func TestRun_TeardownOnCancel(t *testing.T) {
	tr := newTestRoot(t)
	tr.client.LogsHook = readyLogs
	path := writeFixtures(t, fixturesYAML)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	tr.root.Command().SetArgs([]string{"run", "-f", path, "-q"})
	require.NoError(t, tr.root.ExecuteContext(ctx))

	left, err := tr.client.ListContainers(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, left)
	assert.Empty(t, tr.out.String())
}
