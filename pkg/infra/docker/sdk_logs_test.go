package docker_test

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jguan/throwaway/pkg/container"
	"github.com/jguan/throwaway/pkg/infra/docker"
)

const readyLine = "LOG:  database system is ready to accept connections\n"

// logFrame encodes one frame of the daemon's multiplexed log stream.
func logFrame(stream byte, size int, payload string) []byte {
	header := make([]byte, 8)
	header[0] = stream
	binary.BigEndian.PutUint32(header[4:], uint32(size))
	return append(header, payload...)
}

// newCutLogsDaemon serves one complete stdout frame followed by a truncated
// stderr frame, then drops the connection.
func newCutLogsDaemon(t *testing.T) *docker.SDKClient {
	t.Helper()
	t.Setenv("DOCKER_HOST", "")
	t.Setenv("DOCKER_TLS_VERIFY", "")
	t.Setenv("DOCKER_CERT_PATH", "")
	t.Setenv("DOCKER_API_VERSION", "")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/_ping"):
			w.Header().Set("API-Version", "1.47")
			_, _ = w.Write([]byte("OK"))
		case strings.HasSuffix(r.URL.Path, "/containers/abc/logs"):
			w.Header().Set("Content-Type", "application/vnd.docker.multiplexed-stream")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(logFrame(1, len(readyLine), readyLine))
			_, _ = w.Write(logFrame(2, 100, "truncated"))
			w.(http.Flusher).Flush()
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				conn.Close()
			}
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	c, err := docker.NewSDKClient("tcp://" + srv.Listener.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSDKClient_ContainerLogsCutMidStream(t *testing.T) {
	c := newCutLogsDaemon(t)

	logs, err := c.ContainerLogs(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, readyLine, logs)
}

// logsOnly exposes SDK log reads as a readiness probe.
type logsOnly struct {
	client *docker.SDKClient
	id     string
}

func (p logsOnly) Logs(ctx context.Context) (string, error) {
	return p.client.ContainerLogs(ctx, p.id)
}

func (p logsOnly) Health(context.Context) (string, error) {
	return "", nil
}

func TestSDKClient_CutLogsStillSatisfyLogWait(t *testing.T) {
	c := newCutLogsDaemon(t)

	s := container.ForLog(regexp.MustCompile(`ready to accept connections`))
	err := s.Wait(context.Background(), logsOnly{client: c, id: "abc"}, time.Second, 10*time.Millisecond)
	assert.NoError(t, err)
}
