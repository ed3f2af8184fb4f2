package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jguan/throwaway/pkg/infra/docker"
)

func TestResolvePorts_KeepsOnlyWildcardBindings(t *testing.T) {
	got := ResolvePorts(map[string][]docker.PortBinding{
		"5432/tcp": {{HostIP: "0.0.0.0", HostPort: "55000"}},
		"6379/tcp": {{HostIP: "127.0.0.1", HostPort: "55001"}},
	})
	assert.Equal(t, map[string]uint16{"5432/tcp": 55000}, got)
}

func TestResolvePorts_EdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		bindings map[string][]docker.PortBinding
		want     map[string]uint16
	}{
		{
			name: "nil input",
			want: map[string]uint16{},
		},
		{
			name: "ipv6 wildcard ignored",
			bindings: map[string][]docker.PortBinding{
				"80/tcp": {{HostIP: "::", HostPort: "8080"}, {HostIP: "0.0.0.0", HostPort: "8080"}},
			},
			want: map[string]uint16{"80/tcp": 8080},
		},
		{
			name: "non numeric port skipped",
			bindings: map[string][]docker.PortBinding{
				"80/tcp": {{HostIP: "0.0.0.0", HostPort: "http"}},
			},
			want: map[string]uint16{},
		},
		{
			name: "empty binding list",
			bindings: map[string][]docker.PortBinding{
				"80/tcp": nil,
			},
			want: map[string]uint16{},
		},
		{
			name: "last wildcard binding wins",
			bindings: map[string][]docker.PortBinding{
				"80/tcp": {{HostIP: "0.0.0.0", HostPort: "1000"}, {HostIP: "0.0.0.0", HostPort: "2000"}},
			},
			want: map[string]uint16{"80/tcp": 2000},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvePorts(tt.bindings))
		})
	}
}

func TestNormalizePortSpec(t *testing.T) {
	valid := map[string]string{
		"5432/tcp": "5432/tcp",
		"5432":     "5432/tcp",
		"53/udp":   "53/udp",
		"53/UDP":   "53/udp",
		" 80/tcp ": "80/tcp",
	}
	for in, want := range valid {
		got, err := NormalizePortSpec(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "/tcp", "abc/tcp", "70000/tcp", "0/tcp", "80/http", "8000-8010/tcp"} {
		_, err := NormalizePortSpec(in)
		assert.Error(t, err, in)
	}
}
