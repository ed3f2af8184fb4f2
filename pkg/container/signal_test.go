package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSignal(t *testing.T) {
	valid := map[string]string{
		"SIGTERM": "SIGTERM",
		"term":    "SIGTERM",
		"sigint":  "SIGINT",
		"KILL":    "SIGKILL",
		"15":      "15",
	}
	for in, want := range valid {
		got, err := NormalizeSignal(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", "SIGNOPE", "0", "-9"} {
		_, err := NormalizeSignal(in)
		assert.Error(t, err, in)
	}
}
