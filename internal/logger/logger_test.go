package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeKVs(t *testing.T) {
	out := sanitizeKVs([]interface{}{"job_id", "etl_daily", "password", "hunter2", "dangling"})

	require.Len(t, out, 5)
	assert.Equal(t, "etl_daily", out[1])
	assert.Equal(t, "[REDACTED]", out[3])
	assert.Equal(t, "dangling", out[4])
}

func TestNew(t *testing.T) {
	for _, mode := range []string{"dev", "prod"} {
		l, err := New(mode)
		require.NoError(t, err)
		l.With("component", "test").Debug("hello", "mode", mode)
	}

	Nop().Info("discarded")
}
