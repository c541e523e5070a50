package birdisle

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "birdisle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: 127.0.0.1:0
idle_timeout: 5m
shards: 32
scripting: false
expiry:
  interval: 50ms
  sample: 10
log:
  level: debug
  format: json
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:0", cfg.Addr)
	assert.Equal(t, 5*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, 32, cfg.Shards)
	require.NotNil(t, cfg.Scripting)
	assert.False(t, *cfg.Scripting)
	require.NotNil(t, cfg.Expiry.Interval)
	assert.Equal(t, 50*time.Millisecond, *cfg.Expiry.Interval)
	assert.Equal(t, 10, cfg.Expiry.Sample)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestParseConfigEmpty(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Addr)
	assert.Nil(t, cfg.Scripting)
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown field", "adress: 127.0.0.1:0\n", "field adress not found"},
		{"bad duration", "idle_timeout: soon\n", "parse config"},
		{"negative shards", "shards: -1\n", "shards"},
		{"bad log format", "log:\n  format: xml\n", "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadConfig("")
	assert.Error(t, err)
}

func TestConfigOptions(t *testing.T) {
	cfg, err := ParseConfig([]byte("scripting: false\nlog:\n  level: debug\n  format: json\n"))
	require.NoError(t, err)

	var logs bytes.Buffer
	inst, err := New(cfg.Options(&logs)...)
	require.NoError(t, err)
	defer inst.Close()

	_, err = inst.Do(context.Background(), "EVAL", "return 1", 0)
	assert.Error(t, err, "scripting disabled through the file")

	// Debug level in JSON format reaches the writer
	assert.True(t, strings.Contains(logs.String(), `"msg":"instance listening"`), logs.String())
}
