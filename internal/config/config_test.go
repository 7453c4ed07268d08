package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverlaysFileOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9090"
redis_addr: "localhost:6379"
backoff:
  initial_delay: 500ms
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 500*time.Millisecond, cfg.Backoff.InitialDelay)
	// Untouched fields keep their defaults.
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Backoff.MaxDelay)
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	t.Run("empty means encryption off", func(t *testing.T) {
		key, err := Config{}.Key()
		require.NoError(t, err)
		assert.Nil(t, key)
	})

	t.Run("valid 32-byte hex key", func(t *testing.T) {
		cfg := Config{EncryptionKey: strings.Repeat("ab", 32)}
		key, err := cfg.Key()
		require.NoError(t, err)
		assert.Len(t, key, 32)
	})

	t.Run("wrong length rejected", func(t *testing.T) {
		_, err := Config{EncryptionKey: "abcd"}.Key()
		assert.Error(t, err)
	})

	t.Run("non-hex rejected", func(t *testing.T) {
		_, err := Config{EncryptionKey: strings.Repeat("zz", 32)}.Key()
		assert.Error(t, err)
	})
}
