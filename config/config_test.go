package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 64, cfg.Codec.RecordSize)
	require.Equal(t, 1280, cfg.Codec.Capacity)
	require.Empty(t, cfg.Persist.Journal)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
log_level: debug
codec:
  record_size: 32
persist:
  journal: /var/lib/settings.journal
schema: config.json
`))
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 32, cfg.Codec.RecordSize)
	require.Equal(t, 1280, cfg.Codec.Capacity)
	require.Equal(t, "/var/lib/settings.journal", cfg.Persist.Journal)
	require.Equal(t, "config.json", cfg.Schema)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"small record":   "codec: {record_size: 8}",
		"ragged buffer":  "codec: {record_size: 64, capacity: 100}",
		"level":          "log_level: chatty",
		"direct no file": "persist: {direct_io: true}",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}

	_, err := Parse([]byte("codec: ["))
	require.Error(t, err)
}

func TestLoadFromEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kvsettings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0o644))

	t.Setenv(EnvConfig, path)
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.LogLevel)

	t.Setenv(EnvConfig, "")
	cfg, err = Load()
	require.NoError(t, err)
	require.Equal(t, "info", cfg.LogLevel)
}
