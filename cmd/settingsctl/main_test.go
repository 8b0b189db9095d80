package main

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	schema, err := filepath.Abs("../../settings/testdata/config.json")
	require.NoError(t, err)
	path := filepath.Join(dir, "settingsctl.yaml")
	cfg := "log_level: error\n" +
		"schema: " + schema + "\n" +
		"persist:\n" +
		"  journal: " + filepath.Join(dir, "settings.journal") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func TestEncodeDecode(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	message := filepath.Join(dir, "message.bin")

	var out bytes.Buffer
	err := run([]string{"--config", cfgPath, "encode", "-o", message,
		"slider=int:2000", "email=string:hello you", "7=bytes:cafe"}, &out)
	require.NoError(t, err)

	data, err := os.ReadFile(message)
	require.NoError(t, err)
	require.Len(t, data, 3*64)

	out.Reset()
	require.NoError(t, run([]string{"--config", cfgPath, "decode", message}, &out))
	require.Equal(t, "10008\tint\t2000\n10009\tcstring\thello you\n7\tbytes\tcafe\n", out.String())
}

func TestApplyAndDump(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	message := filepath.Join(dir, "message.bin")

	var out bytes.Buffer
	require.NoError(t, run([]string{"--config", cfgPath, "encode", "-o", message,
		"enable_background=int:0", "font_size=string:2"}, &out))

	out.Reset()
	require.NoError(t, run([]string{"--config", cfgPath, "--metrics", "apply", message}, &out))
	require.Contains(t, out.String(), "enable_background=false\n")
	require.Contains(t, out.String(), "font_size=2\n")
	require.Contains(t, out.String(), "email=gregoire@test.fr\n")
	require.Contains(t, out.String(), `kvsettings_persist_writes_total{kind="int"}`)

	out.Reset()
	require.NoError(t, run([]string{"--config", cfgPath, "dump"}, &out))
	require.Contains(t, out.String(), "h'"+hex.EncodeToString([]byte("gregoire@test.fr"))+"'")
}

func TestUsageErrors(t *testing.T) {
	var out bytes.Buffer
	t.Setenv("KVSETTINGS_CONFIG", "")

	require.ErrorIs(t, run(nil, &out), errUsage)
	require.ErrorIs(t, run([]string{"frobnicate"}, &out), errUsage)
	require.ErrorIs(t, run([]string{"encode", "novalue"}, &out), errUsage)
	require.ErrorIs(t, run([]string{"encode", "a=float:1"}, &out), errUsage)
	require.ErrorIs(t, run([]string{"decode"}, &out), errUsage)
	require.ErrorIs(t, run([]string{"apply", "message.bin"}, &out), os.ErrNotExist)
}
