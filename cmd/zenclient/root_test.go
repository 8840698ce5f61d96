package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/aminofox/zenclient/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "zenclient.yaml")
	require.NoError(t, os.WriteFile(file, []byte("backend:\n  host: file.example\n  port: 8080\nlogging:\n  level: debug\n"), 0o600))

	cfgFile = file
	t.Cleanup(func() { cfgFile = "" })
	t.Setenv("ZENCLIENT_BACKEND_PORT", "9090")
	t.Setenv("ZENCLIENT_AUTH_SALT", "s")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "file.example", cfg.Backend.Host)
	assert.Equal(t, 9090, cfg.Backend.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "s", cfg.Auth.Salt)
}

func TestLoadConfigInvalid(t *testing.T) {
	t.Setenv("ZENCLIENT_BACKEND_PORT", "70000")

	_, err := loadConfig()
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidConfig))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "zenclient dev")
}

func TestWatchRequiresStream(t *testing.T) {
	rootCmd.SetArgs([]string{"watch"})
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetErr(nil) })

	assert.Error(t, rootCmd.Execute())
}
