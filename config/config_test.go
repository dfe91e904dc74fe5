package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/interopmesh/core"
	"github.com/hupe1980/interopmesh/logging"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, core.DefaultHandleKey, cfg.HandleKey)
	assert.Equal(t, time.Minute, cfg.CallTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "interop.toml", `
handle_key = "__ref"
call_timeout = "5s"
log_level = "debug"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "__ref", cfg.HandleKey)
	assert.Equal(t, 5*time.Second, cfg.CallTimeout)
	assert.Equal(t, logging.LogLevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_TOMLUnknownKey(t *testing.T) {
	path := writeFile(t, "interop.toml", `handel_key = "x"`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handel_key")
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "interop.yaml", "log_format: text\ncall_timeout: 250ms\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 250*time.Millisecond, cfg.CallTimeout)
	assert.Equal(t, core.DefaultHandleKey, cfg.HandleKey)
}

func TestLoad_YAMLUnknownKey(t *testing.T) {
	path := writeFile(t, "interop.yml", "bogus: 1\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeFile(t, "interop.toml", `call_timeout = "soon"`))
	assert.ErrorContains(t, err, "call_timeout")

	_, err = Load(writeFile(t, "interop.toml", `handle_key = "a.b"`))
	assert.ErrorContains(t, err, "reserved")

	_, err = Load(writeFile(t, "interop.json", `{}`))
	assert.ErrorContains(t, err, "unsupported")
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv(EnvCallTimeout, "2s")
	t.Setenv(EnvLogLevel, "error")
	cfg, err := Load(writeFile(t, "interop.toml", `call_timeout = "5s"`))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.CallTimeout)
	assert.Equal(t, logging.LogLevelError, cfg.LogLevel)
}

func TestNewLogger_Backends(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.LogOutput = &buf

	cfg.NewLogger().Info("dispatch.invoke.success", "identifier", "Add")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "dispatch.invoke.success", rec["msg"])

	buf.Reset()
	cfg.LogBackend = BackendZerolog
	l := cfg.NewLogger()
	assert.IsType(t, &logging.ZerologAdapter{}, l)
	l.Info("dispatch.invoke.success", "identifier", "Add")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "dispatch.invoke.success", rec["message"])
	assert.Equal(t, "Add", rec["identifier"])

	buf.Reset()
	cfg.LogFormat = "text"
	cfg.NewLogger().Warn("registry.module.shadowed", "module", "M")
	assert.Contains(t, buf.String(), "registry.module.shadowed")
	assert.Contains(t, buf.String(), "module=M")
}

func TestLoad_LogBackend(t *testing.T) {
	cfg, err := Load(writeFile(t, "interop.toml", `log_backend = "zerolog"`))
	require.NoError(t, err)
	assert.Equal(t, BackendZerolog, cfg.LogBackend)

	t.Setenv(EnvLogBackend, "logrus")
	_, err = Load(writeFile(t, "interop.toml", ``))
	assert.ErrorContains(t, err, "log_backend")
}
