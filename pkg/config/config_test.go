package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundops/micwatch/pkg/logger"
)

type testConfig struct {
	Name     string        `json:"name"`
	Port     int           `json:"port"`
	Debug    bool          `json:"debug"`
	Interval time.Duration `json:"interval"`
	Nested   nestedConfig  `json:"nested"`
	Tags     []string      `json:"tags"`

	validateErr error
}

type nestedConfig struct {
	Host string `json:"host"`
}

func (c *testConfig) Validate() error { return c.validateErr }

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeTempConfig(t, `{"name": "micwatch", "port": 8090, "nested": {"host": "db.local"}}`)

	var cfg testConfig

	err := NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), path, &cfg)
	require.NoError(t, err)

	assert.Equal(t, "micwatch", cfg.Name)
	assert.Equal(t, 8090, cfg.Port)
	assert.Equal(t, "db.local", cfg.Nested.Host)
}

func TestLoadFromFileMissing(t *testing.T) {
	var cfg testConfig

	err := NewConfig(logger.NewTestLogger()).
		LoadAndValidate(context.Background(), "/nonexistent/config.json", &cfg)
	require.Error(t, err)
}

func TestLoadFromFileInvalidJSON(t *testing.T) {
	path := writeTempConfig(t, `{"name": `)

	var cfg testConfig

	err := NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), path, &cfg)
	require.Error(t, err)
}

func TestLoadRunsValidation(t *testing.T) {
	path := writeTempConfig(t, `{"name": "micwatch"}`)

	cfg := testConfig{validateErr: assert.AnError}

	err := NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), path, &cfg)
	require.ErrorIs(t, err, assert.AnError)
}

func TestInvalidConfigSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "carrier-pigeon")

	var cfg testConfig

	err := NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), "unused", &cfg)
	require.ErrorIs(t, err, errInvalidConfigSource)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("MICWATCH_NAME", "from-env")
	t.Setenv("MICWATCH_PORT", "9000")
	t.Setenv("MICWATCH_DEBUG", "true")
	t.Setenv("MICWATCH_INTERVAL", "45s")
	t.Setenv("MICWATCH_NESTED_HOST", "env-db.local")
	t.Setenv("MICWATCH_TAGS", "a, b,c")

	var cfg testConfig

	err := NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), "unused", &cfg)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Name)
	assert.Equal(t, 9000, cfg.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 45*time.Second, cfg.Interval)
	assert.Equal(t, "env-db.local", cfg.Nested.Host)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Tags)
}

func TestLoadFromEnvJSONBlob(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("MICWATCH_CONFIG_JSON", `{"name": "blob", "port": 7000}`)

	var cfg testConfig

	err := NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), "unused", &cfg)
	require.NoError(t, err)

	assert.Equal(t, "blob", cfg.Name)
	assert.Equal(t, 7000, cfg.Port)
}

func TestEnvLoaderRejectsNonPointer(t *testing.T) {
	loader := NewEnvConfigLoader(logger.NewTestLogger(), "MICWATCH_")

	var cfg testConfig

	err := loader.Load(context.Background(), "", cfg)
	require.ErrorIs(t, err, ErrDstMustBeNonNilPointer)

	var notStruct int

	err = loader.Load(context.Background(), "", &notStruct)
	require.ErrorIs(t, err, ErrDstMustBePointerToStruct)
}
