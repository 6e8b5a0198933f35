package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/auditkit/pkg/config"
)

type storageConfig struct {
	Backend string   `env:"TEST_AUDIT_STORAGE" envDefault:"memory"`
	Workers int      `env:"TEST_AUDIT_WORKERS" envDefault:"2"`
	Logs    []string `env:"TEST_AUDIT_LOGS" envSeparator:","`
}

type requiredConfig struct {
	URL string `env:"TEST_AUDIT_REQUIRED_URL,required"`
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_AUDIT_STORAGE", "postgres")
	t.Setenv("TEST_AUDIT_LOGS", "audit_logs,post_logs")
	config.Reset()

	cfg, err := config.Load[storageConfig]()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Backend)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, []string{"audit_logs", "post_logs"}, cfg.Logs)

	t.Setenv("TEST_AUDIT_STORAGE", "mongo")
	cached, err := config.Load[storageConfig]()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cached.Backend, "value is cached per type")

	config.Reset()
	fresh, err := config.Load[storageConfig]()
	require.NoError(t, err)
	assert.Equal(t, "mongo", fresh.Backend)
}

func TestLoad_Required(t *testing.T) {
	config.Reset()
	os.Unsetenv("TEST_AUDIT_REQUIRED_URL")

	_, err := config.Load[requiredConfig]()
	require.ErrorIs(t, err, config.ErrParsingConfig)
	assert.Panics(t, func() { config.MustLoad[requiredConfig]() })

	t.Setenv("TEST_AUDIT_REQUIRED_URL", "postgres://localhost/audit")
	cfg, err := config.Load[requiredConfig]()
	require.NoError(t, err, "a failed parse is not cached")
	assert.Equal(t, "postgres://localhost/audit", cfg.URL)
}

func TestLoad_NotStruct(t *testing.T) {
	_, err := config.Load[string]()
	require.ErrorIs(t, err, config.ErrNotStruct)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, ".env")
	second := filepath.Join(dir, ".env.override")
	require.NoError(t, os.WriteFile(first, []byte("TEST_AUDIT_STORAGE=redis\nTEST_AUDIT_WORKERS=4\n"), 0o600))
	require.NoError(t, os.WriteFile(second, []byte("TEST_AUDIT_STORAGE=opensearch\n"), 0o600))

	t.Setenv("TEST_AUDIT_STORAGE", "")
	t.Setenv("TEST_AUDIT_WORKERS", "")
	require.NoError(t, config.LoadEnv(first, second))

	cfg, err := config.Load[storageConfig]()
	require.NoError(t, err)
	assert.Equal(t, "opensearch", cfg.Backend)
	assert.Equal(t, 4, cfg.Workers)

	require.ErrorIs(t, config.LoadEnv(filepath.Join(dir, "missing")), config.ErrLoadingEnvFile)
}
