package config

import (
	"os"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	r := require.New(t)
	cfg := DefaultConfig()
	r.NoError(ValidateConfig(cfg))
	r.Equal(25, cfg.Archive.ReadinessAttempts)
	r.Equal(time.Second, cfg.Archive.IntervalDuration)
	r.Equal("admin@nil.nil", cfg.Docker.SuperuserEmail)
	r.True(cfg.Docker.PullImages)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	r := require.New(t)
	cfg, err := LoadConfig(path.Join(t.TempDir(), "does-not-exist.yml"))
	r.NoError(err)
	r.Equal("http://localhost:8000/api", cfg.Archive.APIURL)
}

func TestLoadConfigFromYaml(t *testing.T) {
	r := require.New(t)
	configPath := path.Join(t.TempDir(), "config.yml")
	content := `
general:
  log_level: debug
archive:
  api_url: "http://127.0.0.1:8010/api/"
  readiness_attempts: 5
  readiness_interval: 10ms
docker:
  pull_images: false
  schema_version: "0.6.9"
`
	r.NoError(os.WriteFile(configPath, []byte(content), 0644))
	cfg, err := LoadConfig(configPath)
	r.NoError(err)
	r.Equal("debug", cfg.General.LogLevel)
	// trailing slash is stripped
	r.Equal("http://127.0.0.1:8010/api", cfg.Archive.APIURL)
	r.Equal(5, cfg.Archive.ReadinessAttempts)
	r.Equal(10*time.Millisecond, cfg.Archive.IntervalDuration)
	r.False(cfg.Docker.PullImages)
	r.Equal("0.6.9", cfg.Docker.SchemaVersion)
}

func TestLoadConfigEnvOverridesYaml(t *testing.T) {
	r := require.New(t)
	configPath := path.Join(t.TempDir(), "config.yml")
	r.NoError(os.WriteFile(configPath, []byte("archive:\n  api_token: from-yaml\n"), 0644))
	t.Setenv("DANDI_API_KEY", "from-env")
	t.Setenv("DANDI_SUPERUSER_EMAIL", "root@nil.nil")
	cfg, err := LoadConfig(configPath)
	r.NoError(err)
	r.Equal("from-env", cfg.Archive.APIToken)
	r.Equal("root@nil.nil", cfg.Docker.SuperuserEmail)
}

func TestValidateConfigNegative(t *testing.T) {
	r := require.New(t)

	cfg := DefaultConfig()
	cfg.Archive.ReadinessInterval = "not-a-duration"
	r.Error(ValidateConfig(cfg))

	cfg = DefaultConfig()
	cfg.Archive.ReadinessAttempts = 0
	r.Error(ValidateConfig(cfg))

	cfg = DefaultConfig()
	cfg.Archive.APIURL = ""
	r.Error(ValidateConfig(cfg))

	cfg = DefaultConfig()
	cfg.Storage.Verify = true
	cfg.Storage.Bucket = ""
	r.Error(ValidateConfig(cfg))
}
