package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"

	"github.com/dandi/zarr-path-conflicts/pkg/log_helper"
)

const (
	DefaultConfigPath = "zarr-path-conflicts.yml"
)

// Config - config file format
type Config struct {
	General GeneralConfig `yaml:"general" envconfig:"_"`
	Docker  DockerConfig  `yaml:"docker" envconfig:"_"`
	Archive ArchiveConfig `yaml:"archive" envconfig:"_"`
	Storage StorageConfig `yaml:"storage" envconfig:"_"`
}

// GeneralConfig - general setting section
type GeneralConfig struct {
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`
}

// DockerConfig - docker compose orchestration section
type DockerConfig struct {
	ComposeDir        string `yaml:"compose_dir" envconfig:"DOCKER_COMPOSE_DIR"`
	ComposeFile       string `yaml:"compose_file" envconfig:"DOCKER_COMPOSE_FILE"`
	ProjectName       string `yaml:"project_name" envconfig:"DOCKER_PROJECT_NAME"`
	PullImages        bool   `yaml:"pull_images" envconfig:"DANDI_TESTS_PULL_DOCKER_COMPOSE"`
	SchemaVersion     string `yaml:"schema_version" envconfig:"DANDI_SCHEMA_VERSION"`
	SuperuserEmail    string `yaml:"superuser_email" envconfig:"DANDI_SUPERUSER_EMAIL"`
	SuperuserPassword string `yaml:"superuser_password" envconfig:"DANDI_SUPERUSER_PASSWORD"`
	CommandTimeout    string `yaml:"command_timeout" envconfig:"DOCKER_COMMAND_TIMEOUT"`
	CommandDuration   time.Duration
}

// ArchiveConfig - provisioned archive instance section
type ArchiveConfig struct {
	APIURL            string `yaml:"api_url" envconfig:"DANDI_API_URL"`
	APIToken          string `yaml:"api_token" envconfig:"DANDI_API_KEY"`
	Timeout           string `yaml:"timeout" envconfig:"DANDI_API_TIMEOUT"`
	ReadinessAttempts int    `yaml:"readiness_attempts" envconfig:"DANDI_READINESS_ATTEMPTS"`
	ReadinessInterval string `yaml:"readiness_interval" envconfig:"DANDI_READINESS_INTERVAL"`
	TimeoutDuration   time.Duration
	IntervalDuration  time.Duration
}

// StorageConfig - direct object storage verification section
type StorageConfig struct {
	Verify         bool   `yaml:"verify" envconfig:"STORAGE_VERIFY"`
	Endpoint       string `yaml:"endpoint" envconfig:"STORAGE_ENDPOINT"`
	AccessKey      string `yaml:"access_key" envconfig:"STORAGE_ACCESS_KEY"`
	SecretKey      string `yaml:"secret_key" envconfig:"STORAGE_SECRET_KEY"`
	Bucket         string `yaml:"bucket" envconfig:"STORAGE_BUCKET"`
	Region         string `yaml:"region" envconfig:"STORAGE_REGION"`
	ForcePathStyle bool   `yaml:"force_path_style" envconfig:"STORAGE_FORCE_PATH_STYLE"`
}

// LoadConfig - load config from file + environment variables
func LoadConfig(configLocation string) (*Config, error) {
	cfg := DefaultConfig()
	configYaml, err := os.ReadFile(configLocation)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("can't open config file: %v", err)
	}
	if err := yaml.Unmarshal(configYaml, &cfg); err != nil {
		return nil, fmt.Errorf("can't parse config file: %v", err)
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	cfg.Archive.APIURL = strings.TrimRight(strings.TrimSpace(cfg.Archive.APIURL), "/")
	log_helper.SetLogLevelFromString(cfg.General.LogLevel)
	if err := ValidateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func ValidateConfig(cfg *Config) error {
	var err error
	if cfg.Docker.CommandDuration, err = time.ParseDuration(cfg.Docker.CommandTimeout); err != nil {
		return fmt.Errorf("invalid docker command_timeout: %v", err)
	}
	if cfg.Archive.TimeoutDuration, err = time.ParseDuration(cfg.Archive.Timeout); err != nil {
		return fmt.Errorf("invalid archive timeout: %v", err)
	}
	if cfg.Archive.IntervalDuration, err = time.ParseDuration(cfg.Archive.ReadinessInterval); err != nil {
		return fmt.Errorf("invalid archive readiness_interval: %v", err)
	}
	if cfg.Archive.ReadinessAttempts < 1 {
		return fmt.Errorf("archive readiness_attempts shall be >= 1, got %d", cfg.Archive.ReadinessAttempts)
	}
	if cfg.Archive.APIURL == "" {
		return fmt.Errorf("archive api_url is empty")
	}
	if cfg.Storage.Verify && (cfg.Storage.Endpoint == "" || cfg.Storage.Bucket == "") {
		return fmt.Errorf("storage verify is enabled but endpoint or bucket is empty")
	}
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Docker: DockerConfig{
			ComposeDir:        "docker-archive",
			ComposeFile:       "docker-compose.yml",
			ProjectName:       "",
			PullImages:        true,
			SchemaVersion:     "0.6.4",
			SuperuserEmail:    "admin@nil.nil",
			SuperuserPassword: "nsNc48DBiS",
			CommandTimeout:    "900s",
			CommandDuration:   900 * time.Second,
		},
		Archive: ArchiveConfig{
			APIURL:            "http://localhost:8000/api",
			APIToken:          "",
			Timeout:           "30s",
			ReadinessAttempts: 25,
			ReadinessInterval: "1s",
			TimeoutDuration:   30 * time.Second,
			IntervalDuration:  1 * time.Second,
		},
		Storage: StorageConfig{
			Verify:         false,
			Endpoint:       "http://localhost:9000",
			AccessKey:      "minioAccessKey",
			SecretKey:      "minioSecretKey",
			Bucket:         "dandi-bucket",
			Region:         "us-east-1",
			ForcePathStyle: true,
		},
	}
}

// PrintDefaultConfig - print default config to stdout
func PrintDefaultConfig() {
	cfg := DefaultConfig()
	yml, _ := yaml.Marshal(&cfg)
	fmt.Print(string(yml))
}

func GetConfigFromCli(ctx *cli.Context) *Config {
	configPath := GetConfigPath(ctx)
	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return cfg
}

func GetConfigPath(ctx *cli.Context) string {
	if ctx.String("config") != DefaultConfigPath {
		return ctx.String("config")
	}
	if ctx.GlobalString("config") != DefaultConfigPath {
		return ctx.GlobalString("config")
	}
	if os.Getenv("ZARR_PATH_CONFLICTS_CONFIG") != "" {
		return os.Getenv("ZARR_PATH_CONFLICTS_CONFIG")
	}
	return DefaultConfigPath
}
