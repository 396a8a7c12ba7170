package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the server and CLI configuration.
type Config struct {
	PGDSN      string `yaml:"pg_dsn"`
	PGHost     string `yaml:"pg_host"`
	PGPort     int    `yaml:"pg_port"`
	PGUser     string `yaml:"pg_user"`
	PGPassword string `yaml:"pg_password"`
	PGDatabase string `yaml:"pg_database"`

	TemplateSchema string        `yaml:"template_schema"`
	// SchemaCloner is "procedure" (clone_schema in the database) or "ddl".
	SchemaCloner   string        `yaml:"schema_cloner"`
	MergeTimeout   time.Duration `yaml:"merge_timeout"`
	MergeWorkers   int           `yaml:"merge_workers"`
	SnapshotEvery  int           `yaml:"snapshot_every"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		PGHost:         "localhost",
		PGPort:         5432,
		PGUser:         "postgres",
		PGDatabase:     "dev_all_in_one",
		TemplateSchema: "project_template",
		SchemaCloner:   "procedure",
		MergeTimeout:   time.Second,
		MergeWorkers:   4,
		SnapshotEvery:  100,
		LogLevel:       "info",
	}
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables (COLLOBOQUE_*)
// 2. ./.env.local (dotenv), searched upward from the working directory
// 3. the YAML file at path, or ~/.config/colloboque/config.yaml when path is empty
// 4. Default()
//
// An explicit path must exist; the default file is optional.
func Load(path string) (*Config, error) {
	cfg := Default()

	// godotenv never overrides variables that are already set.
	if envPath := findEnvLocal(); envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("load %s: %w", envPath, err)
		}
	}

	if err := loadYAMLConfig(cfg, path); err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAMLConfig(cfg *Config, path string) error {
	explicit := path != ""
	if !explicit {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(homeDir, ".config", "colloboque", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"COLLOBOQUE_PG_DSN":          &cfg.PGDSN,
		"COLLOBOQUE_PG_HOST":         &cfg.PGHost,
		"COLLOBOQUE_PG_USER":         &cfg.PGUser,
		"COLLOBOQUE_PG_DATABASE":     &cfg.PGDatabase,
		"COLLOBOQUE_TEMPLATE_SCHEMA": &cfg.TemplateSchema,
		"COLLOBOQUE_SCHEMA_CLONER":   &cfg.SchemaCloner,
		"COLLOBOQUE_LOG_LEVEL":       &cfg.LogLevel,
		"COLLOBOQUE_LOG_FILE":        &cfg.LogFile,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	if v := getEnvOrFile("COLLOBOQUE_PG_PASSWORD", "COLLOBOQUE_PG_PASSWORD_FILE"); v != "" {
		cfg.PGPassword = v
	}

	ints := map[string]*int{
		"COLLOBOQUE_PG_PORT":        &cfg.PGPort,
		"COLLOBOQUE_MERGE_WORKERS":  &cfg.MergeWorkers,
		"COLLOBOQUE_SNAPSHOT_EVERY": &cfg.SnapshotEvery,
	}
	for name, dst := range ints {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = n
	}

	if v := os.Getenv("COLLOBOQUE_MERGE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("COLLOBOQUE_MERGE_TIMEOUT: %w", err)
		}
		cfg.MergeTimeout = d
	}
	return nil
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set.
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return string(data)
		}
	}
	return ""
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
func findEnvLocal() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	homeDir, _ := os.UserHomeDir()
	if homeDir != "" {
		homeDir = filepath.Clean(homeDir)
	}

	dir := filepath.Clean(cwd)
	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		if dir == homeDir {
			return ""
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// PostgresDSN returns PGDSN when set, otherwise a postgres:// URL built
// from the individual connection fields.
func (c *Config) PostgresDSN() string {
	if c.PGDSN != "" {
		return c.PGDSN
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.PGHost, strconv.Itoa(c.PGPort)),
		Path:   "/" + c.PGDatabase,
	}
	switch {
	case c.PGUser != "" && c.PGPassword != "":
		u.User = url.UserPassword(c.PGUser, c.PGPassword)
	case c.PGUser != "":
		u.User = url.User(c.PGUser)
	}
	return u.String()
}
