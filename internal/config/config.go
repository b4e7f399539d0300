package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/newthinker/s3backup/internal/core"
	"github.com/spf13/viper"
)

const (
	StorageS3      = "s3"
	StorageLocalFS = "localfs"
)

type Config struct {
	Storage       StorageConfig     `mapstructure:"storage"`
	RetentionDays int               `mapstructure:"retention_days"`
	TmpPath       string            `mapstructure:"tmp_path"`
	StrictTools   bool              `mapstructure:"strict_tools"`
	Tools         ToolsConfig       `mapstructure:"tools"`
	PostgresDBs   []string          `mapstructure:"postgresql_dbs"`
	MongoDBs      []string          `mapstructure:"mongo_dbs"`
	Directories   []DirectoryConfig `mapstructure:"directories"`
	SingleFiles   []FileGroupConfig `mapstructure:"single_files"`
	Log           LogConfig         `mapstructure:"log"`
	Metrics       MetricsConfig     `mapstructure:"metrics"`
}

// DirectoryConfig is a directory archived under a logical name.
type DirectoryConfig struct {
	Name string `mapstructure:"name"`
	Path string `mapstructure:"path"`
}

// FileGroupConfig is a set of loose files archived together under a logical name.
type FileGroupConfig struct {
	Name  string   `mapstructure:"name"`
	Files []string `mapstructure:"files"`
}

type StorageConfig struct {
	Type    string        `mapstructure:"type"` // "s3" or "localfs"
	Bucket  string        `mapstructure:"bucket"`
	S3      S3Config      `mapstructure:"s3"`
	LocalFS LocalFSConfig `mapstructure:"localfs"`
}

type S3Config struct {
	Host      string `mapstructure:"host"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Prefix    string `mapstructure:"prefix"`
}

type LocalFSConfig struct {
	Path string `mapstructure:"path"`
}

// ToolsConfig names the external commands. Values are inserted into shell
// scripts verbatim, so they may carry extra arguments.
type ToolsConfig struct {
	PgDump    string `mapstructure:"pg_dump"`
	Gzip      string `mapstructure:"gzip"`
	Tar       string `mapstructure:"tar"`
	Mongodump string `mapstructure:"mongodump"`
	MongoHost string `mapstructure:"mongo_host"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

// MetricsConfig holds Pushgateway settings. An empty URL disables pushing.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// Load reads configuration from file. An empty path builds the config from
// defaults and environment overrides alone.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		if envKey, ok := envRef(v.GetString(key)); ok {
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// List entries are not viper keys, expand them after decoding.
	for i := range cfg.Directories {
		cfg.Directories[i].Path = expandEnv(cfg.Directories[i].Path)
	}
	for i := range cfg.SingleFiles {
		for j, f := range cfg.SingleFiles[i].Files {
			cfg.SingleFiles[i].Files[j] = expandEnv(f)
		}
	}

	return &cfg, nil
}

// envRef returns the variable name of a "${VAR}" value.
func envRef(val string) (string, bool) {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		return strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}"), true
	}
	return "", false
}

func expandEnv(val string) string {
	if envKey, ok := envRef(val); ok {
		return os.Getenv(envKey)
	}
	return val
}

// setDefaults registers every scalar key so environment overrides apply
// even when the file omits it.
func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("storage.type", d.Storage.Type)
	v.SetDefault("storage.bucket", d.Storage.Bucket)
	v.SetDefault("storage.s3.host", d.Storage.S3.Host)
	v.SetDefault("storage.s3.region", d.Storage.S3.Region)
	v.SetDefault("storage.s3.access_key", d.Storage.S3.AccessKey)
	v.SetDefault("storage.s3.secret_key", d.Storage.S3.SecretKey)
	v.SetDefault("storage.s3.use_ssl", d.Storage.S3.UseSSL)
	v.SetDefault("storage.s3.prefix", d.Storage.S3.Prefix)
	v.SetDefault("storage.localfs.path", d.Storage.LocalFS.Path)
	v.SetDefault("retention_days", d.RetentionDays)
	v.SetDefault("tmp_path", d.TmpPath)
	v.SetDefault("strict_tools", d.StrictTools)
	v.SetDefault("tools.pg_dump", d.Tools.PgDump)
	v.SetDefault("tools.gzip", d.Tools.Gzip)
	v.SetDefault("tools.tar", d.Tools.Tar)
	v.SetDefault("tools.mongodump", d.Tools.Mongodump)
	v.SetDefault("tools.mongo_host", d.Tools.MongoHost)
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("metrics.pushgateway_url", d.Metrics.PushgatewayURL)
	v.SetDefault("metrics.job", d.Metrics.Job)
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			Type: StorageS3,
			S3: S3Config{
				Region: "us-east-1",
				UseSSL: true,
			},
		},
		RetentionDays: 30,
		TmpPath:       "tmp",
		Tools: ToolsConfig{
			PgDump:    "pg_dump",
			Gzip:      "gzip",
			Tar:       "tar",
			Mongodump: "mongodump",
			MongoHost: "localhost",
		},
		Metrics: MetricsConfig{
			Job: "s3backup",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Storage.Bucket == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("storage.bucket is required"))
	}

	switch c.Storage.Type {
	case StorageS3:
		if c.Storage.S3.AccessKey == "" || c.Storage.S3.SecretKey == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("s3 access_key and secret_key required when storage type is s3"))
		}
	case StorageLocalFS:
		if c.Storage.LocalFS.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("localfs path required when storage type is localfs"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}

	if c.RetentionDays < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("retention_days cannot be negative, got %d", c.RetentionDays))
	}
	if c.TmpPath == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("tmp_path is required"))
	}

	for _, db := range c.PostgresDBs {
		if strings.TrimSpace(db) == "" {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("postgresql_dbs contains an empty name"))
		}
	}
	for _, db := range c.MongoDBs {
		if strings.TrimSpace(db) == "" {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("mongo_dbs contains an empty name"))
		}
	}
	seen := make(map[string]bool, len(c.Directories))
	for _, dir := range c.Directories {
		if strings.TrimSpace(dir.Name) == "" || strings.TrimSpace(dir.Path) == "" {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("directories entry %q has an empty name or path", dir.Name))
		}
		if seen[dir.Name] {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("duplicate directories name %q", dir.Name))
		}
		seen[dir.Name] = true
	}
	seen = make(map[string]bool, len(c.SingleFiles))
	for _, group := range c.SingleFiles {
		if strings.TrimSpace(group.Name) == "" {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("single_files contains an empty group name"))
		}
		if len(group.Files) == 0 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("single_files group %q lists no files", group.Name))
		}
		if seen[group.Name] {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("duplicate single_files name %q", group.Name))
		}
		seen[group.Name] = true
	}

	return nil
}

// TmpRoot resolves the working directory for a run. Relative paths are taken
// from the directory holding the executable.
func (c *Config) TmpRoot() (string, error) {
	if filepath.IsAbs(c.TmpPath) {
		return filepath.Clean(c.TmpPath), nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locating executable: %w", err)
	}
	return filepath.Join(filepath.Dir(exe), c.TmpPath), nil
}
