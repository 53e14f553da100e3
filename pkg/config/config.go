package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix for environment variable overrides,
	// e.g. AVATAROOR_DRIVE_CHUNK_SIZE.
	EnvPrefix = "AVATAROOR"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultApplicationName is sent as the Drive API user agent.
	DefaultApplicationName = "BasisGoogleDriveUploader"

	// DefaultChunkSize is the resumable upload chunk size.
	DefaultChunkSize = "8MiB"

	// DefaultBundleDirectory is scanned for the built avatar bundle.
	DefaultBundleDirectory = "AssetBundles"

	// DefaultBundleExtension marks avatar bundle files.
	DefaultBundleExtension = ".BEE"

	// DefaultProgressInterval is the minimum time between progress log lines.
	DefaultProgressInterval = "1s"

	// DefaultCacheDriver is the directory cache database driver.
	DefaultCacheDriver = "sqlite"

	// stateDirName is the directory under the user config dir that holds
	// credentials and the directory cache.
	stateDirName = "avataroor"
)

// Config is the root configuration for avataroor.
type Config struct {
	Global         GlobalConfig         `yaml:"global" mapstructure:"global"`
	Drive          DriveConfig          `yaml:"drive" mapstructure:"drive"`
	Bundle         BundleConfig         `yaml:"bundle" mapstructure:"bundle"`
	Credentials    CredentialsConfig    `yaml:"credentials" mapstructure:"credentials"`
	Progress       ProgressConfig       `yaml:"progress" mapstructure:"progress"`
	DirectoryCache DirectoryCacheConfig `yaml:"directory_cache" mapstructure:"directory_cache"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// DriveConfig contains Google Drive API client settings.
type DriveConfig struct {
	ApplicationName string `yaml:"application_name" mapstructure:"application_name"`
	// Endpoint overrides the Drive API base URL. Empty uses the default.
	Endpoint  string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	ChunkSize string `yaml:"chunk_size" mapstructure:"chunk_size"`
}

// BundleConfig describes where the locally built avatar bundle lives.
type BundleConfig struct {
	Directory string `yaml:"directory" mapstructure:"directory"`
	Extension string `yaml:"extension" mapstructure:"extension"`
}

// CredentialsConfig configures the on-disk OAuth token store.
type CredentialsConfig struct {
	TokenFile string `yaml:"token_file,omitempty" mapstructure:"token_file"`
}

// ProgressConfig configures upload progress output.
type ProgressConfig struct {
	Interval string `yaml:"interval" mapstructure:"interval"`
}

// DirectoryCacheConfig configures the optional cache of remote directory ids.
type DirectoryCacheConfig struct {
	Enabled  bool                 `yaml:"enabled" mapstructure:"enabled"`
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// Load reads and merges the given configuration files in order, applies
// AVATAROOR_* environment overrides and defaults. With no paths only
// defaults and the environment are used.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	registerKeys(v)

	for i, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if i == 0 {
			err = v.ReadConfig(f)
		} else {
			err = v.MergeConfig(f)
		}

		_ = f.Close()

		if err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// registerKeys makes every key known to viper so environment overrides
// apply even when a key is absent from the config files. Values stay
// empty here; applyDefaults fills them after decoding.
func registerKeys(v *viper.Viper) {
	for _, key := range []string{
		"global.log_level",
		"drive.application_name",
		"drive.endpoint",
		"drive.chunk_size",
		"bundle.directory",
		"bundle.extension",
		"credentials.token_file",
		"progress.interval",
		"directory_cache.enabled",
		"directory_cache.driver",
		"directory_cache.sqlite.path",
		"directory_cache.postgres.host",
		"directory_cache.postgres.port",
		"directory_cache.postgres.user",
		"directory_cache.postgres.password",
		"directory_cache.postgres.database",
		"directory_cache.postgres.ssl_mode",
	} {
		_ = v.BindEnv(key)
	}
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Drive.ApplicationName == "" {
		c.Drive.ApplicationName = DefaultApplicationName
	}

	if c.Drive.ChunkSize == "" {
		c.Drive.ChunkSize = DefaultChunkSize
	}

	if c.Bundle.Directory == "" {
		c.Bundle.Directory = DefaultBundleDirectory
	}

	if c.Bundle.Extension == "" {
		c.Bundle.Extension = DefaultBundleExtension
	}

	if c.Progress.Interval == "" {
		c.Progress.Interval = DefaultProgressInterval
	}

	if c.DirectoryCache.Driver == "" {
		c.DirectoryCache.Driver = DefaultCacheDriver
	}

	if c.DirectoryCache.Postgres.Port == 0 {
		c.DirectoryCache.Postgres.Port = 5432
	}

	if c.DirectoryCache.Postgres.SSLMode == "" {
		c.DirectoryCache.Postgres.SSLMode = "disable"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Global.LogLevel); err != nil {
		return fmt.Errorf("global.log_level: %w", err)
	}

	if _, err := c.Drive.ChunkSizeBytes(); err != nil {
		return fmt.Errorf("drive.chunk_size: %w", err)
	}

	if c.Bundle.Directory == "" {
		return fmt.Errorf("bundle.directory is required")
	}

	if !strings.HasPrefix(c.Bundle.Extension, ".") {
		return fmt.Errorf("bundle.extension %q must start with a dot", c.Bundle.Extension)
	}

	if _, err := c.Progress.IntervalDuration(); err != nil {
		return fmt.Errorf("progress.interval: %w", err)
	}

	if c.DirectoryCache.Enabled {
		switch c.DirectoryCache.Driver {
		case "sqlite":
		case "postgres":
			if c.DirectoryCache.Postgres.Host == "" {
				return fmt.Errorf("directory_cache.postgres.host is required")
			}

			if c.DirectoryCache.Postgres.Database == "" {
				return fmt.Errorf("directory_cache.postgres.database is required")
			}
		default:
			return fmt.Errorf(
				"directory_cache.driver: unsupported driver %q", c.DirectoryCache.Driver,
			)
		}
	}

	return nil
}

// ChunkSizeBytes parses the configured chunk size ("8MiB", "256k").
func (d *DriveConfig) ChunkSizeBytes() (int, error) {
	size, err := units.RAMInBytes(d.ChunkSize)
	if err != nil {
		return 0, err
	}

	if size <= 0 {
		return 0, fmt.Errorf("must be positive, got %q", d.ChunkSize)
	}

	return int(size), nil
}

// IntervalDuration parses the configured progress interval.
func (p *ProgressConfig) IntervalDuration() (time.Duration, error) {
	d, err := time.ParseDuration(p.Interval)
	if err != nil {
		return 0, err
	}

	if d < 0 {
		return 0, fmt.Errorf("must not be negative, got %q", p.Interval)
	}

	return d, nil
}

// TokenPath returns the token file path, defaulting to a file under the
// user's config directory.
func (c *CredentialsConfig) TokenPath() (string, error) {
	if c.TokenFile != "" {
		return c.TokenFile, nil
	}

	dir, err := StateDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, "credentials.json"), nil
}

// DatabasePath returns the SQLite path, defaulting to a file under the
// user's config directory.
func (s *SQLiteDatabaseConfig) DatabasePath() (string, error) {
	if s.Path != "" {
		return s.Path, nil
	}

	dir, err := StateDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, "directories.db"), nil
}

// StateDir returns the directory holding avataroor's local state.
func StateDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving user config dir: %w", err)
	}

	return filepath.Join(dir, stateDirName), nil
}
