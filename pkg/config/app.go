package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/stores"
	"github.com/evorbrain/evorbrain/pkg/telemetry"
)

const (
	// AppIdentifier names the data directory under the XDG data home.
	AppIdentifier = "com.evorbrain.app"

	// FileName is the config file name inside the data dir.
	FileName = "config.yaml"

	// DatabaseFileName is the default database file name.
	DatabaseFileName = "evorbrain.db"

	// EnvDataDir overrides the data directory.
	EnvDataDir = "EVORBRAIN_DATA_DIR"
)

// Config is the application configuration read from config.yaml.
type Config struct {
	DataDir   string          `yaml:"data_dir,omitempty"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Policies  PoliciesConfig  `yaml:"policies"`
	Server    ServerConfig    `yaml:"server"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Backup    BackupConfig    `yaml:"backup"`
}

// DatabaseConfig locates and tunes the SQLite database.
type DatabaseConfig struct {
	// Path is relative to the data dir unless absolute. It must resolve
	// inside the data dir.
	Path         string        `yaml:"path" validate:"required"`
	BusyTimeout  time.Duration `yaml:"busy_timeout" validate:"min=0"`
	MaxOpenConns int           `yaml:"max_open_conns" validate:"min=0,max=64"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
	File   bool   `yaml:"file"`
}

type TelemetryConfig struct {
	Exporter     string  `yaml:"exporter" validate:"oneof=none stdout otlp"`
	Endpoint     string  `yaml:"endpoint,omitempty" validate:"required_if=Exporter otlp"`
	SamplingRate float64 `yaml:"sampling_rate" validate:"min=0,max=1"`
	Metrics      bool    `yaml:"metrics"`
}

// PoliciesConfig lists user Rego policies loaded next to the built-in
// guards.
type PoliciesConfig struct {
	Paths []string `yaml:"paths,omitempty" validate:"dive,required"`
	Watch bool     `yaml:"watch"`
}

type ServerConfig struct {
	Listen          string        `yaml:"listen" validate:"required,hostname_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"min=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"min=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"min=0"`
}

// SchedulerConfig holds the cron specs of the maintenance jobs run by
// serve. An empty spec disables the job.
type SchedulerConfig struct {
	Enabled              bool   `yaml:"enabled"`
	CleanupCron          string `yaml:"cleanup_cron" validate:"omitempty,cronspec"`
	CleanupRetentionDays int    `yaml:"cleanup_retention_days" validate:"min=1,max=3650"`
	BackupCron           string `yaml:"backup_cron,omitempty" validate:"omitempty,cronspec"`
	OverdueCron          string `yaml:"overdue_cron" validate:"omitempty,cronspec"`
}

type BackupConfig struct {
	// Dir is relative to the data dir unless absolute.
	Dir    string        `yaml:"dir" validate:"required"`
	Keep   int           `yaml:"keep" validate:"min=1,max=1000"`
	Remote *RemoteConfig `yaml:"remote,omitempty"`
}

// RemoteConfig points at an SFTP server that receives backup snapshots.
type RemoteConfig struct {
	Host                  string        `yaml:"host" validate:"required,hostname_rfc1123|ip"`
	Port                  int           `yaml:"port" validate:"omitempty,min=1,max=65535"`
	User                  string        `yaml:"user" validate:"required"`
	KeyFile               string        `yaml:"key_file,omitempty" validate:"required_without=Password"`
	Password              string        `yaml:"password,omitempty"`
	KnownHosts            string        `yaml:"known_hosts,omitempty"`
	InsecureIgnoreHostKey bool          `yaml:"insecure_ignore_host_key,omitempty"`
	Dir                   string        `yaml:"dir" validate:"required"`
	Timeout               time.Duration `yaml:"timeout,omitempty" validate:"min=0"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:         DatabaseFileName,
			BusyTimeout:  10 * time.Second,
			MaxOpenConns: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File:   true,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "none",
			SamplingRate: 1.0,
			Metrics:      true,
		},
		Server: ServerConfig{
			Listen:          "127.0.0.1:7421",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:              true,
			CleanupCron:          "0 3 * * *",
			CleanupRetentionDays: 30,
			OverdueCron:          "*/15 * * * *",
		},
		Backup: BackupConfig{
			Dir:  "backups",
			Keep: 7,
		},
	}
}

// DefaultDataDir returns $XDG_DATA_HOME/com.evorbrain.app, falling back to
// ~/.local/share/com.evorbrain.app.
func DefaultDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, AppIdentifier), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", AppIdentifier), nil
}

// Load reads the configuration. The data dir is taken from dataDir, then
// EVORBRAIN_DATA_DIR, then the file's data_dir, then DefaultDataDir. When
// path is empty the file is <data-dir>/config.yaml and may be missing; an
// explicit path must exist.
func Load(path, dataDir string) (*Config, error) {
	if dataDir == "" {
		dataDir = os.Getenv(EnvDataDir)
	}

	explicit := path != ""
	if !explicit {
		base := dataDir
		if base == "" {
			var err error
			if base, err = DefaultDataDir(); err != nil {
				return nil, err
			}
		}
		path = filepath.Join(base, FileName)
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if cfg.DataDir == "" {
		if cfg.DataDir, err = DefaultDataDir(); err != nil {
			return nil, err
		}
	}
	if cfg.DataDir, err = filepath.Abs(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("failed to resolve data dir: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

var configValidator = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	if err := v.RegisterValidation("cronspec", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(fmt.Sprintf("failed to register cronspec validation: %v", err))
	}
	return v
}

// Validate checks every section. Failures are validation errors naming the
// offending key.
func (c *Config) Validate() error {
	err := configValidator.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		msg := fmt.Sprintf("config key %s failed %s validation", key, fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("config key %s failed %s=%s validation", key, fe.Tag(), fe.Param())
		}
		return domain.NewValidationError(msg).WithDetail("field", key)
	}
	return domain.NewValidationError(err.Error())
}

// EnsureDirs creates the data, log and backup directories.
func (c *Config) EnsureDirs() error {
	backups, err := c.BackupDir()
	if err != nil {
		return err
	}
	for _, dir := range []string{c.DataDir, c.LogDir(), backups} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the database file path after checking that it
// stays inside the data dir.
func (c *Config) DatabasePath() (string, error) {
	return SecurePath(c.DataDir, c.Database.Path)
}

// BackupDir returns the local snapshot directory. Unlike the database it
// may live outside the data dir.
func (c *Config) BackupDir() (string, error) {
	if filepath.IsAbs(c.Backup.Dir) {
		return filepath.Clean(c.Backup.Dir), nil
	}
	return SecurePath(c.DataDir, c.Backup.Dir)
}

// LogDir returns the directory of the daily log files.
func (c *Config) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// SecurePath resolves p against base and rejects results outside base,
// including escapes through symbolic links.
func SecurePath(base, p string) (string, error) {
	if p == "" {
		return "", domain.NewValidationError("path is required")
	}

	base, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", base, err)
	}
	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(base, target)
	}
	target = filepath.Clean(target)

	if !within(base, target) {
		return "", domain.NewPermissionDeniedError(fmt.Sprintf("path %s is outside the data directory", p))
	}

	realBase, err := resolveExisting(base)
	if err != nil {
		return "", err
	}
	realTarget, err := resolveExisting(target)
	if err != nil {
		return "", err
	}
	if !within(realBase, realTarget) {
		return "", domain.NewPermissionDeniedError(fmt.Sprintf("path %s escapes the data directory through a symbolic link", p))
	}

	return target, nil
}

func within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// resolveExisting evaluates symlinks in the longest existing prefix of p
// and re-appends the missing remainder.
func resolveExisting(p string) (string, error) {
	var missing []string
	current := p
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to resolve %s: %w", current, err)
		}
		parent := filepath.Dir(current)
		if parent == current {
			return p, nil
		}
		missing = append(missing, filepath.Base(current))
		current = parent
	}
}

// StoreConfig converts the database section for stores.NewSQLiteStore.
func (c *Config) StoreConfig() (stores.Config, error) {
	path, err := c.DatabasePath()
	if err != nil {
		return stores.Config{}, err
	}
	return stores.Config{
		Path:         path,
		MaxOpenConns: c.Database.MaxOpenConns,
		BusyTimeout:  c.Database.BusyTimeout,
	}, nil
}

// TelemetryOptions converts the logging and telemetry sections.
func (c *Config) TelemetryOptions(version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	if version != "" {
		cfg.ServiceVersion = version
	}
	cfg.Logging.Level = c.Logging.Level
	cfg.Logging.Format = c.Logging.Format
	if c.Logging.File {
		cfg.Logging.Dir = c.LogDir()
	}
	cfg.Tracing.Enabled = c.Telemetry.Exporter != "none"
	cfg.Tracing.Exporter = c.Telemetry.Exporter
	cfg.Tracing.Endpoint = c.Telemetry.Endpoint
	cfg.Tracing.SamplingRate = c.Telemetry.SamplingRate
	cfg.Metrics.Enabled = c.Telemetry.Metrics
	return cfg
}
