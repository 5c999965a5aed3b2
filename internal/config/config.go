// Package config loads and validates the application configuration from
// a YAML file. Missing values fall back to documented defaults; numeric
// options outside their range are clamped with a warning rather than
// rejected.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	_ "embed"

	"taskbridge/backend"
	"taskbridge/backend/board"
	"taskbridge/internal/utils"
)

//go:embed config.sample.yaml
var sampleConfig []byte

const (
	CONFIG_DIR_PATH  = "taskbridge"
	CONFIG_FILE_PATH = "config.yaml"
	CONFIG_DIR_PERM  = 0755
	CONFIG_FILE_PERM = 0644
)

// Defaults and ranges for the hybrid options.
const (
	DefaultSyncInterval  = 300
	MinSyncInterval      = 60
	MaxSyncInterval      = 3600
	DefaultRetryAttempts = 3
	MaxRetryAttempts     = 10
	DefaultTimeoutMs     = 30000
	DefaultCacheTTLMs    = 30000
)

// HybridConfig controls the façade and the sync engine.
type HybridConfig struct {
	PrimaryProvider    string `yaml:"primaryProvider" validate:"omitempty,oneof=local remote"`
	AutoSync           bool   `yaml:"autoSync"`
	SyncOnWrite        *bool  `yaml:"syncOnWrite"`
	ConflictResolution string `yaml:"conflictResolution" validate:"omitempty,oneof=manual local-wins remote-wins newest-wins"`
	SyncInterval       int    `yaml:"syncInterval"`
	RetryAttempts      *int   `yaml:"retryAttempts"`
	Timeout            int    `yaml:"timeout"`
}

// PersistenceConfig wraps the hybrid options.
type PersistenceConfig struct {
	HybridConfig HybridConfig `yaml:"hybridConfig"`
}

// LocalConfig selects and locates the local store.
type LocalConfig struct {
	Provider  string `yaml:"provider" validate:"omitempty,oneof=file sqlite"`
	Path      string `yaml:"path"`
	DBPath    string `yaml:"dbPath"`
	QueuePath string `yaml:"queuePath"`
}

// RemoteConfig locates the board and its column layout.
type RemoteConfig struct {
	Enabled       bool                `yaml:"enabled"`
	Endpoint      string              `yaml:"endpoint" validate:"omitempty,url"`
	BoardID       string              `yaml:"boardId"`
	CacheTTL      int                 `yaml:"cacheTtl"`
	ColumnMapping board.ColumnMapping `yaml:"columnMapping"`
}

// Config is the root of the configuration file.
type Config struct {
	Verbose     bool              `yaml:"verbose"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Local       LocalConfig       `yaml:"local"`
	Remote      RemoteConfig      `yaml:"remote"`
}

// SyncOnWriteEnabled resolves the tri-state flag; unset means enabled.
func (h HybridConfig) SyncOnWriteEnabled() bool {
	return h.SyncOnWrite == nil || *h.SyncOnWrite
}

// RetryBudget resolves the retry count; unset means the default.
func (h HybridConfig) RetryBudget() int {
	if h.RetryAttempts == nil {
		return DefaultRetryAttempts
	}
	return *h.RetryAttempts
}

// DefaultPath returns the per-user config location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}
	return filepath.Join(dir, CONFIG_DIR_PATH, CONFIG_FILE_PATH), nil
}

// Load reads the config at path, or the embedded sample when the file
// does not exist. Defaults are applied and the result validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		utils.Debugf("no config at %s, using built-in defaults", path)
		data = sampleConfig
	} else if err != nil {
		return nil, backend.NewStoreError("LoadConfig", backend.KindIO,
			fmt.Sprintf("failed to read %s", path)).WithError(err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a raw config document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, backend.NewStoreError("LoadConfig", backend.KindConfig,
			"invalid config file").WithError(err)
	}
	cfg.applyDefaults()
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandPaths resolves ~ and environment variables in the file locations.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Local.Path, &c.Local.DBPath, &c.Local.QueuePath} {
		expanded, err := utils.ExpandPath(*p)
		if err != nil {
			return backend.NewStoreError("LoadConfig", backend.KindConfig,
				"failed to expand path").WithError(err)
		}
		*p = expanded
	}
	return nil
}

// WriteSample materializes the embedded sample at path, creating parent
// directories. Refuses to overwrite an existing file.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return backend.NewStoreError("WriteSample", backend.KindConfig,
			fmt.Sprintf("%s already exists", path))
	}
	if err := os.MkdirAll(filepath.Dir(path), CONFIG_DIR_PERM); err != nil {
		return backend.NewStoreError("WriteSample", backend.KindIO,
			"failed to create config dir").WithError(err)
	}
	if err := os.WriteFile(path, sampleConfig, CONFIG_FILE_PERM); err != nil {
		return backend.NewStoreError("WriteSample", backend.KindIO,
			"failed to write config").WithError(err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	h := &c.Persistence.HybridConfig
	if h.PrimaryProvider == "" {
		h.PrimaryProvider = "local"
	}
	if h.ConflictResolution == "" {
		h.ConflictResolution = "manual"
	}
	if h.SyncInterval == 0 {
		h.SyncInterval = DefaultSyncInterval
	}
	if h.SyncInterval < MinSyncInterval {
		utils.Warnf("syncInterval %d below minimum, clamping to %d", h.SyncInterval, MinSyncInterval)
		h.SyncInterval = MinSyncInterval
	}
	if h.SyncInterval > MaxSyncInterval {
		utils.Warnf("syncInterval %d above maximum, clamping to %d", h.SyncInterval, MaxSyncInterval)
		h.SyncInterval = MaxSyncInterval
	}
	if h.Timeout == 0 {
		h.Timeout = DefaultTimeoutMs
	}

	if c.Local.Provider == "" {
		c.Local.Provider = "file"
	}
	if c.Remote.CacheTTL == 0 {
		c.Remote.CacheTTL = DefaultCacheTTLMs
	}
	if (c.Remote.ColumnMapping == board.ColumnMapping{}) {
		c.Remote.ColumnMapping = board.DefaultColumnMapping()
	}
}

// Validate checks struct tags plus the cross-field rules the tags cannot
// express.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return backend.NewStoreError("LoadConfig", backend.KindConfig,
			"config validation failed").WithError(err)
	}

	h := c.Persistence.HybridConfig
	if budget := h.RetryBudget(); budget < 0 || budget > MaxRetryAttempts {
		return backend.NewStoreError("LoadConfig", backend.KindConfig,
			fmt.Sprintf("retryAttempts %d out of range 0-%d", budget, MaxRetryAttempts))
	}

	if c.Remote.Enabled {
		if c.Remote.BoardID == "" {
			return backend.NewStoreError("LoadConfig", backend.KindConfig,
				"remote.boardId is required when the remote is enabled")
		}
		if c.Remote.Endpoint == "" {
			return backend.NewStoreError("LoadConfig", backend.KindConfig,
				"remote.endpoint is required when the remote is enabled")
		}
	}
	if h.PrimaryProvider == "remote" && !c.Remote.Enabled {
		return backend.NewStoreError("LoadConfig", backend.KindConfig,
			"primaryProvider remote requires an enabled remote")
	}

	switch c.Local.Provider {
	case "file":
		if c.Local.Path == "" {
			return backend.NewStoreError("LoadConfig", backend.KindConfig,
				"local.path is required for the file provider")
		}
	case "sqlite":
		if c.Local.DBPath == "" {
			return backend.NewStoreError("LoadConfig", backend.KindConfig,
				"local.dbPath is required for the sqlite provider")
		}
	}
	return nil
}
