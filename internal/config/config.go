package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Config represents the main configuration for claims.
type Config struct {
	BaseDir   string          `toml:"base_dir" validate:"required"`
	LogDir    string          `toml:"log_dir" validate:"required"`
	Storage   StorageConfig   `toml:"storage"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Registry  RegistryConfig  `toml:"registry"`
	Archive   ArchiveConfig   `toml:"archive"`
	Worlds    []WorldConfig   `toml:"worlds" validate:"dive"`
}

// StorageConfig selects the persistence backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StorageConfig struct {
	Type string `toml:"type" validate:"required,oneof=sqlite postgres memory file"`

	// Directory for the sqlite database file or the flat-file tree.
	DataDir string `toml:"data_dir,omitempty"`

	// Postgres connection string; $VARS are expanded from the environment.
	DSN string `toml:"dsn,omitempty"`

	// Import legacy claim tables on startup when the claims table is empty.
	ImportLegacy bool `toml:"import_legacy,omitempty"`
}

// SchedulerConfig sizes the write-behind worker pool.
type SchedulerConfig struct {
	Workers              int `toml:"workers" validate:"gte=0,lte=256"`
	ShutdownGraceSeconds int `toml:"shutdown_grace_seconds" validate:"gte=0"`
}

// RegistryConfig tunes the in-memory registry.
type RegistryConfig struct {
	RecentPlayerDays   int  `toml:"recent_player_days" validate:"gte=0"`
	RespectRegionGuard bool `toml:"respect_region_guard"`
	NearbyRadius       int  `toml:"nearby_radius" validate:"gte=0"`
	MinY               int  `toml:"min_y"`
	MaxY               int  `toml:"max_y" validate:"gtefield=MinY"`
}

// ArchiveConfig configures encrypted snapshots.
type ArchiveConfig struct {
	Vaults     []VaultConfig    `toml:"vaults" validate:"dive"`
	Encryption EncryptionConfig `toml:"encryption"`
	// OnClose uploads a snapshot to the first vault when the application closes.
	OnClose bool `toml:"on_close"`
}

// EncryptionConfig holds paths to the age key pair used for encryption.
type EncryptionConfig struct {
	Type           string `toml:"type" validate:"omitempty,oneof=age test"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// VaultConfig represents configuration for a vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type" validate:"required,oneof=memory s3 filesystem"`
	Name string `toml:"name" validate:"required"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket string `toml:"s3_bucket,omitempty" validate:"required_if=Type s3"`
	S3Prefix string `toml:"s3_prefix,omitempty"`
	S3Region string `toml:"s3_region,omitempty"`
	// S3Endpoint points the client at an S3-compatible service such as MinIO.
	S3Endpoint string `toml:"s3_endpoint,omitempty" validate:"omitempty,url"`
	// Static credentials. When empty the default AWS credential chain is used.
	// Values are expanded with environment variables.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty" validate:"required_with=S3SecretAccessKey"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty" validate:"required_with=S3AccessKeyID"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty" validate:"required_if=Type filesystem"`
}

// WorldConfig maps a world name to its id for tools that run without a
// game server, such as the legacy import and orphan cleanup.
type WorldConfig struct {
	Name string `toml:"name" validate:"required"`
	ID   string `toml:"id" validate:"required,uuid"`
}

// NewConfig creates a new Config rooted at baseDir with default settings.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Storage: StorageConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Scheduler: SchedulerConfig{
			Workers:              4,
			ShutdownGraceSeconds: 30,
		},
		Registry: RegistryConfig{
			RecentPlayerDays: 30,
			NearbyRadius:     128,
			MinY:             0,
			MaxY:             255,
		},
		Archive: ArchiveConfig{
			Encryption: EncryptionConfig{
				Type:           "age",
				PublicKeyPath:  filepath.Join(baseDir, "keys", "claims.pub"),
				PrivateKeyPath: filepath.Join(baseDir, "keys", "claims.key"),
			},
		},
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateStorage, StorageConfig{})
	return v
}

// validateStorage enforces the fields each storage type needs.
func validateStorage(sl validator.StructLevel) {
	s := sl.Current().Interface().(StorageConfig)
	switch s.Type {
	case "sqlite", "file":
		if s.DataDir == "" {
			sl.ReportError(s.DataDir, "DataDir", "data_dir", "required_for_type", s.Type)
		}
	case "postgres":
		if s.DSN == "" {
			sl.ReportError(s.DSN, "DSN", "dsn", "required_for_type", s.Type)
		}
	}
}

// Validate checks the config for missing or inconsistent settings.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads and validates a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
