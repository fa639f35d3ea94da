package app

import (
	"fmt"
	"os"
	"path/filepath"

	"claims-go/internal/config"
)

// Paths locates the config file and the directory that holds claim storage,
// logs and snapshot keys.
type Paths struct {
	ConfigPath string
	BaseDir    string
}

// DefaultPaths resolves Paths from the environment:
//   - CLAIMS_CONFIG_PATH, else $XDG_CONFIG_HOME/claims/claims.toml,
//     else ~/.config/claims/claims.toml
//   - CLAIMS_HOME, else $XDG_DATA_HOME/claims, else ~/.local/share/claims
func DefaultPaths() (Paths, error) {
	configPath, err := envOrXDG("CLAIMS_CONFIG_PATH", "XDG_CONFIG_HOME", ".config", filepath.Join("claims", "claims.toml"))
	if err != nil {
		return Paths{}, err
	}
	baseDir, err := envOrXDG("CLAIMS_HOME", "XDG_DATA_HOME", filepath.Join(".local", "share"), "claims")
	if err != nil {
		return Paths{}, err
	}
	return Paths{ConfigPath: configPath, BaseDir: baseDir}, nil
}

func envOrXDG(override, xdgVar, homeFallback, rel string) (string, error) {
	if path := os.Getenv(override); path != "" {
		return path, nil
	}
	if root := os.Getenv(xdgVar); root != "" {
		return filepath.Join(root, rel), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, homeFallback, rel), nil
}

// InitialConfig returns the config written by "config init": defaults rooted
// at BaseDir, with the storage type taken from CLAIMS_STORAGE and the
// postgres connection string from CLAIMS_DSN when set.
func (p Paths) InitialConfig() (*config.Config, error) {
	cfg := config.NewConfig(p.BaseDir)
	if typ := os.Getenv("CLAIMS_STORAGE"); typ != "" {
		cfg.Storage.Type = typ
	}
	if dsn := os.Getenv("CLAIMS_DSN"); dsn != "" {
		cfg.Storage.DSN = dsn
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
