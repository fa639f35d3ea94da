package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPaths(t *testing.T) {
	homeDir, _ := os.UserHomeDir()

	tests := []struct {
		name       string
		env        map[string]string
		wantConfig string
		wantBase   string
	}{
		{
			name:       "explicit overrides win",
			env:        map[string]string{"CLAIMS_CONFIG_PATH": "/custom/config.toml", "CLAIMS_HOME": "/custom/claims", "XDG_CONFIG_HOME": "/xdg/config"},
			wantConfig: "/custom/config.toml",
			wantBase:   "/custom/claims",
		},
		{
			name:       "xdg directories",
			env:        map[string]string{"XDG_CONFIG_HOME": "/xdg/config", "XDG_DATA_HOME": "/xdg/data"},
			wantConfig: "/xdg/config/claims/claims.toml",
			wantBase:   "/xdg/data/claims",
		},
		{
			name:       "home directory fallback",
			wantConfig: filepath.Join(homeDir, ".config", "claims", "claims.toml"),
			wantBase:   filepath.Join(homeDir, ".local", "share", "claims"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"CLAIMS_CONFIG_PATH", "CLAIMS_HOME", "XDG_CONFIG_HOME", "XDG_DATA_HOME"} {
				t.Setenv(k, tt.env[k])
			}

			p, err := DefaultPaths()
			if err != nil {
				t.Fatalf("DefaultPaths() error = %v", err)
			}
			if p.ConfigPath != tt.wantConfig {
				t.Errorf("ConfigPath = %q, want %q", p.ConfigPath, tt.wantConfig)
			}
			if p.BaseDir != tt.wantBase {
				t.Errorf("BaseDir = %q, want %q", p.BaseDir, tt.wantBase)
			}
		})
	}
}

func TestPaths_InitialConfig(t *testing.T) {
	p := Paths{ConfigPath: "/etc/claims.toml", BaseDir: "/srv/claims"}

	t.Run("sqlite under the base dir", func(t *testing.T) {
		t.Setenv("CLAIMS_STORAGE", "")
		t.Setenv("CLAIMS_DSN", "")
		cfg, err := p.InitialConfig()
		if err != nil {
			t.Fatalf("InitialConfig() error = %v", err)
		}
		if cfg.Storage.Type != "sqlite" || cfg.Storage.DataDir != "/srv/claims/data" {
			t.Errorf("Storage = %+v", cfg.Storage)
		}
		if cfg.LogDir != "/srv/claims/log" {
			t.Errorf("LogDir = %q", cfg.LogDir)
		}
	})

	t.Run("postgres from the environment", func(t *testing.T) {
		t.Setenv("CLAIMS_STORAGE", "postgres")
		t.Setenv("CLAIMS_DSN", "postgres://claims:${PGPASSWORD}@db/claims")
		cfg, err := p.InitialConfig()
		if err != nil {
			t.Fatalf("InitialConfig() error = %v", err)
		}
		if cfg.Storage.Type != "postgres" || cfg.Storage.DSN != "postgres://claims:${PGPASSWORD}@db/claims" {
			t.Errorf("Storage = %+v", cfg.Storage)
		}
	})

	t.Run("postgres without a dsn", func(t *testing.T) {
		t.Setenv("CLAIMS_STORAGE", "postgres")
		t.Setenv("CLAIMS_DSN", "")
		if _, err := p.InitialConfig(); err == nil {
			t.Error("InitialConfig() succeeded without a dsn")
		}
	})

	t.Run("unknown storage type", func(t *testing.T) {
		t.Setenv("CLAIMS_STORAGE", "mongo")
		if _, err := p.InitialConfig(); err == nil {
			t.Error("InitialConfig() accepted an unknown storage type")
		}
	})
}
