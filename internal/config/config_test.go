package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir: "/srv/claims",
		LogDir:  "/srv/claims/log",
		Storage: StorageConfig{Type: "postgres", DSN: "postgres://claims:${PGPASSWORD}@db/claims", ImportLegacy: true},
		Scheduler: SchedulerConfig{
			Workers:              8,
			ShutdownGraceSeconds: 10,
		},
		Registry: RegistryConfig{
			RecentPlayerDays:   14,
			RespectRegionGuard: true,
			NearbyRadius:       64,
			MinY:               -64,
			MaxY:               319,
		},
		Archive: ArchiveConfig{
			Vaults: []VaultConfig{
				{Type: "filesystem", Name: "local", FSVaultRoot: "/backup/vault"},
				{Type: "s3", Name: "offsite", S3Bucket: "claims-backup", S3Region: "eu-west-1"},
			},
			Encryption: EncryptionConfig{
				Type:           "age",
				PublicKeyPath:  "/srv/claims/keys/claims.pub",
				PrivateKeyPath: "/srv/claims/keys/claims.key",
			},
			OnClose: true,
		},
		Worlds: []WorldConfig{
			{Name: "world", ID: "5b0a5a4e-0c2c-4b8e-9d57-7f3c1c8c2a01"},
		},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.Storage != original.Storage {
		t.Errorf("Storage = %+v, want %+v", got.Storage, original.Storage)
	}
	if got.Scheduler != original.Scheduler {
		t.Errorf("Scheduler = %+v, want %+v", got.Scheduler, original.Scheduler)
	}
	if got.Registry != original.Registry {
		t.Errorf("Registry = %+v, want %+v", got.Registry, original.Registry)
	}
	if len(got.Archive.Vaults) != 2 {
		t.Fatalf("len(Archive.Vaults) = %d, want 2", len(got.Archive.Vaults))
	}
	if got.Archive.Vaults[1].S3Bucket != "claims-backup" {
		t.Errorf("Vault.S3Bucket = %q, want %q", got.Archive.Vaults[1].S3Bucket, "claims-backup")
	}
	if got.Archive.Encryption != original.Archive.Encryption {
		t.Errorf("Archive.Encryption = %+v, want %+v", got.Archive.Encryption, original.Archive.Encryption)
	}
	if !got.Archive.OnClose {
		t.Error("Archive.OnClose = false, want true")
	}
	if len(got.Worlds) != 1 || got.Worlds[0] != original.Worlds[0] {
		t.Errorf("Worlds = %+v, want %+v", got.Worlds, original.Worlds)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/claims")

	if cfg.LogDir != "/data/claims/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/claims/log")
	}
	if cfg.Storage.Type != "sqlite" || cfg.Storage.DataDir != "/data/claims/data" {
		t.Errorf("Storage = %+v, want sqlite in /data/claims/data", cfg.Storage)
	}
	if cfg.Scheduler.ShutdownGraceSeconds != 30 {
		t.Errorf("ShutdownGraceSeconds = %d, want 30", cfg.Scheduler.ShutdownGraceSeconds)
	}
	if cfg.Registry.NearbyRadius != 128 {
		t.Errorf("NearbyRadius = %d, want 128", cfg.Registry.NearbyRadius)
	}
	if cfg.Archive.Encryption.PublicKeyPath != "/data/claims/keys/claims.pub" {
		t.Errorf("PublicKeyPath = %q, want %q", cfg.Archive.Encryption.PublicKeyPath, "/data/claims/keys/claims.pub")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown storage type",
			modify:  func(c *Config) { c.Storage.Type = "mysql" },
			wantErr: "Type",
		},
		{
			name:    "sqlite without data_dir",
			modify:  func(c *Config) { c.Storage.DataDir = "" },
			wantErr: "DataDir",
		},
		{
			name:    "file without data_dir",
			modify:  func(c *Config) { c.Storage = StorageConfig{Type: "file"} },
			wantErr: "DataDir",
		},
		{
			name:    "postgres without dsn",
			modify:  func(c *Config) { c.Storage = StorageConfig{Type: "postgres"} },
			wantErr: "DSN",
		},
		{
			name:    "memory needs nothing else",
			modify:  func(c *Config) { c.Storage = StorageConfig{Type: "memory"} },
			wantErr: "",
		},
		{
			name:    "negative workers",
			modify:  func(c *Config) { c.Scheduler.Workers = -1 },
			wantErr: "Workers",
		},
		{
			name:    "max_y below min_y",
			modify:  func(c *Config) { c.Registry.MinY, c.Registry.MaxY = 10, 5 },
			wantErr: "MaxY",
		},
		{
			name: "s3 vault without bucket",
			modify: func(c *Config) {
				c.Archive.Vaults = []VaultConfig{{Type: "s3", Name: "offsite"}}
			},
			wantErr: "S3Bucket",
		},
		{
			name: "filesystem vault without root",
			modify: func(c *Config) {
				c.Archive.Vaults = []VaultConfig{{Type: "filesystem", Name: "local"}}
			},
			wantErr: "FSVaultRoot",
		},
		{
			name:    "world with malformed id",
			modify:  func(c *Config) { c.Worlds = []WorldConfig{{Name: "world", ID: "nope"}} },
			wantErr: "ID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("/data/claims")
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error mentioning %s", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "claims.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "claims.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})

	t.Run("refuses invalid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "claims.toml")
		cfg := NewConfig(dir)
		cfg.Storage.Type = ""

		if err := Init(path, cfg); err == nil {
			t.Fatal("Init() expected validation error")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("config file written despite validation error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "claims.toml")
		cfg := NewConfig(dir)
		cfg.Storage = StorageConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Storage.Type != "memory" {
			t.Errorf("Storage.Type = %q, want %q", got.Storage.Type, "memory")
		}
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "claims.toml")
		content := "base_dir = \"/x\"\nlog_dir = \"/x/log\"\n[storage]\ntype = \"file\"\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		if _, err := ReadFromFile(path); err == nil {
			t.Fatal("ReadFromFile() expected validation error")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/claims.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
