package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"claims-go/internal/archive"
	"claims-go/internal/config"
	"claims-go/internal/database"
)

// The functions below operate on storage directly, without loading a
// registry, for maintenance commands that must run before one can load.

// MigrateStorage brings the storage schema or directory layout up to date.
func MigrateStorage(ctx context.Context, cfg *config.Config) error {
	s, err := openSession(cfg, "MigrateStorage")
	if err != nil {
		return err
	}
	defer s.close()

	backend, err := newBackend(cfg.Storage, s.logger, s.worlds)
	if err != nil {
		return fmt.Errorf("creating storage backend: %w", err)
	}
	defer backend.Close()

	if err := backend.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	s.logger.Info("storage migrated", "type", cfg.Storage.Type)
	return nil
}

// StorageStatus reports whether storage is ready to use without changing it.
func StorageStatus(cfg *config.Config) error {
	if cfg.Storage.Type == "file" {
		info, err := os.Stat(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("data directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("data directory %s is not a directory", cfg.Storage.DataDir)
		}
		return nil
	}

	backend, err := database.NewBackendFromConfig(cfg.Storage, database.Options{})
	if err != nil {
		return err
	}
	defer backend.Close()
	return backend.CheckMigrationStatus()
}

// ImportLegacy copies the legacy claim tables into the current schema.
func ImportLegacy(ctx context.Context, cfg *config.Config) (database.LegacyImportStats, error) {
	var stats database.LegacyImportStats
	if cfg.Storage.Type == "file" {
		return stats, errors.New("legacy import needs relational storage")
	}
	s, err := openSession(cfg, "ImportLegacy")
	if err != nil {
		return stats, err
	}
	defer s.close()

	backend, err := database.NewBackendFromConfig(cfg.Storage, database.Options{Logger: s.logger})
	if err != nil {
		return stats, err
	}
	defer backend.Close()

	if err := backend.Initialize(ctx); err != nil {
		return stats, fmt.Errorf("initializing storage: %w", err)
	}
	stats, err = backend.ImportLegacy(ctx, s.worlds)
	if err != nil {
		return stats, fmt.Errorf("importing legacy data: %w", err)
	}
	s.logger.Info("legacy data imported", "claims", stats.Claims, "subdivisions", stats.Subdivisions,
		"skipped", stats.Skipped, "players", stats.Players)
	return stats, nil
}

// SetupKeys generates the snapshot key pair, protecting the private key with
// passphrase.
func SetupKeys(cfg *config.Config, passphrase string) error {
	enc, _, err := newArchiver(context.Background(), config.ArchiveConfig{Encryption: cfg.Archive.Encryption}, nil)
	if err != nil {
		return err
	}
	if err := enc.Setup(passphrase); err != nil {
		return fmt.Errorf("setting up keys: %w", err)
	}
	return nil
}

// RestoreSnapshot loads a snapshot from the first vault into empty storage.
// An empty name restores the newest snapshot.
func RestoreSnapshot(ctx context.Context, cfg *config.Config, name, passphrase string) (archive.RestoreStats, error) {
	s, err := openSession(cfg, "RestoreSnapshot")
	if err != nil {
		return archive.RestoreStats{}, err
	}
	defer s.close()

	enc, arch, err := newArchiver(ctx, cfg.Archive, s.logger)
	if err != nil {
		return archive.RestoreStats{}, err
	}
	if arch == nil {
		return archive.RestoreStats{}, ErrNoVault
	}
	dec, err := enc.Unlock(passphrase)
	if err != nil {
		return archive.RestoreStats{}, fmt.Errorf("unlocking private key: %w", err)
	}

	backend, err := newBackend(cfg.Storage, s.logger, s.worlds)
	if err != nil {
		return archive.RestoreStats{}, fmt.Errorf("creating storage backend: %w", err)
	}
	defer backend.Close()
	if err := backend.Initialize(ctx); err != nil {
		return archive.RestoreStats{}, fmt.Errorf("initializing storage: %w", err)
	}
	return arch.Restore(ctx, name, dec, backend)
}
