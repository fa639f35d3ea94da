package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"claims-go/internal/archive"
	"claims-go/internal/claims"
	"claims-go/internal/config"
	"claims-go/internal/database"
	"claims-go/internal/encryption"
	"claims-go/internal/flatfile"
	"claims-go/internal/vault"
	"claims-go/internal/writebehind"
)

// ErrNoVault is returned by snapshot operations when no vault is configured.
var ErrNoVault = errors.New("no archive vault configured")

// ClaimsApp is the application layer between the CLI and the claim registry.
// It constructs all dependencies from config, exposes operations that accept
// raw CLI values, and drains pending writes on Close.
type ClaimsApp struct {
	cfg       *config.Config
	backend   claims.Backend
	registry  *claims.Registry
	worlds    *StaticWorlds
	encryptor archive.Encryptor
	archiver  *archive.Archiver
	metrics   *prometheus.Registry
	logger    claims.Logger
	op        *Operation
	logFile   *os.File
}

// PlayerReport is a player's quota account with the claims it pays for.
type PlayerReport struct {
	Player    *claims.PlayerData
	Claims    []*claims.Claim
	Remaining int
}

// NewClaimsApp creates a fully wired ClaimsApp and loads the registry.
// operation identifies the CLI command being run (e.g. "CreateClaim").
// The caller must call Close when done.
func NewClaimsApp(ctx context.Context, cfg *config.Config, operation string) (*ClaimsApp, error) {
	s, err := openSession(cfg, operation)
	if err != nil {
		return nil, err
	}

	backend, err := newBackend(cfg.Storage, s.logger, s.worlds)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("creating storage backend: %w", err)
	}

	metrics := prometheus.NewRegistry()
	sched := writebehind.New(writebehind.Config{
		Workers:       cfg.Scheduler.Workers,
		ShutdownGrace: time.Duration(cfg.Scheduler.ShutdownGraceSeconds) * time.Second,
	}, s.logger, metrics)

	hooks := claims.Hooks{
		Height: claims.HeightRange{MinY: cfg.Registry.MinY, MaxY: cfg.Registry.MaxY},
		Worlds: s.worlds,
	}
	opts := claims.Options{
		RecentPlayerWindow: time.Duration(cfg.Registry.RecentPlayerDays) * 24 * time.Hour,
		RespectRegionGuard: cfg.Registry.RespectRegionGuard,
		NearbyRadius:       cfg.Registry.NearbyRadius,
	}
	reg := claims.NewRegistry(backend, sched, s.logger, claims.RealClock{}, hooks, opts)
	if err := reg.Initialize(ctx); err != nil {
		reg.Close()
		s.close()
		return nil, fmt.Errorf("loading claims: %w", err)
	}

	enc, arch, err := newArchiver(ctx, cfg.Archive, s.logger)
	if err != nil {
		reg.Close()
		s.close()
		return nil, err
	}

	return &ClaimsApp{
		cfg:       cfg,
		backend:   backend,
		registry:  reg,
		worlds:    s.worlds,
		encryptor: enc,
		archiver:  arch,
		metrics:   metrics,
		logger:    s.logger,
		op:        s.op,
		logFile:   s.logFile,
	}, nil
}

func (a *ClaimsApp) Registry() *claims.Registry { return a.registry }

func (a *ClaimsApp) Worlds() *StaticWorlds { return a.worlds }

// Metrics exposes the write-behind scheduler counters.
func (a *ClaimsApp) Metrics() prometheus.Gatherer { return a.metrics }

// Operation returns the current CLI run.
func (a *ClaimsApp) Operation() *Operation { return a.op }

// ClaimAt returns the most specific claim at (x, z) in the named world.
func (a *ClaimsApp) ClaimAt(world string, x, z int) (*claims.Claim, error) {
	id, err := a.worlds.Resolve(world)
	if err != nil {
		return nil, err
	}
	return a.registry.GetClaimAt(claims.At(id, x, z), true, nil), nil
}

// ListClaims returns the top-level claims of owner. uuid.Nil lists
// administrative claims.
func (a *ClaimsApp) ListClaims(owner uuid.UUID) []*claims.Claim {
	return a.registry.ClaimsOwnedBy(owner)
}

// CreateClaim registers a claim in the named world. A failed validation is
// reported in the result, not as an error.
func (a *ClaimsApp) CreateClaim(world string, bounds claims.Rect, owner uuid.UUID, parent int64) (claims.ClaimResult, error) {
	id, err := a.worlds.Resolve(world)
	if err != nil {
		return claims.ClaimResult{}, err
	}
	res := a.registry.NewClaim(claims.NewClaimRequest{World: id, Bounds: bounds, OwnerID: owner, ParentID: parent})
	if res.OK() {
		a.op.MarkMutating()
	}
	return res, nil
}

// DeleteClaim deletes a claim and its subdivisions.
func (a *ClaimsApp) DeleteClaim(id int64) error {
	c := a.registry.Claim(id)
	if c == nil {
		return fmt.Errorf("claim %d: %w", id, claims.ErrNotRegistered)
	}
	if err := a.registry.DeleteClaim(c); err != nil {
		return fmt.Errorf("deleting claim %d: %w", id, err)
	}
	a.op.MarkMutating()
	return nil
}

// AdjustGroupBonus adds delta to a group's bonus blocks and returns the new total.
func (a *ClaimsApp) AdjustGroupBonus(ctx context.Context, group string, delta int) (int, error) {
	total, err := a.registry.AdjustGroupBonus(ctx, group, delta)
	if err != nil {
		return total, err
	}
	a.op.MarkMutating()
	return total, nil
}

// Player loads a player's account and the claims counted against it.
func (a *ClaimsApp) Player(ctx context.Context, id uuid.UUID, groups ...string) (PlayerReport, error) {
	pd, err := a.registry.PreloadPlayer(ctx, id)
	if err != nil {
		return PlayerReport{}, err
	}
	return PlayerReport{
		Player:    pd,
		Claims:    a.registry.ClaimsOwnedBy(id),
		Remaining: a.registry.RemainingClaimBlocks(id, groups...),
	}, nil
}

// ClearOrphans removes claims in unconfigured worlds and subdivisions
// without a parent. Returns the number of stored records removed.
func (a *ClaimsApp) ClearOrphans(ctx context.Context) (int, error) {
	n, err := a.registry.ClearOrphanClaims(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		a.op.MarkMutating()
	}
	return n, nil
}

func (a *ClaimsApp) Stats() claims.Stats { return a.registry.Stats() }

// KeysConfigured reports whether snapshot keys exist.
func (a *ClaimsApp) KeysConfigured() bool { return a.encryptor.IsConfigured() }

// ExportSnapshot waits for queued writes and uploads an encrypted snapshot
// to the first configured vault.
func (a *ClaimsApp) ExportSnapshot(ctx context.Context) (archive.ExportResult, error) {
	if a.archiver == nil {
		return archive.ExportResult{}, ErrNoVault
	}
	if err := a.registry.Flush(ctx); err != nil {
		return archive.ExportResult{}, fmt.Errorf("flushing queued writes: %w", err)
	}
	return a.archiver.Export(ctx, a.backend)
}

// Close drains queued writes, uploads a snapshot when configured and the run
// changed data, and closes all resources.
func (a *ClaimsApp) Close() error {
	var firstErr error
	ctx := context.Background()

	if a.cfg.Archive.OnClose && a.op.Mutating() && a.archiver != nil {
		if res, err := a.ExportSnapshot(ctx); err != nil {
			firstErr = fmt.Errorf("uploading snapshot on close: %w", err)
		} else {
			a.logger.Info("snapshot uploaded on close", "name", res.Name, "claims", res.Claims)
		}
	}

	if err := a.registry.Close(); err != nil {
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		a.op.Fail()
	}

	a.logger.Info("operation finished", "op", a.op.Name, "status", a.op.Status,
		"duration", time.Since(a.op.Started).Truncate(time.Millisecond))
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// session holds what every command needs, with or without a registry.
type session struct {
	op      *Operation
	logger  claims.Logger
	logFile *os.File
	worlds  *StaticWorlds
}

func openSession(cfg *config.Config, operation string) (*session, error) {
	worlds, err := NewStaticWorlds(cfg.Worlds)
	if err != nil {
		return nil, fmt.Errorf("loading worlds: %w", err)
	}
	op := NewOperation(operation, time.Now())
	logger, logFile, err := newLogger(cfg.LogDir, op.RunID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}
	adapter.Info("operation started", "op", operation)
	return &session{op: op, logger: adapter, logFile: logFile, worlds: worlds}, nil
}

func (s *session) close() {
	if s.logFile != nil {
		s.logFile.Close()
	}
}

// newBackend picks the storage implementation for the configured type.
func newBackend(cfg config.StorageConfig, logger claims.Logger, worlds claims.WorldResolver) (claims.Backend, error) {
	if cfg.Type == "file" {
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for file storage")
		}
		return flatfile.New(cfg.DataDir, logger), nil
	}
	return database.NewBackendFromConfig(cfg, database.Options{
		Logger:       logger,
		ImportLegacy: cfg.ImportLegacy,
		Worlds:       worlds,
	})
}

// newArchiver wires the encryptor and, when a vault is configured, an archiver
// on the first vault.
func newArchiver(ctx context.Context, cfg config.ArchiveConfig, logger claims.Logger) (archive.Encryptor, *archive.Archiver, error) {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, nil, fmt.Errorf("creating encryptor: %w", err)
	}
	if len(cfg.Vaults) == 0 {
		return enc, nil, nil
	}
	v, err := vault.NewVaultFromConfig(ctx, cfg.Vaults[0])
	if err != nil {
		return nil, nil, fmt.Errorf("creating vault: %w", err)
	}
	return enc, archive.NewArchiver(v, enc, claims.RealClock{}, logger), nil
}
