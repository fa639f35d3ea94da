package archive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"claims-go/internal/claims"
)

const (
	snapshotPrefix = "claims-"
	snapshotSuffix = ".snap"
	// Lexical order of names is chronological order.
	snapshotTimeFormat = "20060102T150405.000Z"
)

// SnapshotName returns the vault name for a snapshot taken at t.
func SnapshotName(t time.Time) string {
	return snapshotPrefix + t.UTC().Format(snapshotTimeFormat) + snapshotSuffix
}

// IsSnapshotName reports whether name was produced by SnapshotName.
func IsSnapshotName(name string) bool {
	ts, ok := strings.CutPrefix(name, snapshotPrefix)
	if !ok {
		return false
	}
	ts, ok = strings.CutSuffix(ts, snapshotSuffix)
	if !ok {
		return false
	}
	_, err := time.Parse(snapshotTimeFormat, ts)
	return err == nil
}

// ExportResult describes a written snapshot.
type ExportResult struct {
	Name    string
	Claims  int
	Players int
	Groups  int
}

// RestoreStats counts what a restore wrote.
type RestoreStats struct {
	Claims  int
	Players int
	Groups  int
}

// Archiver moves snapshots between a backend and one vault.
type Archiver struct {
	vault  Vault
	enc    Encryptor
	clock  claims.Clock
	logger claims.Logger
}

// NewArchiver creates an Archiver. A nil clock uses the real clock and a nil
// logger discards output.
func NewArchiver(vault Vault, enc Encryptor, clock claims.Clock, logger claims.Logger) *Archiver {
	if clock == nil {
		clock = claims.RealClock{}
	}
	if logger == nil {
		logger = claims.NewNopLogger()
	}
	return &Archiver{vault: vault, enc: enc, clock: clock, logger: logger}
}

// Vault returns the vault snapshots are written to.
func (a *Archiver) Vault() Vault { return a.vault }

// Export writes a snapshot of everything in backend to the vault. The
// document is encoded and uploaded concurrently through a pipe.
func (a *Archiver) Export(ctx context.Context, backend claims.Backend) (ExportResult, error) {
	if !a.enc.IsConfigured() {
		return ExportResult{}, fmt.Errorf("encryption keys are not set up")
	}

	now := a.clock.Now()
	doc, err := collect(ctx, backend, now)
	if err != nil {
		return ExportResult{}, err
	}
	res := ExportResult{
		Name:    SnapshotName(now),
		Claims:  len(doc.Claims),
		Players: len(doc.Players),
		Groups:  len(doc.Groups),
	}

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := encode(doc, a.enc, pw)
		pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		err := a.vault.PutSnapshot(gctx, res.Name, pr)
		pr.CloseWithError(err)
		return err
	})
	if err := g.Wait(); err != nil {
		return ExportResult{}, fmt.Errorf("exporting snapshot to %s: %w", a.vault.Name(), err)
	}

	a.logger.Info("snapshot exported", "vault", a.vault.Name(), "snapshot", res.Name,
		"claims", res.Claims, "players", res.Players, "groups", res.Groups)
	return res, nil
}

// Latest returns the name of the newest snapshot in the vault.
func (a *Archiver) Latest(ctx context.Context) (string, error) {
	names, err := a.vault.ListSnapshots(ctx)
	if err != nil {
		return "", err
	}
	for i := len(names) - 1; i >= 0; i-- {
		if IsSnapshotName(names[i]) {
			return names[i], nil
		}
	}
	return "", ErrSnapshotNotFound
}

// Restore reads the named snapshot (the newest when name is empty) into
// backend, which must not contain any claims.
func (a *Archiver) Restore(ctx context.Context, name string, dec Decryptor, backend claims.Backend) (RestoreStats, error) {
	existing, err := backend.LoadAllClaims(ctx)
	if err != nil {
		return RestoreStats{}, fmt.Errorf("checking restore target: %w", err)
	}
	if len(existing) > 0 {
		return RestoreStats{}, ErrBackendNotEmpty
	}

	if name == "" {
		if name, err = a.Latest(ctx); err != nil {
			return RestoreStats{}, err
		}
	}

	var doc *document
	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := a.vault.GetSnapshot(gctx, name, pw)
		pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		var err error
		doc, err = decode(pr, dec)
		pr.CloseWithError(err)
		return err
	})
	if err := g.Wait(); err != nil {
		return RestoreStats{}, fmt.Errorf("reading snapshot %s: %w", name, err)
	}

	stats, err := apply(ctx, backend, doc)
	if err != nil {
		return stats, err
	}
	a.logger.Info("snapshot restored", "vault", a.vault.Name(), "snapshot", name,
		"claims", stats.Claims, "players", stats.Players, "groups", stats.Groups)
	return stats, nil
}
