package archive

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"claims-go/internal/claims"
)

const formatVersion = 1

// document is the plaintext form of a snapshot.
type document struct {
	Version   int            `yaml:"version"`
	CreatedAt time.Time      `yaml:"created_at"`
	Claims    []claimEntry   `yaml:"claims"`
	Players   []playerEntry  `yaml:"players"`
	Groups    map[string]int `yaml:"groups,omitempty"`
}

type claimEntry struct {
	ID      int64  `yaml:"id"`
	Parent  int64  `yaml:"parent,omitempty"`
	World   string `yaml:"world"`
	Owner   string `yaml:"owner"`
	Bounds  []int  `yaml:"bounds,flow"`
	Created int64  `yaml:"created,omitempty"`
	// Players is keyed by player UUID; the nil UUID is the public grant.
	Players map[string]uint8 `yaml:"players,omitempty"`
	// Groups is keyed by group name, fake players carry a "#" prefix.
	Groups map[string]uint8 `yaml:"groups,omitempty"`
}

type playerEntry struct {
	ID       string `yaml:"id"`
	Accrued  int    `yaml:"accrued"`
	Bonus    int    `yaml:"bonus"`
	LastSeen int64  `yaml:"last_seen,omitempty"`
}

// collect reads everything the backend holds. The three loads are independent
// and run concurrently.
func collect(ctx context.Context, backend claims.Backend, now time.Time) (*document, error) {
	var (
		recs    []claims.ClaimRecord
		players []claims.PlayerRecord
		groups  map[string]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		recs, err = backend.LoadAllClaims(gctx)
		return err
	})
	g.Go(func() (err error) {
		players, err = backend.LoadRecentPlayers(gctx, time.Time{})
		return err
	})
	g.Go(func() (err error) {
		groups, err = backend.LoadGroupBonuses(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reading backend: %w", err)
	}

	doc := &document{Version: formatVersion, CreatedAt: now.UTC(), Groups: groups}
	for _, rec := range recs {
		doc.Claims = append(doc.Claims, claimToEntry(rec))
	}
	slices.SortFunc(doc.Claims, func(a, b claimEntry) int { return cmp.Compare(a.ID, b.ID) })
	for _, p := range players {
		doc.Players = append(doc.Players, playerEntry{
			ID:       p.ID.String(),
			Accrued:  p.AccruedBlocks,
			Bonus:    p.BonusBlocks,
			LastSeen: unixMilli(p.LastSeen),
		})
	}
	slices.SortFunc(doc.Players, func(a, b playerEntry) int { return cmp.Compare(a.ID, b.ID) })
	return doc, nil
}

func claimToEntry(rec claims.ClaimRecord) claimEntry {
	e := claimEntry{
		ID:      rec.ID,
		Parent:  rec.ParentID,
		World:   rec.World.String(),
		Owner:   claims.EncodeOwner(rec.OwnerID).String(),
		Bounds:  []int{rec.Bounds.LesserX, rec.Bounds.LesserZ, rec.Bounds.GreaterX, rec.Bounds.GreaterZ},
		Created: unixMilli(rec.CreatedAt),
	}
	if len(rec.PlayerPerms) > 0 {
		e.Players = map[string]uint8{}
		for id, p := range rec.PlayerPerms {
			e.Players[id.String()] = uint8(p)
		}
	}
	if len(rec.GroupPerms)+len(rec.FakePlayerPerms) > 0 {
		e.Groups = map[string]uint8{}
		for name, p := range rec.GroupPerms {
			e.Groups[claims.GroupGrantee(name).GroupKey()] = uint8(p)
		}
		for name, p := range rec.FakePlayerPerms {
			e.Groups[claims.FakePlayerGrantee(name).GroupKey()] = uint8(p)
		}
	}
	return e
}

func entryToClaim(e claimEntry) (claims.ClaimRecord, error) {
	if len(e.Bounds) != 4 {
		return claims.ClaimRecord{}, fmt.Errorf("claim %d bounds: want 4 values, got %d", e.ID, len(e.Bounds))
	}
	world, err := uuid.Parse(e.World)
	if err != nil {
		return claims.ClaimRecord{}, fmt.Errorf("claim %d world: %w", e.ID, err)
	}
	owner, err := uuid.Parse(e.Owner)
	if err != nil {
		return claims.ClaimRecord{}, fmt.Errorf("claim %d owner: %w", e.ID, err)
	}
	rec := claims.ClaimRecord{
		ID:              e.ID,
		World:           world,
		Bounds:          claims.NewRect(e.Bounds[0], e.Bounds[1], e.Bounds[2], e.Bounds[3]),
		OwnerID:         claims.DecodeOwner(owner),
		ParentID:        e.Parent,
		PlayerPerms:     map[uuid.UUID]claims.Permission{},
		GroupPerms:      map[string]claims.Permission{},
		FakePlayerPerms: map[string]claims.Permission{},
	}
	if e.Created != 0 {
		rec.CreatedAt = time.UnixMilli(e.Created)
	}
	for key, p := range e.Players {
		id, err := uuid.Parse(key)
		if err != nil {
			return claims.ClaimRecord{}, fmt.Errorf("claim %d player grant %q: %w", e.ID, key, err)
		}
		rec.PlayerPerms[id] = claims.Permission(p)
	}
	for key, p := range e.Groups {
		g := claims.GranteeFromGroupKey(key)
		if g.Kind == claims.GranteeFakePlayer {
			rec.FakePlayerPerms[g.Name] = claims.Permission(p)
		} else {
			rec.GroupPerms[g.Name] = claims.Permission(p)
		}
	}
	return rec, nil
}

// encode writes doc as YAML through zstd and the encryptor into w.
func encode(doc *document, enc Encryptor, w io.Writer) error {
	ew, err := enc.NewWriter(w)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	zw, err := zstd.NewWriter(ew)
	if err != nil {
		return fmt.Errorf("creating compressor: %w", err)
	}
	if err := yaml.NewEncoder(zw).Encode(doc); err != nil {
		zw.Close()
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalizing compression: %w", err)
	}
	if err := ew.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return nil
}

// decode reverses encode. The stream is read to the end so the encryption
// layer authenticates every byte.
func decode(r io.Reader, dec Decryptor) (*document, error) {
	plain, err := dec.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("creating decrypted reader: %w", err)
	}
	zr, err := zstd.NewReader(plain)
	if err != nil {
		return nil, fmt.Errorf("creating decompressor: %w", err)
	}
	defer zr.Close()

	var doc document
	if err := yaml.NewDecoder(zr).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if _, err := io.Copy(io.Discard, zr); err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	if doc.Version != formatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", doc.Version)
	}
	return &doc, nil
}

// apply writes doc into an empty backend. Top-level claims go first so
// subdivisions always find their parent.
func apply(ctx context.Context, backend claims.Backend, doc *document) (RestoreStats, error) {
	var stats RestoreStats

	entries := slices.Clone(doc.Claims)
	slices.SortFunc(entries, func(a, b claimEntry) int {
		if c := cmp.Compare(min(a.Parent, 1), min(b.Parent, 1)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	for _, e := range entries {
		rec, err := entryToClaim(e)
		if err != nil {
			return stats, err
		}
		backend.AllocateClaimID(rec.ID)
		if err := backend.NewClaimRecord(ctx, rec); err != nil {
			return stats, fmt.Errorf("restoring claim %d: %w", rec.ID, err)
		}
		stats.Claims++
	}

	for _, p := range doc.Players {
		id, err := uuid.Parse(p.ID)
		if err != nil {
			return stats, fmt.Errorf("player %q: %w", p.ID, err)
		}
		rec := claims.PlayerRecord{ID: id, AccruedBlocks: p.Accrued, BonusBlocks: p.Bonus}
		if p.LastSeen != 0 {
			rec.LastSeen = time.UnixMilli(p.LastSeen)
		}
		if err := backend.SavePlayerRecord(ctx, rec); err != nil {
			return stats, fmt.Errorf("restoring player %s: %w", id, err)
		}
		stats.Players++
	}

	for group, blocks := range doc.Groups {
		if err := backend.SaveGroupBonus(ctx, group, blocks); err != nil {
			return stats, fmt.Errorf("restoring group %s: %w", group, err)
		}
		stats.Groups++
	}
	return stats, nil
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
