package flatfile

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"claims-go/internal/claims"
)

const (
	claimsDirName  = "claims"
	playersDirName = "players"
	groupFileName  = "gpp_groupdata.yml"
	seqFileName    = "sequence.yml"
	fileExt        = ".yml"
)

// Backend stores every claim and player in its own YAML file:
//
//	<root>/
//	  claims/<id>.yml
//	  players/<uuid>.yml
//	  gpp_groupdata.yml
//	  sequence.yml
//
// Each file is rewritten atomically (temp file + rename) under a FIFO lock.
type Backend struct {
	root        string
	claimsDir   string
	playersDir  string
	logger      claims.Logger
	locks       *fileLocks
	parallelism int

	mu      sync.Mutex
	nextID  int64
	mark    int64 // highest id persisted in sequence.yml
	index   map[int64]claimMeta
	indexed bool
}

// claimMeta is what owner-scope and cascade operations need to find files
// without parsing the whole tree.
type claimMeta struct {
	owner  uuid.UUID
	parent int64
}

var _ claims.Backend = (*Backend)(nil)

// New creates a Backend rooted at root. Directories are created by Initialize.
func New(root string, logger claims.Logger) *Backend {
	if logger == nil {
		logger = claims.NewNopLogger()
	}
	return &Backend{
		root:        root,
		claimsDir:   filepath.Join(root, claimsDirName),
		playersDir:  filepath.Join(root, playersDirName),
		logger:      logger,
		locks:       newFileLocks(),
		parallelism: runtime.GOMAXPROCS(0),
		nextID:      1,
		index:       map[int64]claimMeta{},
	}
}

// Root returns the directory holding the data files.
func (b *Backend) Root() string { return b.root }

// Initialize creates the directory layout and seeds the claim id counter from
// the highest claim file name and the persisted high-water mark.
func (b *Backend) Initialize(ctx context.Context) error {
	for _, dir := range []string{b.claimsDir, b.playersDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	ids, err := b.claimIDs()
	if err != nil {
		return err
	}
	var maxID int64
	if len(ids) > 0 {
		maxID = ids[len(ids)-1]
	}

	var seq sequenceFile
	if err := readYAML(filepath.Join(b.root, seqFileName), &seq); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading claim id sequence: %w", err)
	}

	b.mu.Lock()
	b.mark = seq.LastClaimID
	b.nextID = max(maxID, seq.LastClaimID) + 1
	b.mu.Unlock()
	return nil
}

func (b *Backend) AllocateClaimID(requested int64) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if requested > 0 {
		if requested >= b.nextID {
			b.nextID = requested + 1
		}
		return requested
	}
	id := b.nextID
	b.nextID++
	return id
}

func (b *Backend) NewClaimRecord(ctx context.Context, rec claims.ClaimRecord) error {
	path := b.claimPath(rec.ID)
	unlock, err := b.locks.lock(ctx, path)
	if err != nil {
		return err
	}
	err = writeYAML(path, encodeClaim(rec))
	unlock()
	if err != nil {
		return fmt.Errorf("writing claim %d: %w", rec.ID, err)
	}

	b.mu.Lock()
	b.index[rec.ID] = claimMeta{owner: rec.OwnerID, parent: rec.ParentID}
	b.mu.Unlock()

	return b.advanceMark(ctx, rec.ID)
}

// advanceMark persists id as the high-water mark if it is the highest seen.
func (b *Backend) advanceMark(ctx context.Context, id int64) error {
	path := filepath.Join(b.root, seqFileName)
	unlock, err := b.locks.lock(ctx, path)
	if err != nil {
		return err
	}
	defer unlock()

	b.mu.Lock()
	if id <= b.mark {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	if err := writeYAML(path, sequenceFile{LastClaimID: id}); err != nil {
		return fmt.Errorf("writing claim id sequence: %w", err)
	}
	b.mu.Lock()
	b.mark = id
	b.mu.Unlock()
	return nil
}

// updateClaim rewrites an existing claim file. A missing file is an error;
// updates never recreate a record.
func (b *Backend) updateClaim(ctx context.Context, id int64, fn func(d *claimData)) error {
	path := b.claimPath(id)
	unlock, err := b.locks.lock(ctx, path)
	if err != nil {
		return err
	}
	defer unlock()

	var f claimFile
	if err := readYAML(path, &f); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("claim %d: %w", id, claims.ErrClaimNotFound)
		}
		return fmt.Errorf("reading claim %d: %w", id, err)
	}
	fn(&f.ClaimData)
	if err := writeYAML(path, f); err != nil {
		return fmt.Errorf("writing claim %d: %w", id, err)
	}
	return nil
}

func (b *Backend) UpdateLocation(ctx context.Context, id int64, bounds claims.Rect) error {
	return b.updateClaim(ctx, id, func(d *claimData) {
		d.LesserX, d.LesserZ = bounds.LesserX, bounds.LesserZ
		d.GreaterX, d.GreaterZ = bounds.GreaterX, bounds.GreaterZ
	})
}

func (b *Backend) UpdateOwner(ctx context.Context, id int64, owner uuid.UUID) error {
	err := b.updateClaim(ctx, id, func(d *claimData) {
		d.Owner = claims.EncodeOwner(owner).String()
	})
	if err != nil {
		return err
	}
	b.mu.Lock()
	if m, ok := b.index[id]; ok {
		m.owner = owner
		b.index[id] = m
	}
	b.mu.Unlock()
	return nil
}

func (b *Backend) SetPermission(ctx context.Context, claimID int64, g claims.Grantee, perm claims.Permission) error {
	return b.updateClaim(ctx, claimID, func(d *claimData) {
		if g.Kind == claims.GranteePlayer {
			if d.PlayerPerms == nil {
				d.PlayerPerms = map[string]int{}
			}
			d.PlayerPerms[g.Player.String()] |= int(perm)
			return
		}
		if d.BukkitPerms == nil {
			d.BukkitPerms = map[string]int{}
		}
		d.BukkitPerms[escapeKey(g.GroupKey())] |= int(perm)
	})
}

func (b *Backend) UnsetPermission(ctx context.Context, claimID int64, g claims.Grantee) error {
	return b.updateClaim(ctx, claimID, func(d *claimData) { unsetGrant(d, g) })
}

func unsetGrant(d *claimData, g claims.Grantee) {
	if g.Kind == claims.GranteePlayer {
		delete(d.PlayerPerms, g.Player.String())
		return
	}
	delete(d.BukkitPerms, escapeKey(g.GroupKey()))
}

func (b *Backend) UnsetAllPermissions(ctx context.Context, claimID int64) error {
	return b.updateClaim(ctx, claimID, func(d *claimData) {
		d.PlayerPerms = nil
		d.BukkitPerms = nil
	})
}

func (b *Backend) UnsetOwnerPermission(ctx context.Context, owner uuid.UUID, g claims.Grantee) error {
	return b.forOwnerClaims(ctx, owner, func(d *claimData) { unsetGrant(d, g) })
}

func (b *Backend) UnsetAllOwnerPermissions(ctx context.Context, owner uuid.UUID) error {
	return b.forOwnerClaims(ctx, owner, func(d *claimData) {
		d.PlayerPerms = nil
		d.BukkitPerms = nil
	})
}

func (b *Backend) forOwnerClaims(ctx context.Context, owner uuid.UUID, fn func(d *claimData)) error {
	if err := b.ensureIndex(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	var ids []int64
	for id, m := range b.index {
		if m.owner == owner {
			ids = append(ids, id)
		}
	}
	b.mu.Unlock()
	slices.Sort(ids)

	var errs []error
	for _, id := range ids {
		if err := b.updateClaim(ctx, id, fn); err != nil && !errors.Is(err, claims.ErrClaimNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Backend) DeleteClaimCascade(ctx context.Context, id int64) error {
	_, err := b.deleteCascade(ctx, id)
	return err
}

// deleteCascade removes a claim file and its subdivisions' files and returns
// how many files were removed.
func (b *Backend) deleteCascade(ctx context.Context, id int64) (int, error) {
	if err := b.ensureIndex(ctx); err != nil {
		return 0, err
	}
	b.mu.Lock()
	targets := []int64{}
	for child, m := range b.index {
		if m.parent == id {
			targets = append(targets, child)
		}
	}
	b.mu.Unlock()
	slices.Sort(targets)
	targets = append(targets, id)

	removed := 0
	for _, target := range targets {
		ok, err := b.removeClaimFile(ctx, target)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

func (b *Backend) removeClaimFile(ctx context.Context, id int64) (bool, error) {
	path := b.claimPath(id)
	unlock, err := b.locks.lock(ctx, path)
	if err != nil {
		return false, err
	}
	defer unlock()

	b.mu.Lock()
	delete(b.index, id)
	b.mu.Unlock()

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("deleting claim %d: %w", id, err)
	}
	return true, nil
}

// LoadAllClaims parses every claim file in parallel. Files that fail to parse
// are logged and skipped.
func (b *Backend) LoadAllClaims(ctx context.Context) ([]claims.ClaimRecord, error) {
	ids, err := b.claimIDs()
	if err != nil {
		return nil, err
	}

	recs := make([]*claims.ClaimRecord, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelism)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := b.readClaim(id)
			if err != nil {
				b.logger.Error("skipping unreadable claim file", "claim_id", id, "path", b.claimPath(id), "error", err)
				return nil
			}
			recs[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]claims.ClaimRecord, 0, len(recs))
	b.mu.Lock()
	// Merge rather than replace: a concurrent NewClaimRecord may have indexed
	// a file written after the directory was listed.
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		out = append(out, *rec)
		b.index[rec.ID] = claimMeta{owner: rec.OwnerID, parent: rec.ParentID}
	}
	b.indexed = true
	b.mu.Unlock()
	return out, nil
}

func (b *Backend) LoadClaimRecord(ctx context.Context, id int64) (*claims.ClaimRecord, error) {
	rec, err := b.readClaim(id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("loading claim %d: %w", id, err)
	}
	return rec, nil
}

func (b *Backend) readClaim(id int64) (*claims.ClaimRecord, error) {
	var f claimFile
	if err := readYAML(b.claimPath(id), &f); err != nil {
		return nil, err
	}
	rec, err := decodeClaim(id, f)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (b *Backend) ensureIndex(ctx context.Context) error {
	b.mu.Lock()
	done := b.indexed
	b.mu.Unlock()
	if done {
		return nil
	}
	_, err := b.LoadAllClaims(ctx)
	return err
}

// ClearOrphanClaims deletes top-level claims in worlds that no longer exist
// and subdivisions whose parent is not a surviving top-level claim.
func (b *Backend) ClearOrphanClaims(ctx context.Context, worlds claims.WorldResolver) (int, error) {
	recs, err := b.LoadAllClaims(ctx)
	if err != nil {
		return 0, err
	}

	topLevel := map[int64]bool{}
	removed := 0
	for _, rec := range recs {
		if rec.ParentID != 0 {
			continue
		}
		if worlds.WorldExists(rec.World) {
			topLevel[rec.ID] = true
			continue
		}
		n, err := b.deleteCascade(ctx, rec.ID)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	for _, rec := range recs {
		if rec.ParentID == 0 || topLevel[rec.ParentID] {
			continue
		}
		ok, err := b.removeClaimFile(ctx, rec.ID)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		b.logger.Info("orphan claims removed", "count", removed)
	}
	return removed, nil
}

func (b *Backend) LoadPlayerRecord(ctx context.Context, id uuid.UUID) (*claims.PlayerRecord, error) {
	var f playerFile
	if err := readYAML(b.playerPath(id), &f); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("loading player %s: %w", id, err)
	}
	rec, err := decodePlayer(id, f)
	if err != nil {
		return nil, fmt.Errorf("loading player %s: %w", id, err)
	}
	return &rec, nil
}

// LoadRecentPlayers parses every player file in parallel and keeps those seen
// after since, or all of them when since is zero. Unreadable files are logged
// and skipped.
func (b *Backend) LoadRecentPlayers(ctx context.Context, since time.Time) ([]claims.PlayerRecord, error) {
	entries, err := os.ReadDir(b.playersDir)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}

	recs := make([]*claims.PlayerRecord, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelism)
	for i, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), fileExt)
		if !ok || e.IsDir() {
			continue
		}
		id, err := uuid.Parse(name)
		if err != nil {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := b.LoadPlayerRecord(gctx, id)
			if err != nil {
				b.logger.Error("skipping unreadable player file", "player", id, "error", err)
				return nil
			}
			if rec != nil && (since.IsZero() || rec.LastSeen.After(since)) {
				recs[i] = rec
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []claims.PlayerRecord
	for _, rec := range recs {
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (b *Backend) SavePlayerRecord(ctx context.Context, rec claims.PlayerRecord) error {
	path := b.playerPath(rec.ID)
	unlock, err := b.locks.lock(ctx, path)
	if err != nil {
		return err
	}
	defer unlock()

	if err := writeYAML(path, encodePlayer(rec)); err != nil {
		return fmt.Errorf("saving player %s: %w", rec.ID, err)
	}
	return nil
}

func (b *Backend) LoadGroupBonuses(ctx context.Context) (map[string]int, error) {
	f, err := b.readGroups()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(f.GroupData))
	for key, blocks := range f.GroupData {
		out[unescapeKey(key)] = blocks
	}
	return out, nil
}

func (b *Backend) SaveGroupBonus(ctx context.Context, group string, blocks int) error {
	path := filepath.Join(b.root, groupFileName)
	unlock, err := b.locks.lock(ctx, path)
	if err != nil {
		return err
	}
	defer unlock()

	f, err := b.readGroups()
	if err != nil {
		return err
	}
	if f.GroupData == nil {
		f.GroupData = map[string]int{}
	}
	f.GroupData[escapeKey(group)] = blocks
	if err := writeYAML(path, f); err != nil {
		return fmt.Errorf("saving group bonus for %s: %w", group, err)
	}
	return nil
}

func (b *Backend) readGroups() (groupFile, error) {
	var f groupFile
	err := readYAML(filepath.Join(b.root, groupFileName), &f)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return f, fmt.Errorf("reading group bonuses: %w", err)
	}
	return f, nil
}

// Close is a no-op; every write is complete when its call returns.
func (b *Backend) Close() error { return nil }

// claimIDs lists claim file ids in ascending order.
func (b *Backend) claimIDs() ([]int64, error) {
	entries, err := os.ReadDir(b.claimsDir)
	if err != nil {
		return nil, fmt.Errorf("listing claims: %w", err)
	}
	var ids []int64
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), fileExt)
		if !ok || e.IsDir() {
			continue
		}
		id, err := strconv.ParseInt(name, 10, 64)
		if err != nil || id <= 0 {
			b.logger.Warn("ignoring unexpected file in claims directory", "name", e.Name())
			continue
		}
		ids = append(ids, id)
	}
	slices.SortFunc(ids, cmp.Compare[int64])
	return ids, nil
}

func (b *Backend) claimPath(id int64) string {
	return filepath.Join(b.claimsDir, strconv.FormatInt(id, 10)+fileExt)
}

func (b *Backend) playerPath(id uuid.UUID) string {
	return filepath.Join(b.playersDir, id.String()+fileExt)
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeYAML writes v to path using atomic write (temp file + rename).
func writeYAML(path string, v any) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}

	// Create temp file in the same directory to ensure atomic rename works
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(buf.Bytes()); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
