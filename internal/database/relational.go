package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"claims-go/internal/claims"
	"claims-go/internal/database/migrations"
)

// noParent is the parent_id stored for top-level claims.
const noParent = -1

// claimSequence names the claim id high-water mark in id_sequence.
const claimSequence = "claims"

// Options configures a RelationalBackend.
type Options struct {
	Logger claims.Logger
	// ImportLegacy imports the legacy claim tables on Initialize when they
	// exist and the claims table is empty. Requires Worlds.
	ImportLegacy bool
	Worlds       claims.WorldResolver
}

// RelationalBackend stores claims in SQLite or PostgreSQL.
type RelationalBackend struct {
	db      *sql.DB
	dialect string
	logger  claims.Logger
	opts    Options

	mu     sync.Mutex
	nextID int64
}

var _ claims.Backend = (*RelationalBackend)(nil)

// NewRelationalBackend opens a connection. Schema changes wait for Initialize.
func NewRelationalBackend(dialect, dsn string, opts Options) (*RelationalBackend, error) {
	db, err := OpenConnection(dialect, dsn)
	if err != nil {
		return nil, err
	}
	return NewRelationalBackendFromDB(db, dialect, opts), nil
}

// NewRelationalBackendFromDB wraps an existing connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewRelationalBackendFromDB(db *sql.DB, dialect string, opts Options) *RelationalBackend {
	if opts.Logger == nil {
		opts.Logger = claims.NewNopLogger()
	}
	return &RelationalBackend{
		db:      db,
		dialect: dialect,
		logger:  opts.Logger,
		opts:    opts,
		nextID:  1,
	}
}

// DB exposes the connection for maintenance commands.
func (b *RelationalBackend) DB() *sql.DB { return b.db }

func (b *RelationalBackend) Dialect() string { return b.dialect }

// Initialize migrates the schema, seeds the claim id counter and runs the
// legacy import when due.
func (b *RelationalBackend) Initialize(ctx context.Context) error {
	if err := migrations.MigrateUp(b.db, b.dialect); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	if err := b.seedSequence(ctx); err != nil {
		return err
	}

	if b.opts.ImportLegacy {
		due, err := b.legacyImportDue(ctx)
		if err != nil {
			return err
		}
		if due {
			stats, err := b.ImportLegacy(ctx, b.opts.Worlds)
			if err != nil {
				return fmt.Errorf("importing legacy data: %w", err)
			}
			b.logger.Info("legacy data imported", "claims", stats.Claims, "subdivisions", stats.Subdivisions,
				"skipped", stats.Skipped, "players", stats.Players)
		}
	}
	return nil
}

func (b *RelationalBackend) seedSequence(ctx context.Context) error {
	var maxID int64
	err := b.queryRow(ctx, b.db, "SELECT COALESCE(MAX(id), 0) FROM claims").Scan(&maxID)
	if err != nil {
		return fmt.Errorf("reading max claim id: %w", err)
	}

	var mark int64
	err = b.queryRow(ctx, b.db, "SELECT value FROM id_sequence WHERE name = ?", claimSequence).Scan(&mark)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("reading claim id sequence: %w", err)
	}

	b.mu.Lock()
	b.nextID = max(maxID, mark) + 1
	b.mu.Unlock()
	return nil
}

func (b *RelationalBackend) AllocateClaimID(requested int64) int64 {
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

func (b *RelationalBackend) NewClaimRecord(ctx context.Context, rec claims.ClaimRecord) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := b.insertClaim(ctx, tx, rec); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// insertClaim writes a claim, its grants and the id high-water mark.
func (b *RelationalBackend) insertClaim(ctx context.Context, ex executor, rec claims.ClaimRecord) error {
	parent := int64(noParent)
	if rec.ParentID != 0 {
		parent = rec.ParentID
	}
	_, err := b.exec(ctx, ex, `INSERT INTO claims
		(id, owner, world, lesser_x, lesser_z, greater_x, greater_z, parent_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, claims.EncodeOwner(rec.OwnerID).String(), rec.World.String(),
		rec.Bounds.LesserX, rec.Bounds.LesserZ, rec.Bounds.GreaterX, rec.Bounds.GreaterZ,
		parent, toMillis(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting claim %d: %w", rec.ID, err)
	}

	for player, perm := range rec.PlayerPerms {
		if err := b.setPermission(ctx, ex, rec.ID, claims.PlayerGrantee(player), perm); err != nil {
			return err
		}
	}
	for name, perm := range rec.GroupPerms {
		if err := b.setPermission(ctx, ex, rec.ID, claims.GroupGrantee(name), perm); err != nil {
			return err
		}
	}
	for name, perm := range rec.FakePlayerPerms {
		if err := b.setPermission(ctx, ex, rec.ID, claims.FakePlayerGrantee(name), perm); err != nil {
			return err
		}
	}

	_, err = b.exec(ctx, ex, `INSERT INTO id_sequence (name, value) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value
		WHERE id_sequence.value < excluded.value`, claimSequence, rec.ID)
	if err != nil {
		return fmt.Errorf("advancing claim id sequence: %w", err)
	}
	return nil
}

func (b *RelationalBackend) UpdateLocation(ctx context.Context, id int64, bounds claims.Rect) error {
	res, err := b.exec(ctx, b.db,
		"UPDATE claims SET lesser_x = ?, lesser_z = ?, greater_x = ?, greater_z = ? WHERE id = ?",
		bounds.LesserX, bounds.LesserZ, bounds.GreaterX, bounds.GreaterZ, id)
	if err != nil {
		return fmt.Errorf("updating location of claim %d: %w", id, err)
	}
	return requireRow(res, id)
}

func (b *RelationalBackend) UpdateOwner(ctx context.Context, id int64, owner uuid.UUID) error {
	res, err := b.exec(ctx, b.db, "UPDATE claims SET owner = ? WHERE id = ?",
		claims.EncodeOwner(owner).String(), id)
	if err != nil {
		return fmt.Errorf("updating owner of claim %d: %w", id, err)
	}
	return requireRow(res, id)
}

func (b *RelationalBackend) SetPermission(ctx context.Context, claimID int64, g claims.Grantee, perm claims.Permission) error {
	return b.setPermission(ctx, b.db, claimID, g, perm)
}

func (b *RelationalBackend) setPermission(ctx context.Context, ex executor, claimID int64, g claims.Grantee, perm claims.Permission) error {
	var err error
	if g.Kind == claims.GranteePlayer {
		_, err = b.exec(ctx, ex, `INSERT INTO claim_player_perms (claim_id, player, perm) VALUES (?, ?, ?)
			ON CONFLICT (claim_id, player) DO UPDATE SET perm = claim_player_perms.perm | excluded.perm`,
			claimID, g.Player.String(), int(perm))
	} else {
		_, err = b.exec(ctx, ex, `INSERT INTO claim_group_perms (claim_id, name, perm) VALUES (?, ?, ?)
			ON CONFLICT (claim_id, name) DO UPDATE SET perm = claim_group_perms.perm | excluded.perm`,
			claimID, g.GroupKey(), int(perm))
	}
	if err != nil {
		return fmt.Errorf("setting permission %s for %s on claim %d: %w", perm, g, claimID, err)
	}
	return nil
}

func (b *RelationalBackend) UnsetPermission(ctx context.Context, claimID int64, g claims.Grantee) error {
	var err error
	if g.Kind == claims.GranteePlayer {
		_, err = b.exec(ctx, b.db, "DELETE FROM claim_player_perms WHERE claim_id = ? AND player = ?",
			claimID, g.Player.String())
	} else {
		_, err = b.exec(ctx, b.db, "DELETE FROM claim_group_perms WHERE claim_id = ? AND name = ?",
			claimID, g.GroupKey())
	}
	if err != nil {
		return fmt.Errorf("unsetting permission for %s on claim %d: %w", g, claimID, err)
	}
	return nil
}

func (b *RelationalBackend) UnsetAllPermissions(ctx context.Context, claimID int64) error {
	return b.inTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			"DELETE FROM claim_player_perms WHERE claim_id = ?",
			"DELETE FROM claim_group_perms WHERE claim_id = ?",
		} {
			if _, err := b.exec(ctx, tx, q, claimID); err != nil {
				return fmt.Errorf("clearing permissions on claim %d: %w", claimID, err)
			}
		}
		return nil
	})
}

func (b *RelationalBackend) UnsetOwnerPermission(ctx context.Context, owner uuid.UUID, g claims.Grantee) error {
	stored := claims.EncodeOwner(owner).String()
	var err error
	if g.Kind == claims.GranteePlayer {
		_, err = b.exec(ctx, b.db, `DELETE FROM claim_player_perms WHERE player = ?
			AND claim_id IN (SELECT id FROM claims WHERE owner = ?)`, g.Player.String(), stored)
	} else {
		_, err = b.exec(ctx, b.db, `DELETE FROM claim_group_perms WHERE name = ?
			AND claim_id IN (SELECT id FROM claims WHERE owner = ?)`, g.GroupKey(), stored)
	}
	if err != nil {
		return fmt.Errorf("unsetting permission for %s on claims of %s: %w", g, owner, err)
	}
	return nil
}

func (b *RelationalBackend) UnsetAllOwnerPermissions(ctx context.Context, owner uuid.UUID) error {
	stored := claims.EncodeOwner(owner).String()
	return b.inTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			"DELETE FROM claim_player_perms WHERE claim_id IN (SELECT id FROM claims WHERE owner = ?)",
			"DELETE FROM claim_group_perms WHERE claim_id IN (SELECT id FROM claims WHERE owner = ?)",
		} {
			if _, err := b.exec(ctx, tx, q, stored); err != nil {
				return fmt.Errorf("clearing permissions on claims of %s: %w", owner, err)
			}
		}
		return nil
	})
}

func (b *RelationalBackend) DeleteClaimCascade(ctx context.Context, id int64) error {
	return b.inTx(ctx, func(tx *sql.Tx) error {
		_, err := b.deleteCascade(ctx, tx, id)
		return err
	})
}

// deleteCascade returns the number of claim rows removed.
func (b *RelationalBackend) deleteCascade(ctx context.Context, ex executor, id int64) (int, error) {
	for _, q := range []string{
		"DELETE FROM claim_player_perms WHERE claim_id IN (SELECT id FROM claims WHERE id = ? OR parent_id = ?)",
		"DELETE FROM claim_group_perms WHERE claim_id IN (SELECT id FROM claims WHERE id = ? OR parent_id = ?)",
	} {
		if _, err := b.exec(ctx, ex, q, id, id); err != nil {
			return 0, fmt.Errorf("deleting permissions of claim %d: %w", id, err)
		}
	}
	res, err := b.exec(ctx, ex, "DELETE FROM claims WHERE id = ? OR parent_id = ?", id, id)
	if err != nil {
		return 0, fmt.Errorf("deleting claim %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted claims: %w", err)
	}
	return int(n), nil
}

func (b *RelationalBackend) LoadAllClaims(ctx context.Context) ([]claims.ClaimRecord, error) {
	recs, err := b.loadClaims(ctx, "", nil)
	if err != nil {
		return nil, err
	}
	out := make([]claims.ClaimRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, *rec)
	}
	return out, nil
}

func (b *RelationalBackend) LoadClaimRecord(ctx context.Context, id int64) (*claims.ClaimRecord, error) {
	recs, err := b.loadClaims(ctx, " WHERE id = ?", []any{id})
	if err != nil {
		return nil, err
	}
	return recs[id], nil
}

// loadClaims reads claims matching where, then attaches their grants. Rows
// are fully drained before the next query so a single connection suffices.
func (b *RelationalBackend) loadClaims(ctx context.Context, where string, args []any) (map[int64]*claims.ClaimRecord, error) {
	rows, err := b.query(ctx, b.db, `SELECT id, owner, world, lesser_x, lesser_z, greater_x, greater_z,
		parent_id, created_at FROM claims`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("loading claims: %w", err)
	}
	recs := map[int64]*claims.ClaimRecord{}
	for rows.Next() {
		var (
			id, parent, created int64
			owner, world        string
			r                   claims.Rect
		)
		if err := rows.Scan(&id, &owner, &world, &r.LesserX, &r.LesserZ, &r.GreaterX, &r.GreaterZ, &parent, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning claim: %w", err)
		}
		ownerID, err := uuid.Parse(owner)
		if err != nil {
			b.logger.Error("skipping claim with unparseable owner", "claim_id", id, "owner", owner, "error", err)
			continue
		}
		worldID, err := uuid.Parse(world)
		if err != nil {
			b.logger.Error("skipping claim with unparseable world", "claim_id", id, "world", world, "error", err)
			continue
		}
		if parent == noParent {
			parent = 0
		}
		recs[id] = &claims.ClaimRecord{
			ID:              id,
			World:           worldID,
			Bounds:          r.Normalize(),
			OwnerID:         claims.DecodeOwner(ownerID),
			ParentID:        parent,
			CreatedAt:       fromMillis(created),
			PlayerPerms:     map[uuid.UUID]claims.Permission{},
			GroupPerms:      map[string]claims.Permission{},
			FakePlayerPerms: map[string]claims.Permission{},
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("reading claims: %w", err)
	}
	rows.Close()

	permWhere := ""
	if where != "" {
		permWhere = " WHERE claim_id = ?"
	}

	rows, err = b.query(ctx, b.db, "SELECT claim_id, player, perm FROM claim_player_perms"+permWhere, args...)
	if err != nil {
		return nil, fmt.Errorf("loading player permissions: %w", err)
	}
	for rows.Next() {
		var (
			claimID int64
			player  string
			perm    int
		)
		if err := rows.Scan(&claimID, &player, &perm); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning player permission: %w", err)
		}
		rec := recs[claimID]
		if rec == nil {
			continue
		}
		id, err := uuid.Parse(player)
		if err != nil {
			b.logger.Error("skipping unparseable player permission", "claim_id", claimID, "player", player)
			continue
		}
		rec.PlayerPerms[id] = claims.Permission(perm)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("reading player permissions: %w", err)
	}
	rows.Close()

	rows, err = b.query(ctx, b.db, "SELECT claim_id, name, perm FROM claim_group_perms"+permWhere, args...)
	if err != nil {
		return nil, fmt.Errorf("loading group permissions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			claimID int64
			name    string
			perm    int
		)
		if err := rows.Scan(&claimID, &name, &perm); err != nil {
			return nil, fmt.Errorf("scanning group permission: %w", err)
		}
		rec := recs[claimID]
		if rec == nil {
			continue
		}
		g := claims.GranteeFromGroupKey(name)
		if g.Kind == claims.GranteeFakePlayer {
			rec.FakePlayerPerms[g.Name] = claims.Permission(perm)
		} else {
			rec.GroupPerms[g.Name] = claims.Permission(perm)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading group permissions: %w", err)
	}
	return recs, nil
}

func (b *RelationalBackend) LoadPlayerRecord(ctx context.Context, id uuid.UUID) (*claims.PlayerRecord, error) {
	rec := claims.PlayerRecord{ID: id}
	var lastSeen int64
	err := b.queryRow(ctx, b.db,
		"SELECT accrued_blocks, bonus_blocks, last_seen FROM player_data WHERE player = ?", id.String()).
		Scan(&rec.AccruedBlocks, &rec.BonusBlocks, &lastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("loading player %s: %w", id, err)
	}
	rec.LastSeen = fromMillis(lastSeen)
	return &rec, nil
}

func (b *RelationalBackend) LoadRecentPlayers(ctx context.Context, since time.Time) ([]claims.PlayerRecord, error) {
	threshold := toMillis(since)
	if since.IsZero() {
		threshold = -1
	}
	rows, err := b.query(ctx, b.db,
		"SELECT player, accrued_blocks, bonus_blocks, last_seen FROM player_data WHERE last_seen > ?",
		threshold)
	if err != nil {
		return nil, fmt.Errorf("loading recent players: %w", err)
	}
	defer rows.Close()

	var out []claims.PlayerRecord
	for rows.Next() {
		var (
			player   string
			rec      claims.PlayerRecord
			lastSeen int64
		)
		if err := rows.Scan(&player, &rec.AccruedBlocks, &rec.BonusBlocks, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning player: %w", err)
		}
		id, err := uuid.Parse(player)
		if err != nil {
			b.logger.Error("skipping player with unparseable id", "player", player, "error", err)
			continue
		}
		rec.ID = id
		rec.LastSeen = fromMillis(lastSeen)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading players: %w", err)
	}
	return out, nil
}

func (b *RelationalBackend) SavePlayerRecord(ctx context.Context, rec claims.PlayerRecord) error {
	return b.savePlayer(ctx, b.db, rec)
}

func (b *RelationalBackend) savePlayer(ctx context.Context, ex executor, rec claims.PlayerRecord) error {
	_, err := b.exec(ctx, ex, `INSERT INTO player_data (player, accrued_blocks, bonus_blocks, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (player) DO UPDATE SET accrued_blocks = excluded.accrued_blocks,
		bonus_blocks = excluded.bonus_blocks, last_seen = excluded.last_seen`,
		rec.ID.String(), rec.AccruedBlocks, rec.BonusBlocks, toMillis(rec.LastSeen))
	if err != nil {
		return fmt.Errorf("saving player %s: %w", rec.ID, err)
	}
	return nil
}

func (b *RelationalBackend) LoadGroupBonuses(ctx context.Context) (map[string]int, error) {
	rows, err := b.query(ctx, b.db, "SELECT name, blocks FROM group_data")
	if err != nil {
		return nil, fmt.Errorf("loading group bonuses: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			name   string
			blocks int
		)
		if err := rows.Scan(&name, &blocks); err != nil {
			return nil, fmt.Errorf("scanning group bonus: %w", err)
		}
		out[name] = blocks
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading group bonuses: %w", err)
	}
	return out, nil
}

func (b *RelationalBackend) SaveGroupBonus(ctx context.Context, group string, blocks int) error {
	_, err := b.exec(ctx, b.db, `INSERT INTO group_data (name, blocks) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET blocks = excluded.blocks`, group, blocks)
	if err != nil {
		return fmt.Errorf("saving group bonus for %s: %w", group, err)
	}
	return nil
}

func (b *RelationalBackend) ClearOrphanClaims(ctx context.Context, worlds claims.WorldResolver) (int, error) {
	rows, err := b.query(ctx, b.db, "SELECT id, world FROM claims WHERE parent_id = ?", noParent)
	if err != nil {
		return 0, fmt.Errorf("listing top-level claims: %w", err)
	}
	var gone []int64
	for rows.Next() {
		var (
			id    int64
			world string
		)
		if err := rows.Scan(&id, &world); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning claim: %w", err)
		}
		if w, err := uuid.Parse(world); err != nil || !worlds.WorldExists(w) {
			gone = append(gone, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("reading claims: %w", err)
	}
	rows.Close()

	removed := 0
	err = b.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range gone {
			n, err := b.deleteCascade(ctx, tx, id)
			if err != nil {
				return err
			}
			removed += n
		}

		for _, q := range []string{
			`DELETE FROM claim_player_perms WHERE claim_id IN (SELECT id FROM claims WHERE parent_id <> -1
				AND parent_id NOT IN (SELECT id FROM claims WHERE parent_id = -1))`,
			`DELETE FROM claim_group_perms WHERE claim_id IN (SELECT id FROM claims WHERE parent_id <> -1
				AND parent_id NOT IN (SELECT id FROM claims WHERE parent_id = -1))`,
		} {
			if _, err := b.exec(ctx, tx, q); err != nil {
				return fmt.Errorf("deleting orphan subdivision permissions: %w", err)
			}
		}
		res, err := b.exec(ctx, tx, `DELETE FROM claims WHERE parent_id <> -1
			AND parent_id NOT IN (SELECT id FROM claims WHERE parent_id = -1)`)
		if err != nil {
			return fmt.Errorf("deleting orphan subdivisions: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("counting orphan subdivisions: %w", err)
		}
		removed += int(n)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		b.logger.Info("orphan claims removed", "count", removed, "missing_world_claims", len(gone))
	}
	return removed, nil
}

// CheckMigrationStatus reports whether the schema is current without changing it.
func (b *RelationalBackend) CheckMigrationStatus() error {
	return migrations.CheckDBMigrationStatus(b.db, b.dialect)
}

func (b *RelationalBackend) Close() error {
	return b.db.Close()
}

func (b *RelationalBackend) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (b *RelationalBackend) exec(ctx context.Context, ex executor, query string, args ...any) (sql.Result, error) {
	return ex.ExecContext(ctx, rebind(b.dialect, query), args...)
}

func (b *RelationalBackend) query(ctx context.Context, ex executor, query string, args ...any) (*sql.Rows, error) {
	return ex.QueryContext(ctx, rebind(b.dialect, query), args...)
}

func (b *RelationalBackend) queryRow(ctx context.Context, ex executor, query string, args ...any) *sql.Row {
	return ex.QueryRowContext(ctx, rebind(b.dialect, query), args...)
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update of claim %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("claim %d: %w", id, claims.ErrClaimNotFound)
	}
	return nil
}

// Timestamps are stored as Unix milliseconds with 0 meaning unset.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
