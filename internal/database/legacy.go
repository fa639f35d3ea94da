package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"claims-go/internal/claims"
	"claims-go/internal/database/migrations"
)

// Legacy tables written by the previous generation of the plugin. They live in
// the same database and are read, never modified.
const (
	legacyClaimTable  = "griefprevention_claimdata"
	legacyPlayerTable = "griefprevention_playerdata"
)

// ErrLegacyAlreadyImported is returned by ImportLegacy when the current schema
// already holds claims.
var ErrLegacyAlreadyImported = errors.New("claims already stored; legacy import is one-time")

// legacyOwnerAdmin is the owner text of administrative legacy claims.
const legacyOwnerAdmin = "0"

// LegacyImportStats counts what ImportLegacy did.
type LegacyImportStats struct {
	Claims       int
	Subdivisions int
	Skipped      int
	Players      int
}

type legacyClaim struct {
	id            int64
	owner         string
	lesser        string
	greater       string
	builders      string
	containers    string
	accessors     string
	managers      string
	parentID      int64
	hasParentLink bool
}

// ImportLegacy copies claims and player quota from the legacy tables into the
// current schema in one transaction. Claims receive fresh ids; subdivisions are
// re-parented through the old to new id map. Rows with malformed corners,
// unknown worlds or missing parents are skipped and counted. The import runs
// once: it fails with ErrLegacyAlreadyImported when any claim is stored.
func (b *RelationalBackend) ImportLegacy(ctx context.Context, worlds claims.WorldResolver) (LegacyImportStats, error) {
	var stats LegacyImportStats
	if worlds == nil {
		return stats, claims.ErrNoWorldResolver
	}

	exists, err := b.tableExists(ctx, legacyClaimTable)
	if err != nil {
		return stats, err
	}
	if !exists {
		return stats, fmt.Errorf("legacy table %s not found", legacyClaimTable)
	}

	rows, err := b.readLegacyClaims(ctx)
	if err != nil {
		return stats, err
	}

	players := map[uuid.UUID]*claims.PlayerRecord{}
	if ok, err := b.tableExists(ctx, legacyPlayerTable); err != nil {
		return stats, err
	} else if ok {
		players, err = b.readLegacyPlayers(ctx)
		if err != nil {
			return stats, err
		}
	}

	err = b.inTx(ctx, func(tx *sql.Tx) error {
		n, err := b.countClaims(ctx, tx)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrLegacyAlreadyImported
		}

		remap := map[int64]int64{}
		for _, row := range rows {
			rec, ok := b.convertLegacyClaim(row, worlds, remap)
			if !ok {
				stats.Skipped++
				continue
			}
			if err := b.insertClaim(ctx, tx, rec); err != nil {
				return err
			}
			if rec.ParentID == 0 {
				remap[row.id] = rec.ID
				stats.Claims++
			} else {
				stats.Subdivisions++
			}
		}

		for _, rec := range players {
			if err := b.savePlayer(ctx, tx, *rec); err != nil {
				return err
			}
			stats.Players++
		}
		return nil
	})
	if err != nil {
		return LegacyImportStats{}, err
	}
	return stats, nil
}

// legacyImportDue reports whether the legacy table exists and nothing has
// been stored in the current schema yet.
func (b *RelationalBackend) legacyImportDue(ctx context.Context) (bool, error) {
	exists, err := b.tableExists(ctx, legacyClaimTable)
	if err != nil || !exists {
		return false, err
	}
	n, err := b.countClaims(ctx, b.db)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

func (b *RelationalBackend) countClaims(ctx context.Context, ex executor) (int64, error) {
	var n int64
	if err := b.queryRow(ctx, ex, "SELECT COUNT(*) FROM claims").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting claims: %w", err)
	}
	return n, nil
}

func (b *RelationalBackend) tableExists(ctx context.Context, table string) (bool, error) {
	var q string
	switch b.dialect {
	case migrations.Postgres:
		q = "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?"
	default:
		q = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	}
	var n int
	if err := b.queryRow(ctx, b.db, q, table).Scan(&n); err != nil {
		return false, fmt.Errorf("checking for table %s: %w", table, err)
	}
	return n > 0, nil
}

// readLegacyClaims returns top-level rows before subdivisions.
func (b *RelationalBackend) readLegacyClaims(ctx context.Context) ([]legacyClaim, error) {
	rows, err := b.query(ctx, b.db, `SELECT id, owner, lessercorner, greatercorner,
		builders, containers, accessors, managers, parentid
		FROM `+legacyClaimTable+` ORDER BY parentid ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("reading legacy claims: %w", err)
	}
	defer rows.Close()

	var out []legacyClaim
	for rows.Next() {
		var (
			c                                         legacyClaim
			builders, containers, accessors, managers sql.NullString
		)
		if err := rows.Scan(&c.id, &c.owner, &c.lesser, &c.greater,
			&builders, &containers, &accessors, &managers, &c.parentID); err != nil {
			return nil, fmt.Errorf("scanning legacy claim: %w", err)
		}
		c.builders, c.containers = builders.String, containers.String
		c.accessors, c.managers = accessors.String, managers.String
		c.hasParentLink = c.parentID != noParent
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading legacy claims: %w", err)
	}
	return out, nil
}

func (b *RelationalBackend) convertLegacyClaim(row legacyClaim, worlds claims.WorldResolver, remap map[int64]int64) (claims.ClaimRecord, bool) {
	lesser := strings.Split(row.lesser, ";")
	greater := strings.Split(row.greater, ";")
	if len(lesser) != 4 || len(greater) != 4 {
		b.logger.Warn("skipping legacy claim with malformed corners", "legacy_id", row.id)
		return claims.ClaimRecord{}, false
	}
	world, ok := worlds.WorldByName(lesser[0])
	if !ok {
		b.logger.Warn("skipping legacy claim in unknown world", "legacy_id", row.id, "world", lesser[0])
		return claims.ClaimRecord{}, false
	}

	var coords [4]int
	for i, s := range []string{lesser[1], lesser[3], greater[1], greater[3]} {
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			b.logger.Warn("skipping legacy claim with malformed corners", "legacy_id", row.id, "error", err)
			return claims.ClaimRecord{}, false
		}
		coords[i] = v
	}

	var parent int64
	if row.hasParentLink {
		newParent, ok := remap[row.parentID]
		if !ok {
			b.logger.Warn("skipping legacy subdivision without parent", "legacy_id", row.id, "parent_id", row.parentID)
			return claims.ClaimRecord{}, false
		}
		parent = newParent
	}

	owner := uuid.Nil
	if row.owner != legacyOwnerAdmin {
		id, err := uuid.Parse(row.owner)
		if err != nil || len(row.owner) != 36 {
			b.logger.Warn("legacy claim owner is not a UUID, importing as administrative",
				"legacy_id", row.id, "owner", row.owner)
		} else {
			owner = id
		}
	}

	rec := claims.ClaimRecord{
		ID:              b.AllocateClaimID(0),
		World:           world,
		Bounds:          claims.NewRect(coords[0], coords[1], coords[2], coords[3]),
		OwnerID:         owner,
		ParentID:        parent,
		PlayerPerms:     map[uuid.UUID]claims.Permission{},
		GroupPerms:      map[string]claims.Permission{},
		FakePlayerPerms: map[string]claims.Permission{},
	}
	for _, list := range []struct {
		entries string
		perm    claims.Permission
	}{
		{row.builders, claims.PermBuild},
		{row.containers, claims.PermContainers},
		{row.accessors, claims.PermAccess},
		{row.managers, claims.PermManage},
	} {
		addLegacyGrants(&rec, list.entries, list.perm)
	}
	return rec, true
}

// addLegacyGrants parses a ";" separated grantee list: an entry starting with
// "[" is a group named by everything between the first and last character,
// a 36 character UUID is a player and "public" is everyone. Entries are taken
// as stored, without trimming or case folding.
func addLegacyGrants(rec *claims.ClaimRecord, list string, perm claims.Permission) {
	for _, entry := range strings.Split(list, ";") {
		switch {
		case entry == "":
		case strings.HasPrefix(entry, "["):
			if len(entry) < 2 {
				continue
			}
			if name := entry[1 : len(entry)-1]; name != "" {
				rec.GroupPerms[name] |= perm
			}
		case entry == "public":
			rec.PlayerPerms[uuid.Nil] |= perm
		case len(entry) == 36:
			if id, err := uuid.Parse(entry); err == nil {
				rec.PlayerPerms[id] |= perm
			}
		}
	}
}

// readLegacyPlayers merges duplicate rows: equal values are kept once,
// differing values are summed.
func (b *RelationalBackend) readLegacyPlayers(ctx context.Context) (map[uuid.UUID]*claims.PlayerRecord, error) {
	rows, err := b.query(ctx, b.db, "SELECT name, accruedblocks, bonusblocks FROM "+legacyPlayerTable)
	if err != nil {
		return nil, fmt.Errorf("reading legacy players: %w", err)
	}
	defer rows.Close()

	out := map[uuid.UUID]*claims.PlayerRecord{}
	for rows.Next() {
		var (
			name           string
			accrued, bonus int
		)
		if err := rows.Scan(&name, &accrued, &bonus); err != nil {
			return nil, fmt.Errorf("scanning legacy player: %w", err)
		}
		if len(name) != 36 {
			continue
		}
		id, err := uuid.Parse(name)
		if err != nil {
			continue
		}
		rec := out[id]
		if rec == nil {
			out[id] = &claims.PlayerRecord{ID: id, AccruedBlocks: accrued, BonusBlocks: bonus}
			continue
		}
		rec.AccruedBlocks = mergeLegacy(rec.AccruedBlocks, accrued)
		rec.BonusBlocks = mergeLegacy(rec.BonusBlocks, bonus)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading legacy players: %w", err)
	}
	return out, nil
}

func mergeLegacy(have, add int) int {
	if have == add {
		return have
	}
	return have + add
}
