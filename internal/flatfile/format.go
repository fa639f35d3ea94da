package flatfile

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"claims-go/internal/claims"
)

// noParent is the parentid written for top-level claims.
const noParent = -1

// YAML uses "." as a path separator in the plugin's config API, so dots in
// group names are stored as "§".
const dotEscape = "§"

// claimFile is claims/<id>.yml.
type claimFile struct {
	ClaimData claimData `yaml:"ClaimData"`
}

type claimData struct {
	Owner       string         `yaml:"owner"`
	World       string         `yaml:"world"`
	LesserX     int            `yaml:"lesserX"`
	LesserZ     int            `yaml:"lesserZ"`
	GreaterX    int            `yaml:"greaterX"`
	GreaterZ    int            `yaml:"greaterZ"`
	ParentID    int64          `yaml:"parentid"`
	Creation    string         `yaml:"creation"`
	PlayerPerms map[string]int `yaml:"playerPerms,omitempty"`
	BukkitPerms map[string]int `yaml:"bukkitPerms,omitempty"`
}

// playerFile is players/<uuid>.yml.
type playerFile struct {
	GppPlayerData playerData `yaml:"GppPlayerData"`
}

type playerData struct {
	AccruedBlocks int    `yaml:"accruedblocks"`
	BonusBlocks   int    `yaml:"bonusblocks"`
	LastSeen      string `yaml:"lastseen"`
}

// groupFile is gpp_groupdata.yml.
type groupFile struct {
	GroupData map[string]int `yaml:"GroupData"`
}

// sequenceFile is sequence.yml, the claim id high-water mark.
type sequenceFile struct {
	LastClaimID int64 `yaml:"lastClaimId"`
}

func escapeKey(name string) string   { return strings.ReplaceAll(name, ".", dotEscape) }
func unescapeKey(name string) string { return strings.ReplaceAll(name, dotEscape, ".") }

func encodeClaim(rec claims.ClaimRecord) claimFile {
	parent := int64(noParent)
	if rec.ParentID != 0 {
		parent = rec.ParentID
	}
	d := claimData{
		Owner:    claims.EncodeOwner(rec.OwnerID).String(),
		World:    rec.World.String(),
		LesserX:  rec.Bounds.LesserX,
		LesserZ:  rec.Bounds.LesserZ,
		GreaterX: rec.Bounds.GreaterX,
		GreaterZ: rec.Bounds.GreaterZ,
		ParentID: parent,
		Creation: formatMillis(rec.CreatedAt),
	}
	for id, p := range rec.PlayerPerms {
		if d.PlayerPerms == nil {
			d.PlayerPerms = map[string]int{}
		}
		d.PlayerPerms[id.String()] = int(p)
	}
	grant := func(g claims.Grantee, p claims.Permission) {
		if d.BukkitPerms == nil {
			d.BukkitPerms = map[string]int{}
		}
		d.BukkitPerms[escapeKey(g.GroupKey())] = int(p)
	}
	for name, p := range rec.GroupPerms {
		grant(claims.GroupGrantee(name), p)
	}
	for name, p := range rec.FakePlayerPerms {
		grant(claims.FakePlayerGrantee(name), p)
	}
	return claimFile{ClaimData: d}
}

func decodeClaim(id int64, f claimFile) (claims.ClaimRecord, error) {
	d := f.ClaimData
	owner, err := uuid.Parse(d.Owner)
	if err != nil {
		return claims.ClaimRecord{}, fmt.Errorf("owner %q: %w", d.Owner, err)
	}
	world, err := uuid.Parse(d.World)
	if err != nil {
		return claims.ClaimRecord{}, fmt.Errorf("world %q: %w", d.World, err)
	}
	created, err := parseMillis(d.Creation)
	if err != nil {
		return claims.ClaimRecord{}, fmt.Errorf("creation %q: %w", d.Creation, err)
	}
	parent := d.ParentID
	if parent == noParent {
		parent = 0
	}

	rec := claims.ClaimRecord{
		ID:              id,
		World:           world,
		Bounds:          claims.NewRect(d.LesserX, d.LesserZ, d.GreaterX, d.GreaterZ),
		OwnerID:         claims.DecodeOwner(owner),
		ParentID:        parent,
		CreatedAt:       created,
		PlayerPerms:     map[uuid.UUID]claims.Permission{},
		GroupPerms:      map[string]claims.Permission{},
		FakePlayerPerms: map[string]claims.Permission{},
	}
	for key, p := range d.PlayerPerms {
		player, err := uuid.Parse(key)
		if err != nil {
			return claims.ClaimRecord{}, fmt.Errorf("player permission %q: %w", key, err)
		}
		rec.PlayerPerms[player] = claims.Permission(p)
	}
	for key, p := range d.BukkitPerms {
		g := claims.GranteeFromGroupKey(unescapeKey(key))
		if g.Kind == claims.GranteeFakePlayer {
			rec.FakePlayerPerms[g.Name] = claims.Permission(p)
		} else {
			rec.GroupPerms[g.Name] = claims.Permission(p)
		}
	}
	return rec, nil
}

func encodePlayer(rec claims.PlayerRecord) playerFile {
	return playerFile{GppPlayerData: playerData{
		AccruedBlocks: rec.AccruedBlocks,
		BonusBlocks:   rec.BonusBlocks,
		LastSeen:      formatMillis(rec.LastSeen),
	}}
}

func decodePlayer(id uuid.UUID, f playerFile) (claims.PlayerRecord, error) {
	lastSeen, err := parseMillis(f.GppPlayerData.LastSeen)
	if err != nil {
		return claims.PlayerRecord{}, fmt.Errorf("lastseen %q: %w", f.GppPlayerData.LastSeen, err)
	}
	return claims.PlayerRecord{
		ID:            id,
		AccruedBlocks: f.GppPlayerData.AccruedBlocks,
		BonusBlocks:   f.GppPlayerData.BonusBlocks,
		LastSeen:      lastSeen,
	}, nil
}

// Timestamps are decimal Unix milliseconds stored as strings; "0" or empty
// means unset.
func formatMillis(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(s string) (time.Time, error) {
	if s == "" || s == "0" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
