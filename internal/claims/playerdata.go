package claims

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// PlayerData is the cached quota account of one player. Callers may change
// the block counters and LastSeen directly and then call
// Registry.SavePlayerData.
type PlayerData struct {
	id            uuid.UUID
	AccruedBlocks int
	BonusBlocks   int
	LastSeen      time.Time

	// claimIDs holds owned top-level claims once claimsLoaded is set.
	claimIDs     []int64
	claimsLoaded bool
}

func newPlayerData(id uuid.UUID) *PlayerData {
	return &PlayerData{id: id}
}

func playerDataFromRecord(rec PlayerRecord) *PlayerData {
	return &PlayerData{
		id:            rec.ID,
		AccruedBlocks: rec.AccruedBlocks,
		BonusBlocks:   rec.BonusBlocks,
		LastSeen:      rec.LastSeen,
	}
}

func (p *PlayerData) ID() uuid.UUID { return p.id }

// Record returns a snapshot for persistence.
func (p *PlayerData) Record() PlayerRecord {
	return PlayerRecord{
		ID:            p.id,
		AccruedBlocks: p.AccruedBlocks,
		BonusBlocks:   p.BonusBlocks,
		LastSeen:      p.LastSeen,
	}
}

func (p *PlayerData) addClaim(id int64) {
	if !p.claimsLoaded {
		return
	}
	if i, found := slices.BinarySearch(p.claimIDs, id); !found {
		p.claimIDs = slices.Insert(p.claimIDs, i, id)
	}
}

func (p *PlayerData) removeClaim(id int64) {
	if !p.claimsLoaded {
		return
	}
	if i, found := slices.BinarySearch(p.claimIDs, id); found {
		p.claimIDs = slices.Delete(p.claimIDs, i, i+1)
	}
}
