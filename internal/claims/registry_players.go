package claims

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// GetPlayerData returns the cached account for id, creating an empty one if
// the player is not cached. It never touches storage.
func (r *Registry) GetPlayerData(id uuid.UUID) *PlayerData {
	pd := r.players[id]
	if pd == nil {
		pd = newPlayerData(id)
		r.players[id] = pd
	}
	return pd
}

// PreloadPlayer loads a player's stored account into the cache unless it is
// already cached. Hosts call it when a player who was not seen recently joins.
func (r *Registry) PreloadPlayer(ctx context.Context, id uuid.UUID) (*PlayerData, error) {
	if pd := r.players[id]; pd != nil {
		return pd, nil
	}
	rec, err := r.backend.LoadPlayerRecord(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading player %s: %w", id, err)
	}
	pd := newPlayerData(id)
	if rec != nil {
		pd = playerDataFromRecord(*rec)
	}
	r.players[id] = pd
	return pd, nil
}

// SavePlayerData queues a write of the player's current account.
func (r *Registry) SavePlayerData(id uuid.UUID) {
	rec := r.GetPlayerData(id).Record()
	r.enqueue("save_player", []string{PlayerKey(id)}, func(ctx context.Context) error {
		return r.backend.SavePlayerRecord(ctx, rec)
	})
}

// SavePlayerDataSync writes the player's current account and waits for it,
// after any writes for the same player that are already queued.
func (r *Registry) SavePlayerDataSync(ctx context.Context, id uuid.UUID) error {
	rec := r.GetPlayerData(id).Record()
	done := make(chan error, 1)
	task := WriteTask{
		Op:   "save_player",
		Keys: []string{PlayerKey(id)},
		Run: func(ctx context.Context) error {
			err := r.backend.SavePlayerRecord(ctx, rec)
			done <- err
			return err
		},
	}
	if err := r.sched.Submit(task); err != nil {
		return fmt.Errorf("queueing player save: %w", err)
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClaimsOwnedBy returns the top-level claims owned by owner in id order.
// uuid.Nil lists administrative claims.
func (r *Registry) ClaimsOwnedBy(owner uuid.UUID) []*Claim {
	if owner == uuid.Nil {
		return r.topLevelWhere(func(c *Claim) bool { return c.IsAdmin() })
	}
	pd := r.GetPlayerData(owner)
	if !pd.claimsLoaded {
		pd.claimIDs = pd.claimIDs[:0]
		for _, c := range r.topLevelWhere(func(c *Claim) bool { return c.owner == owner }) {
			pd.claimIDs = append(pd.claimIDs, c.id)
		}
		pd.claimsLoaded = true
	}
	out := make([]*Claim, 0, len(pd.claimIDs))
	for _, id := range pd.claimIDs {
		if c := r.claims[id]; c != nil {
			out = append(out, c)
		}
	}
	return out
}

// GroupBonus sums the bonus blocks of the given groups.
func (r *Registry) GroupBonus(groups ...string) int {
	total := 0
	for _, g := range groups {
		total += r.groupBonus[g]
	}
	return total
}

// AdjustGroupBonus adds delta to a group's bonus and stores the new total
// before returning. A storage failure is returned but the in-memory total is kept.
func (r *Registry) AdjustGroupBonus(ctx context.Context, group string, delta int) (int, error) {
	total := r.groupBonus[group] + delta
	r.groupBonus[group] = total
	if err := r.backend.SaveGroupBonus(ctx, group, total); err != nil {
		r.logger.Error("saving group bonus failed", "group", group, "blocks", total, "error", err)
		return total, fmt.Errorf("saving group bonus for %s: %w", group, err)
	}
	r.logger.Info("group bonus adjusted", "group", group, "delta", delta, "blocks", total)
	return total, nil
}

// RemainingClaimBlocks is the player's accrued, bonus and group bonus blocks
// minus the area of their top-level claims.
func (r *Registry) RemainingClaimBlocks(id uuid.UUID, groups ...string) int {
	pd := r.GetPlayerData(id)
	remaining := pd.AccruedBlocks + pd.BonusBlocks + r.GroupBonus(groups...)
	for _, c := range r.ClaimsOwnedBy(id) {
		remaining -= c.bounds.Area()
	}
	return remaining
}

func (r *Registry) topLevelWhere(match func(*Claim) bool) []*Claim {
	var out []*Claim
	for _, c := range r.claims {
		if c.parent == 0 && match(c) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b *Claim) int { return cmp.Compare(a.id, b.id) })
	return out
}
