package claims

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ClearOrphanClaims waits for queued writes, removes orphaned claims from
// storage and drops claims in vanished worlds from memory. Returns the number
// of records the backend removed.
func (r *Registry) ClearOrphanClaims(ctx context.Context) (int, error) {
	if r.hooks.Worlds == nil {
		return 0, ErrNoWorldResolver
	}
	if err := r.sched.Flush(ctx); err != nil {
		return 0, fmt.Errorf("flushing queued writes: %w", err)
	}
	n, err := r.backend.ClearOrphanClaims(ctx, r.hooks.Worlds)
	if err != nil {
		return 0, fmt.Errorf("clearing orphan claims: %w", err)
	}
	dropped := 0
	for _, c := range r.topLevelWhere(func(c *Claim) bool { return !r.hooks.Worlds.WorldExists(c.world) }) {
		r.unregister(c)
		dropped++
	}
	r.logger.Info("orphan claims cleared", "removed", n, "dropped_from_memory", dropped)
	return n, nil
}

// DeleteClaimsForPlayer deletes every top-level claim owned by owner that the
// Notifier does not veto. Returns the number deleted.
func (r *Registry) DeleteClaimsForPlayer(owner uuid.UUID) int {
	return r.deleteAll(r.topLevelWhere(func(c *Claim) bool { return c.owner == owner }))
}

// DeleteClaimsInWorld deletes every top-level claim in world that the
// Notifier does not veto. Returns the number deleted.
func (r *Registry) DeleteClaimsInWorld(world uuid.UUID) int {
	return r.deleteAll(r.topLevelWhere(func(c *Claim) bool { return c.world == world }))
}

func (r *Registry) deleteAll(targets []*Claim) int {
	deleted := 0
	for _, c := range targets {
		if err := r.DeleteClaim(c); err != nil {
			r.logger.Info("claim kept", "claim_id", c.id, "reason", err)
			continue
		}
		deleted++
	}
	return deleted
}

// Stats summarizes registry contents.
type Stats struct {
	Claims       int
	TopLevel     int
	Subdivisions int
	Players      int
	Groups       int
	Buckets      int
}

func (r *Registry) Stats() Stats {
	s := Stats{
		Claims:  len(r.claims),
		Players: len(r.players),
		Groups:  len(r.groupBonus),
		Buckets: r.index.BucketCount(),
	}
	for _, c := range r.claims {
		if c.parent == 0 {
			s.TopLevel++
		} else {
			s.Subdivisions++
		}
	}
	return s
}
