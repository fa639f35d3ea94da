package claims

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotRegistered       = errors.New("claim is not registered")
	ErrSubdivisionTransfer = errors.New("subdivisions can't be transferred, only top-level claims may change owners")
	ErrVetoed              = errors.New("operation vetoed")
	ErrAlreadyInitialized  = errors.New("registry already initialized")
	ErrNoWorldResolver     = errors.New("no world resolver configured")
)

const (
	// DefaultNearbyRadius is the GetNearbyClaims radius in blocks.
	DefaultNearbyRadius = 128

	defaultRecentPlayerWindow = 30 * 24 * time.Hour
)

// Outcome classifies the result of a create or resize.
type Outcome int

const (
	Success Outcome = iota
	Overlap
	OutsideParent
	RegionDenied
	Vetoed
	Invalid
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Overlap:
		return "overlap"
	case OutsideParent:
		return "outside parent"
	case RegionDenied:
		return "region denied"
	case Vetoed:
		return "vetoed"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// ClaimResult reports a create or resize. Conflict is set for Overlap and
// OutsideParent, Reason for Vetoed and Invalid.
type ClaimResult struct {
	Outcome  Outcome
	Claim    *Claim
	Conflict *Claim
	Reason   string
}

func (r ClaimResult) OK() bool { return r.Outcome == Success }

// NewClaimRequest describes a claim to create. Bounds may have its corners in
// any order. OwnerID uuid.Nil creates an administrative claim. ParentID
// creates a subdivision. ExplicitID is used instead of a fresh id when set.
// Actor is the player doing the work, uuid.Nil when there is none.
type NewClaimRequest struct {
	World      uuid.UUID
	Bounds     Rect
	OwnerID    uuid.UUID
	ParentID   int64
	ExplicitID int64
	Actor      uuid.UUID
}

// Options tunes a Registry.
type Options struct {
	// RecentPlayerWindow selects which players are cached at startup.
	RecentPlayerWindow time.Duration
	// RespectRegionGuard enables Hooks.RegionGuard.
	RespectRegionGuard bool
	// NearbyRadius is the GetNearbyClaims radius.
	NearbyRadius int
}

// Registry is the authoritative in-memory claim state. All methods must be
// called from a single goroutine; persistence runs on the Scheduler.
type Registry struct {
	backend  Backend
	sched    Scheduler
	logger   Logger
	clock    Clock
	hooks    Hooks
	opts     Options
	resolver *OverlapResolver

	claims     map[int64]*Claim
	index      *SpatialIndex
	players    map[uuid.UUID]*PlayerData
	groupBonus map[string]int

	initialized bool
}

// NewRegistry creates an empty Registry. Call Initialize before use.
func NewRegistry(backend Backend, sched Scheduler, logger Logger, clock Clock, hooks Hooks, opts Options) *Registry {
	if opts.RecentPlayerWindow <= 0 {
		opts.RecentPlayerWindow = defaultRecentPlayerWindow
	}
	if opts.NearbyRadius <= 0 {
		opts.NearbyRadius = DefaultNearbyRadius
	}
	r := &Registry{
		backend:    backend,
		sched:      sched,
		logger:     logger,
		clock:      clock,
		hooks:      hooks,
		opts:       opts,
		claims:     map[int64]*Claim{},
		index:      NewSpatialIndex(),
		players:    map[uuid.UUID]*PlayerData{},
		groupBonus: map[string]int{},
	}
	r.resolver = newOverlapResolver(r)
	return r
}

// Initialize loads every claim, the recently seen players and the group
// bonuses from the backend. Unparseable or orphaned records are logged and
// skipped.
func (r *Registry) Initialize(ctx context.Context) error {
	if r.initialized {
		return ErrAlreadyInitialized
	}
	if err := r.backend.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing backend: %w", err)
	}

	recs, err := r.backend.LoadAllClaims(ctx)
	if err != nil {
		return fmt.Errorf("loading claims: %w", err)
	}
	// Parents before subdivisions.
	slices.SortFunc(recs, func(a, b ClaimRecord) int {
		if (a.ParentID == 0) != (b.ParentID == 0) {
			if a.ParentID == 0 {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.ID, b.ID)
	})

	skipped := 0
	for _, rec := range recs {
		if _, dup := r.claims[rec.ID]; dup {
			r.logger.Error("skipping duplicate claim record", "claim_id", rec.ID)
			skipped++
			continue
		}
		c := claimFromRecord(rec)
		if c.parent != 0 {
			parent := r.claims[c.parent]
			if parent == nil || parent.parent != 0 {
				r.logger.Warn("skipping orphan subdivision", "claim_id", rec.ID, "parent_id", rec.ParentID)
				skipped++
				continue
			}
			parent.addChild(c.id)
		} else {
			r.index.Add(c)
		}
		c.registered = true
		r.claims[c.id] = c
	}

	since := r.clock.Now().Add(-r.opts.RecentPlayerWindow)
	players, err := r.backend.LoadRecentPlayers(ctx, since)
	if err != nil {
		return fmt.Errorf("loading recent players: %w", err)
	}
	for _, rec := range players {
		r.players[rec.ID] = playerDataFromRecord(rec)
	}

	groups, err := r.backend.LoadGroupBonuses(ctx)
	if err != nil {
		return fmt.Errorf("loading group bonuses: %w", err)
	}
	for name, blocks := range groups {
		r.groupBonus[name] = blocks
	}

	r.initialized = true
	r.logger.Info("registry initialized",
		"claims", len(r.claims), "skipped", skipped, "players", len(r.players), "groups", len(r.groupBonus))
	return nil
}

// NewClaim validates and registers a claim. On any failure nothing changes.
// Minimum size and quota are the caller's concern.
func (r *Registry) NewClaim(req NewClaimRequest) ClaimResult {
	bounds := req.Bounds.Normalize()

	if req.ExplicitID < 0 {
		return invalid("claim id must be positive")
	}
	if req.ExplicitID > 0 && r.claims[req.ExplicitID] != nil {
		return invalid(fmt.Sprintf("claim id %d is already registered", req.ExplicitID))
	}

	var parent *Claim
	if req.ParentID != 0 {
		parent = r.claims[req.ParentID]
		switch {
		case parent == nil:
			return invalid(fmt.Sprintf("parent claim %d not found", req.ParentID))
		case parent.IsSubdivision():
			return invalid("subdivisions can't contain subdivisions")
		case parent.world != req.World:
			return invalid("subdivision must be in the same world as its parent")
		}
	}

	candidate := newClaim(req.World, bounds, req.OwnerID, req.ParentID, r.clock.Now())
	if parent != nil && !parent.bounds.ContainsRect(bounds) {
		return ClaimResult{Outcome: OutsideParent, Conflict: parent}
	}
	if conflict := r.resolver.Check(candidate, 0); conflict != nil {
		return ClaimResult{Outcome: Overlap, Conflict: conflict}
	}
	if parent == nil && !r.regionAllows(req.World, bounds, req.Actor) {
		return ClaimResult{Outcome: RegionDenied, Reason: "region protection denies building here"}
	}
	if cancelled, reason := r.notify(OpCreate, nil, candidate); cancelled {
		return ClaimResult{Outcome: Vetoed, Reason: reason}
	}

	candidate.id = r.backend.AllocateClaimID(req.ExplicitID)
	r.register(candidate)

	// Owner-wide tasks select claims by owner when they run, so the insert
	// and every later write to this claim queue behind them.
	rec := candidate.Record()
	keys := []string{r.familyKey(candidate), OwnerKey(candidate.owner)}
	r.enqueue("new_claim", keys, func(ctx context.Context) error {
		return r.backend.NewClaimRecord(ctx, rec)
	})

	r.logger.Info("claim created", "claim_id", candidate.id, "parent_id", candidate.parent,
		"world", candidate.world, "bounds", bounds.String(), "owner", candidate.owner)
	return ClaimResult{Outcome: Success, Claim: candidate}
}

// ResizeClaim moves c to new bounds. On any failure c and the index are untouched.
func (r *Registry) ResizeClaim(c *Claim, bounds Rect, actor uuid.UUID) ClaimResult {
	if !c.registered {
		return invalid(ErrNotRegistered.Error())
	}

	shadow := c.shadow(bounds)
	if conflict := r.resolver.Check(shadow, c.id); conflict != nil {
		outcome := Overlap
		if c.parent != 0 && conflict.id == c.parent {
			outcome = OutsideParent
		}
		return ClaimResult{Outcome: outcome, Claim: c, Conflict: conflict}
	}
	if c.parent == 0 && !r.regionAllows(c.world, shadow.bounds, actor) {
		return ClaimResult{Outcome: RegionDenied, Claim: c, Reason: "region protection denies building here"}
	}
	if cancelled, reason := r.notify(OpResize, c, shadow); cancelled {
		return ClaimResult{Outcome: Vetoed, Claim: c, Reason: reason}
	}

	old := c.bounds
	if c.parent == 0 {
		r.index.Remove(c)
	}
	c.bounds = shadow.bounds
	if c.parent == 0 {
		r.index.Add(c)
	}

	id, newBounds := c.id, c.bounds
	r.enqueue("update_location", []string{r.familyKey(c)}, func(ctx context.Context) error {
		return r.backend.UpdateLocation(ctx, id, newBounds)
	})

	r.logger.Info("claim resized", "claim_id", id, "from", old.String(), "to", newBounds.String())
	return ClaimResult{Outcome: Success, Claim: c}
}

// DeleteClaim removes c, and for a top-level claim all of its subdivisions.
func (r *Registry) DeleteClaim(c *Claim) error {
	if !c.registered {
		return ErrNotRegistered
	}
	if cancelled, reason := r.notify(OpDelete, c, nil); cancelled {
		return fmt.Errorf("%w: %s", ErrVetoed, reason)
	}

	key := r.familyKey(c)
	r.unregister(c)

	id := c.id
	r.enqueue("delete_claim", []string{key}, func(ctx context.Context) error {
		return r.backend.DeleteClaimCascade(ctx, id)
	})

	r.logger.Info("claim deleted", "claim_id", id, "parent_id", c.parent, "subdivisions", len(c.children))
	return nil
}

// ChangeOwner transfers a top-level claim. uuid.Nil makes it administrative.
func (r *Registry) ChangeOwner(c *Claim, newOwner uuid.UUID) error {
	if c.parent != 0 {
		return ErrSubdivisionTransfer
	}
	if !c.registered {
		return ErrNotRegistered
	}

	oldOwner := c.owner
	if !c.IsAdmin() {
		if pd := r.players[oldOwner]; pd != nil {
			pd.removeClaim(c.id)
		}
	}
	if newOwner != uuid.Nil {
		r.GetPlayerData(newOwner).addClaim(c.id)
	}
	c.owner = newOwner

	id := c.id
	keys := []string{r.familyKey(c), OwnerKey(oldOwner), OwnerKey(newOwner)}
	r.enqueue("update_owner", keys, func(ctx context.Context) error {
		return r.backend.UpdateOwner(ctx, id, newOwner)
	})

	r.logger.Info("claim transferred", "claim_id", id, "from", oldOwner, "to", newOwner)
	return nil
}

// GetClaimAt returns the most specific claim containing loc, or nil.
// hint is returned directly when it is live and contains loc. When
// ignoreHeight is false the HeightPolicy must also accept loc.
func (r *Registry) GetClaimAt(loc Location, ignoreHeight bool, hint *Claim) *Claim {
	c := r.claimAt(loc, hint)
	if c == nil || ignoreHeight || r.hooks.Height == nil || r.hooks.Height.Contains(c, loc) {
		return c
	}
	return nil
}

func (r *Registry) claimAt(loc Location, hint *Claim) *Claim {
	if hint != nil && hint.registered && hint.Contains(loc) {
		return hint
	}
	top := r.index.QueryPoint(loc)
	if top == nil {
		return nil
	}
	for _, id := range top.children {
		if child := r.claims[id]; child != nil && child.bounds.Contains(loc.X, loc.Z) {
			return child
		}
	}
	return top
}

// GetNearbyClaims returns the top-level claims within the configured radius of loc.
func (r *Registry) GetNearbyClaims(loc Location) []*Claim {
	return r.index.QueryRange(loc, r.opts.NearbyRadius)
}

// Claim returns a registered claim by id, or nil.
func (r *Registry) Claim(id int64) *Claim {
	return r.claims[id]
}

// Count returns the number of registered claims, subdivisions included.
func (r *Registry) Count() int {
	return len(r.claims)
}

// OverlapsClaims runs the consistency check on a registered claim and returns
// the first claim violating the geometric rules with it, or nil.
func (r *Registry) OverlapsClaims(c *Claim) *Claim {
	return r.resolver.Check(c, 0)
}

// Flush waits for every queued write to finish.
func (r *Registry) Flush(ctx context.Context) error {
	return r.sched.Flush(ctx)
}

// Close drains the write queue and closes the backend.
func (r *Registry) Close() error {
	var firstErr error
	if err := r.sched.Shutdown(); err != nil {
		firstErr = fmt.Errorf("draining write queue: %w", err)
	}
	if err := r.backend.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing backend: %w", err)
	}
	return firstErr
}

func (r *Registry) register(c *Claim) {
	c.registered = true
	r.claims[c.id] = c
	if c.parent != 0 {
		r.claims[c.parent].addChild(c.id)
		return
	}
	r.index.Add(c)
	if !c.IsAdmin() {
		r.GetPlayerData(c.owner).addClaim(c.id)
	}
}

func (r *Registry) unregister(c *Claim) {
	if c.parent != 0 {
		if parent := r.claims[c.parent]; parent != nil {
			parent.removeChild(c.id)
		}
	} else {
		r.index.Remove(c)
		for _, childID := range c.children {
			if child := r.claims[childID]; child != nil {
				child.registered = false
				delete(r.claims, childID)
			}
		}
		if !c.IsAdmin() {
			if pd := r.players[c.owner]; pd != nil {
				pd.removeClaim(c.id)
			}
		}
	}
	c.registered = false
	delete(r.claims, c.id)
}

// familyKey serializes all writes to a top-level claim and its subdivisions.
func (r *Registry) familyKey(c *Claim) string {
	if c.parent != 0 {
		return ClaimKey(c.parent)
	}
	return ClaimKey(c.id)
}

func (r *Registry) enqueue(op string, keys []string, run func(ctx context.Context) error) {
	if err := r.sched.Submit(WriteTask{Op: op, Keys: keys, Run: run}); err != nil {
		r.logger.Error("persistence task rejected", "op", op, "keys", keys, "error", err)
	}
}

func (r *Registry) regionAllows(world uuid.UUID, bounds Rect, actor uuid.UUID) bool {
	if !r.opts.RespectRegionGuard || r.hooks.RegionGuard == nil || actor == uuid.Nil {
		return true
	}
	return r.hooks.RegionGuard.CanBuild(world, bounds, actor)
}

func (r *Registry) notify(kind OperationKind, before, after *Claim) (bool, string) {
	if r.hooks.Notifier == nil {
		return false, ""
	}
	return r.hooks.Notifier.Notify(kind, before, after)
}

func (r *Registry) claimByID(id int64) *Claim { return r.claims[id] }

func (r *Registry) topLevelIn(world uuid.UUID, bounds Rect) []*Claim {
	return r.index.QueryRect(world, bounds)
}

func invalid(reason string) ClaimResult {
	return ClaimResult{Outcome: Invalid, Reason: reason}
}
