package claims

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Claim is a rectangular region of one world with an owner and permission grants.
// A claim with a parent is a subdivision; subdivisions never have children.
// Claims are mutated only by the Registry that holds them.
type Claim struct {
	id       int64
	world    uuid.UUID
	bounds   Rect
	owner    uuid.UUID
	parent   int64
	children []int64
	created  time.Time

	playerPerms map[uuid.UUID]Permission
	groupPerms  map[string]Permission
	fakePerms   map[string]Permission

	registered bool
}

func newClaim(world uuid.UUID, bounds Rect, owner uuid.UUID, parent int64, created time.Time) *Claim {
	return &Claim{
		world:       world,
		bounds:      bounds.Normalize(),
		owner:       owner,
		parent:      parent,
		created:     created,
		playerPerms: map[uuid.UUID]Permission{},
		groupPerms:  map[string]Permission{},
		fakePerms:   map[string]Permission{},
	}
}

// ID is zero until the claim is registered.
func (c *Claim) ID() int64 { return c.id }

func (c *Claim) World() uuid.UUID { return c.world }

func (c *Claim) Bounds() Rect { return c.bounds }

// OwnerID is uuid.Nil for administrative claims.
func (c *Claim) OwnerID() uuid.UUID { return c.owner }

// IsAdmin reports whether the claim has no owner and no quota accounting.
func (c *Claim) IsAdmin() bool { return c.owner == uuid.Nil }

// ParentID is zero for top-level claims.
func (c *Claim) ParentID() int64 { return c.parent }

func (c *Claim) IsSubdivision() bool { return c.parent != 0 }

// ChildIDs returns the ids of the claim's subdivisions in ascending order.
func (c *Claim) ChildIDs() []int64 { return slices.Clone(c.children) }

func (c *Claim) CreatedAt() time.Time { return c.created }

// Registered reports whether the claim is live in a registry.
func (c *Claim) Registered() bool { return c.registered }

// Contains is the 2D containment test: same world and inside the bounds.
func (c *Claim) Contains(loc Location) bool {
	return loc.World == c.world && c.bounds.Contains(loc.X, loc.Z)
}

// Permission returns the bits granted to g on this claim.
func (c *Claim) Permission(g Grantee) Permission {
	switch g.Kind {
	case GranteePlayer:
		return c.playerPerms[g.Player]
	case GranteeGroup:
		return c.groupPerms[g.Name]
	default:
		return c.fakePerms[g.Name]
	}
}

func (c *Claim) PlayerPermissions() map[uuid.UUID]Permission { return maps.Clone(c.playerPerms) }

func (c *Claim) GroupPermissions() map[string]Permission { return maps.Clone(c.groupPerms) }

func (c *Claim) FakePlayerPermissions() map[string]Permission { return maps.Clone(c.fakePerms) }

func (c *Claim) setPermission(g Grantee, p Permission) {
	switch g.Kind {
	case GranteePlayer:
		c.playerPerms[g.Player] |= p
	case GranteeGroup:
		c.groupPerms[g.Name] |= p
	default:
		c.fakePerms[g.Name] |= p
	}
}

func (c *Claim) unsetPermission(g Grantee) {
	switch g.Kind {
	case GranteePlayer:
		delete(c.playerPerms, g.Player)
	case GranteeGroup:
		delete(c.groupPerms, g.Name)
	default:
		delete(c.fakePerms, g.Name)
	}
}

func (c *Claim) clearPermissions() {
	clear(c.playerPerms)
	clear(c.groupPerms)
	clear(c.fakePerms)
}

// shadow copies c with new bounds for resize validation. Children are shared
// read-only.
func (c *Claim) shadow(bounds Rect) *Claim {
	s := *c
	s.bounds = bounds.Normalize()
	s.registered = false
	return &s
}

func (c *Claim) addChild(id int64) {
	i, found := slices.BinarySearch(c.children, id)
	if !found {
		c.children = slices.Insert(c.children, i, id)
	}
}

func (c *Claim) removeChild(id int64) {
	if i, found := slices.BinarySearch(c.children, id); found {
		c.children = slices.Delete(c.children, i, i+1)
	}
}

// Record returns an immutable snapshot suitable for handing to a Backend.
func (c *Claim) Record() ClaimRecord {
	return ClaimRecord{
		ID:              c.id,
		World:           c.world,
		Bounds:          c.bounds,
		OwnerID:         c.owner,
		ParentID:        c.parent,
		CreatedAt:       c.created,
		PlayerPerms:     maps.Clone(c.playerPerms),
		GroupPerms:      maps.Clone(c.groupPerms),
		FakePlayerPerms: maps.Clone(c.fakePerms),
	}
}

func claimFromRecord(rec ClaimRecord) *Claim {
	c := newClaim(rec.World, rec.Bounds, rec.OwnerID, rec.ParentID, rec.CreatedAt)
	c.id = rec.ID
	maps.Copy(c.playerPerms, rec.PlayerPerms)
	maps.Copy(c.groupPerms, rec.GroupPerms)
	maps.Copy(c.fakePerms, rec.FakePlayerPerms)
	return c
}
