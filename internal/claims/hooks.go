package claims

import "github.com/google/uuid"

// OperationKind names the registry mutation offered to a Notifier.
type OperationKind int

const (
	OpCreate OperationKind = iota
	OpResize
	OpDelete
)

func (k OperationKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpResize:
		return "resize"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Notifier lets the host event layer veto a mutation before it commits.
// before is nil for creates and after is nil for deletes. Both are read-only.
type Notifier interface {
	Notify(kind OperationKind, before, after *Claim) (cancelled bool, reason string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(kind OperationKind, before, after *Claim) (bool, string)

func (f NotifierFunc) Notify(kind OperationKind, before, after *Claim) (bool, string) {
	return f(kind, before, after)
}

// RegionGuard is an external region-protection check consulted for top-level
// creates and resizes when enabled.
type RegionGuard interface {
	CanBuild(world uuid.UUID, r Rect, actor uuid.UUID) bool
}

// HeightPolicy is the vertical bounds check applied by GetClaimAt when height
// is not ignored.
type HeightPolicy interface {
	Contains(c *Claim, loc Location) bool
}

// HeightRange accepts locations with MinY <= Y <= MaxY.
type HeightRange struct {
	MinY int
	MaxY int
}

func (h HeightRange) Contains(_ *Claim, loc Location) bool {
	return loc.Y >= h.MinY && loc.Y <= h.MaxY
}

// WorldResolver answers which worlds currently exist. It is used by orphan
// cleanup and the legacy import, never by the query path.
type WorldResolver interface {
	WorldExists(id uuid.UUID) bool
	WorldByName(name string) (uuid.UUID, bool)
}

// Hooks bundles the host collaborators. Nil members are skipped.
type Hooks struct {
	Notifier    Notifier
	RegionGuard RegionGuard
	Height      HeightPolicy
	Worlds      WorldResolver
}
