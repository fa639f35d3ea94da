package claims

import "github.com/google/uuid"

// claimLookup is the view of registry state the resolver needs.
type claimLookup interface {
	claimByID(id int64) *Claim
	topLevelIn(world uuid.UUID, r Rect) []*Claim
}

// OverlapResolver enforces the geometric rules between claims. It holds no
// state of its own and never mutates claims.
type OverlapResolver struct {
	lookup claimLookup
}

func newOverlapResolver(lookup claimLookup) *OverlapResolver {
	return &OverlapResolver{lookup: lookup}
}

// Check returns the first claim that candidate conflicts with, or nil.
//
// For a subdivision the parent is returned when candidate is not inside it,
// otherwise the first overlapping sibling. For a top-level claim the first
// child sticking out of it is returned, otherwise the first overlapping
// top-level claim in the same world. Claims with candidate's id or with id
// excluded are skipped, which is how a resize ignores the claim being resized.
// Conflicts are reported in ascending id order.
func (o *OverlapResolver) Check(candidate *Claim, excluded int64) *Claim {
	skip := func(c *Claim) bool {
		return (candidate.id != 0 && c.id == candidate.id) || (excluded != 0 && c.id == excluded)
	}

	if candidate.parent != 0 {
		parent := o.lookup.claimByID(candidate.parent)
		if parent == nil {
			return nil
		}
		if !parent.bounds.ContainsRect(candidate.bounds) {
			return parent
		}
		for _, id := range parent.children {
			sibling := o.lookup.claimByID(id)
			if sibling == nil || skip(sibling) {
				continue
			}
			if sibling.bounds.Overlaps(candidate.bounds) {
				return sibling
			}
		}
		return nil
	}

	for _, id := range candidate.children {
		child := o.lookup.claimByID(id)
		if child == nil {
			continue
		}
		if !candidate.bounds.ContainsRect(child.bounds) {
			return child
		}
	}

	for _, other := range o.lookup.topLevelIn(candidate.world, candidate.bounds) {
		if skip(other) {
			continue
		}
		if other.bounds.Overlaps(candidate.bounds) {
			return other
		}
	}
	return nil
}
