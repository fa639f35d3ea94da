package claims

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

// arena is a minimal claimLookup over a fixed set of claims.
type arena struct {
	claims map[int64]*Claim
	index  *SpatialIndex
}

func newArena(cs ...*Claim) *arena {
	a := &arena{claims: map[int64]*Claim{}, index: NewSpatialIndex()}
	for _, c := range cs {
		a.claims[c.id] = c
		if c.parent == 0 {
			a.index.Add(c)
		} else {
			a.claims[c.parent].addChild(c.id)
		}
	}
	return a
}

func (a *arena) claimByID(id int64) *Claim { return a.claims[id] }

func (a *arena) topLevelIn(world uuid.UUID, r Rect) []*Claim { return a.index.QueryRect(world, r) }

func subClaim(id, parent int64, r Rect) *Claim {
	c := newClaim(worldA, r, ownerA, parent, time.Time{})
	c.id = id
	return c
}

func TestOverlapResolver_TopLevel(t *testing.T) {
	a := testClaim(1, worldA, NewRect(0, 0, 100, 100))
	c := testClaim(3, worldA, NewRect(101, 0, 200, 100))
	o := newOverlapResolver(newArena(a, c))

	tests := []struct {
		name      string
		candidate *Claim
		excluded  int64
		want      *Claim
	}{
		{name: "overlaps first claim", candidate: testClaim(0, worldA, NewRect(50, 50, 150, 150)), want: a},
		{name: "shared edge conflicts", candidate: testClaim(0, worldA, NewRect(100, 100, 100, 300)), want: a},
		{name: "adjacent is free", candidate: testClaim(0, worldA, NewRect(0, 101, 200, 300)), want: nil},
		{name: "other world is free", candidate: testClaim(0, worldB, NewRect(0, 0, 100, 100)), want: nil},
		{name: "lowest id reported first", candidate: testClaim(0, worldA, NewRect(90, 0, 110, 10)), want: a},
		{name: "resize ignores itself", candidate: a.shadow(NewRect(0, 0, 100, 120)), excluded: 1, want: nil},
		{name: "resize into neighbor", candidate: a.shadow(NewRect(0, 0, 101, 100)), excluded: 1, want: c},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := o.Check(tt.candidate, tt.excluded); got != tt.want {
				t.Errorf("Check() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOverlapResolver_Subdivisions(t *testing.T) {
	parent := testClaim(1, worldA, NewRect(0, 0, 100, 100))
	d := subClaim(2, 1, NewRect(10, 10, 20, 20))
	o := newOverlapResolver(newArena(parent, d))

	tests := []struct {
		name      string
		candidate *Claim
		excluded  int64
		want      *Claim
	}{
		{name: "inside parent and free", candidate: subClaim(0, 1, NewRect(30, 30, 40, 40)), want: nil},
		{name: "overlaps sibling", candidate: subClaim(0, 1, NewRect(15, 15, 25, 25)), want: d},
		{name: "sticks out of parent", candidate: subClaim(0, 1, NewRect(90, 90, 110, 110)), want: parent},
		{name: "resize within parent", candidate: d.shadow(NewRect(10, 10, 30, 30)), excluded: 2, want: nil},
		{name: "parent shrink strands child", candidate: parent.shadow(NewRect(0, 0, 15, 15)), excluded: 1, want: d},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := o.Check(tt.candidate, tt.excluded); got != tt.want {
				t.Errorf("Check() = %v, want %v", got, tt.want)
			}
		})
	}
}
