package claims

import (
	"cmp"
	"slices"

	"github.com/google/uuid"
)

// cellShift sizes the index grid: a cell is 256x256 blocks.
const cellShift = 8

// SpatialIndex buckets top-level claims by the grid cells their bounds touch.
// Each bucket is kept sorted by claim id, so scans are deterministic and the
// lowest id wins when a point sits on a shared edge.
//
// Cell coordinates are packed into a 32-bit key assuming each fits in 16 bits.
// Claims more than 2^23 blocks from the origin can alias onto other buckets.
// That only adds false candidates, which the exact bounds test filters out.
type SpatialIndex struct {
	worlds map[uuid.UUID]map[int32][]*Claim
}

func NewSpatialIndex() *SpatialIndex {
	return &SpatialIndex{worlds: map[uuid.UUID]map[int32][]*Claim{}}
}

func cellKey(cx, cz int) int32 {
	return int32(cz) ^ (int32(cx) << 16)
}

// cellRange returns the inclusive cell range covered by r. The right shift on
// signed ints floors, so negative coordinates land in the correct cell.
func cellRange(r Rect) (lx, lz, gx, gz int) {
	return r.LesserX >> cellShift, r.LesserZ >> cellShift, r.GreaterX >> cellShift, r.GreaterZ >> cellShift
}

func byID(c *Claim, id int64) int { return cmp.Compare(c.id, id) }

// Add inserts c into every bucket its bounds touch.
func (s *SpatialIndex) Add(c *Claim) {
	grid := s.worlds[c.world]
	if grid == nil {
		grid = map[int32][]*Claim{}
		s.worlds[c.world] = grid
	}
	lx, lz, gx, gz := cellRange(c.bounds)
	for x := lx; x <= gx; x++ {
		for z := lz; z <= gz; z++ {
			key := cellKey(x, z)
			bucket := grid[key]
			i, found := slices.BinarySearchFunc(bucket, c.id, byID)
			if !found {
				grid[key] = slices.Insert(bucket, i, c)
			}
		}
	}
}

// Remove deletes c from every bucket its current bounds touch and prunes empty buckets.
func (s *SpatialIndex) Remove(c *Claim) {
	grid := s.worlds[c.world]
	if grid == nil {
		return
	}
	lx, lz, gx, gz := cellRange(c.bounds)
	for x := lx; x <= gx; x++ {
		for z := lz; z <= gz; z++ {
			key := cellKey(x, z)
			bucket := grid[key]
			i, found := slices.BinarySearchFunc(bucket, c.id, byID)
			if !found {
				continue
			}
			bucket = slices.Delete(bucket, i, i+1)
			if len(bucket) == 0 {
				delete(grid, key)
			} else {
				grid[key] = bucket
			}
		}
	}
	if len(grid) == 0 {
		delete(s.worlds, c.world)
	}
}

// QueryPoint returns the lowest-id claim whose bounds contain loc, or nil.
func (s *SpatialIndex) QueryPoint(loc Location) *Claim {
	grid := s.worlds[loc.World]
	if grid == nil {
		return nil
	}
	for _, c := range grid[cellKey(loc.X>>cellShift, loc.Z>>cellShift)] {
		if c.bounds.Contains(loc.X, loc.Z) {
			return c
		}
	}
	return nil
}

// QueryRange returns the claims intersecting the square loc ± radius, sorted by id.
func (s *SpatialIndex) QueryRange(loc Location, radius int) []*Claim {
	return s.QueryRect(loc.World, NewRect(loc.X-radius, loc.Z-radius, loc.X+radius, loc.Z+radius))
}

// QueryRect returns the claims in world whose bounds overlap r, sorted by id.
func (s *SpatialIndex) QueryRect(world uuid.UUID, r Rect) []*Claim {
	grid := s.worlds[world]
	if grid == nil {
		return nil
	}
	seen := map[int64]bool{}
	var out []*Claim
	lx, lz, gx, gz := cellRange(r)
	for x := lx; x <= gx; x++ {
		for z := lz; z <= gz; z++ {
			for _, c := range grid[cellKey(x, z)] {
				if seen[c.id] {
					continue
				}
				seen[c.id] = true
				if c.bounds.Overlaps(r) {
					out = append(out, c)
				}
			}
		}
	}
	slices.SortFunc(out, func(a, b *Claim) int { return cmp.Compare(a.id, b.id) })
	return out
}

// BucketCount returns the number of non-empty buckets across all worlds.
func (s *SpatialIndex) BucketCount() int {
	n := 0
	for _, grid := range s.worlds {
		n += len(grid)
	}
	return n
}
