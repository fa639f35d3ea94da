package claims

import (
	"fmt"

	"github.com/google/uuid"
)

// Rect is an axis-aligned rectangle on the X/Z plane. All bounds are inclusive.
type Rect struct {
	LesserX  int
	LesserZ  int
	GreaterX int
	GreaterZ int
}

// NewRect builds a normalized Rect from two opposite corners given in any order.
func NewRect(x1, z1, x2, z2 int) Rect {
	return Rect{
		LesserX:  min(x1, x2),
		LesserZ:  min(z1, z2),
		GreaterX: max(x1, x2),
		GreaterZ: max(z1, z2),
	}
}

// Normalize returns r with lesser <= greater on both axes.
func (r Rect) Normalize() Rect {
	return NewRect(r.LesserX, r.LesserZ, r.GreaterX, r.GreaterZ)
}

// Overlaps reports whether r and o share at least one block.
// Touching edges count as overlapping.
func (r Rect) Overlaps(o Rect) bool {
	return r.LesserX <= o.GreaterX && r.GreaterX >= o.LesserX &&
		r.LesserZ <= o.GreaterZ && r.GreaterZ >= o.LesserZ
}

// Contains reports whether the block at (x, z) lies inside r.
func (r Rect) Contains(x, z int) bool {
	return x >= r.LesserX && x <= r.GreaterX && z >= r.LesserZ && z <= r.GreaterZ
}

// ContainsRect reports whether both corners of o lie inside r.
func (r Rect) ContainsRect(o Rect) bool {
	return r.Contains(o.LesserX, o.LesserZ) && r.Contains(o.GreaterX, o.GreaterZ)
}

// Width is the number of blocks along X.
func (r Rect) Width() int { return r.GreaterX - r.LesserX + 1 }

// Length is the number of blocks along Z.
func (r Rect) Length() int { return r.GreaterZ - r.LesserZ + 1 }

// Area is the number of blocks covered, which is what claim blocks are charged against.
func (r Rect) Area() int { return r.Width() * r.Length() }

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.LesserX, r.LesserZ, r.GreaterX, r.GreaterZ)
}

// Location is a block position in a world. Y is only consulted by a HeightPolicy.
type Location struct {
	World uuid.UUID
	X     int
	Y     int
	Z     int
}

// At returns a Location at (x, z) in world with Y left at zero.
func At(world uuid.UUID, x, z int) Location {
	return Location{World: world, X: x, Z: z}
}
