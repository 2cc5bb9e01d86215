package image

import "fmt"

// Extent is a 2D size in pixels.
type Extent struct {
	Width  int
	Height int
}

// IsZero reports whether the extent has no area.
func (e Extent) IsZero() bool {
	return e.Width <= 0 || e.Height <= 0
}

// Pixels returns the total pixel count.
func (e Extent) Pixels() int {
	return e.Width * e.Height
}

// Scaled returns the extent multiplied by factor, rounded down.
func (e Extent) Scaled(factor float64) Extent {
	return Extent{
		Width:  int(float64(e.Width) * factor),
		Height: int(float64(e.Height) * factor),
	}
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Bounds is an axis-aligned rectangle in document pixel coordinates.
type Bounds struct {
	X      int
	Y      int
	Width  int
	Height int
}

// BoundsOf returns the bounds covering an entire extent, anchored at the origin.
func BoundsOf(e Extent) Bounds {
	return Bounds{0, 0, e.Width, e.Height}
}

// Extent returns the size of the rectangle.
func (b Bounds) Extent() Extent {
	return Extent{b.Width, b.Height}
}

// IsZero reports whether the rectangle has no area.
func (b Bounds) IsZero() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Contains reports whether other lies fully inside b.
func (b Bounds) Contains(other Bounds) bool {
	return other.X >= b.X && other.Y >= b.Y &&
		other.X+other.Width <= b.X+b.Width &&
		other.Y+other.Height <= b.Y+b.Height
}

// Offset returns the bounds translated by (dx, dy).
func (b Bounds) Offset(dx, dy int) Bounds {
	return Bounds{b.X + dx, b.Y + dy, b.Width, b.Height}
}

// Relative returns b expressed in the coordinate system of origin.
// The extent is unchanged; only the position shifts.
func (b Bounds) Relative(origin Bounds) Bounds {
	return Bounds{b.X - origin.X, b.Y - origin.Y, b.Width, b.Height}
}

func (b Bounds) String() string {
	return fmt.Sprintf("(%d, %d) %dx%d", b.X, b.Y, b.Width, b.Height)
}

// ApplyCrop clamps b to lie within crop. The result keeps as much of b
// as fits; an empty intersection yields a zero-area rectangle at the
// crop edge.
func ApplyCrop(b, crop Bounds) Bounds {
	x0 := max(b.X, crop.X)
	y0 := max(b.Y, crop.Y)
	x1 := min(b.X+b.Width, crop.X+crop.Width)
	y1 := min(b.Y+b.Height, crop.Y+crop.Height)
	return Bounds{x0, y0, max(x1-x0, 0), max(y1-y0, 0)}
}

// MinimumSize grows b symmetrically until both sides are at least
// minSize, then clamps the result to fit inside limit. Bounds which
// cannot reach minSize inside limit are pinned to the limit edge.
func MinimumSize(b Bounds, minSize int, limit Extent) Bounds {
	grown := b
	if grown.Width < minSize {
		grown.X -= (minSize - grown.Width) / 2
		grown.Width = minSize
	}
	if grown.Height < minSize {
		grown.Y -= (minSize - grown.Height) / 2
		grown.Height = minSize
	}
	if grown.Width > limit.Width {
		grown.Width = limit.Width
	}
	if grown.Height > limit.Height {
		grown.Height = limit.Height
	}
	grown.X = min(max(grown.X, 0), limit.Width-grown.Width)
	grown.Y = min(max(grown.Y, 0), limit.Height-grown.Height)
	return grown
}
