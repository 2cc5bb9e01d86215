package image

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyCrop(t *testing.T) {
	crop := Bounds{X: 64, Y: 64, Width: 128, Height: 128}

	inside := Bounds{X: 80, Y: 80, Width: 32, Height: 32}
	assert.Equal(t, inside, ApplyCrop(inside, crop))

	overlapping := Bounds{X: 0, Y: 0, Width: 100, Height: 100}
	assert.Equal(t, Bounds{X: 64, Y: 64, Width: 36, Height: 36}, ApplyCrop(overlapping, crop))

	disjoint := Bounds{X: 300, Y: 300, Width: 10, Height: 10}
	assert.True(t, ApplyCrop(disjoint, crop).IsZero())
}

func TestMinimumSize(t *testing.T) {
	limit := Extent{Width: 512, Height: 512}

	small := Bounds{X: 200, Y: 200, Width: 10, Height: 10}
	grown := MinimumSize(small, 64, limit)
	assert.Equal(t, 64, grown.Width)
	assert.Equal(t, 64, grown.Height)
	assert.True(t, BoundsOf(limit).Contains(grown))

	big := Bounds{X: 0, Y: 0, Width: 128, Height: 128}
	assert.Equal(t, big, MinimumSize(big, 64, limit))

	// Near the edge the grown rect is pushed back inside.
	corner := MinimumSize(Bounds{X: 500, Y: 500, Width: 8, Height: 8}, 64, limit)
	assert.True(t, BoundsOf(limit).Contains(corner))
	assert.Equal(t, 64, corner.Width)
}

func TestRelative(t *testing.T) {
	origin := Bounds{X: 64, Y: 32, Width: 128, Height: 128}
	b := Bounds{X: 100, Y: 100, Width: 16, Height: 16}
	assert.Equal(t, Bounds{X: 36, Y: 68, Width: 16, Height: 16}, b.Relative(origin))
}

func TestExtentScaled(t *testing.T) {
	assert.Equal(t, Extent{Width: 1024, Height: 768}, Extent{Width: 512, Height: 384}.Scaled(2))
	assert.Equal(t, Extent{Width: 256, Height: 192}, Extent{Width: 512, Height: 384}.Scaled(0.5))
}

func TestMakeOpaque(t *testing.T) {
	img := New(Extent{Width: 2, Height: 1})
	copy(img.Pixels(), []byte{
		0, 0, 0, 0, // fully transparent -> background
		100, 100, 100, 255, // opaque -> unchanged
	})

	img.MakeOpaque(White)

	px := img.Pixels()
	assert.Equal(t, []byte{255, 255, 255, 255}, px[0:4])
	assert.Equal(t, []byte{100, 100, 100, 255}, px[4:8])
}

func TestCollectionSize(t *testing.T) {
	c := Collection{New(Extent{Width: 8, Height: 8}), New(Extent{Width: 4, Height: 4})}
	assert.Equal(t, 8*8*4+4*4*4, c.Size())
	assert.Zero(t, Collection(nil).Size())
}

func TestMaskDataMustMatchBounds(t *testing.T) {
	assert.Panics(t, func() {
		NewMask(Bounds{Width: 8, Height: 8}, make([]byte, 3))
	})
}
