// Package document defines the contract between the job coordinator and
// the host editor: pixel access, selection masks, and layer management.
// The coordinator never owns layers; it holds handles whose liveness
// must be re-checked before use, since the host may delete any layer at
// any time.
package document

import "github.com/fhaviland/genflow/internal/image"

// Layer is a handle to a host-owned layer. A handle whose Parent
// returns nil has been detached from the document and must be treated
// as gone.
type Layer interface {
	Name() string
	SetName(name string)
	SetLocked(locked bool)
	Visible() bool
	Bounds() image.Bounds
	Parent() Layer
	Remove()
}

// Document is the host document a coordinator session is bound to.
type Document interface {
	// CheckColorMode reports whether the document's color mode is
	// supported for generation, with a user-facing message when not.
	CheckColorMode() (bool, string)

	Extent() image.Extent

	// CreateMaskFromSelection converts the active selection into a
	// mask. Grow, feather and padding are fractions of the selection
	// size. Returns (nil, nil) when there is no selection.
	CreateMaskFromSelection(grow, feather, padding float64) (*image.Mask, *image.Bounds)

	// GetImage returns the flattened document content within bounds,
	// ignoring the listed layers.
	GetImage(bounds image.Bounds, exclude []Layer) *image.Image

	// GetLayerImage returns a single layer's pixels. A nil bounds
	// captures the layer's own bounds.
	GetLayerImage(layer Layer, bounds *image.Bounds) *image.Image

	// InsertLayer adds a raster layer above the active one, or below
	// the given sibling when below is non-nil.
	InsertLayer(name string, img *image.Image, bounds image.Bounds, below Layer) Layer

	// InsertVectorLayer adds a vector layer from SVG content.
	InsertVectorLayer(name string, svg string, below Layer) Layer

	SetLayerContent(layer Layer, img *image.Image, bounds image.Bounds)
	HideLayer(layer Layer)

	// ActiveLayer returns the layer currently targeted by the user.
	ActiveLayer() Layer

	// Resize grows or shrinks the document canvas.
	Resize(extent image.Extent)

	// IsValid reports whether the underlying document still exists.
	IsValid() bool
}
