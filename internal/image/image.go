// Package image holds the pixel-level value types exchanged between the
// job coordinator and its collaborators: extents and bounds arithmetic,
// raster payloads, result collections, and selection masks.
//
// Images are opaque to the coordinator beyond their extent and byte size.
// Pixels are stored as premultiplied-free RGBA, row-major, 4 bytes per
// pixel.
package image

// Color is an RGBA color with 8 bits per channel.
type Color struct {
	R, G, B, A uint8
}

// White is the background used to flatten line-art control images.
var White = Color{255, 255, 255, 255}

// Image is a raster payload with a fixed extent.
type Image struct {
	extent Extent
	pixels []byte
}

// New allocates a fully transparent image of the given extent.
func New(e Extent) *Image {
	return &Image{extent: e, pixels: make([]byte, e.Pixels()*4)}
}

// FromPixels wraps an existing RGBA buffer. The buffer length must be
// extent.Pixels()*4; ownership passes to the image.
func FromPixels(e Extent, pixels []byte) *Image {
	if len(pixels) != e.Pixels()*4 {
		panic("image: pixel buffer does not match extent")
	}
	return &Image{extent: e, pixels: pixels}
}

// Extent returns the image size.
func (im *Image) Extent() Extent {
	return im.extent
}

// Size returns the payload size in bytes.
func (im *Image) Size() int {
	return len(im.pixels)
}

// Pixels exposes the raw RGBA buffer.
func (im *Image) Pixels() []byte {
	return im.pixels
}

// Fill sets every pixel to c.
func (im *Image) Fill(c Color) {
	for i := 0; i < len(im.pixels); i += 4 {
		im.pixels[i] = c.R
		im.pixels[i+1] = c.G
		im.pixels[i+2] = c.B
		im.pixels[i+3] = c.A
	}
}

// MakeOpaque composites the image over a solid background, discarding
// all transparency. Line-art and stencil control modes require this
// before submission.
func (im *Image) MakeOpaque(background Color) {
	for i := 0; i < len(im.pixels); i += 4 {
		a := uint32(im.pixels[i+3])
		if a == 255 {
			continue
		}
		inv := 255 - a
		im.pixels[i] = uint8((uint32(im.pixels[i])*a + uint32(background.R)*inv) / 255)
		im.pixels[i+1] = uint8((uint32(im.pixels[i+1])*a + uint32(background.G)*inv) / 255)
		im.pixels[i+2] = uint8((uint32(im.pixels[i+2])*a + uint32(background.B)*inv) / 255)
		im.pixels[i+3] = 255
	}
}

// Clone returns a deep copy.
func (im *Image) Clone() *Image {
	pixels := make([]byte, len(im.pixels))
	copy(pixels, im.pixels)
	return &Image{extent: im.extent, pixels: pixels}
}

// Collection is an ordered list of result images.
type Collection []*Image

// Size returns the total payload size in bytes across all images.
func (c Collection) Size() int {
	total := 0
	for _, im := range c {
		total += im.Size()
	}
	return total
}

// Mask is a selection mask covering a sub-region of the document.
// Bounds may be rewritten from absolute document coordinates to
// coordinates relative to a cropped working region before submission.
type Mask struct {
	Bounds Bounds
	data   []byte
}

// NewMask creates a mask with one coverage byte per pixel.
func NewMask(bounds Bounds, data []byte) *Mask {
	if len(data) != bounds.Extent().Pixels() {
		panic("image: mask data does not match bounds")
	}
	return &Mask{Bounds: bounds, data: data}
}

// Data returns the coverage bytes, one per pixel, row-major.
func (m *Mask) Data() []byte {
	return m.data
}
