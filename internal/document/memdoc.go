package document

import "github.com/fhaviland/genflow/internal/image"

// MemLayer is an in-memory layer for tests and the demo command.
type MemLayer struct {
	name    string
	locked  bool
	visible bool
	bounds  image.Bounds
	img     *image.Image
	svg     string
	doc     *MemDoc
}

func (l *MemLayer) Name() string          { return l.name }
func (l *MemLayer) SetName(name string)   { l.name = name }
func (l *MemLayer) SetLocked(locked bool) { l.locked = locked }
func (l *MemLayer) Locked() bool          { return l.locked }
func (l *MemLayer) Visible() bool         { return l.visible }
func (l *MemLayer) Bounds() image.Bounds  { return l.bounds }
func (l *MemLayer) Image() *image.Image   { return l.img }
func (l *MemLayer) SVG() string           { return l.svg }

// Parent returns the owning root layer handle, or nil once the layer
// has been removed from its document.
func (l *MemLayer) Parent() Layer {
	if l.doc == nil {
		return nil
	}
	return l.doc.root
}

// Remove detaches the layer from its document.
func (l *MemLayer) Remove() {
	if l.doc == nil {
		return
	}
	doc := l.doc
	l.doc = nil
	for i, other := range doc.layers {
		if other == l {
			doc.layers = append(doc.layers[:i], doc.layers[i+1:]...)
			return
		}
	}
}

// MemDoc is an in-memory Document. It keeps a flat layer stack and an
// optional scripted selection mask.
type MemDoc struct {
	extent   image.Extent
	root     *MemLayer
	layers   []*MemLayer
	colorOK  bool
	colorMsg string
	valid    bool

	// Selection returned by CreateMaskFromSelection; nil means no
	// active selection.
	Selection *image.Mask
}

// NewMemDoc creates an empty RGBA document of the given extent.
func NewMemDoc(extent image.Extent) *MemDoc {
	d := &MemDoc{extent: extent, colorOK: true, valid: true}
	d.root = &MemLayer{name: "root", visible: true, doc: d}
	base := &MemLayer{
		name:    "Background",
		visible: true,
		bounds:  image.BoundsOf(extent),
		img:     image.New(extent),
		doc:     d,
	}
	d.layers = append(d.layers, base)
	return d
}

// SetColorMode scripts the result of CheckColorMode.
func (d *MemDoc) SetColorMode(ok bool, msg string) {
	d.colorOK, d.colorMsg = ok, msg
}

// Layers returns the current layer stack, bottom first.
func (d *MemDoc) Layers() []*MemLayer { return d.layers }

func (d *MemDoc) CheckColorMode() (bool, string) { return d.colorOK, d.colorMsg }
func (d *MemDoc) Extent() image.Extent           { return d.extent }
func (d *MemDoc) IsValid() bool                  { return d.valid }

func (d *MemDoc) CreateMaskFromSelection(grow, feather, padding float64) (*image.Mask, *image.Bounds) {
	if d.Selection == nil {
		return nil, nil
	}
	bounds := d.Selection.Bounds
	return d.Selection, &bounds
}

func (d *MemDoc) GetImage(bounds image.Bounds, exclude []Layer) *image.Image {
	return image.New(bounds.Extent())
}

func (d *MemDoc) GetLayerImage(layer Layer, bounds *image.Bounds) *image.Image {
	l := layer.(*MemLayer)
	if bounds == nil {
		return image.New(l.bounds.Extent())
	}
	return image.New(bounds.Extent())
}

func (d *MemDoc) InsertLayer(name string, img *image.Image, bounds image.Bounds, below Layer) Layer {
	l := &MemLayer{name: name, visible: true, bounds: bounds, img: img, doc: d}
	d.insert(l, below)
	return l
}

func (d *MemDoc) InsertVectorLayer(name string, svg string, below Layer) Layer {
	l := &MemLayer{name: name, visible: true, svg: svg, doc: d}
	d.insert(l, below)
	return l
}

func (d *MemDoc) insert(l *MemLayer, below Layer) {
	if below != nil {
		for i, other := range d.layers {
			if Layer(other) == below {
				d.layers = append(d.layers[:i], append([]*MemLayer{l}, d.layers[i:]...)...)
				return
			}
		}
	}
	d.layers = append(d.layers, l)
}

func (d *MemDoc) SetLayerContent(layer Layer, img *image.Image, bounds image.Bounds) {
	l := layer.(*MemLayer)
	l.img = img
	l.bounds = bounds
	l.visible = true
}

func (d *MemDoc) HideLayer(layer Layer) {
	layer.(*MemLayer).visible = false
}

func (d *MemDoc) ActiveLayer() Layer {
	return d.layers[len(d.layers)-1]
}

func (d *MemDoc) Resize(extent image.Extent) {
	d.extent = extent
}
