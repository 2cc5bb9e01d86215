package workflow

import (
	"github.com/fhaviland/genflow/internal/document"
	"github.com/fhaviland/genflow/internal/image"
)

// ControlMode identifies the kind of conditioning a control input
// provides.
type ControlMode int

const (
	ControlImage ControlMode = iota
	ControlBlur
	ControlPose
	ControlDepth
	ControlScribble
	ControlLineArt
	ControlSoftEdge
	ControlCanny
	ControlStencil
	ControlSegmentation
)

var controlModeNames = map[ControlMode]string{
	ControlImage:        "Image",
	ControlBlur:         "Blur",
	ControlPose:         "Pose",
	ControlDepth:        "Depth",
	ControlScribble:     "Scribble",
	ControlLineArt:      "Line Art",
	ControlSoftEdge:     "Soft Edge",
	ControlCanny:        "Canny Edge",
	ControlStencil:      "Stencil",
	ControlSegmentation: "Segmentation",
}

// Text returns the display name of the mode.
func (m ControlMode) Text() string {
	return controlModeNames[m]
}

// IsLines reports whether the mode carries line drawings. These expect
// a solid background, so captured layers are flattened over white.
func (m ControlMode) IsLines() bool {
	switch m {
	case ControlScribble, ControlLineArt, ControlSoftEdge, ControlCanny:
		return true
	}
	return false
}

// Control is one user-managed conditioning input. While attached to a
// document it references a host layer; at capture time the layer pixels
// are resolved into Image. The same record is shared between the
// session's control list and any in-flight control-image job, so it is
// always handled by pointer.
type Control struct {
	Mode     ControlMode
	Layer    document.Layer
	Image    *image.Image
	Strength float64
	End      float64
}

// NewControl attaches a control input to a host layer with full
// strength over the whole sampling range.
func NewControl(mode ControlMode, layer document.Layer) *Control {
	return &Control{Mode: mode, Layer: layer, Strength: 1, End: 1}
}

// Captured returns a submission copy of c with resolved pixels. The
// original record keeps its layer reference.
func (c *Control) Captured(img *image.Image) *Control {
	return &Control{Mode: c.Mode, Image: img, Strength: c.Strength, End: c.End}
}

// Conditioning bundles everything that steers a generation besides the
// style: prompts, captured control inputs, and an optional focus area.
type Conditioning struct {
	Prompt         string
	NegativePrompt string
	Control        []*Control

	// Area restricts attention to the selection bounds. Only set for
	// full-strength generation; refinement passes work on the cropped
	// image directly.
	Area *image.Bounds
}

// LiveParams tune the fast feedback loop of live-preview generation.
type LiveParams struct {
	IsActive bool
	Strength float64
	Seed     int
}

// NewLiveParams returns live settings with a moderate default strength.
func NewLiveParams() LiveParams {
	return LiveParams{Strength: 0.3}
}
