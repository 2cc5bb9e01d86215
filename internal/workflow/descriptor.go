package workflow

import (
	"fmt"

	"github.com/fhaviland/genflow/internal/image"
	"github.com/fhaviland/genflow/internal/style"
)

// Operation names the backend workflow a descriptor instantiates.
type Operation string

const (
	OpGenerate     Operation = "generate"
	OpRefine       Operation = "refine"
	OpInpaint      Operation = "inpaint"
	OpRefineRegion Operation = "refine_region"
	OpUpscaleTiled Operation = "upscale_tiled"
	OpUpscaleFast  Operation = "upscale_fast"
	OpControlImage Operation = "control_image"
)

// ImageInput wraps a raster payload sent to the backend. It serializes
// as a summary (extent and byte count) so descriptors can be compared
// in golden files without embedding pixels.
type ImageInput struct {
	Image *image.Image
}

func (p ImageInput) MarshalJSON() ([]byte, error) {
	if p.Image == nil {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf(`{"extent":%q,"bytes":%d}`, p.Image.Extent(), p.Image.Size())), nil
}

// MaskInput wraps a selection mask payload, serialized as its bounds.
type MaskInput struct {
	Mask *image.Mask
}

func (p MaskInput) MarshalJSON() ([]byte, error) {
	if p.Mask == nil {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf(`{"bounds":%q}`, p.Mask.Bounds)), nil
}

// ControlInput is the submission form of a captured control input.
type ControlInput struct {
	Mode     string     `json:"mode"`
	Image    ImageInput `json:"image"`
	Strength float64    `json:"strength"`
	End      float64    `json:"end"`
}

// Descriptor is one unit of work for the backend. It is opaque to the
// coordinator: constructed here, passed to the client, never read back.
type Descriptor struct {
	Operation Operation      `json:"operation"`
	Style     *style.Style   `json:"style,omitempty"`
	Extent    image.Extent   `json:"extent"`
	Prompt    string         `json:"prompt,omitempty"`
	Negative  string         `json:"negative,omitempty"`
	Area      *image.Bounds  `json:"area,omitempty"`
	Strength  float64        `json:"strength,omitempty"`
	Seed      int            `json:"seed,omitempty"`
	Image     ImageInput     `json:"image,omitempty"`
	Mask      MaskInput      `json:"mask,omitempty"`
	Control   []ControlInput `json:"control,omitempty"`
	Upscaler  string         `json:"upscaler,omitempty"`
	Factor    float64        `json:"factor,omitempty"`
	Mode      string         `json:"mode,omitempty"`
}

func controlInputs(cond Conditioning) []ControlInput {
	if len(cond.Control) == 0 {
		return nil
	}
	inputs := make([]ControlInput, 0, len(cond.Control))
	for _, c := range cond.Control {
		inputs = append(inputs, ControlInput{
			Mode:     c.Mode.Text(),
			Image:    ImageInput{c.Image},
			Strength: c.Strength,
			End:      c.End,
		})
	}
	return inputs
}

// ComputeBounds determines the working region for a generation: the
// whole document when no mask is present, otherwise the mask region
// padded to a workable minimum size.
func ComputeBounds(extent image.Extent, maskBounds *image.Bounds, strength float64) image.Bounds {
	if maskBounds == nil {
		return image.BoundsOf(extent)
	}
	if strength < 1 {
		// Refinement reads surrounding context from the full canvas.
		return image.BoundsOf(extent)
	}
	return image.MinimumSize(*maskBounds, 64, extent)
}

// Generate builds a from-scratch generation over a blank region.
func Generate(s style.Style, extent image.Extent, cond Conditioning, live *LiveParams) Descriptor {
	d := Descriptor{
		Operation: OpGenerate,
		Style:     &s,
		Extent:    extent,
		Prompt:    cond.Prompt,
		Negative:  cond.NegativePrompt,
		Area:      cond.Area,
		Strength:  1,
		Control:   controlInputs(cond),
	}
	applyLive(&d, live)
	return d
}

// Refine denoises an existing image without a mask.
func Refine(s style.Style, img *image.Image, cond Conditioning, strength float64, live *LiveParams) Descriptor {
	d := Descriptor{
		Operation: OpRefine,
		Style:     &s,
		Extent:    img.Extent(),
		Prompt:    cond.Prompt,
		Negative:  cond.NegativePrompt,
		Strength:  strength,
		Image:     ImageInput{img},
		Control:   controlInputs(cond),
	}
	applyLive(&d, live)
	return d
}

// Inpaint regenerates the masked region of an image at full strength.
func Inpaint(s style.Style, img *image.Image, mask *image.Mask, cond Conditioning) Descriptor {
	return Descriptor{
		Operation: OpInpaint,
		Style:     &s,
		Extent:    img.Extent(),
		Prompt:    cond.Prompt,
		Negative:  cond.NegativePrompt,
		Area:      cond.Area,
		Strength:  1,
		Image:     ImageInput{img},
		Mask:      MaskInput{mask},
		Control:   controlInputs(cond),
	}
}

// RefineRegion denoises only the masked region of an image.
func RefineRegion(s style.Style, img *image.Image, mask *image.Mask, cond Conditioning, strength float64) Descriptor {
	return Descriptor{
		Operation: OpRefineRegion,
		Style:     &s,
		Extent:    img.Extent(),
		Prompt:    cond.Prompt,
		Negative:  cond.NegativePrompt,
		Strength:  strength,
		Image:     ImageInput{img},
		Mask:      MaskInput{mask},
		Control:   controlInputs(cond),
	}
}

// UpscaleTiled upscales with a model pass followed by tiled diffusion
// refinement in the given style.
func UpscaleTiled(img *image.Image, upscaler string, factor float64, s style.Style, strength float64) Descriptor {
	return Descriptor{
		Operation: OpUpscaleTiled,
		Style:     &s,
		Extent:    img.Extent().Scaled(factor),
		Strength:  strength,
		Image:     ImageInput{img},
		Upscaler:  upscaler,
		Factor:    factor,
	}
}

// UpscaleFast upscales with a single model pass, no diffusion.
func UpscaleFast(img *image.Image, upscaler string, factor float64) Descriptor {
	return Descriptor{
		Operation: OpUpscaleFast,
		Extent:    img.Extent().Scaled(factor),
		Image:     ImageInput{img},
		Upscaler:  upscaler,
		Factor:    factor,
	}
}

// CreateControlImage extracts a control map (pose, depth, lines...)
// from document pixels.
func CreateControlImage(img *image.Image, mode ControlMode) Descriptor {
	return Descriptor{
		Operation: OpControlImage,
		Extent:    img.Extent(),
		Image:     ImageInput{img},
		Mode:      mode.Text(),
	}
}

func applyLive(d *Descriptor, live *LiveParams) {
	if live == nil {
		return
	}
	d.Seed = live.Seed
}
