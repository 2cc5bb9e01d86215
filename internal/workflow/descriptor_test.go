package workflow

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhaviland/genflow/internal/image"
	"github.com/fhaviland/genflow/internal/style"
)

func golden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func descriptorJSON(t *testing.T, d Descriptor) []byte {
	t.Helper()
	data, err := json.Marshal(d)
	require.NoError(t, err)
	return data
}

func TestGenerate_Golden(t *testing.T) {
	cond := Conditioning{Prompt: "a castle"}
	d := Generate(style.Default(), image.Extent{Width: 512, Height: 512}, cond, nil)
	golden(t).Assert(t, "generate", descriptorJSON(t, d))
}

func TestInpaint_Golden(t *testing.T) {
	img := image.New(image.Extent{Width: 256, Height: 256})
	mask := image.NewMask(image.Bounds{X: 64, Y: 64, Width: 128, Height: 128},
		make([]byte, 128*128))
	cond := Conditioning{Prompt: "ruined tower"}
	d := Inpaint(style.Default(), img, mask, cond)
	golden(t).Assert(t, "inpaint", descriptorJSON(t, d))
}

func TestUpscaleFast_Golden(t *testing.T) {
	img := image.New(image.Extent{Width: 128, Height: 128})
	d := UpscaleFast(img, "4x_NMKD-Superscale", 2)
	golden(t).Assert(t, "upscale_fast", descriptorJSON(t, d))
}

func TestRefine_CarriesStrengthAndImage(t *testing.T) {
	img := image.New(image.Extent{Width: 256, Height: 256})
	d := Refine(style.Default(), img, Conditioning{Prompt: "x"}, 0.4, nil)
	assert.Equal(t, OpRefine, d.Operation)
	assert.Equal(t, 0.4, d.Strength)
	assert.Same(t, img, d.Image.Image)
}

func TestRefineRegion_CarriesMask(t *testing.T) {
	img := image.New(image.Extent{Width: 256, Height: 256})
	mask := image.NewMask(image.Bounds{Width: 64, Height: 64}, make([]byte, 64*64))
	d := RefineRegion(style.Default(), img, mask, Conditioning{}, 0.6)
	assert.Equal(t, OpRefineRegion, d.Operation)
	assert.Same(t, mask, d.Mask.Mask)
}

func TestCreateControlImage(t *testing.T) {
	img := image.New(image.Extent{Width: 256, Height: 256})
	d := CreateControlImage(img, ControlPose)
	assert.Equal(t, OpControlImage, d.Operation)
	assert.Equal(t, "Pose", d.Mode)
}

func TestComputeBounds(t *testing.T) {
	extent := image.Extent{Width: 512, Height: 512}
	full := image.BoundsOf(extent)

	assert.Equal(t, full, ComputeBounds(extent, nil, 1))
	assert.Equal(t, full, ComputeBounds(extent, nil, 0.5))

	maskBounds := image.Bounds{X: 100, Y: 100, Width: 128, Height: 128}
	assert.Equal(t, maskBounds, ComputeBounds(extent, &maskBounds, 1))
	assert.Equal(t, full, ComputeBounds(extent, &maskBounds, 0.5),
		"refinement reads context from the whole canvas")

	// Tiny selections are padded to a workable minimum.
	tiny := image.Bounds{X: 200, Y: 200, Width: 10, Height: 10}
	padded := ComputeBounds(extent, &tiny, 1)
	assert.GreaterOrEqual(t, padded.Width, 64)
	assert.GreaterOrEqual(t, padded.Height, 64)
}

func TestControlMode_IsLines(t *testing.T) {
	assert.True(t, ControlLineArt.IsLines())
	assert.True(t, ControlScribble.IsLines())
	assert.False(t, ControlPose.IsLines())
	assert.False(t, ControlImage.IsLines())
}
