package generation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhaviland/genflow/internal/client"
	"github.com/fhaviland/genflow/internal/config"
	"github.com/fhaviland/genflow/internal/document"
	"github.com/fhaviland/genflow/internal/image"
	"github.com/fhaviland/genflow/internal/workflow"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T) (*Session, *client.Sim, *document.MemDoc) {
	t.Helper()
	doc := document.NewMemDoc(image.Extent{Width: 512, Height: 512})
	sim := client.NewSim()
	s := NewSession(doc, sim, config.Default(), testLogger())
	sim.Notify(s.HandleMessage)
	return s, sim, doc
}

func selectMask(doc *document.MemDoc, bounds image.Bounds) *image.Mask {
	mask := image.NewMask(bounds, make([]byte, bounds.Extent().Pixels()))
	doc.Selection = mask
	return mask
}

func TestGenerate_FullGeneration(t *testing.T) {
	s, sim, _ := newTestSession(t)
	s.SetPrompt("a castle")

	task := s.Generate()
	require.NotNil(t, task)
	task.Wait()

	job := sim.LastJob()
	assert.Equal(t, workflow.OpGenerate, job.Descriptor.Operation)
	assert.Equal(t, "a castle", job.Descriptor.Prompt)

	require.Equal(t, 1, s.Jobs().Len())
	queued := s.Jobs().At(0)
	assert.Equal(t, job.ID, queued.ID)
	assert.Equal(t, KindDiffusion, queued.Kind)
	assert.Equal(t, image.Bounds{Width: 512, Height: 512}, queued.Bounds)
}

func TestGenerate_Refine(t *testing.T) {
	s, sim, _ := newTestSession(t)
	s.SetStrength(0.5)

	s.Generate().Wait()

	d := sim.LastJob().Descriptor
	assert.Equal(t, workflow.OpRefine, d.Operation)
	assert.Equal(t, 0.5, d.Strength)
	require.NotNil(t, d.Image.Image, "refine submits the captured source image")
}

func TestGenerate_Inpaint_RewritesMaskBounds(t *testing.T) {
	s, sim, doc := newTestSession(t)
	maskBounds := image.Bounds{X: 64, Y: 64, Width: 128, Height: 128}
	selectMask(doc, maskBounds)

	s.Generate().Wait()

	d := sim.LastJob().Descriptor
	assert.Equal(t, workflow.OpInpaint, d.Operation)
	require.NotNil(t, d.Mask.Mask)
	// Mask payload aligns with the cropped working image...
	assert.Equal(t, image.Bounds{Width: 128, Height: 128}, d.Mask.Mask.Bounds)
	// ...while the job keeps the absolute position for result insertion.
	assert.Equal(t, maskBounds, s.Jobs().At(0).Bounds)
}

func TestGenerate_RefineRegion(t *testing.T) {
	s, sim, doc := newTestSession(t)
	maskBounds := image.Bounds{X: 64, Y: 64, Width: 128, Height: 128}
	selectMask(doc, maskBounds)
	s.SetStrength(0.7)

	s.Generate().Wait()

	d := sim.LastJob().Descriptor
	assert.Equal(t, workflow.OpRefineRegion, d.Operation)
	assert.Equal(t, 0.7, d.Strength)
	require.NotNil(t, d.Image.Image)
	require.NotNil(t, d.Mask.Mask)
	assert.Equal(t, maskBounds, s.Jobs().At(0).Bounds)
}

func TestGenerate_StrategyContractViolations(t *testing.T) {
	s, _, _ := newTestSession(t)
	bounds := image.Bounds{Width: 512, Height: 512}
	cond := workflow.Conditioning{}
	mask := image.NewMask(bounds, make([]byte, bounds.Extent().Pixels()))

	// Refine without its source image.
	assert.Panics(t, func() {
		_ = s.submitGeneration(context.Background(), s.Style(), 0.5, bounds, cond, nil, nil)
	})
	// Inpaint without its source image.
	assert.Panics(t, func() {
		_ = s.submitGeneration(context.Background(), s.Style(), 1, bounds, cond, nil, mask)
	})
}

func TestGenerate_ColorModeValidation(t *testing.T) {
	s, sim, doc := newTestSession(t)
	doc.SetColorMode(false, "unsupported color mode: CMYK")

	task := s.Generate()

	assert.Nil(t, task, "no task is spawned when validation fails")
	assert.True(t, s.HasError())
	assert.Equal(t, "unsupported color mode: CMYK", s.Error())
	assert.Empty(t, sim.Jobs())
	assert.Zero(t, s.Jobs().Len())
}

func TestGenerate_SubmissionFailure(t *testing.T) {
	s, sim, _ := newTestSession(t)
	sim.EnqueueErr = errors.New("connection refused")

	s.Generate().Wait()

	assert.True(t, s.HasError())
	assert.Contains(t, s.Error(), "connection refused")
	assert.Zero(t, s.Jobs().Len(), "a failed submission never enqueues a job")
}

func TestGenerate_NewSubmissionClearsError(t *testing.T) {
	s, sim, _ := newTestSession(t)
	sim.EnqueueErr = errors.New("connection refused")
	s.Generate().Wait()
	require.True(t, s.HasError())

	sim.EnqueueErr = nil
	s.Generate().Wait()

	assert.False(t, s.HasError())
}

func TestHandleMessage_RoundTrip(t *testing.T) {
	s, sim, _ := newTestSession(t)
	s.SetPrompt("a castle")
	s.Generate().Wait()
	id := sim.LastJob().ID
	job := s.Jobs().FindID(id)

	sim.Progress(id, 0.5)
	assert.Equal(t, StateExecuting, job.State)
	assert.Equal(t, 0.5, s.Progress())

	result := image.New(image.Extent{Width: 512, Height: 512})
	sim.Finish(id, image.Collection{result})

	assert.Equal(t, StateFinished, job.State)
	assert.Equal(t, 1.0, s.Progress())
	require.Len(t, job.Results(), 1)
	assert.InDelta(t, 1.0, s.Jobs().MemoryUsage(), 1e-9)
	assert.NotNil(t, s.Jobs().FindID(id), "diffusion jobs are kept as history")

	// With no preview layer, the fresh result is auto-selected and
	// shown on a new locked preview layer.
	require.NotNil(t, s.Jobs().Selection())
	assert.Equal(t, Selection{Job: id, Image: 0}, *s.Jobs().Selection())
	layer := s.PreviewLayer()
	require.NotNil(t, layer)
	assert.Equal(t, "[Preview] a castle", layer.Name())
	assert.True(t, layer.(*document.MemLayer).Locked())
}

func TestHandleMessage_Interrupted(t *testing.T) {
	s, sim, _ := newTestSession(t)
	s.Generate().Wait()
	id := sim.LastJob().ID
	sim.Progress(id, 0.4)

	sim.InterruptJob(id)

	assert.Equal(t, StateCancelled, s.Jobs().FindID(id).State)
	assert.Zero(t, s.Progress())
}

func TestHandleMessage_ServerError(t *testing.T) {
	s, sim, _ := newTestSession(t)
	s.Generate().Wait()
	id := sim.LastJob().ID

	sim.Fail(id, "out of VRAM")

	assert.Equal(t, StateCancelled, s.Jobs().FindID(id).State)
	assert.Contains(t, s.Error(), "out of VRAM")
}

func TestHandleMessage_UnknownJobIgnored(t *testing.T) {
	s, sim, _ := newTestSession(t)
	s.Generate().Wait()
	id := sim.LastJob().ID

	s.HandleMessage(client.Message{JobID: "stale", Event: client.EventProgress, Progress: 0.9})
	s.HandleMessage(client.Message{JobID: "stale", Event: client.EventError, Error: "boom"})

	assert.Equal(t, StateQueued, s.Jobs().FindID(id).State)
	assert.False(t, s.HasError())
	assert.Zero(t, s.Progress())
}

type fakePose struct {
	scaled image.Extent
}

func (p *fakePose) Scale(extent image.Extent) { p.scaled = extent }
func (p *fakePose) SVG() string               { return "<svg/>" }

func TestControlLayer_PoseResult(t *testing.T) {
	s, sim, doc := newTestSession(t)
	control := s.AddControl(workflow.ControlPose, doc.Layers()[0])

	s.GenerateControlLayer(control).Wait()
	id := sim.LastJob().ID
	assert.Equal(t, workflow.OpControlImage, sim.LastJob().Descriptor.Operation)
	require.Same(t, s.Jobs().FindID(id), s.Jobs().FindControl(control))

	pose := &fakePose{}
	sim.FinishPose(id, pose)

	// Decoded pose becomes a vector layer attached to the control.
	assert.Equal(t, image.Extent{Width: 512, Height: 512}, pose.scaled)
	vector, ok := control.Layer.(*document.MemLayer)
	require.True(t, ok)
	assert.Equal(t, "<svg/>", vector.SVG())
	assert.Equal(t, "[Control] Pose", vector.Name())
	// Control jobs are not retained in history.
	assert.Zero(t, s.Jobs().Len())
}

func TestControlLayer_CachedExecutionWithoutResult(t *testing.T) {
	s, sim, doc := newTestSession(t)
	control := s.AddControl(workflow.ControlDepth, doc.Layers()[0])
	s.GenerateControlLayer(control).Wait()

	// Finished with neither images nor a pose payload: the control
	// falls back to the active layer.
	sim.Finish(sim.LastJob().ID, nil)

	assert.Same(t, doc.ActiveLayer(), control.Layer)
	assert.Zero(t, s.Jobs().Len())
}

func TestRemoveControlLayer_OrphansJob(t *testing.T) {
	s, sim, doc := newTestSession(t)
	control := s.AddControl(workflow.ControlPose, doc.Layers()[0])
	s.GenerateControlLayer(control).Wait()

	s.RemoveControlLayer(control)

	assert.Empty(t, s.Controls())
	// The in-flight job stays valid and can still complete.
	id := sim.LastJob().ID
	require.NotNil(t, s.Jobs().FindControl(control))
	sim.FinishPose(id, &fakePose{})
	assert.Zero(t, s.Jobs().Len())
}

func TestUpscale_Flow(t *testing.T) {
	s, sim, doc := newTestSession(t)

	task := s.UpscaleImage()
	// The job is visible before the async submission settles.
	require.Equal(t, 1, s.Jobs().Len())
	job := s.Jobs().At(0)
	assert.Equal(t, KindUpscaling, job.Kind)
	assert.Equal(t, "[Upscale] 1024x1024", job.Prompt)
	task.Wait()

	d := sim.LastJob().Descriptor
	assert.Equal(t, workflow.OpUpscaleTiled, d.Operation)
	assert.Equal(t, "4x_NMKD-Superscale", d.Upscaler)
	assert.Equal(t, sim.LastJob().ID, job.ID, "identifier is assigned late")
	assert.Equal(t, image.Extent{Width: 1024, Height: 1024}, doc.Extent(),
		"document is resized by the task, not gated on completion")

	result := image.New(image.Extent{Width: 1024, Height: 1024})
	sim.Finish(job.ID, image.Collection{result})

	assert.Zero(t, s.Jobs().Len(), "upscale jobs are not retained")
	layers := doc.Layers()
	assert.Equal(t, "[Upscale] 1024x1024", layers[len(layers)-1].Name())
}

func TestUpscale_FastWithoutDiffusion(t *testing.T) {
	s, sim, _ := newTestSession(t)
	p := s.UpscaleParams()
	p.UseDiffusion = false
	p.Upscaler = ""
	s.SetUpscaleParams(p)

	s.UpscaleImage().Wait()

	d := sim.LastJob().Descriptor
	assert.Equal(t, workflow.OpUpscaleFast, d.Operation)
	assert.Equal(t, "4x_NMKD-Superscale", d.Upscaler, "empty upscaler falls back to the client default")
}

func TestGenerateLive_StashesResult(t *testing.T) {
	s, sim, _ := newTestSession(t)
	s.SetPrompt("sketch")

	s.GenerateLive().Wait()
	id := sim.LastJob().ID
	assert.Equal(t, workflow.OpRefine, sim.LastJob().Descriptor.Operation,
		"live strength < 1 refines the current canvas")

	result := image.New(image.Extent{Width: 512, Height: 512})
	sim.Finish(id, image.Collection{result})

	assert.Zero(t, s.Jobs().Len(), "live jobs are not retained")
	assert.True(t, s.HasLiveResult())
	assert.Same(t, result, s.LiveResult())
}

func TestCancel_QueuedOnly(t *testing.T) {
	s, sim, _ := newTestSession(t)
	bounds := image.Bounds{Width: 64, Height: 64}
	for _, id := range []string{"q1", "q2", "q3"} {
		s.Jobs().Add(id, "", bounds)
	}
	executing := s.Jobs().Add("running", "", bounds)
	executing.State = StateExecuting

	s.Cancel(false, true)

	assert.Equal(t, 1, s.Jobs().Len())
	assert.True(t, s.Jobs().AnyExecuting())
	assert.Equal(t, 1, sim.Cleared)
	assert.Zero(t, sim.Interrupted)
}

func TestCancel_ActiveRequiresExecutingJob(t *testing.T) {
	s, sim, _ := newTestSession(t)
	s.Jobs().Add("idle", "", image.Bounds{Width: 64, Height: 64})

	s.Cancel(true, false)
	assert.Zero(t, sim.Interrupted, "nothing executing, nothing to interrupt")

	s.Jobs().FindID("idle").State = StateExecuting
	s.Cancel(true, false)
	assert.Equal(t, 1, sim.Interrupted)
}

func TestApplyCurrentResult_PromotesPreview(t *testing.T) {
	s, sim, _ := newTestSession(t)
	s.SetPrompt("a castle")
	s.Generate().Wait()
	id := sim.LastJob().ID
	sim.Finish(id, image.Collection{image.New(image.Extent{Width: 512, Height: 512})})
	require.True(t, s.CanApplyResult())
	layer := s.PreviewLayer().(*document.MemLayer)

	s.ApplyCurrentResult()

	assert.Equal(t, "[Generated] a castle", layer.Name())
	assert.False(t, layer.Locked())
	assert.Nil(t, s.PreviewLayer())
	assert.False(t, s.CanApplyResult())
}

func TestApplyCurrentResult_WithoutPreviewPanics(t *testing.T) {
	s, _, _ := newTestSession(t)
	assert.Panics(t, func() { s.ApplyCurrentResult() })
}

func TestPreview_ExternallyDeletedLayer(t *testing.T) {
	s, sim, _ := newTestSession(t)
	s.Generate().Wait()
	id := sim.LastJob().ID
	sim.Finish(id, image.Collection{image.New(image.Extent{Width: 512, Height: 512})})
	old := s.PreviewLayer().(*document.MemLayer)

	// The host deletes the layer behind our back; the stale handle is
	// detected lazily and a fresh layer is created.
	old.Remove()
	s.Jobs().Select(id, 0)

	fresh := s.PreviewLayer()
	require.NotNil(t, fresh)
	assert.NotSame(t, old, fresh)
}

func TestPreview_MissingSelectionHidesLayer(t *testing.T) {
	s, sim, _ := newTestSession(t)
	s.Generate().Wait()
	id := sim.LastJob().ID
	sim.Finish(id, image.Collection{image.New(image.Extent{Width: 512, Height: 512})})
	layer := s.PreviewLayer().(*document.MemLayer)
	require.True(t, layer.Visible())

	s.Jobs().ClearSelection()

	assert.False(t, layer.Visible(), "the layer is hidden, not destroyed")
	assert.Same(t, document.Layer(layer), s.PreviewLayer())
}

func TestHistory_ListsFinishedJobs(t *testing.T) {
	s, sim, _ := newTestSession(t)
	s.Generate().Wait()
	first := sim.LastJob().ID
	s.Generate().Wait()
	second := sim.LastJob().ID

	sim.Finish(first, image.Collection{image.New(image.Extent{Width: 64, Height: 64})})

	history := s.History()
	require.Len(t, history, 1)
	assert.Equal(t, first, history[0].ID)
	assert.Equal(t, StateQueued, s.Jobs().FindID(second).State)
}

func TestSetWorkspace_LeavingLiveDeactivates(t *testing.T) {
	s, _, _ := newTestSession(t)
	s.SetWorkspace(WorkspaceLive)
	live := s.LiveParams()
	live.IsActive = true
	s.SetLiveParams(live)

	s.SetWorkspace(WorkspaceGeneration)

	assert.False(t, s.LiveParams().IsActive)
	assert.Equal(t, WorkspaceGeneration, s.Workspace())
}

func TestProgressResetOnFirstActiveSubmission(t *testing.T) {
	s, sim, _ := newTestSession(t)
	s.Generate().Wait()
	sim.Progress(sim.LastJob().ID, 0.8)
	require.Equal(t, 0.8, s.Progress())

	// A second submission while another job executes keeps the
	// displayed progress.
	s.Generate().Wait()
	assert.Equal(t, 0.8, s.Progress())
}
