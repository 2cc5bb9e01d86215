package generation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/fhaviland/genflow/internal/client"
	"github.com/fhaviland/genflow/internal/config"
	"github.com/fhaviland/genflow/internal/document"
	"github.com/fhaviland/genflow/internal/history"
	"github.com/fhaviland/genflow/internal/image"
	"github.com/fhaviland/genflow/internal/style"
	"github.com/fhaviland/genflow/internal/workflow"
)

// Workspace is the user-selected generation mode.
type Workspace int

const (
	WorkspaceGeneration Workspace = iota
	WorkspaceUpscaling
	WorkspaceLive
)

// UpscaleParams configure the upscaling workspace.
type UpscaleParams struct {
	// Upscaler is the model name; empty falls back to the client's
	// default at submission time.
	Upscaler string
	Factor   float64

	// UseDiffusion selects tiled diffusion refinement over a plain
	// model resample.
	UseDiffusion bool
	Strength     float64
}

// DefaultUpscaleParams doubles the canvas with diffusion refinement.
func DefaultUpscaleParams() UpscaleParams {
	return UpscaleParams{Factor: 2.0, UseDiffusion: true, Strength: 0.3}
}

// TargetExtent returns the document extent after upscaling.
func (p UpscaleParams) TargetExtent(doc image.Extent) image.Extent {
	return doc.Scaled(p.Factor)
}

// Task is the advisory handle of one submission goroutine. It is
// overwritten on every new Generate* call and never cancelled; only a
// running indicator and tests depend on it.
type Task struct {
	done chan struct{}
}

// Wait blocks until the submission goroutine has exited.
func (t *Task) Wait() {
	<-t.done
}

// Session coordinates image generation for one document: it stores the
// current generation inputs, owns the job queue, launches submission
// tasks, and reconciles server notifications. See the package
// documentation for the concurrency model.
type Session struct {
	mu       sync.Mutex
	doc      document.Document
	client   client.Client
	log      *slog.Logger
	settings config.Settings
	archive  *history.Store

	workspace Workspace
	style     style.Style
	prompt    string
	negative  string
	strength  float64
	control   []*workflow.Control
	upscale   UpscaleParams
	live      workflow.LiveParams
	progress  float64
	lastError string

	jobs       *JobQueue
	layer      document.Layer // preview slot; host may delete it externally
	liveResult *image.Image
	inFlight   *Task

	// OnProgressChanged and OnErrorChanged observe display state.
	// Invoked with the session lock held; observers must not call
	// back into the session.
	OnProgressChanged func(float64)
	OnErrorChanged    func(hasError bool, message string)
}

// SessionOption configures a Session at construction.
type SessionOption func(*Session)

// WithArchive records finished diffusion jobs into the given store.
func WithArchive(store *history.Store) SessionOption {
	return func(s *Session) { s.archive = store }
}

// WithStyles selects the first style supported by the connected client
// as the session default.
func WithStyles(styles []style.Style) SessionOption {
	return func(s *Session) {
		if supported := style.FilterSupported(styles, s.client.Checkpoints()); len(supported) > 0 {
			s.style = supported[0]
		}
	}
}

// NewSession binds a coordinator to a document and a connected client.
func NewSession(doc document.Document, cl client.Client, settings config.Settings, log *slog.Logger, opts ...SessionOption) *Session {
	s := &Session{
		doc:      doc,
		client:   cl,
		log:      log,
		settings: settings,
		style:    style.Default(),
		strength: 1.0,
		upscale:  DefaultUpscaleParams(),
		live:     workflow.NewLiveParams(),
		jobs:     NewJobQueue(settings.HistorySizeMB),
	}
	s.upscale.Upscaler = cl.DefaultUpscaler()
	s.jobs.OnJobFinished = func(*Job) { s.updatePreview() }
	s.jobs.OnSelectionChanged = s.updatePreview
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Jobs returns the session's job queue. Access it only from the same
// context that delivers client messages, or after all tasks settled.
func (s *Session) Jobs() *JobQueue {
	return s.jobs
}

// Generate enqueues image generation for the current inputs. Returns
// the submission task handle, or nil when a precondition failed and no
// task was started.
func (s *Session) Generate() *Task {
	if ok, msg := s.doc.CheckColorMode(); !ok && msg != "" {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.reportError(msg)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	extent := s.doc.Extent()
	mask, selectionBounds := s.doc.CreateMaskFromSelection(
		s.settings.SelectionGrow/100,
		s.settings.SelectionFeather/100,
		s.settings.SelectionPadding/100,
	)

	var maskBounds *image.Bounds
	if mask != nil {
		maskBounds = &mask.Bounds
	}
	bounds := workflow.ComputeBounds(extent, maskBounds, s.strength)

	var img *image.Image
	if mask != nil || s.strength < 1 {
		img = s.currentImage(bounds)
	}
	if selectionBounds != nil {
		sb := image.ApplyCrop(*selectionBounds, bounds)
		sb = image.MinimumSize(sb, 64, bounds.Extent())
		selectionBounds = &sb
	}

	cond := workflow.Conditioning{
		Prompt:         s.prompt,
		NegativePrompt: s.negative,
		Control:        s.captureControls(bounds),
	}
	if s.strength == 1 {
		cond.Area = selectionBounds
	}

	st, strength := s.style, s.strength
	s.clearError()
	return s.spawn(func(ctx context.Context) error {
		return s.submitGeneration(ctx, st, strength, bounds, cond, img, mask)
	})
}

// submitGeneration picks one of the four generation strategies from
// (mask present, strength < 1), submits it, and enqueues the job under
// the identifier the server assigned. Calling a strategy without its
// required inputs is a contract breach and panics.
func (s *Session) submitGeneration(
	ctx context.Context,
	st style.Style,
	strength float64,
	bounds image.Bounds,
	cond workflow.Conditioning,
	img *image.Image,
	mask *image.Mask,
) error {
	s.mu.Lock()
	if !s.jobs.AnyExecuting() {
		s.reportProgress(0)
	}
	s.mu.Unlock()

	if mask != nil {
		// The result is inserted at the mask's absolute document
		// position, while the mask payload must align with the
		// cropped working image. Rewrite both in one step.
		rel := mask.Bounds.Relative(bounds)
		bounds = mask.Bounds
		mask.Bounds = rel
	}

	var d workflow.Descriptor
	switch {
	case img == nil && mask == nil:
		if strength != 1 {
			panic("generate: full generation requires strength == 1")
		}
		d = workflow.Generate(st, bounds.Extent(), cond, nil)
	case mask == nil && strength < 1:
		if img == nil {
			panic("generate: refine requires a source image")
		}
		d = workflow.Refine(st, img, cond, strength, nil)
	case strength == 1:
		if img == nil || mask == nil {
			panic("generate: inpaint requires a source image and a mask")
		}
		d = workflow.Inpaint(st, img, mask, cond)
	default:
		if img == nil || mask == nil {
			panic("generate: masked refine requires a source image and a mask")
		}
		d = workflow.RefineRegion(st, img, mask, cond, strength)
	}

	id, err := s.client.Enqueue(ctx, d)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs.Add(id, cond.Prompt, bounds)
	return nil
}

// UpscaleImage enqueues an upscale of the whole document. The job is
// visible in the queue before the submission completes; the document
// is resized as a side effect of the task, not gated on completion.
func (s *Session) UpscaleImage() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	img := s.doc.GetImage(image.BoundsOf(s.doc.Extent()), nil)
	params := s.upscale
	target := params.TargetExtent(s.doc.Extent())
	job := s.jobs.AddUpscale(image.BoundsOf(target))
	st := s.style
	s.clearError()
	return s.spawn(func(ctx context.Context) error {
		if params.Upscaler == "" {
			params.Upscaler = s.client.DefaultUpscaler()
		}
		var d workflow.Descriptor
		if params.UseDiffusion {
			d = workflow.UpscaleTiled(img, params.Upscaler, params.Factor, st, params.Strength)
		} else {
			d = workflow.UpscaleFast(img, params.Upscaler, params.Factor)
		}
		id, err := s.client.Enqueue(ctx, d)
		if err != nil {
			return err
		}
		s.mu.Lock()
		job.ID = id
		s.mu.Unlock()
		s.doc.Resize(target)
		return nil
	})
}

// GenerateLive enqueues one live-preview iteration.
func (s *Session) GenerateLive() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	bounds := image.BoundsOf(s.doc.Extent())
	var img *image.Image
	if s.live.Strength < 1 {
		img = s.currentImage(bounds)
	}
	cond := workflow.Conditioning{
		Prompt:         s.prompt,
		NegativePrompt: s.negative,
		Control:        s.captureControls(bounds),
	}
	job := s.jobs.AddLive(s.prompt, bounds)
	st, live := s.style, s.live
	s.clearError()
	return s.spawn(func(ctx context.Context) error {
		var d workflow.Descriptor
		if img != nil {
			d = workflow.Refine(st, img, cond, live.Strength, &live)
		} else {
			d = workflow.Generate(st, bounds.Extent(), cond, &live)
		}
		id, err := s.client.Enqueue(ctx, d)
		if err != nil {
			return err
		}
		s.mu.Lock()
		job.ID = id
		s.mu.Unlock()
		return nil
	})
}

// GenerateControlLayer derives a control map (pose, depth, lines...)
// from the current document content for the given control input.
func (s *Session) GenerateControlLayer(control *workflow.Control) *Task {
	if ok, msg := s.doc.CheckColorMode(); !ok && msg != "" {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.reportError(msg)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	img := s.doc.GetImage(image.BoundsOf(s.doc.Extent()), nil)
	job := s.jobs.AddControl(control, image.BoundsOf(img.Extent()))
	mode := control.Mode
	s.clearError()
	return s.spawn(func(ctx context.Context) error {
		id, err := s.client.Enqueue(ctx, workflow.CreateControlImage(img, mode))
		if err != nil {
			return err
		}
		s.mu.Lock()
		job.ID = id
		s.mu.Unlock()
		return nil
	})
}

// AddControl attaches a new control input backed by a host layer and
// returns the shared record.
func (s *Session) AddControl(mode workflow.ControlMode, layer document.Layer) *workflow.Control {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := workflow.NewControl(mode, layer)
	s.control = append(s.control, c)
	return c
}

// RemoveControlLayer detaches a control input. An in-flight control
// job referencing it stays valid until the job itself is removed.
func (s *Session) RemoveControlLayer(control *workflow.Control) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.control {
		if c == control {
			s.control = append(s.control[:i], s.control[i+1:]...)
			return
		}
	}
}

// Controls returns the active control inputs in order.
func (s *Session) Controls() []*workflow.Control {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*workflow.Control(nil), s.control...)
}

// currentImage captures the document projection, excluding control
// layers (their content conditions the generation, it is not part of
// it) and the preview layer. Callers hold the session lock.
func (s *Session) currentImage(bounds image.Bounds) *image.Image {
	var exclude []document.Layer
	for _, c := range s.control {
		if c.Mode != workflow.ControlImage && c.Mode != workflow.ControlBlur {
			exclude = append(exclude, c.Layer)
		}
	}
	if s.layer != nil {
		exclude = append(exclude, s.layer)
	}
	return s.doc.GetImage(bounds, exclude)
}

func (s *Session) captureControls(bounds image.Bounds) []*workflow.Control {
	captured := make([]*workflow.Control, 0, len(s.control))
	for _, c := range s.control {
		captured = append(captured, s.captureControl(c, bounds))
	}
	return captured
}

// captureControl resolves a control input to concrete pixels. An image
// control with explicitly placed, non-empty layer bounds overrides the
// generation bounds; line-art modes are flattened over white before
// submission.
func (s *Session) captureControl(c *workflow.Control, bounds image.Bounds) *workflow.Control {
	captureBounds := &bounds
	if c.Mode == workflow.ControlImage && !c.Layer.Bounds().IsZero() {
		captureBounds = nil // use the layer's own bounds
	}
	img := s.doc.GetLayerImage(c.Layer, captureBounds)
	if c.Mode.IsLines() || c.Mode == workflow.ControlStencil {
		img.MakeOpaque(image.White)
	}
	return c.Captured(img)
}

// Cancel interrupts the active job and/or removes queued jobs. Both
// requests are fire-and-forget towards the server; queued jobs are
// removed locally regardless of whether an interrupted notification
// ever arrives.
func (s *Session) Cancel(active, queued bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if queued {
		var toRemove []*Job
		for _, job := range s.jobs.Jobs() {
			if job.State == StateQueued {
				toRemove = append(toRemove, job)
			}
		}
		if len(toRemove) > 0 {
			s.client.ClearQueue()
			for _, job := range toRemove {
				s.jobs.Remove(job)
			}
		}
	}
	if active && s.jobs.AnyExecuting() {
		s.client.Interrupt()
	}
}

// SetWorkspace switches the generation mode. Leaving the live
// workspace deactivates live generation.
func (s *Session) SetWorkspace(w Workspace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workspace == WorkspaceLive {
		s.live.IsActive = false
	}
	s.workspace = w
}

func (s *Session) Workspace() Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workspace
}

func (s *Session) SetStyle(st style.Style) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.style = st
}

func (s *Session) Style() style.Style {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.style
}

// SetPrompt sets the positive prompt, normalized to NFC so layer names
// and archive rows compare predictably.
func (s *Session) SetPrompt(prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompt = norm.NFC.String(prompt)
}

func (s *Session) Prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompt
}

func (s *Session) SetNegativePrompt(prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.negative = norm.NFC.String(prompt)
}

// SetStrength sets the denoise strength. Values outside [0, 1] are a
// caller bug.
func (s *Session) SetStrength(strength float64) {
	if strength < 0 || strength > 1 {
		panic(fmt.Sprintf("strength %v outside [0, 1]", strength))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strength = strength
}

func (s *Session) SetUpscaleParams(p UpscaleParams) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upscale = p
}

func (s *Session) UpscaleParams() UpscaleParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upscale
}

func (s *Session) SetLiveParams(p workflow.LiveParams) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = p
}

func (s *Session) LiveParams() workflow.LiveParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Progress returns the displayed progress fraction.
func (s *Session) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Error returns the last reported error message, empty when none.
func (s *Session) Error() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// HasError reports whether an error message is currently visible.
func (s *Session) HasError() bool {
	return s.Error() != ""
}

// InFlight returns the handle of the most recently spawned submission
// task, or nil. Advisory only.
func (s *Session) InFlight() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// History returns the finished jobs still retained, oldest first.
func (s *Session) History() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var finished []*Job
	for _, job := range s.jobs.Jobs() {
		if job.State == StateFinished {
			finished = append(finished, job)
		}
	}
	return finished
}

// spawn runs one submission body in its own goroutine and replaces the
// in-flight handle. Any error from the body is routed to the session
// error field instead of the caller; a prior task is neither awaited
// nor cancelled. Callers hold the session lock.
func (s *Session) spawn(run func(context.Context) error) *Task {
	t := &Task{done: make(chan struct{})}
	s.inFlight = t
	go func() {
		defer close(t.done)
		if err := run(context.Background()); err != nil {
			s.log.Error("submission failed", "error", err)
			s.mu.Lock()
			s.reportError(err.Error())
			s.mu.Unlock()
		}
	}()
	return t
}

// reportError publishes a message through the single error field.
// Callers hold the session lock.
func (s *Session) reportError(message string) {
	s.lastError = message
	s.live.IsActive = false
	if s.OnErrorChanged != nil {
		s.OnErrorChanged(true, message)
	}
}

// clearError resets the error field at the start of a new submission.
// Callers hold the session lock.
func (s *Session) clearError() {
	if s.lastError != "" {
		s.lastError = ""
		if s.OnErrorChanged != nil {
			s.OnErrorChanged(false, "")
		}
	}
}

// reportProgress updates the displayed progress. Callers hold the
// session lock.
func (s *Session) reportProgress(value float64) {
	s.progress = value
	if s.OnProgressChanged != nil {
		s.OnProgressChanged(value)
	}
}
