package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fhaviland/genflow/internal/client"
	"github.com/fhaviland/genflow/internal/document"
	"github.com/fhaviland/genflow/internal/history"
	"github.com/fhaviland/genflow/internal/image"
	"github.com/fhaviland/genflow/internal/workflow"
)

// HandleMessage routes one server notification to the matching job and
// advances its state machine. Notifications for unknown jobs are
// logged and ignored; stale or duplicate delivery must not corrupt
// existing jobs.
func (s *Session) HandleMessage(msg client.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.jobs.FindID(msg.JobID)
	if job == nil {
		s.log.Error("received message for unknown job", "job", msg.JobID, "event", msg.Event.String())
		return
	}

	switch msg.Event {
	case client.EventProgress:
		job.State = StateExecuting
		s.reportProgress(msg.Progress)

	case client.EventFinished:
		s.finishJob(job, msg)

	case client.EventInterrupted:
		job.State = StateCancelled
		s.reportProgress(0)

	case client.EventError:
		job.State = StateCancelled
		s.reportError(fmt.Sprintf("server execution error: %s", msg.Error))
	}
}

// finishJob applies a completion: store results, run the kind-specific
// result application, drop non-diffusion jobs from the queue, and
// auto-select a fresh diffusion result when no preview exists yet.
func (s *Session) finishJob(job *Job, msg client.Message) {
	job.State = StateFinished
	s.reportProgress(1)
	if len(msg.Images) > 0 {
		s.jobs.SetResults(job, msg.Images)
	}

	switch job.Kind {
	case KindDiffusion:
		s.archiveJob(job)
	case KindControlLayer:
		job.Control.Layer = s.addControlLayer(job, msg.Pose)
	case KindUpscaling:
		s.addUpscaleLayer(job)
	case KindLivePreview:
		if len(job.Results()) > 0 {
			s.liveResult = job.Results()[0]
		}
	}
	if job.Kind != KindDiffusion {
		// Only diffusion jobs are kept as history.
		s.jobs.Remove(job)
	}

	s.jobs.NotifyFinished(job)
	if job.Kind == KindDiffusion && s.layer == nil && job.ID != "" {
		s.jobs.Select(job.ID, 0)
	}
}

// updatePreview reconciles the preview slot with the current
// selection. A selection pointing at a job that no longer exists means
// no preview. Callers hold the session lock.
func (s *Session) updatePreview() {
	sel := s.jobs.Selection()
	if sel == nil || s.jobs.FindID(sel.Job) == nil {
		s.hidePreview()
		return
	}
	s.showPreview(sel.Job, sel.Image)
}

// showPreview displays one job result on the preview layer, creating
// or updating it at the job's bounds. The job must exist in the queue.
// Callers hold the session lock.
func (s *Session) showPreview(jobID string, index int) {
	job := s.jobs.FindID(jobID)
	if job == nil {
		panic(fmt.Sprintf("cannot show preview, invalid job id %q", jobID))
	}
	name := fmt.Sprintf("[Preview] %s", job.Prompt)

	// The host may have deleted the layer since last use.
	if s.layer != nil && s.layer.Parent() == nil {
		s.layer = nil
	}
	if s.layer != nil {
		s.layer.SetName(name)
		s.doc.SetLayerContent(s.layer, job.Results()[index], job.Bounds)
		return
	}
	s.layer = s.doc.InsertLayer(name, job.Results()[index], job.Bounds, nil)
	s.layer.SetLocked(true)
}

// hidePreview hides the preview layer without destroying it; it stays
// around, hidden, until promoted or replaced. Callers hold the session
// lock.
func (s *Session) hidePreview() {
	if s.layer != nil {
		s.doc.HideLayer(s.layer)
	}
}

// ApplyCurrentResult promotes the preview into a permanent user layer:
// unlock, relabel, release the back-reference. Requires a visible
// preview.
func (s *Session) ApplyCurrentResult() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.layer == nil || !s.canApplyResult() {
		panic("no visible preview to apply")
	}
	s.layer.SetLocked(false)
	s.layer.SetName(strings.Replace(s.layer.Name(), "[Preview]", "[Generated]", 1))
	s.layer = nil
}

// CanApplyResult reports whether a visible preview exists.
func (s *Session) CanApplyResult() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canApplyResult()
}

func (s *Session) canApplyResult() bool {
	return s.layer != nil && s.layer.Visible()
}

// PreviewLayer returns the current preview layer handle, or nil.
func (s *Session) PreviewLayer() document.Layer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layer
}

// addControlLayer turns a finished control-image job into a document
// layer: pose results become a vector layer, raster results a paint
// layer. A cached execution may produce neither; the control then
// points at the active layer. Callers hold the session lock.
func (s *Session) addControlLayer(job *Job, pose client.PoseResult) document.Layer {
	if job.Kind != KindControlLayer || job.Control == nil {
		panic(fmt.Sprintf("not a control layer job: %s", job))
	}
	if job.Control.Mode == workflow.ControlPose && pose != nil {
		pose.Scale(job.Bounds.Extent())
		return s.doc.InsertVectorLayer(job.Prompt, pose.SVG(), s.layer)
	}
	if len(job.Results()) > 0 {
		return s.doc.InsertLayer(job.Prompt, job.Results()[0], job.Bounds, s.layer)
	}
	return s.doc.ActiveLayer()
}

// addUpscaleLayer inserts the upscaled document as a new layer,
// discarding any preview. Upscaling always produces exactly one image;
// anything else is a contract breach. Callers hold the session lock.
func (s *Session) addUpscaleLayer(job *Job) {
	if job.Kind != KindUpscaling {
		panic(fmt.Sprintf("not an upscaling job: %s", job))
	}
	if len(job.Results()) == 0 {
		panic("upscaling job did not produce an image")
	}
	if s.layer != nil {
		s.layer.Remove()
		s.layer = nil
	}
	s.doc.InsertLayer(job.Prompt, job.Results()[0], job.Bounds, nil)
}

// archiveJob records a finished diffusion job in the archive, when one
// is attached. Failures are logged, never surfaced; the archive is a
// convenience, not part of the job lifecycle. Callers hold the session
// lock.
func (s *Session) archiveJob(job *Job) {
	if s.archive == nil {
		return
	}
	err := s.archive.Add(context.Background(), history.Record{
		JobID:       job.ID,
		Prompt:      job.Prompt,
		Negative:    s.negative,
		Style:       s.style.Name,
		Bounds:      job.Bounds.String(),
		ResultCount: len(job.Results()),
		ResultBytes: job.Results().Size(),
		CreatedAt:   job.Timestamp,
		FinishedAt:  time.Now(),
	})
	if err != nil {
		s.log.Error("archive generation", "job", job.ID, "error", err)
	}
}

// LiveResult returns the most recent live-preview image, or nil.
func (s *Session) LiveResult() *image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveResult
}

// HasLiveResult reports whether a live-preview image is stashed.
func (s *Session) HasLiveResult() bool {
	return s.LiveResult() != nil
}

// AddLiveLayer inserts the stashed live result as a permanent layer.
// Requires a live result.
func (s *Session) AddLiveLayer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.liveResult == nil {
		panic("no live result to insert")
	}
	name := fmt.Sprintf("[Live] %s", s.prompt)
	s.doc.InsertLayer(name, s.liveResult, image.BoundsOf(s.doc.Extent()), nil)
}
