package generation

import (
	"fmt"
	"time"

	"github.com/fhaviland/genflow/internal/image"
	"github.com/fhaviland/genflow/internal/workflow"
)

// State is the lifecycle state of a job.
type State int

const (
	StateQueued State = iota
	StateExecuting
	StateFinished
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateExecuting:
		return "executing"
	case StateFinished:
		return "finished"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Kind is the closed set of job varieties. Completion behavior
// dispatches on it exhaustively; there is no open-ended extension.
type Kind int

const (
	KindDiffusion Kind = iota
	KindControlLayer
	KindUpscaling
	KindLivePreview
)

func (k Kind) String() string {
	switch k {
	case KindDiffusion:
		return "diffusion"
	case KindControlLayer:
		return "control_layer"
	case KindUpscaling:
		return "upscaling"
	case KindLivePreview:
		return "live_preview"
	}
	return "unknown"
}

// Job is one requested unit of generation work and its eventual
// outputs.
//
// ID is empty until the server assigns one: at enqueue time for
// standard diffusion jobs, later for control/upscale/live jobs whose
// identifier is only learned once the descriptor has been built and
// accepted.
//
// Bounds are fixed at creation except for mask-bearing diffusion jobs,
// whose bounds are rewritten once during submission from
// selection-relative to absolute mask coordinates.
type Job struct {
	ID        string
	Kind      Kind
	State     State
	Prompt    string
	Bounds    image.Bounds
	Control   *workflow.Control
	Timestamp time.Time

	results image.Collection
}

// Results returns the job's output images. Empty until the job
// finishes; assignment goes through JobQueue.SetResults exactly once.
func (j *Job) Results() image.Collection {
	return j.results
}

func (j *Job) String() string {
	return fmt.Sprintf("job %q (%s, %s)", j.ID, j.Kind, j.State)
}
