package client

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/fhaviland/genflow/internal/image"
	"github.com/fhaviland/genflow/internal/workflow"
)

// SimJob is one accepted submission held by the simulated client.
type SimJob struct {
	ID         string
	Descriptor workflow.Descriptor
}

// Sim is an in-process Client used by tests and the demo command. It
// accepts every submission, assigns UUID job identifiers, and lets the
// caller script the notification stream.
type Sim struct {
	mu       sync.Mutex
	jobs     []SimJob
	handler  func(Message)
	upscaler string
	models   []string

	// EnqueueErr, when set, makes every Enqueue fail with this error.
	EnqueueErr error

	// Interrupted and Cleared count the control requests received.
	Interrupted int
	Cleared     int
}

// NewSim creates a simulated client with a default upscaler and model
// list.
func NewSim() *Sim {
	return &Sim{
		upscaler: "4x_NMKD-Superscale",
		models:   []string{"default"},
	}
}

// Notify registers the message handler. Only one handler is supported;
// a second call replaces the first.
func (s *Sim) Notify(handler func(Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// SetModels scripts the checkpoint list reported to style filtering.
func (s *Sim) SetModels(models ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models = models
}

func (s *Sim) Enqueue(ctx context.Context, d workflow.Descriptor) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EnqueueErr != nil {
		return "", s.EnqueueErr
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	job := SimJob{ID: uuid.NewString(), Descriptor: d}
	s.jobs = append(s.jobs, job)
	return job.ID, nil
}

func (s *Sim) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Interrupted++
}

func (s *Sim) ClearQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Cleared++
}

func (s *Sim) DefaultUpscaler() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upscaler
}

func (s *Sim) Checkpoints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.models
}

// Jobs returns the submissions accepted so far, in order.
func (s *Sim) Jobs() []SimJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SimJob(nil), s.jobs...)
}

// LastJob returns the most recently accepted submission.
func (s *Sim) LastJob() SimJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobs) == 0 {
		return SimJob{}
	}
	return s.jobs[len(s.jobs)-1]
}

func (s *Sim) deliver(m Message) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler != nil {
		handler(m)
	}
}

// Progress delivers a progress notification for a job.
func (s *Sim) Progress(jobID string, value float64) {
	s.deliver(Message{JobID: jobID, Event: EventProgress, Progress: value})
}

// Finish delivers a terminal finished notification with result images.
func (s *Sim) Finish(jobID string, images image.Collection) {
	s.deliver(Message{JobID: jobID, Event: EventFinished, Images: images})
}

// FinishPose delivers a finished notification carrying a decoded pose
// instead of raster results.
func (s *Sim) FinishPose(jobID string, pose PoseResult) {
	s.deliver(Message{JobID: jobID, Event: EventFinished, Pose: pose})
}

// InterruptJob delivers a terminal interrupted notification.
func (s *Sim) InterruptJob(jobID string) {
	s.deliver(Message{JobID: jobID, Event: EventInterrupted})
}

// Fail delivers a terminal error notification.
func (s *Sim) Fail(jobID string, msg string) {
	s.deliver(Message{JobID: jobID, Event: EventError, Error: msg})
}
