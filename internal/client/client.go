// Package client defines the contract with the generation backend. The
// wire protocol lives entirely behind this interface; the coordinator
// only sees accepted-job identifiers and the notification stream.
package client

import (
	"context"

	"github.com/fhaviland/genflow/internal/image"
	"github.com/fhaviland/genflow/internal/workflow"
)

// Event classifies a server notification.
type Event int

const (
	EventProgress Event = iota + 1
	EventFinished
	EventInterrupted
	EventError
)

func (e Event) String() string {
	switch e {
	case EventProgress:
		return "progress"
	case EventFinished:
		return "finished"
	case EventInterrupted:
		return "interrupted"
	case EventError:
		return "error"
	}
	return "unknown"
}

// PoseResult is a decoded pose graph attached to a finished
// control-image job. Decoding happens in the client; the coordinator
// only scales it to the job bounds and renders SVG for a vector layer.
type PoseResult interface {
	Scale(extent image.Extent)
	SVG() string
}

// Message is one asynchronous notification from the backend. Every
// message carries the identifier of the job it concerns; payload fields
// depend on the event.
type Message struct {
	JobID    string
	Event    Event
	Progress float64
	Images   image.Collection
	Pose     PoseResult
	Error    string
}

// Client submits work to the generation backend and emits notification
// messages. Notifications for one job arrive in causal order: any
// number of progress events followed by exactly one terminal event.
type Client interface {
	// Enqueue submits a work descriptor and returns the identifier the
	// server assigned to the job. Blocks until the server accepts or
	// rejects the submission.
	Enqueue(ctx context.Context, d workflow.Descriptor) (string, error)

	// Interrupt asks the server to stop the currently executing job.
	Interrupt()

	// ClearQueue asks the server to drop its queued (not yet started)
	// jobs.
	ClearQueue()

	// DefaultUpscaler is the server's preferred upscale model.
	DefaultUpscaler() string

	// Checkpoints lists the model checkpoints installed on the server.
	Checkpoints() []string
}
