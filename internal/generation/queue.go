package generation

import (
	"fmt"
	"time"

	"github.com/fhaviland/genflow/internal/image"
	"github.com/fhaviland/genflow/internal/workflow"
)

const megabyte = 1024 * 1024

// Selection identifies which job output is shown as the preview: a job
// identifier and an index into its results. Independent of job order.
type Selection struct {
	Job   string
	Image int
}

// JobQueue holds the waiting, ongoing and finished jobs of one
// document, in submission order. Finished diffusion jobs are retained
// as history until the soft memory budget evicts them oldest-first;
// other kinds are removed by the session as soon as they complete.
//
// The queue is not internally synchronized. The owning Session
// serializes all mutations through its mutex; cross-document queues
// share nothing.
type JobQueue struct {
	entries     []*Job
	selection   *Selection
	memoryUsage float64 // MB over retained diffusion results
	budgetMB    float64
	now         func() time.Time

	// Change hooks, invoked synchronously from the mutating call.
	OnCountChanged     func()
	OnSelectionChanged func()
	OnJobFinished      func(*Job)
}

// NewJobQueue creates an empty queue with a soft history budget in MB.
func NewJobQueue(budgetMB float64) *JobQueue {
	return &JobQueue{budgetMB: budgetMB, now: time.Now}
}

func (q *JobQueue) append(job *Job) *Job {
	q.entries = append(q.entries, job)
	q.notifyCount()
	return job
}

// Add appends a diffusion job whose identifier is already known.
func (q *JobQueue) Add(id, prompt string, bounds image.Bounds) *Job {
	return q.append(&Job{
		ID:        id,
		Kind:      KindDiffusion,
		Prompt:    prompt,
		Bounds:    bounds,
		Timestamp: q.now(),
	})
}

// AddControl appends a control-image job. The identifier is assigned
// later, once the submission is accepted. The control record is shared
// with the session's control list until the job completes.
func (q *JobQueue) AddControl(control *workflow.Control, bounds image.Bounds) *Job {
	return q.append(&Job{
		Kind:      KindControlLayer,
		Prompt:    fmt.Sprintf("[Control] %s", control.Mode.Text()),
		Bounds:    bounds,
		Control:   control,
		Timestamp: q.now(),
	})
}

// AddUpscale appends an upscaling job covering the target bounds.
func (q *JobQueue) AddUpscale(bounds image.Bounds) *Job {
	return q.append(&Job{
		Kind:      KindUpscaling,
		Prompt:    fmt.Sprintf("[Upscale] %dx%d", bounds.Width, bounds.Height),
		Bounds:    bounds,
		Timestamp: q.now(),
	})
}

// AddLive appends a live-preview job.
func (q *JobQueue) AddLive(prompt string, bounds image.Bounds) *Job {
	return q.append(&Job{
		Kind:      KindLivePreview,
		Prompt:    prompt,
		Bounds:    bounds,
		Timestamp: q.now(),
	})
}

// Remove drops a job by identity. The job must have been obtained from
// this queue; removing an absent job is a caller bug.
func (q *JobQueue) Remove(job *Job) {
	for i, entry := range q.entries {
		if entry == job {
			// Nil out the vacated tail slot so the Job can be
			// collected while the backing array lives on.
			copy(q.entries[i:], q.entries[i+1:])
			q.entries[len(q.entries)-1] = nil
			q.entries = q.entries[:len(q.entries)-1]
			q.notifyCount()
			return
		}
	}
	panic(fmt.Sprintf("remove: %s is not in the queue", job))
}

// FindID returns the job with the given server identifier, or nil.
func (q *JobQueue) FindID(id string) *Job {
	if id == "" {
		return nil
	}
	for _, job := range q.entries {
		if job.ID == id {
			return job
		}
	}
	return nil
}

// FindControl returns the control-layer job referencing exactly this
// control record, or nil. Needed while such a job has no identifier
// yet but its source control input is still live.
func (q *JobQueue) FindControl(control *workflow.Control) *Job {
	for _, job := range q.entries {
		if job.Control == control {
			return job
		}
	}
	return nil
}

// Count returns the number of jobs in the given state.
func (q *JobQueue) Count(state State) int {
	n := 0
	for _, job := range q.entries {
		if job.State == state {
			n++
		}
	}
	return n
}

// AnyExecuting reports whether some job is currently executing.
func (q *JobQueue) AnyExecuting() bool {
	for _, job := range q.entries {
		if job.State == StateExecuting {
			return true
		}
	}
	return false
}

// SetResults assigns a job's outputs. Results are set at most once per
// job. Diffusion results count against the history budget and trigger
// an eviction pass that protects the job itself.
func (q *JobQueue) SetResults(job *Job, results image.Collection) {
	if job.results != nil {
		panic(fmt.Sprintf("set results: %s already has results", job))
	}
	job.results = results
	if job.Kind == KindDiffusion {
		q.memoryUsage += float64(results.Size()) / megabyte
		q.Prune(job)
	}
}

// Prune evicts the oldest entries while the memory budget is exceeded.
// The keep job is never evicted, even if it alone exceeds the budget;
// the budget is soft.
func (q *JobQueue) Prune(keep *Job) {
	for q.memoryUsage > q.budgetMB && len(q.entries) > 0 && q.entries[0] != keep {
		discarded := q.entries[0]
		q.entries[0] = nil
		q.entries = q.entries[1:]
		q.memoryUsage -= float64(discarded.results.Size()) / megabyte
		q.notifyCount()
	}
}

// Select points the preview slot at (job, result index). The job is
// not validated to exist; preview reconciliation treats a missing job
// as no preview.
func (q *JobQueue) Select(jobID string, index int) {
	q.SetSelection(&Selection{Job: jobID, Image: index})
}

// ClearSelection drops the preview selection.
func (q *JobQueue) ClearSelection() {
	q.SetSelection(nil)
}

// SetSelection replaces the selection and raises the change hook.
func (q *JobQueue) SetSelection(sel *Selection) {
	q.selection = sel
	if q.OnSelectionChanged != nil {
		q.OnSelectionChanged()
	}
}

// Selection returns the current preview selection, or nil.
func (q *JobQueue) Selection() *Selection {
	return q.selection
}

// NotifyFinished raises the job-finished hook.
func (q *JobQueue) NotifyFinished(job *Job) {
	if q.OnJobFinished != nil {
		q.OnJobFinished(job)
	}
}

// MemoryUsage returns the retained result payload total in MB.
func (q *JobQueue) MemoryUsage() float64 {
	return q.memoryUsage
}

// Len returns the number of jobs in the queue.
func (q *JobQueue) Len() int {
	return len(q.entries)
}

// At returns the i-th job in submission order.
func (q *JobQueue) At(i int) *Job {
	return q.entries[i]
}

// Jobs returns the entries in submission order. The slice is a copy;
// the jobs are not.
func (q *JobQueue) Jobs() []*Job {
	return append([]*Job(nil), q.entries...)
}

func (q *JobQueue) notifyCount() {
	if q.OnCountChanged != nil {
		q.OnCountChanged()
	}
}
