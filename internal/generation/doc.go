// Package generation implements the per-document job lifecycle: a queue
// of generation jobs with explicit states, a memory-bounded history
// eviction policy, asynchronous submission of work descriptors, and the
// reconciliation of server notifications against queued work and the
// single preview slot.
//
// ARCHITECTURE:
//
// Single-Writer Sessions:
// Each open document owns one Session. All Session and JobQueue state
// is guarded by the Session mutex; submission goroutines only touch
// shared state under it, after the network suspend point. Sessions for
// different documents share nothing.
//
// Job Lifecycle:
//  1. A Generate* entry point validates preconditions and captures
//     document pixels synchronously.
//  2. A submission goroutine builds a work descriptor and blocks on
//     client.Enqueue - the only suspend point on the submission path.
//  3. On acceptance a Job is enqueued (or assigned its late
//     identifier).
//  4. Server notifications drive the per-job state machine:
//     queued -> executing -> finished | cancelled.
//  5. Finished diffusion jobs stay in history until the soft memory
//     budget evicts them, oldest first, never the just-completed job.
//
// Errors crossing the goroutine boundary never reach the Generate*
// caller; they land in the session's single error field. Contract
// breaches (a strategy invoked without its required inputs) panic.
package generation
