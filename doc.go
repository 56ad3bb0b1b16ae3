// Package gridjob provides a persistent job manager for batch workloads
// with two interchangeable execution backends: a local parallel scheduler
// that runs child processes on the current host, and a grid backend that
// forwards jobs to an external SGE-style cluster via its qsub/qstat/qdel
// command-line utilities.
//
// # Overview
//
// gridjob models jobs as durable records with an explicit state machine
// (package job). Jobs may be single processes or array jobs (a parametric
// range of indexed sub-tasks), and may declare dependencies on other
// jobs. All state lives in a single-file relational store (package
// store) so that submission, monitoring, resubmission, stopping and log
// inspection operate on the same recorded history across process
// restarts.
//
// # State Machine
//
// Jobs follow this lifecycle:
//
//	submitted -> queued    -> executing -> (success|failure)
//	submitted -> waiting   -> queued     -> ...
//
// success and failure are terminal. resubmit returns a job of any status
// to submitted, clearing its result and timestamps except submit_time.
//
// # Backends
//
// The Dispatcher interface is the uniform surface both backends
// implement:
//
//	Submit      — record and release a job for execution
//	Resubmit    — re-queue finished or failed jobs
//	Stop        — halt running/queued/waiting jobs and return them to submitted
//	Communicate — reconcile recorded state with an external scheduler (grid only)
//	RunScheduler — run the dependency-aware admit/reap loop (local only)
//	RunJob      — entry point invoked inside a spawned/grid process
//
// Operations unsupported by a backend return ErrUnsupported.
//
// # Controller
//
// Controller is the facade CLI and other callers use: it routes Submit,
// Resubmit, Stop, Communicate, RunScheduler and RunJob to the configured
// Dispatcher, and implements List, Report and Delete directly against the
// store, since those operations are backend-agnostic.
//
// # Concurrency Model
//
// The only shared mutable state is the store's database file. All
// mutating operations acquire an exclusive store.Session first; the
// session is released on every exit path, including signals handled by
// callers of RunScheduler. The local scheduler achieves OS-level
// parallelism by spawning a bounded number of child processes; the grid
// backend issues one external command per request.
package gridjob
