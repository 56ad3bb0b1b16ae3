package gridjob

import (
	"context"
	"time"

	"github.com/gridjobs/gridjob/job"
	"github.com/gridjobs/gridjob/store"
)

// SubmitRequest carries everything needed to record and dispatch a new
// job, mirroring the `submit` subcommand's options (spec §6).
type SubmitRequest struct {
	Command []string
	Name    string

	Dependencies []int64
	Array        *job.ArraySpec

	ExecDir *string
	LogDir  *string

	Environment map[string]string

	QueueName     string
	Memory        string // sets both mem_free and h_vmem when non-empty
	Parallel      int    // parallel-environment slot request ("-pe" count), 0 = none
	IOBig         bool
	StopOnFailure bool

	// GridExtraArgs is appended verbatim to the qsub argument vector
	// (the optional site-configuration passthrough from spec §9).
	GridExtraArgs []string

	DryRun bool
}

// ResubmitOptions controls which jobs `resubmit` re-queues and how.
type ResubmitOptions struct {
	IDs []int64

	// AlsoSuccess additionally selects Success jobs; without it, the
	// canonical (newer-revision) selection is Submitted and Failure.
	AlsoSuccess bool
	// RunningJobs additionally selects jobs that are still
	// Queued/Waiting/Executing, qdel'ing (grid) or reverting (local)
	// them first.
	RunningJobs bool

	KeepLogs bool

	// OverwriteCommand replaces the stored command of a single selected
	// job; ErrAmbiguousOverwrite if more than one job would be affected.
	OverwriteCommand []string

	// NewGridArguments is merged into each job's stored grid arguments
	// before re-dispatch.
	NewGridArguments map[string]string
}

// SchedulerOptions configures a `run-scheduler` invocation.
type SchedulerOptions struct {
	Parallel        int
	JobIDs          []int64
	SleepTime       time.Duration
	DieWhenFinished bool
	NoLogFiles      bool
	Nice            int
}

// ListFilter narrows a List call. A nil/empty field means "no filter on
// this dimension".
type ListFilter struct {
	IDs      []int64
	Names    []string
	Statuses []job.Status
}

// ReportFilter narrows a Report call; ErrorsOnly/OutputOnly select which
// captured stream(s) to include.
type ReportFilter struct {
	IDs        []int64
	ArrayIDs   []int
	Statuses   []job.Status
	Name       string
	ErrorsOnly bool
	OutputOnly bool
}

// ReportEntry is one captured log chunk returned by Report.
type ReportEntry struct {
	JobID  int64
	Task   *int
	Stream string // "stdout" or "stderr"
	Path   string
	Body   []byte
}

// Dispatcher is the uniform, backend-specific surface the Controller
// routes to: local.Dispatcher executes jobs as child processes on this
// host, grid.Backend forwards them to an SGE-compatible cluster.
// Operations a backend does not implement return ErrUnsupported.
type Dispatcher interface {
	Submit(ctx context.Context, req SubmitRequest) (*job.Job, error)
	Resubmit(ctx context.Context, opts ResubmitOptions) ([]*job.Job, error)
	Stop(ctx context.Context, ids []int64) ([]*store.StopResult, error)

	// Communicate reconciles recorded state against the external
	// scheduler. Grid only.
	Communicate(ctx context.Context, ids []int64) error

	// RunScheduler runs the dependency-aware admit/reap loop until ctx
	// is canceled or, with DieWhenFinished set, until no work remains.
	// Local only.
	RunScheduler(ctx context.Context, opts SchedulerOptions) error

	// RunJob is the entry point invoked inside a spawned/grid process:
	// it resolves externalID to the internal job and runs it.
	RunJob(ctx context.Context, externalID int64, taskIndex *int) error
}
