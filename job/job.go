// Package job defines the stateful representation of a batch job within
// the gridjob lifecycle engine.
//
// A Job is a snapshot of storage state: its fields reflect what the state
// store (package store) has recorded, and mutating a Job value directly
// does not change the underlying record. Transitions are performed
// through store.Session's state-machine methods (Submit, Queue, Execute,
// Finish, Refresh, StopJob).
package job

import "time"

// ArraySpec describes the parametric range of an array job: indices
// First, First+Step, First+2*Step, ..., up to and including the last
// index <= Last.
//
// First must be >= 1, Last must be >= First, Step must be >= 1.
type ArraySpec struct {
	First int
	Last  int
	Step  int
}

// Indices enumerates the task indices described by the spec, in
// ascending order.
func (a ArraySpec) Indices() []int {
	if a.Step <= 0 {
		return nil
	}
	var out []int
	for i := a.First; i <= a.Last; i += a.Step {
		out = append(out, i)
	}
	return out
}

// Job represents one entry submitted to the job manager: a single
// process, or the parent record of an array job.
//
// UniqueID is the monotonically assigned primary key, stable across
// restarts. ExternalID is the identifier known to the execution backend;
// it equals UniqueID until the grid backend assigns a real identifier.
//
// Command is the ordered argv to execute. ExecDir and LogDir are nil to
// mean "inherit the current directory" / "inherit parent streams"
// respectively.
//
// Array is nil for a plain job. When set, the job's completion is an
// aggregate over its ArrayTask rows (see store.Session.Finish).
//
// Result is nil while Status is not terminal, and set once the job
// reaches Success or Failure.
type Job struct {
	UniqueID   int64
	ExternalID int64

	Name    string
	Command []string

	ExecDir *string
	LogDir  *string

	Array *ArraySpec

	QueueName     string
	MachineName   *string
	GridArguments map[string]string
	StopOnFailure bool

	Status Status
	Result *int

	SubmitTime time.Time
	StartTime  *time.Time
	FinishTime *time.Time
}

// DisplayName returns Name if set, otherwise a name derived from the
// first token of Command, falling back to the literal "job" when
// Command is empty.
func (j *Job) DisplayName() string {
	if j.Name != "" {
		return j.Name
	}
	if len(j.Command) > 0 {
		return j.Command[0]
	}
	return "job"
}

// IsArray reports whether this job is a parametric array job.
func (j *Job) IsArray() bool {
	return j.Array != nil
}

// ArrayTask is one indexed element of an array job's parametric range.
//
// An ArrayTask shares its parent Job's metadata (command, directories,
// grid arguments) but tracks its own status, result and timestamps.
type ArrayTask struct {
	JobID int64
	Index int

	Status      Status
	Result      *int
	MachineName *string

	SubmitTime time.Time
	StartTime  *time.Time
	FinishTime *time.Time
}

// Dependency is a directed edge meaning Waiter cannot leave Waiting
// until Waited reaches a terminal state.
type Dependency struct {
	WaiterID int64
	WaitedID int64
}
