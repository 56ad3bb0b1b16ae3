package store

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/gridjobs/gridjob/job"
)

// ResultLost marks a job or task left Executing across a scheduler
// restart, whose real exit status can no longer be observed.
const ResultLost = -2

func terminalStatuses() []job.Status {
	return []job.Status{job.Success, job.Failure}
}

// Submit resets jobID, and any array tasks it has, to Submitted: result,
// machine_name, start_time and finish_time are cleared, and submit_time
// is refreshed. It works from any state, including an already-terminal
// one, which is what lets Resubmit reuse it after a finished job is
// re-dispatched.
func (s *Session) Submit(ctx context.Context, jobID int64) error {
	now := time.Now()
	res, err := s.tx.NewUpdate().Model((*jobModel)(nil)).
		Set("status = ?", job.Submitted).
		Set("result = NULL").
		Set("machine_name = NULL").
		Set("start_time = NULL").
		Set("finish_time = NULL").
		Set("submit_time = ?", now).
		Where("unique_id = ?", jobID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if !isAffected(res) {
		return ErrNotFound
	}
	_, err = s.tx.NewUpdate().Model((*arrayTaskModel)(nil)).
		Set("status = ?", job.Submitted).
		Set("result = NULL").
		Set("machine_name = NULL").
		Set("start_time = NULL").
		Set("finish_time = NULL").
		Set("submit_time = ?", now).
		Where("job_id = ?", jobID).
		Exec(ctx)
	return err
}

// Queue re-evaluates a non-terminal, non-executing job against the
// jobs it waits for:
//
//   - if any of them is not yet terminal, the job becomes Waiting;
//   - otherwise, if any of them is Failure and this job carries
//     StopOnFailure, the job itself becomes Failure, with result left
//     null, and the same evaluation cascades to its own dependents;
//   - otherwise, the job becomes Queued.
//
// Queue is called both to place a freshly Submitted job and to
// re-evaluate a Waiting one after something it depends on finishes; it
// is a no-op on a job that is already terminal or Executing.
func (s *Session) Queue(ctx context.Context, jobID int64) error {
	j, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status.Terminal() || j.Status == job.Executing {
		return nil
	}

	waited, err := s.GetJobsWeWaitFor(ctx, jobID)
	if err != nil {
		return err
	}
	anyNonTerminal := false
	anyFailure := false
	for _, w := range waited {
		if !w.Status.Terminal() {
			anyNonTerminal = true
		}
		if w.Status == job.Failure {
			anyFailure = true
		}
	}

	switch {
	case anyNonTerminal:
		if j.Status == job.Waiting {
			return nil
		}
		return s.setJobStatus(ctx, jobID, job.Waiting)
	case anyFailure && j.StopOnFailure:
		return s.finishNoResult(ctx, jobID, time.Now())
	default:
		if j.Status == job.Queued {
			return nil
		}
		return s.setJobStatus(ctx, jobID, job.Queued)
	}
}

// setJobStatus updates a job's own status row and propagates the same
// status to any of its array tasks that are not yet terminal. It is
// only used for the pre-execution states Waiting and Queued.
func (s *Session) setJobStatus(ctx context.Context, jobID int64, status job.Status) error {
	res, err := s.tx.NewUpdate().Model((*jobModel)(nil)).
		Set("status = ?", status).
		Where("unique_id = ?", jobID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if !isAffected(res) {
		return ErrNotFound
	}
	_, err = s.tx.NewUpdate().Model((*arrayTaskModel)(nil)).
		Set("status = ?", status).
		Where("job_id = ? AND status NOT IN (?)", jobID, bun.In(terminalStatuses())).
		Exec(ctx)
	return err
}

// Execute marks a job, or one task of an array job, as running on
// machineName. For an array job the parent's own status follows its
// first executing task; its start time is recorded only once. Calling
// Execute again for work already Executing is harmless: it is the
// local scheduler's admission claim and the execution wrapper's own
// startup both making the same transition, once each, with the second
// call a no-op in effect.
func (s *Session) Execute(ctx context.Context, jobID int64, taskIndex *int, machineName string) error {
	now := time.Now()
	j, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if j.IsArray() {
		if taskIndex == nil {
			return fmt.Errorf("store: Execute: array job %d requires a task index", jobID)
		}
		res, err := s.tx.NewUpdate().Model((*arrayTaskModel)(nil)).
			Set("status = ?", job.Executing).
			Set("machine_name = ?", machineName).
			Set("start_time = ?", now).
			Where("job_id = ? AND \"index\" = ?", jobID, *taskIndex).
			Exec(ctx)
		if err != nil {
			return err
		}
		if !isAffected(res) {
			return ErrNotFound
		}
		if j.Status == job.Executing {
			return nil
		}
		uq := s.tx.NewUpdate().Model((*jobModel)(nil)).Set("status = ?", job.Executing).Where("unique_id = ?", jobID)
		if j.StartTime == nil {
			uq = uq.Set("start_time = ?", now)
		}
		_, err = uq.Exec(ctx)
		return err
	}

	uq := s.tx.NewUpdate().Model((*jobModel)(nil)).
		Set("status = ?", job.Executing).
		Set("machine_name = ?", machineName).
		Where("unique_id = ?", jobID)
	if j.StartTime == nil {
		uq = uq.Set("start_time = ?", now)
	}
	res, err := uq.Exec(ctx)
	if err != nil {
		return err
	}
	if !isAffected(res) {
		return ErrNotFound
	}
	return nil
}

// Finish records the outcome of a job or, for an array job, one of its
// tasks. Passing a nil taskIndex against a non-array job finalizes it
// directly with result. Passing a nil taskIndex against an array job
// recomputes the parent's aggregate status from its existing tasks
// without recording a new result, which is how Refresh finalizes an
// array job whose tasks were all already marked terminal by other
// means.
//
// An array job's aggregate result is 0 (Success) only if every task
// finished with 0; otherwise it is the result of the first task, in
// ascending index order, that did not.
func (s *Session) Finish(ctx context.Context, jobID int64, taskIndex *int, result int) error {
	now := time.Now()
	j, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if !j.IsArray() {
		return s.finishJob(ctx, jobID, result, now)
	}

	if taskIndex != nil {
		res, err := s.tx.NewUpdate().Model((*arrayTaskModel)(nil)).
			Set("status = ?", resultStatus(result)).
			Set("result = ?", result).
			Set("finish_time = ?", now).
			Where("job_id = ? AND \"index\" = ?", jobID, *taskIndex).
			Exec(ctx)
		if err != nil {
			return err
		}
		if !isAffected(res) {
			return ErrNotFound
		}
	}

	tasks, err := s.GetArrayTasks(ctx, jobID)
	if err != nil {
		return err
	}
	aggResult := 0
	for _, t := range tasks {
		if !t.Status.Terminal() {
			return nil
		}
		if aggResult == 0 && t.Result != nil && *t.Result != 0 {
			aggResult = *t.Result
		}
	}
	return s.finishJob(ctx, jobID, aggResult, now)
}

func resultStatus(result int) job.Status {
	if result == 0 {
		return job.Success
	}
	return job.Failure
}

// finishJob records a job's own terminal row with result and cascades
// the consequences to its dependents.
func (s *Session) finishJob(ctx context.Context, jobID int64, result int, now time.Time) error {
	status := resultStatus(result)
	res, err := s.tx.NewUpdate().Model((*jobModel)(nil)).
		Set("status = ?", status).
		Set("result = ?", result).
		Set("finish_time = ?", now).
		Where("unique_id = ?", jobID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if !isAffected(res) {
		return ErrNotFound
	}
	return s.cascade(ctx, jobID)
}

// finishNoResult is Queue's cascade-failure branch: jobID is marked
// Failure, along with any non-terminal array tasks it has, but result
// stays null because the job never actually ran.
func (s *Session) finishNoResult(ctx context.Context, jobID int64, now time.Time) error {
	if _, err := s.tx.NewUpdate().Model((*arrayTaskModel)(nil)).
		Set("status = ?", job.Failure).
		Set("finish_time = ?", now).
		Where("job_id = ? AND status NOT IN (?)", jobID, bun.In(terminalStatuses())).
		Exec(ctx); err != nil {
		return err
	}
	res, err := s.tx.NewUpdate().Model((*jobModel)(nil)).
		Set("status = ?", job.Failure).
		Set("finish_time = ?", now).
		Where("unique_id = ?", jobID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if !isAffected(res) {
		return ErrNotFound
	}
	return s.cascade(ctx, jobID)
}

// cascade re-evaluates every direct dependent of jobID now that jobID
// has reached a terminal state. Queue decides, per dependent, whether
// it becomes Queued, stays Waiting on some other dependency, or is
// itself cascaded to Failure — and a dependent cascaded to Failure
// triggers this same re-evaluation for its own dependents in turn, so
// a failure with StopOnFailure set propagates transitively without a
// separate traversal.
func (s *Session) cascade(ctx context.Context, jobID int64) error {
	dependents, err := s.GetJobsWaitingForUs(ctx, jobID)
	if err != nil {
		return err
	}
	for _, d := range dependents {
		if err := s.Queue(ctx, d.UniqueID); err != nil {
			return err
		}
	}
	return nil
}

// StopResult reports executions that the caller (the local scheduler
// or the grid backend) must still terminate at the OS or grid level;
// the store has no way to reach a running process itself.
type StopResult struct {
	JobID int64

	// JobWasLive is true when a non-array job was Executing.
	JobWasLive bool
	// LiveTaskIndex lists the indices of an array job's tasks that were
	// Executing. Empty and meaningless for a non-array job.
	LiveTaskIndex []int
}

// StopJob cancels a job that has not finished: the job and every one of
// its tasks in Executing, Queued or Waiting revert to Submitted, with
// result, machine_name and start/finish times cleared. The store cannot
// reach a running process itself, so the returned StopResult names what
// was Executing (the job, or the task indices) for the caller to kill
// (or qdel). Stopping an already-terminal job is a no-op.
func (s *Session) StopJob(ctx context.Context, jobID int64) (*StopResult, error) {
	j, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status.Terminal() {
		return &StopResult{JobID: jobID}, nil
	}

	var live []int
	jobWasLive := false
	if j.IsArray() {
		tasks, err := s.GetArrayTasks(ctx, jobID)
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			if t.Status == job.Executing {
				live = append(live, t.Index)
			}
		}
	} else if j.Status == job.Executing {
		jobWasLive = true
	}

	if err := s.revertToSubmitted(ctx, jobID, nil, false); err != nil {
		return nil, err
	}
	return &StopResult{JobID: jobID, JobWasLive: jobWasLive, LiveTaskIndex: live}, nil
}

// revertToSubmitted resets jobID (and its non-live array tasks, if any)
// to Submitted, leaving tasks named in live untouched.
func (s *Session) revertToSubmitted(ctx context.Context, jobID int64, live []int, jobWasLive bool) error {
	if !jobWasLive {
		if _, err := s.tx.NewUpdate().Model((*jobModel)(nil)).
			Set("status = ?", job.Submitted).
			Set("result = NULL").
			Set("machine_name = NULL").
			Set("start_time = NULL").
			Set("finish_time = NULL").
			Where("unique_id = ?", jobID).
			Exec(ctx); err != nil {
			return err
		}
	}
	q := s.tx.NewUpdate().Model((*arrayTaskModel)(nil)).
		Set("status = ?", job.Submitted).
		Set("result = NULL").
		Set("machine_name = NULL").
		Set("start_time = NULL").
		Set("finish_time = NULL").
		Where("job_id = ? AND status NOT IN (?)", jobID, bun.In(terminalStatuses()))
	if len(live) > 0 {
		q = q.Where("\"index\" NOT IN (?)", bun.In(live))
	}
	_, err := q.Exec(ctx)
	return err
}

// Refresh recovers from a scheduler restart. A parent array job left
// Executing whose tasks have all since reached a terminal state is
// finalized from those results, the same repair finish performs when
// the last task completes. A plain job, or an array task, still
// Executing with no process left to produce a result is marked Failure
// with ResultLost, which then finalizes its parent the same way.
// Refresh is idempotent and is run once by the local scheduler before
// it begins admitting work.
func (s *Session) Refresh(ctx context.Context) error {
	var tasks []*arrayTaskModel
	if err := s.tx.NewSelect().Model(&tasks).Where("status = ?", job.Executing).Scan(ctx); err != nil {
		return err
	}
	now := time.Now()
	touched := make(map[int64]bool, len(tasks))
	for _, t := range tasks {
		if _, err := s.tx.NewUpdate().Model((*arrayTaskModel)(nil)).
			Set("status = ?", job.Failure).
			Set("result = ?", ResultLost).
			Set("finish_time = ?", now).
			Where("job_id = ? AND \"index\" = ?", t.JobID, t.Index).
			Exec(ctx); err != nil {
			return err
		}
		touched[t.JobID] = true
	}

	var arrayParents []*jobModel
	if err := s.tx.NewSelect().Model(&arrayParents).
		Where("status = ? AND array_first IS NOT NULL", job.Executing).Scan(ctx); err != nil {
		return err
	}
	for _, m := range arrayParents {
		touched[m.UniqueID] = true
	}
	for jobID := range touched {
		if err := s.Finish(ctx, jobID, nil, 0); err != nil {
			return err
		}
	}

	var plain []*jobModel
	if err := s.tx.NewSelect().Model(&plain).
		Where("status = ? AND array_first IS NULL", job.Executing).Scan(ctx); err != nil {
		return err
	}
	for _, m := range plain {
		if err := s.finishJob(ctx, m.UniqueID, ResultLost, now); err != nil {
			return err
		}
	}
	return nil
}
