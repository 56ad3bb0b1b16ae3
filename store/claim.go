package store

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/gridjobs/gridjob/job"
)

// ClaimedUnit is one piece of admitted work: a whole job, or one task of
// an array job when Task is non-nil.
type ClaimedUnit struct {
	Job  *job.Job
	Task *int
}

// ClaimLocal atomically flips up to limit Queued local jobs and Queued
// local array tasks to Executing and returns what was claimed, ordered
// by unique id and then by task index. The execution wrapper performs
// the same Executing transition again when the process it runs in
// actually starts, which is a harmless no-op for work claimed here.
//
// Claiming (rather than merely reading) is what keeps two ticks, or two
// scheduler instances against the same database, from ever dispatching
// the same job twice: a row can only be claimed once because the
// UPDATE's WHERE clause requires it still be Queued.
func (s *Session) ClaimLocal(ctx context.Context, hostname string, limit int, ids []int64) ([]ClaimedUnit, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := time.Now()

	jobSub := s.tx.NewSelect().Model((*jobModel)(nil)).
		Column("unique_id").
		Where("status = ? AND queue_name = 'local' AND array_first IS NULL", job.Queued).
		OrderExpr("unique_id ASC").
		Limit(limit)
	if len(ids) > 0 {
		jobSub = jobSub.Where("unique_id IN (?)", bun.In(ids))
	}
	var jobs []*jobModel
	if err := s.tx.NewUpdate().Model((*jobModel)(nil)).
		Set("status = ?", job.Executing).
		Set("machine_name = ?", hostname).
		Set("start_time = COALESCE(start_time, ?)", now).
		Where("unique_id IN (?)", jobSub).
		Returning("*").
		Scan(ctx, &jobs); err != nil {
		return nil, err
	}

	units := make([]ClaimedUnit, 0, len(jobs))
	for _, m := range jobs {
		units = append(units, ClaimedUnit{Job: m.toJob()})
	}

	remaining := limit - len(units)
	if remaining <= 0 {
		return units, nil
	}

	taskSub := s.tx.NewSelect().
		TableExpr("array_tasks AS t").
		Column("t.job_id", "t.\"index\"").
		Join("JOIN jobs AS j ON j.unique_id = t.job_id").
		Where("t.status = ? AND j.queue_name = 'local'", job.Queued).
		OrderExpr("t.job_id ASC, t.\"index\" ASC").
		Limit(remaining)
	if len(ids) > 0 {
		taskSub = taskSub.Where("t.job_id IN (?)", bun.In(ids))
	}
	var tasks []*arrayTaskModel
	if err := s.tx.NewUpdate().Model((*arrayTaskModel)(nil)).
		Set("status = ?", job.Executing).
		Set("machine_name = ?", hostname).
		Set("start_time = COALESCE(start_time, ?)", now).
		Where("(job_id, \"index\") IN (?)", taskSub).
		Returning("*").
		Scan(ctx, &tasks); err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return units, nil
	}

	parentIDs := make([]int64, 0, len(tasks))
	seen := make(map[int64]bool, len(tasks))
	for _, t := range tasks {
		if !seen[t.JobID] {
			seen[t.JobID] = true
			parentIDs = append(parentIDs, t.JobID)
		}
	}
	if _, err := s.tx.NewUpdate().Model((*jobModel)(nil)).
		Set("status = ?", job.Executing).
		Set("start_time = COALESCE(start_time, ?)", now).
		Where("unique_id IN (?) AND status != ?", bun.In(parentIDs), job.Executing).
		Exec(ctx); err != nil {
		return nil, err
	}

	parents := make(map[int64]*job.Job, len(parentIDs))
	var parentModels []*jobModel
	if err := s.tx.NewSelect().Model(&parentModels).Where("unique_id IN (?)", bun.In(parentIDs)).Scan(ctx); err != nil {
		return nil, err
	}
	for _, m := range parentModels {
		parents[m.UniqueID] = m.toJob()
	}
	for _, t := range tasks {
		idx := t.Index
		units = append(units, ClaimedUnit{Job: parents[t.JobID], Task: &idx})
	}
	return units, nil
}

// HasPendingLocal reports whether any local job has not yet reached a
// terminal state. Used by the local scheduler's die-when-finished exit
// condition.
func (s *Session) HasPendingLocal(ctx context.Context) (bool, error) {
	return s.tx.NewSelect().Model((*jobModel)(nil)).
		Where("queue_name = 'local' AND status NOT IN (?)", bun.In(terminalStatuses())).
		Exists(ctx)
}
