package store

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/gridjobs/gridjob/job"
)

// AddJobParams carries the fields needed to record a new job. Deps lists
// the unique ids of jobs this job must wait for; self-references and
// references to non-existent jobs are dropped with a warning, not an
// error.
type AddJobParams struct {
	Command       []string
	Name          string
	Deps          []int64
	Array         *job.ArraySpec
	ExecDir       *string
	LogDir        *string
	QueueName     string
	StopOnFailure bool
	GridArguments map[string]string
}

// AddJob inserts a new job in the Submitted state, expands its array
// tasks if Array is set, inserts its dependency edges (dropping
// self-edges and duplicates, and edges to unknown jobs with a warning),
// and returns the recorded job.
func (s *Session) AddJob(ctx context.Context, p AddJobParams) (*job.Job, error) {
	now := time.Now()
	queueName := p.QueueName
	if queueName == "" {
		queueName = "local"
	}
	m := &jobModel{
		Name:          p.Name,
		Command:       p.Command,
		ExecDir:       p.ExecDir,
		LogDir:        p.LogDir,
		QueueName:     queueName,
		GridArguments: p.GridArguments,
		StopOnFailure: p.StopOnFailure,
		Status:        job.Submitted,
		SubmitTime:    now,
	}
	if p.Array != nil {
		m.ArrayFirst = intPtr(p.Array.First)
		m.ArrayLast = intPtr(p.Array.Last)
		m.ArrayStep = intPtr(p.Array.Step)
	}
	if _, err := s.tx.NewInsert().Model(m).Exec(ctx); err != nil {
		return nil, err
	}
	// external id equals the unique id until a grid backend reassigns it.
	m.ExternalID = m.UniqueID
	if _, err := s.tx.NewUpdate().Model(m).Column("external_id").WherePK().Exec(ctx); err != nil {
		return nil, err
	}

	if p.Array != nil {
		indices := p.Array.Indices()
		tasks := make([]*arrayTaskModel, 0, len(indices))
		for _, idx := range indices {
			tasks = append(tasks, &arrayTaskModel{
				JobID:      m.UniqueID,
				Index:      idx,
				Status:     job.Submitted,
				SubmitTime: now,
			})
		}
		if len(tasks) > 0 {
			if _, err := s.tx.NewInsert().Model(&tasks).Exec(ctx); err != nil {
				return nil, err
			}
		}
	}

	seen := make(map[int64]bool, len(p.Deps))
	for _, waited := range p.Deps {
		if waited == m.UniqueID || seen[waited] {
			continue
		}
		seen[waited] = true
		exists, err := s.tx.NewSelect().Model((*jobModel)(nil)).Where("unique_id = ?", waited).Exists(ctx)
		if err != nil {
			return nil, err
		}
		if !exists {
			s.store.log.Warn("dropping dependency on unknown job", "waiter_id", m.UniqueID, "waited_id", waited)
			continue
		}
		dep := &dependencyModel{WaiterID: m.UniqueID, WaitedID: waited}
		if _, err := s.tx.NewInsert().Model(dep).Exec(ctx); err != nil {
			return nil, err
		}
	}

	return m.toJob(), nil
}

// GetJobs returns jobs sorted by unique id. If ids is empty, every job
// is returned. Unknown ids are silently skipped.
func (s *Session) GetJobs(ctx context.Context, ids []int64) ([]*job.Job, error) {
	var models []*jobModel
	q := s.tx.NewSelect().Model(&models).OrderExpr("unique_id ASC")
	if len(ids) > 0 {
		q = q.Where("unique_id IN (?)", bun.In(ids))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*job.Job, len(models))
	for i, m := range models {
		out[i] = m.toJob()
	}
	return out, nil
}

// GetJob returns a single job by unique id, or ErrNotFound.
func (s *Session) GetJob(ctx context.Context, id int64) (*job.Job, error) {
	var m jobModel
	err := s.tx.NewSelect().Model(&m).Where("unique_id = ?", id).Scan(ctx)
	if err != nil {
		return nil, translateNoRows(err)
	}
	return m.toJob(), nil
}

// GetJobByExternalID looks up the internal unique id for a job known to
// an execution backend by its external id. Used by the execution
// wrapper and the grid backend's run-job entry point.
func (s *Session) GetJobByExternalID(ctx context.Context, externalID int64) (*job.Job, error) {
	var m jobModel
	err := s.tx.NewSelect().Model(&m).Where("external_id = ?", externalID).Scan(ctx)
	if err != nil {
		return nil, translateNoRows(err)
	}
	return m.toJob(), nil
}

// IsTerminal reports whether jobID (or, when taskIndex is non-nil, that
// specific array task) has already reached Success or Failure.
func (s *Session) IsTerminal(ctx context.Context, jobID int64, taskIndex *int) (bool, error) {
	if taskIndex == nil {
		j, err := s.GetJob(ctx, jobID)
		if err != nil {
			return false, err
		}
		return j.Status.Terminal(), nil
	}
	var m arrayTaskModel
	if err := s.tx.NewSelect().Model(&m).
		Where("job_id = ? AND \"index\" = ?", jobID, *taskIndex).Scan(ctx); err != nil {
		return false, translateNoRows(err)
	}
	return m.Status.Terminal(), nil
}

// GetArrayTasks returns the array tasks of jobID in ascending index
// order. Returns an empty slice for a non-array job.
func (s *Session) GetArrayTasks(ctx context.Context, jobID int64) ([]*job.ArrayTask, error) {
	var models []*arrayTaskModel
	if err := s.tx.NewSelect().Model(&models).Where("job_id = ?", jobID).OrderExpr("\"index\" ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*job.ArrayTask, len(models))
	for i, m := range models {
		out[i] = m.toTask()
	}
	return out, nil
}

// GetJobsWeWaitFor returns the jobs that jobID depends on.
func (s *Session) GetJobsWeWaitFor(ctx context.Context, jobID int64) ([]*job.Job, error) {
	var ids []int64
	if err := s.tx.NewSelect().Model((*dependencyModel)(nil)).
		Column("waited_id").Where("waiter_id = ?", jobID).Scan(ctx, &ids); err != nil {
		return nil, err
	}
	return s.GetJobs(ctx, ids)
}

// GetJobsWaitingForUs returns the jobs that depend on jobID.
func (s *Session) GetJobsWaitingForUs(ctx context.Context, jobID int64) ([]*job.Job, error) {
	var ids []int64
	if err := s.tx.NewSelect().Model((*dependencyModel)(nil)).
		Column("waiter_id").Where("waited_id = ?", jobID).Scan(ctx, &ids); err != nil {
		return nil, err
	}
	return s.GetJobs(ctx, ids)
}

// DeleteParams controls the scope of a Delete call.
type DeleteParams struct {
	IDs          []int64
	ArrayIDs     []int
	AlsoLogs     bool
	AlsoLogDir   bool
	StatusFilter []job.Status
}

// Delete removes jobs (and their array tasks and dependency edges)
// matching ids and, optionally, a status filter.
//
// ArrayIDs, when set, narrows an array job to only the listed task
// indices: that job's parent row, dependency edges and unselected tasks
// are left in place, and only the matching array_tasks rows are
// removed. A job is only deleted in full when ArrayIDs is empty or
// covers every one of its current task indices.
//
// Delete touches no files: AlsoLogs and AlsoLogDir are acted on by the
// caller (Controller.Delete), using the jobs this method returns. That
// list includes array jobs of which only some tasks were removed.
func (s *Session) Delete(ctx context.Context, p DeleteParams) ([]*job.Job, error) {
	jobs, err := s.GetJobs(ctx, p.IDs)
	if err != nil {
		return nil, err
	}
	if len(p.StatusFilter) > 0 {
		allowed := make(map[job.Status]bool, len(p.StatusFilter))
		for _, st := range p.StatusFilter {
			allowed[st] = true
		}
		filtered := jobs[:0]
		for _, j := range jobs {
			if allowed[j.Status] {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	var fullJobs []*job.Job
	for _, j := range jobs {
		if j.IsArray() && len(p.ArrayIDs) > 0 {
			full := j.Array.Indices()
			var selected []int
			for _, idx := range full {
				if taskSelected(idx, p.ArrayIDs) {
					selected = append(selected, idx)
				}
			}
			if len(selected) < len(full) {
				if len(selected) > 0 {
					if _, err := s.tx.NewDelete().Model((*arrayTaskModel)(nil)).
						Where("job_id = ? AND \"index\" IN (?)", j.UniqueID, bun.In(selected)).Exec(ctx); err != nil {
						return nil, err
					}
				}
				continue
			}
		}
		fullJobs = append(fullJobs, j)
	}

	if len(fullJobs) > 0 {
		ids := make([]int64, len(fullJobs))
		for i, j := range fullJobs {
			ids[i] = j.UniqueID
		}
		if _, err := s.tx.NewDelete().Model((*dependencyModel)(nil)).
			Where("waiter_id IN (?) OR waited_id IN (?)", bun.In(ids), bun.In(ids)).Exec(ctx); err != nil {
			return nil, err
		}
		if _, err := s.tx.NewDelete().Model((*arrayTaskModel)(nil)).
			Where("job_id IN (?)", bun.In(ids)).Exec(ctx); err != nil {
			return nil, err
		}
		if _, err := s.tx.NewDelete().Model((*jobModel)(nil)).
			Where("unique_id IN (?)", bun.In(ids)).Exec(ctx); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

// taskSelected reports whether index is one of ids, or ids is empty
// (meaning "every index").
func taskSelected(index int, ids []int) bool {
	if len(ids) == 0 {
		return true
	}
	for _, id := range ids {
		if id == index {
			return true
		}
	}
	return false
}
