package gridjob

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gridjobs/gridjob/job"
	"github.com/gridjobs/gridjob/store"
)

// Controller is the facade CLI and other callers use: it routes Submit,
// Resubmit, Stop, Communicate, RunScheduler and RunJob to the configured
// Dispatcher, and implements List, Report and Delete directly against
// the store, since those three are backend-agnostic.
type Controller struct {
	store      *store.Store
	dispatcher Dispatcher
	log        *slog.Logger
}

// NewController builds a Controller over st, routing backend-specific
// operations to d (a *local.Dispatcher or *grid.Backend).
func NewController(st *store.Store, d Dispatcher, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{store: st, dispatcher: d, log: log}
}

func (c *Controller) Submit(ctx context.Context, req SubmitRequest) (*job.Job, error) {
	return c.dispatcher.Submit(ctx, req)
}

func (c *Controller) Resubmit(ctx context.Context, opts ResubmitOptions) ([]*job.Job, error) {
	if len(opts.OverwriteCommand) > 0 {
		if len(opts.IDs) != 1 || opts.AlsoSuccess {
			return nil, ErrAmbiguousOverwrite
		}
	}
	return c.dispatcher.Resubmit(ctx, opts)
}

func (c *Controller) Stop(ctx context.Context, ids []int64) ([]*store.StopResult, error) {
	return c.dispatcher.Stop(ctx, ids)
}

func (c *Controller) Communicate(ctx context.Context, ids []int64) error {
	return c.dispatcher.Communicate(ctx, ids)
}

func (c *Controller) RunScheduler(ctx context.Context, opts SchedulerOptions) error {
	return c.dispatcher.RunScheduler(ctx, opts)
}

func (c *Controller) RunJob(ctx context.Context, externalID int64, taskIndex *int) error {
	return c.dispatcher.RunJob(ctx, externalID, taskIndex)
}

// Delete removes jobs matching p from the store and returns them. When
// p.AlsoLogs is set, each deleted job's (or array task's) captured
// stdout/stderr files are removed as well; when p.AlsoLogDir is also
// set and a job's log directory is left empty afterward, the directory
// itself is removed.
func (c *Controller) Delete(ctx context.Context, p store.DeleteParams) ([]*job.Job, error) {
	sess, err := c.store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Release()

	var taskIndices map[int64][]int
	if p.AlsoLogs {
		pending, err := sess.GetJobs(ctx, p.IDs)
		if err != nil {
			return nil, err
		}
		taskIndices = make(map[int64][]int, len(pending))
		for _, j := range pending {
			if !j.IsArray() {
				continue
			}
			tasks, err := sess.GetArrayTasks(ctx, j.UniqueID)
			if err != nil {
				return nil, err
			}
			var indices []int
			for _, t := range tasks {
				if taskSelected(t.Index, p.ArrayIDs) {
					indices = append(indices, t.Index)
				}
			}
			taskIndices[j.UniqueID] = indices
		}
	}

	jobs, err := sess.Delete(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := sess.Commit(); err != nil {
		return nil, err
	}

	if p.AlsoLogs {
		for _, j := range jobs {
			c.removeLogs(j, taskIndices[j.UniqueID], p.AlsoLogDir)
		}
	}
	return jobs, nil
}

// removeLogs deletes j's captured stdout/stderr files (one pair per
// index in taskIndices, plus, for a non-array job, the job's own pair),
// and, when alsoLogDir is set, removes LogDir if it is left empty.
func (c *Controller) removeLogs(j *job.Job, taskIndices []int, alsoLogDir bool) {
	if j.LogDir == nil {
		return
	}
	if len(taskIndices) == 0 && !j.IsArray() {
		c.removeLogPair(j, nil)
	}
	for _, idx := range taskIndices {
		idx := idx
		c.removeLogPair(j, &idx)
	}
	if alsoLogDir {
		if entries, err := os.ReadDir(*j.LogDir); err == nil && len(entries) == 0 {
			if err := os.Remove(*j.LogDir); err != nil {
				c.log.Warn("could not remove empty log directory", "path", *j.LogDir, "err", err)
			}
		}
	}
}

func (c *Controller) removeLogPair(j *job.Job, taskIndex *int) {
	outPath, errPath, ok := j.LogPaths(taskIndex)
	if !ok {
		return
	}
	for _, path := range []string{outPath, errPath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			c.log.Warn("could not remove log file", "path", filepath.Clean(path), "err", err)
		}
	}
}
