package local

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gridjobs/gridjob"
	"github.com/gridjobs/gridjob/job"
	"github.com/gridjobs/gridjob/store"
)

// Dispatcher implements gridjob.Dispatcher against the local backend:
// Submit and Resubmit record work for the local scheduler to pick up,
// RunScheduler runs that scheduler, and RunJob resolves an external id
// and delegates to the execution wrapper via runJob.
type Dispatcher struct {
	store  *store.Store
	dbPath string
	log    *slog.Logger

	// runJob is the execution wrapper's entry point, injected so tests
	// can substitute a fake without spawning a real process; production
	// callers wire wrapper.Run here.
	runJob func(ctx context.Context, st *store.Store, externalID int64, taskIndex *int, log *slog.Logger) int
}

// NewDispatcher builds a local Dispatcher over st backed by the file at
// dbPath (passed to every scheduler-spawned wrapper process).
func NewDispatcher(st *store.Store, dbPath string, log *slog.Logger, runJob func(context.Context, *store.Store, int64, *int, *slog.Logger) int) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{store: st, dbPath: dbPath, log: log, runJob: runJob}
}

func (d *Dispatcher) Submit(ctx context.Context, req gridjob.SubmitRequest) (*job.Job, error) {
	p := store.AddJobParams{
		Command:       req.Command,
		Name:          req.Name,
		Deps:          req.Dependencies,
		Array:         req.Array,
		ExecDir:       req.ExecDir,
		LogDir:        req.LogDir,
		QueueName:     "local",
		StopOnFailure: req.StopOnFailure,
		GridArguments: req.Environment,
	}
	if req.DryRun {
		preview := &job.Job{
			Name:          p.Name,
			Command:       p.Command,
			ExecDir:       p.ExecDir,
			LogDir:        p.LogDir,
			Array:         p.Array,
			QueueName:     p.QueueName,
			StopOnFailure: p.StopOnFailure,
			GridArguments: p.GridArguments,
			Status:        job.Submitted,
			SubmitTime:    time.Now(),
		}
		return preview, nil
	}

	sess, err := d.store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Release()
	j, err := sess.AddJob(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := sess.Queue(ctx, j.UniqueID); err != nil {
		return nil, err
	}
	updated, err := sess.GetJob(ctx, j.UniqueID)
	if err != nil {
		return nil, err
	}
	if err := sess.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

func (d *Dispatcher) Resubmit(ctx context.Context, opts gridjob.ResubmitOptions) ([]*job.Job, error) {
	sess, err := d.store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Release()

	jobs, err := sess.GetJobs(ctx, opts.IDs)
	if err != nil {
		return nil, err
	}
	if len(opts.OverwriteCommand) > 0 && len(jobs) != 1 {
		return nil, gridjob.ErrAmbiguousOverwrite
	}

	accepted := map[job.Status]bool{job.Submitted: true, job.Failure: true}
	if opts.AlsoSuccess {
		accepted[job.Success] = true
	}

	var resubmitted []*job.Job
	for _, j := range jobs {
		live := j.Status == job.Executing || j.Status == job.Queued || j.Status == job.Waiting
		if !accepted[j.Status] && !(opts.RunningJobs && live) {
			continue
		}
		if live {
			if _, err := sess.StopJob(ctx, j.UniqueID); err != nil {
				return nil, err
			}
		}
		if len(opts.OverwriteCommand) > 0 {
			if err := sess.UpdateCommand(ctx, j.UniqueID, opts.OverwriteCommand); err != nil {
				return nil, err
			}
		}
		if err := sess.MergeGridArguments(ctx, j.UniqueID, opts.NewGridArguments); err != nil {
			return nil, err
		}
		if !opts.KeepLogs {
			d.clearLogs(j)
		}
		if err := sess.Submit(ctx, j.UniqueID); err != nil {
			return nil, err
		}
		if err := sess.Queue(ctx, j.UniqueID); err != nil {
			return nil, err
		}
		resubmitted = append(resubmitted, j)
	}

	if len(resubmitted) == 0 {
		return nil, sess.Commit()
	}
	updated, err := sess.GetJobs(ctx, idsOf(resubmitted))
	if err != nil {
		return nil, err
	}
	if err := sess.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

func idsOf(jobs []*job.Job) []int64 {
	ids := make([]int64, len(jobs))
	for i, j := range jobs {
		ids[i] = j.UniqueID
	}
	return ids
}

func (d *Dispatcher) clearLogs(j *job.Job) {
	outPath, errPath, ok := j.LogPaths(nil)
	if !ok {
		return
	}
	for _, p := range []string{outPath, errPath} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			d.log.Warn("could not clear log file on resubmit", "path", p, "err", err)
		}
	}
}

func (d *Dispatcher) Stop(ctx context.Context, ids []int64) ([]*store.StopResult, error) {
	return nil, gridjob.ErrUnsupported
}

func (d *Dispatcher) Communicate(ctx context.Context, ids []int64) error {
	return gridjob.ErrUnsupported
}

func (d *Dispatcher) RunScheduler(ctx context.Context, opts gridjob.SchedulerOptions) error {
	cfg := Config{
		Parallelism:     opts.Parallel,
		SleepTime:       opts.SleepTime,
		DieWhenFinished: opts.DieWhenFinished,
		NoLogFiles:      opts.NoLogFiles,
		Nice:            opts.Nice,
		JobIDs:          opts.JobIDs,
	}
	sched, err := NewScheduler(d.store, d.dbPath, cfg, d.log)
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-sched.Done():
	}
	return sched.Stop(30 * time.Second)
}

func (d *Dispatcher) RunJob(ctx context.Context, externalID int64, taskIndex *int) error {
	if d.runJob == nil {
		return fmt.Errorf("local: dispatcher has no wrapper entry point configured")
	}
	status := d.runJob(ctx, d.store, externalID, taskIndex, d.log)
	if status != 0 {
		return fmt.Errorf("local: job exited with status %d", status)
	}
	return nil
}
