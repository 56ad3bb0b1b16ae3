package grid

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/gridjobs/gridjob"
	"github.com/gridjobs/gridjob/internal"
	"github.com/gridjobs/gridjob/job"
	"github.com/gridjobs/gridjob/store"
)

// Backend implements gridjob.Dispatcher against an SGE-compatible
// cluster: Submit/Resubmit/Stop shell out to qsub/qdel, Communicate
// polls qstat, and RunJob resolves the grid's external id back to the
// internal job before delegating to the execution wrapper.
type Backend struct {
	store      *store.Store
	dbPath     string
	wrapperExe string
	runID      string
	log        *slog.Logger

	runJob func(ctx context.Context, st *store.Store, externalID int64, taskIndex *int, log *slog.Logger) int

	// pollConcurrency bounds how many qstat calls Communicate runs at
	// once; see internal.RunBounded.
	pollConcurrency int
}

// NewBackend builds a grid Backend over st. wrapperExe is the path to
// this program's own executable, invoked by each grid-submitted process
// as `<wrapperExe> run-job --database <dbPath>`.
func NewBackend(st *store.Store, dbPath, wrapperExe string, log *slog.Logger, runJob func(context.Context, *store.Store, int64, *int, *slog.Logger) int) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{
		store:           st,
		dbPath:          dbPath,
		wrapperExe:      wrapperExe,
		runID:           uuid.New().String(),
		log:             log,
		runJob:          runJob,
		pollConcurrency: 8,
	}
}

func (b *Backend) Submit(ctx context.Context, req gridjob.SubmitRequest) (*job.Job, error) {
	if req.DryRun {
		return &job.Job{
			Name:          req.Name,
			Command:       req.Command,
			ExecDir:       req.ExecDir,
			LogDir:        req.LogDir,
			Array:         req.Array,
			QueueName:     req.QueueName,
			StopOnFailure: req.StopOnFailure,
			Status:        job.Submitted,
			SubmitTime:    time.Now(),
		}, nil
	}

	sess, err := b.store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	j, err := sess.AddJob(ctx, store.AddJobParams{
		Command:       req.Command,
		Name:          req.Name,
		Deps:          req.Dependencies,
		Array:         req.Array,
		ExecDir:       req.ExecDir,
		LogDir:        req.LogDir,
		QueueName:     req.QueueName,
		StopOnFailure: req.StopOnFailure,
		GridArguments: mergeEnv(req.Environment),
	})
	if err != nil {
		sess.Release()
		return nil, err
	}
	deps, err := resolveDepExternalIDs(ctx, sess, req.Dependencies)
	if err != nil {
		sess.Release()
		return nil, err
	}
	if err := sess.Commit(); err != nil {
		return nil, err
	}
	// The job row now exists as Submitted; qsub runs unlocked so the
	// database is never held across the external call.

	command := []string{b.wrapperExe, "run-job", "--database", b.dbPath}
	opts := Options{
		Queue:       req.QueueName,
		Name:        j.DisplayName(),
		Deps:        deps,
		StdoutDir:   derefOr(req.LogDir, ""),
		StderrDir:   derefOr(req.LogDir, ""),
		Environment: envList(req.Environment),
		IOBig:       req.IOBig,
		ExtraArgs:   req.GridExtraArgs,
	}
	if req.Memory != "" {
		opts.MemFree = req.Memory
		opts.HVMem = req.Memory
	}
	if req.Array != nil {
		opts.Array = fmt.Sprintf("%d-%d:%d", req.Array.First, req.Array.Last, req.Array.Step)
	}
	if req.Parallel > 0 {
		opts.PEOpt = fmt.Sprintf("pe_mth %d", req.Parallel)
	}
	validateGridOptions(b.log, j.UniqueID, req.QueueName, req.IOBig, req.Parallel)

	args := BuildQsubArgs(command, opts)
	externalID, err := RunQsub(ctx, args)
	if err != nil {
		return nil, err
	}
	fields := RunQstat(ctx, externalID)
	queueName := QueueName(fields)

	sess, err = b.store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Release()
	if err := sess.SetExternalID(ctx, j.UniqueID, externalID); err != nil {
		return nil, err
	}
	if err := sess.SetQueueName(ctx, j.UniqueID, queueName); err != nil {
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
	b.log.Info("submitted job to grid", "job_id", j.UniqueID, "external_id", externalID, "run_id", b.runID)
	return updated, nil
}

func validateGridOptions(log *slog.Logger, jobID int64, queue string, ioBig bool, parallel int) {
	if ioBig && (queue == "" || queue == "all.q") {
		log.Warn("io_big requested against a queue that does not support it", "job_id", jobID, "queue", queue)
	}
	if parallel > 0 && !SupportsPE(queue) {
		log.Warn("parallel-environment request against a queue without multi-threading support", "job_id", jobID, "queue", queue)
	}
}

func mergeEnv(env map[string]string) map[string]string {
	if env == nil {
		return map[string]string{}
	}
	return env
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

func resolveDepExternalIDs(ctx context.Context, sess *store.Session, deps []int64) ([]int64, error) {
	if len(deps) == 0 {
		return nil, nil
	}
	jobs, err := sess.GetJobs(ctx, deps)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]bool, len(jobs))
	ids := make([]int64, 0, len(jobs))
	for _, j := range jobs {
		if seen[j.ExternalID] {
			continue
		}
		seen[j.ExternalID] = true
		ids = append(ids, j.ExternalID)
	}
	return ids, nil
}

func (b *Backend) Resubmit(ctx context.Context, opts gridjob.ResubmitOptions) ([]*job.Job, error) {
	sess, err := b.store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	jobs, err := sess.GetJobs(ctx, opts.IDs)
	if err != nil {
		sess.Release()
		return nil, err
	}
	sess.Release()
	if len(opts.OverwriteCommand) > 0 && len(jobs) != 1 {
		return nil, gridjob.ErrAmbiguousOverwrite
	}

	accepted := map[job.Status]bool{job.Submitted: true, job.Failure: true}
	if opts.AlsoSuccess {
		accepted[job.Success] = true
	}

	// qstat/qdel run unlocked: the grid, not the database, is the
	// authority on whether a job is still live.
	var candidates []*job.Job
	for _, j := range jobs {
		live := j.Status == job.Executing || j.Status == job.Queued || j.Status == job.Waiting
		if !accepted[j.Status] && !(opts.RunningJobs && live) {
			continue
		}
		if fields := RunQstat(ctx, j.ExternalID); fields != nil {
			b.log.Warn("deleting job still running in the grid before resubmit", "job_id", j.UniqueID, "external_id", j.ExternalID)
			RunQdel(ctx, j.ExternalID)
		}
		candidates = append(candidates, j)
	}

	sess, err = b.store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	var touched []*job.Job
	for _, j := range candidates {
		if len(opts.OverwriteCommand) > 0 {
			if err := sess.UpdateCommand(ctx, j.UniqueID, opts.OverwriteCommand); err != nil {
				sess.Release()
				return nil, err
			}
		}
		if err := sess.MergeGridArguments(ctx, j.UniqueID, opts.NewGridArguments); err != nil {
			sess.Release()
			return nil, err
		}
		if !opts.KeepLogs {
			b.clearLogs(j)
		}
		if err := sess.Submit(ctx, j.UniqueID); err != nil {
			sess.Release()
			return nil, err
		}
		touched = append(touched, j)
	}
	if err := sess.Commit(); err != nil {
		return nil, err
	}

	// Re-dispatch outside the lock, matching the spec's rule that the
	// session is never held across an external qsub call.
	var results []*job.Job
	for _, j := range touched {
		req := gridjob.SubmitRequest{
			Command:       j.Command,
			Name:          j.Name,
			Array:         j.Array,
			ExecDir:       j.ExecDir,
			LogDir:        j.LogDir,
			QueueName:     j.QueueName,
			StopOnFailure: j.StopOnFailure,
			Environment:   j.GridArguments,
		}
		resubmitted, err := b.resubmitOne(ctx, j.UniqueID, req)
		if err != nil {
			b.log.Error("resubmit dispatch failed", "job_id", j.UniqueID, "err", err)
			continue
		}
		results = append(results, resubmitted)
	}
	return results, nil
}

// resubmitOne re-dispatches an already-reset job to the grid without
// inserting a new row, mirroring gridtk/sge.py's resubmit(): the job
// keeps its unique_id, only its external id and queue name change.
func (b *Backend) resubmitOne(ctx context.Context, jobID int64, req gridjob.SubmitRequest) (*job.Job, error) {
	command := []string{b.wrapperExe, "run-job", "--database", b.dbPath}
	opts := Options{
		Queue:       req.QueueName,
		Name:        req.Name,
		StdoutDir:   derefOr(req.LogDir, ""),
		StderrDir:   derefOr(req.LogDir, ""),
		Environment: envList(req.Environment),
	}
	if req.Array != nil {
		opts.Array = fmt.Sprintf("%d-%d:%d", req.Array.First, req.Array.Last, req.Array.Step)
	}
	args := BuildQsubArgs(command, opts)
	externalID, err := RunQsub(ctx, args)
	if err != nil {
		return nil, err
	}
	fields := RunQstat(ctx, externalID)
	queueName := QueueName(fields)

	sess, err := b.store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Release()
	if err := sess.SetExternalID(ctx, jobID, externalID); err != nil {
		return nil, err
	}
	if err := sess.SetQueueName(ctx, jobID, queueName); err != nil {
		return nil, err
	}
	if err := sess.Queue(ctx, jobID); err != nil {
		return nil, err
	}
	updated, err := sess.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return updated, sess.Commit()
}

func (b *Backend) clearLogs(j *job.Job) {
	outPath, errPath, ok := j.LogPaths(nil)
	if !ok {
		return
	}
	for _, p := range []string{outPath, errPath} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			b.log.Warn("could not clear log file on resubmit", "path", p, "err", err)
		}
	}
}

// Stop qdel's and reverts every executing/queued/waiting job named by
// ids (or, if empty, every such job in the store).
func (b *Backend) Stop(ctx context.Context, ids []int64) ([]*store.StopResult, error) {
	sess, err := b.store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	jobs, err := sess.GetJobs(ctx, ids)
	sess.Release()
	if err != nil {
		return nil, err
	}

	var live []*job.Job
	for _, j := range jobs {
		if j.Status == job.Executing || j.Status == job.Queued || j.Status == job.Waiting {
			live = append(live, j)
		}
	}
	for _, j := range live {
		RunQdel(ctx, j.ExternalID)
	}

	sess, err = b.store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Release()
	var results []*store.StopResult
	for _, j := range live {
		res, err := sess.StopJob(ctx, j.UniqueID)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, sess.Commit()
}

// Communicate polls qstat for every non-terminal job named by ids (or,
// if empty, every non-terminal grid job) and marks any that have
// vanished from the grid as a failure with result 70, so dependents can
// make progress.
func (b *Backend) Communicate(ctx context.Context, ids []int64) error {
	sess, err := b.store.Lock(ctx)
	if err != nil {
		return err
	}
	jobs, err := sess.GetJobs(ctx, ids)
	if err != nil {
		sess.Release()
		return err
	}
	var pending []*job.Job
	for _, j := range jobs {
		if !j.Status.Terminal() && j.QueueName != "local" {
			pending = append(pending, j)
		}
	}
	sess.Release()

	type indexed struct {
		i int
		j *job.Job
	}
	items := make([]indexed, len(pending))
	for i, j := range pending {
		items[i] = indexed{i: i, j: j}
	}
	type outcome struct {
		jobID  int64
		vanish bool
	}
	results := make([]outcome, len(pending))
	internal.RunBounded(ctx, b.pollConcurrency, items, b.log, func(ctx context.Context, it indexed) {
		fields := RunQstat(ctx, it.j.ExternalID)
		results[it.i] = outcome{jobID: it.j.UniqueID, vanish: fields == nil}
	})

	sess, err = b.store.Lock(ctx)
	if err != nil {
		return err
	}
	defer sess.Release()
	for _, o := range results {
		if !o.vanish {
			continue
		}
		b.log.Warn("job vanished from the grid", "job_id", o.jobID)
		if err := markVanished(ctx, sess, o.jobID); err != nil {
			return err
		}
	}
	return sess.Commit()
}

// VanishedResult is the result markVanished records for a job the grid
// no longer reports on: 70, the "ASCII F" sentinel gridtk's
// communicate() used.
const VanishedResult = 70

func markVanished(ctx context.Context, sess *store.Session, jobID int64) error {
	j, err := sess.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !j.IsArray() {
		return sess.Finish(ctx, jobID, nil, VanishedResult)
	}
	tasks, err := sess.GetArrayTasks(ctx, jobID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if t.Status.Terminal() {
			continue
		}
		idx := t.Index
		if err := sess.Finish(ctx, jobID, &idx, VanishedResult); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) RunScheduler(ctx context.Context, opts gridjob.SchedulerOptions) error {
	return gridjob.ErrUnsupported
}

func (b *Backend) RunJob(ctx context.Context, externalID int64, taskIndex *int) error {
	if b.runJob == nil {
		return fmt.Errorf("grid: backend has no wrapper entry point configured")
	}
	status := b.runJob(ctx, b.store, externalID, taskIndex, b.log)
	if status != 0 {
		return fmt.Errorf("grid: job exited with status %d", status)
	}
	return nil
}
