// Package local implements the local parallel scheduler: an event loop
// that admits ready jobs from the state store under a parallelism cap
// and spawns the execution wrapper as a child process for each one.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gridjobs/gridjob"
	"github.com/gridjobs/gridjob/internal"
	"github.com/gridjobs/gridjob/store"
)

// Config controls one Scheduler's admission policy.
type Config struct {
	// Parallelism bounds the number of live child processes at any time.
	Parallelism int
	// SleepTime is the delay between admission ticks.
	SleepTime time.Duration
	// DieWhenFinished, if set, stops the scheduler once no children are
	// running and no local job remains non-terminal.
	DieWhenFinished bool
	// NoLogFiles, if set, makes every child inherit the scheduler's own
	// stdout/stderr instead of writing to LogDir.
	NoLogFiles bool
	// Nice, if non-zero, is the OS scheduling niceness applied to every
	// spawned child via the `nice` utility.
	Nice int
	// JobIDs, if non-empty, restricts admission to these ids; an empty
	// slice means no restriction.
	JobIDs []int64
}

// Scheduler runs the admit/reap loop described in the job manager's
// local backend contract.
type Scheduler struct {
	gridjob.LCBase

	store      *store.Store
	dbPath     string
	wrapperExe string
	cfg        Config
	log        *slog.Logger

	tick internal.TimerTask
	pool *internal.WorkerPool[store.ClaimedUnit]

	inFlight atomic.Int64
	done     chan struct{}
	doneOnce sync.Once
}

// NewScheduler builds a Scheduler against st, whose backing file is at
// dbPath (passed to each spawned execution wrapper so it opens the same
// database).
func NewScheduler(st *store.Store, dbPath string, cfg Config, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("local: resolve own executable: %w", err)
	}
	return &Scheduler{
		store:      st,
		dbPath:     dbPath,
		wrapperExe: exe,
		cfg:        cfg,
		log:        log,
		pool:       internal.NewWorkerPool[store.ClaimedUnit](cfg.Parallelism, 0, log),
		done:       make(chan struct{}),
	}, nil
}

// Start recovers from any prior crash via Refresh, then begins the
// admission loop and the worker pool that runs claimed work.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.TryStart(); err != nil {
		return err
	}
	if err := s.refresh(ctx); err != nil {
		s.log.Error("refresh on startup failed", "err", err)
	}
	s.pool.Start(ctx, s.run)
	s.tick.Start(ctx, s.admit, s.cfg.SleepTime)
	return nil
}

// Stop initiates graceful shutdown: stops admitting new work, cancels
// the pool, and waits up to timeout for in-flight children to be
// reaped.
func (s *Scheduler) Stop(timeout time.Duration) error {
	return s.TryStop(timeout, s.doStop)
}

func (s *Scheduler) doStop() internal.DoneChan {
	first := s.tick.Stop()
	second := s.pool.Stop()
	return internal.Combine(first, second)
}

// Done is closed once DieWhenFinished is set and the scheduler observes
// no running children and no remaining non-terminal local job. Callers
// running the scheduler as a foreground loop select on it alongside
// ctx.Done().
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) refresh(ctx context.Context) error {
	sess, err := s.store.Lock(ctx)
	if err != nil {
		return err
	}
	defer sess.Release()
	if err := sess.Refresh(ctx); err != nil {
		return err
	}
	return sess.Commit()
}

// admit claims up to the scheduler's free capacity of ready local work
// and dispatches it into the pool. Claiming happens inside one short
// session so the database lock is never held across a child wait.
func (s *Scheduler) admit(ctx context.Context) {
	free := s.cfg.Parallelism - int(s.inFlight.Load())
	if free <= 0 {
		return
	}
	hostname, _ := os.Hostname()

	sess, err := s.store.Lock(ctx)
	if err != nil {
		if !isBusy(err) {
			s.log.Error("admit: lock failed", "err", err)
		}
		return
	}
	units, err := sess.ClaimLocal(ctx, hostname, free, s.cfg.JobIDs)
	if err != nil {
		sess.Release()
		s.log.Error("admit: claim failed", "err", err)
		return
	}
	if err := sess.Commit(); err != nil {
		s.log.Error("admit: commit failed", "err", err)
		return
	}

	for _, u := range units {
		s.inFlight.Add(1)
		if !s.pool.Push(u) {
			s.inFlight.Add(-1)
			s.log.Debug("dispatch interrupted by shutdown", "job_id", u.Job.UniqueID)
			return
		}
	}

	if s.cfg.DieWhenFinished && len(units) == 0 && s.inFlight.Load() == 0 {
		s.maybeFinish(ctx)
	}
}

func (s *Scheduler) maybeFinish(ctx context.Context) {
	sess, err := s.store.Lock(ctx)
	if err != nil {
		return
	}
	pending, err := sess.HasPendingLocal(ctx)
	sess.Release()
	if err != nil {
		s.log.Error("die-when-finished check failed", "err", err)
		return
	}
	if !pending {
		s.doneOnce.Do(func() { close(s.done) })
	}
}

// run spawns the execution wrapper for a claimed unit and waits for it
// to exit, then releases its admission slot. The wrapper records the
// job's outcome itself; run's own Finish call below is a safety net in
// case the wrapper died before reaching it and is a harmless repeat
// otherwise.
func (s *Scheduler) run(ctx context.Context, u store.ClaimedUnit) {
	defer s.inFlight.Add(-1)

	cmd := s.buildCmd(ctx, u)
	out, errFile, closeLogs := s.openLogs(u)
	cmd.Stdout, cmd.Stderr = out, errFile
	defer closeLogs()

	if err := cmd.Start(); err != nil {
		s.log.Error("spawn failed", "job_id", u.Job.UniqueID, "err", err)
		s.finish(context.Background(), u, 117)
		return
	}
	err := cmd.Wait()

	// Shutdown kills in-flight children by canceling their context
	// (exec.CommandContext sends SIGKILL); that is an operator interrupt,
	// not a real failure, so the job reverts to submitted instead of
	// being recorded as failed. The DB write uses a fresh context since
	// ctx is already canceled.
	if ctx.Err() != nil {
		s.revert(context.Background(), u)
		return
	}
	s.finish(context.Background(), u, exitCode(err))
}

func (s *Scheduler) revert(ctx context.Context, u store.ClaimedUnit) {
	sess, err := s.store.Lock(ctx)
	if err != nil {
		s.log.Error("revert: lock failed", "job_id", u.Job.UniqueID, "err", err)
		return
	}
	defer sess.Release()
	if _, err := sess.StopJob(ctx, u.Job.UniqueID); err != nil {
		s.log.Error("revert: stop failed", "job_id", u.Job.UniqueID, "err", err)
		return
	}
	if err := sess.Commit(); err != nil {
		s.log.Error("revert: commit failed", "job_id", u.Job.UniqueID, "err", err)
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 69
}

func (s *Scheduler) finish(ctx context.Context, u store.ClaimedUnit, result int) {
	sess, err := s.store.Lock(ctx)
	if err != nil {
		s.log.Error("finish: lock failed", "job_id", u.Job.UniqueID, "err", err)
		return
	}
	defer sess.Release()
	// A job (or task) that finished, or was cascaded to failure, before
	// the wrapper reached its own Finish call is left exactly as the
	// wrapper or the cascade left it; this call is only a safety net
	// for a wrapper that never got there.
	alreadyTerminal, err := sess.IsTerminal(ctx, u.Job.UniqueID, u.Task)
	if err != nil {
		s.log.Error("finish: lookup failed", "job_id", u.Job.UniqueID, "err", err)
		return
	}
	if alreadyTerminal {
		return
	}
	if err := sess.Finish(ctx, u.Job.UniqueID, u.Task, result); err != nil {
		s.log.Error("finish failed", "job_id", u.Job.UniqueID, "err", err)
		return
	}
	if err := sess.Commit(); err != nil {
		s.log.Error("finish: commit failed", "job_id", u.Job.UniqueID, "err", err)
	}
}

func (s *Scheduler) buildCmd(ctx context.Context, u store.ClaimedUnit) *exec.Cmd {
	args := []string{s.wrapperExe, "run-job", "--database", s.dbPath}
	if s.cfg.Nice != 0 {
		args = append([]string{"nice", "-n", strconv.Itoa(s.cfg.Nice)}, args...)
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if u.Job.ExecDir != nil {
		cmd.Dir = *u.Job.ExecDir
	}
	env := os.Environ()
	env = append(env, fmt.Sprintf("JOB_ID=%d", u.Job.ExternalID))
	if u.Task != nil {
		env = append(env, fmt.Sprintf("SGE_TASK_ID=%d", *u.Task))
	} else {
		env = append(env, "SGE_TASK_ID=undefined")
	}
	cmd.Env = env
	return cmd
}

func isBusy(err error) bool {
	return errors.Is(err, store.ErrBusy)
}
