// Package wrapper implements the execution wrapper: the entry point run
// inside every spawned local child and every grid-submitted process. It
// locates its own job record from environment variables, runs the
// stored command, and records the outcome.
package wrapper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"

	"github.com/gridjobs/gridjob/store"
)

// Env names the wrapper reads to find its own job.
const (
	EnvJobID  = "JOB_ID"
	EnvTaskID = "SGE_TASK_ID"
)

// ErrMissingJobID is returned when JOB_ID is absent or not an integer.
var ErrMissingJobID = errors.New("wrapper: JOB_ID not set or not an integer")

// ParseEnv reads EnvJobID and EnvTaskID from the process environment,
// returning the external id and, for an array task, its index (nil when
// SGE_TASK_ID is absent or "undefined").
func ParseEnv() (externalID int64, taskIndex *int, err error) {
	raw, ok := os.LookupEnv(EnvJobID)
	if !ok {
		return 0, nil, ErrMissingJobID
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %q", ErrMissingJobID, raw)
	}
	taskRaw, ok := os.LookupEnv(EnvTaskID)
	if !ok || taskRaw == "undefined" {
		return id, nil, nil
	}
	idx, err := strconv.Atoi(taskRaw)
	if err != nil {
		return id, nil, fmt.Errorf("wrapper: %s=%q is not an integer: %w", EnvTaskID, taskRaw, err)
	}
	return id, &idx, nil
}

// Run performs the full wrapper lifecycle for the job identified by
// externalID (and, for an array job, taskIndex): look the job up, return
// without running anything if it has already been cascaded to failure,
// otherwise mark it executing, run its command and record the result. It
// returns the process exit code the caller should terminate with.
func Run(ctx context.Context, st *store.Store, externalID int64, taskIndex *int, log *slog.Logger) int {
	if log == nil {
		log = slog.Default()
	}

	uniqueID, ok := lookup(ctx, st, externalID, log)
	if !ok {
		// The job was deleted between dispatch and wrapper startup;
		// exit silently, as there is nothing left to record against.
		return 0
	}

	// Checked before markExecuting, which would overwrite a cascaded
	// Failure with Executing.
	if alreadyFailed(ctx, st, uniqueID, taskIndex, log) {
		log.Info("job already cascaded to failure, skipping execution", "job_id", uniqueID)
		return 0
	}

	if !markExecuting(ctx, st, uniqueID, taskIndex, log) {
		return 0
	}

	status := execute(ctx, st, uniqueID, log)

	finish(ctx, st, uniqueID, taskIndex, status, log)
	return status
}

func lookup(ctx context.Context, st *store.Store, externalID int64, log *slog.Logger) (int64, bool) {
	sess, err := st.Lock(ctx)
	if err != nil {
		log.Error("lookup: lock failed", "err", err)
		return 0, false
	}
	defer sess.Release()
	j, err := sess.GetJobByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("job not found, assuming deleted", "external_id", externalID)
			return 0, false
		}
		log.Error("lookup failed", "external_id", externalID, "err", err)
		return 0, false
	}
	return j.UniqueID, true
}

func markExecuting(ctx context.Context, st *store.Store, jobID int64, taskIndex *int, log *slog.Logger) bool {
	hostname, _ := os.Hostname()
	sess, err := st.Lock(ctx)
	if err != nil {
		log.Error("mark executing: lock failed", "job_id", jobID, "err", err)
		return false
	}
	defer sess.Release()
	if err := sess.Execute(ctx, jobID, taskIndex, hostname); err != nil {
		log.Error("mark executing failed", "job_id", jobID, "err", err)
		return false
	}
	if err := sess.Commit(); err != nil {
		log.Error("mark executing: commit failed", "job_id", jobID, "err", err)
		return false
	}
	return true
}

func alreadyFailed(ctx context.Context, st *store.Store, jobID int64, taskIndex *int, log *slog.Logger) bool {
	sess, err := st.Lock(ctx)
	if err != nil {
		log.Error("cascade check: lock failed", "job_id", jobID, "err", err)
		return false
	}
	defer sess.Release()
	terminal, err := sess.IsTerminal(ctx, jobID, taskIndex)
	if err != nil {
		log.Error("cascade check failed", "job_id", jobID, "err", err)
		return false
	}
	return terminal
}

// execute runs the job's stored command with the lock released, as the
// session lock must never be held across a child wait.
func execute(ctx context.Context, st *store.Store, jobID int64, log *slog.Logger) int {
	j, ok := fetch(ctx, st, jobID, log)
	if !ok {
		return 69
	}
	if len(j.Command) == 0 {
		log.Error("job has no command", "job_id", jobID)
		return 69
	}

	cmd := exec.CommandContext(ctx, j.Command[0], j.Command[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if j.ExecDir != nil {
		cmd.Dir = *j.ExecDir
	}
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		log.Error("launch failed", "job_id", jobID, "err", err)
		return 69
	}
	err := cmd.Wait()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	log.Error("wait failed", "job_id", jobID, "err", err)
	return 69
}

func fetch(ctx context.Context, st *store.Store, jobID int64, log *slog.Logger) (*jobSnapshot, bool) {
	sess, err := st.Lock(ctx)
	if err != nil {
		log.Error("fetch: lock failed", "job_id", jobID, "err", err)
		return nil, false
	}
	defer sess.Release()
	j, err := sess.GetJob(ctx, jobID)
	if err != nil {
		log.Error("fetch failed", "job_id", jobID, "err", err)
		return nil, false
	}
	return &jobSnapshot{Command: j.Command, ExecDir: j.ExecDir}, true
}

// jobSnapshot carries only the fields execute needs, read under their
// own short session rather than held across the child wait.
type jobSnapshot struct {
	Command []string
	ExecDir *string
}

func finish(ctx context.Context, st *store.Store, jobID int64, taskIndex *int, result int, log *slog.Logger) {
	sess, err := st.Lock(ctx)
	if err != nil {
		log.Error("finish: lock failed", "job_id", jobID, "err", err)
		return
	}
	defer sess.Release()
	if err := sess.Finish(ctx, jobID, taskIndex, result); err != nil {
		log.Error("finish failed", "job_id", jobID, "err", err)
		return
	}
	if err := sess.Commit(); err != nil {
		log.Error("finish: commit failed", "job_id", jobID, "err", err)
	}
}
