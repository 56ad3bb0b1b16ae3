package local

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"testing"

	"github.com/gridjobs/gridjob/job"
	"github.com/gridjobs/gridjob/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	return st
}

func newTestScheduler(t *testing.T, st *store.Store, cfg Config) *Scheduler {
	t.Helper()
	return &Scheduler{
		store: st,
		cfg:   cfg,
		log:   slog.Default(),
		done:  make(chan struct{}),
	}
}

func queueJob(t *testing.T, st *store.Store, cmd []string) int64 {
	t.Helper()
	ctx := context.Background()
	sess, err := st.Lock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	j, err := sess.AddJob(ctx, store.AddJobParams{Command: cmd, QueueName: "local"})
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Queue(ctx, j.UniqueID); err != nil {
		t.Fatal(err)
	}
	if err := sess.Commit(); err != nil {
		t.Fatal(err)
	}
	return j.UniqueID
}

func TestExitCodeNil(t *testing.T) {
	if got := exitCode(nil); got != 0 {
		t.Fatalf("exitCode(nil) = %d, want 0", got)
	}
}

func TestExitCodeExitError(t *testing.T) {
	err := exec.Command("sh", "-c", "exit 3").Run()
	if got := exitCode(err); got != 3 {
		t.Fatalf("exitCode() = %d, want 3", got)
	}
}

func TestExitCodeNonExitError(t *testing.T) {
	if got := exitCode(errors.New("boom")); got != 69 {
		t.Fatalf("exitCode() = %d, want 69", got)
	}
}

func TestFinishRecordsResult(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	s := newTestScheduler(t, st, Config{})

	id := queueJob(t, st, []string{"true"})
	sess, err := st.Lock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Execute(ctx, id, nil, "host1"); err != nil {
		t.Fatal(err)
	}
	if err := sess.Commit(); err != nil {
		t.Fatal(err)
	}

	s.finish(ctx, store.ClaimedUnit{Job: &job.Job{UniqueID: id}}, 0)

	sess, err = st.Lock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Release()
	got, err := sess.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != job.Success {
		t.Fatalf("status after finish = %s, want Success", got.Status)
	}
}

func TestFinishIsIdempotentOnAlreadyTerminalJob(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	s := newTestScheduler(t, st, Config{})

	id := queueJob(t, st, []string{"true"})
	sess, err := st.Lock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Execute(ctx, id, nil, "host1"); err != nil {
		t.Fatal(err)
	}
	if err := sess.Finish(ctx, id, nil, 0); err != nil {
		t.Fatal(err)
	}
	if err := sess.Commit(); err != nil {
		t.Fatal(err)
	}

	// The wrapper already recorded Success; run's safety-net finish call
	// for the same unit must leave it alone rather than overwrite it with
	// a different result code.
	s.finish(ctx, store.ClaimedUnit{Job: &job.Job{UniqueID: id}}, 1)

	sess, err = st.Lock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Release()
	got, err := sess.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != job.Success {
		t.Fatalf("status after repeat finish = %s, want unchanged Success", got.Status)
	}
}

func TestRevertResetsToSubmitted(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	s := newTestScheduler(t, st, Config{})

	id := queueJob(t, st, []string{"sleep", "100"})
	sess, err := st.Lock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Execute(ctx, id, nil, "host1"); err != nil {
		t.Fatal(err)
	}
	if err := sess.Commit(); err != nil {
		t.Fatal(err)
	}

	s.revert(ctx, store.ClaimedUnit{Job: &job.Job{UniqueID: id}})

	sess, err = st.Lock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Release()
	got, err := sess.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != job.Submitted {
		t.Fatalf("status after revert = %s, want Submitted", got.Status)
	}
}

func TestAdmitRespectsParallelismCap(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	queueJob(t, st, []string{"true"})
	queueJob(t, st, []string{"true"})
	s := newTestScheduler(t, st, Config{Parallelism: 1})

	free := s.cfg.Parallelism - int(s.inFlight.Load())
	if free != 1 {
		t.Fatalf("free capacity = %d, want 1", free)
	}

	sess, err := st.Lock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	units, err := sess.ClaimLocal(ctx, "host1", free, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Commit(); err != nil {
		t.Fatal(err)
	}
	if len(units) != 1 {
		t.Fatalf("claimed %d units, want 1 (parallelism cap)", len(units))
	}
}

func TestMaybeFinishClosesDoneWhenNoPendingWork(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	s := newTestScheduler(t, st, Config{DieWhenFinished: true})

	s.maybeFinish(ctx)

	select {
	case <-s.Done():
	default:
		t.Fatal("Done() not closed when no local work is pending")
	}
}

func TestMaybeFinishLeavesDoneOpenWithPendingWork(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	queueJob(t, st, []string{"true"})
	s := newTestScheduler(t, st, Config{DieWhenFinished: true})

	s.maybeFinish(ctx)

	select {
	case <-s.Done():
		t.Fatal("Done() closed despite pending local work")
	default:
	}
}

func TestBuildCmdSetsTaskEnvironment(t *testing.T) {
	st := newTestStore(t)
	s := newTestScheduler(t, st, Config{})
	s.wrapperExe = "/bin/true"

	cmd := s.buildCmd(context.Background(), store.ClaimedUnit{Job: &job.Job{UniqueID: 1, ExternalID: 7}})
	if !hasEnv(cmd, "JOB_ID=7") {
		t.Fatalf("cmd.Env = %v, want JOB_ID=7", cmd.Env)
	}
	if !hasEnv(cmd, "SGE_TASK_ID=undefined") {
		t.Fatalf("cmd.Env = %v, want SGE_TASK_ID=undefined", cmd.Env)
	}
}

func TestBuildCmdAppliesNice(t *testing.T) {
	st := newTestStore(t)
	s := newTestScheduler(t, st, Config{Nice: 10})
	s.wrapperExe = "/bin/true"

	cmd := s.buildCmd(context.Background(), store.ClaimedUnit{Job: &job.Job{UniqueID: 1}})
	if cmd.Path != "nice" && cmd.Args[0] != "nice" {
		t.Fatalf("buildCmd() with Nice set did not wrap in nice: %v", cmd.Args)
	}
}

func hasEnv(cmd *exec.Cmd, kv string) bool {
	for _, e := range cmd.Env {
		if e == kv {
			return true
		}
	}
	return false
}
