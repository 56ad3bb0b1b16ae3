package gridjob

import (
	"context"
	"os"
	"testing"

	"github.com/gridjobs/gridjob/job"
	"github.com/gridjobs/gridjob/store"
)

// fakeDispatcher records the options it was called with so a test can
// assert Controller routed to it without exercising a real backend.
type fakeDispatcher struct {
	resubmitOpts ResubmitOptions
	resubmitErr  error
}

func (f *fakeDispatcher) Submit(ctx context.Context, req SubmitRequest) (*job.Job, error) {
	return nil, nil
}

func (f *fakeDispatcher) Resubmit(ctx context.Context, opts ResubmitOptions) ([]*job.Job, error) {
	f.resubmitOpts = opts
	return nil, f.resubmitErr
}

func (f *fakeDispatcher) Stop(ctx context.Context, ids []int64) ([]*store.StopResult, error) {
	return nil, nil
}

func (f *fakeDispatcher) Communicate(ctx context.Context, ids []int64) error { return nil }

func (f *fakeDispatcher) RunScheduler(ctx context.Context, opts SchedulerOptions) error { return nil }

func (f *fakeDispatcher) RunJob(ctx context.Context, externalID int64, taskIndex *int) error {
	return nil
}

func newTestController(t *testing.T) (*Controller, *fakeDispatcher) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	fd := &fakeDispatcher{}
	return NewController(st, fd, nil), fd
}

func addTestJob(t *testing.T, c *Controller, cmd []string) *job.Job {
	t.Helper()
	ctx := context.Background()
	sess, err := c.store.Lock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Release()
	j, err := sess.AddJob(ctx, store.AddJobParams{Command: cmd, QueueName: "local"})
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Commit(); err != nil {
		t.Fatal(err)
	}
	return j
}

func TestResubmitRejectsOverwriteOnMultipleJobs(t *testing.T) {
	ctrl, _ := newTestController(t)
	_, err := ctrl.Resubmit(context.Background(), ResubmitOptions{
		IDs:              []int64{1, 2},
		OverwriteCommand: []string{"echo", "hi"},
	})
	if err != ErrAmbiguousOverwrite {
		t.Fatalf("Resubmit() err = %v, want ErrAmbiguousOverwrite", err)
	}
}

func TestResubmitRejectsOverwriteWithAlsoSuccess(t *testing.T) {
	ctrl, _ := newTestController(t)
	_, err := ctrl.Resubmit(context.Background(), ResubmitOptions{
		IDs:              []int64{1},
		AlsoSuccess:      true,
		OverwriteCommand: []string{"echo", "hi"},
	})
	if err != ErrAmbiguousOverwrite {
		t.Fatalf("Resubmit() err = %v, want ErrAmbiguousOverwrite", err)
	}
}

func TestResubmitRoutesToDispatcher(t *testing.T) {
	ctrl, fd := newTestController(t)
	opts := ResubmitOptions{IDs: []int64{1}, KeepLogs: true}
	if _, err := ctrl.Resubmit(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	if !fd.resubmitOpts.KeepLogs || len(fd.resubmitOpts.IDs) != 1 {
		t.Fatalf("dispatcher saw %+v, want it routed through unchanged", fd.resubmitOpts)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	ctrl, _ := newTestController(t)
	addTestJob(t, ctrl, []string{"true"})
	second := addTestJob(t, ctrl, []string{"true"})

	ctx := context.Background()
	sess, err := ctrl.store.Lock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Queue(ctx, second.UniqueID); err != nil {
		t.Fatal(err)
	}
	if err := sess.Commit(); err != nil {
		t.Fatal(err)
	}

	entries, err := ctrl.List(ctx, ListFilter{Statuses: []job.Status{job.Queued}}, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Job.UniqueID != second.UniqueID {
		t.Fatalf("List() = %+v, want only job %d", entries, second.UniqueID)
	}
}

func TestListAttachesAgeWhenLong(t *testing.T) {
	ctrl, _ := newTestController(t)
	addTestJob(t, ctrl, []string{"true"})

	entries, err := ctrl.List(context.Background(), ListFilter{}, ListOptions{Long: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Age == "" {
		t.Fatalf("List() with Long = %+v, want a non-empty Age", entries)
	}
}

func TestDeleteRemovesJob(t *testing.T) {
	ctrl, _ := newTestController(t)
	j := addTestJob(t, ctrl, []string{"true"})

	deleted, err := ctrl.Delete(context.Background(), store.DeleteParams{IDs: []int64{j.UniqueID}})
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 1 || deleted[0].UniqueID != j.UniqueID {
		t.Fatalf("Delete() = %+v, want job %d", deleted, j.UniqueID)
	}

	entries, err := ctrl.List(context.Background(), ListFilter{}, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("List() after Delete = %+v, want empty", entries)
	}
}

func TestDeleteWithArrayIDsRemovesOnlySelectedTaskLogs(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctx := context.Background()
	dir := t.TempDir()

	sess, err := ctrl.store.Lock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	j, err := sess.AddJob(ctx, store.AddJobParams{
		Command: []string{"true"}, QueueName: "local", LogDir: &dir,
		Array: &job.ArraySpec{First: 1, Last: 2, Step: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Commit(); err != nil {
		t.Fatal(err)
	}

	out1, err1, _ := j.LogPaths(intPtr(1))
	out2, err2, _ := j.LogPaths(intPtr(2))
	for _, p := range []string{out1, err1, out2, err2} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := ctrl.Delete(ctx, store.DeleteParams{
		IDs: []int64{j.UniqueID}, ArrayIDs: []int{1}, AlsoLogs: true,
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(out1); !os.IsNotExist(err) {
		t.Fatalf("task 1's stdout log should have been removed, stat err = %v", err)
	}
	if _, err := os.Stat(out2); err != nil {
		t.Fatalf("task 2's stdout log should have survived: %v", err)
	}
}

func intPtr(i int) *int { return &i }
