package wrapper_test

import (
	"context"
	"os"
	"testing"

	"github.com/gridjobs/gridjob/job"
	"github.com/gridjobs/gridjob/store"
	"github.com/gridjobs/gridjob/wrapper"
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

func TestRunExecutesAndRecordsSuccess(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	sess, err := st.Lock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	j, err := sess.AddJob(ctx, store.AddJobParams{Command: []string{"true"}, QueueName: "local"})
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Queue(ctx, j.UniqueID); err != nil {
		t.Fatal(err)
	}
	if err := sess.SetExternalID(ctx, j.UniqueID, j.UniqueID); err != nil {
		t.Fatal(err)
	}
	if err := sess.Commit(); err != nil {
		t.Fatal(err)
	}

	code := wrapper.Run(ctx, st, j.UniqueID, nil, nil)
	if code != 0 {
		t.Fatalf("Run exit code = %d, want 0", code)
	}

	sess, err = st.Lock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Release()
	got, err := sess.GetJob(ctx, j.UniqueID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != job.Success {
		t.Fatalf("status after Run = %s, want Success", got.Status)
	}
}

func TestRunRecordsFailureExitCode(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	sess, err := st.Lock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	j, err := sess.AddJob(ctx, store.AddJobParams{Command: []string{"false"}, QueueName: "local"})
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Queue(ctx, j.UniqueID); err != nil {
		t.Fatal(err)
	}
	if err := sess.SetExternalID(ctx, j.UniqueID, j.UniqueID); err != nil {
		t.Fatal(err)
	}
	if err := sess.Commit(); err != nil {
		t.Fatal(err)
	}

	code := wrapper.Run(ctx, st, j.UniqueID, nil, nil)
	if code != 1 {
		t.Fatalf("Run exit code = %d, want 1", code)
	}

	sess, err = st.Lock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Release()
	got, err := sess.GetJob(ctx, j.UniqueID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != job.Failure {
		t.Fatalf("status after Run = %s, want Failure", got.Status)
	}
}

func TestParseEnvMissingJobID(t *testing.T) {
	if prev, ok := os.LookupEnv(wrapper.EnvJobID); ok {
		os.Unsetenv(wrapper.EnvJobID)
		t.Cleanup(func() { os.Setenv(wrapper.EnvJobID, prev) })
	}
	if _, _, err := wrapper.ParseEnv(); err == nil {
		t.Fatal("expected an error when JOB_ID is unset")
	}
}

func TestParseEnvWithTaskIndex(t *testing.T) {
	t.Setenv(wrapper.EnvJobID, "42")
	t.Setenv(wrapper.EnvTaskID, "3")
	id, idx, err := wrapper.ParseEnv()
	if err != nil {
		t.Fatal(err)
	}
	if id != 42 || idx == nil || *idx != 3 {
		t.Fatalf("ParseEnv() = (%d, %v), want (42, 3)", id, idx)
	}
}

func TestParseEnvUndefinedTask(t *testing.T) {
	t.Setenv(wrapper.EnvJobID, "42")
	t.Setenv(wrapper.EnvTaskID, "undefined")
	_, idx, err := wrapper.ParseEnv()
	if err != nil {
		t.Fatal(err)
	}
	if idx != nil {
		t.Fatalf("taskIndex = %v, want nil for undefined", idx)
	}
}
