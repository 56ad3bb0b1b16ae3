package gridjob

import (
	"context"
	"os"
	"testing"

	"github.com/gridjobs/gridjob/store"
)

func TestReportReadsCapturedLogs(t *testing.T) {
	ctrl, _ := newTestController(t)
	dir := t.TempDir()

	ctx := context.Background()
	sess, err := ctrl.store.Lock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	j, err := sess.AddJob(ctx, store.AddJobParams{Command: []string{"true"}, QueueName: "local", LogDir: &dir})
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Commit(); err != nil {
		t.Fatal(err)
	}

	outPath, errPath, ok := j.LogPaths(nil)
	if !ok {
		t.Fatal("expected LogPaths to resolve for a job with LogDir set")
	}
	if err := os.WriteFile(outPath, []byte("stdout body"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(errPath, []byte("stderr body"), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := ctrl.Report(ctx, ReportFilter{IDs: []int64{j.UniqueID}})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("Report() returned %d entries, want 2 (stdout+stderr)", len(entries))
	}
}

func TestReportErrorsOnlySkipsStdout(t *testing.T) {
	ctrl, _ := newTestController(t)
	dir := t.TempDir()

	ctx := context.Background()
	sess, err := ctrl.store.Lock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	j, err := sess.AddJob(ctx, store.AddJobParams{Command: []string{"true"}, QueueName: "local", LogDir: &dir})
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Commit(); err != nil {
		t.Fatal(err)
	}

	outPath, errPath, ok := j.LogPaths(nil)
	if !ok {
		t.Fatal("expected LogPaths to resolve for a job with LogDir set")
	}
	if err := os.WriteFile(outPath, []byte("out"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(errPath, []byte("err"), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := ctrl.Report(ctx, ReportFilter{IDs: []int64{j.UniqueID}, ErrorsOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Stream != "stderr" {
		t.Fatalf("Report() with ErrorsOnly = %+v, want only a stderr entry", entries)
	}
}

func TestReportSkipsJobsWithNoLogDir(t *testing.T) {
	ctrl, _ := newTestController(t)
	j := addTestJob(t, ctrl, []string{"true"})

	entries, err := ctrl.Report(context.Background(), ReportFilter{IDs: []int64{j.UniqueID}})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("Report() for a job with no LogDir = %+v, want empty", entries)
	}
}

func TestReportFiltersByName(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctx := context.Background()

	dir := t.TempDir()
	sess, err := ctrl.store.Lock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	wanted, err := sess.AddJob(ctx, store.AddJobParams{Command: []string{"true"}, QueueName: "local", Name: "wanted", LogDir: &dir})
	if err != nil {
		t.Fatal(err)
	}
	other, err := sess.AddJob(ctx, store.AddJobParams{Command: []string{"true"}, QueueName: "local", Name: "other", LogDir: &dir})
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Commit(); err != nil {
		t.Fatal(err)
	}

	wantedOut, _, _ := wanted.LogPaths(nil)
	otherOut, _, _ := other.LogPaths(nil)
	for _, p := range []string{wantedOut, otherOut} {
		if err := os.WriteFile(p, []byte("out"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := ctrl.Report(ctx, ReportFilter{Name: "wanted"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].JobID != wanted.UniqueID {
		t.Fatalf("Report() with Name=wanted = %+v, want only job %d's stdout", entries, wanted.UniqueID)
	}
}
