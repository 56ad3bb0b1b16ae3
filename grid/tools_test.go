package grid_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/gridjobs/gridjob/grid"
)

// fakeTool drops an executable shell script named name onto a temporary
// directory prepended to PATH, so exec.LookPath resolves it ahead of any
// real qsub/qstat/qdel on the test machine.
func fakeTool(t *testing.T, name, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script fakes require a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestBuildQsubArgsPlainJob(t *testing.T) {
	args := grid.BuildQsubArgs([]string{"echo", "hi"}, grid.Options{
		Queue:     "q1dm",
		Name:      "job1",
		StdoutDir: "/tmp/out",
	})
	want := []string{"-l", "q1dm", "-cwd", "-N", "job1", "-o", "/tmp/out", "-e", "/tmp/out", "-terse", "echo", "hi"}
	if len(args) != len(want) {
		t.Fatalf("BuildQsubArgs() = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("BuildQsubArgs()[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestBuildQsubArgsArrayAndDeps(t *testing.T) {
	args := grid.BuildQsubArgs([]string{"run.sh"}, grid.Options{
		Deps:  []int64{10, 11},
		Array: "1-5:1",
	})
	joined := ""
	for _, a := range args {
		joined += a + " "
	}
	if !contains(args, "-hold_jid") || !contains(args, "10,11") {
		t.Fatalf("BuildQsubArgs() = %v, want -hold_jid 10,11", args)
	}
	if !contains(args, "-t") || !contains(args, "1-5:1") {
		t.Fatalf("BuildQsubArgs() = %v, want -t 1-5:1", args)
	}
	_ = joined
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func TestRunQsubParsesTerseOutput(t *testing.T) {
	fakeTool(t, "qsub", `echo "4242"`)
	id, err := grid.RunQsub(context.Background(), []string{"echo", "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if id != 4242 {
		t.Fatalf("RunQsub() = %d, want 4242", id)
	}
}

func TestRunQsubParsesArrayTaskSuffix(t *testing.T) {
	fakeTool(t, "qsub", `echo "4242.1"`)
	id, err := grid.RunQsub(context.Background(), []string{"echo", "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if id != 4242 {
		t.Fatalf("RunQsub() = %d, want 4242", id)
	}
}

func TestRunQsubFailure(t *testing.T) {
	fakeTool(t, "qsub", `echo "bad request" >&2; exit 1`)
	if _, err := grid.RunQsub(context.Background(), []string{"echo", "hi"}); err == nil {
		t.Fatal("expected an error from a failing qsub")
	}
}

func TestParseQstatFields(t *testing.T) {
	out := "==============================================================\n" +
		"job_number:                 4242\n" +
		"hard resource_list:         q1dm=TRUE,mem_free=4G\n"
	fields := grid.ParseQstat(out)
	if fields["job_number"] != "4242" {
		t.Fatalf("fields[job_number] = %q, want 4242", fields["job_number"])
	}
	if fields["hard resource_list"] != "q1dm=TRUE,mem_free=4G" {
		t.Fatalf("fields[hard resource_list] = %q", fields["hard resource_list"])
	}
}

func TestParseQstatNotFound(t *testing.T) {
	out := "jobs 4242 do not exist\n"
	if fields := grid.ParseQstat(out); fields != nil {
		t.Fatalf("ParseQstat() = %v, want nil for a not-found job", fields)
	}
}

func TestRunQstatTreatsNotFoundAsAuthoritative(t *testing.T) {
	fakeTool(t, "qstat", `echo "job 4242 do not exist" >&2; exit 1`)
	fields := grid.RunQstat(context.Background(), 4242)
	if fields != nil {
		t.Fatalf("RunQstat() = %v, want nil", fields)
	}
}

func TestRunQdelIgnoresNonzeroExit(t *testing.T) {
	fakeTool(t, "qdel", `exit 1`)
	grid.RunQdel(context.Background(), 4242)
}

func TestQueueNameFromResourceList(t *testing.T) {
	fields := map[string]string{"hard resource_list": "q1dm=TRUE,mem_free=4G"}
	if got := grid.QueueName(fields); got != "q1dm" {
		t.Fatalf("QueueName() = %q, want q1dm", got)
	}
}

func TestQueueNameDefaultsToAllQ(t *testing.T) {
	if got := grid.QueueName(map[string]string{}); got != "all.q" {
		t.Fatalf("QueueName() = %q, want all.q", got)
	}
}

func TestSupportsPE(t *testing.T) {
	if !grid.SupportsPE("q1dm") {
		t.Fatal("SupportsPE(q1dm) = false, want true")
	}
	if grid.SupportsPE("all.q") {
		t.Fatal("SupportsPE(all.q) = true, want false")
	}
}
