// Package grid implements the grid adapter: a gridjob.Dispatcher that
// mirrors the local scheduler's contract while delegating execution to
// an external SGE-compatible cluster via its qsub/qstat/qdel
// command-line utilities.
package grid

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Options carries the grid-specific submission parameters BuildQsubArgs
// encodes into a qsub argument vector.
type Options struct {
	Queue       string
	Name        string
	Deps        []int64 // external ids of waited jobs
	Array       string  // "first-last:step", empty for a plain job
	StdoutDir   string
	StderrDir   string
	Environment []string // "KEY=VALUE" passthroughs, one -v per entry
	MemFree     string
	HVMem       string
	GPUMem      string
	Hostname    string
	PEOpt       string // e.g. "pe_mth 4"
	IOBig       bool
	ExtraArgs   []string
}

// BuildQsubArgs builds the argument vector for `qsub`, wrapping command
// (the execution wrapper invocation) the way gridtk/tools.py's qsub()
// does: queue, memory, hostname, parallel environment, -cwd, name,
// holds, stdout/stderr directories, -terse, environment passthroughs,
// the array spec, io_big, any extra arguments, and finally the command
// itself.
func BuildQsubArgs(command []string, opts Options) []string {
	args := []string{}

	if opts.Queue != "" && opts.Queue != "all.q" && opts.Queue != "default" {
		args = append(args, "-l", opts.Queue)
	}
	if opts.MemFree != "" {
		args = append(args, "-l", "mem_free="+opts.MemFree)
	}
	if opts.HVMem != "" {
		args = append(args, "-l", "h_vmem="+opts.HVMem)
	}
	if opts.GPUMem != "" {
		args = append(args, "-l", "gpumem="+opts.GPUMem)
	}
	if opts.Hostname != "" {
		args = append(args, "-l", "hostname="+opts.Hostname)
	}
	if opts.PEOpt != "" {
		args = append(args, "-pe")
		args = append(args, strings.Fields(opts.PEOpt)...)
	}

	args = append(args, "-cwd")

	if opts.Name != "" {
		args = append(args, "-N", opts.Name)
	}
	if len(opts.Deps) > 0 {
		ids := make([]string, len(opts.Deps))
		for i, id := range opts.Deps {
			ids[i] = strconv.FormatInt(id, 10)
		}
		args = append(args, "-hold_jid", strings.Join(ids, ","))
	}
	if opts.StdoutDir != "" {
		args = append(args, "-o", opts.StdoutDir)
	}
	if opts.StderrDir != "" {
		args = append(args, "-e", opts.StderrDir)
	} else if opts.StdoutDir != "" {
		args = append(args, "-e", opts.StdoutDir)
	}

	args = append(args, "-terse")

	for _, kv := range opts.Environment {
		args = append(args, "-v", kv)
	}

	if opts.Array != "" {
		args = append(args, "-t", opts.Array)
	}
	if opts.IOBig {
		args = append(args, "-l", "io_big=TRUE")
	}

	args = append(args, opts.ExtraArgs...)
	args = append(args, command...)
	return args
}

// RunQsub runs qsub with args and parses the first line of its -terse
// output as the assigned external job id.
func RunQsub(ctx context.Context, args []string) (int64, error) {
	cmd := exec.CommandContext(ctx, "qsub", args...)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("grid: qsub failed: %w", err)
	}
	line := firstLine(out)
	// -terse may report "<id>.<task>" for array jobs; keep the id part.
	if idx := strings.IndexByte(line, '.'); idx >= 0 {
		line = line[:idx]
	}
	id, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("grid: could not parse qsub output %q: %w", line, err)
	}
	return id, nil
}

func firstLine(b []byte) string {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// ParseQstat parses `qstat -j <id> -f` output into its colon-separated
// key/value fields, the way gridtk/tools.py's qstat() does: decorative
// "====" delimiter lines are skipped, and a literal "do not exist"
// substring (case-insensitive) anywhere in the output means the job is
// gone, reported as a nil, not-found result.
func ParseQstat(output string) map[string]string {
	fields := map[string]string{}
	for _, line := range strings.Split(output, "\n") {
		s := strings.TrimSpace(line)
		if strings.Contains(strings.ToLower(s), "do not exist") {
			return nil
		}
		if s == "" || strings.Contains(s, strings.Repeat("=", 10)) {
			continue
		}
		parts := strings.SplitN(s, ": ", 2)
		if len(parts) != 2 {
			// qstat separates some fields with a bare colon and no space;
			// fall back to a single-colon split.
			parts = strings.SplitN(s, ":", 2)
		}
		if len(parts) == 2 {
			fields[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return fields
}

// RunQstat invokes `qstat -j <id> -f` and parses its output. A qstat
// exit failure is not itself an error here: gridtk treats qstat's
// "do not exist" output, not its exit code, as the authoritative
// not-found signal, so a non-zero exit with parseable output is still
// handed to ParseQstat.
func RunQstat(ctx context.Context, externalID int64) map[string]string {
	cmd := exec.CommandContext(ctx, "qstat", "-j", strconv.FormatInt(externalID, 10), "-f")
	out, _ := cmd.CombinedOutput()
	return ParseQstat(string(out))
}

// RunQdel invokes `qdel <id>`, ignoring a non-zero exit the same way
// gridtk's qdel() does (error_on_nonzero=False): deleting an already
// finished or already-deleted job is not itself a failure worth
// surfacing.
func RunQdel(ctx context.Context, externalID int64) {
	cmd := exec.CommandContext(ctx, "qdel", strconv.FormatInt(externalID, 10))
	_ = cmd.Run()
}

// QueueName extracts the actual queue name qstat reports a job landed
// on from its "hard resource_list" field (formatted "<qname>=TRUE,...")
// the way gridtk/sge.py's _queue() does, defaulting to "all.q" when
// absent or unparseable.
func QueueName(fields map[string]string) string {
	raw, ok := fields["hard resource_list"]
	if !ok {
		return "all.q"
	}
	for _, kv := range strings.Split(raw, ",") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.HasPrefix(parts[0], "q") && parts[1] == "TRUE" {
			return parts[0]
		}
	}
	return "all.q"
}

// peQueues is the hardcoded allow-list of queues that support a
// parallel-environment (multi-threading) request, matching
// gridtk/sge.py's _submit_to_grid validation.
var peQueues = map[string]bool{
	"q1dm":        true,
	"q_1day_mth":  true,
	"q1wm":        true,
	"q_1week_mth": true,
}

// SupportsPE reports whether queue supports a -pe request.
func SupportsPE(queue string) bool {
	return peQueues[queue]
}
