package gridjob

import (
	"context"
	"os"

	"github.com/gridjobs/gridjob/job"
)

// Report collects the captured stdout/stderr files of jobs (and, for
// array jobs, tasks) matching filter. A job or task with no LogDir
// configured, or whose capture file is missing, is silently skipped —
// missing log files are a transient condition per spec §7, not an
// error that should abort the whole report.
func (c *Controller) Report(ctx context.Context, filter ReportFilter) ([]ReportEntry, error) {
	sess, err := c.store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Release()

	jobs, err := sess.GetJobs(ctx, filter.IDs)
	if err != nil {
		return nil, err
	}
	jobs = filterJobsForReport(jobs, filter)

	var entries []ReportEntry
	for _, j := range jobs {
		if j.IsArray() {
			tasks, err := sess.GetArrayTasks(ctx, j.UniqueID)
			if err != nil {
				return nil, err
			}
			for _, t := range tasks {
				if !taskSelected(t.Index, filter.ArrayIDs) {
					continue
				}
				idx := t.Index
				entries = append(entries, readLogs(j, &idx, filter)...)
			}
			continue
		}
		entries = append(entries, readLogs(j, nil, filter)...)
	}
	return entries, sess.Commit()
}

func filterJobsForReport(jobs []*job.Job, filter ReportFilter) []*job.Job {
	if filter.Name == "" && len(filter.Statuses) == 0 {
		return jobs
	}
	statuses := make(map[job.Status]bool, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statuses[st] = true
	}
	out := jobs[:0]
	for _, j := range jobs {
		if filter.Name != "" && j.DisplayName() != filter.Name {
			continue
		}
		if len(statuses) > 0 && !statuses[j.Status] {
			continue
		}
		out = append(out, j)
	}
	return out
}

func taskSelected(index int, ids []int) bool {
	if len(ids) == 0 {
		return true
	}
	for _, id := range ids {
		if id == index {
			return true
		}
	}
	return false
}

func readLogs(j *job.Job, taskIndex *int, filter ReportFilter) []ReportEntry {
	outPath, errPath, ok := j.LogPaths(taskIndex)
	if !ok {
		return nil
	}
	var entries []ReportEntry
	if !filter.ErrorsOnly {
		if body, err := os.ReadFile(outPath); err == nil {
			entries = append(entries, ReportEntry{JobID: j.UniqueID, Task: taskIndex, Stream: "stdout", Path: outPath, Body: body})
		}
	}
	if !filter.OutputOnly {
		if body, err := os.ReadFile(errPath); err == nil {
			entries = append(entries, ReportEntry{JobID: j.UniqueID, Task: taskIndex, Stream: "stderr", Path: errPath, Body: body})
		}
	}
	return entries
}
