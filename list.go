package gridjob

import (
	"context"
	"fmt"
	"time"

	"github.com/gridjobs/gridjob/job"
)

// ListOptions controls what List attaches to each returned entry,
// mirroring the `list` subcommand's printing flags (spec §6).
type ListOptions struct {
	PrintArrayJobs    bool
	PrintDependencies bool
	PrintTimes        bool
	Long              bool
	IDsOnly           bool
}

// ListEntry is one job's row in a `list` listing, with the optional
// detail List was asked to attach.
type ListEntry struct {
	Job *job.Job

	Tasks    []*job.ArrayTask // set when PrintArrayJobs and Job.IsArray()
	WaitsFor []*job.Job       // set when PrintDependencies
	Age      string           // set when Long; see FormatAge
}

// List returns jobs matching filter, sorted by unique id, with whatever
// extra detail opts requests attached to each entry.
func (c *Controller) List(ctx context.Context, filter ListFilter, opts ListOptions) ([]*ListEntry, error) {
	sess, err := c.store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Release()

	jobs, err := sess.GetJobs(ctx, filter.IDs)
	if err != nil {
		return nil, err
	}
	jobs = filterJobs(jobs, filter)

	entries := make([]*ListEntry, 0, len(jobs))
	for _, j := range jobs {
		e := &ListEntry{Job: j}
		if opts.PrintArrayJobs && j.IsArray() {
			tasks, err := sess.GetArrayTasks(ctx, j.UniqueID)
			if err != nil {
				return nil, err
			}
			e.Tasks = tasks
		}
		if opts.PrintDependencies {
			waits, err := sess.GetJobsWeWaitFor(ctx, j.UniqueID)
			if err != nil {
				return nil, err
			}
			e.WaitsFor = waits
		}
		if opts.Long {
			e.Age = FormatAge(time.Since(j.SubmitTime), true)
		}
		entries = append(entries, e)
	}
	return entries, sess.Commit()
}

func filterJobs(jobs []*job.Job, filter ListFilter) []*job.Job {
	if len(filter.Names) == 0 && len(filter.Statuses) == 0 {
		return jobs
	}
	names := make(map[string]bool, len(filter.Names))
	for _, n := range filter.Names {
		names[n] = true
	}
	statuses := make(map[job.Status]bool, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statuses[st] = true
	}
	out := jobs[:0]
	for _, j := range jobs {
		if len(names) > 0 && !names[j.DisplayName()] {
			continue
		}
		if len(statuses) > 0 && !statuses[j.Status] {
			continue
		}
		out = append(out, j)
	}
	return out
}

// FormatAge renders d the way the original job manager's CLI listing
// did: escalating from seconds to weeks as the duration grows, either
// as a short "3h" token or the long form "3 hours".
func FormatAge(d time.Duration, short bool) string {
	diff := d.Seconds()
	unit := "s"
	if diff > 60 {
		unit = "m"
		diff /= 60
		if diff > 60 {
			unit = "h"
			diff /= 60
			if diff > 24 {
				unit = "d"
				diff /= 24
				if diff > 7 {
					unit = "w"
					diff /= 7
				}
			}
		}
	}
	value := int(diff + 0.5)
	if short {
		return fmt.Sprintf("%d%s", value, unit)
	}
	names := map[string]string{"s": "second", "m": "minute", "h": "hour", "d": "day", "w": "week"}
	plural := ""
	if value != 1 {
		plural = "s"
	}
	return fmt.Sprintf("%d %s%s", value, names[unit], plural)
}
