package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridjobs/gridjob"
	"github.com/gridjobs/gridjob/job"
)

func newListCmd() *cobra.Command {
	var (
		jobIDs            string
		names             []string
		statuses          []string
		printArrayJobs    bool
		printDependencies bool
		printTimes        bool
		long              bool
		idsOnly           bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Tabular job status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := gridjob.ParseIDs(jobIDs)
			if err != nil {
				return fmt.Errorf("list: --job-ids: %w", err)
			}
			statusFilter, err := parseStatuses(statuses)
			if err != nil {
				return fmt.Errorf("list: --status: %w", err)
			}

			ctrl, closeCtrl, err := openController(cmd.Context())
			if err != nil {
				return err
			}
			defer closeCtrl()

			entries, err := ctrl.List(cmd.Context(),
				gridjob.ListFilter{IDs: ids, Names: names, Statuses: statusFilter},
				gridjob.ListOptions{
					PrintArrayJobs:    printArrayJobs,
					PrintDependencies: printDependencies,
					PrintTimes:        printTimes,
					Long:              long,
					IDsOnly:           idsOnly,
				})
			if err != nil {
				return err
			}
			printEntries(cmd, entries, idsOnly, printTimes, printArrayJobs, printDependencies)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&jobIDs, "job-ids", "", "id selection to list, e.g. 1-3+7")
	f.StringArrayVar(&names, "names", nil, "only list jobs with one of these names")
	f.StringArrayVar(&statuses, "status", nil, "only list jobs in one of these statuses")
	f.BoolVar(&printArrayJobs, "print-array-jobs", false, "also print each array job's task statuses")
	f.BoolVar(&printDependencies, "print-dependencies", false, "also print each job's waited-for jobs")
	f.BoolVar(&printTimes, "print-times", false, "also print submit/start/finish timestamps")
	f.BoolVar(&long, "long", false, "multi-line form with job age")
	f.BoolVar(&idsOnly, "ids-only", false, "print only unique ids, one per line")
	return cmd
}

func parseStatuses(raw []string) ([]job.Status, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]job.Status, 0, len(raw))
	for _, s := range raw {
		st, err := job.ParseStatus(strings.ToLower(s))
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func printEntries(cmd *cobra.Command, entries []*gridjob.ListEntry, idsOnly, printTimes, printArrayJobs, printDependencies bool) {
	out := cmd.OutOrStdout()
	for _, e := range entries {
		if idsOnly {
			fmt.Fprintln(out, e.Job.UniqueID)
			continue
		}
		line := fmt.Sprintf("%d\t%s\t%s\t%s", e.Job.UniqueID, e.Job.DisplayName(), e.Job.Status, e.Job.QueueName)
		if e.Age != "" {
			line += "\t" + e.Age
		}
		fmt.Fprintln(out, line)
		if printTimes {
			fmt.Fprintf(out, "\tsubmitted=%s start=%s finish=%s\n",
				e.Job.SubmitTime.Format("2006-01-02T15:04:05"), formatTimePtr(e.Job.StartTime), formatTimePtr(e.Job.FinishTime))
		}
		if printArrayJobs {
			for _, t := range e.Tasks {
				fmt.Fprintf(out, "\t[%d] %s result=%s\n", t.Index, t.Status, formatIntPtr(t.Result))
			}
		}
		if printDependencies {
			for _, w := range e.WaitsFor {
				fmt.Fprintf(out, "\twaits for %d (%s)\n", w.UniqueID, w.Status)
			}
		}
	}
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02T15:04:05")
}

func formatIntPtr(i *int) string {
	if i == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *i)
}
