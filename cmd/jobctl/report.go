package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridjobs/gridjob"
)

func newReportCmd() *cobra.Command {
	var (
		jobIDs     string
		arrayIDs   []int
		statuses   []string
		errorsOnly bool
		outputOnly bool
		name       string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Concatenate captured stdout/stderr logs for matching jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := gridjob.ParseIDs(jobIDs)
			if err != nil {
				return fmt.Errorf("report: --job-ids: %w", err)
			}
			statusFilter, err := parseStatuses(statuses)
			if err != nil {
				return fmt.Errorf("report: --status: %w", err)
			}

			ctrl, closeCtrl, err := openController(cmd.Context())
			if err != nil {
				return err
			}
			defer closeCtrl()

			entries, err := ctrl.Report(cmd.Context(), gridjob.ReportFilter{
				IDs:        ids,
				ArrayIDs:   arrayIDs,
				Statuses:   statusFilter,
				Name:       name,
				ErrorsOnly: errorsOnly,
				OutputOnly: outputOnly,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "==> job %d %s (%s) <==\n", e.JobID, e.Stream, e.Path)
				out.Write(e.Body)
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&jobIDs, "job-ids", "", "id selection to report, e.g. 1-3+7")
	f.IntSliceVar(&arrayIDs, "array-ids", nil, "restrict to these array task indices")
	f.StringArrayVar(&statuses, "status", nil, "only report jobs in one of these statuses")
	f.BoolVar(&errorsOnly, "errors-only", false, "only include captured stderr")
	f.BoolVar(&outputOnly, "output-only", false, "only include captured stdout")
	f.StringVar(&name, "name", "", "only report jobs with this name")
	return cmd
}
