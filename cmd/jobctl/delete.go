package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridjobs/gridjob"
	"github.com/gridjobs/gridjob/store"
)

func newDeleteCmd() *cobra.Command {
	var (
		jobIDs     string
		arrayIDs   []int
		keepLogs   bool
		keepLogDir bool
		statuses   []string
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove jobs (and their captured logs) from the state file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := gridjob.ParseIDs(jobIDs)
			if err != nil {
				return fmt.Errorf("delete: --job-ids: %w", err)
			}
			if len(ids) == 0 {
				return fmt.Errorf("delete: --job-ids is required")
			}
			statusFilter, err := parseStatuses(statuses)
			if err != nil {
				return fmt.Errorf("delete: --status: %w", err)
			}

			ctrl, closeCtrl, err := openController(cmd.Context())
			if err != nil {
				return err
			}
			defer closeCtrl()

			jobs, err := ctrl.Delete(cmd.Context(), store.DeleteParams{
				IDs:      ids,
				ArrayIDs: arrayIDs,
				// Logs (and, in turn, an emptied log directory) are removed
				// by default, the way this deletes jobs by default; the
				// flags opt back out of that.
				AlsoLogs:     !keepLogs,
				AlsoLogDir:   !keepLogDir,
				StatusFilter: statusFilter,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d job(s)\n", len(jobs))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&jobIDs, "job-ids", "", "id selection to delete, e.g. 1-3+7")
	f.IntSliceVar(&arrayIDs, "array-ids", nil, "restrict to these array task indices")
	f.BoolVar(&keepLogs, "keep-logs", false, "do not remove captured stdout/stderr files")
	f.BoolVar(&keepLogDir, "keep-log-dir", false, "do not remove the log directory even if it becomes empty")
	f.StringArrayVar(&statuses, "status", nil, "only delete jobs in one of these statuses")
	return cmd
}
