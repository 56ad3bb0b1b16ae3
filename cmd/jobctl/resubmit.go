package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridjobs/gridjob"
)

func newResubmitCmd() *cobra.Command {
	var (
		jobIDs           string
		alsoSuccess      bool
		runningJobs      bool
		keepLogs         bool
		overwriteCommand []string
		environment      []string
		queue            string
	)

	cmd := &cobra.Command{
		Use:   "resubmit",
		Short: "Re-queue finished or failed jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := gridjob.ParseIDs(jobIDs)
			if err != nil {
				return fmt.Errorf("resubmit: --job-ids: %w", err)
			}
			overrides, err := parseEnvironment(environment)
			if err != nil {
				return fmt.Errorf("resubmit: --environment: %w", err)
			}
			if queue != "" {
				if overrides == nil {
					overrides = map[string]string{}
				}
				overrides["queue"] = queue
			}

			ctrl, closeCtrl, err := openController(cmd.Context())
			if err != nil {
				return err
			}
			defer closeCtrl()

			jobs, err := ctrl.Resubmit(cmd.Context(), gridjob.ResubmitOptions{
				IDs:              ids,
				AlsoSuccess:      alsoSuccess,
				RunningJobs:      runningJobs,
				KeepLogs:         keepLogs,
				OverwriteCommand: overwriteCommand,
				NewGridArguments: overrides,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resubmitted %d job(s)\n", len(jobs))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&jobIDs, "job-ids", "", "id selection to resubmit, e.g. 1-3+7")
	f.BoolVar(&alsoSuccess, "also-success", false, "also resubmit already-successful jobs")
	f.BoolVar(&runningJobs, "running-jobs", false, "also resubmit jobs still queued/waiting/executing, canceling them first")
	f.BoolVar(&keepLogs, "keep-logs", false, "keep existing captured log files instead of clearing them")
	f.StringArrayVar(&overwriteCommand, "overwrite-command", nil, "replace the selected job's command (requires exactly one job id)")
	f.StringArrayVar(&environment, "environment", nil, "KEY=VALUE grid argument override, repeatable")
	f.StringVar(&queue, "queue", "", "grid queue override")
	return cmd
}
