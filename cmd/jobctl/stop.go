package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridjobs/gridjob"
)

func newStopCmd() *cobra.Command {
	var jobIDs string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "qdel a running grid job and revert it to submitted (grid only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := gridjob.ParseIDs(jobIDs)
			if err != nil {
				return fmt.Errorf("stop: --job-ids: %w", err)
			}
			if len(ids) == 0 {
				return fmt.Errorf("stop: --job-ids is required")
			}

			ctrl, closeCtrl, err := openController(cmd.Context())
			if err != nil {
				return err
			}
			defer closeCtrl()

			results, err := ctrl.Stop(cmd.Context(), ids)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range results {
				fmt.Fprintf(out, "job %d: live=%v tasks=%v\n", r.JobID, r.JobWasLive, r.LiveTaskIndex)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&jobIDs, "job-ids", "", "id selection to stop, e.g. 1-3+7")
	return cmd
}
