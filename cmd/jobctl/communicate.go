package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridjobs/gridjob"
)

func newCommunicateCmd() *cobra.Command {
	var jobIDs string

	cmd := &cobra.Command{
		Use:   "communicate",
		Short: "Poll qstat for non-terminal grid jobs and mark vanished ones as failed (grid only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := gridjob.ParseIDs(jobIDs)
			if err != nil {
				return fmt.Errorf("communicate: --job-ids: %w", err)
			}

			ctrl, closeCtrl, err := openController(cmd.Context())
			if err != nil {
				return err
			}
			defer closeCtrl()

			return ctrl.Communicate(cmd.Context(), ids)
		},
	}

	cmd.Flags().StringVar(&jobIDs, "job-ids", "", "restrict polling to this id selection; empty means every non-terminal grid job")
	return cmd
}
