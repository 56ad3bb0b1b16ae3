package main

import (
	"github.com/spf13/cobra"

	"github.com/gridjobs/gridjob/wrapper"
)

func newRunJobCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "run-job",
		Short:  "Internal: execute the job named by JOB_ID/SGE_TASK_ID and record its result",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			externalID, taskIndex, err := wrapper.ParseEnv()
			if err != nil {
				return err
			}

			ctrl, closeCtrl, err := openController(cmd.Context())
			if err != nil {
				return err
			}
			defer closeCtrl()

			return ctrl.RunJob(cmd.Context(), externalID, taskIndex)
		},
	}
}
