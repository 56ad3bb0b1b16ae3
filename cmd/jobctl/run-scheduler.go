package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridjobs/gridjob"
)

func newRunSchedulerCmd() *cobra.Command {
	var (
		parallel        int
		jobIDs          string
		sleepSeconds    int
		dieWhenFinished bool
		noLogFiles      bool
		nice            int
	)

	cmd := &cobra.Command{
		Use:   "run-scheduler",
		Short: "Run the local admit/dispatch/reap loop (local only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := gridjob.ParseIDs(jobIDs)
			if err != nil {
				return fmt.Errorf("run-scheduler: --job-ids: %w", err)
			}

			ctrl, closeCtrl, err := openController(cmd.Context())
			if err != nil {
				return err
			}
			defer closeCtrl()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return ctrl.RunScheduler(ctx, gridjob.SchedulerOptions{
				Parallel:        parallel,
				JobIDs:          ids,
				SleepTime:       time.Duration(sleepSeconds) * time.Second,
				DieWhenFinished: dieWhenFinished,
				NoLogFiles:      noLogFiles,
				Nice:            nice,
			})
		},
	}

	f := cmd.Flags()
	f.IntVar(&parallel, "parallel", 1, "maximum concurrently executing jobs")
	f.StringVar(&jobIDs, "job-ids", "", "restrict admission to this id selection, e.g. 1-3+7")
	f.IntVar(&sleepSeconds, "sleep-time", 5, "seconds to sleep between admit/reap passes")
	f.BoolVar(&dieWhenFinished, "die-when-finished", false, "exit once no job is waiting, queued or executing")
	f.BoolVar(&noLogFiles, "no-log-files", false, "stream child stdout/stderr to the scheduler's own instead of capturing to files")
	f.IntVar(&nice, "nice", 0, "niceness applied to child processes")
	return cmd
}
