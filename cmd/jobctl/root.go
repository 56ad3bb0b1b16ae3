package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gridjobs/gridjob"
	"github.com/gridjobs/gridjob/grid"
	"github.com/gridjobs/gridjob/local"
	"github.com/gridjobs/gridjob/store"
	"github.com/gridjobs/gridjob/wrapper"
)

// globalFlags holds the persistent flags shared by every subcommand.
type globalFlags struct {
	local    bool
	database string
}

var flags globalFlags

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "jobctl",
		Short:         "Submit, monitor and manage batch jobs against a local or grid backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&flags.local, "local", false, "use the local parallel scheduler instead of the grid backend")
	root.PersistentFlags().StringVar(&flags.database, "database", "submitted.sql3", "path to the job state file")

	root.AddCommand(
		newSubmitCmd(),
		newResubmitCmd(),
		newListCmd(),
		newReportCmd(),
		newStopCmd(),
		newDeleteCmd(),
		newRunSchedulerCmd(),
		newRunJobCmd(),
		newCommunicateCmd(),
	)
	return root
}

// openController opens the state store and wires up the Controller for
// the selected backend. The returned close function must be called
// once the command has finished, which commits the "remove empty state
// file" contract (store.Store.Close).
func openController(ctx context.Context) (*gridjob.Controller, func() error, error) {
	log := newLogger()
	st, err := store.Open(ctx, flags.database, log)
	if err != nil {
		return nil, nil, err
	}

	exe, err := os.Executable()
	if err != nil {
		_ = st.Close(ctx)
		return nil, nil, fmt.Errorf("jobctl: resolve own executable: %w", err)
	}

	var dispatcher gridjob.Dispatcher
	if flags.local {
		dispatcher = local.NewDispatcher(st, flags.database, log, wrapper.Run)
	} else {
		dispatcher = grid.NewBackend(st, flags.database, exe, log, wrapper.Run)
	}

	ctrl := gridjob.NewController(st, dispatcher, log)
	return ctrl, func() error { return st.Close(ctx) }, nil
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
