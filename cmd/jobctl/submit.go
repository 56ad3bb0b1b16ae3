package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gridjobs/gridjob"
	"github.com/gridjobs/gridjob/job"
)

func newSubmitCmd() *cobra.Command {
	var (
		queue         string
		memory        string
		parallel      int
		name          string
		dependencies  string
		execDir       string
		logDir        string
		environment   []string
		array         string
		ioBig         bool
		stopOnFailure bool
		dryRun        bool
		printID       bool
		extraArgs     []string
	)

	cmd := &cobra.Command{
		Use:   "submit -- command [args...]",
		Short: "Record and dispatch a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			command := args
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				command = args[dash:]
			}
			if len(command) == 0 {
				return fmt.Errorf("submit: no command given after --")
			}

			deps, err := parseIDList(dependencies)
			if err != nil {
				return fmt.Errorf("submit: --dependencies: %w", err)
			}
			arraySpec, err := parseArraySpec(array)
			if err != nil {
				return fmt.Errorf("submit: --array: %w", err)
			}
			env, err := parseEnvironment(environment)
			if err != nil {
				return fmt.Errorf("submit: --environment: %w", err)
			}

			req := gridjob.SubmitRequest{
				Command:       command,
				Name:          name,
				Dependencies:  deps,
				Array:         arraySpec,
				ExecDir:       nonEmptyPtr(execDir),
				LogDir:        nonEmptyPtr(logDir),
				Environment:   env,
				QueueName:     queue,
				Memory:        memory,
				Parallel:      parallel,
				IOBig:         ioBig,
				StopOnFailure: stopOnFailure,
				GridExtraArgs: extraArgs,
				DryRun:        dryRun,
			}

			ctrl, closeCtrl, err := openController(cmd.Context())
			if err != nil {
				return err
			}
			defer closeCtrl()

			j, err := ctrl.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "would submit: %s\n", strings.Join(j.Command, " "))
				return nil
			}
			if printID {
				fmt.Fprintln(cmd.OutOrStdout(), j.UniqueID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "submitted job %d (%s)\n", j.UniqueID, j.DisplayName())
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&queue, "queue", "", "grid queue name")
	f.StringVar(&memory, "memory", "", "memory request (sets mem_free and h_vmem)")
	f.IntVar(&parallel, "parallel", 0, "parallel-environment slot request")
	f.StringVar(&name, "name", "", "job name")
	f.StringVar(&dependencies, "dependencies", "", "id selection this job waits for, e.g. 1-3+7")
	f.StringVar(&execDir, "exec-dir", "", "working directory for the command")
	f.StringVar(&logDir, "log-dir", "", "directory for captured stdout/stderr")
	f.StringArrayVar(&environment, "environment", nil, "KEY=VALUE environment passthrough, repeatable")
	f.StringVar(&array, "array", "", "parametric range first-last:step")
	f.BoolVar(&ioBig, "io-big", false, "request the io_big grid resource")
	f.BoolVar(&stopOnFailure, "stop-on-failure", false, "stop dependents transitively if this job fails")
	f.BoolVar(&dryRun, "dry-run", false, "print what would be submitted without recording it")
	f.BoolVar(&printID, "print-id", false, "print only the new job's id")
	f.StringArrayVar(&extraArgs, "grid-extra-args", nil, "extra qsub arguments appended verbatim, repeatable")
	return cmd
}

func parseIDList(spec string) ([]int64, error) {
	return gridjob.ParseIDs(spec)
}

func parseArraySpec(spec string) (*job.ArraySpec, error) {
	if spec == "" {
		return nil, nil
	}
	rest := spec
	step := 1
	if idx := strings.Index(spec, ":"); idx >= 0 {
		rest = spec[:idx]
		s, err := strconv.Atoi(spec[idx+1:])
		if err != nil {
			return nil, fmt.Errorf("bad step in %q: %w", spec, err)
		}
		step = s
	}
	idx := strings.Index(rest, "-")
	if idx <= 0 {
		return nil, fmt.Errorf("expected first-last[:step], got %q", spec)
	}
	first, err := strconv.Atoi(rest[:idx])
	if err != nil {
		return nil, fmt.Errorf("bad first index in %q: %w", spec, err)
	}
	last, err := strconv.Atoi(rest[idx+1:])
	if err != nil {
		return nil, fmt.Errorf("bad last index in %q: %w", spec, err)
	}
	return &job.ArraySpec{First: first, Last: last, Step: step}, nil
}

func parseEnvironment(kvs []string) (map[string]string, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		idx := strings.Index(kv, "=")
		if idx <= 0 {
			return nil, fmt.Errorf("expected KEY=VALUE, got %q", kv)
		}
		out[kv[:idx]] = kv[idx+1:]
	}
	return out, nil
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
