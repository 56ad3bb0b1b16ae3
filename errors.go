package gridjob

import "errors"

var (
	// ErrUnsupported is returned when an operation is invoked against a
	// Dispatcher that does not implement it (e.g. Communicate against
	// the local backend, or RunScheduler against the grid backend).
	ErrUnsupported = errors.New("gridjob: operation not supported by this backend")

	// ErrAmbiguousOverwrite is returned by Resubmit when
	// --overwrite-command is given together with --also-success or a
	// selection spanning more than one job: overwriting a command only
	// makes sense for a single, explicitly chosen job.
	ErrAmbiguousOverwrite = errors.New("gridjob: --overwrite-command requires exactly one job id and no --also-success")
)
