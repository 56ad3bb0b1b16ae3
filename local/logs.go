package local

import (
	"io"
	"os"

	"github.com/gridjobs/gridjob/store"
)

// openLogs opens the stdout/stderr capture files for a claimed unit, or
// falls back to the scheduler's own streams when no log directory is
// configured for the job or NoLogFiles is set. The returned close
// function is always safe to call and never returns an error worth
// surfacing to the caller beyond a log line.
func (s *Scheduler) openLogs(u store.ClaimedUnit) (io.Writer, io.Writer, func()) {
	if s.cfg.NoLogFiles {
		return os.Stdout, os.Stderr, func() {}
	}
	outPath, errPath, ok := u.Job.LogPaths(u.Task)
	if !ok {
		return os.Stdout, os.Stderr, func() {}
	}

	outFile, err := os.Create(outPath)
	if err != nil {
		s.log.Error("could not open stdout log", "job_id", u.Job.UniqueID, "path", outPath, "err", err)
		return os.Stdout, os.Stderr, func() {}
	}
	errFile, err := os.Create(errPath)
	if err != nil {
		s.log.Error("could not open stderr log", "job_id", u.Job.UniqueID, "path", errPath, "err", err)
		_ = outFile.Close()
		return os.Stdout, os.Stderr, func() {}
	}
	return outFile, errFile, func() {
		_ = outFile.Close()
		_ = errFile.Close()
	}
}
