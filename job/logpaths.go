package job

import "fmt"

// LogPaths returns the stdout/stderr capture file paths for this job (or,
// when taskIndex is non-nil, one of its array tasks), following the
// <log_dir>/<name>.o<external_id>[.<index>] / .e<external_id>[.<index>]
// convention. ok is false when the job has no LogDir configured, in
// which case stdout/stderr are inherited rather than captured to a file.
func (j *Job) LogPaths(taskIndex *int) (stdout, stderr string, ok bool) {
	if j.LogDir == nil {
		return "", "", false
	}
	suffix := fmt.Sprintf("%d", j.ExternalID)
	if taskIndex != nil {
		suffix = fmt.Sprintf("%d.%d", j.ExternalID, *taskIndex)
	}
	name := j.DisplayName()
	return fmt.Sprintf("%s/%s.o%s", *j.LogDir, name, suffix),
		fmt.Sprintf("%s/%s.e%s", *j.LogDir, name, suffix),
		true
}
