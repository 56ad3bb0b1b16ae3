package store

import (
	"context"
)

// UpdateCommand overwrites a job's stored command argv, used by
// `resubmit --overwrite-command`.
func (s *Session) UpdateCommand(ctx context.Context, jobID int64, command []string) error {
	res, err := s.tx.NewUpdate().Model((*jobModel)(nil)).
		Set("command = ?", command).
		Where("unique_id = ?", jobID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if !isAffected(res) {
		return ErrNotFound
	}
	return nil
}

// MergeGridArguments merges extra into a job's stored grid arguments,
// with extra taking precedence on key conflicts, used to apply
// `resubmit`'s grid option overrides.
func (s *Session) MergeGridArguments(ctx context.Context, jobID int64, extra map[string]string) error {
	if len(extra) == 0 {
		return nil
	}
	j, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	merged := make(map[string]string, len(j.GridArguments)+len(extra))
	for k, v := range j.GridArguments {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	res, err := s.tx.NewUpdate().Model((*jobModel)(nil)).
		Set("grid_arguments = ?", merged).
		Where("unique_id = ?", jobID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if !isAffected(res) {
		return ErrNotFound
	}
	return nil
}

// SetQueueName overwrites a job's queue_name, used by the grid backend
// once qstat confirms the actual queue a submission landed on.
func (s *Session) SetQueueName(ctx context.Context, jobID int64, queueName string) error {
	res, err := s.tx.NewUpdate().Model((*jobModel)(nil)).
		Set("queue_name = ?", queueName).
		Where("unique_id = ?", jobID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if !isAffected(res) {
		return ErrNotFound
	}
	return nil
}

// SetExternalID overwrites a job's external_id, used by the grid
// backend once qsub reports the real SGE job id.
func (s *Session) SetExternalID(ctx context.Context, jobID, externalID int64) error {
	res, err := s.tx.NewUpdate().Model((*jobModel)(nil)).
		Set("external_id = ?", externalID).
		Where("unique_id = ?", jobID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if !isAffected(res) {
		return ErrNotFound
	}
	return nil
}
