package store

import (
	"context"
	"errors"

	"github.com/uptrace/bun"
)

func createTables(ctx context.Context, db bun.IDB) error {
	if _, err := db.NewCreateTable().Model((*jobModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	if _, err := db.NewCreateTable().Model((*arrayTaskModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	if _, err := db.NewCreateTable().Model((*dependencyModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	return nil
}

func createIndexes(ctx context.Context, db bun.IDB) error {
	steps := []struct {
		model any
		name  string
		cols  []string
		uniq  bool
	}{
		{(*jobModel)(nil), "idx_jobs_status", []string{"status"}, false},
		{(*jobModel)(nil), "idx_jobs_status_queue", []string{"status", "queue_name"}, false},
		{(*jobModel)(nil), "idx_jobs_external_id", []string{"external_id"}, false},
		{(*arrayTaskModel)(nil), "idx_array_tasks_job_status", []string{"job_id", "status"}, false},
		{(*dependencyModel)(nil), "idx_dependencies_waiter", []string{"waiter_id"}, false},
		{(*dependencyModel)(nil), "idx_dependencies_waited", []string{"waited_id"}, false},
		{(*dependencyModel)(nil), "idx_dependencies_pair", []string{"waiter_id", "waited_id"}, true},
	}
	for _, s := range steps {
		q := db.NewCreateIndex().
			Model(s.model).
			Index(s.name).
			Column(s.cols...).
			IfNotExists()
		if s.uniq {
			q = q.Unique()
		}
		if _, err := q.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(ctx context.Context, db *bun.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := createTables(ctx, tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := createIndexes(ctx, tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	return tx.Commit()
}

// InitDB initializes the jobs/array_tasks/dependencies schema and its
// indexes inside a single transaction. It is idempotent and may be
// called multiple times safely; it never drops or alters existing
// tables beyond creating missing objects.
func InitDB(ctx context.Context, db *bun.DB) error {
	return initSchema(ctx, db)
}

// MustInitDB behaves like InitDB but panics if initialization fails,
// for use in bootstrap code where a broken schema is unrecoverable.
func MustInitDB(ctx context.Context, db *bun.DB) {
	if err := initSchema(ctx, db); err != nil {
		panic(err)
	}
}
