package store

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/gridjobs/gridjob/job"
)

// jobModel is the bun row type backing the jobs table. Command and
// GridArguments are stored as JSON, the same way the gqs teacher's
// jobModel stores Metadata with a `type:jsonb` tag.
type jobModel struct {
	bun.BaseModel `bun:"table:jobs"`

	UniqueID   int64 `bun:"unique_id,pk,autoincrement"`
	ExternalID int64 `bun:"external_id,notnull"`

	Name    string   `bun:"name,notnull"`
	Command []string `bun:"command,type:jsonb,notnull"`

	ExecDir *string `bun:"exec_dir"`
	LogDir  *string `bun:"log_dir"`

	ArrayFirst *int `bun:"array_first"`
	ArrayLast  *int `bun:"array_last"`
	ArrayStep  *int `bun:"array_step"`

	QueueName     string            `bun:"queue_name,notnull,default:'local'"`
	MachineName   *string           `bun:"machine_name"`
	GridArguments map[string]string `bun:"grid_arguments,type:jsonb"`
	StopOnFailure bool              `bun:"stop_on_failure,notnull,default:false"`

	Status job.Status `bun:"status,notnull"`
	Result *int       `bun:"result"`

	SubmitTime time.Time  `bun:"submit_time,notnull"`
	StartTime  *time.Time `bun:"start_time"`
	FinishTime *time.Time `bun:"finish_time"`
}

func (jm *jobModel) toJob() *job.Job {
	ret := &job.Job{
		UniqueID:      jm.UniqueID,
		ExternalID:    jm.ExternalID,
		Name:          jm.Name,
		Command:       jm.Command,
		ExecDir:       jm.ExecDir,
		LogDir:        jm.LogDir,
		QueueName:     jm.QueueName,
		MachineName:   jm.MachineName,
		GridArguments: jm.GridArguments,
		StopOnFailure: jm.StopOnFailure,
		Status:        jm.Status,
		Result:        jm.Result,
		SubmitTime:    jm.SubmitTime,
		StartTime:     jm.StartTime,
		FinishTime:    jm.FinishTime,
	}
	if jm.ArrayFirst != nil && jm.ArrayLast != nil && jm.ArrayStep != nil {
		ret.Array = &job.ArraySpec{
			First: *jm.ArrayFirst,
			Last:  *jm.ArrayLast,
			Step:  *jm.ArrayStep,
		}
	}
	return ret
}

// arrayTaskModel is the bun row type backing the array_tasks table.
type arrayTaskModel struct {
	bun.BaseModel `bun:"table:array_tasks"`

	JobID int64 `bun:"job_id,pk"`
	Index int   `bun:"index,pk"`

	Status      job.Status `bun:"status,notnull"`
	Result      *int       `bun:"result"`
	MachineName *string    `bun:"machine_name"`

	SubmitTime time.Time  `bun:"submit_time,notnull"`
	StartTime  *time.Time `bun:"start_time"`
	FinishTime *time.Time `bun:"finish_time"`
}

func (tm *arrayTaskModel) toTask() *job.ArrayTask {
	return &job.ArrayTask{
		JobID:       tm.JobID,
		Index:       tm.Index,
		Status:      tm.Status,
		Result:      tm.Result,
		MachineName: tm.MachineName,
		SubmitTime:  tm.SubmitTime,
		StartTime:   tm.StartTime,
		FinishTime:  tm.FinishTime,
	}
}

// dependencyModel is the bun row type backing the dependencies table: a
// directed edge meaning WaiterID cannot leave Waiting until WaitedID is
// terminal.
type dependencyModel struct {
	bun.BaseModel `bun:"table:dependencies"`

	ID       int64 `bun:"id,pk,autoincrement"`
	WaiterID int64 `bun:"waiter_id,notnull"`
	WaitedID int64 `bun:"waited_id,notnull"`
}
