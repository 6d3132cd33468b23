package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/azhengyongqin/analysis-hub/internal/model"
)

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

var _ TaskRepository = (*TaskRepo)(nil)

func (r *TaskRepo) Upsert(ctx context.Context, t model.Task) error {
	if t.TaskID == "" {
		return errors.New("task_id 不能为空")
	}
	var meta []byte
	if len(t.Metadata) > 0 {
		b, err := json.Marshal(t.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		meta = b
	}
	_, err := r.pool.Exec(ctx, `
insert into analysis_task(task_id, dataset_id, analysis_type, target_id, status, progress, message, metadata, error, started_at, completed_at, created_at, updated_at)
values ($1,$2,$3,nullif($4,''),$5,$6,nullif($7,''),$8,nullif($9,''),$10,$11,$12,now())
on conflict (task_id) do update
set status = excluded.status,
    progress = excluded.progress,
    message = excluded.message,
    metadata = excluded.metadata,
    error = excluded.error,
    started_at = excluded.started_at,
    completed_at = excluded.completed_at,
    updated_at = now()
`, t.TaskID, t.DatasetID, string(t.AnalysisType), t.TargetID, string(t.Status), t.Progress, t.Message, meta, t.Error, t.StartedAt, t.CompletedAt, t.CreatedAt)
	return err
}

const selectColumns = `task_id, dataset_id, analysis_type, coalesce(target_id,''), status, progress, coalesce(message,''), metadata, coalesce(error,''), started_at, completed_at, created_at, updated_at`

func scanTask(row pgx.Row) (model.Task, error) {
	var (
		t        model.Task
		typ, st  string
		metadata []byte
	)
	if err := row.Scan(&t.TaskID, &t.DatasetID, &typ, &t.TargetID, &st, &t.Progress, &t.Message, &metadata, &t.Error, &t.StartedAt, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return model.Task{}, err
	}
	t.AnalysisType = model.AnalysisType(typ)
	t.Status = model.TaskStatus(st)
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &t.Metadata)
	}
	return t, nil
}

func (r *TaskRepo) Get(ctx context.Context, taskID string) (model.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `select `+selectColumns+` from analysis_task where task_id=$1`, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Task{}, ErrNotFound
	}
	return t, err
}

func (r *TaskRepo) List(ctx context.Context, f ListFilter) ([]model.Task, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(ctx, `select `+selectColumns+`
from analysis_task
where ($1='' or dataset_id=$1)
  and ($2='' or analysis_type=$2)
  and ($3='' or status=$3)
order by created_at desc
limit $4 offset $5
`, f.DatasetID, f.AnalysisType, f.Status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TaskRepo) CountByStatus(ctx context.Context, datasetID string) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
select status, count(*) as cnt
from analysis_task
where dataset_id = $1
group by status
`, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[status] = count
	}
	return out, rows.Err()
}
