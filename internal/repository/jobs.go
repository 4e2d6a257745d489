package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/docreader/constants"
	"github.com/joseph-ayodele/docreader/internal/common"
	"github.com/joseph-ayodele/docreader/internal/entity"
)

type JobRepository interface {
	Create(ctx context.Context, documentID uuid.UUID, kind constants.JobKind, options any, metadata map[string]any) (*entity.ProcessingJob, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.ProcessingJob, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.ProcessingJob, error)
	Start(ctx context.Context, id uuid.UUID) error
	// UpdateProgress raises progress and refreshes the heartbeat; it never lowers progress.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error
	// MergeMetadata adds keys to the job's diagnostic metadata.
	MergeMetadata(ctx context.Context, id uuid.UUID, metadata map[string]any) error
	Complete(ctx context.Context, id uuid.UUID) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
	// FailOpen fails every job of the document that has not finished yet.
	FailOpen(ctx context.Context, documentID uuid.UUID, message string) (int64, error)
	// MarkStuck flags ACTIVE jobs whose heartbeat is older than cutoff.
	MarkStuck(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}

type jobRepo struct {
	db  *DB
	log *slog.Logger
}

func NewJobRepository(db *DB, log *slog.Logger) JobRepository {
	return &jobRepo{db: db, log: log}
}

func jobStatusArgs(ss ...constants.JobStatus) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

func (r *jobRepo) Create(ctx context.Context, documentID uuid.UUID, kind constants.JobKind, options any, metadata map[string]any) (*entity.ProcessingJob, error) {
	var opts, meta entity.JSON
	if options != nil {
		b, err := json.Marshal(options)
		if err != nil {
			return nil, common.InvalidConfiguration("job options: " + err.Error())
		}
		opts = b
	}
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("encode job metadata: %w", err)
		}
		meta = b
	}
	ts := now()
	job := &entity.ProcessingJob{
		ID:         uuid.New(),
		DocumentID: documentID,
		Kind:       kind,
		Status:     constants.JobWaiting,
		Options:    opts,
		Metadata:   meta,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	q, args := entsql.Dialect(r.db.Dialect()).
		Insert(tableJobs).
		Columns("id", "document_id", "kind", "status", "progress", "options", "metadata", "created_at", "updated_at").
		Values(job.ID, job.DocumentID, string(job.Kind), string(job.Status), job.Progress, job.Options, job.Metadata, job.CreatedAt, job.UpdatedAt).
		Query()
	if err := r.db.Driver.Exec(ctx, q, args, nil); err != nil {
		r.log.Error("processing_job create failed", "document_id", documentID, "kind", kind, "err", err)
		return nil, fmt.Errorf("%w: create job: %w", common.ErrDatabase, err)
	}
	r.log.Info("processing_job created", "job_id", job.ID, "document_id", documentID, "kind", kind)
	return job, nil
}

func (r *jobRepo) selectJobs() *entsql.Selector {
	return entsql.Dialect(r.db.Dialect()).
		Select(columnNames(ProcessingJobsColumns)...).
		From(entsql.Table(tableJobs))
}

func (r *jobRepo) Get(ctx context.Context, id uuid.UUID) (*entity.ProcessingJob, error) {
	q, args := r.selectJobs().Where(entsql.EQ("id", id)).Limit(1).Query()
	jobs, err := queryAll[entity.ProcessingJob](ctx, r.db.Driver, q, args)
	if err != nil {
		return nil, fmt.Errorf("%w: load job: %w", common.ErrDatabase, err)
	}
	if len(jobs) == 0 {
		return nil, common.NotFound("job " + id.String() + " not found")
	}
	return &jobs[0], nil
}

func (r *jobRepo) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.ProcessingJob, error) {
	q, args := r.selectJobs().
		Where(entsql.EQ("document_id", documentID)).
		OrderBy(entsql.Desc("created_at")).
		Query()
	jobs, err := queryAll[entity.ProcessingJob](ctx, r.db.Driver, q, args)
	if err != nil {
		r.log.Error("processing_job list failed", "document_id", documentID, "err", err)
		return nil, fmt.Errorf("%w: list jobs: %w", common.ErrDatabase, err)
	}
	out := make([]*entity.ProcessingJob, len(jobs))
	for i := range jobs {
		out[i] = &jobs[i]
	}
	return out, nil
}

// update runs a conditional job update and turns a miss into NotFound or InvalidState.
func (r *jobRepo) update(ctx context.Context, id uuid.UUID, to constants.JobStatus, where *entsql.Predicate, upd func(*entsql.UpdateBuilder)) error {
	ub := entsql.Dialect(r.db.Dialect()).
		Update(tableJobs).
		Set("updated_at", now())
	if to != "" {
		ub.Set("status", string(to))
	}
	if upd != nil {
		upd(ub)
	}
	ub.Where(entsql.And(entsql.EQ("id", id), where))
	q, args := ub.Query()
	n, err := execAffected(ctx, r.db.Driver, q, args)
	if err != nil {
		r.log.Error("processing_job update failed", "job_id", id, "err", err)
		return fmt.Errorf("%w: update job: %w", common.ErrDatabase, err)
	}
	if n > 0 {
		return nil
	}
	cur, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return common.InvalidState(fmt.Sprintf("job %s is %s", id, cur.Status))
}

func (r *jobRepo) Start(ctx context.Context, id uuid.UUID) error {
	ts := now()
	err := r.update(ctx, id, constants.JobActive,
		entsql.In("status", jobStatusArgs(constants.JobWaiting, constants.JobDelayed)...),
		func(ub *entsql.UpdateBuilder) {
			ub.Set("started_at", ts).Set("progress", 0)
		})
	if err != nil {
		return err
	}
	r.log.Info("processing_job started", "job_id", id)
	return nil
}

func (r *jobRepo) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	if progress < 0 || progress > 100 {
		return common.InvalidConfigurationf("progress %d out of range", progress)
	}
	running := entsql.In("status", jobStatusArgs(constants.JobActive, constants.JobStuck)...)
	err := r.update(ctx, id, constants.JobActive,
		entsql.And(running, entsql.LTE("progress", progress)),
		func(ub *entsql.UpdateBuilder) { ub.Set("progress", progress) })
	if err == nil {
		r.log.Debug("processing_job progress", "job_id", id, "progress", progress)
		return nil
	}
	if !isInvalidState(err) {
		return err
	}
	// progress already past this point: only refresh the heartbeat
	return r.update(ctx, id, constants.JobActive, running, nil)
}

func (r *jobRepo) MergeMetadata(ctx context.Context, id uuid.UUID, metadata map[string]any) error {
	job, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	merged := job.MetadataMap()
	for k, v := range metadata {
		merged[k] = v
	}
	b, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode job metadata: %w", err)
	}
	return r.update(ctx, id, "", entsql.EQ("id", id), func(ub *entsql.UpdateBuilder) {
		ub.Set("metadata", entity.JSON(b))
	})
}

func (r *jobRepo) Complete(ctx context.Context, id uuid.UUID) error {
	err := r.update(ctx, id, constants.JobCompleted,
		entsql.In("status", jobStatusArgs(constants.JobActive, constants.JobStuck)...),
		func(ub *entsql.UpdateBuilder) {
			ub.Set("progress", 100).Set("completed_at", now()).SetNull("error")
		})
	if err != nil {
		return err
	}
	r.log.Info("processing_job completed", "job_id", id)
	return nil
}

func (r *jobRepo) Fail(ctx context.Context, id uuid.UUID, message string) error {
	err := r.update(ctx, id, constants.JobFailed,
		entsql.In("status", jobStatusArgs(constants.OpenJobStatuses...)...),
		func(ub *entsql.UpdateBuilder) {
			ub.Set("error", message).Set("completed_at", now())
		})
	if err != nil {
		return err
	}
	r.log.Warn("processing_job failed", "job_id", id, "error", message)
	return nil
}

func (r *jobRepo) FailOpen(ctx context.Context, documentID uuid.UUID, message string) (int64, error) {
	ts := now()
	q, args := entsql.Dialect(r.db.Dialect()).
		Update(tableJobs).
		Set("status", string(constants.JobFailed)).
		Set("error", message).
		Set("completed_at", ts).
		Set("updated_at", ts).
		Where(entsql.And(
			entsql.EQ("document_id", documentID),
			entsql.In("status", jobStatusArgs(constants.OpenJobStatuses...)...),
		)).
		Query()
	n, err := execAffected(ctx, r.db.Driver, q, args)
	if err != nil {
		r.log.Error("processing_job fail-open failed", "document_id", documentID, "err", err)
		return 0, fmt.Errorf("%w: fail open jobs: %w", common.ErrDatabase, err)
	}
	r.log.Info("open processing_jobs failed", "document_id", documentID, "count", n, "error", message)
	return n, nil
}

func (r *jobRepo) MarkStuck(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	sel := entsql.Dialect(r.db.Dialect()).
		Select("id").
		From(entsql.Table(tableJobs)).
		Where(entsql.And(
			entsql.EQ("status", string(constants.JobActive)),
			entsql.LT("updated_at", cutoff.UTC()),
		))
	q, args := sel.Query()
	rows, err := queryAll[uuid.UUID](ctx, r.db.Driver, q, args)
	if err != nil {
		return nil, fmt.Errorf("%w: find stale jobs: %w", common.ErrDatabase, err)
	}

	var stuck []uuid.UUID
	for _, id := range rows {
		// a heartbeat between the select and here keeps the job ACTIVE
		err := r.update(ctx, id, constants.JobStuck,
			entsql.And(entsql.EQ("status", string(constants.JobActive)), entsql.LT("updated_at", cutoff.UTC())),
			nil)
		if err != nil {
			if isInvalidState(err) {
				continue
			}
			return stuck, err
		}
		r.log.Warn("processing_job marked stuck", "job_id", id, "cutoff", cutoff)
		stuck = append(stuck, id)
	}
	return stuck, nil
}
