package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samvad-hq/samvad-publisher/internal/domain"
)

// The postgres backend expects these tables to exist (migrations live outside this service):
//
//	publishing_statuses(id text pk, article_id text, overall_status text, record jsonb,
//	                    created_at timestamptz, updated_at timestamptz)
//	queue_jobs(id text pk, article_id text, status text, priority_rank int,
//	           scheduled_for timestamptz null, created_at timestamptz,
//	           completed_at timestamptz null, record jsonb)
//	destination_refs(destination text, article_id text, remote_id text,
//	                 primary key (destination, article_id))
const (
	statusesTable = "publishing_statuses"
	jobsTable     = "queue_jobs"
	refsTable     = "destination_refs"
)

type postgresStore struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

func openPostgres(ctx context.Context, dsn string) (*postgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return &postgresStore{db: pool, sb: statementBuilder()}, nil
}

func statementBuilder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

func (p *postgresStore) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	p.db.Close()
	return nil
}

func (p *postgresStore) exec(ctx context.Context, b sq.Sqlizer, op string) (int64, error) {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s: %w", op, err)
	}
	tag, err := p.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected(), nil
}

func (p *postgresStore) queryRecords(ctx context.Context, b sq.Sqlizer, op string) ([][]byte, error) {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", op, err)
	}
	rows, err := p.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", op, err)
		}
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", op, err)
	}
	return out, nil
}

func (p *postgresStore) queryRecord(ctx context.Context, b sq.Sqlizer, op string) ([]byte, error) {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", op, err)
	}
	var raw []byte
	if err := p.db.QueryRow(ctx, sqlStr, args...).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return raw, nil
}

func upsertStatusQuery(sb sq.StatementBuilderType, s *domain.PublishingStatus, raw []byte) sq.InsertBuilder {
	return sb.Insert(statusesTable).
		Columns("id", "article_id", "overall_status", "record", "created_at", "updated_at").
		Values(s.ID, s.ArticleID, string(s.OverallStatus), raw, s.CreatedAt, s.UpdatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET overall_status = EXCLUDED.overall_status,
			record = EXCLUDED.record, updated_at = EXCLUDED.updated_at`)
}

func (p *postgresStore) SaveStatus(ctx context.Context, s *domain.PublishingStatus) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("status id is required")
	}
	raw, err := encode(s)
	if err != nil {
		return err
	}
	_, err = p.exec(ctx, upsertStatusQuery(p.sb, s, raw), "upsert status")
	return err
}

func (p *postgresStore) GetStatus(ctx context.Context, id string) (*domain.PublishingStatus, error) {
	q := p.sb.Select("record").From(statusesTable).Where(sq.Eq{"id": id})
	raw, err := p.queryRecord(ctx, q, "select status")
	if err != nil {
		return nil, fmt.Errorf("status %q: %w", id, err)
	}
	return decodeStatus(raw)
}

func (p *postgresStore) ListStatuses(ctx context.Context, articleID string) ([]domain.PublishingStatus, error) {
	q := p.sb.Select("record").From(statusesTable).
		Where(sq.Eq{"article_id": articleID}).
		OrderBy("created_at ASC")
	records, err := p.queryRecords(ctx, q, "list statuses")
	if err != nil {
		return nil, err
	}
	out := make([]domain.PublishingStatus, 0, len(records))
	for _, raw := range records {
		s, err := decodeStatus(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

func upsertJobQuery(sb sq.StatementBuilderType, j *domain.QueueJob, raw []byte) sq.InsertBuilder {
	return sb.Insert(jobsTable).
		Columns("id", "article_id", "status", "priority_rank", "scheduled_for", "created_at", "completed_at", "record").
		Values(j.ID, j.ArticleID, string(j.Status), j.Priority.Rank(), j.ScheduledFor, j.CreatedAt, j.CompletedAt, raw).
		Suffix(`ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status,
			priority_rank = EXCLUDED.priority_rank, scheduled_for = EXCLUDED.scheduled_for,
			completed_at = EXCLUDED.completed_at, record = EXCLUDED.record`)
}

func dueJobsQuery(sb sq.StatementBuilderType, now time.Time, limit int) sq.SelectBuilder {
	q := sb.Select("record").From(jobsTable).
		Where(sq.Eq{"status": string(domain.JobPending)}).
		Where(sq.Or{sq.Eq{"scheduled_for": nil}, sq.LtOrEq{"scheduled_for": now}}).
		OrderBy("priority_rank DESC", "created_at ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return q
}

func purgeCompletedQuery(sb sq.StatementBuilderType, before time.Time) sq.DeleteBuilder {
	return sb.Delete(jobsTable).
		Where(sq.Eq{"status": string(domain.JobCompleted)}).
		Where(sq.Expr("COALESCE(completed_at, created_at) < ?", before))
}

func processingJobsQuery(sb sq.StatementBuilderType) sq.SelectBuilder {
	return sb.Select("record").From(jobsTable).Where(sq.Eq{"status": string(domain.JobProcessing)})
}

func (p *postgresStore) SaveJob(ctx context.Context, j *domain.QueueJob) error {
	if j == nil || j.ID == "" {
		return fmt.Errorf("job id is required")
	}
	raw, err := encode(j)
	if err != nil {
		return err
	}
	_, err = p.exec(ctx, upsertJobQuery(p.sb, j, raw), "upsert job")
	return err
}

func (p *postgresStore) GetJob(ctx context.Context, id string) (*domain.QueueJob, error) {
	q := p.sb.Select("record").From(jobsTable).Where(sq.Eq{"id": id})
	raw, err := p.queryRecord(ctx, q, "select job")
	if err != nil {
		return nil, fmt.Errorf("job %q: %w", id, err)
	}
	return decodeJob(raw)
}

func (p *postgresStore) DueJobs(ctx context.Context, now time.Time, limit int) ([]domain.QueueJob, error) {
	records, err := p.queryRecords(ctx, dueJobsQuery(p.sb, now, limit), "select due jobs")
	if err != nil {
		return nil, err
	}
	out := make([]domain.QueueJob, 0, len(records))
	for _, raw := range records {
		j, err := decodeJob(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, nil
}

func (p *postgresStore) DeleteJob(ctx context.Context, id string) error {
	_, err := p.exec(ctx, p.sb.Delete(jobsTable).Where(sq.Eq{"id": id}), "delete job")
	return err
}

func (p *postgresStore) DeletePendingJobs(ctx context.Context, articleID string) (int, error) {
	q := p.sb.Delete(jobsTable).Where(sq.Eq{"article_id": articleID, "status": string(domain.JobPending)})
	n, err := p.exec(ctx, q, "delete pending jobs")
	return int(n), err
}

func (p *postgresStore) PurgeCompleted(ctx context.Context, before time.Time) (int, error) {
	n, err := p.exec(ctx, purgeCompletedQuery(p.sb, before), "purge completed jobs")
	return int(n), err
}

// RequeueStale filters leases in Go; started_at lives only in the record.
func (p *postgresStore) RequeueStale(ctx context.Context, leasedBefore time.Time) (int, error) {
	records, err := p.queryRecords(ctx, processingJobsQuery(p.sb), "select processing jobs")
	if err != nil {
		return 0, err
	}
	requeued := 0
	for _, raw := range records {
		j, err := decodeJob(raw)
		if err != nil {
			return requeued, err
		}
		if !stale(j, leasedBefore) {
			continue
		}
		release(j)
		if err := p.SaveJob(ctx, j); err != nil {
			return requeued, fmt.Errorf("requeue job %s: %w", j.ID, err)
		}
		requeued++
	}
	return requeued, nil
}

func (p *postgresStore) JobStats(ctx context.Context) (domain.QueueStats, error) {
	var stats domain.QueueStats

	sqlStr, args, err := p.sb.Select("status", "count(*)").From(jobsTable).GroupBy("status").ToSql()
	if err != nil {
		return stats, fmt.Errorf("build job stats: %w", err)
	}
	rows, err := p.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return stats, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("scan job stats: %w", err)
		}
		for i := 0; i < count; i++ {
			countJob(&stats, domain.JobStatus(status))
		}
	}
	return stats, rows.Err()
}

func (p *postgresStore) GetRef(ctx context.Context, destination, articleID string) (string, bool, error) {
	q := p.sb.Select("remote_id").From(refsTable).
		Where(sq.Eq{"destination": refDestination(destination), "article_id": articleID})
	raw, err := p.queryRecord(ctx, q, "select ref")
	if errors.Is(err, domain.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(raw), true, nil
}

func (p *postgresStore) PutRef(ctx context.Context, destination, articleID, remoteID string) error {
	q := p.sb.Insert(refsTable).
		Columns("destination", "article_id", "remote_id").
		Values(refDestination(destination), articleID, remoteID).
		Suffix("ON CONFLICT (destination, article_id) DO UPDATE SET remote_id = EXCLUDED.remote_id")
	_, err := p.exec(ctx, q, "upsert ref")
	return err
}

func (p *postgresStore) DeleteRef(ctx context.Context, destination, articleID string) error {
	q := p.sb.Delete(refsTable).Where(sq.Eq{"destination": refDestination(destination), "article_id": articleID})
	_, err := p.exec(ctx, q, "delete ref")
	return err
}
