package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-publisher/internal/domain"
)

func TestDueJobsQuery(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sqlStr, args, err := dueJobsQuery(statementBuilder(), now, 10).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}
	for _, frag := range []string{
		"FROM queue_jobs",
		"status = $1",
		"scheduled_for IS NULL OR scheduled_for <= $2",
		"ORDER BY priority_rank DESC, created_at ASC",
		"LIMIT 10",
	} {
		if !strings.Contains(sqlStr, frag) {
			t.Errorf("query %q missing %q", sqlStr, frag)
		}
	}
	if len(args) != 2 || args[0] != "pending" {
		t.Fatalf("unexpected args %#v", args)
	}
}

func TestPurgeCompletedQuery(t *testing.T) {
	sqlStr, args, err := purgeCompletedQuery(statementBuilder(), time.Now()).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}
	if !strings.HasPrefix(sqlStr, "DELETE FROM queue_jobs") || !strings.Contains(sqlStr, "COALESCE(completed_at, created_at) < $2") {
		t.Fatalf("unexpected query %q", sqlStr)
	}
	if args[0] != "completed" {
		t.Fatalf("purge must target completed jobs only, args %#v", args)
	}
}

func TestUpsertJobQueryUsesPriorityRank(t *testing.T) {
	job := &domain.QueueJob{ID: "j1", ArticleID: "a1", Status: domain.JobPending, Priority: domain.PriorityUrgent}
	sqlStr, args, err := upsertJobQuery(statementBuilder(), job, []byte(`{}`)).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}
	if !strings.Contains(sqlStr, "ON CONFLICT (id) DO UPDATE") {
		t.Fatalf("expected upsert, got %q", sqlStr)
	}
	if args[3] != 3 {
		t.Fatalf("priority_rank arg = %v want 3", args[3])
	}
}

func TestProcessingJobsQuery(t *testing.T) {
	sqlStr, args, err := processingJobsQuery(statementBuilder()).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}
	if !strings.Contains(sqlStr, "FROM queue_jobs WHERE status = $1") {
		t.Fatalf("unexpected query %q", sqlStr)
	}
	if len(args) != 1 || args[0] != "processing" {
		t.Fatalf("unexpected args %#v", args)
	}
}
