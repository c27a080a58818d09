package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/samvad-hq/samvad-publisher/internal/domain"
	bolt "go.etcd.io/bbolt"
)

const (
	statusBucket = "statuses"
	jobBucket    = "jobs"
	refBucket    = "refs"
)

// boltStore implements a Store backed by BoltDB. Records are stored as JSON documents.
type boltStore struct {
	db *bolt.DB
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string) (*boltStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{statusBucket, jobBucket, refBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &boltStore{db: db}, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func bucket(tx *bolt.Tx, name string) (*bolt.Bucket, error) {
	bkt := tx.Bucket([]byte(name))
	if bkt == nil {
		return nil, fmt.Errorf("%s bucket missing", name)
	}
	return bkt, nil
}

func (b *boltStore) put(name, key string, v any) error {
	raw, err := encode(v)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := bucket(tx, name)
		if err != nil {
			return err
		}
		return bkt.Put([]byte(key), raw)
	})
}

func (b *boltStore) get(name, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt, err := bucket(tx, name)
		if err != nil {
			return err
		}
		if v := bkt.Get([]byte(key)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, domain.ErrNotFound
	}
	return out, nil
}

func (b *boltStore) SaveStatus(_ context.Context, s *domain.PublishingStatus) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("status id is required")
	}
	return b.put(statusBucket, s.ID, s)
}

func (b *boltStore) GetStatus(_ context.Context, id string) (*domain.PublishingStatus, error) {
	raw, err := b.get(statusBucket, id)
	if err != nil {
		return nil, fmt.Errorf("status %q: %w", id, err)
	}
	return decodeStatus(raw)
}

func (b *boltStore) ListStatuses(_ context.Context, articleID string) ([]domain.PublishingStatus, error) {
	var out []domain.PublishingStatus
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt, err := bucket(tx, statusBucket)
		if err != nil {
			return err
		}
		return bkt.ForEach(func(_, v []byte) error {
			s, err := decodeStatus(v)
			if err != nil {
				return err
			}
			if s.ArticleID == articleID {
				out = append(out, *s)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortStatuses(out)
	return out, nil
}

func (b *boltStore) SaveJob(_ context.Context, j *domain.QueueJob) error {
	if j == nil || j.ID == "" {
		return fmt.Errorf("job id is required")
	}
	return b.put(jobBucket, j.ID, j)
}

func (b *boltStore) GetJob(_ context.Context, id string) (*domain.QueueJob, error) {
	raw, err := b.get(jobBucket, id)
	if err != nil {
		return nil, fmt.Errorf("job %q: %w", id, err)
	}
	return decodeJob(raw)
}

func (b *boltStore) DueJobs(_ context.Context, now time.Time, limit int) ([]domain.QueueJob, error) {
	var due []domain.QueueJob
	err := b.eachJob(func(j *domain.QueueJob) error {
		if j.Due(now) {
			due = append(due, *j)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sortDue(due, limit), nil
}

func (b *boltStore) DeleteJob(_ context.Context, id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := bucket(tx, jobBucket)
		if err != nil {
			return err
		}
		return bkt.Delete([]byte(id))
	})
}

func (b *boltStore) DeletePendingJobs(_ context.Context, articleID string) (int, error) {
	return b.deleteJobsWhere(func(j *domain.QueueJob) bool {
		return j.ArticleID == articleID && j.Status == domain.JobPending
	})
}

// PurgeCompleted removes completed jobs older than before; failed and pending jobs are kept.
func (b *boltStore) PurgeCompleted(_ context.Context, before time.Time) (int, error) {
	return b.deleteJobsWhere(func(j *domain.QueueJob) bool {
		return purgeable(j, before)
	})
}

func (b *boltStore) RequeueStale(_ context.Context, leasedBefore time.Time) (int, error) {
	requeued := 0
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := bucket(tx, jobBucket)
		if err != nil {
			return err
		}

		updates := make(map[string][]byte)
		if err := bkt.ForEach(func(k, v []byte) error {
			j, err := decodeJob(v)
			if err != nil {
				return err
			}
			if !stale(j, leasedBefore) {
				return nil
			}
			release(j)
			raw, err := encode(j)
			if err != nil {
				return err
			}
			updates[string(k)] = raw
			return nil
		}); err != nil {
			return err
		}
		for k, raw := range updates {
			if err := bkt.Put([]byte(k), raw); err != nil {
				return err
			}
		}
		requeued = len(updates)
		return nil
	})
	return requeued, err
}

func (b *boltStore) JobStats(_ context.Context) (domain.QueueStats, error) {
	var stats domain.QueueStats
	err := b.eachJob(func(j *domain.QueueJob) error {
		countJob(&stats, j.Status)
		return nil
	})
	return stats, err
}

func (b *boltStore) eachJob(fn func(j *domain.QueueJob) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		bkt, err := bucket(tx, jobBucket)
		if err != nil {
			return err
		}
		return bkt.ForEach(func(_, v []byte) error {
			j, err := decodeJob(v)
			if err != nil {
				return err
			}
			return fn(j)
		})
	})
}

func (b *boltStore) deleteJobsWhere(match func(j *domain.QueueJob) bool) (int, error) {
	deleted := 0
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := bucket(tx, jobBucket)
		if err != nil {
			return err
		}

		// collect first: deleting under a live cursor can skip the following key
		var keys [][]byte
		if err := bkt.ForEach(func(k, v []byte) error {
			j, err := decodeJob(v)
			if err != nil {
				return err
			}
			if match(j) {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range keys {
			if err := bkt.Delete(k); err != nil {
				return err
			}
		}
		deleted = len(keys)
		return nil
	})
	return deleted, err
}

func (b *boltStore) GetRef(_ context.Context, destination, articleID string) (string, bool, error) {
	var ref string
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt, err := bucket(tx, refBucket)
		if err != nil {
			return err
		}
		if v := bkt.Get([]byte(refKey(destination, articleID))); v != nil {
			ref = string(v)
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return ref, ref != "", nil
}

func (b *boltStore) PutRef(_ context.Context, destination, articleID, remoteID string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := bucket(tx, refBucket)
		if err != nil {
			return err
		}
		return bkt.Put([]byte(refKey(destination, articleID)), []byte(remoteID))
	})
}

func (b *boltStore) DeleteRef(_ context.Context, destination, articleID string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := bucket(tx, refBucket)
		if err != nil {
			return err
		}
		return bkt.Delete([]byte(refKey(destination, articleID)))
	})
}
