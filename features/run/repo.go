package run

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Save(ctx context.Context, r *Record) error
	Stats(ctx context.Context) (Stats, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, rec *Record) error {
	query := `INSERT INTO question_runs (task_id, question, answer, error, status, duration_ms) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query, rec.TaskID, rec.Question, rec.Answer, rec.Error, rec.Status, rec.DurationMs).Scan(&rec.ID, &rec.CreatedAt)
}

func (r *PostgresRepo) Stats(ctx context.Context) (Stats, error) {
	query := `SELECT status, COUNT(*) FROM question_runs GROUP BY status`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	var s Stats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		switch status {
		case StatusCompleted:
			s.Completed = count
		case StatusFailed:
			s.Failed = count
		}
	}
	return s, rows.Err()
}

// MemoryRepo keeps only aggregate counters; records are not retained.
type MemoryRepo struct {
	mu    sync.Mutex
	stats Stats
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (r *MemoryRepo) Save(ctx context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch rec.Status {
	case StatusCompleted:
		r.stats.Completed++
	case StatusFailed:
		r.stats.Failed++
	default:
		return fmt.Errorf("unknown run status %q", rec.Status)
	}
	rec.ID = uuid.New().String()
	rec.CreatedAt = time.Now()
	return nil
}

func (r *MemoryRepo) Stats(ctx context.Context) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats, nil
}
