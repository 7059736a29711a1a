package run_test

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragfinance/features/run"
)

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := run.NewPostgresRepo(db)
	rec := &run.Record{
		TaskID:     "task-1",
		Question:   "Qual foi o valor total da fatura?",
		Answer:     "R$ 1.234,56",
		Status:     run.StatusCompleted,
		DurationMs: 1200,
	}

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO question_runs (task_id, question, answer, error, status, duration_ms) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at")).
		WithArgs(rec.TaskID, rec.Question, rec.Answer, rec.Error, rec.Status, rec.DurationMs).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("run-1", now))

	require.NoError(t, repo.Save(context.Background(), rec))
	assert.Equal(t, "run-1", rec.ID)
	assert.Equal(t, now, rec.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Save_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO question_runs")).
		WillReturnError(sqlmock.ErrCancelled)

	err = run.NewPostgresRepo(db).Save(context.Background(), &run.Record{TaskID: "t", Status: run.StatusFailed})
	assert.Error(t, err)
}

func TestPostgresRepo_Stats(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := run.NewPostgresRepo(db)

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"status", "count"}).
			AddRow("completed", 5).
			AddRow("failed", 2)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) FROM question_runs GROUP BY status")).
			WillReturnRows(rows)

		s, err := repo.Stats(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, run.Stats{Completed: 5, Failed: 2}, s)
	})

	t.Run("Error", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT status")).
			WillReturnError(sqlmock.ErrCancelled)

		_, err := repo.Stats(context.Background())
		assert.Error(t, err)
	})
}

func TestMemoryRepo(t *testing.T) {
	repo := run.NewMemoryRepo()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := run.StatusCompleted
			if i%4 == 0 {
				status = run.StatusFailed
			}
			rec := &run.Record{TaskID: "t", Status: status}
			assert.NoError(t, repo.Save(ctx, rec))
			assert.NotEmpty(t, rec.ID)
		}(i)
	}
	wg.Wait()

	s, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, run.Stats{Completed: 15, Failed: 5}, s)

	assert.Error(t, repo.Save(ctx, &run.Record{Status: "running"}))
}
