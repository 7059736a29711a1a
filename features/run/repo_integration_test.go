package run_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragfinance/features/run"
	"ragfinance/internal/testutils"
)

func TestRunRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	repo := run.NewPostgresRepo(s.DB)
	ctx := context.Background()

	ok := &run.Record{TaskID: "task-ok", Question: "q1", Answer: "a1", Status: run.StatusCompleted, DurationMs: 10}
	require.NoError(t, repo.Save(ctx, ok))
	assert.NotEmpty(t, ok.ID)
	assert.False(t, ok.CreatedAt.IsZero())

	failed := &run.Record{TaskID: "task-failed", Question: "q2", Error: "source document not found", Status: run.StatusFailed}
	require.NoError(t, repo.Save(ctx, failed))

	// task ids are unique
	assert.Error(t, repo.Save(ctx, &run.Record{TaskID: "task-ok", Question: "dup", Status: run.StatusCompleted}))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, run.Stats{Completed: 1, Failed: 1}, stats)
}
