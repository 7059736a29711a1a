package weaviate_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adapter "ragfinance/internal/adapter/weaviate"
	"ragfinance/internal/domain"
	"ragfinance/internal/testutils"
	"ragfinance/internal/vector"
)

// axisEmbedder maps texts mentioning "fatura" onto one axis and everything else onto the other.
type axisEmbedder struct{}

func (axisEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = axis(text)
	}
	return out, nil
}

func (axisEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return axis(text), nil
}

func axis(text string) []float32 {
	if strings.Contains(strings.ToLower(text), "fatura") {
		return []float32{1, 0.1}
	}
	return []float32{0.1, 1}
}

func TestStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	ctx := context.Background()
	require.NoError(t, vector.ResetSchema(ctx, vector.NewSchemaAdapter(s.Weaviate)))

	store := adapter.NewStore(s.Weaviate, axisEmbedder{}, 2)
	segments := []domain.Segment{
		{Text: "Resumo da fatura: total R$ 1.234,56", Metadata: domain.Metadata{PageNumber: 1, SourcePath: "statement.pdf"}},
		{Text: "Limite disponível", Metadata: domain.Metadata{PageNumber: 2, SourcePath: "statement.pdf"}},
		{Text: "Encargos", Metadata: domain.Metadata{PageNumber: 3, SourcePath: "statement.pdf"}},
	}

	first, err := store.Build(ctx, segments)
	require.NoError(t, err)
	second, err := store.Build(ctx, segments[:1])
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())

	results, err := first.Search(ctx, "valor total da fatura", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Segment.Metadata.PageNumber)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

	// builds do not see each other's pages
	results, err = second.Search(ctx, "limite", 4)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Segment.Metadata.PageNumber)

	require.NoError(t, first.Close(ctx))
	require.NoError(t, second.Close(ctx))
}
