// Package index keeps page embeddings in memory and answers top-k cosine similarity queries.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"ragfinance/internal/domain"
)

const (
	DefaultTopK      = 4
	DefaultBatchSize = 100
)

// Memory is an immutable in-memory index. vectors[i] belongs to segments[i].
type Memory struct {
	embedder domain.Embedder
	segments []domain.Segment
	vectors  [][]float32
	norms    []float64
}

type Builder struct {
	embedder  domain.Embedder
	batchSize int
}

func NewBuilder(e domain.Embedder, batchSize int) *Builder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Builder{embedder: e, batchSize: batchSize}
}

// Build embeds every segment, batchSize texts per provider call.
func (b *Builder) Build(ctx context.Context, segments []domain.Segment) (*Memory, error) {
	m := &Memory{
		embedder: b.embedder,
		segments: slices.Clone(segments),
		vectors:  make([][]float32, 0, len(segments)),
		norms:    make([]float64, 0, len(segments)),
	}

	for start := 0; start < len(segments); start += b.batchSize {
		end := min(start+b.batchSize, len(segments))
		texts := domain.Texts(segments[start:end])

		vecs, err := b.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, wrapEmbedding(err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEmbeddingProvider, len(vecs), len(texts))
		}
		for _, v := range vecs {
			m.vectors = append(m.vectors, v)
			m.norms = append(m.norms, norm(v))
		}
	}

	slog.DebugContext(ctx, "index built", "segments", len(m.segments))
	return m, nil
}

func (m *Memory) Len() int {
	return len(m.segments)
}

// Search returns at most k results by descending cosine similarity.
// Equal scores keep insertion order. k <= 0 means DefaultTopK.
func (m *Memory) Search(ctx context.Context, query string, k int) ([]domain.Result, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	if len(m.segments) == 0 {
		return []domain.Result{}, nil
	}

	q, err := m.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, wrapEmbedding(err)
	}
	qNorm := norm(q)

	results := make([]domain.Result, len(m.segments))
	for i, v := range m.vectors {
		results[i] = domain.Result{
			Segment: m.segments[i],
			Score:   float32(cosine(q, v, qNorm, m.norms[i])),
		}
	}

	slices.SortStableFunc(results, func(a, b domain.Result) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Close is a no-op; memory indexes hold no external resources.
func (m *Memory) Close(context.Context) error {
	return nil
}

func cosine(a, b []float32, aNorm, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	n := min(len(a), len(b))
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (aNorm * bNorm)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func wrapEmbedding(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrEmbeddingProvider, err)
}
