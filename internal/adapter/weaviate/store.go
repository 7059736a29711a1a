package weaviate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"ragfinance/internal/domain"
	"ragfinance/internal/index"
	"ragfinance/internal/vector"
)

// Store builds page indexes inside Weaviate. Every build writes under its own
// buildId and is only visible to the Build handle that created it.
type Store struct {
	client    *weaviate.Client
	embedder  domain.Embedder
	batchSize int
}

func NewStore(client *weaviate.Client, embedder domain.Embedder, batchSize int) *Store {
	if batchSize <= 0 {
		batchSize = index.DefaultBatchSize
	}
	return &Store{client: client, embedder: embedder, batchSize: batchSize}
}

type Build struct {
	store *Store
	id    string
	size  int
}

func (s *Store) Build(ctx context.Context, segments []domain.Segment) (*Build, error) {
	b := &Build{store: s, id: uuid.New().String(), size: len(segments)}

	for start := 0; start < len(segments); start += s.batchSize {
		end := min(start+s.batchSize, len(segments))
		batch := segments[start:end]

		vecs, err := s.embedder.EmbedDocuments(ctx, domain.Texts(batch))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingProvider, err)
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEmbeddingProvider, len(vecs), len(batch))
		}

		objects := make([]*models.Object, len(batch))
		for i, seg := range batch {
			objects[i] = &models.Object{
				Class: vector.ClassName,
				Properties: map[string]interface{}{
					"text":       seg.Text,
					"pageNumber": seg.Metadata.PageNumber,
					"sourcePath": seg.Metadata.SourcePath,
					"buildId":    b.id,
					"position":   start + i,
				},
				Vector: models.C11yVector(vecs[i]),
			}
		}

		if err := s.insert(ctx, objects); err != nil {
			// best effort, the partial build is unreachable anyway
			_ = b.Close(context.WithoutCancel(ctx))
			return nil, err
		}
	}

	slog.DebugContext(ctx, "weaviate index built", "build_id", b.id, "segments", b.size)
	return b, nil
}

func (s *Store) insert(ctx context.Context, objects []*models.Object) error {
	res, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate batch insert: %w", err)
	}
	for _, r := range res {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("weaviate batch insert: %s", r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (b *Build) ID() string {
	return b.id
}

func (b *Build) Len() int {
	return b.size
}

// Search runs a nearVector query scoped to this build. Scores are cosine
// similarities (1 - distance); ties keep page order.
func (b *Build) Search(ctx context.Context, query string, k int) ([]domain.Result, error) {
	if k <= 0 {
		k = index.DefaultTopK
	}
	if b.size == 0 {
		return []domain.Result{}, nil
	}

	vec, err := b.store.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingProvider, err)
	}

	client := b.store.client
	nearVector := client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	fields := []graphql.Field{
		{Name: "text"},
		{Name: "pageNumber"},
		{Name: "sourcePath"},
		{Name: "position"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	res, err := client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(nearVector).
		WithWhere(b.where()).
		WithLimit(k).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	type ranked struct {
		result   domain.Result
		position int
	}
	var items []ranked
	if data, ok := res.Data["Get"].(map[string]interface{}); ok {
		if pages, ok := data[vector.ClassName].([]interface{}); ok {
			for _, p := range pages {
				props, ok := p.(map[string]interface{})
				if !ok {
					continue
				}
				item := ranked{}
				if text, ok := props["text"].(string); ok {
					item.result.Segment.Text = text
				}
				if page, ok := props["pageNumber"].(float64); ok {
					item.result.Segment.Metadata.PageNumber = int(page)
				}
				if path, ok := props["sourcePath"].(string); ok {
					item.result.Segment.Metadata.SourcePath = path
				}
				if pos, ok := props["position"].(float64); ok {
					item.position = int(pos)
				}
				if additional, ok := props["_additional"].(map[string]interface{}); ok {
					if d, ok := additional["distance"].(float64); ok {
						item.result.Score = float32(1 - d)
					}
				}
				items = append(items, item)
			}
		}
	}

	slices.SortStableFunc(items, func(a, c ranked) int {
		switch {
		case a.result.Score > c.result.Score:
			return -1
		case a.result.Score < c.result.Score:
			return 1
		default:
			return a.position - c.position
		}
	})

	results := make([]domain.Result, 0, len(items))
	for _, it := range items {
		results = append(results, it.result)
	}
	return results, nil
}

// Close deletes every object written by this build.
func (b *Build) Close(ctx context.Context) error {
	_, err := b.store.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(b.where()).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate delete build %s: %w", b.id, err)
	}
	return nil
}

func (b *Build) where() *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"buildId"}).
		WithOperator(filters.Equal).
		WithValueString(b.id)
}
