package weaviate_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	adapter "ragfinance/internal/adapter/weaviate"
	"ragfinance/internal/domain"
)

type fakeEmbedder struct {
	docErr error
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if f.docErr != nil {
		return nil, f.docErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type recorder struct {
	mu       sync.Mutex
	inserted []map[string]interface{}
	queries  []string
	deletes  int
}

func mockWeaviate(t *testing.T, rec *recorder, graphqlBody string) *weaviate.Client {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		defer rec.mu.Unlock()

		switch {
		case r.URL.Path == "/v1/meta":
			w.Write([]byte(`{"version": "1.25.0"}`))
		case r.URL.Path == "/v1/batch/objects" && r.Method == http.MethodPost:
			var body struct {
				Objects []map[string]interface{} `json:"objects"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			resp := make([]map[string]interface{}, len(body.Objects))
			for i, o := range body.Objects {
				rec.inserted = append(rec.inserted, o)
				resp[i] = map[string]interface{}{"class": o["class"], "result": map[string]interface{}{}}
			}
			json.NewEncoder(w).Encode(resp)
		case r.URL.Path == "/v1/batch/objects" && r.Method == http.MethodDelete:
			rec.deletes++
			w.Write([]byte(`{}`))
		case r.URL.Path == "/v1/graphql":
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			rec.queries = append(rec.queries, body["query"].(string))
			w.Write([]byte(graphqlBody))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ts.Close)

	client, err := weaviate.NewClient(weaviate.Config{Host: ts.Listener.Addr().String(), Scheme: "http"})
	require.NoError(t, err)
	return client
}

func pages(n int) []domain.Segment {
	out := make([]domain.Segment, n)
	for i := range out {
		out[i] = domain.Segment{
			Text:     "page " + string(rune('A'+i)),
			Metadata: domain.Metadata{PageNumber: i + 1, SourcePath: "statement.pdf"},
		}
	}
	return out
}

func TestStore_Build_BatchesWithBuildID(t *testing.T) {
	rec := &recorder{}
	client := mockWeaviate(t, rec, `{}`)
	store := adapter.NewStore(client, &fakeEmbedder{}, 2)

	b, err := store.Build(context.Background(), pages(3))
	require.NoError(t, err)
	assert.Equal(t, 3, b.Len())
	assert.NotEmpty(t, b.ID())

	require.Len(t, rec.inserted, 3)
	for i, o := range rec.inserted {
		assert.Equal(t, "StatementPage", o["class"])
		props := o["properties"].(map[string]interface{})
		assert.Equal(t, b.ID(), props["buildId"])
		assert.Equal(t, float64(i), props["position"])
		assert.Equal(t, float64(i+1), props["pageNumber"])
		assert.NotEmpty(t, o["vector"])
	}
}

func TestStore_Build_EmbeddingError(t *testing.T) {
	rec := &recorder{}
	client := mockWeaviate(t, rec, `{}`)
	store := adapter.NewStore(client, &fakeEmbedder{docErr: errors.New("quota")}, 0)

	_, err := store.Build(context.Background(), pages(1))
	assert.ErrorIs(t, err, domain.ErrEmbeddingProvider)
	assert.Empty(t, rec.inserted)
}

func TestBuild_Search(t *testing.T) {
	rec := &recorder{}
	body := `{"data":{"Get":{"StatementPage":[
		{"text":"page C","pageNumber":3,"sourcePath":"statement.pdf","position":2,"_additional":{"distance":0.1}},
		{"text":"page A","pageNumber":1,"sourcePath":"statement.pdf","position":0,"_additional":{"distance":0.4}},
		{"text":"page B","pageNumber":2,"sourcePath":"statement.pdf","position":1,"_additional":{"distance":0.1}}
	]}}}`
	client := mockWeaviate(t, rec, body)
	store := adapter.NewStore(client, &fakeEmbedder{}, 0)

	b, err := store.Build(context.Background(), pages(3))
	require.NoError(t, err)

	results, err := b.Search(context.Background(), "total", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// equal distances fall back to page order
	assert.Equal(t, 2, results[0].Segment.Metadata.PageNumber)
	assert.Equal(t, 3, results[1].Segment.Metadata.PageNumber)
	assert.Equal(t, 1, results[2].Segment.Metadata.PageNumber)
	assert.InDelta(t, 0.9, results[0].Score, 1e-6)
	assert.Equal(t, "statement.pdf", results[0].Segment.Metadata.SourcePath)

	require.Len(t, rec.queries, 1)
	assert.Contains(t, rec.queries[0], "nearVector")
	assert.Contains(t, rec.queries[0], b.ID())
	assert.Contains(t, rec.queries[0], "limit: 3")
}

func TestBuild_Search_DefaultK(t *testing.T) {
	rec := &recorder{}
	client := mockWeaviate(t, rec, `{"data":{"Get":{"StatementPage":[]}}}`)
	store := adapter.NewStore(client, &fakeEmbedder{}, 0)

	b, err := store.Build(context.Background(), pages(1))
	require.NoError(t, err)

	results, err := b.Search(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.True(t, strings.Contains(rec.queries[0], "limit: 4"))
}

func TestBuild_Search_GraphQLError(t *testing.T) {
	rec := &recorder{}
	client := mockWeaviate(t, rec, `{"errors":[{"message":"no such class"}]}`)
	store := adapter.NewStore(client, &fakeEmbedder{}, 0)

	b, err := store.Build(context.Background(), pages(1))
	require.NoError(t, err)

	_, err = b.Search(context.Background(), "q", 1)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no such class")
}

func TestBuild_EmptySkipsQuery(t *testing.T) {
	rec := &recorder{}
	client := mockWeaviate(t, rec, `{}`)
	store := adapter.NewStore(client, &fakeEmbedder{}, 0)

	b, err := store.Build(context.Background(), nil)
	require.NoError(t, err)

	results, err := b.Search(context.Background(), "q", 4)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, rec.queries)
}

func TestBuild_Close(t *testing.T) {
	rec := &recorder{}
	client := mockWeaviate(t, rec, `{}`)
	store := adapter.NewStore(client, &fakeEmbedder{}, 0)

	b, err := store.Build(context.Background(), pages(2))
	require.NoError(t, err)

	require.NoError(t, b.Close(context.Background()))
	assert.Equal(t, 1, rec.deletes)
}
