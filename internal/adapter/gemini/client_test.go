package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"ragfinance/internal/adapter/gemini"
)

func newFakeGemini(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, ":batchEmbedContents"):
			var req struct {
				Requests []json.RawMessage `json:"requests"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			embeddings := make([]map[string]interface{}, len(req.Requests))
			for i := range req.Requests {
				embeddings[i] = map[string]interface{}{"values": []float32{float32(i + 1), 0.5}}
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"embeddings": embeddings})
		case strings.HasSuffix(r.URL.Path, ":embedContent"):
			json.NewEncoder(w).Encode(map[string]interface{}{
				"embedding": map[string]interface{}{"values": []float32{0.1, 0.2, 0.3}},
			})
		case strings.HasSuffix(r.URL.Path, ":generateContent"):
			json.NewEncoder(w).Encode(map[string]interface{}{
				"candidates": []map[string]interface{}{{
					"content": map[string]interface{}{
						"role":  "model",
						"parts": []map[string]string{{"text": "O valor total foi R$ 1.234,56."}},
					},
					"finishReason": "STOP",
				}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestNewClient_MissingKey(t *testing.T) {
	c, err := gemini.NewClient(context.Background(), "", "", "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "gemini api key not configured")
	assert.Nil(t, c)
}

func TestClient_EmbedQuery(t *testing.T) {
	ts := newFakeGemini(t)
	c, err := gemini.NewClient(context.Background(), "test-key", "", "", option.WithEndpoint(ts.URL))
	require.NoError(t, err)
	defer c.Close()

	vec, err := c.EmbedQuery(context.Background(), "hello world")
	assert.NoError(t, err)
	if assert.Len(t, vec, 3) {
		assert.Equal(t, float32(0.1), vec[0])
	}
}

func TestClient_EmbedDocuments(t *testing.T) {
	ts := newFakeGemini(t)
	c, err := gemini.NewClient(context.Background(), "test-key", "", "", option.WithEndpoint(ts.URL))
	require.NoError(t, err)
	defer c.Close()

	vecs, err := c.EmbedDocuments(context.Background(), []string{"page 1", "page 2"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(2), vecs[1][0])

	empty, err := c.EmbedDocuments(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, empty)
}

func TestClient_Generate(t *testing.T) {
	ts := newFakeGemini(t)
	c, err := gemini.NewClient(context.Background(), "test-key", "", "", option.WithEndpoint(ts.URL))
	require.NoError(t, err)
	defer c.Close()

	answer, err := c.Generate(context.Background(), "prompt")
	assert.NoError(t, err)
	assert.Equal(t, "O valor total foi R$ 1.234,56.", answer)
}
