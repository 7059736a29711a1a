package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient("key", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultEmbeddingModel, c.embedModel)
	assert.Equal(t, DefaultChatModel, c.chatModel)

	_, err = NewClient("", "", "", "")
	assert.Error(t, err)
}

func TestClient_EmbedDocuments_OrdersByIndex(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b"}, req.Input)

		// reversed on purpose
		w.Write([]byte(`{"data":[{"embedding":[2,2],"index":1},{"embedding":[1,1],"index":0}]}`))
	}))
	defer ts.Close()

	c, err := NewClient("key", ts.URL, "", "")
	require.NoError(t, err)

	vecs, err := c.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {2, 2}}, vecs)
}

func TestClient_EmbedDocuments_MissingVector(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"embedding":[1],"index":0}]}`))
	}))
	defer ts.Close()

	c, _ := NewClient("key", ts.URL, "", "")
	_, err := c.EmbedDocuments(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestClient_EmbedQuery(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"embedding":[0.5,0.25],"index":0}]}`))
	}))
	defer ts.Close()

	c, _ := NewClient("key", ts.URL, "", "")
	vec, err := c.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, vec)
}

func TestClient_Generate(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr bool
	}{
		{"ok", http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":" R$ 1.234,56 "},"finish_reason":"stop"}]}`, "R$ 1.234,56", false},
		{"no choices", http.StatusOK, `{"choices":[]}`, "", true},
		{"api error", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`, "", true},
		{"garbage", http.StatusOK, `not json`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/chat/completions", r.URL.Path)
				var req chatRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				assert.Equal(t, DefaultChatModel, req.Model)
				assert.Equal(t, "user", req.Messages[0].Role)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			c, _ := NewClient("key", ts.URL, "", "")
			got, err := c.Generate(context.Background(), "prompt")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
