package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	DefaultEmbeddingModel = "gemini-embedding-001"
	DefaultChatModel      = "gemini-2.0-flash"
)

var ErrEmptyResponse = errors.New("gemini returned an empty response")

type Client struct {
	client     *genai.Client
	embedModel string
	chatModel  string
}

func NewClient(ctx context.Context, apiKey, embedModel, chatModel string, opts ...option.ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	if embedModel == "" {
		embedModel = DefaultEmbeddingModel
	}
	if chatModel == "" {
		chatModel = DefaultChatModel
	}

	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{client: client, embedModel: embedModel, chatModel: chatModel}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EmbedDocuments embeds texts in a single batch request; vectors come back in input order.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	slog.DebugContext(ctx, "embedding documents", "model", c.embedModel, "count", len(texts))

	em := c.client.EmbeddingModel(c.embedModel)
	em.TaskType = genai.TaskTypeRetrievalDocument
	b := em.NewBatch()
	for _, t := range texts {
		b.AddContent(genai.Text(t))
	}

	res, err := em.BatchEmbedContents(ctx, b)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(res.Embeddings))
	for i, e := range res.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("%w: embedding %d", ErrEmptyResponse, i)
		}
		out[i] = e.Values
	}
	return out, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	em := c.client.EmbeddingModel(c.embedModel)
	em.TaskType = genai.TaskTypeRetrievalQuery
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: query embedding", ErrEmptyResponse)
	}
	return res.Embedding.Values, nil
}

// Generate returns the text parts of the first candidate.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	model := c.client.GenerativeModel(c.chatModel)
	model.SetTemperature(0)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no candidates", ErrEmptyResponse)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: candidate has no text", ErrEmptyResponse)
	}
	return sb.String(), nil
}
