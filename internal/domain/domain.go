// Package domain holds the types shared by every stage of the question pipeline.
package domain

import "context"

type Metadata struct {
	PageNumber int    `json:"page_number"`
	SourcePath string `json:"source_path"`
}

// Segment is the text of one PDF page. Segments are never mutated after loading.
type Segment struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

type Result struct {
	Segment Segment `json:"segment"`
	Score   float32 `json:"score"`
}

// Embedder turns text into vectors. EmbedDocuments returns one vector per input, in input order.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

func Texts(segments []Segment) []string {
	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = s.Text
	}
	return out
}
