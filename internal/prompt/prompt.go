// Package prompt renders the retrieval-augmented instruction sent to the chat model.
package prompt

import (
	"strings"
	"text/template"

	"ragfinance/internal/domain"
)

const ContextSeparator = "\n\n"

const instructions = `You are an assistant answering questions about a credit card statement.
Use only the context below to answer the question.
If the answer is not in the context, say that you don't know; do not make up an answer.
Use three sentences at most, keep the answer concise and reply in the language of the question.

Context:
{{.Context}}

Question: {{.Question}}

Answer:`

var tmpl = template.Must(template.New("rag").Option("missingkey=error").Parse(instructions))

type data struct {
	Question string
	Context  string
}

// Build joins segment texts in the given order and fills the instruction template.
// It has no side effects; equal inputs always render equal prompts.
func Build(question string, segments []domain.Segment) string {
	var sb strings.Builder
	// Both fields are plain strings, Execute cannot fail.
	_ = tmpl.Execute(&sb, data{
		Question: question,
		Context:  strings.Join(domain.Texts(segments), ContextSeparator),
	})
	return sb.String()
}

// FromResults is Build over a ranked result set, preserving rank order.
func FromResults(question string, results []domain.Result) string {
	segments := make([]domain.Segment, len(results))
	for i, r := range results {
		segments[i] = r.Segment
	}
	return Build(question, segments)
}
