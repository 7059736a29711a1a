// Package pipeline answers one question per run: load the statement, index
// its pages, retrieve the closest ones and ask the model.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ragfinance/internal/domain"
	"ragfinance/internal/index"
	"ragfinance/internal/prompt"
)

const DefaultBuildTimeout = 5 * time.Minute

type Loader interface {
	Load(ctx context.Context, path string) ([]domain.Segment, error)
}

type Index interface {
	Search(ctx context.Context, query string, k int) ([]domain.Result, error)
	Close(ctx context.Context) error
}

type IndexBuilder interface {
	Build(ctx context.Context, segments []domain.Segment) (Index, error)
}

// IndexBuilderFunc lets a plain function serve as an IndexBuilder.
type IndexBuilderFunc func(ctx context.Context, segments []domain.Segment) (Index, error)

func (f IndexBuilderFunc) Build(ctx context.Context, segments []domain.Segment) (Index, error) {
	return f(ctx, segments)
}

type Reranker interface {
	Rerank(ctx context.Context, query string, results []domain.Result) ([]domain.Result, error)
}

type Option func(*Orchestrator)

func WithTopK(k int) Option {
	return func(o *Orchestrator) { o.topK = k }
}

// WithIndexCache reuses the index while the source file is unchanged.
func WithIndexCache(enabled bool) Option {
	return func(o *Orchestrator) {
		if enabled {
			o.cache = &indexCache{}
		} else {
			o.cache = nil
		}
	}
}

// WithBuildTimeout bounds a shared index build, which runs detached from the
// runs waiting on it.
func WithBuildTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.buildTimeout = d }
}

func WithReranker(r Reranker) Option {
	return func(o *Orchestrator) { o.reranker = r }
}

type Orchestrator struct {
	loader       Loader
	builder      IndexBuilder
	generator    domain.Generator
	reranker     Reranker
	sourcePath   string
	topK         int
	cache        *indexCache
	buildTimeout time.Duration
}

func New(loader Loader, builder IndexBuilder, generator domain.Generator, sourcePath string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		loader:       loader,
		builder:      builder,
		generator:    generator,
		sourcePath:   sourcePath,
		topK:         index.DefaultTopK,
		buildTimeout: DefaultBuildTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cache != nil {
		o.cache.buildTimeout = o.buildTimeout
	}
	return o
}

// Run holds the state of one question. It is never shared between runs.
type Run struct {
	Question string
	Context  []domain.Segment
	Answer   string
	State    State
}

func (r *Run) transition(ctx context.Context, to State, attrs ...any) {
	if !r.State.next(to) {
		slog.WarnContext(ctx, "invalid pipeline transition", "from", r.State.String(), "to", to.String())
		return
	}
	from := r.State
	r.State = to
	slog.DebugContext(ctx, "pipeline transition", append([]any{"from", from.String(), "to", to.String()}, attrs...)...)
}

func (r *Run) fail(ctx context.Context, err error) error {
	r.transition(ctx, StateFailed, "error", err)
	return err
}

func (o *Orchestrator) Run(ctx context.Context, question string) (string, error) {
	r, err := o.Execute(ctx, question)
	if err != nil {
		return "", err
	}
	return r.Answer, nil
}

// Execute runs every stage and returns the final run state along with any stage error.
func (o *Orchestrator) Execute(ctx context.Context, question string) (*Run, error) {
	start := time.Now()
	r := &Run{Question: question, State: StateIdle}

	idx, release, err := o.index(ctx, r)
	if err != nil {
		return r, r.fail(ctx, err)
	}
	defer release()

	results, err := idx.Search(ctx, question, o.topK)
	if err != nil {
		return r, r.fail(ctx, fmt.Errorf("search: %w", err))
	}

	if o.reranker != nil {
		reranked, err := o.reranker.Rerank(ctx, question, results)
		if err != nil {
			slog.WarnContext(ctx, "rerank failed, keeping similarity order", "error", err)
		} else {
			results = reranked
		}
	}

	r.Context = make([]domain.Segment, len(results))
	pages := make([]int, len(results))
	for i, res := range results {
		r.Context[i] = res.Segment
		pages[i] = res.Segment.Metadata.PageNumber
	}
	r.transition(ctx, StateRetrieved, "pages", pages)

	answer, err := o.generator.Generate(ctx, prompt.FromResults(question, results))
	if err != nil {
		return r, r.fail(ctx, fmt.Errorf("%w: %w", domain.ErrGenerationProvider, err))
	}
	r.Answer = answer
	r.transition(ctx, StateGenerated, "duration_ms", time.Since(start).Milliseconds())

	return r, nil
}

// index moves the run to Indexed and returns a release func the caller must invoke.
func (o *Orchestrator) index(ctx context.Context, r *Run) (Index, func(), error) {
	if o.cache != nil {
		if key, ok := cacheKey(o.sourcePath); ok {
			e, hit, err := o.cache.acquire(ctx, key, o.build)
			if err != nil {
				return nil, nil, err
			}
			r.transition(ctx, StateLoaded, "cached", hit)
			r.transition(ctx, StateIndexed, "cached", hit)
			return e.idx, func() { o.cache.release(ctx, e) }, nil
		}
	}

	idx, err := o.loadAndBuild(ctx, r)
	if err != nil {
		return nil, nil, err
	}
	return idx, func() {
		if err := idx.Close(context.WithoutCancel(ctx)); err != nil {
			slog.WarnContext(ctx, "failed to close index", "error", err)
		}
	}, nil
}

// build loads and indexes the source for the cache. It belongs to no single run.
func (o *Orchestrator) build(ctx context.Context) (Index, error) {
	segments, err := o.loader.Load(ctx, o.sourcePath)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	idx, err := o.builder.Build(ctx, segments)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	slog.DebugContext(ctx, "index built", "source", o.sourcePath, "segments", len(segments))
	return idx, nil
}

func (o *Orchestrator) loadAndBuild(ctx context.Context, r *Run) (Index, error) {
	segments, err := o.loader.Load(ctx, o.sourcePath)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	r.transition(ctx, StateLoaded, "pages", len(segments))

	idx, err := o.builder.Build(ctx, segments)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	r.transition(ctx, StateIndexed, "segments", len(segments))
	return idx, nil
}

// Close releases the cached index.
func (o *Orchestrator) Close(ctx context.Context) error {
	if o.cache == nil {
		return nil
	}
	return o.cache.Close(ctx)
}
