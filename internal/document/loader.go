// Package document reads the source statement PDF into page segments.
package document

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"ragfinance/internal/domain"
)

type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

// Load reads every page of the PDF at path, in document order.
func (l *Loader) Load(ctx context.Context, path string) ([]domain.Segment, error) {
	var segments []domain.Segment
	for seg, err := range Pages(path) {
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	slog.DebugContext(ctx, "document loaded", "path", path, "pages", len(segments))
	return segments, nil
}

// Pages lazily yields one segment per page. Page numbers are 1-based.
// Iteration stops after the first error.
func Pages(path string) iter.Seq2[domain.Segment, error] {
	return func(yield func(domain.Segment, error) bool) {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				yield(domain.Segment{}, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, path))
				return
			}
			yield(domain.Segment{}, fmt.Errorf("stat %s: %w", path, err))
			return
		}

		f, r, err := open(path)
		if err != nil {
			yield(domain.Segment{}, err)
			return
		}
		defer f.Close()

		total := r.NumPage()
		for i := 1; i <= total; i++ {
			text, err := pageText(r, i)
			if err != nil {
				yield(domain.Segment{}, err)
				return
			}
			seg := domain.Segment{
				Text:     text,
				Metadata: domain.Metadata{PageNumber: i, SourcePath: path},
			}
			if !yield(seg, nil) {
				return
			}
		}
	}
}

// The pdf package panics on some malformed inputs.
func open(path string) (f *os.File, r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if f != nil {
				f.Close()
			}
			f, r, err = nil, nil, fmt.Errorf("%w: %s: %v", domain.ErrParse, path, rec)
		}
	}()

	f, r, err = pdf.Open(path) // #nosec G304 -- path comes from SOURCE_PATH configuration
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", domain.ErrParse, path, err)
	}
	return f, r, nil
}

func pageText(r *pdf.Reader, num int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("%w: page %d: %v", domain.ErrParse, num, rec)
		}
	}()

	p := r.Page(num)
	if p.V.IsNull() {
		return "", nil
	}
	text, err = p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("%w: page %d: %v", domain.ErrParse, num, err)
	}
	return strings.TrimSpace(text), nil
}
