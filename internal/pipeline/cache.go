package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// indexCache memoizes the index of one source file version. A rebuilt index
// retires the previous one, which is closed once its last reader releases it.
// Builds run on their own context; each waiter only gives up on its own.
type indexCache struct {
	mu           sync.Mutex
	group        singleflight.Group
	current      *cacheEntry
	shut         bool
	buildTimeout time.Duration
}

var errCacheClosed = errors.New("index cache closed")

type cacheEntry struct {
	key     string
	idx     Index
	refs    int
	retired bool
	closed  bool
}

func cacheKey(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%s@%d:%d", path, info.ModTime().UnixNano(), info.Size()), true
}

func (c *indexCache) acquire(ctx context.Context, key string, build func(context.Context) (Index, error)) (*cacheEntry, bool, error) {
	for {
		if e := c.lookup(key); e != nil {
			return e, true, nil
		}

		ch := c.group.DoChan(key, func() (any, error) {
			c.mu.Lock()
			if e := c.current; e != nil && e.key == key {
				c.mu.Unlock()
				return e, nil
			}
			c.mu.Unlock()

			buildCtx := context.Background()
			if c.buildTimeout > 0 {
				var cancel context.CancelFunc
				buildCtx, cancel = context.WithTimeout(buildCtx, c.buildTimeout)
				defer cancel()
			}
			idx, err := build(buildCtx)
			if err != nil {
				return nil, err
			}

			e := &cacheEntry{key: key, idx: idx}
			c.mu.Lock()
			if c.shut {
				c.mu.Unlock()
				closeIndex(buildCtx, e)
				return nil, errCacheClosed
			}
			old := c.current
			c.current = e
			c.mu.Unlock()

			if old != nil {
				c.retire(buildCtx, old)
			}
			return e, nil
		})
		var res singleflight.Result
		select {
		case res = <-ch:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
		if res.Err != nil {
			return nil, false, res.Err
		}

		e := res.Val.(*cacheEntry)
		c.mu.Lock()
		if !e.closed {
			e.refs++
			c.mu.Unlock()
			return e, false, nil
		}
		c.mu.Unlock()
	}
}

func (c *indexCache) lookup(key string) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.current; e != nil && e.key == key {
		e.refs++
		return e
	}
	return nil
}

func (c *indexCache) release(ctx context.Context, e *cacheEntry) {
	c.mu.Lock()
	e.refs--
	closeNow := e.retired && e.refs == 0 && !e.closed
	if closeNow {
		e.closed = true
	}
	c.mu.Unlock()

	if closeNow {
		closeIndex(ctx, e)
	}
}

func (c *indexCache) retire(ctx context.Context, e *cacheEntry) {
	c.mu.Lock()
	e.retired = true
	closeNow := e.refs == 0 && !e.closed
	if closeNow {
		e.closed = true
	}
	c.mu.Unlock()

	if closeNow {
		closeIndex(ctx, e)
	}
}

// Close releases the cached index, if any.
func (c *indexCache) Close(ctx context.Context) error {
	c.mu.Lock()
	e := c.current
	c.current = nil
	c.shut = true
	c.mu.Unlock()

	if e == nil {
		return nil
	}
	c.retire(ctx, e)
	return nil
}

func closeIndex(ctx context.Context, e *cacheEntry) {
	if err := e.idx.Close(context.WithoutCancel(ctx)); err != nil {
		slog.WarnContext(ctx, "failed to close retired index", "key", e.key, "error", err)
	}
}
