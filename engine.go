package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
)

const EnginePageSize int = 20

var ErrNoActiveQuery = errors.New("current query is empty")

// Observable is the read side of a Subject.
type Observable[T any] interface {
	Value() T
	Subscribe() (<-chan T, func())
}

// QueryEngine pages through the results of one search keyword at a time and
// publishes the accumulated photo list. Fetches are serialized by mu, which is
// held across the call to the searcher.
//
// loading is checked before mu is taken. A caller arriving while a fetch is in
// flight gets (0, nil) instead of queueing behind it. Two callers can both pass
// the check in the window before the first sets the flag; the second then waits
// for mu and fetches the following page, which is at most one extra page.
type QueryEngine struct {
	searcher PhotoSearcher
	pageSize int
	log      *log.Logger

	loading atomic.Bool

	mu     sync.Mutex
	cursor queryCursor

	photos *Subject[[]Photo]
	empty  *Subject[EmptyState]
}

func NewQueryEngine(searcher PhotoSearcher) *QueryEngine {
	c := newQueryCursor()
	return &QueryEngine{
		searcher: searcher,
		pageSize: EnginePageSize,
		log:      log.New(os.Stderr, "(pager) ", log.LstdFlags),
		cursor:   c,
		photos:   NewSubject(c.photos),
		empty:    NewSubject(initialEmptyState),
	}
}

// Photos publishes the accumulated list. Snapshots are shared and must not be modified.
func (e *QueryEngine) Photos() Observable[[]Photo] {
	return e.photos
}

func (e *QueryEngine) EmptyState() Observable[EmptyState] {
	return e.empty
}

// LoadPhotos fetches the next page for query, switching to query first if it
// differs from the current keyword. It returns the number of photos appended.
func (e *QueryEngine) LoadPhotos(ctx context.Context, query string) (int, error) {
	if e.loading.Load() {
		engineLoads.WithLabelValues("coalesced").Inc()
		return 0, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadLocked(ctx, query)
}

// LoadMoreCurrentQuery fetches the next page of the current keyword. With no
// keyword set it resets the engine and fails with ErrNoActiveQuery.
func (e *QueryEngine) LoadMoreCurrentQuery(ctx context.Context) (int, error) {
	if e.loading.Load() {
		engineLoads.WithLabelValues("coalesced").Inc()
		return 0, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cursor.query == "" {
		e.setCursor(newQueryCursor())
		return 0, ErrNoActiveQuery
	}
	return e.loadLocked(ctx, e.cursor.query)
}

// loadLocked does the work of LoadPhotos. mu must be held.
func (e *QueryEngine) loadLocked(ctx context.Context, query string) (int, error) {
	if next, changed := resetForQuery(e.cursor, query); changed {
		e.setCursor(next)
	}
	if e.cursor.exhausted() {
		engineLoads.WithLabelValues("exhausted").Inc()
		return 0, nil
	}

	e.loading.Store(true)
	defer e.loading.Store(false)

	c := e.cursor
	res, err := e.searcher.Search(ctx, c.query, c.page, e.pageSize)
	if err != nil {
		engineLoads.WithLabelValues("failed").Inc()
		e.log.Printf("page %d of %q failed: %v", c.page, c.query, err)
		if len(c.photos) == 0 {
			e.empty.Publish(errorEmptyState)
		}
		return 0, fmt.Errorf("something went wrong while fetching photos: %w", err)
	}

	e.cursor = c.advance(res)
	e.photos.Publish(e.cursor.photos)
	engineLoads.WithLabelValues("fetched").Inc()
	return len(res.Photos), nil
}

// ClearPhotos drops the current keyword and its photos. Clearing an active
// keyword publishes the query-changed empty state like any other switch.
func (e *QueryEngine) ClearPhotos() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cursor.query != "" {
		e.setCursor(newQueryCursor())
		return
	}
	e.cursor = newQueryCursor()
	e.photos.Publish(e.cursor.photos)
}

// setCursor installs a reset cursor. mu must be held.
func (e *QueryEngine) setCursor(c queryCursor) {
	e.cursor = c
	e.photos.Publish(c.photos)
	e.empty.Publish(queryChangedEmptyState)
}
