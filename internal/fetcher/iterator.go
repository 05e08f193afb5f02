// Package fetcher turns a page-numbered search endpoint into a lazy, finite
// sequence of records.
//
// Pages are requested one at a time, starting at 1, and only when the
// previous page has been consumed. The sequence ends when
//   - the caller's limit is reached,
//   - the reported total has been yielded,
//   - a page is shorter than the page size or empty,
//   - a page request fails (the error is kept for Err), or
//   - the context is cancelled before the next page is requested.
//
// A failed page is never retried. Items already yielded stay yielded.
package fetcher

import (
	"context"
	"log/slog"
)

// Page is one page of results plus the total the server reports for the
// whole query. A Total of zero or less means the server did not report one.
type Page[T any] struct {
	Items []T
	Total int
}

// PageFunc fetches page number page (1-based).
type PageFunc[T any] func(ctx context.Context, page int) (Page[T], error)

// Iterator yields records one at a time. It is not safe for concurrent use.
type Iterator[T any] struct {
	fetch    PageFunc[T]
	pageSize int
	limit    int

	page      int
	buf       []T
	pos       int
	yielded   int
	total     int
	lastShort bool
	done      bool
	err       error

	logger *slog.Logger
}

// New creates an Iterator. A limit of zero or less means no limit.
func New[T any](fetch PageFunc[T], pageSize, limit int, logger *slog.Logger) *Iterator[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Iterator[T]{
		fetch:    fetch,
		pageSize: pageSize,
		limit:    limit,
		logger:   logger.With("component", "fetcher"),
	}
}

// Next returns the next record, or false when the sequence has ended.
func (it *Iterator[T]) Next(ctx context.Context) (T, bool) {
	var zero T
	if it.done {
		return zero, false
	}
	if it.limit > 0 && it.yielded >= it.limit {
		return it.finish()
	}
	if it.total > 0 && it.yielded >= it.total {
		return it.finish()
	}
	if it.pos >= len(it.buf) {
		if it.page > 0 && (it.lastShort || it.total <= 0) {
			return it.finish()
		}
		if ctx.Err() != nil {
			it.logger.Info("fetch cancelled", "page", it.page, "yielded", it.yielded)
			return it.finish()
		}
		if !it.loadPage(ctx) {
			return it.finish()
		}
	}
	item := it.buf[it.pos]
	it.pos++
	it.yielded++
	return item, true
}

func (it *Iterator[T]) loadPage(ctx context.Context) bool {
	it.page++
	p, err := it.fetch(ctx, it.page)
	if err != nil {
		it.err = err
		it.logger.Warn("page fetch failed, ending sequence",
			"page", it.page,
			"yielded", it.yielded,
			"error", err,
		)
		return false
	}
	if len(p.Items) == 0 {
		it.logger.Debug("empty page, ending sequence", "page", it.page)
		return false
	}
	if it.page == 1 || p.Total > 0 {
		it.total = p.Total
	}
	it.buf = p.Items
	it.pos = 0
	it.lastShort = len(p.Items) < it.pageSize
	it.logger.Debug("page fetched",
		"page", it.page,
		"items", len(p.Items),
		"total", it.total,
	)
	return true
}

func (it *Iterator[T]) finish() (T, bool) {
	var zero T
	it.done = true
	it.buf = nil
	return zero, false
}

// Yielded returns how many records have been returned so far.
func (it *Iterator[T]) Yielded() int {
	return it.yielded
}

// Pages returns how many page requests were made.
func (it *Iterator[T]) Pages() int {
	return it.page
}

// Total returns the total reported by the server, or zero if unknown.
func (it *Iterator[T]) Total() int {
	return it.total
}

// Err returns the page error that ended the sequence, if any.
func (it *Iterator[T]) Err() error {
	return it.err
}
