// Package indexer rebuilds search indexes from the relational tables. Each
// rebuild is a full snapshot: the index is dropped, recreated with the
// Turkish analyzer mapping and refilled from a streaming read of the table,
// so documents of deleted rows never survive a rebuild.
//
// Per-document rejections are counted and a bounded sample of their reasons
// is kept; they never abort the rebuild.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/vlikcc/yargisalzeka.V2/internal/store"
	"github.com/vlikcc/yargisalzeka.V2/pkg/elastic"
	apperrors "github.com/vlikcc/yargisalzeka.V2/pkg/errors"
	"github.com/vlikcc/yargisalzeka.V2/pkg/kafka"
	"github.com/vlikcc/yargisalzeka.V2/pkg/metrics"
	"github.com/vlikcc/yargisalzeka.V2/pkg/resilience"
)

// RowSource streams relational rows.
type RowSource interface {
	TableExists(ctx context.Context, table string) (bool, error)
	CountRows(ctx context.Context, table string) (int64, error)
	StreamRows(ctx context.Context, table string, columns []string, batchSize int, fn func([]store.Row) error) error
}

// SearchIndex is the index lifecycle and bulk API the rebuild uses.
type SearchIndex interface {
	IndexExists(ctx context.Context, name string) (bool, error)
	DeleteIndex(ctx context.Context, name string) error
	CreateIndex(ctx context.Context, name string, body []byte) error
	Bulk(ctx context.Context, index string, docs []elastic.BulkDoc) (elastic.BulkResult, error)
}

// Counter is implemented by indexes that can report their document count
// after a rebuild.
type Counter interface {
	Refresh(ctx context.Context, index string) error
	Count(ctx context.Context, index string) (int64, error)
}

// Notifier announces rebuilt indexes.
type Notifier interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

// Options tunes a Reindexer.
type Options struct {
	BatchSize       int
	ErrorSampleSize int
	Retry           resilience.RetryConfig
	Metrics         *metrics.Metrics
	Notifier        Notifier
}

// Result reports the rebuild of one table.
type Result struct {
	Table      string        `json:"table"`
	Index      string        `json:"index"`
	Skipped    bool          `json:"skipped"`
	Rows       int64         `json:"rows"`
	Indexed    int           `json:"indexed"`
	Failed     int           `json:"failed"`
	Errors     []string      `json:"errors,omitempty"`
	IndexCount int64         `json:"index_count"`
	Took       time.Duration `json:"took"`
}

// Reindexer copies tables into search indexes.
type Reindexer struct {
	rows   RowSource
	index  SearchIndex
	opts   Options
	logger *slog.Logger
}

func New(rows RowSource, index SearchIndex, opts Options) *Reindexer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.ErrorSampleSize <= 0 {
		opts.ErrorSampleSize = 5
	}
	return &Reindexer{
		rows:   rows,
		index:  index,
		opts:   opts,
		logger: slog.Default().With("component", "reindexer"),
	}
}

// Reindex rebuilds the index of spec from its table. A missing table is
// reported as skipped, not as an error.
func (r *Reindexer) Reindex(ctx context.Context, spec TableSpec) (Result, error) {
	start := time.Now()
	res := Result{Table: spec.Table, Index: spec.Index}
	log := r.logger.With("table", spec.Table, "index", spec.Index)

	exists, err := r.rows.TableExists(ctx, spec.Table)
	if err != nil {
		return res, err
	}
	if !exists {
		log.Warn("table not found, skipping")
		res.Skipped = true
		return res, nil
	}

	res.Rows, err = r.rows.CountRows(ctx, spec.Table)
	if err != nil {
		return res, err
	}
	log.Info("rebuilding index", "rows", res.Rows, "batch_size", r.opts.BatchSize)

	if err := r.recreate(ctx, spec); err != nil {
		return res, err
	}

	err = r.rows.StreamRows(ctx, spec.Table, spec.Columns, r.opts.BatchSize, func(batch []store.Row) error {
		r.loadBatch(ctx, log, spec, batch, &res)
		log.Info("batch loaded", "indexed", res.Indexed, "failed", res.Failed, "rows", res.Rows)
		return ctx.Err()
	})
	if err != nil {
		return res, fmt.Errorf("streaming %s: %w", spec.Table, err)
	}

	if c, ok := r.index.(Counter); ok {
		if err := c.Refresh(ctx, spec.Index); err == nil {
			res.IndexCount, _ = c.Count(ctx, spec.Index)
		}
	}
	res.Took = time.Since(start)
	r.opts.Metrics.ReindexTook(spec.Index, res.Took)
	log.Info("index rebuilt",
		"indexed", res.Indexed,
		"failed", res.Failed,
		"index_count", res.IndexCount,
		"took", res.Took.Round(time.Millisecond),
	)
	for _, sample := range res.Errors {
		log.Warn("indexing error sample", "error", sample)
	}
	r.notify(ctx, log, res)
	return res, nil
}

func (r *Reindexer) recreate(ctx context.Context, spec TableSpec) error {
	return resilience.Retry(ctx, "recreate index "+spec.Index, r.opts.Retry, func() error {
		exists, err := r.index.IndexExists(ctx, spec.Index)
		if err != nil {
			return err
		}
		if exists {
			if err := r.index.DeleteIndex(ctx, spec.Index); err != nil {
				return err
			}
		}
		return r.index.CreateIndex(ctx, spec.Index, spec.Mapping)
	})
}

func (r *Reindexer) loadBatch(ctx context.Context, log *slog.Logger, spec TableSpec, batch []store.Row, res *Result) {
	docs := make([]elastic.BulkDoc, 0, len(batch))
	for _, row := range batch {
		docs = append(docs, elastic.BulkDoc{
			ID:     strconv.FormatInt(rowID(row), 10),
			Source: spec.Document(row),
		})
	}

	var out elastic.BulkResult
	err := resilience.Retry(ctx, "bulk "+spec.Index, r.opts.Retry, func() error {
		var err error
		out, err = r.index.Bulk(ctx, spec.Index, docs)
		if err != nil && apperrors.KindOf(err) != apperrors.KindTransient {
			return resilience.Permanent(err)
		}
		return err
	})
	if err != nil {
		log.Error("bulk request failed", "docs", len(docs), "error", err)
		res.Failed += len(docs)
		r.sample(res, fmt.Sprintf("bulk request of %d documents: %v", len(docs), err))
		r.opts.Metrics.Reindexed(spec.Index, 0, len(docs))
		return
	}
	res.Indexed += out.Indexed
	res.Failed += len(out.Failures)
	for _, f := range out.Failures {
		r.sample(res, f.String())
	}
	r.opts.Metrics.Reindexed(spec.Index, out.Indexed, len(out.Failures))
}

func (r *Reindexer) sample(res *Result, msg string) {
	if len(res.Errors) < r.opts.ErrorSampleSize {
		res.Errors = append(res.Errors, msg)
	}
}

func (r *Reindexer) notify(ctx context.Context, log *slog.Logger, res Result) {
	if r.opts.Notifier == nil {
		return
	}
	event := kafka.Event{Key: res.Index, Value: res}
	if err := r.opts.Notifier.Publish(context.WithoutCancel(ctx), event); err != nil {
		log.Warn("index rebuilt notification failed", "error", err)
	}
}

// ReindexAll rebuilds every named table in order. An unknown table name is a
// configuration error; a failing table is logged and the next one is tried.
func (r *Reindexer) ReindexAll(ctx context.Context, tables []string) ([]Result, error) {
	specs := Specs()
	for _, t := range tables {
		if _, ok := specs[t]; !ok {
			return nil, apperrors.Newf(apperrors.ErrConfiguration, "reindex", "unknown table %q", t)
		}
	}
	var (
		results []Result
		failed  []string
	)
	for _, t := range tables {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		res, err := r.Reindex(ctx, specs[t])
		results = append(results, res)
		if err != nil {
			r.logger.Error("reindex failed", "table", t, "error", err)
			failed = append(failed, t)
		}
	}
	if len(failed) > 0 {
		return results, apperrors.Newf(apperrors.ErrIndexOperation, "reindex", "tables failed: %v", failed)
	}
	return results, nil
}
