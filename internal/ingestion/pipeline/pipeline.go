// Package pipeline drives an ingestion run: it pages through the remote API
// per (item type, year), normalizes each record, optionally fetches and
// decodes its body, and upserts it into the sink. Records are processed one
// at a time and in order. A failure on one record is counted and logged and
// never stops the run; a failed page ends only the sequence it belongs to.
//
// Cancelling the context stops the run before the next record or page. The
// record already in flight is finished with a context that ignores the
// cancellation so no half-processed record is left behind.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vlikcc/yargisalzeka.V2/internal/bedesten"
	"github.com/vlikcc/yargisalzeka.V2/internal/content"
	"github.com/vlikcc/yargisalzeka.V2/internal/fetcher"
	"github.com/vlikcc/yargisalzeka.V2/internal/ingestion"
	"github.com/vlikcc/yargisalzeka.V2/internal/ingestion/validator"
	"github.com/vlikcc/yargisalzeka.V2/internal/normalize"
	"github.com/vlikcc/yargisalzeka.V2/pkg/kafka"
	"github.com/vlikcc/yargisalzeka.V2/pkg/logger"
	"github.com/vlikcc/yargisalzeka.V2/pkg/metrics"
)

// API is the part of the remote client a run needs.
type API interface {
	fetcher.DecisionSearcher
	fetcher.LegislationSearcher
	DecisionContent(ctx context.Context, documentID string) (string, error)
	LegislationContent(ctx context.Context, id string) (string, error)
}

// Sink persists canonical records.
type Sink interface {
	UpsertDecision(ctx context.Context, d ingestion.Decision) (ingestion.Ack, error)
	UpsertLegislation(ctx context.Context, l ingestion.Legislation) (ingestion.Ack, error)
}

// Notifier announces finished runs.
type Notifier interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

// Options tunes a Runner. Zero values fall back to the API defaults.
type Options struct {
	DecisionPageSize    int
	LegislationPageSize int
	Cache               content.Cache
	Metrics             *metrics.Metrics
	Notifier            Notifier
	Now                 func() time.Time
}

// Runner executes ingestion jobs. A nil sink makes every run a dry run.
type Runner struct {
	api  API
	sink Sink
	opts Options
}

func New(api API, sink Sink, opts Options) *Runner {
	if opts.DecisionPageSize <= 0 {
		opts.DecisionPageSize = 100
	}
	if opts.LegislationPageSize <= 0 {
		opts.LegislationPageSize = 20
	}
	if opts.Cache == nil {
		opts.Cache = content.NopCache{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{api: api, sink: sink, opts: opts}
}

// DecisionJob selects decisions to ingest. Every item type is combined with
// every year; an empty Years list means no explicit year.
type DecisionJob struct {
	ItemTypes   []string
	Years       []int
	Phrase      string
	UnitID      string
	CaseYear    int
	Limit       int
	WithContent bool
}

// LegislationJob selects legislation to ingest.
type LegislationJob struct {
	Types       []string
	Limit       int
	WithContent bool
}

// Segment reports one (item type, year) sequence of a run.
type Segment struct {
	Family         ingestion.Family `json:"family"`
	ItemType       string           `json:"item_type"`
	Year           int              `json:"year,omitempty"`
	Pages          int              `json:"pages"`
	Total          int              `json:"total"`
	Fetched        int              `json:"fetched"`
	Inserted       int              `json:"inserted"`
	Updated        int              `json:"updated"`
	Failed         int              `json:"failed"`
	Rejected       int              `json:"rejected"`
	ContentMissing int              `json:"content_missing"`
	Diagnostics    int              `json:"diagnostics"`
	PageError      string           `json:"page_error,omitempty"`
}

// Summary reports a whole run.
type Summary struct {
	RunID      string    `json:"run_id"`
	DryRun     bool      `json:"dry_run"`
	Cancelled  bool      `json:"cancelled"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Segments   []Segment `json:"segments"`
}

// Totals adds up all segments.
func (s Summary) Totals() Segment {
	var t Segment
	for _, seg := range s.Segments {
		t.Pages += seg.Pages
		t.Total += seg.Total
		t.Fetched += seg.Fetched
		t.Inserted += seg.Inserted
		t.Updated += seg.Updated
		t.Failed += seg.Failed
		t.Rejected += seg.Rejected
		t.ContentMissing += seg.ContentMissing
		t.Diagnostics += seg.Diagnostics
	}
	return t
}

func (r *Runner) start(ctx context.Context) (context.Context, *Summary) {
	runID := uuid.NewString()
	return logger.WithRunID(ctx, runID), &Summary{
		RunID:     runID,
		DryRun:    r.sink == nil,
		StartedAt: r.opts.Now(),
	}
}

// RunDecisions ingests decisions. The returned summary is complete even when
// the run was cancelled.
func (r *Runner) RunDecisions(ctx context.Context, job DecisionJob) Summary {
	ctx, summary := r.start(ctx)
	log := logger.FromContext(ctx).With("component", "pipeline", "family", ingestion.FamilyDecision)
	years := job.Years
	if len(years) == 0 {
		years = []int{0}
	}
	log.Info("decision run started", "item_types", job.ItemTypes, "years", job.Years, "limit", job.Limit, "with_content", job.WithContent, "dry_run", summary.DryRun)

loop:
	for _, itemType := range job.ItemTypes {
		for _, year := range years {
			if ctx.Err() != nil {
				summary.Cancelled = true
				break loop
			}
			q := bedesten.DecisionQuery{
				ItemType:     itemType,
				Phrase:       job.Phrase,
				UnitID:       job.UnitID,
				CaseYear:     job.CaseYear,
				DecisionYear: year,
			}
			if !q.HasFilter() {
				q.DecisionYear = r.opts.Now().Year()
			}
			seg := r.decisionSegment(ctx, log, q, job)
			summary.Segments = append(summary.Segments, seg)
			log.Info("segment finished",
				"item_type", itemType,
				"year", q.DecisionYear,
				"fetched", seg.Fetched,
				"inserted", seg.Inserted,
				"updated", seg.Updated,
				"failed", seg.Failed,
			)
		}
	}
	if ctx.Err() != nil {
		summary.Cancelled = true
	}
	return r.finish(ctx, log, summary)
}

func (r *Runner) decisionSegment(ctx context.Context, log *slog.Logger, q bedesten.DecisionQuery, job DecisionJob) Segment {
	seg := Segment{Family: ingestion.FamilyDecision, ItemType: q.ItemType, Year: q.DecisionYear}
	pages := fetcher.Decisions(r.api, q, r.opts.DecisionPageSize, r.opts.Metrics)
	it := fetcher.New(pages, r.opts.DecisionPageSize, job.Limit, log.With("item_type", q.ItemType, "year", q.DecisionYear))
	for ctx.Err() == nil {
		raw, ok := it.Next(ctx)
		if !ok {
			break
		}
		r.processDecision(context.WithoutCancel(ctx), log, raw, q.ItemType, job.WithContent, &seg)
	}
	seg.Pages = it.Pages()
	seg.Total = it.Total()
	if err := it.Err(); err != nil {
		seg.PageError = err.Error()
	}
	return seg
}

func (r *Runner) processDecision(ctx context.Context, log *slog.Logger, raw bedesten.RawDecision, itemType string, withContent bool, seg *Segment) {
	seg.Fetched++
	r.opts.Metrics.Record(string(ingestion.FamilyDecision), itemType)

	d := normalize.Decision(raw)
	if d.ItemType == "" {
		d.ItemType = itemType
	}
	r.recordDiagnostics(log, ingestion.FamilyDecision, d.ExternalID, d.Diagnostics, seg)

	if err := validator.ValidateDecision(&d); err != nil {
		seg.Rejected++
		log.Warn("decision rejected", "error", err)
		return
	}
	if withContent {
		d.Body = r.fetchBody(ctx, log, ingestion.FamilyDecision, d.ExternalID, r.api.DecisionContent)
		if d.Body == nil {
			seg.ContentMissing++
		}
	}
	if r.sink == nil {
		return
	}
	ack, err := r.sink.UpsertDecision(ctx, d)
	r.countUpsert(log, ingestion.FamilyDecision, d.ExternalID, ack, err, seg)
}

// RunLegislation ingests legislation.
func (r *Runner) RunLegislation(ctx context.Context, job LegislationJob) Summary {
	ctx, summary := r.start(ctx)
	log := logger.FromContext(ctx).With("component", "pipeline", "family", ingestion.FamilyLegislation)
	log.Info("legislation run started", "types", job.Types, "limit", job.Limit, "with_content", job.WithContent, "dry_run", summary.DryRun)

	for _, typ := range job.Types {
		if ctx.Err() != nil {
			break
		}
		seg := Segment{Family: ingestion.FamilyLegislation, ItemType: typ}
		pages := fetcher.Legislation(r.api, typ, r.opts.LegislationPageSize, r.opts.Metrics)
		it := fetcher.New(pages, r.opts.LegislationPageSize, job.Limit, log.With("item_type", typ))
		for ctx.Err() == nil {
			raw, ok := it.Next(ctx)
			if !ok {
				break
			}
			r.processLegislation(context.WithoutCancel(ctx), log, raw, typ, job.WithContent, &seg)
		}
		seg.Pages = it.Pages()
		seg.Total = it.Total()
		if err := it.Err(); err != nil {
			seg.PageError = err.Error()
		}
		summary.Segments = append(summary.Segments, seg)
		log.Info("segment finished", "item_type", typ, "fetched", seg.Fetched, "inserted", seg.Inserted, "updated", seg.Updated, "failed", seg.Failed)
	}
	if ctx.Err() != nil {
		summary.Cancelled = true
	}
	return r.finish(ctx, log, summary)
}

func (r *Runner) processLegislation(ctx context.Context, log *slog.Logger, raw bedesten.RawLegislation, typ string, withContent bool, seg *Segment) {
	seg.Fetched++
	r.opts.Metrics.Record(string(ingestion.FamilyLegislation), typ)

	l := normalize.Legislation(raw)
	if l.Type == "" {
		l.Type = typ
	}
	r.recordDiagnostics(log, ingestion.FamilyLegislation, l.ExternalID, l.Diagnostics, seg)

	if err := validator.ValidateLegislation(&l); err != nil {
		seg.Rejected++
		log.Warn("legislation rejected", "error", err)
		return
	}
	if withContent {
		l.Body = r.fetchBody(ctx, log, ingestion.FamilyLegislation, l.ExternalID, r.api.LegislationContent)
		if l.Body == nil {
			seg.ContentMissing++
		}
	}
	if r.sink == nil {
		return
	}
	ack, err := r.sink.UpsertLegislation(ctx, l)
	r.countUpsert(log, ingestion.FamilyLegislation, l.ExternalID, ack, err, seg)
}

func (r *Runner) recordDiagnostics(log *slog.Logger, family ingestion.Family, id string, diags ingestion.Diagnostics, seg *Segment) {
	if len(diags) == 0 {
		return
	}
	seg.Diagnostics += len(diags)
	for _, fe := range diags {
		r.opts.Metrics.Diagnostic(string(family), fe.Field)
	}
	log.Warn("fields could not be normalized", "external_id", id, "fields", diags.Fields(), "detail", diags.String())
}

func (r *Runner) countUpsert(log *slog.Logger, family ingestion.Family, id string, ack ingestion.Ack, err error, seg *Segment) {
	switch {
	case err != nil:
		seg.Failed++
		r.opts.Metrics.Upsert(string(family), "failed")
		log.Error("upsert failed", "external_id", id, "error", err)
	case ack.Inserted:
		seg.Inserted++
		r.opts.Metrics.Upsert(string(family), "inserted")
	default:
		seg.Updated++
		r.opts.Metrics.Upsert(string(family), "updated")
	}
}

// fetchBody returns the decoded body of a document, consulting the cache
// first. Any failure yields nil so the record is stored without a body.
func (r *Runner) fetchBody(ctx context.Context, log *slog.Logger, family ingestion.Family, id string, fetch func(context.Context, string) (string, error)) *string {
	key := content.Key(string(family), id)
	if text, ok := r.opts.Cache.Get(ctx, key); ok && text != "" {
		r.opts.Metrics.Content(string(family), "cache_hit")
		return &text
	}
	encoded, err := fetch(ctx, id)
	if err != nil {
		r.opts.Metrics.Content(string(family), "error")
		log.Warn("content fetch failed", "external_id", id, "error", err)
		return nil
	}
	text := content.Decode(encoded)
	if text == "" {
		r.opts.Metrics.Content(string(family), "empty")
		return nil
	}
	r.opts.Cache.Set(ctx, key, text)
	r.opts.Metrics.Content(string(family), "decoded")
	return &text
}

func (r *Runner) finish(ctx context.Context, log *slog.Logger, summary *Summary) Summary {
	summary.FinishedAt = r.opts.Now()
	totals := summary.Totals()
	log.Info("run finished",
		"fetched", totals.Fetched,
		"inserted", totals.Inserted,
		"updated", totals.Updated,
		"failed", totals.Failed,
		"rejected", totals.Rejected,
		"content_missing", totals.ContentMissing,
		"diagnostics", totals.Diagnostics,
		"cancelled", summary.Cancelled,
		"took", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond),
	)
	if r.opts.Notifier != nil {
		event := kafka.Event{Key: summary.RunID, Value: summary}
		if err := r.opts.Notifier.Publish(context.WithoutCancel(ctx), event); err != nil {
			log.Warn("run notification failed", "error", err)
		}
	}
	return *summary
}
