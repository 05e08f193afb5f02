package pipeline

import (
	"context"
	"time"

	"github.com/vlikcc/yargisalzeka.V2/internal/bedesten"
	"github.com/vlikcc/yargisalzeka.V2/internal/ingestion"
)

// EstimateLine is the size of one (item type, year) sequence.
type EstimateLine struct {
	Family   ingestion.Family
	ItemType string
	Year     int
	Total    int
	Requests int
	Err      error
}

// Estimate predicts how long a run would take.
type Estimate struct {
	Lines    []EstimateLine
	Records  int
	Requests int
	Duration time.Duration
}

func (e *Estimate) add(line EstimateLine, perRequest time.Duration) {
	e.Lines = append(e.Lines, line)
	e.Records += line.Total
	e.Requests += line.Requests
	e.Duration += time.Duration(line.Requests) * perRequest
}

// EstimateDecisions asks the API for the size of every sequence of job with
// a one-record page and converts it to a request count and a duration, given
// the time one request takes including the pre-request delay.
func (r *Runner) EstimateDecisions(ctx context.Context, job DecisionJob, perRequest time.Duration) Estimate {
	var est Estimate
	years := job.Years
	if len(years) == 0 {
		years = []int{0}
	}
	for _, itemType := range job.ItemTypes {
		for _, year := range years {
			if ctx.Err() != nil {
				return est
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
			line := EstimateLine{Family: ingestion.FamilyDecision, ItemType: itemType, Year: q.DecisionYear}
			page, err := r.api.SearchDecisions(ctx, q, 1, 1)
			if err != nil {
				line.Err = err
			} else {
				line.Total = capTotal(page.Total, job.Limit)
				line.Requests = requestCount(line.Total, r.opts.DecisionPageSize, job.WithContent)
			}
			est.add(line, perRequest)
		}
	}
	return est
}

// EstimateLegislation is EstimateDecisions for legislation types.
func (r *Runner) EstimateLegislation(ctx context.Context, job LegislationJob, perRequest time.Duration) Estimate {
	var est Estimate
	for _, typ := range job.Types {
		if ctx.Err() != nil {
			return est
		}
		line := EstimateLine{Family: ingestion.FamilyLegislation, ItemType: typ}
		page, err := r.api.SearchLegislation(ctx, typ, 1, 1)
		if err != nil {
			line.Err = err
		} else {
			line.Total = capTotal(page.Total, job.Limit)
			line.Requests = requestCount(line.Total, r.opts.LegislationPageSize, job.WithContent)
		}
		est.add(line, perRequest)
	}
	return est
}

func capTotal(total, limit int) int {
	if limit > 0 && total > limit {
		return limit
	}
	return total
}

// requestCount is the number of search pages plus, with content, one content
// request per record.
func requestCount(total, pageSize int, withContent bool) int {
	if total <= 0 {
		return 1
	}
	n := (total + pageSize - 1) / pageSize
	if withContent {
		n += total
	}
	return n
}
