package fetcher

import (
	"context"

	"github.com/vlikcc/yargisalzeka.V2/internal/bedesten"
	"github.com/vlikcc/yargisalzeka.V2/pkg/metrics"
)

// DecisionSearcher is the part of the API client used to page decisions.
type DecisionSearcher interface {
	SearchDecisions(ctx context.Context, q bedesten.DecisionQuery, page, pageSize int) (*bedesten.DecisionPage, error)
}

// LegislationSearcher is the part of the API client used to page legislation.
type LegislationSearcher interface {
	SearchLegislation(ctx context.Context, legislationType string, page, pageSize int) (*bedesten.LegislationPage, error)
}

// Decisions returns a PageFunc over a decision query.
func Decisions(api DecisionSearcher, q bedesten.DecisionQuery, pageSize int, m *metrics.Metrics) PageFunc[bedesten.RawDecision] {
	return func(ctx context.Context, page int) (Page[bedesten.RawDecision], error) {
		p, err := api.SearchDecisions(ctx, q, page, pageSize)
		if err != nil {
			m.Page("decision", "error")
			return Page[bedesten.RawDecision]{}, err
		}
		m.Page("decision", pageOutcome(len(p.Items)))
		return Page[bedesten.RawDecision]{Items: p.Items, Total: p.Total}, nil
	}
}

// Legislation returns a PageFunc over one legislation type.
func Legislation(api LegislationSearcher, legislationType string, pageSize int, m *metrics.Metrics) PageFunc[bedesten.RawLegislation] {
	return func(ctx context.Context, page int) (Page[bedesten.RawLegislation], error) {
		p, err := api.SearchLegislation(ctx, legislationType, page, pageSize)
		if err != nil {
			m.Page("legislation", "error")
			return Page[bedesten.RawLegislation]{}, err
		}
		m.Page("legislation", pageOutcome(len(p.Items)))
		return Page[bedesten.RawLegislation]{Items: p.Items, Total: p.Total}, nil
	}
}

func pageOutcome(n int) string {
	if n == 0 {
		return "empty"
	}
	return "ok"
}
