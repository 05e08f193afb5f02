package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vlikcc/yargisalzeka.V2/internal/bedesten"
	"github.com/vlikcc/yargisalzeka.V2/internal/ingestion"
	"github.com/vlikcc/yargisalzeka.V2/internal/ingestion/pipeline"
	"github.com/vlikcc/yargisalzeka.V2/internal/store"
	apperrors "github.com/vlikcc/yargisalzeka.V2/pkg/errors"
)

// NewIngestionCommand returns the root command of the ingestion binary.
func NewIngestionCommand() *cobra.Command {
	a := &app{}
	root := a.newRoot("ingestion", "Fetch court decisions and legislation from the public API into Postgres")
	root.AddCommand(
		a.newDecisionsCommand(),
		a.newLegislationCommand(),
		a.newTypesCommand(),
		a.newUnitsCommand(),
		a.newStatsCommand(),
		a.newEstimateCommand(),
		a.newCheckCommand(),
	)
	return root
}

type decisionFlags struct {
	types       []string
	year        int
	yearRange   []int
	caseYear    int
	phrase      string
	unit        string
	limit       int
	withContent bool
	delay       time.Duration
	dryRun      bool
}

func (f *decisionFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringSliceVar(&f.types, "type", nil, "decision item types (default: all)")
	fs.IntVar(&f.year, "year", 0, "decision year")
	fs.IntSliceVar(&f.yearRange, "year-range", nil, "inclusive decision year range as START,END")
	fs.IntVar(&f.caseYear, "case-year", 0, "case (esas) year filter")
	fs.StringVar(&f.phrase, "phrase", "", "full-text phrase filter")
	fs.StringVar(&f.unit, "unit", "", "court or chamber id filter")
	fs.IntVar(&f.limit, "limit", 0, "maximum records per item type and year (0: no limit)")
	fs.BoolVar(&f.withContent, "with-content", false, "fetch and decode every decision body")
	fs.DurationVar(&f.delay, "delay", 0, "pause before every API request (default from config)")
	cmd.MarkFlagsMutuallyExclusive("year", "year-range")
	cmd.MarkFlagsMutuallyExclusive("case-year", "year-range")
}

// job turns the flags into a pipeline job. Years default to the configured
// look-back window only when no other narrowing filter was given.
func (f *decisionFlags) job(a *app, now time.Time) (pipeline.DecisionJob, error) {
	types, err := resolveTypes(f.types, bedesten.DecisionItemTypes)
	if err != nil {
		return pipeline.DecisionJob{}, err
	}
	var years []int
	switch {
	case len(f.yearRange) > 0:
		years, err = parseYearRange(f.yearRange)
		if err != nil {
			return pipeline.DecisionJob{}, err
		}
	case f.year != 0:
		years = []int{f.year}
	case f.phrase == "" && f.unit == "" && f.caseYear == 0 && a.cfg.Ingest.YearsBack > 0:
		years, _ = parseYearRange([]int{now.Year() - a.cfg.Ingest.YearsBack, now.Year()})
	}
	return pipeline.DecisionJob{
		ItemTypes:   types,
		Years:       years,
		Phrase:      f.phrase,
		UnitID:      f.unit,
		CaseYear:    f.caseYear,
		Limit:       f.limit,
		WithContent: f.withContent || a.cfg.Ingest.WithContent,
	}, nil
}

// parseYearRange expands START,END into every year between them, newest
// first so recent decisions land before older ones.
func parseYearRange(bounds []int) ([]int, error) {
	if len(bounds) != 2 {
		return nil, apperrors.Newf(apperrors.ErrConfiguration, "year-range", "expected START,END, got %d values", len(bounds))
	}
	start, end := bounds[0], bounds[1]
	if start <= 0 || end <= 0 || start > end {
		return nil, apperrors.Newf(apperrors.ErrConfiguration, "year-range", "invalid range %d..%d", start, end)
	}
	years := make([]int, 0, end-start+1)
	for y := end; y >= start; y-- {
		years = append(years, y)
	}
	return years, nil
}

// resolveTypes validates requested types against a catalogue; none means all.
func resolveTypes(requested []string, catalogue map[string]string) ([]string, error) {
	if len(requested) == 0 {
		return bedesten.SortedKeys(catalogue), nil
	}
	out := make([]string, 0, len(requested))
	for _, t := range requested {
		t = strings.ToUpper(strings.TrimSpace(t))
		if _, ok := catalogue[t]; !ok {
			return nil, apperrors.Newf(apperrors.ErrUnknownItemType, "types", "unknown type %q (known: %s)",
				t, strings.Join(bedesten.SortedKeys(catalogue), ", "))
		}
		out = append(out, t)
	}
	return out, nil
}

func (a *app) newDecisionsCommand() *cobra.Command {
	f := &decisionFlags{}
	cmd := &cobra.Command{
		Use:   "decisions",
		Short: "Ingest court decisions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.Validate(!f.dryRun); err != nil {
				return err
			}
			job, err := f.job(a, time.Now())
			if err != nil {
				return err
			}
			runner, st, err := a.runner(cmd, f.delay, f.dryRun)
			if err != nil {
				return err
			}
			summary := runner.RunDecisions(cmd.Context(), job)
			return a.report(cmd, st, ingestion.FamilyDecision, summary)
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "fetch and normalize without writing to Postgres")
	return cmd
}

func (a *app) newLegislationCommand() *cobra.Command {
	var (
		types       []string
		limit       int
		withContent bool
		delay       time.Duration
		dryRun      bool
	)
	cmd := &cobra.Command{
		Use:   "legislation",
		Short: "Ingest legislation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.Validate(!dryRun); err != nil {
				return err
			}
			resolved, err := resolveTypes(types, bedesten.LegislationTypes)
			if err != nil {
				return err
			}
			runner, st, err := a.runner(cmd, delay, dryRun)
			if err != nil {
				return err
			}
			summary := runner.RunLegislation(cmd.Context(), pipeline.LegislationJob{
				Types:       resolved,
				Limit:       limit,
				WithContent: withContent || a.cfg.Ingest.WithContent,
			})
			return a.report(cmd, st, ingestion.FamilyLegislation, summary)
		},
	}
	cmd.Flags().StringSliceVar(&types, "type", nil, "legislation types (default: all)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum records per type (0: no limit)")
	cmd.Flags().BoolVar(&withContent, "with-content", false, "fetch and decode every legislation body")
	cmd.Flags().DurationVar(&delay, "delay", 0, "pause before every API request (default from config)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "fetch and normalize without writing to Postgres")
	return cmd
}

// runner wires the API client, the store (unless dry run), the content cache
// and the run notifier into a pipeline runner.
func (a *app) runner(cmd *cobra.Command, delay time.Duration, dryRun bool) (*pipeline.Runner, *store.Store, error) {
	ctx := cmd.Context()
	var (
		st   *store.Store
		sink pipeline.Sink
	)
	if !dryRun {
		var err error
		st, err = a.openStore(ctx)
		if err != nil {
			return nil, nil, err
		}
		sink = st
	}
	api := a.apiClient(delay, cmd.Flags().Changed("delay"))
	opts := pipeline.Options{
		DecisionPageSize:    a.cfg.Source.DecisionPageSize,
		LegislationPageSize: a.cfg.Source.LegislationPageSize,
		Cache:               a.contentCache(),
		Metrics:             a.metrics,
	}
	if p := a.producer(a.cfg.Kafka.Topics.RunCompleted); p != nil {
		opts.Notifier = p
	}
	a.startMetrics(nil)
	return pipeline.New(api, sink, opts), st, nil
}

// report prints the run summary and the stored totals. Totals are printed
// even after an interrupt.
func (a *app) report(cmd *cobra.Command, st *store.Store, family ingestion.Family, summary pipeline.Summary) error {
	out := cmd.OutOrStdout()
	printSummary(out, summary)
	if st != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 30*time.Second)
		defer cancel()
		stats, err := st.Stats(ctx, family)
		if err != nil {
			slog.Warn("reading stats failed", "family", family, "error", err)
		} else {
			printStats(out, stats)
		}
	}
	if summary.Cancelled {
		return apperrors.New(apperrors.ErrCancelled, "ingest", "run interrupted")
	}
	return nil
}

func (a *app) newTypesCommand() *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List decision item types and legislation types",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if !remote {
				printCatalogue(out, "Decision item types", bedesten.DecisionItemTypes)
				printCatalogue(out, "Legislation types", bedesten.LegislationTypes)
				return nil
			}
			api := a.apiClient(0, false)
			decisions, err := api.DecisionItemTypes(cmd.Context())
			if err != nil {
				return err
			}
			printEntries(out, "Decision item types", decisions)
			legislation, err := api.LegislationTypes(cmd.Context())
			if err != nil {
				return err
			}
			printEntries(out, "Legislation types", legislation)
			return nil
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "ask the API instead of printing the built-in catalogue")
	return cmd
}

func (a *app) newUnitsCommand() *cobra.Command {
	var itemType string
	cmd := &cobra.Command{
		Use:   "units",
		Short: "List courts and chambers of a decision item type",
		RunE: func(cmd *cobra.Command, _ []string) error {
			types, err := resolveTypes([]string{itemType}, bedesten.DecisionItemTypes)
			if err != nil {
				return err
			}
			units, err := a.apiClient(0, false).DecisionUnits(cmd.Context(), types[0])
			if err != nil {
				return err
			}
			sort.Slice(units, func(i, j int) bool {
				return units[i].Lookup("birimAdi", "name") < units[j].Lookup("birimAdi", "name")
			})
			printEntries(cmd.OutOrStdout(), fmt.Sprintf("Units of %s", types[0]), units)
			return nil
		},
	}
	cmd.Flags().StringVar(&itemType, "type", "YARGITAYKARARI", "decision item type")
	return cmd
}

func (a *app) newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print stored record counts per classification",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.Validate(true); err != nil {
				return err
			}
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			for _, family := range []ingestion.Family{ingestion.FamilyDecision, ingestion.FamilyLegislation} {
				stats, err := st.Stats(cmd.Context(), family)
				if err != nil {
					return err
				}
				printStats(cmd.OutOrStdout(), stats)
			}
			return nil
		},
	}
}

func (a *app) newEstimateCommand() *cobra.Command {
	f := &decisionFlags{}
	var (
		family  string
		latency time.Duration
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate how many requests and how long a run would take",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.Validate(false); err != nil {
				return err
			}
			api := a.apiClient(f.delay, cmd.Flags().Changed("delay"))
			delay := a.cfg.Source.RequestDelay
			if cmd.Flags().Changed("delay") {
				delay = f.delay
			}
			perRequest := delay + latency
			runner := pipeline.New(api, nil, pipeline.Options{
				DecisionPageSize:    a.cfg.Source.DecisionPageSize,
				LegislationPageSize: a.cfg.Source.LegislationPageSize,
			})

			var est pipeline.Estimate
			switch ingestion.Family(family) {
			case ingestion.FamilyDecision:
				job, err := f.job(a, time.Now())
				if err != nil {
					return err
				}
				est = runner.EstimateDecisions(cmd.Context(), job, perRequest)
			case ingestion.FamilyLegislation:
				types, err := resolveTypes(f.types, bedesten.LegislationTypes)
				if err != nil {
					return err
				}
				est = runner.EstimateLegislation(cmd.Context(), pipeline.LegislationJob{
					Types:       types,
					Limit:       f.limit,
					WithContent: f.withContent || a.cfg.Ingest.WithContent,
				}, perRequest)
			default:
				return apperrors.Newf(apperrors.ErrConfiguration, "estimate", "unknown family %q", family)
			}
			printEstimate(cmd.OutOrStdout(), est)
			return cmd.Context().Err()
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&family, "family", string(ingestion.FamilyDecision), "decision or legislation")
	cmd.Flags().DurationVar(&latency, "latency", 500*time.Millisecond, "assumed response time of one request")
	return cmd
}
