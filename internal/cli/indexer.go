package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/vlikcc/yargisalzeka.V2/internal/indexer"
	"github.com/vlikcc/yargisalzeka.V2/internal/scheduler"
	apperrors "github.com/vlikcc/yargisalzeka.V2/pkg/errors"
	"github.com/vlikcc/yargisalzeka.V2/pkg/kafka"
	"github.com/vlikcc/yargisalzeka.V2/pkg/resilience"
)

// NewIndexerCommand returns the root command of the indexer binary.
func NewIndexerCommand() *cobra.Command {
	a := &app{}
	root := a.newRoot("indexer", "Rebuild Elasticsearch indexes from the Postgres tables")
	root.AddCommand(a.newReindexCommand(), a.newCheckCommand())
	return root
}

func (a *app) newReindexCommand() *cobra.Command {
	var (
		tables    []string
		batchSize int
		schedule  string
		follow    bool
	)
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Drop, recreate and refill search indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("batch-size") {
				a.cfg.Reindex.BatchSize = batchSize
			}
			if err := a.cfg.Validate(true); err != nil {
				return err
			}
			if len(tables) == 0 {
				tables = a.cfg.Reindex.Tables
			}
			if follow && !a.cfg.Kafka.Enabled {
				return apperrors.New(apperrors.ErrConfiguration, "reindex", "--follow needs kafka to be enabled")
			}
			if !cmd.Flags().Changed("schedule") && !follow {
				schedule = a.cfg.Reindex.Schedule
			}
			if schedule != "" {
				if _, err := scheduler.Validate(schedule, time.Now()); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			es, err := a.openElastic(ctx)
			if err != nil {
				return err
			}
			opts := indexer.Options{
				BatchSize:       a.cfg.Reindex.BatchSize,
				ErrorSampleSize: a.cfg.Reindex.ErrorSampleSize,
				Retry:           resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Second},
				Metrics:         a.metrics,
			}
			if p := a.producer(a.cfg.Kafka.Topics.IndexRebuilt); p != nil {
				opts.Notifier = p
			}
			a.startMetrics(a.checker())
			r := indexer.New(st, es, opts)

			if follow {
				report := func(results []indexer.Result, _ error) {
					printResults(cmd.OutOrStdout(), results)
				}
				consumer := kafka.NewConsumer(a.cfg.Kafka, a.cfg.Kafka.Topics.RunCompleted, r.OnRunCompleted(tables, report))
				a.onClose(consumer.Close)
				return consumer.Run(ctx)
			}
			if schedule == "" {
				results, err := r.ReindexAll(ctx, tables)
				printResults(cmd.OutOrStdout(), results)
				return err
			}
			return scheduler.Run(ctx, schedule, "reindex", func(ctx context.Context) {
				results, err := r.ReindexAll(ctx, tables)
				printResults(cmd.OutOrStdout(), results)
				if err != nil {
					slog.Error("scheduled reindex failed", "error", err)
				}
			})
		},
	}
	cmd.Flags().StringSliceVar(&tables, "table", nil, "tables to reindex (default from config)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "rows per bulk request (default from config)")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression; keep running and reindex on every tick")
	cmd.Flags().BoolVar(&follow, "follow", false, "keep running and reindex after every ingestion run announced on Kafka")
	cmd.MarkFlagsMutuallyExclusive("schedule", "follow")
	return cmd
}
