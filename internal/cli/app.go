// Package cli builds the cobra command trees of the ingestion and indexer
// binaries and wires configuration into the components they run.
package cli

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/vlikcc/yargisalzeka.V2/internal/bedesten"
	"github.com/vlikcc/yargisalzeka.V2/internal/content"
	"github.com/vlikcc/yargisalzeka.V2/internal/store"
	"github.com/vlikcc/yargisalzeka.V2/pkg/config"
	"github.com/vlikcc/yargisalzeka.V2/pkg/elastic"
	apperrors "github.com/vlikcc/yargisalzeka.V2/pkg/errors"
	"github.com/vlikcc/yargisalzeka.V2/pkg/health"
	"github.com/vlikcc/yargisalzeka.V2/pkg/kafka"
	"github.com/vlikcc/yargisalzeka.V2/pkg/logger"
	"github.com/vlikcc/yargisalzeka.V2/pkg/metrics"
	"github.com/vlikcc/yargisalzeka.V2/pkg/postgres"
	"github.com/vlikcc/yargisalzeka.V2/pkg/redis"
	"github.com/vlikcc/yargisalzeka.V2/pkg/resilience"
)

// app carries what every command of a binary shares.
type app struct {
	configPath string
	cfg        *config.Config
	metrics    *metrics.Metrics
	closers    []func() error
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return apperrors.Newf(apperrors.ErrConfiguration, "config.load", "%v", err)
	}
	closeLog, err := logger.Setup(cfg.Logging)
	if err != nil {
		return apperrors.Newf(apperrors.ErrConfiguration, "logger.setup", "%v", err)
	}
	a.cfg = cfg
	a.metrics = metrics.New()
	a.closers = append(a.closers, closeLog)
	return nil
}

func (a *app) teardown(*cobra.Command, []string) error {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
	return nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *app) newRoot(use, short string) *cobra.Command {
	root := &cobra.Command{
		Use:                use,
		Short:              short,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to YAML config file")
	return root
}

func (a *app) apiClient(delay time.Duration, delaySet bool) *bedesten.Client {
	opts := []bedesten.Option{bedesten.WithMetrics(a.metrics)}
	if delaySet {
		opts = append(opts, bedesten.WithDelay(delay))
	}
	return bedesten.New(a.cfg.Source, opts...)
}

// openStore connects to Postgres, retrying briefly, and makes sure the
// schema exists.
func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	var pg *postgres.Client
	err := resilience.Retry(ctx, "connect postgres", resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Second}, func() error {
		var err error
		pg, err = postgres.Connect(ctx, a.cfg.Postgres)
		return err
	})
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrPersistence, "postgres.connect", "%v", err)
	}
	a.onClose(pg.Close)
	st := store.New(pg)
	if err := st.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

func (a *app) openElastic(ctx context.Context) (*elastic.Client, error) {
	es, err := elastic.NewClient(a.cfg.Elasticsearch)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrConfiguration, "elastic.client", "%v", err)
	}
	err = resilience.Retry(ctx, "ping elasticsearch", resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Second}, func() error {
		return es.Ping(ctx)
	})
	if err != nil {
		return nil, err
	}
	return es, nil
}

// contentCache returns the Redis cache when configured. A Redis outage only
// costs cache hits, so it degrades to no cache.
func (a *app) contentCache() content.Cache {
	if !a.cfg.Redis.Enabled {
		return content.NopCache{}
	}
	rdb, err := redis.NewClient(a.cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, content cache disabled", "addr", a.cfg.Redis.Addr, "error", err)
		return content.NopCache{}
	}
	a.onClose(rdb.Close)
	return content.NewRedisCache(rdb, a.cfg.Redis.ContentTTL)
}

// producer returns a Kafka producer for topic, or nil when Kafka is off.
func (a *app) producer(topic string) *kafka.Producer {
	if !a.cfg.Kafka.Enabled {
		return nil
	}
	p := kafka.NewProducer(a.cfg.Kafka, topic)
	a.onClose(p.Close)
	return p
}

// startMetrics serves /metrics and a readiness endpoint while a job runs.
func (a *app) startMetrics(checker *health.Checker) {
	if !a.cfg.Metrics.Enabled {
		return
	}
	extra := map[string]http.Handler{}
	if checker != nil {
		extra["/health/ready"] = checker.ReadyHandler()
	}
	shutdown := metrics.StartServer(a.cfg.Metrics.Port, a.metrics, extra)
	a.onClose(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(ctx)
	})
}

// newCheckCommand reports the health of every configured dependency.
func (a *app) newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check connectivity to Postgres, Elasticsearch, Redis and the remote API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			checker := a.checker()
			report := checker.Run(ctx)
			printReport(cmd.OutOrStdout(), report)
			if report.Status == health.StatusDown {
				return apperrors.Newf(apperrors.ErrTransient, "check", "dependencies %s", report.Status)
			}
			return nil
		},
	}
}

func (a *app) checker() *health.Checker {
	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if a.cfg.Postgres.Password == "" {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "password not configured"}
		}
		pg, err := postgres.Connect(ctx, a.cfg.Postgres)
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		defer pg.Close()
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("elasticsearch", func(ctx context.Context) health.ComponentHealth {
		es, err := elastic.NewClient(a.cfg.Elasticsearch)
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.PingCheck(es.Ping)(ctx)
	})
	checker.Register("source-api", health.PingCheck(bedesten.New(a.cfg.Source, bedesten.WithDelay(0)).Ping))
	if a.cfg.Redis.Enabled {
		checker.RegisterOptional("redis", func(ctx context.Context) health.ComponentHealth {
			rdb, err := redis.NewClient(a.cfg.Redis)
			if err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			defer rdb.Close()
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}
	return checker
}
