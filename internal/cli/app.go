package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/LightningDocs/monthly-double-checker-v2/config"
	"github.com/LightningDocs/monthly-double-checker-v2/internal/repositories/record"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/database"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/expressions"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/health"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/httpclient"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/kafka"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/knackly"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/logging"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/merging"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/models"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/normalizer"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/notify"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/reconcile"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/redis"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/startup"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/tracing"
)

const shutdownTimeout = 30 * time.Second

// app owns the process dependencies shared by the sync and schedule commands
type app struct {
	cfg        *config.Config
	logger     *logging.Logger
	startup    *startup.Startup
	httpClient *httpclient.Client
	tracing    func(context.Context) error
	dryRun     bool

	mongo    *database.Instance
	records  *record.Repository
	redis    *redis.Client
	producer *kafka.Producer
	source   *knackly.Client
}

// newApp builds the logger and tracer and registers dependencies. Nothing is contacted until start.
func newApp(ctx context.Context, cfg *config.Config, dryRun bool) (*app, error) {
	logger, err := logging.New(cfg.Logging(), time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	tracingCfg := cfg.Tracing()
	tracingCfg.Logger = logger
	shutdownTracing, err := tracing.Setup(ctx, tracingCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}

	a := &app{
		cfg:        cfg,
		logger:     logger,
		startup:    startup.NewStartup(logger, cfg.StartupMaxAttempts),
		httpClient: httpclient.NewClient(cfg.HTTPClient(), logger),
		tracing:    shutdownTracing,
		dryRun:     dryRun,
	}
	a.registerDependencies()
	return a, nil
}

func (a *app) registerDependencies() {
	a.startup.AddDependency(&startup.Dependency{
		Name: "mongo",
		StartFn: func(ctx context.Context) error {
			instance, err := database.Connect(ctx, a.cfg.Mongo(), a.logger)
			if err != nil {
				return err
			}
			a.mongo = instance
			return nil
		},
		StopFn: func(ctx context.Context) error {
			return a.mongo.Close(ctx)
		},
	})

	a.startup.AddDependency(&startup.Dependency{
		Name:     "records",
		Requires: []string{"mongo"},
		StartFn: func(ctx context.Context) error {
			a.records = record.NewRepository(a.mongo.Database, a.cfg.MongoCollection, a.logger)
			if a.dryRun {
				return nil
			}
			return a.records.EnsureIndexes(ctx)
		},
	})

	if a.cfg.RedisEnabled {
		a.startup.AddDependency(&startup.Dependency{
			Name: "redis",
			StartFn: func(ctx context.Context) error {
				client, err := redis.NewClient(ctx, a.cfg.Redis(), a.logger)
				if err != nil {
					return err
				}
				a.redis = client
				return nil
			},
			StopFn: func(context.Context) error {
				return a.redis.Close()
			},
		})
	}

	if a.cfg.KafkaEnabled {
		a.startup.AddDependency(&startup.Dependency{
			Name: "kafka",
			StartFn: func(context.Context) error {
				a.producer = kafka.NewProducer(a.cfg.Kafka(), a.logger)
				return nil
			},
			StopFn: func(context.Context) error {
				return a.producer.Close()
			},
		})
	}
}

// start brings up the stores, then logs in to Knackly. The login is not retried: a rejected
// key stays rejected.
func (a *app) start(ctx context.Context) error {
	if err := a.startup.Start(ctx); err != nil {
		return err
	}

	source, err := knackly.NewClient(ctx, a.cfg.Knackly(), a.httpClient, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to Knackly: %w", err)
	}
	a.source = source
	return nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.startup.Stop(ctx); err != nil {
		a.logger.WithContext(ctx).WithError(err).Warn("Failed to stop dependencies")
	}
	if err := a.tracing(ctx); err != nil {
		a.logger.WithContext(ctx).WithError(err).Warn("Failed to flush traces")
	}
	a.logger.Sync()
}

// kafkaNotifier returns nil until the producer is started or when Kafka is disabled
func (a *app) kafkaNotifier() *notify.Kafka {
	if a.producer == nil {
		return nil
	}
	return notify.NewKafka(a.producer, a.logger)
}

func (a *app) notifier() *notify.Multi {
	var notifiers []notify.Notifier
	if a.cfg.TeamsWebhookURL != "" {
		teams, err := notify.NewTeams(a.httpClient, a.cfg.TeamsWebhookURL, a.logger)
		if err == nil {
			notifiers = append(notifiers, teams)
		}
	}
	if k := a.kafkaNotifier(); k != nil {
		notifiers = append(notifiers, k)
	}
	return notify.NewMulti(a.logger, notifiers...)
}

func (a *app) driver() (*reconcile.Driver, error) {
	n, err := normalizer.NewNormalizer(expressions.NewEvaluator(), normalizer.WithTestFileExpression(a.cfg.TestFileExpression))
	if err != nil {
		return nil, err
	}

	opts := reconcile.Options{
		Workers: a.cfg.WorkerCount,
		DryRun:  a.dryRun,
	}
	if k := a.kafkaNotifier(); k != nil {
		opts.Listener = k
	}

	enumerator := reconcile.NewEnumerator(a.source, a.logger, models.RecordStatus(a.cfg.RecordStatus), a.cfg.KnacklyPageSize)
	return reconcile.NewDriver(enumerator, a.source, a.records, n, merging.NewEngine(n, a.cfg.UpdateGrace), a.logger, opts), nil
}

// runner wires the driver with the run lock, notifiers and metrics push. recorder may be nil.
func (a *app) runner(recorder *health.Checker) (*Runner, error) {
	driver, err := a.driver()
	if err != nil {
		return nil, err
	}

	var guard runGuard
	if a.redis != nil {
		guard = redis.NewRunGuard(redis.NewLocker(a.redis, ""), a.cfg.RunLockTTL, a.logger)
	}

	var rec runRecorder
	if recorder != nil {
		rec = recorder
	}

	push := PushConfig{URL: a.cfg.MetricsPushgatewayURL, Job: a.cfg.MetricsJob}
	return NewRunner(driver, guard, a.notifier(), rec, push, a.logger), nil
}
