package di

import (
	"context"
	"fmt"
	"time"

	"SetupScan/internal/domain/models"
	domrepo "SetupScan/internal/domain/repository"
	"SetupScan/internal/handler/api"
	internalrepo "SetupScan/internal/repository"
	"SetupScan/internal/service/alerthub"
	icache "SetupScan/internal/service/cache"
	"SetupScan/internal/service/finnhub"
	"SetupScan/internal/service/ratelimit"
	"SetupScan/internal/services/confluence"
	"SetupScan/internal/services/phase"
	"SetupScan/internal/services/rules"
	"SetupScan/internal/services/structure"
	"SetupScan/internal/usecase"
	pkgcache "SetupScan/pkg/cache"
	pkgch "SetupScan/pkg/clickhouse"
	"SetupScan/pkg/config"
	pkghttp "SetupScan/pkg/http"
	pkgkafka "SetupScan/pkg/kafka"
	applogger "SetupScan/pkg/logger"
	"SetupScan/pkg/metrics"
	"SetupScan/pkg/server"
)

// ProvideLogger creates the application logger. With Kafka enabled, repeated warnings and
// errors are aggregated and shipped through producer.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if producer != nil && cfg.Logger.Collect.Enabled {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logger.Collect.Interval,
			CountThreshold: cfg.Logger.Collect.Threshold,
			Topic:          cfg.Logger.Collect.Topic,
			Publisher:      producer,
		})
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) domrepo.Metrics {
	if !cfg.Metrics.Enabled {
		return domrepo.NopMetrics{}
	}
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the candle and event tables.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(cfg.Scanner.Workers+2, cfg.Scanner.Workers),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := internalrepo.CandleTables(cfg.ClickHouse.Database)
	if cfg.ClickHouse.ArchiveEvents {
		stmts = append(stmts, internalrepo.EventTables(cfg.ClickHouse.Database)...)
	}
	if err := client.InitSchema(ctx, stmts); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideRedisCache connects to Redis when enabled; nil otherwise.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	c, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		pkgcache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, 30*time.Second),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// ProvideKafkaProducer creates a Kafka producer when enabled; nil otherwise.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithDelivery(cfg.Kafka.RequiredAcks, cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the alert relay consumer when Kafka is enabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.OnError(func(topic string, err error) {
		l.Warn("kafka consume error", applogger.String("topic", topic), applogger.Error(err))
	})
	return consumer, nil
}

// ProvideCandleSource fronts ClickHouse with the layered candle cache, the upstream limiter
// and the fetch breaker.
func ProvideCandleSource(cfg *config.Config, ch *pkgch.Client, redis *pkgcache.RedisCache,
	m domrepo.Metrics, l *applogger.Logger) domrepo.CandleSource {
	var byteCache icache.BytesCache = icache.NewTTLCache(cfg.CandleCache.MaxEntries)
	if redis != nil {
		byteCache = icache.NewLayered(byteCache, redis, cfg.CandleCache.LocalTTL)
	}
	return icache.NewCachedCandleSource(
		internalrepo.NewCHCandleSource(ch, l),
		byteCache,
		ratelimit.New(cfg.Scanner.RPS, cfg.Scanner.Burst),
		icache.CandleConfig{
			TTL:             cfg.CandleCache.TTL,
			LimiterKey:      "clickhouse",
			BreakerFailures: cfg.CandleCache.BreakerFailures,
			BreakerCooldown: cfg.CandleCache.BreakerCooldown,
		},
		m, l)
}

// ProvidePhaseStore uses Redis when configured so several scanners share records and locks.
func ProvidePhaseStore(cfg *config.Config, redis *pkgcache.RedisCache, l *applogger.Logger) domrepo.PhaseStore {
	if redis == nil {
		l.Warn("redis disabled, phase records are kept in memory")
		return internalrepo.NewMemoryPhaseStore()
	}
	return internalrepo.NewRedisPhaseStore(redis, cfg.Scanner.LockTTL, l)
}

func ProvideRuleRegistry() *rules.Registry { return rules.NewRegistry() }

// ProvideModelStore loads the model file, rejecting models with unresolvable rules.
func ProvideModelStore(cfg *config.Config, reg *rules.Registry, l *applogger.Logger) (*internalrepo.FileModelStore, error) {
	return internalrepo.NewFileModelStore(cfg.Models.Path, reg.ValidateModel, l)
}

func ProvideDetector(cfg *config.Config) *structure.Detector {
	sc := structure.DefaultConfig()
	sc.SwingWindow = cfg.Structure.SwingWindow
	sc.LiquidityLookback = cfg.Structure.LiquidityLookback
	sc.OrderBlockLookback = cfg.Structure.OrderBlockLookback
	sc.ATRPeriod = cfg.Structure.ATRPeriod
	sc.EqualTolATRFrac = cfg.Structure.EqualTolATRFrac
	sc.EqualTolPriceFrac = cfg.Structure.EqualTolPriceFrac
	return structure.NewDetector(sc)
}

func ProvideEvaluator(reg *rules.Registry, m domrepo.Metrics, l *applogger.Logger) *rules.Evaluator {
	return rules.NewEvaluator(reg, rules.DefaultParams(), l, m)
}

func ProvideScorer(cfg *config.Config) *confluence.Scorer {
	return confluence.NewScorer(confluence.Config{NewsBlackoutMinutes: cfg.Scoring.NewsBlackoutMinutes})
}

func ProvidePhaseMachine(cfg *config.Config) *phase.Machine {
	pc := phase.DefaultConfig()
	copy(pc.Thresholds[:], cfg.Phase.Thresholds)
	pc.Phase2Window = cfg.Phase.Phase2Window
	pc.Phase3Window = cfg.Phase.Phase3Window
	pc.ConfirmWait = cfg.Phase.ConfirmWait
	pc.MinPriceChangePct = cfg.Phase.MinPriceChangePct
	pc.MinATRPct = cfg.Phase.MinATRPct
	pc.StopLossPct = cfg.Phase.StopLossPct
	pc.TP1Pct = cfg.Phase.TP1Pct
	pc.TP2Pct = cfg.Phase.TP2Pct
	pc.TP3Pct = cfg.Phase.TP3Pct
	return phase.NewMachine(pc)
}

// ProvideNewsCalendar returns nil when the news feed is disabled, in which case no news is
// ever known.
func ProvideNewsCalendar(cfg *config.Config, l *applogger.Logger) domrepo.NewsCalendar {
	if !cfg.News.Enabled {
		return nil
	}
	client := pkghttp.NewClient(pkghttp.WithTimeout(cfg.News.Timeout), pkghttp.WithRetry(2, time.Second))
	return finnhub.NewCalendar(client, cfg.News.BaseURL, cfg.News.Token, cfg.News.Horizon, cfg.News.Refresh, l)
}

func ProvideContextProvider(news domrepo.NewsCalendar, l *applogger.Logger) *usecase.ContextProvider {
	return usecase.NewContextProvider(news, l)
}

func ProvideSnapshotLoader(cfg *config.Config, src domrepo.CandleSource, det *structure.Detector, l *applogger.Logger) *usecase.SnapshotLoader {
	return usecase.NewSnapshotLoader(src, det, cfg.Scanner.CandleLimit, cfg.Scanner.Workers, l)
}

func ProvideHub(l *applogger.Logger) *alerthub.Hub { return alerthub.New(l) }

// ProvideResultArchive returns nil when event archiving is disabled.
func ProvideResultArchive(cfg *config.Config, ch *pkgch.Client) *internalrepo.CHEventArchive {
	if !cfg.ClickHouse.ArchiveEvents {
		return nil
	}
	return internalrepo.NewCHEventArchive(ch)
}

// ProvideAlertEmitter fans events out to the archive and to Kafka. Without Kafka the hub is
// fed directly; with Kafka it is fed by the relay so every instance sees every alert.
func ProvideAlertEmitter(archive *internalrepo.CHEventArchive, producer *pkgkafka.Producer, hub *alerthub.Hub,
	cfg *config.Config, l *applogger.Logger) domrepo.AlertEmitter {
	var sinks []domrepo.AlertEmitter
	if archive != nil {
		sinks = append(sinks, archive)
	}
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaAlertEmitter(producer, cfg.Kafka.AlertsTopic))
	} else {
		sinks = append(sinks, hub)
	}
	return internalrepo.NewFanoutEmitter(l, sinks...)
}

func ProvideAlertRelay(cfg *config.Config, hub *alerthub.Hub) *usecase.AlertRelay {
	return usecase.NewAlertRelay(cfg.Kafka.AlertsTopic, hub)
}

func ProvideScanner(cfg *config.Config, ms *internalrepo.FileModelStore, store domrepo.PhaseStore,
	emitter domrepo.AlertEmitter, loader *usecase.SnapshotLoader, ev *rules.Evaluator, sc *confluence.Scorer,
	pm *phase.Machine, ctxp *usecase.ContextProvider, m domrepo.Metrics, l *applogger.Logger) *usecase.Scanner {
	dirs := make([]models.Direction, 0, len(cfg.Scanner.Directions))
	for _, d := range cfg.Scanner.Directions {
		dirs = append(dirs, models.Direction(d))
	}
	return usecase.NewScanner(usecase.ScannerConfig{
		Pairs:       cfg.Scanner.Pairs,
		Directions:  dirs,
		Interval:    cfg.Scanner.Interval,
		TickTimeout: cfg.Scanner.TickTimeout,
		Workers:     cfg.Scanner.Workers,
	}, ms, store, emitter, loader, ev, sc, pm, ctxp, m, l.With(applogger.String("component", "scanner")))
}

func ProvideEvaluateUseCase(ms *internalrepo.FileModelStore, src domrepo.CandleSource, loader *usecase.SnapshotLoader,
	det *structure.Detector, ev *rules.Evaluator, sc *confluence.Scorer, ctxp *usecase.ContextProvider) *usecase.EvaluateUseCase {
	return usecase.NewEvaluateUseCase(ms, src, loader, det, ev, sc, ctxp)
}

// ProvideSetupsHandler creates the HTTP handler with its own response cache and per-client limiter.
func ProvideSetupsHandler(cfg *config.Config, l *applogger.Logger, uc *usecase.EvaluateUseCase, store domrepo.PhaseStore,
	ms *internalrepo.FileModelStore, archive *internalrepo.CHEventArchive, hub *alerthub.Hub) *api.SetupsHandler {
	var results domrepo.ResultArchive
	if archive != nil {
		results = archive
	}
	h := api.NewSetupsHandler(l, uc, store, ms, results, hub, icache.NewTTLCache(512), ratelimit.New(cfg.API.RPS, cfg.API.Burst))
	h.SetCacheTTL(cfg.API.StructureTTL)
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	scanner *usecase.Scanner,
	handler *api.SetupsHandler,
	hub *alerthub.Hub,
	relay *usecase.AlertRelay,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
	redis *pkgcache.RedisCache,
) *server.App {
	opts := []server.Option{server.WithCloser("clickhouse", chClient)}
	if consumer != nil {
		opts = append(opts, server.WithRelay(consumer, relay))
	}
	if producer != nil {
		opts = append(opts, server.WithCloser("kafka producer", producer))
	}
	if redis != nil {
		opts = append(opts, server.WithCloser("redis", redis))
	}
	return server.New(cfg, l, scanner, handler, hub, opts...)
}
