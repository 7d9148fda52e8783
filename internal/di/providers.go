package di

import (
	"context"
	"fmt"
	"time"

	"SignalHub/internal/domain/repository"
	"SignalHub/internal/handler/api"
	"SignalHub/internal/hub"
	internalrepo "SignalHub/internal/repository"
	"SignalHub/internal/service/binance"
	"SignalHub/internal/service/marketdata"
	"SignalHub/internal/service/ratelimit"
	"SignalHub/internal/usecase"
	"SignalHub/pkg/cache"
	pkgch "SignalHub/pkg/clickhouse"
	"SignalHub/pkg/config"
	xhttp "SignalHub/pkg/http"
	pkgkafka "SignalHub/pkg/kafka"
	"SignalHub/pkg/logger"
	"SignalHub/pkg/metrics"
	"SignalHub/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
)

const archiveTable = "ohlc_archive"

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder on the default registry.
func ProvideMetrics() repository.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideStore opens the configured repository and upserts the seed tickers.
func ProvideStore(cfg *config.Config, log *logger.Logger) (repository.Repository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, err := internalrepo.OpenStore(ctx, cfg, log.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := internalrepo.Seed(ctx, store); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("seed tickers: %w", err)
	}
	return store, nil
}

// ProvideCache creates the quote cache and lock service. Redis is layered
// under an in-memory L1 when enabled; an unreachable Redis degrades to memory.
func ProvideCache(cfg *config.Config, log *logger.Logger) cache.Service {
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisCache(
			cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
			cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
			cache.WithRedisPrefix(cfg.Redis.Prefix),
		)
		if err == nil {
			log.Info("redis cache ready", logger.String("host", cfg.Redis.Host), logger.Int("port", cfg.Redis.Port))
			return cache.NewLayeredCache(rc,
				cache.WithLayeredMemorySize(1000),
				cache.WithLayeredMemoryTTL(time.Second),
			)
		}
		log.Warn("redis unavailable, using memory cache", logger.Error(err))
	}
	return cache.NewMemoryCache(cache.WithMemoryMaxSize(10000))
}

// ProvideCandleArchive connects the ClickHouse archive when enabled. It
// returns nil when disabled or unreachable.
func ProvideCandleArchive(cfg *config.Config, log *logger.Logger) repository.CandleArchive {
	if !cfg.ClickHouse.Enabled {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithAsyncInsert(true),
	)
	if err != nil {
		log.Warn("clickhouse unavailable, candle archive disabled", logger.Error(err))
		return nil
	}
	archive, err := internalrepo.NewClickHouseArchive(ctx, client, archiveTable, log.Named("archive"))
	if err != nil {
		_ = client.Close()
		log.Warn("clickhouse schema failed, candle archive disabled", logger.Error(err))
		return nil
	}
	return archive
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher mirrors hub events to Kafka when a producer exists.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.EventPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.EventsTopic)
}

// ProvideKafkaConsumer creates a Kafka consumer, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerLogger(log.Named("kafka")),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.TraceHook())
	return consumer, nil
}

// ProvideKafkaSignalHandler consumes raw signals from the signal topic.
func ProvideKafkaSignalHandler(cfg *config.Config, ingestor *usecase.SignalIngestor, log *logger.Logger, m repository.Metrics) *usecase.KafkaSignalHandler {
	return usecase.NewKafkaSignalHandler(cfg.Kafka.SignalTopic, ingestor, log.Named("kafka_signals"), m)
}

// ProvideHub creates the realtime broadcast hub.
func ProvideHub(cfg *config.Config, log *logger.Logger, m repository.Metrics) *hub.Hub {
	return hub.New(log.Named("hub"),
		hub.WithSendTimeout(cfg.Hub.SendTimeout),
		hub.WithQueueSize(cfg.Hub.QueueSize),
		hub.WithMetrics(m),
	)
}

// ProvideBinanceClient creates the exchange REST client.
func ProvideBinanceClient(cfg *config.Config) *binance.Client {
	return binance.NewClient(cfg.Binance.BaseURL, cfg.Binance.Timeout, cfg.Binance.RatePerSecond, cfg.Binance.Burst)
}

// ProvideGateway creates the market data gateway.
func ProvideGateway(
	cfg *config.Config,
	client *binance.Client,
	repo repository.Repository,
	c cache.Service,
	archive repository.CandleArchive,
	m repository.Metrics,
	log *logger.Logger,
) *marketdata.Gateway {
	return marketdata.NewGateway(client, repo, log.Named("marketdata"),
		marketdata.WithTimeout(cfg.Binance.Timeout),
		marketdata.WithCache(c, cfg.Market.QuoteTTL),
		marketdata.WithArchive(archive),
		marketdata.WithMetrics(m),
	)
}

// ProvideSignalIngestor creates the ingestion pipeline.
func ProvideSignalIngestor(
	repo repository.Repository,
	h *hub.Hub,
	pub repository.EventPublisher,
	log *logger.Logger,
	m repository.Metrics,
) *usecase.SignalIngestor {
	return usecase.NewSignalIngestor(repo, h, pub, log.Named("ingest"), m)
}

// ProvideCandleRefresher creates the scheduled candle refresh, or nil when
// the scheduler is disabled.
func ProvideCandleRefresher(
	cfg *config.Config,
	gw *marketdata.Gateway,
	repo repository.Repository,
	c cache.Service,
	log *logger.Logger,
	m repository.Metrics,
) (*usecase.CandleRefresher, error) {
	if !cfg.Scheduler.Enabled {
		return nil, nil
	}
	return usecase.NewCandleRefresher(gw, repo, c, log.Named("refresher"), m,
		cfg.Scheduler.Intervals, cfg.Scheduler.CandleLimit, cfg.Scheduler.CandleRefreshEvery)
}

// ProvidePriceRelay creates the live price relay, or nil when streaming is
// disabled.
func ProvidePriceRelay(cfg *config.Config, h *hub.Hub, log *logger.Logger, m repository.Metrics) *usecase.PriceRelay {
	if !cfg.Stream.Enabled {
		return nil
	}
	l := log.Named("relay")
	stream := binance.NewStream(cfg.Binance.StreamURL, cfg.Stream.Symbols, l)
	return usecase.NewPriceRelay(stream, h, l, m, cfg.Stream.MaxRPS, cfg.Stream.ReconnectDelay)
}

// ProvideAuth creates the tier resolver and route guards.
func ProvideAuth(cfg *config.Config, log *logger.Logger) *api.Auth {
	return api.NewAuth(cfg.Auth.JWTSecret, cfg.Auth.WebhookSecret, cfg.Auth.AdminRole, log.Named("auth"))
}

// ProvideHandlers collects every HTTP route group.
func ProvideHandlers(
	cfg *config.Config,
	log *logger.Logger,
	auth *api.Auth,
	repo repository.Repository,
	h *hub.Hub,
	gw *marketdata.Gateway,
	ingestor *usecase.SignalIngestor,
) []xhttp.Handler {
	l := log.Named("api")
	return []xhttp.Handler{
		api.NewHealthHandler(repo, h),
		api.NewTickersHandler(l, auth, repo),
		api.NewMarketHandler(l, auth, gw),
		api.NewSignalsHandler(l, auth, repo, ingestor),
		api.NewWSHandler(l, auth, h, cfg.Server.AllowedOrigins, cfg.Hub.PongWait, cfg.Hub.PingPeriod),
	}
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, log *logger.Logger, handlers []xhttp.Handler) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowRequestThreshold(cfg.Server.SlowRequest),
		xhttp.WithAllowOrigins(cfg.Server.AllowedOrigins),
	}
	if cfg.RateLimit.Enabled {
		opts = append(opts, xhttp.WithRateLimiter(ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window)))
	}
	return xhttp.NewServer(log.Named("http"), handlers, opts...)
}

// ProvideApp assembles the application. Optional components left nil by
// their providers are skipped.
func ProvideApp(
	log *logger.Logger,
	srv *xhttp.Server,
	h *hub.Hub,
	refresher *usecase.CandleRefresher,
	relay *usecase.PriceRelay,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaSignalHandler,
	pub repository.EventPublisher,
	archive repository.CandleArchive,
	c cache.Service,
	repo repository.Repository,
) *server.App {
	opts := []server.Option{server.WithClosers(
		server.Closer{Name: "event publisher", Closer: pub},
		server.Closer{Name: "candle archive", Closer: archive},
		server.Closer{Name: "cache", Closer: c},
		server.Closer{Name: "store", Closer: repo},
	)}
	if refresher != nil {
		opts = append(opts, server.WithRefresher(refresher))
	}
	if relay != nil {
		opts = append(opts, server.WithPriceRelay(relay))
	}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer, kh))
	}
	return server.New(log, srv, h, opts...)
}
