package main

import (
	"context"

	"github.com/gorilla/mux"
	"github.com/septivank/conso-metering/client"
	"github.com/septivank/conso-metering/internal/anomaly"
	"github.com/septivank/conso-metering/internal/config"
	"github.com/septivank/conso-metering/internal/metrics"
	"github.com/septivank/conso-metering/internal/mq"
	"github.com/septivank/conso-metering/internal/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func startWorker(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	processor *service.ProcessorService,
) (*mq.Consumer, error) {
	// Cancelled on shutdown so the delivery loop exits before the channel closes
	ctx, cancel := context.WithCancel(context.Background())

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:    conn,
		Queue:         cfg.RabbitMQ.RequestQueue,
		DLQQueue:      cfg.RabbitMQ.DLQQueue,
		Exchange:      cfg.RabbitMQ.RequestExchange,
		RoutingKey:    cfg.RabbitMQ.RequestRoutingKey,
		PrefetchCount: cfg.RabbitMQ.PrefetchCount,
		Logger:        logger,
		Handler:       processor.ProcessMessage,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting fetch consumer",
				zap.String("queue", cfg.RabbitMQ.RequestQueue),
				zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount))
			return consumer.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := consumer.Close(); err != nil {
				logger.Error("failed to close consumer", zap.Error(err))
				return err
			}
			logger.Info("worker stopped gracefully")
			return nil
		},
	})

	return consumer, nil
}

func startMetricsServer(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config, router *mux.Router) {
	metrics.NewServer(lc, logger, cfg.ServicePort, router)
}

// ProvideConsoClient resolves the token scope once at startup
func ProvideConsoClient(cfg *config.Config, logger *zap.Logger) (*client.Client, error) {
	c, err := client.New(cfg.Conso.Token,
		client.WithPRM(cfg.Conso.PRM),
		client.WithBaseURL(cfg.Conso.BaseURL),
		client.WithUserAgent(cfg.Conso.UserAgent),
		client.WithTimeout(cfg.Conso.Timeout),
		client.WithLogger(logger.Named("conso")),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("conso client ready",
		zap.String("prm", c.PRM()),
		zap.Int("granted_prms", len(c.PRMs())),
	)
	return c, nil
}

// ProvideAnomalyDetector creates a new anomaly detector instance
func ProvideAnomalyDetector(cfg *config.Config) *anomaly.Detector {
	return anomaly.NewDetector(cfg.Anomaly.SpikeThreshold, cfg.Anomaly.MinDataPointsForDetection)
}

// ProvidePublisher creates a publisher on the events exchange
func ProvidePublisher(lc fx.Lifecycle, conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (*mq.Publisher, error) {
	publisher, err := mq.NewPublisher(conn, cfg.RabbitMQ.EventsExchange, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(publisher.Close))
	return publisher, nil
}

// ProvideProcessorService creates a new processor service instance
func ProvideProcessorService(
	c *client.Client,
	publisher *mq.Publisher,
	detector *anomaly.Detector,
	cfg *config.Config,
	logger *zap.Logger,
) *service.ProcessorService {
	return service.NewProcessorService(c, publisher, detector, cfg, logger)
}

// ProvideMetricsRouter builds the health and metrics router
func ProvideMetricsRouter(cfg *config.Config, c *client.Client) *mux.Router {
	return metrics.NewRouter(metrics.Health{Status: "ok", Service: cfg.ServiceName, PRM: c.PRM()})
}

// ProvideMQConnection creates a new RabbitMQ connection instance
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}
