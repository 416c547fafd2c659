package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"

	"github.com/yonalabs/commerce-relay/internal/controllers"
	"github.com/yonalabs/commerce-relay/pkg/client"
	"github.com/yonalabs/commerce-relay/pkg/configuration"
	"github.com/yonalabs/commerce-relay/pkg/dedupe"
	"github.com/yonalabs/commerce-relay/pkg/metrics"
	"github.com/yonalabs/commerce-relay/pkg/middleware"
	"github.com/yonalabs/commerce-relay/pkg/persistence"
	"github.com/yonalabs/commerce-relay/pkg/ratelimit"
	"github.com/yonalabs/commerce-relay/pkg/relay"
	"github.com/yonalabs/commerce-relay/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Pool          *pgxpool.Pool
	CoreService   *client.CoreService
}

// Pipeline bundles the background workers that drain and watch the
// event queue.
type Pipeline struct {
	Queue    *relay.Queue
	Breaker  *relay.CircuitBreaker
	DLQ      *relay.DeadLetterQueue
	Recorder *relay.Recorder

	forwarder *relay.Forwarder
	monitor   *relay.Monitor
}

// Run starts the forwarder and monitor and blocks until the context is
// cancelled.
func (p *Pipeline) Run(ctx context.Context, logger *logrus.Logger) error {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := p.forwarder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("forwarder stopped")
		}
	}()
	go func() {
		defer wg.Done()
		if err := p.monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("monitor stopped")
		}
	}()

	wg.Wait()
	return ctx.Err()
}

func Default(options *DefaultOptions) (*server.HTTPServer, *Pipeline, error) {
	conf := options.Configuration
	logger := options.Logger

	queue := relay.NewQueue(conf.Forwarder.MaxQueueSize)
	breaker := relay.NewCircuitBreaker(conf.Forwarder.BreakerThreshold, conf.Forwarder.BreakerTimeout)
	dlq := relay.NewDeadLetterQueue()
	recorder := relay.NewRecorder()
	cache := dedupe.NewCache(conf.Dedupe.TTL, conf.Dedupe.MaxEntries)

	forwarder, err := relay.NewForwarder(queue, breaker, dlq, options.CoreService.Dispatcher(), recorder, relay.ForwarderOptions{
		BatchSize:       conf.Forwarder.BatchSize,
		MaxRetries:      conf.Forwarder.MaxRetries,
		BaseDelay:       conf.Forwarder.BaseDelay,
		MaxBackoff:      conf.Forwarder.MaxBackoff,
		JitterMax:       conf.Forwarder.JitterMax,
		DispatchTimeout: conf.Forwarder.DispatchTimeout,
		IdleSleep:       conf.Forwarder.IdleSleep,
		ErrorSleep:      conf.Forwarder.ErrorSleep,
		Logger:          logger.WithField("component", "forwarder"),
	})
	if err != nil {
		return nil, nil, err
	}

	monitor := relay.NewMonitor(queue, dlq, breaker, recorder, relay.MonitorOptions{
		Interval:           conf.Monitor.Interval,
		QueueWarnThreshold: conf.Monitor.QueueWarnThreshold,
		Logger:             logger.WithField("component", "monitor"),
	})

	var shopLimiter *ratelimit.ShopLimiter
	if conf.RateLimit.Enabled {
		var store limiter.Store
		switch conf.RateLimit.Storage {
		case "redis":
			store, err = ratelimit.NewRedisStore(conf.RateLimit.RedisURL)
			if err != nil {
				logger.WithError(err).Warn("failed to create redis store for rate limiting, falling back to memory")
				store = ratelimit.NewMemoryStore()
			}
		default:
			store = ratelimit.NewMemoryStore()
		}
		shopLimiter = ratelimit.NewShopLimiter(store, conf.RateLimit.EventsPerMinute, time.Minute)
	}

	var eventLog *persistence.EventLogRepository
	if options.Pool != nil {
		eventLog = persistence.NewEventLogRepository(options.Pool)
	}

	controllerList := []server.Controller{
		controllers.NewWebhookController(controllers.WebhookControllerOptions{
			Secret:       conf.Shopify.WebhookSecret,
			MaxBodyBytes: conf.Shopify.MaxBodyBytes,
			Stores:       options.CoreService,
			Queue:        queue,
			Dedupe:       cache,
			Limiter:      shopLimiter,
			Recorder:     recorder,
			EventLog:     eventLog,
			Logger:       logger.WithField("component", "webhooks"),
		}),
		controllers.NewStatusController(controllers.StatusControllerOptions{
			Queue:    queue,
			DLQ:      dlq,
			Breaker:  breaker,
			Recorder: recorder,
			Logger:   logger.WithField("component", "status"),
		}),
		controllers.NewHealthController(options.CoreService),
	}
	if conf.Prometheus.Enabled {
		controllerList = append(controllerList, metrics.NewPrometheusController(conf.Prometheus.Path))
	}

	middlewares := []mux.MiddlewareFunc{
		middleware.WithLogger(logger, conf),
	}

	srv := server.NewHTTPServer(controllerList, middlewares, nil, nil)

	return srv, &Pipeline{
		Queue:     queue,
		Breaker:   breaker,
		DLQ:       dlq,
		Recorder:  recorder,
		forwarder: forwarder,
		monitor:   monitor,
	}, nil
}
