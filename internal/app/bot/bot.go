// Package bot собирает приложение: хранилище, кеш, очередь, сервисы и
// HTTP-сервер. Все зависимости создаются здесь и передаются явно,
// глобального состояния нет.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/dreamgf-ru/companion-bot/internal/cache"
	"github.com/dreamgf-ru/companion-bot/internal/characters"
	"github.com/dreamgf-ru/companion-bot/internal/config"
	"github.com/dreamgf-ru/companion-bot/internal/generator"
	"github.com/dreamgf-ru/companion-bot/internal/migrations"
	"github.com/dreamgf-ru/companion-bot/internal/notifier"
	"github.com/dreamgf-ru/companion-bot/internal/paymentprovider"
	"github.com/dreamgf-ru/companion-bot/internal/rabbitmq"
	"github.com/dreamgf-ru/companion-bot/internal/services/chat"
	"github.com/dreamgf-ru/companion-bot/internal/services/entitlement"
	"github.com/dreamgf-ru/companion-bot/internal/services/ratelimit"
	"github.com/dreamgf-ru/companion-bot/internal/services/scheduler"
	"github.com/dreamgf-ru/companion-bot/internal/services/sender"
	"github.com/dreamgf-ru/companion-bot/internal/services/subscription"
	"github.com/dreamgf-ru/companion-bot/internal/storage"
)

// App собранное приложение.
type App struct {
	server    *http.Server
	logger    *slog.Logger
	db        *storage.Storage
	cache     *cache.Cache
	limiter   *ratelimit.Limiter
	rabbit    *amqp.Connection
	scheduler *scheduler.Service
	subs      *subscription.Service
	sendQueue func(ctx context.Context) error
}

// New создает приложение из конфигурации.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := storage.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	catalog, err := characters.Load(cfg.CharactersPath)
	if err != nil {
		return nil, err
	}

	rabbitConn, err := rabbitmq.Connect(cfg.AddressRabbit, cfg.Retries, cfg.RetryDelay)
	if err != nil {
		return nil, err
	}
	channel, err := rabbitmq.SetupChannel(rabbitConn, rabbitmq.GetEngagementQueues())
	if err != nil {
		return nil, err
	}

	gen := generator.NewClient(cfg.OpenRouter)
	provider := paymentprovider.NewClient(cfg.ShopID, cfg.SecretKey)
	telegram := notifier.NewTelegram(cfg.Telegram.Token)

	limiter := ratelimit.New(cfg.RateLimitPerMinute)
	quota := entitlement.New(db, cacheRedis, cfg.DailyPhotoLimit, logger)
	subs := subscription.New(db, db, provider, cfg.ReturnURL, logger)
	pipeline := chat.New(limiter, quota, gen, cacheRedis, cacheRedis, cacheRedis, catalog, logger)
	sched := scheduler.New(db, scheduler.NewAMQPPublisher(channel), logger)
	deliver := sender.New(db, gen, cacheRedis, telegram, catalog, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, pipeline, subs, db, quota, cacheRedis, catalog)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:    srv,
		logger:    logger,
		db:        db,
		cache:     cacheRedis,
		limiter:   limiter,
		rabbit:    rabbitConn,
		scheduler: sched,
		subs:      subs,
		sendQueue: func(ctx context.Context) error {
			return rabbitmq.ConsumerMessage(ctx, channel, "engagement.broadcast", logger, deliver.HandleEngagementTask)
		},
	}, nil
}

// Run запускает HTTP-сервер, планировщик, сверку зависших платежей
// и потребителя рассылок.
// Блокируется до отмены контекста, затем гасит все аккуратно.
func (a *App) Run(ctx context.Context) error {
	if err := a.sendQueue(ctx); err != nil {
		return err
	}
	go a.scheduler.Run(ctx)
	go a.subs.RunPendingSweep(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.limiter.Close()
		if closeErr := a.rabbit.Close(); closeErr != nil {
			a.logger.Error("failed to close rabbitmq connection", slog.Any("err", closeErr))
		}
		if closeErr := a.cache.Close(); closeErr != nil {
			a.logger.Error("failed to close redis connection", slog.Any("err", closeErr))
		}
		if closeErr := a.db.Close(); closeErr != nil {
			a.logger.Error("failed to close database connection", slog.Any("err", closeErr))
		}
		return err
	}
}
