// Package app assembles the stores, notifiers and HTTP surface from a
// loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"taskboard/api"
	"taskboard/config"
	"taskboard/storage"
	"taskboard/store"
)

const shutdownTimeout = 10 * time.Second

// App owns everything opened for one process.
type App struct {
	Config     *config.Config
	Logger     *log.Logger
	KV         storage.KV
	Filter     *store.FilterState
	Tasks      *store.TaskStore
	Categories *store.CategoryStore
	Broker     *api.Broker
	Deduper    api.Deduper
	Auth       api.Authenticator

	redis       *redis.Client
	ownsRedis   bool
	queue       *store.QueueNotifier
	jwks        *keyfunc.JWKS
	tp          *sdktrace.TracerProvider
	unsubscribe func()
}

// New opens the configured backend and builds the stores on top of it. extra
// sinks receive category notifications after the configured ones. The task
// view is loaded once before New returns.
func New(ctx context.Context, cfg *config.Config, logger *log.Logger, extra ...store.Notifier) (*App, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	a := &App{Config: cfg, Logger: logger}

	a.tp = sdktrace.NewTracerProvider()
	otel.SetTracerProvider(a.tp)

	kv, err := openKV(ctx, cfg.Storage)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.KV = kv

	if err := a.openRedis(); err != nil {
		a.Close()
		return nil, err
	}

	a.Broker = api.NewBroker()
	notifiers := store.MultiNotifier{store.NewLogNotifier(logger), a.Broker}
	if q := cfg.Notify.Queue; q.Name != "" {
		qn, err := store.NewQueueNotifier(q.ConnectionString, q.Name, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("notify queue: %w", err)
		}
		a.queue = qn
		notifiers = append(notifiers, qn)
	}
	if ch := cfg.Notify.Redis.Channel; ch != "" {
		if a.redis == nil {
			a.Close()
			return nil, errors.New("notify.redis.channel requires storage.redis.url")
		}
		notifiers = append(notifiers, store.NewRedisNotifier(a.redis, ch, logger))
	}
	notifiers = append(notifiers, extra...)

	a.Filter = store.NewFilterState()
	a.Tasks = store.NewTaskStore(kv, a.Filter, logger)
	a.Categories = store.NewCategoryStore(kv, a.Tasks, notifiers, logger)
	a.unsubscribe = a.Tasks.Subscribe(a.Broker.PublishView)

	if a.redis != nil {
		a.Deduper = api.NewRedisDeduper(a.redis, cfg.Dedupe.TTL)
	} else {
		a.Deduper = api.NewMemoryDeduper(cfg.Dedupe.TTL)
	}

	if err := a.openAuth(); err != nil {
		a.Close()
		return nil, err
	}

	if err := a.Tasks.Refresh(ctx); err != nil {
		logger.WithError(err).Error("initial task load")
	}
	if _, err := a.Categories.List(ctx); err != nil {
		logger.WithError(err).Error("initial category load")
	}
	return a, nil
}

func openKV(ctx context.Context, cfg config.StorageConfig) (storage.KV, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return storage.OpenSQLite(cfg.SQLite.Path)
	case config.BackendRedis:
		return storage.OpenRedis(cfg.Redis.URL, cfg.Redis.Prefix)
	case config.BackendTables:
		t, err := storage.NewTables(cfg.Tables.ConnectionString, cfg.Tables.Table, cfg.Tables.Partition)
		if err != nil {
			return nil, err
		}
		if err := t.EnsureTable(ctx); err != nil {
			return nil, err
		}
		return t, nil
	case config.BackendMemory:
		return storage.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// openRedis shares the backend client when storage lives in Redis, otherwise
// a configured URL gets its own client for dedupe and pub/sub.
func (a *App) openRedis() error {
	if r, ok := a.KV.(*storage.Redis); ok {
		a.redis = r.Client()
		return nil
	}
	if a.Config.Storage.Redis.URL == "" {
		return nil
	}
	opts, err := storage.ParseRedisOptions(a.Config.Storage.Redis.URL)
	if err != nil {
		return err
	}
	a.redis = redis.NewClient(opts)
	a.ownsRedis = true
	return nil
}

func (a *App) openAuth() error {
	ac := a.Config.Auth
	switch {
	case ac.Secret != "":
		a.Auth = api.NewSecretAuth(ac.Secret, ac.Audience, ac.Issuer)
	case ac.JWKSURL != "":
		jwks, err := keyfunc.Get(ac.JWKSURL, keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				a.Logger.WithError(err).Warn("jwks refresh")
			},
		})
		if err != nil {
			return fmt.Errorf("jwks: %w", err)
		}
		a.jwks = jwks
		a.Auth = api.NewAuth(jwks, ac.Audience, ac.Issuer)
	}
	return nil
}

// Services exposes the stores to the HTTP layer.
func (a *App) Services() api.Services {
	return api.Services{
		Tasks:      a.Tasks,
		Categories: a.Categories,
		Filter:     a.Filter,
		Health:     a.Health,
	}
}

// Health pings the backend and the Redis client when one is open.
func (a *App) Health(ctx context.Context) error {
	if err := storage.Ping(ctx, a.KV); err != nil {
		return err
	}
	if a.redis != nil && a.ownsRedis {
		return a.redis.Ping(ctx).Err()
	}
	return nil
}

// Echo builds the HTTP server with every route registered.
func (a *App) Echo() *echo.Echo {
	e := echo.New()
	api.Middleware(e, a.Config.Debug)
	api.Register(e, a.Services(), a.Auth, a.Deduper, a.Broker, a.Logger)
	return e
}

// Serve runs the HTTP server until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	e := a.Echo()
	errCh := make(chan error, 1)
	go func() {
		a.Logger.WithField("addr", a.Config.HTTP.Addr).Info("listening")
		errCh <- e.Start(a.Config.HTTP.Addr)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases everything New opened. It is safe on a partially built App.
func (a *App) Close() error {
	var errs []error
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	if a.queue != nil {
		a.queue.Close()
	}
	if a.jwks != nil {
		a.jwks.EndBackground()
	}
	if a.ownsRedis && a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.KV != nil {
		errs = append(errs, storage.Close(a.KV))
	}
	if a.tp != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = append(errs, a.tp.Shutdown(ctx))
		cancel()
	}
	return errors.Join(errs...)
}
