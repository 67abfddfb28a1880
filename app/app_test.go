package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus/hooks/test"

	"taskboard/api"
	"taskboard/config"
	"taskboard/domain"
	"taskboard/store"
)

func testConfig(backend string) *config.Config {
	return &config.Config{
		HTTP:    config.HTTPConfig{Addr: "127.0.0.1:0"},
		Storage: config.StorageConfig{Backend: backend, Redis: config.RedisConfig{Prefix: "taskboard:"}},
		Dedupe:  config.DedupeConfig{TTL: time.Hour},
	}
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	logger, _ := test.NewNullLogger()
	a, err := New(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

func TestNewMemoryBackend(t *testing.T) {
	a := newApp(t, testConfig(config.BackendMemory))
	defer a.Close()

	if _, ok := a.Deduper.(*api.MemoryDeduper); !ok {
		t.Fatalf("expected in-memory deduper, got %T", a.Deduper)
	}
	if a.Auth != nil {
		t.Fatalf("expected auth to be disabled")
	}

	ctx := context.Background()
	if _, err := a.Tasks.Create(ctx, domain.TaskFields{Title: "Buy milk"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	rec := httptest.NewRecorder()
	a.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks/count", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if got := a.Tasks.Count(); got.Incomplete != 1 {
		t.Fatalf("unexpected count %#v", got)
	}
}

func TestSQLitePersistsAcrossRestart(t *testing.T) {
	cfg := testConfig(config.BackendSQLite)
	cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "taskboard.db")
	ctx := context.Background()

	first := newApp(t, cfg)
	id, err := first.Categories.Create(ctx, "Bills")
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	if _, err := first.Tasks.Create(ctx, domain.TaskFields{Title: "Pay rent", Category: &domain.CategoryRef{ID: id, Name: "Bills"}}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := newApp(t, cfg)
	defer second.Close()
	view := second.Tasks.View()
	if len(view) != 1 || view[0].Category == nil || view[0].Category.Name != "Bills" {
		t.Fatalf("expected persisted task in initial view, got %#v", view)
	}
	if cats := second.Categories.View(); len(cats) != 1 {
		t.Fatalf("expected persisted category in initial view, got %#v", cats)
	}
}

func TestRedisBackendSharesClient(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	cfg := testConfig(config.BackendRedis)
	cfg.Storage.Redis.URL = "redis://" + m.Addr()
	cfg.Notify.Redis.Channel = "taskboard:notifications"
	a := newApp(t, cfg)
	defer a.Close()

	if _, ok := a.Deduper.(*api.RedisDeduper); !ok {
		t.Fatalf("expected redis deduper, got %T", a.Deduper)
	}
	if err := a.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if _, err := a.Tasks.Create(context.Background(), domain.TaskFields{Title: "x"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !m.Exists("taskboard:tasks") {
		t.Fatalf("expected tasks under the prefix, have %v", m.Keys())
	}
}

func TestNotifyChannelRequiresRedis(t *testing.T) {
	cfg := testConfig(config.BackendMemory)
	cfg.Notify.Redis.Channel = "events"
	logger, _ := test.NewNullLogger()
	if _, err := New(context.Background(), cfg, logger); err == nil {
		t.Fatalf("expected error without a redis url")
	}
}

func TestSecretAuthEnabled(t *testing.T) {
	cfg := testConfig(config.BackendMemory)
	cfg.Auth.Secret = "s3cret"
	a := newApp(t, cfg)
	defer a.Close()

	if a.Auth == nil {
		t.Fatalf("expected authenticator")
	}
	rec := httptest.NewRecorder()
	a.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 got %d", rec.Code)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	a := newApp(t, testConfig(config.BackendMemory))
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not stop")
	}
}

func TestExtraNotifierReceivesCascade(t *testing.T) {
	var got []domain.Notification
	sink := store.NotifierFunc(func(_ context.Context, n domain.Notification) { got = append(got, n) })
	logger, _ := test.NewNullLogger()
	a, err := New(context.Background(), testConfig(config.BackendMemory), logger, sink)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	ref, err := a.Categories.FindOrCreate(ctx, "Bills")
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	if _, err := a.Tasks.Create(ctx, domain.TaskFields{Title: "Pay rent", Category: ref}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := a.Categories.Delete(ctx, ref.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(got) != 1 || got[0].CategoryName != "Bills" || got[0].AffectedTasks != 1 {
		t.Fatalf("unexpected notifications %#v", got)
	}
}
