package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vidtube/backend/internal/config"
)

type fakePool struct {
	pingErr error
}

func (fakePool) Acquire(context.Context) (*pgxpool.Conn, error) {
	return nil, errors.New("not implemented")
}

func (p fakePool) Ping(context.Context) error { return p.pingErr }

func (fakePool) Close() {}

func testConfig() config.Config {
	return config.Config{
		Env: "development",
		Server: config.Server{
			AuthTimeout:    time.Second,
			MaxUploadBytes: 1 << 20,
		},
		Tokens: config.Tokens{
			AccessSecret:  "access-secret",
			RefreshSecret: "refresh-secret",
			AccessTTL:     time.Minute,
			RefreshTTL:    time.Hour,
			Issuer:        "vidtube-test",
		},
		RateLimit: config.RateLimit{Requests: 10, Window: time.Minute, Burst: 5},
		Toggle:    config.Toggle{MaxRetries: 3},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildDependencies(t *testing.T) {
	cfg := testConfig()
	cfg.ObjectStore = config.ObjectStore{Bucket: "test-bucket", Endpoint: "http://localhost:9000", Region: "us-east-1"}

	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	deps, cleanup, err := buildDependencies(context.Background(), fakePool{}, cfg, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cleanup == nil {
		t.Fatal("expected cleanup function")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = cleanup(ctx)
	}()

	if deps.Accounts == nil {
		t.Fatal("expected account repository to be configured")
	}
	if deps.Sessions == nil {
		t.Fatal("expected session manager to be configured")
	}
	if deps.Authenticator == nil || deps.Authenticator.Tokens == nil {
		t.Fatal("expected authenticator with a token codec")
	}
	if !deps.Authenticator.WithDetail {
		t.Fatal("expected error detail outside production")
	}
	if deps.Relations == nil || deps.Queries == nil {
		t.Fatal("expected relation engine and queries to be configured")
	}
	if deps.Tweets == nil || deps.Comments == nil || deps.Playlists == nil || deps.Videos == nil {
		t.Fatal("expected content repositories to be configured")
	}
	if deps.Storage == nil {
		t.Fatal("expected object storage to be configured")
	}
	if deps.Database == nil {
		t.Fatal("expected database health checker")
	}
	if deps.RateLimiter == nil {
		t.Fatal("expected rate limiter")
	}
	if deps.Registry == nil {
		t.Fatal("expected metrics registry")
	}
	if deps.Production {
		t.Fatal("development config must not enable production mode")
	}
}

func TestBuildDependenciesWithoutObjectStore(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"

	deps, _, err := buildDependencies(context.Background(), fakePool{}, cfg, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deps.Storage != nil {
		t.Fatalf("expected storage to be disabled, got %T", deps.Storage)
	}
	if !deps.Production || deps.Authenticator.WithDetail {
		t.Fatal("expected production hardening")
	}
}

func TestBuildDependenciesRejectsMissingSecrets(t *testing.T) {
	cfg := testConfig()
	cfg.Tokens.AccessSecret = ""

	if _, _, err := buildDependencies(context.Background(), fakePool{}, cfg, discardLogger()); err == nil {
		t.Fatal("expected error for missing access secret")
	}
}

func TestBuildDependenciesSharesRateLimitsThroughRedis(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.RedisURL = "redis://localhost:6379/0"

	deps, cleanup, err := buildDependencies(context.Background(), fakePool{}, cfg, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := deps.RateLimiter.(*redisLimiter); !ok {
		t.Fatalf("expected redis limiter, got %T", deps.RateLimiter)
	}
	if err := cleanup(context.Background()); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	cfg.RateLimit.RedisURL = "mysql://nope"
	if _, _, err := buildDependencies(context.Background(), fakePool{}, cfg, discardLogger()); err == nil {
		t.Fatal("expected error for malformed redis url")
	}
}

func TestListMigrations(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_relations.sql", "0001_init.sql", "notes.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "archive.sql"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, err := listMigrations(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"0001_init.sql", "0002_relations.sql"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	pending := pendingMigrations(got, map[string]struct{}{"0001_init.sql": {}})
	if !reflect.DeepEqual(pending, []string{"0002_relations.sql"}) {
		t.Fatalf("unexpected pending migrations %v", pending)
	}

	if _, err := listMigrations(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestSeedFileName(t *testing.T) {
	if got := seedFileName("dev"); got != "dev_seed.sql" {
		t.Fatalf("unexpected seed file %q", got)
	}
	if got := seedFileName("custom.sql"); got != "custom.sql" {
		t.Fatalf("unexpected seed file %q", got)
	}
}

func TestMigrationBackoff(t *testing.T) {
	if got := migrationBackoff(1); got != migrationBaseBackoff {
		t.Fatalf("expected base backoff, got %s", got)
	}
	if got := migrationBackoff(2); got != 2*migrationBaseBackoff {
		t.Fatalf("expected doubled backoff, got %s", got)
	}
	if got := migrationBackoff(20); got != migrationMaxBackoff {
		t.Fatalf("expected capped backoff, got %s", got)
	}
}

func TestShouldRetryMigration(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":           {nil, false},
		"deadline":      {context.DeadlineExceeded, true},
		"serialization": {&pgconn.PgError{Code: "40001"}, true},
		"syntax":        {&pgconn.PgError{Code: "42601"}, false},
		"other":         {errors.New("boom"), false},
	}
	for name, tc := range cases {
		if got := shouldRetryMigration(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", name, tc.want, got)
		}
	}
}

func TestRootCommandArguments(t *testing.T) {
	cases := []struct {
		args    []string
		wantErr string
	}{
		{[]string{"migrate", "down"}, "not supported"},
		{[]string{"migrate", "sideways"}, "unknown migrate command"},
		{[]string{"seed"}, "accepts 1 arg"},
		{[]string{"launch"}, "unknown command"},
	}
	for _, tc := range cases {
		root := NewRootCommand()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs(tc.args)

		err := root.ExecuteContext(context.Background())
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("%v: expected error containing %q, got %v", tc.args, tc.wantErr, err)
		}
	}
}
