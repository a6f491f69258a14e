package branding_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/tenant-onboarding/internal/branding"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRedisRefresher_Keys(t *testing.T) {
	r, err := branding.NewRedisRefresherFromURL("redis://localhost:6379/0", "branding", discardLogger())
	require.NoError(t, err)
	defer r.Close()

	tenant := uuid.MustParse("7f1d6c0e-4a51-4f37-9d5c-1f0cbe1f7a10")
	require.Equal(t, "branding:7f1d6c0e-4a51-4f37-9d5c-1f0cbe1f7a10", r.CacheKey(tenant))
	require.Equal(t, "branding:refresh", r.Channel())
}

func TestRedisRefresher_InvalidURL(t *testing.T) {
	_, err := branding.NewRedisRefresherFromURL("not-a-url", "branding", discardLogger())
	require.Error(t, err)
}

func TestRedisRefresher_ReportsUnavailableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	r := branding.NewRedisRefresher(client, "branding", discardLogger())
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.Error(t, r.RefreshBranding(ctx, uuid.New()))
}

func TestLogRefresher_NeverFails(t *testing.T) {
	r := branding.NewLogRefresher(discardLogger())
	require.NoError(t, r.RefreshBranding(context.Background(), uuid.New()))
}
