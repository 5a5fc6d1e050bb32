package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aurabyshenoi/gallery/internal/messaging/kafka"
	"github.com/aurabyshenoi/gallery/internal/service/mailer"
)

func TestNewDependencies_MemoryDefaults(t *testing.T) {
	t.Parallel()

	deps, err := NewDependencies(context.Background(), DefaultConfig(), nil)
	require.NoError(t, err)
	defer deps.Close()

	require.Nil(t, deps.Store)
	require.NotNil(t, deps.Cache)
	require.NotNil(t, deps.repos.items)
	require.NotNil(t, deps.repos.orders)
	require.NotNil(t, deps.repos.contacts)
	require.NotNil(t, deps.repos.newsletters)
	require.NotNil(t, deps.repos.sequences)
	require.NotNil(t, deps.repos.idempotency)

	_, isNop := deps.Events.(kafka.NopPublisher)
	require.True(t, isNop, "without brokers events must be a no-op publisher")

	_, isMock := deps.Relay.(*mailer.MockRelay)
	require.True(t, isMock, "without relay url mail must go to the mock relay")
}

func TestNewDependencies_HTTPRelay(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.RelayURL = "https://mail.example.com/send"
	cfg.RelayAPIKey = "secret"

	deps, err := NewDependencies(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer deps.Close()

	_, isHTTP := deps.Relay.(*mailer.HTTPRelay)
	require.True(t, isHTTP)
}

func TestNewDependencies_RedisUnreachable(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	// Порт 1 закрыт, подключение отклоняется сразу.
	cfg.RedisAddr = "127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := NewDependencies(ctx, cfg, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "connect redis")
}

func TestDependencies_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	deps, err := NewDependencies(context.Background(), DefaultConfig(), nil)
	require.NoError(t, err)

	deps.Close()
	deps.Close()
}
