package app

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/mirokugang/mukon/internal/relay/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	var c config.Config
	require.NoError(t, c.LoadDefaults())
	c.EndpointAddr = freeAddr(t)
	c.LedgerAddr = "127.0.0.1:1"

	app, err := NewApp(context.Background(), &c)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestApp_RedisUnavailable(t *testing.T) {
	var c config.Config
	require.NoError(t, c.LoadDefaults())
	c.RedisAddr = freeAddr(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewApp(ctx, &c)
	assert.Error(t, err)
}
