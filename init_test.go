package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tournevent/postershop/internal/notify"
)

func TestInitApp_InMemoryWithSeparateBuses(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DOWNLOAD_SECRET", "s3cret")

	cfg, err := loadConfig()
	require.NoError(t, err)

	a, err := initApp(context.Background(), cfg, otelzap.New(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.NotNil(t, a.resolver)
	require.NotNil(t, a.orderEvents)
	require.NotNil(t, a.returnEvents)
	assert.NotSame(t, a.orderEvents, a.returnEvents)

	unsubscribe := a.orderEvents.Subscribe(notify.KindOrderConfirmation, func(context.Context, notify.Message) error {
		return nil
	})
	defer unsubscribe()

	assert.Equal(t, 1, a.orderEvents.Subscribers())
	assert.Zero(t, a.returnEvents.Subscribers())
}

func TestInitApp_RequiresDownloadSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DOWNLOAD_SECRET", "")

	cfg, err := loadConfig()
	require.NoError(t, err)

	_, err = initApp(context.Background(), cfg, otelzap.New(zap.NewNop()))
	assert.ErrorContains(t, err, "download signer")
}
