package bootstrap

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storehook/internal/broker"
	"storehook/internal/config"
	"storehook/internal/logger"
)

func TestBase_InitProducerWithoutBrokers(t *testing.T) {
	b := NewBase(&config.Config{}, logger.NopLogger())

	require.NoError(t, b.InitProducer())
	assert.Nil(t, b.Producer)

	err := b.InitConsumer("webhook-service")
	assert.ErrorIs(t, err, broker.ErrNoBrokers)

	assert.NoError(t, b.Shutdown(context.Background(), nil))
}

func TestDatabaseConnector_InitRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{}
	cfg.Database.Redis.Host = mr.Host()
	cfg.Database.Redis.Port = mustPort(t, mr)

	dc := NewDatabaseConnector(cfg, logger.NopLogger())

	client, err := dc.InitRedis(context.Background())
	require.NoError(t, err)
	assert.Nil(t, client, "dedupe disabled")

	cfg.Deduplication.Enabled = true
	client, err = dc.InitRedis(context.Background())
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Empty(t, dc.ShutdownDatabases(context.Background(), client))

	mr.Close()
	_, err = dc.InitRedis(context.Background())
	assert.ErrorContains(t, err, "failed to ping Redis")
}

func mustPort(t *testing.T, mr *miniredis.Miniredis) int {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	return port
}
