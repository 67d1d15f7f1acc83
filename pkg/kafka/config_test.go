package kafka

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducerConfigWriter(t *testing.T) {
	cfg := defaultProducerConfig()
	for _, opt := range []ProducerOption{
		WithBrokers([]string{"k1:9092"}),
		WithCompression("lz4"),
		WithDelivery(1, 5),
		WithBatching(10, 4096, time.Millisecond),
		WithHashByKey(true),
	} {
		opt(cfg)
	}
	w, err := cfg.writer()
	require.NoError(t, err)
	assert.Equal(t, kafka.Lz4, w.Compression)
	assert.Equal(t, kafka.RequiredAcks(1), w.RequiredAcks)
	assert.Equal(t, 5, w.MaxAttempts)
	assert.Equal(t, int64(4096), w.BatchBytes)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}

func TestProducerConfigRejects(t *testing.T) {
	_, err := defaultProducerConfig().writer()
	assert.Error(t, err)

	cfg := defaultProducerConfig()
	cfg.Brokers = []string{"b"}
	cfg.Compression = "brotli"
	_, err = cfg.writer()
	assert.Error(t, err)
}

func TestParseCompressionNone(t *testing.T) {
	c, err := parseCompression("none")
	require.NoError(t, err)
	assert.Equal(t, kafka.Compression(0), c)
}
