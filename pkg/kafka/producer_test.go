package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}

func TestPublishEncodesValues(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "gzip")

	require.NoError(t, p.Publish(context.Background(), "alerts", []byte("k"), map[string]int{"a": 1}))
	require.NoError(t, p.PublishMessage(context.Background(), "logs", "raw"))
	require.Len(t, w.msgs, 2)

	assert.Equal(t, "alerts", w.msgs[0].Topic)
	assert.Equal(t, []byte("k"), w.msgs[0].Key)
	var got map[string]int
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, 1, got["a"])

	assert.Equal(t, "logs", w.msgs[1].Topic)
	assert.Equal(t, []byte("raw"), w.msgs[1].Value)
}

func TestPublishBatchEmptyIsNoop(t *testing.T) {
	w := &fakeWriter{err: errors.New("unreachable")}
	p := newProducer(w, "gzip")
	assert.NoError(t, p.PublishBatch(context.Background(), "alerts", nil))
}

func TestPublishWrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := newProducer(&fakeWriter{err: boom}, "gzip")
	err := p.Publish(context.Background(), "alerts", nil, "x")
	assert.ErrorIs(t, err, boom)
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt < 10; attempt++ {
		d := backoffWithJitter(10, 100, attempt)
		assert.LessOrEqual(t, int64(d), int64(100))
		assert.Greater(t, int64(d), int64(0))
	}
}
