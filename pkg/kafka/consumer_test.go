package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     chan kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-r.queue:
		return m, nil
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type flakyHandler struct {
	mu    sync.Mutex
	calls int
	fails int
	seen  [][]byte
}

func (h *flakyHandler) Topic() string { return "alerts" }

func (h *flakyHandler) Handle(_ context.Context, b []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.calls <= h.fails {
		return errors.New("transient")
	}
	h.seen = append(h.seen, b)
	return nil
}

func newTestConsumer(t *testing.T, r *fakeReader) *Consumer {
	t.Helper()
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond))
	require.NoError(t, err)
	c.newReader = func(string) messageReader { return r }
	return c
}

func TestConsumerRetriesThenCommits(t *testing.T) {
	r := &fakeReader{queue: make(chan kafka.Message, 1)}
	c := newTestConsumer(t, r)
	h := &flakyHandler{fails: 2}
	c.RegisterHandler(h)
	require.NoError(t, c.Start(context.Background()))

	r.queue <- kafka.Message{Value: []byte("hello")}
	require.Eventually(t, func() bool { return r.commits() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	assert.Equal(t, 3, h.calls)
	assert.Equal(t, [][]byte{[]byte("hello")}, h.seen)
}

func TestConsumerReportsExhaustedRetries(t *testing.T) {
	r := &fakeReader{queue: make(chan kafka.Message, 1)}
	c := newTestConsumer(t, r)
	c.RegisterHandler(&flakyHandler{fails: 100})
	errs := make(chan error, 4)
	c.OnError(func(_ string, err error) { errs <- err })
	require.NoError(t, c.Start(context.Background()))

	r.queue <- kafka.Message{Value: []byte("x")}
	select {
	case err := <-errs:
		assert.EqualError(t, err, "transient")
	case <-time.After(time.Second):
		t.Fatal("no error reported")
	}
	require.Eventually(t, func() bool { return r.commits() == 1 }, time.Second, time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
}

func TestConsumerStartWithoutHandlers(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"b"}))
	require.NoError(t, err)
	assert.Error(t, c.Start(context.Background()))
}
