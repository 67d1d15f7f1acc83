package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// messageReader is the subset of *kafka.Reader the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer runs one reader per registered topic. Messages of a topic are handled in order;
// the offset is committed after the handler succeeds or exhausts its retries.
type Consumer struct {
	cfg       *ConsumerConfig
	handlers  map[string]MessageHandler
	newReader func(topic string) messageReader
	readers   []messageReader
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	onError   func(topic string, err error)
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	c := &Consumer{cfg: cfg, handlers: make(map[string]MessageHandler), onError: func(string, error) {}}
	c.newReader = func(topic string) messageReader { return cfg.reader(topic) }
	return c, nil
}

// RegisterHandler registers a handler; a second handler for the same topic is ignored.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, ok := c.handlers[h.Topic()]; !ok {
		c.handlers[h.Topic()] = h
	}
}

// OnError installs a callback for handler failures that survived every retry.
func (c *Consumer) OnError(fn func(topic string, err error)) {
	if fn != nil {
		c.onError = fn
	}
}

// Start launches the readers. They stop when ctx is cancelled or Stop is called.
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}
	ctx, c.cancel = context.WithCancel(ctx)
	for topic, h := range c.handlers {
		r := c.newReader(topic)
		c.readers = append(c.readers, r)
		c.wg.Add(1)
		go c.consume(ctx, r, h)
	}
	return nil
}

// Stop cancels the readers and waits for in-flight handlers, bounded by ctx.
func (c *Consumer) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
	case <-done:
	}
	var errs []error
	for _, r := range c.readers {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}

func (c *Consumer) consume(ctx context.Context, r messageReader, h MessageHandler) {
	defer c.wg.Done()
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.onError(h.Topic(), err)
			if !sleepCtx(ctx, c.cfg.BackoffMin) {
				return
			}
			continue
		}
		if err := c.handle(ctx, h, msg.Value); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.onError(h.Topic(), err)
		}
		commitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := r.CommitMessages(commitCtx, msg); err != nil {
			c.onError(h.Topic(), fmt.Errorf("commit: %w", err))
		}
		cancel()
	}
}

func (c *Consumer) handle(ctx context.Context, h MessageHandler, data []byte) (err error) {
	for attempt := 1; ; attempt++ {
		err = safeHandle(ctx, h, data)
		if err == nil || attempt > c.cfg.RetryMax {
			return err
		}
		if !sleepCtx(ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return ctx.Err()
		}
	}
}

func safeHandle(ctx context.Context, h MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler for %s: %v", h.Topic(), r)
		}
	}()
	return h.Handle(ctx, data)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min << uint(attempt-1)
	if exp > max || exp <= 0 {
		exp = max
	}
	if half := int64(exp) / 2; half > 0 {
		exp -= time.Duration(rand.Int63n(half))
	}
	return exp
}
