// Package producer publishes price and average events to Kafka, keyed
// by symbol so per-symbol ordering is preserved within a partition.
package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sethvargo/go-retry"

	"github.com/pricepulse/pricepulse/internal/domain"
)

const (
	retryBaseDelay  = 500 * time.Millisecond
	retryMaxAttempt = 5
)

// Writer is the Kafka write surface, satisfied by *kafka.Writer.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter builds a kafka-go writer for one topic. The hash balancer
// routes every message with the same key to the same partition.
func NewWriter(broker, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

type retryItem struct {
	writer Writer
	msg    kafka.Message
}

// Producer publishes events with a bounded synchronous timeout. A
// failed write is queued locally and retried in the background with
// exponential back-off; the caller's path never blocks on a broker
// outage beyond the timeout.
type Producer struct {
	priceWriter   Writer
	averageWriter Writer
	timeout       time.Duration
	retryQueue    chan retryItem
	logger        *slog.Logger
	wg            sync.WaitGroup
}

// New creates a Producer over the two topic writers.
func New(priceWriter, averageWriter Writer, timeout time.Duration, retryQueueSize int, logger *slog.Logger) *Producer {
	if retryQueueSize < 1 {
		retryQueueSize = 1
	}
	return &Producer{
		priceWriter:   priceWriter,
		averageWriter: averageWriter,
		timeout:       timeout,
		retryQueue:    make(chan retryItem, retryQueueSize),
		logger:        logger,
	}
}

// Start runs the retry drain loop until the context is cancelled.
func (p *Producer) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.drainRetries(ctx)
}

// Close waits for the retry worker to finish and closes both writers.
func (p *Producer) Close() error {
	p.wg.Wait()
	if err := p.priceWriter.Close(); err != nil {
		return err
	}
	return p.averageWriter.Close()
}

// PublishPrice publishes a price event keyed by symbol.
func (p *Producer) PublishPrice(ctx context.Context, event domain.PriceEvent) error {
	return p.publish(ctx, p.priceWriter, event.Symbol, event)
}

// PublishAverage publishes an average event keyed by symbol.
func (p *Producer) PublishAverage(ctx context.Context, event domain.AverageEvent) error {
	return p.publish(ctx, p.averageWriter, event.Symbol, event)
}

func (p *Producer) publish(ctx context.Context, w Writer, key string, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", domain.ErrPublish, err)
	}

	msg := kafka.Message{Key: []byte(key), Value: value}

	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := w.WriteMessages(writeCtx, msg); err == nil {
		return nil
	} else if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", domain.ErrPublish, ctx.Err())
	} else {
		p.logger.Warn("publish failed, queueing for retry", "key", key, "error", err)
	}

	select {
	case p.retryQueue <- retryItem{writer: w, msg: msg}:
		return nil
	default:
		p.logger.Error("publish retry queue full, dropping event", "key", key)
		return fmt.Errorf("%w: retry queue full", domain.ErrPublish)
	}
}

// drainRetries rewrites queued messages with exponential back-off.
// Messages still failing after the attempt budget are dropped and
// logged; at-least-once delivery is the channel's concern, not ours.
func (p *Producer) drainRetries(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			// Best-effort flush of whatever is already queued.
			for {
				select {
				case item := <-p.retryQueue:
					p.retryWrite(context.Background(), item)
				default:
					return
				}
			}
		case item := <-p.retryQueue:
			p.retryWrite(ctx, item)
		}
	}
}

func (p *Producer) retryWrite(ctx context.Context, item retryItem) {
	backoff := retry.WithMaxRetries(retryMaxAttempt, retry.NewExponential(retryBaseDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		if err := item.writer.WriteMessages(writeCtx, item.msg); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		p.logger.Error("dropping event after retries", "key", string(item.msg.Key), "error", err)
	}
}
