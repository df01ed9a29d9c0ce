// Package consumer subscribes to price events and maintains a
// per-symbol sliding window to compute and publish moving averages.
// It implements at-least-once semantics: offsets are committed only
// after any resulting average row is persisted, and window state is
// advanced only after a successful commit, so a redelivered event can
// at worst produce a duplicate average row.
package consumer

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/pricepulse/pricepulse/internal/domain"
)

// Reader is the Kafka consume surface, satisfied by *kafka.Reader.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Store is the persistence surface for derived averages.
type Store interface {
	InsertAverage(ctx context.Context, avg *domain.MovingAverage) error
}

// Publisher emits derived average events.
type Publisher interface {
	PublishAverage(ctx context.Context, event domain.AverageEvent) error
}

// Config holds consumer settings.
type Config struct {
	// Period is the sliding window size; averages are only computed
	// from exactly Period points.
	Period int

	// Workers is the number of window workers. Messages are routed to
	// workers by a hash of the symbol, so one symbol is always handled
	// by the same worker and per-symbol ordering is preserved.
	Workers int
}

// NewReader builds a kafka-go reader with manual commits; offsets are
// committed explicitly after persistence.
func NewReader(broker, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{broker},
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // commits are handled manually
	})
}

// Consumer computes moving averages from the price event stream.
type Consumer struct {
	reader    Reader
	store     Store
	publisher Publisher
	cfg       Config
	logger    *slog.Logger

	workerChans []chan kafka.Message
	wg          sync.WaitGroup
}

// New creates a Consumer with the provided dependencies.
func New(reader Reader, store Store, publisher Publisher, cfg Config, logger *slog.Logger) *Consumer {
	if cfg.Period < 1 {
		cfg.Period = 5
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Consumer{
		reader:    reader,
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start runs the consume loop until the context is cancelled. In-flight
// messages finish processing (including offset commits) before Start
// returns.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting moving-average consumer",
		"workers", c.cfg.Workers,
		"period", c.cfg.Period)

	c.workerChans = make([]chan kafka.Message, c.cfg.Workers)
	for i := range c.workerChans {
		c.workerChans[i] = make(chan kafka.Message, 2)
		c.wg.Add(1)
		go c.worker(i)
	}

	c.readMessages(ctx)

	for _, ch := range c.workerChans {
		close(ch)
	}
	c.wg.Wait()

	if err := c.reader.Close(); err != nil {
		c.logger.Error("error closing reader", "error", err)
		return err
	}

	c.logger.Info("moving-average consumer shut down cleanly")
	return nil
}

// readMessages fetches from Kafka and routes each message to the
// worker owning its symbol.
func (c *Consumer) readMessages(ctx context.Context) {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("error fetching message", "error", err)
			continue
		}

		select {
		case c.workerChans[c.route(m.Key)] <- m:
		case <-ctx.Done():
			return
		}
	}
}

// route picks the worker for a partition key. Same key, same worker.
func (c *Consumer) route(key []byte) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32() % uint32(len(c.workerChans)))
}

// worker owns the sliding windows for its share of symbols.
func (c *Consumer) worker(id int) {
	defer c.wg.Done()

	windows := make(map[string]*Window)
	logger := c.logger.With("worker", id)

	for msg := range c.workerChans[id] {
		c.process(msg, windows, logger)
	}
	logger.Debug("worker stopped")
}

// process handles one price event end to end: window math, persist,
// publish, commit, then window advance. Any persistence or commit
// failure leaves the window untouched so redelivery replays cleanly.
func (c *Consumer) process(msg kafka.Message, windows map[string]*Window, logger *slog.Logger) {
	// Processing outlives the fetch context so in-flight commits can
	// complete during shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var event domain.PriceEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Error("skipping malformed price event", "offset", msg.Offset, "error", err)
		// Malformed payloads are never going to parse; commit past them.
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Error("error committing offset", "offset", msg.Offset, "error", err)
		}
		return
	}

	symbol := domain.NormalizeSymbol(event.Symbol)
	w, ok := windows[symbol]
	if !ok {
		w = NewWindow(c.cfg.Period)
		windows[symbol] = w
	}

	if mean, full := w.Next(event.Price); full {
		avg := &domain.MovingAverage{
			Symbol:       symbol,
			Value:        mean,
			Period:       c.cfg.Period,
			Timestamp:    event.Timestamp,
			CalculatedAt: time.Now().UTC(),
		}

		if err := c.store.InsertAverage(ctx, avg); err != nil {
			// No commit, no window advance: the event is redelivered
			// and recomputed. A crash after this insert but before the
			// commit below yields a duplicate row, which is accepted.
			logger.Error("error persisting moving average", "symbol", symbol, "error", err)
			return
		}

		if err := c.publisher.PublishAverage(ctx, domain.NewAverageEvent(avg)); err != nil {
			logger.Error("error publishing average event", "symbol", symbol, "error", err)
		}

		logger.Info("moving average computed",
			"symbol", symbol,
			"period", c.cfg.Period,
			"average", mean)
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		logger.Error("error committing offset", "offset", msg.Offset, "error", err)
		return
	}

	w.Append(event.Price)
}
