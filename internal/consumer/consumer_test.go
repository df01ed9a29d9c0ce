package consumer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/pricepulse/pricepulse/internal/domain"
)

type fakeReader struct {
	mu         sync.Mutex
	committed  []kafka.Message
	commitErr  error
	fetchQueue chan kafka.Message
}

func newFakeReader() *fakeReader {
	return &fakeReader{fetchQueue: make(chan kafka.Message, 16)}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.fetchQueue:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.commitErr != nil {
		return r.commitErr
	}
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commitCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type fakeAverageStore struct {
	mu        sync.Mutex
	averages  []domain.MovingAverage
	insertErr error
}

func (s *fakeAverageStore) InsertAverage(ctx context.Context, avg *domain.MovingAverage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.averages = append(s.averages, *avg)
	return nil
}

func (s *fakeAverageStore) rows() []domain.MovingAverage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.MovingAverage(nil), s.averages...)
}

type fakeAveragePublisher struct {
	mu     sync.Mutex
	events []domain.AverageEvent
}

func (p *fakeAveragePublisher) PublishAverage(ctx context.Context, event domain.AverageEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakeAveragePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func priceMessage(t *testing.T, symbol string, price float64, ts time.Time) kafka.Message {
	t.Helper()
	value, err := json.Marshal(domain.PriceEvent{
		Symbol:    symbol,
		Price:     price,
		Timestamp: ts,
		Source:    "alpha_vantage",
	})
	if err != nil {
		t.Fatalf("marshal price event: %v", err)
	}
	return kafka.Message{Key: []byte(symbol), Value: value}
}

func newTestConsumer(reader *fakeReader, store *fakeAverageStore, publisher *fakeAveragePublisher) *Consumer {
	return New(reader, store, publisher, Config{Period: 5, Workers: 1}, testLogger())
}

func TestConsumerNoAverageBeforePeriod(t *testing.T) {
	reader := newFakeReader()
	store := &fakeAverageStore{}
	publisher := &fakeAveragePublisher{}
	c := newTestConsumer(reader, store, publisher)

	windows := make(map[string]*Window)
	for _, price := range []float64{100, 102, 104, 106} {
		c.process(priceMessage(t, "AAPL", price, time.Now()), windows, testLogger())
	}

	if len(store.rows()) != 0 {
		t.Errorf("expected no averages with fewer than period points, got %d", len(store.rows()))
	}
	if got := reader.commitCount(); got != 4 {
		t.Errorf("expected 4 committed offsets, got %d", got)
	}
}

func TestConsumerComputesAverageAtPeriod(t *testing.T) {
	reader := newFakeReader()
	store := &fakeAverageStore{}
	publisher := &fakeAveragePublisher{}
	c := newTestConsumer(reader, store, publisher)

	fifth := time.Date(2025, 6, 14, 18, 0, 0, 0, time.UTC)
	windows := make(map[string]*Window)
	prices := []float64{100, 102, 104, 106, 108}
	for i, price := range prices {
		ts := fifth.Add(time.Duration(i-4) * time.Minute)
		c.process(priceMessage(t, "AAPL", price, ts), windows, testLogger())
	}

	rows := store.rows()
	if len(rows) != 1 {
		t.Fatalf("expected exactly one average, got %d", len(rows))
	}
	if math.Abs(rows[0].Value-104.0) > 1e-9 {
		t.Errorf("expected average 104.0, got %v", rows[0].Value)
	}
	if !rows[0].Timestamp.Equal(fifth) {
		t.Errorf("average must carry the triggering event's timestamp, got %v", rows[0].Timestamp)
	}
	if rows[0].Period != 5 {
		t.Errorf("expected period 5, got %d", rows[0].Period)
	}
	if publisher.count() != 1 {
		t.Errorf("expected one published average event, got %d", publisher.count())
	}
}

func TestConsumerSlidesWindow(t *testing.T) {
	reader := newFakeReader()
	store := &fakeAverageStore{}
	publisher := &fakeAveragePublisher{}
	c := newTestConsumer(reader, store, publisher)

	windows := make(map[string]*Window)
	for _, price := range []float64{100, 102, 104, 106, 108, 110} {
		c.process(priceMessage(t, "AAPL", price, time.Now()), windows, testLogger())
	}

	rows := store.rows()
	if len(rows) != 2 {
		t.Fatalf("expected two averages, got %d", len(rows))
	}
	if math.Abs(rows[1].Value-106.0) > 1e-9 {
		t.Errorf("expected second average 106.0 after evicting 100, got %v", rows[1].Value)
	}
}

func TestConsumerSymbolsIsolated(t *testing.T) {
	reader := newFakeReader()
	store := &fakeAverageStore{}
	publisher := &fakeAveragePublisher{}
	c := newTestConsumer(reader, store, publisher)

	windows := make(map[string]*Window)
	for _, price := range []float64{100, 102, 104, 106} {
		c.process(priceMessage(t, "AAPL", price, time.Now()), windows, testLogger())
		c.process(priceMessage(t, "MSFT", price*2, time.Now()), windows, testLogger())
	}

	if len(store.rows()) != 0 {
		t.Errorf("windows must be per symbol; got %d averages from 4+4 mixed events", len(store.rows()))
	}
}

func TestConsumerPersistFailureLeavesWindow(t *testing.T) {
	reader := newFakeReader()
	store := &fakeAverageStore{}
	publisher := &fakeAveragePublisher{}
	c := newTestConsumer(reader, store, publisher)

	windows := make(map[string]*Window)
	for _, price := range []float64{100, 102, 104, 106} {
		c.process(priceMessage(t, "AAPL", price, time.Now()), windows, testLogger())
	}

	store.insertErr = context.DeadlineExceeded
	fifth := priceMessage(t, "AAPL", 108, time.Now())
	c.process(fifth, windows, testLogger())

	if windows["AAPL"].Len() != 4 {
		t.Errorf("window must not advance on persist failure, length %d", windows["AAPL"].Len())
	}
	if got := reader.commitCount(); got != 4 {
		t.Errorf("offset must not be committed on persist failure, got %d commits", got)
	}

	// Redelivery after the store recovers computes the same average.
	store.insertErr = nil
	c.process(fifth, windows, testLogger())

	rows := store.rows()
	if len(rows) != 1 {
		t.Fatalf("expected one average after redelivery, got %d", len(rows))
	}
	if math.Abs(rows[0].Value-104.0) > 1e-9 {
		t.Errorf("expected average 104.0, got %v", rows[0].Value)
	}
	if windows["AAPL"].Len() != 5 {
		t.Errorf("window should advance once after successful redelivery, length %d", windows["AAPL"].Len())
	}
}

func TestConsumerRedeliveryDuplicatesRowOnly(t *testing.T) {
	reader := newFakeReader()
	store := &fakeAverageStore{}
	publisher := &fakeAveragePublisher{}
	c := newTestConsumer(reader, store, publisher)

	windows := make(map[string]*Window)
	for _, price := range []float64{100, 102, 104, 106} {
		c.process(priceMessage(t, "AAPL", price, time.Now()), windows, testLogger())
	}

	// Commit failure simulates a crash between persist and commit: the
	// average row lands but the offset is replayed.
	reader.commitErr = context.DeadlineExceeded
	fifth := priceMessage(t, "AAPL", 108, time.Now())
	c.process(fifth, windows, testLogger())

	if windows["AAPL"].Len() != 4 {
		t.Errorf("window must not advance on commit failure, length %d", windows["AAPL"].Len())
	}
	if len(store.rows()) != 1 {
		t.Fatalf("expected persisted average before commit, got %d", len(store.rows()))
	}

	reader.commitErr = nil
	c.process(fifth, windows, testLogger())

	rows := store.rows()
	if len(rows) != 2 {
		t.Fatalf("redelivery should add at most one duplicate row, got %d", len(rows))
	}
	if rows[0].Value != rows[1].Value {
		t.Errorf("duplicate rows should carry the same value: %v vs %v", rows[0].Value, rows[1].Value)
	}
	if windows["AAPL"].Len() != 5 {
		t.Errorf("window should hold period points after redelivery, length %d", windows["AAPL"].Len())
	}
}

func TestConsumerMalformedEventCommitted(t *testing.T) {
	reader := newFakeReader()
	store := &fakeAverageStore{}
	publisher := &fakeAveragePublisher{}
	c := newTestConsumer(reader, store, publisher)

	windows := make(map[string]*Window)
	c.process(kafka.Message{Key: []byte("AAPL"), Value: []byte("{not json")}, windows, testLogger())

	if got := reader.commitCount(); got != 1 {
		t.Errorf("malformed events must be committed past, got %d commits", got)
	}
	if len(windows) != 0 {
		t.Errorf("malformed events must not touch window state")
	}
}

func TestConsumerStartRoutesAndShutsDown(t *testing.T) {
	reader := newFakeReader()
	store := &fakeAverageStore{}
	publisher := &fakeAveragePublisher{}
	c := New(reader, store, publisher, Config{Period: 2, Workers: 3}, testLogger())

	for _, price := range []float64{100, 102, 104} {
		reader.fetchQueue <- priceMessage(t, "AAPL", price, time.Now())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(store.rows()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for averages, got %d", len(store.rows()))
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start returned error on shutdown: %v", err)
	}
}
