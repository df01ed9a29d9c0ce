package consumer

import (
	"math"
	"testing"
)

func TestWindowNoAverageUntilFull(t *testing.T) {
	w := NewWindow(5)

	for i, price := range []float64{100, 102, 104, 106} {
		if _, full := w.Next(price); full {
			t.Errorf("expected no average with %d points", i+1)
		}
		w.Append(price)
	}
}

func TestWindowFirstAverage(t *testing.T) {
	w := NewWindow(5)
	prices := []float64{100, 102, 104, 106, 108}

	var mean float64
	var full bool
	for _, price := range prices {
		mean, full = w.Next(price)
		w.Append(price)
	}

	if !full {
		t.Fatal("expected average after 5 points")
	}
	if math.Abs(mean-104.0) > 1e-9 {
		t.Errorf("expected mean 104.0, got %v", mean)
	}
}

func TestWindowEvictsOldest(t *testing.T) {
	w := NewWindow(5)
	for _, price := range []float64{100, 102, 104, 106, 108} {
		w.Append(price)
	}

	// 6th point evicts 100; average over [102,104,106,108,110].
	mean, full := w.Next(110)
	if !full {
		t.Fatal("expected average on full window")
	}
	if math.Abs(mean-106.0) > 1e-9 {
		t.Errorf("expected mean 106.0, got %v", mean)
	}

	w.Append(110)
	if w.Len() != 5 {
		t.Errorf("expected window length 5 after eviction, got %d", w.Len())
	}
}

func TestWindowNextDoesNotMutate(t *testing.T) {
	w := NewWindow(3)
	w.Append(1)
	w.Append(2)

	if _, full := w.Next(3); !full {
		t.Fatal("expected full window")
	}
	if w.Len() != 2 {
		t.Errorf("Next must not mutate the window, length became %d", w.Len())
	}
}

func TestWindowSizeOne(t *testing.T) {
	w := NewWindow(1)
	mean, full := w.Next(42)
	if !full {
		t.Fatal("size-1 window should be full on first point")
	}
	if mean != 42 {
		t.Errorf("expected mean 42, got %v", mean)
	}
}
