package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mixtape/mixtape/internal/models"
)

func TestNewProgress(t *testing.T) {
	tests := []struct {
		name          string
		written       int64
		total         int64
		wantFraction  float64
		indeterminate bool
	}{
		{"half", 50, 100, 0.5, false},
		{"done", 100, 100, 1, false},
		{"overshoot clamps", 150, 100, 1, false},
		{"negative clamps", -5, 100, 0, false},
		{"unknown total", 500, 0, 0, true},
		{"negative total", 500, -1, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProgress(tt.written, tt.total)
			if p.Fraction != tt.wantFraction {
				t.Errorf("Fraction = %v, want %v", p.Fraction, tt.wantFraction)
			}
			if p.Indeterminate != tt.indeterminate {
				t.Errorf("Indeterminate = %v, want %v", p.Indeterminate, tt.indeterminate)
			}
		})
	}
}

func TestFeed_LatestValueWins(t *testing.T) {
	f := NewFeed()
	for i := int64(1); i <= 10; i++ {
		f.Publish(NewProgress(i*10, 100))
	}

	got := <-f.Updates()
	if got.BytesWritten != 100 {
		t.Errorf("Expected latest value 100, got %d", got.BytesWritten)
	}
	select {
	case p := <-f.Updates():
		t.Errorf("Expected no further values, got %+v", p)
	default:
	}
}

func TestFeed_NeverGoesBackwards(t *testing.T) {
	f := NewFeed()
	f.Publish(NewProgress(60, 100))
	f.Publish(NewProgress(40, 100))

	if got := f.Last().BytesWritten; got != 60 {
		t.Errorf("Last = %d, want 60", got)
	}
}

func TestFeed_TerminalDeliveredOnce(t *testing.T) {
	f := NewFeed()
	f.Publish(NewProgress(10, 100))

	var wg sync.WaitGroup
	wins := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := models.StatusCompleted
			var err error
			if i%2 == 1 {
				status, err = models.StatusFailed, errors.New("boom")
			}
			wins <- f.Finish(Outcome{SessionID: "s", Status: status, Err: err})
		}(i)
	}
	wg.Wait()
	close(wins)

	count := 0
	for w := range wins {
		if w {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("Finish succeeded %d times, want 1", count)
	}

	o := <-f.Done()
	if o.Progress.BytesWritten != 10 {
		t.Errorf("Outcome should carry last progress, got %+v", o.Progress)
	}
	select {
	case extra := <-f.Done():
		t.Errorf("Second outcome delivered: %+v", extra)
	default:
	}

	// Publishing after finish is a no-op and must not panic on the closed channel.
	f.Publish(NewProgress(20, 100))
}

func TestFeed_ConsumerDrainsUntilClosed(t *testing.T) {
	f := NewFeed()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var seen []int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range f.Updates() {
			seen = append(seen, p.BytesWritten)
		}
	}()

	for i := int64(0); i <= 1000; i++ {
		f.Publish(NewProgress(i, 1000))
	}
	f.Finish(Outcome{Status: models.StatusCompleted})

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("consumer did not observe close")
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("progress went backwards: %v", seen)
		}
	}
}

func TestFeed_OutcomeNeverBehindUpdates(t *testing.T) {
	f := NewFeed()
	f.Publish(NewProgress(900, 1000))

	// Bytes past the last sync were lost; only 600 are durable.
	f.Finish(Outcome{Status: models.StatusPaused, Progress: NewProgress(600, 1000), Durable: 600})
	o := <-f.Done()
	if o.Progress.BytesWritten != 900 {
		t.Errorf("Outcome progress = %d, want the last published 900", o.Progress.BytesWritten)
	}
	if o.Durable != 600 {
		t.Errorf("Durable = %d, want 600", o.Durable)
	}
}
