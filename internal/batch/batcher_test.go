package batch

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/ampship/ampship/internal/domain"
)

func mustSizer(t *testing.T) *Sizer {
	t.Helper()
	sizer, err := NewSizer(map[string]any{"api_key": "X"})
	if err != nil {
		t.Fatalf("NewSizer: %v", err)
	}
	return sizer
}

func mustBatcher(t *testing.T, sizer *Sizer, limits Limits) *Batcher {
	t.Helper()
	b, err := NewBatcher(sizer, limits)
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}
	return b
}

func TestLimits_Validate(t *testing.T) {
	tests := []struct {
		name    string
		limits  Limits
		wantErr bool
	}{
		{"valid", Limits{MaxEvents: 2000, MaxBytes: 19 << 20}, false},
		{"zero events", Limits{MaxEvents: 0, MaxBytes: 100}, true},
		{"negative bytes", Limits{MaxEvents: 10, MaxBytes: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.limits.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSplit_CountLimit(t *testing.T) {
	sizer := mustSizer(t)
	b := mustBatcher(t, sizer, Limits{MaxEvents: 2, MaxBytes: 1 << 20})

	events := []domain.Event{
		{"event_type": "e1", "user_id": "u"},
		{"event_type": "e2", "user_id": "u"},
		{"event_type": "e3", "user_id": "u"},
	}

	batches, err := b.Split(events)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	if batches[0].Count() != 2 || batches[1].Count() != 1 {
		t.Errorf("batch sizes = %d,%d, want 2,1", batches[0].Count(), batches[1].Count())
	}
	if !reflect.DeepEqual(batches[1].Events[0], events[2]) {
		t.Errorf("last batch carries %v, want %v", batches[1].Events[0], events[2])
	}
}

// With a byte ceiling that admits one event but never two, every batch holds
// exactly one event.
func TestSplit_ByteLimitSingletons(t *testing.T) {
	sizer := mustSizer(t)

	ev := domain.Event{"event_type": "e", "user_id": "u"}
	evSize, err := sizer.EventSize(ev)
	if err != nil {
		t.Fatalf("EventSize: %v", err)
	}

	b := mustBatcher(t, sizer, Limits{MaxEvents: 2000, MaxBytes: sizer.Base() + evSize})

	events := []domain.Event{ev, ev, ev, ev}
	batches, err := b.Split(events)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	if len(batches) != len(events) {
		t.Fatalf("got %d batches, want %d", len(batches), len(events))
	}
	for i, bt := range batches {
		if bt.Count() != 1 {
			t.Errorf("batch %d has %d events, want 1", i, bt.Count())
		}
		if bt.Oversize {
			t.Errorf("batch %d flagged oversize despite fitting alone", i)
		}
	}
}

// An event too large even alone still ships in its own batch, flagged.
func TestSplit_OversizeSingleEvent(t *testing.T) {
	sizer := mustSizer(t)
	b := mustBatcher(t, sizer, Limits{MaxEvents: 2000, MaxBytes: 64})

	small := domain.Event{"event_type": "e", "user_id": "u"}
	big := domain.Event{"event_type": "e", "user_id": "u", "event_properties": map[string]any{
		"blob": strings.Repeat("x", 200),
	}}

	batches, err := b.Split([]domain.Event{small, big, small})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	var oversize []domain.Batch
	total := 0
	for _, bt := range batches {
		total += bt.Count()
		if bt.Oversize {
			oversize = append(oversize, bt)
		}
	}
	if total != 3 {
		t.Errorf("total events across batches = %d, want 3", total)
	}
	if len(oversize) != 1 {
		t.Fatalf("got %d oversize batches, want 1", len(oversize))
	}
	if oversize[0].Count() != 1 {
		t.Errorf("oversize batch has %d events, want 1", oversize[0].Count())
	}
	if oversize[0].Bytes <= 64 {
		t.Errorf("oversize batch bytes = %d, want > 64", oversize[0].Bytes)
	}
}

// Conservation and order: concatenating the batches reproduces the input,
// and every tracked size matches a full serialization of that batch.
func TestSplit_ConservationAndExactBytes(t *testing.T) {
	sizer := mustSizer(t)
	b := mustBatcher(t, sizer, Limits{MaxEvents: 3, MaxBytes: 300})

	var events []domain.Event
	for i := 0; i < 20; i++ {
		events = append(events, domain.Event{
			"event_type": fmt.Sprintf("event_%02d", i),
			"user_id":    "u1",
			"event_properties": map[string]any{
				"pad": strings.Repeat("p", i*7%50),
			},
		})
	}

	batches, err := b.Split(events)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	var flat []domain.Event
	for _, bt := range batches {
		flat = append(flat, bt.Events...)

		full, err := sizer.Size(bt.Events)
		if err != nil {
			t.Fatalf("Size: %v", err)
		}
		if bt.Bytes != full {
			t.Errorf("batch bytes = %d, full serialization = %d", bt.Bytes, full)
		}
		if !bt.Oversize && bt.Bytes > 300 {
			t.Errorf("unflagged batch exceeds ceiling: %d", bt.Bytes)
		}
	}

	if !reflect.DeepEqual(flat, events) {
		t.Error("concatenated batches do not reproduce the input sequence")
	}
}

func TestSplit_Empty(t *testing.T) {
	sizer := mustSizer(t)
	b := mustBatcher(t, sizer, Limits{MaxEvents: 10, MaxBytes: 1 << 20})

	batches, err := b.Split(nil)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(batches) != 0 {
		t.Errorf("got %d batches from empty input, want 0", len(batches))
	}
}
