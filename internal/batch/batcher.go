package batch

import (
	"fmt"

	"github.com/ampship/ampship/internal/domain"
)

// Limits bound a single upload request. They are parameters, not constants,
// so callers can batch against arbitrary ceilings.
type Limits struct {
	// MaxEvents is the maximum event count per batch.
	MaxEvents int

	// MaxBytes is the maximum serialized payload size per batch, envelope
	// included.
	MaxBytes int
}

// Validate checks that both limits are positive.
func (l Limits) Validate() error {
	if l.MaxEvents <= 0 {
		return fmt.Errorf("max events must be positive, got %d", l.MaxEvents)
	}
	if l.MaxBytes <= 0 {
		return fmt.Errorf("max bytes must be positive, got %d", l.MaxBytes)
	}
	return nil
}

// Batcher splits an ordered event sequence into batches obeying Limits.
type Batcher struct {
	sizer  *Sizer
	limits Limits
}

// NewBatcher creates a Batcher over the given sizer and limits.
func NewBatcher(sizer *Sizer, limits Limits) (*Batcher, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return &Batcher{sizer: sizer, limits: limits}, nil
}

// Split partitions events into ordered batches with a single greedy pass.
// Each event lands in exactly one batch, batches preserve input order, and
// concatenating the output reproduces the input.
//
// Payload sizes are tracked incrementally: a batch of n events costs the
// sizer's base plus each event's serialized size plus n-1 commas, which is
// byte-identical to serializing the whole payload.
//
// An event whose payload alone already exceeds MaxBytes still gets its own
// batch, marked Oversize; the one-event lookahead cannot shrink it further.
func (b *Batcher) Split(events []domain.Event) ([]domain.Batch, error) {
	var (
		batches  []domain.Batch
		cur      []domain.Event
		curBytes = b.sizer.Base()
	)

	flush := func() {
		if len(cur) == 0 {
			return
		}
		batches = append(batches, domain.Batch{
			Events:   cur,
			Bytes:    curBytes,
			Oversize: curBytes > b.limits.MaxBytes,
		})
	}

	for _, ev := range events {
		evBytes, err := b.sizer.EventSize(ev)
		if err != nil {
			return nil, err
		}

		trialBytes := curBytes + evBytes
		if len(cur) > 0 {
			trialBytes++ // separating comma
		}

		if len(cur)+1 > b.limits.MaxEvents || trialBytes > b.limits.MaxBytes {
			flush()
			cur = []domain.Event{ev}
			curBytes = b.sizer.Base() + evBytes
			continue
		}

		cur = append(cur, ev)
		curBytes = trialBytes
	}

	flush()
	return batches, nil
}
