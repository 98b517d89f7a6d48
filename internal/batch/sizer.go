// Package batch partitions upload-ready events into request-sized batches.
//
// The Upload API enforces two hard per-request ceilings: an event count and
// a serialized byte size. Sizer computes exact payload sizes; Batcher walks
// the event sequence once and closes a batch whenever the next event would
// break either limit.
package batch

import (
	"encoding/json"
	"fmt"

	"github.com/ampship/ampship/internal/domain"
)

// eventsKey is the payload key carrying the batch; envelope fields may not
// claim it.
const eventsKey = "events"

// Sizer computes the exact serialized size of Upload API payloads for a
// fixed set of envelope fields (the api_key, typically). Sizes are
// load-bearing against the destination's hard byte ceiling, so every result
// is byte-identical to the payload the uploader actually sends.
type Sizer struct {
	envelope map[string]any
	base     int
}

// NewSizer creates a Sizer for the given envelope fields. The envelope must
// not use the reserved "events" key.
func NewSizer(envelope map[string]any) (*Sizer, error) {
	if _, ok := envelope[eventsKey]; ok {
		return nil, fmt.Errorf("envelope field %q is reserved", eventsKey)
	}

	s := &Sizer{envelope: envelope}

	// Base cost: the envelope serialized with an empty events array. Every
	// payload is this skeleton plus the events and the commas between them.
	empty, err := s.Payload(nil)
	if err != nil {
		return nil, err
	}
	s.base = len(empty)
	return s, nil
}

// Payload serializes the envelope merged with events into the exact request
// body the uploader sends. A nil event slice serializes as an empty array.
func (s *Sizer) Payload(events []domain.Event) ([]byte, error) {
	merged := make(map[string]any, len(s.envelope)+1)
	for k, v := range s.envelope {
		merged[k] = v
	}
	if events == nil {
		events = []domain.Event{}
	}
	merged[eventsKey] = events

	b, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return b, nil
}

// Size returns the byte length of the payload carrying events. It is the
// full-serialization reference the incremental accounting must agree with.
func (s *Sizer) Size(events []domain.Event) (int, error) {
	b, err := s.Payload(events)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// Base returns the payload size with zero events: envelope plus the empty
// events array.
func (s *Sizer) Base() int { return s.base }

// EventSize returns the serialized size of a single event as an array
// element. A payload of n events measures exactly
// Base() + sum(EventSize) + (n-1) separating commas.
func (s *Sizer) EventSize(ev domain.Event) (int, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("marshal event: %w", err)
	}
	return len(b), nil
}
