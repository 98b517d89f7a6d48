package domain

// Batch is an ordered group of upload-ready events destined for a single
// Batch Upload API request. A batch is immutable once the batcher closes it.
type Batch struct {
	// Events in original accepted order.
	Events []Event

	// Bytes is the exact serialized size of the request payload carrying
	// these events, envelope included.
	Bytes int

	// Oversize marks a single-event batch whose payload alone already
	// exceeds the configured byte ceiling. Such a batch cannot be split
	// further and must not be shipped silently.
	Oversize bool
}

// Count returns the number of events in the batch.
func (b Batch) Count() int { return len(b.Events) }

// Empty returns true if the batch holds no events.
func (b Batch) Empty() bool { return len(b.Events) == 0 }
