package domain

import "encoding/json"

// RawEvent is a single record as decoded from one line of an Export API
// JSON file. Keys and value shapes are whatever the export produced; the
// normalizer decides what survives.
type RawEvent map[string]any

// Event is an upload-ready record. It carries only allow-listed upload
// fields plus an optional resolved "time" (epoch milliseconds, UTC).
// Events are immutable once produced by the normalizer: they are shared
// by reference between the converted sequence and the batch that carries
// them, and never written to afterward.
type Event map[string]any

// Time returns the resolved timestamp in epoch milliseconds, if present.
// Records decoded from JSON carry numbers as json.Number; records built by
// the normalizer carry int64.
func (e Event) Time() (int64, bool) {
	switch v := e["time"].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		return 0, false
	default:
		return 0, false
	}
}
