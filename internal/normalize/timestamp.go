package normalize

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/ampship/ampship/internal/domain"
)

// timestampLayout matches Export API timestamps such as
// "2024-01-15 10:30:45.123456". Go's parser accepts a fractional second
// after the seconds field even when the layout omits it, so the one layout
// covers both forms.
const timestampLayout = "2006-01-02 15:04:05"

// timestampFields are tried in order of preference; the first one that
// parses wins.
var timestampFields = [...]string{"event_time", "client_event_time", "server_received_time"}

// resolveTime determines the upload timestamp for a raw record, in epoch
// milliseconds UTC. It returns false when no field resolves; a missing
// timestamp never rejects a record on its own.
func resolveTime(raw domain.RawEvent) (int64, bool) {
	for _, field := range timestampFields {
		s, ok := raw[field].(string)
		if !ok || s == "" {
			continue
		}
		t, err := time.ParseInLocation(timestampLayout, s, time.UTC)
		if err != nil {
			continue
		}
		return t.UnixMilli(), true
	}

	// Fall back to a numeric time the record already carries.
	return numericTime(raw["time"])
}

// numericTime interprets an existing "time" value as epoch milliseconds.
// Zero and unparseable values count as absent.
func numericTime(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil && i != 0 {
			return i, true
		}
		if f, err := t.Float64(); err == nil && f != 0 {
			return int64(f), true
		}
	case float64:
		if t != 0 {
			return int64(t), true
		}
	case int64:
		if t != 0 {
			return t, true
		}
	case string:
		if i, err := strconv.ParseInt(t, 10, 64); err == nil && i != 0 {
			return i, true
		}
	}
	return 0, false
}
