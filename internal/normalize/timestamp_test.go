package normalize

import (
	"encoding/json"
	"testing"

	"github.com/ampship/ampship/internal/domain"
)

func TestResolveTime(t *testing.T) {
	tests := []struct {
		name   string
		raw    domain.RawEvent
		want   int64
		wantOK bool
	}{
		{
			name:   "fractional seconds",
			raw:    domain.RawEvent{"event_time": "2024-01-15 10:30:45.123456"},
			want:   1705314645123,
			wantOK: true,
		},
		{
			name:   "whole seconds",
			raw:    domain.RawEvent{"event_time": "2024-01-15 10:30:45"},
			want:   1705314645000,
			wantOK: true,
		},
		{
			name: "event_time preferred over later fields",
			raw: domain.RawEvent{
				"event_time":           "2024-01-15 10:30:45",
				"client_event_time":    "2024-01-15 11:00:00",
				"server_received_time": "2024-01-15 12:00:00",
			},
			want:   1705314645000,
			wantOK: true,
		},
		{
			name: "unparseable event_time falls through",
			raw: domain.RawEvent{
				"event_time":        "not a timestamp",
				"client_event_time": "2024-01-15 11:00:00",
			},
			want:   1705316400000,
			wantOK: true,
		},
		{
			name:   "numeric time fallback",
			raw:    domain.RawEvent{"time": json.Number("1705314645123")},
			want:   1705314645123,
			wantOK: true,
		},
		{
			name:   "digit string time fallback",
			raw:    domain.RawEvent{"time": "1705314645123"},
			want:   1705314645123,
			wantOK: true,
		},
		{
			name: "zero time counts as absent",
			raw:  domain.RawEvent{"time": json.Number("0")},
		},
		{
			name: "non-numeric time counts as absent",
			raw:  domain.RawEvent{"time": "yesterday"},
		},
		{
			name: "nothing resolvable",
			raw:  domain.RawEvent{"event_type": "login"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := resolveTime(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("resolveTime ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("resolveTime = %d, want %d", got, tt.want)
			}
		})
	}
}
