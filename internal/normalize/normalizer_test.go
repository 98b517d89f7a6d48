package normalize

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/ampship/ampship/internal/domain"
)

func TestNormalize_MapsAndResolvesTime(t *testing.T) {
	n := New(DefaultFieldMap())

	raw := domain.RawEvent{
		"event_time": "2024-01-15 10:30:45.123456",
		"user_id":    "u1",
		"event_type": "login",
	}

	ev, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	want := domain.Event{
		"user_id":    "u1",
		"event_type": "login",
		"time":       int64(1705314645123),
	}
	if !reflect.DeepEqual(ev, want) {
		t.Errorf("Normalize = %#v, want %#v", ev, want)
	}
}

func TestNormalize_DropsUnrecognizedFields(t *testing.T) {
	n := New(DefaultFieldMap())

	ev, err := n.Normalize(domain.RawEvent{
		"event_type":   "view",
		"device_id":    "d1",
		"amplitude_id": json.Number("42"),
		"$schema":      "whatever",
		"uuid":         "abc",
	})
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	for _, k := range []string{"amplitude_id", "$schema", "uuid"} {
		if _, ok := ev[k]; ok {
			t.Errorf("unrecognized field %q survived normalization", k)
		}
	}
}

func TestNormalize_ValidationGate(t *testing.T) {
	n := New(DefaultFieldMap())

	tests := []struct {
		name    string
		raw     domain.RawEvent
		wantErr error
	}{
		{
			name:    "no identity at all",
			raw:     domain.RawEvent{"event_type": "login"},
			wantErr: domain.ErrMissingIdentity,
		},
		{
			name:    "empty identity strings",
			raw:     domain.RawEvent{"event_type": "login", "user_id": "", "device_id": ""},
			wantErr: domain.ErrMissingIdentity,
		},
		{
			name:    "missing event type",
			raw:     domain.RawEvent{"user_id": "u1"},
			wantErr: domain.ErrMissingEventType,
		},
		{
			name:    "empty event type",
			raw:     domain.RawEvent{"event_type": "", "user_id": "u1"},
			wantErr: domain.ErrMissingEventType,
		},
		{
			name: "device id alone suffices",
			raw:  domain.RawEvent{"event_type": "login", "device_id": "d1"},
		},
		{
			name: "user id alone suffices",
			raw:  domain.RawEvent{"event_type": "login", "user_id": "u1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := n.Normalize(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Normalize error = %v, want %v", err, tt.wantErr)
				}
				if ev != nil {
					t.Errorf("rejected record returned event %v", ev)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize returned error: %v", err)
			}
		})
	}
}

// Empty strings and empty objects count as absent; empty arrays, the number
// zero, and false are real values and survive.
func TestNormalize_EmptyValuePolicy(t *testing.T) {
	n := New(DefaultFieldMap())

	ev, err := n.Normalize(domain.RawEvent{
		"event_type":       "purchase",
		"user_id":          "u1",
		"carrier":          "",
		"event_properties": map[string]any{},
		"user_properties":  map[string]any{"plan": "pro"},
		"groups":           []any{},
		"quantity":         json.Number("0"),
		"revenue":          false,
		"platform":         nil,
	})
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	for _, k := range []string{"carrier", "event_properties", "platform"} {
		if _, ok := ev[k]; ok {
			t.Errorf("empty value %q should have been dropped", k)
		}
	}
	for _, k := range []string{"groups", "quantity", "revenue"} {
		if _, ok := ev[k]; !ok {
			t.Errorf("value %q should have been copied", k)
		}
	}
	if props, ok := ev["user_properties"].(map[string]any); !ok || props["plan"] != "pro" {
		t.Errorf("user_properties = %v, want plan=pro", ev["user_properties"])
	}
}

func TestNormalize_MissingTimestampIsNotFatal(t *testing.T) {
	n := New(DefaultFieldMap())

	ev, err := n.Normalize(domain.RawEvent{"event_type": "login", "user_id": "u1"})
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if _, ok := ev["time"]; ok {
		t.Errorf("event without timestamp fields got time = %v", ev["time"])
	}
}

// Normalizing an already-normalized event changes nothing.
func TestNormalize_Idempotent(t *testing.T) {
	n := New(DefaultFieldMap())

	raws := []domain.RawEvent{
		{"event_time": "2024-01-15 10:30:45.123456", "user_id": "u1", "event_type": "login"},
		{"event_type": "view", "device_id": "d1", "event_properties": map[string]any{"page": "home"}},
		{"event_type": "buy", "user_id": "u2", "quantity": json.Number("3")},
	}

	for _, raw := range raws {
		once, err := n.Normalize(raw)
		if err != nil {
			t.Fatalf("first pass: %v", err)
		}
		twice, err := n.Normalize(domain.RawEvent(once))
		if err != nil {
			t.Fatalf("second pass: %v", err)
		}
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("re-normalization changed the event:\n once: %#v\ntwice: %#v", once, twice)
		}
	}
}
