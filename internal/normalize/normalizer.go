// Package normalize turns raw Export API records into upload-ready events.
//
// Normalization copies allow-listed fields, resolves the event timestamp to
// epoch milliseconds, and gates the result on the Upload API's required
// fields. It is a pure transform: no I/O, and rejection is an error value,
// never a panic.
package normalize

import (
	"encoding/json"

	"github.com/ampship/ampship/internal/domain"
)

// Normalizer maps raw exported records onto the upload schema.
type Normalizer struct {
	fields []FieldMapping
}

// New creates a Normalizer over the given field allow-list. Pass
// DefaultFieldMap() for the standard Export-to-Upload mapping.
func New(fields []FieldMapping) *Normalizer {
	return &Normalizer{fields: fields}
}

// Normalize converts one raw record into an upload-ready event.
//
// A raw value is treated as absent when it is JSON null, the empty string,
// or an empty object. Empty arrays, the number zero, and false are real
// values and survive the copy.
//
// Rejected records return a nil event and one of the domain sentinels
// (domain.ErrMissingEventType, domain.ErrMissingIdentity) so callers can
// count rejections by reason.
func (n *Normalizer) Normalize(raw domain.RawEvent) (domain.Event, error) {
	out := make(domain.Event, len(n.fields))

	for _, f := range n.fields {
		v, ok := raw[f.Source]
		if !ok || absent(v) {
			continue
		}
		out[f.Target] = v
	}

	if ms, ok := resolveTime(raw); ok {
		out["time"] = ms
	}

	if !usable(out["event_type"]) {
		return nil, domain.ErrMissingEventType
	}
	if !usable(out["user_id"]) && !usable(out["device_id"]) {
		return nil, domain.ErrMissingIdentity
	}

	return out, nil
}

// absent reports whether a present raw value should be dropped during the
// field copy: null, empty string, or empty object.
func absent(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

// usable reports whether a copied value satisfies the validation gate.
// Empty strings, zero numbers, false, and empty arrays count as missing.
func usable(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	case int64:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case []any:
		return len(t) > 0
	default:
		return true
	}
}
