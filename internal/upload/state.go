package upload

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const stateFileName = "upload_state.json"

// State is the resume bookkeeping for an upload run: which manifest batches
// the destination has acknowledged. Delivery stays at-least-once; a crash
// between a 200 and the state save re-sends one batch.
type State struct {
	// Acked lists acknowledged batch seqs, sorted ascending.
	Acked []int `json:"acked_batches"`

	// LastUploadAt is the time of the most recent acknowledged upload.
	LastUploadAt time.Time `json:"last_upload_at,omitempty"`
}

// Has reports whether seq has been acknowledged.
func (s State) Has(seq int) bool {
	i := sort.SearchInts(s.Acked, seq)
	return i < len(s.Acked) && s.Acked[i] == seq
}

// Mark records seq as acknowledged.
func (s *State) Mark(seq int) {
	if s.Has(seq) {
		return
	}
	s.Acked = append(s.Acked, seq)
	sort.Ints(s.Acked)
	s.LastUploadAt = time.Now().UTC()
}

// StateRepository persists upload state as a JSON file in the requests
// directory, written atomically (temp file, then rename).
type StateRepository struct {
	dir string
}

// NewStateRepository creates a repository rooted at dir.
func NewStateRepository(dir string) *StateRepository {
	return &StateRepository{dir: dir}
}

// Load retrieves the last saved state. A missing file yields an empty state
// and nil error.
func (r *StateRepository) Load() (State, error) {
	data, err := os.ReadFile(r.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("read upload state: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("parse upload state: %w", err)
	}
	return st, nil
}

// Save persists the state atomically.
func (r *StateRepository) Save(st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal upload state: %w", err)
	}

	tmp := r.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write upload state: %w", err)
	}
	return os.Rename(tmp, r.Path())
}

// Path returns the full path to the state file.
func (r *StateRepository) Path() string {
	return filepath.Join(r.dir, stateFileName)
}
