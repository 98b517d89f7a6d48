package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ManifestFileName is the bundle manifest written next to the payload files.
const ManifestFileName = "manifest.json"

// Manifest records what a bundle run produced. The uploader is driven by it.
type Manifest struct {
	CreatedAt   time.Time       `json:"created_at"`
	TotalEvents int             `json:"total_events"`
	MaxEvents   int             `json:"max_events"`
	MaxBytes    int             `json:"max_bytes"`
	Batches     []ManifestEntry `json:"batches"`
}

// ManifestEntry describes one produced batch payload.
type ManifestEntry struct {
	// Seq is the 1-based batch number; payloads upload in Seq order.
	Seq int `json:"seq"`

	// ID is a unique identifier for the batch, stable across resumes.
	ID string `json:"id"`

	// Payload is the payload file name, relative to the manifest.
	Payload string `json:"payload"`

	// Events is the number of events in the batch.
	Events int `json:"events"`

	// Bytes is the exact payload size.
	Bytes int `json:"bytes"`

	// Oversize marks a single-event batch exceeding the byte ceiling.
	Oversize bool `json:"oversize,omitempty"`
}

// WriteManifest persists the manifest atomically (temp file, then rename).
func WriteManifest(dir string, m Manifest) error {
	path := filepath.Join(dir, ManifestFileName)
	tmp := path + ".tmp"

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadManifest reads the manifest from dir.
func LoadManifest(dir string) (Manifest, error) {
	var m Manifest

	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse manifest: %w", err)
	}
	return m, nil
}
