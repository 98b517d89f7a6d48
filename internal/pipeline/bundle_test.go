package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ampship/ampship/internal/batch"
	"github.com/ampship/ampship/internal/domain"
)

func newTestBundler(t *testing.T, limits batch.Limits, opts ...BundlerOption) *Bundler {
	t.Helper()
	sizer, err := batch.NewSizer(map[string]any{"api_key": "test-key"})
	if err != nil {
		t.Fatalf("NewSizer: %v", err)
	}
	b, err := NewBundler(sizer, limits, zerolog.Nop(), opts...)
	if err != nil {
		t.Fatalf("NewBundler: %v", err)
	}
	return b
}

func writeConverted(t *testing.T, dir string, n int) {
	t.Helper()
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteString(fmt.Sprintf(`{"event_type":"e%02d","user_id":"u1"}`, i))
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(filepath.Join(dir, "converted_a.json"), []byte(sb.String()), 0o644); err != nil {
		t.Fatalf("write converted: %v", err)
	}
}

func TestBundler_Run(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	writeConverted(t, inDir, 5)

	bundler := newTestBundler(t, batch.Limits{MaxEvents: 2, MaxBytes: 1 << 20})

	manifest, err := bundler.Run(inDir, outDir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if manifest.TotalEvents != 5 {
		t.Errorf("TotalEvents = %d, want 5", manifest.TotalEvents)
	}
	if len(manifest.Batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(manifest.Batches))
	}

	loaded, err := LoadManifest(outDir)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if len(loaded.Batches) != len(manifest.Batches) {
		t.Errorf("manifest on disk has %d batches, want %d", len(loaded.Batches), len(manifest.Batches))
	}

	var all []string
	for i, entry := range manifest.Batches {
		if entry.Seq != i+1 {
			t.Errorf("entry %d Seq = %d", i, entry.Seq)
		}
		if entry.ID == "" {
			t.Errorf("entry %d has empty ID", i)
		}

		payload, err := os.ReadFile(filepath.Join(outDir, entry.Payload))
		if err != nil {
			t.Fatalf("read %s: %v", entry.Payload, err)
		}
		if len(payload) != entry.Bytes {
			t.Errorf("%s is %d bytes, manifest says %d", entry.Payload, len(payload), entry.Bytes)
		}

		var body struct {
			APIKey string         `json:"api_key"`
			Events []domain.Event `json:"events"`
		}
		if err := json.Unmarshal(payload, &body); err != nil {
			t.Fatalf("parse %s: %v", entry.Payload, err)
		}
		if body.APIKey != "test-key" {
			t.Errorf("%s api_key = %q", entry.Payload, body.APIKey)
		}
		if len(body.Events) != entry.Events {
			t.Errorf("%s carries %d events, manifest says %d", entry.Payload, len(body.Events), entry.Events)
		}
		for _, ev := range body.Events {
			all = append(all, ev["event_type"].(string))
		}
	}

	// Concatenated payloads reproduce the accepted events in order.
	for i, et := range all {
		if want := fmt.Sprintf("e%02d", i); et != want {
			t.Errorf("event %d is %q, want %q", i, et, want)
		}
	}
}

func TestBundler_OversizeFlagged(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()

	big := fmt.Sprintf(`{"event_type":"big","user_id":"u1","event_properties":{"blob":%q}}`,
		strings.Repeat("x", 500))
	lines := `{"event_type":"small","user_id":"u1"}` + "\n" + big + "\n"
	if err := os.WriteFile(filepath.Join(inDir, "converted_a.json"), []byte(lines), 0o644); err != nil {
		t.Fatalf("write converted: %v", err)
	}

	bundler := newTestBundler(t, batch.Limits{MaxEvents: 2000, MaxBytes: 200})

	manifest, err := bundler.Run(inDir, outDir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	oversize := 0
	for _, entry := range manifest.Batches {
		if entry.Oversize {
			oversize++
			if entry.Events != 1 {
				t.Errorf("oversize batch carries %d events, want 1", entry.Events)
			}
			if entry.Bytes <= 200 {
				t.Errorf("oversize batch bytes = %d, want > 200", entry.Bytes)
			}
		}
	}
	if oversize != 1 {
		t.Errorf("got %d oversize batches, want 1", oversize)
	}
}

func TestBundler_Scripts(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	writeConverted(t, inDir, 3)

	bundler := newTestBundler(t, batch.Limits{MaxEvents: 2, MaxBytes: 1 << 20},
		WithScripts(ScriptConfig{Endpoint: "https://api2.amplitude.com/batch", Delay: time.Second}))

	manifest, err := bundler.Run(inDir, outDir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, entry := range manifest.Batches {
		script := filepath.Join(outDir, fmt.Sprintf("batch_%04d.sh", entry.Seq))
		content, err := os.ReadFile(script)
		if err != nil {
			t.Fatalf("read %s: %v", script, err)
		}
		if !strings.Contains(string(content), "curl -X POST 'https://api2.amplitude.com/batch'") {
			t.Errorf("%s is missing the curl command", script)
		}
		info, err := os.Stat(script)
		if err != nil {
			t.Fatalf("stat %s: %v", script, err)
		}
		if info.Mode().Perm()&0o100 == 0 {
			t.Errorf("%s is not executable", script)
		}
	}

	runAll, err := os.ReadFile(filepath.Join(outDir, "run_all.sh"))
	if err != nil {
		t.Fatalf("read run_all.sh: %v", err)
	}
	if !strings.Contains(string(runAll), "Starting upload of 2 batches") {
		t.Errorf("run_all.sh has unexpected content:\n%s", runAll)
	}
}
