package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ScriptConfig controls curl script generation alongside payload files.
type ScriptConfig struct {
	// Endpoint is the full upload URL the scripts POST to.
	Endpoint string

	// Delay is the pause run_all.sh inserts between batches.
	Delay time.Duration
}

// writeBatchScript emits batch_NNNN.sh with the payload inlined in a curl
// command. Single quotes in the JSON are escaped for the shell.
func writeBatchScript(dir string, seq int, endpoint string, payload []byte, events int) error {
	escaped := strings.ReplaceAll(string(payload), "'", `'\''`)

	content := fmt.Sprintf(`#!/bin/bash
# Batch %d: %d events
# Payload size: %d bytes

curl -X POST '%s' \
  -H 'Content-Type: application/json' \
  -d '%s'

echo ""
echo "Batch %d complete"
`, seq, events, len(payload), endpoint, escaped, seq)

	name := fmt.Sprintf("batch_%04d.sh", seq)
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// writeRunAllScript emits run_all.sh, which runs every batch script in
// sequence with a delay between batches.
func writeRunAllScript(dir string, batches int, delay time.Duration) error {
	seconds := int(delay / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	content := fmt.Sprintf(`#!/bin/bash
# Run all %[1]d batch scripts with %[2]d second delay between each
# This helps respect rate limits

set -e

SCRIPT_DIR="$(cd "$(dirname "$0")" && pwd)"

echo "Starting upload of %[1]d batches..."
echo ""

for i in $(seq -f "%%04g" 1 %[1]d); do
    script="$SCRIPT_DIR/batch_$i.sh"
    if [ -f "$script" ]; then
        echo "Running batch $i of %[1]d..."
        bash "$script"
        echo ""

        if [ "$i" -lt "%04[3]d" ]; then
            echo "Waiting %[2]d second(s) before next batch..."
            sleep %[2]d
        fi
    fi
done

echo ""
echo "All batches complete!"
`, batches, seconds, batches)

	if err := os.WriteFile(filepath.Join(dir, "run_all.sh"), []byte(content), 0o755); err != nil {
		return fmt.Errorf("write run_all.sh: %w", err)
	}
	return nil
}
