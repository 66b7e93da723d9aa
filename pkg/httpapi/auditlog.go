package httpapi

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/drawdownguard/collar-engine/pkg/ptypes"
)

// readLastEntries reads the append-only newline-delimited audit log at path
// and returns (up to) the last limit entries in arrival order, for the
// GET /audit/logs and /audit/entries handlers.
func readLastEntries(path string, limit int) ([]ptypes.AuditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ring []ptypes.AuditEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry ptypes.AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		ring = append(ring, entry)
		if len(ring) > limit {
			ring = ring[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ring, nil
}
