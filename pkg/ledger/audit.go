// Package ledger implements the audit log and liquidity/revenue/subsidy
// accounting from spec section 4.9: an append-only newline-delimited audit
// log, the active-coverage and hedge-lot maps, and the liquidity ledger
// invariant revenue - hedgeSpend - subsidy == profit.
package ledger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
)

var log = logrus.WithField("component", "ledger")

// AuditWriter appends newline-delimited AuditEntry records to a single
// file, sequential by arrival, the way bbgo's ProfitFixer journals state to
// a durable append-only artifact. Audit writes never fail a request (spec
// section 7's propagation policy): Write logs and swallows any I/O error.
type AuditWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewAuditWriter opens (creating if needed) the append-only log at path.
func NewAuditWriter(path string) (*AuditWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	return &AuditWriter{file: f, writer: bufio.NewWriter(f), path: path}, nil
}

// Write appends one entry as a single JSON line. Errors are logged, not
// returned, per spec section 7 ("audit writes never fail a request").
func (w *AuditWriter) Write(entry ptypes.AuditEntry) {
	b, err := json.Marshal(entry)
	if err != nil {
		log.WithError(err).WithField("event", entry.Event).Warn("failed to marshal audit entry")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.writer.Write(b); err != nil {
		log.WithError(err).Warn("failed to append audit entry")
		return
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		log.WithError(err).Warn("failed to append audit entry newline")
		return
	}
	if err := w.writer.Flush(); err != nil {
		log.WithError(err).Warn("failed to flush audit log")
	}
}

// Close flushes and closes the underlying file.
func (w *AuditWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}

// Snapshot is the full-state export written by AuditExport, distinct from
// the append-only log: one JSON document at logs/audit-<epochms>.json.
type Snapshot struct {
	GeneratedAt       time.Time              `json:"generatedAt"`
	Coverages         []ptypes.Coverage      `json:"coverages"`
	HedgeLots         []ptypes.HedgeLot      `json:"hedgeLots"`
	Liquidity         ptypes.LiquidityLedger `json:"liquidity"`
	UnrealizedMtmUsdc money.Value            `json:"unrealizedMtmUsdc"`
}

// ExportSnapshot writes snap to dir/audit-<epochms>.json and returns the
// path written.
func ExportSnapshot(dir string, snap Snapshot) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	name := filepath.Join(dir, "audit-"+strconv.FormatInt(snap.GeneratedAt.UnixMilli(), 10)+".json")

	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(name, b, 0o644); err != nil {
		return "", err
	}

	return name, nil
}
