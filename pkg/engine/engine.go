// Package engine wires the quote cache, ledger, venue registry and account
// configs into the single "effectful singleton" design note from spec
// section 9: one Engine instance per process, holding every piece of
// mutable shared state behind request-scoped methods. Background loops and
// HTTP handlers are both thin callers of this package.
package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/drawdownguard/collar-engine/pkg/autorenew"
	"github.com/drawdownguard/collar-engine/pkg/config"
	"github.com/drawdownguard/collar-engine/pkg/hedging"
	"github.com/drawdownguard/collar-engine/pkg/ledger"
	"github.com/drawdownguard/collar-engine/pkg/marketdata"
	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
	"github.com/drawdownguard/collar-engine/pkg/quote"
	"github.com/drawdownguard/collar-engine/pkg/venue"
)

var log = logrus.WithField("component", "engine")

// Engine is the process-wide mutator: quote cache, ledger, venue registry,
// market-data caches and the three account-config loaders. HTTP handlers
// and background loops only ever reach shared state through its methods.
type Engine struct {
	Registry *venue.Registry
	ATMIV    *marketdata.ATMIVCache
	Ladder   *marketdata.LadderCache

	QuoteCache *quote.Cache
	qconf      *quote.Engine

	Ledger      *ledger.Ledger
	AutoRenew   *autorenew.Scheduler
	auditWriter *ledger.AuditWriter

	FundedLevels *config.Loader[config.FundedLevelsFile]
	RiskControls *config.Loader[config.RiskControls]
	LiveAccounts *config.Loader[config.LiveAccountsFile]

	logsDir string

	portfolioMu sync.Mutex
	portfolios  map[string]ptypes.PortfolioSnapshot

	spotMu   sync.Mutex
	lastSpot map[ptypes.Asset]money.Value
}

// New builds an Engine. logsDir is the directory that holds audit.log and
// audit-<epochms>.json snapshots.
func New(reg *venue.Registry, atmiv *marketdata.ATMIVCache, ladder *marketdata.LadderCache, fundedLevels *config.Loader[config.FundedLevelsFile], riskControls *config.Loader[config.RiskControls], liveAccounts *config.Loader[config.LiveAccountsFile], logsDir string) (*Engine, error) {
	writer, err := ledger.NewAuditWriter(filepath.Join(logsDir, "audit.log"))
	if err != nil {
		return nil, err
	}

	e := &Engine{
		Registry:     reg,
		ATMIV:        atmiv,
		Ladder:       ladder,
		Ledger:       ledger.New(writer, ptypes.LiquidityLedger{}),
		AutoRenew:    autorenew.NewScheduler(),
		auditWriter:  writer,
		FundedLevels: fundedLevels,
		RiskControls: riskControls,
		LiveAccounts: liveAccounts,
		logsDir:      logsDir,
		portfolios:   make(map[string]ptypes.PortfolioSnapshot),
		lastSpot:     make(map[ptypes.Asset]money.Value),
	}

	qe := &quote.Engine{Registry: reg, ATMIV: atmiv, Ladder: ladder}
	e.qconf = qe

	rc, err := riskControls.Get()
	if err != nil {
		return nil, err
	}
	qe.Config = buildQuoteConfig(rc, ladder, e.canApplySubsidy)

	e.QuoteCache = quote.NewCache(qe,
		time.Duration(4000)*time.Millisecond,
		time.Duration(20000)*time.Millisecond,
		time.Duration(120000)*time.Millisecond)

	return e, nil
}

// canApplySubsidy is the quote engine's subsidy-eligibility hook. Subsidy
// eligibility in this control plane is tier-driven (only funded tiers with a
// configured fixed price absorb pass-through overage) rather than iv/coverage
// driven, so it defers to the funded-levels config rather than a fixed rule.
func (e *Engine) canApplySubsidy(tier string, coverageID string, subsidy money.Value, iv float64) bool {
	levels, err := e.FundedLevels.Get()
	if err != nil {
		return false
	}
	for _, l := range levels.Levels {
		if l.Name == tier {
			return l.FixedPriceUsdc.Value.Sign() > 0
		}
	}
	return false
}

// SetCacheTTLs overrides the cache's default TTLs, used at startup once env
// (QUOTE_CACHE_{TTL,STALE,HARD}_MS) is parsed.
func (e *Engine) SetCacheTTLs(fresh, stale, hard time.Duration) {
	e.QuoteCache = quote.NewCache(e.qconf, fresh, stale, hard)
}

// Preview implements POST /put/preview.
func (e *Engine) Preview(ctx context.Context, in quote.Inputs) (ptypes.Quote, quote.Tier, bool) {
	return e.QuoteCache.Preview(ctx, in)
}

// Quote implements POST /put/quote.
func (e *Engine) Quote(ctx context.Context, in quote.Inputs) (ptypes.Quote, error) {
	return e.QuoteCache.Quote(ctx, in)
}

// IngestPortfolio records the latest equity snapshot for an account, per
// POST /portfolio/ingest.
func (e *Engine) IngestPortfolio(snap ptypes.PortfolioSnapshot) {
	snap.UpdatedAt = time.Now()
	e.portfolioMu.Lock()
	e.portfolios[snap.AccountID] = snap
	e.portfolioMu.Unlock()
	e.auditWriter.Write(ptypes.AuditEntry{
		Ts:    snap.UpdatedAt,
		Event: ptypes.EventPortfolioIngest,
		Payload: map[string]any{
			"accountId": snap.AccountID,
			"equity":    snap.Equity().USDCString(),
		},
	})
}

// Portfolio returns the last ingested snapshot for an account.
func (e *Engine) Portfolio(accountID string) (ptypes.PortfolioSnapshot, bool) {
	e.portfolioMu.Lock()
	p, ok := e.portfolios[accountID]
	e.portfolioMu.Unlock()
	return p, ok
}

// Activate implements coverage activation: the quote has already been
// computed (by Quote/Preview); Activate persists it as a Coverage and
// recognizes revenue, idempotently (I5).
func (e *Engine) Activate(cov ptypes.Coverage) ptypes.AuditEvent {
	return e.Ledger.ActivateCoverage(cov, time.Now())
}

// CoverageReport returns every coverage on record (HTTP layer filters by
// accountId via the coverageId's embedded positionId where needed).
func (e *Engine) CoverageReport() []ptypes.Coverage {
	return e.Ledger.LiveCoverages()
}

// ActiveCoverages returns only still-live coverages as of now.
func (e *Engine) ActiveCoverages(now time.Time) []ptypes.Coverage {
	all := e.Ledger.LiveCoverages()
	out := make([]ptypes.Coverage, 0, len(all))
	for _, c := range all {
		if c.IsLive(now) {
			out = append(out, c)
		}
	}
	return out
}

// TickResult is the outcome of one account's periodic re-evaluation.
type TickResult struct {
	HedgeDecision   hedging.Decision
	RenewDecision   autorenew.Decision
	RiskSummary     ptypes.RiskSummary
}

// Tick implements POST /loop/tick and the periodic LOOP_INTERVAL_MS loop for
// one account: re-evaluate the buffer band, and gate auto-renewal by the
// renew window. Net-exposure hedging is driven separately via
// PlanNetExposure since it operates across every account's coverages at once
// rather than per account.
func (e *Engine) Tick(ctx context.Context, account config.Account, now time.Time, maxMtmAge time.Duration) TickResult {
	snap, ok := e.Portfolio(account.AccountID)
	var summary ptypes.RiskSummary
	if ok {
		mtmAge := now.Sub(snap.UpdatedAt)
		summary = ptypes.ComputeRiskSummary(snap.Equity(), account.InitialBalanceUsdc.Value, account.DrawdownLimitUsdc.Value, mtmAge, maxMtmAge)
	}

	decision := hedging.RollingDecision(summary.BufferPct, account.BufferTargetPct.Value.Float64(), account.HysteresisPct.Value.Float64())
	e.Ledger.HedgeAction(account.AccountID, string(decision.Action), decision.Reason)

	expiry, err := time.Parse(time.RFC3339, account.ExpiryIso)
	renewDecision := autorenew.DecisionSkipped
	if err == nil {
		window := time.Duration(account.RenewWindowMinutes) * time.Minute
		renewDecision = e.AutoRenew.Evaluate(account.AccountID, now, expiry, window, account.ExpiryIso)
	}

	e.auditWriter.Write(ptypes.AuditEntry{
		Ts:    now,
		Event: ptypes.EventLoopTick,
		Payload: map[string]any{
			"accountId":     account.AccountID,
			"hedgeAction":   string(decision.Action),
			"renewDecision": string(renewDecision),
		},
	})

	return TickResult{HedgeDecision: decision, RenewDecision: renewDecision, RiskSummary: summary}
}

// PlaceOrder implements POST /deribit/order: a side-exposing venue
// placement. intent=="close" enforces the drawdown-buffer close guard (I9):
// the order is rejected while drawdownBufferUsdc > 0.
func (e *Engine) PlaceOrder(ctx context.Context, venueName string, req venue.OrderRequest, intent string, drawdownBufferUsdc money.Value) (venue.OrderResult, error) {
	if intent == "close" {
		if err := e.Ledger.CloseGuard("", drawdownBufferUsdc); err != nil {
			return venue.OrderResult{}, err
		}
	}
	return e.Registry.PlaceOrder(ctx, venueName, req)
}

// AuditExport implements POST /audit/export: writes a full-state snapshot to
// logs/audit-<epochms>.json.
func (e *Engine) AuditExport(now time.Time) (string, error) {
	snap := e.Ledger.Export(now)
	return ledger.ExportSnapshot(e.logsDir, snap)
}

// Audit appends an entry to the shared audit log. Used by the HTTP layer for
// request-scoped events (put_quote, put_quote_failed, put_renew, ...) that
// don't belong to a single domain package.
func (e *Engine) Audit(event ptypes.AuditEvent, payload map[string]any) {
	e.auditWriter.Write(ptypes.AuditEntry{Ts: time.Now(), Event: event, Payload: payload})
}

// AuditLogPath returns the path of the append-only audit log, for the
// /audit/logs and /audit/entries handlers.
func (e *Engine) AuditLogPath() string {
	return filepath.Join(e.logsDir, "audit.log")
}

// Reset implements POST /admin/reset: deletes persisted audit state, clears
// every in-memory map, and zeros the liquidity ledger.
func (e *Engine) Reset() error {
	if err := e.auditWriter.Close(); err != nil {
		log.WithError(err).Warn("reset: failed to close audit writer")
	}

	if err := os.RemoveAll(e.logsDir); err != nil {
		return err
	}
	if err := os.MkdirAll(e.logsDir, 0o755); err != nil {
		return err
	}

	writer, err := ledger.NewAuditWriter(filepath.Join(e.logsDir, "audit.log"))
	if err != nil {
		return err
	}

	e.auditWriter = writer
	e.Ledger = ledger.New(writer, ptypes.LiquidityLedger{})
	e.AutoRenew = autorenew.NewScheduler()
	e.portfolioMu.Lock()
	e.portfolios = make(map[string]ptypes.PortfolioSnapshot)
	e.portfolioMu.Unlock()
	e.spotMu.Lock()
	e.lastSpot = make(map[ptypes.Asset]money.Value)
	e.spotMu.Unlock()

	e.auditWriter.Write(ptypes.AuditEntry{Ts: time.Now(), Event: ptypes.EventAuditSeed, Payload: map[string]any{"reset": true}})

	return nil
}
