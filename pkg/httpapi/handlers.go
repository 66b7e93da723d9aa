package httpapi

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/drawdownguard/collar-engine/pkg/autorenew"
	"github.com/drawdownguard/collar-engine/pkg/errs"
	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
	"github.com/drawdownguard/collar-engine/pkg/quote"
	"github.com/drawdownguard/collar-engine/pkg/venue"
)

// positionDTO is the wire shape of ptypes.Position (spec section 3).
type positionDTO struct {
	ID         string `json:"id"`
	Asset      string `json:"asset"`
	Side       string `json:"side"`
	MarginUsd  string `json:"marginUsd"`
	Leverage   string `json:"leverage"`
	EntryPrice string `json:"entryPrice"`
}

func (p positionDTO) toPosition() (ptypes.Position, error) {
	margin, err1 := money.NewFromString(p.MarginUsd)
	leverage, err2 := money.NewFromString(p.Leverage)
	entry, err3 := money.NewFromString(p.EntryPrice)
	if err1 != nil || err2 != nil || err3 != nil {
		return ptypes.Position{}, errs.ErrInvalidPayload
	}
	return ptypes.Position{
		ID:         p.ID,
		Asset:      ptypes.Asset(p.Asset),
		Side:       ptypes.Side(p.Side),
		MarginUsd:  margin,
		Leverage:   leverage,
		EntryPrice: entry,
	}, nil
}

// putRequest is the shared body shape of /put/preview and /put/quote: a
// position plus the tier and optional overrides the quote state machine
// needs (spec section 4.4 Inputs, minus the fields the server derives —
// spot, drawdownFloorPct, fixedPriceUsdc — which come from the tier and
// market data rather than the caller).
type putRequest struct {
	TierName                string      `json:"tierName"`
	Position                positionDTO `json:"position"`
	ContractSize            string      `json:"contractSize,omitempty"`
	TargetDays              int         `json:"targetDays,omitempty"`
	AllowPremiumPassThrough bool        `json:"allowPremiumPassThrough"`
	CoverageID              string      `json:"coverageId"`
	PinnedExpiryTag         string      `json:"pinnedExpiryTag,omitempty"`
}

// buildQuoteInputs resolves a putRequest into quote.Inputs by looking up
// the tier from funded_levels.json, the spot price from the venue registry,
// and the ladder-derived IV snapshot, per spec section 4.4.
func (h *handlers) buildQuoteInputs(ctx context.Context, req putRequest) (quote.Inputs, error) {
	pos, err := req.Position.toPosition()
	if err != nil {
		return quote.Inputs{}, err
	}

	levels, err := h.engine.FundedLevels.Get()
	if err != nil {
		return quote.Inputs{}, errs.Wrap(errs.InvalidPayload, "funded_levels unavailable", err)
	}
	var tier ptypes.Tier
	found := false
	for _, l := range levels.Levels {
		if l.Name == req.TierName {
			tier = l.ToTier()
			found = true
			break
		}
	}
	if !found {
		return quote.Inputs{}, errs.WithReason(errs.InvalidPayload, "unknown tier "+req.TierName)
	}
	if !tier.Valid() {
		return quote.Inputs{}, errs.WithReason(errs.InvalidPayload, "tier misconfigured")
	}

	rc, err := h.engine.RiskControls.Get()
	if err != nil {
		return quote.Inputs{}, errs.Wrap(errs.InvalidPayload, "risk_controls unavailable", err)
	}
	if err := pos.Validate(rc.MaxLeverage.Value); err != nil {
		return quote.Inputs{}, err
	}

	spot, err := h.engine.SpotPrice(ctx, pos.Asset)
	if err != nil {
		return quote.Inputs{}, errs.Wrap(errs.RequestFailed, "spot price unavailable", err)
	}

	contractSize := money.One
	if req.ContractSize != "" {
		if v, err := money.NewFromString(req.ContractSize); err == nil {
			contractSize = v
		}
	}

	targetDays := req.TargetDays
	if targetDays <= 0 {
		targetDays = rc.DefaultTargetDays
	}

	var ivSnap *ptypes.IVSnapshot
	if snap, ok := h.engine.Ladder.Get(); ok {
		s := ptypes.NewIVSnapshot(snap.HedgeIv)
		ivSnap = &s
	}

	return quote.Inputs{
		Tier:                    tier,
		Asset:                   pos.Asset,
		Spot:                    spot,
		DrawdownFloorPct:        tier.DrawdownLimitPct.Float64(),
		FixedPriceUsdc:          tier.FixedPriceUsdc,
		PositionSize:            pos.Size(),
		ContractSize:            contractSize,
		Leverage:                pos.Leverage,
		Side:                    pos.Side,
		IvSnapshot:              ivSnap,
		TargetDays:              targetDays,
		AllowPremiumPassThrough: req.AllowPremiumPassThrough,
		CoverageID:              req.CoverageID,
		PinnedExpiryTag:         req.PinnedExpiryTag,
	}, nil
}

// putPreview implements POST /put/preview: the three-tier stale-while-
// revalidate read from the quote cache, with a client-side abort honored
// via ABORT_MS (spec section 5's "cancellation" rule).
func (h *handlers) putPreview(c *gin.Context) {
	var req putRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 6*time.Second)
	defer cancel()

	in, err := h.buildQuoteInputs(ctx, req)
	if err != nil {
		respondErr(c, err)
		return
	}

	q, tier, ok := h.engine.Preview(ctx, in)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "pending"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cacheTier": string(tier), "quote": q})
}

// putQuote implements POST /put/quote: serve fresh immediately, else
// compute synchronously (single-flight shared across concurrent callers on
// the same cache key, I7).
func (h *handlers) putQuote(c *gin.Context) {
	var req putRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 6*time.Second)
	defer cancel()

	in, err := h.buildQuoteInputs(ctx, req)
	if err != nil {
		respondErr(c, err)
		return
	}

	q, err := h.engine.Quote(ctx, in)
	if err != nil {
		h.engine.Audit(ptypes.EventPutQuoteFailed, map[string]any{"coverageId": in.CoverageID, "reason": err.Error()})
		respondErr(c, err)
		return
	}

	h.engine.Audit(ptypes.EventPutQuote, map[string]any{
		"coverageId": in.CoverageID,
		"status":     string(q.Status),
		"feeUsdc":    q.FeeUsdc.USDCString(),
	})

	switch q.Status {
	case ptypes.StatusPerpFallback:
		c.JSON(http.StatusOK, gin.H{"status": string(q.Status), "reason": "No executable liquidity available.", "quote": q})
	case ptypes.StatusPremiumFloor:
		c.JSON(http.StatusOK, gin.H{"status": string(q.Status), "reason": "Premium exceeds floor for this tier.", "quote": q})
	default:
		c.JSON(http.StatusOK, gin.H{"status": string(q.Status), "quote": q})
	}
}

// activateRequest binds a previously computed quote to a coverage, per the
// data-flow note that activate persists a quote the state machine already
// produced (spec section 2).
type activateRequest struct {
	CoverageID string      `json:"coverageId"`
	TierName   string      `json:"tierName"`
	ExpiryIso  string      `json:"expiryIso"`
	Positions  []positionDTO `json:"positions"`
	Instrument string      `json:"instrument"`
	Strike     string      `json:"strike"`
	OptionType string      `json:"optionType"`
	HedgeSize  string      `json:"hedgeSize"`
	Venue      string      `json:"venue"`
	HedgeType  string      `json:"hedgeType"`
	FeeUsd     string      `json:"feeUsd"`
	PremiumUsd string      `json:"premiumUsd"`
	SubsidyUsd string      `json:"subsidyUsd"`
	NotionalUsdc string    `json:"notionalUsdc"`
	Reason     string      `json:"reason"`
}

// auditExport implements POST /audit/export: activates a coverage
// idempotently (I5) and writes a full-state snapshot to
// logs/audit-<epochms>.json.
func (h *handlers) auditExport(c *gin.Context) {
	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	hedgeSize, _ := money.NewFromString(req.HedgeSize)
	strike, _ := money.NewFromString(req.Strike)
	fee, _ := money.NewFromString(req.FeeUsd)
	premium, _ := money.NewFromString(req.PremiumUsd)
	subsidy, _ := money.NewFromString(req.SubsidyUsd)
	notional, _ := money.NewFromString(req.NotionalUsdc)

	positions := make([]ptypes.Position, 0, len(req.Positions))
	for _, p := range req.Positions {
		pos, err := p.toPosition()
		if err != nil {
			badRequest(c, "invalid position")
			return
		}
		positions = append(positions, pos)
	}

	cov := ptypes.Coverage{
		CoverageID: req.CoverageID,
		TierName:   req.TierName,
		ExpiryIso:  req.ExpiryIso,
		Positions:  positions,
		Hedge: ptypes.Hedge{
			Instrument: req.Instrument,
			Strike:     strike,
			OptionType: ptypes.OptionType(req.OptionType),
			HedgeSize:  money.NewSize(hedgeSize),
			Venue:      req.Venue,
			HedgeType:  ptypes.HedgeType(req.HedgeType),
		},
		FeeUsd:       fee,
		PremiumUsd:   premium,
		SubsidyUsd:   subsidy,
		NotionalUsdc: notional,
		Reason:       req.Reason,
	}

	event := h.engine.Activate(cov)

	path, err := h.engine.AuditExport(time.Now())
	if err != nil {
		respondErr(c, errs.Wrap(errs.RequestFailed, "export failed", err))
		return
	}

	status := "ok"
	if event == ptypes.EventCoverageDuplicate {
		status = "duplicate"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "coverageId": cov.CoverageID, "exportPath": path})
}

// putAutoRenew implements POST /put/auto-renew: evaluate one coverage
// against the renew window and, if due, renew it with a freshly computed
// quote for the same tier/position inputs (idempotent by coverage key, I8).
func (h *handlers) putAutoRenew(c *gin.Context) {
	var body struct {
		CoverageID string `json:"coverageId"`
		putRequest
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	coverages := h.engine.CoverageReport()
	var current ptypes.Coverage
	found := false
	for _, cov := range coverages {
		if cov.CoverageID == body.CoverageID {
			current = cov
			found = true
			break
		}
	}
	if !found {
		badRequest(c, "unknown coverageId")
		return
	}

	expiry, err := time.Parse(time.RFC3339, current.ExpiryIso)
	if err != nil {
		badRequest(c, "coverage has no valid expiryIso")
		return
	}

	levels, err := h.engine.FundedLevels.Get()
	if err != nil {
		respondErr(c, errs.Wrap(errs.InvalidPayload, "funded_levels unavailable", err))
		return
	}
	window := 15 * time.Minute
	for _, l := range levels.Levels {
		if l.Name == current.TierName && l.RenewWindowMinutes > 0 {
			window = time.Duration(l.RenewWindowMinutes) * time.Minute
		}
	}

	now := time.Now()
	decision := h.engine.AutoRenew.Evaluate(current.CoverageID, now, expiry, window, current.ExpiryIso)
	if decision != autorenew.DecisionRenew {
		h.engine.Audit(ptypes.EventPutRenewSkipped, map[string]any{"coverageId": current.CoverageID, "decision": string(decision)})
		c.JSON(http.StatusOK, gin.H{"status": string(decision), "coverageId": current.CoverageID})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 6*time.Second)
	defer cancel()

	body.putRequest.CoverageID = current.CoverageID
	body.putRequest.TierName = current.TierName
	in, err := h.buildQuoteInputs(ctx, body.putRequest)
	if err != nil {
		h.engine.Audit(ptypes.EventPutRenewFailed, map[string]any{"coverageId": current.CoverageID, "reason": err.Error()})
		respondErr(c, err)
		return
	}

	q, err := h.engine.Quote(ctx, in)
	if err != nil || q.Status == ptypes.StatusNoQuote {
		h.engine.Audit(ptypes.EventPutRenewFailed, map[string]any{"coverageId": current.CoverageID})
		respondErr(c, errs.New(errs.NoQuote))
		return
	}

	newExpiry := expiry.Add(time.Duration(in.TargetDays) * 24 * time.Hour).Format(time.RFC3339)
	newHedge := ptypes.Hedge{
		Instrument: q.Instrument,
		Strike:     q.Strike,
		OptionType: q.OptionType,
		HedgeSize:  q.HedgeSize,
		Venue:      firstVenue(q.ExecutionPlan),
		HedgeType:  ptypes.HedgeOption,
	}
	h.engine.Ledger.RenewCoverage(current.CoverageID, newExpiry, newHedge)
	h.engine.AutoRenew.MarkRenewed(current.CoverageID, current.ExpiryIso)

	h.engine.Audit(ptypes.EventPutRenew, map[string]any{"coverageId": current.CoverageID, "expiryIso": newExpiry})
	c.JSON(http.StatusOK, gin.H{"status": "renewed", "coverageId": current.CoverageID, "expiryIso": newExpiry, "quote": q})
}

func firstVenue(plan []ptypes.ExecutionLeg) string {
	if len(plan) == 0 {
		return ""
	}
	return plan[0].Venue
}

// putAutoRenewSchedule implements POST /put/auto-renew/schedule: evaluates
// every tracked coverage against the renew window in one pass, the way the
// periodic loop would, without requiring one HTTP call per coverage.
func (h *handlers) putAutoRenewSchedule(c *gin.Context) {
	now := time.Now()
	results := make([]gin.H, 0)
	for _, cov := range h.engine.CoverageReport() {
		expiry, err := time.Parse(time.RFC3339, cov.ExpiryIso)
		if err != nil {
			continue
		}
		decision := h.engine.AutoRenew.Evaluate(cov.CoverageID, now, expiry, 15*time.Minute, cov.ExpiryIso)
		results = append(results, gin.H{"coverageId": cov.CoverageID, "decision": string(decision)})
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// riskSummary implements GET /risk/summary.
func (h *handlers) riskSummary(c *gin.Context) {
	cash, err1 := money.NewFromString(c.Query("cashUsdc"))
	pnl, err2 := money.NewFromString(c.Query("positionPnlUsdc"))
	hedgeMtm, err3 := money.NewFromString(c.Query("hedgeMtmUsdc"))
	drawdownLimit, err4 := money.NewFromString(c.Query("drawdownLimitUsdc"))
	initialBalance, err5 := money.NewFromString(c.Query("initialBalanceUsdc"))
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		respondErr(c, errs.New(errs.MissingDrawdownInputs))
		return
	}

	maxMtmAge := time.Duration(0)
	if ms := c.Query("maxMtmAgeMs"); ms != "" {
		if v, err := money.NewFromString(ms); err == nil {
			maxMtmAge = time.Duration(v.Float64()) * time.Millisecond
		}
	}

	equity := cash.Add(pnl).Add(hedgeMtm)
	summary := ptypes.ComputeRiskSummary(equity, initialBalance, drawdownLimit, 0, maxMtmAge)
	c.JSON(http.StatusOK, summary)
}

// portfolioIngest implements POST /portfolio/ingest.
func (h *handlers) portfolioIngest(c *gin.Context) {
	var body struct {
		AccountID       string        `json:"accountId"`
		CashUsdc        string        `json:"cashUsdc"`
		PositionPnlUsdc string        `json:"positionPnlUsdc"`
		HedgeMtmUsdc    string        `json:"hedgeMtmUsdc"`
		Positions       []positionDTO `json:"positions"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	cash, err1 := money.NewFromString(body.CashUsdc)
	pnl, err2 := money.NewFromString(body.PositionPnlUsdc)
	hedgeMtm, err3 := money.NewFromString(body.HedgeMtmUsdc)
	if err1 != nil || err2 != nil || err3 != nil {
		badRequest(c, "non-finite numeric field")
		return
	}

	positions := make([]ptypes.Position, 0, len(body.Positions))
	for _, p := range body.Positions {
		pos, err := p.toPosition()
		if err != nil {
			badRequest(c, "invalid position")
			return
		}
		positions = append(positions, pos)
	}

	h.engine.IngestPortfolio(ptypes.PortfolioSnapshot{
		AccountID:       body.AccountID,
		CashUsdc:        cash,
		PositionPnlUsdc: pnl,
		HedgeMtmUsdc:    hedgeMtm,
		Positions:       positions,
	})
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// coverageReport implements GET /coverage/report?accountId.
func (h *handlers) coverageReport(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"coverages": filterByAccount(h.engine.CoverageReport(), c.Query("accountId"))})
}

// coverageActive implements GET /coverage/active?accountId.
func (h *handlers) coverageActive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"coverages": filterByAccount(h.engine.ActiveCoverages(time.Now()), c.Query("accountId"))})
}

// filterByAccount narrows a coverage list to those carrying at least one
// position ID prefixed "<accountId>:", the operator-side convention for
// namespacing position IDs by account (see DESIGN.md). Empty accountId
// returns every coverage unfiltered.
func filterByAccount(covs []ptypes.Coverage, accountID string) []ptypes.Coverage {
	if accountID == "" {
		return covs
	}
	prefix := accountID + ":"
	out := make([]ptypes.Coverage, 0, len(covs))
	for _, c := range covs {
		for _, p := range c.Positions {
			if len(p.ID) >= len(prefix) && p.ID[:len(prefix)] == prefix {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// loopTick implements POST /loop/tick: re-evaluates every configured
// account's buffer/renew state, then runs the platform-level net-exposure
// planner once across every live coverage (spec section 2 data flow).
func (h *handlers) loopTick(c *gin.Context) {
	accounts, err := h.engine.LiveAccounts.Get()
	if err != nil {
		respondErr(c, errs.Wrap(errs.RequestFailed, "live_accounts unavailable", err))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 6*time.Second)
	defer cancel()

	now := time.Now()
	results := make([]gin.H, 0, len(accounts.Accounts))
	for _, account := range accounts.Accounts {
		r := h.engine.Tick(ctx, account, now, time.Minute)
		results = append(results, gin.H{
			"accountId":     account.AccountID,
			"hedgeAction":   string(r.HedgeDecision.Action),
			"renewDecision": string(r.RenewDecision),
			"bufferPct":     r.RiskSummary.BufferPct,
		})
	}

	plans := h.engine.PlanNetExposure(ctx)
	h.engine.RecordMetrics()

	c.JSON(http.StatusOK, gin.H{"accounts": results, "netExposurePlans": plans})
}

// deribitOrderRequest is the body of POST /deribit/order: a side-exposing
// venue placement with the close-guard intent flag from spec section 6.2.
type deribitOrderRequest struct {
	Venue              string `json:"venue"`
	Instrument         string `json:"instrument"`
	Side               string `json:"side"`
	Amount             string `json:"amount"`
	Type               string `json:"type"`
	Price              string `json:"price,omitempty"`
	Intent             string `json:"intent,omitempty"`
	DrawdownBufferUsdc string `json:"drawdownBufferUsdc,omitempty"`
}

func (h *handlers) deribitOrder(c *gin.Context) {
	var req deribitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	amount, err := money.NewFromString(req.Amount)
	if err != nil {
		badRequest(c, "invalid amount")
		return
	}
	var price money.Value
	if req.Price != "" {
		if price, err = money.NewFromString(req.Price); err != nil {
			badRequest(c, "invalid price")
			return
		}
	}
	buffer := money.Zero
	if req.DrawdownBufferUsdc != "" {
		if buffer, err = money.NewFromString(req.DrawdownBufferUsdc); err != nil {
			badRequest(c, "invalid drawdownBufferUsdc")
			return
		}
	}

	orderReq := venue.OrderRequest{
		Instrument: req.Instrument,
		Side:       ptypes.OrderSide(req.Side),
		Amount:     amount,
		Type:       ptypes.OrderType(req.Type),
		Price:      price,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 6*time.Second)
	defer cancel()

	result, err := h.engine.PlaceOrder(ctx, req.Venue, orderReq, req.Intent, buffer)
	if err != nil {
		if be, ok := err.(*errs.Error); ok && be.Kind == errs.DrawdownBufferPositive {
			c.JSON(http.StatusConflict, gin.H{"status": "blocked", "reason": string(errs.DrawdownBufferPositive)})
			return
		}
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "orderId": result.OrderID, "filledSize": result.FilledSize.SizeString(), "avgPrice": result.AvgPrice.USDCString()})
}

// adminReset implements POST /admin/reset.
func (h *handlers) adminReset(c *gin.Context) {
	if err := h.engine.Reset(); err != nil {
		respondErr(c, errs.Wrap(errs.RequestFailed, "reset failed", err))
		return
	}
	h.engine.RecordMetrics()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// auditSummary implements GET /audit/summary?mode=exec|internal: exec mode
// carries only the liquidity headline figures a user-facing dashboard shows;
// internal mode adds the full hedge-lot and coverage detail for operators.
func (h *handlers) auditSummary(c *gin.Context) {
	mode := c.DefaultQuery("mode", "exec")
	liquidity := h.engine.Ledger.Liquidity()

	if mode == "internal" {
		c.JSON(http.StatusOK, gin.H{
			"mode":              mode,
			"liquidity":         liquidity,
			"coverages":         h.engine.CoverageReport(),
			"hedgeLots":         h.engine.Ledger.HedgeLots(),
			"unrealizedMtmUsdc": h.engine.Ledger.UnrealizedMtmUsdc(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"mode": mode,
		"liquidity": gin.H{
			"liquidityBalanceUsdc": liquidity.LiquidityBalanceUsdc,
			"revenueUsdc":          liquidity.RevenueUsdc,
			"profitUsdc":           liquidity.ProfitUsdc,
		},
	})
}

// auditLogs implements GET /audit/logs?limit (and its legacy alias
// /audit/entries, spec section 9 open question (a)): reads the raw
// newline-delimited audit log and returns the last `limit` entries.
func (h *handlers) auditLogs(c *gin.Context) {
	limit := 100
	if l := c.Query("limit"); l != "" {
		if v, err := money.NewFromString(l); err == nil && v.Sign() > 0 {
			limit = int(v.Float64())
		}
	}

	entries, err := readLastEntries(h.engine.AuditLogPath(), limit)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusOK, []ptypes.AuditEntry{})
			return
		}
		respondErr(c, errs.Wrap(errs.RequestFailed, "audit log unavailable", err))
		return
	}
	c.JSON(http.StatusOK, entries)
}
