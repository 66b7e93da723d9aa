package ptypes

import (
	"fmt"
	"time"

	"github.com/drawdownguard/collar-engine/pkg/money"
)

// Hedge describes the instrument and sizing that backs one coverage.
type Hedge struct {
	Instrument string      `json:"instrument"`
	Strike     money.Value `json:"strike,omitempty"`
	OptionType OptionType  `json:"optionType,omitempty"`
	HedgeSize  money.Size  `json:"hedgeSize"`
	Venue      string      `json:"venue"`
	HedgeType  HedgeType   `json:"hedgeType"`
}

// Coverage is a protection contract instance, created by activate and
// uniquely keyed by coverageId = tierName:YYYY-MM-DD:positionId.
type Coverage struct {
	CoverageID   string      `json:"coverageId"`
	TierName     string      `json:"tierName"`
	ExpiryIso    string      `json:"expiryIso"`
	Positions    []Position  `json:"positions"`
	Hedge        Hedge       `json:"hedge"`
	FeeUsd       money.Value `json:"feeUsd"`
	PremiumUsd   money.Value `json:"premiumUsd"`
	SubsidyUsd   money.Value `json:"subsidyUsd"`
	NotionalUsdc money.Value `json:"notionalUsdc"`
	Reason       string      `json:"reason"`
}

// CoverageID builds the canonical key tierName:YYYY-MM-DD:positionId.
func CoverageID(tierName string, expiry time.Time, positionID string) string {
	return fmt.Sprintf("%s:%s:%s", tierName, expiry.UTC().Format("2006-01-02"), positionID)
}

// IsLive reports whether a coverage is still live: now < expiryIso and no
// coverage_expired event has been emitted for it (the latter is enforced by
// the ledger, which removes expired coverages from the live map — IsLive
// here only checks the time half of the authoritative liveness rule).
func (c Coverage) IsLive(now time.Time) bool {
	expiry, err := time.Parse(time.RFC3339, c.ExpiryIso)
	if err != nil {
		return false
	}
	return now.Before(expiry)
}
