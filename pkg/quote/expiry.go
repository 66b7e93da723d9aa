// Package quote implements the quote state machine: expiry/strike search,
// fee resolution, status resolution, and the stale-while-revalidate cache.
package quote

import (
	"context"
	"sort"

	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/pricing"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
	"github.com/drawdownguard/collar-engine/pkg/venue"
)

// ExpiryTag names one listed expiry and the calendar days until it.
type ExpiryTag struct {
	Tag  string
	Days int
}

// BuildDayLadder builds the candidate-days ring: ring [1..maxPreferredDays]
// centered on targetDays, then fallback [maxPreferredDays+1..maxFallbackDays].
func BuildDayLadder(targetDays, maxPreferredDays, maxFallbackDays int) []int {
	seen := map[int]bool{}
	var out []int

	add := func(d int) {
		if d < 1 || seen[d] {
			return
		}
		seen[d] = true
		out = append(out, d)
	}

	add(targetDays)
	for offset := 1; offset <= maxPreferredDays; offset++ {
		add(targetDays - offset)
		add(targetDays + offset)
	}
	for d := maxPreferredDays + 1; d <= maxFallbackDays; d++ {
		add(d)
	}

	return out
}

// daysBetweenMillis converts an expiry distance to whole calendar days,
// rounded to the nearest day and floored at 1 so an expiry listed N days
// out stays N days for the whole trading day and rollMultiplier never
// divides by zero.
func daysBetweenMillis(expiry, now int64) int {
	d := int((expiry - now + 43200000) / 86400000)
	if d < 1 {
		d = 1
	}
	return d
}

// ClosestExpiry maps a candidate day count to the closest listed expiry tag.
func ClosestExpiry(instruments []venue.Instrument, targetDays int, now int64) (ExpiryTag, bool) {
	type tagEntry struct {
		tag  string
		days int
		diff int64
	}

	seen := map[string]bool{}
	var entries []tagEntry

	targetMillis := int64(targetDays) * 86400000
	for _, inst := range instruments {
		if inst.Kind != "option" || seen[inst.ExpiryTag] {
			continue
		}
		seen[inst.ExpiryTag] = true
		daysOut := daysBetweenMillis(inst.ExpiryTime, now)
		diff := inst.ExpiryTime - now - targetMillis
		if diff < 0 {
			diff = -diff
		}
		entries = append(entries, tagEntry{tag: inst.ExpiryTag, days: daysOut, diff: diff})
	}

	if len(entries) == 0 {
		return ExpiryTag{}, false
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].diff < entries[j].diff })
	return ExpiryTag{Tag: entries[0].tag, Days: entries[0].days}, true
}

// LiquidityAnchorScore probes a handful of strikes around the target floor
// for one expiry tag and scores it 0.6*spreadScore + 0.4*sizeScore.
func LiquidityAnchorScore(ctx context.Context, reg *venue.Registry, instruments []string, side ptypes.OrderSide, spot money.Value) float64 {
	if len(instruments) == 0 {
		return 0
	}

	var spreadSum, sizeSum float64
	counted := 0

	for _, inst := range instruments {
		books := pricing.FetchBooks(ctx, reg, inst, true, spot)
		if len(books) == 0 {
			continue
		}
		result := pricing.SplitRouter(books, inst, side, money.One, len(books))
		if result.BestBid.IsZero() || result.BestAsk.IsZero() {
			continue
		}
		// spreadScore: tighter spread -> higher score (invert spread pct).
		spreadScore := 1.0
		if result.SpreadPct > 0 {
			spreadScore = 1.0 / (1.0 + result.SpreadPct*100)
		}
		sizeScore := result.TopOfBookSz.Float64()
		spreadSum += spreadScore
		sizeSum += sizeScore
		counted++
	}

	if counted == 0 {
		return 0
	}

	meanSpread := spreadSum / float64(counted)
	meanSize := sizeSum / float64(counted)
	return 0.6*meanSpread + 0.4*meanSize
}

// OrderExpiryTagsByAnchor reorders candidateTags so the best-scoring tag is
// first, keeping the rest in ring order. The anchor ordering is chosen
// before the strike search and is not revisited.
func OrderExpiryTagsByAnchor(tags []ExpiryTag, scores map[string]float64) []ExpiryTag {
	if len(tags) == 0 {
		return tags
	}

	bestIdx := 0
	bestScore := scores[tags[0].Tag]
	for i, t := range tags {
		if s := scores[t.Tag]; s > bestScore {
			bestScore = s
			bestIdx = i
		}
	}

	ordered := make([]ExpiryTag, 0, len(tags))
	ordered = append(ordered, tags[bestIdx])
	for i, t := range tags {
		if i != bestIdx {
			ordered = append(ordered, t)
		}
	}
	return ordered
}
