package venue

import "context"

// RejectedError tags a venue order rejection with a specific Reason, as
// opposed to a transport/infra failure (auth, 5xx, malformed response).
// Spec section 4.8 step 5 only permits the net-exposure planner to advance
// to its next candidate for two paper-reject reasons: no_top_of_book and
// insufficient_liquidity. Any other PlaceOrder error must stop the search.
type RejectedError struct {
	Venue  string
	Reason string
}

func (e *RejectedError) Error() string {
	return e.Venue + ": paper_rejected: " + e.Reason
}

// BatchOrderResult mirrors a per-leg success/error pairing the way a batch
// order ack does: length N, each item either a result or a nil-able error,
// adapted from the teacher's FuturesBatchOrdersResponse shape (an N-long
// parallel Orders/Errors pair) to the net-exposure planner's need to place
// several hedge legs and keep going past individual rejections (spec
// section 4.8 step 5: "on paper_rejected/{...} try the next; on any other
// failure stop").
// Results and Errors are parallel slices covering only the requests actually
// attempted: when PlaceBatch stops early on a non-skippable error, the
// trailing requests are never tried and have no entry here at all, so a
// caller can't mistake "never attempted" for "succeeded with no error".
type BatchOrderResult struct {
	Results []OrderResult
	Errors  []error
}

// PlaceBatch places each request against the given connector in order,
// stopping at the first error that skippable rejects. skippable lets the
// caller classify which errors are skippable vs. fatal without this package
// knowing about the planner's error taxonomy.
func PlaceBatch(ctx context.Context, c Connector, reqs []OrderRequest, skippable func(error) bool) BatchOrderResult {
	out := BatchOrderResult{
		Results: make([]OrderResult, 0, len(reqs)),
		Errors:  make([]error, 0, len(reqs)),
	}

	for _, req := range reqs {
		res, err := c.PlaceOrder(ctx, req)
		out.Results = append(out.Results, res)
		out.Errors = append(out.Errors, err)

		if err != nil && !skippable(err) {
			break
		}
	}

	return out
}
