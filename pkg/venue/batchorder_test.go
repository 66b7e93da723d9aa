package venue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
)

type scriptedConnector struct {
	errs  []error
	calls int
}

func (s *scriptedConnector) ListInstruments(ctx context.Context, asset ptypes.Asset) ([]Instrument, error) {
	return nil, nil
}
func (s *scriptedConnector) GetTicker(ctx context.Context, instrument string) (Ticker, error) {
	return Ticker{}, nil
}
func (s *scriptedConnector) GetOrderBook(ctx context.Context, instrument string) (OrderBook, error) {
	return OrderBook{}, nil
}
func (s *scriptedConnector) GetIndexPrice(ctx context.Context, asset ptypes.Asset) (money.Value, error) {
	return money.Zero, nil
}
func (s *scriptedConnector) GetPositions(ctx context.Context, asset ptypes.Asset) ([]ptypes.Position, error) {
	return nil, nil
}
func (s *scriptedConnector) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	idx := s.calls
	s.calls++
	err := s.errs[idx]
	if err != nil {
		return OrderResult{}, err
	}
	return OrderResult{OrderID: "ok", Instrument: req.Instrument, FilledSize: req.Amount}, nil
}

func TestPlaceBatchStopsAndLeavesTrailingRequestsUnattempted(t *testing.T) {
	conn := &scriptedConnector{errs: []error{nil, errors.New("venue down"), nil}}
	reqs := []OrderRequest{
		{Instrument: "a"}, {Instrument: "b"}, {Instrument: "c"},
	}

	result := PlaceBatch(context.Background(), conn, reqs, func(error) bool { return false })

	require.Len(t, result.Errors, 2, "the third request must never be attempted after a non-skippable failure")
	require.Len(t, result.Results, 2)
	assert.NoError(t, result.Errors[0])
	assert.Error(t, result.Errors[1])
}

func TestPlaceBatchSkipsThenCompletesAllRequests(t *testing.T) {
	conn := &scriptedConnector{errs: []error{errors.New("paper reject"), nil}}
	reqs := []OrderRequest{{Instrument: "a"}, {Instrument: "b"}}

	result := PlaceBatch(context.Background(), conn, reqs, func(error) bool { return true })

	require.Len(t, result.Errors, 2)
	assert.Error(t, result.Errors[0])
	assert.NoError(t, result.Errors[1])
}
