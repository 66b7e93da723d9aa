// Package venue defines the uniform connector abstraction over N trading
// venues. This package specifies the shape every connector must satisfy and
// a generic REST-backed implementation of it.
package venue

import (
	"context"

	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
)

// Instrument is a listed instrument on a venue (option or perpetual).
type Instrument struct {
	Name       string
	Asset      ptypes.Asset
	Kind       string // "option" | "perpetual"
	Strike     money.Value
	OptionType ptypes.OptionType
	ExpiryTag  string // e.g. "29NOV24"
	ExpiryTime int64  // unix millis
}

// Ticker is a venue's best-bid/ask/mark/iv snapshot for one instrument.
type Ticker struct {
	Instrument string
	Bid        money.Value
	Ask        money.Value
	Mark       money.Value
	MarkIv     float64 // fraction or percent-ish, per venue; caller normalizes
	Timestamp  int64
}

// BookLevel is one price/size level of an order book side.
type BookLevel struct {
	Price money.Value
	Size  money.Value
}

// OrderBook is a venue's two-sided depth snapshot for one instrument.
type OrderBook struct {
	Instrument string
	Bids       []BookLevel
	Asks       []BookLevel
	Timestamp  int64
}

// BestBidAsk returns the top of book on each side, and whether both exist.
func (b OrderBook) BestBidAsk() (bid, ask BookLevel, ok bool) {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return BookLevel{}, BookLevel{}, false
	}
	return b.Bids[0], b.Asks[0], true
}

// OrderRequest is a placeOrder call, uniform across connectors.
type OrderRequest struct {
	Instrument string
	Side       ptypes.OrderSide
	Amount     money.Value
	Type       ptypes.OrderType
	Price      money.Value // only used for OrderLimit
}

// OrderResult is the venue's acknowledgement of a placed order.
type OrderResult struct {
	OrderID    string
	Instrument string
	FilledSize money.Value
	AvgPrice   money.Value
}

// Connector is the uniform capability set every venue executor satisfies.
type Connector interface {
	ListInstruments(ctx context.Context, asset ptypes.Asset) ([]Instrument, error)
	GetTicker(ctx context.Context, instrument string) (Ticker, error)
	GetOrderBook(ctx context.Context, instrument string) (OrderBook, error)
	GetIndexPrice(ctx context.Context, asset ptypes.Asset) (money.Value, error)
	GetPositions(ctx context.Context, asset ptypes.Asset) ([]ptypes.Position, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
}
