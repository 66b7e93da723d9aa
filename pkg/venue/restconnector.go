package venue

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
)

var log = logrus.WithField("component", "venue")

// RESTConnector implements Connector against a venue whose public HTTP
// shape matches a Deribit-style {result: {...}} envelope, generalized here
// to any venue providing the same six endpoints. It is deliberately
// generic: the specific routes are injected via Endpoints so both a
// Deribit-shaped and a Bybit-shaped venue can share this implementation
// without per-venue client code.
type RESTConnector struct {
	Name      string
	client    *resty.Client
	endpoints Endpoints
}

// Endpoints is the set of relative paths (with {instrument}/{asset}
// placeholders) a venue exposes for the six Connector operations.
type Endpoints struct {
	ListInstruments string // e.g. "/public/get_instruments?currency={asset}&kind=option"
	Ticker          string // e.g. "/public/ticker?instrument_name={instrument}"
	OrderBook       string // e.g. "/public/get_order_book?instrument_name={instrument}"
	IndexPrice      string // e.g. "/public/get_index_price?index_name={asset}_usd"
	Positions       string // e.g. "/private/get_positions?currency={asset}"
	PlaceOrder      string // e.g. "/private/{side}"
}

// NewRESTConnector builds a connector bound to baseURL with a 6s default
// call timeout, so outbound calls always carry a call-level timeout rather
// than blocking on a stalled venue indefinitely.
func NewRESTConnector(name, baseURL string, endpoints Endpoints) *RESTConnector {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(6 * time.Second)
	return &RESTConnector{Name: name, client: client, endpoints: endpoints}
}

type deribitTickerResult struct {
	Result struct {
		InstrumentName  string  `json:"instrument_name"`
		MarkPrice       float64 `json:"mark_price"`
		MarkIv          float64 `json:"mark_iv"`
		UnderlyingPrice float64 `json:"underlying_price"`
		BestBidPrice    float64 `json:"best_bid_price"`
		BestAskPrice    float64 `json:"best_ask_price"`
		Timestamp       int64   `json:"timestamp"`
	} `json:"result"`
}

func (c *RESTConnector) GetTicker(ctx context.Context, instrument string) (Ticker, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get(substitute(c.endpoints.Ticker, "{instrument}", instrument))
	if err != nil {
		return Ticker{}, errors.Wrapf(err, "%s: get ticker %s", c.Name, instrument)
	}
	if resp.IsError() {
		return Ticker{}, errors.Errorf("%s: ticker %s status %d", c.Name, instrument, resp.StatusCode())
	}

	var parsed deribitTickerResult
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return Ticker{}, errors.Wrapf(err, "%s: decode ticker %s", c.Name, instrument)
	}

	return Ticker{
		Instrument: instrument,
		Bid:        money.NewFromFloat(parsed.Result.BestBidPrice),
		Ask:        money.NewFromFloat(parsed.Result.BestAskPrice),
		Mark:       money.NewFromFloat(parsed.Result.MarkPrice),
		MarkIv:     parsed.Result.MarkIv,
		Timestamp:  parsed.Result.Timestamp,
	}, nil
}

type deribitBookResult struct {
	Result struct {
		Bids      [][2]float64 `json:"bids"`
		Asks      [][2]float64 `json:"asks"`
		Timestamp int64        `json:"timestamp"`
	} `json:"result"`
}

func (c *RESTConnector) GetOrderBook(ctx context.Context, instrument string) (OrderBook, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get(substitute(c.endpoints.OrderBook, "{instrument}", instrument))
	if err != nil {
		return OrderBook{}, errors.Wrapf(err, "%s: get order book %s", c.Name, instrument)
	}
	if resp.IsError() {
		return OrderBook{}, errors.Errorf("%s: book %s status %d", c.Name, instrument, resp.StatusCode())
	}

	var parsed deribitBookResult
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return OrderBook{}, errors.Wrapf(err, "%s: decode book %s", c.Name, instrument)
	}

	book := OrderBook{Instrument: instrument, Timestamp: parsed.Result.Timestamp}
	for _, lvl := range parsed.Result.Bids {
		book.Bids = append(book.Bids, BookLevel{Price: money.NewFromFloat(lvl[0]), Size: money.NewFromFloat(lvl[1])})
	}
	for _, lvl := range parsed.Result.Asks {
		book.Asks = append(book.Asks, BookLevel{Price: money.NewFromFloat(lvl[0]), Size: money.NewFromFloat(lvl[1])})
	}
	return book, nil
}

type deribitInstrumentsResult struct {
	Result []struct {
		InstrumentName string  `json:"instrument_name"`
		Strike         float64 `json:"strike"`
		ExpirationTS   int64   `json:"expiration_timestamp"`
		Kind           string  `json:"kind"`
		OptionType     string  `json:"option_type"`
	} `json:"result"`
}

func (c *RESTConnector) ListInstruments(ctx context.Context, asset ptypes.Asset) ([]Instrument, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get(substitute(c.endpoints.ListInstruments, "{asset}", string(asset)))
	if err != nil {
		return nil, errors.Wrapf(err, "%s: list instruments %s", c.Name, asset)
	}
	if resp.IsError() {
		return nil, errors.Errorf("%s: list instruments %s status %d", c.Name, asset, resp.StatusCode())
	}

	var parsed deribitInstrumentsResult
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, errors.Wrapf(err, "%s: decode instruments %s", c.Name, asset)
	}

	out := make([]Instrument, 0, len(parsed.Result))
	for _, r := range parsed.Result {
		inst, err := ParseInstrument(r.InstrumentName)
		if err != nil {
			log.WithError(err).Warnf("%s: skipping unparsable instrument %s", c.Name, r.InstrumentName)
			continue
		}
		inst.ExpiryTime = r.ExpirationTS
		out = append(out, inst)
	}
	return out, nil
}

type deribitIndexResult struct {
	Result struct {
		IndexPrice float64 `json:"index_price"`
	} `json:"result"`
}

func (c *RESTConnector) GetIndexPrice(ctx context.Context, asset ptypes.Asset) (money.Value, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get(substitute(c.endpoints.IndexPrice, "{asset}", strings.ToLower(string(asset))))
	if err != nil {
		return money.Zero, errors.Wrapf(err, "%s: get index price %s", c.Name, asset)
	}
	if resp.IsError() {
		return money.Zero, errors.Errorf("%s: index price %s status %d", c.Name, asset, resp.StatusCode())
	}

	var parsed deribitIndexResult
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return money.Zero, errors.Wrapf(err, "%s: decode index price %s", c.Name, asset)
	}
	return money.NewFromFloat(parsed.Result.IndexPrice), nil
}

func (c *RESTConnector) GetPositions(ctx context.Context, asset ptypes.Asset) ([]ptypes.Position, error) {
	// Position custody is explicitly out of scope (spec Non-goals): the
	// engine never executes or holds user positions itself. This call only
	// checks that the venue answers; it does not decode the response body
	// and always returns no positions.
	resp, err := c.client.R().
		SetContext(ctx).
		Get(substitute(c.endpoints.Positions, "{asset}", string(asset)))
	if err != nil {
		return nil, errors.Wrapf(err, "%s: get positions %s", c.Name, asset)
	}
	if resp.IsError() {
		return nil, errors.Errorf("%s: positions %s status %d", c.Name, asset, resp.StatusCode())
	}
	return nil, nil
}

// paperRejectReasons are the only rejection messages the net-exposure
// planner is allowed to treat as "try the next candidate" (spec section
// 4.8 step 5); everything else (auth, 5xx, malformed body, an
// unrecognized rejection message) is a genuine failure and must stop the
// search, so it stays an opaque wrapped error rather than a RejectedError.
var paperRejectReasons = map[string]string{
	"no_top_of_book":         "no_top_of_book",
	"insufficient_liquidity": "insufficient_liquidity",
}

func (c *RESTConnector) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	path := substitute(c.endpoints.PlaceOrder, "{side}", string(req.Side))
	body := map[string]any{
		"instrument_name": req.Instrument,
		"amount":          req.Amount.Float64(),
		"type":            string(req.Type),
	}
	if req.Type == ptypes.OrderLimit {
		body["price"] = req.Price.Float64()
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		return OrderResult{}, errors.Wrapf(err, "%s: place order %s", c.Name, req.Instrument)
	}
	if resp.IsError() {
		return OrderResult{}, errors.Errorf("%s: place order %s status %d", c.Name, req.Instrument, resp.StatusCode())
	}

	var parsed struct {
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Result struct {
			Order struct {
				OrderID      string  `json:"order_id"`
				FilledAmount float64 `json:"filled_amount"`
				AveragePrice float64 `json:"average_price"`
			} `json:"order"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return OrderResult{}, errors.Wrapf(err, "%s: decode order result %s", c.Name, req.Instrument)
	}

	if parsed.Error != nil {
		if reason, ok := paperRejectReasons[parsed.Error.Message]; ok {
			return OrderResult{}, &RejectedError{Venue: c.Name, Reason: reason}
		}
		return OrderResult{}, errors.Errorf("%s: place order %s rejected: %s", c.Name, req.Instrument, parsed.Error.Message)
	}

	return OrderResult{
		OrderID:    parsed.Result.Order.OrderID,
		Instrument: req.Instrument,
		FilledSize: money.NewFromFloat(parsed.Result.Order.FilledAmount),
		AvgPrice:   money.NewFromFloat(parsed.Result.Order.AveragePrice),
	}, nil
}

func substitute(path, placeholder, value string) string {
	return strings.ReplaceAll(path, placeholder, value)
}
