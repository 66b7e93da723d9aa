package ptypes

// Asset is a discriminated tag. The core is asset-generic but the current
// instantiation only lists BTC, per spec section 3.
type Asset string

const (
	AssetBTC Asset = "BTC"
)

// Side is the user's position direction.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// OptionType discriminates the hedge leg's option kind.
type OptionType string

const (
	OptionPut  OptionType = "put"
	OptionCall OptionType = "call"
)

// HedgeType discriminates whether a hedge leg is an option or a perpetual.
type HedgeType string

const (
	HedgeOption HedgeType = "option"
	HedgePerp   HedgeType = "perp"
)

// OrderSide mirrors the venue-level buy/sell direction, kept distinct from
// Side (the user's long/short position direction) since a long position is
// hedged by selling, not buying.
type OrderSide string

const (
	OrderBuy  OrderSide = "buy"
	OrderSell OrderSide = "sell"
)

// OrderType is the venue order style.
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)
