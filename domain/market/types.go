package market

import (
	"math/big"

	"github.com/shopspring/decimal"
)

type Side uint8

const (
	SideNone Side = iota
	SideBuy
	SideSell
)

type OrderType uint8

const (
	LimitBuy OrderType = iota
	LimitSell
	MarketBuy
	MarketSell
)

func (t OrderType) IsBuy() bool {
	return t == LimitBuy || t == MarketBuy
}

func (t OrderType) IsMarket() bool {
	return t == MarketBuy || t == MarketSell
}

// Disposition is the outcome tag attached to an order after a mutation
// attempt.
type Disposition uint8

const (
	DispositionAccepted Disposition = iota
	DispositionFilled
	DispositionPartiallyFilled
	DispositionCanceled
	DispositionRejected
	DispositionAutoReduced
)

func (d Disposition) String() string {
	switch d {
	case DispositionAccepted:
		return "Accepted"
	case DispositionFilled:
		return "Filled"
	case DispositionPartiallyFilled:
		return "PartiallyFilled"
	case DispositionCanceled:
		return "Canceled"
	case DispositionRejected:
		return "Rejected"
	case DispositionAutoReduced:
		return "AutoReduced"
	default:
		return "Unknown"
	}
}

// RejectionReason explains why a cancel or change could not be applied.
type RejectionReason uint8

const (
	ReasonNone RejectionReason = iota
	ReasonDoesNotExist
	ReasonNotForWallet
	ReasonInvalidAmount
)

// Order is the wire form of an incoming order. Price is ignored for
// market orders. The GUID is caller-assigned and stays stable across the
// order's lifetime, including later price and amount changes.
type Order struct {
	GUID      uint64
	Type      OrderType
	Amount    *big.Int
	Price     decimal.Decimal
	Wallet    Wallet
	Nonce     uint64
	Signature []byte // verified upstream, carried opaquely
}

// OrderChange mutates a resting order's price and/or quantity.
type OrderChange struct {
	GUID   uint64
	Amount *big.Int
	Price  decimal.Decimal
}

// OrderChanged reports a disposition for one order touched by a batch.
type OrderChanged struct {
	GUID        uint64
	Disposition Disposition
	NewQuantity *big.Int // nil when not meaningful for the disposition
}

// OrderChangeRejected reports an invalid cancel or change target.
type OrderChangeRejected struct {
	GUID   uint64
	Reason RejectionReason
}

// Trade is one execution between a buy and a sell order.
type Trade struct {
	BuyGUID  uint64
	SellGUID uint64
	Amount   *big.Int
	Price    decimal.Decimal
}

// BalanceDelta is a signed balance mutation produced by executions.
type BalanceDelta struct {
	Wallet Wallet
	Asset  Asset
	Delta  *big.Int
}

// ConsumptionChange reports the new reserved amount for a wallet and
// asset within one market after a batch.
type ConsumptionChange struct {
	Wallet Wallet
	Asset  Asset
	Delta  *big.Int
}

// OrderBatch is one wallet's set of mutations against a single market.
// Application order is fixed: all cancels, then all changes, then all adds.
type OrderBatch struct {
	Wallet  Wallet
	Cancels []uint64
	Changes []OrderChange
	Adds    []Order
}

// BatchResult aggregates everything one order batch produced.
type BatchResult struct {
	OrdersChanged        []OrderChanged
	OrdersChangeRejected []OrderChangeRejected
	TradesCreated        []Trade
	BalanceDeltas        []BalanceDelta
	ConsumptionChanges   []ConsumptionChange
}
