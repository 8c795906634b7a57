// Package wire defines the sequencer's external record formats: the
// request union read from the input queue, the response union written to
// the outbox, and the checkpoint records. Everything is hand-framed with
// protowire so unknown fields from newer writers are skipped instead of
// breaking replay.
package wire

import (
	"math/big"

	"github.com/shopspring/decimal"

	"meridian/domain/market"
)

type RequestKind uint8

const (
	KindApplyOrderBatch RequestKind = iota + 1
	KindApplyBalanceBatch
	KindAddMarket
	KindSetFeeRates
	KindSetWithdrawalFees
)

// Request is the union of everything the sequencer accepts. Seq is
// assigned by the input queue on append, not by the submitter; GUID is
// the submitter's idempotency key.
type Request struct {
	Seq  uint64
	GUID string
	Kind RequestKind

	OrderBatch     *OrderBatchRequest
	BalanceBatch   *BalanceBatchRequest
	AddMarket      *AddMarketRequest
	FeeRates       *market.FeeRates
	WithdrawalFees []WithdrawalFee
}

// OrderBatchRequest carries one wallet's mutations against one market.
type OrderBatchRequest struct {
	MarketID market.MarketID
	Wallet   market.Wallet
	Cancels  []uint64
	Changes  []market.OrderChange
	Adds     []market.Order
}

type Deposit struct {
	Wallet market.Wallet
	Asset  market.Asset
	Amount *big.Int
}

// Withdrawal debits a wallet. ExternalGUID ties the debit to the
// on-chain transfer so a later failure can be reconciled.
type Withdrawal struct {
	Wallet       market.Wallet
	Asset        market.Asset
	Amount       *big.Int
	ExternalGUID string
}

// BalanceAdjustment is a rollback entry: a failed withdrawal or failed
// settlement re-crediting or debiting a wallet after the fact.
type BalanceAdjustment struct {
	Wallet market.Wallet
	Asset  market.Asset
	Amount *big.Int
}

type BalanceBatchRequest struct {
	Deposits          []Deposit
	Withdrawals       []Withdrawal
	FailedWithdrawals []BalanceAdjustment
	FailedSettlements []BalanceAdjustment
}

type AddMarketRequest struct {
	ID                market.MarketID
	TickSize          decimal.Decimal
	MarketPrice       decimal.Decimal
	MaxLevels         int
	MaxOrdersPerLevel int
	BaseDecimals      int32
	QuoteDecimals     int32
}

type WithdrawalFee struct {
	Asset  market.Asset
	Amount *big.Int
}

// ResponseError classifies request-level failures. Order-level outcomes
// travel in OrdersChanged and OrdersChangeRejected instead.
type ResponseError uint8

const (
	ErrNone ResponseError = iota
	ErrExceedsLimit
	ErrUnknownMarket
	ErrMarketExists
	ErrMalformedRequest
)

func (e ResponseError) String() string {
	switch e {
	case ErrNone:
		return "ok"
	case ErrExceedsLimit:
		return "exceeds limit"
	case ErrUnknownMarket:
		return "unknown market"
	case ErrMarketExists:
		return "market exists"
	case ErrMalformedRequest:
		return "malformed request"
	default:
		return "unknown"
	}
}

// ConsumptionChanged is a consumption delta qualified with the market it
// occurred in, for downstream risk consumers.
type ConsumptionChanged struct {
	MarketID market.MarketID
	Wallet   market.Wallet
	Asset    market.Asset
	Delta    *big.Int
}

// Response is the durable record of one applied request. Replaying the
// same Seq returns the stored Response rather than reprocessing.
type Response struct {
	Seq   uint64
	GUID  string
	Error ResponseError

	OrdersChanged        []market.OrderChanged
	OrdersChangeRejected []market.OrderChangeRejected
	TradesCreated        []market.Trade
	BalancesChanged      []market.BalanceDelta
	ConsumptionChanged   []ConsumptionChanged
}

// MetaInfo is the checkpoint header record: replay watermark, the market
// set and the fee configuration.
type MetaInfo struct {
	Watermark      uint64
	Markets        []market.MarketID
	Fees           market.FeeRates
	WithdrawalFees []WithdrawalFee
}

type ConsumptionRecord struct {
	MarketID market.MarketID
	Amount   *big.Int
}

// BalanceRecord is one (wallet, asset) row of the checkpoint, with the
// per-market consumption breakdown.
type BalanceRecord struct {
	Wallet   market.Wallet
	Asset    market.Asset
	Balance  *big.Int
	Consumed []ConsumptionRecord
}
