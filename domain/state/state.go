// Package state holds the sequencer's aggregate root: every market,
// every wallet balance, per-market consumption tracking and the fee
// configuration. Exactly one instance exists, owned and mutated solely
// by the processing loop; checkpoint readers never run against a live
// instance.
package state

import (
	"fmt"
	"math/big"
	"sort"

	"meridian/domain/market"
)

type SequencerState struct {
	markets  map[market.MarketID]*market.Market
	balances map[market.Wallet]map[market.Asset]*big.Int
	consumed map[market.Wallet]map[market.Asset]map[market.MarketID]*big.Int

	FeeRates       market.FeeRates
	WithdrawalFees map[market.Asset]*big.Int

	// Watermark is the sequence number of the last applied request,
	// recorded in checkpoints so recovery knows where replay starts.
	Watermark uint64
}

func New() *SequencerState {
	return &SequencerState{
		markets:        make(map[market.MarketID]*market.Market),
		balances:       make(map[market.Wallet]map[market.Asset]*big.Int),
		consumed:       make(map[market.Wallet]map[market.Asset]map[market.MarketID]*big.Int),
		WithdrawalFees: make(map[market.Asset]*big.Int),
	}
}

func (s *SequencerState) Market(id market.MarketID) (*market.Market, bool) {
	m, ok := s.markets[id]
	return m, ok
}

func (s *SequencerState) AddMarket(m *market.Market) error {
	if _, exists := s.markets[m.ID]; exists {
		return fmt.Errorf("market %s already exists", m.ID)
	}
	s.markets[m.ID] = m
	return nil
}

// MarketIDs returns every market in deterministic order.
func (s *SequencerState) MarketIDs() []market.MarketID {
	ids := make([]market.MarketID, 0, len(s.markets))
	for id := range s.markets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// Balance returns the wallet's balance of asset. The returned value is a
// copy.
func (s *SequencerState) Balance(w market.Wallet, a market.Asset) *big.Int {
	if assets, ok := s.balances[w]; ok {
		if v, ok := assets[a]; ok {
			return new(big.Int).Set(v)
		}
	}
	return new(big.Int)
}

// AdjustBalance applies a signed delta and returns the new balance.
// Balances may legitimately go negative when settlement rollbacks land
// after the credit was already spent.
func (s *SequencerState) AdjustBalance(w market.Wallet, a market.Asset, delta *big.Int) *big.Int {
	assets := s.balances[w]
	if assets == nil {
		assets = make(map[market.Asset]*big.Int)
		s.balances[w] = assets
	}
	v := assets[a]
	if v == nil {
		v = new(big.Int)
		assets[a] = v
	}
	v.Add(v, delta)
	return new(big.Int).Set(v)
}

// Consumed returns the amount of the wallet's asset reserved by resting
// orders in one market. The returned value is a copy.
func (s *SequencerState) Consumed(w market.Wallet, a market.Asset, id market.MarketID) *big.Int {
	if assets, ok := s.consumed[w]; ok {
		if markets, ok := assets[a]; ok {
			if v, ok := markets[id]; ok {
				return new(big.Int).Set(v)
			}
		}
	}
	return new(big.Int)
}

// TotalConsumed sums the wallet's reservations of asset across every
// market. The limit invariant bounds this total by the wallet's balance.
func (s *SequencerState) TotalConsumed(w market.Wallet, a market.Asset) *big.Int {
	total := new(big.Int)
	if assets, ok := s.consumed[w]; ok {
		if markets, ok := assets[a]; ok {
			for _, v := range markets {
				total.Add(total, v)
			}
		}
	}
	return total
}

// AdjustConsumption applies a signed reservation delta for one market.
func (s *SequencerState) AdjustConsumption(w market.Wallet, a market.Asset, id market.MarketID, delta *big.Int) {
	if delta.Sign() == 0 {
		return
	}
	assets := s.consumed[w]
	if assets == nil {
		assets = make(map[market.Asset]map[market.MarketID]*big.Int)
		s.consumed[w] = assets
	}
	markets := assets[a]
	if markets == nil {
		markets = make(map[market.MarketID]*big.Int)
		assets[a] = markets
	}
	v := markets[id]
	if v == nil {
		v = new(big.Int)
		markets[id] = v
	}
	v.Add(v, delta)
	if v.Sign() == 0 {
		delete(markets, id)
	}
}

// MarketsReserving lists, in deterministic order, the markets currently
// holding reservations of the wallet's asset. Auto-reduce walks them in
// this order when a balance drop must be reconciled.
func (s *SequencerState) MarketsReserving(w market.Wallet, a market.Asset) []market.MarketID {
	var ids []market.MarketID
	if assets, ok := s.consumed[w]; ok {
		for id := range assets[a] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// WithdrawalFee returns the configured flat fee for an asset, zero when
// unset.
func (s *SequencerState) WithdrawalFee(a market.Asset) *big.Int {
	if v, ok := s.WithdrawalFees[a]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}
