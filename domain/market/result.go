package market

import "math/big"

type walletAsset struct {
	wallet Wallet
	asset  Asset
}

// resultBuilder accumulates a BatchResult, merging balance and
// consumption deltas per (wallet, asset) while keeping first-touch
// ordering so responses stay deterministic.
type resultBuilder struct {
	res       BatchResult
	balanceIx map[walletAsset]int
	consumeIx map[walletAsset]int
}

func newResultBuilder() *resultBuilder {
	return &resultBuilder{
		balanceIx: make(map[walletAsset]int),
		consumeIx: make(map[walletAsset]int),
	}
}

func (b *resultBuilder) orderChanged(guid uint64, d Disposition, newQuantity *big.Int) {
	b.res.OrdersChanged = append(b.res.OrdersChanged, OrderChanged{
		GUID:        guid,
		Disposition: d,
		NewQuantity: newQuantity,
	})
}

func (b *resultBuilder) rejected(guid uint64, reason RejectionReason) {
	b.res.OrdersChangeRejected = append(b.res.OrdersChangeRejected, OrderChangeRejected{
		GUID:   guid,
		Reason: reason,
	})
}

func (b *resultBuilder) trade(t Trade) {
	b.res.TradesCreated = append(b.res.TradesCreated, t)
}

func (b *resultBuilder) balance(w Wallet, a Asset, delta *big.Int) {
	if delta.Sign() == 0 {
		return
	}
	key := walletAsset{w, a}
	if ix, ok := b.balanceIx[key]; ok {
		b.res.BalanceDeltas[ix].Delta.Add(b.res.BalanceDeltas[ix].Delta, delta)
		return
	}
	b.balanceIx[key] = len(b.res.BalanceDeltas)
	b.res.BalanceDeltas = append(b.res.BalanceDeltas, BalanceDelta{
		Wallet: w,
		Asset:  a,
		Delta:  new(big.Int).Set(delta),
	})
}

func (b *resultBuilder) consume(w Wallet, a Asset, delta *big.Int) {
	if delta.Sign() == 0 {
		return
	}
	key := walletAsset{w, a}
	if ix, ok := b.consumeIx[key]; ok {
		b.res.ConsumptionChanges[ix].Delta.Add(b.res.ConsumptionChanges[ix].Delta, delta)
		return
	}
	b.consumeIx[key] = len(b.res.ConsumptionChanges)
	b.res.ConsumptionChanges = append(b.res.ConsumptionChanges, ConsumptionChange{
		Wallet: w,
		Asset:  a,
		Delta:  new(big.Int).Set(delta),
	})
}

// finalize drops deltas that cancelled out within the batch.
func (b *resultBuilder) finalize() *BatchResult {
	balances := b.res.BalanceDeltas[:0]
	for _, d := range b.res.BalanceDeltas {
		if d.Delta.Sign() != 0 {
			balances = append(balances, d)
		}
	}
	b.res.BalanceDeltas = balances

	consumed := b.res.ConsumptionChanges[:0]
	for _, c := range b.res.ConsumptionChanges {
		if c.Delta.Sign() != 0 {
			consumed = append(consumed, c)
		}
	}
	b.res.ConsumptionChanges = consumed

	return &b.res
}
