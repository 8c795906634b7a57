// Package service orchestrates the sequencer pipeline: the durable
// input queue, the single-threaded processor over the aggregate state,
// the response outbox and checkpointing. The processor is the only
// writer; everything it does is a pure function of the request sequence,
// which is what makes queue replay equivalent to live processing.
package service

import (
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"meridian/domain/market"
	"meridian/domain/state"
	"meridian/wire"
)

type Processor struct {
	state *state.SequencerState
	log   *zap.Logger
}

func NewProcessor(st *state.SequencerState, log *zap.Logger) *Processor {
	return &Processor{state: st, log: log}
}

func (p *Processor) State() *state.SequencerState {
	return p.state
}

// Process applies one request and returns its response. The returned
// error is reserved for unrecoverable faults (a GUID collision inside a
// market); every expected failure is a Response with a non-zero Error.
// On success the state watermark advances to req.Seq.
func (p *Processor) Process(req *wire.Request) (*wire.Response, error) {
	resp := &wire.Response{Seq: req.Seq, GUID: req.GUID}

	var err error
	switch req.Kind {
	case wire.KindApplyOrderBatch:
		err = p.applyOrderBatch(req, resp)
	case wire.KindApplyBalanceBatch:
		p.applyBalanceBatch(req, resp)
	case wire.KindAddMarket:
		p.addMarket(req, resp)
	case wire.KindSetFeeRates:
		p.setFeeRates(req, resp)
	case wire.KindSetWithdrawalFees:
		p.setWithdrawalFees(req, resp)
	default:
		resp.Error = wire.ErrMalformedRequest
	}
	if err != nil {
		return nil, err
	}

	p.state.Watermark = req.Seq
	return resp, nil
}

// ---- order batches ----

func (p *Processor) applyOrderBatch(req *wire.Request, resp *wire.Response) error {
	ob := req.OrderBatch
	if ob == nil {
		resp.Error = wire.ErrMalformedRequest
		return nil
	}
	m, ok := p.state.Market(ob.MarketID)
	if !ok {
		resp.Error = wire.ErrUnknownMarket
		return nil
	}

	if p.exceedsLimit(m, ob) {
		resp.Error = wire.ErrExceedsLimit
		return nil
	}

	batch := &market.OrderBatch{
		Wallet:  ob.Wallet,
		Cancels: ob.Cancels,
		Changes: ob.Changes,
		Adds:    ob.Adds,
	}
	res, err := m.ApplyOrderBatch(batch, p.state.FeeRates)
	if err != nil {
		return fmt.Errorf("order batch seq %d: %w", req.Seq, err)
	}

	for _, bd := range res.BalanceDeltas {
		p.state.AdjustBalance(bd.Wallet, bd.Asset, bd.Delta)
	}
	for _, cc := range res.ConsumptionChanges {
		p.state.AdjustConsumption(cc.Wallet, cc.Asset, ob.MarketID, cc.Delta)
	}
	mergeBatchResult(resp, ob.MarketID, res)
	return nil
}

// exceedsLimit decides, before any mutation, whether the batch's net new
// collateral requirement fits within the wallet's free balance. Cancels
// and shrinking changes count as credit since they run first. Crossing
// portions are costed at book prices, so an order that would execute
// immediately is not rejected for lacking the collateral of its limit
// price over the full amount.
func (p *Processor) exceedsLimit(m *market.Market, ob *wire.OrderBatchRequest) bool {
	need := map[market.Asset]*big.Int{
		m.ID.Base:  new(big.Int),
		m.ID.Quote: new(big.Int),
	}

	for _, guid := range ob.Cancels {
		w, asset, reserved, ok := m.RestingReservation(guid)
		if !ok || w != ob.Wallet {
			continue
		}
		need[asset].Sub(need[asset], reserved)
	}
	for i := range ob.Changes {
		ch := &ob.Changes[i]
		w, asset, reserved, ok := m.RestingReservation(ch.GUID)
		if !ok || w != ob.Wallet {
			continue
		}
		need[asset].Sub(need[asset], reserved)
		o := market.Order{GUID: ch.GUID, Amount: ch.Amount, Price: ch.Price, Wallet: ob.Wallet}
		if asset == m.ID.Base {
			o.Type = market.LimitSell
			need[m.ID.Base].Add(need[m.ID.Base], m.BaseRequirement(&o))
		} else {
			o.Type = market.LimitBuy
			need[m.ID.Quote].Add(need[m.ID.Quote], m.QuoteRequirement(&o))
		}
	}
	for i := range ob.Adds {
		o := &ob.Adds[i]
		if o.Type.IsBuy() {
			need[m.ID.Quote].Add(need[m.ID.Quote], m.QuoteRequirement(o))
		} else {
			need[m.ID.Base].Add(need[m.ID.Base], m.BaseRequirement(o))
		}
	}

	for asset, n := range need {
		if n.Sign() <= 0 {
			continue
		}
		avail := p.state.Balance(ob.Wallet, asset)
		avail.Sub(avail, p.state.TotalConsumed(ob.Wallet, asset))
		if n.Cmp(avail) > 0 {
			return true
		}
	}
	return false
}

// ---- balance batches ----

func (p *Processor) applyBalanceBatch(req *wire.Request, resp *wire.Response) {
	bb := req.BalanceBatch
	if bb == nil {
		resp.Error = wire.ErrMalformedRequest
		return
	}

	for _, d := range bb.Deposits {
		if d.Amount.Sign() <= 0 {
			continue
		}
		p.state.AdjustBalance(d.Wallet, d.Asset, d.Amount)
		resp.BalancesChanged = append(resp.BalancesChanged, market.BalanceDelta{
			Wallet: d.Wallet, Asset: d.Asset, Delta: new(big.Int).Set(d.Amount),
		})
	}

	for _, wd := range bb.Withdrawals {
		p.withdraw(&wd, resp)
	}

	// Failed withdrawals re-credit exactly what was debited.
	for _, adj := range bb.FailedWithdrawals {
		if adj.Amount.Sign() == 0 {
			continue
		}
		p.state.AdjustBalance(adj.Wallet, adj.Asset, adj.Amount)
		resp.BalancesChanged = append(resp.BalancesChanged, market.BalanceDelta{
			Wallet: adj.Wallet, Asset: adj.Asset, Delta: new(big.Int).Set(adj.Amount),
		})
	}

	// Failed settlements roll a counterparty's credit back; the delta is
	// signed and may legitimately drive the balance negative.
	for _, adj := range bb.FailedSettlements {
		if adj.Amount.Sign() == 0 {
			continue
		}
		p.state.AdjustBalance(adj.Wallet, adj.Asset, adj.Amount)
		resp.BalancesChanged = append(resp.BalancesChanged, market.BalanceDelta{
			Wallet: adj.Wallet, Asset: adj.Asset, Delta: new(big.Int).Set(adj.Amount),
		})
		if adj.Amount.Sign() < 0 {
			p.reconcile(adj.Wallet, adj.Asset, resp)
		}
	}
}

// withdraw debits as much of the requested amount as the balance covers,
// plus the flat fee. Reservations do not block withdrawal; auto-reduce
// trims resting orders afterwards if the remaining balance no longer
// backs them.
func (p *Processor) withdraw(wd *wire.Withdrawal, resp *wire.Response) {
	if wd.Amount.Sign() <= 0 {
		return
	}
	fee := p.state.WithdrawalFee(wd.Asset)
	balance := p.state.Balance(wd.Wallet, wd.Asset)

	spendable := new(big.Int).Sub(balance, fee)
	if spendable.Sign() <= 0 {
		return
	}
	actual := new(big.Int).Set(wd.Amount)
	if actual.Cmp(spendable) > 0 {
		actual.Set(spendable)
	}

	debit := new(big.Int).Add(actual, fee)
	p.state.AdjustBalance(wd.Wallet, wd.Asset, new(big.Int).Neg(debit))
	resp.BalancesChanged = append(resp.BalancesChanged, market.BalanceDelta{
		Wallet: wd.Wallet, Asset: wd.Asset, Delta: new(big.Int).Neg(debit),
	})
	p.log.Debug("withdrawal applied",
		zap.Uint64("wallet", uint64(wd.Wallet)),
		zap.String("asset", string(wd.Asset)),
		zap.String("requested", wd.Amount.String()),
		zap.String("debited", debit.String()),
		zap.String("externalGuid", wd.ExternalGUID))

	p.reconcile(wd.Wallet, wd.Asset, resp)
}

// reconcile restores the limit invariant for one (wallet, asset) after a
// balance drop: markets are auto-reduced in deterministic order until
// total consumption fits the balance again.
func (p *Processor) reconcile(w market.Wallet, a market.Asset, resp *wire.Response) {
	balance := p.state.Balance(w, a)
	if p.state.TotalConsumed(w, a).Cmp(balance) <= 0 {
		return
	}

	budget := balance
	if budget.Sign() < 0 {
		budget = new(big.Int)
	}
	for _, id := range p.state.MarketsReserving(w, a) {
		m, ok := p.state.Market(id)
		if !ok {
			continue
		}
		res := m.AutoReduce(w, a, budget)
		for _, cc := range res.ConsumptionChanges {
			p.state.AdjustConsumption(cc.Wallet, cc.Asset, id, cc.Delta)
		}
		mergeBatchResult(resp, id, res)
		budget = new(big.Int).Sub(budget, p.state.Consumed(w, a, id))
		if budget.Sign() < 0 {
			budget.SetInt64(0)
		}
	}
}

// ---- configuration ----

func (p *Processor) addMarket(req *wire.Request, resp *wire.Response) {
	am := req.AddMarket
	if am == nil {
		resp.Error = wire.ErrMalformedRequest
		return
	}
	m, err := market.New(market.Config{
		ID:                am.ID,
		TickSize:          am.TickSize,
		MarketPrice:       am.MarketPrice,
		MaxLevels:         am.MaxLevels,
		MaxOrdersPerLevel: am.MaxOrdersPerLevel,
		BaseDecimals:      am.BaseDecimals,
		QuoteDecimals:     am.QuoteDecimals,
	})
	if err != nil {
		p.log.Warn("add market rejected", zap.Error(err))
		resp.Error = wire.ErrMalformedRequest
		return
	}
	if err := p.state.AddMarket(m); err != nil {
		resp.Error = wire.ErrMarketExists
		return
	}
	p.log.Info("market added",
		zap.String("market", am.ID.String()),
		zap.String("tickSize", am.TickSize.String()),
		zap.String("marketPrice", am.MarketPrice.String()))
}

func (p *Processor) setFeeRates(req *wire.Request, resp *wire.Response) {
	if req.FeeRates == nil {
		resp.Error = wire.ErrMalformedRequest
		return
	}
	p.state.FeeRates = *req.FeeRates
}

func (p *Processor) setWithdrawalFees(req *wire.Request, resp *wire.Response) {
	if len(req.WithdrawalFees) == 0 {
		resp.Error = wire.ErrMalformedRequest
		return
	}
	for _, wf := range req.WithdrawalFees {
		if wf.Amount.Sign() <= 0 {
			delete(p.state.WithdrawalFees, wf.Asset)
			continue
		}
		p.state.WithdrawalFees[wf.Asset] = new(big.Int).Set(wf.Amount)
	}
}

// mergeBatchResult folds one market's batch result into the response,
// tagging consumption changes with the market they belong to.
func mergeBatchResult(resp *wire.Response, id market.MarketID, res *market.BatchResult) {
	resp.OrdersChanged = append(resp.OrdersChanged, res.OrdersChanged...)
	resp.OrdersChangeRejected = append(resp.OrdersChangeRejected, res.OrdersChangeRejected...)
	resp.TradesCreated = append(resp.TradesCreated, res.TradesCreated...)
	resp.BalancesChanged = append(resp.BalancesChanged, res.BalanceDeltas...)
	for _, cc := range res.ConsumptionChanges {
		resp.ConsumptionChanged = append(resp.ConsumptionChanged, wire.ConsumptionChanged{
			MarketID: id,
			Wallet:   cc.Wallet,
			Asset:    cc.Asset,
			Delta:    cc.Delta,
		})
	}
}
