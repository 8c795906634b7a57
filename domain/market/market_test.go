package market

import (
	"math/big"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

const (
	maker Wallet = 1
	taker Wallet = 2
)

var btcEth = MarketID{Base: "BTC", Quote: "ETH"}

func newBTCETH(t *testing.T) *Market {
	t.Helper()
	m, err := New(Config{
		ID:                btcEth,
		TickSize:          decimal.RequireFromString("0.050"),
		MarketPrice:       decimal.RequireFromString("17.525"),
		MaxLevels:         500,
		MaxOrdersPerLevel: 100,
		BaseDecimals:      8,
		QuoteDecimals:     18,
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func apply(t *testing.T, m *Market, b *OrderBatch) *BatchResult {
	t.Helper()
	res, err := m.ApplyOrderBatch(b, FeeRates{})
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func limitOrder(guid uint64, typ OrderType, amount int64, price string) Order {
	return Order{
		GUID:   guid,
		Type:   typ,
		Amount: big.NewInt(amount),
		Price:  decimal.RequireFromString(price),
	}
}

func marketOrder(guid uint64, typ OrderType, amount int64) Order {
	return Order{GUID: guid, Type: typ, Amount: big.NewInt(amount)}
}

// findChanged returns the last entry for guid: a batch that cancels and
// re-adds the same guid reports it twice, and the final disposition is
// the one that matters.
func findChanged(res *BatchResult, guid uint64) (OrderChanged, bool) {
	found := OrderChanged{}
	ok := false
	for _, oc := range res.OrdersChanged {
		if oc.GUID == guid {
			found, ok = oc, true
		}
	}
	return found, ok
}

func findDelta(res *BatchResult, w Wallet, a Asset) *big.Int {
	for _, d := range res.BalanceDeltas {
		if d.Wallet == w && d.Asset == a {
			return d.Delta
		}
	}
	return nil
}

func TestReferenceScenarioBTCETH(t *testing.T) {
	m := newBTCETH(t)

	res := apply(t, m, &OrderBatch{Wallet: maker, Adds: []Order{
		limitOrder(1, LimitBuy, 12345, "17.500"),
	}})
	if oc, _ := findChanged(res, 1); oc.Disposition != DispositionAccepted {
		t.Fatalf("maker buy disposition = %s", oc.Disposition)
	}

	res = apply(t, m, &OrderBatch{Wallet: maker, Adds: []Order{
		limitOrder(2, LimitSell, 54321, "17.550"),
	}})
	if oc, _ := findChanged(res, 2); oc.Disposition != DispositionAccepted {
		t.Fatalf("maker sell disposition = %s", oc.Disposition)
	}

	res = apply(t, m, &OrderBatch{Wallet: taker, Adds: []Order{
		marketOrder(3, MarketBuy, 43210),
	}})

	oc, ok := findChanged(res, 3)
	if !ok || oc.Disposition != DispositionFilled {
		t.Errorf("taker disposition = %v", oc.Disposition)
	}
	oc, ok = findChanged(res, 2)
	if !ok || oc.Disposition != DispositionPartiallyFilled {
		t.Errorf("maker disposition = %v", oc.Disposition)
	}
	if oc.NewQuantity.Int64() != 54321-43210 {
		t.Errorf("maker new quantity = %s", oc.NewQuantity)
	}

	if len(res.TradesCreated) != 1 {
		t.Fatalf("trades = %d, want 1", len(res.TradesCreated))
	}
	tr := res.TradesCreated[0]
	if tr.BuyGUID != 3 || tr.SellGUID != 2 || tr.Amount.Int64() != 43210 ||
		!tr.Price.Equal(decimal.RequireFromString("17.550")) {
		t.Errorf("trade = %+v", tr)
	}

	wantQuote, _ := new(big.Int).SetString("7583355000000000", 10)
	if d := findDelta(res, maker, "BTC"); d == nil || d.Int64() != -43210 {
		t.Errorf("maker base delta = %s", d)
	}
	if d := findDelta(res, maker, "ETH"); d == nil || d.Cmp(wantQuote) != 0 {
		t.Errorf("maker quote delta = %s", d)
	}
	if d := findDelta(res, taker, "BTC"); d == nil || d.Int64() != 43210 {
		t.Errorf("taker base delta = %s", d)
	}
	if d := findDelta(res, taker, "ETH"); d == nil || d.Cmp(new(big.Int).Neg(wantQuote)) != 0 {
		t.Errorf("taker quote delta = %s", d)
	}

	// The reference price drifts past the traded tick.
	if !m.MarketPrice.Equal(decimal.RequireFromString("17.575")) {
		t.Errorf("market price = %s, want 17.575", m.MarketPrice)
	}
}

func TestPriceTimePriorityWithinLevel(t *testing.T) {
	m := newBTCETH(t)
	apply(t, m, &OrderBatch{Wallet: maker, Adds: []Order{
		limitOrder(1, LimitSell, 10, "17.550"),
	}})
	apply(t, m, &OrderBatch{Wallet: taker, Adds: []Order{
		limitOrder(2, LimitSell, 10, "17.550"),
	}})

	res := apply(t, m, &OrderBatch{Wallet: 3, Adds: []Order{
		marketOrder(5, MarketBuy, 15),
	}})
	if len(res.TradesCreated) != 2 {
		t.Fatalf("trades = %d, want 2", len(res.TradesCreated))
	}
	if res.TradesCreated[0].SellGUID != 1 || res.TradesCreated[0].Amount.Int64() != 10 {
		t.Errorf("first arrival must fill first: %+v", res.TradesCreated[0])
	}
	if res.TradesCreated[1].SellGUID != 2 || res.TradesCreated[1].Amount.Int64() != 5 {
		t.Errorf("second arrival fills the remainder: %+v", res.TradesCreated[1])
	}

	// The partially filled order is still at the head.
	res = apply(t, m, &OrderBatch{Wallet: 3, Adds: []Order{
		marketOrder(6, MarketBuy, 5),
	}})
	if len(res.TradesCreated) != 1 || res.TradesCreated[0].SellGUID != 2 {
		t.Errorf("head should remain the partially filled order: %+v", res.TradesCreated)
	}
	if oc, _ := findChanged(res, 2); oc.Disposition != DispositionFilled {
		t.Errorf("exhausted head disposition = %s", oc.Disposition)
	}
}

func TestMarketOrderNoLiquidityRejected(t *testing.T) {
	m := newBTCETH(t)
	res := apply(t, m, &OrderBatch{Wallet: taker, Adds: []Order{
		marketOrder(1, MarketBuy, 100),
	}})
	if oc, _ := findChanged(res, 1); oc.Disposition != DispositionRejected {
		t.Errorf("disposition = %s, want Rejected", oc.Disposition)
	}
	if len(res.TradesCreated) != 0 || len(res.BalanceDeltas) != 0 {
		t.Error("rejected market order must not mutate anything")
	}
}

func TestCrossingLimitEqualsMarketPlusResting(t *testing.T) {
	m := newBTCETH(t)
	apply(t, m, &OrderBatch{Wallet: maker, Adds: []Order{
		limitOrder(1, LimitSell, 100, "17.550"),
	}})

	res := apply(t, m, &OrderBatch{Wallet: taker, Adds: []Order{
		limitOrder(2, LimitBuy, 150, "17.550"),
	}})
	oc, _ := findChanged(res, 2)
	if oc.Disposition != DispositionPartiallyFilled || oc.NewQuantity.Int64() != 50 {
		t.Errorf("crossing limit = %s newQty %s", oc.Disposition, oc.NewQuantity)
	}
	if len(res.TradesCreated) != 1 || res.TradesCreated[0].Amount.Int64() != 100 {
		t.Errorf("crossing trade = %+v", res.TradesCreated)
	}
	// The remainder rests as a plain bid at its own tick.
	if !m.BestBid().Equal(decimal.RequireFromString("17.550")) {
		t.Errorf("best bid = %s, want 17.550", m.BestBid())
	}

	// Equivalent market buy against a fresh book produces the same trade.
	m2 := newBTCETH(t)
	apply(t, m2, &OrderBatch{Wallet: maker, Adds: []Order{
		limitOrder(1, LimitSell, 100, "17.550"),
	}})
	res2 := apply(t, m2, &OrderBatch{Wallet: taker, Adds: []Order{
		marketOrder(2, MarketBuy, 100),
	}})
	if res2.TradesCreated[0].Amount.Cmp(res.TradesCreated[0].Amount) != 0 ||
		!res2.TradesCreated[0].Price.Equal(res.TradesCreated[0].Price) {
		t.Error("crossing portion must match an equivalent market order")
	}
}

func TestCrossingLimitStopsAtOwnTick(t *testing.T) {
	m := newBTCETH(t)
	apply(t, m, &OrderBatch{Wallet: maker, Adds: []Order{
		limitOrder(1, LimitSell, 10, "17.550"),
		limitOrder(2, LimitSell, 10, "17.600"),
		limitOrder(3, LimitSell, 10, "17.650"),
	}})

	res := apply(t, m, &OrderBatch{Wallet: taker, Adds: []Order{
		limitOrder(4, LimitBuy, 30, "17.600"),
	}})
	if len(res.TradesCreated) != 2 {
		t.Fatalf("trades = %d, want 2 (never beyond own limit)", len(res.TradesCreated))
	}
	oc, _ := findChanged(res, 4)
	if oc.Disposition != DispositionPartiallyFilled || oc.NewQuantity.Int64() != 10 {
		t.Errorf("taker = %s newQty %s", oc.Disposition, oc.NewQuantity)
	}
	// Ask above the limit is untouched.
	if _, _, reserved, ok := m.RestingReservation(3); !ok || reserved.Int64() != 10 {
		t.Error("ask beyond the limit must survive")
	}
}

func TestCrossingIntoEmptyBookRestsWithAcceptedDisposition(t *testing.T) {
	m := newBTCETH(t)
	// Immediately after creation the synthetic best offer sits one
	// half-tick above market price with no liquidity behind it.
	res := apply(t, m, &OrderBatch{Wallet: maker, Adds: []Order{
		limitOrder(1, LimitBuy, 100, "17.600"),
	}})
	oc, _ := findChanged(res, 1)
	if oc.Disposition != DispositionAccepted {
		t.Errorf("disposition = %s, want Accepted from the resting leg", oc.Disposition)
	}
	if len(res.TradesCreated) != 0 {
		t.Error("no trades against an empty book")
	}
	if !m.BestBid().Equal(decimal.RequireFromString("17.600")) {
		t.Errorf("best bid = %s", m.BestBid())
	}
}

func TestLimitOrderOffGridRejected(t *testing.T) {
	m := newBTCETH(t)
	res := apply(t, m, &OrderBatch{Wallet: maker, Adds: []Order{
		limitOrder(1, LimitBuy, 100, "17.512"), // not on a tick
	}})
	if oc, _ := findChanged(res, 1); oc.Disposition != DispositionRejected {
		t.Errorf("disposition = %s, want Rejected", oc.Disposition)
	}
}

func TestCancelValidation(t *testing.T) {
	m := newBTCETH(t)
	apply(t, m, &OrderBatch{Wallet: maker, Adds: []Order{
		limitOrder(1, LimitBuy, 100, "17.500"),
	}})

	res := apply(t, m, &OrderBatch{Wallet: maker, Cancels: []uint64{99}})
	if len(res.OrdersChangeRejected) != 1 || res.OrdersChangeRejected[0].Reason != ReasonDoesNotExist {
		t.Errorf("unknown guid = %+v", res.OrdersChangeRejected)
	}

	res = apply(t, m, &OrderBatch{Wallet: taker, Cancels: []uint64{1}})
	if len(res.OrdersChangeRejected) != 1 || res.OrdersChangeRejected[0].Reason != ReasonNotForWallet {
		t.Errorf("foreign guid = %+v", res.OrdersChangeRejected)
	}

	res = apply(t, m, &OrderBatch{Wallet: maker, Cancels: []uint64{1}})
	if oc, ok := findChanged(res, 1); !ok || oc.Disposition != DispositionCanceled {
		t.Errorf("cancel disposition = %v", oc.Disposition)
	}
	// The quote reservation is released.
	if len(res.ConsumptionChanges) != 1 || res.ConsumptionChanges[0].Delta.Sign() >= 0 {
		t.Errorf("consumption changes = %+v", res.ConsumptionChanges)
	}
}

func TestChangeInPlaceQuantity(t *testing.T) {
	m := newBTCETH(t)
	apply(t, m, &OrderBatch{Wallet: maker, Adds: []Order{
		limitOrder(1, LimitSell, 100, "17.550"),
	}})

	res := apply(t, m, &OrderBatch{Wallet: maker, Changes: []OrderChange{{
		GUID:   1,
		Amount: big.NewInt(60),
		Price:  decimal.RequireFromString("17.550"),
	}}})
	oc, _ := findChanged(res, 1)
	if oc.Disposition != DispositionAccepted || oc.NewQuantity.Int64() != 60 {
		t.Errorf("change = %s newQty %s", oc.Disposition, oc.NewQuantity)
	}
	if len(res.ConsumptionChanges) != 1 || res.ConsumptionChanges[0].Delta.Int64() != -40 {
		t.Errorf("consumption delta = %+v", res.ConsumptionChanges)
	}
	if _, _, reserved, _ := m.RestingReservation(1); reserved.Int64() != 60 {
		t.Errorf("reservation = %s", reserved)
	}
}

func TestChangeAcrossMarketMatchesCancelAndReadd(t *testing.T) {
	build := func(t *testing.T) *Market {
		m := newBTCETH(t)
		apply(t, m, &OrderBatch{Wallet: maker, Adds: []Order{
			limitOrder(1, LimitSell, 80, "17.550"),
		}})
		apply(t, m, &OrderBatch{Wallet: taker, Adds: []Order{
			limitOrder(2, LimitBuy, 50, "17.500"),
		}})
		return m
	}

	// Change the resting bid up through the ask.
	m1 := build(t)
	res1 := apply(t, m1, &OrderBatch{Wallet: taker, Changes: []OrderChange{{
		GUID:   2,
		Amount: big.NewInt(100),
		Price:  decimal.RequireFromString("17.550"),
	}}})

	// Cancel and re-add fresh on an identical book.
	m2 := build(t)
	res2 := apply(t, m2, &OrderBatch{
		Wallet:  taker,
		Cancels: []uint64{2},
		Adds:    []Order{limitOrder(2, LimitBuy, 100, "17.550")},
	})

	if len(res1.TradesCreated) != 1 || len(res2.TradesCreated) != 1 {
		t.Fatalf("trades = %d vs %d", len(res1.TradesCreated), len(res2.TradesCreated))
	}
	t1, t2 := res1.TradesCreated[0], res2.TradesCreated[0]
	if t1.Amount.Cmp(t2.Amount) != 0 || !t1.Price.Equal(t2.Price) {
		t.Errorf("trade mismatch: %+v vs %+v", t1, t2)
	}
	// The cancel+re-add batch reports guid 2 twice, Canceled first; the
	// re-add's disposition is the one to compare.
	var guid2 []OrderChanged
	for _, oc := range res2.OrdersChanged {
		if oc.GUID == 2 {
			guid2 = append(guid2, oc)
		}
	}
	if len(guid2) != 2 || guid2[0].Disposition != DispositionCanceled {
		t.Fatalf("cancel+re-add entries for guid 2 = %+v", guid2)
	}
	oc1, _ := findChanged(res1, 2)
	oc2, _ := findChanged(res2, 2)
	if oc1.Disposition != DispositionPartiallyFilled || oc2.Disposition != DispositionPartiallyFilled {
		t.Errorf("dispositions = %s vs %s", oc1.Disposition, oc2.Disposition)
	}
	if oc1.NewQuantity.Cmp(oc2.NewQuantity) != 0 {
		t.Errorf("resting remainder = %s vs %s", oc1.NewQuantity, oc2.NewQuantity)
	}
	if findDelta(res1, maker, "ETH").Cmp(findDelta(res2, maker, "ETH")) != 0 {
		t.Error("maker quote deltas must match")
	}
}

func TestAutoReduceTrimsMarginalSellsFirst(t *testing.T) {
	m := newBTCETH(t)
	apply(t, m, &OrderBatch{Wallet: maker, Adds: []Order{
		limitOrder(1, LimitSell, 100, "17.550"),
		limitOrder(2, LimitSell, 200, "17.600"),
	}})

	res := m.AutoReduce(maker, "BTC", big.NewInt(150))
	if len(res.OrdersChanged) != 1 {
		t.Fatalf("orders touched = %d, want 1", len(res.OrdersChanged))
	}
	oc := res.OrdersChanged[0]
	if oc.GUID != 2 || oc.Disposition != DispositionAutoReduced || oc.NewQuantity.Int64() != 50 {
		t.Errorf("auto-reduce = %+v", oc)
	}
	// Near-market order untouched, total reservation now exactly 150.
	if _, _, r, _ := m.RestingReservation(1); r.Int64() != 100 {
		t.Errorf("near order reservation = %s", r)
	}
	if _, _, r, _ := m.RestingReservation(2); r.Int64() != 50 {
		t.Errorf("far order reservation = %s", r)
	}
	if len(res.ConsumptionChanges) != 1 || res.ConsumptionChanges[0].Delta.Int64() != -150 {
		t.Errorf("consumption delta = %+v", res.ConsumptionChanges)
	}
}

func TestAutoReduceRemovesZeroedOrders(t *testing.T) {
	m := newBTCETH(t)
	apply(t, m, &OrderBatch{Wallet: maker, Adds: []Order{
		limitOrder(1, LimitSell, 100, "17.550"),
		limitOrder(2, LimitSell, 200, "17.600"),
	}})

	res := m.AutoReduce(maker, "BTC", big.NewInt(40))
	if len(res.OrdersChanged) != 2 {
		t.Fatalf("orders touched = %d, want 2", len(res.OrdersChanged))
	}
	if oc, _ := findChanged(res, 1); oc.NewQuantity.Int64() != 40 {
		t.Errorf("near order clamps to the budget: %+v", oc)
	}
	oc, _ := findChanged(res, 2)
	if oc.Disposition != DispositionAutoReduced || oc.NewQuantity.Sign() != 0 {
		t.Errorf("far order zeroes out: %+v", oc)
	}
	// A zeroed order leaves the book entirely.
	if _, _, _, ok := m.RestingReservation(2); ok {
		t.Error("zeroed order should be gone")
	}
}

func TestAutoReduceBuySideUsesQuoteBudget(t *testing.T) {
	m := newBTCETH(t)
	apply(t, m, &OrderBatch{Wallet: maker, Adds: []Order{
		limitOrder(1, LimitBuy, 100, "17.500"),
		limitOrder(2, LimitBuy, 100, "17.450"),
	}})

	// Budget covers the best bid only; the lower bid is the marginal one.
	_, _, bestReserved, _ := m.RestingReservation(1)
	res := m.AutoReduce(maker, "ETH", bestReserved)
	if len(res.OrdersChanged) != 1 {
		t.Fatalf("orders touched = %d, want 1", len(res.OrdersChanged))
	}
	oc := res.OrdersChanged[0]
	if oc.GUID != 2 || oc.NewQuantity.Sign() != 0 {
		t.Errorf("marginal bid should zero out: %+v", oc)
	}
	if _, _, r, _ := m.RestingReservation(1); r.Cmp(bestReserved) != 0 {
		t.Error("best bid must keep its full reservation")
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	m := newBTCETH(t)
	apply(t, m, &OrderBatch{Wallet: maker, Adds: []Order{
		limitOrder(1, LimitBuy, 100, "17.500"),
		limitOrder(2, LimitBuy, 50, "17.450"),
		limitOrder(3, LimitSell, 80, "17.550"),
		limitOrder(4, LimitSell, 120, "17.700"),
	}})
	// Trade a little so the reference price has drifted.
	apply(t, m, &OrderBatch{Wallet: taker, Adds: []Order{
		marketOrder(5, MarketBuy, 30),
	}})

	cp := m.ToCheckpoint()
	restored, err := FromCheckpoint(cp)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cp, restored.ToCheckpoint()) {
		t.Error("checkpoint round trip diverged")
	}
	if !restored.BestBid().Equal(m.BestBid()) || !restored.BestOffer().Equal(m.BestOffer()) {
		t.Error("best bid/offer diverged")
	}

	// Indexes were rebuilt: cancel through the restored market works.
	res, err := restored.ApplyOrderBatch(&OrderBatch{Wallet: maker, Cancels: []uint64{1}}, FeeRates{})
	if err != nil {
		t.Fatal(err)
	}
	if oc, ok := findChanged(res, 1); !ok || oc.Disposition != DispositionCanceled {
		t.Errorf("cancel on restored market = %v", oc)
	}
}

func TestCheckpointRoundTripEmptyAndOneSided(t *testing.T) {
	empty := newBTCETH(t)
	cp := empty.ToCheckpoint()
	if len(cp.Levels) != 0 {
		t.Errorf("empty book should serialize no levels, got %d", len(cp.Levels))
	}
	restored, err := FromCheckpoint(cp)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cp, restored.ToCheckpoint()) {
		t.Error("empty round trip diverged")
	}

	buyOnly := newBTCETH(t)
	apply(t, buyOnly, &OrderBatch{Wallet: maker, Adds: []Order{
		limitOrder(1, LimitBuy, 100, "17.500"),
	}})
	cp = buyOnly.ToCheckpoint()
	restored, err = FromCheckpoint(cp)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cp, restored.ToCheckpoint()) {
		t.Error("buy-only round trip diverged")
	}
}

func TestGUIDCollisionIsFatal(t *testing.T) {
	m := newBTCETH(t)
	apply(t, m, &OrderBatch{Wallet: maker, Adds: []Order{
		limitOrder(1, LimitBuy, 100, "17.500"),
	}})
	_, err := m.ApplyOrderBatch(&OrderBatch{Wallet: taker, Adds: []Order{
		limitOrder(1, LimitBuy, 100, "17.450"),
	}}, FeeRates{})
	if err == nil {
		t.Fatal("resting guid reuse must halt processing")
	}
}

func TestLevelBufferFullRejectsAdd(t *testing.T) {
	m, err := New(Config{
		ID:                btcEth,
		TickSize:          decimal.RequireFromString("0.050"),
		MarketPrice:       decimal.RequireFromString("17.525"),
		MaxLevels:         100,
		MaxOrdersPerLevel: 2,
		BaseDecimals:      8,
		QuoteDecimals:     18,
	})
	if err != nil {
		t.Fatal(err)
	}
	apply(t, m, &OrderBatch{Wallet: maker, Adds: []Order{
		limitOrder(1, LimitSell, 10, "17.550"),
		limitOrder(2, LimitSell, 10, "17.550"),
	}})
	res := apply(t, m, &OrderBatch{Wallet: maker, Adds: []Order{
		limitOrder(3, LimitSell, 10, "17.550"),
	}})
	if oc, _ := findChanged(res, 3); oc.Disposition != DispositionRejected {
		t.Errorf("disposition = %s, want Rejected on a full level", oc.Disposition)
	}
}

func TestMidpointDriftDownOnSells(t *testing.T) {
	m := newBTCETH(t)
	apply(t, m, &OrderBatch{Wallet: maker, Adds: []Order{
		limitOrder(1, LimitBuy, 100, "17.500"),
		limitOrder(2, LimitBuy, 100, "17.400"),
	}})

	apply(t, m, &OrderBatch{Wallet: taker, Adds: []Order{
		marketOrder(3, MarketSell, 150),
	}})
	// Last trade hit the 17.400 tick; the midpoint sits half a tick below.
	if !m.MarketPrice.Equal(decimal.RequireFromString("17.375")) {
		t.Errorf("market price = %s, want 17.375", m.MarketPrice)
	}
	if !m.BestBid().Equal(decimal.RequireFromString("17.400")) {
		t.Errorf("best bid = %s, want 17.400 (partially consumed)", m.BestBid())
	}
	// Offer side is empty, so the best offer is synthetic against the
	// drifted reference price.
	if !m.BestOffer().Equal(decimal.RequireFromString("17.400")) {
		t.Errorf("best offer = %s, want synthetic 17.400", m.BestOffer())
	}
}

func TestZeroAmountAddRejected(t *testing.T) {
	m := newBTCETH(t)
	res := apply(t, m, &OrderBatch{Wallet: maker, Adds: []Order{
		limitOrder(1, LimitSell, 0, "17.550"),
	}})
	oc, ok := findChanged(res, 1)
	if !ok || oc.Disposition != DispositionRejected {
		t.Errorf("zero-amount add = %+v", oc)
	}
	if _, _, _, resting := m.RestingReservation(1); resting {
		t.Error("zero-amount order must not rest")
	}
	if len(res.ConsumptionChanges) != 0 {
		t.Errorf("rejected add reserved collateral: %+v", res.ConsumptionChanges)
	}
}

func TestZeroAmountChangeRejected(t *testing.T) {
	m := newBTCETH(t)
	apply(t, m, &OrderBatch{Wallet: maker, Adds: []Order{
		limitOrder(1, LimitSell, 100, "17.550"),
	}})

	res := apply(t, m, &OrderBatch{Wallet: maker, Changes: []OrderChange{{
		GUID:   1,
		Amount: new(big.Int),
		Price:  decimal.RequireFromString("17.550"),
	}}})
	if len(res.OrdersChangeRejected) != 1 || res.OrdersChangeRejected[0].Reason != ReasonInvalidAmount {
		t.Fatalf("zero-amount change = %+v", res.OrdersChangeRejected)
	}
	// The resting order is untouched.
	if _, _, reserved, ok := m.RestingReservation(1); !ok || reserved.Int64() != 100 {
		t.Errorf("reservation = %v resting=%v, want 100", reserved, ok)
	}
}

func TestAutoReduceReportsRemovedOrderGUID(t *testing.T) {
	m := newBTCETH(t)
	apply(t, m, &OrderBatch{Wallet: maker, Adds: []Order{
		limitOrder(7, LimitSell, 100, "17.550"),
	}})

	// No budget at all: the order is removed outright and the change
	// entry must still carry its GUID.
	res := m.AutoReduce(maker, "BTC", new(big.Int))
	if len(res.OrdersChanged) != 1 {
		t.Fatalf("orders touched = %d, want 1", len(res.OrdersChanged))
	}
	oc := res.OrdersChanged[0]
	if oc.GUID != 7 || oc.Disposition != DispositionAutoReduced || oc.NewQuantity.Sign() != 0 {
		t.Errorf("auto-reduce = %+v, want guid 7 reduced to zero", oc)
	}
}
