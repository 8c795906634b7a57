package market

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/shopspring/decimal"

	"meridian/domain/fixedpoint"
)

// Config describes a market at creation time.
type Config struct {
	ID                MarketID
	TickSize          decimal.Decimal
	MarketPrice       decimal.Decimal
	MaxLevels         int
	MaxOrdersPerLevel int
	BaseDecimals      int32
	QuoteDecimals     int32
}

// Market is one trading pair's order book: a fixed array of price levels
// around a floating reference price, best bid/offer tracking, per-wallet
// order indexes and the matching algorithm. MarketPrice always sits
// exactly between two ticks; the level grid is priced once at creation
// and never re-priced.
type Market struct {
	ID                MarketID
	TickSize          decimal.Decimal
	MarketPrice       decimal.Decimal
	BaseDecimals      int32
	QuoteDecimals     int32
	MaxLevels         int
	MaxOrdersPerLevel int

	halfTick decimal.Decimal
	levels   []OrderBookLevel

	bestBid     decimal.Decimal
	bestOffer   decimal.Decimal
	bestBidIx   int
	bestOfferIx int

	// Populated boundaries: minBidIx is the lowest level holding a bid,
	// maxOfferIx the highest holding an offer. -1 means that side holds
	// no resting orders and the best price is the synthetic half-tick
	// value next to MarketPrice.
	minBidIx   int
	maxOfferIx int

	ordersByGUID       map[uint64]*LevelOrder
	buyOrdersByWallet  map[Wallet][]*LevelOrder
	sellOrdersByWallet map[Wallet][]*LevelOrder
}

// New allocates the level grid around the initial market price.
func New(cfg Config) (*Market, error) {
	if cfg.TickSize.Sign() <= 0 {
		return nil, fmt.Errorf("market %s: tick size must be positive", cfg.ID)
	}
	if cfg.MarketPrice.Sign() <= 0 {
		return nil, fmt.Errorf("market %s: market price must be positive", cfg.ID)
	}
	if cfg.MaxLevels < 2 {
		return nil, fmt.Errorf("market %s: need at least two levels", cfg.ID)
	}
	if cfg.MaxOrdersPerLevel < 1 {
		return nil, fmt.Errorf("market %s: need at least one order per level", cfg.ID)
	}

	half := cfg.TickSize.Mul(decimal.New(5, -1))
	marketIx := cfg.MaxLevels / 2
	levelZero := cfg.MarketPrice.Add(half).Sub(cfg.TickSize.Mul(decimal.NewFromInt(int64(marketIx))))
	if levelZero.Sign() <= 0 {
		return nil, fmt.Errorf("market %s: level grid reaches non-positive prices", cfg.ID)
	}

	m := &Market{
		ID:                 cfg.ID,
		TickSize:           cfg.TickSize,
		MarketPrice:        cfg.MarketPrice,
		BaseDecimals:       cfg.BaseDecimals,
		QuoteDecimals:      cfg.QuoteDecimals,
		MaxLevels:          cfg.MaxLevels,
		MaxOrdersPerLevel:  cfg.MaxOrdersPerLevel,
		halfTick:           half,
		levels:             make([]OrderBookLevel, cfg.MaxLevels),
		minBidIx:           -1,
		maxOfferIx:         -1,
		ordersByGUID:       make(map[uint64]*LevelOrder),
		buyOrdersByWallet:  make(map[Wallet][]*LevelOrder),
		sellOrdersByWallet: make(map[Wallet][]*LevelOrder),
	}
	for i := range m.levels {
		m.levels[i].init(i, levelZero.Add(cfg.TickSize.Mul(decimal.NewFromInt(int64(i)))), cfg.MaxOrdersPerLevel)
	}
	m.resetSyntheticBid()
	m.resetSyntheticOffer()
	return m, nil
}

func (m *Market) BestBid() decimal.Decimal   { return m.bestBid }
func (m *Market) BestOffer() decimal.Decimal { return m.bestOffer }

// ApplyOrderBatch applies one wallet's mutations in the fixed order:
// all cancels, then all changes, then all adds. Cancels run first so the
// collateral they free is visible to later entries in the same batch.
// The only error returned is a GUID collision, which is fatal.
func (m *Market) ApplyOrderBatch(b *OrderBatch, fees FeeRates) (*BatchResult, error) {
	acc := newResultBuilder()
	for _, guid := range b.Cancels {
		m.cancelOrder(b.Wallet, guid, acc)
	}
	for i := range b.Changes {
		if err := m.changeOrder(b.Wallet, &b.Changes[i], fees, acc); err != nil {
			return nil, err
		}
	}
	for i := range b.Adds {
		o := b.Adds[i]
		o.Wallet = b.Wallet
		if err := m.addOrder(&o, fees, acc); err != nil {
			return nil, err
		}
	}
	return acc.finalize(), nil
}

func (m *Market) cancelOrder(wallet Wallet, guid uint64, acc *resultBuilder) {
	o := m.ordersByGUID[guid]
	if o == nil {
		acc.rejected(guid, ReasonDoesNotExist)
		return
	}
	if o.Wallet != wallet {
		acc.rejected(guid, ReasonNotForWallet)
		return
	}
	m.removeRestingOrder(o, acc)
	acc.orderChanged(guid, DispositionCanceled, nil)
}

func (m *Market) changeOrder(wallet Wallet, ch *OrderChange, fees FeeRates, acc *resultBuilder) error {
	o := m.ordersByGUID[ch.GUID]
	if o == nil {
		acc.rejected(ch.GUID, ReasonDoesNotExist)
		return nil
	}
	if o.Wallet != wallet {
		acc.rejected(ch.GUID, ReasonNotForWallet)
		return nil
	}
	if ch.Amount == nil || ch.Amount.Sign() <= 0 {
		// A zero-quantity order must never rest; shrinking to nothing is
		// a cancel, which has its own request form.
		acc.rejected(ch.GUID, ReasonInvalidAmount)
		return nil
	}

	lvl := &m.levels[o.LevelIx]
	if ch.Price.Equal(lvl.Price) {
		// In-place quantity adjustment at the same tick.
		delta := new(big.Int).Sub(ch.Amount, o.Quantity)
		if delta.Sign() != 0 {
			lvl.TotalQuantity.Add(lvl.TotalQuantity, delta)
			o.Quantity = new(big.Int).Set(ch.Amount)
			o.OriginalQuantity = new(big.Int).Set(ch.Amount)
			if lvl.Side == SideSell {
				acc.consume(wallet, m.ID.Base, delta)
			} else {
				acc.consume(wallet, m.ID.Quote, m.notional(delta, lvl.Price))
			}
		}
		acc.orderChanged(ch.GUID, DispositionAccepted, new(big.Int).Set(ch.Amount))
		return nil
	}

	// Price move: remove and logically re-add, which may cross the
	// market. The freed reservation and the new resting footprint merge
	// in the accumulator, so only the resting remainder is counted.
	otype := LimitSell
	if lvl.Side == SideBuy {
		otype = LimitBuy
	}
	m.removeRestingOrder(o, acc)
	add := Order{
		GUID:   ch.GUID,
		Type:   otype,
		Amount: new(big.Int).Set(ch.Amount),
		Price:  ch.Price,
		Wallet: wallet,
	}
	return m.addOrder(&add, fees, acc)
}

func (m *Market) addOrder(o *Order, fees FeeRates, acc *resultBuilder) error {
	if _, exists := m.ordersByGUID[o.GUID]; exists {
		return fmt.Errorf("market %s: guid %d already resting", m.ID, o.GUID)
	}
	if o.Amount == nil || o.Amount.Sign() <= 0 {
		acc.orderChanged(o.GUID, DispositionRejected, nil)
		return nil
	}

	if o.Type.IsMarket() {
		filled, remaining := m.executeMarketOrder(o, -1, acc)
		switch {
		case filled.Sign() == 0:
			acc.orderChanged(o.GUID, DispositionRejected, nil)
		case remaining.Sign() == 0:
			acc.orderChanged(o.GUID, DispositionFilled, new(big.Int))
		default:
			acc.orderChanged(o.GUID, DispositionPartiallyFilled, remaining)
		}
		return nil
	}

	ix, ok := m.levelIndex(o.Price)
	if !ok {
		acc.orderChanged(o.GUID, DispositionRejected, nil)
		return nil
	}

	crossing := false
	if o.Type.IsBuy() {
		crossing = o.Price.Cmp(m.bestOffer) >= 0
	} else {
		crossing = o.Price.Cmp(m.bestBid) <= 0
	}

	filled := new(big.Int)
	amount := o.Amount
	if crossing {
		// Execute as a market order bounded by the order's own level so
		// it never trades through its limit.
		filled, amount = m.executeMarketOrder(o, ix, acc)
	}
	if amount.Sign() == 0 {
		acc.orderChanged(o.GUID, DispositionFilled, new(big.Int))
		return nil
	}

	rested := m.placeRestingOrder(o, ix, amount, fees.Maker, acc)
	switch {
	case rested && filled.Sign() > 0:
		acc.orderChanged(o.GUID, DispositionPartiallyFilled, new(big.Int).Set(amount))
	case rested:
		acc.orderChanged(o.GUID, DispositionAccepted, nil)
	case filled.Sign() > 0:
		acc.orderChanged(o.GUID, DispositionPartiallyFilled, new(big.Int))
	default:
		acc.orderChanged(o.GUID, DispositionRejected, nil)
	}
	return nil
}

// executeMarketOrder walks price levels outward from the best opposite
// price, filling until the amount is exhausted, liquidity runs out, or
// the stop level (the crossing limit order's own tick) is passed.
// Returns the filled and remaining amounts.
func (m *Market) executeMarketOrder(o *Order, stopIx int, acc *resultBuilder) (*big.Int, *big.Int) {
	remaining := new(big.Int).Set(o.Amount)
	lastIx := -1

	if o.Type.IsBuy() {
		if m.maxOfferIx >= 0 {
			for ix := m.bestOfferIx; ix <= m.maxOfferIx && remaining.Sign() > 0; ix++ {
				if stopIx >= 0 && ix > stopIx {
					break
				}
				lvl := &m.levels[ix]
				if lvl.Side != SideSell || lvl.Empty() {
					continue
				}
				var execs []Execution
				remaining, execs = lvl.fillOrder(remaining)
				lastIx = ix
				for i := range execs {
					m.processExecution(o, &execs[i], acc)
				}
				if lvl.Empty() {
					lvl.Side = SideNone
				}
			}
		}
		if lastIx >= 0 {
			// The reference price drifts to the midpoint between the
			// last traded tick and the tick beyond it.
			m.MarketPrice = m.levels[lastIx].Price.Add(m.halfTick)
			m.rebuildOfferSide(lastIx)
			if m.minBidIx < 0 {
				m.resetSyntheticBid()
			}
		}
	} else {
		if m.minBidIx >= 0 {
			for ix := m.bestBidIx; ix >= m.minBidIx && remaining.Sign() > 0; ix-- {
				if stopIx >= 0 && ix < stopIx {
					break
				}
				lvl := &m.levels[ix]
				if lvl.Side != SideBuy || lvl.Empty() {
					continue
				}
				var execs []Execution
				remaining, execs = lvl.fillOrder(remaining)
				lastIx = ix
				for i := range execs {
					m.processExecution(o, &execs[i], acc)
				}
				if lvl.Empty() {
					lvl.Side = SideNone
				}
			}
		}
		if lastIx >= 0 {
			m.MarketPrice = m.levels[lastIx].Price.Sub(m.halfTick)
			m.rebuildBidSide(lastIx)
			if m.maxOfferIx < 0 {
				m.resetSyntheticOffer()
			}
		}
	}

	filled := new(big.Int).Sub(o.Amount, remaining)
	return filled, remaining
}

// processExecution turns one fill into a trade, the counter-order's
// disposition, four balance deltas and the maker's reservation release.
// Exhausted counter-orders leave the indexes here; their level slot was
// already vacated by fillOrder.
func (m *Market) processExecution(taker *Order, exec *Execution, acc *resultBuilder) {
	counter := exec.Counter
	amount := exec.Amount
	n := m.notional(amount, exec.Price)

	if taker.Type.IsBuy() {
		acc.trade(Trade{BuyGUID: taker.GUID, SellGUID: counter.GUID, Amount: amount, Price: exec.Price})
		acc.balance(taker.Wallet, m.ID.Quote, neg(n))
		acc.balance(taker.Wallet, m.ID.Base, amount)
		acc.balance(counter.Wallet, m.ID.Quote, n)
		acc.balance(counter.Wallet, m.ID.Base, neg(amount))
		acc.consume(counter.Wallet, m.ID.Base, neg(amount))
	} else {
		acc.trade(Trade{BuyGUID: counter.GUID, SellGUID: taker.GUID, Amount: amount, Price: exec.Price})
		acc.balance(counter.Wallet, m.ID.Quote, neg(n))
		acc.balance(counter.Wallet, m.ID.Base, amount)
		acc.balance(taker.Wallet, m.ID.Quote, n)
		acc.balance(taker.Wallet, m.ID.Base, neg(amount))
		acc.consume(counter.Wallet, m.ID.Quote, neg(n))
	}

	if exec.CounterExhausted {
		acc.orderChanged(counter.GUID, DispositionFilled, new(big.Int))
		side := SideSell
		if !taker.Type.IsBuy() {
			side = SideBuy
		}
		m.unregisterOrder(counter, side)
		releaseLevelOrder(counter)
	} else {
		acc.orderChanged(counter.GUID, DispositionPartiallyFilled, new(big.Int).Set(counter.Quantity))
	}
}

func (m *Market) placeRestingOrder(o *Order, ix int, amount *big.Int, makerFee FeeRate, acc *resultBuilder) bool {
	lvl := &m.levels[ix]
	side := SideSell
	if o.Type.IsBuy() {
		side = SideBuy
	}
	if !lvl.Empty() && lvl.Side != side {
		return false
	}

	lo := acquireLevelOrder()
	lo.GUID = o.GUID
	lo.Wallet = o.Wallet
	lo.Quantity = new(big.Int).Set(amount)
	lo.OriginalQuantity = new(big.Int).Set(amount)
	lo.FeeRate = makerFee
	if !lvl.addOrder(lo) {
		releaseLevelOrder(lo)
		return false
	}
	lvl.Side = side
	m.registerOrder(lo, side)

	if side == SideSell {
		acc.consume(o.Wallet, m.ID.Base, amount)
	} else {
		acc.consume(o.Wallet, m.ID.Quote, m.notional(amount, lvl.Price))
	}

	if side == SideBuy {
		if m.minBidIx < 0 {
			m.minBidIx = ix
			m.bestBidIx = ix
			m.bestBid = lvl.Price
		} else {
			if ix > m.bestBidIx {
				m.bestBidIx = ix
				m.bestBid = lvl.Price
			}
			if ix < m.minBidIx {
				m.minBidIx = ix
			}
		}
	} else {
		if m.maxOfferIx < 0 {
			m.maxOfferIx = ix
			m.bestOfferIx = ix
			m.bestOffer = lvl.Price
		} else {
			if ix < m.bestOfferIx {
				m.bestOfferIx = ix
				m.bestOffer = lvl.Price
			}
			if ix > m.maxOfferIx {
				m.maxOfferIx = ix
			}
		}
	}
	return true
}

// removeRestingOrder takes a resting order out of its level and the
// indexes, releasing its reservation into the accumulator.
func (m *Market) removeRestingOrder(o *LevelOrder, acc *resultBuilder) {
	lvl := &m.levels[o.LevelIx]
	side := lvl.Side
	if side == SideSell {
		acc.consume(o.Wallet, m.ID.Base, neg(o.Quantity))
	} else {
		acc.consume(o.Wallet, m.ID.Quote, neg(m.notional(o.Quantity, lvl.Price)))
	}
	lvl.removeLevelOrder(o)
	m.unregisterOrder(o, side)
	if lvl.Empty() {
		lvl.Side = SideNone
		m.onLevelEmptied(lvl.Ix, side)
	}
	releaseLevelOrder(o)
}

// AutoReduce shrinks the wallet's resting orders on the side reserving
// asset until their total reservation fits within limit. Orders nearest
// the market keep their reservation; the marginal tail is trimmed, FIFO
// arrivals within a level trimmed last-in first. Orders clamped to zero
// leave the book with disposition AutoReduced.
func (m *Market) AutoReduce(wallet Wallet, asset Asset, limit *big.Int) *BatchResult {
	acc := newResultBuilder()
	budget := new(big.Int).Set(limit)
	if budget.Sign() < 0 {
		budget.SetInt64(0)
	}

	var orders []*LevelOrder
	switch asset {
	case m.ID.Base:
		orders = append(orders, m.sellOrdersByWallet[wallet]...)
		sort.SliceStable(orders, func(i, j int) bool { return orders[i].LevelIx < orders[j].LevelIx })
	case m.ID.Quote:
		orders = append(orders, m.buyOrdersByWallet[wallet]...)
		sort.SliceStable(orders, func(i, j int) bool { return orders[i].LevelIx > orders[j].LevelIx })
	default:
		return acc.finalize()
	}

	for _, o := range orders {
		lvl := &m.levels[o.LevelIx]
		var reserved *big.Int
		if asset == m.ID.Base {
			reserved = new(big.Int).Set(o.Quantity)
		} else {
			reserved = m.notional(o.Quantity, lvl.Price)
		}
		if budget.Cmp(reserved) >= 0 {
			budget.Sub(budget, reserved)
			continue
		}

		var newQty *big.Int
		if asset == m.ID.Base {
			newQty = new(big.Int).Set(budget)
		} else {
			newQty = fixedpoint.QuantityAtNotional(budget, lvl.Price, m.BaseDecimals, m.QuoteDecimals)
		}
		if newQty.Sign() == 0 {
			// removeRestingOrder releases o back to the pool; read the
			// GUID first.
			guid := o.GUID
			m.removeRestingOrder(o, acc)
			acc.orderChanged(guid, DispositionAutoReduced, new(big.Int))
			continue
		}

		delta := new(big.Int).Sub(o.Quantity, newQty)
		lvl.TotalQuantity.Sub(lvl.TotalQuantity, delta)
		o.Quantity = newQty
		var kept *big.Int
		if asset == m.ID.Base {
			kept = new(big.Int).Set(newQty)
		} else {
			kept = m.notional(newQty, lvl.Price)
		}
		acc.consume(wallet, asset, new(big.Int).Sub(kept, reserved))
		acc.orderChanged(o.GUID, DispositionAutoReduced, new(big.Int).Set(newQty))
		budget.Sub(budget, kept)
	}
	return acc.finalize()
}

// QuoteRequirement estimates the quote-asset requirement to accept a buy
// order: spend at book prices for the portion that would cross, plus a
// resting reservation at the limit price for the remainder. Market buys
// require only the spend of the fillable portion.
func (m *Market) QuoteRequirement(o *Order) *big.Int {
	req := new(big.Int)
	remaining := new(big.Int).Set(o.Amount)
	stopIx := -1
	if !o.Type.IsMarket() {
		ix, ok := m.levelIndex(o.Price)
		if !ok {
			return req
		}
		stopIx = ix
		if o.Price.Cmp(m.bestOffer) < 0 {
			return m.notional(o.Amount, o.Price)
		}
	}
	if m.maxOfferIx >= 0 {
		for ix := m.bestOfferIx; ix <= m.maxOfferIx && remaining.Sign() > 0; ix++ {
			if stopIx >= 0 && ix > stopIx {
				break
			}
			lvl := &m.levels[ix]
			if lvl.Side != SideSell || lvl.Empty() {
				continue
			}
			take := remaining
			if lvl.TotalQuantity.Cmp(remaining) < 0 {
				take = lvl.TotalQuantity
			}
			req.Add(req, m.notional(take, lvl.Price))
			remaining = new(big.Int).Sub(remaining, take)
		}
	}
	if !o.Type.IsMarket() && remaining.Sign() > 0 {
		req.Add(req, m.notional(remaining, o.Price))
	}
	return req
}

// BaseRequirement estimates the base-asset requirement to accept a sell
// order. A limit sell spends or reserves its full amount; a market sell
// spends only what the bid side can absorb, since the unfillable
// remainder is rejected without touching the book.
func (m *Market) BaseRequirement(o *Order) *big.Int {
	if !o.Type.IsMarket() {
		return new(big.Int).Set(o.Amount)
	}
	fillable := new(big.Int)
	if m.minBidIx >= 0 {
		for ix := m.bestBidIx; ix >= m.minBidIx; ix-- {
			lvl := &m.levels[ix]
			if lvl.Side != SideBuy || lvl.Empty() {
				continue
			}
			fillable.Add(fillable, lvl.TotalQuantity)
			if fillable.Cmp(o.Amount) >= 0 {
				return new(big.Int).Set(o.Amount)
			}
		}
	}
	return fillable
}

// RestingReservation reports the asset and amount currently reserved by
// a resting order.
func (m *Market) RestingReservation(guid uint64) (Wallet, Asset, *big.Int, bool) {
	o := m.ordersByGUID[guid]
	if o == nil {
		return 0, "", nil, false
	}
	lvl := &m.levels[o.LevelIx]
	if lvl.Side == SideSell {
		return o.Wallet, m.ID.Base, new(big.Int).Set(o.Quantity), true
	}
	return o.Wallet, m.ID.Quote, m.notional(o.Quantity, lvl.Price), true
}

// ---- index and boundary maintenance ----

func (m *Market) registerOrder(o *LevelOrder, side Side) {
	m.ordersByGUID[o.GUID] = o
	idx := m.walletIndex(side)
	idx[o.Wallet] = append(idx[o.Wallet], o)
}

func (m *Market) unregisterOrder(o *LevelOrder, side Side) {
	delete(m.ordersByGUID, o.GUID)
	idx := m.walletIndex(side)
	list := idx[o.Wallet]
	for i, e := range list {
		if e == o {
			idx[o.Wallet] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(idx[o.Wallet]) == 0 {
		delete(idx, o.Wallet)
	}
}

func (m *Market) walletIndex(side Side) map[Wallet][]*LevelOrder {
	if side == SideBuy {
		return m.buyOrdersByWallet
	}
	return m.sellOrdersByWallet
}

func (m *Market) onLevelEmptied(ix int, side Side) {
	switch side {
	case SideBuy:
		if ix == m.bestBidIx {
			j, ok := m.nextPopulatedBid(ix - 1)
			if !ok {
				m.minBidIx = -1
				m.resetSyntheticBid()
				return
			}
			m.bestBidIx = j
			m.bestBid = m.levels[j].Price
		}
		if ix == m.minBidIx {
			for i := ix + 1; i <= m.bestBidIx; i++ {
				if m.levels[i].Side == SideBuy && !m.levels[i].Empty() {
					m.minBidIx = i
					break
				}
			}
		}
	case SideSell:
		if ix == m.bestOfferIx {
			j, ok := m.nextPopulatedAsk(ix + 1)
			if !ok {
				m.maxOfferIx = -1
				m.resetSyntheticOffer()
				return
			}
			m.bestOfferIx = j
			m.bestOffer = m.levels[j].Price
		}
		if ix == m.maxOfferIx {
			for i := ix - 1; i >= m.bestOfferIx; i-- {
				if m.levels[i].Side == SideSell && !m.levels[i].Empty() {
					m.maxOfferIx = i
					break
				}
			}
		}
	}
}

// rebuildOfferSide re-derives bestOffer after a buy consumed ask levels
// up to lastIx.
func (m *Market) rebuildOfferSide(lastIx int) {
	j, ok := m.nextPopulatedAsk(lastIx)
	if !ok {
		m.maxOfferIx = -1
		m.resetSyntheticOffer()
		return
	}
	m.bestOfferIx = j
	m.bestOffer = m.levels[j].Price
}

// rebuildBidSide re-derives bestBid after a sell consumed bid levels
// down to lastIx.
func (m *Market) rebuildBidSide(lastIx int) {
	j, ok := m.nextPopulatedBid(lastIx)
	if !ok {
		m.minBidIx = -1
		m.resetSyntheticBid()
		return
	}
	m.bestBidIx = j
	m.bestBid = m.levels[j].Price
}

func (m *Market) nextPopulatedBid(from int) (int, bool) {
	if m.minBidIx < 0 {
		return 0, false
	}
	for i := from; i >= m.minBidIx; i-- {
		if m.levels[i].Side == SideBuy && !m.levels[i].Empty() {
			return i, true
		}
	}
	return 0, false
}

func (m *Market) nextPopulatedAsk(from int) (int, bool) {
	if m.maxOfferIx < 0 {
		return 0, false
	}
	for i := from; i <= m.maxOfferIx; i++ {
		if i < 0 {
			continue
		}
		if m.levels[i].Side == SideSell && !m.levels[i].Empty() {
			return i, true
		}
	}
	return 0, false
}

func (m *Market) resetSyntheticBid() {
	m.bestBid = m.MarketPrice.Sub(m.halfTick)
	m.bestBidIx = m.clampLevelIndex(m.bestBid)
}

func (m *Market) resetSyntheticOffer() {
	m.bestOffer = m.MarketPrice.Add(m.halfTick)
	m.bestOfferIx = m.clampLevelIndex(m.bestOffer)
}

// levelIndex maps an on-tick price to its level index.
func (m *Market) levelIndex(price decimal.Decimal) (int, bool) {
	diff := price.Sub(m.levels[0].Price)
	if diff.Sign() < 0 {
		return 0, false
	}
	q, exact := decQuo(diff, m.TickSize)
	if !exact || !q.IsInt64() {
		return 0, false
	}
	ix := int(q.Int64())
	if ix >= m.MaxLevels {
		return 0, false
	}
	return ix, true
}

func (m *Market) clampLevelIndex(price decimal.Decimal) int {
	diff := price.Sub(m.levels[0].Price)
	if diff.Sign() < 0 {
		return 0
	}
	q, _ := decQuo(diff, m.TickSize)
	if !q.IsInt64() || q.Int64() >= int64(m.MaxLevels) {
		return m.MaxLevels - 1
	}
	return int(q.Int64())
}

func (m *Market) notional(amount *big.Int, price decimal.Decimal) *big.Int {
	return fixedpoint.Notional(amount, price, m.BaseDecimals, m.QuoteDecimals)
}

func neg(v *big.Int) *big.Int {
	return new(big.Int).Neg(v)
}

// decQuo divides two decimals over a common exponent, reporting whether
// the division was exact.
func decQuo(a, b decimal.Decimal) (*big.Int, bool) {
	e := a.Exponent()
	if b.Exponent() < e {
		e = b.Exponent()
	}
	ai := new(big.Int).Mul(a.Coefficient(), fixedpoint.Pow10(a.Exponent()-e))
	bi := new(big.Int).Mul(b.Coefficient(), fixedpoint.Pow10(b.Exponent()-e))
	if bi.Sign() == 0 {
		return nil, false
	}
	q, r := new(big.Int).QuoRem(ai, bi, new(big.Int))
	return q, r.Sign() == 0
}
