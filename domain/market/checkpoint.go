package market

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Checkpoint is the persisted form of one market. Only populated levels
// are carried; order queues are flattened in FIFO order rather than as a
// raw buffer dump, so restoring is robust to capacity changes.
type Checkpoint struct {
	ID                MarketID
	TickSize          decimal.Decimal
	MarketPrice       decimal.Decimal
	LevelZeroPrice    decimal.Decimal
	BestBid           decimal.Decimal
	BestOffer         decimal.Decimal
	BestBidIx         int
	BestOfferIx       int
	MinBidIx          int
	MaxOfferIx        int
	MaxLevels         int
	MaxOrdersPerLevel int
	BaseDecimals      int32
	QuoteDecimals     int32
	Levels            []LevelCheckpoint
}

type LevelCheckpoint struct {
	Ix     int
	Side   Side
	Orders []OrderCheckpoint
}

type OrderCheckpoint struct {
	GUID             uint64
	Wallet           Wallet
	Quantity         *big.Int
	OriginalQuantity *big.Int
	FeeRate          FeeRate
}

// ToCheckpoint captures the market including every populated level.
func (m *Market) ToCheckpoint() *Checkpoint {
	cp := &Checkpoint{
		ID:                m.ID,
		TickSize:          m.TickSize,
		MarketPrice:       m.MarketPrice,
		LevelZeroPrice:    m.levels[0].Price,
		BestBid:           m.bestBid,
		BestOffer:         m.bestOffer,
		BestBidIx:         m.bestBidIx,
		BestOfferIx:       m.bestOfferIx,
		MinBidIx:          m.minBidIx,
		MaxOfferIx:        m.maxOfferIx,
		MaxLevels:         m.MaxLevels,
		MaxOrdersPerLevel: m.MaxOrdersPerLevel,
		BaseDecimals:      m.BaseDecimals,
		QuoteDecimals:     m.QuoteDecimals,
	}
	for i := range m.levels {
		lvl := &m.levels[i]
		if lvl.Empty() {
			continue
		}
		lc := LevelCheckpoint{Ix: lvl.Ix, Side: lvl.Side}
		lvl.walk(func(o *LevelOrder) {
			lc.Orders = append(lc.Orders, OrderCheckpoint{
				GUID:             o.GUID,
				Wallet:           o.Wallet,
				Quantity:         new(big.Int).Set(o.Quantity),
				OriginalQuantity: new(big.Int).Set(o.OriginalQuantity),
				FeeRate:          o.FeeRate,
			})
		})
		cp.Levels = append(cp.Levels, lc)
	}
	return cp
}

// FromCheckpoint rebuilds a market, re-deriving the GUID index and the
// per-wallet indexes by re-enqueueing every restored order.
func FromCheckpoint(cp *Checkpoint) (*Market, error) {
	if cp.TickSize.Sign() <= 0 || cp.MaxLevels < 2 || cp.MaxOrdersPerLevel < 1 {
		return nil, fmt.Errorf("market %s: corrupt checkpoint header", cp.ID)
	}

	m := &Market{
		ID:                 cp.ID,
		TickSize:           cp.TickSize,
		MarketPrice:        cp.MarketPrice,
		BaseDecimals:       cp.BaseDecimals,
		QuoteDecimals:      cp.QuoteDecimals,
		MaxLevels:          cp.MaxLevels,
		MaxOrdersPerLevel:  cp.MaxOrdersPerLevel,
		halfTick:           cp.TickSize.Mul(decimal.New(5, -1)),
		levels:             make([]OrderBookLevel, cp.MaxLevels),
		bestBid:            cp.BestBid,
		bestOffer:          cp.BestOffer,
		bestBidIx:          cp.BestBidIx,
		bestOfferIx:        cp.BestOfferIx,
		minBidIx:           cp.MinBidIx,
		maxOfferIx:         cp.MaxOfferIx,
		ordersByGUID:       make(map[uint64]*LevelOrder),
		buyOrdersByWallet:  make(map[Wallet][]*LevelOrder),
		sellOrdersByWallet: make(map[Wallet][]*LevelOrder),
	}
	for i := range m.levels {
		m.levels[i].init(i, cp.LevelZeroPrice.Add(cp.TickSize.Mul(decimal.NewFromInt(int64(i)))), cp.MaxOrdersPerLevel)
	}

	for _, lc := range cp.Levels {
		if lc.Ix < 0 || lc.Ix >= cp.MaxLevels {
			return nil, fmt.Errorf("market %s: checkpoint level %d out of range", cp.ID, lc.Ix)
		}
		if len(lc.Orders) > cp.MaxOrdersPerLevel {
			return nil, fmt.Errorf("market %s: checkpoint level %d overflows capacity", cp.ID, lc.Ix)
		}
		lvl := &m.levels[lc.Ix]
		lvl.Side = lc.Side
		for _, oc := range lc.Orders {
			if _, dup := m.ordersByGUID[oc.GUID]; dup {
				return nil, fmt.Errorf("market %s: duplicate guid %d in checkpoint", cp.ID, oc.GUID)
			}
			lo := acquireLevelOrder()
			lo.GUID = oc.GUID
			lo.Wallet = oc.Wallet
			lo.Quantity = new(big.Int).Set(oc.Quantity)
			lo.OriginalQuantity = new(big.Int).Set(oc.OriginalQuantity)
			lo.FeeRate = oc.FeeRate
			if !lvl.addOrder(lo) {
				releaseLevelOrder(lo)
				return nil, fmt.Errorf("market %s: checkpoint level %d overflows capacity", cp.ID, lc.Ix)
			}
			m.registerOrder(lo, lc.Side)
		}
	}
	return m, nil
}
