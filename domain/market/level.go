package market

import (
	"math/big"
	"sync"

	"github.com/shopspring/decimal"
)

// levelOrderPool recycles LevelOrder objects in the matching hot path so
// that resting, filling and canceling orders does not allocate per order.
var levelOrderPool = sync.Pool{
	New: func() any { return &LevelOrder{} },
}

func acquireLevelOrder() *LevelOrder {
	return levelOrderPool.Get().(*LevelOrder)
}

func releaseLevelOrder(o *LevelOrder) {
	*o = LevelOrder{}
	levelOrderPool.Put(o)
}

// LevelOrder is a resting order. It lives in exactly one OrderBookLevel
// slot; Quantity decreases in place on partial fills.
type LevelOrder struct {
	GUID             uint64
	Wallet           Wallet
	Quantity         *big.Int
	OriginalQuantity *big.Int
	FeeRate          FeeRate
	LevelIx          int

	slot int
}

// Execution is one fill taken from a resting counter-order.
type Execution struct {
	Counter          *LevelOrder
	Amount           *big.Int
	Price            decimal.Decimal
	CounterExhausted bool
}

// OrderBookLevel is a single price tick's FIFO queue of resting orders,
// held in a fixed-capacity circular buffer. The price never changes; the
// side is assigned by whichever orders currently rest here and can flip
// once the level drains.
type OrderBookLevel struct {
	Ix            int
	Side          Side
	Price         decimal.Decimal
	MaxOrderCount int

	// TotalQuantity == sum of Quantity over the live slot range.
	TotalQuantity *big.Int

	orders []*LevelOrder
	head   int
	tail   int
}

func (l *OrderBookLevel) init(ix int, price decimal.Decimal, maxOrderCount int) {
	l.Ix = ix
	l.Price = price
	l.MaxOrderCount = maxOrderCount
	l.TotalQuantity = new(big.Int)
}

// ring lazily allocates the slot buffer; empty levels cost nothing beyond
// the struct itself.
func (l *OrderBookLevel) ring() []*LevelOrder {
	if l.orders == nil {
		l.orders = make([]*LevelOrder, l.MaxOrderCount+1)
	}
	return l.orders
}

func (l *OrderBookLevel) Empty() bool {
	return l.head == l.tail
}

func (l *OrderBookLevel) OrderCount() int {
	if l.orders == nil {
		return 0
	}
	return (l.tail - l.head + len(l.orders)) % len(l.orders)
}

func (l *OrderBookLevel) full() bool {
	ring := l.ring()
	return (l.tail+1)%len(ring) == l.head
}

// addOrder appends o at the tail. It reports false when the buffer is
// full, which the market surfaces as a Rejected disposition rather than
// an error.
func (l *OrderBookLevel) addOrder(o *LevelOrder) bool {
	if l.full() {
		return false
	}
	ring := l.ring()
	o.LevelIx = l.Ix
	o.slot = l.tail
	ring[l.tail] = o
	l.tail = (l.tail + 1) % len(ring)
	l.TotalQuantity.Add(l.TotalQuantity, o.Quantity)
	return true
}

// fillOrder consumes resting quantity from the head of the queue, up to
// requested. A fully consumed order has its slot vacated here but stays
// registered in the market indexes until the execution is processed.
// Returns the unfilled remainder and the executions taken.
func (l *OrderBookLevel) fillOrder(requested *big.Int) (*big.Int, []Execution) {
	remaining := new(big.Int).Set(requested)
	var execs []Execution

	for remaining.Sign() > 0 && !l.Empty() {
		o := l.orders[l.head]
		if remaining.Cmp(o.Quantity) >= 0 {
			amount := new(big.Int).Set(o.Quantity)
			o.Quantity = new(big.Int)
			remaining.Sub(remaining, amount)
			l.TotalQuantity.Sub(l.TotalQuantity, amount)
			l.orders[l.head] = nil
			l.head = (l.head + 1) % len(l.orders)
			execs = append(execs, Execution{
				Counter:          o,
				Amount:           amount,
				Price:            l.Price,
				CounterExhausted: true,
			})
			continue
		}

		amount := new(big.Int).Set(remaining)
		o.Quantity.Sub(o.Quantity, amount)
		l.TotalQuantity.Sub(l.TotalQuantity, amount)
		remaining.SetInt64(0)
		execs = append(execs, Execution{
			Counter:          o,
			Amount:           amount,
			Price:            l.Price,
			CounterExhausted: false,
		})
	}

	return remaining, execs
}

// removeLevelOrder takes an arbitrary slot out of the circular buffer by
// shifting whichever side of the queue is shorter, preserving FIFO order
// of the survivors.
func (l *OrderBookLevel) removeLevelOrder(o *LevelOrder) {
	n := len(l.orders)
	ix := o.slot
	l.TotalQuantity.Sub(l.TotalQuantity, o.Quantity)

	headDist := (ix - l.head + n) % n
	last := (l.tail - 1 + n) % n
	tailDist := (last - ix + n) % n

	if headDist <= tailDist {
		for i := ix; i != l.head; i = (i - 1 + n) % n {
			prev := (i - 1 + n) % n
			l.orders[i] = l.orders[prev]
			l.orders[i].slot = i
		}
		l.orders[l.head] = nil
		l.head = (l.head + 1) % n
	} else {
		for i := ix; ; {
			next := (i + 1) % n
			if next == l.tail {
				break
			}
			l.orders[i] = l.orders[next]
			l.orders[i].slot = i
			i = next
		}
		l.tail = last
		l.orders[l.tail] = nil
	}
}

// walk visits live orders in FIFO order.
func (l *OrderBookLevel) walk(fn func(*LevelOrder)) {
	if l.orders == nil {
		return
	}
	for i := l.head; i != l.tail; i = (i + 1) % len(l.orders) {
		fn(l.orders[i])
	}
}
