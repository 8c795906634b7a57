package market

import (
	"fmt"
	"math/big"
	"strings"
)

// Asset is an interned symbol identifier such as "BTC". Equality by value.
type Asset string

// Wallet is the sequencer-internal numeric wallet identifier. It is
// distinct from any on-chain address.
type Wallet uint64

// MarketID identifies one trading pair. Immutable once created.
type MarketID struct {
	Base  Asset
	Quote Asset
}

func (id MarketID) String() string {
	return string(id.Base) + "/" + string(id.Quote)
}

// ParseMarketID parses the "BASE/QUOTE" form.
func ParseMarketID(s string) (MarketID, error) {
	base, quote, ok := strings.Cut(s, "/")
	if !ok || base == "" || quote == "" {
		return MarketID{}, fmt.Errorf("malformed market id %q", s)
	}
	return MarketID{Base: Asset(base), Quote: Asset(quote)}, nil
}

// FeeRate is a fixed-point fraction of notional, scaled by FeeRateScale
// (1_000_000 == 100%, so 100 == one basis point).
type FeeRate int64

const FeeRateScale = 1_000_000

// Fee returns the fee charged on a notional value, truncated toward zero.
func (f FeeRate) Fee(notional *big.Int) *big.Int {
	n := new(big.Int).Mul(notional, big.NewInt(int64(f)))
	return n.Quo(n, big.NewInt(FeeRateScale))
}

// FeeRates holds the two globally configured rates.
type FeeRates struct {
	Maker FeeRate
	Taker FeeRate
}
