// Package fixedpoint converts between arbitrary-precision values and the
// wire-level fixed-point representation used in checkpoints and protocol
// messages. Integers travel as a sign byte plus big-endian magnitude,
// decimals as a coefficient plus explicit base-10 exponent. Floats are
// never used: price and amount arithmetic must be exact to the
// fundamental unit.
package fixedpoint

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

var ErrShortWire = errors.New("fixedpoint: empty integer wire value")

var ten = big.NewInt(10)

// IntToWire encodes v as [sign:1][magnitude big-endian].
// Zero encodes as a single 0x00 byte.
func IntToWire(v *big.Int) []byte {
	sign := byte(0)
	if v.Sign() < 0 {
		sign = 1
	}
	mag := v.Bytes()
	out := make([]byte, 1+len(mag))
	out[0] = sign
	copy(out[1:], mag)
	return out
}

// IntFromWire decodes the IntToWire form.
func IntFromWire(b []byte) (*big.Int, error) {
	if len(b) == 0 {
		return nil, ErrShortWire
	}
	v := new(big.Int).SetBytes(b[1:])
	if b[0] != 0 {
		v.Neg(v)
	}
	return v, nil
}

// DecimalToWire splits d into its integer coefficient and base-10 exponent.
func DecimalToWire(d decimal.Decimal) (coef []byte, exp int32) {
	return IntToWire(d.Coefficient()), d.Exponent()
}

// DecimalFromWire rebuilds a decimal from coefficient bytes and exponent.
func DecimalFromWire(coef []byte, exp int32) (decimal.Decimal, error) {
	c, err := IntFromWire(coef)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromBigInt(c, exp), nil
}

// Pow10 returns 10^n for n >= 0.
func Pow10(n int32) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(n)), nil)
}

// Notional computes amount * price scaled from base fundamental units into
// quote fundamental units. Truncation toward zero is applied when the
// product is finer than one quote unit; both sides of a trade share the
// same computation, so trades never leak value between counterparties.
func Notional(amount *big.Int, price decimal.Decimal, baseDecimals, quoteDecimals int32) *big.Int {
	if amount.Sign() == 0 {
		return new(big.Int)
	}
	n := new(big.Int).Mul(amount, price.Coefficient())
	e := price.Exponent() + quoteDecimals - baseDecimals
	if e >= 0 {
		return n.Mul(n, Pow10(e))
	}
	return n.Quo(n, Pow10(-e))
}

// QuantityAtNotional returns the largest base quantity whose notional at
// price does not exceed limit. It is the floor inverse of Notional and is
// what auto-reduce uses to clamp an order to a quote-asset budget.
// limit must be non-negative.
func QuantityAtNotional(limit *big.Int, price decimal.Decimal, baseDecimals, quoteDecimals int32) *big.Int {
	if limit.Sign() <= 0 {
		return new(big.Int)
	}
	s := baseDecimals - quoteDecimals - price.Exponent()
	if s >= 0 {
		n := new(big.Int).Mul(limit, Pow10(s))
		return n.Quo(n, price.Coefficient())
	}
	den := new(big.Int).Mul(price.Coefficient(), Pow10(-s))
	return new(big.Int).Quo(limit, den)
}
