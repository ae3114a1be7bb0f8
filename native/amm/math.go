package amm

import (
	"math"
	"math/big"
)

// All value-moving arithmetic in this package is performed on non-negative
// big.Int amounts at an explicit decimal precision. Floating point appears
// only in display helpers (prices, slippage) and never feeds a balance
// mutation.

func bigZero() *big.Int {
	return new(big.Int)
}

func isZero(n *big.Int) bool {
	return n == nil || n.Sign() == 0
}

func addBig(a, b *big.Int) *big.Int {
	sum := new(big.Int)
	if a != nil {
		sum.Set(a)
	}
	if b != nil {
		sum.Add(sum, b)
	}
	return sum
}

// subBig returns a-b, reporting false when the subtraction would underflow
// below zero.
func subBig(a, b *big.Int) (*big.Int, bool) {
	if a == nil {
		a = bigZero()
	}
	if b == nil {
		b = bigZero()
	}
	if a.Cmp(b) < 0 {
		return nil, false
	}
	return new(big.Int).Sub(a, b), true
}

// subBigClamped returns a-b floored at zero.
func subBigClamped(a, b *big.Int) *big.Int {
	diff, ok := subBig(a, b)
	if !ok {
		return bigZero()
	}
	return diff
}

func mulBig(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return bigZero()
	}
	return new(big.Int).Mul(a, b)
}

// divBig returns the floor of num/den. A zero numerator yields zero; a zero
// denominator reports false.
func divBig(num, den *big.Int) (*big.Int, bool) {
	if isZero(num) {
		return bigZero(), true
	}
	if isZero(den) {
		return nil, false
	}
	return new(big.Int).Quo(num, den), true
}

func pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}

// rescaleAmount converts an amount between decimal precisions. Increasing
// precision multiplies by a power of ten; reducing precision divides with
// floor truncation, so value can only be lost, never invented.
func rescaleAmount(n *big.Int, from, to uint8) *big.Int {
	if n == nil {
		return bigZero()
	}
	switch {
	case from == to:
		return new(big.Int).Set(n)
	case from < to:
		return new(big.Int).Mul(n, pow10(to-from))
	default:
		return new(big.Int).Quo(n, pow10(from-to))
	}
}

func intSqrt(n *big.Int) *big.Int {
	if n == nil || n.Sign() <= 0 {
		return bigZero()
	}
	return new(big.Int).Sqrt(n)
}

// ratio builds num/den as an exact rational for price math. Reports false
// when den is zero.
func ratio(num, den *big.Int) (*big.Rat, bool) {
	if isZero(den) {
		return nil, false
	}
	if num == nil {
		num = bigZero()
	}
	return new(big.Rat).SetFrac(new(big.Int).Set(num), new(big.Int).Set(den)), true
}

func roundFloat(f float64, decimals uint8) float64 {
	scale := math.Pow10(int(decimals))
	return math.Round(f*scale) / scale
}

// priceRounded renders a price for display with magnitude-tiered precision:
// smaller prices keep more decimals, anything above 100000 keeps none.
func priceRounded(price *big.Rat) (float64, bool) {
	if price == nil {
		return 0, false
	}
	f, _ := price.Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	switch {
	case f <= 0.0001:
		return roundFloat(f, 12), true
	case f <= 0.1:
		return roundFloat(f, 10), true
	case f <= 20.0:
		return roundFloat(f, 8), true
	case f <= 100.0:
		return roundFloat(f, 6), true
	case f <= 500.0:
		return roundFloat(f, 5), true
	case f <= 5000.0:
		return roundFloat(f, 4), true
	case f <= 50000.0:
		return roundFloat(f, 3), true
	case f <= 100000.0:
		return roundFloat(f, 2), true
	default:
		return roundFloat(f, 0), true
	}
}

// amountToFloat converts a native-precision amount to a display float.
func amountToFloat(decimals uint8, n *big.Int) float64 {
	if n == nil {
		return 0
	}
	r := new(big.Rat).SetFrac(new(big.Int).Set(n), pow10(decimals))
	f, _ := r.Float64()
	return roundFloat(f, decimals)
}

// slippagePct reports how much worse the achieved price is than the expected
// price, as a percentage rounded to two decimals. An achieved price at or
// above the expected price is zero slippage.
func slippagePct(achieved, expected *big.Rat) float64 {
	if achieved == nil || expected == nil || expected.Sign() == 0 {
		return 0
	}
	if achieved.Cmp(expected) >= 0 {
		return 0
	}
	rel := new(big.Rat).Quo(achieved, expected)
	rel.Sub(rel, new(big.Rat).SetInt64(1))
	rel.Mul(rel, new(big.Rat).SetInt64(100))
	f, _ := rel.Float64()
	return roundFloat(math.Abs(f), 2)
}
