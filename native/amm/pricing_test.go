package amm

import (
	"errors"
	"math/big"
	"testing"
)

func testToken(id uint32, symbol string, decimals uint8, fee int64) *Token {
	return &Token{
		ID:           id,
		Symbol:       symbol,
		Name:         symbol,
		Decimals:     decimals,
		Fee:          big.NewInt(fee),
		SupportsPull: true,
	}
}

func TestPriceSwapConstantProduct(t *testing.T) {
	tokenA := testToken(1, "AAA", 0, 0)
	tokenB := testToken(2, "BBB", 0, 0)
	pool := NewPool(1, 2, 30, 0, 7)
	pool.ID = 1
	pool.Balance0 = big.NewInt(1_000_000)
	pool.Balance1 = big.NewInt(2_000_000)

	calc, err := priceSwap(pool, tokenA, tokenB, big.NewInt(10_000), 0)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if calc.ReceiveAmount.Cmp(big.NewInt(19_801)) != 0 {
		t.Fatalf("gross = %s, want 19801", calc.ReceiveAmount)
	}
	if calc.LPFee.Cmp(big.NewInt(59)) != 0 {
		t.Fatalf("lp fee = %s, want 59", calc.LPFee)
	}
	if calc.NetReceive().Cmp(big.NewInt(19_742)) != 0 {
		t.Fatalf("net = %s, want 19742", calc.NetReceive())
	}
}

func TestPriceSwapReverseOrientation(t *testing.T) {
	tokenA := testToken(1, "AAA", 0, 0)
	tokenB := testToken(2, "BBB", 0, 0)
	pool := NewPool(1, 2, 0, 0, 7)
	pool.ID = 1
	pool.Balance0 = big.NewInt(1_000_000)
	pool.Balance1 = big.NewInt(2_000_000)

	calc, err := priceSwap(pool, tokenB, tokenA, big.NewInt(20_000), 0)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	// 20000 * 1000000 / 2020000 = 9900
	if calc.ReceiveAmount.Cmp(big.NewInt(9_900)) != 0 {
		t.Fatalf("gross = %s, want 9900", calc.ReceiveAmount)
	}
}

func TestPriceSwapHeterogeneousDecimals(t *testing.T) {
	tokenA := testToken(1, "AAA", 2, 0)
	tokenB := testToken(2, "BBB", 0, 0)
	pool := NewPool(1, 2, 0, 0, 7)
	pool.ID = 1
	pool.Balance0 = big.NewInt(100_000_000) // 1,000,000.00 at 2 decimals
	pool.Balance1 = big.NewInt(2_000_000)

	calc, err := priceSwap(pool, tokenA, tokenB, big.NewInt(1_000_000), 0) // 10,000.00
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	// identical to the same-precision trade once rescaled back down
	if calc.ReceiveAmount.Cmp(big.NewInt(19_801)) != 0 {
		t.Fatalf("gross = %s, want 19801", calc.ReceiveAmount)
	}
}

func TestPriceSwapGrossStaysBelowReserve(t *testing.T) {
	// Draining trade against a lopsided pool with heterogeneous decimals:
	// the constant product plus floor rescaling caps gross at reserveOut-1,
	// so even the most extreme input never empties the out side.
	tokenA := testToken(1, "AAA", 6, 0)
	tokenB := testToken(2, "BBB", 0, 0)
	pool := NewPool(1, 2, 0, 0, 7)
	pool.ID = 1
	pool.Balance0 = big.NewInt(1) // 0.000001 at 6 decimals
	pool.Balance1 = big.NewInt(5)

	calc, err := priceSwap(pool, tokenA, tokenB, big.NewInt(1_000_000_000), 0)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	// floor(1e9 * 5e6 / (1 + 1e9)) = 4999999 scaled, 4 at native precision
	if calc.ReceiveAmount.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("gross = %s, want 4 (reserveOut-1)", calc.ReceiveAmount)
	}
}

func TestPriceSwapZeroLiquidity(t *testing.T) {
	tokenA := testToken(1, "AAA", 0, 0)
	tokenB := testToken(2, "BBB", 0, 0)
	pool := NewPool(1, 2, 30, 0, 7)
	pool.ID = 1

	calc, err := priceSwap(pool, tokenA, tokenB, big.NewInt(10_000), 0)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if !isZero(calc.ReceiveAmount) || !isZero(calc.LPFee) {
		t.Fatalf("empty pool should price to zero: %+v", calc)
	}
}

func TestPriceSwapZeroAmount(t *testing.T) {
	tokenA := testToken(1, "AAA", 0, 0)
	tokenB := testToken(2, "BBB", 0, 0)
	pool := NewPool(1, 2, 30, 0, 7)
	if _, err := priceSwap(pool, tokenA, tokenB, big.NewInt(0), 0); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
}

func TestEffectiveFeeBps(t *testing.T) {
	if got := effectiveFeeBps(30, 0); got != 30 {
		t.Fatalf("no discount = %d", got)
	}
	if got := effectiveFeeBps(30, 50); got != 15 {
		t.Fatalf("half discount = %d", got)
	}
	if got := effectiveFeeBps(30, 100); got != 0 {
		t.Fatalf("full discount = %d", got)
	}
	if got := effectiveFeeBps(25, 10); got != 22 {
		t.Fatalf("fractional discount should floor: %d", got)
	}
}

func TestApplySwapHopRejectsReserveOverdraw(t *testing.T) {
	pool := NewPool(1, 2, 30, 0, 7)
	pool.ID = 1
	pool.Balance0 = big.NewInt(1_000)
	pool.Balance1 = big.NewInt(500)
	hop := &SwapCalc{
		PoolID:         1,
		PayTokenID:     1,
		PayAmount:      big.NewInt(100),
		ReceiveTokenID: 2,
		ReceiveAmount:  big.NewInt(501),
		LPFee:          bigZero(),
		GasFee:         bigZero(),
	}
	if err := applySwapHop(pool, hop); !errors.Is(err, ErrInsufficientReserve) {
		t.Fatalf("expected ErrInsufficientReserve, got %v", err)
	}
	if pool.Balance0.Cmp(big.NewInt(1_000)) != 0 || pool.Balance1.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("failed hop must not mutate the pool: %+v", pool)
	}
}

func TestApplySwapHopDrawsOverdrawFromFeeAccumulator(t *testing.T) {
	pool := NewPool(1, 2, 30, 0, 7)
	pool.ID = 1
	pool.Balance0 = big.NewInt(1_000)
	pool.Balance1 = big.NewInt(100)
	pool.LPFee1 = big.NewInt(50)
	hop := &SwapCalc{
		PoolID:         1,
		PayTokenID:     1,
		PayAmount:      big.NewInt(300),
		ReceiveTokenID: 2,
		ReceiveAmount:  big.NewInt(120),
		LPFee:          bigZero(),
		GasFee:         bigZero(),
	}
	if err := applySwapHop(pool, hop); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !isZero(pool.Balance1) {
		t.Fatalf("balance1 = %s, want 0", pool.Balance1)
	}
	if pool.LPFee1.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("fee1 = %s, want 30", pool.LPFee1)
	}
}

func TestProtocolSlice(t *testing.T) {
	// 59 fee at 30 bps with a 10 bps protocol share: 59*10/30 = 19
	if got := protocolSlice(big.NewInt(59), 30, 10); got.Cmp(big.NewInt(19)) != 0 {
		t.Fatalf("slice = %s, want 19", got)
	}
	if got := protocolSlice(big.NewInt(59), 0, 10); !isZero(got) {
		t.Fatalf("zero rate slice = %s", got)
	}
	if got := protocolSlice(big.NewInt(59), 30, 0); !isZero(got) {
		t.Fatalf("zero share slice = %s", got)
	}
}
