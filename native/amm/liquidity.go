package amm

import "math/big"

// LiquidityQuote is the provisioning result for one add-liquidity attempt:
// the deposit amounts actually accepted on each pool side and the LP shares
// to mint for them.
type LiquidityQuote struct {
	Accepted0 *big.Int
	Accepted1 *big.Int
	Mint      *big.Int
	NewPool   bool
}

// quoteAddLiquidity computes accepted amounts and the share mint for a
// deposit of (amount0, amount1) oriented to the pool's sides. supply is the
// LP token's current total supply.
//
// A pool with an empty reserve on either side takes both amounts as given
// and mints integer-sqrt(amount0*amount1) at the LP share precision, the
// higher of the pair's precisions. An established pool accepts exact-ratio
// deposits unchanged; off-ratio deposits are trimmed to the side whose
// supplied amount covers the partner amount implied by the current ratio,
// and fail ErrIncorrectRatio when neither side does.
func quoteAddLiquidity(pool *Pool, token0, token1 *Token, amount0, amount1, supply *big.Int) (*LiquidityQuote, error) {
	if pool == nil {
		return nil, ErrPoolNotFound
	}
	if isZero(amount0) || isZero(amount1) {
		return nil, ErrZeroAmount
	}
	reserve0, reserve1 := pool.Reserve0(), pool.Reserve1()

	if isZero(reserve0) || isZero(reserve1) {
		lpDec := maxDecimals(token0, token1)
		scaled0 := rescaleAmount(amount0, token0.Decimals, lpDec)
		scaled1 := rescaleAmount(amount1, token1.Decimals, lpDec)
		return &LiquidityQuote{
			Accepted0: new(big.Int).Set(amount0),
			Accepted1: new(big.Int).Set(amount1),
			Mint:      intSqrt(mulBig(scaled0, scaled1)),
			NewPool:   true,
		}, nil
	}

	accepted0 := new(big.Int).Set(amount0)
	accepted1 := new(big.Int).Set(amount1)
	if mulBig(amount0, reserve1).Cmp(mulBig(amount1, reserve0)) != 0 {
		implied1, _ := divBig(mulBig(amount0, reserve1), reserve0)
		implied0, _ := divBig(mulBig(amount1, reserve0), reserve1)
		switch {
		case amount1.Cmp(implied1) >= 0:
			accepted1 = implied1
		case amount0.Cmp(implied0) >= 0:
			accepted0 = implied0
		default:
			return nil, ErrIncorrectRatio
		}
	}
	if isZero(accepted0) || isZero(accepted1) {
		return nil, ErrIncorrectRatio
	}

	// mint is always anchored on side 0
	mint, ok := divBig(mulBig(supply, accepted0), reserve0)
	if !ok || isZero(mint) {
		return nil, ErrZeroReceiveAmount
	}
	return &LiquidityQuote{Accepted0: accepted0, Accepted1: accepted1, Mint: mint}, nil
}

// sameQuote reports whether two provisioning results are identical. Used to
// detect pool movement between the pre-pull quote and settlement.
func sameQuote(a, b *LiquidityQuote) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.NewPool == b.NewPool &&
		a.Accepted0.Cmp(b.Accepted0) == 0 &&
		a.Accepted1.Cmp(b.Accepted1) == 0 &&
		a.Mint.Cmp(b.Mint) == 0
}

// RemovalQuote is the redemption result for one remove-liquidity attempt:
// the principal and accumulated-fee payouts per pool side for the burn.
type RemovalQuote struct {
	Payout0    *big.Int
	Payout1    *big.Int
	FeePayout0 *big.Int
	FeePayout1 *big.Int
}

// Total returns the combined principal-plus-fee payout for one side.
func (q *RemovalQuote) Total(side int) *big.Int {
	if side == 0 {
		return addBig(q.Payout0, q.FeePayout0)
	}
	return addBig(q.Payout1, q.FeePayout1)
}

// quoteRemoveLiquidity computes per-side payouts for burning burn shares out
// of supply. Principal and fee accumulators are divided separately so each
// stream floors independently.
func quoteRemoveLiquidity(pool *Pool, burn, supply *big.Int) (*RemovalQuote, error) {
	if pool == nil {
		return nil, ErrPoolNotFound
	}
	if isZero(burn) {
		return nil, ErrZeroAmount
	}
	if supply == nil || burn.Cmp(supply) > 0 {
		return nil, ErrInsufficientLPBalance
	}
	payout0, ok := divBig(mulBig(pool.Balance0, burn), supply)
	if !ok {
		return nil, ErrInsufficientLPBalance
	}
	payout1, _ := divBig(mulBig(pool.Balance1, burn), supply)
	feePayout0, _ := divBig(mulBig(pool.LPFee0, burn), supply)
	feePayout1, _ := divBig(mulBig(pool.LPFee1, burn), supply)
	return &RemovalQuote{
		Payout0:    payout0,
		Payout1:    payout1,
		FeePayout0: feePayout0,
		FeePayout1: feePayout1,
	}, nil
}
