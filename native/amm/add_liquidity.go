package amm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"mercx/core/events"
)

// LiquidityReceipt reports a committed deposit: the amounts actually taken
// per pool side, the inbound transfer references, and the minted shares.
type LiquidityReceipt struct {
	Caller    string
	PoolID    uint32
	Symbol0   string
	Symbol1   string
	Accepted0 *big.Int
	Accepted1 *big.Int
	Ref0      TxRef
	Ref1      TxRef
	Minted    *big.Int
	LPTokenID uint32
}

// AddLiquidity deposits both sides of a pair into its pool and mints LP
// shares for the caller. The deposit legs are pulled sequentially: a failed
// first leg aborts clean, a failed second leg refunds the first best effort.
// After both pulls the provisioning is recomputed against the pool's latest
// state; any divergence from the pre-pull quote aborts with ErrStaleQuote
// and refunds both legs.
func (e *Engine) AddLiquidity(ctx context.Context, caller, symbolA, symbolB string, amountA, amountB *big.Int, pullA, pullB PullSpec) (*LiquidityReceipt, error) {
	if e == nil {
		return nil, fmt.Errorf("amm: engine not initialised")
	}
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return nil, fmt.Errorf("amm: missing caller identity")
	}
	tokenA, tokenB, err := e.resolvePair(symbolA, symbolB)
	if err != nil {
		return nil, err
	}
	if isZero(amountA) || isZero(amountB) {
		return nil, ErrZeroAmount
	}

	e.mu.Lock()
	pool, token0, token1, err := e.lookupPoolLocked(tokenA, tokenB)
	var quote *LiquidityQuote
	if err == nil {
		amount0, amount1 := amountA, amountB
		pull0, pull1 := pullA, pullB
		if token0.ID != tokenA.ID {
			amount0, amount1 = amountB, amountA
			pull0, pull1 = pullB, pullA
		}
		quote, err = e.quoteAddLocked(pool, token0, token1, amount0, amount1)
		if err == nil {
			e.mu.Unlock()
			return e.settleAddLiquidity(ctx, caller, pool.ID, token0, token1, quote, pull0, pull1)
		}
	}
	e.mu.Unlock()
	return nil, err
}

// settleAddLiquidity runs the asset-moving half of a deposit: both pulls,
// the fresh-state recomputation, and the commit.
func (e *Engine) settleAddLiquidity(ctx context.Context, caller string, poolID uint32, token0, token1 *Token, quote *LiquidityQuote, pull0, pull1 PullSpec) (*LiquidityReceipt, error) {
	ref0, err := e.pullFunds(ctx, token0, quote.Accepted0, caller, pull0, TransferKindLiquidityAdd)
	if err != nil {
		return nil, err
	}
	ref1, err := e.pullFunds(ctx, token1, quote.Accepted1, caller, pull1, TransferKindLiquidityAdd)
	if err != nil {
		e.refundFunds(ctx, token0, quote.Accepted0, caller)
		return nil, err
	}

	// Both legs landed; the pool may have moved while we waited. Recompute
	// from live state and only commit an identical result.
	e.mu.Lock()
	pool, ok, lookupErr := e.pools.Get(poolID)
	switch {
	case lookupErr != nil:
		err = lookupErr
	case !ok || pool.Removed:
		err = ErrPoolNotFound
	default:
		var fresh *LiquidityQuote
		fresh, err = e.quoteAddLocked(pool, token0, token1, quote.Accepted0, quote.Accepted1)
		if err == nil && !sameQuote(fresh, quote) {
			err = ErrStaleQuote
		}
		if err == nil {
			err = e.commitAddLocked(pool, token0, token1, caller, fresh)
		}
	}
	e.mu.Unlock()
	if err != nil {
		e.refundFunds(ctx, token0, quote.Accepted0, caller)
		e.refundFunds(ctx, token1, quote.Accepted1, caller)
		return nil, err
	}

	e.metrics.ObserveLiquidityOp("add")
	return &LiquidityReceipt{
		Caller:    caller,
		PoolID:    poolID,
		Symbol0:   token0.Symbol,
		Symbol1:   token1.Symbol,
		Accepted0: quote.Accepted0,
		Accepted1: quote.Accepted1,
		Ref0:      ref0,
		Ref1:      ref1,
		Minted:    quote.Mint,
		LPTokenID: pool.LPTokenID,
	}, nil
}

// lookupPoolLocked resolves the live pool for a pair and its side-ordered
// tokens. Callers hold the engine lock.
func (e *Engine) lookupPoolLocked(tokenA, tokenB *Token) (*Pool, *Token, *Token, error) {
	pool, ok, err := e.pools.GetByPair(tokenA.ID, tokenB.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	if !ok {
		return nil, nil, nil, ErrPoolNotFound
	}
	token0, token1 := orient(pool, tokenA, tokenB)
	return pool, token0, token1, nil
}

func (e *Engine) quoteAddLocked(pool *Pool, token0, token1 *Token, amount0, amount1 *big.Int) (*LiquidityQuote, error) {
	supply, err := e.shares.TotalSupply(pool.LPTokenID)
	if err != nil {
		return nil, err
	}
	return quoteAddLiquidity(pool, token0, token1, amount0, amount1, supply)
}

func (e *Engine) commitAddLocked(pool *Pool, token0, token1 *Token, caller string, quote *LiquidityQuote) error {
	pool.Balance0 = addBig(pool.Balance0, quote.Accepted0)
	pool.Balance1 = addBig(pool.Balance1, quote.Accepted1)
	if err := e.pools.Update(pool); err != nil {
		return err
	}
	if err := e.shares.Credit(pool.LPTokenID, caller, quote.Mint); err != nil {
		return err
	}
	e.emitter.Emit(events.AMMLiquidityAdded{
		PoolID:    pool.ID,
		Provider:  caller,
		Amount0:   new(big.Int).Set(quote.Accepted0),
		Amount1:   new(big.Int).Set(quote.Accepted1),
		Minted:    new(big.Int).Set(quote.Mint),
		LPTokenID: pool.LPTokenID,
	}.Event())
	e.updateReserveGauges(pool, token0, token1)
	e.log.Info("amm liquidity added",
		"pool", pool.ID,
		"provider", caller,
		"amount0", quote.Accepted0.String(),
		"amount1", quote.Accepted1.String(),
		"minted", quote.Mint.String(),
	)
	return nil
}
