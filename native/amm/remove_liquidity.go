package amm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"mercx/core/events"
)

// RemovalReceipt reports a committed withdrawal. A zero reference on either
// payout leg means that push failed after commit; the burn stands.
type RemovalReceipt struct {
	Caller  string
	PoolID  uint32
	Symbol0 string
	Symbol1 string
	Burned  *big.Int
	Payout0 *big.Int
	Payout1 *big.Int
	Ref0    TxRef
	Ref1    TxRef
}

// RemoveLiquidity burns the caller's LP shares and pays out both sides
// proportionally, principal and accumulated fees divided separately. The
// shares burn first; only then do the pool balances decrement, floor-clamped
// at zero, and the payout pushes go out. Payout pushes are final whether
// they succeed or not.
func (e *Engine) RemoveLiquidity(ctx context.Context, caller, symbolA, symbolB string, burn *big.Int, destination string) (*RemovalReceipt, error) {
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
	if isZero(burn) {
		return nil, ErrZeroAmount
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		destination = caller
	}

	e.mu.Lock()
	pool, token0, token1, err := e.lookupPoolLocked(tokenA, tokenB)
	var quote *RemovalQuote
	if err == nil {
		quote, err = e.commitRemoveLocked(pool, caller, burn)
	}
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	receipt := &RemovalReceipt{
		Caller:  caller,
		PoolID:  pool.ID,
		Symbol0: token0.Symbol,
		Symbol1: token1.Symbol,
		Burned:  new(big.Int).Set(burn),
		Payout0: quote.Total(0),
		Payout1: quote.Total(1),
	}
	e.metrics.ObserveLiquidityOp("remove")
	e.emitter.Emit(events.AMMLiquidityRemoved{
		PoolID:    pool.ID,
		Provider:  caller,
		Burned:    receipt.Burned,
		Payout0:   receipt.Payout0,
		Payout1:   receipt.Payout1,
		LPTokenID: pool.LPTokenID,
	}.Event())
	e.updateReserveGauges(pool, token0, token1)

	// Two independent payout legs; each is final on its own.
	if ref, pushErr := e.pushFunds(ctx, token0, receipt.Payout0, destination, TransferKindLiquidityRemove); pushErr != nil {
		e.log.Error("amm removal payout failed after commit",
			"pool", pool.ID, "token", token0.Symbol, "amount", receipt.Payout0.String(), "error", pushErr)
	} else {
		receipt.Ref0 = ref
	}
	if ref, pushErr := e.pushFunds(ctx, token1, receipt.Payout1, destination, TransferKindLiquidityRemove); pushErr != nil {
		e.log.Error("amm removal payout failed after commit",
			"pool", pool.ID, "token", token1.Symbol, "amount", receipt.Payout1.String(), "error", pushErr)
	} else {
		receipt.Ref1 = ref
	}
	return receipt, nil
}

// commitRemoveLocked validates the burn against the caller's live share
// record, burns first, then decrements the pool. Callers hold the engine
// lock.
func (e *Engine) commitRemoveLocked(pool *Pool, caller string, burn *big.Int) (*RemovalQuote, error) {
	share, ok, err := e.shares.Get(pool.LPTokenID, caller)
	if err != nil {
		return nil, err
	}
	if !ok || share.Amount.Cmp(burn) < 0 {
		return nil, ErrInsufficientLPBalance
	}
	supply, err := e.shares.TotalSupply(pool.LPTokenID)
	if err != nil {
		return nil, err
	}
	quote, err := quoteRemoveLiquidity(pool, burn, supply)
	if err != nil {
		return nil, err
	}
	if err := e.shares.Debit(pool.LPTokenID, caller, burn); err != nil {
		return nil, err
	}
	pool.Balance0 = subBigClamped(pool.Balance0, quote.Payout0)
	pool.Balance1 = subBigClamped(pool.Balance1, quote.Payout1)
	pool.LPFee0 = subBigClamped(pool.LPFee0, quote.FeePayout0)
	pool.LPFee1 = subBigClamped(pool.LPFee1, quote.FeePayout1)
	if err := e.pools.Update(pool); err != nil {
		return nil, err
	}
	return quote, nil
}
