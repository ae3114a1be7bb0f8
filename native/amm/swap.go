package amm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"mercx/core/events"
)

// SwapQuote is the read-only answer to "what would this swap do right now".
// Prices and slippage are display-rounded floats; the amounts are exact.
type SwapQuote struct {
	PaySymbol      string
	PayAmount      *big.Int
	ReceiveSymbol  string
	GrossReceive   *big.Int
	NetReceive     *big.Int
	LPFee          *big.Int
	GasFee         *big.Int
	MidPrice       float64
	ExecutionPrice float64
	SlippagePct    float64
	Hops           []*SwapCalc
}

// SwapOptions bounds a swap execution. Zero values fall back to the settings
// defaults (slippage) or no bound (min receive).
type SwapOptions struct {
	MinReceive     *big.Int
	MaxSlippagePct float64
	// Destination receives the payout; empty means the caller.
	Destination string
	// FeeDiscountPct is the caller's fee discount in whole percent.
	FeeDiscountPct uint8
}

// SwapReceipt reports a committed swap. ReceiveRef is zero when the payout
// push failed after commit; the reserve mutation stands regardless.
type SwapReceipt struct {
	Caller         string
	PaySymbol      string
	PayAmount      *big.Int
	PayRef         TxRef
	ReceiveSymbol  string
	NetReceive     *big.Int
	ReceiveRef     TxRef
	LPFee          *big.Int
	GasFee         *big.Int
	ExecutionPrice float64
	SlippagePct    float64
	Hops           []*SwapCalc
}

// QuoteSwap prices a swap against current reserves without moving funds.
// Quoting a token against itself is answered identity-style: the amount
// passes through at price 1.0 with no hops.
func (e *Engine) QuoteSwap(paySymbol string, amount *big.Int, receiveSymbol string, discountPct uint8) (*SwapQuote, error) {
	if e == nil {
		return nil, fmt.Errorf("amm: engine not initialised")
	}
	payToken, err := e.registry.Resolve(paySymbol)
	if err != nil {
		return nil, err
	}
	receiveToken, err := e.registry.Resolve(receiveSymbol)
	if err != nil {
		return nil, err
	}
	if isZero(amount) {
		return nil, ErrZeroAmount
	}
	if payToken.ID == receiveToken.ID {
		return &SwapQuote{
			PaySymbol:      payToken.Symbol,
			PayAmount:      new(big.Int).Set(amount),
			ReceiveSymbol:  receiveToken.Symbol,
			GrossReceive:   new(big.Int).Set(amount),
			NetReceive:     new(big.Int).Set(amount),
			LPFee:          bigZero(),
			GasFee:         bigZero(),
			MidPrice:       1,
			ExecutionPrice: 1,
		}, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quoteLocked(payToken, receiveToken, amount, discountPct)
}

// quoteLocked prices a route and assembles the quote. Callers hold the
// engine lock.
func (e *Engine) quoteLocked(payToken, receiveToken *Token, amount *big.Int, discountPct uint8) (*SwapQuote, error) {
	route, err := e.findRoute(payToken, receiveToken, amount, discountPct)
	if err != nil {
		return nil, err
	}
	quote := &SwapQuote{
		PaySymbol:     payToken.Symbol,
		PayAmount:     new(big.Int).Set(amount),
		ReceiveSymbol: receiveToken.Symbol,
		GrossReceive:  bigZero(),
		NetReceive:    route.NetReceive(),
		LPFee:         bigZero(),
		GasFee:        bigZero(),
		Hops:          route.Hops,
	}
	for _, hop := range route.Hops {
		quote.LPFee = addBig(quote.LPFee, hop.LPFee)
		quote.GasFee = addBig(quote.GasFee, hop.GasFee)
	}
	quote.GrossReceive = new(big.Int).Set(route.Hops[len(route.Hops)-1].ReceiveAmount)

	mid, priced, err := e.routeMidPrice(route)
	if err != nil {
		return nil, err
	}
	if priced {
		if rounded, ok := priceRounded(mid); ok {
			quote.MidPrice = rounded
		}
	}
	if exec, ok := executionPrice(payToken, receiveToken, amount, quote.NetReceive); ok {
		if rounded, roundedOK := priceRounded(exec); roundedOK {
			quote.ExecutionPrice = rounded
		}
		if priced {
			quote.SlippagePct = slippagePct(exec, mid)
		}
	}
	return quote, nil
}

// Swap executes a swap end to end: pull the pay leg, re-price against fresh
// reserves, commit the pool mutation, push the payout. A failure after the
// pull refunds the pulled amount best effort and surfaces the original
// error.
func (e *Engine) Swap(ctx context.Context, caller, paySymbol string, amount *big.Int, receiveSymbol string, pull PullSpec, opts SwapOptions) (*SwapReceipt, error) {
	if e == nil {
		return nil, fmt.Errorf("amm: engine not initialised")
	}
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return nil, fmt.Errorf("amm: missing caller identity")
	}
	payToken, receiveToken, err := e.resolvePair(paySymbol, receiveSymbol)
	if err != nil {
		return nil, err
	}
	if isZero(amount) {
		return nil, ErrZeroAmount
	}
	destination := strings.TrimSpace(opts.Destination)
	if destination == "" {
		destination = caller
	}
	maxSlippage := opts.MaxSlippagePct
	if maxSlippage <= 0 {
		settings, err := e.Settings()
		if err != nil {
			return nil, err
		}
		maxSlippage = settings.MaxSlippagePct
	}

	// Fail-fast quote before any asset movement.
	e.mu.Lock()
	quote, err := e.quoteLocked(payToken, receiveToken, amount, opts.FeeDiscountPct)
	if err == nil {
		err = checkBounds(quote, opts.MinReceive, maxSlippage)
	}
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	payRef, err := e.pullFunds(ctx, payToken, amount, caller, pull, TransferKindSwap)
	if err != nil {
		return nil, err
	}

	// The pull suspended us; everything priced so far is stale. Re-price
	// against live reserves, re-check the caller's bounds, and commit in
	// one locked section.
	e.mu.Lock()
	quote, err = e.quoteLocked(payToken, receiveToken, amount, opts.FeeDiscountPct)
	if err == nil {
		err = checkBounds(quote, opts.MinReceive, maxSlippage)
	}
	if err == nil {
		err = e.commitSwapLocked(caller, quote)
	}
	e.mu.Unlock()
	if err != nil {
		e.refundFunds(ctx, payToken, amount, caller)
		return nil, err
	}

	receipt := &SwapReceipt{
		Caller:         caller,
		PaySymbol:      payToken.Symbol,
		PayAmount:      new(big.Int).Set(amount),
		PayRef:         payRef,
		ReceiveSymbol:  receiveToken.Symbol,
		NetReceive:     quote.NetReceive,
		LPFee:          quote.LPFee,
		GasFee:         quote.GasFee,
		ExecutionPrice: quote.ExecutionPrice,
		SlippagePct:    quote.SlippagePct,
		Hops:           quote.Hops,
	}

	// Payout after commit. This leg is final either way: a failed push is
	// not retried and the zero ReceiveRef marks the missing movement.
	terminal := quote.Hops[len(quote.Hops)-1]
	payout := subBigClamped(terminal.ReceiveAmount, terminal.LPFee)
	receiveRef, err := e.pushFunds(ctx, receiveToken, payout, destination, TransferKindSwap)
	if err != nil {
		e.log.Error("amm swap payout failed after commit",
			"caller", caller,
			"token", receiveToken.Symbol,
			"amount", payout.String(),
			"error", err,
		)
	} else {
		receipt.ReceiveRef = receiveRef
	}
	return receipt, nil
}

func checkBounds(quote *SwapQuote, minReceive *big.Int, maxSlippagePct float64) error {
	if isZero(quote.NetReceive) {
		return ErrZeroReceiveAmount
	}
	if minReceive != nil && quote.NetReceive.Cmp(minReceive) < 0 {
		return ErrMinimumReceive
	}
	if maxSlippagePct > 0 && quote.SlippagePct > maxSlippagePct {
		return ErrSlippageExceeded
	}
	return nil
}

// commitSwapLocked applies every hop's mutation to its pool. Callers hold
// the engine lock and pass a quote computed inside the same locked section.
func (e *Engine) commitSwapLocked(caller string, quote *SwapQuote) error {
	for _, hop := range quote.Hops {
		pool, ok, err := e.pools.Get(hop.PoolID)
		if err != nil {
			return err
		}
		if !ok || pool.Removed {
			return ErrPoolNotFound
		}
		if err := applySwapHop(pool, hop); err != nil {
			return err
		}
		if err := e.pools.Update(pool); err != nil {
			return err
		}
		e.metrics.ObserveSwap(poolLabel(pool.ID))
		e.emitSwapLocked(pool, hop, caller)
	}
	return nil
}

// applySwapHop moves the hop's amounts through the pool: the pay amount
// joins the in-side balance, the gross receive leaves the out side, and the
// LP fee returns to the out side split between the LP and protocol
// accumulators.
func applySwapHop(pool *Pool, hop *SwapCalc) error {
	balanceIn := &pool.Balance0
	balanceOut, feeOut, protoOut := &pool.Balance1, &pool.LPFee1, &pool.ProtocolFee1
	if hop.PayTokenID == pool.TokenID1 {
		balanceIn = &pool.Balance1
		balanceOut, feeOut, protoOut = &pool.Balance0, &pool.LPFee0, &pool.ProtocolFee0
	}

	reserveOut := addBig(*balanceOut, *feeOut)
	if hop.ReceiveAmount.Cmp(reserveOut) > 0 {
		return ErrInsufficientReserve
	}
	*balanceIn = addBig(*balanceIn, hop.PayAmount)

	// Gross may exceed the plain balance once fees have accumulated; the
	// remainder is drawn from the LP accumulator.
	remaining, ok := subBig(*balanceOut, hop.ReceiveAmount)
	if ok {
		*balanceOut = remaining
	} else {
		overdraw := subBigClamped(hop.ReceiveAmount, *balanceOut)
		*balanceOut = bigZero()
		*feeOut = subBigClamped(*feeOut, overdraw)
	}

	protoFee := protocolSlice(hop.LPFee, pool.FeeRateBps, pool.ProtocolShareBps)
	lpFee := subBigClamped(hop.LPFee, protoFee)
	*feeOut = addBig(*feeOut, lpFee)
	*protoOut = addBig(*protoOut, protoFee)
	return nil
}

// protocolSlice carves the protocol's share out of a collected fee:
// fee * shareBps / rateBps, floored, zero when the pool charges no fee.
func protocolSlice(fee *big.Int, rateBps, shareBps uint16) *big.Int {
	if rateBps == 0 || shareBps == 0 {
		return bigZero()
	}
	slice, _ := divBig(mulBig(fee, new(big.Int).SetUint64(uint64(shareBps))), new(big.Int).SetUint64(uint64(rateBps)))
	return slice
}

func (e *Engine) emitSwapLocked(pool *Pool, hop *SwapCalc, caller string) {
	e.emitter.Emit(events.AMMSwapExecuted{
		PoolID:         pool.ID,
		Caller:         caller,
		PayTokenID:     hop.PayTokenID,
		PayAmount:      new(big.Int).Set(hop.PayAmount),
		ReceiveTokenID: hop.ReceiveTokenID,
		NetReceive:     hop.NetReceive(),
		LPFee:          new(big.Int).Set(hop.LPFee),
		ProtocolFee:    protocolSlice(hop.LPFee, pool.FeeRateBps, pool.ProtocolShareBps),
	}.Event())
	token0, err0 := e.registry.ResolveID(pool.TokenID0)
	token1, err1 := e.registry.ResolveID(pool.TokenID1)
	if err0 == nil && err1 == nil {
		e.updateReserveGauges(pool, token0, token1)
	}
}
