package amm

import (
	"fmt"
	"math/big"
)

// priceSwap runs the constant-product pricing for a single hop through one
// pool. ReceiveAmount and LPFee come back in the receive token's native
// precision; GasFee is left zero for the caller to assign on the terminal
// hop. A pool with an empty reserve on either side yields a zero-amount
// result instead of dividing.
func priceSwap(pool *Pool, payToken, receiveToken *Token, payAmount *big.Int, discountPct uint8) (*SwapCalc, error) {
	if pool == nil {
		return nil, ErrPoolNotFound
	}
	if payToken == nil || receiveToken == nil {
		return nil, ErrTokenNotFound
	}
	if !pool.HasToken(payToken.ID) || !pool.HasToken(receiveToken.ID) || payToken.ID == receiveToken.ID {
		return nil, ErrPoolNotFound
	}
	if isZero(payAmount) {
		return nil, ErrZeroAmount
	}

	reserveIn, reserveOut := pool.Reserve0(), pool.Reserve1()
	if payToken.ID == pool.TokenID1 {
		reserveIn, reserveOut = reserveOut, reserveIn
	}

	calc := &SwapCalc{
		PoolID:         pool.ID,
		PayTokenID:     payToken.ID,
		PayAmount:      new(big.Int).Set(payAmount),
		ReceiveTokenID: receiveToken.ID,
		ReceiveAmount:  bigZero(),
		LPFee:          bigZero(),
		GasFee:         bigZero(),
	}
	if isZero(reserveIn) || isZero(reserveOut) {
		return calc, nil
	}

	maxDec := maxDecimals(payToken, receiveToken)
	payScaled := rescaleAmount(payAmount, payToken.Decimals, maxDec)
	inScaled := rescaleAmount(reserveIn, payToken.Decimals, maxDec)
	outScaled := rescaleAmount(reserveOut, receiveToken.Decimals, maxDec)

	grossScaled, ok := divBig(mulBig(payScaled, outScaled), addBig(inScaled, payScaled))
	if !ok {
		return nil, fmt.Errorf("amm: pool %d priced with empty reserve", pool.ID)
	}

	feeBps := effectiveFeeBps(pool.FeeRateBps, discountPct)
	lpFeeScaled, _ := divBig(mulBig(grossScaled, new(big.Int).SetUint64(uint64(feeBps))), big.NewInt(10_000))

	gross := rescaleAmount(grossScaled, maxDec, receiveToken.Decimals)
	lpFee := rescaleAmount(lpFeeScaled, maxDec, receiveToken.Decimals)
	if gross.Cmp(reserveOut) > 0 {
		return nil, ErrInsufficientReserve
	}
	calc.ReceiveAmount = gross
	calc.LPFee = lpFee
	return calc, nil
}

// effectiveFeeBps applies a caller fee discount, expressed in whole percent,
// to the pool's base fee rate.
func effectiveFeeBps(baseBps uint16, discountPct uint8) uint16 {
	if discountPct >= 100 {
		return 0
	}
	return uint16(uint32(baseBps) * uint32(100-discountPct) / 100)
}

// Route is an ordered sequence of hops pricing one pay token into one
// receive token. Direct swaps have a single hop; anchor-routed swaps have
// two.
type Route struct {
	Hops []*SwapCalc
}

// NetReceive is the terminal hop's net payout.
func (r *Route) NetReceive() *big.Int {
	if r == nil || len(r.Hops) == 0 {
		return bigZero()
	}
	return r.Hops[len(r.Hops)-1].NetReceive()
}

// PayAmount is the first hop's input.
func (r *Route) PayAmount() *big.Int {
	if r == nil || len(r.Hops) == 0 {
		return bigZero()
	}
	return new(big.Int).Set(r.Hops[0].PayAmount)
}

// priceRoute prices a two-element token path hop by hop. Each intermediate
// hop feeds its net output (pool fee deducted, no network fee) into the next
// hop; the terminal hop charges the receive token's network fee.
func (e *Engine) priceRoute(path []*Token, pools []*Pool, payAmount *big.Int, discountPct uint8) (*Route, error) {
	if len(path) < 2 || len(pools) != len(path)-1 {
		return nil, ErrPoolNotFound
	}
	route := &Route{Hops: make([]*SwapCalc, 0, len(pools))}
	amount := new(big.Int).Set(payAmount)
	for i, pool := range pools {
		calc, err := priceSwap(pool, path[i], path[i+1], amount, discountPct)
		if err != nil {
			return nil, err
		}
		if i == len(pools)-1 {
			calc.GasFee = path[i+1].NetworkFee()
		}
		route.Hops = append(route.Hops, calc)
		amount = calc.NetReceive()
		if isZero(amount) && i < len(pools)-1 {
			return nil, ErrZeroReceiveAmount
		}
	}
	return route, nil
}

// findRoute locates the best route from pay to receive: the direct pool when
// one exists, otherwise the two-hop path through a configured anchor token
// maximising net receive. Returns ErrPoolNotFound when no path exists.
func (e *Engine) findRoute(payToken, receiveToken *Token, payAmount *big.Int, discountPct uint8) (*Route, error) {
	if payToken.ID == receiveToken.ID {
		return nil, ErrSameToken
	}
	pool, ok, err := e.pools.GetByPair(payToken.ID, receiveToken.ID)
	if err != nil {
		return nil, err
	}
	if ok {
		return e.priceRoute([]*Token{payToken, receiveToken}, []*Pool{pool}, payAmount, discountPct)
	}

	settings, err := e.settings.Get()
	if err != nil {
		return nil, err
	}
	var best *Route
	for _, anchorID := range settings.AnchorTokenIDs {
		if anchorID == payToken.ID || anchorID == receiveToken.ID {
			continue
		}
		route, err := e.anchorRoute(payToken, receiveToken, anchorID, payAmount, discountPct)
		if err != nil {
			continue
		}
		if best == nil || route.NetReceive().Cmp(best.NetReceive()) > 0 {
			best = route
		}
	}
	if best == nil {
		return nil, ErrPoolNotFound
	}
	return best, nil
}

func (e *Engine) anchorRoute(payToken, receiveToken *Token, anchorID uint32, payAmount *big.Int, discountPct uint8) (*Route, error) {
	first, ok, err := e.pools.GetByPair(payToken.ID, anchorID)
	if err != nil || !ok {
		if err == nil {
			err = ErrPoolNotFound
		}
		return nil, err
	}
	second, ok, err := e.pools.GetByPair(anchorID, receiveToken.ID)
	if err != nil || !ok {
		if err == nil {
			err = ErrPoolNotFound
		}
		return nil, err
	}
	anchor, err := e.registry.ResolveID(anchorID)
	if err != nil {
		return nil, err
	}
	return e.priceRoute([]*Token{payToken, anchor, receiveToken}, []*Pool{first, second}, payAmount, discountPct)
}

// bestMidPrice answers a pure price query: the direct pool's mid price when
// one exists, otherwise the highest product of mid prices across the anchor
// routes. Reports false when no priced path exists.
func (e *Engine) bestMidPrice(payToken, receiveToken *Token) (*big.Rat, bool, error) {
	pool, ok, err := e.pools.GetByPair(payToken.ID, receiveToken.ID)
	if err != nil {
		return nil, false, err
	}
	if ok {
		price, priced := poolMidPrice(pool, payToken, receiveToken)
		return price, priced, nil
	}
	settings, err := e.settings.Get()
	if err != nil {
		return nil, false, err
	}
	var best *big.Rat
	for _, anchorID := range settings.AnchorTokenIDs {
		if anchorID == payToken.ID || anchorID == receiveToken.ID {
			continue
		}
		first, ok, err := e.pools.GetByPair(payToken.ID, anchorID)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		second, ok, err := e.pools.GetByPair(anchorID, receiveToken.ID)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		anchor, err := e.registry.ResolveID(anchorID)
		if err != nil {
			continue
		}
		firstMid, priced := poolMidPrice(first, payToken, anchor)
		if !priced {
			continue
		}
		secondMid, priced := poolMidPrice(second, anchor, receiveToken)
		if !priced {
			continue
		}
		candidate := new(big.Rat).Mul(firstMid, secondMid)
		if best == nil || candidate.Cmp(best) > 0 {
			best = candidate
		}
	}
	if best == nil {
		return nil, false, nil
	}
	return best, true, nil
}

// routeMidPrice multiplies the per-hop mid prices into the route's overall
// pre-trade price of the receive token per pay token.
func (e *Engine) routeMidPrice(route *Route) (*big.Rat, bool, error) {
	if route == nil || len(route.Hops) == 0 {
		return nil, false, nil
	}
	price := new(big.Rat).SetInt64(1)
	for _, hop := range route.Hops {
		pool, ok, err := e.pools.Get(hop.PoolID)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		payToken, err := e.registry.ResolveID(hop.PayTokenID)
		if err != nil {
			return nil, false, err
		}
		receiveToken, err := e.registry.ResolveID(hop.ReceiveTokenID)
		if err != nil {
			return nil, false, err
		}
		mid, ok := poolMidPrice(pool, payToken, receiveToken)
		if !ok {
			return nil, false, nil
		}
		price.Mul(price, mid)
	}
	return price, true, nil
}

// poolMidPrice orients Pool.MidPrice so it always quotes receive per pay.
func poolMidPrice(pool *Pool, payToken, receiveToken *Token) (*big.Rat, bool) {
	if pool.TokenID0 == payToken.ID {
		return pool.MidPrice(payToken, receiveToken)
	}
	inverse, ok := pool.MidPrice(receiveToken, payToken)
	if !ok || inverse.Sign() == 0 {
		return nil, false
	}
	return new(big.Rat).Inv(inverse), true
}

// executionPrice is net receive over pay, both rescaled to the higher
// precision so heterogeneous decimals compare fairly.
func executionPrice(payToken, receiveToken *Token, payAmount, netReceive *big.Int) (*big.Rat, bool) {
	maxDec := maxDecimals(payToken, receiveToken)
	payScaled := rescaleAmount(payAmount, payToken.Decimals, maxDec)
	netScaled := rescaleAmount(netReceive, receiveToken.Decimals, maxDec)
	return ratio(netScaled, payScaled)
}
