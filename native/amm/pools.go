package amm

import (
	"fmt"
	"math/big"

	"mercx/core/events"
)

// PoolView is the read-model projection of a pool joined with its token
// metadata, rounded prices included. Display values only; nothing here moves
// funds.
type PoolView struct {
	ID           uint32
	Symbol0      string
	Symbol1      string
	Balance0     *big.Int
	Balance1     *big.Int
	LPFee0       *big.Int
	LPFee1       *big.Int
	ProtocolFee0 *big.Int
	ProtocolFee1 *big.Int
	FeeRateBps   uint16
	LPTokenID    uint32
	LPSupply     *big.Int
	MidPrice     float64
}

// CreatePool registers a new pool for the pair using the default fee
// parameters from settings. Fails ErrPoolExists when a live pool already
// covers the pair in either orientation.
func (e *Engine) CreatePool(symbolA, symbolB string) (*Pool, error) {
	if e == nil {
		return nil, fmt.Errorf("amm: engine not initialised")
	}
	tokenA, tokenB, err := e.resolvePair(symbolA, symbolB)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	exists, err := e.pools.ExistsForPair(tokenA.ID, tokenB.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrPoolExists
	}
	settings, err := e.settings.Get()
	if err != nil {
		return nil, err
	}
	poolID, err := e.settings.NextPoolID()
	if err != nil {
		return nil, err
	}
	lpTokenID, err := e.settings.NextLPTokenID()
	if err != nil {
		return nil, err
	}
	pool := NewPool(tokenA.ID, tokenB.ID, settings.FeeRateBps, settings.ProtocolShareBps, lpTokenID)
	pool.ID = poolID
	if err := e.pools.Insert(pool); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.AMMPoolCreated{
		PoolID:    pool.ID,
		TokenID0:  pool.TokenID0,
		TokenID1:  pool.TokenID1,
		LPTokenID: pool.LPTokenID,
	}.Event())
	e.log.Info("amm pool created",
		"pool", pool.ID,
		"token0", tokenA.Symbol,
		"token1", tokenB.Symbol,
		"lpToken", pool.LPTokenID,
	)
	return pool.Copy(), nil
}

// RemovePool flags an empty pool as removed. Balances and accumulators must
// all be zero first; funds never disappear with a pool.
func (e *Engine) RemovePool(poolID uint32) error {
	if e == nil {
		return fmt.Errorf("amm: engine not initialised")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	pool, ok, err := e.pools.Get(poolID)
	if err != nil {
		return err
	}
	if !ok || pool.Removed {
		return ErrPoolNotFound
	}
	if !isZero(pool.Balance0) || !isZero(pool.Balance1) ||
		!isZero(pool.LPFee0) || !isZero(pool.LPFee1) ||
		!isZero(pool.ProtocolFee0) || !isZero(pool.ProtocolFee1) {
		return ErrPoolNotEmpty
	}
	pool.Removed = true
	if err := e.pools.Update(pool); err != nil {
		return err
	}
	e.emitter.Emit(events.AMMPoolRemoved{PoolID: pool.ID}.Event())
	e.log.Info("amm pool removed", "pool", pool.ID)
	return nil
}

// GetPool returns the pool view for a pair in either orientation.
func (e *Engine) GetPool(symbolA, symbolB string) (*PoolView, error) {
	if e == nil {
		return nil, fmt.Errorf("amm: engine not initialised")
	}
	tokenA, tokenB, err := e.resolvePair(symbolA, symbolB)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	pool, ok, err := e.pools.GetByPair(tokenA.ID, tokenB.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPoolNotFound
	}
	return e.poolView(pool)
}

// ListPools returns a view of every live pool.
func (e *Engine) ListPools() ([]*PoolView, error) {
	if e == nil {
		return nil, fmt.Errorf("amm: engine not initialised")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	pools, err := e.pools.List()
	if err != nil {
		return nil, err
	}
	views := make([]*PoolView, 0, len(pools))
	for _, pool := range pools {
		if pool.Removed {
			continue
		}
		view, err := e.poolView(pool)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// GetPrice answers a pure price query: how much of the receive token one
// unit of the pay token currently buys at mid price, display-rounded.
// Routing prefers the direct pool and otherwise the anchor path with the
// best price. A token priced against itself is 1.
func (e *Engine) GetPrice(paySymbol, receiveSymbol string) (float64, error) {
	if e == nil {
		return 0, fmt.Errorf("amm: engine not initialised")
	}
	payToken, err := e.registry.Resolve(paySymbol)
	if err != nil {
		return 0, err
	}
	receiveToken, err := e.registry.Resolve(receiveSymbol)
	if err != nil {
		return 0, err
	}
	if payToken.ID == receiveToken.ID {
		return 1, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	price, ok, err := e.bestMidPrice(payToken, receiveToken)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrPoolNotFound
	}
	rounded, ok := priceRounded(price)
	if !ok {
		return 0, ErrPoolNotFound
	}
	return rounded, nil
}

// poolView builds the display projection. Callers hold the engine lock.
func (e *Engine) poolView(pool *Pool) (*PoolView, error) {
	token0, err := e.registry.ResolveID(pool.TokenID0)
	if err != nil {
		return nil, err
	}
	token1, err := e.registry.ResolveID(pool.TokenID1)
	if err != nil {
		return nil, err
	}
	supply, err := e.shares.TotalSupply(pool.LPTokenID)
	if err != nil {
		return nil, err
	}
	view := &PoolView{
		ID:           pool.ID,
		Symbol0:      token0.Symbol,
		Symbol1:      token1.Symbol,
		Balance0:     new(big.Int).Set(pool.Balance0),
		Balance1:     new(big.Int).Set(pool.Balance1),
		LPFee0:       new(big.Int).Set(pool.LPFee0),
		LPFee1:       new(big.Int).Set(pool.LPFee1),
		ProtocolFee0: new(big.Int).Set(pool.ProtocolFee0),
		ProtocolFee1: new(big.Int).Set(pool.ProtocolFee1),
		FeeRateBps:   pool.FeeRateBps,
		LPTokenID:    pool.LPTokenID,
		LPSupply:     supply,
	}
	if mid, ok := pool.MidPrice(token0, token1); ok {
		if rounded, ok := priceRounded(mid); ok {
			view.MidPrice = rounded
		}
	}
	return view, nil
}
