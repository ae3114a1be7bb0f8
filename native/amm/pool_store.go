package amm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

type storedPool struct {
	ID               uint32
	TokenID0         uint32
	TokenID1         uint32
	Balance0         string
	Balance1         string
	LPFee0           string
	LPFee1           string
	ProtocolFee0     string
	ProtocolFee1     string
	FeeRateBps       uint16
	ProtocolShareBps uint16
	LPTokenID        uint32
	Removed          bool
}

func toStoredPool(p *Pool) storedPool {
	return storedPool{
		ID:               p.ID,
		TokenID0:         p.TokenID0,
		TokenID1:         p.TokenID1,
		Balance0:         formatAmount(p.Balance0),
		Balance1:         formatAmount(p.Balance1),
		LPFee0:           formatAmount(p.LPFee0),
		LPFee1:           formatAmount(p.LPFee1),
		ProtocolFee0:     formatAmount(p.ProtocolFee0),
		ProtocolFee1:     formatAmount(p.ProtocolFee1),
		FeeRateBps:       p.FeeRateBps,
		ProtocolShareBps: p.ProtocolShareBps,
		LPTokenID:        p.LPTokenID,
		Removed:          p.Removed,
	}
}

func fromStoredPool(stored *storedPool) (*Pool, error) {
	pool := &Pool{
		ID:               stored.ID,
		TokenID0:         stored.TokenID0,
		TokenID1:         stored.TokenID1,
		FeeRateBps:       stored.FeeRateBps,
		ProtocolShareBps: stored.ProtocolShareBps,
		LPTokenID:        stored.LPTokenID,
		Removed:          stored.Removed,
	}
	var err error
	if pool.Balance0, err = parseAmount(stored.Balance0); err != nil {
		return nil, err
	}
	if pool.Balance1, err = parseAmount(stored.Balance1); err != nil {
		return nil, err
	}
	if pool.LPFee0, err = parseAmount(stored.LPFee0); err != nil {
		return nil, err
	}
	if pool.LPFee1, err = parseAmount(stored.LPFee1); err != nil {
		return nil, err
	}
	if pool.ProtocolFee0, err = parseAmount(stored.ProtocolFee0); err != nil {
		return nil, err
	}
	if pool.ProtocolFee1, err = parseAmount(stored.ProtocolFee1); err != nil {
		return nil, err
	}
	return pool, nil
}

type storedPoolIndexEntry struct {
	PoolID uint32
}

// PoolStore persists pool records and the order-independent pair index in
// the underlying key-value store.
type PoolStore struct {
	store Storage
}

// NewPoolStore constructs a PoolStore backed by the provided storage.
func NewPoolStore(store Storage) *PoolStore {
	return &PoolStore{store: store}
}

// Get retrieves a pool by id.
func (s *PoolStore) Get(id uint32) (*Pool, bool, error) {
	if s == nil {
		return nil, false, fmt.Errorf("amm: pool store not initialised")
	}
	var stored storedPool
	ok, err := s.store.KVGet(poolKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	pool, err := fromStoredPool(&stored)
	if err != nil {
		return nil, false, err
	}
	return pool, true, nil
}

// GetByPair retrieves the live pool covering the unordered token pair,
// regardless of which orientation the caller supplies.
func (s *PoolStore) GetByPair(tokenA, tokenB uint32) (*Pool, bool, error) {
	if s == nil {
		return nil, false, fmt.Errorf("amm: pool store not initialised")
	}
	var entry storedPoolIndexEntry
	ok, err := s.store.KVGet(poolPairKey(tokenA, tokenB), &entry)
	if err != nil || !ok {
		return nil, false, err
	}
	pool, ok, err := s.Get(entry.PoolID)
	if err != nil || !ok {
		return nil, false, err
	}
	if pool.Removed {
		return nil, false, nil
	}
	return pool, true, nil
}

// ExistsForPair reports whether a live pool covers the unordered pair.
func (s *PoolStore) ExistsForPair(tokenA, tokenB uint32) (bool, error) {
	_, ok, err := s.GetByPair(tokenA, tokenB)
	return ok, err
}

// Insert persists a new pool under its pre-allocated id. It fails with
// ErrPoolExists when a live pool already covers the pair in either order.
func (s *PoolStore) Insert(pool *Pool) error {
	if s == nil {
		return fmt.Errorf("amm: pool store not initialised")
	}
	if pool == nil {
		return fmt.Errorf("amm: pool must not be nil")
	}
	if pool.TokenID0 == pool.TokenID1 {
		return ErrSameToken
	}
	exists, err := s.ExistsForPair(pool.TokenID0, pool.TokenID1)
	if err != nil {
		return err
	}
	if exists {
		return ErrPoolExists
	}
	if err := s.store.KVPut(poolKey(pool.ID), toStoredPool(pool)); err != nil {
		return err
	}
	if err := s.store.KVPut(poolPairKey(pool.TokenID0, pool.TokenID1), storedPoolIndexEntry{PoolID: pool.ID}); err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(storedPoolIndexEntry{PoolID: pool.ID})
	if err != nil {
		return err
	}
	return s.store.KVAppend(poolIndexKey, encoded)
}

// Update fully replaces the stored pool record.
func (s *PoolStore) Update(pool *Pool) error {
	if s == nil {
		return fmt.Errorf("amm: pool store not initialised")
	}
	if pool == nil {
		return fmt.Errorf("amm: pool must not be nil")
	}
	var existing storedPool
	ok, err := s.store.KVGet(poolKey(pool.ID), &existing)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPoolNotFound
	}
	return s.store.KVPut(poolKey(pool.ID), toStoredPool(pool))
}

// List returns every pool ever created, removed pools included.
func (s *PoolStore) List() ([]*Pool, error) {
	if s == nil {
		return nil, fmt.Errorf("amm: pool store not initialised")
	}
	var raw [][]byte
	if err := s.store.KVGetList(poolIndexKey, &raw); err != nil {
		return nil, err
	}
	pools := make([]*Pool, 0, len(raw))
	for _, encoded := range raw {
		var entry storedPoolIndexEntry
		if err := rlp.DecodeBytes(encoded, &entry); err != nil {
			return nil, err
		}
		pool, ok, err := s.Get(entry.PoolID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		pools = append(pools, pool)
	}
	return pools, nil
}
