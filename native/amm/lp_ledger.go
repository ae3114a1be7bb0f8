package amm

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
)

type storedLPShare struct {
	Owner     string
	LPTokenID uint32
	Amount    string
	UpdatedAt uint64
}

type lpOwnerIndexEntry struct {
	Owner string
}

// LPLedger tracks per-owner proportional claims on a pool. The sum of all
// records for an LP token id is that token's total supply, the mandatory
// denominator for every proportional payout.
type LPLedger struct {
	store Storage
	clock func() time.Time
}

// NewLPLedger constructs an LP-share ledger over the provided storage.
func NewLPLedger(store Storage) *LPLedger {
	return &LPLedger{store: store, clock: time.Now}
}

// SetClock overrides the time source for deterministic testing.
func (l *LPLedger) SetClock(clock func() time.Time) {
	if l == nil || clock == nil {
		return
	}
	l.clock = clock
}

// Get retrieves the share record for one owner.
func (l *LPLedger) Get(lpTokenID uint32, owner string) (*LPShare, bool, error) {
	if l == nil {
		return nil, false, fmt.Errorf("amm: lp ledger not initialised")
	}
	var stored storedLPShare
	ok, err := l.store.KVGet(lpShareKey(lpTokenID, owner), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	amount, err := parseAmount(stored.Amount)
	if err != nil {
		return nil, false, err
	}
	updatedAt, err := uint64ToInt64(stored.UpdatedAt)
	if err != nil {
		return nil, false, err
	}
	return &LPShare{
		Owner:     stored.Owner,
		LPTokenID: stored.LPTokenID,
		Amount:    amount,
		UpdatedAt: updatedAt,
	}, true, nil
}

// Credit adds minted shares to the owner's record, creating it on first
// deposit.
func (l *LPLedger) Credit(lpTokenID uint32, owner string, amount *big.Int) error {
	if l == nil {
		return fmt.Errorf("amm: lp ledger not initialised")
	}
	if isZero(amount) {
		return ErrZeroAmount
	}
	share, ok, err := l.Get(lpTokenID, owner)
	if err != nil {
		return err
	}
	if !ok {
		share = &LPShare{Owner: strings.TrimSpace(owner), LPTokenID: lpTokenID, Amount: bigZero()}
		entry, err := rlp.EncodeToBytes(lpOwnerIndexEntry{Owner: share.Owner})
		if err != nil {
			return err
		}
		if err := l.store.KVAppend(lpOwnerIndexKey(lpTokenID), entry); err != nil {
			return err
		}
	}
	share.Amount = addBig(share.Amount, amount)
	return l.put(share)
}

// Debit burns shares from the owner's record. The record is retained at zero
// rather than deleted. Fails with ErrInsufficientLPBalance when the burn
// exceeds the recorded amount.
func (l *LPLedger) Debit(lpTokenID uint32, owner string, amount *big.Int) error {
	if l == nil {
		return fmt.Errorf("amm: lp ledger not initialised")
	}
	if isZero(amount) {
		return ErrZeroAmount
	}
	share, ok, err := l.Get(lpTokenID, owner)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInsufficientLPBalance
	}
	remaining, underflow := subBig(share.Amount, amount)
	if !underflow {
		return ErrInsufficientLPBalance
	}
	share.Amount = remaining
	return l.put(share)
}

// TotalSupply sums every owner's share for the LP token id.
func (l *LPLedger) TotalSupply(lpTokenID uint32) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("amm: lp ledger not initialised")
	}
	owners, err := l.owners(lpTokenID)
	if err != nil {
		return nil, err
	}
	total := bigZero()
	for _, owner := range owners {
		share, ok, err := l.Get(lpTokenID, owner)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		total = addBig(total, share.Amount)
	}
	return total, nil
}

// Shares returns every recorded share for the LP token id, zero balances
// included.
func (l *LPLedger) Shares(lpTokenID uint32) ([]*LPShare, error) {
	owners, err := l.owners(lpTokenID)
	if err != nil {
		return nil, err
	}
	shares := make([]*LPShare, 0, len(owners))
	for _, owner := range owners {
		share, ok, err := l.Get(lpTokenID, owner)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		shares = append(shares, share)
	}
	return shares, nil
}

func (l *LPLedger) owners(lpTokenID uint32) ([]string, error) {
	var raw [][]byte
	if err := l.store.KVGetList(lpOwnerIndexKey(lpTokenID), &raw); err != nil {
		return nil, err
	}
	owners := make([]string, 0, len(raw))
	for _, encoded := range raw {
		var entry lpOwnerIndexEntry
		if err := rlp.DecodeBytes(encoded, &entry); err != nil {
			return nil, err
		}
		owners = append(owners, entry.Owner)
	}
	return owners, nil
}

func (l *LPLedger) put(share *LPShare) error {
	stored := storedLPShare{
		Owner:     strings.TrimSpace(share.Owner),
		LPTokenID: share.LPTokenID,
		Amount:    formatAmount(share.Amount),
		UpdatedAt: sanitizeUnix(l.clock().UTC().Unix()),
	}
	return l.store.KVPut(lpShareKey(share.LPTokenID, share.Owner), stored)
}
