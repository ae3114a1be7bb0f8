package amm

import (
	"fmt"
	"math/big"
	"strings"
)

// Token describes an asset as resolved through the token registry. The
// registry is an external collaborator; the engine never mutates tokens.
type Token struct {
	ID       uint32
	Symbol   string
	Name     string
	Address  string
	Decimals uint8
	// Fee is the network fee the token's ledger charges per transfer, in the
	// token's native precision. Deducted from every outbound push.
	Fee *big.Int
	// SupportsPull reports whether the ledger honours operator-initiated
	// pulls under a prior authorization.
	SupportsPull bool
	Removed      bool
}

// Copy returns a deep copy to avoid callers mutating shared pointers.
func (t *Token) Copy() *Token {
	if t == nil {
		return nil
	}
	clone := *t
	if t.Fee != nil {
		clone.Fee = new(big.Int).Set(t.Fee)
	}
	return &clone
}

// NetworkFee returns the ledger transfer fee, treating nil as zero.
func (t *Token) NetworkFee() *big.Int {
	if t == nil || t.Fee == nil {
		return bigZero()
	}
	return new(big.Int).Set(t.Fee)
}

// Pool is the authoritative reserve state for one unordered token pair.
// A side's reserve is its balance plus the accumulated LP fee for that side;
// the protocol fee accumulators sit outside the reserves and therefore never
// price a trade.
type Pool struct {
	ID           uint32
	TokenID0     uint32
	TokenID1     uint32
	Balance0     *big.Int
	Balance1     *big.Int
	LPFee0       *big.Int
	LPFee1       *big.Int
	ProtocolFee0 *big.Int
	ProtocolFee1 *big.Int
	// FeeRateBps is the total swap fee charged on output, in basis points.
	FeeRateBps uint16
	// ProtocolShareBps is the slice of FeeRateBps diverted to the protocol
	// accumulator instead of the LP accumulator.
	ProtocolShareBps uint16
	LPTokenID        uint32
	Removed          bool
}

// NewPool initialises a pool with zeroed balances and accumulators.
func NewPool(tokenID0, tokenID1 uint32, feeRateBps, protocolShareBps uint16, lpTokenID uint32) *Pool {
	return &Pool{
		TokenID0:         tokenID0,
		TokenID1:         tokenID1,
		Balance0:         bigZero(),
		Balance1:         bigZero(),
		LPFee0:           bigZero(),
		LPFee1:           bigZero(),
		ProtocolFee0:     bigZero(),
		ProtocolFee1:     bigZero(),
		FeeRateBps:       feeRateBps,
		ProtocolShareBps: protocolShareBps,
		LPTokenID:        lpTokenID,
	}
}

// Copy returns a deep copy of the pool.
func (p *Pool) Copy() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Balance0 = addBig(p.Balance0, nil)
	clone.Balance1 = addBig(p.Balance1, nil)
	clone.LPFee0 = addBig(p.LPFee0, nil)
	clone.LPFee1 = addBig(p.LPFee1, nil)
	clone.ProtocolFee0 = addBig(p.ProtocolFee0, nil)
	clone.ProtocolFee1 = addBig(p.ProtocolFee1, nil)
	return &clone
}

// Reserve0 returns balance plus accumulated LP fee for side 0.
func (p *Pool) Reserve0() *big.Int {
	return addBig(p.Balance0, p.LPFee0)
}

// Reserve1 returns balance plus accumulated LP fee for side 1.
func (p *Pool) Reserve1() *big.Int {
	return addBig(p.Balance1, p.LPFee1)
}

// HasToken reports whether the pool carries the supplied token on either side.
func (p *Pool) HasToken(tokenID uint32) bool {
	return p != nil && (p.TokenID0 == tokenID || p.TokenID1 == tokenID)
}

// OtherToken returns the opposite side's token id.
func (p *Pool) OtherToken(tokenID uint32) uint32 {
	if p.TokenID0 == tokenID {
		return p.TokenID1
	}
	return p.TokenID0
}

// MidPrice returns reserve1/reserve0 at the higher of the two tokens'
// precisions. Reports false when side 0 holds no reserve.
func (p *Pool) MidPrice(token0, token1 *Token) (*big.Rat, bool) {
	reserve0 := p.Reserve0()
	if isZero(reserve0) {
		return nil, false
	}
	maxDec := maxDecimals(token0, token1)
	scaled0 := rescaleAmount(reserve0, token0.Decimals, maxDec)
	scaled1 := rescaleAmount(p.Reserve1(), token1.Decimals, maxDec)
	return ratio(scaled1, scaled0)
}

func maxDecimals(t0, t1 *Token) uint8 {
	if t0.Decimals >= t1.Decimals {
		return t0.Decimals
	}
	return t1.Decimals
}

// LPShare records one owner's proportional claim on a pool, keyed by the
// pool's LP token id. Records are retained at zero rather than deleted.
type LPShare struct {
	Owner     string
	LPTokenID uint32
	Amount    *big.Int
	UpdatedAt int64
}

// Copy returns a deep copy of the share record.
func (s *LPShare) Copy() *LPShare {
	if s == nil {
		return nil
	}
	clone := *s
	if s.Amount != nil {
		clone.Amount = new(big.Int).Set(s.Amount)
	}
	return &clone
}

// TxRef is an opaque proof that a value movement occurred on the external
// asset ledger: either a ledger block index or a transaction hash, never
// both. It anchors the anti-replay uniqueness guarantee.
type TxRef struct {
	BlockIndex *big.Int
	Hash       string
}

// BlockRef builds a block-index reference.
func BlockRef(index uint64) TxRef {
	return TxRef{BlockIndex: new(big.Int).SetUint64(index)}
}

// HashRef builds a transaction-hash reference.
func HashRef(hash string) TxRef {
	return TxRef{Hash: strings.TrimSpace(hash)}
}

// IsZero reports whether the reference carries no proof.
func (r TxRef) IsZero() bool {
	return r.BlockIndex == nil && strings.TrimSpace(r.Hash) == ""
}

// String renders a stable textual form used for index keys and receipts.
func (r TxRef) String() string {
	if r.BlockIndex != nil {
		return fmt.Sprintf("block:%s", r.BlockIndex.String())
	}
	if hash := strings.TrimSpace(r.Hash); hash != "" {
		return "hash:" + strings.ToLower(hash)
	}
	return ""
}

// Transfer kinds recorded on the transfer ledger.
const (
	TransferKindSwap            = "swap"
	TransferKindLiquidityAdd    = "liquidity_add"
	TransferKindLiquidityRemove = "liquidity_remove"
	TransferKindRefund          = "refund"
)

// TransferRecord is an append-only audit entry for one external asset
// movement. (TokenID, Ref) is unique across all records; that constraint is
// the double-spend guard for caller-submitted references.
type TransferRecord struct {
	ID        uint64
	Inbound   bool
	Amount    *big.Int
	TokenID   uint32
	Ref       TxRef
	Kind      string
	Timestamp int64
}

// Copy returns a deep copy of the record.
func (t *TransferRecord) Copy() *TransferRecord {
	if t == nil {
		return nil
	}
	clone := *t
	if t.Amount != nil {
		clone.Amount = new(big.Int).Set(t.Amount)
	}
	if t.Ref.BlockIndex != nil {
		clone.Ref.BlockIndex = new(big.Int).Set(t.Ref.BlockIndex)
	}
	return &clone
}

// SwapCalc is the ephemeral per-hop result of pricing a swap against one
// pool. ReceiveAmount is gross: it keeps constant K with PayAmount, while
// LPFee and GasFee are deducted from it on payout.
type SwapCalc struct {
	PoolID         uint32
	PayTokenID     uint32
	PayAmount      *big.Int
	ReceiveTokenID uint32
	ReceiveAmount  *big.Int
	LPFee          *big.Int
	GasFee         *big.Int
}

// NetReceive returns the amount the caller actually receives after the LP
// fee and network fee are taken off, floored at zero.
func (c *SwapCalc) NetReceive() *big.Int {
	fees := addBig(c.LPFee, c.GasFee)
	return subBigClamped(c.ReceiveAmount, fees)
}
