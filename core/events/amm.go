package events

import (
	"math/big"
	"strconv"
	"strings"
)

const (
	TypeAMMPoolCreated      = "amm.pool.created"
	TypeAMMPoolRemoved      = "amm.pool.removed"
	TypeAMMSwapExecuted     = "amm.swap.executed"
	TypeAMMLiquidityAdded   = "amm.liquidity.added"
	TypeAMMLiquidityRemoved = "amm.liquidity.removed"
	TypeAMMRefundAttempted  = "amm.refund.attempted"
)

func formatUint32(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}

func formatAmount(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

type AMMPoolCreated struct {
	PoolID    uint32
	TokenID0  uint32
	TokenID1  uint32
	LPTokenID uint32
}

func (e AMMPoolCreated) Event() Event {
	return Event{
		Type: TypeAMMPoolCreated,
		Attributes: map[string]string{
			"poolId":    formatUint32(e.PoolID),
			"token0":    formatUint32(e.TokenID0),
			"token1":    formatUint32(e.TokenID1),
			"lpTokenId": formatUint32(e.LPTokenID),
		},
	}
}

type AMMPoolRemoved struct {
	PoolID uint32
}

func (e AMMPoolRemoved) Event() Event {
	return Event{
		Type:       TypeAMMPoolRemoved,
		Attributes: map[string]string{"poolId": formatUint32(e.PoolID)},
	}
}

type AMMSwapExecuted struct {
	PoolID         uint32
	Caller         string
	PayTokenID     uint32
	PayAmount      *big.Int
	ReceiveTokenID uint32
	NetReceive     *big.Int
	LPFee          *big.Int
	ProtocolFee    *big.Int
}

func (e AMMSwapExecuted) Event() Event {
	return Event{
		Type: TypeAMMSwapExecuted,
		Attributes: map[string]string{
			"poolId":       formatUint32(e.PoolID),
			"caller":       strings.TrimSpace(e.Caller),
			"payToken":     formatUint32(e.PayTokenID),
			"payAmount":    formatAmount(e.PayAmount),
			"receiveToken": formatUint32(e.ReceiveTokenID),
			"netReceive":   formatAmount(e.NetReceive),
			"lpFee":        formatAmount(e.LPFee),
			"protocolFee":  formatAmount(e.ProtocolFee),
		},
	}
}

type AMMLiquidityAdded struct {
	PoolID    uint32
	Provider  string
	Amount0   *big.Int
	Amount1   *big.Int
	Minted    *big.Int
	LPTokenID uint32
}

func (e AMMLiquidityAdded) Event() Event {
	return Event{
		Type: TypeAMMLiquidityAdded,
		Attributes: map[string]string{
			"poolId":    formatUint32(e.PoolID),
			"provider":  strings.TrimSpace(e.Provider),
			"amount0":   formatAmount(e.Amount0),
			"amount1":   formatAmount(e.Amount1),
			"minted":    formatAmount(e.Minted),
			"lpTokenId": formatUint32(e.LPTokenID),
		},
	}
}

type AMMLiquidityRemoved struct {
	PoolID    uint32
	Provider  string
	Burned    *big.Int
	Payout0   *big.Int
	Payout1   *big.Int
	LPTokenID uint32
}

func (e AMMLiquidityRemoved) Event() Event {
	return Event{
		Type: TypeAMMLiquidityRemoved,
		Attributes: map[string]string{
			"poolId":    formatUint32(e.PoolID),
			"provider":  strings.TrimSpace(e.Provider),
			"burned":    formatAmount(e.Burned),
			"payout0":   formatAmount(e.Payout0),
			"payout1":   formatAmount(e.Payout1),
			"lpTokenId": formatUint32(e.LPTokenID),
		},
	}
}

type AMMRefundAttempted struct {
	TokenID   uint32
	Recipient string
	Amount    *big.Int
	Succeeded bool
}

func (e AMMRefundAttempted) Event() Event {
	return Event{
		Type: TypeAMMRefundAttempted,
		Attributes: map[string]string{
			"token":     formatUint32(e.TokenID),
			"recipient": strings.TrimSpace(e.Recipient),
			"amount":    formatAmount(e.Amount),
			"succeeded": strconv.FormatBool(e.Succeeded),
		},
	}
}
