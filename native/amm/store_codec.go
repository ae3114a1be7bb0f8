package amm

import (
	"fmt"
	"math"
	"math/big"
	"strings"
)

// Stored mirror structs keep amounts as decimal strings because RLP has no
// native big.Int-with-sign form and the ledgers only ever hold non-negative
// values.

func formatAmount(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return bigZero(), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("amm: invalid stored amount %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amm: negative stored amount %q", raw)
	}
	return value, nil
}

func sanitizeUnix(ts int64) uint64 {
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func uint64ToInt64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("amm: timestamp %d overflows int64", v)
	}
	return int64(v), nil
}

func formatTxRef(ref TxRef) (kind string, value string) {
	if ref.BlockIndex != nil {
		return "block", ref.BlockIndex.String()
	}
	return "hash", strings.TrimSpace(ref.Hash)
}

func parseTxRef(kind, value string) (TxRef, error) {
	switch kind {
	case "block":
		index, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
		if !ok || index.Sign() < 0 {
			return TxRef{}, fmt.Errorf("amm: invalid stored block index %q", value)
		}
		return TxRef{BlockIndex: index}, nil
	case "hash":
		return HashRef(value), nil
	default:
		return TxRef{}, fmt.Errorf("amm: unknown transfer reference kind %q", kind)
	}
}
