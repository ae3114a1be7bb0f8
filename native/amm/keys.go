package amm

import (
	"strconv"
	"strings"
)

var (
	poolRecordPrefix     = []byte("amm/pool/record/")
	poolPairIndexPrefix  = []byte("amm/pool/pair/")
	poolIndexKey         = []byte("amm/pool/index")
	lpShareRecordPrefix  = []byte("amm/lp/share/")
	lpOwnerIndexPrefix   = []byte("amm/lp/owners/")
	transferRecordPrefix = []byte("amm/transfer/record/")
	transferRefPrefix    = []byte("amm/transfer/ref/")
	settingsKey          = []byte("amm/settings")
)

func appendKey(prefix []byte, suffix string) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return buf
}

func poolKey(id uint32) []byte {
	return appendKey(poolRecordPrefix, strconv.FormatUint(uint64(id), 10))
}

// poolPairKey is order-independent: the smaller token id always leads.
func poolPairKey(tokenA, tokenB uint32) []byte {
	lo, hi := tokenA, tokenB
	if lo > hi {
		lo, hi = hi, lo
	}
	suffix := strconv.FormatUint(uint64(lo), 10) + ":" + strconv.FormatUint(uint64(hi), 10)
	return appendKey(poolPairIndexPrefix, suffix)
}

func lpShareKey(lpTokenID uint32, owner string) []byte {
	suffix := strconv.FormatUint(uint64(lpTokenID), 10) + "/" + strings.TrimSpace(owner)
	return appendKey(lpShareRecordPrefix, suffix)
}

func lpOwnerIndexKey(lpTokenID uint32) []byte {
	return appendKey(lpOwnerIndexPrefix, strconv.FormatUint(uint64(lpTokenID), 10))
}

func transferKey(id uint64) []byte {
	return appendKey(transferRecordPrefix, strconv.FormatUint(id, 10))
}

// transferRefKey indexes the (token, external reference) pair whose
// uniqueness is the double-spend guard.
func transferRefKey(tokenID uint32, ref TxRef) []byte {
	suffix := strconv.FormatUint(uint64(tokenID), 10) + "/" + ref.String()
	return appendKey(transferRefPrefix, suffix)
}
