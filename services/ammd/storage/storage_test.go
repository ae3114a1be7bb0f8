package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type sampleRecord struct {
	Name   string
	Amount string
	Count  uint64
}

func openTestStorage(t *testing.T) *Storage {
	t.Helper()
	dsn, err := FileDSN(filepath.Join(t.TempDir(), "ammd.sqlite"))
	require.NoError(t, err)
	store, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestKVPutGetRoundTrip(t *testing.T) {
	store := openTestStorage(t)
	key := []byte("amm/pool/record/1")
	in := sampleRecord{Name: "pool", Amount: "1000000", Count: 3}

	require.NoError(t, store.KVPut(key, in))
	var out sampleRecord
	ok, err := store.KVGet(key, &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, in, out)

	// put replaces in place
	in.Amount = "2000000"
	require.NoError(t, store.KVPut(key, in))
	ok, err = store.KVGet(key, &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2000000", out.Amount)
}

func TestKVGetMissingKey(t *testing.T) {
	store := openTestStorage(t)
	var out sampleRecord
	ok, err := store.KVGet([]byte("absent"), &out)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKVAppendPreservesOrder(t *testing.T) {
	store := openTestStorage(t)
	key := []byte("amm/pool/index")
	require.NoError(t, store.KVAppend(key, []byte{0x01}))
	require.NoError(t, store.KVAppend(key, []byte{0x02}))
	require.NoError(t, store.KVAppend(key, []byte{0x03}))
	require.NoError(t, store.KVAppend([]byte("other"), []byte{0xff}))

	var entries [][]byte
	require.NoError(t, store.KVGetList(key, &entries))
	require.Equal(t, [][]byte{{0x01}, {0x02}, {0x03}}, entries)
}

func TestFileDSNRequiresPath(t *testing.T) {
	_, err := FileDSN("  ")
	require.ErrorIs(t, err, ErrPathRequired)
}
