package server

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mercx/native/amm"
	"mercx/services/ammd/storage"
)

type fakeLedger struct {
	nextRef uint64
}

func (f *fakeLedger) Pull(_ context.Context, _ *amm.Token, _ *big.Int, _, _ string) (amm.TxRef, error) {
	f.nextRef++
	return amm.BlockRef(f.nextRef), nil
}

func (f *fakeLedger) Push(_ context.Context, _ *amm.Token, _ *big.Int, _ string) (amm.TxRef, error) {
	f.nextRef++
	return amm.BlockRef(f.nextRef), nil
}

func (f *fakeLedger) Verify(_ context.Context, _ *amm.Token, _ amm.TxRef, _ amm.VerifyOptions) error {
	return nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dsn, err := storage.FileDSN(filepath.Join(t.TempDir(), "ammd.sqlite"))
	require.NoError(t, err)
	store, err := storage.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	registry := amm.NewStaticRegistry()
	for _, token := range []*amm.Token{
		{ID: 1, Symbol: "AAA", Decimals: 0, Fee: big.NewInt(0), SupportsPull: true},
		{ID: 2, Symbol: "BBB", Decimals: 0, Fee: big.NewInt(0), SupportsPull: true},
	} {
		require.NoError(t, registry.Register(token))
	}

	engine := amm.NewEngine(store, registry, &fakeLedger{}, "operator")
	engine.SetNowFunc(func() time.Time { return time.Unix(1700000000, 0) })

	srv, err := New(Config{ListenAddress: ":0"}, engine, nil)
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, handler http.Handler, method, path string, payload interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	decoded := map[string]interface{}{}
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestServerPoolLifecycle(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Handler()

	rec, created := doJSON(t, handler, http.MethodPost, "/v1/amm/pools", map[string]string{"base": "AAA", "quote": "BBB"})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.EqualValues(t, 1, created["id"])

	rec, added := doJSON(t, handler, http.MethodPost, "/v1/amm/liquidity/add", map[string]string{
		"caller":  "alice",
		"base":    "AAA",
		"quote":   "BBB",
		"amountA": "1000",
		"amountB": "4000",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2000", added["minted"])
	require.NotEmpty(t, added["receiptId"])

	rec, pool := doJSON(t, handler, http.MethodGet, "/v1/amm/pools/AAA/BBB", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1000", pool["balance0"])
	require.Equal(t, "4000", pool["balance1"])
	require.Equal(t, "2000", pool["lpSupply"])

	rec, price := doJSON(t, handler, http.MethodGet, "/v1/amm/price?pay=AAA&receive=BBB", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.InDelta(t, 4.0, price["price"], 0.0001)
}

func TestServerQuoteAndSwap(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Handler()

	rec, _ := doJSON(t, handler, http.MethodPost, "/v1/amm/pools", map[string]string{"base": "AAA", "quote": "BBB"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = doJSON(t, handler, http.MethodPost, "/v1/amm/liquidity/add", map[string]string{
		"caller":  "alice",
		"base":    "AAA",
		"quote":   "BBB",
		"amountA": "1000000",
		"amountB": "2000000",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, quote := doJSON(t, handler, http.MethodPost, "/v1/amm/quote", map[string]string{
		"pay":     "AAA",
		"amount":  "10000",
		"receive": "BBB",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "19801", quote["grossReceive"])
	require.Equal(t, "19742", quote["netReceive"])

	rec, swapped := doJSON(t, handler, http.MethodPost, "/v1/amm/swap", map[string]interface{}{
		"caller":  "bob",
		"pay":     "AAA",
		"amount":  "10000",
		"receive": "BBB",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "19742", swapped["netReceive"])
	require.NotEmpty(t, swapped["payRef"])
	require.NotEmpty(t, swapped["receiveRef"])
}

func TestServerValidation(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Handler()

	rec, _ := doJSON(t, handler, http.MethodGet, "/v1/amm/pools/AAA/ZZZ", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doJSON(t, handler, http.MethodPost, "/v1/amm/quote", map[string]string{
		"pay":     "AAA",
		"amount":  "-5",
		"receive": "BBB",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, handler, http.MethodPost, "/v1/amm/swap", map[string]interface{}{
		"caller":   "bob",
		"pay":      "AAA",
		"amount":   "10",
		"receive":  "BBB",
		"pullMode": "reference",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimiterThrottlesPerClient(t *testing.T) {
	rl := newRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 2}, nil)
	require.True(t, rl.allow("10.0.0.1"))
	require.True(t, rl.allow("10.0.0.1"))
	require.False(t, rl.allow("10.0.0.1"))
	require.True(t, rl.allow("10.0.0.2"))
}
