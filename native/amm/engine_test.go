package amm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"mercx/core/events"
)

type transferCall struct {
	tokenID uint32
	amount  *big.Int
	account string
}

type mockLedger struct {
	nextRef   uint64
	pullErr   map[uint32]error
	pushErr   map[uint32]error
	verifyErr error
	pulls     []transferCall
	pushes    []transferCall
	// onPull runs before a pull returns, simulating state movement while
	// the engine is suspended on the external call.
	onPull func(tokenID uint32)
}

func newMockLedger() *mockLedger {
	return &mockLedger{pullErr: make(map[uint32]error), pushErr: make(map[uint32]error)}
}

func (m *mockLedger) Pull(_ context.Context, token *Token, amount *big.Int, from, _ string) (TxRef, error) {
	if m.onPull != nil {
		m.onPull(token.ID)
	}
	if err := m.pullErr[token.ID]; err != nil {
		return TxRef{}, err
	}
	m.pulls = append(m.pulls, transferCall{token.ID, new(big.Int).Set(amount), from})
	m.nextRef++
	return BlockRef(m.nextRef), nil
}

func (m *mockLedger) Push(_ context.Context, token *Token, amount *big.Int, to string) (TxRef, error) {
	if err := m.pushErr[token.ID]; err != nil {
		return TxRef{}, err
	}
	m.pushes = append(m.pushes, transferCall{token.ID, new(big.Int).Set(amount), to})
	m.nextRef++
	return BlockRef(m.nextRef), nil
}

func (m *mockLedger) Verify(_ context.Context, _ *Token, _ TxRef, _ VerifyOptions) error {
	return m.verifyErr
}

// faultyStorage rejects writes to keys under failPrefix once err is set,
// simulating a storage fault that hits one record family.
type faultyStorage struct {
	*mockStorage
	failPrefix string
	err        error
}

func (f *faultyStorage) KVPut(key []byte, value interface{}) error {
	if f.err != nil && strings.HasPrefix(string(key), f.failPrefix) {
		return f.err
	}
	return f.mockStorage.KVPut(key, value)
}

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func newTestEngine(t *testing.T) (*Engine, *mockLedger) {
	t.Helper()
	engine, ledger := newTestEngineWithStorage(t, newMockStorage())
	return engine, ledger
}

func newTestEngineWithStorage(t *testing.T, store Storage) (*Engine, *mockLedger) {
	t.Helper()
	registry := NewStaticRegistry()
	for _, token := range []*Token{
		testToken(1, "AAA", 0, 0),
		testToken(2, "BBB", 0, 0),
		testToken(3, "CCC", 0, 0),
	} {
		if err := registry.Register(token); err != nil {
			t.Fatalf("register %s: %v", token.Symbol, err)
		}
	}
	ledger := newMockLedger()
	engine := NewEngine(store, registry, ledger, "operator")
	engine.SetNowFunc(func() time.Time { return time.Unix(1700000000, 0) })
	return engine, ledger
}

func seedPool(t *testing.T, e *Engine, symbolA, symbolB string, balance0, balance1 int64) *Pool {
	t.Helper()
	pool, err := e.CreatePool(symbolA, symbolB)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if balance0 == 0 && balance1 == 0 {
		return pool
	}
	stored, ok, err := e.pools.Get(pool.ID)
	if err != nil || !ok {
		t.Fatalf("reload pool: %v ok=%v", err, ok)
	}
	stored.Balance0 = big.NewInt(balance0)
	stored.Balance1 = big.NewInt(balance1)
	if err := e.pools.Update(stored); err != nil {
		t.Fatalf("seed balances: %v", err)
	}
	return stored
}

func TestSwapExecutesAndCommits(t *testing.T) {
	engine, ledger := newTestEngine(t)
	pool := seedPool(t, engine, "AAA", "BBB", 1_000_000, 2_000_000)

	receipt, err := engine.Swap(context.Background(), "alice", "AAA", big.NewInt(10_000), "BBB",
		PullSpec{Mode: PullAuthorized}, SwapOptions{})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if receipt.NetReceive.Cmp(big.NewInt(19_742)) != 0 {
		t.Fatalf("net = %s, want 19742", receipt.NetReceive)
	}
	if receipt.PayRef.IsZero() || receipt.ReceiveRef.IsZero() {
		t.Fatalf("receipt missing transfer references: %+v", receipt)
	}

	updated, ok, err := engine.pools.Get(pool.ID)
	if err != nil || !ok {
		t.Fatalf("reload pool: %v", err)
	}
	if updated.Balance0.Cmp(big.NewInt(1_010_000)) != 0 {
		t.Fatalf("balance0 = %s", updated.Balance0)
	}
	if updated.Balance1.Cmp(big.NewInt(1_980_199)) != 0 {
		t.Fatalf("balance1 = %s", updated.Balance1)
	}
	if updated.LPFee1.Cmp(big.NewInt(59)) != 0 {
		t.Fatalf("lp fee accumulator = %s", updated.LPFee1)
	}

	if len(ledger.pulls) != 1 || ledger.pulls[0].amount.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("pulls = %+v", ledger.pulls)
	}
	if len(ledger.pushes) != 1 || ledger.pushes[0].amount.Cmp(big.NewInt(19_742)) != 0 || ledger.pushes[0].account != "alice" {
		t.Fatalf("pushes = %+v", ledger.pushes)
	}
}

func TestSwapRefundsWhenBoundsFailAfterPull(t *testing.T) {
	engine, ledger := newTestEngine(t)
	pool := seedPool(t, engine, "AAA", "BBB", 1_000_000, 2_000_000)

	// halve the receive side while the pull is in flight
	ledger.onPull = func(uint32) {
		stored, ok, err := engine.pools.Get(pool.ID)
		if err != nil || !ok {
			t.Fatalf("reload pool in hook: %v", err)
		}
		stored.Balance1 = big.NewInt(1_000_000)
		if err := engine.pools.Update(stored); err != nil {
			t.Fatalf("mutate pool in hook: %v", err)
		}
	}

	_, err := engine.Swap(context.Background(), "alice", "AAA", big.NewInt(10_000), "BBB",
		PullSpec{Mode: PullAuthorized}, SwapOptions{MinReceive: big.NewInt(19_000), MaxSlippagePct: 100})
	if !errors.Is(err, ErrMinimumReceive) {
		t.Fatalf("expected ErrMinimumReceive, got %v", err)
	}

	// the pulled leg comes back to the caller
	if len(ledger.pushes) != 1 || ledger.pushes[0].tokenID != 1 ||
		ledger.pushes[0].amount.Cmp(big.NewInt(10_000)) != 0 || ledger.pushes[0].account != "alice" {
		t.Fatalf("refund pushes = %+v", ledger.pushes)
	}
	updated, _, err := engine.pools.Get(pool.ID)
	if err != nil {
		t.Fatalf("reload pool: %v", err)
	}
	if updated.Balance0.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("aborted swap must not commit: balance0 = %s", updated.Balance0)
	}
}

func TestAddLiquidityMintsShares(t *testing.T) {
	engine, ledger := newTestEngine(t)
	pool := seedPool(t, engine, "AAA", "BBB", 0, 0)

	receipt, err := engine.AddLiquidity(context.Background(), "alice", "AAA", "BBB",
		big.NewInt(1000), big.NewInt(4000), PullSpec{Mode: PullAuthorized}, PullSpec{Mode: PullAuthorized})
	if err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	if receipt.Minted.Cmp(big.NewInt(2000)) != 0 {
		t.Fatalf("minted = %s, want 2000", receipt.Minted)
	}
	supply, err := engine.shares.TotalSupply(pool.LPTokenID)
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Cmp(big.NewInt(2000)) != 0 {
		t.Fatalf("supply = %s, want 2000", supply)
	}
	updated, _, err := engine.pools.Get(pool.ID)
	if err != nil {
		t.Fatalf("reload pool: %v", err)
	}
	if updated.Balance0.Cmp(big.NewInt(1000)) != 0 || updated.Balance1.Cmp(big.NewInt(4000)) != 0 {
		t.Fatalf("balances = %s/%s", updated.Balance0, updated.Balance1)
	}
	if len(ledger.pulls) != 2 {
		t.Fatalf("pulls = %+v", ledger.pulls)
	}
}

func TestAddLiquiditySecondPullFailureRefundsFirst(t *testing.T) {
	engine, ledger := newTestEngine(t)
	pool := seedPool(t, engine, "AAA", "BBB", 0, 0)
	ledger.pullErr[2] = fmt.Errorf("ledger declined")

	_, err := engine.AddLiquidity(context.Background(), "alice", "AAA", "BBB",
		big.NewInt(1000), big.NewInt(4000), PullSpec{Mode: PullAuthorized}, PullSpec{Mode: PullAuthorized})
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}

	if len(ledger.pushes) != 1 || ledger.pushes[0].tokenID != 1 ||
		ledger.pushes[0].amount.Cmp(big.NewInt(1000)) != 0 || ledger.pushes[0].account != "alice" {
		t.Fatalf("refund pushes = %+v", ledger.pushes)
	}
	updated, _, err := engine.pools.Get(pool.ID)
	if err != nil {
		t.Fatalf("reload pool: %v", err)
	}
	if !isZero(updated.Balance0) || !isZero(updated.Balance1) {
		t.Fatalf("aborted deposit must not commit: %s/%s", updated.Balance0, updated.Balance1)
	}
	supply, err := engine.shares.TotalSupply(pool.LPTokenID)
	if err != nil || !isZero(supply) {
		t.Fatalf("supply = %s err=%v", supply, err)
	}
}

func TestAddLiquidityStaleQuoteRefundsBoth(t *testing.T) {
	engine, ledger := newTestEngine(t)
	pool := seedPool(t, engine, "AAA", "BBB", 1000, 4000)
	if err := engine.shares.Credit(pool.LPTokenID, "seed", big.NewInt(2000)); err != nil {
		t.Fatalf("seed shares: %v", err)
	}

	// move the pool ratio while the second pull is in flight
	ledger.onPull = func(tokenID uint32) {
		if tokenID != 2 {
			return
		}
		stored, ok, err := engine.pools.Get(pool.ID)
		if err != nil || !ok {
			t.Fatalf("reload pool in hook: %v", err)
		}
		stored.Balance0 = big.NewInt(2000)
		if err := engine.pools.Update(stored); err != nil {
			t.Fatalf("mutate pool in hook: %v", err)
		}
	}

	_, err := engine.AddLiquidity(context.Background(), "alice", "AAA", "BBB",
		big.NewInt(250), big.NewInt(1000), PullSpec{Mode: PullAuthorized}, PullSpec{Mode: PullAuthorized})
	if !errors.Is(err, ErrStaleQuote) {
		t.Fatalf("expected ErrStaleQuote, got %v", err)
	}
	if len(ledger.pushes) != 2 {
		t.Fatalf("both legs must be refunded: %+v", ledger.pushes)
	}
}

func TestAddRemoveRoundTrip(t *testing.T) {
	engine, ledger := newTestEngine(t)
	pool := seedPool(t, engine, "AAA", "BBB", 0, 0)

	added, err := engine.AddLiquidity(context.Background(), "alice", "AAA", "BBB",
		big.NewInt(1000), big.NewInt(4000), PullSpec{Mode: PullAuthorized}, PullSpec{Mode: PullAuthorized})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	removed, err := engine.RemoveLiquidity(context.Background(), "alice", "AAA", "BBB", added.Minted, "")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	dust0 := subBigClamped(big.NewInt(1000), removed.Payout0)
	dust1 := subBigClamped(big.NewInt(4000), removed.Payout1)
	if dust0.Cmp(big.NewInt(1)) > 0 || dust1.Cmp(big.NewInt(1)) > 0 {
		t.Fatalf("round trip dust too large: %s/%s", dust0, dust1)
	}
	if removed.Ref0.IsZero() || removed.Ref1.IsZero() {
		t.Fatalf("payout references missing: %+v", removed)
	}

	supply, err := engine.shares.TotalSupply(pool.LPTokenID)
	if err != nil || !isZero(supply) {
		t.Fatalf("supply after full burn = %s err=%v", supply, err)
	}
	if len(ledger.pushes) != 2 {
		t.Fatalf("pushes = %+v", ledger.pushes)
	}
}

func TestRemoveLiquidityInsufficientShares(t *testing.T) {
	engine, _ := newTestEngine(t)
	seedPool(t, engine, "AAA", "BBB", 1000, 4000)

	_, err := engine.RemoveLiquidity(context.Background(), "alice", "AAA", "BBB", big.NewInt(1), "")
	if !errors.Is(err, ErrInsufficientLPBalance) {
		t.Fatalf("expected ErrInsufficientLPBalance, got %v", err)
	}
}

func TestSwapDuplicateReferenceRejected(t *testing.T) {
	engine, _ := newTestEngine(t)
	pool := seedPool(t, engine, "AAA", "BBB", 1_000_000, 2_000_000)

	pull := PullSpec{Mode: PullByReference, Ref: HashRef("0xabc")}
	if _, err := engine.Swap(context.Background(), "alice", "AAA", big.NewInt(10_000), "BBB", pull, SwapOptions{}); err != nil {
		t.Fatalf("first swap: %v", err)
	}

	before, _, err := engine.pools.Get(pool.ID)
	if err != nil {
		t.Fatalf("reload pool: %v", err)
	}
	_, err = engine.Swap(context.Background(), "alice", "AAA", big.NewInt(10_000), "BBB", pull, SwapOptions{})
	if !errors.Is(err, ErrDuplicateTransfer) {
		t.Fatalf("expected ErrDuplicateTransfer, got %v", err)
	}
	after, _, err := engine.pools.Get(pool.ID)
	if err != nil {
		t.Fatalf("reload pool: %v", err)
	}
	if before.Balance0.Cmp(after.Balance0) != 0 || before.Balance1.Cmp(after.Balance1) != 0 {
		t.Fatalf("replayed reference must not mutate the pool: %s/%s vs %s/%s",
			before.Balance0, before.Balance1, after.Balance0, after.Balance1)
	}
}

func TestQuoteSwapRoutesThroughAnchor(t *testing.T) {
	engine, _ := newTestEngine(t)
	seedPool(t, engine, "AAA", "CCC", 1_000_000, 1_000_000)
	seedPool(t, engine, "CCC", "BBB", 1_000_000, 1_000_000)

	settings, err := engine.Settings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	settings.AnchorTokenIDs = []uint32{3}
	if err := engine.UpdateSettings(settings); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	quote, err := engine.QuoteSwap("AAA", big.NewInt(10_000), "BBB", 0)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if len(quote.Hops) != 2 {
		t.Fatalf("hops = %d, want 2", len(quote.Hops))
	}
	if isZero(quote.NetReceive) {
		t.Fatal("anchor route should produce a nonzero net receive")
	}
	if quote.Hops[0].ReceiveTokenID != 3 || quote.Hops[1].ReceiveTokenID != 2 {
		t.Fatalf("unexpected hop tokens: %+v", quote.Hops)
	}
}

func TestCreatePoolRejectsDuplicatePair(t *testing.T) {
	engine, _ := newTestEngine(t)
	seedPool(t, engine, "AAA", "BBB", 0, 0)
	if _, err := engine.CreatePool("BBB", "AAA"); !errors.Is(err, ErrPoolExists) {
		t.Fatalf("expected ErrPoolExists, got %v", err)
	}
}

func TestRemovePoolRequiresZeroBalances(t *testing.T) {
	engine, _ := newTestEngine(t)
	pool := seedPool(t, engine, "AAA", "BBB", 1000, 4000)
	if err := engine.RemovePool(pool.ID); !errors.Is(err, ErrPoolNotEmpty) {
		t.Fatalf("expected ErrPoolNotEmpty, got %v", err)
	}

	empty := seedPool(t, engine, "AAA", "CCC", 0, 0)
	if err := engine.RemovePool(empty.ID); err != nil {
		t.Fatalf("remove empty pool: %v", err)
	}
	if _, err := engine.GetPool("AAA", "CCC"); !errors.Is(err, ErrPoolNotFound) {
		t.Fatalf("removed pool should be gone, got %v", err)
	}
}

func TestQuoteSameTokenPassesThrough(t *testing.T) {
	engine, _ := newTestEngine(t)

	quote, err := engine.QuoteSwap("AAA", big.NewInt(500), "AAA", 0)
	if err != nil {
		t.Fatalf("same-token quote: %v", err)
	}
	if quote.NetReceive.Cmp(big.NewInt(500)) != 0 || len(quote.Hops) != 0 {
		t.Fatalf("expected identity quote, got %+v", quote)
	}
	if quote.MidPrice != 1 || quote.ExecutionPrice != 1 {
		t.Fatalf("expected unit prices, got mid=%v exec=%v", quote.MidPrice, quote.ExecutionPrice)
	}

	price, err := engine.GetPrice("BBB", "BBB")
	if err != nil {
		t.Fatalf("same-token price: %v", err)
	}
	if price != 1 {
		t.Fatalf("expected price 1, got %v", price)
	}
}

func TestSwapRefundsWhenRecordFailsAfterPull(t *testing.T) {
	store := &faultyStorage{mockStorage: newMockStorage()}
	engine, ledger := newTestEngineWithStorage(t, store)
	pool := seedPool(t, engine, "AAA", "BBB", 1_000_000, 2_000_000)

	store.failPrefix = string(transferRecordPrefix)
	store.err = fmt.Errorf("disk full")

	_, err := engine.Swap(context.Background(), "alice", "AAA", big.NewInt(10_000), "BBB",
		PullSpec{Mode: PullAuthorized}, SwapOptions{})
	if err == nil {
		t.Fatal("expected swap to fail on the record write")
	}

	// The pull moved real funds; the failure must come back as a refund push
	// even though its own bookkeeping write fails too.
	if len(ledger.pulls) != 1 {
		t.Fatalf("pulls = %+v", ledger.pulls)
	}
	if len(ledger.pushes) != 1 || ledger.pushes[0].tokenID != 1 ||
		ledger.pushes[0].amount.Cmp(big.NewInt(10_000)) != 0 || ledger.pushes[0].account != "alice" {
		t.Fatalf("expected refund push of 10000 AAA to alice, got %+v", ledger.pushes)
	}

	updated, ok, err := engine.pools.Get(pool.ID)
	if err != nil || !ok {
		t.Fatalf("reload pool: %v", err)
	}
	if updated.Balance0.Cmp(big.NewInt(1_000_000)) != 0 || updated.Balance1.Cmp(big.NewInt(2_000_000)) != 0 {
		t.Fatalf("pool mutated despite aborted swap: %s/%s", updated.Balance0, updated.Balance1)
	}
}

func TestSwapEventCarriesCaller(t *testing.T) {
	engine, _ := newTestEngine(t)
	emitter := &captureEmitter{}
	engine.SetEmitter(emitter)
	seedPool(t, engine, "AAA", "BBB", 1_000_000, 2_000_000)

	if _, err := engine.Swap(context.Background(), "alice", "AAA", big.NewInt(10_000), "BBB",
		PullSpec{Mode: PullAuthorized}, SwapOptions{}); err != nil {
		t.Fatalf("swap: %v", err)
	}

	var swapEvent *events.Event
	for i := range emitter.events {
		if emitter.events[i].Type == events.TypeAMMSwapExecuted {
			swapEvent = &emitter.events[i]
		}
	}
	if swapEvent == nil {
		t.Fatal("no swap event emitted")
	}
	if got := swapEvent.Attributes["caller"]; got != "alice" {
		t.Fatalf("caller attribute = %q, want alice", got)
	}
}
