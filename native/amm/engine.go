package amm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"sync"
	"time"

	"mercx/core/events"
	"mercx/observability/metrics"
)

// LedgerClient executes value movements on the external asset ledger. Every
// call may fail independently; the engine never assumes a movement happened
// without the returned reference.
type LedgerClient interface {
	// Pull moves amount from the holder into the operating account under a
	// prior authorization, returning the ledger's transfer reference.
	Pull(ctx context.Context, token *Token, amount *big.Int, from, to string) (TxRef, error)
	// Push moves amount from the operating account to the recipient.
	Push(ctx context.Context, token *Token, amount *big.Int, to string) (TxRef, error)
	// Verify confirms that the referenced transfer happened with the
	// expected shape.
	Verify(ctx context.Context, token *Token, ref TxRef, opts VerifyOptions) error
}

// VerifyOptions carries the expected shape of an externally-submitted
// transfer for re-verification.
type VerifyOptions struct {
	Sender    string
	Recipient string
	Amount    *big.Int
	// Window rejects transfers older than now minus the window as stale.
	Window time.Duration
}

// PullMode selects how an inbound leg is funded.
type PullMode int

const (
	// PullAuthorized has the engine pull the funds itself under a prior
	// authorization on the token's ledger.
	PullAuthorized PullMode = iota + 1
	// PullByReference trusts the caller already moved the funds and
	// re-verifies the supplied reference against the ledger.
	PullByReference
)

// PullSpec is the tagged pull instruction for one inbound leg.
type PullSpec struct {
	Mode PullMode
	// Ref is the caller-supplied transfer reference, PullByReference only.
	Ref TxRef
}

// Engine orchestrates swaps and liquidity operations: it sequences external
// pulls and pushes around the pricing and provisioning math, records every
// movement on the transfer ledger, and compensates partial failures with
// best-effort refunds.
//
// The mutex guards synchronous state sections only. It is never held across
// a ledger call, so state read before an external movement is stale by the
// time the movement settles; every commit path re-reads under the lock and
// re-validates against what it finds.
type Engine struct {
	mu        sync.Mutex
	pools     *PoolStore
	shares    *LPLedger
	transfers *TransferLedger
	settings  *SettingsStore
	registry  TokenRegistry
	ledger    LedgerClient
	emitter   events.Emitter
	metrics   *metrics.AMMMetrics
	log       *slog.Logger
	now       func() time.Time
	// operator is the operating account all pulls land in and all pushes
	// leave from.
	operator string
}

// NewEngine constructs the orchestrator over the provided storage and
// collaborators.
func NewEngine(store Storage, registry TokenRegistry, ledger LedgerClient, operator string) *Engine {
	settings := NewSettingsStore(store)
	return &Engine{
		pools:     NewPoolStore(store),
		shares:    NewLPLedger(store),
		transfers: NewTransferLedger(store, settings),
		settings:  settings,
		registry:  registry,
		ledger:    ledger,
		emitter:   events.NoopEmitter{},
		log:       slog.Default(),
		now:       time.Now,
		operator:  operator,
	}
}

// SetEmitter wires an event emitter. Nil resets to the no-op emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetMetrics wires the prometheus collectors. Nil disables them.
func (e *Engine) SetMetrics(m *metrics.AMMMetrics) {
	if e == nil {
		return
	}
	e.metrics = m
}

// SetLogger overrides the engine logger.
func (e *Engine) SetLogger(log *slog.Logger) {
	if e == nil || log == nil {
		return
	}
	e.log = log
}

// SetNowFunc overrides the time source for deterministic testing. The
// override propagates to the ledgers.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if e == nil || now == nil {
		return
	}
	e.now = now
	e.shares.SetClock(now)
	e.transfers.SetClock(now)
}

// Settings returns the current settings record.
func (e *Engine) Settings() (*Settings, error) {
	if e == nil {
		return nil, fmt.Errorf("amm: engine not initialised")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.Get()
}

// UpdateSettings replaces the mutable parameters, preserving the monotonic
// counters.
func (e *Engine) UpdateSettings(update *Settings) error {
	if e == nil {
		return fmt.Errorf("amm: engine not initialised")
	}
	if update == nil {
		return fmt.Errorf("amm: nil settings")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	current, err := e.settings.Get()
	if err != nil {
		return err
	}
	next := update.Copy()
	next.NextPoolID = current.NextPoolID
	next.NextLPTokenID = current.NextLPTokenID
	next.NextTransferID = current.NextTransferID
	return e.settings.Put(next)
}

// pullFunds executes one inbound leg and records it. For PullByReference the
// uniqueness of (token, reference) is checked against the live transfer
// ledger inside the same locked section as the insert.
func (e *Engine) pullFunds(ctx context.Context, token *Token, amount *big.Int, from string, spec PullSpec, kind string) (TxRef, error) {
	if isZero(amount) {
		return TxRef{}, ErrZeroAmount
	}
	switch spec.Mode {
	case PullAuthorized:
		if !token.SupportsPull {
			return TxRef{}, ErrPullUnsupported
		}
		ref, err := e.ledger.Pull(ctx, token, amount, from, e.operator)
		if err != nil {
			e.metrics.IncTransferFailure("inbound")
			return TxRef{}, fmt.Errorf("%w: pull %s from %s: %v", ErrTransferFailed, token.Symbol, from, err)
		}
		if err := e.recordTransfer(&TransferRecord{Inbound: true, Amount: amount, TokenID: token.ID, Ref: ref, Kind: kind}); err != nil {
			// The funds already moved; send them back before surfacing the
			// record failure.
			e.refundFunds(ctx, token, amount, from)
			return TxRef{}, err
		}
		return ref, nil
	case PullByReference:
		if spec.Ref.IsZero() {
			return TxRef{}, fmt.Errorf("amm: empty transfer reference")
		}
		settings, err := e.Settings()
		if err != nil {
			return TxRef{}, err
		}
		opts := VerifyOptions{
			Sender:    from,
			Recipient: e.operator,
			Amount:    new(big.Int).Set(amount),
			Window:    settings.RecencyWindow,
		}
		if err := e.ledger.Verify(ctx, token, spec.Ref, opts); err != nil {
			if errors.Is(err, ErrStaleTransfer) {
				return TxRef{}, err
			}
			return TxRef{}, fmt.Errorf("%w: verify %s %s: %v", ErrTransferFailed, token.Symbol, spec.Ref.String(), err)
		}
		if err := e.recordTransfer(&TransferRecord{Inbound: true, Amount: amount, TokenID: token.ID, Ref: spec.Ref, Kind: kind}); err != nil {
			if errors.Is(err, ErrDuplicateTransfer) {
				e.metrics.IncDuplicateReference()
			}
			return TxRef{}, err
		}
		return spec.Ref, nil
	default:
		return TxRef{}, fmt.Errorf("amm: unknown pull mode %d", spec.Mode)
	}
}

// pushFunds executes one outbound leg. The destination token's network fee
// comes off the amount first, floored at zero; a fully consumed amount skips
// the push. Push failures are final: no retry, no escrow, and the zero
// reference tells the caller that leg never moved.
func (e *Engine) pushFunds(ctx context.Context, token *Token, amount *big.Int, to, kind string) (TxRef, error) {
	net := subBigClamped(amount, token.NetworkFee())
	if isZero(net) {
		return TxRef{}, nil
	}
	ref, err := e.ledger.Push(ctx, token, net, to)
	if err != nil {
		e.metrics.IncTransferFailure("outbound")
		return TxRef{}, fmt.Errorf("%w: push %s to %s: %v", ErrTransferFailed, token.Symbol, to, err)
	}
	if err := e.recordTransfer(&TransferRecord{Inbound: false, Amount: net, TokenID: token.ID, Ref: ref, Kind: kind}); err != nil {
		return TxRef{}, err
	}
	return ref, nil
}

// refundFunds returns already-pulled funds to their sender, best effort. A
// refund failure is logged and counted but never surfaced: the caller's
// original error stands, and the stranded funds stay in the operating
// balance.
func (e *Engine) refundFunds(ctx context.Context, token *Token, amount *big.Int, to string) {
	_, err := e.pushFunds(ctx, token, amount, to, TransferKindRefund)
	succeeded := err == nil
	if !succeeded {
		e.log.Error("amm refund failed",
			"token", token.Symbol,
			"amount", amount.String(),
			"recipient", to,
			"error", err,
		)
	}
	e.metrics.ObserveRefund(succeeded)
	e.emitter.Emit(events.AMMRefundAttempted{
		TokenID:   token.ID,
		Recipient: to,
		Amount:    new(big.Int).Set(amount),
		Succeeded: succeeded,
	}.Event())
}

func (e *Engine) recordTransfer(record *TransferRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.transfers.Record(record)
	return err
}

// resolvePair resolves both tokens and rejects degenerate pairs before any
// asset movement.
func (e *Engine) resolvePair(symbolA, symbolB string) (*Token, *Token, error) {
	tokenA, err := e.registry.Resolve(symbolA)
	if err != nil {
		return nil, nil, err
	}
	tokenB, err := e.registry.Resolve(symbolB)
	if err != nil {
		return nil, nil, err
	}
	if tokenA.ID == tokenB.ID {
		return nil, nil, ErrSameToken
	}
	return tokenA, tokenB, nil
}

// orient maps an (a, b) pair onto the pool's (side 0, side 1) order.
func orient(pool *Pool, tokenA, tokenB *Token) (*Token, *Token) {
	if pool.TokenID0 == tokenA.ID {
		return tokenA, tokenB
	}
	return tokenB, tokenA
}

func poolLabel(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

func (e *Engine) updateReserveGauges(pool *Pool, token0, token1 *Token) {
	if e.metrics == nil {
		return
	}
	label := poolLabel(pool.ID)
	e.metrics.SetPoolReserve(label, "0", amountToFloat(token0.Decimals, pool.Reserve0()))
	e.metrics.SetPoolReserve(label, "1", amountToFloat(token1.Decimals, pool.Reserve1()))
}
