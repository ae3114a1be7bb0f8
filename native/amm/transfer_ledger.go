package amm

import (
	"fmt"
	"time"
)

type storedTransferRecord struct {
	ID        uint64
	Inbound   bool
	Amount    string
	TokenID   uint32
	RefKind   string
	RefValue  string
	Kind      string
	Timestamp uint64
}

type storedTransferRefMarker struct {
	RecordID uint64
}

// TransferLedger is the append-only audit log of external asset movements.
// Records are never rewritten; the (token, reference) marker written
// alongside each record enforces the anti-replay uniqueness constraint.
type TransferLedger struct {
	store    Storage
	settings *SettingsStore
	clock    func() time.Time
}

// NewTransferLedger constructs a transfer ledger over the provided storage.
// Record ids come from the settings counter.
func NewTransferLedger(store Storage, settings *SettingsStore) *TransferLedger {
	return &TransferLedger{store: store, settings: settings, clock: time.Now}
}

// SetClock overrides the time source for deterministic testing.
func (l *TransferLedger) SetClock(clock func() time.Time) {
	if l == nil || clock == nil {
		return
	}
	l.clock = clock
}

// HasRef reports whether a record already claims the (token, reference)
// pair. Zero references are never indexed and always report false.
func (l *TransferLedger) HasRef(tokenID uint32, ref TxRef) (bool, error) {
	if l == nil {
		return false, fmt.Errorf("amm: transfer ledger not initialised")
	}
	if ref.IsZero() {
		return false, nil
	}
	var marker storedTransferRefMarker
	ok, err := l.store.KVGet(transferRefKey(tokenID, ref), &marker)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Record appends a transfer record, assigning the next monotonic id. When the
// record carries a reference, the reference must not already be claimed;
// violating this fails with ErrDuplicateTransfer and leaves the ledger
// untouched.
func (l *TransferLedger) Record(record *TransferRecord) (uint64, error) {
	if l == nil {
		return 0, fmt.Errorf("amm: transfer ledger not initialised")
	}
	if record == nil {
		return 0, fmt.Errorf("amm: nil transfer record")
	}
	if !record.Ref.IsZero() {
		claimed, err := l.HasRef(record.TokenID, record.Ref)
		if err != nil {
			return 0, err
		}
		if claimed {
			return 0, ErrDuplicateTransfer
		}
	}
	id, err := l.settings.NextTransferID()
	if err != nil {
		return 0, err
	}
	refKind, refValue := formatTxRef(record.Ref)
	stored := storedTransferRecord{
		ID:        id,
		Inbound:   record.Inbound,
		Amount:    formatAmount(record.Amount),
		TokenID:   record.TokenID,
		RefKind:   refKind,
		RefValue:  refValue,
		Kind:      record.Kind,
		Timestamp: sanitizeUnix(l.clock().UTC().Unix()),
	}
	if err := l.store.KVPut(transferKey(id), stored); err != nil {
		return 0, err
	}
	if !record.Ref.IsZero() {
		marker := storedTransferRefMarker{RecordID: id}
		if err := l.store.KVPut(transferRefKey(record.TokenID, record.Ref), marker); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// Get retrieves one record by id.
func (l *TransferLedger) Get(id uint64) (*TransferRecord, bool, error) {
	if l == nil {
		return nil, false, fmt.Errorf("amm: transfer ledger not initialised")
	}
	var stored storedTransferRecord
	ok, err := l.store.KVGet(transferKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	record, err := transferFromStored(stored)
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

func transferFromStored(stored storedTransferRecord) (*TransferRecord, error) {
	amount, err := parseAmount(stored.Amount)
	if err != nil {
		return nil, err
	}
	var ref TxRef
	if stored.RefValue != "" {
		ref, err = parseTxRef(stored.RefKind, stored.RefValue)
		if err != nil {
			return nil, err
		}
	}
	timestamp, err := uint64ToInt64(stored.Timestamp)
	if err != nil {
		return nil, err
	}
	return &TransferRecord{
		ID:        stored.ID,
		Inbound:   stored.Inbound,
		Amount:    amount,
		TokenID:   stored.TokenID,
		Ref:       ref,
		Kind:      stored.Kind,
		Timestamp: timestamp,
	}, nil
}
