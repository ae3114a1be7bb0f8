package amm

import (
	"fmt"
	"time"
)

// Default parameters applied when no settings record has been stored yet.
const (
	DefaultFeeRateBps       = uint16(30)
	DefaultProtocolShareBps = uint16(0)
	DefaultMaxSlippagePct   = float64(2)
	DefaultRecencyWindow    = 10 * time.Minute
)

// Settings is the single mutable configuration record for the engine:
// monotonic id counters, default fee parameters for new pools, the slippage
// ceiling applied when a caller supplies none, the recency window for
// verify-by-reference pulls, and the anchor tokens considered for two-hop
// routing.
type Settings struct {
	NextPoolID       uint32
	NextLPTokenID    uint32
	NextTransferID   uint64
	FeeRateBps       uint16
	ProtocolShareBps uint16
	MaxSlippagePct   float64
	RecencyWindow    time.Duration
	AnchorTokenIDs   []uint32
}

// Copy returns a deep copy of the settings record.
func (s *Settings) Copy() *Settings {
	if s == nil {
		return nil
	}
	clone := *s
	if s.AnchorTokenIDs != nil {
		clone.AnchorTokenIDs = append([]uint32(nil), s.AnchorTokenIDs...)
	}
	return &clone
}

type storedSettings struct {
	NextPoolID       uint32
	NextLPTokenID    uint32
	NextTransferID   uint64
	FeeRateBps       uint16
	ProtocolShareBps uint16
	// MaxSlippageCentiPct stores the slippage ceiling in hundredths of a
	// percent so the record stays integral.
	MaxSlippageCentiPct uint32
	RecencyWindowSecs   uint64
	AnchorTokenIDs      []uint32
}

// SettingsStore persists the settings record and hands out monotonic ids.
type SettingsStore struct {
	store Storage
}

// NewSettingsStore constructs a settings store over the provided storage.
func NewSettingsStore(store Storage) *SettingsStore {
	return &SettingsStore{store: store}
}

// Get loads the settings record, substituting defaults when none exists.
func (s *SettingsStore) Get() (*Settings, error) {
	if s == nil {
		return nil, fmt.Errorf("amm: settings store not initialised")
	}
	var stored storedSettings
	ok, err := s.store.KVGet(settingsKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Settings{
			NextPoolID:       1,
			NextLPTokenID:    1,
			NextTransferID:   1,
			FeeRateBps:       DefaultFeeRateBps,
			ProtocolShareBps: DefaultProtocolShareBps,
			MaxSlippagePct:   DefaultMaxSlippagePct,
			RecencyWindow:    DefaultRecencyWindow,
		}, nil
	}
	return &Settings{
		NextPoolID:       stored.NextPoolID,
		NextLPTokenID:    stored.NextLPTokenID,
		NextTransferID:   stored.NextTransferID,
		FeeRateBps:       stored.FeeRateBps,
		ProtocolShareBps: stored.ProtocolShareBps,
		MaxSlippagePct:   float64(stored.MaxSlippageCentiPct) / 100,
		RecencyWindow:    time.Duration(stored.RecencyWindowSecs) * time.Second,
		AnchorTokenIDs:   append([]uint32(nil), stored.AnchorTokenIDs...),
	}, nil
}

// Put persists the settings record.
func (s *SettingsStore) Put(settings *Settings) error {
	if s == nil {
		return fmt.Errorf("amm: settings store not initialised")
	}
	if settings == nil {
		return fmt.Errorf("amm: nil settings")
	}
	stored := storedSettings{
		NextPoolID:          settings.NextPoolID,
		NextLPTokenID:       settings.NextLPTokenID,
		NextTransferID:      settings.NextTransferID,
		FeeRateBps:          settings.FeeRateBps,
		ProtocolShareBps:    settings.ProtocolShareBps,
		MaxSlippageCentiPct: uint32(settings.MaxSlippagePct * 100),
		RecencyWindowSecs:   uint64(settings.RecencyWindow / time.Second),
		AnchorTokenIDs:      append([]uint32(nil), settings.AnchorTokenIDs...),
	}
	return s.store.KVPut(settingsKey, stored)
}

// NextPoolID allocates and persists the next pool id.
func (s *SettingsStore) NextPoolID() (uint32, error) {
	settings, err := s.Get()
	if err != nil {
		return 0, err
	}
	id := settings.NextPoolID
	if id == 0 {
		id = 1
	}
	settings.NextPoolID = id + 1
	if err := s.Put(settings); err != nil {
		return 0, err
	}
	return id, nil
}

// NextLPTokenID allocates and persists the next LP token id.
func (s *SettingsStore) NextLPTokenID() (uint32, error) {
	settings, err := s.Get()
	if err != nil {
		return 0, err
	}
	id := settings.NextLPTokenID
	if id == 0 {
		id = 1
	}
	settings.NextLPTokenID = id + 1
	if err := s.Put(settings); err != nil {
		return 0, err
	}
	return id, nil
}

// NextTransferID allocates and persists the next transfer record id.
func (s *SettingsStore) NextTransferID() (uint64, error) {
	settings, err := s.Get()
	if err != nil {
		return 0, err
	}
	id := settings.NextTransferID
	if id == 0 {
		id = 1
	}
	settings.NextTransferID = id + 1
	if err := s.Put(settings); err != nil {
		return 0, err
	}
	return id, nil
}
