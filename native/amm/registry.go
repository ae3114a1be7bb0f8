package amm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// TokenRegistry resolves token references to their ledger metadata. The
// registry is an external collaborator; the engine treats resolved tokens as
// immutable snapshots.
type TokenRegistry interface {
	// Resolve looks a token up by symbol (case-insensitive).
	Resolve(symbol string) (*Token, error)
	// ResolveID looks a token up by registry id.
	ResolveID(id uint32) (*Token, error)
	// Tokens lists every non-removed token.
	Tokens() ([]*Token, error)
}

// StaticRegistry is a fixed in-memory token registry, populated from
// configuration at startup.
type StaticRegistry struct {
	mu       sync.RWMutex
	byID     map[uint32]*Token
	bySymbol map[string]*Token
}

// NewStaticRegistry constructs an empty registry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		byID:     make(map[uint32]*Token),
		bySymbol: make(map[string]*Token),
	}
}

// Register adds or replaces a token entry.
func (r *StaticRegistry) Register(token *Token) error {
	if r == nil {
		return fmt.Errorf("amm: registry not initialised")
	}
	if token == nil {
		return fmt.Errorf("amm: nil token")
	}
	symbol := strings.ToUpper(strings.TrimSpace(token.Symbol))
	if symbol == "" {
		return fmt.Errorf("amm: token %d missing symbol", token.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := token.Copy()
	clone.Symbol = symbol
	r.byID[clone.ID] = clone
	r.bySymbol[symbol] = clone
	return nil
}

// Resolve implements TokenRegistry.
func (r *StaticRegistry) Resolve(symbol string) (*Token, error) {
	if r == nil {
		return nil, fmt.Errorf("amm: registry not initialised")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	token, ok := r.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok || token.Removed {
		return nil, ErrTokenNotFound
	}
	return token.Copy(), nil
}

// ResolveID implements TokenRegistry.
func (r *StaticRegistry) ResolveID(id uint32) (*Token, error) {
	if r == nil {
		return nil, fmt.Errorf("amm: registry not initialised")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	token, ok := r.byID[id]
	if !ok || token.Removed {
		return nil, ErrTokenNotFound
	}
	return token.Copy(), nil
}

// Tokens implements TokenRegistry. Results are ordered by id.
func (r *StaticRegistry) Tokens() ([]*Token, error) {
	if r == nil {
		return nil, fmt.Errorf("amm: registry not initialised")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	tokens := make([]*Token, 0, len(r.byID))
	for _, token := range r.byID {
		if token.Removed {
			continue
		}
		tokens = append(tokens, token.Copy())
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].ID < tokens[j].ID })
	return tokens, nil
}
