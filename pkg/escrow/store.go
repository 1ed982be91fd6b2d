package escrow

import (
	"context"
	"math/big"
	"sync"
)

// Store persists the ledger's state, whitelist, pending swaps and fee
// balances. Implementations must be safe for concurrent use.
type Store interface {
	// State returns the control block, nil when the ledger is uninitialized.
	State(ctx context.Context) (*State, error)
	SaveState(ctx context.Context, s *State) error

	// TokenConfig returns nil when the token is not whitelisted.
	TokenConfig(ctx context.Context, token string) (*TokenConfig, error)
	PutTokenConfig(ctx context.Context, token string, cfg *TokenConfig) error
	RemoveTokenConfig(ctx context.Context, token string) error
	TokenConfigs(ctx context.Context) (map[string]*TokenConfig, error)

	PutPendingSwap(ctx context.Context, p *PendingSwap) error
	// TakePendingSwap atomically removes and returns the record, nil when
	// absent. The exactly-once continuation guard rests on this.
	TakePendingSwap(ctx context.Context, requestID uint64) (*PendingSwap, error)
	GetPendingSwap(ctx context.Context, requestID uint64) (*PendingSwap, error)

	// FeeBalance returns zero when no fees were collected for the token.
	FeeBalance(ctx context.Context, token string) (*big.Int, error)
	AddFee(ctx context.Context, token string, amount *big.Int) error
	// SetFeeBalance overwrites the balance; zero removes the entry.
	SetFeeBalance(ctx context.Context, token string, balance *big.Int) error
	FeeBalances(ctx context.Context) (map[string]*big.Int, error)
}

// MemoryStore keeps everything in mutex-guarded maps. It backs tests and
// single-process deployments.
type MemoryStore struct {
	mu      sync.Mutex
	state   *State
	tokens  map[string]*TokenConfig
	pending map[uint64]*PendingSwap
	fees    map[string]*big.Int
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:  make(map[string]*TokenConfig),
		pending: make(map[uint64]*PendingSwap),
		fees:    make(map[string]*big.Int),
	}
}

func (m *MemoryStore) State(ctx context.Context) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil, nil
	}
	return cloneState(m.state), nil
}

func (m *MemoryStore) SaveState(ctx context.Context, s *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = cloneState(s)
	return nil
}

func (m *MemoryStore) TokenConfig(ctx context.Context, token string) (*TokenConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.tokens[token]
	if !ok {
		return nil, nil
	}
	return cloneTokenConfig(cfg), nil
}

func (m *MemoryStore) PutTokenConfig(ctx context.Context, token string, cfg *TokenConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = cloneTokenConfig(cfg)
	return nil
}

func (m *MemoryStore) RemoveTokenConfig(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
	return nil
}

func (m *MemoryStore) TokenConfigs(ctx context.Context) (map[string]*TokenConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*TokenConfig, len(m.tokens))
	for token, cfg := range m.tokens {
		out[token] = cloneTokenConfig(cfg)
	}
	return out, nil
}

func (m *MemoryStore) PutPendingSwap(ctx context.Context, p *PendingSwap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[p.RequestID] = clonePendingSwap(p)
	return nil
}

func (m *MemoryStore) TakePendingSwap(ctx context.Context, requestID uint64) (*PendingSwap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[requestID]
	if !ok {
		return nil, nil
	}
	delete(m.pending, requestID)
	return p, nil
}

func (m *MemoryStore) GetPendingSwap(ctx context.Context, requestID uint64) (*PendingSwap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[requestID]
	if !ok {
		return nil, nil
	}
	return clonePendingSwap(p), nil
}

func (m *MemoryStore) FeeBalance(ctx context.Context, token string) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.fees[token]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(balance), nil
}

func (m *MemoryStore) AddFee(ctx context.Context, token string, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.fees[token]
	if !ok {
		balance = new(big.Int)
	}
	m.fees[token] = new(big.Int).Add(balance, amount)
	return nil
}

func (m *MemoryStore) SetFeeBalance(ctx context.Context, token string, balance *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if balance == nil || balance.Sign() == 0 {
		delete(m.fees, token)
		return nil
	}
	m.fees[token] = new(big.Int).Set(balance)
	return nil
}

func (m *MemoryStore) FeeBalances(ctx context.Context) (map[string]*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*big.Int, len(m.fees))
	for token, balance := range m.fees {
		out[token] = new(big.Int).Set(balance)
	}
	return out, nil
}

func cloneState(s *State) *State {
	c := *s
	return &c
}

func cloneTokenConfig(cfg *TokenConfig) *TokenConfig {
	c := *cfg
	c.MinSwapAmount = cloneBig(cfg.MinSwapAmount)
	return &c
}

func clonePendingSwap(p *PendingSwap) *PendingSwap {
	c := *p
	c.AmountIn = cloneBig(p.AmountIn)
	c.MinAmountOut = cloneBig(p.MinAmountOut)
	c.Fee = cloneBig(p.Fee)
	return &c
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
