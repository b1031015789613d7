// Package sessionpool manages a bounded set of open wallet-daemon
// sessions across a fixed list of RPC endpoints, amortizing the cost of
// opening a wallet file across many RPC calls for the same escrow. It
// uses a mutex-guarded map as an LRU of session handles.
package sessionpool

import (
	"context"
	"sync"
	"time"

	"github.com/yourusername/xmrescrow/internal/coreerrors"
	"github.com/yourusername/xmrescrow/internal/models"
	"github.com/yourusername/xmrescrow/internal/walletrpc"
)

// WalletOpener opens the wallet file backing one role's RPC endpoint and
// returns a ready client. Implemented by whatever constructs
// *walletrpc.Client and issues open_wallet for the escrow's wallet files.
type WalletOpener func(ctx context.Context, escrowID string, role models.Role, rpcURL string) (*walletrpc.Client, error)

// WalletCloser issues close_wallet against a client. Eviction calls it in
// the background, so GetOrCreateSession never blocks on a slow daemon;
// CloseSession (and Sweep through it) calls it synchronously.
type WalletCloser func(ctx context.Context, client *walletrpc.Client) error

// session is the triple of open wallet clients for one escrow.
type session struct {
	escrowID     string
	clients      map[models.Role]*walletrpc.Client
	refCount     int
	lastActivity time.Time
}

// Pool bounds the number of concurrently open sessions at maxActive,
// evicting the least-recently-used session when a new one is requested
// at capacity.
type Pool struct {
	mu         sync.Mutex
	sessions   map[string]*session
	maxActive  int
	idleTTL    time.Duration
	open       WalletOpener
	closeFn    WalletCloser
}

// New constructs a Pool. maxActive bounds concurrently open sessions;
// idleTTL is the age beyond which Sweep closes an idle session.
func New(maxActive int, idleTTL time.Duration, open WalletOpener, closeFn WalletCloser) *Pool {
	return &Pool{
		sessions:  make(map[string]*session),
		maxActive: maxActive,
		idleTTL:   idleTTL,
		open:      open,
		closeFn:   closeFn,
	}
}

// GetOrCreateSession returns the session for escrowID, opening the three
// wallets if absent. If the pool is at capacity and no session exists
// for escrowID, the least-recently-used session is evicted first (its
// wallets closed in the background).
func (p *Pool) GetOrCreateSession(ctx context.Context, escrowID string, endpoints map[models.Role]string) error {
	p.mu.Lock()
	if s, ok := p.sessions[escrowID]; ok {
		s.lastActivity = time.Now()
		p.mu.Unlock()
		return nil
	}
	if len(p.sessions) >= p.maxActive {
		victim := p.lockedEvictLRUCandidate(escrowID)
		if victim != nil {
			go p.closeSessionClients(victim)
		}
	}
	p.mu.Unlock()

	clients := make(map[models.Role]*walletrpc.Client, len(endpoints))
	for role, url := range endpoints {
		client, err := p.open(ctx, escrowID, role, url)
		if err != nil {
			return coreerrors.Wrap(coreerrors.KindTransient, err, "opening wallet for role %s", role)
		}
		clients[role] = client
	}

	p.mu.Lock()
	p.sessions[escrowID] = &session{
		escrowID:     escrowID,
		clients:      clients,
		lastActivity: time.Now(),
	}
	p.mu.Unlock()
	return nil
}

// lockedEvictLRUCandidate must be called with p.mu held. It removes the
// least-recently-used session other than excludeID from the map and
// returns it for background closing; returns nil if no eviction
// candidate exists (e.g. the pool holds only excludeID already, which
// cannot happen since callers only evict before inserting excludeID).
func (p *Pool) lockedEvictLRUCandidate(excludeID string) *session {
	var oldestID string
	var oldest *session
	for id, s := range p.sessions {
		if id == excludeID {
			continue
		}
		if oldest == nil || s.lastActivity.Before(oldest.lastActivity) {
			oldestID, oldest = id, s
		}
	}
	if oldest == nil {
		return nil
	}
	delete(p.sessions, oldestID)
	return oldest
}

func (p *Pool) closeSessionClients(s *session) {
	ctx := context.Background()
	for _, client := range s.clients {
		_ = p.closeFn(ctx, client)
	}
}

// GetWallet returns a reference-counted handle to role's client within
// escrowID's session. The caller must call Release when done issuing
// RPCs through it.
func (p *Pool) GetWallet(escrowID string, role models.Role) (*walletrpc.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[escrowID]
	if !ok {
		return nil, coreerrors.InvalidState("no open session for escrow %q", escrowID)
	}
	client, ok := s.clients[role]
	if !ok {
		return nil, coreerrors.Validation("no wallet registered for role %q in escrow %q", role, escrowID)
	}
	s.refCount++
	s.lastActivity = time.Now()
	return client, nil
}

// Release decrements the reference count acquired by GetWallet.
func (p *Pool) Release(escrowID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[escrowID]; ok && s.refCount > 0 {
		s.refCount--
	}
}

// CloseSession closes the three wallets for escrowID and releases its
// slot, regardless of outstanding reference count (callers are expected
// to have drained in-flight calls before requesting a close).
func (p *Pool) CloseSession(escrowID string) error {
	p.mu.Lock()
	s, ok := p.sessions[escrowID]
	if ok {
		delete(p.sessions, escrowID)
	}
	p.mu.Unlock()
	if !ok {
		return nil
	}
	ctx := context.Background()
	var firstErr error
	for _, client := range s.clients {
		if err := p.closeFn(ctx, client); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Sweep closes every session idle beyond idleTTL. Intended to be called
// periodically by a background ticker.
func (p *Pool) Sweep() {
	p.mu.Lock()
	var stale []string
	cutoff := time.Now().Add(-p.idleTTL)
	for id, s := range p.sessions {
		if s.refCount == 0 && s.lastActivity.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	p.mu.Unlock()

	for _, id := range stale {
		_ = p.CloseSession(id)
	}
}

// ActiveCount returns the number of currently open sessions, for metrics
// and tests.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}
