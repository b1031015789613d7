// Package multisig drives the six-step threshold-wallet setup protocol:
// preparing -> exchanging(round=1) -> exchanging(round=2) -> ready, for a
// two-of-three configuration. The engine never performs cryptographic
// operations itself; it only calls out to the three participant wallets
// via internal/walletrpc and persists progress through a Repository.
package multisig

import (
	"context"
	"sync"
	"time"

	"github.com/yourusername/xmrescrow/internal/coreerrors"
	"github.com/yourusername/xmrescrow/internal/models"
	"github.com/yourusername/xmrescrow/internal/walletrpc"
)

const threshold = 2
const participants = 3

// DuplicateRolePolicy controls what happens when a role is registered
// twice for the same escrow. Overwrite-with-warning is the default
// policy, left configurable since a second registration for the same
// role could equally well be a client retry or a genuine error.
type DuplicateRolePolicy int

const (
	PolicyOverwriteWithWarning DuplicateRolePolicy = iota
	PolicyReject
)

// Repository is the subset of the state repository the engine needs to
// persist setup progress.
type Repository interface {
	SavePhase(ctx context.Context, escrowID string, phase models.SetupPhase, snapshot *models.SetupSnapshot) error
	LoadSnapshot(ctx context.Context, escrowID string) (*models.SetupSnapshot, error)
}

// ClientFactory builds an RPC client for a participant's URL; production
// code passes walletrpc.NewClient, tests pass a fake.
type ClientFactory func(rpcURL string) (*walletrpc.Client, error)

// Engine coordinates one escrow's multisig setup.
type Engine struct {
	repo    Repository
	newClient ClientFactory
	policy  DuplicateRolePolicy
	warn    func(format string, args ...interface{})

	mu      sync.Mutex
	clients map[string]map[models.Role]*walletrpc.Client // escrowID -> role -> client
}

// NewEngine constructs a setup engine backed by repo for persistence and
// newClient for creating wallet RPC clients.
func NewEngine(repo Repository, newClient ClientFactory, policy DuplicateRolePolicy, warn func(string, ...interface{})) *Engine {
	if warn == nil {
		warn = func(string, ...interface{}) {}
	}
	return &Engine{
		repo:      repo,
		newClient: newClient,
		policy:    policy,
		warn:      warn,
		clients:   make(map[string]map[models.Role]*walletrpc.Client),
	}
}

// RegisterWallet validates rpcURL resolves to loopback, probes
// connectivity, and stores it in the setup snapshot for (escrowID, role).
// Idempotent per the configured DuplicateRolePolicy.
func (e *Engine) RegisterWallet(ctx context.Context, escrowID string, role models.Role, rpcURL string) error {
	if !role.Valid() {
		return coreerrors.Validation("unknown role %q", role)
	}

	client, err := e.newClient(rpcURL)
	if err != nil {
		return err
	}
	if _, err := client.GetHeight(ctx); err != nil {
		return coreerrors.Wrap(coreerrors.KindTransient, err, "probing wallet connectivity")
	}

	snapshot, err := e.repo.LoadSnapshot(ctx, escrowID)
	if err != nil {
		return err
	}
	if snapshot == nil {
		snapshot = &models.SetupSnapshot{
			Phase:         models.PhaseNotStarted{},
			WalletIDs:     make(map[models.Role]string),
			RPCURLs:       make(map[models.Role]string),
			SchemaVersion: models.CurrentSnapshotSchemaVersion,
		}
	}

	if _, exists := snapshot.RPCURLs[role]; exists {
		switch e.policy {
		case PolicyReject:
			return coreerrors.InvalidState("role %q is already registered for escrow %q", role, escrowID)
		default:
			e.warn("overwriting existing registration for role %q on escrow %q", role, escrowID)
		}
	}

	snapshot.RPCURLs[role] = rpcURL
	snapshot.WalletIDs[role] = rpcURL // the wallet id is the endpoint identity until a session pool assigns a stable handle

	e.setClient(escrowID, role, client)

	phase := snapshot.Phase
	if _, ok := phase.(models.PhaseNotStarted); ok {
		phase = models.PhasePreparing{Completed: map[models.Role]bool{role: true}}
	} else if preparing, ok := phase.(models.PhasePreparing); ok {
		completed := cloneCompleted(preparing.Completed)
		completed[role] = true
		phase = models.PhasePreparing{Completed: completed}
	}
	snapshot.Phase = phase

	return e.repo.SavePhase(ctx, escrowID, phase, snapshot)
}

func cloneCompleted(m map[models.Role]bool) map[models.Role]bool {
	out := make(map[models.Role]bool, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (e *Engine) setClient(escrowID string, role models.Role, client *walletrpc.Client) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.clients[escrowID] == nil {
		e.clients[escrowID] = make(map[models.Role]*walletrpc.Client)
	}
	e.clients[escrowID][role] = client
}

func (e *Engine) getClients(escrowID string) map[models.Role]*walletrpc.Client {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clients[escrowID]
}

// allRegistered reports whether all three roles have a stored RPC URL.
func allRegistered(snapshot *models.SetupSnapshot) bool {
	for _, role := range models.AllRoles {
		if _, ok := snapshot.RPCURLs[role]; !ok {
			return false
		}
	}
	return true
}

// roundResult is one participant's outcome within a concurrent round.
type roundResult struct {
	role models.Role
	blob string
	err  error
}

// CoordinateExchange requires all three registrations, invokes
// prepare_multisig on each wallet concurrently, validates the three
// blobs, and persists each encrypted under the field key. No partial
// snapshot is persisted if any RPC fails: the round is abortive and the
// phase is left unchanged so a retry replays the whole round.
func (e *Engine) CoordinateExchange(ctx context.Context, escrowID string, fieldKey [32]byte, encryptFn func([]byte, [32]byte) ([]byte, error)) error {
	snapshot, err := e.repo.LoadSnapshot(ctx, escrowID)
	if err != nil {
		return err
	}
	if snapshot == nil || !allRegistered(snapshot) {
		return coreerrors.InvalidState("all three roles must be registered before coordinating exchange")
	}

	clients := e.getClients(escrowID)
	results := make(chan roundResult, participants)
	for _, role := range models.AllRoles {
		role := role
		client := clients[role]
		go func() {
			blob, err := client.PrepareMultisig(ctx)
			results <- roundResult{role: role, blob: blob, err: err}
		}()
	}

	blobs := make(map[models.Role]string, participants)
	for i := 0; i < participants; i++ {
		r := <-results
		if r.err != nil {
			return coreerrors.Wrap(coreerrors.KindTransient, r.err, "prepare_multisig failed for role %s", r.role)
		}
		if err := walletrpc.ValidateKeyBlob(r.blob); err != nil {
			return err
		}
		blobs[r.role] = r.blob
	}

	encryptedInfos := make(map[models.Role][]byte, participants)
	for role, blob := range blobs {
		enc, err := encryptFn([]byte(blob), fieldKey)
		if err != nil {
			return coreerrors.Wrap(coreerrors.KindTransient, err, "encrypting key-exchange blob for role %s", role)
		}
		encryptedInfos[role] = enc
	}

	phase := models.PhaseExchanging{Round: 1, Infos: encryptedInfos}
	snapshot.Phase = phase
	snapshot.EncryptedInfos = encryptedInfos
	return e.repo.SavePhase(ctx, escrowID, phase, snapshot)
}

// PeerBlobsFor returns the two blobs role's counterparty set should
// receive: every other role's blob, never the caller's own.
func PeerBlobsFor(role models.Role, blobs map[models.Role]string) []string {
	peers := make([]string, 0, 2)
	for _, r := range models.AllRoles {
		if r != role {
			if b, ok := blobs[r]; ok {
				peers = append(peers, b)
			}
		}
	}
	return peers
}

// AdvanceRound calls make_multisig on each wallet with its peers' blobs
// in both round 1 and round 2; import/export_multisig_info are not used
// here. After round 1 it stores the returned blobs and moves to round 2;
// after round 2 it validates returned address equality across all three
// participants and transitions to ready. A non-matching address
// transitions to failed with reason "address mismatch".
func (e *Engine) AdvanceRound(ctx context.Context, escrowID string, fieldKey [32]byte, encryptFn, decryptFn func([]byte, [32]byte) ([]byte, error)) error {
	snapshot, err := e.repo.LoadSnapshot(ctx, escrowID)
	if err != nil {
		return err
	}
	if snapshot == nil {
		return coreerrors.InvalidState("no setup snapshot exists for escrow %q", escrowID)
	}
	exchanging, ok := snapshot.Phase.(models.PhaseExchanging)
	if !ok {
		return coreerrors.InvalidState("escrow %q is not in an exchanging phase", escrowID)
	}

	blobs := make(map[models.Role]string, participants)
	for role, enc := range exchanging.Infos {
		plain, err := decryptFn(enc, fieldKey)
		if err != nil {
			return coreerrors.Wrap(coreerrors.KindProtocol, err, "decrypting stored blob for role %s", role)
		}
		blobs[role] = string(plain)
	}

	clients := e.getClients(escrowID)
	type addrResult struct {
		role    models.Role
		address string
		next    string
		err     error
	}
	results := make(chan addrResult, participants)
	for _, role := range models.AllRoles {
		role := role
		client := clients[role]
		peers := PeerBlobsFor(role, blobs)
		go func() {
			address, next, err := client.MakeMultisig(ctx, threshold, peers)
			results <- addrResult{role: role, address: address, next: next, err: err}
		}()
	}

	addresses := make(map[models.Role]string, participants)
	nextBlobs := make(map[models.Role]string, participants)
	for i := 0; i < participants; i++ {
		r := <-results
		if r.err != nil {
			return coreerrors.Wrap(coreerrors.KindTransient, r.err, "make_multisig failed for role %s", r.role)
		}
		addresses[r.role] = r.address
		nextBlobs[r.role] = r.next
	}

	if exchanging.Round == 1 {
		encryptedNext := make(map[models.Role][]byte, participants)
		for role, blob := range nextBlobs {
			enc, err := encryptFn([]byte(blob), fieldKey)
			if err != nil {
				return coreerrors.Wrap(coreerrors.KindTransient, err, "encrypting round 2 blob for role %s", role)
			}
			encryptedNext[role] = enc
		}
		phase := models.PhaseExchanging{Round: 2, Infos: encryptedNext}
		snapshot.Phase = phase
		snapshot.EncryptedInfos = encryptedNext
		return e.repo.SavePhase(ctx, escrowID, phase, snapshot)
	}

	if !addressesMatch(addresses) {
		phase := models.PhaseFailed{Reason: "address mismatch", FailedAt: now()}
		snapshot.Phase = phase
		return e.repo.SavePhase(ctx, escrowID, phase, snapshot)
	}

	var finalAddress string
	for _, a := range addresses {
		finalAddress = a
		break
	}
	phase := models.PhaseReady{Address: finalAddress, FinalizedAt: now()}
	snapshot.Phase = phase
	return e.repo.SavePhase(ctx, escrowID, phase, snapshot)
}

func addressesMatch(addresses map[models.Role]string) bool {
	var first string
	seen := false
	for _, a := range addresses {
		if !seen {
			first = a
			seen = true
			continue
		}
		if a != first {
			return false
		}
	}
	return seen
}

// now returns the wall-clock time recorded as FinalizedAt or FailedAt.
func now() time.Time { return time.Now() }

// LoadSnapshot re-creates in-memory client handles for the three RPC URLs
// and returns a snapshot in the persisted phase, for use on recovery.
func (e *Engine) LoadSnapshot(ctx context.Context, escrowID string) (*models.SetupSnapshot, error) {
	snapshot, err := e.repo.LoadSnapshot(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, nil
	}
	for role, rpcURL := range snapshot.RPCURLs {
		client, err := e.newClient(rpcURL)
		if err != nil {
			return nil, err
		}
		e.setClient(escrowID, role, client)
	}
	return snapshot, nil
}
