package multisig

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/xmrescrow/internal/models"
	"github.com/yourusername/xmrescrow/internal/walletrpc"
)

// fakeRepo is an in-memory stand-in for the state repository, sufficient
// to exercise the engine's phase transitions without a real database.
type fakeRepo struct {
	mu        sync.Mutex
	snapshots map[string]*models.SetupSnapshot
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{snapshots: make(map[string]*models.SetupSnapshot)}
}

func (r *fakeRepo) SavePhase(ctx context.Context, escrowID string, phase models.SetupPhase, snapshot *models.SetupSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := *snapshot
	snap.Phase = phase
	r.snapshots[escrowID] = &snap
	return nil
}

func (r *fakeRepo) LoadSnapshot(ctx context.Context, escrowID string) (*models.SetupSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.snapshots[escrowID]
	if !ok {
		return nil, nil
	}
	cp := *snap
	return &cp, nil
}

// walletFake simulates a wallet daemon's JSON-RPC responses for the
// prepare_multisig/make_multisig sequence, returning a distinct
// deterministic address or key blob per instance.
type walletFake struct {
	address string
}

func (w *walletFake) handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
			ID     string          `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		var result interface{}
		switch req.Method {
		case "get_height":
			result = map[string]interface{}{"height": 100}
		case "prepare_multisig":
			result = map[string]interface{}{"multisig_info": "MultisigV1" + strings.Repeat("a", 90)}
		case "make_multisig":
			result = map[string]interface{}{"address": w.address, "multisig_info": "MultisigV1" + strings.Repeat("b", 90)}
		default:
			result = map[string]interface{}{}
		}
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": result}
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func identityEncrypt(data []byte, key [32]byte) ([]byte, error) { return data, nil }
func identityDecrypt(data []byte, key [32]byte) ([]byte, error) { return data, nil }

func TestEngineHappyPathReachesReady(t *testing.T) {
	repo := newFakeRepo()
	address := "shared-multisig-address"

	servers := make(map[models.Role]*httptest.Server)
	for _, role := range models.AllRoles {
		w := &walletFake{address: address}
		servers[role] = httptest.NewServer(w.handler())
		defer servers[role].Close()
	}

	newClient := func(rpcURL string) (*walletrpc.Client, error) {
		return walletrpc.NewClient(rpcURL, 5)
	}

	engine := NewEngine(repo, newClient, PolicyOverwriteWithWarning, nil)
	ctx := context.Background()
	escrowID := "escrow-1"

	for _, role := range models.AllRoles {
		require.NoError(t, engine.RegisterWallet(ctx, escrowID, role, servers[role].URL))
	}

	var fieldKey [32]byte
	require.NoError(t, engine.CoordinateExchange(ctx, escrowID, fieldKey, identityEncrypt))

	snap, err := repo.LoadSnapshot(ctx, escrowID)
	require.NoError(t, err)
	_, isExchangingRound1 := snap.Phase.(models.PhaseExchanging)
	assert.True(t, isExchangingRound1)

	// Round 1 -> round 2
	require.NoError(t, engine.AdvanceRound(ctx, escrowID, fieldKey, identityEncrypt, identityDecrypt))
	snap, err = repo.LoadSnapshot(ctx, escrowID)
	require.NoError(t, err)
	round2, ok := snap.Phase.(models.PhaseExchanging)
	require.True(t, ok)
	assert.Equal(t, 2, round2.Round)

	// Round 2 -> ready
	require.NoError(t, engine.AdvanceRound(ctx, escrowID, fieldKey, identityEncrypt, identityDecrypt))
	snap, err = repo.LoadSnapshot(ctx, escrowID)
	require.NoError(t, err)
	ready, ok := snap.Phase.(models.PhaseReady)
	require.True(t, ok)
	assert.Equal(t, address, ready.Address)
}

func TestEngineAddressMismatchFailsSetup(t *testing.T) {
	repo := newFakeRepo()

	servers := make(map[models.Role]*httptest.Server)
	addresses := map[models.Role]string{
		models.RoleBuyer:   "address-a",
		models.RoleVendor:  "address-a",
		models.RoleArbiter: "address-b",
	}
	for _, role := range models.AllRoles {
		w := &walletFake{address: addresses[role]}
		servers[role] = httptest.NewServer(w.handler())
		defer servers[role].Close()
	}

	newClient := func(rpcURL string) (*walletrpc.Client, error) {
		return walletrpc.NewClient(rpcURL, 5)
	}

	engine := NewEngine(repo, newClient, PolicyOverwriteWithWarning, nil)
	ctx := context.Background()
	escrowID := "escrow-2"

	for _, role := range models.AllRoles {
		require.NoError(t, engine.RegisterWallet(ctx, escrowID, role, servers[role].URL))
	}

	var fieldKey [32]byte
	require.NoError(t, engine.CoordinateExchange(ctx, escrowID, fieldKey, identityEncrypt))
	require.NoError(t, engine.AdvanceRound(ctx, escrowID, fieldKey, identityEncrypt, identityDecrypt))
	require.NoError(t, engine.AdvanceRound(ctx, escrowID, fieldKey, identityEncrypt, identityDecrypt))

	snap, err := repo.LoadSnapshot(ctx, escrowID)
	require.NoError(t, err)
	failed, ok := snap.Phase.(models.PhaseFailed)
	require.True(t, ok)
	assert.Equal(t, "address mismatch", failed.Reason)
}

func TestRegisterWalletRejectsInvalidRole(t *testing.T) {
	repo := newFakeRepo()
	w := &walletFake{address: "x"}
	srv := httptest.NewServer(w.handler())
	defer srv.Close()

	newClient := func(rpcURL string) (*walletrpc.Client, error) {
		return walletrpc.NewClient(rpcURL, 5)
	}
	engine := NewEngine(repo, newClient, PolicyOverwriteWithWarning, nil)
	err := engine.RegisterWallet(context.Background(), "escrow-3", models.Role("notary"), srv.URL)
	assert.Error(t, err)
}

func TestCoordinateExchangeRequiresAllRolesRegistered(t *testing.T) {
	repo := newFakeRepo()
	w := &walletFake{address: "x"}
	srv := httptest.NewServer(w.handler())
	defer srv.Close()

	newClient := func(rpcURL string) (*walletrpc.Client, error) {
		return walletrpc.NewClient(rpcURL, 5)
	}
	engine := NewEngine(repo, newClient, PolicyOverwriteWithWarning, nil)
	ctx := context.Background()
	require.NoError(t, engine.RegisterWallet(ctx, "escrow-4", models.RoleBuyer, srv.URL))

	var fieldKey [32]byte
	err := engine.CoordinateExchange(ctx, "escrow-4", fieldKey, identityEncrypt)
	assert.Error(t, err)
}

func TestRegisterWalletOverwritePolicyWarns(t *testing.T) {
	repo := newFakeRepo()
	w := &walletFake{address: "x"}
	srv := httptest.NewServer(w.handler())
	defer srv.Close()

	newClient := func(rpcURL string) (*walletrpc.Client, error) {
		return walletrpc.NewClient(rpcURL, 5)
	}

	var warned bool
	engine := NewEngine(repo, newClient, PolicyOverwriteWithWarning, func(string, ...interface{}) { warned = true })
	ctx := context.Background()
	require.NoError(t, engine.RegisterWallet(ctx, "escrow-5", models.RoleBuyer, srv.URL))
	require.NoError(t, engine.RegisterWallet(ctx, "escrow-5", models.RoleBuyer, srv.URL))
	assert.True(t, warned)
}

func TestRegisterWalletRejectPolicyErrors(t *testing.T) {
	repo := newFakeRepo()
	w := &walletFake{address: "x"}
	srv := httptest.NewServer(w.handler())
	defer srv.Close()

	newClient := func(rpcURL string) (*walletrpc.Client, error) {
		return walletrpc.NewClient(rpcURL, 5)
	}

	engine := NewEngine(repo, newClient, PolicyReject, nil)
	ctx := context.Background()
	require.NoError(t, engine.RegisterWallet(ctx, "escrow-6", models.RoleBuyer, srv.URL))
	err := engine.RegisterWallet(ctx, "escrow-6", models.RoleBuyer, srv.URL)
	assert.Error(t, err)
}
