package escrow

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/xmrescrow/internal/coreerrors"
	"github.com/yourusername/xmrescrow/internal/models"
)

type fakeRepo struct {
	mu      sync.Mutex
	escrows map[string]*models.Escrow
	updates int32
}

func newFakeRepo(escrows ...*models.Escrow) *fakeRepo {
	r := &fakeRepo{escrows: make(map[string]*models.Escrow)}
	for _, e := range escrows {
		r.escrows[e.ID] = e
	}
	return r
}

func (r *fakeRepo) GetEscrow(ctx context.Context, id string) (*models.Escrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.escrows[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *fakeRepo) UpdateStatus(ctx context.Context, id string, newStatus models.EscrowStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.escrows[id]
	if !ok {
		return coreerrors.InvalidState("no such escrow")
	}
	e.Status = newStatus
	atomic.AddInt32(&r.updates, 1)
	return nil
}

func (r *fakeRepo) SaveDispute(ctx context.Context, id string, dispute *models.DisputeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.escrows[id]
	if !ok {
		return coreerrors.InvalidState("no such escrow")
	}
	e.Dispute = dispute
	return nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *fakeAudit) LogEvent(ctx context.Context, eventKind, entityID string, payload []byte, actor string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, eventKind)
	return nil
}

func testEscrow() *models.Escrow {
	return &models.Escrow{
		ID:             "e1",
		BuyerID:        "buyer",
		VendorID:       "vendor",
		ArbiterID:      "arbiter",
		AmountAtomic:   1000,
		Status:         models.StatusCreated,
		LastActivityAt: time.Now(),
	}
}

func TestHappyPathTransitionSequence(t *testing.T) {
	repo := newFakeRepo(testEscrow())
	audit := &fakeAudit{}
	m := NewMachine(repo, audit)
	ctx := context.Background()

	status, err := m.Apply(ctx, "e1", TriggerMultisigAddressComputed, ActorSystem, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFunded, status)

	status, err = m.Apply(ctx, "e1", TriggerBalanceObserved, ActorSystem, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, status)

	status, err = m.Apply(ctx, "e1", TriggerRelease, Actor("buyer"), nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReleasing, status)

	status, err = m.Apply(ctx, "e1", TriggerReleaseConfirmed, ActorSystem, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status)

	assert.Len(t, audit.events, 4)
}

func TestIllegalTransitionReturnsInvalidState(t *testing.T) {
	repo := newFakeRepo(testEscrow())
	m := NewMachine(repo, nil)

	_, err := m.Apply(context.Background(), "e1", TriggerRelease, Actor("buyer"), nil)
	require.Error(t, err)
	kind, ok := coreerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, coreerrors.KindInvalidState, kind)
}

func TestReleaseRequiresBuyer(t *testing.T) {
	e := testEscrow()
	e.Status = models.StatusActive
	repo := newFakeRepo(e)
	m := NewMachine(repo, nil)

	_, err := m.Apply(context.Background(), "e1", TriggerRelease, Actor("vendor"), nil)
	require.Error(t, err)
	kind, _ := coreerrors.KindOf(err)
	assert.Equal(t, coreerrors.KindAuthorization, kind)
}

func TestArbiterResolvesVendorAuthorizedOnlyForArbiter(t *testing.T) {
	e := testEscrow()
	e.Status = models.StatusDisputed
	repo := newFakeRepo(e)
	m := NewMachine(repo, nil)

	_, err := m.Apply(context.Background(), "e1", TriggerArbiterResolvesVendor, Actor("buyer"), nil)
	require.Error(t, err)

	status, err := m.Apply(context.Background(), "e1", TriggerArbiterResolvesVendor, Actor("arbiter"), nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReleasing, status)
}

func TestArbiterResolvesBuyerTransitionsDisputedToRefunding(t *testing.T) {
	e := testEscrow()
	e.Status = models.StatusDisputed
	repo := newFakeRepo(e)
	m := NewMachine(repo, nil)

	status, err := m.Apply(context.Background(), "e1", TriggerArbiterResolvesBuyer, Actor("arbiter"), nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRefunding, status)
}

func TestDisputeRequiresBuyerOrVendor(t *testing.T) {
	e := testEscrow()
	e.Status = models.StatusActive
	repo := newFakeRepo(e)
	m := NewMachine(repo, nil)

	_, err := m.Apply(context.Background(), "e1", TriggerDispute, Actor("arbiter"), nil)
	require.Error(t, err)

	status, err := m.Apply(context.Background(), "e1", TriggerDispute, Actor("vendor"), nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDisputed, status)
}

func TestDisputeOpenedByBuyerPersistsBuyerClaim(t *testing.T) {
	e := testEscrow()
	e.Status = models.StatusActive
	repo := newFakeRepo(e)
	m := NewMachine(repo, nil)

	_, err := m.Apply(context.Background(), "e1", TriggerDispute, ActorBuyer, []byte("item not received"))
	require.NoError(t, err)

	loaded, err := repo.GetEscrow(context.Background(), "e1")
	require.NoError(t, err)
	require.NotNil(t, loaded.Dispute)
	assert.Equal(t, "buyer", loaded.Dispute.OpenedBy)
	assert.Equal(t, "item not received", loaded.Dispute.BuyerClaim)
	assert.Empty(t, loaded.Dispute.VendorResponse)
}

func TestRefundRequiresBuyerOrArbiter(t *testing.T) {
	e := testEscrow()
	e.Status = models.StatusActive
	repo := newFakeRepo(e)
	m := NewMachine(repo, nil)

	_, err := m.Apply(context.Background(), "e1", TriggerRefund, Actor("vendor"), nil)
	require.Error(t, err)

	status, err := m.Apply(context.Background(), "e1", TriggerRefund, Actor("buyer"), nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRefunding, status)
}

func TestPolicyExpiryNotLegalFromTerminalStatus(t *testing.T) {
	e := testEscrow()
	e.Status = models.StatusCompleted
	repo := newFakeRepo(e)
	m := NewMachine(repo, nil)

	_, err := m.Apply(context.Background(), "e1", TriggerPolicyExpiry, ActorSystem, nil)
	require.Error(t, err)
	kind, _ := coreerrors.KindOf(err)
	assert.Equal(t, coreerrors.KindInvalidState, kind)
}

func TestPolicyExpiryLegalFromNonTerminalStatus(t *testing.T) {
	e := testEscrow()
	e.Status = models.StatusActive
	repo := newFakeRepo(e)
	m := NewMachine(repo, nil)

	status, err := m.Apply(context.Background(), "e1", TriggerPolicyExpiry, ActorSystem, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, status)
}

// TestConcurrentReleaseResolvesToExactlyOneWinner exercises spec §8's
// property that two concurrent conflicting requests on the same escrow
// serialize through the per-escrow lock: only one can observe "active"
// and win the release race; the loser sees invalid_state because by the
// time it acquires the lock the status has already moved on.
func TestConcurrentReleaseResolvesToExactlyOneWinner(t *testing.T) {
	e := testEscrow()
	e.Status = models.StatusActive
	repo := newFakeRepo(e)
	m := NewMachine(repo, nil)

	const attempts = 20
	var wg sync.WaitGroup
	var successes int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Apply(context.Background(), "e1", TriggerRelease, Actor("buyer"), nil)
			if err == nil {
				atomic.AddInt32(&successes, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes)
	final, err := repo.GetEscrow(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReleasing, final.Status)
}
