// Package escrow implements the escrow status state machine: the
// authoritative transition table, per-transition authorization, and the
// per-escrow exclusive critical section that makes concurrent conflicting
// transitions resolve to exactly one winner.
package escrow

import (
	"context"
	"sync"
	"time"

	"github.com/yourusername/xmrescrow/internal/coreerrors"
	"github.com/yourusername/xmrescrow/internal/models"
)

// Trigger identifies a requested transition, independent of the escrow's
// current status; Apply validates it against the transition table.
type Trigger string

const (
	TriggerMultisigAddressComputed Trigger = "multisig_address_computed"
	TriggerBalanceObserved         Trigger = "balance_observed"
	TriggerBuyerCancel             Trigger = "buyer_cancel"
	TriggerFundingTimeout          Trigger = "funding_timeout"
	TriggerRelease                 Trigger = "release"
	TriggerRefund                  Trigger = "refund"
	TriggerDispute                 Trigger = "dispute"
	TriggerReleaseConfirmed        Trigger = "release_confirmed"
	TriggerRefundConfirmed         Trigger = "refund_confirmed"
	TriggerArbiterResolvesBuyer    Trigger = "arbiter_resolves_buyer"
	TriggerArbiterResolvesVendor   Trigger = "arbiter_resolves_vendor"
	TriggerSetupTimeout            Trigger = "setup_timeout"
	TriggerPolicyExpiry            Trigger = "policy_expiry"
)

// arc is one legal (from, trigger) -> to edge in the transition table.
type arc struct {
	from    models.EscrowStatus
	trigger Trigger
	to      models.EscrowStatus
}

// transitionTable is the authoritative set of legal outgoing arcs. Any
// (from, trigger) pair not listed here is illegal.
var transitionTable = []arc{
	{models.StatusCreated, TriggerMultisigAddressComputed, models.StatusFunded},
	{models.StatusFunded, TriggerBalanceObserved, models.StatusActive},
	{models.StatusFunded, TriggerBuyerCancel, models.StatusCancelled},
	{models.StatusFunded, TriggerFundingTimeout, models.StatusCancelled},
	{models.StatusActive, TriggerRelease, models.StatusReleasing},
	{models.StatusActive, TriggerArbiterResolvesVendor, models.StatusReleasing},
	{models.StatusActive, TriggerRefund, models.StatusRefunding},
	{models.StatusActive, TriggerArbiterResolvesBuyer, models.StatusRefunding},
	{models.StatusActive, TriggerDispute, models.StatusDisputed},
	{models.StatusReleasing, TriggerReleaseConfirmed, models.StatusCompleted},
	{models.StatusRefunding, TriggerRefundConfirmed, models.StatusRefunded},
	{models.StatusDisputed, TriggerArbiterResolvesBuyer, models.StatusRefunding},
	{models.StatusDisputed, TriggerArbiterResolvesVendor, models.StatusReleasing},
	{models.StatusCreated, TriggerSetupTimeout, models.StatusCancelled},
}

// Every status accepts TriggerPolicyExpiry -> expired, except terminal
// statuses, handled specially in legalTarget below since it applies
// uniformly rather than being enumerated per-from-status.

// legalTarget returns the destination status for (from, trigger), or
// false if no such arc exists.
func legalTarget(from models.EscrowStatus, trigger Trigger) (models.EscrowStatus, bool) {
	if trigger == TriggerPolicyExpiry && !from.IsTerminal() {
		return models.StatusExpired, true
	}
	for _, a := range transitionTable {
		if a.from == from && a.trigger == trigger {
			return a.to, true
		}
	}
	return "", false
}

// Actor identifies who is requesting a transition, for authorization.
type Actor string

const (
	ActorBuyer   Actor = "buyer"
	ActorVendor  Actor = "vendor"
	ActorArbiter Actor = "arbiter"
	ActorSystem  Actor = "system" // blockchain monitor, timeout monitor
)

// authorize enforces the per-trigger authorization rules. The system
// actor (background monitors) is always authorized; it never
// impersonates a party.
func authorize(trigger Trigger, actor Actor, escrowBuyer, escrowVendor, escrowArbiter Actor) error {
	if actor == ActorSystem {
		return nil
	}
	switch trigger {
	case TriggerRelease:
		if actor != escrowBuyer {
			return coreerrors.Authorization("release requires the buyer")
		}
	case TriggerArbiterResolvesVendor, TriggerArbiterResolvesBuyer:
		if actor != escrowArbiter {
			return coreerrors.Authorization("arbiter decision requires the arbiter")
		}
	case TriggerRefund:
		if actor != escrowBuyer && actor != escrowArbiter {
			return coreerrors.Authorization("refund requires the buyer or arbiter")
		}
	case TriggerDispute:
		if actor != escrowBuyer && actor != escrowVendor {
			return coreerrors.Authorization("dispute requires the buyer or vendor")
		}
	case TriggerBuyerCancel:
		if actor != escrowBuyer {
			return coreerrors.Authorization("cancel requires the buyer")
		}
	}
	return nil
}

// Repository is the subset of persistence the machine needs.
type Repository interface {
	GetEscrow(ctx context.Context, id string) (*models.Escrow, error)
	UpdateStatus(ctx context.Context, id string, newStatus models.EscrowStatus) error
	SaveDispute(ctx context.Context, id string, dispute *models.DisputeRecord) error
}

// AuditLogger records a state transition. internal/audit.Logger does not
// satisfy it as is: its LogEvent takes the payload as a value to
// JSON-encode rather than as raw bytes.
type AuditLogger interface {
	LogEvent(ctx context.Context, eventKind, entityID string, payload []byte, actor string) error
}

// Machine applies transitions under a per-escrow exclusive critical
// section, so two concurrent conflicting requests on the same escrow
// resolve to exactly one winner.
type Machine struct {
	repo   Repository
	audit  AuditLogger
	mu     sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewMachine constructs a state machine backed by repo and audit.
func NewMachine(repo Repository, audit AuditLogger) *Machine {
	return &Machine{repo: repo, audit: audit, locks: make(map[string]*sync.Mutex)}
}

func (m *Machine) lockFor(escrowID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[escrowID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[escrowID] = l
	}
	return l
}

// Apply validates and applies trigger to escrowID on behalf of actor. On
// success it updates last_activity_at and emits an audit entry. Applying
// a trigger from a status other than the one the table requires returns
// invalid_state and mutates nothing.
func (m *Machine) Apply(ctx context.Context, escrowID string, trigger Trigger, actor Actor, payload []byte) (models.EscrowStatus, error) {
	lock := m.lockFor(escrowID)
	lock.Lock()
	defer lock.Unlock()

	e, err := m.repo.GetEscrow(ctx, escrowID)
	if err != nil {
		return "", err
	}
	if e == nil {
		return "", coreerrors.InvalidState("no escrow exists with id %q", escrowID)
	}

	target, ok := legalTarget(e.Status, trigger)
	if !ok {
		return "", coreerrors.InvalidState("trigger %q is not legal from status %q", trigger, e.Status)
	}

	if err := authorize(trigger, actor, Actor(e.BuyerID), Actor(e.VendorID), Actor(e.ArbiterID)); err != nil {
		return "", err
	}

	if err := m.repo.UpdateStatus(ctx, escrowID, target); err != nil {
		return "", err
	}

	if trigger == TriggerDispute {
		dispute := &models.DisputeRecord{OpenedBy: string(actor), OpenedAt: now()}
		switch actor {
		case ActorBuyer:
			dispute.BuyerClaim = string(payload)
		case ActorVendor:
			dispute.VendorResponse = string(payload)
		}
		if err := m.repo.SaveDispute(ctx, escrowID, dispute); err != nil {
			return "", err
		}
	}

	if m.audit != nil {
		_ = m.audit.LogEvent(ctx, "escrow_"+string(trigger), escrowID, payload, string(actor))
	}

	return target, nil
}

// now exists so a future clock-injection test can override it; production
// always uses wall time.
var now = time.Now
