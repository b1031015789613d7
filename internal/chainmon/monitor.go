// Package chainmon polls the blockchain through the wallet RPC adapter to
// drive the two on-chain-observable transitions the state machine cannot
// decide on its own: funded->active once the agreed amount is seen
// unlocked, and releasing/refunding->completed/refunded once the
// settlement transaction reaches the confirmation threshold.
package chainmon

import (
	"context"
	"log/slog"

	"github.com/yourusername/xmrescrow/internal/escrow"
	"github.com/yourusername/xmrescrow/internal/models"
	"github.com/yourusername/xmrescrow/internal/walletrpc"
)

// EscrowLister supplies the escrows each pass needs to consider.
type EscrowLister interface {
	ListByStatus(ctx context.Context, statuses ...models.EscrowStatus) ([]*models.Escrow, error)
}

// WalletProvider resolves the wallet client to query for a given escrow's
// multisig address, typically backed by the session pool.
type WalletProvider interface {
	ClientFor(ctx context.Context, escrowID string) (*walletrpc.Client, error)
}

// Transitioner is the subset of the escrow state machine the monitor drives.
type Transitioner interface {
	Apply(ctx context.Context, escrowID string, trigger escrow.Trigger, actor escrow.Actor, payload []byte) (models.EscrowStatus, error)
}

// EventSink receives the review-invitation event emitted once a release
// completes.
type EventSink interface {
	ReviewInvitation(ctx context.Context, escrowID string)
}

// Monitor runs the two polling passes: funding confirmation and
// settlement confirmation.
type Monitor struct {
	escrows               EscrowLister
	wallets               WalletProvider
	machine               Transitioner
	events                EventSink
	log                   *slog.Logger
	requiredConfirmations int64
}

// New constructs a Monitor requiring requiredConfirmations confirmations
// before a release/refund transaction is considered final.
func New(escrows EscrowLister, wallets WalletProvider, machine Transitioner, events EventSink, log *slog.Logger, requiredConfirmations int64) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		escrows:               escrows,
		wallets:               wallets,
		machine:               machine,
		events:                events,
		log:                   log,
		requiredConfirmations: requiredConfirmations,
	}
}

// Tick runs pass A then pass B. Each escrow is independent; a failure on
// one is logged and the rest of the pass continues.
func (m *Monitor) Tick(ctx context.Context) {
	m.passFundedToActive(ctx)
	m.passSettlementConfirmed(ctx)
}

func (m *Monitor) passFundedToActive(ctx context.Context) {
	funded, err := m.escrows.ListByStatus(ctx, models.StatusFunded)
	if err != nil {
		m.log.Error("chain monitor: listing funded escrows", "error", err)
		return
	}
	for _, e := range funded {
		client, err := m.wallets.ClientFor(ctx, e.ID)
		if err != nil {
			m.log.Error("chain monitor: resolving wallet client", "escrow_id", e.ID, "error", err)
			continue
		}
		balance, err := client.GetBalance(ctx)
		if err != nil {
			m.log.Warn("chain monitor: get_balance failed, retrying next tick", "escrow_id", e.ID, "error", err)
			continue
		}
		if balance.Unlocked < e.AmountAtomic {
			continue
		}
		if _, err := m.machine.Apply(ctx, e.ID, escrow.TriggerBalanceObserved, escrow.ActorSystem, nil); err != nil {
			m.log.Error("chain monitor: transitioning funded to active", "escrow_id", e.ID, "error", err)
		}
	}
}

func (m *Monitor) passSettlementConfirmed(ctx context.Context) {
	pending, err := m.escrows.ListByStatus(ctx, models.StatusReleasing, models.StatusRefunding)
	if err != nil {
		m.log.Error("chain monitor: listing releasing/refunding escrows", "error", err)
		return
	}
	for _, e := range pending {
		if e.TransactionHash == "" {
			continue
		}
		client, err := m.wallets.ClientFor(ctx, e.ID)
		if err != nil {
			m.log.Error("chain monitor: resolving wallet client", "escrow_id", e.ID, "error", err)
			continue
		}
		transfer, err := client.GetTransferByTxID(ctx, e.TransactionHash)
		if err != nil {
			m.log.Info("chain monitor: transaction not yet visible, retrying next tick", "escrow_id", e.ID, "txid", e.TransactionHash)
			continue
		}
		if transfer.Confirmations < m.requiredConfirmations {
			continue
		}

		var trigger escrow.Trigger
		if e.Status == models.StatusReleasing {
			trigger = escrow.TriggerReleaseConfirmed
		} else {
			trigger = escrow.TriggerRefundConfirmed
		}
		newStatus, err := m.machine.Apply(ctx, e.ID, trigger, escrow.ActorSystem, nil)
		if err != nil {
			m.log.Error("chain monitor: confirming settlement", "escrow_id", e.ID, "error", err)
			continue
		}
		if newStatus == models.StatusCompleted {
			m.events.ReviewInvitation(ctx, e.ID)
		}
	}
}
