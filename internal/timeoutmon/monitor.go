// Package timeoutmon runs the periodic timeout sweep: expired escrows
// first, then expiring-soon warnings, then stuck-setup detection, each
// independent so a failure on one escrow never blocks the rest of the
// tick.
package timeoutmon

import (
	"context"
	"log/slog"
	"time"

	"github.com/yourusername/xmrescrow/internal/escrow"
	"github.com/yourusername/xmrescrow/internal/models"
)

const defaultStuckSetupWindow = 15 * time.Minute

// EscrowRepository is the subset of persistence the monitor needs for
// expiry and stuck-setup queries.
type EscrowRepository interface {
	FindExpired(ctx context.Context, now time.Time) ([]*models.Escrow, error)
	FindExpiringSoon(ctx context.Context, now time.Time, within time.Duration) ([]*models.Escrow, error)
}

// SetupRepository is the optional setup-snapshot store; when nil the
// monitor skips the stuck-setup pass entirely.
type SetupRepository interface {
	FindStuckEscrows(ctx context.Context, olderThan time.Duration) ([]string, error)
}

// EventSink receives the alerts and warnings a tick produces. A real
// deployment wires this to whatever notifies buyer/vendor/arbiter;
// nothing in this package assumes a transport.
type EventSink interface {
	EscrowCancelled(ctx context.Context, escrowID, reason string)
	StuckTransactionAlert(ctx context.Context, escrowID string, status models.EscrowStatus)
	DisputeEscalationAlert(ctx context.Context, escrowID string)
	ExpiryWarning(ctx context.Context, escrowID string, status models.EscrowStatus, actionHint string)
	StuckSetupAlert(ctx context.Context, escrowID string)
}

// Transitioner is the subset of the escrow state machine the monitor
// drives; it always acts as escrow.ActorSystem.
type Transitioner interface {
	Apply(ctx context.Context, escrowID string, trigger escrow.Trigger, actor escrow.Actor, payload []byte) (models.EscrowStatus, error)
}

// Monitor runs one tick at a time; Tick is safe to call from a single
// periodic caller (e.g. a ticker loop in main).
type Monitor struct {
	escrows     EscrowRepository
	setups      SetupRepository
	machine     Transitioner
	events      EventSink
	log         *slog.Logger
	warnWithin  time.Duration
	disputeAge  time.Duration
	stuckWindow time.Duration
}

// New constructs a Monitor. setups may be nil to skip the stuck-setup pass.
func New(escrows EscrowRepository, setups SetupRepository, machine Transitioner, events EventSink, log *slog.Logger, warnWithin, disputeAge time.Duration) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		escrows:     escrows,
		setups:      setups,
		machine:     machine,
		events:      events,
		log:         log,
		warnWithin:  warnWithin,
		disputeAge:  disputeAge,
		stuckWindow: defaultStuckSetupWindow,
	}
}

// Tick runs one sweep: expired first, then expiring-soon warnings, then
// stuck-setup detection. The ordering guarantees a warning never fires
// for an escrow already cancelled in the same tick.
func (m *Monitor) Tick(ctx context.Context) {
	now := time.Now()

	expired, err := m.escrows.FindExpired(ctx, now)
	if err != nil {
		m.log.Error("timeout monitor: loading expired escrows", "error", err)
	} else {
		for _, e := range expired {
			m.handleExpired(ctx, e)
		}
	}

	soon, err := m.escrows.FindExpiringSoon(ctx, now, m.warnWithin)
	if err != nil {
		m.log.Error("timeout monitor: loading expiring-soon escrows", "error", err)
	} else {
		for _, e := range soon {
			m.events.ExpiryWarning(ctx, e.ID, e.Status, actionHintFor(e.Status))
		}
	}

	if m.setups != nil {
		stuck, err := m.setups.FindStuckEscrows(ctx, m.stuckWindow)
		if err != nil {
			m.log.Error("timeout monitor: loading stuck setups", "error", err)
		} else {
			for _, id := range stuck {
				m.events.StuckSetupAlert(ctx, id)
			}
		}
	}
}

// handleExpired branches on status: created/funded cancel outright,
// releasing/refunding only alert (funds are already on-chain), disputed
// escalates once past disputeAge.
func (m *Monitor) handleExpired(ctx context.Context, e *models.Escrow) {
	switch e.Status {
	case models.StatusCreated:
		m.cancel(ctx, e.ID, escrow.TriggerSetupTimeout, "setup timeout")
	case models.StatusFunded:
		m.cancel(ctx, e.ID, escrow.TriggerFundingTimeout, "funding timeout")
	case models.StatusReleasing, models.StatusRefunding:
		m.events.StuckTransactionAlert(ctx, e.ID, e.Status)
	case models.StatusDisputed:
		if time.Since(e.LastActivityAt) >= m.disputeAge {
			m.events.DisputeEscalationAlert(ctx, e.ID)
		}
	default:
		m.log.Warn("timeout monitor: expired escrow in unexpected status", "escrow_id", e.ID, "status", e.Status)
	}
}

func (m *Monitor) cancel(ctx context.Context, escrowID string, trigger escrow.Trigger, reason string) {
	if _, err := m.machine.Apply(ctx, escrowID, trigger, escrow.ActorSystem, []byte(reason)); err != nil {
		m.log.Error("timeout monitor: cancelling escrow", "escrow_id", escrowID, "error", err)
		return
	}
	m.events.EscrowCancelled(ctx, escrowID, reason)
}

func actionHintFor(status models.EscrowStatus) string {
	switch status {
	case models.StatusCreated:
		return "complete multisig setup before the setup window closes"
	case models.StatusFunded:
		return "send the agreed amount before the funding window closes"
	case models.StatusDisputed:
		return "submit evidence before the dispute escalates to the arbiter"
	default:
		return "no action required"
	}
}
