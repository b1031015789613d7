package models

import (
	"encoding/json"
	"time"

	"github.com/yourusername/xmrescrow/internal/coreerrors"
)

// Role identifies one of the three multisig participants.
type Role string

const (
	RoleBuyer   Role = "buyer"
	RoleVendor  Role = "vendor"
	RoleArbiter Role = "arbiter"
)

func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleVendor, RoleArbiter:
		return true
	default:
		return false
	}
}

// AllRoles lists every participant role, used wherever a snapshot is
// checked for completeness.
var AllRoles = []Role{RoleBuyer, RoleVendor, RoleArbiter}

// SetupPhase is the tagged variant for multisig setup progress. It is a
// sum type in spirit: each concrete type below implements phaseTag so a
// switch over phase.(type) is exhaustive-checkable at every call site that
// inspects it, rather than an inheritance hierarchy of phase subclasses.
type SetupPhase interface {
	phaseTag() string
}

// PhaseNotStarted is the initial phase before any wallet is registered.
type PhaseNotStarted struct{}

func (PhaseNotStarted) phaseTag() string { return "not_started" }

// PhasePreparing tracks which roles have registered a wallet so far.
type PhasePreparing struct {
	Completed map[Role]bool `json:"completed"`
}

func (PhasePreparing) phaseTag() string { return "preparing" }

// PhaseExchanging holds the in-flight key-exchange round. Round is
// 1-indexed; Infos maps role to its encrypted key-exchange blob for the
// current round.
type PhaseExchanging struct {
	Round int             `json:"round"`
	Infos map[Role][]byte `json:"infos"`
}

func (PhaseExchanging) phaseTag() string { return "exchanging" }

// PhaseReady is the terminal success phase: the shared multisig address
// has been derived and confirmed identical across all three wallets.
type PhaseReady struct {
	Address     string    `json:"address"`
	FinalizedAt time.Time `json:"finalized_at"`
}

func (PhaseReady) phaseTag() string { return "ready" }

// PhaseFailed is the terminal failure phase.
type PhaseFailed struct {
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

func (PhaseFailed) phaseTag() string { return "failed" }

// IsTerminalPhase reports whether a phase admits no further transition.
func IsTerminalPhase(p SetupPhase) bool {
	switch p.(type) {
	case PhaseReady, PhaseFailed:
		return true
	default:
		return false
	}
}

// phaseEnvelope is the on-the-wire encoding of SetupPhase: a discriminator
// tag plus the tag-specific fields flattened into one object.
type phaseEnvelope struct {
	Type        string          `json:"type"`
	Completed   map[Role]bool   `json:"completed,omitempty"`
	Round       int             `json:"round,omitempty"`
	Infos       map[Role][]byte `json:"infos,omitempty"`
	Address     string          `json:"address,omitempty"`
	FinalizedAt *time.Time      `json:"finalized_at,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	FailedAt    *time.Time      `json:"failed_at,omitempty"`
}

// MarshalSetupPhase encodes a SetupPhase for storage in a setup snapshot.
func MarshalSetupPhase(p SetupPhase) ([]byte, error) {
	var env phaseEnvelope
	switch v := p.(type) {
	case PhaseNotStarted:
		env.Type = v.phaseTag()
	case PhasePreparing:
		env.Type = v.phaseTag()
		env.Completed = v.Completed
	case PhaseExchanging:
		env.Type = v.phaseTag()
		env.Round = v.Round
		env.Infos = v.Infos
	case PhaseReady:
		env.Type = v.phaseTag()
		env.Address = v.Address
		env.FinalizedAt = &v.FinalizedAt
	case PhaseFailed:
		env.Type = v.phaseTag()
		env.Reason = v.Reason
		env.FailedAt = &v.FailedAt
	default:
		return nil, coreerrors.Validation("unknown setup phase type %T", p)
	}
	return json.Marshal(env)
}

// UnmarshalSetupPhase decodes a SetupPhase previously produced by
// MarshalSetupPhase, validating the phase-specific invariants from the
// data model (round >= 1, ready.address non-empty).
func UnmarshalSetupPhase(data []byte) (SetupPhase, error) {
	var env phaseEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, coreerrors.Validation("malformed setup phase JSON: %v", err)
	}
	switch env.Type {
	case "not_started":
		return PhaseNotStarted{}, nil
	case "preparing":
		return PhasePreparing{Completed: env.Completed}, nil
	case "exchanging":
		if env.Round < 1 {
			return nil, coreerrors.Validation("exchanging phase round must be >= 1, got %d", env.Round)
		}
		for role := range env.Infos {
			if !role.Valid() {
				return nil, coreerrors.Validation("exchanging phase contains unknown role %q", role)
			}
		}
		return PhaseExchanging{Round: env.Round, Infos: env.Infos}, nil
	case "ready":
		if env.Address == "" {
			return nil, coreerrors.Validation("ready phase must carry a non-empty address")
		}
		finalizedAt := time.Time{}
		if env.FinalizedAt != nil {
			finalizedAt = *env.FinalizedAt
		}
		return PhaseReady{Address: env.Address, FinalizedAt: finalizedAt}, nil
	case "failed":
		failedAt := time.Time{}
		if env.FailedAt != nil {
			failedAt = *env.FailedAt
		}
		return PhaseFailed{Reason: env.Reason, FailedAt: failedAt}, nil
	default:
		return nil, coreerrors.Validation("unknown setup phase tag %q", env.Type)
	}
}
