package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func baseEscrow() *Escrow {
	return &Escrow{
		ID:             "escrow-1",
		BuyerID:        "buyer-1",
		VendorID:       "vendor-1",
		ArbiterID:      "arbiter-1",
		AmountAtomic:   10_000_000_000_000,
		Status:         StatusCreated,
		Phase:          PhaseNotStarted{},
		LastActivityAt: time.Now(),
	}
}

func TestEscrowValidateAcceptsWellFormed(t *testing.T) {
	e := baseEscrow()
	assert.NoError(t, e.Validate())
}

func TestEscrowValidateRejectsNonPositiveAmount(t *testing.T) {
	e := baseEscrow()
	e.AmountAtomic = 0
	assert.Error(t, e.Validate())
}

func TestEscrowValidateRejectsDuplicatePrincipals(t *testing.T) {
	e := baseEscrow()
	e.ArbiterID = e.BuyerID
	assert.Error(t, e.Validate())
}

func TestEscrowValidateRejectsExpiryOnTerminalStatus(t *testing.T) {
	e := baseEscrow()
	e.Status = StatusCompleted
	future := time.Now().Add(time.Hour)
	e.ExpiresAt = &future
	assert.Error(t, e.Validate())
}

func TestEscrowValidateRequiresAddressIffReady(t *testing.T) {
	e := baseEscrow()
	e.Phase = PhaseReady{Address: "", FinalizedAt: time.Now()}
	assert.Error(t, e.Validate(), "ready phase with empty multisig_address should fail")

	e.Phase = PhaseReady{Address: "addr123", FinalizedAt: time.Now()}
	e.MultisigAddress = "addr123"
	assert.NoError(t, e.Validate())

	e2 := baseEscrow()
	e2.MultisigAddress = "addr123"
	assert.Error(t, e2.Validate(), "multisig_address set without ready phase should fail")
}

func TestEscrowStatusIsTerminal(t *testing.T) {
	terminal := []EscrowStatus{StatusCompleted, StatusRefunded, StatusCancelled, StatusExpired, StatusResolvedBuyer, StatusResolvedVendor}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
	}
	nonTerminal := []EscrowStatus{StatusCreated, StatusFunded, StatusActive, StatusReleasing, StatusRefunding, StatusDisputed}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal(), "%s should not be terminal", s)
	}
}
