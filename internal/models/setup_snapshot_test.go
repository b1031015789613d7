package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func completeSnapshot() *SetupSnapshot {
	return &SetupSnapshot{
		Phase: PhaseNotStarted{},
		WalletIDs: map[Role]string{
			RoleBuyer:   "w-buyer",
			RoleVendor:  "w-vendor",
			RoleArbiter: "w-arbiter",
		},
		RPCURLs: map[Role]string{
			RoleBuyer:   "http://127.0.0.1:18082",
			RoleVendor:  "http://127.0.0.1:18083",
			RoleArbiter: "http://127.0.0.1:18084",
		},
		SchemaVersion: CurrentSnapshotSchemaVersion,
	}
}

func TestSetupSnapshotValidateAcceptsCompleteRoster(t *testing.T) {
	assert.NoError(t, completeSnapshot().Validate())
}

func TestSetupSnapshotValidateRejectsMissingRole(t *testing.T) {
	snap := completeSnapshot()
	delete(snap.WalletIDs, RoleArbiter)
	assert.Error(t, snap.Validate())
}

func TestSetupSnapshotValidateRejectsMissingRPCURL(t *testing.T) {
	snap := completeSnapshot()
	delete(snap.RPCURLs, RoleVendor)
	assert.Error(t, snap.Validate())
}

func TestSetupSnapshotValidateRejectsInvalidExchangingRound(t *testing.T) {
	snap := completeSnapshot()
	snap.Phase = PhaseExchanging{Round: 0}
	assert.Error(t, snap.Validate())
}

func TestSetupSnapshotValidateRejectsEmptyReadyAddress(t *testing.T) {
	snap := completeSnapshot()
	snap.Phase = PhaseReady{Address: ""}
	assert.Error(t, snap.Validate())
}
