package models

import "github.com/yourusername/xmrescrow/internal/coreerrors"

// SetupSnapshot is the serializable record the state repository persists
// once per phase transition, sufficient to resume a setup protocol after a
// process restart (schema_version guards against incompatible layouts
// written by an older build).
type SetupSnapshot struct {
	Phase         SetupPhase      `json:"-"`
	WalletIDs     map[Role]string `json:"wallet_ids"`
	RPCURLs       map[Role]string `json:"rpc_urls"`
	EncryptedInfos map[Role][]byte `json:"encrypted_infos,omitempty"`
	SchemaVersion int             `json:"schema_version"`
}

const CurrentSnapshotSchemaVersion = 1

// Validate enforces that every snapshot names all three roles and that its
// phase's own invariants hold.
func (s *SetupSnapshot) Validate() error {
	for _, role := range AllRoles {
		if _, ok := s.WalletIDs[role]; !ok {
			return coreerrors.Validation("setup snapshot missing wallet id for role %q", role)
		}
		if _, ok := s.RPCURLs[role]; !ok {
			return coreerrors.Validation("setup snapshot missing rpc url for role %q", role)
		}
	}
	if s.Phase == nil {
		return coreerrors.Validation("setup snapshot has no phase")
	}
	switch p := s.Phase.(type) {
	case PhaseExchanging:
		if p.Round < 1 {
			return coreerrors.Validation("setup snapshot exchanging phase has round %d, want >= 1", p.Round)
		}
		for role := range p.Infos {
			if !role.Valid() {
				return coreerrors.Validation("setup snapshot exchanging phase has unknown role %q", role)
			}
		}
	case PhaseReady:
		if p.Address == "" {
			return coreerrors.Validation("setup snapshot ready phase has empty address")
		}
	}
	return nil
}
