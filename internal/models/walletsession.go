package models

import "time"

// WalletSessionTTL is the default idle period after which the session
// pool's background sweeper closes a session.
const WalletSessionTTL = 2 * time.Hour

// RoleEndpoint pins one participant role to an open RPC client on a fixed
// port for the lifetime of a wallet session.
type RoleEndpoint struct {
	Role    Role
	RPCPort int
}
