//go:build !linux

package ipc

import (
	"errors"
	"net"

	"github.com/1broseidon/a11yd/internal/security"
)

// peerIdentity is unsupported off Linux; every connection is refused.
func peerIdentity(net.Conn) (security.Identity, error) {
	return security.Identity{}, errors.New("peer credentials are not supported on this platform")
}
