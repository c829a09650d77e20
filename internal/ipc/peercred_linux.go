//go:build linux

package ipc

import (
	"errors"
	"net"

	"golang.org/x/sys/unix"

	"github.com/1broseidon/a11yd/internal/security"
)

var errNotUnixConn = errors.New("connection is not a unix socket")

// peerIdentity reads the credentials of the process on the other end of conn
// using SO_PEERCRED.
func peerIdentity(conn net.Conn) (security.Identity, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return security.Identity{}, errNotUnixConn
	}

	rawConn, err := unixConn.SyscallConn()
	if err != nil {
		return security.Identity{}, err
	}

	var cred *unix.Ucred
	var credErr error
	err = rawConn.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return security.Identity{}, err
	}
	if credErr != nil {
		return security.Identity{}, credErr
	}
	return security.Identity{UID: int(cred.Uid), PID: int(cred.Pid)}, nil
}
