//go:build !windows

package transport

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/cuemby/sysrepo-engine/internal/session"
)

// peerCredentials resolves a connected AF_UNIX socket's SO_PEERCRED
// (uid/gid of the process on the other end of the socket), the mechanism
// §6 names for peer authentication on the control socket.
func peerCredentials(conn *net.UnixConn) (session.Credentials, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return session.Credentials{}, fmt.Errorf("transport: SyscallConn: %w", err)
	}

	var ucred *unix.Ucred
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		ucred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return session.Credentials{}, fmt.Errorf("transport: Control: %w", err)
	}
	if sockErr != nil {
		return session.Credentials{}, fmt.Errorf("transport: getsockopt SO_PEERCRED: %w", sockErr)
	}

	return session.Credentials{UID: ucred.Uid, GID: ucred.Gid}, nil
}
