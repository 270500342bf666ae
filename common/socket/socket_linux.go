//go:build linux

package socket

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

//	only the daemon's own user may drive the appliance
type peerCredListener struct {
	net.Listener
}

func sameUserListener(l net.Listener) net.Listener {
	return peerCredListener{l}
}

func (l peerCredListener) Accept() (conn net.Conn, err error) {
	for {
		conn, err = l.Listener.Accept()
		if err != nil {
			return
		}
		uid, credErr := PeerUID(conn)
		if credErr == nil && uid == os.Getuid() {
			return
		}
		conn.Close()
	}
}

//	PeerUID reads SO_PEERCRED of a unix socket connection.
func PeerUID(conn net.Conn) (uid int, err error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		err = fmt.Errorf("not a unix socket connection")
		return
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return
	}
	var cred *unix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return
	}
	if credErr != nil {
		err = credErr
		return
	}
	uid = int(cred.Uid)
	return
}
