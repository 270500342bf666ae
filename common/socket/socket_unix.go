//go:build !windows

package socket

import (
	"fmt"
	"net"
	"os"
)

func DaemonListen() (listener net.Listener, err error) {
	socketPath, err := KadomaDirFile(DAEMON_SOCKET_FILENAME)
	if err != nil {
		return
	}
	return Listen(socketPath)
}

func Listen(socketPath string) (listener net.Listener, err error) {
	//	delete UNIX socket in case daemon was not killed cleanly
	_ = os.Remove(socketPath)
	listener, err = net.Listen("unix", socketPath)
	if err != nil {
		return
	}
	listener = sameUserListener(listener)
	return
}

func DaemonDial(unixFile string) (conn net.Conn, err error) {
	conn, err = net.Dial("unix", unixFile)
	if err != nil {
		err = fmt.Errorf("Failed to connect to kadoma daemon. Please make sure it is running by typing \"kadomad\".")
	}
	return
}
