//go:build windows

package socket

import (
	"fmt"
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

const DAEMON_PIPE = "\\\\.\\pipe\\kadomad"

//	named pipes replace the unix socket, the socket path is ignored
func DaemonListen() (listener net.Listener, err error) {
	return Listen(DAEMON_PIPE)
}

func Listen(pipe string) (listener net.Listener, err error) {
	listener, err = winio.ListenPipe(pipe, nil)
	return
}

func DaemonDial(unixFile string) (conn net.Conn, err error) {
	timeout := 2 * time.Second
	conn, err = winio.DialPipe(DAEMON_PIPE, &timeout)
	if err != nil {
		err = fmt.Errorf("Failed to connect to kadoma daemon. Please make sure it is running by typing \"kadomad.exe\".")
	}
	return
}
