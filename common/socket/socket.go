package socket

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"time"
)

//	overrides ~/.kadoma, used by tests and service units
const KADOMA_DIR_ENV = "KADOMA_DIR"

const DAEMON_SOCKET_FILENAME = "kadomad.sock"

const PING_TIMEOUT = 5 * time.Second

//	HomeDir prefers $HOME so systemd user units and sudo -E behave the same.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if current, err := user.Current(); err == nil {
		return current.HomeDir
	}
	home, _ := os.UserHomeDir()
	return home
}

func KadomaDir() (kadomaPath string, err error) {
	kadomaPath = os.Getenv(KADOMA_DIR_ENV)
	if kadomaPath == "" {
		kadomaPath = filepath.Join(HomeDir(), ".kadoma")
	}
	err = os.MkdirAll(kadomaPath, os.FileMode(0700))
	return
}

func KadomaDirFile(file string) (fullPath string, err error) {
	kadomaPath, err := KadomaDir()
	if err != nil {
		return
	}
	fullPath = filepath.Join(kadomaPath, file)
	return
}

//	pingDaemon checks a daemon answers on conn within the deadline
func pingDaemon(conn net.Conn, deadline time.Time) (err error) {
	if err = conn.SetDeadline(deadline); err != nil {
		return
	}
	defer conn.SetDeadline(time.Time{})

	pingRequest, err := http.NewRequest("GET", "/ping", nil)
	if err != nil {
		return
	}
	if err = pingRequest.Write(conn); err != nil {
		return
	}
	response, err := http.ReadResponse(bufio.NewReader(conn), pingRequest)
	if err != nil {
		err = fmt.Errorf("daemon read error: %w", err)
		return
	}
	response.Body.Close()
	if response.StatusCode != http.StatusOK {
		err = fmt.Errorf("daemon ping returned %s", response.Status)
	}
	return
}

//	DaemonDialWithTimeout pings the daemon on a throwaway connection, then
//	returns a fresh one for the caller's request.
func DaemonDialWithTimeout(unixFile string) (conn net.Conn, err error) {
	ping, err := DaemonDial(unixFile)
	if err != nil {
		return
	}
	err = pingDaemon(ping, time.Now().Add(PING_TIMEOUT))
	ping.Close()
	if err != nil {
		return
	}
	conn, err = DaemonDial(unixFile)
	return
}
