//go:build !windows

package socket

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func TestDialWithTimeoutPingsDaemon(t *testing.T) {
	dir, err := os.MkdirTemp("", "kadoma")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	unixFile := filepath.Join(dir, "d.sock")
	listener, err := Listen(unixFile)
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {})
	go http.Serve(listener, mux)

	conn, err := DaemonDialWithTimeout(unixFile)
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()
}

func TestDaemonDialMissingSocket(t *testing.T) {
	if _, err := DaemonDial(filepath.Join(t.TempDir(), "missing.sock")); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestDialWithTimeoutRejectsBadPing(t *testing.T) {
	unixFile := filepath.Join(t.TempDir(), "d.sock")
	listener, err := Listen(unixFile)
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()
	go http.Serve(listener, http.NotFoundHandler())

	if _, err := DaemonDialWithTimeout(unixFile); err == nil {
		t.Fatal("expected ping failure")
	}
}
