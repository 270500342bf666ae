//go:build !linux && !windows

package socket

import (
	"net"
)

func sameUserListener(l net.Listener) net.Listener {
	return l
}
