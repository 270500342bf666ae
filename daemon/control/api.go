package control

import (
	"time"

	"github.com/ldotlopez/kadoma/common/ble"
	. "github.com/ldotlopez/kadoma/common/protocol"
)

//	header carrying the daemon run id on every response
const SESSION_HEADER = "X-Kadoma-Session"

type RawRequest struct {
	//	hex, separators allowed
	Packet  string  `json:"packet"`
	//	zero uses the daemon default
	Timeout time.Duration `json:"timeout,omitempty"`
}

type RawResponse struct {
	Command uint16  `json:"command"`
	Params  []Param `json:"params"`
	//	the reply as the appliance sent it
	Packet  string  `json:"packet"`
}

type DaemonInfo struct {
	Version   string    `json:"version"`
	Session   string    `json:"session"`
	StartedAt time.Time `json:"started_at"`
	Connected bool      `json:"connected"`
	MTU       int       `json:"mtu,omitempty"`
	Pending   int       `json:"pending"`
}

type InfoResponse struct {
	Device ble.Info   `json:"device"`
	Daemon DaemonInfo `json:"daemon"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
