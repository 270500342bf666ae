package client

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/blang/semver"

	"github.com/ldotlopez/kadoma/common/knob"
	. "github.com/ldotlopez/kadoma/common/socket"
	. "github.com/ldotlopez/kadoma/common/util"
	"github.com/ldotlopez/kadoma/common/version"
	"github.com/ldotlopez/kadoma/daemon/control"
)

var ErrOldDaemonRunning = errors.New(Red("An incompatible version of kadomad is running. Please restart it with " + Cyan("systemctl --user restart kadomad") + Red(" and try again.")))

func IsCompatibleDaemonRunning() (compatible bool, err error) {
	daemonVersion, err := RequestDaemonVersion()
	if err != nil {
		return
	}
	compatible = version.Compatible(daemonVersion)
	return
}

func RequestDaemonVersionOver(conn net.Conn) (daemonVersion semver.Version, err error) {
	httpRequest, err := http.NewRequest("GET", "/version", nil)
	if err != nil {
		return
	}
	body, err := roundTrip(conn, httpRequest)
	if err != nil {
		return
	}
	daemonVersion, err = semver.Make(string(body))
	return
}

func RequestDaemonVersion() (daemonVersion semver.Version, err error) {
	conn, err := dialDaemon()
	if err != nil {
		return
	}
	defer conn.Close()
	return RequestDaemonVersionOver(conn)
}

func RequestInfoOver(conn net.Conn) (info control.InfoResponse, err error) {
	err = requestJSON(conn, "GET", "/info", nil, &info)
	return
}

func RequestInfo() (info control.InfoResponse, err error) {
	err = withCompatibleDaemon(func(conn net.Conn) error {
		info, err = RequestInfoOver(conn)
		return err
	})
	return
}

func RequestStatusOver(conn net.Conn, cached bool) (status knob.Status, err error) {
	path := "/status"
	if cached {
		path += "?cached=1"
	}
	err = requestJSON(conn, "GET", path, nil, &status)
	return
}

func RequestStatus(cached bool) (status knob.Status, err error) {
	err = withCompatibleDaemon(func(conn net.Conn) error {
		status, err = RequestStatusOver(conn, cached)
		return err
	})
	return
}

func RequestKnobOver(conn net.Conn, name string) (values knob.Values, err error) {
	err = requestJSON(conn, "GET", "/knob/"+url.PathEscape(name), nil, &values)
	return
}

func RequestKnob(name string) (values knob.Values, err error) {
	err = withCompatibleDaemon(func(conn net.Conn) error {
		values, err = RequestKnobOver(conn, name)
		return err
	})
	return
}

func UpdateKnobOver(conn net.Conn, name string, overrides knob.Values) (values knob.Values, err error) {
	err = requestJSON(conn, "PUT", "/knob/"+url.PathEscape(name), overrides, &values)
	return
}

func UpdateKnob(name string, overrides knob.Values) (values knob.Values, err error) {
	err = withCompatibleDaemon(func(conn net.Conn) error {
		values, err = UpdateKnobOver(conn, name, overrides)
		return err
	})
	return
}

func ApplySettingsOver(conn net.Conn, settings knob.Settings) (applied knob.Settings, err error) {
	err = requestJSON(conn, "PUT", "/settings", settings, &applied)
	return
}

func ApplySettings(settings knob.Settings) (applied knob.Settings, err error) {
	err = withCompatibleDaemon(func(conn net.Conn) error {
		applied, err = ApplySettingsOver(conn, settings)
		return err
	})
	return
}

func SendRawOver(conn net.Conn, request control.RawRequest) (response control.RawResponse, err error) {
	err = requestJSON(conn, "POST", "/raw", request, &response)
	return
}

func SendRaw(request control.RawRequest) (response control.RawResponse, err error) {
	err = withCompatibleDaemon(func(conn net.Conn) error {
		response, err = SendRawOver(conn, request)
		return err
	})
	return
}

func dialDaemon() (conn net.Conn, err error) {
	unixFile, err := KadomaDirFile(DAEMON_SOCKET_FILENAME)
	if err != nil {
		err = ErrConnectingToDaemon
		return
	}
	conn, err = DaemonDialWithTimeout(unixFile)
	if err != nil {
		err = ErrConnectingToDaemon
	}
	return
}

//	one connection per request, after checking the daemon speaks our API
func withCompatibleDaemon(f func(conn net.Conn) error) (err error) {
	compatible, err := IsCompatibleDaemonRunning()
	if err != nil {
		return
	}
	if !compatible {
		return ErrOldDaemonRunning
	}
	conn, err := dialDaemon()
	if err != nil {
		return
	}
	defer conn.Close()
	return f(conn)
}

func requestJSON(conn net.Conn, method, path string, body interface{}, response interface{}) (err error) {
	var reader io.Reader
	if body != nil {
		var encoded []byte
		if encoded, err = json.Marshal(body); err != nil {
			return
		}
		reader = bytes.NewReader(encoded)
	}
	httpRequest, err := http.NewRequest(method, path, reader)
	if err != nil {
		return
	}
	if body != nil {
		httpRequest.Header.Set("Content-Type", "application/json")
	}
	responseBody, err := roundTrip(conn, httpRequest)
	if err != nil {
		return
	}
	err = json.Unmarshal(responseBody, response)
	return
}

func roundTrip(conn net.Conn, httpRequest *http.Request) (body []byte, err error) {
	err = httpRequest.Write(conn)
	if err != nil {
		err = ErrConnectingToDaemon
		return
	}

	responseReader := bufio.NewReader(conn)
	httpResponse, err := http.ReadResponse(responseReader, httpRequest)
	if err != nil {
		err = ErrConnectingToDaemon
		return
	}
	defer httpResponse.Body.Close()
	body, err = io.ReadAll(httpResponse.Body)
	if err != nil {
		return
	}
	if httpResponse.StatusCode != http.StatusOK {
		err = errorFromResponse(httpResponse.StatusCode, body)
	}
	return
}

func errorFromResponse(status int, body []byte) error {
	var errorResponse control.ErrorResponse
	detail := ""
	if json.Unmarshal(body, &errorResponse) == nil {
		detail = errorResponse.Error
	}
	switch status {
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w (%s)", ErrDeviceNotConnected, detail)
	case http.StatusGatewayTimeout:
		return fmt.Errorf("%w (%s)", ErrDeviceTimedOut, detail)
	case http.StatusNotFound:
		if detail == "" {
			return ErrUnknownKnob
		}
	}
	if detail == "" {
		detail = http.StatusText(status)
	}
	return fmt.Errorf("daemon error %d: %s", status, detail)
}
