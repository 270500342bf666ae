package control

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/op/go-logging"

	"github.com/ldotlopez/kadoma/common/knob"
	"github.com/ldotlopez/kadoma/common/log"
	. "github.com/ldotlopez/kadoma/common/persistance"
	. "github.com/ldotlopez/kadoma/common/protocol"
	"github.com/ldotlopez/kadoma/common/util"
	"github.com/ldotlopez/kadoma/common/version"
)

func attachedServer(t *testing.T) (*ControlServer, http.Handler) {
	cs := NewTestControlServer(t)
	if err := cs.Attach(context.Background(), NewTestMockDevice(t)); err != nil {
		t.Fatal(err)
	}
	return cs, cs.Router()
}

func serve(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func TestVersionAndPing(t *testing.T) {
	cs, handler := attachedServer(t)
	defer cs.Stop()

	response := serve(t, handler, http.MethodGet, "/version", nil)
	if response.Code != http.StatusOK || response.Body.String() != version.CURRENT_VERSION.String() {
		t.Fatal("version", response.Code, response.Body.String())
	}
	if response.Header().Get(SESSION_HEADER) != cs.Session() {
		t.Fatal("missing session header")
	}
	if serve(t, handler, http.MethodGet, "/ping", nil).Code != http.StatusOK {
		t.Fatal("ping")
	}
}

func TestStatusRefreshesAndPersists(t *testing.T) {
	cs, handler := attachedServer(t)
	defer cs.Stop()

	//	nothing persisted yet
	if code := serve(t, handler, http.MethodGet, "/status?cached=1", nil).Code; code != http.StatusNotFound {
		t.Fatal("expected 404 for an empty cache", code)
	}

	response := serve(t, handler, http.MethodGet, "/status", nil)
	if response.Code != http.StatusOK {
		t.Fatal(response.Code, response.Body.String())
	}
	var status knob.Status
	if err := json.NewDecoder(response.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.OperationMode == nil || *status.OperationMode != knob.COOL {
		t.Fatal("operation mode", status.OperationMode)
	}
	if status.SetPoint["cooling_set_point"] != 24 || status.SetPoint["heating_set_point"] != 21 {
		t.Fatal("set point", status.SetPoint)
	}

	response = serve(t, handler, http.MethodGet, "/status?cached=1", nil)
	if response.Code != http.StatusOK || !strings.Contains(response.Body.String(), `"operation_mode":"COOL"`) {
		t.Fatal("cached status", response.Code, response.Body.String())
	}
}

func TestKnobRoutes(t *testing.T) {
	cs, handler := attachedServer(t)
	defer cs.Stop()

	response := serve(t, handler, http.MethodGet, "/knob/fan_speed", nil)
	if response.Code != http.StatusOK {
		t.Fatal(response.Code, response.Body.String())
	}
	var values knob.Values
	if err := json.NewDecoder(response.Body).Decode(&values); err != nil {
		t.Fatal(err)
	}
	if values["cooling"] != 2 || values["heating"] != 0 {
		t.Fatal("fan speed values", values)
	}

	response = serve(t, handler, http.MethodPut, "/knob/power-state", knob.Values{"state": 0})
	if response.Code != http.StatusOK {
		t.Fatal(response.Code, response.Body.String())
	}

	if code := serve(t, handler, http.MethodGet, "/knob/humidity", nil).Code; code != http.StatusNotFound {
		t.Fatal("unknown knob", code)
	}
	if code := serve(t, handler, http.MethodPut, "/knob/sensors", knob.Values{}).Code; code != http.StatusMethodNotAllowed {
		t.Fatal("sensors are read only", code)
	}
	if code := serve(t, handler, http.MethodPut, "/knob/power_state", knob.Values{"speed": 1}).Code; code != http.StatusBadRequest {
		t.Fatal("unknown field", code)
	}
}

func TestPutSettings(t *testing.T) {
	cs, handler := attachedServer(t)
	defer cs.Stop()

	mode := knob.HEAT
	settings := knob.Settings{
		OperationMode: &mode,
		SetPoint:      &knob.SetPoint{Cooling: 25, Heating: 20},
	}
	response := serve(t, handler, http.MethodPut, "/settings", settings)
	if response.Code != http.StatusOK {
		t.Fatal(response.Code, response.Body.String())
	}
	var applied knob.Settings
	if err := json.NewDecoder(response.Body).Decode(&applied); err != nil {
		t.Fatal(err)
	}
	if applied.OperationMode == nil || *applied.OperationMode != knob.HEAT || applied.SetPoint.Cooling != 25 {
		t.Fatal("applied settings", applied)
	}
	if applied.PowerState != nil {
		t.Fatal("power state was not requested")
	}
}

func TestRaw(t *testing.T) {
	cs, handler := attachedServer(t)
	defer cs.Stop()

	response := serve(t, handler, http.MethodPost, "/raw", RawRequest{Packet: "07:00:00:30:20:01:02"})
	if response.Code != http.StatusOK {
		t.Fatal(response.Code, response.Body.String())
	}
	var raw RawResponse
	if err := json.NewDecoder(response.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	if raw.Command != 0x0030 || raw.Packet != "07:00:00:30:20:01:03" {
		t.Fatal("raw reply", raw)
	}

	if code := serve(t, handler, http.MethodPost, "/raw", RawRequest{Packet: "09:00:00:30"}).Code; code != http.StatusBadRequest {
		t.Fatal("malformed packet", code)
	}
	if code := serve(t, handler, http.MethodPost, "/raw", RawRequest{Packet: "zz"}).Code; code != http.StatusBadRequest {
		t.Fatal("bad hex", code)
	}
}

func TestTimeoutMapsToGatewayTimeout(t *testing.T) {
	cs := NewTestControlServer(t)
	device := NewTestMockDevice(t)
	device.Silent = true
	if err := cs.Attach(context.Background(), device); err != nil {
		t.Fatal(err)
	}
	defer cs.Stop()

	if code := serve(t, cs.Router(), http.MethodGet, "/knob/power_state", nil).Code; code != http.StatusGatewayTimeout {
		t.Fatal("expected 504", code)
	}
}

func TestDetachedServer(t *testing.T) {
	cs := NewTestControlServer(t)
	handler := cs.Router()

	if code := serve(t, handler, http.MethodGet, "/status", nil).Code; code != http.StatusServiceUnavailable {
		t.Fatal("expected 503 without a device", code)
	}
	response := serve(t, handler, http.MethodGet, "/info", nil)
	var info InfoResponse
	if err := json.NewDecoder(response.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.Daemon.Connected || info.Daemon.Session != cs.Session() {
		t.Fatal("daemon info", info.Daemon)
	}
}

func TestAttachPersistsInfo(t *testing.T) {
	persister := &MemoryPersister{}
	cs, err := NewControlServer(persister, TestTimeouts(), log.SetupLogging("test", logging.INFO, false))
	if err != nil {
		t.Fatal(err)
	}
	if err = cs.Attach(context.Background(), NewTestMockDevice(t)); err != nil {
		t.Fatal(err)
	}
	info, err := persister.LoadInfo()
	if err != nil || info.Model != "BRC1H519W" {
		t.Fatal("device info not persisted", info, err)
	}

	if err = cs.Detach(); err != nil {
		t.Fatal(err)
	}
	response := serve(t, cs.Router(), http.MethodGet, "/info", nil)
	var infoResponse InfoResponse
	if err = json.NewDecoder(response.Body).Decode(&infoResponse); err != nil {
		t.Fatal(err)
	}
	if infoResponse.Device.Model != "BRC1H519W" || infoResponse.Daemon.Connected {
		t.Fatal("detached info should come from the persister", infoResponse)
	}
}

func TestRawReturnsReplyAsSent(t *testing.T) {
	cs := NewTestControlServer(t)
	device := NewTestMockDevice(t)
	device.Silent = true
	if err := cs.Attach(context.Background(), device); err != nil {
		t.Fatal(err)
	}
	defer cs.Stop()
	_, tr, _, err := cs.attached()
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- serve(t, cs.Router(), http.MethodPost, "/raw", RawRequest{Packet: "07:00:01:00:62:01:00"})
	}()
	util.TrueBefore(t, func() bool { return tr.Pending() == 1 }, time.Now().Add(time.Second))

	//	zero-length entry and a padded value, both lost if the reply were re-encoded
	sent, _ := ParseHex("0a:00:01:00:62:02:00:01:63:00")
	device.NotifyPacket(sent)

	response := <-done
	if response.Code != http.StatusOK {
		t.Fatal(response.Code, response.Body.String())
	}
	var raw RawResponse
	if err := json.NewDecoder(response.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	if raw.Packet != "0a:00:01:00:62:02:00:01:63:00" {
		t.Fatal("raw reply rewritten", raw.Packet)
	}
	if len(raw.Params) != 2 || raw.Params[1] != (Param{Key: 0x63, Value: 0}) {
		t.Fatal("decoded params", raw.Params)
	}
}
