package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/op/go-logging"

	"github.com/ldotlopez/kadoma/common/ble"
	"github.com/ldotlopez/kadoma/common/config"
	"github.com/ldotlopez/kadoma/common/knob"
	. "github.com/ldotlopez/kadoma/common/persistance"
	. "github.com/ldotlopez/kadoma/common/protocol"
	"github.com/ldotlopez/kadoma/common/transport"
	. "github.com/ldotlopez/kadoma/common/util"
	"github.com/ldotlopez/kadoma/common/version"
)

//	ControlServer serves the appliance to local clients over HTTP on the
//	daemon socket. Device backed routes answer 503 until a device is attached.
type ControlServer struct {
	sync.Mutex
	device     ble.Device
	transport  *transport.Transport
	controller *knob.Controller

	persister Persister
	timeouts  config.Timeouts
	session   string
	startedAt time.Time
	log       *logging.Logger
}

func NewControlServer(persister Persister, timeouts config.Timeouts, log *logging.Logger) (cs *ControlServer, err error) {
	session, err := Rand128Base62()
	if err != nil {
		return
	}
	cs = &ControlServer{
		persister: persister,
		timeouts:  timeouts,
		session:   session,
		startedAt: time.Now(),
		log:       log,
	}
	return
}

//	Attach starts a transport over a connected device and serves it.
func (cs *ControlServer) Attach(ctx context.Context, device ble.Device) (err error) {
	tr := transport.NewTransport(device, cs.timeouts.Command.Duration, cs.log)
	if err = tr.Start(); err != nil {
		return
	}
	cs.Lock()
	previous := cs.transport
	cs.device = device
	cs.transport = tr
	cs.controller = knob.NewController(tr, cs.timeouts.Command.Duration, cs.timeouts.QueryDelay.Duration, cs.log)
	cs.Unlock()
	if previous != nil {
		previous.Stop()
	}

	info, infoErr := device.ReadInfo(ctx)
	if infoErr != nil {
		cs.log.Warning("reading device information failed:", infoErr.Error())
		return
	}
	if saveErr := cs.persister.SaveInfo(info); saveErr != nil {
		cs.log.Error("persisting device information failed:", saveErr.Error())
	}
	return
}

//	Detach stops the transport, failing requests in flight.
func (cs *ControlServer) Detach() (err error) {
	cs.Lock()
	tr := cs.transport
	cs.device, cs.transport, cs.controller = nil, nil, nil
	cs.Unlock()
	if tr != nil {
		err = tr.Stop()
	}
	return
}

func (cs *ControlServer) Stop() (err error) {
	return cs.Detach()
}

func (cs *ControlServer) attached() (device ble.Device, tr *transport.Transport, controller *knob.Controller, err error) {
	cs.Lock()
	defer cs.Unlock()
	if cs.transport == nil {
		err = ErrDeviceNotConnected
		return
	}
	return cs.device, cs.transport, cs.controller, nil
}

func (cs *ControlServer) Session() string {
	return cs.session
}

//	RefreshStatus sweeps every knob and persists the result.
func (cs *ControlServer) RefreshStatus(ctx context.Context) (status knob.Status, err error) {
	_, _, controller, err := cs.attached()
	if err != nil {
		return
	}
	status, err = controller.RefreshStatus(ctx)
	if err != nil {
		return
	}
	if saveErr := cs.persister.SaveStatus(status); saveErr != nil {
		cs.log.Error("persisting status failed:", saveErr.Error())
	}
	return
}

//	Monitor refreshes the status every interval until ctx ends.
func (cs *ControlServer) Monitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := cs.RefreshStatus(ctx); err != nil && !errors.Is(err, ErrDeviceNotConnected) {
			cs.log.Warning("status refresh failed:", err.Error())
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (cs *ControlServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cs.sessionHeader)
	r.Use(cs.logRequest)

	r.Get("/ping", cs.handlePing)
	r.Get("/version", cs.handleVersion)
	r.Get("/info", cs.handleInfo)
	r.Get("/status", cs.handleGetStatus)
	r.Put("/settings", cs.handlePutSettings)
	r.Get("/knob/{name}", cs.handleGetKnob)
	r.Put("/knob/{name}", cs.handlePutKnob)
	r.Post("/raw", cs.handleRaw)
	return r
}

func (cs *ControlServer) HandleControlHTTP(listener net.Listener) (err error) {
	err = http.Serve(listener, cs.Router())
	return
}

func (cs *ControlServer) sessionHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(SESSION_HEADER, cs.session)
		next.ServeHTTP(w, r)
	})
}

func (cs *ControlServer) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		cs.log.Debug(fmt.Sprintf("%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start)))
	})
}

func (cs *ControlServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		cs.log.Error(err)
	}
}

func (cs *ControlServer) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		cs.log.Error(err)
	}
	cs.writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: status})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownKnob), errors.Is(err, ErrNotPersisted):
		return http.StatusNotFound
	case errors.Is(err, knob.ErrNotImplemented):
		return http.StatusMethodNotAllowed
	case errors.Is(err, knob.ErrUnknownField), errors.Is(err, ErrMalformedPacket), errors.Is(err, ErrEncodingOverflow):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrDeviceNotConnected), errors.Is(err, transport.ErrNotStarted),
		errors.Is(err, ErrCancelled), errors.Is(err, ble.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrSuperseded):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (cs *ControlServer) handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (cs *ControlServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(version.CURRENT_VERSION.String()))
}

func (cs *ControlServer) handleInfo(w http.ResponseWriter, r *http.Request) {
	response := InfoResponse{
		Daemon: DaemonInfo{
			Version:   version.CURRENT_VERSION.String(),
			Session:   cs.session,
			StartedAt: cs.startedAt,
		},
	}
	device, tr, _, err := cs.attached()
	if err == nil {
		response.Daemon.Connected = true
		response.Daemon.MTU = tr.MTU()
		response.Daemon.Pending = tr.Pending()
		response.Device, err = device.ReadInfo(r.Context())
	}
	if err != nil {
		//	last known device, if any
		response.Device, _ = cs.persister.LoadInfo()
	}
	cs.writeJSON(w, http.StatusOK, response)
}

//	?cached=1 answers from the last persisted sweep without touching the device
func (cs *ControlServer) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	if cached := r.URL.Query().Get("cached"); cached != "" && cached != "0" && cached != "false" {
		status, err := cs.persister.LoadStatus()
		if err != nil {
			cs.writeError(w, err)
			return
		}
		cs.writeJSON(w, http.StatusOK, status)
		return
	}
	status, err := cs.RefreshStatus(r.Context())
	if err != nil {
		cs.writeError(w, err)
		return
	}
	cs.writeJSON(w, http.StatusOK, status)
}

func (cs *ControlServer) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var settings knob.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		cs.writeError(w, fmt.Errorf("%w: %s", knob.ErrUnknownField, err.Error()))
		return
	}
	_, _, controller, err := cs.attached()
	if err != nil {
		cs.writeError(w, err)
		return
	}
	applied, err := controller.Apply(r.Context(), settings)
	if err != nil {
		cs.writeError(w, err)
		return
	}
	cs.writeJSON(w, http.StatusOK, applied)
}

func knobParam(r *http.Request) (k *knob.Knob, err error) {
	name := chi.URLParam(r, "name")
	k, ok := knob.ByName(name)
	if !ok {
		err = fmt.Errorf("%w: %q", ErrUnknownKnob, name)
	}
	return
}

func (cs *ControlServer) handleGetKnob(w http.ResponseWriter, r *http.Request) {
	k, err := knobParam(r)
	if err != nil {
		cs.writeError(w, err)
		return
	}
	_, _, controller, err := cs.attached()
	if err != nil {
		cs.writeError(w, err)
		return
	}
	values, err := controller.Query(r.Context(), k)
	if err != nil {
		cs.writeError(w, err)
		return
	}
	cs.writeJSON(w, http.StatusOK, values)
}

//	body: raw field values, missing fields take their defaults
func (cs *ControlServer) handlePutKnob(w http.ResponseWriter, r *http.Request) {
	k, err := knobParam(r)
	if err != nil {
		cs.writeError(w, err)
		return
	}
	overrides := knob.Values{}
	if r.ContentLength != 0 {
		if err = json.NewDecoder(r.Body).Decode(&overrides); err != nil {
			cs.writeError(w, fmt.Errorf("%w: %s", knob.ErrUnknownField, err.Error()))
			return
		}
	}
	_, _, controller, err := cs.attached()
	if err != nil {
		cs.writeError(w, err)
		return
	}
	values, err := controller.Update(r.Context(), k, overrides)
	if err != nil {
		cs.writeError(w, err)
		return
	}
	cs.writeJSON(w, http.StatusOK, values)
}

func (cs *ControlServer) handleRaw(w http.ResponseWriter, r *http.Request) {
	var request RawRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		cs.writeError(w, fmt.Errorf("%w: %s", ErrMalformedPacket, err.Error()))
		return
	}
	packet, err := ParseHex(request.Packet)
	if err != nil {
		cs.writeError(w, err)
		return
	}
	_, tr, _, err := cs.attached()
	if err != nil {
		cs.writeError(w, err)
		return
	}
	reply, err := tr.SendPacket(r.Context(), packet, request.Timeout)
	if err != nil {
		cs.writeError(w, err)
		return
	}
	cs.writeJSON(w, http.StatusOK, RawResponse{
		Command: reply.Command,
		Params:  reply.Params,
		Packet:  FormatHex(reply.Packet),
	})
}
