package knob

import (
	"context"
	"fmt"
	"time"

	"github.com/op/go-logging"
)

type FanSpeeds struct {
	Cooling FanSpeed `json:"cooling"`
	Heating FanSpeed `json:"heating"`
}

type SetPoint struct {
	Cooling int `json:"cooling"`
	Heating int `json:"heating"`
}

//	nil when the unit reports no probe
type Sensors struct {
	Indoor  *int `json:"indoor"`
	Outdoor *int `json:"outdoor"`
}

//	Status is one sweep over every queryable knob. Knobs that failed are
//	left nil and their error recorded.
type Status struct {
	PowerState           *bool             `json:"power_state,omitempty"`
	OperationMode        *OperationMode    `json:"operation_mode,omitempty"`
	FanSpeed             *FanSpeeds        `json:"fan_speed,omitempty"`
	SetPoint             map[string]int    `json:"set_point,omitempty"`
	Sensors              *Sensors          `json:"sensors,omitempty"`
	CleanFilterIndicator *bool             `json:"clean_filter_indicator,omitempty"`
	Errors               map[string]string `json:"errors,omitempty"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

//	Controller exposes the appliance settings as typed operations over a Sender.
type Controller struct {
	sender     Sender
	timeout    time.Duration
	queryDelay time.Duration
	log        *logging.Logger
}

func NewController(sender Sender, timeout, queryDelay time.Duration, log *logging.Logger) *Controller {
	return &Controller{
		sender:     sender,
		timeout:    timeout,
		queryDelay: queryDelay,
		log:        log,
	}
}

func (c *Controller) Query(ctx context.Context, k *Knob) (Values, error) {
	return k.Query(ctx, c.sender, c.timeout)
}

func (c *Controller) Update(ctx context.Context, k *Knob, overrides Values) (Values, error) {
	return k.Update(ctx, c.sender, overrides, c.timeout)
}

func (c *Controller) GetPowerState(ctx context.Context) (on bool, err error) {
	values, err := c.Query(ctx, PowerStateKnob)
	if err != nil {
		return
	}
	on = values["state"] != 0
	return
}

func (c *Controller) SetPowerState(ctx context.Context, on bool) (state bool, err error) {
	var value uint64
	if on {
		value = 1
	}
	values, err := c.Update(ctx, PowerStateKnob, Values{"state": value})
	if err != nil {
		return
	}
	state = values["state"] != 0
	return
}

func (c *Controller) GetOperationMode(ctx context.Context) (mode OperationMode, err error) {
	values, err := c.Query(ctx, OperationModeKnob)
	if err != nil {
		return
	}
	mode = OperationMode(values["mode"])
	return
}

func (c *Controller) SetOperationMode(ctx context.Context, mode OperationMode) (current OperationMode, err error) {
	values, err := c.Update(ctx, OperationModeKnob, Values{"mode": uint64(mode)})
	if err != nil {
		return
	}
	current = OperationMode(values["mode"])
	return
}

func fanSpeeds(values Values) FanSpeeds {
	return FanSpeeds{
		Cooling: FanSpeed(values["cooling"]),
		Heating: FanSpeed(values["heating"]),
	}
}

func (c *Controller) GetFanSpeed(ctx context.Context) (speeds FanSpeeds, err error) {
	values, err := c.Query(ctx, FanSpeedKnob)
	if err != nil {
		return
	}
	return fanSpeeds(values), nil
}

func (c *Controller) SetFanSpeed(ctx context.Context, cooling, heating FanSpeed) (speeds FanSpeeds, err error) {
	values, err := c.Update(ctx, FanSpeedKnob, Values{
		"cooling": uint64(cooling),
		"heating": uint64(heating),
	})
	if err != nil {
		return
	}
	return fanSpeeds(values), nil
}

//	GetSetPoint returns every set point field, temperatures in degrees.
func (c *Controller) GetSetPoint(ctx context.Context) (setPoint map[string]int, err error) {
	values, err := c.Query(ctx, SetPointKnob)
	if err != nil {
		return
	}
	setPoint = map[string]int{}
	for name, value := range values {
		if scaledSetPointFields[name] {
			setPoint[name] = SetPointFromDevice(value)
		} else {
			setPoint[name] = int(value)
		}
	}
	return
}

func (c *Controller) SetSetPoint(ctx context.Context, cooling, heating float64) (setPoint SetPoint, err error) {
	values, err := c.Update(ctx, SetPointKnob, Values{
		"cooling_set_point": SetPointToDevice(cooling),
		"heating_set_point": SetPointToDevice(heating),
	})
	if err != nil {
		return
	}
	setPoint.Cooling = SetPointFromDevice(values["cooling_set_point"])
	setPoint.Heating = SetPointFromDevice(values["heating_set_point"])
	return
}

func sensorValue(value uint64, ok bool) *int {
	if !ok || value == SENSOR_UNKNOWN {
		return nil
	}
	v := int(value)
	return &v
}

func (c *Controller) GetSensors(ctx context.Context) (sensors Sensors, err error) {
	values, err := c.Query(ctx, SensorsKnob)
	if err != nil {
		return
	}
	indoor, ok := values["indoor"]
	sensors.Indoor = sensorValue(indoor, ok)
	outdoor, ok := values["outdoor"]
	sensors.Outdoor = sensorValue(outdoor, ok)
	return
}

func (c *Controller) GetCleanFilterIndicator(ctx context.Context) (dirty bool, err error) {
	values, err := c.Query(ctx, CleanFilterIndicatorKnob)
	if err != nil {
		return
	}
	dirty = values["clean_filter_indicator"] != 0
	return
}

func (c *Controller) ResetCleanFilterTimer(ctx context.Context) (err error) {
	_, err = c.Update(ctx, CleanFilterTimerResetKnob, nil)
	return
}

//	RefreshStatus queries every queryable knob in turn, pausing queryDelay
//	between commands. A failing knob doesn't abort the sweep.
func (c *Controller) RefreshStatus(ctx context.Context) (status Status, err error) {
	status.Errors = map[string]string{}
	first := true
	for _, k := range Knobs {
		if !k.CanQuery() {
			continue
		}
		if !first && c.queryDelay > 0 {
			select {
			case <-time.After(c.queryDelay):
			case <-ctx.Done():
				err = ctx.Err()
				return
			}
		}
		first = false

		if knobErr := c.refreshKnob(ctx, k, &status); knobErr != nil {
			c.log.Warning(fmt.Sprintf("querying %s failed: %s", k.Name, knobErr.Error()))
			status.Errors[k.Name] = knobErr.Error()
			if ctx.Err() != nil {
				err = ctx.Err()
				return
			}
		}
	}
	if len(status.Errors) == 0 {
		status.Errors = nil
	}
	status.UpdatedAt = time.Now()
	return
}

func (c *Controller) refreshKnob(ctx context.Context, k *Knob, status *Status) (err error) {
	switch k {
	case PowerStateKnob:
		var on bool
		if on, err = c.GetPowerState(ctx); err == nil {
			status.PowerState = &on
		}
	case OperationModeKnob:
		var mode OperationMode
		if mode, err = c.GetOperationMode(ctx); err == nil {
			status.OperationMode = &mode
		}
	case FanSpeedKnob:
		var speeds FanSpeeds
		if speeds, err = c.GetFanSpeed(ctx); err == nil {
			status.FanSpeed = &speeds
		}
	case SetPointKnob:
		status.SetPoint, err = c.GetSetPoint(ctx)
	case SensorsKnob:
		var sensors Sensors
		if sensors, err = c.GetSensors(ctx); err == nil {
			status.Sensors = &sensors
		}
	case CleanFilterIndicatorKnob:
		var dirty bool
		if dirty, err = c.GetCleanFilterIndicator(ctx); err == nil {
			status.CleanFilterIndicator = &dirty
		}
	default:
		_, err = c.Query(ctx, k)
	}
	return
}
