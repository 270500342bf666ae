package knob

import (
	"context"
)

//	Settings is a partial update: only the non-nil members are sent.
type Settings struct {
	PowerState            *bool          `json:"power_state,omitempty"`
	OperationMode         *OperationMode `json:"operation_mode,omitempty"`
	FanSpeed              *FanSpeeds     `json:"fan_speed,omitempty"`
	SetPoint              *SetPoint      `json:"set_point,omitempty"`
	ResetCleanFilterTimer bool           `json:"reset_clean_filter_timer,omitempty"`
}

func (s Settings) Empty() bool {
	return s.PowerState == nil &&
		s.OperationMode == nil &&
		s.FanSpeed == nil &&
		s.SetPoint == nil &&
		!s.ResetCleanFilterTimer
}

//	Apply sends one update per member set, stopping at the first failure.
//	applied holds what the appliance accepted up to that point.
func (c *Controller) Apply(ctx context.Context, settings Settings) (applied Settings, err error) {
	if settings.PowerState != nil {
		var on bool
		if on, err = c.SetPowerState(ctx, *settings.PowerState); err != nil {
			return
		}
		applied.PowerState = &on
	}
	if settings.OperationMode != nil {
		var mode OperationMode
		if mode, err = c.SetOperationMode(ctx, *settings.OperationMode); err != nil {
			return
		}
		applied.OperationMode = &mode
	}
	if settings.FanSpeed != nil {
		var speeds FanSpeeds
		if speeds, err = c.SetFanSpeed(ctx, settings.FanSpeed.Cooling, settings.FanSpeed.Heating); err != nil {
			return
		}
		applied.FanSpeed = &speeds
	}
	if settings.SetPoint != nil {
		var setPoint SetPoint
		if setPoint, err = c.SetSetPoint(ctx, float64(settings.SetPoint.Cooling), float64(settings.SetPoint.Heating)); err != nil {
			return
		}
		applied.SetPoint = &setPoint
	}
	if settings.ResetCleanFilterTimer {
		if err = c.ResetCleanFilterTimer(ctx); err != nil {
			return
		}
		applied.ResetCleanFilterTimer = true
	}
	return
}
