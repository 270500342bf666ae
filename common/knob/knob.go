package knob

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/ldotlopez/kadoma/common/protocol"
)

var ErrNotImplemented = errors.New("operation not implemented by knob")
var ErrUnknownField = errors.New("unknown knob field")

//	command id 0 marks a direction the appliance does not support
const NOT_IMPLEMENTED = 0

type Field struct {
	Name    string
	Key     byte
	Default uint64
}

//	Knob is one appliance setting: a query command, an update command and the
//	ordered fields both carry.
type Knob struct {
	Name      string
	QueryCmd  uint16
	UpdateCmd uint16
	Fields    []Field
}

//	Values maps field names to raw device values.
type Values map[string]uint64

//	Sender is the part of the transport a knob needs.
type Sender interface {
	SendCommand(ctx context.Context, cmd uint16, params []Param, timeout time.Duration) (uint16, []Param, error)
}

func (k *Knob) CanQuery() bool {
	return k.QueryCmd != NOT_IMPLEMENTED
}

func (k *Knob) CanUpdate() bool {
	return k.UpdateCmd != NOT_IMPLEMENTED
}

func (k *Knob) Defaults() Values {
	values := Values{}
	for _, field := range k.Fields {
		values[field.Name] = field.Default
	}
	return values
}

//	Params lays values out in field order, defaults filling the gaps.
func (k *Knob) Params(values Values) (params []Param, err error) {
	for name := range values {
		if _, ok := k.field(name); !ok {
			err = fmt.Errorf("%w %q for %s", ErrUnknownField, name, k.Name)
			return
		}
	}
	params = make([]Param, 0, len(k.Fields))
	for _, field := range k.Fields {
		value, ok := values[field.Name]
		if !ok {
			value = field.Default
		}
		params = append(params, Param{Key: field.Key, Value: value})
	}
	return
}

//	Values names the params of a reply, dropping keys the knob doesn't know.
func (k *Knob) Values(params []Param) Values {
	values := Values{}
	for _, param := range params {
		for _, field := range k.Fields {
			if field.Key == param.Key {
				values[field.Name] = param.Value
				break
			}
		}
	}
	return values
}

func (k *Knob) field(name string) (Field, bool) {
	for _, field := range k.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return Field{}, false
}

func (k *Knob) QueryPacket() ([]byte, error) {
	if !k.CanQuery() {
		return nil, fmt.Errorf("%w: query %s", ErrNotImplemented, k.Name)
	}
	params, _ := k.Params(nil)
	return Encode(k.QueryCmd, params)
}

func (k *Knob) UpdatePacket(overrides Values) (packet []byte, err error) {
	if !k.CanUpdate() {
		err = fmt.Errorf("%w: update %s", ErrNotImplemented, k.Name)
		return
	}
	params, err := k.Params(overrides)
	if err != nil {
		return
	}
	return Encode(k.UpdateCmd, params)
}

//	Query sends the query command carrying the field defaults.
func (k *Knob) Query(ctx context.Context, sender Sender, timeout time.Duration) (values Values, err error) {
	if !k.CanQuery() {
		err = fmt.Errorf("%w: query %s", ErrNotImplemented, k.Name)
		return
	}
	params, _ := k.Params(nil)
	_, reply, err := sender.SendCommand(ctx, k.QueryCmd, params, timeout)
	if err != nil {
		return
	}
	values = k.Values(reply)
	return
}

//	Update sends the defaults merged with overrides. The appliance answers an
//	update with the values it held before applying it, so the requested values
//	are laid over the reply.
func (k *Knob) Update(ctx context.Context, sender Sender, overrides Values, timeout time.Duration) (values Values, err error) {
	if !k.CanUpdate() {
		err = fmt.Errorf("%w: update %s", ErrNotImplemented, k.Name)
		return
	}
	params, err := k.Params(overrides)
	if err != nil {
		return
	}
	_, reply, err := sender.SendCommand(ctx, k.UpdateCmd, params, timeout)
	if err != nil {
		return
	}
	values = k.Values(reply)
	for _, param := range params {
		field, _ := k.fieldByKey(param.Key)
		values[field.Name] = param.Value
	}
	return
}

func (k *Knob) fieldByKey(key byte) (Field, bool) {
	for _, field := range k.Fields {
		if field.Key == key {
			return field, true
		}
	}
	return Field{}, false
}
