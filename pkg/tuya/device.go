package tuya

import (
	"context"
	"fmt"

	"github.com/Jeffail/gabs"
)

// SwitchCode is the plug data point driven by the bridge.
const SwitchCode = "switch_3"

// API is the signed request surface DeviceState needs. *Client implements it.
type API interface {
	Get(ctx context.Context, path string) (*gabs.Container, error)
	Post(ctx context.Context, path string, body interface{}) (*gabs.Container, error)
}

// Command is a single data point write.
type Command struct {
	Code  string      `json:"code"`
	Value interface{} `json:"value"`
}

type commandRequest struct {
	Commands []Command `json:"commands"`
}

// DeviceState reads and writes one boolean data point of a device.
type DeviceState struct {
	api  API
	code string
}

// NewDeviceState returns a client for the plug switch data point.
func NewDeviceState(api API) *DeviceState {
	return &DeviceState{api: api, code: SwitchCode}
}

// GetState returns the reported switch value. An error means the state is unknown.
func (d *DeviceState) GetState(ctx context.Context, deviceID string) (bool, error) {
	result, err := d.api.Get(ctx, statusPath(deviceID))
	if err != nil {
		return false, fmt.Errorf("get status of %s: %w", deviceID, err)
	}
	entries, err := result.Children()
	if err != nil {
		return false, fmt.Errorf("get status of %s: unexpected result: %w", deviceID, err)
	}
	for _, entry := range entries {
		if code, _ := entry.Path("code").Data().(string); code != d.code {
			continue
		}
		value, ok := entry.Path("value").Data().(bool)
		if !ok {
			return false, fmt.Errorf("get status of %s: %s is not a boolean", deviceID, d.code)
		}
		return value, nil
	}
	return false, fmt.Errorf("get status of %s: no %s in status", deviceID, d.code)
}

// SetState switches the device to value. The current state is read first and
// no command is sent when it already matches; an unreadable state still sends.
func (d *DeviceState) SetState(ctx context.Context, deviceID string, value bool) error {
	current, err := d.GetState(ctx, deviceID)
	if err != nil {
		lg.Warningf("Current state unknown, sending command anyway: %v", err)
	} else if current == value {
		lg.Infof("Device %s already in desired state: %s", deviceID, onOff(value))
		return nil
	}

	req := commandRequest{Commands: []Command{{Code: d.code, Value: value}}}
	if _, err := d.api.Post(ctx, commandsPath(deviceID), req); err != nil {
		return fmt.Errorf("set %s of %s: %w", d.code, deviceID, err)
	}
	lg.Infof("Device %s successfully set to %s", deviceID, onOff(value))
	return nil
}

func statusPath(deviceID string) string {
	return "/v1.0/iot-03/devices/" + deviceID + "/status"
}

func commandsPath(deviceID string) string {
	return "/v1.0/iot-03/devices/" + deviceID + "/commands"
}

func onOff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}
