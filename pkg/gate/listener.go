package gate

import (
	"errors"
	"fmt"

	"github.com/Jeffail/gabs"
	logger "github.com/d2r2/go-logger"
)

var lg = logger.NewPackageLogger("gate", logger.InfoLevel)

// DoorContactCode is the status code carrying the door contact reading.
const DoorContactCode = "doorcontact_state"

// ErrMalformed marks a push message that could not be parsed.
var ErrMalformed = errors.New("malformed gate message")

// Listener filters device reports down to the door contact of one device.
type Listener struct {
	deviceID string
	callback func(open bool)
}

// NewListener forwards door contact readings of deviceID to callback.
func NewListener(deviceID string, callback func(open bool)) *Listener {
	return &Listener{deviceID: deviceID, callback: callback}
}

// HandleMessage takes one decrypted report of the form
// {"devId": "...", "status": [{"code": "...", "value": ...}]}.
// Malformed reports are logged and dropped.
func (l *Listener) HandleMessage(raw []byte) {
	n, err := l.handle(raw)
	if err != nil {
		lg.Errorf("Dropping message: %v", err)
		return
	}
	if n == 0 {
		lg.Debugf("Message without door contact reading for %s", l.deviceID)
	}
}

func (l *Listener) handle(raw []byte) (int, error) {
	msg, err := gabs.ParseJSON(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	devID, _ := msg.Path("devId").Data().(string)
	if devID != l.deviceID {
		lg.Debugf("Message for different device: %s", devID)
		return 0, nil
	}
	if !msg.Exists("status") {
		return 0, nil
	}
	entries, err := msg.S("status").Children()
	if err != nil {
		return 0, fmt.Errorf("%w: status is not a list", ErrMalformed)
	}

	forwarded := 0
	for _, entry := range entries {
		if code, _ := entry.Path("code").Data().(string); code != DoorContactCode {
			continue
		}
		open, ok := entry.Path("value").Data().(bool)
		if !ok {
			lg.Warningf("Ignoring non-boolean %s value: %v", DoorContactCode, entry.Path("value").Data())
			continue
		}
		lg.Infof("Received gate status update: %s", Text(open))
		if l.callback != nil {
			l.callback(open)
		}
		forwarded++
	}
	return forwarded, nil
}
