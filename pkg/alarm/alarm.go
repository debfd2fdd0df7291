// Package alarm warns when the gate stays open for too long.
package alarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	logger "github.com/d2r2/go-logger"
	"github.com/scotow/notigo"
)

var lg = logger.NewPackageLogger("alarm", logger.InfoLevel)

// Sender delivers a push notification.
type Sender interface {
	Send(title, message string) error
}

// IFTTT sends notifications through an IFTTT webhook event.
type IFTTT struct {
	key   notigo.Key
	event string
}

// NewIFTTT creates a sender for the webhook key and event name.
func NewIFTTT(key, event string) *IFTTT {
	return &IFTTT{key: notigo.Key(key), event: event}
}

// Send implements Sender.
func (i *IFTTT) Send(title, message string) error {
	notification := notigo.NewNotification(title, message)
	if err := i.key.SendEvent(notification, i.event); err != nil {
		return err
	}
	lg.Infof("Notification sent through IFTTT")
	return nil
}

// Monitor arms a timer when the gate opens and sends one warning if it is
// still open when the timer fires.
type Monitor struct {
	sender  Sender
	timeout time.Duration

	mu    sync.Mutex
	timer *time.Timer
	fired int
}

// New creates a monitor warning after the gate was open for timeout.
func New(sender Sender, timeout time.Duration) *Monitor {
	return &Monitor{sender: sender, timeout: timeout}
}

// GateChanged arms or disarms the warning.
func (m *Monitor) GateChanged(ctx context.Context, open bool, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !open {
		if m.timer != nil {
			m.timer.Stop()
			m.timer = nil
			lg.Debugf("Gate closed, warning disarmed")
		}
		return
	}
	if m.timer != nil {
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(m.timeout, func() {
		m.mu.Lock()
		if m.timer != timer {
			// disarmed while waiting for the lock
			m.mu.Unlock()
			return
		}
		m.timer = nil
		m.fired++
		m.mu.Unlock()

		msg := fmt.Sprintf("Gate left open since %s", at.Format("15:04:05"))
		if err := m.sender.Send("Gate Warning", msg); err != nil {
			lg.Errorf("Error sending notification: %v", err)
		}
	})
	m.timer = timer
	lg.Debugf("Gate opened, warning armed for %v", m.timeout)
}

// Fired returns how many warnings were sent.
func (m *Monitor) Fired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fired
}

// Stop disarms any pending warning.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
