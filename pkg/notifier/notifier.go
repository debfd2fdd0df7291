// Package notifier keeps one pinned gate status message per day in a chat.
//
// The first reading of a day sends a new message, pins it and removes the
// previous day's message. Later readings of the same day edit it in place.
package notifier

import (
	"context"
	"fmt"
	"time"

	logger "github.com/d2r2/go-logger"

	"github.com/starryalley/gate_bridge/pkg/telegram"
)

var lg = logger.NewPackageLogger("notifier", logger.InfoLevel)

// Status texts shown in the chat.
const (
	OpenText   = "🔴 Открыто"
	ClosedText = "🟢 Закрыто"
)

// Chat is the subset of the Bot API the notifier drives.
type Chat interface {
	SendMessage(ctx context.Context, text string, silent bool) (int64, error)
	EditMessageText(ctx context.Context, id int64, text string) error
	PinChatMessage(ctx context.Context, id int64, silent bool) error
	DeleteMessage(ctx context.Context, id int64) error
}

// Day is a local calendar date.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the calendar date of t in t's location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, Day: d}
}

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Record identifies the current status message. A zero MessageID means no
// message exists.
type Record struct {
	MessageID int64
	Date      Day
}

// Exists reports whether a status message is recorded.
func (r Record) Exists() bool { return r.MessageID != 0 }

// Action is what Notify did.
type Action int

// Notify actions.
const (
	ActionNone Action = iota
	ActionSent
	ActionEdited
)

func (a Action) String() string {
	switch a {
	case ActionSent:
		return "sent"
	case ActionEdited:
		return "edited"
	}
	return "none"
}

// Result describes a Notify call. Cleanup holds failures of the best-effort
// pin and delete calls that followed a send.
type Result struct {
	Action    Action
	MessageID int64
	Cleanup   []error
}

// Notifier owns the status message record. It is not safe for concurrent use.
type Notifier struct {
	chat   Chat
	now    func() time.Time
	record Record
}

// New creates a notifier. now defaults to time.Now.
func New(chat Chat, now func() time.Time) *Notifier {
	if now == nil {
		now = time.Now
	}
	return &Notifier{chat: chat, now: now}
}

// Record returns the current status message record.
func (n *Notifier) Record() Record { return n.record }

// StatusText renders a gate reading for the chat.
func StatusText(open bool) string {
	if open {
		return OpenText
	}
	return ClosedText
}

// PinServiceMessageID returns the id of the "message pinned" service message
// the chat posts after pinning id. It assumes the service message is the very
// next message in the chat, which nothing confirms: another message posted in
// between would be deleted instead.
func PinServiceMessageID(id int64) int64 {
	return id + 1
}

// Notify shows the gate reading in the chat. It returns an error only when
// the send or edit itself fails; the record is then left unchanged. Nothing
// is retried.
func (n *Notifier) Notify(ctx context.Context, open bool) (Result, error) {
	text := StatusText(open)
	today := DayOf(n.now())

	if !n.record.Exists() || n.record.Date != today {
		return n.rotate(ctx, text, today)
	}

	if err := n.chat.EditMessageText(ctx, n.record.MessageID, text); err != nil {
		if !telegram.IsNotModified(err) {
			return Result{}, fmt.Errorf("edit message %d: %w", n.record.MessageID, err)
		}
		lg.Debugf("Message %d already shows %q", n.record.MessageID, text)
	}
	return Result{Action: ActionEdited, MessageID: n.record.MessageID}, nil
}

func (n *Notifier) rotate(ctx context.Context, text string, today Day) (Result, error) {
	id, err := n.chat.SendMessage(ctx, text, true)
	if err != nil {
		return Result{}, fmt.Errorf("send message: %w", err)
	}
	res := Result{Action: ActionSent, MessageID: id}

	if err := n.chat.PinChatMessage(ctx, id, true); err != nil {
		lg.Warningf("Failed to pin message %d: %v", id, err)
		res.Cleanup = append(res.Cleanup, fmt.Errorf("pin message %d: %w", id, err))
	}
	serviceID := PinServiceMessageID(id)
	if err := n.chat.DeleteMessage(ctx, serviceID); err != nil {
		lg.Debugf("Failed to delete pin notice %d: %v", serviceID, err)
		res.Cleanup = append(res.Cleanup, fmt.Errorf("delete pin notice %d: %w", serviceID, err))
	}
	if prev := n.record; prev.Exists() {
		if err := n.chat.DeleteMessage(ctx, prev.MessageID); err != nil {
			lg.Warningf("Failed to delete previous message %d from %s: %v", prev.MessageID, prev.Date, err)
			res.Cleanup = append(res.Cleanup, fmt.Errorf("delete previous message %d: %w", prev.MessageID, err))
		}
	}

	n.record = Record{MessageID: id, Date: today}
	lg.Infof("Status message %d sent for %s", id, today)
	return res, nil
}
