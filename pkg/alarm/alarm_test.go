package alarm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSender struct {
	mu     sync.Mutex
	titles []string
	err    error
	sent   chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(chan struct{}, 10)}
}

func (f *fakeSender) Send(title, message string) error {
	f.mu.Lock()
	f.titles = append(f.titles, title)
	f.mu.Unlock()
	f.sent <- struct{}{}
	return f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.titles)
}

func TestOpenTooLongWarnsOnce(t *testing.T) {
	sender := newFakeSender()
	m := New(sender, 20*time.Millisecond)
	ctx := context.Background()

	m.GateChanged(ctx, true, time.Now())
	// a repeated open reading must not re-arm
	m.GateChanged(ctx, true, time.Now())

	select {
	case <-sender.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("no warning sent")
	}
	time.Sleep(60 * time.Millisecond)
	if got := sender.count(); got != 1 {
		t.Errorf("warnings = %d, want 1", got)
	}
	if m.Fired() != 1 {
		t.Errorf("Fired() = %d, want 1", m.Fired())
	}
}

func TestClosingDisarms(t *testing.T) {
	sender := newFakeSender()
	m := New(sender, 50*time.Millisecond)
	ctx := context.Background()

	m.GateChanged(ctx, true, time.Now())
	m.GateChanged(ctx, false, time.Now())
	time.Sleep(120 * time.Millisecond)

	if got := sender.count(); got != 0 {
		t.Errorf("warnings = %d, want 0", got)
	}
}

func TestSendErrorIsLogged(t *testing.T) {
	sender := newFakeSender()
	sender.err = errors.New("ifttt down")
	m := New(sender, 10*time.Millisecond)

	m.GateChanged(context.Background(), true, time.Now())
	select {
	case <-sender.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("no warning attempted")
	}

	// the monitor re-arms on the next opening after a failed send
	m.GateChanged(context.Background(), false, time.Now())
	m.GateChanged(context.Background(), true, time.Now())
	select {
	case <-sender.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("no second warning attempted")
	}
	m.Stop()
}
