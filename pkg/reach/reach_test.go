package reach

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExecPingerCommand(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		want    string
	}{
		{name: "whole seconds", timeout: 2 * time.Second, want: "ping -c 1 -W 2 nas.local"},
		{name: "rounds up", timeout: 1500 * time.Millisecond, want: "ping -c 1 -W 2 nas.local"},
		{name: "minimum one second", timeout: 0, want: "ping -c 1 -W 1 nas.local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewExecPinger(tt.timeout)
			if got := p.Command("nas.local"); got != tt.want {
				t.Errorf("Command() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecPingerProbe(t *testing.T) {
	var gotCmd string
	p := NewExecPinger(time.Second)

	p.run = func(ctx context.Context, cmd string) error {
		gotCmd = cmd
		return nil
	}
	if !p.Probe(context.Background(), "10.0.0.1") {
		t.Error("Probe() = false, want true on exit status 0")
	}
	if gotCmd != "ping -c 1 -W 1 10.0.0.1" {
		t.Errorf("ran %q", gotCmd)
	}

	p.run = func(ctx context.Context, cmd string) error {
		return errors.New("exit status 1")
	}
	if p.Probe(context.Background(), "10.0.0.1") {
		t.Error("Probe() = true, want false on non-zero exit")
	}
}

func TestNew(t *testing.T) {
	if _, err := New("exec", time.Second); err != nil {
		t.Errorf("New(exec) error = %v", err)
	}
	p, err := New("icmp", time.Second)
	if err != nil {
		t.Fatalf("New(icmp) error = %v", err)
	}
	if _, ok := p.(*ICMPPinger); !ok {
		t.Errorf("New(icmp) = %T, want *ICMPPinger", p)
	}
	if _, err := New("smoke", time.Second); err == nil {
		t.Error("New(smoke) should fail")
	}
}

func TestResolveIPv4(t *testing.T) {
	ip, err := resolveIPv4(context.Background(), "192.168.1.74")
	if err != nil {
		t.Fatalf("resolveIPv4 error = %v", err)
	}
	if ip.String() != "192.168.1.74" {
		t.Errorf("resolveIPv4 = %v", ip)
	}
	if _, err := resolveIPv4(context.Background(), "::1"); err == nil {
		t.Error("resolveIPv4(::1) should fail")
	}
}
