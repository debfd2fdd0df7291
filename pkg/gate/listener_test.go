package gate

import (
	"errors"
	"testing"
)

func TestListenerFilters(t *testing.T) {
	tests := []struct {
		name      string
		msg       string
		wantCalls []bool
		wantErr   error
	}{
		{
			name:      "matching door contact open",
			msg:       `{"devId":"gate","status":[{"code":"doorcontact_state","value":true,"t":1}]}`,
			wantCalls: []bool{true},
		},
		{
			name:      "matching door contact closed",
			msg:       `{"devId":"gate","status":[{"code":"doorcontact_state","value":false}]}`,
			wantCalls: []bool{false},
		},
		{
			name: "other device",
			msg:  `{"devId":"garage","status":[{"code":"doorcontact_state","value":true}]}`,
		},
		{
			name: "other status code",
			msg:  `{"devId":"gate","status":[{"code":"battery_percentage","value":80}]}`,
		},
		{
			name:      "door contact among other codes",
			msg:       `{"devId":"gate","status":[{"code":"battery_percentage","value":80},{"code":"doorcontact_state","value":true}]}`,
			wantCalls: []bool{true},
		},
		{
			name: "non-boolean value",
			msg:  `{"devId":"gate","status":[{"code":"doorcontact_state","value":"open"}]}`,
		},
		{
			name: "no status",
			msg:  `{"devId":"gate","bizCode":"online"}`,
		},
		{
			name:    "malformed json",
			msg:     `{"devId":`,
			wantErr: ErrMalformed,
		},
		{
			name:    "status not a list",
			msg:     `{"devId":"gate","status":"open"}`,
			wantErr: ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []bool
			l := NewListener("gate", func(open bool) { calls = append(calls, open) })

			n, err := l.handle([]byte(tt.msg))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("handle() error = %v, want %v", err, tt.wantErr)
			}
			if n != len(calls) {
				t.Errorf("handle() = %d, but callback ran %d times", n, len(calls))
			}
			if len(calls) != len(tt.wantCalls) {
				t.Fatalf("callback calls = %v, want %v", calls, tt.wantCalls)
			}
			for i := range calls {
				if calls[i] != tt.wantCalls[i] {
					t.Errorf("call %d = %v, want %v", i, calls[i], tt.wantCalls[i])
				}
			}
		})
	}
}

func TestHandleMessageFeedsState(t *testing.T) {
	var s State
	l := NewListener("gate", s.Set)

	if got := s.Changes(); len(got) != 0 {
		t.Fatalf("new State has changes %v", got)
	}
	l.HandleMessage([]byte(`{"devId":"gate","status":[{"code":"doorcontact_state","value":true}]}`))
	l.HandleMessage([]byte(`garbage`))

	got := s.Changes()
	if len(got) != 1 || !got[0].Open {
		t.Errorf("Changes() = %v, want one open reading", got)
	}
	if s.Updated().IsZero() {
		t.Error("Updated() should be set after a reading")
	}
}

func TestStateConcurrentAccess(t *testing.T) {
	var s State
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			s.Set(i%2 == 0)
		}
	}()
	var last []Change
	for i := 0; i < 1000; i++ {
		if c := s.Changes(); len(c) > 0 {
			last = c
		}
		s.Updated()
	}
	<-done
	if c := s.Changes(); len(c) > 0 {
		last = c
	}
	if len(last) == 0 || last[len(last)-1].Open {
		t.Errorf("last change = %v, want closed", last)
	}
}
