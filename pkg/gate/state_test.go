package gate

import (
	"testing"
	"time"
)

func TestStateChanges(t *testing.T) {
	base := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	clock := base
	s := NewState(func() time.Time { return clock })

	if got := s.Changes(); len(got) != 0 {
		t.Fatalf("Changes() on new state = %v", got)
	}

	readings := []bool{false, false, true, false, false}
	for _, open := range readings {
		clock = clock.Add(time.Second)
		s.Set(open)
	}

	want := []Change{
		{Open: false, At: base.Add(1 * time.Second)},
		{Open: true, At: base.Add(3 * time.Second)},
		{Open: false, At: base.Add(4 * time.Second)},
	}
	got := s.Changes()
	if len(got) != len(want) {
		t.Fatalf("Changes() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i].Open != want[i].Open || !got[i].At.Equal(want[i].At) {
			t.Errorf("change %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if !s.Updated().Equal(base.Add(5 * time.Second)) {
		t.Errorf("Updated() = %v, want last reading time", s.Updated())
	}

	if got := s.Changes(); len(got) != 0 {
		t.Errorf("second Changes() = %v, want drained", got)
	}
	s.Set(false)
	if got := s.Changes(); len(got) != 0 {
		t.Errorf("repeated reading produced %v", got)
	}
}

func TestStateChangesBounded(t *testing.T) {
	var s State
	for i := 0; i < maxPending+10; i++ {
		s.Set(i%2 == 0)
	}
	got := s.Changes()
	if len(got) != maxPending {
		t.Fatalf("Changes() kept %d, want %d", len(got), maxPending)
	}
	// the newest change survives
	if last := got[len(got)-1]; last.Open != ((maxPending+9)%2 == 0) {
		t.Errorf("last change = %+v", last)
	}
}
