package eventloop

import (
	"errors"
	"testing"
	"time"
)

func TestDrainFiresInDeadlineOrder(t *testing.T) {
	el := New(0)
	a, _ := el.RegisterTimer(20*time.Millisecond, false)
	b, _ := el.RegisterTimer(0, false)
	c, _ := el.RegisterTimer(0, false)

	var fired []int
	err := el.Drain(time.Now().Add(time.Second), nil, func(id int) error {
		fired = append(fired, id)
		return nil
	})
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	want := []int{b, c, a}
	if len(fired) != len(want) {
		t.Fatalf("fired = %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("fired = %v, want %v", fired, want)
		}
	}
}

func TestClearTimerPreventsFire(t *testing.T) {
	el := New(0)
	id, _ := el.RegisterTimer(0, false)
	el.ClearTimer(id)
	el.ClearTimer(999)

	err := el.Drain(time.Now().Add(time.Second), nil, func(int) error {
		t.Fatal("cleared timer fired")
		return nil
	})
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
}

func TestIntervalRepeatsUntilCleared(t *testing.T) {
	el := New(0)
	id, _ := el.RegisterTimer(time.Millisecond, true)

	count := 0
	err := el.Drain(time.Now().Add(2*time.Second), nil, func(got int) error {
		count++
		if count == 3 {
			el.ClearTimer(got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if count != 3 {
		t.Fatalf("interval fired %d times, want 3", count)
	}
	if el.Pending() != 0 {
		t.Fatalf("Pending() = %d after clear, want 0 (id %d)", el.Pending(), id)
	}
}

func TestDrainStopsAtDeadline(t *testing.T) {
	el := New(0)
	if _, err := el.RegisterTimer(time.Hour, false); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	err := el.Drain(start.Add(20*time.Millisecond), nil, func(int) error { return nil })
	if !errors.Is(err, ErrDeadline) {
		t.Fatalf("Drain = %v, want ErrDeadline", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("Drain waited past its deadline")
	}
}

func TestDrainWakesOnKill(t *testing.T) {
	el := New(0)
	if _, err := el.RegisterTimer(time.Minute, false); err != nil {
		t.Fatal(err)
	}
	kill := make(chan struct{})
	time.AfterFunc(20*time.Millisecond, func() { close(kill) })

	start := time.Now()
	if err := el.Drain(start.Add(time.Hour), kill, func(int) error { return nil }); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("Drain did not wake on kill")
	}
}

func TestDrainReturnsFireError(t *testing.T) {
	el := New(0)
	_, _ = el.RegisterTimer(0, false)
	_, _ = el.RegisterTimer(0, false)
	boom := errors.New("boom")

	calls := 0
	err := el.Drain(time.Now().Add(time.Second), nil, func(int) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Drain error = %v, want boom", err)
	}
	if calls != 1 {
		t.Fatalf("fire called %d times after error, want 1", calls)
	}
}

func TestRegisterTimerCap(t *testing.T) {
	el := New(2)
	for i := 0; i < 2; i++ {
		if _, err := el.RegisterTimer(time.Second, false); err != nil {
			t.Fatalf("RegisterTimer %d: %v", i, err)
		}
	}
	_, err := el.RegisterTimer(time.Second, false)
	if !errors.Is(err, ErrTooManyTimers) {
		t.Fatalf("third timer error = %v, want ErrTooManyTimers", err)
	}

	el.Reset()
	if el.Pending() != 0 {
		t.Fatal("Reset left timers behind")
	}
}
