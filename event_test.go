package uetsim

import (
	"testing"
	"time"
)

func TestSchedulerOrdersByTimeThenInsertion(t *testing.T) {
	sched := NewScheduler(&NullLogger{})

	var fired []string
	sched.Schedule(3*time.Millisecond, func() { fired = append(fired, "c") })
	sched.Schedule(1*time.Millisecond, func() { fired = append(fired, "a") })
	sched.Schedule(1*time.Millisecond, func() { fired = append(fired, "b") })
	sched.Schedule(2*time.Millisecond, func() { fired = append(fired, "d") })

	sched.Run()

	expect := []string{"a", "b", "d", "c"}
	if len(fired) != len(expect) {
		t.Fatalf("got %v, want %v", fired, expect)
	}
	for i := range expect {
		if fired[i] != expect[i] {
			t.Fatalf("got %v, want %v", fired, expect)
		}
	}
}

func TestSchedulerRunUntilLeavesLaterEventsPending(t *testing.T) {
	sched := NewScheduler(&NullLogger{})

	var fired int
	sched.Schedule(1*time.Millisecond, func() { fired++ })
	sched.Schedule(5*time.Millisecond, func() { fired++ })

	sched.RunUntil(2 * time.Millisecond)

	if fired != 1 {
		t.Fatalf("got %d events fired, want 1", fired)
	}
	if sched.Now() != 2*time.Millisecond {
		t.Fatalf("got now=%s, want 2ms", sched.Now())
	}
	if sched.Empty() {
		t.Fatal("scheduler should still have a pending event")
	}
}

func TestSchedulerCancel(t *testing.T) {
	sched := NewScheduler(&NullLogger{})

	fired := false
	ev := sched.Schedule(1*time.Millisecond, func() { fired = true })
	sched.Cancel(ev)
	sched.Run()

	if fired {
		t.Fatal("cancelled event should not fire")
	}
}

func TestSchedulerCancelIsIdempotent(t *testing.T) {
	sched := NewScheduler(&NullLogger{})
	ev := sched.Schedule(time.Millisecond, func() {})
	sched.Cancel(ev)
	sched.Cancel(ev) // must not panic
}

func TestSchedulerScheduleAtPastClampsToNow(t *testing.T) {
	sched := NewScheduler(&NullLogger{})
	sched.RunUntil(5 * time.Millisecond)

	fired := false
	sched.ScheduleAt(time.Millisecond, func() { fired = true })
	sched.Run()

	if !fired {
		t.Fatal("event scheduled in the past should still fire at current time")
	}
}

func TestSchedulerDispatchedCounts(t *testing.T) {
	sched := NewScheduler(&NullLogger{})
	sched.Schedule(time.Millisecond, func() {})
	sched.Schedule(2*time.Millisecond, func() {})
	sched.Run()

	if sched.Dispatched() != 2 {
		t.Fatalf("got %d, want 2", sched.Dispatched())
	}
}
