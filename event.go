package uetsim

//
// Discrete-event scheduler
//

import (
	"container/heap"
	"time"
)

// Event is a scheduled unit of work. The zero value is invalid; obtain an
// [*Event] from [Scheduler.Schedule] or [Scheduler.ScheduleAt]. Every
// Schedule call allocates a new Event: the per-component timers in
// phy.go/link.go/transport.go/inc.go keep at most one pending Event each,
// but they schedule a fresh Event on every rearm; an Event is never reused.
type Event struct {
	// at is the absolute virtual time at which this event should fire.
	at time.Duration

	// seq is the insertion sequence, used to break ties between events
	// scheduled for the same virtual time (FIFO on insertion order).
	seq uint64

	// callback is invoked by the scheduler when the event fires. It MUST
	// NOT block: scheduler components run to completion within one event.
	callback func()

	// index is the position of this event in the scheduler's heap,
	// maintained by container/heap and used to support cancellation.
	index int

	// cancelled marks an event removed from the heap lazily; cancel still
	// performs an eager heap.Remove when possible (see [Scheduler.Cancel]),
	// this flag guards against a callback firing after a racing cancel
	// within the same Run loop pass.
	cancelled bool
}

// At returns the virtual time at which this event is scheduled to fire.
func (e *Event) At() time.Duration {
	return e.at
}

// eventHeap implements container/heap.Interface, ordering by (at, seq) so
// that ties are broken by insertion order as required by the scheduler's
// determinism contract.
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x any) {
	ev := x.(*Event)
	ev.index = len(*h)
	*h = append(*h, ev)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*h = old[:n-1]
	return ev
}

// Scheduler is a single-threaded, time-ordered event queue. It is the only
// source of suspension in the simulator: component logic never blocks, it
// only schedules future events. Identical seeds and inputs yield identical
// event sequences because ties are broken by insertion order, never by
// wall-clock or map iteration order. The zero value is invalid; use
// [NewScheduler] to construct one.
type Scheduler struct {
	// now is the current virtual time.
	now time.Duration

	// queue is the pending-event min-heap.
	queue eventHeap

	// nextSeq is the monotonic insertion sequence.
	nextSeq uint64

	// logger is used to trace dispatched events at debug verbosity.
	logger Logger

	// dispatched counts the number of events this scheduler has run.
	dispatched uint64
}

// NewScheduler creates a new, empty [Scheduler] starting at virtual time 0.
func NewScheduler(logger Logger) *Scheduler {
	if logger == nil {
		logger = &NullLogger{}
	}
	s := &Scheduler{
		now:     0,
		queue:   eventHeap{},
		nextSeq: 0,
		logger:  logger,
	}
	heap.Init(&s.queue)
	return s
}

// Now returns the scheduler's current virtual time. Every component in
// the simulator reads time through this accessor instead of [time.Now]
// so that a run is fully reproducible.
func (s *Scheduler) Now() time.Duration {
	return s.now
}

// Schedule arranges for cb to run after delay has elapsed in virtual
// time. delay must be non-negative.
func (s *Scheduler) Schedule(delay time.Duration, cb func()) *Event {
	return s.ScheduleAt(s.now+delay, cb)
}

// ScheduleAt arranges for cb to run at the given absolute virtual time.
// Scheduling in the past clamps to the current time, which is then
// treated as the next event at this time (events never fire before now).
func (s *Scheduler) ScheduleAt(at time.Duration, cb func()) *Event {
	if at < s.now {
		at = s.now
	}
	ev := &Event{
		at:       at,
		seq:      s.nextSeq,
		callback: cb,
	}
	s.nextSeq++
	heap.Push(&s.queue, ev)
	return ev
}

// Cancel removes a pending event. Cancelling an already-fired or
// already-cancelled event is a no-op.
func (s *Scheduler) Cancel(ev *Event) {
	if ev == nil || ev.cancelled {
		return
	}
	ev.cancelled = true
	if ev.index >= 0 && ev.index < len(s.queue) && s.queue[ev.index] == ev {
		heap.Remove(&s.queue, ev.index)
	}
}

// Empty returns true when there are no pending events.
func (s *Scheduler) Empty() bool {
	return len(s.queue) == 0
}

// Run drains the event queue, dispatching events in (time, insertion
// order) until empty. This is the classic "run to completion" discrete
// event loop: every callback executes fully before the next is dispatched.
// Afterwards, Now reports the time of the last dispatched event.
func (s *Scheduler) Run() {
	s.dispatchUntil(1<<63 - 1)
}

// RunUntil drains the event queue, dispatching events whose virtual time
// is <= until, advancing s.now to each dispatched event's time as it
// fires. Events scheduled beyond until remain pending.
func (s *Scheduler) RunUntil(until time.Duration) {
	s.dispatchUntil(until)
	s.now = until
}

// dispatchUntil dispatches every pending event whose time is <= until.
func (s *Scheduler) dispatchUntil(until time.Duration) {
	for len(s.queue) > 0 {
		next := s.queue[0]
		if next.at > until {
			return
		}
		heap.Pop(&s.queue)
		if next.cancelled {
			continue
		}
		s.now = next.at
		s.dispatched++
		s.logger.Debugf("uetsim: scheduler: dispatch #%d at t=%s", s.dispatched, s.now)
		next.callback()
	}
}

// Dispatched returns the number of events this scheduler has executed.
func (s *Scheduler) Dispatched() uint64 {
	return s.dispatched
}
