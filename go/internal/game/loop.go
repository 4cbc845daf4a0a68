package game

import (
	"container/heap"
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrLoopStopped is returned when posting to a loop that has shut down.
var ErrLoopStopped = errors.New("event loop stopped")

// Loop runs every room and player mutation on one goroutine. Work that
// blocks on the store runs elsewhere through Await and re-enters the loop
// with its result. Timers fire on the loop too.
type Loop struct {
	clock   clockwork.Clock
	tasks   chan func()
	stopped chan struct{}

	timers   timerHeap
	seq      uint64
	inflight atomic.Int64

	// afterTask runs once the current task and its timers are done.
	afterTask []func()
}

// NewLoop returns a loop with room for buffer queued tasks.
func NewLoop(clock clockwork.Clock, buffer int) *Loop {
	return &Loop{
		clock:   clock,
		tasks:   make(chan func(), buffer),
		stopped: make(chan struct{}),
	}
}

// Clock is the time source the loop schedules against.
func (l *Loop) Clock() clockwork.Clock {
	return l.clock
}

// OnTaskDone registers fn to run after every task. Used to flush outbound
// messages once per task.
func (l *Loop) OnTaskDone(fn func()) {
	l.afterTask = append(l.afterTask, fn)
}

// Post queues fn to run on the loop. It never runs fn inline.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.stopped:
		return ErrLoopStopped
	default:
	}
	select {
	case l.tasks <- fn:
		return nil
	case <-l.stopped:
		return ErrLoopStopped
	}
}

// Do runs fn on the loop and waits for it.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := l.Post(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return ErrLoopStopped
	}
}

// Await runs work off the loop and hands its result to then on the loop.
// Loop state may have changed by the time then runs; callers re-check it.
func Await[T any](l *Loop, work func() (T, error), then func(T, error)) {
	l.inflight.Add(1)
	go func() {
		v, err := work()
		if postErr := l.Post(func() {
			l.inflight.Add(-1)
			then(v, err)
		}); postErr != nil {
			l.inflight.Add(-1)
			log.Debug().Err(postErr).Msg("dropping result for stopped loop")
		}
	}()
}

// Run processes tasks and timers until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	log.Info().Msg("event loop started")
	defer close(l.stopped)

	timer := l.clock.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		l.resetTimer(timer)

		select {
		case <-ctx.Done():
			log.Info().Msg("event loop shutting down")
			return nil
		case fn := <-l.tasks:
			l.exec(fn)
		case <-timer.Chan():
			l.runDue()
		}
	}
}

func (l *Loop) resetTimer(timer clockwork.Timer) {
	stopAndDrain(timer)
	if len(l.timers) == 0 {
		timer.Reset(time.Hour)
		return
	}
	wait := l.timers[0].at.Sub(l.clock.Now())
	if wait < 0 {
		wait = 0
	}
	timer.Reset(wait)
}

func stopAndDrain(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer l.finishTask()
	fn()
}

func (l *Loop) finishTask() {
	for _, fn := range l.afterTask {
		fn()
	}
}

// runDue fires every timer whose deadline has passed, earliest first.
func (l *Loop) runDue() {
	now := l.clock.Now()
	for len(l.timers) > 0 && !l.timers[0].at.After(now) {
		t := heap.Pop(&l.timers).(*Timer)
		t.index = -1
		if t.stopped {
			continue
		}
		t.stopped = true
		l.exec(t.fn)
	}
}

// After schedules fn on the loop once d has elapsed. Must be called from
// the loop.
func (l *Loop) After(d time.Duration, fn func()) *Timer {
	l.seq++
	t := &Timer{loop: l, at: l.clock.Now().Add(d), seq: l.seq, fn: fn}
	heap.Push(&l.timers, t)
	return t
}

// Timer is a one-shot callback on the loop.
type Timer struct {
	loop    *Loop
	at      time.Time
	seq     uint64
	fn      func()
	index   int
	stopped bool
}

// Stop disarms the timer. It reports whether the timer was still pending.
// Safe on a nil timer.
func (t *Timer) Stop() bool {
	if t == nil || t.stopped {
		return false
	}
	t.stopped = true
	if t.index >= 0 {
		heap.Remove(&t.loop.timers, t.index)
		t.index = -1
	}
	return true
}

// Remaining is the time left before the timer fires, or zero.
func (t *Timer) Remaining() time.Duration {
	if t == nil || t.stopped {
		return 0
	}
	d := t.at.Sub(t.loop.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

// Active reports whether the timer is still pending.
func (t *Timer) Active() bool {
	return t != nil && !t.stopped
}

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
