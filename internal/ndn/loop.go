package ndn

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Loop is a single-threaded cooperative scheduler. Every face callback and
// engine state transition runs on the goroutine driving the loop; Post and
// AfterFunc are safe to call from any goroutine.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	timers  timerHeap
	seq     uint64
	virtual bool
	now     time.Time
	wake    chan struct{}
}

// NewLoop returns a loop on the wall clock, driven by Run.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// NewVirtualLoop returns a loop whose clock only advances inside Drain and
// RunFor, for deterministic tests.
func NewVirtualLoop(start time.Time) *Loop {
	return &Loop{virtual: true, now: start, wake: make(chan struct{}, 1)}
}

func (l *Loop) Now() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nowLocked()
}

func (l *Loop) nowLocked() time.Time {
	if l.virtual {
		return l.now
	}
	return time.Now()
}

// Post schedules fn to run on the loop after already queued work.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
}

// AfterFunc schedules fn to run on the loop once d has elapsed.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	l.mu.Lock()
	l.seq++
	t := &Timer{loop: l, at: l.nowLocked().Add(d), seq: l.seq, fn: fn}
	heap.Push(&l.timers, t)
	l.mu.Unlock()
	l.signal()
	return t
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Timer is a cancellable AfterFunc registration.
type Timer struct {
	loop  *Loop
	at    time.Time
	seq   uint64
	fn    func()
	index int
	done  bool
}

// Stop cancels the timer and reports whether it was still pending.
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}
	l := t.loop
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	heap.Remove(&l.timers, t.index)
	return true
}

// step runs queued tasks, then every timer due at or before now.
func (l *Loop) step(now time.Time) int {
	ran := 0
	for {
		l.mu.Lock()
		if len(l.queue) > 0 {
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()
			fn()
			ran++
			continue
		}
		if len(l.timers) > 0 && !l.timers[0].at.After(now) {
			t := heap.Pop(&l.timers).(*Timer)
			t.done = true
			l.mu.Unlock()
			t.fn()
			ran++
			continue
		}
		l.mu.Unlock()
		return ran
	}
}

// Drain runs until no work or timers remain. On a virtual loop the clock jumps
// to each timer deadline in turn. On a wall-clock loop only due work runs.
func (l *Loop) Drain() int {
	if !l.virtual {
		return l.step(time.Now())
	}
	ran := 0
	for {
		ran += l.step(l.Now())
		l.mu.Lock()
		if len(l.timers) == 0 {
			l.mu.Unlock()
			return ran
		}
		l.now = l.timers[0].at
		l.mu.Unlock()
	}
}

// RunFor advances a virtual loop by d, running everything due on the way.
func (l *Loop) RunFor(d time.Duration) int {
	if !l.virtual {
		return l.step(time.Now())
	}
	deadline := l.Now().Add(d)
	ran := 0
	for {
		ran += l.step(l.Now())
		l.mu.Lock()
		if len(l.timers) == 0 || l.timers[0].at.After(deadline) {
			l.now = deadline
			l.mu.Unlock()
			return ran
		}
		l.now = l.timers[0].at
		l.mu.Unlock()
	}
}

// Run drives a wall-clock loop until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.step(time.Now())
		l.mu.Lock()
		var wait <-chan time.Time
		var timer *time.Timer
		if len(l.timers) > 0 {
			timer = time.NewTimer(time.Until(l.timers[0].at))
			wait = timer.C
		}
		l.mu.Unlock()
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case <-l.wake:
		case <-wait:
		}
		if timer != nil {
			timer.Stop()
		}
	}
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
