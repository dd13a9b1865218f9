package ndn

import (
	"context"
	"testing"
	"time"

	"github.com/danmuck/ndnrevoke/internal/testutil/testlog"
)

func TestVirtualLoopOrdersTimersAndTasks(t *testing.T) {
	testlog.Start(t)
	start := time.Unix(1700000000, 0)
	loop := NewVirtualLoop(start)
	var order []string
	loop.AfterFunc(2*time.Second, func() { order = append(order, "t2") })
	loop.AfterFunc(time.Second, func() {
		order = append(order, "t1")
		loop.Post(func() { order = append(order, "posted") })
	})
	loop.Post(func() { order = append(order, "task") })
	loop.Drain()

	want := []string{"task", "t1", "posted", "t2"}
	if len(order) != len(want) {
		t.Fatalf("unexpected order: %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected order: %v", order)
		}
	}
	if got := loop.Now().Sub(start); got != 2*time.Second {
		t.Fatalf("clock advanced %v", got)
	}
}

func TestTimerStopPreventsCallback(t *testing.T) {
	testlog.Start(t)
	loop := NewVirtualLoop(time.Unix(0, 0))
	fired := false
	timer := loop.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatalf("expected stop to report pending timer")
	}
	if timer.Stop() {
		t.Fatalf("second stop should report false")
	}
	loop.Drain()
	if fired {
		t.Fatalf("stopped timer fired")
	}
}

func TestRunForStopsAtDeadline(t *testing.T) {
	testlog.Start(t)
	loop := NewVirtualLoop(time.Unix(0, 0))
	fired := 0
	loop.AfterFunc(time.Second, func() { fired++ })
	loop.AfterFunc(5*time.Second, func() { fired++ })
	loop.RunFor(2 * time.Second)
	if fired != 1 {
		t.Fatalf("expected one timer, got %d", fired)
	}
	loop.RunFor(3 * time.Second)
	if fired != 2 {
		t.Fatalf("expected both timers, got %d", fired)
	}
}

func TestWallClockLoopRunsPostedWork(t *testing.T) {
	testlog.Start(t)
	loop := NewLoop()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan struct{})
	loop.AfterFunc(10*time.Millisecond, func() { close(done) })
	go loop.Run(ctx)
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatalf("timer never fired")
	}
}

func TestPendingTableOutcomes(t *testing.T) {
	testlog.Start(t)
	loop := NewVirtualLoop(time.Unix(0, 0))
	table := NewPendingTable(loop)
	var got []string
	cb := ExpressCallbacks{
		OnData:    func(*Interest, *Data) { got = append(got, "data") },
		OnNack:    func(*Interest, NackReason) { got = append(got, "nack") },
		OnTimeout: func(*Interest) { got = append(got, "timeout") },
	}
	a := NewInterest(MustParseName("/a"))
	a.CanBePrefix = true
	table.Add(a, cb)
	b := NewInterest(MustParseName("/b"))
	table.Add(b, cb)
	c := NewInterest(MustParseName("/c"))
	c.Lifetime = time.Second
	table.Add(c, cb)
	cancelled := table.Add(NewInterest(MustParseName("/d")), cb)
	cancelled.Cancel()

	if n := table.Satisfy(NewData(MustParseName("/a/1"), nil)); n != 1 {
		t.Fatalf("expected one satisfied interest, got %d", n)
	}
	if !table.Nack(b, NackNoRoute) {
		t.Fatalf("expected nack match")
	}
	loop.Drain()
	want := []string{"data", "nack", "timeout"}
	if len(got) != len(want) {
		t.Fatalf("unexpected outcomes: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected outcomes: %v", got)
		}
	}
	if table.Len() != 0 {
		t.Fatalf("table not empty: %d", table.Len())
	}
}

func TestFilterTableLongestPrefix(t *testing.T) {
	testlog.Start(t)
	table := NewFilterTable()
	hit := ""
	table.Add(MustParseName("/ndn"), func(*Interest) { hit = "short" })
	long := table.Add(MustParseName("/ndn/alice/msg"), func(*Interest) { hit = "long" })
	h, ok := table.Lookup(MustParseName("/ndn/alice/msg/x"))
	if !ok {
		t.Fatalf("expected match")
	}
	h(nil)
	if hit != "long" {
		t.Fatalf("expected longest prefix, got %s", hit)
	}
	table.Remove(long)
	h, _ = table.Lookup(MustParseName("/ndn/alice/msg/x"))
	h(nil)
	if hit != "short" {
		t.Fatalf("expected fallback prefix, got %s", hit)
	}
	if _, ok := table.Lookup(MustParseName("/other")); ok {
		t.Fatalf("unexpected match")
	}
}
