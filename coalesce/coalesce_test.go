package coalesce

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock fires timers only when advanced. With leaky set, Stop reports
// success but the timer fires anyway, mimicking a timer that already
// fired and is blocked on the shard lock.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
	leaky  bool
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(0, 0).Add(c.now)
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	if !t.clock.leaky {
		t.stopped = true
	}
	return true
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}

func ready(sub Submission) (string, bool) {
	select {
	case s, ok := <-sub.Result:
		return s, ok
	default:
		return "", false
	}
}

func TestCoalescer_ExampleScenario(t *testing.T) {
	clk := &fakeClock{}
	c := New(1500*time.Millisecond, WithClock(clk))

	first := c.Submit("155512340", "hey")
	require.True(t, first.First)
	require.NotNil(t, first.Result)

	clk.Advance(400 * time.Millisecond)
	second := c.Submit("155512340", "you there?")
	assert.False(t, second.First)
	assert.Nil(t, second.Result)

	clk.Advance(1499 * time.Millisecond)
	_, done := ready(first)
	assert.False(t, done, "window was reset by the second message")

	clk.Advance(time.Millisecond)
	text, done := ready(first)
	require.True(t, done)
	assert.Equal(t, "hey\n\nyou there?", text)
	assert.Equal(t, 0, c.Pending())

	// Channel is closed after its single value.
	_, open := <-first.Result
	assert.False(t, open)

	clk.Advance(500 * time.Millisecond) // 2000ms after "you there?"
	third := c.Submit("155512340", "hello??")
	require.True(t, third.First, "a message after the window starts a new turn")
	clk.Advance(1500 * time.Millisecond)
	text, done = ready(third)
	require.True(t, done)
	assert.Equal(t, "hello??", text)
}

func TestCoalescer_MergeKeepsArrivalOrder(t *testing.T) {
	clk := &fakeClock{}
	c := New(time.Second, WithClock(clk), WithSeparator(" | "))

	first := c.Submit("1", "m0")
	for i := 1; i < 25; i++ {
		clk.Advance(time.Duration(100+i*30) * time.Millisecond)
		sub := c.Submit("1", fmt.Sprintf("m%d", i))
		require.False(t, sub.First, "message %d opened a second turn", i)
	}
	clk.Advance(time.Second)

	text, done := ready(first)
	require.True(t, done)
	want := make([]string, 25)
	for i := range want {
		want[i] = fmt.Sprintf("m%d", i)
	}
	assert.Equal(t, strings.Join(want, " | "), text)
}

func TestCoalescer_SendersIsolated(t *testing.T) {
	clk := &fakeClock{}
	c := New(time.Second, WithClock(clk))

	a := c.Submit("A", "a1")
	b := c.Submit("B", "b1")
	require.True(t, a.First)
	require.True(t, b.First)
	c.Submit("A", "a2")
	c.Submit("B", "b2")
	clk.Advance(200 * time.Millisecond)
	c.Submit("B", "b3")
	assert.Equal(t, 2, c.Pending())

	clk.Advance(800 * time.Millisecond)
	text, done := ready(a)
	require.True(t, done)
	assert.Equal(t, "a1\n\na2", text)
	_, done = ready(b)
	assert.False(t, done, "B's window was extended by b3")

	clk.Advance(200 * time.Millisecond)
	text, done = ready(b)
	require.True(t, done)
	assert.Equal(t, "b1\n\nb2\n\nb3", text)
}

func TestCoalescer_StaleTimerIsNoop(t *testing.T) {
	clk := &fakeClock{leaky: true}
	c := New(time.Second, WithClock(clk))

	first := c.Submit("1", "a")
	clk.Advance(900 * time.Millisecond)
	c.Submit("1", "b")

	// The first timer still fires at t=1s but its generation is stale.
	clk.Advance(100 * time.Millisecond)
	_, done := ready(first)
	assert.False(t, done)
	assert.Equal(t, 1, c.Pending())

	clk.Advance(900 * time.Millisecond)
	text, done := ready(first)
	require.True(t, done)
	assert.Equal(t, "a\n\nb", text)
}

func TestCoalescer_MaxParts(t *testing.T) {
	clk := &fakeClock{}
	c := New(time.Second, WithClock(clk), WithMaxParts(3))

	first := c.Submit("1", "a")
	c.Submit("1", "b")
	c.Submit("1", "c")
	text, done := ready(first)
	require.True(t, done, "third part should flush without waiting")
	assert.Equal(t, "a\n\nb\n\nc", text)

	next := c.Submit("1", "d")
	assert.True(t, next.First)
}

func TestCoalescer_FlushHook(t *testing.T) {
	clk := &fakeClock{}
	var gotParts int
	var gotOpen time.Duration
	c := New(time.Second, WithClock(clk), WithFlushHook(func(parts int, open time.Duration) {
		gotParts, gotOpen = parts, open
	}))
	c.Submit("1", "a")
	clk.Advance(400 * time.Millisecond)
	c.Submit("1", "b")
	clk.Advance(time.Second)
	assert.Equal(t, 2, gotParts)
	assert.Equal(t, 1400*time.Millisecond, gotOpen, "open time follows the injected clock")
}

func TestCoalescer_CloseResolvesWaiters(t *testing.T) {
	clk := &fakeClock{}
	c := New(time.Minute, WithClock(clk))
	first := c.Submit("1", "pending")
	c.Submit("1", "more")

	c.Close()
	text, done := ready(first)
	require.True(t, done)
	assert.Equal(t, "pending\n\nmore", text)
	assert.Equal(t, 0, c.Pending())

	late := c.Submit("1", "after close")
	require.True(t, late.First)
	got, err := Wait(context.Background(), late)
	require.NoError(t, err)
	assert.Equal(t, "after close", got)
	c.Close()
}

func TestWait(t *testing.T) {
	_, err := Wait(context.Background(), Submission{})
	assert.ErrorIs(t, err, ErrNotFirst)

	clk := &fakeClock{}
	c := New(time.Second, WithClock(clk))
	sub := c.Submit("1", "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Wait(ctx, sub)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCoalescer_ConcurrentSubmitsRealClock(t *testing.T) {
	c := New(200 * time.Millisecond)
	defer c.Close()

	const n = 40
	subs := make([]Submission, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			subs[i] = c.Submit("same", fmt.Sprint(i))
		}()
	}
	wg.Wait()

	var firsts []Submission
	for _, s := range subs {
		if s.First {
			firsts = append(firsts, s)
		}
	}
	require.Len(t, firsts, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	text, err := Wait(ctx, firsts[0])
	require.NoError(t, err)
	assert.Len(t, strings.Split(text, "\n\n"), n)
}
