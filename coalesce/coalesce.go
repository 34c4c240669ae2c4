// Package coalesce merges bursts of messages from the same sender into a
// single logical turn.
//
// The first message from a sender opens a buffer and arms a timer. Every
// further message inside the window is appended and pushes the deadline
// out again. When the window closes the parts are joined and delivered,
// exactly once, to the caller that opened the buffer.
package coalesce

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/nevindra/courier"
)

// DefaultWindow is the quiet period after the last message.
const DefaultWindow = 1500 * time.Millisecond

const numShards = 32

// ErrNotFirst is returned by Wait for a Submission that joined an already
// open buffer. Its text will be delivered to the first caller instead.
var ErrNotFirst = errors.New("coalesce: message merged into an open turn")

// Submission is the outcome of Submit. Only the caller holding First=true
// receives the combined text; Result is nil otherwise.
type Submission struct {
	First  bool
	Result <-chan string
}

// Option configures a Coalescer.
type Option func(*Coalescer)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(co *Coalescer) { co.clock = c }
}

// WithSeparator sets the string placed between merged parts (default "\n\n").
func WithSeparator(sep string) Option {
	return func(co *Coalescer) { co.sep = sep }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(co *Coalescer) { co.logger = l }
}

// WithMaxParts flushes a buffer as soon as it holds n parts instead of
// waiting for the window to close. Zero disables the cap.
func WithMaxParts(n int) Option {
	return func(co *Coalescer) { co.maxParts = n }
}

// WithFlushHook registers fn to be called after every flush with the
// number of merged parts and how long the buffer stayed open.
func WithFlushHook(fn func(parts int, open time.Duration)) Option {
	return func(co *Coalescer) { co.onFlush = fn }
}

type buffer struct {
	parts  []string
	gen    uint64
	timer  Timer
	result chan string
	opened time.Time
}

type shard struct {
	mu      sync.Mutex
	buffers map[string]*buffer
}

// Coalescer is a per-sender debounce buffer. Safe for concurrent use;
// senders hashing to different shards never contend.
type Coalescer struct {
	window   time.Duration
	sep      string
	maxParts int
	clock    Clock
	logger   *slog.Logger
	onFlush  func(parts int, open time.Duration)
	closed   atomic.Bool
	shards   [numShards]shard
}

// New creates a Coalescer with the given debounce window
// (DefaultWindow when window <= 0).
func New(window time.Duration, opts ...Option) *Coalescer {
	if window <= 0 {
		window = DefaultWindow
	}
	c := &Coalescer{
		window: window,
		sep:    "\n\n",
		clock:  realClock{},
		logger: courier.NopLogger,
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With("component", "coalesce")
	for i := range c.shards {
		c.shards[i].buffers = make(map[string]*buffer)
	}
	return c
}

func (c *Coalescer) shardFor(senderKey string) *shard {
	return &c.shards[xxhash.Sum64String(senderKey)%numShards]
}

// Submit adds text to senderKey's open buffer, opening one if needed.
// Empty text is appended as-is. After Close, every Submit resolves
// immediately with its own text.
func (c *Coalescer) Submit(senderKey, text string) Submission {
	sh := c.shardFor(senderKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if c.closed.Load() {
		ch := make(chan string, 1)
		ch <- text
		close(ch)
		return Submission{First: true, Result: ch}
	}

	b, ok := sh.buffers[senderKey]
	if !ok {
		b = &buffer{
			parts:  []string{text},
			result: make(chan string, 1),
			opened: c.clock.Now(),
		}
		sh.buffers[senderKey] = b
		c.logger.Debug("buffer opened", "sender", senderKey)
		if c.capped(b) {
			c.flushLocked(sh, senderKey, b)
		} else {
			c.arm(sh, senderKey, b)
		}
		return Submission{First: true, Result: b.result}
	}

	b.parts = append(b.parts, text)
	b.timer.Stop()
	if c.capped(b) {
		c.logger.Debug("buffer hit part cap", "sender", senderKey, "parts", len(b.parts))
		c.flushLocked(sh, senderKey, b)
		return Submission{}
	}
	c.arm(sh, senderKey, b)
	return Submission{}
}

func (c *Coalescer) capped(b *buffer) bool {
	return c.maxParts > 0 && len(b.parts) >= c.maxParts
}

// arm must be called with sh.mu held. Each arm bumps the generation so a
// stale timer that already fired and is waiting on the lock becomes a no-op.
func (c *Coalescer) arm(sh *shard, senderKey string, b *buffer) {
	b.gen++
	gen := b.gen
	b.timer = c.clock.AfterFunc(c.window, func() { c.fire(sh, senderKey, b, gen) })
}

func (c *Coalescer) fire(sh *shard, senderKey string, b *buffer, gen uint64) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if cur, ok := sh.buffers[senderKey]; !ok || cur != b || b.gen != gen {
		return
	}
	c.flushLocked(sh, senderKey, b)
}

// flushLocked must be called with sh.mu held.
func (c *Coalescer) flushLocked(sh *shard, senderKey string, b *buffer) {
	delete(sh.buffers, senderKey)
	b.result <- strings.Join(b.parts, c.sep)
	close(b.result)
	open := c.clock.Now().Sub(b.opened)
	c.logger.Debug("buffer flushed", "sender", senderKey, "parts", len(b.parts), "open_ms", open.Milliseconds())
	if c.onFlush != nil {
		c.onFlush(len(b.parts), open)
	}
}

// Pending returns the number of open buffers.
func (c *Coalescer) Pending() int {
	n := 0
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.Lock()
		n += len(sh.buffers)
		sh.mu.Unlock()
	}
	return n
}

// Close stops all timers and resolves every open buffer with what it
// holds, so no waiter hangs. Later submissions resolve immediately.
func (c *Coalescer) Close() {
	if c.closed.Swap(true) {
		return
	}
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.Lock()
		for key, b := range sh.buffers {
			b.timer.Stop()
			c.flushLocked(sh, key, b)
		}
		sh.mu.Unlock()
	}
}

// Wait blocks until sub's combined text is ready or ctx is done.
func Wait(ctx context.Context, sub Submission) (string, error) {
	if !sub.First || sub.Result == nil {
		return "", ErrNotFirst
	}
	select {
	case text := <-sub.Result:
		return text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
