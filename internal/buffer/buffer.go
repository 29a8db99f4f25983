package buffer

import (
	"strings"
	"sync"
	"time"

	"github.com/convia-ai/convia/internal/observability/metrics"
	"github.com/convia-ai/convia/pkg/logging"
)

// Key identifies one ongoing dialogue.
type Key struct {
	TenantID      string
	ParticipantID string
}

func (k Key) String() string {
	return k.TenantID + ":" + k.ParticipantID
}

// MessageType tags an inbound payload. Anything other than text is treated as
// media and never coalesced.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeAudio MessageType = "audio"
	TypeImage MessageType = "image"
)

// Message is one inbound payload, or the coalesced text batch produced by a
// flush.
type Message struct {
	Type       MessageType
	Body       string
	ReceivedAt time.Time

	// Grouped marks a flush payload combined from multiple text messages;
	// GroupSize carries the original count (1 for a lone text message).
	Grouped   bool
	GroupSize int
}

// FlushFunc receives each flushed payload. The combined text payload is
// delivered first, then each media entry individually in arrival order.
type FlushFunc func(key Key, msg Message)

// KeyStatus describes one key's pending batch for observability.
type KeyStatus struct {
	Key       Key
	Count     int
	OldestAge time.Duration
}

// Status is a point-in-time snapshot of the buffer.
type Status struct {
	PendingKeys  int
	ActiveTimers int
	Keys         []KeyStatus
}

type batch struct {
	entries []Message
	timer   *time.Timer
	gen     uint64
}

// deliveryLock serializes flushes for one key. refs counts deliveries holding
// or waiting on the lock so the map entry can be pruned once the last one
// finishes.
type deliveryLock struct {
	sync.Mutex
	refs int
}

// Buffer coalesces rapid-fire inbound messages per conversation key. Each key
// owns at most one pending flush timer; a new message for the key cancels and
// restarts it (debounce). Flushes for distinct keys run concurrently, but the
// per-key delivery lock guarantees a key never has two flushes in flight.
type Buffer struct {
	timeout time.Duration
	logger  *logging.Logger
	metrics *metrics.CoreMetrics

	mu       sync.Mutex
	batches  map[Key]*batch
	delivery map[Key]*deliveryLock
	callback FlushFunc
}

// New creates a buffer with the given debounce window.
func New(timeout time.Duration, logger *logging.Logger, m *metrics.CoreMetrics) *Buffer {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Buffer{
		timeout:  timeout,
		logger:   logger,
		metrics:  m,
		batches:  make(map[Key]*batch),
		delivery: make(map[Key]*deliveryLock),
	}
}

// OnFlush registers the callback that receives flushed batches. It must be
// set before any flush fires; otherwise batches are dropped with a warning.
func (b *Buffer) OnFlush(fn FlushFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callback = fn
}

// AddMessage appends the payload to the key's pending batch and restarts the
// key's flush timer.
func (b *Buffer) AddMessage(key Key, msg Message) {
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	if msg.Type == "" {
		msg.Type = TypeText
	}

	b.mu.Lock()
	bt, ok := b.batches[key]
	if !ok {
		bt = &batch{}
		b.batches[key] = bt
	}
	bt.entries = append(bt.entries, msg)
	bt.gen++
	gen := bt.gen

	if bt.timer != nil {
		bt.timer.Stop()
	}
	bt.timer = time.AfterFunc(b.timeout, func() {
		b.flushExpired(key, gen)
	})
	b.mu.Unlock()

	b.metrics.ObserveBufferedMessage()
}

// ForceFlush cancels the pending timer and drains the key immediately. A key
// with no pending entries is a no-op.
func (b *Buffer) ForceFlush(key Key) {
	entries := b.take(key, 0)
	b.deliver(key, entries)
}

// Drain force-flushes every pending key. Called on shutdown so buffered
// messages are processed before the process exits.
func (b *Buffer) Drain() {
	b.mu.Lock()
	keys := make([]Key, 0, len(b.batches))
	for key := range b.batches {
		keys = append(keys, key)
	}
	b.mu.Unlock()

	for _, key := range keys {
		b.ForceFlush(key)
	}
}

// Status reports pending keys, active timers, and per-key batch ages.
func (b *Buffer) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	st := Status{}
	for key, bt := range b.batches {
		if len(bt.entries) == 0 {
			continue
		}
		st.PendingKeys++
		if bt.timer != nil {
			st.ActiveTimers++
		}
		st.Keys = append(st.Keys, KeyStatus{
			Key:       key,
			Count:     len(bt.entries),
			OldestAge: now.Sub(bt.entries[0].ReceivedAt),
		})
	}
	return st
}

// flushExpired runs when a key's debounce window elapses. The generation
// check discards timers that were superseded by a newer message.
func (b *Buffer) flushExpired(key Key, gen uint64) {
	entries := b.take(key, gen)
	b.deliver(key, entries)
}

// take removes and returns the key's pending entries. gen == 0 takes
// unconditionally (force flush); otherwise the batch is only taken when the
// generation still matches the timer that fired.
func (b *Buffer) take(key Key, gen uint64) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	bt, ok := b.batches[key]
	if !ok {
		return nil
	}
	if gen != 0 && bt.gen != gen {
		return nil
	}
	if bt.timer != nil {
		bt.timer.Stop()
	}
	delete(b.batches, key)
	return bt.entries
}

func (b *Buffer) deliver(key Key, entries []Message) {
	if len(entries) == 0 {
		return
	}

	b.mu.Lock()
	fn := b.callback
	lock, ok := b.delivery[key]
	if !ok {
		lock = &deliveryLock{}
		b.delivery[key] = lock
	}
	lock.refs++
	b.mu.Unlock()
	defer b.releaseDelivery(key, lock)

	if fn == nil {
		b.logger.Warn("buffer: no flush callback registered, dropping batch",
			"key", key.String(), "count", len(entries))
		return
	}

	var texts []Message
	var media []Message
	for _, e := range entries {
		if e.Type == TypeText {
			texts = append(texts, e)
		} else {
			media = append(media, e)
		}
	}

	// Serialize per key so an in-flight flush never overlaps a later one for
	// the same conversation.
	lock.Lock()
	defer lock.Unlock()

	if len(texts) > 0 {
		bodies := make([]string, len(texts))
		for i, m := range texts {
			bodies[i] = m.Body
		}
		b.metrics.ObserveFlush("text")
		fn(key, Message{
			Type:       TypeText,
			Body:       strings.Join(bodies, "\n"),
			ReceivedAt: texts[0].ReceivedAt,
			Grouped:    len(texts) > 1,
			GroupSize:  len(texts),
		})
	}

	for _, m := range media {
		b.metrics.ObserveFlush("media")
		fn(key, m)
	}
}

// releaseDelivery drops the key's lock entry once no delivery holds it and
// no batch is pending, so the map does not grow with every conversation ever
// seen.
func (b *Buffer) releaseDelivery(key Key, lock *deliveryLock) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		if _, pending := b.batches[key]; !pending {
			delete(b.delivery, key)
		}
	}
}
