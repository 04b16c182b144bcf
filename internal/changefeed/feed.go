// Package changefeed delivers row-level insert/update/delete events to
// in-process listeners filtered by owner.
package changefeed

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/learnhub/pkg/logger"
	"github.com/charlesng35/learnhub/pkg/metrics"
)

// EventType names the kind of row change.
type EventType string

const (
	Insert EventType = "insert"
	Update EventType = "update"
	Delete EventType = "delete"
)

const defaultBuffer = 64

// Change describes one row change. New is nil for deletes, Old is set for
// updates and deletes when the publisher knows the prior row.
type Change[T any] struct {
	Table   string
	Type    EventType
	OwnerID string
	New     *T
	Old     *T
	At      time.Time
}

type listener[T any] struct {
	id      uint64
	ownerID string
	fn      func(Change[T])
	queue   chan Change[T]
	done    chan struct{}
	once    sync.Once
}

func (l *listener[T]) stop() {
	l.once.Do(func() { close(l.done) })
}

func (l *listener[T]) run() {
	for {
		select {
		case <-l.done:
			return
		case change := <-l.queue:
			// A cancelled listener must not observe events queued before cancel.
			select {
			case <-l.done:
				return
			default:
			}
			l.fn(change)
		}
	}
}

// Feed fans out changes for one table to its listeners. Delivery is
// asynchronous and ordered per listener; a full listener queue drops the event.
type Feed[T any] struct {
	table  string
	buffer int
	log    *zap.Logger

	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]*listener[T]
	closed    bool
}

// Option configures a Feed.
type Option func(*feedOptions)

type feedOptions struct {
	buffer int
}

// WithBuffer sets the per-listener queue size.
func WithBuffer(size int) Option {
	return func(o *feedOptions) {
		if size > 0 {
			o.buffer = size
		}
	}
}

// New constructs a feed for the given table scope.
func New[T any](table string, opts ...Option) *Feed[T] {
	cfg := feedOptions{buffer: defaultBuffer}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Feed[T]{
		table:     table,
		buffer:    cfg.buffer,
		log:       logger.WithModule("changefeed").With(zap.String("table", table)),
		listeners: make(map[uint64]*listener[T]),
	}
}

// Table returns the feed's table scope.
func (f *Feed[T]) Table() string {
	return f.table
}

// Listen registers fn for changes owned by ownerID. An empty ownerID receives
// every change. The returned cancel func is idempotent; after it returns fn is
// not invoked for any further event.
func (f *Feed[T]) Listen(ownerID string, fn func(Change[T])) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return func() {}
	}
	f.nextID++
	l := &listener[T]{
		id:      f.nextID,
		ownerID: ownerID,
		fn:      fn,
		queue:   make(chan Change[T], f.buffer),
		done:    make(chan struct{}),
	}
	f.listeners[l.id] = l
	f.mu.Unlock()

	go l.run()

	return func() {
		f.mu.Lock()
		delete(f.listeners, l.id)
		f.mu.Unlock()
		l.stop()
	}
}

// Publish enqueues change for every matching listener without blocking.
func (f *Feed[T]) Publish(change Change[T]) {
	if change.Table == "" {
		change.Table = f.table
	}
	if change.At.IsZero() {
		change.At = time.Now().UTC()
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, l := range f.listeners {
		if l.ownerID != "" && l.ownerID != change.OwnerID {
			continue
		}
		select {
		case l.queue <- change:
			metrics.FeedEvents.WithLabelValues(f.table, string(change.Type), "delivered").Inc()
		default:
			metrics.FeedEvents.WithLabelValues(f.table, string(change.Type), "dropped").Inc()
			f.log.Warn("listener queue full, dropping change",
				zap.String("owner_id", change.OwnerID),
				zap.String("event", string(change.Type)),
			)
		}
	}
}

// Listeners returns the number of registered listeners.
func (f *Feed[T]) Listeners() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.listeners)
}

// Close cancels every listener; later Listen calls return a no-op cancel.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	listeners := f.listeners
	f.listeners = make(map[uint64]*listener[T])
	f.closed = true
	f.mu.Unlock()

	for _, l := range listeners {
		l.stop()
	}
}
