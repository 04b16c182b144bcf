package notifications

import (
	"sync"

	"github.com/charlesng35/learnhub/pkg/metrics"
)

// ChannelName derives the registry key for a user's notification channel.
func ChannelName(userID string) string {
	return "notifications:" + userID
}

// Registry tracks at most one live Subscription per channel. Registering a
// channel that is already held replaces the previous holder.
type Registry struct {
	mu   sync.Mutex
	subs map[string]*Subscription
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]*Subscription)}
}

// swap installs sub for channel and returns the subscription it displaced.
func (r *Registry) swap(channel string, sub *Subscription) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.subs[channel]
	r.subs[channel] = sub
	metrics.ActiveSubscriptions.Set(float64(len(r.subs)))
	return prev
}

// remove deletes channel only while it still belongs to sub.
func (r *Registry) remove(channel string, sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.subs[channel] == sub {
		delete(r.subs, channel)
	}
	metrics.ActiveSubscriptions.Set(float64(len(r.subs)))
}

// Close tears down every registered subscription.
func (r *Registry) Close() {
	for _, sub := range r.drain() {
		sub.Unsubscribe()
	}
}

func (r *Registry) drain() []*Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, sub)
	}
	r.subs = make(map[string]*Subscription)
	metrics.ActiveSubscriptions.Set(0)
	return out
}

// Active returns the subscription currently holding channel, if any.
func (r *Registry) Active(channel string) (*Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[channel]
	return sub, ok
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Subscription is the handle returned by Service.Subscribe.
type Subscription struct {
	channel  string
	userID   string
	handlers Handlers
	registry *Registry

	mu     sync.Mutex
	cancel func()
	done   chan struct{}
	once   sync.Once
}

// attach records the feed cancel func. A handle torn down before its listener
// was attached cancels the listener immediately.
func (s *Subscription) attach(cancel func()) {
	s.mu.Lock()
	if !s.Active() {
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancel = cancel
	s.mu.Unlock()
}

// Channel returns the registry key of the subscription.
func (s *Subscription) Channel() string {
	return s.channel
}

// Active reports whether the subscription has not been torn down.
func (s *Subscription) Active() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Unsubscribe stops delivery and releases the channel. It is safe to call
// more than once and from any goroutine.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.mu.Lock()
		close(s.done)
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		s.registry.remove(s.channel, s)
	})
}
