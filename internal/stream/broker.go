// Package stream provides the live subscription broker: it forwards
// newly appended log records to interested subscribers without replaying
// history, which is the historical query engine's job. Each subscriber
// holds a bounded buffer with drop-oldest eviction, so one slow consumer
// never stalls the append path or its peers.
package stream

import (
	"sync"

	"go.uber.org/zap"

	"github.com/myk-org/hooktrail/internal/logstore"
	"github.com/myk-org/hooktrail/internal/model"
	"github.com/myk-org/hooktrail/internal/query"
	"github.com/myk-org/hooktrail/pkg/idgen"
	"github.com/myk-org/hooktrail/pkg/logger"
	"github.com/myk-org/hooktrail/pkg/telemetry"
)

// DefaultBufferSize is the per-subscriber buffer capacity. Operator
// configurable; subscribers must treat the buffer as "most recent N",
// never as a complete record of matches.
const DefaultBufferSize = 1000

// Broker maintains the active subscriptions and evaluates every
// appended record against each one's filter, reusing the query engine's
// predicate evaluator.
type Broker struct {
	bufferSize int

	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
}

// Subscription is one live-tail consumer's handle. Records arrive on C()
// in append order; Done() closes when the subscription ends.
type Subscription struct {
	id     string
	filter model.Filter
	ch     chan model.LogRecord
	done   chan struct{}
	broker *Broker
	once   sync.Once
}

// NewBroker creates a broker with the given per-subscriber buffer size.
func NewBroker(bufferSize int) *Broker {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Broker{
		bufferSize: bufferSize,
		subs:       make(map[string]*Subscription),
	}
}

// Attach registers the broker on the store's append path.
func (b *Broker) Attach(store *logstore.Store) {
	store.AddListener(b.publish)
}

// Subscribe registers a new subscription for records matching the
// filter. Pagination fields on the filter are ignored: a live tail has
// no pages.
func (b *Broker) Subscribe(f model.Filter) *Subscription {
	sub := &Subscription{
		id:     idgen.NewSubscriptionID(),
		filter: f,
		ch:     make(chan model.LogRecord, b.bufferSize),
		done:   make(chan struct{}),
		broker: b,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.once.Do(func() { close(sub.done) })
		return sub
	}
	b.subs[sub.id] = sub
	b.mu.Unlock()

	telemetry.GetMetrics().RecordSubscription(1)
	logger.Debug("Live subscription opened",
		zap.String("subscription_id", sub.id),
	)
	return sub
}

// Unsubscribe stops delivery for the subscription and releases its
// buffer. Safe to call multiple times and after the peer disconnected.
func (b *Broker) Unsubscribe(sub *Subscription) {
	if sub != nil {
		sub.Close()
	}
}

// Close terminates every subscription. Used at server shutdown.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// publish evaluates one appended record against every active
// subscription. It runs on the store's append path and therefore never
// blocks: a full subscriber buffer evicts its oldest entry instead.
func (b *Broker) publish(rec model.LogRecord) {
	b.mu.RLock()
	if len(b.subs) == 0 {
		b.mu.RUnlock()
		return
	}
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if !query.Matches(&sub.filter, &rec) {
			continue
		}
		sub.deliver(rec)
	}
}

// remove detaches a subscription from the broker's active set.
func (b *Broker) remove(id string) {
	b.mu.Lock()
	_, present := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()
	if present {
		telemetry.GetMetrics().RecordSubscription(-1)
	}
}

// ID returns the subscription handle's identifier.
func (s *Subscription) ID() string {
	return s.id
}

// C returns the delivery channel. It is never closed while the
// subscription is live; consumers select against Done().
func (s *Subscription) C() <-chan model.LogRecord {
	return s.ch
}

// Done closes when the subscription has been terminated.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close ends the subscription. Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.remove(s.id)
		close(s.done)
		logger.Debug("Live subscription closed",
			zap.String("subscription_id", s.id),
		)
	})
}

// deliver pushes a record into the subscriber's buffer, evicting the
// oldest undelivered entry when full. The buffer therefore always holds
// the most recent entries, in order.
func (s *Subscription) deliver(rec model.LogRecord) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.ch <- rec:
		return
	default:
	}

	// Full: drop the oldest entry and retry once. If a concurrent
	// consumer drained the channel in between, the retry succeeds
	// without dropping anything extra.
	select {
	case <-s.ch:
		telemetry.GetMetrics().RecordDroppedEntry()
	default:
	}
	select {
	case s.ch <- rec:
	default:
		telemetry.GetMetrics().RecordDroppedEntry()
	}
}
