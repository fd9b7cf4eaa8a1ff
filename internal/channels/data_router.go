// Package channels implements the three process-wide routing fabrics from
// spec §4.1: the Data Router, the Bootstrap Router, and the Subscription
// Router. Each is a singleton mediating all inter-component traffic so
// that components never share mutable state directly.
package channels

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ruokun-niu/drasi-server/internal/logging"
	"github.com/ruokun-niu/drasi-server/internal/model"
)

// DefaultDispatchBufferCapacity is the default per-subscriber buffer size
// (spec §4.1.1).
const DefaultDispatchBufferCapacity = 1000

// DataMessage is one change event or result delta addressed to a receiver.
type DataMessage struct {
	ReceiverID string
	Change     *model.ChangeEvent
	Delta      *model.ResultDelta
}

// subscriberQueue is one receiver's bounded FIFO mailbox. Because it is a
// single buffered Go channel, every producer that sends to it observes a
// strictly-FIFO global order of sends, and the (producer, subscriber) FIFO
// guarantee in spec §4.1.1/§5 follows from each producer only ever issuing
// its own events in its own call order.
type subscriberQueue struct {
	ch chan DataMessage
}

// DataRouter carries change events from sources and result deltas from
// queries to their subscribers, applying backpressure on a per-subscriber
// basis (spec §4.1.1): a producer's Publish blocks when the target
// subscriber's buffer is full, but other subscribers are unaffected.
type DataRouter struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriberQueue
	bufferCap   int
	log         *logging.Logger

	queueDepth *prometheus.GaugeVec
}

// NewDataRouter builds a DataRouter with the given default buffer capacity.
func NewDataRouter(bufferCap int, log *logging.Logger) *DataRouter {
	if bufferCap <= 0 {
		bufferCap = DefaultDispatchBufferCapacity
	}
	return &DataRouter{
		subscribers: make(map[string]*subscriberQueue),
		bufferCap:   bufferCap,
		log:         log,
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "drasi_data_router_queue_depth",
			Help: "Number of buffered messages per data router subscriber.",
		}, []string{"receiver_id"}),
	}
}

// Collectors exposes the router's Prometheus collectors for registration.
func (r *DataRouter) Collectors() []prometheus.Collector {
	return []prometheus.Collector{r.queueDepth}
}

// Register creates (or resets) the bounded mailbox for a receiver, with an
// optional capacity override (0 means use the router default).
func (r *DataRouter) Register(receiverID string, capacityOverride int) <-chan DataMessage {
	cap := r.bufferCap
	if capacityOverride > 0 {
		cap = capacityOverride
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	q := &subscriberQueue{ch: make(chan DataMessage, cap)}
	r.subscribers[receiverID] = q
	r.log.Named("data-router").WithField("receiver_id", receiverID).WithField("capacity", cap).Info("subscriber registered")
	return q.ch
}

// Unregister removes a receiver's mailbox. Later Publish and TryPublish
// calls for this receiver return an unknown-receiver error; a Publish
// already blocked on the full mailbox stays blocked until its ctx is done.
func (r *DataRouter) Unregister(receiverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subscribers, receiverID)
	r.queueDepth.DeleteLabelValues(receiverID)
	r.log.Named("data-router").WithField("receiver_id", receiverID).Info("subscriber unregistered")
}

// Publish delivers msg to receiverID, blocking (applying backpressure) if
// that receiver's buffer is full, or returning early if ctx is cancelled.
func (r *DataRouter) Publish(ctx context.Context, receiverID string, msg DataMessage) error {
	r.mu.RLock()
	q, ok := r.subscribers[receiverID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("data router: unknown receiver %q", receiverID)
	}

	msg.ReceiverID = receiverID
	select {
	case q.ch <- msg:
		r.queueDepth.WithLabelValues(receiverID).Set(float64(len(q.ch)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish attempts a non-blocking delivery, returning false if the
// receiver's buffer is currently full (used by producers that must detect
// a stalled subscriber, e.g. the bootstrap live-event buffer).
func (r *DataRouter) TryPublish(receiverID string, msg DataMessage) (delivered bool, err error) {
	r.mu.RLock()
	q, ok := r.subscribers[receiverID]
	r.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("data router: unknown receiver %q", receiverID)
	}

	msg.ReceiverID = receiverID
	select {
	case q.ch <- msg:
		r.queueDepth.WithLabelValues(receiverID).Set(float64(len(q.ch)))
		return true, nil
	default:
		return false, nil
	}
}

// QueueDepth reports the current buffered message count for a receiver.
func (r *DataRouter) QueueDepth(receiverID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.subscribers[receiverID]
	if !ok {
		return 0
	}
	return len(q.ch)
}
