package channels

import (
	"sync"

	"github.com/ruokun-niu/drasi-server/internal/logging"
)

// ControlKind is the type of a subscription-router control message (spec
// §4.1.3).
type ControlKind string

const (
	ControlSubscribe   ControlKind = "Subscribe"
	ControlUnsubscribe ControlKind = "Unsubscribe"
	ControlLabelFilter ControlKind = "LabelFilter"
)

// ControlMessage is one {Subscribe,Unsubscribe,LabelFilter} message flowing
// query->source or reaction->query.
type ControlMessage struct {
	Kind        ControlKind
	FromID      string // subscriber (query or reaction) id
	ToID        string // publisher (source or query) id
	LabelFilter []string
}

// ControlHandler is invoked synchronously for every control message
// delivered to ToID.
type ControlHandler func(ControlMessage)

// SubscriptionRouter carries Subscribe/Unsubscribe/LabelFilter control
// messages between queries and sources, and between reactions and queries
// (spec §4.1.3).
type SubscriptionRouter struct {
	mu       sync.RWMutex
	handlers map[string]ControlHandler // keyed by ToID
	log      *logging.Logger
}

// NewSubscriptionRouter builds a SubscriptionRouter.
func NewSubscriptionRouter(log *logging.Logger) *SubscriptionRouter {
	return &SubscriptionRouter{
		handlers: make(map[string]ControlHandler),
		log:      log,
	}
}

// RegisterHandler installs the control-message handler for a publisher
// (source or query) id.
func (r *SubscriptionRouter) RegisterHandler(toID string, handler ControlHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[toID] = handler
}

// UnregisterHandler removes a publisher's control-message handler.
func (r *SubscriptionRouter) UnregisterHandler(toID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, toID)
}

// Send delivers a control message to its ToID's registered handler, if
// any. Unknown targets are silently ignored: the publisher may not have
// started yet. A query that starts after its reactions picks up their
// subscriptions itself (see Registry.StartQuery).
func (r *SubscriptionRouter) Send(msg ControlMessage) {
	r.mu.RLock()
	h, ok := r.handlers[msg.ToID]
	r.mu.RUnlock()
	if !ok {
		r.log.Named("subscription-router").WithField("to_id", msg.ToID).WithField("kind", msg.Kind).Debug("no handler registered for control message")
		return
	}
	h(msg)
}
