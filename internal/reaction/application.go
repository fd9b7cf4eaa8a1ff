package reaction

import (
	"context"
	"sync"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

func init() {
	Register("application", newApplicationReaction)
}

// ApplicationReaction hands result deltas straight to an embedding Go
// program via Subscribe, the reaction-side counterpart of the application
// source's Inject. No config is required.
type ApplicationReaction struct {
	id string

	mu          sync.Mutex
	subscribers map[chan model.ResultDelta]struct{}
}

func newApplicationReaction(id string, _ map[string]any) (Handler, error) {
	return &ApplicationReaction{id: id, subscribers: make(map[chan model.ResultDelta]struct{})}, nil
}

// AsApplication type-asserts a Handler back to *ApplicationReaction so an
// embedding caller can Subscribe to it.
func AsApplication(h Handler) (*ApplicationReaction, bool) {
	a, ok := h.(*ApplicationReaction)
	return a, ok
}

// Subscribe registers a channel that receives every result delta from this
// reaction until unsubscribe (the returned func) is called. The channel is
// buffered; a subscriber that falls behind drops deltas rather than
// blocking the query runtime.
func (a *ApplicationReaction) Subscribe(bufferSize int) (<-chan model.ResultDelta, func()) {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	ch := make(chan model.ResultDelta, bufferSize)
	a.mu.Lock()
	a.subscribers[ch] = struct{}{}
	a.mu.Unlock()

	unsubscribe := func() {
		a.mu.Lock()
		delete(a.subscribers, ch)
		a.mu.Unlock()
	}
	return ch, unsubscribe
}

func (a *ApplicationReaction) Start(ctx context.Context, deltas <-chan model.ResultDelta) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deltas:
				if !ok {
					return
				}
				a.fanOut(d)
			}
		}
	}()
	return nil
}

func (a *ApplicationReaction) fanOut(d model.ResultDelta) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for ch := range a.subscribers {
		select {
		case ch <- d:
		default:
		}
	}
}

func (a *ApplicationReaction) Stop(ctx context.Context) error {
	return nil
}
