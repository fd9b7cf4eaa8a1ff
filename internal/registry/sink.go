package registry

import (
	"context"

	"github.com/ruokun-niu/drasi-server/internal/channels"
	"github.com/ruokun-niu/drasi-server/internal/model"
)

// sourceSink adapts the registry's fanout bookkeeping to the
// source.ChangeSink contract: publishing a change event means delivering
// it to the Data Router mailbox of every query currently subscribed to
// this source.
type sourceSink struct {
	reg      *Registry
	sourceID string
}

func (s *sourceSink) PublishChange(ctx context.Context, ev model.ChangeEvent) error {
	s.reg.mu.RLock()
	rec, ok := s.reg.sources[s.sourceID]
	s.reg.mu.RUnlock()
	if !ok {
		return nil
	}
	for _, queryID := range rec.subscriberIDs() {
		ev := ev
		if err := s.reg.dataRouter.Publish(ctx, queryID, channels.DataMessage{Change: &ev}); err != nil {
			s.reg.log.Named("registry").WithField("source_id", s.sourceID).WithField("query_id", queryID).
				WithField("error", err).Warn("change publish failed")
		}
	}
	return nil
}

// deltaChan adapts a Data Router <-chan DataMessage mailbox (shared wire
// shape for both change events and result deltas) to the plain
// <-chan model.ResultDelta a reaction.Handler expects.
func deltaChan(ctx context.Context, in <-chan channels.DataMessage) <-chan model.ResultDelta {
	out := make(chan model.ResultDelta, cap(in))
	go func() {
		defer close(out)
		for {
			select {
			case msg, ok := <-in:
				if !ok {
					return
				}
				if msg.Delta == nil {
					continue
				}
				select {
				case out <- *msg.Delta:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
