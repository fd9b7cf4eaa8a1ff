package reaction

import (
	"context"

	"github.com/ruokun-niu/drasi-server/internal/logging"
	"github.com/ruokun-niu/drasi-server/internal/model"
)

func init() {
	Register("log", newLogReaction)
}

// LogReaction writes every result delta to the structured logger. It is
// the reaction used in spec scenario A and is a reasonable default for
// local development.
type LogReaction struct {
	id  string
	log *logging.Logger
}

func newLogReaction(id string, _ map[string]any) (Handler, error) {
	return &LogReaction{id: id, log: logging.NewDefault("reaction." + id)}, nil
}

func (l *LogReaction) Start(ctx context.Context, deltas <-chan model.ResultDelta) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deltas:
				if !ok {
					return
				}
				l.log.WithFields(map[string]any{
					"sequence": d.Sequence,
					"added":    len(d.Added),
					"updated":  len(d.Updated),
					"deleted":  len(d.Deleted),
				}).Info("result delta")
			}
		}
	}()
	return nil
}

func (l *LogReaction) Stop(ctx context.Context) error {
	return nil
}
