package source

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

func init() {
	Register("application", newApplicationSource)
}

// ApplicationConfig is the application source's declarative config payload.
type ApplicationConfig struct {
	RedisAddr string // optional; empty means in-memory replay buffer only
	RedisKey  string
}

// ApplicationSource is driven by an embedding Go program via Inject, the
// same way MockSource is, but additionally retains every inserted element
// in a replay buffer (in-memory, or Redis-backed when configured) so its
// native bootstrap provider ("a replay of previously buffered insert
// events produced by an embedding application", spec §4.3 table) can
// replay history to a newly (re)started query.
type ApplicationSource struct {
	id  string
	cfg ApplicationConfig

	redis *redis.Client

	mu          sync.RWMutex
	sink        ChangeSink
	labelFilter map[string]bool
	buffer      []model.Element // in-memory fallback
}

func newApplicationSource(id string, properties map[string]any) (Source, error) {
	cfg := ApplicationConfig{RedisKey: fmt.Sprintf("drasi:app-source:%s:buffer", id)}
	if v, ok := properties["redis_addr"].(string); ok {
		cfg.RedisAddr = v
	}
	s := &ApplicationSource{id: id, cfg: cfg}
	if cfg.RedisAddr != "" {
		s.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	return s, nil
}

func (a *ApplicationSource) Start(ctx context.Context, labelFilter []string, sink ChangeSink) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sink = sink
	a.labelFilter = toSet(labelFilter)
	return nil
}

func (a *ApplicationSource) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sink = nil
	return nil
}

// Inject delivers one change event from the embedding application, and
// retains Insert elements in the replay buffer for future bootstraps.
func (a *ApplicationSource) Inject(ctx context.Context, ev model.ChangeEvent) error {
	a.mu.RLock()
	sink, filter := a.sink, a.labelFilter
	a.mu.RUnlock()

	if sink == nil {
		return fmt.Errorf("application source %s not running", a.id)
	}

	if ev.Op == model.OpInsert && ev.After != nil {
		a.remember(ctx, *ev.After)
	}

	if !matchesFilter(ev, filter) {
		return nil
	}
	return sink.PublishChange(ctx, ev)
}

func (a *ApplicationSource) remember(ctx context.Context, el model.Element) {
	if a.redis != nil {
		data, err := json.Marshal(el)
		if err == nil {
			a.redis.RPush(ctx, a.cfg.RedisKey, data)
		}
		return
	}
	a.mu.Lock()
	a.buffer = append(a.buffer, el)
	a.mu.Unlock()
}

// BeginBootstrap replays every remembered insert as the bootstrap stream,
// with no coordination watermark (a replay position, not a source-local
// LSN, per spec §4.3 table).
func (a *ApplicationSource) BeginBootstrap(ctx context.Context, labelFilter []string, bufferSize int) (Session, error) {
	filter := toSet(labelFilter)
	elements, err := a.replayBuffer(ctx)
	if err != nil {
		return Session{}, err
	}

	if bufferSize <= 0 {
		bufferSize = len(elements) + 1
	}
	inserts := make(chan model.Element, bufferSize)
	complete := make(chan Completion, 1)

	go func() {
		defer close(inserts)
		for _, el := range elements {
			el := el
			if !matchesFilter(model.ChangeEvent{After: &el}, filter) {
				continue
			}
			select {
			case inserts <- el:
			case <-ctx.Done():
				complete <- Completion{Err: ctx.Err()}
				close(complete)
				return
			}
		}
		complete <- Completion{}
		close(complete)
	}()

	return Session{Inserts: inserts, Complete: complete}, nil
}

func (a *ApplicationSource) replayBuffer(ctx context.Context) ([]model.Element, error) {
	if a.redis != nil {
		raw, err := a.redis.LRange(ctx, a.cfg.RedisKey, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("application source %s: redis replay: %w", a.id, err)
		}
		out := make([]model.Element, 0, len(raw))
		for _, s := range raw {
			var el model.Element
			if err := json.Unmarshal([]byte(s), &el); err == nil {
				out = append(out, el)
			}
		}
		return out, nil
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]model.Element, len(a.buffer))
	copy(out, a.buffer)
	return out, nil
}

