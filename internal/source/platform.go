package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

func init() {
	Register("platform", newPlatformSource)
}

// PlatformConfig is the platform source's declarative config payload: it
// connects to a remote Drasi-compatible deployment's Query-API and relays
// its result-change stream as change events of its own, letting one Drasi
// Server compose results produced by another.
type PlatformConfig struct {
	StreamURL   string // chunked/SSE endpoint carrying one JSON row-change per line
	SnapshotURL string // full-result endpoint used for bootstrap
	RecordsPath string // jsonpath into a snapshot payload, e.g. "$.results"
	Label       string
	DialTimeout time.Duration
}

// PlatformSource subscribes to a remote platform's result stream over a
// chunked HTTP connection, turning each published row into an Insert/
// Update/Delete change event for whatever query consumes this source.
type PlatformSource struct {
	id  string
	cfg PlatformConfig

	client *http.Client
	mu     sync.Mutex
	cancel context.CancelFunc
}

type platformRowEvent struct {
	Op         string         `json:"op"`
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties"`
}

func newPlatformSource(id string, properties map[string]any) (Source, error) {
	cfg := PlatformConfig{DialTimeout: 10 * time.Second, Label: "Result", RecordsPath: "$.results"}
	if v, ok := properties["stream_url"].(string); ok {
		cfg.StreamURL = v
	}
	if v, ok := properties["snapshot_url"].(string); ok {
		cfg.SnapshotURL = v
	}
	if v, ok := properties["records_path"].(string); ok {
		cfg.RecordsPath = v
	}
	if v, ok := properties["label"].(string); ok {
		cfg.Label = v
	}
	if cfg.StreamURL == "" {
		return nil, fmt.Errorf("platform source %s: stream_url is required", id)
	}
	return &PlatformSource{id: id, cfg: cfg, client: &http.Client{}}, nil
}

func (p *PlatformSource) Start(ctx context.Context, labelFilter []string, sink ChangeSink) error {
	filter := toSet(labelFilter)
	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	go p.consume(runCtx, sink, filter)
	return nil
}

// consume opens the chunked stream and reconnects (with a fixed backoff)
// whenever the remote closes the connection, since the remote platform's
// own availability is outside this process's control.
func (p *PlatformSource) consume(ctx context.Context, sink ChangeSink, filter map[string]bool) {
	for {
		if ctx.Err() != nil {
			return
		}
		_ = p.consumeOnce(ctx, sink, filter)
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (p *PlatformSource) consumeOnce(ctx context.Context, sink ChangeSink, filter map[string]bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.StreamURL, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row platformRowEvent
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			continue
		}
		ev, ok := p.toChangeEvent(row)
		if !ok || !matchesFilter(ev, filter) {
			continue
		}
		_ = sink.PublishChange(ctx, ev)
	}
	return scanner.Err()
}

func (p *PlatformSource) toChangeEvent(row platformRowEvent) (model.ChangeEvent, bool) {
	el := &model.Element{Kind: model.ElementNode, ID: row.ID, Labels: []string{p.cfg.Label}, Properties: row.Properties}
	now := time.Now().UnixMilli()
	switch row.Op {
	case "add", "insert":
		return model.ChangeEvent{Op: model.OpInsert, After: el, SourceTimeMs: now}, true
	case "update":
		return model.ChangeEvent{Op: model.OpUpdate, Before: el, After: el, SourceTimeMs: now}, true
	case "delete", "remove":
		return model.ChangeEvent{Op: model.OpDelete, Before: el, SourceTimeMs: now}, true
	default:
		return model.ChangeEvent{}, false
	}
}

func (p *PlatformSource) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

// BeginBootstrap fetches the remote platform's current result snapshot and
// replays it as an insert stream, extracting the record array with
// jsonpath since the snapshot envelope shape varies across deployments.
func (p *PlatformSource) BeginBootstrap(ctx context.Context, labelFilter []string, bufferSize int) (Session, error) {
	if p.cfg.SnapshotURL == "" {
		return Session{}, ErrNoNativeProvider
	}
	filter := toSet(labelFilter)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.SnapshotURL, nil)
	if err != nil {
		return Session{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("platform source %s: snapshot request: %w", p.id, err)
	}
	defer resp.Body.Close()

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Session{}, fmt.Errorf("platform source %s: decode snapshot: %w", p.id, err)
	}
	records, err := jsonpath.Get(p.cfg.RecordsPath, payload)
	if err != nil {
		return Session{}, fmt.Errorf("platform source %s: jsonpath %s: %w", p.id, p.cfg.RecordsPath, err)
	}
	list, _ := records.([]any)

	if bufferSize <= 0 {
		bufferSize = len(list) + 1
	}
	inserts := make(chan model.Element, bufferSize)
	complete := make(chan Completion, 1)

	go func() {
		defer close(inserts)
		for _, rec := range list {
			m, ok := rec.(map[string]any)
			if !ok {
				continue
			}
			id := fmt.Sprint(m["id"])
			props, _ := m["properties"].(map[string]any)
			el := model.Element{Kind: model.ElementNode, ID: id, Labels: []string{p.cfg.Label}, Properties: props}
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
