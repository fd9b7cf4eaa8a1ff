package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

func init() {
	Register("http", newHTTPSource)
}

// HTTPConfig is the http source's declarative config payload: it polls a
// JSON endpoint and maps each element of a results array to a node insert
// (or update, by re-polling and diffing).
type HTTPConfig struct {
	URL           string
	PollInterval  time.Duration
	Timeout       time.Duration
	ResultsPath   string // gjson path to the array of records, "" = root array
	IDPath        string // gjson path (relative to each record) to the id field
	Label         string
	PropertiesRel bool // if true, treat the whole record as properties
}

// HTTPSource polls a JSON HTTP endpoint on an interval and emits insert /
// update / delete change events by diffing against the previous poll.
type HTTPSource struct {
	id     string
	cfg    HTTPConfig
	client *http.Client

	mu     sync.Mutex
	cancel context.CancelFunc
	seen   map[string]model.Properties
}

func newHTTPSource(id string, properties map[string]any) (Source, error) {
	cfg := HTTPConfig{PollInterval: 5 * time.Second, Timeout: 10 * time.Second, Label: "Item"}
	if v, ok := properties["url"].(string); ok {
		cfg.URL = v
	}
	if v, ok := properties["results_path"].(string); ok {
		cfg.ResultsPath = v
	}
	if v, ok := properties["id_path"].(string); ok {
		cfg.IDPath = v
	}
	if v, ok := properties["label"].(string); ok {
		cfg.Label = v
	}
	if v, ok := properties["poll_interval_seconds"].(int); ok && v > 0 {
		cfg.PollInterval = time.Duration(v) * time.Second
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("http source %s: url is required", id)
	}
	return &HTTPSource{
		id:     id,
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		seen:   make(map[string]model.Properties),
	}, nil
}

func (h *HTTPSource) Start(ctx context.Context, labelFilter []string, sink ChangeSink) error {
	filter := toSet(labelFilter)
	runCtx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()

	go h.poll(runCtx, sink, filter)
	return nil
}

func (h *HTTPSource) poll(ctx context.Context, sink ChangeSink, filter map[string]bool) {
	ticker := time.NewTicker(h.cfg.PollInterval)
	defer ticker.Stop()

	h.tick(ctx, sink, filter)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx, sink, filter)
		}
	}
}

func (h *HTTPSource) tick(ctx context.Context, sink ChangeSink, filter map[string]bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.cfg.URL, nil)
	if err != nil {
		return
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}

	records := gjson.GetBytes(body, h.cfg.ResultsPath)
	if !records.IsArray() {
		records = gjson.ParseBytes(body)
	}

	current := make(map[string]model.Properties)
	records.ForEach(func(_, rec gjson.Result) bool {
		id := recordID(rec, h.cfg.IDPath)
		if id == "" {
			return true
		}
		props := recordProperties(rec)
		current[id] = props
		return true
	})

	h.mu.Lock()
	previous := h.seen
	h.seen = current
	h.mu.Unlock()

	now := time.Now().UnixMilli()
	for id, props := range current {
		el := &model.Element{Kind: model.ElementNode, ID: id, Labels: []string{h.cfg.Label}, Properties: props}
		if !matchesFilter(model.ChangeEvent{After: el}, filter) {
			continue
		}
		if before, existed := previous[id]; !existed {
			_ = sink.PublishChange(ctx, model.ChangeEvent{Op: model.OpInsert, After: el, SourceTimeMs: now})
		} else if !propertiesEqual(before, props) {
			beforeEl := &model.Element{Kind: model.ElementNode, ID: id, Labels: []string{h.cfg.Label}, Properties: before}
			_ = sink.PublishChange(ctx, model.ChangeEvent{Op: model.OpUpdate, Before: beforeEl, After: el, SourceTimeMs: now})
		}
	}
	for id, props := range previous {
		if _, stillPresent := current[id]; stillPresent {
			continue
		}
		el := &model.Element{Kind: model.ElementNode, ID: id, Labels: []string{h.cfg.Label}, Properties: props}
		if !matchesFilter(model.ChangeEvent{Before: el}, filter) {
			continue
		}
		_ = sink.PublishChange(ctx, model.ChangeEvent{Op: model.OpDelete, Before: el, SourceTimeMs: now})
	}
}

func recordID(rec gjson.Result, idPath string) string {
	if idPath == "" {
		return rec.Get("id").String()
	}
	return rec.Get(idPath).String()
}

func recordProperties(rec gjson.Result) model.Properties {
	props := make(model.Properties)
	rec.ForEach(func(key, value gjson.Result) bool {
		props[key.String()] = value.Value()
		return true
	})
	return props
}

func propertiesEqual(a, b model.Properties) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || fmt.Sprint(bv) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

func (h *HTTPSource) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
	}
	return nil
}

// BeginBootstrap: the http source has no native bootstrap provider; the
// first poll tick naturally produces the current snapshot as inserts once
// live streaming begins, so the default `noop` provider applies.
func (h *HTTPSource) BeginBootstrap(ctx context.Context, labelFilter []string, bufferSize int) (Session, error) {
	return Session{}, ErrNoNativeProvider
}
