package reaction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ruokun-niu/drasi-server/internal/logging"
	"github.com/ruokun-niu/drasi-server/internal/model"
	"github.com/ruokun-niu/drasi-server/internal/resilience"
)

func init() {
	Register("http", newHTTPReaction)
}

// HTTPConfig is the http reaction's declarative config payload: it POSTs
// each result delta as a JSON webhook body to url.
type HTTPConfig struct {
	URL     string
	Timeout time.Duration
	Retry   resilience.RetryConfig
}

// HTTPReaction delivers result deltas as webhook POSTs, retrying
// transient failures with exponential backoff to uphold the at-least-once
// delivery rule (spec §6.2) without blocking the query runtime that feeds it.
type HTTPReaction struct {
	id     string
	cfg    HTTPConfig
	client *http.Client
	log    *logging.Logger
}

func newHTTPReaction(id string, properties map[string]any) (Handler, error) {
	cfg := HTTPConfig{Timeout: 10 * time.Second, Retry: resilience.DefaultRetryConfig()}
	if v, ok := properties["url"].(string); ok {
		cfg.URL = v
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("http reaction %s: url is required", id)
	}
	return &HTTPReaction{
		id:     id,
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    logging.NewDefault("reaction." + id),
	}, nil
}

func (h *HTTPReaction) Start(ctx context.Context, deltas <-chan model.ResultDelta) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deltas:
				if !ok {
					return
				}
				if err := h.deliver(ctx, d); err != nil {
					h.log.WithField("error", err).Warn("webhook delivery failed after retries")
				}
			}
		}
	}()
	return nil
}

func (h *HTTPReaction) deliver(ctx context.Context, d model.ResultDelta) error {
	body, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return resilience.Retry(ctx, h.cfg.Retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := h.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("webhook %s: status %d", h.cfg.URL, resp.StatusCode)
		}
		return nil
	})
}

func (h *HTTPReaction) Stop(ctx context.Context) error {
	return nil
}
