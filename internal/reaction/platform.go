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
	Register("platform", newPlatformReaction)
}

// PlatformConfig is the platform reaction's declarative config payload: it
// forwards each result delta as a row-change payload to a remote
// deployment's ingestion endpoint, the reverse direction of the platform
// source.
type PlatformConfig struct {
	PushURL string
	Label   string
	Retry   resilience.RetryConfig
}

type platformRowPush struct {
	Op         string         `json:"op"`
	ID         string         `json:"id,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// PlatformReaction pushes each added/updated/deleted row of a result delta
// as a separate row-change payload, mirroring the wire shape the platform
// source kind consumes.
type PlatformReaction struct {
	id     string
	cfg    PlatformConfig
	client *http.Client
	log    *logging.Logger
}

func newPlatformReaction(id string, properties map[string]any) (Handler, error) {
	cfg := PlatformConfig{Retry: resilience.DefaultRetryConfig()}
	if v, ok := properties["push_url"].(string); ok {
		cfg.PushURL = v
	}
	if cfg.PushURL == "" {
		return nil, fmt.Errorf("platform reaction %s: push_url is required", id)
	}
	return &PlatformReaction{
		id:     id,
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logging.NewDefault("reaction." + id),
	}, nil
}

func (p *PlatformReaction) Start(ctx context.Context, deltas <-chan model.ResultDelta) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deltas:
				if !ok {
					return
				}
				p.push(ctx, d)
			}
		}
	}()
	return nil
}

func (p *PlatformReaction) push(ctx context.Context, d model.ResultDelta) {
	rows := make([]platformRowPush, 0, len(d.Added)+len(d.Updated)+len(d.Deleted))
	for _, r := range d.Added {
		rows = append(rows, platformRowPush{Op: "add", Properties: r})
	}
	for _, u := range d.Updated {
		rows = append(rows, platformRowPush{Op: "update", Properties: u.After})
	}
	for _, r := range d.Deleted {
		rows = append(rows, platformRowPush{Op: "delete", Properties: r})
	}
	if len(rows) == 0 {
		return
	}

	body, err := json.Marshal(rows)
	if err != nil {
		return
	}
	err = resilience.Retry(ctx, p.cfg.Retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.PushURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("platform push %s: status %d", p.cfg.PushURL, resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		p.log.WithField("error", err).Warn("platform push failed after retries")
	}
}

func (p *PlatformReaction) Stop(ctx context.Context) error {
	return nil
}
