package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/ruokun-niu/drasi-server/internal/model"
	"github.com/ruokun-niu/drasi-server/internal/resilience"
)

func init() {
	Register("platform", newPlatformProvider)
}

// PlatformProviderConfig is the platform provider's configuration.
type PlatformProviderConfig struct {
	ReadAllURL  string
	RecordsPath string
	Label       string
	Timeout     time.Duration
}

// platformProvider issues a read-all request for the subscribed labels
// against a remote Query-API deployment and replays the result as inserts.
// It carries no watermark (spec §4.3 table).
type platformProvider struct {
	cfg    PlatformProviderConfig
	client *http.Client
}

func newPlatformProvider(properties map[string]any) (Provider, error) {
	cfg := PlatformProviderConfig{RecordsPath: "$.results", Label: "Item", Timeout: 15 * time.Second}
	if v, ok := properties["read_all_url"].(string); ok {
		cfg.ReadAllURL = v
	}
	if v, ok := properties["records_path"].(string); ok {
		cfg.RecordsPath = v
	}
	if v, ok := properties["label"].(string); ok {
		cfg.Label = v
	}
	if cfg.ReadAllURL == "" {
		return nil, fmt.Errorf("platform provider: read_all_url is required")
	}
	return &platformProvider{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (p *platformProvider) Stream(ctx context.Context, req Request) (<-chan Insert, <-chan Result, <-chan error) {
	inserts := make(chan Insert)
	results := make(chan Result, 1)
	errs := make(chan error, 1)
	filter := toFilterSet(req.LabelFilter)

	go func() {
		defer close(inserts)
		defer close(results)
		defer close(errs)

		url := p.cfg.ReadAllURL
		if len(req.LabelFilter) > 0 {
			url = fmt.Sprintf("%s?labels=%s", url, joinLabels(req.LabelFilter))
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			errs <- err
			return
		}
		var resp *http.Response
		err = resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
			var doErr error
			resp, doErr = p.client.Do(httpReq)
			return doErr
		})
		if err != nil {
			errs <- fmt.Errorf("platform provider: read-all request: %w", err)
			return
		}
		defer resp.Body.Close()

		var payload any
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			errs <- fmt.Errorf("platform provider: decode response: %w", err)
			return
		}
		records, err := jsonpath.Get(p.cfg.RecordsPath, payload)
		if err != nil {
			errs <- fmt.Errorf("platform provider: jsonpath %s: %w", p.cfg.RecordsPath, err)
			return
		}
		list, _ := records.([]any)

		for _, rec := range list {
			m, ok := rec.(map[string]any)
			if !ok {
				continue
			}
			id := fmt.Sprint(m["id"])
			props, _ := m["properties"].(map[string]any)
			label := p.cfg.Label
			if labels, ok := m["labels"].([]any); ok && len(labels) > 0 {
				if s, ok := labels[0].(string); ok {
					label = s
				}
			}
			el := model.Element{Kind: model.ElementNode, ID: id, Labels: []string{label}, Properties: props}
			if len(filter) > 0 && !filter[label] {
				continue
			}
			select {
			case inserts <- Insert{Element: el}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		results <- Result{}
	}()

	return inserts, results, errs
}

func joinLabels(labels []string) string {
	out := ""
	for i, l := range labels {
		if i > 0 {
			out += ","
		}
		out += l
	}
	return out
}
