package bootstrap

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

func init() {
	Register("scriptfile", newScriptfileProvider)
}

// ScriptfileConfig is the scriptfile provider's configuration, read from
// the owning source's declarative properties.
type ScriptfileConfig struct {
	Paths []string // one or more JSONL files, read in order
}

// scriptRecord is one line of a scriptfile JSONL document. Header must be
// the first record of the first file; Finish, if present, is the last
// record of the last file.
type scriptRecord struct {
	Type       string         `json:"type"` // "header" | "node" | "relation" | "finish"
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	FromNodeID string         `json:"from_node_id"`
	ToNodeID   string         `json:"to_node_id"`
	Properties map[string]any `json:"properties"`
}

// scriptfileProvider replays a sequence of JSONL files as bootstrap insert
// events. It carries no coordination watermark: the scriptfile provider is
// a start-of-stream snapshot only (spec §4.3 table).
type scriptfileProvider struct {
	cfg ScriptfileConfig
}

func newScriptfileProvider(properties map[string]any) (Provider, error) {
	var cfg ScriptfileConfig
	switch v := properties["paths"].(type) {
	case []string:
		cfg.Paths = v
	case []any:
		for _, p := range v {
			if s, ok := p.(string); ok {
				cfg.Paths = append(cfg.Paths, s)
			}
		}
	}
	if v, ok := properties["path"].(string); ok && v != "" {
		cfg.Paths = append(cfg.Paths, v)
	}
	if len(cfg.Paths) == 0 {
		return nil, fmt.Errorf("scriptfile provider: at least one path is required")
	}
	return &scriptfileProvider{cfg: cfg}, nil
}

func (p *scriptfileProvider) Stream(ctx context.Context, req Request) (<-chan Insert, <-chan Result, <-chan error) {
	inserts := make(chan Insert)
	results := make(chan Result, 1)
	errs := make(chan error, 1)
	filter := toFilterSet(req.LabelFilter)

	go func() {
		defer close(inserts)
		defer close(results)
		defer close(errs)

		sawHeader := false
		for _, path := range p.cfg.Paths {
			if err := p.streamFile(ctx, path, filter, inserts, &sawHeader); err != nil {
				errs <- err
				return
			}
		}
		if !sawHeader {
			errs <- fmt.Errorf("scriptfile provider: no Header record found")
			return
		}
		results <- Result{}
	}()

	return inserts, results, errs
}

func (p *scriptfileProvider) streamFile(ctx context.Context, path string, filter map[string]bool, inserts chan<- Insert, sawHeader *bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("scriptfile provider: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var rec scriptRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return fmt.Errorf("scriptfile provider: %s:%d: %w", path, lineNum, err)
		}

		switch rec.Type {
		case "header":
			*sawHeader = true
		case "node", "relation":
			el := model.Element{
				Kind:       model.ElementNode,
				ID:         rec.ID,
				Labels:     rec.Labels,
				Properties: rec.Properties,
				FromNodeID: rec.FromNodeID,
				ToNodeID:   rec.ToNodeID,
			}
			if rec.Type == "relation" {
				el.Kind = model.ElementRelation
			}
			if !matchesLabelFilter(el, filter) {
				continue
			}
			select {
			case inserts <- Insert{Element: el}:
			case <-ctx.Done():
				return ctx.Err()
			}
		case "finish":
			return nil
		default:
			return fmt.Errorf("scriptfile provider: %s:%d: unknown record type %q", path, lineNum, rec.Type)
		}
	}
	return scanner.Err()
}

func toFilterSet(labels []string) map[string]bool {
	if len(labels) == 0 {
		return nil
	}
	set := make(map[string]bool, len(labels))
	for _, l := range labels {
		set[l] = true
	}
	return set
}

func matchesLabelFilter(el model.Element, filter map[string]bool) bool {
	if len(filter) == 0 {
		return true
	}
	for _, l := range el.Labels {
		if filter[l] {
			return true
		}
	}
	return false
}
