package config

import (
	"fmt"
	"net"
	"regexp"

	"github.com/ruokun-niu/drasi-server/internal/model"
	"github.com/ruokun-niu/drasi-server/internal/reaction"
	"github.com/ruokun-niu/drasi-server/internal/source"
)

// rfc1123LabelRe matches one RFC 1123 hostname label.
var rfc1123LabelRe = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// Validate checks every rule from spec §4.5/§9: unique ids per kind, known
// kind tags, a resolvable host/port, non-empty query text, and that every
// subscription (query->source, reaction->query) names a component that
// exists in the same document.
func Validate(doc *Document) error {
	if err := validateServer(doc.Server); err != nil {
		return err
	}

	sourceIDs := make(map[string]bool, len(doc.Sources))
	for _, s := range doc.Sources {
		if err := model.ValidateID(model.KindSource, s.ID); err != nil {
			return model.Wrap(model.ErrConfigValidate, "source", err)
		}
		if sourceIDs[s.ID] {
			return model.NewError(model.ErrConfigValidate, "duplicate source id "+s.ID)
		}
		sourceIDs[s.ID] = true
		if !source.KnownKind(s.Kind) {
			return model.NewError(model.ErrConfigValidate, "source "+s.ID+": unknown kind "+s.Kind)
		}
	}

	queryIDs := make(map[string]bool, len(doc.Queries))
	for _, q := range doc.Queries {
		if err := model.ValidateID(model.KindQuery, q.ID); err != nil {
			return model.Wrap(model.ErrConfigValidate, "query", err)
		}
		if queryIDs[q.ID] {
			return model.NewError(model.ErrConfigValidate, "duplicate query id "+q.ID)
		}
		queryIDs[q.ID] = true
		if q.QueryText == "" {
			return model.NewError(model.ErrConfigValidate, "query "+q.ID+": query_text must not be empty")
		}
		if len(q.Sources) == 0 {
			return model.NewError(model.ErrConfigValidate, "query "+q.ID+": must name at least one source")
		}
		if q.BootstrapBufferSize != nil && *q.BootstrapBufferSize == 0 {
			return model.NewError(model.ErrConfigValidate, "query "+q.ID+": bootstrap_buffer_size must not be 0")
		}
		for _, sid := range q.Sources {
			if !sourceIDs[sid] {
				return model.NewError(model.ErrConfigValidate, "query "+q.ID+": unknown source "+sid)
			}
		}
	}

	reactionIDs := make(map[string]bool, len(doc.Reactions))
	for _, r := range doc.Reactions {
		if err := model.ValidateID(model.KindReaction, r.ID); err != nil {
			return model.Wrap(model.ErrConfigValidate, "reaction", err)
		}
		if reactionIDs[r.ID] {
			return model.NewError(model.ErrConfigValidate, "duplicate reaction id "+r.ID)
		}
		reactionIDs[r.ID] = true
		if !reaction.KnownKind(r.Kind) {
			return model.NewError(model.ErrConfigValidate, "reaction "+r.ID+": unknown kind "+r.Kind)
		}
		if len(r.Queries) == 0 {
			return model.NewError(model.ErrConfigValidate, "reaction "+r.ID+": must name at least one query")
		}
		for _, qid := range r.Queries {
			if !queryIDs[qid] {
				return model.NewError(model.ErrConfigValidate, "reaction "+r.ID+": unknown query "+qid)
			}
		}
	}

	return nil
}

func validateServer(s ServerSettings) error {
	if s.Port < 1 || s.Port > 65535 {
		return model.NewError(model.ErrConfigValidate, fmt.Sprintf("server port %d out of range 1-65535", s.Port))
	}
	if !validHost(s.Host) {
		return model.NewError(model.ErrConfigValidate, "invalid server host "+s.Host)
	}
	return nil
}

// validHost accepts "*", "localhost", any parseable IP, or an RFC 1123
// hostname.
func validHost(host string) bool {
	if host == "*" || host == "localhost" {
		return true
	}
	if net.ParseIP(host) != nil {
		return true
	}
	if len(host) == 0 || len(host) > 253 {
		return false
	}
	for _, label := range splitDots(host) {
		if !rfc1123LabelRe.MatchString(label) {
			return false
		}
	}
	return true
}

func splitDots(s string) []string {
	var out []string
	start := 0
	for i, c := range s {
		if c == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
