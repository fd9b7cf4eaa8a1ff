package model

import "fmt"

// ComponentKind is one of the three pluggable component families.
type ComponentKind string

const (
	KindSource   ComponentKind = "source"
	KindQuery    ComponentKind = "query"
	KindReaction ComponentKind = "reaction"
)

// QueryLanguage selects the dialect query_text is parsed as.
type QueryLanguage string

const (
	LangCypher QueryLanguage = "Cypher"
	LangGQL    QueryLanguage = "GQL"
)

// JoinKey names one (label, property) pair participating in a synthetic join.
type JoinKey struct {
	Label    string `yaml:"label" json:"label"`
	Property string `yaml:"property" json:"property"`
}

// JoinSpec declares that nodes of the listed labels are linked by equality
// on the named property (spec §3.1).
type JoinSpec struct {
	ID   string    `yaml:"id" json:"id"`
	Keys []JoinKey `yaml:"keys" json:"keys"`
}

// SourceSpec is the declarative configuration of one source component.
type SourceSpec struct {
	ID                string         `yaml:"id" json:"id"`
	Kind              string         `yaml:"kind" json:"kind"`
	AutoStart         *bool          `yaml:"auto_start,omitempty" json:"auto_start,omitempty"`
	BootstrapProvider string         `yaml:"bootstrap_provider,omitempty" json:"bootstrap_provider,omitempty"`
	Properties        map[string]any `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// AutoStartResolved exposes the resolved (defaulted true) auto_start flag.
func (s SourceSpec) AutoStartResolved() bool {
	if s.AutoStart == nil {
		return true
	}
	return *s.AutoStart
}

// QuerySpec is the declarative configuration of one query component.
type QuerySpec struct {
	ID                    string         `yaml:"id" json:"id"`
	QueryText             string         `yaml:"query_text" json:"query_text"`
	QueryLanguage         QueryLanguage  `yaml:"query_language,omitempty" json:"query_language,omitempty"`
	Sources               []string       `yaml:"sources" json:"sources"`
	Joins                 []JoinSpec     `yaml:"joins,omitempty" json:"joins,omitempty"`
	EnableBootstrap       *bool          `yaml:"enable_bootstrap,omitempty" json:"enable_bootstrap,omitempty"`
	BootstrapBufferSize   *int           `yaml:"bootstrap_buffer_size,omitempty" json:"bootstrap_buffer_size,omitempty"`
	PriorityQueueCapacity int            `yaml:"priority_queue_capacity,omitempty" json:"priority_queue_capacity,omitempty"`
	AutoStart             *bool          `yaml:"auto_start,omitempty" json:"auto_start,omitempty"`
	Properties            map[string]any `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// AutoStartResolved exposes the resolved (defaulted true) auto_start flag.
func (q QuerySpec) AutoStartResolved() bool {
	if q.AutoStart == nil {
		return true
	}
	return *q.AutoStart
}

// EnableBootstrapResolved exposes the resolved (defaulted true) enable_bootstrap flag.
func (q QuerySpec) EnableBootstrapResolved() bool {
	if q.EnableBootstrap == nil {
		return true
	}
	return *q.EnableBootstrap
}

// LanguageResolved exposes the resolved (defaulted Cypher) query language.
func (q QuerySpec) LanguageResolved() QueryLanguage {
	if q.QueryLanguage == "" {
		return LangCypher
	}
	return q.QueryLanguage
}

// DefaultBootstrapBufferSize is the bootstrap insert channel capacity used
// when bootstrap_buffer_size is left unset (spec §8).
const DefaultBootstrapBufferSize = 10000

// BootstrapBufferSizeResolved exposes the resolved bootstrap_buffer_size,
// defaulting to DefaultBootstrapBufferSize when unset. A value of exactly
// 0 is a distinct, explicit configuration and is rejected by Validate
// rather than silently treated as unset.
func (q QuerySpec) BootstrapBufferSizeResolved() int {
	if q.BootstrapBufferSize == nil {
		return DefaultBootstrapBufferSize
	}
	return *q.BootstrapBufferSize
}

// ReactionSpec is the declarative configuration of one reaction component.
type ReactionSpec struct {
	ID                    string         `yaml:"id" json:"id"`
	Kind                  string         `yaml:"kind" json:"kind"`
	Queries               []string       `yaml:"queries" json:"queries"`
	AutoStart             *bool          `yaml:"auto_start,omitempty" json:"auto_start,omitempty"`
	PriorityQueueCapacity int            `yaml:"priority_queue_capacity,omitempty" json:"priority_queue_capacity,omitempty"`
	Properties            map[string]any `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// AutoStartResolved exposes the resolved (defaulted true) auto_start flag.
func (r ReactionSpec) AutoStartResolved() bool {
	if r.AutoStart == nil {
		return true
	}
	return *r.AutoStart
}

// ComponentState is one of the five states in spec §3.2.
type ComponentState string

const (
	StateStopped  ComponentState = "Stopped"
	StateStarting ComponentState = "Starting"
	StateRunning  ComponentState = "Running"
	StateStopping ComponentState = "Stopping"
	StateFailed   ComponentState = "Failed"
)

// ValidTransition reports whether moving from `from` to `to` is permitted.
func ValidTransition(from, to ComponentState) bool {
	switch from {
	case StateStopped:
		return to == StateStarting || to == StateFailed
	case StateStarting:
		return to == StateRunning || to == StateFailed || to == StateStopping
	case StateRunning:
		return to == StateStopping || to == StateFailed
	case StateStopping:
		return to == StateStopped || to == StateFailed
	case StateFailed:
		return to == StateStarting
	default:
		return false
	}
}

func (k ComponentKind) String() string { return string(k) }

// ValidateID checks the non-empty-id invariant shared by all component kinds.
func ValidateID(kind ComponentKind, id string) error {
	if id == "" {
		return fmt.Errorf("%s id must not be empty", kind)
	}
	return nil
}
