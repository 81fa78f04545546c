// Package parsing turns raw streaming messages into typed server events.
package parsing

import (
	"errors"
	"fmt"
	"sort"

	jsoniter "github.com/json-iterator/go"

	"eventlink-go/core/command"
	"eventlink-go/core/event"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrMalformedMessage is returned when a raw message is not a valid envelope.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrMissingEventType is returned for an envelope without an event tag.
	ErrMissingEventType = errors.New("missing event type")
	// ErrUnknownEventType is returned when no parser is registered for a tag.
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrInvalidPayload is returned when a payload does not describe a valid event.
	ErrInvalidPayload = errors.New("invalid event payload")
)

// Parser converts a raw event payload into a server event.
// Parsers are pure and hold no state.
type Parser func(data []byte) (event.ServerEvent, error)

// Envelope is the outer shape of every inbound message.
type Envelope struct {
	Event string              `json:"event"`
	Data  jsoniter.RawMessage `json:"data"`
}

// DecodeEnvelope splits a raw message into its event tag and opaque payload.
// A missing payload is left to the event's parser to reject.
func DecodeEnvelope(raw string) (*Envelope, error) {
	var env Envelope
	if err := json.UnmarshalFromString(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.Event == "" {
		return nil, ErrMissingEventType
	}
	return &env, nil
}

type registration struct {
	filterType string
	parse      Parser
}

// Registry maps wire event tags to their parser and subscription filter type.
// It is populated at construction and read-only afterwards.
type Registry struct {
	entries map[string]registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// DefaultRegistry returns a registry holding every supported event type.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("IssueChanged", command.FilterProject, ParseIssueChanged)
	r.Register("TaintVulnerabilityRaised", command.FilterProject, ParseTaintVulnerabilityRaised)
	r.Register("TaintVulnerabilityClosed", command.FilterProject, ParseTaintVulnerabilityClosed)
	r.Register("SecurityHotspotRaised", command.FilterProject, ParseSecurityHotspotRaised)
	r.Register("SecurityHotspotChanged", command.FilterProject, ParseSecurityHotspotChanged)
	r.Register("SecurityHotspotClosed", command.FilterProject, ParseSecurityHotspotClosed)
	r.Register("QualityGateChanged", command.FilterProject, SmartNotificationParser(event.CategoryQualityGate))
	r.Register("MyNewIssues", command.FilterProjectUser, SmartNotificationParser(event.CategoryNewIssues))
	return r
}

// Register associates a tag with its parser. Registering a tag twice replaces the parser.
func (r *Registry) Register(tag, filterType string, p Parser) {
	r.entries[tag] = registration{filterType: filterType, parse: p}
}

// Parse runs the parser registered for tag.
func (r *Registry) Parse(tag string, data []byte) (event.ServerEvent, error) {
	reg, ok := r.entries[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, tag)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s has no data", ErrInvalidPayload, tag)
	}
	e, err := reg.parse(data)
	if err != nil {
		if errors.Is(err, ErrInvalidPayload) {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, tag, err)
	}
	return e, nil
}

// EventTypes returns the sorted tags subscribed under filterType.
func (r *Registry) EventTypes(filterType string) []string {
	var tags []string
	for tag, reg := range r.entries {
		if reg.filterType == filterType {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags
}

// Filters returns the subscription filters needed to receive every registered event.
func (r *Registry) Filters() []command.EventFilter {
	return []command.EventFilter{
		{FilterType: command.FilterProject, Events: r.EventTypes(command.FilterProject)},
		{FilterType: command.FilterProjectUser, Events: r.EventTypes(command.FilterProjectUser)},
	}
}

func missing(field string) error {
	return fmt.Errorf("%w: missing %s", ErrInvalidPayload, field)
}

func invalid(field, value string) error {
	return fmt.Errorf("%w: unsupported %s %q", ErrInvalidPayload, field, value)
}
