// Package command defines the commands queued to a streaming session.
// Commands represent intentions of the subscription registry and are
// processed serially by the session actor.
package command

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Command is the base interface for all commands.
type Command interface {
	// CommandName returns the name of the command for logging/debugging
	CommandName() string
}

// FrameCommand is a command that is written to the wire as one or more text frames.
type FrameCommand interface {
	Command
	// Frames renders the outbound control frames, in send order
	Frames() ([]string, error)
}

// Filter types understood by the remote service.
const (
	FilterProject     = "PROJECT"
	FilterProjectUser = "PROJECT_USER"
)

// EventFilter groups the event tags subscribed under one filter type.
type EventFilter struct {
	FilterType string
	Events     []string
}

// controlFrame is the JSON body of a subscribe/unsubscribe frame.
type controlFrame struct {
	Action     string   `json:"action"`
	Events     []string `json:"events"`
	FilterType string   `json:"filterType"`
	Project    string   `json:"project"`
}

func renderControlFrames(action, projectKey string, filters []EventFilter) ([]string, error) {
	frames := make([]string, 0, len(filters))
	for _, f := range filters {
		if len(f.Events) == 0 {
			continue
		}
		b, err := json.Marshal(controlFrame{
			Action:     action,
			Events:     f.Events,
			FilterType: f.FilterType,
			Project:    projectKey,
		})
		if err != nil {
			return nil, fmt.Errorf("render %s frame for %s: %w", action, projectKey, err)
		}
		frames = append(frames, string(b))
	}
	return frames, nil
}
