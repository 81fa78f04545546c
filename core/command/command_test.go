package command

import (
	"reflect"
	"testing"
)

func TestCommand_Names(t *testing.T) {
	tests := []struct {
		cmd      Command
		expected string
	}{
		{NewSubscribe("p", nil), "Subscribe"},
		{NewUnsubscribe("p", nil), "Unsubscribe"},
		{&KeepAlive{}, "KeepAlive"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.cmd.CommandName(); got != tt.expected {
				t.Errorf("CommandName() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestFrameCommand_Frames(t *testing.T) {
	filters := []EventFilter{
		{FilterType: FilterProject, Events: []string{"IssueChanged", "QualityGateChanged"}},
		{FilterType: FilterProjectUser, Events: []string{"MyNewIssues"}},
	}

	tests := []struct {
		name     string
		cmd      FrameCommand
		expected []string
	}{
		{
			name: "subscribe",
			cmd:  NewSubscribe("projX", filters),
			expected: []string{
				`{"action":"subscribe","events":["IssueChanged","QualityGateChanged"],"filterType":"PROJECT","project":"projX"}`,
				`{"action":"subscribe","events":["MyNewIssues"],"filterType":"PROJECT_USER","project":"projX"}`,
			},
		},
		{
			name: "unsubscribe",
			cmd:  NewUnsubscribe("projY", filters),
			expected: []string{
				`{"action":"unsubscribe","events":["IssueChanged","QualityGateChanged"],"filterType":"PROJECT","project":"projY"}`,
				`{"action":"unsubscribe","events":["MyNewIssues"],"filterType":"PROJECT_USER","project":"projY"}`,
			},
		},
		{
			name:     "empty filter skipped",
			cmd:      NewSubscribe("projZ", []EventFilter{{FilterType: FilterProjectUser}}),
			expected: []string{},
		},
		{
			name:     "keep alive",
			cmd:      &KeepAlive{},
			expected: []string{`{"action":"keep_alive","statusCode":200}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Frames()
			if err != nil {
				t.Fatalf("Frames() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Frames() = %v, want %v", got, tt.expected)
			}
		})
	}
}
