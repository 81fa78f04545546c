package findings

import (
	"testing"

	"eventlink-go/core/event"
)

func TestIssueUpdate_Apply(t *testing.T) {
	resolved := true
	sev := event.SeverityBlocker
	typ := event.RuleTypeBug

	tests := []struct {
		name   string
		update IssueUpdate
		check  func(t *testing.T, is *Issue)
	}{
		{
			name:   "resolved",
			update: IssueUpdate{Resolved: &resolved},
			check: func(t *testing.T, is *Issue) {
				if !is.Resolved {
					t.Error("Resolved = false, want true")
				}
				if is.Severity != event.SeverityMinor {
					t.Errorf("Severity = %v, want unchanged MINOR", is.Severity)
				}
			},
		},
		{
			name:   "severity and type",
			update: IssueUpdate{Severity: &sev, Type: &typ},
			check: func(t *testing.T, is *Issue) {
				if is.Severity != event.SeverityBlocker || is.Type != event.RuleTypeBug {
					t.Errorf("Severity/Type = %v/%v", is.Severity, is.Type)
				}
			},
		},
		{
			name:   "impacts merged",
			update: IssueUpdate{Impacts: event.Impacts{event.QualitySecurity: event.ImpactHigh}},
			check: func(t *testing.T, is *Issue) {
				if is.Impacts[event.QualitySecurity] != event.ImpactHigh {
					t.Errorf("Impacts[SECURITY] = %v, want HIGH", is.Impacts[event.QualitySecurity])
				}
				if is.Impacts[event.QualityReliability] != event.ImpactLow {
					t.Errorf("Impacts[RELIABILITY] = %v, want LOW", is.Impacts[event.QualityReliability])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := &Issue{
				Key:      "k",
				Severity: event.SeverityMinor,
				Type:     event.RuleTypeCodeSmell,
				Impacts:  event.Impacts{event.QualityReliability: event.ImpactLow},
			}
			if tt.update.IsEmpty() {
				t.Fatal("IsEmpty() = true, want false")
			}
			tt.update.Apply(is)
			tt.check(t, is)
		})
	}

	if empty := (IssueUpdate{}); !empty.IsEmpty() {
		t.Error("IsEmpty() on zero update = false, want true")
	}
}

func TestHotspotUpdate_Apply(t *testing.T) {
	safe := event.HotspotSafe
	h := &Hotspot{Status: event.HotspotToReview, Assignee: "alice"}

	(&HotspotUpdate{Status: &safe}).Apply(h)
	if h.Status != event.HotspotSafe || h.Assignee != "alice" {
		t.Errorf("after status update = %+v", h)
	}

	(&HotspotUpdate{Assignee: "bob"}).Apply(h)
	if h.Status != event.HotspotSafe || h.Assignee != "bob" {
		t.Errorf("after assignee update = %+v", h)
	}
}
