package parsing

import (
	"eventlink-go/core/event"
)

type issueChangedPayload struct {
	ProjectKey string `json:"projectKey"`
	Issues     []struct {
		IssueKey   string       `json:"issueKey"`
		BranchName string       `json:"branchName"`
		Impacts    []wireImpact `json:"impacts"`
	} `json:"issues"`
	Resolved     *bool   `json:"resolved"`
	UserSeverity *string `json:"userSeverity"`
	UserType     *string `json:"userType"`
}

// ParseIssueChanged parses an IssueChanged payload. The event must name a project,
// at least one issue and at least one change.
func ParseIssueChanged(data []byte) (event.ServerEvent, error) {
	var p issueChangedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.ProjectKey == "" {
		return nil, missing("projectKey")
	}
	if len(p.Issues) == 0 {
		return nil, missing("issues")
	}

	changed := p.Resolved != nil || p.UserSeverity != nil || p.UserType != nil
	issues := make([]event.ChangedIssue, len(p.Issues))
	for i, is := range p.Issues {
		if is.IssueKey == "" {
			return nil, missing("issueKey")
		}
		impacts, err := toImpacts(is.Impacts)
		if err != nil {
			return nil, err
		}
		if len(impacts) > 0 {
			changed = true
		}
		issues[i] = event.ChangedIssue{
			IssueKey:   is.IssueKey,
			BranchName: is.BranchName,
			Impacts:    impacts,
		}
	}
	if !changed {
		return nil, missing("change")
	}

	var severity *event.IssueSeverity
	if p.UserSeverity != nil {
		s, ok := issueSeverities[*p.UserSeverity]
		if !ok {
			return nil, invalid("userSeverity", *p.UserSeverity)
		}
		severity = &s
	}
	var ruleType *event.RuleType
	if p.UserType != nil {
		t, ok := ruleTypes[*p.UserType]
		if !ok {
			return nil, invalid("userType", *p.UserType)
		}
		ruleType = &t
	}

	return event.NewIssueChanged(p.ProjectKey, issues, p.Resolved, severity, ruleType), nil
}
