package parsing

import (
	"eventlink-go/core/event"
)

type taintRaisedPayload struct {
	Key                       string        `json:"key"`
	ProjectKey                string        `json:"projectKey"`
	Branch                    string        `json:"branch"`
	CreationDate              *int64        `json:"creationDate"`
	RuleKey                   string        `json:"ruleKey"`
	Severity                  string        `json:"severity"`
	Type                      string        `json:"type"`
	CleanCodeAttribute        string        `json:"cleanCodeAttribute"`
	Impacts                   []wireImpact  `json:"impacts"`
	MainLocation              *wireLocation `json:"mainLocation"`
	Flows                     []wireFlow    `json:"flows"`
	RuleDescriptionContextKey string        `json:"ruleDescriptionContextKey"`
}

// ParseTaintVulnerabilityRaised parses a TaintVulnerabilityRaised payload.
func ParseTaintVulnerabilityRaised(data []byte) (event.ServerEvent, error) {
	var p taintRaisedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}

	switch {
	case p.Key == "":
		return nil, missing("key")
	case p.ProjectKey == "":
		return nil, missing("projectKey")
	case p.Branch == "":
		return nil, missing("branch")
	case p.CreationDate == nil:
		return nil, missing("creationDate")
	case p.RuleKey == "":
		return nil, missing("ruleKey")
	case p.MainLocation == nil:
		return nil, missing("mainLocation")
	}

	severity, ok := issueSeverities[p.Severity]
	if !ok {
		return nil, invalid("severity", p.Severity)
	}
	ruleType, ok := ruleTypes[p.Type]
	if !ok {
		return nil, invalid("type", p.Type)
	}
	impacts, err := toImpacts(p.Impacts)
	if err != nil {
		return nil, err
	}

	e := event.NewTaintVulnerabilityRaised(p.ProjectKey, p.Key)
	e.BranchName = p.Branch
	e.CreationDate = fromEpochMillis(*p.CreationDate)
	e.RuleKey = p.RuleKey
	e.Severity = severity
	e.Type = ruleType
	e.CleanCodeAttribute = p.CleanCodeAttribute
	e.Impacts = impacts
	e.MainLocation = p.MainLocation.toLocation()
	e.Flows = toFlows(p.Flows)
	e.RuleDescriptionContextKey = p.RuleDescriptionContextKey
	return e, nil
}

type taintClosedPayload struct {
	ProjectKey string `json:"projectKey"`
	Key        string `json:"key"`
}

// ParseTaintVulnerabilityClosed parses a TaintVulnerabilityClosed payload.
func ParseTaintVulnerabilityClosed(data []byte) (event.ServerEvent, error) {
	var p taintClosedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.ProjectKey == "" {
		return nil, missing("projectKey")
	}
	if p.Key == "" {
		return nil, missing("key")
	}
	return event.NewTaintVulnerabilityClosed(p.ProjectKey, p.Key), nil
}
