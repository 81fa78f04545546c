package parsing

import (
	"eventlink-go/core/event"
)

// Wire review statuses. A REVIEWED hotspot carries its outcome in resolution.
const (
	wireStatusToReview = "TO_REVIEW"
	wireStatusReviewed = "REVIEWED"
)

var hotspotResolutions = map[string]event.HotspotReviewStatus{
	"SAFE":         event.HotspotSafe,
	"FIXED":        event.HotspotFixed,
	"ACKNOWLEDGED": event.HotspotAcknowledged,
}

func toReviewStatus(status, resolution string) (event.HotspotReviewStatus, error) {
	switch status {
	case wireStatusToReview:
		return event.HotspotToReview, nil
	case wireStatusReviewed:
		s, ok := hotspotResolutions[resolution]
		if !ok {
			if resolution == "" {
				return "", missing("resolution")
			}
			return "", invalid("resolution", resolution)
		}
		return s, nil
	case "":
		return "", missing("status")
	default:
		return "", invalid("status", status)
	}
}

type hotspotRaisedPayload struct {
	Key                      string        `json:"key"`
	ProjectKey               string        `json:"projectKey"`
	Branch                   string        `json:"branch"`
	Status                   string        `json:"status"`
	Resolution               string        `json:"resolution"`
	VulnerabilityProbability string        `json:"vulnerabilityProbability"`
	CreationDate             *int64        `json:"creationDate"`
	RuleKey                  string        `json:"ruleKey"`
	MainLocation             *wireLocation `json:"mainLocation"`
}

// ParseSecurityHotspotRaised parses a SecurityHotspotRaised payload.
func ParseSecurityHotspotRaised(data []byte) (event.ServerEvent, error) {
	var p hotspotRaisedPayload
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

	status, err := toReviewStatus(p.Status, p.Resolution)
	if err != nil {
		return nil, err
	}
	probability, ok := vulnerabilityProbabilities[p.VulnerabilityProbability]
	if !ok {
		return nil, invalid("vulnerabilityProbability", p.VulnerabilityProbability)
	}

	e := event.NewSecurityHotspotRaised(p.ProjectKey, p.Key)
	e.BranchName = p.Branch
	e.Status = status
	e.VulnerabilityProbability = probability
	e.CreationDate = fromEpochMillis(*p.CreationDate)
	e.RuleKey = p.RuleKey
	e.MainLocation = p.MainLocation.toLocation()
	return e, nil
}

type hotspotChangedPayload struct {
	Key        string `json:"key"`
	ProjectKey string `json:"projectKey"`
	UpdateDate int64  `json:"updateDate"`
	Status     string `json:"status"`
	Resolution string `json:"resolution"`
	Assignee   string `json:"assignee"`
	FilePath   string `json:"filePath"`
}

// ParseSecurityHotspotChanged parses a SecurityHotspotChanged payload. A status-less
// payload is a reassignment and leaves Status nil.
func ParseSecurityHotspotChanged(data []byte) (event.ServerEvent, error) {
	var p hotspotChangedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}

	switch {
	case p.Key == "":
		return nil, missing("key")
	case p.ProjectKey == "":
		return nil, missing("projectKey")
	case p.FilePath == "":
		return nil, missing("filePath")
	}

	e := event.NewSecurityHotspotChanged(p.ProjectKey, p.Key)
	if p.Status != "" {
		status, err := toReviewStatus(p.Status, p.Resolution)
		if err != nil {
			return nil, err
		}
		e.Status = &status
	}
	if p.UpdateDate > 0 {
		e.UpdateDate = fromEpochMillis(p.UpdateDate)
	}
	e.Assignee = p.Assignee
	e.FilePath = p.FilePath
	return e, nil
}

type hotspotClosedPayload struct {
	Key        string `json:"key"`
	ProjectKey string `json:"projectKey"`
	FilePath   string `json:"filePath"`
}

// ParseSecurityHotspotClosed parses a SecurityHotspotClosed payload.
func ParseSecurityHotspotClosed(data []byte) (event.ServerEvent, error) {
	var p hotspotClosedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.Key == "" {
		return nil, missing("key")
	}
	if p.ProjectKey == "" {
		return nil, missing("projectKey")
	}
	return event.NewSecurityHotspotClosed(p.ProjectKey, p.Key, p.FilePath), nil
}
