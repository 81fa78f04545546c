package parsing

import (
	"time"

	"eventlink-go/core/event"
)

// Shared wire shapes. Pointers mark fields whose absence must be detected.

type wireTextRange struct {
	StartLine       int    `json:"startLine"`
	StartLineOffset int    `json:"startLineOffset"`
	EndLine         int    `json:"endLine"`
	EndLineOffset   int    `json:"endLineOffset"`
	Hash            string `json:"hash"`
}

type wireLocation struct {
	FilePath  string         `json:"filePath"`
	Message   string         `json:"message"`
	TextRange *wireTextRange `json:"textRange"`
}

type wireFlow struct {
	Locations []wireLocation `json:"locations"`
}

type wireImpact struct {
	SoftwareQuality string `json:"softwareQuality"`
	Severity        string `json:"severity"`
}

func (l *wireLocation) toLocation() event.Location {
	loc := event.Location{FilePath: l.FilePath, Message: l.Message}
	if l.TextRange != nil {
		loc.TextRange = &event.TextRange{
			StartLine:       l.TextRange.StartLine,
			StartLineOffset: l.TextRange.StartLineOffset,
			EndLine:         l.TextRange.EndLine,
			EndLineOffset:   l.TextRange.EndLineOffset,
			Hash:            l.TextRange.Hash,
		}
	}
	return loc
}

func toFlows(flows []wireFlow) []event.Flow {
	if len(flows) == 0 {
		return nil
	}
	out := make([]event.Flow, len(flows))
	for i, f := range flows {
		locs := make([]event.Location, len(f.Locations))
		for j := range f.Locations {
			locs[j] = f.Locations[j].toLocation()
		}
		out[i] = event.Flow{Locations: locs}
	}
	return out
}

func toImpacts(impacts []wireImpact) (event.Impacts, error) {
	if len(impacts) == 0 {
		return nil, nil
	}
	out := make(event.Impacts, len(impacts))
	for _, im := range impacts {
		q, ok := softwareQualities[im.SoftwareQuality]
		if !ok {
			return nil, invalid("softwareQuality", im.SoftwareQuality)
		}
		sev, ok := impactSeverities[im.Severity]
		if !ok {
			return nil, invalid("impact severity", im.Severity)
		}
		out[q] = sev
	}
	return out, nil
}

func fromEpochMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

var issueSeverities = map[string]event.IssueSeverity{
	"BLOCKER":  event.SeverityBlocker,
	"CRITICAL": event.SeverityCritical,
	"MAJOR":    event.SeverityMajor,
	"MINOR":    event.SeverityMinor,
	"INFO":     event.SeverityInfo,
}

var ruleTypes = map[string]event.RuleType{
	"BUG":              event.RuleTypeBug,
	"VULNERABILITY":    event.RuleTypeVulnerability,
	"CODE_SMELL":       event.RuleTypeCodeSmell,
	"SECURITY_HOTSPOT": event.RuleTypeSecurityHotspot,
}

var softwareQualities = map[string]event.SoftwareQuality{
	"MAINTAINABILITY": event.QualityMaintainability,
	"RELIABILITY":     event.QualityReliability,
	"SECURITY":        event.QualitySecurity,
}

var impactSeverities = map[string]event.ImpactSeverity{
	"INFO":    event.ImpactInfo,
	"LOW":     event.ImpactLow,
	"MEDIUM":  event.ImpactMedium,
	"HIGH":    event.ImpactHigh,
	"BLOCKER": event.ImpactBlocker,
}

var vulnerabilityProbabilities = map[string]event.VulnerabilityProbability{
	"HIGH":   event.ProbabilityHigh,
	"MEDIUM": event.ProbabilityMedium,
	"LOW":    event.ProbabilityLow,
}
