package event

import (
	"fmt"
	"time"
)

// Kind identifies a server event variant. It is decided once at parse time and
// used as the dispatch key.
type Kind int

const (
	KindIssueChanged Kind = iota + 1
	KindTaintVulnerabilityRaised
	KindTaintVulnerabilityClosed
	KindSecurityHotspotRaised
	KindSecurityHotspotChanged
	KindSecurityHotspotClosed
	KindSmartNotification
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindIssueChanged:
		return "IssueChanged"
	case KindTaintVulnerabilityRaised:
		return "TaintVulnerabilityRaised"
	case KindTaintVulnerabilityClosed:
		return "TaintVulnerabilityClosed"
	case KindSecurityHotspotRaised:
		return "SecurityHotspotRaised"
	case KindSecurityHotspotChanged:
		return "SecurityHotspotChanged"
	case KindSecurityHotspotClosed:
		return "SecurityHotspotClosed"
	case KindSmartNotification:
		return "SmartNotification"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// ServerEvent is a parsed change pushed by the remote service.
// It never carries the raw wire payload.
type ServerEvent interface {
	Event
	// Kind returns the variant tag of the event
	Kind() Kind
	// ProjectKey returns the remote project the event belongs to
	ProjectKey() string
}

// IssueSeverity is the legacy severity of an issue.
type IssueSeverity string

const (
	SeverityBlocker  IssueSeverity = "BLOCKER"
	SeverityCritical IssueSeverity = "CRITICAL"
	SeverityMajor    IssueSeverity = "MAJOR"
	SeverityMinor    IssueSeverity = "MINOR"
	SeverityInfo     IssueSeverity = "INFO"
)

// RuleType is the legacy type of a rule.
type RuleType string

const (
	RuleTypeBug             RuleType = "BUG"
	RuleTypeVulnerability   RuleType = "VULNERABILITY"
	RuleTypeCodeSmell       RuleType = "CODE_SMELL"
	RuleTypeSecurityHotspot RuleType = "SECURITY_HOTSPOT"
)

// SoftwareQuality is the quality dimension an impact applies to.
type SoftwareQuality string

const (
	QualityMaintainability SoftwareQuality = "MAINTAINABILITY"
	QualityReliability     SoftwareQuality = "RELIABILITY"
	QualitySecurity        SoftwareQuality = "SECURITY"
)

// ImpactSeverity is the severity of an impact on a software quality.
type ImpactSeverity string

const (
	ImpactInfo    ImpactSeverity = "INFO"
	ImpactLow     ImpactSeverity = "LOW"
	ImpactMedium  ImpactSeverity = "MEDIUM"
	ImpactHigh    ImpactSeverity = "HIGH"
	ImpactBlocker ImpactSeverity = "BLOCKER"
)

// HotspotReviewStatus is the review status of a security hotspot.
type HotspotReviewStatus string

const (
	HotspotToReview     HotspotReviewStatus = "TO_REVIEW"
	HotspotSafe         HotspotReviewStatus = "SAFE"
	HotspotFixed        HotspotReviewStatus = "FIXED"
	HotspotAcknowledged HotspotReviewStatus = "ACKNOWLEDGED"
)

// IsResolved reports whether the hotspot no longer needs review.
func (s HotspotReviewStatus) IsResolved() bool {
	return s == HotspotSafe || s == HotspotFixed
}

// VulnerabilityProbability is the likelihood that a hotspot is a real vulnerability.
type VulnerabilityProbability string

const (
	ProbabilityHigh   VulnerabilityProbability = "HIGH"
	ProbabilityMedium VulnerabilityProbability = "MEDIUM"
	ProbabilityLow    VulnerabilityProbability = "LOW"
)

// TextRange locates a span of text in a file, with a hash of its content.
type TextRange struct {
	StartLine       int
	StartLineOffset int
	EndLine         int
	EndLineOffset   int
	Hash            string
}

// Location is a file position with an explanatory message.
type Location struct {
	FilePath  string
	Message   string
	TextRange *TextRange
}

// Flow is an ordered list of secondary locations.
type Flow struct {
	Locations []Location
}

// Impacts maps software qualities to their impact severity.
type Impacts map[SoftwareQuality]ImpactSeverity

// IssueChanged is pushed when issues are resolved/reopened or their severity/type/impacts change.
type IssueChanged struct {
	projectKey   string
	Issues       []ChangedIssue
	Resolved     *bool
	UserSeverity *IssueSeverity
	UserType     *RuleType
}

// ChangedIssue identifies one issue affected by an IssueChanged event.
type ChangedIssue struct {
	IssueKey   string
	BranchName string
	Impacts    Impacts
}

func NewIssueChanged(projectKey string, issues []ChangedIssue, resolved *bool, userSeverity *IssueSeverity, userType *RuleType) *IssueChanged {
	return &IssueChanged{
		projectKey:   projectKey,
		Issues:       issues,
		Resolved:     resolved,
		UserSeverity: userSeverity,
		UserType:     userType,
	}
}

func (e *IssueChanged) EventName() string  { return "IssueChanged" }
func (e *IssueChanged) Kind() Kind         { return KindIssueChanged }
func (e *IssueChanged) ProjectKey() string { return e.projectKey }

// TaintVulnerabilityRaised is pushed when a new taint vulnerability is detected on a branch.
type TaintVulnerabilityRaised struct {
	projectKey                string
	Key                       string
	BranchName                string
	CreationDate              time.Time
	RuleKey                   string
	Severity                  IssueSeverity
	Type                      RuleType
	CleanCodeAttribute        string
	Impacts                   Impacts
	MainLocation              Location
	Flows                     []Flow
	RuleDescriptionContextKey string
}

func NewTaintVulnerabilityRaised(projectKey, key string) *TaintVulnerabilityRaised {
	return &TaintVulnerabilityRaised{projectKey: projectKey, Key: key}
}

func (e *TaintVulnerabilityRaised) EventName() string  { return "TaintVulnerabilityRaised" }
func (e *TaintVulnerabilityRaised) Kind() Kind         { return KindTaintVulnerabilityRaised }
func (e *TaintVulnerabilityRaised) ProjectKey() string { return e.projectKey }

// TaintVulnerabilityClosed is pushed when a taint vulnerability disappears.
type TaintVulnerabilityClosed struct {
	projectKey    string
	TaintIssueKey string
}

func NewTaintVulnerabilityClosed(projectKey, taintIssueKey string) *TaintVulnerabilityClosed {
	return &TaintVulnerabilityClosed{projectKey: projectKey, TaintIssueKey: taintIssueKey}
}

func (e *TaintVulnerabilityClosed) EventName() string  { return "TaintVulnerabilityClosed" }
func (e *TaintVulnerabilityClosed) Kind() Kind         { return KindTaintVulnerabilityClosed }
func (e *TaintVulnerabilityClosed) ProjectKey() string { return e.projectKey }

// SecurityHotspotRaised is pushed when a new security hotspot is detected on a branch.
type SecurityHotspotRaised struct {
	projectKey               string
	Key                      string
	BranchName               string
	Status                   HotspotReviewStatus
	VulnerabilityProbability VulnerabilityProbability
	CreationDate             time.Time
	RuleKey                  string
	MainLocation             Location
}

func NewSecurityHotspotRaised(projectKey, key string) *SecurityHotspotRaised {
	return &SecurityHotspotRaised{projectKey: projectKey, Key: key}
}

func (e *SecurityHotspotRaised) EventName() string  { return "SecurityHotspotRaised" }
func (e *SecurityHotspotRaised) Kind() Kind         { return KindSecurityHotspotRaised }
func (e *SecurityHotspotRaised) ProjectKey() string { return e.projectKey }

// SecurityHotspotChanged is pushed when a hotspot is reviewed or reassigned.
type SecurityHotspotChanged struct {
	projectKey string
	Key        string
	UpdateDate time.Time
	Status     *HotspotReviewStatus
	Assignee   string
	FilePath   string
}

func NewSecurityHotspotChanged(projectKey, key string) *SecurityHotspotChanged {
	return &SecurityHotspotChanged{projectKey: projectKey, Key: key}
}

func (e *SecurityHotspotChanged) EventName() string  { return "SecurityHotspotChanged" }
func (e *SecurityHotspotChanged) Kind() Kind         { return KindSecurityHotspotChanged }
func (e *SecurityHotspotChanged) ProjectKey() string { return e.projectKey }

// SecurityHotspotClosed is pushed when a hotspot disappears.
type SecurityHotspotClosed struct {
	projectKey string
	Key        string
	FilePath   string
}

func NewSecurityHotspotClosed(projectKey, key, filePath string) *SecurityHotspotClosed {
	return &SecurityHotspotClosed{projectKey: projectKey, Key: key, FilePath: filePath}
}

func (e *SecurityHotspotClosed) EventName() string  { return "SecurityHotspotClosed" }
func (e *SecurityHotspotClosed) Kind() Kind         { return KindSecurityHotspotClosed }
func (e *SecurityHotspotClosed) ProjectKey() string { return e.projectKey }

// Notification categories carried by SmartNotification.
const (
	CategoryQualityGate = "QUALITY_GATE"
	CategoryNewIssues   = "NEW_ISSUES"
)

// SmartNotification is pushed for quality gate changes and new issues assigned to the user.
type SmartNotification struct {
	projectKey string
	Category   string
	Message    string
	Link       string
	Date       time.Time
}

func NewSmartNotification(category, projectKey, message, link string, date time.Time) *SmartNotification {
	return &SmartNotification{
		projectKey: projectKey,
		Category:   category,
		Message:    message,
		Link:       link,
		Date:       date,
	}
}

func (e *SmartNotification) EventName() string  { return "SmartNotification" }
func (e *SmartNotification) Kind() Kind         { return KindSmartNotification }
func (e *SmartNotification) ProjectKey() string { return e.projectKey }
