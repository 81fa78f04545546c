package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"eventlink-go/core/event"
	"eventlink-go/domain/findings"
)

// Findings documents are keyed by (connection_id, key).

type issueDocument struct {
	ConnectionID string            `bson:"connection_id"`
	ProjectKey   string            `bson:"project_key"`
	Key          string            `bson:"key"`
	BranchName   string            `bson:"branch_name"`
	Resolved     bool              `bson:"resolved"`
	Severity     string            `bson:"severity,omitempty"`
	Type         string            `bson:"type,omitempty"`
	Impacts      map[string]string `bson:"impacts,omitempty"`
}

type textRangeDocument struct {
	StartLine       int    `bson:"start_line"`
	StartLineOffset int    `bson:"start_line_offset"`
	EndLine         int    `bson:"end_line"`
	EndLineOffset   int    `bson:"end_line_offset"`
	Hash            string `bson:"hash,omitempty"`
}

type locationDocument struct {
	FilePath  string             `bson:"file_path"`
	Message   string             `bson:"message,omitempty"`
	TextRange *textRangeDocument `bson:"text_range,omitempty"`
}

type taintDocument struct {
	ConnectionID              string               `bson:"connection_id"`
	ProjectKey                string               `bson:"project_key"`
	Key                       string               `bson:"key"`
	BranchName                string               `bson:"branch_name"`
	RuleKey                   string               `bson:"rule_key"`
	Severity                  string               `bson:"severity"`
	Type                      string               `bson:"type"`
	CreationDate              time.Time            `bson:"creation_date"`
	CleanCodeAttribute        string               `bson:"clean_code_attribute,omitempty"`
	Impacts                   map[string]string    `bson:"impacts,omitempty"`
	MainLocation              locationDocument     `bson:"main_location"`
	Flows                     [][]locationDocument `bson:"flows,omitempty"`
	RuleDescriptionContextKey string               `bson:"rule_description_context_key,omitempty"`
}

type hotspotDocument struct {
	ConnectionID             string             `bson:"connection_id"`
	ProjectKey               string             `bson:"project_key"`
	Key                      string             `bson:"key"`
	BranchName               string             `bson:"branch_name"`
	RuleKey                  string             `bson:"rule_key"`
	Status                   string             `bson:"status"`
	VulnerabilityProbability string             `bson:"vulnerability_probability"`
	CreationDate             time.Time          `bson:"creation_date"`
	Assignee                 string             `bson:"assignee,omitempty"`
	FilePath                 string             `bson:"file_path"`
	Message                  string             `bson:"message,omitempty"`
	TextRange                *textRangeDocument `bson:"text_range,omitempty"`
}

// MongoFindingsRepository implements findings.Repository using MongoDB.
type MongoFindingsRepository struct {
	issues   *mongo.Collection
	taints   *mongo.Collection
	hotspots *mongo.Collection
	logger   *slog.Logger
}

// NewMongoFindingsRepository creates a new MongoDB-based findings repository.
func NewMongoFindingsRepository(db *MongoDB, logger *slog.Logger) *MongoFindingsRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &MongoFindingsRepository{
		issues:   db.Collection("issue"),
		taints:   db.Collection("taint"),
		hotspots: db.Collection("hotspot"),
		logger:   logger,
	}
}

// EnsureIndexes creates the unique (connection_id, key) index of every findings collection.
func (r *MongoFindingsRepository) EnsureIndexes(ctx context.Context) error {
	model := mongo.IndexModel{
		Keys:    bson.D{{Key: "connection_id", Value: 1}, {Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	for _, c := range []*mongo.Collection{r.issues, r.taints, r.hotspots} {
		if _, err := c.Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", c.Name(), err)
		}
	}
	return nil
}

func findingFilter(connectionID, key string) bson.M {
	return bson.M{"connection_id": connectionID, "key": key}
}

func projectFilter(connectionID, projectKey string) bson.M {
	return bson.M{"connection_id": connectionID, "project_key": projectKey}
}

// FindIssue retrieves an issue, or nil if not stored.
func (r *MongoFindingsRepository) FindIssue(ctx context.Context, connectionID, key string) (*findings.Issue, error) {
	var doc issueDocument
	if err := r.issues.FindOne(ctx, findingFilter(connectionID, key)).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find issue: %w", err)
	}
	return documentToIssue(&doc), nil
}

// UpsertIssue creates or replaces an issue.
func (r *MongoFindingsRepository) UpsertIssue(ctx context.Context, is *findings.Issue) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.issues.ReplaceOne(ctx, findingFilter(is.ConnectionID, is.Key), issueToDocument(is), opts); err != nil {
		return fmt.Errorf("failed to upsert issue: %w", err)
	}
	return nil
}

// UpdateIssue applies a partial change to a stored issue.
func (r *MongoFindingsRepository) UpdateIssue(ctx context.Context, connectionID, key string, u findings.IssueUpdate) error {
	set := bson.M{}
	if u.Resolved != nil {
		set["resolved"] = *u.Resolved
	}
	if u.Severity != nil {
		set["severity"] = string(*u.Severity)
	}
	if u.Type != nil {
		set["type"] = string(*u.Type)
	}
	for q, s := range u.Impacts {
		set["impacts."+string(q)] = string(s)
	}
	if len(set) == 0 {
		return nil
	}

	result, err := r.issues.UpdateOne(ctx, findingFilter(connectionID, key), bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update issue: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: issue %s", findings.ErrFindingNotFound, key)
	}

	r.logger.Debug("Issue updated", "connection_id", connectionID, "key", key)
	return nil
}

// InsertTaint creates or replaces a taint vulnerability.
func (r *MongoFindingsRepository) InsertTaint(ctx context.Context, t *findings.Taint) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.taints.ReplaceOne(ctx, findingFilter(t.ConnectionID, t.Key), taintToDocument(t), opts); err != nil {
		return fmt.Errorf("failed to insert taint: %w", err)
	}

	r.logger.Info("Taint vulnerability stored", "connection_id", t.ConnectionID, "key", t.Key, "project", t.ProjectKey)
	return nil
}

// DeleteTaint removes a taint vulnerability.
func (r *MongoFindingsRepository) DeleteTaint(ctx context.Context, connectionID, key string) error {
	if _, err := r.taints.DeleteOne(ctx, findingFilter(connectionID, key)); err != nil {
		return fmt.Errorf("failed to delete taint: %w", err)
	}
	return nil
}

// FindTaints lists the taint vulnerabilities of a project.
func (r *MongoFindingsRepository) FindTaints(ctx context.Context, connectionID, projectKey string) ([]*findings.Taint, error) {
	cursor, err := r.taints.Find(ctx, projectFilter(connectionID, projectKey))
	if err != nil {
		return nil, fmt.Errorf("failed to find taints: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []taintDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode taints: %w", err)
	}

	taints := make([]*findings.Taint, len(docs))
	for i, doc := range docs {
		taints[i] = documentToTaint(&doc)
	}
	return taints, nil
}

// UpsertHotspot creates or replaces a hotspot.
func (r *MongoFindingsRepository) UpsertHotspot(ctx context.Context, h *findings.Hotspot) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.hotspots.ReplaceOne(ctx, findingFilter(h.ConnectionID, h.Key), hotspotToDocument(h), opts); err != nil {
		return fmt.Errorf("failed to upsert hotspot: %w", err)
	}
	return nil
}

// UpdateHotspot applies a partial change to a stored hotspot.
func (r *MongoFindingsRepository) UpdateHotspot(ctx context.Context, connectionID, key string, u findings.HotspotUpdate) error {
	set := bson.M{}
	if u.Status != nil {
		set["status"] = string(*u.Status)
	}
	if u.Assignee != "" {
		set["assignee"] = u.Assignee
	}

	filter := findingFilter(connectionID, key)
	if len(set) == 0 {
		// Nothing to write, but unknown hotspots are still reported.
		n, err := r.hotspots.CountDocuments(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to find hotspot: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: hotspot %s", findings.ErrFindingNotFound, key)
		}
		return nil
	}

	result, err := r.hotspots.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update hotspot: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: hotspot %s", findings.ErrFindingNotFound, key)
	}
	return nil
}

// DeleteHotspot removes a hotspot.
func (r *MongoFindingsRepository) DeleteHotspot(ctx context.Context, connectionID, key string) error {
	if _, err := r.hotspots.DeleteOne(ctx, findingFilter(connectionID, key)); err != nil {
		return fmt.Errorf("failed to delete hotspot: %w", err)
	}
	return nil
}

// FindHotspots lists the hotspots of a project.
func (r *MongoFindingsRepository) FindHotspots(ctx context.Context, connectionID, projectKey string) ([]*findings.Hotspot, error) {
	cursor, err := r.hotspots.Find(ctx, projectFilter(connectionID, projectKey))
	if err != nil {
		return nil, fmt.Errorf("failed to find hotspots: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []hotspotDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode hotspots: %w", err)
	}

	hotspots := make([]*findings.Hotspot, len(docs))
	for i, doc := range docs {
		hotspots[i] = documentToHotspot(&doc)
	}
	return hotspots, nil
}

// Conversions

func impactsToDocument(impacts event.Impacts) map[string]string {
	if len(impacts) == 0 {
		return nil
	}
	m := make(map[string]string, len(impacts))
	for q, s := range impacts {
		m[string(q)] = string(s)
	}
	return m
}

func documentToImpacts(m map[string]string) event.Impacts {
	if len(m) == 0 {
		return nil
	}
	impacts := make(event.Impacts, len(m))
	for q, s := range m {
		impacts[event.SoftwareQuality(q)] = event.ImpactSeverity(s)
	}
	return impacts
}

func textRangeToDocument(tr *event.TextRange) *textRangeDocument {
	if tr == nil {
		return nil
	}
	return &textRangeDocument{
		StartLine:       tr.StartLine,
		StartLineOffset: tr.StartLineOffset,
		EndLine:         tr.EndLine,
		EndLineOffset:   tr.EndLineOffset,
		Hash:            tr.Hash,
	}
}

func documentToTextRange(doc *textRangeDocument) *event.TextRange {
	if doc == nil {
		return nil
	}
	return &event.TextRange{
		StartLine:       doc.StartLine,
		StartLineOffset: doc.StartLineOffset,
		EndLine:         doc.EndLine,
		EndLineOffset:   doc.EndLineOffset,
		Hash:            doc.Hash,
	}
}

func locationToDocument(l event.Location) locationDocument {
	return locationDocument{FilePath: l.FilePath, Message: l.Message, TextRange: textRangeToDocument(l.TextRange)}
}

func documentToLocation(doc locationDocument) event.Location {
	return event.Location{FilePath: doc.FilePath, Message: doc.Message, TextRange: documentToTextRange(doc.TextRange)}
}

func issueToDocument(is *findings.Issue) *issueDocument {
	return &issueDocument{
		ConnectionID: is.ConnectionID,
		ProjectKey:   is.ProjectKey,
		Key:          is.Key,
		BranchName:   is.BranchName,
		Resolved:     is.Resolved,
		Severity:     string(is.Severity),
		Type:         string(is.Type),
		Impacts:      impactsToDocument(is.Impacts),
	}
}

func documentToIssue(doc *issueDocument) *findings.Issue {
	return &findings.Issue{
		ConnectionID: doc.ConnectionID,
		ProjectKey:   doc.ProjectKey,
		Key:          doc.Key,
		BranchName:   doc.BranchName,
		Resolved:     doc.Resolved,
		Severity:     event.IssueSeverity(doc.Severity),
		Type:         event.RuleType(doc.Type),
		Impacts:      documentToImpacts(doc.Impacts),
	}
}

func taintToDocument(t *findings.Taint) *taintDocument {
	doc := &taintDocument{
		ConnectionID:              t.ConnectionID,
		ProjectKey:                t.ProjectKey,
		Key:                       t.Key,
		BranchName:                t.BranchName,
		RuleKey:                   t.RuleKey,
		Severity:                  string(t.Severity),
		Type:                      string(t.Type),
		CreationDate:              t.CreationDate,
		CleanCodeAttribute:        t.CleanCodeAttribute,
		Impacts:                   impactsToDocument(t.Impacts),
		MainLocation:              locationToDocument(t.MainLocation),
		RuleDescriptionContextKey: t.RuleDescriptionContextKey,
	}
	for _, f := range t.Flows {
		locs := make([]locationDocument, len(f.Locations))
		for i, l := range f.Locations {
			locs[i] = locationToDocument(l)
		}
		doc.Flows = append(doc.Flows, locs)
	}
	return doc
}

func documentToTaint(doc *taintDocument) *findings.Taint {
	t := &findings.Taint{
		ConnectionID:              doc.ConnectionID,
		ProjectKey:                doc.ProjectKey,
		Key:                       doc.Key,
		BranchName:                doc.BranchName,
		RuleKey:                   doc.RuleKey,
		Severity:                  event.IssueSeverity(doc.Severity),
		Type:                      event.RuleType(doc.Type),
		CreationDate:              doc.CreationDate,
		CleanCodeAttribute:        doc.CleanCodeAttribute,
		Impacts:                   documentToImpacts(doc.Impacts),
		MainLocation:              documentToLocation(doc.MainLocation),
		RuleDescriptionContextKey: doc.RuleDescriptionContextKey,
	}
	for _, locs := range doc.Flows {
		f := event.Flow{Locations: make([]event.Location, len(locs))}
		for i, l := range locs {
			f.Locations[i] = documentToLocation(l)
		}
		t.Flows = append(t.Flows, f)
	}
	return t
}

func hotspotToDocument(h *findings.Hotspot) *hotspotDocument {
	return &hotspotDocument{
		ConnectionID:             h.ConnectionID,
		ProjectKey:               h.ProjectKey,
		Key:                      h.Key,
		BranchName:               h.BranchName,
		RuleKey:                  h.RuleKey,
		Status:                   string(h.Status),
		VulnerabilityProbability: string(h.VulnerabilityProbability),
		CreationDate:             h.CreationDate,
		Assignee:                 h.Assignee,
		FilePath:                 h.FilePath,
		Message:                  h.Message,
		TextRange:                textRangeToDocument(h.TextRange),
	}
}

func documentToHotspot(doc *hotspotDocument) *findings.Hotspot {
	return &findings.Hotspot{
		ConnectionID:             doc.ConnectionID,
		ProjectKey:               doc.ProjectKey,
		Key:                      doc.Key,
		BranchName:               doc.BranchName,
		RuleKey:                  doc.RuleKey,
		Status:                   event.HotspotReviewStatus(doc.Status),
		VulnerabilityProbability: event.VulnerabilityProbability(doc.VulnerabilityProbability),
		CreationDate:             doc.CreationDate,
		Assignee:                 doc.Assignee,
		FilePath:                 doc.FilePath,
		Message:                  doc.Message,
		TextRange:                documentToTextRange(doc.TextRange),
	}
}

// Ensure MongoFindingsRepository implements findings.Repository
var _ findings.Repository = (*MongoFindingsRepository)(nil)
