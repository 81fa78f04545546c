package repository

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"eventlink-go/domain/binding"
)

// scopeDocument is the MongoDB document structure for configuration scopes.
type scopeDocument struct {
	ID      string           `bson:"_id"`
	Name    string           `bson:"name,omitempty"`
	Binding *bindingDocument `bson:"binding,omitempty"`
}

// bindingDocument is the MongoDB document structure for a scope binding.
type bindingDocument struct {
	ConnectionID string `bson:"connection_id"`
	ProjectKey   string `bson:"project_key"`
}

// MongoScopeRepository implements binding.Repository using MongoDB.
type MongoScopeRepository struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewMongoScopeRepository creates a new MongoDB-based scope repository.
func NewMongoScopeRepository(db *MongoDB, logger *slog.Logger) *MongoScopeRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &MongoScopeRepository{
		collection: db.Collection("scope"),
		logger:     logger,
	}
}

// FindByID retrieves a scope by its identifier.
func (r *MongoScopeRepository) FindByID(ctx context.Context, id string) (*binding.Scope, error) {
	var doc scopeDocument
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find scope: %w", err)
	}
	return documentToScope(&doc), nil
}

// FindAll retrieves all scopes.
func (r *MongoScopeRepository) FindAll(ctx context.Context) ([]*binding.Scope, error) {
	return r.find(ctx, bson.D{})
}

// FindByConnection retrieves the scopes bound through a connection.
func (r *MongoScopeRepository) FindByConnection(ctx context.Context, connectionID string) ([]*binding.Scope, error) {
	return r.find(ctx, bson.M{"binding.connection_id": connectionID})
}

func (r *MongoScopeRepository) find(ctx context.Context, filter interface{}) ([]*binding.Scope, error) {
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find scopes: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []scopeDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode scopes: %w", err)
	}

	scopes := make([]*binding.Scope, len(docs))
	for i, doc := range docs {
		scopes[i] = documentToScope(&doc)
	}
	return scopes, nil
}

// Upsert creates or replaces a scope.
func (r *MongoScopeRepository) Upsert(ctx context.Context, scope *binding.Scope) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": scope.ID}, scopeToDocument(scope), opts); err != nil {
		return fmt.Errorf("failed to upsert scope: %w", err)
	}

	r.logger.Info("Scope stored", "id", scope.ID, "bound", scope.IsBound())
	return nil
}

// UpdateBinding sets or clears (nil) the binding of a scope.
func (r *MongoScopeRepository) UpdateBinding(ctx context.Context, id string, b *binding.Binding) error {
	var update bson.M
	if b == nil {
		update = bson.M{"$unset": bson.M{"binding": ""}}
	} else {
		update = bson.M{"$set": bson.M{"binding": bindingToDocument(b)}}
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update binding: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", binding.ErrScopeNotFound, id)
	}
	return nil
}

// Delete removes a scope by its identifier.
func (r *MongoScopeRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete scope: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", binding.ErrScopeNotFound, id)
	}

	r.logger.Info("Scope deleted", "id", id)
	return nil
}

func documentToScope(doc *scopeDocument) *binding.Scope {
	scope := &binding.Scope{ID: doc.ID, Name: doc.Name}
	if doc.Binding != nil {
		scope.Binding = &binding.Binding{
			ConnectionID: doc.Binding.ConnectionID,
			ProjectKey:   doc.Binding.ProjectKey,
		}
	}
	return scope
}

func scopeToDocument(scope *binding.Scope) *scopeDocument {
	doc := &scopeDocument{ID: scope.ID, Name: scope.Name}
	if scope.Binding != nil {
		doc.Binding = bindingToDocument(scope.Binding)
	}
	return doc
}

func bindingToDocument(b *binding.Binding) *bindingDocument {
	return &bindingDocument{ConnectionID: b.ConnectionID, ProjectKey: b.ProjectKey}
}

// Ensure MongoScopeRepository implements binding.Repository
var _ binding.Repository = (*MongoScopeRepository)(nil)
