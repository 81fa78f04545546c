package repository

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"eventlink-go/domain/connection"
)

// connectionDocument is the MongoDB document structure for connections.
// The user-chosen connection ID is the document key.
type connectionDocument struct {
	ID                   string `bson:"_id"`
	Kind                 string `bson:"kind"`
	ServerURL            string `bson:"server_url,omitempty"`
	Organization         string `bson:"organization,omitempty"`
	Token                string `bson:"token"`
	DisableNotifications bool   `bson:"disable_notifications"`
}

// MongoConnectionRepository implements connection.Repository using MongoDB.
type MongoConnectionRepository struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewMongoConnectionRepository creates a new MongoDB-based connection repository.
func NewMongoConnectionRepository(db *MongoDB, logger *slog.Logger) *MongoConnectionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &MongoConnectionRepository{
		collection: db.Collection("connection"),
		logger:     logger,
	}
}

// FindByID retrieves a connection by its identifier.
func (r *MongoConnectionRepository) FindByID(ctx context.Context, id string) (*connection.Connection, error) {
	var doc connectionDocument
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find connection: %w", err)
	}
	return documentToConnection(&doc), nil
}

// FindAll retrieves all connections.
func (r *MongoConnectionRepository) FindAll(ctx context.Context) ([]*connection.Connection, error) {
	cursor, err := r.collection.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to find connections: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []connectionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode connections: %w", err)
	}

	conns := make([]*connection.Connection, len(docs))
	for i, doc := range docs {
		conns[i] = documentToConnection(&doc)
	}
	return conns, nil
}

// Insert creates a new connection.
func (r *MongoConnectionRepository) Insert(ctx context.Context, conn *connection.Connection) error {
	if _, err := r.collection.InsertOne(ctx, connectionToDocument(conn)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s already exists", connection.ErrInvalidConnection, conn.ID)
		}
		return fmt.Errorf("failed to insert connection: %w", err)
	}

	r.logger.Info("Connection inserted", "id", conn.ID, "kind", conn.Kind)
	return nil
}

// Update replaces an existing connection.
func (r *MongoConnectionRepository) Update(ctx context.Context, conn *connection.Connection) error {
	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": conn.ID}, connectionToDocument(conn))
	if err != nil {
		return fmt.Errorf("failed to update connection: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", connection.ErrConnectionNotFound, conn.ID)
	}
	return nil
}

// UpdateToken updates only the credential of a connection.
func (r *MongoConnectionRepository) UpdateToken(ctx context.Context, id, token string) error {
	update := bson.M{"$set": bson.M{"token": token}}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", connection.ErrConnectionNotFound, id)
	}

	r.logger.Info("Token updated", "id", id)
	return nil
}

// Delete removes a connection by its identifier.
func (r *MongoConnectionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", connection.ErrConnectionNotFound, id)
	}

	r.logger.Info("Connection deleted", "id", id)
	return nil
}

func documentToConnection(doc *connectionDocument) *connection.Connection {
	return &connection.Connection{
		ID:                   doc.ID,
		Kind:                 connection.Kind(doc.Kind),
		ServerURL:            doc.ServerURL,
		Organization:         doc.Organization,
		Token:                doc.Token,
		DisableNotifications: doc.DisableNotifications,
	}
}

func connectionToDocument(conn *connection.Connection) *connectionDocument {
	return &connectionDocument{
		ID:                   conn.ID,
		Kind:                 string(conn.Kind),
		ServerURL:            conn.ServerURL,
		Organization:         conn.Organization,
		Token:                conn.Token,
		DisableNotifications: conn.DisableNotifications,
	}
}

// Ensure MongoConnectionRepository implements connection.Repository
var _ connection.Repository = (*MongoConnectionRepository)(nil)
