// Package mongostore keeps sale records and fetch metadata in MongoDB.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	salesCollection    = "sale_records"
	metadataCollection = "zipcode_fetch_metadata"
)

// Client owns the MongoDB connection shared by both stores.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
	logger *logrus.Logger
}

// Connect dials uri, verifies the connection and ensures indexes exist.
func Connect(ctx context.Context, uri, database string, logger *logrus.Logger) (*Client, error) {
	if uri == "" {
		return nil, fmt.Errorf("MONGODB_URI is required for the mongodb backend")
	}
	if logger == nil {
		logger = logrus.New()
	}

	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	c := &Client{client: client, db: client.Database(database), logger: logger}
	if err := c.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}

	logger.WithField("database", database).Info("Connected to MongoDB")
	return c, nil
}

func (c *Client) ensureIndexes(ctx context.Context) error {
	salesIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "zipcode", Value: 1}, {Key: "saleDate", Value: -1}, {Key: "seq", Value: 1}}},
		{Keys: bson.D{{Key: "zipcode", Value: 1}, {Key: "price", Value: 1}}},
		{Keys: bson.D{{Key: "zipcode", Value: 1}, {Key: "bedrooms", Value: 1}}},
		{Keys: bson.D{{Key: "zipcode", Value: 1}, {Key: "sqft", Value: 1}}},
		{Keys: bson.D{{Key: "zipcode", Value: 1}, {Key: "yearBuilt", Value: 1}}},
	}
	if _, err := c.db.Collection(salesCollection).Indexes().CreateMany(ctx, salesIndexes); err != nil {
		return fmt.Errorf("failed to create sale record indexes: %w", err)
	}

	metadataIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "lastFetchDate", Value: 1}}},
		{Keys: bson.D{{Key: "lastApiCallDate", Value: 1}}},
	}
	if _, err := c.db.Collection(metadataCollection).Indexes().CreateMany(ctx, metadataIndexes); err != nil {
		return fmt.Errorf("failed to create metadata indexes: %w", err)
	}
	return nil
}

func (c *Client) Records() *RecordStore {
	return &RecordStore{coll: c.db.Collection(salesCollection)}
}

func (c *Client) Metadata() *MetadataStore {
	return &MetadataStore{coll: c.db.Collection(metadataCollection)}
}

func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.client.Disconnect(ctx)
}
