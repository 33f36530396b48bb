package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"zipsales/server/internal/apperr"
	"zipsales/server/internal/models"
)

type MetadataStore struct {
	coll *mongo.Collection
}

func (s *MetadataStore) Get(ctx context.Context, zipcode string) (*models.ZipcodeFetchMetadata, error) {
	var m models.ZipcodeFetchMetadata
	err := s.coll.FindOne(ctx, bson.M{"_id": zipcode}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store("get metadata", err)
	}
	return &m, nil
}

func (s *MetadataStore) RecordFetch(ctx context.Context, zipcode string, at time.Time, inserted int) error {
	at = at.UTC()
	update := bson.M{
		"$set": bson.M{
			"lastFetchDate":   at,
			"lastApiCallDate": at,
			"updatedAt":       at,
		},
		"$inc":         bson.M{"totalRecordsCount": int64(inserted)},
		"$setOnInsert": bson.M{"createdAt": at},
	}
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": zipcode}, update, options.Update().SetUpsert(true))
	if err != nil {
		return apperr.Store("record fetch", err)
	}
	return nil
}

func (s *MetadataStore) List(ctx context.Context) ([]models.ZipcodeFetchMetadata, error) {
	cursor, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, apperr.Store("list metadata", err)
	}
	defer cursor.Close(ctx)

	all := make([]models.ZipcodeFetchMetadata, 0)
	if err := cursor.All(ctx, &all); err != nil {
		return nil, apperr.Store("list metadata", err)
	}
	return all, nil
}

func (s *MetadataStore) Delete(ctx context.Context, zipcode string) (int64, error) {
	result, err := s.coll.DeleteOne(ctx, bson.M{"_id": zipcode})
	if err != nil {
		return 0, apperr.Store("delete metadata", err)
	}
	return result.DeletedCount, nil
}

func (s *MetadataStore) DeleteAll(ctx context.Context) (int64, error) {
	result, err := s.coll.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, apperr.Store("clear metadata", err)
	}
	return result.DeletedCount, nil
}
