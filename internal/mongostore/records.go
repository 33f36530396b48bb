package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"zipsales/server/internal/apperr"
	"zipsales/server/internal/models"
)

type RecordStore struct {
	coll *mongo.Collection
}

// UpsertMany writes each record keyed by its id. seq and createdAt are
// only set on insert so the original insertion order survives overwrites.
func (s *RecordStore) UpsertMany(ctx context.Context, records []models.SaleRecord) (int, error) {
	batch := models.DedupeByID(records)
	if len(batch) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	base := now.UnixNano()
	writes := make([]mongo.WriteModel, 0, len(batch))
	for i, r := range batch {
		set, err := replacementFields(r, now)
		if err != nil {
			return 0, apperr.Store("upsert", err)
		}
		update := bson.M{
			"$set":         set,
			"$setOnInsert": bson.M{"seq": uint64(base) + uint64(i), "createdAt": now},
		}
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": r.ID}).
			SetUpdate(update).
			SetUpsert(true))
	}

	result, err := s.coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return 0, apperr.Store("upsert", err)
	}
	return int(result.UpsertedCount), nil
}

// replacementFields renders r as a $set document without the fields that
// belong to the insert only.
func replacementFields(r models.SaleRecord, now time.Time) (bson.M, error) {
	r.UpdatedAt = now
	raw, err := bson.Marshal(r)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	delete(doc, "_id")
	delete(doc, "seq")
	delete(doc, "createdAt")

	// Cleared optional fields must not keep a stale value from a previous write
	unset := []string{
		"bedrooms", "bathrooms", "sqft", "lotSize", "yearBuilt", "propertyType", "saleType",
		"landUseCode", "saleDate", "pricePerSqft", "pricePerBedroom", "lastModified",
	}
	for _, key := range unset {
		if _, ok := doc[key]; !ok {
			doc[key] = nil
		}
	}
	return doc, nil
}

func (s *RecordStore) Query(ctx context.Context, zipcode string, filters *models.SaleFilters, skip, limit int) ([]models.SaleRecord, int64, error) {
	filter := BuildSalesFilter(zipcode, filters)

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, apperr.Store("count", err)
	}

	// Descending order already places null/missing sale dates last
	opts := options.Find().
		SetSort(bson.D{{Key: "saleDate", Value: -1}, {Key: "seq", Value: 1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, apperr.Store("query", err)
	}
	defer cursor.Close(ctx)

	records := make([]models.SaleRecord, 0, limit)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, 0, apperr.Store("query", err)
	}
	return records, total, nil
}

// BuildSalesFilter translates filters into a MongoDB query document.
func BuildSalesFilter(zipcode string, f *models.SaleFilters) bson.M {
	filter := bson.M{"zipcode": zipcode}
	if f == nil {
		return filter
	}

	addRange(filter, "price", f.MinPrice, f.MaxPrice)
	addRange(filter, "bedrooms", f.MinBeds, f.MaxBeds)
	addRange(filter, "sqft", f.MinSqft, f.MaxSqft)
	addRange(filter, "yearBuilt", f.YearBuiltFrom, f.YearBuiltTo)

	saleDate := bson.M{}
	if lower, ok := f.SaleDateLowerBound(); ok {
		saleDate["$gte"] = lower
	}
	if upper, ok := f.SaleDateUpperBound(); ok {
		saleDate["$lt"] = upper
	}
	if len(saleDate) > 0 {
		filter["saleDate"] = saleDate
	}
	return filter
}

func addRange[T int | float64](filter bson.M, field string, min, max *T) {
	if min == nil && max == nil {
		return
	}
	cond := bson.M{}
	if min != nil {
		cond["$gte"] = *min
	}
	if max != nil {
		cond["$lte"] = *max
	}
	filter[field] = cond
}

func (s *RecordStore) DeleteByZipcode(ctx context.Context, zipcode string) (int64, error) {
	result, err := s.coll.DeleteMany(ctx, bson.M{"zipcode": zipcode})
	if err != nil {
		return 0, apperr.Store("delete", err)
	}
	return result.DeletedCount, nil
}

func (s *RecordStore) DeleteAll(ctx context.Context) (int64, error) {
	result, err := s.coll.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, apperr.Store("delete all", err)
	}
	return result.DeletedCount, nil
}
