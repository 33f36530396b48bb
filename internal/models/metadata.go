package models

import "time"

// ZipcodeFetchMetadata tracks when a zipcode was last synchronized.
type ZipcodeFetchMetadata struct {
	Zipcode           string    `gorm:"primaryKey;size:5" json:"zipcode" bson:"_id" dynamodbav:"zipcode"`
	LastFetchDate     time.Time `gorm:"index;not null" json:"lastFetchDate" bson:"lastFetchDate" dynamodbav:"lastFetchDate"`
	LastAPICallDate   time.Time `gorm:"index;not null" json:"lastApiCallDate" bson:"lastApiCallDate" dynamodbav:"lastApiCallDate"`
	TotalRecordsCount int64     `gorm:"not null;default:0" json:"totalRecordsCount" bson:"totalRecordsCount" dynamodbav:"totalRecordsCount"`
	CreatedAt         time.Time `json:"createdAt" bson:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt" bson:"updatedAt" dynamodbav:"updatedAt"`
}

func (ZipcodeFetchMetadata) TableName() string {
	return "zipcode_fetch_metadata"
}

// FreshSince reports whether the last fetch happened at or after cutoff.
func (m *ZipcodeFetchMetadata) FreshSince(cutoff time.Time) bool {
	return m != nil && !m.LastFetchDate.Before(cutoff)
}
