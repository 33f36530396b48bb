// Package dynamostore keeps zipcode fetch metadata in a DynamoDB table.
package dynamostore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/sirupsen/logrus"

	"zipsales/server/internal/apperr"
	"zipsales/server/internal/models"
)

const hashKey = "zipcode"

// MetadataStore implements the fetch metadata store on DynamoDB.
type MetadataStore struct {
	client    dynamodbiface.DynamoDBAPI
	tableName string
	logger    *logrus.Logger
}

// New creates the store, creating the table when it is missing
// (DynamoDB Local and fresh accounts).
func New(region, endpoint, tableName string, logger *logrus.Logger) (*MetadataStore, error) {
	if tableName == "" {
		return nil, fmt.Errorf("DYNAMODB_TABLE is required for the dynamodb metadata backend")
	}

	awsConfig := &aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		awsConfig.Endpoint = aws.String(endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	store := NewWithClient(dynamodb.New(sess), tableName, logger)
	if err := store.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure table exists: %w", err)
	}
	return store, nil
}

// NewWithClient wraps an existing client without touching the table.
func NewWithClient(client dynamodbiface.DynamoDBAPI, tableName string, logger *logrus.Logger) *MetadataStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &MetadataStore{client: client, tableName: tableName, logger: logger}
}

func (s *MetadataStore) ensureTable() error {
	_, err := s.client.DescribeTable(&dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	if err == nil {
		return nil
	}

	s.logger.WithField("table", s.tableName).Info("Creating DynamoDB metadata table")
	_, err = s.client.CreateTable(&dynamodb.CreateTableInput{
		TableName: aws.String(s.tableName),
		KeySchema: []*dynamodb.KeySchemaElement{
			{AttributeName: aws.String(hashKey), KeyType: aws.String("HASH")},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{AttributeName: aws.String(hashKey), AttributeType: aws.String("S")},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	})
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return s.client.WaitUntilTableExists(&dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
}

func key(zipcode string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		hashKey: {S: aws.String(zipcode)},
	}
}

func (s *MetadataStore) Get(ctx context.Context, zipcode string) (*models.ZipcodeFetchMetadata, error) {
	result, err := s.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            key(zipcode),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, apperr.Store("get metadata", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var m models.ZipcodeFetchMetadata
	if err := dynamodbattribute.UnmarshalMap(result.Item, &m); err != nil {
		return nil, apperr.Store("get metadata", fmt.Errorf("failed to unmarshal metadata: %w", err))
	}
	return &m, nil
}

// RecordFetch sets both fetch timestamps to at and atomically adds
// inserted to the running total.
func (s *MetadataStore) RecordFetch(ctx context.Context, zipcode string, at time.Time, inserted int) error {
	ts := at.UTC().Format(time.RFC3339Nano)
	_, err := s.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              key(zipcode),
		UpdateExpression: aws.String("SET lastFetchDate = :at, lastApiCallDate = :at, updatedAt = :at, createdAt = if_not_exists(createdAt, :at) ADD totalRecordsCount :n"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":at": {S: aws.String(ts)},
			":n":  {N: aws.String(strconv.Itoa(inserted))},
		},
	})
	if err != nil {
		return apperr.Store("record fetch", err)
	}
	return nil
}

// List scans the whole table; the result is ordered by zipcode.
func (s *MetadataStore) List(ctx context.Context) ([]models.ZipcodeFetchMetadata, error) {
	all := make([]models.ZipcodeFetchMetadata, 0)
	input := &dynamodb.ScanInput{TableName: aws.String(s.tableName)}

	err := s.client.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, lastPage bool) bool {
		var batch []models.ZipcodeFetchMetadata
		if err := dynamodbattribute.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			s.logger.WithError(err).Warn("Skipping unreadable metadata page")
			return true
		}
		all = append(all, batch...)
		return true
	})
	if err != nil {
		return nil, apperr.Store("list metadata", err)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Zipcode < all[j].Zipcode })
	return all, nil
}

func (s *MetadataStore) Delete(ctx context.Context, zipcode string) (int64, error) {
	result, err := s.client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.tableName),
		Key:          key(zipcode),
		ReturnValues: aws.String(dynamodb.ReturnValueAllOld),
	})
	if err != nil {
		return 0, apperr.Store("delete metadata", err)
	}
	if len(result.Attributes) == 0 {
		return 0, nil
	}
	return 1, nil
}

// DeleteAll removes every item one key at a time.
func (s *MetadataStore) DeleteAll(ctx context.Context) (int64, error) {
	all, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	var deleted int64
	for _, m := range all {
		n, err := s.Delete(ctx, m.Zipcode)
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	return deleted, nil
}
