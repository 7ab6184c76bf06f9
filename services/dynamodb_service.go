package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"booking/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const DefaultDynamoDBTable = "Conversations"

// dynamoAPI is the subset of *dynamodb.Client used by DynamoStore.
type dynamoAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// NewDynamoDBClient builds a client for region. A non-empty endpoint points
// the client at DynamoDB Local with dummy credentials.
func NewDynamoDBClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if endpoint != "" {
		customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: endpoint}, nil
		})
		opts = append(opts,
			config.WithEndpointResolverWithOptions(customResolver),
			config.WithCredentialsProvider(credentials.StaticCredentialsProvider{
				Value: aws.Credentials{
					AccessKeyID: "dummy", SecretAccessKey: "dummy", SessionToken: "dummy",
				},
			}),
		)
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

// DynamoStore persists conversation states in a DynamoDB table keyed by
// ConversationID. Conditional writes keep MarkValidated from creating items.
type DynamoStore struct {
	db     dynamoAPI
	table  string
	logger *slog.Logger
}

func NewDynamoStore(db dynamoAPI, table string, logger *slog.Logger) *DynamoStore {
	if logger == nil {
		logger = slog.Default()
	}
	if table == "" {
		table = DefaultDynamoDBTable
	}
	return &DynamoStore{
		db:     db,
		table:  table,
		logger: logger.With("component", "dynamodb_store"),
	}
}

// EnsureTable creates the table if it does not exist yet.
func (s *DynamoStore) EnsureTable(ctx context.Context) error {
	_, err := s.db.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("ConversationID"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("ConversationID"),
				KeyType:       types.KeyTypeHash,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	var inUse *types.ResourceInUseException
	if errors.As(err, &inUse) {
		s.logger.Info("table already exists", "table", s.table)
		return nil
	}
	if err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	s.logger.Info("table created", "table", s.table)
	return nil
}

func (s *DynamoStore) Create(ctx context.Context, threadID string) (models.ConversationState, error) {
	state := newConversationState(threadID)
	_, err := s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                stateToItem(state),
		ConditionExpression: aws.String("attribute_not_exists(ConversationID)"),
	})
	if err != nil {
		return models.ConversationState{}, fmt.Errorf("put conversation: %w", err)
	}
	return state, nil
}

func (s *DynamoStore) Get(ctx context.Context, conversationID string) (models.ConversationState, error) {
	result, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"ConversationID": &types.AttributeValueMemberS{Value: conversationID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return models.ConversationState{}, fmt.Errorf("get conversation: %w", err)
	}
	if len(result.Item) == 0 {
		return models.ConversationState{}, ErrUnknownConversation
	}
	return itemToState(result.Item)
}

func (s *DynamoStore) MarkValidated(ctx context.Context, conversationID string, location models.LocationRecord) error {
	_, err := s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"ConversationID": &types.AttributeValueMemberS{Value: conversationID},
		},
		UpdateExpression:    aws.String("SET AddressValidated = :validated, AddressData = :address"),
		ConditionExpression: aws.String("attribute_exists(ConversationID)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":validated": &types.AttributeValueMemberBOOL{Value: true},
			":address":   locationToAttribute(location),
		},
	})
	var condFailed *types.ConditionalCheckFailedException
	if errors.As(err, &condFailed) {
		return ErrUnknownConversation
	}
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	return nil
}

var _ ConversationStore = (*DynamoStore)(nil)

func stateToItem(state models.ConversationState) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"ConversationID":   &types.AttributeValueMemberS{Value: state.ConversationID},
		"ThreadID":         &types.AttributeValueMemberS{Value: state.ThreadID},
		"AddressValidated": &types.AttributeValueMemberBOOL{Value: state.AddressValidated},
		"CreatedAt":        &types.AttributeValueMemberS{Value: state.CreatedAt.Format(time.RFC3339Nano)},
	}
	if state.AddressData != nil {
		item["AddressData"] = locationToAttribute(*state.AddressData)
	}
	return item
}

func itemToState(item map[string]types.AttributeValue) (models.ConversationState, error) {
	var state models.ConversationState
	state.ConversationID = stringAttr(item, "ConversationID")
	state.ThreadID = stringAttr(item, "ThreadID")
	if v, ok := item["AddressValidated"].(*types.AttributeValueMemberBOOL); ok {
		state.AddressValidated = v.Value
	}
	if createdAt := stringAttr(item, "CreatedAt"); createdAt != "" {
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return models.ConversationState{}, fmt.Errorf("parse CreatedAt: %w", err)
		}
		state.CreatedAt = t
	}
	if m, ok := item["AddressData"].(*types.AttributeValueMemberM); ok {
		loc, err := attributeToLocation(m.Value)
		if err != nil {
			return models.ConversationState{}, err
		}
		state.AddressData = &loc
	}
	return state, nil
}

func locationToAttribute(loc models.LocationRecord) types.AttributeValue {
	return &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
		"FormattedAddress": &types.AttributeValueMemberS{Value: loc.FormattedAddress},
		"Lat":              &types.AttributeValueMemberN{Value: strconv.FormatFloat(loc.Coordinates.Lat, 'f', -1, 64)},
		"Lng":              &types.AttributeValueMemberN{Value: strconv.FormatFloat(loc.Coordinates.Lng, 'f', -1, 64)},
		"PlaceID":          &types.AttributeValueMemberS{Value: loc.PlaceID},
		"PostalCode":       &types.AttributeValueMemberS{Value: loc.PostalCode},
		"City":             &types.AttributeValueMemberS{Value: loc.City},
		"State":            &types.AttributeValueMemberS{Value: loc.State},
	}}
}

func attributeToLocation(m map[string]types.AttributeValue) (models.LocationRecord, error) {
	lat, err := numberAttr(m, "Lat")
	if err != nil {
		return models.LocationRecord{}, err
	}
	lng, err := numberAttr(m, "Lng")
	if err != nil {
		return models.LocationRecord{}, err
	}
	return models.LocationRecord{
		FormattedAddress: stringAttr(m, "FormattedAddress"),
		Coordinates:      models.Coordinates{Lat: lat, Lng: lng},
		PlaceID:          stringAttr(m, "PlaceID"),
		PostalCode:       stringAttr(m, "PostalCode"),
		City:             stringAttr(m, "City"),
		State:            stringAttr(m, "State"),
	}, nil
}

func stringAttr(m map[string]types.AttributeValue, key string) string {
	if v, ok := m[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func numberAttr(m map[string]types.AttributeValue, key string) (float64, error) {
	v, ok := m[key].(*types.AttributeValueMemberN)
	if !ok {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v.Value, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return f, nil
}
