package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ixlab/aibox/session"
)

// API is the slice of the DynamoDB client the store needs.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// NewClient builds a DynamoDB client for the configured region.
func NewClient(ctx context.Context, region string) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg), nil
}

// Store persists sessions in a table keyed (user_id, session_id) with a TTL
// attribute named expiration_time. The table's TTL setting does the actual
// deletion; reads still filter expired rows since TTL sweeps lag.
type Store struct {
	client    API
	table     string
	retention time.Duration
}

func NewStore(client API, table string, retention time.Duration) *Store {
	return &Store{client: client, table: table, retention: retention}
}

var _ session.Store = (*Store)(nil)

func key(userID, sessionID string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"user_id":    &ddbtypes.AttributeValueMemberS{Value: userID},
		"session_id": &ddbtypes.AttributeValueMemberS{Value: sessionID},
	}
}

func (s *Store) Get(ctx context.Context, userID, sessionID string) (*session.Session, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            key(userID, sessionID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get session: %w", err)
	}
	if out.Item == nil {
		return nil, session.ErrNotFound
	}

	var sess session.Session
	if err := attributevalue.UnmarshalMap(out.Item, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	if sess.ExpiresAt > 0 && sess.ExpiresAt < time.Now().Unix() {
		return nil, session.ErrNotFound
	}
	return &sess, nil
}

func (s *Store) Put(ctx context.Context, sess *session.Session) error {
	sess.Touch(s.retention)
	item, err := attributevalue.MarshalMap(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.SessionID, err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("dynamodb put session: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, userID string) ([]session.Summary, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":uid": &ddbtypes.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb list sessions: %w", err)
	}

	now := time.Now().Unix()
	summaries := make([]session.Summary, 0, len(out.Items))
	for _, item := range out.Items {
		var sess session.Session
		if err := attributevalue.UnmarshalMap(item, &sess); err != nil {
			return nil, fmt.Errorf("decode session item: %w", err)
		}
		if sess.ExpiresAt > 0 && sess.ExpiresAt < now {
			continue
		}
		summaries = append(summaries, sess.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt) })
	return summaries, nil
}

func (s *Store) Delete(ctx context.Context, userID, sessionID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.table),
		Key:                 key(userID, sessionID),
		ConditionExpression: aws.String("attribute_exists(session_id)"),
	})
	if err != nil {
		var ccf *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return session.ErrNotFound
		}
		return fmt.Errorf("dynamodb delete session: %w", err)
	}
	return nil
}
