package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/filecoin-faucet/internal/aws"
)

// DynamoStore keeps drip records in a DynamoDB table keyed by drip_key.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewDynamoStore returns a store over tableName.
func NewDynamoStore(client aws.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Get reads the record with a strongly consistent read.
func (s *DynamoStore) Get(ctx context.Context, k Key) (*DripRecord, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            map[string]types.AttributeValue{"drip_key": &types.AttributeValueMemberS{Value: k.String()}},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get item: %w", ErrUnavailable, err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var rec DripRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("%w: unmarshal record: %w", ErrUnavailable, err)
	}
	return &rec, nil
}

// Put conditionally writes rec as version expected+1.
func (s *DynamoStore) Put(ctx context.Context, rec DripRecord, expected int64) error {
	rec.DripKey = rec.Key().String()
	rec.Version = expected + 1
	rec.UpdatedAt = s.nowFunc().UTC()

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	input := &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}
	if expected == 0 {
		input.ConditionExpression = awsString("attribute_not_exists(drip_key)")
	} else {
		input.ConditionExpression = awsString("#v = :expected")
		input.ExpressionAttributeNames = map[string]string{"#v": "version"}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expected, 10)},
		}
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var sc smithy.APIError
		if errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException" {
			return ErrVersionConflict
		}
		return fmt.Errorf("%w: put item: %w", ErrUnavailable, err)
	}
	return nil
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
