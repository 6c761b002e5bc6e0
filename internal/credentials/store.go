package credentials

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/marketplace-orderflow/internal/aws"
)

// DynamoStore keeps credential rows in a DynamoDB table with partition key
// provider and numeric sort key issued_at.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
	provider  string
}

// NewDynamoStore returns a DynamoStore for the given provider.
func NewDynamoStore(client aws.DynamoDBAPI, tableName, provider string) *DynamoStore {
	if provider == "" {
		provider = DefaultProvider
	}
	return &DynamoStore{client: client, tableName: tableName, provider: provider}
}

// Latest returns the most recently issued credential, or nil when none exists.
func (s *DynamoStore) Latest(ctx context.Context) (*Credential, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: awsString("#p = :p"),
		ExpressionAttributeNames: map[string]string{"#p": "provider"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberS{Value: s.provider},
		},
		ScanIndexForward: awsBool(false),
		Limit:            awsInt32(1),
		ConsistentRead:   awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var c Credential
	if err := attributevalue.UnmarshalMap(out.Items[0], &c); err != nil {
		return nil, fmt.Errorf("unmarshal credential: %w", err)
	}
	return &c, nil
}

// Append stores a newly issued credential.
func (s *DynamoStore) Append(ctx context.Context, c Credential) error {
	c.Provider = s.provider
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }

func awsInt32(i int32) *int32 { return &i }
