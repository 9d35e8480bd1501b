package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/omnichat/webchat/internal/database"
	"github.com/omnichat/webchat/internal/model"
)

type dynamoClient interface {
	GetItem(ctx context.Context, tableName string, key map[string]types.AttributeValue, out interface{}) error
	PutItem(ctx context.Context, tableName string, item interface{}) error
}

// Dynamo keeps each key as one item in a table whose partition key is "key".
type Dynamo struct {
	client dynamoClient
	table  string
	now    func() time.Time
}

func NewDynamo(ctx context.Context, opts DynamoOptions) (*Dynamo, error) {
	if opts.Region == "" {
		return nil, errors.New("storage: dynamodb backend requires a region")
	}
	if opts.Table == "" {
		opts.Table = model.IdentityTable
	}

	client, err := database.NewDynamoDBClient(ctx, database.Options{
		Region:          opts.Region,
		Endpoint:        opts.Endpoint,
		AccessKeyID:     opts.AccessKeyID,
		SecretAccessKey: opts.SecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	return newDynamoWithClient(client, opts.Table), nil
}

func newDynamoWithClient(client dynamoClient, table string) *Dynamo {
	return &Dynamo{client: client, table: table, now: time.Now}
}

func (d *Dynamo) Get(ctx context.Context, key string) (string, error) {
	var item model.IdentityItem
	err := d.client.GetItem(ctx, d.table, map[string]types.AttributeValue{
		"key": database.AttrString(key),
	}, &item)
	if errors.Is(err, database.ErrItemNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return item.Value, nil
}

func (d *Dynamo) Set(ctx context.Context, key, value string) error {
	return d.client.PutItem(ctx, d.table, model.IdentityItem{
		Key:       key,
		Value:     value,
		UpdatedAt: d.now().UTC().Format(time.RFC3339),
	})
}

func (d *Dynamo) Close() error {
	return nil
}
