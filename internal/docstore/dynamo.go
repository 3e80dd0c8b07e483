package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Dynamo stores documents in one DynamoDB table keyed by (collection, id).
// Field merges are read-modify-write guarded by a version attribute;
// ApplyBatch uses TransactWriteItems so the whole batch commits or none of
// it does.
type Dynamo struct {
	client    *dynamodb.Client
	tableName string
}

// dynamoDocument is the DynamoDB item shape.
type dynamoDocument struct {
	Collection string `dynamodbav:"collection"`
	ID         string `dynamodbav:"id"`
	Doc        string `dynamodbav:"doc"`
	Version    int    `dynamodbav:"version"`
	UpdatedAt  string `dynamodbav:"updated_at"`
}

func NewDynamo(client *dynamodb.Client, tableName string) *Dynamo {
	return &Dynamo{client: client, tableName: tableName}
}

func (d *Dynamo) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	item, err := d.getItem(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(item.Doc), nil
}

func (d *Dynamo) getItem(ctx context.Context, collection, id string) (*dynamoDocument, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            documentKey(collection, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if result.Item == nil {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}

	var doc dynamoDocument
	if err := attributevalue.UnmarshalMap(result.Item, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal %s/%s: %w", collection, id, err)
	}
	return &doc, nil
}

func (d *Dynamo) GetAll(ctx context.Context, collection string) ([]json.RawMessage, error) {
	result, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		KeyConditionExpression: aws.String("#c = :c"),
		ExpressionAttributeNames: map[string]string{
			"#c": "collection",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: collection},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get all %s: %w", collection, err)
	}

	docs := make([]json.RawMessage, 0, len(result.Items))
	for _, item := range result.Items {
		var doc dynamoDocument
		if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
			continue
		}
		docs = append(docs, json.RawMessage(doc.Doc))
	}
	return docs, nil
}

func (d *Dynamo) Add(ctx context.Context, collection, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	av, err := attributevalue.MarshalMap(dynamoDocument{
		Collection: collection,
		ID:         id,
		Doc:        string(raw),
		Version:    1,
		UpdatedAt:  time.Now().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrExists)
		}
		return fmt.Errorf("add %s/%s: %w", collection, id, err)
	}
	return nil
}

func (d *Dynamo) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	put, err := d.mergedPut(ctx, Write{Collection: collection, ID: id, Fields: fields})
	if err != nil {
		return err
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 put.TableName,
		Item:                      put.Item,
		ConditionExpression:       put.ConditionExpression,
		ExpressionAttributeValues: put.ExpressionAttributeValues,
	})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return nil
}

func (d *Dynamo) Delete(ctx context.Context, collection, id string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key:       documentKey(collection, id),
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// ApplyBatch reads each target, merges its fields, and commits all merged
// documents in one TransactWriteItems call with per-item version
// conditions. A concurrent writer fails the whole transaction.
func (d *Dynamo) ApplyBatch(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}

	items := make([]types.TransactWriteItem, 0, len(writes))
	for i, w := range writes {
		put, err := d.mergedPut(ctx, w)
		if err != nil {
			return fmt.Errorf("batch write %d: %w", i, err)
		}
		items = append(items, types.TransactWriteItem{Put: put})
	}

	_, err := d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// mergedPut loads the current document, applies the field merge, and
// returns a Put conditioned on the version observed at read time.
func (d *Dynamo) mergedPut(ctx context.Context, w Write) (*types.Put, error) {
	current, err := d.getItem(ctx, w.Collection, w.ID)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(current.Doc), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal %s/%s: %w", w.Collection, w.ID, err)
	}
	for k, v := range w.Fields {
		doc[k] = v
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal %s/%s: %w", w.Collection, w.ID, err)
	}

	av, err := attributevalue.MarshalMap(dynamoDocument{
		Collection: w.Collection,
		ID:         w.ID,
		Doc:        string(raw),
		Version:    current.Version + 1,
		UpdatedAt:  time.Now().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal item: %w", err)
	}

	return &types.Put{
		TableName:           aws.String(d.tableName),
		Item:                av,
		ConditionExpression: aws.String("version = :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", current.Version)},
		},
	}, nil
}

func documentKey(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"collection": &types.AttributeValueMemberS{Value: collection},
		"id":         &types.AttributeValueMemberS{Value: id},
	}
}
