package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	ErrItemNotFound    = errors.New("item not found")
	ErrConditionFailed = errors.New("condition check failed")
)

// Condition guards a write. Values and names are merged into the
// expression maps of the request.
type Condition struct {
	Expression string
	Values     map[string]types.AttributeValue
	Names      map[string]string
}

func AttrString(value string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: value}
}

func AttrBool(value bool) types.AttributeValue {
	return &types.AttributeValueMemberBOOL{Value: value}
}

// Key builds the single attribute primary key used by every table.
func Key(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"pk": AttrString(pk)}
}

func (c *DynamoDBClient) PutItem(
	ctx context.Context,
	tableName string,
	item interface{},
) error {
	return c.PutItemIf(ctx, tableName, item, nil)
}

// PutItemIf writes item only when cond holds and reports ErrConditionFailed
// otherwise.
func (c *DynamoDBClient) PutItemIf(
	ctx context.Context,
	tableName string,
	item interface{},
	cond *Condition,
) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(tableName),
		Item:      av,
	}
	if cond != nil {
		input.ConditionExpression = aws.String(cond.Expression)
		if len(cond.Values) > 0 {
			input.ExpressionAttributeValues = cond.Values
		}
		if len(cond.Names) > 0 {
			input.ExpressionAttributeNames = cond.Names
		}
	}

	if _, err = c.svc.PutItem(ctx, input); err != nil {
		return wrapWriteError("put item", tableName, err)
	}
	return nil
}

// TransactPut is one conditional put inside TransactPutItems.
type TransactPut struct {
	TableName string
	Item      interface{}
	Condition *Condition
}

// TransactCheck asserts a condition on another item without writing it.
type TransactCheck struct {
	TableName string
	Key       map[string]types.AttributeValue
	Condition Condition
}

// TransactPutItems writes every item or none. A cancellation caused by a
// failed condition is reported as ErrConditionFailed.
func (c *DynamoDBClient) TransactPutItems(ctx context.Context, puts ...TransactPut) error {
	return c.TransactWrite(ctx, puts, nil)
}

// TransactWrite writes every put only while every check holds.
func (c *DynamoDBClient) TransactWrite(ctx context.Context, puts []TransactPut, checks []TransactCheck) error {
	items := make([]types.TransactWriteItem, 0, len(puts)+len(checks))
	for _, p := range puts {
		av, err := attributevalue.MarshalMap(p.Item)
		if err != nil {
			return fmt.Errorf("marshal item: %w", err)
		}
		put := &types.Put{
			TableName: aws.String(p.TableName),
			Item:      av,
		}
		if p.Condition != nil {
			put.ConditionExpression = aws.String(p.Condition.Expression)
			if len(p.Condition.Values) > 0 {
				put.ExpressionAttributeValues = p.Condition.Values
			}
			if len(p.Condition.Names) > 0 {
				put.ExpressionAttributeNames = p.Condition.Names
			}
		}
		items = append(items, types.TransactWriteItem{Put: put})
	}
	for _, chk := range checks {
		check := &types.ConditionCheck{
			TableName:           aws.String(chk.TableName),
			Key:                 chk.Key,
			ConditionExpression: aws.String(chk.Condition.Expression),
		}
		if len(chk.Condition.Values) > 0 {
			check.ExpressionAttributeValues = chk.Condition.Values
		}
		if len(chk.Condition.Names) > 0 {
			check.ExpressionAttributeNames = chk.Condition.Names
		}
		items = append(items, types.TransactWriteItem{ConditionCheck: check})
	}

	_, err := c.svc.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		return wrapTransactError(err)
	}
	return nil
}

func (c *DynamoDBClient) GetItem(
	ctx context.Context,
	tableName string,
	key map[string]types.AttributeValue,
	out interface{},
) error {
	input := &dynamodb.GetItemInput{
		TableName:      aws.String(tableName),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	}

	res, err := c.svc.GetItem(ctx, input)
	if err != nil {
		return fmt.Errorf("get item %s: %w", tableName, err)
	}
	if res.Item == nil {
		return fmt.Errorf("%w in %s", ErrItemNotFound, tableName)
	}

	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return fmt.Errorf("unmarshal item: %w", err)
	}
	return nil
}

func (c *DynamoDBClient) UpdateItem(
	ctx context.Context,
	tableName string,
	key map[string]types.AttributeValue,
	updateExpr string,
	exprAttrValues map[string]types.AttributeValue,
	exprAttrNames map[string]string,
	out interface{},
) error {
	return c.UpdateItemIf(ctx, tableName, key, updateExpr, exprAttrValues, exprAttrNames, nil, out)
}

// UpdateItemIf applies updateExpr only when cond holds. A failed condition
// surfaces as ErrConditionFailed so callers can tell a lost race from an
// outage.
func (c *DynamoDBClient) UpdateItemIf(
	ctx context.Context,
	tableName string,
	key map[string]types.AttributeValue,
	updateExpr string,
	exprAttrValues map[string]types.AttributeValue,
	exprAttrNames map[string]string,
	cond *Condition,
	out interface{},
) error {
	values := make(map[string]types.AttributeValue, len(exprAttrValues))
	for k, v := range exprAttrValues {
		values[k] = v
	}
	names := make(map[string]string, len(exprAttrNames))
	for k, v := range exprAttrNames {
		names[k] = v
	}

	input := &dynamodb.UpdateItemInput{
		TableName:        aws.String(tableName),
		Key:              key,
		UpdateExpression: aws.String(updateExpr),
		ReturnValues:     types.ReturnValueAllNew,
	}
	if cond != nil {
		input.ConditionExpression = aws.String(cond.Expression)
		for k, v := range cond.Values {
			values[k] = v
		}
		for k, v := range cond.Names {
			names[k] = v
		}
	}
	if len(values) > 0 {
		input.ExpressionAttributeValues = values
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}

	res, err := c.svc.UpdateItem(ctx, input)
	if err != nil {
		return wrapWriteError("update item", tableName, err)
	}

	if out != nil {
		if err := attributevalue.UnmarshalMap(res.Attributes, out); err != nil {
			return fmt.Errorf("unmarshal updated item: %w", err)
		}
	}
	return nil
}

func (c *DynamoDBClient) DeleteItem(
	ctx context.Context,
	tableName string,
	key map[string]types.AttributeValue,
) error {
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(tableName),
		Key:       key,
	}

	_, err := c.svc.DeleteItem(ctx, input)
	if err != nil {
		return fmt.Errorf("delete item %s: %w", tableName, err)
	}
	return nil
}

func (c *DynamoDBClient) QueryItems(
	ctx context.Context,
	tableName string,
	indexName *string,
	keyCondExpr string,
	exprAttrValues map[string]types.AttributeValue,
	exprAttrNames map[string]string,
	scanIndexForward *bool,
) ([]map[string]types.AttributeValue, error) {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(tableName),
		KeyConditionExpression:    aws.String(keyCondExpr),
		ExpressionAttributeValues: exprAttrValues,
	}
	if indexName != nil {
		input.IndexName = indexName
	}
	if exprAttrNames != nil {
		input.ExpressionAttributeNames = exprAttrNames
	}

	if scanIndexForward != nil {
		input.ScanIndexForward = aws.Bool(*scanIndexForward)
	}

	out, err := c.svc.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("query %s[%s]: %w", tableName, aws.ToString(indexName), err)
	}

	return out.Items, nil
}

// QueryAll performs a complete query, handling pagination internally.
func (c *DynamoDBClient) QueryAll(
	ctx context.Context,
	tableName string,
	indexName *string,
	keyCondExpr string,
	filterExpr *string,
	exprAttrValues map[string]types.AttributeValue,
	exprAttrNames map[string]string,
) ([]map[string]types.AttributeValue, error) {
	var allItems []map[string]types.AttributeValue
	var lastEvaluatedKey map[string]types.AttributeValue

	for {
		input := &dynamodb.QueryInput{
			TableName:                 aws.String(tableName),
			KeyConditionExpression:    aws.String(keyCondExpr),
			ExpressionAttributeValues: exprAttrValues,
		}

		if indexName != nil {
			input.IndexName = indexName
		}
		if filterExpr != nil {
			input.FilterExpression = filterExpr
		}
		if exprAttrNames != nil {
			input.ExpressionAttributeNames = exprAttrNames
		}
		if lastEvaluatedKey != nil {
			input.ExclusiveStartKey = lastEvaluatedKey
		}

		result, err := c.svc.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query all %s[%s]: %w", tableName, aws.ToString(indexName), err)
		}

		allItems = append(allItems, result.Items...)

		if result.LastEvaluatedKey == nil {
			break
		}
		lastEvaluatedKey = result.LastEvaluatedKey
	}

	return allItems, nil
}

// UnmarshalAll decodes query results into a typed slice.
func UnmarshalAll[T any](items []map[string]types.AttributeValue) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, item := range items {
		var v T
		if err := attributevalue.UnmarshalMap(item, &v); err != nil {
			return nil, fmt.Errorf("unmarshal item: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound)
}

func IsConditionFailed(err error) bool {
	return errors.Is(err, ErrConditionFailed)
}

func wrapWriteError(op, tableName string, err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("%s %s: %w", op, tableName, ErrConditionFailed)
	}
	return fmt.Errorf("%s %s: %w", op, tableName, err)
}

func wrapTransactError(err error) error {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return fmt.Errorf("transact write: %w", ErrConditionFailed)
			}
		}
	}
	return fmt.Errorf("transact write: %w", err)
}
