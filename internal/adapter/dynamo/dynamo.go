// Package dynamo implements adapter.TableStore on DynamoDB. Every table uses
// the key schema PartitionKey (HASH, S) / RowKey (RANGE, S); all other
// attributes are entity properties.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jun/socialnet/internal/adapter"
	"github.com/jun/socialnet/internal/tablecache"
)

const (
	partitionKey = "PartitionKey"
	rowKey       = "RowKey"

	defaultWaitTimeout = 2 * time.Minute
)

// Client is the subset of *dynamodb.Client used by Store.
type Client interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

var _ Client = (*dynamodb.Client)(nil)

// table is the cached per-table handle.
type table struct {
	name *string
}

// Store implements adapter.TableStore.
type Store struct {
	client      Client
	tables      *tablecache.Cache[*table]
	waitTimeout time.Duration
}

var _ adapter.TableStore = (*Store)(nil)

// NewStore returns a Store whose physical table names are prefix+name.
// A nil client leaves the table cache uninitialized; any call then panics.
func NewStore(client Client, prefix string) *Store {
	s := &Store{client: client, waitTimeout: defaultWaitTimeout}
	if client != nil {
		s.tables = tablecache.New(func(name string) *table {
			return &table{name: aws.String(prefix + name)}
		})
	}
	return s
}

func itemKey(partition, row string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		partitionKey: &types.AttributeValueMemberS{Value: partition},
		rowKey:       &types.AttributeValueMemberS{Value: row},
	}
}

func decode(item map[string]types.AttributeValue) (adapter.Entity, error) {
	var props map[string]any
	if err := attributevalue.UnmarshalMap(item, &props); err != nil {
		return adapter.Entity{}, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	e := adapter.Entity{Properties: props}
	e.Partition, _ = props[partitionKey].(string)
	e.Row, _ = props[rowKey].(string)
	delete(props, partitionKey)
	delete(props, rowKey)
	return e, nil
}

// storeError maps DynamoDB API errors onto adapter errors.
func storeError(op, name string, err error) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%s %q: %w", op, name, adapter.ErrTableNotFound)
	}
	return fmt.Errorf("failed to %s %q: %w", op, name, err)
}

func (s *Store) CreateTable(ctx context.Context, name string) (bool, error) {
	t := s.tables.Lookup(name)

	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: t.name,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(partitionKey), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(rowKey), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(partitionKey), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(rowKey), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return false, nil
		}
		return false, storeError("create table", name, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: t.name}, s.waitTimeout); err != nil {
		return true, fmt.Errorf("table %q did not become active: %w", name, err)
	}
	return true, nil
}

func (s *Store) DeleteTable(ctx context.Context, name string) error {
	t := s.tables.Lookup(name)
	defer s.tables.Delete(name)

	if _, err := s.client.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: t.name}); err != nil {
		return storeError("delete table", name, err)
	}
	return nil
}

func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	t := s.tables.Lookup(name)

	out, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: t.name})
	if err != nil {
		if err = storeError("describe table", name, err); errors.Is(err, adapter.ErrTableNotFound) {
			return false, nil
		}
		return false, err
	}
	return out.Table != nil && out.Table.TableStatus != types.TableStatusDeleting, nil
}

func (s *Store) Get(ctx context.Context, name, partition, row string) (adapter.Entity, error) {
	t := s.tables.Lookup(name)

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      t.name,
		Key:            itemKey(partition, row),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return adapter.Entity{}, storeError("get item from", name, err)
	}
	if out.Item == nil {
		return adapter.Entity{}, adapter.ErrNotFound
	}
	return decode(out.Item)
}

// Put issues one UpdateItem that SETs every property. In Merge mode the
// write is conditional on the item already existing.
func (s *Store) Put(ctx context.Context, name string, e adapter.Entity, mode adapter.PutMode) error {
	t := s.tables.Lookup(name)

	input := &dynamodb.UpdateItemInput{
		TableName: t.name,
		Key:       itemKey(e.Partition, e.Row),
	}

	builder := expression.NewBuilder()
	build := false
	if len(e.Properties) > 0 {
		var update expression.UpdateBuilder
		for i, prop := range slices.Sorted(maps.Keys(e.Properties)) {
			if i == 0 {
				update = expression.Set(expression.Name(prop), expression.Value(e.Properties[prop]))
				continue
			}
			update = update.Set(expression.Name(prop), expression.Value(e.Properties[prop]))
		}
		builder = builder.WithUpdate(update)
		build = true
	}
	if mode == adapter.Merge {
		builder = builder.WithCondition(expression.AttributeExists(expression.Name(partitionKey)))
		build = true
	}
	if build {
		expr, err := builder.Build()
		if err != nil {
			return fmt.Errorf("failed to build update expression: %w", err)
		}
		input.UpdateExpression = expr.Update()
		input.ConditionExpression = expr.Condition()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return adapter.ErrNotFound
		}
		return storeError("update item in", name, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, name, partition, row string) error {
	t := s.tables.Lookup(name)

	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    t.name,
		Key:          itemKey(partition, row),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return storeError("delete item from", name, err)
	}
	if len(out.Attributes) == 0 {
		return adapter.ErrNotFound
	}
	return nil
}

func (s *Store) Query(ctx context.Context, name, partition string) iter.Seq2[adapter.Entity, error] {
	return func(yield func(adapter.Entity, error) bool) {
		t := s.tables.Lookup(name)

		keyCond := expression.Key(partitionKey).Equal(expression.Value(partition))
		expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
		if err != nil {
			yield(adapter.Entity{}, fmt.Errorf("failed to build key condition: %w", err))
			return
		}

		p := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
			TableName:                 t.name,
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ConsistentRead:            aws.Bool(true),
		})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				yield(adapter.Entity{}, storeError("query", name, err))
				return
			}
			if !yieldItems(page.Items, yield) {
				return
			}
		}
	}
}

func (s *Store) Scan(ctx context.Context, name string) iter.Seq2[adapter.Entity, error] {
	return func(yield func(adapter.Entity, error) bool) {
		t := s.tables.Lookup(name)

		p := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
			TableName:      t.name,
			ConsistentRead: aws.Bool(true),
		})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				yield(adapter.Entity{}, storeError("scan", name, err))
				return
			}
			if !yieldItems(page.Items, yield) {
				return
			}
		}
	}
}

func yieldItems(items []map[string]types.AttributeValue, yield func(adapter.Entity, error) bool) bool {
	for _, item := range items {
		e, err := decode(item)
		if !yield(e, err) || err != nil {
			return false
		}
	}
	return true
}
