// Package dynamo is a durable tier on DynamoDB.
//
// Each model lives in its own table named TablePrefix+model, hash-keyed on
// the model's primary key attribute (type S). Index pointers share one table
// hash-keyed on "pk". Tables are provisioned outside this package.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/unkn0wn-root/tiered/backend"
	"github.com/unkn0wn-root/tiered/serial"
	"github.com/unkn0wn-root/tiered/value"
)

const (
	pointerKey = "pk"
	pointerID  = "id"
	batchSize  = 25
)

// API is the subset of *dynamodb.Client the backend uses.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

type Config struct {
	Client      API
	TablePrefix string
	// IndexTable defaults to TablePrefix + "tiered_index".
	IndexTable string
}

type Backend struct {
	api    API
	prefix string
	index  string
	table  serial.Table
	dec    *attributevalue.Decoder

	mu     sync.RWMutex
	models map[string]backend.Schema
}

var (
	_ backend.Backend       = (*Backend)(nil)
	_ backend.SchemaEnsurer = (*Backend)(nil)
)

func New(cfg Config) (*Backend, error) {
	if cfg.Client == nil {
		return nil, backend.ErrNilClient
	}
	index := cfg.IndexTable
	if index == "" {
		index = cfg.TablePrefix + "tiered_index"
	}
	return &Backend{
		api:    cfg.Client,
		prefix: cfg.TablePrefix,
		index:  index,
		table:  serial.Native(),
		dec: attributevalue.NewDecoder(func(o *attributevalue.DecoderOptions) {
			o.UseNumber = true
		}),
		models: make(map[string]backend.Schema),
	}, nil
}

func (b *Backend) Name() string { return "dynamo" }

// EnsureSchema only records the key attribute of the model.
func (b *Backend) EnsureSchema(_ context.Context, sc backend.Schema) error {
	b.mu.Lock()
	b.models[sc.Model] = sc
	b.mu.Unlock()
	return nil
}

func (b *Backend) tableOf(model string) (string, string, error) {
	b.mu.RLock()
	sc, ok := b.models[model]
	b.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("dynamo: no schema for model %q", model)
	}
	return b.prefix + model, sc.Key, nil
}

func rowKey(keyAttr, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{keyAttr: &types.AttributeValueMemberS{Value: id}}
}

func (b *Backend) Fetch(ctx context.Context, req backend.FetchRequest) (value.Values, bool, error) {
	table, keyAttr, err := b.tableOf(req.Model)
	if err != nil {
		return nil, false, err
	}
	names := map[string]string{"#k": keyAttr}
	proj := []string{"#k"}
	for i, n := range req.Attributes {
		p := "#a" + strconv.Itoa(i)
		names[p] = n
		proj = append(proj, p)
	}
	out, err := b.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(table),
		Key:                      rowKey(keyAttr, req.ID),
		ConsistentRead:           aws.Bool(true),
		ProjectionExpression:     aws.String(strings.Join(proj, ", ")),
		ExpressionAttributeNames: names,
	})
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", table, err)
	}
	if out.Item == nil {
		return nil, false, nil
	}

	vals := make(value.Values, len(req.Attributes))
	for _, n := range req.Attributes {
		av, ok := out.Item[n]
		if !ok {
			continue
		}
		var raw any
		if err := b.dec.Decode(av, &raw); err != nil {
			return nil, false, fmt.Errorf("dynamo: decode %s.%s: %w", req.Model, n, err)
		}
		if num, ok := raw.(attributevalue.Number); ok {
			raw = string(num)
		}
		v, err := b.table.Unserialize(req.Types[n], raw)
		if err != nil {
			return nil, false, fmt.Errorf("dynamo: %s.%s: %w", req.Model, n, err)
		}
		if v != nil {
			vals[n] = v
		}
	}
	return vals, true, nil
}

// Save issues one UpdateItem: SET for values, REMOVE for nils, ADD for
// increments. ADD treats a missing attribute as zero. A Fill save sets
// values through if_not_exists.
func (b *Backend) Save(ctx context.Context, req backend.SaveRequest) error {
	table, keyAttr, err := b.tableOf(req.Model)
	if err != nil {
		return err
	}
	expr, names, vals, err := b.updateExpression(req)
	if err != nil {
		return err
	}
	if expr == "" {
		if !req.Insert {
			return nil
		}
		_, err := b.api.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(table),
			Item:      rowKey(keyAttr, req.ID),
		})
		if err != nil {
			return fmt.Errorf("put %s: %w", table, err)
		}
		return nil
	}
	in := &dynamodb.UpdateItemInput{
		TableName:                aws.String(table),
		Key:                      rowKey(keyAttr, req.ID),
		UpdateExpression:         aws.String(expr),
		ExpressionAttributeNames: names,
	}
	if len(vals) > 0 {
		in.ExpressionAttributeValues = vals
	}
	if _, err := b.api.UpdateItem(ctx, in); err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return nil
}

func (b *Backend) updateExpression(req backend.SaveRequest) (string, map[string]string, map[string]types.AttributeValue, error) {
	names := make(map[string]string)
	vals := make(map[string]types.AttributeValue)
	var set, remove, add []string

	attrs := make([]string, 0, len(req.Data))
	for n := range req.Data {
		attrs = append(attrs, n)
	}
	sort.Strings(attrs)
	i := 0
	for _, n := range attrs {
		p := "#a" + strconv.Itoa(i)
		names[p] = n
		raw, err := b.table.Serialize(req.Types[n], req.Data[n])
		if err != nil {
			return "", nil, nil, fmt.Errorf("dynamo: %s.%s: %w", req.Model, n, err)
		}
		switch {
		case raw == nil && req.Fill:
		case raw == nil:
			remove = append(remove, p)
		default:
			av, err := attributevalue.Marshal(raw)
			if err != nil {
				return "", nil, nil, fmt.Errorf("dynamo: marshal %s.%s: %w", req.Model, n, err)
			}
			v := ":v" + strconv.Itoa(i)
			vals[v] = av
			if req.Fill {
				set = append(set, p+" = if_not_exists("+p+", "+v+")")
			} else {
				set = append(set, p+" = "+v)
			}
		}
		i++
	}

	incs := make([]string, 0, len(req.Increments))
	for n := range req.Increments {
		incs = append(incs, n)
	}
	sort.Strings(incs)
	for _, n := range incs {
		p := "#a" + strconv.Itoa(i)
		v := ":v" + strconv.Itoa(i)
		names[p] = n
		d := req.Increments[n]
		num := strconv.FormatFloat(d, 'f', -1, 64)
		if req.Types[n] != value.Float {
			num = strconv.FormatInt(int64(d), 10)
		}
		vals[v] = &types.AttributeValueMemberN{Value: num}
		add = append(add, p+" "+v)
		i++
	}

	var parts []string
	if len(set) > 0 {
		parts = append(parts, "SET "+strings.Join(set, ", "))
	}
	if len(remove) > 0 {
		parts = append(parts, "REMOVE "+strings.Join(remove, ", "))
	}
	if len(add) > 0 {
		parts = append(parts, "ADD "+strings.Join(add, ", "))
	}
	return strings.Join(parts, " "), names, vals, nil
}

func (b *Backend) Destroy(ctx context.Context, req backend.DestroyRequest) error {
	table, keyAttr, err := b.tableOf(req.Model)
	if err != nil {
		return err
	}
	_, err = b.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(table),
		Key:       rowKey(keyAttr, req.ID),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

func pointerPK(k backend.IndexKey) string {
	return k.Model + "#" + k.Attribute + "#" + k.Value
}

func (b *Backend) IndexGet(ctx context.Context, k backend.IndexKey) (string, bool, error) {
	out, err := b.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.index),
		Key:            rowKey(pointerKey, pointerPK(k)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, fmt.Errorf("index get: %w", err)
	}
	if out.Item == nil {
		return "", false, nil
	}
	id, ok := out.Item[pointerID].(*types.AttributeValueMemberS)
	if !ok {
		return "", false, fmt.Errorf("index get: pointer %q has no id", pointerPK(k))
	}
	return id.Value, true, nil
}

func (b *Backend) IndexSet(ctx context.Context, k backend.IndexKey, id string) (bool, error) {
	_, err := b.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.index),
		Item: map[string]types.AttributeValue{
			pointerKey: &types.AttributeValueMemberS{Value: pointerPK(k)},
			pointerID:  &types.AttributeValueMemberS{Value: id},
		},
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return true, nil
		}
		return false, fmt.Errorf("index set: %w", err)
	}
	return false, nil
}

func (b *Backend) IndexDel(ctx context.Context, k backend.IndexKey) error {
	_, err := b.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(b.index),
		Key:       rowKey(pointerKey, pointerPK(k)),
	})
	if err != nil {
		return fmt.Errorf("index del: %w", err)
	}
	return nil
}

// Reset scans every known model table and the index table and deletes
// what it finds.
func (b *Backend) Reset(ctx context.Context) error {
	b.mu.RLock()
	tables := map[string]string{b.index: pointerKey}
	for m, sc := range b.models {
		tables[b.prefix+m] = sc.Key
	}
	b.mu.RUnlock()

	for table, keyAttr := range tables {
		if err := b.truncate(ctx, table, keyAttr); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) truncate(ctx context.Context, table, keyAttr string) error {
	p := dynamodb.NewScanPaginator(b.api, &dynamodb.ScanInput{
		TableName:                aws.String(table),
		ProjectionExpression:     aws.String("#k"),
		ExpressionAttributeNames: map[string]string{"#k": keyAttr},
	})
	var pending []types.WriteRequest
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}
		for _, item := range page.Items {
			pending = append(pending, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: map[string]types.AttributeValue{keyAttr: item[keyAttr]}},
			})
			if len(pending) == batchSize {
				if err := b.deleteBatch(ctx, table, pending); err != nil {
					return err
				}
				pending = pending[:0]
			}
		}
	}
	if len(pending) > 0 {
		return b.deleteBatch(ctx, table, pending)
	}
	return nil
}

func (b *Backend) deleteBatch(ctx context.Context, table string, reqs []types.WriteRequest) error {
	items := map[string][]types.WriteRequest{table: append([]types.WriteRequest(nil), reqs...)}
	for attempt := 0; len(items) > 0; attempt++ {
		if attempt == 5 {
			return fmt.Errorf("batch delete %s: %d items unprocessed", table, len(items[table]))
		}
		out, err := b.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: items})
		if err != nil {
			return fmt.Errorf("batch delete %s: %w", table, err)
		}
		items = out.UnprocessedItems
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (b *Backend) Close(context.Context) error { return nil }
