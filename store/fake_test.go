package store

import (
	"bytes"
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is an in-memory DynamoDBAPI that understands the expressions
// the Store builds.
type fakeDynamo struct {
	mu     sync.Mutex
	tables map[string]bool
	items  map[string][]map[string]types.AttributeValue

	describeErr error
	createErr   error
	ttlErr      error
	putErr      error
	queryErr    error

	pageSize int

	createCalls int
	ttlCalls    int
	putCalls    int
	queries     []*dynamodb.QueryInput
	lastCreate  *dynamodb.CreateTableInput
	lastTTL     *dynamodb.UpdateTimeToLiveInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{
		tables: make(map[string]bool),
		items:  make(map[string][]map[string]types.AttributeValue),
	}
}

func (f *fakeDynamo) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	if !f.tables[aws.ToString(in.TableName)] {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found")}
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{
			TableName:   in.TableName,
			TableStatus: types.TableStatusActive,
		},
	}, nil
}

func (f *fakeDynamo) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.lastCreate = in
	if f.createErr != nil {
		return nil, f.createErr
	}
	name := aws.ToString(in.TableName)
	if f.tables[name] {
		return nil, &types.ResourceInUseException{Message: aws.String("Table already exists: " + name)}
	}
	f.tables[name] = true
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeDynamo) UpdateTimeToLive(_ context.Context, in *dynamodb.UpdateTimeToLiveInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttlCalls++
	f.lastTTL = in
	if f.ttlErr != nil {
		return nil, f.ttlErr
	}
	return &dynamodb.UpdateTimeToLiveOutput{TimeToLiveSpecification: in.TimeToLiveSpecification}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++
	if f.putErr != nil {
		return nil, f.putErr
	}
	name := aws.ToString(in.TableName)
	sk := in.Item["sk"].(*types.AttributeValueMemberB).Value
	for i, existing := range f.items[name] {
		if bytes.Equal(existing["sk"].(*types.AttributeValueMemberB).Value, sk) {
			f.items[name][i] = in.Item
			return &dynamodb.PutItemOutput{}, nil
		}
	}
	f.items[name] = append(f.items[name], in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, in)
	if f.queryErr != nil {
		return nil, f.queryErr
	}

	values := in.ExpressionAttributeValues
	pk := values[":pk"].(*types.AttributeValueMemberS).Value
	start := values[":start"].(*types.AttributeValueMemberB).Value
	end := values[":end"].(*types.AttributeValueMemberB).Value
	now, _ := strconv.ParseInt(values[":now"].(*types.AttributeValueMemberN).Value, 10, 64)
	ttlAttr := in.ExpressionAttributeNames["#ttl"]

	var matched []map[string]types.AttributeValue
	for _, item := range f.items[aws.ToString(in.TableName)] {
		if item["pk"].(*types.AttributeValueMemberS).Value != pk {
			continue
		}
		sk := item["sk"].(*types.AttributeValueMemberB).Value
		if bytes.Compare(sk, start) < 0 || bytes.Compare(sk, end) > 0 {
			continue
		}
		if ttl, ok := item[ttlAttr].(*types.AttributeValueMemberN); ok {
			if v, _ := strconv.ParseInt(ttl.Value, 10, 64); v <= now {
				continue
			}
		}
		matched = append(matched, item)
	}
	sort.Slice(matched, func(i, j int) bool {
		return bytes.Compare(matched[i]["sk"].(*types.AttributeValueMemberB).Value, matched[j]["sk"].(*types.AttributeValueMemberB).Value) < 0
	})

	if in.ExclusiveStartKey != nil {
		after := in.ExclusiveStartKey["sk"].(*types.AttributeValueMemberB).Value
		i := 0
		for i < len(matched) && bytes.Compare(matched[i]["sk"].(*types.AttributeValueMemberB).Value, after) <= 0 {
			i++
		}
		matched = matched[i:]
	}

	out := &dynamodb.QueryOutput{}
	if f.pageSize > 0 && len(matched) > f.pageSize {
		matched = matched[:f.pageSize]
		last := matched[len(matched)-1]
		out.LastEvaluatedKey = map[string]types.AttributeValue{"pk": last["pk"], "sk": last["sk"]}
	}

	for _, item := range matched {
		out.Items = append(out.Items, project(item, in))
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

func project(item map[string]types.AttributeValue, in *dynamodb.QueryInput) map[string]types.AttributeValue {
	if in.ProjectionExpression == nil {
		return item
	}
	out := make(map[string]types.AttributeValue)
	for _, placeholder := range strings.Split(aws.ToString(in.ProjectionExpression), ", ") {
		name := in.ExpressionAttributeNames[placeholder]
		if v, ok := item[name]; ok {
			out[name] = v
		}
	}
	return out
}

func (f *fakeDynamo) stored(table string) []map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]types.AttributeValue(nil), f.items[table]...)
}
