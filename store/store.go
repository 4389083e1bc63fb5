package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/jacentio/featurewindow/internal/rowkey"
)

const (
	partitionAttr = "pk"
	sortAttr      = "sk"
)

// DynamoDBAPI is the subset of *dynamodb.Client the Store uses.
type DynamoDBAPI interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	UpdateTimeToLive(ctx context.Context, params *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var _ DynamoDBAPI = (*dynamodb.Client)(nil)

// Store reads and writes documents in one DynamoDB table. It is safe for
// concurrent use once initialized.
type Store struct {
	client DynamoDBAPI
	config Config
	logger *zap.Logger
	ready  atomic.Bool
	now    func() time.Time
}

// New creates a new Store instance.
func New(client DynamoDBAPI, config Config) *Store {
	return NewWithLogger(client, config, nil)
}

// NewWithLogger creates a new Store instance that logs provisioning steps.
func NewWithLogger(client DynamoDBAPI, config Config, logger *zap.Logger) *Store {
	config.validate()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client: client,
		config: config,
		logger: logger.With(zap.String("table", config.Table)),
		now:    time.Now,
	}
}

// Name returns the table name.
func (s *Store) Name() string { return s.config.Table }

// ColumnFamily returns the column family cells are written under.
func (s *Store) ColumnFamily() string { return s.config.ColumnFamily }

// Retention returns the configured document retention.
func (s *Store) Retention() time.Duration { return s.config.Retention }

// TableExists reports whether the table exists.
func (s *Store) TableExists(ctx context.Context) (bool, error) {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.config.Table),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, &ProvisioningError{Table: s.config.Table, Op: "describe", Err: err}
}

// CreateTable creates the table, waits for it to become active and enables
// expiry on the TTL attribute. A table created concurrently by another
// process is accepted as is.
func (s *Store) CreateTable(ctx context.Context, retention time.Duration, columnFamily string) error {
	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.config.Table),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(partitionAttr), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(sortAttr), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(partitionAttr), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(sortAttr), AttributeType: types.ScalarAttributeTypeB},
		},
		BillingMode: types.BillingModePayPerRequest,
		Tags: []types.Tag{
			{Key: aws.String("column_family"), Value: aws.String(columnFamily)},
			{Key: aws.String("max_age_ms"), Value: aws.String(strconv.FormatInt(retention.Milliseconds(), 10))},
		},
	})

	concurrent := false
	if err != nil {
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return &ProvisioningError{Table: s.config.Table, Op: "create", Err: err}
		}
		concurrent = true
		s.logger.Info("table is being created by another writer")
	}

	if err := s.waitActive(ctx); err != nil {
		return err
	}

	_, err = s.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(s.config.Table),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String(s.config.TTLAttribute),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil && !(concurrent && ttlAlreadyEnabled(err)) {
		return &ProvisioningError{Table: s.config.Table, Op: "ttl", Err: err}
	}
	return nil
}

// ttlAlreadyEnabled matches the validation error DynamoDB returns when the
// TTL specification is already in place.
func ttlAlreadyEnabled(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode() == "ValidationException" &&
		strings.Contains(strings.ToLower(apiErr.ErrorMessage()), "already enabled")
}

func (s *Store) waitActive(ctx context.Context) error {
	waiter := dynamodb.NewTableExistsWaiter(s.client)
	err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.config.Table),
	}, s.config.CreateTimeout)
	if err != nil {
		return &ProvisioningError{Table: s.config.Table, Op: "wait", Err: err}
	}
	return nil
}

// Initialize makes the store usable once the table is known to exist. It
// waits for a table still being created. Calling it again is a no-op.
func (s *Store) Initialize(ctx context.Context) error {
	if s.ready.Load() {
		return nil
	}
	out, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.config.Table),
	})
	if err != nil {
		return &ProvisioningError{Table: s.config.Table, Op: "describe", Err: err}
	}
	if out.Table == nil || out.Table.TableStatus != types.TableStatusActive {
		if err := s.waitActive(ctx); err != nil {
			return err
		}
	}
	s.ready.Store(true)
	return nil
}

// Put writes doc without blocking the caller. The returned channel receives
// exactly one value: nil on success, or a *WriteError.
func (s *Store) Put(ctx context.Context, doc Document) <-chan error {
	result := make(chan error, 1)

	if !s.ready.Load() {
		result <- &WriteError{Table: s.config.Table, Key: doc.Key, Err: ErrNotInitialized}
		return result
	}

	item, err := s.marshalDocument(doc)
	if err != nil {
		result <- &WriteError{Table: s.config.Table, Key: doc.Key, Err: err}
		return result
	}

	go func() {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.config.Table),
			Item:      item,
		})
		if err != nil {
			result <- &WriteError{Table: s.config.Table, Key: doc.Key, Err: err}
			return
		}
		result <- nil
	}()

	return result
}

// Scan returns the documents in [req.Start, req.End), newest first. Pages are
// fetched lazily as the sequence is consumed. RangeOverData requests only
// return the requested cells.
//
// Both bounds must be row keys built by the rowkey package for the same
// entity, since a range is served by one Query on that entity's partition.
// Other bounds yield ErrMalformedKey, and bounds of different entities yield
// ErrInvalidRange.
func (s *Store) Scan(ctx context.Context, req ScanRequest) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		if !s.ready.Load() {
			yield(Document{}, ErrNotInitialized)
			return
		}

		input, err := s.queryInput(req)
		if err != nil {
			yield(Document{}, err)
			return
		}
		if input == nil {
			return // empty range
		}

		paginator := dynamodb.NewQueryPaginator(s.client, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(Document{}, fmt.Errorf("featurewindow: scan table %q: %w", s.config.Table, err))
				return
			}
			now := s.now()
			for _, item := range page.Items {
				if IsExpired(item, s.config.TTLAttribute, now) {
					continue
				}
				doc, err := s.unmarshalDocument(item)
				if err != nil {
					if !yield(Document{}, err) {
						return
					}
					continue
				}
				if bytes.Equal(doc.Key, req.End) {
					continue
				}
				if !yield(doc, nil) {
					return
				}
			}
		}
	}
}

// queryInput builds the Query for req, or returns nil for an empty range.
func (s *Store) queryInput(req ScanRequest) (*dynamodb.QueryInput, error) {
	pk, err := rowkey.Partition(req.Start)
	if err != nil {
		return nil, err
	}
	endPK, err := rowkey.Partition(req.End)
	if err != nil {
		return nil, err
	}
	if pk != endPK {
		return nil, fmt.Errorf("%w: %q, %q", ErrInvalidRange, pk, endPK)
	}
	if bytes.Compare(req.Start, req.End) >= 0 {
		return nil, nil
	}

	names := map[string]string{
		"#pk": partitionAttr,
		"#sk": sortAttr,
	}
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.config.Table),
		KeyConditionExpression: aws.String("#pk = :pk AND #sk BETWEEN :start AND :end"),
		FilterExpression:       aws.String(TTLFilterExpr()),
		ExpressionAttributeValues: mergeExprValues(
			map[string]types.AttributeValue{
				":pk":    &types.AttributeValueMemberS{Value: pk},
				":start": &types.AttributeValueMemberB{Value: req.Start},
				":end":   &types.AttributeValueMemberB{Value: req.End},
			},
			TTLFilterValues(s.now()),
		),
		ScanIndexForward: aws.Bool(true),
	}

	if req.Shape == RangeOverData {
		projection := []string{"#pk", "#sk"}
		for i, col := range req.Columns {
			placeholder := fmt.Sprintf("#c%d", i)
			names[placeholder] = s.qualifier(col)
			projection = append(projection, placeholder)
		}
		input.ProjectionExpression = aws.String(strings.Join(projection, ", "))
	}

	input.ExpressionAttributeNames = mergeExprNames(names, TTLFilterNames(s.config.TTLAttribute))
	return input, nil
}

// qualifier returns the attribute name of a cell.
func (s *Store) qualifier(column string) string {
	return s.config.ColumnFamily + ":" + column
}

// marshalDocument converts a document to a DynamoDB item.
func (s *Store) marshalDocument(doc Document) (map[string]types.AttributeValue, error) {
	pk, err := rowkey.Partition(doc.Key)
	if err != nil {
		return nil, err
	}

	item := map[string]types.AttributeValue{
		partitionAttr: &types.AttributeValueMemberS{Value: pk},
		sortAttr:      &types.AttributeValueMemberB{Value: doc.Key},
	}
	for col, value := range doc.Cells {
		av, err := attributevalue.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal cell %s: %w", col, err)
		}
		item[s.qualifier(col)] = av
	}
	if s.config.Retention > 0 {
		item[s.config.TTLAttribute] = ExpiresAt(s.now(), s.config.Retention)
	}
	return item, nil
}

// unmarshalDocument converts a DynamoDB item to a Document. Attributes
// outside the column family are ignored.
func (s *Store) unmarshalDocument(item map[string]types.AttributeValue) (Document, error) {
	sk, ok := item[sortAttr].(*types.AttributeValueMemberB)
	if !ok {
		return Document{}, fmt.Errorf("%w: item has no binary sort key", ErrMalformedKey)
	}

	doc := Document{Key: sk.Value, Cells: make(map[string]string)}
	prefix := s.config.ColumnFamily + ":"
	for name, av := range item {
		col, ok := strings.CutPrefix(name, prefix)
		if !ok {
			continue
		}
		var value string
		if err := attributevalue.Unmarshal(av, &value); err != nil {
			return Document{}, fmt.Errorf("unmarshal cell %s: %w", col, err)
		}
		doc.Cells[col] = value
	}
	return doc, nil
}
