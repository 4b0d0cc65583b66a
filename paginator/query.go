package paginator

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"dynamapper/expressions"
	"dynamapper/item"
	appErrors "dynamapper/pkg/errors"
)

// QueryAPI is the slice of the store client the query paginator consumes.
type QueryAPI interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// QueryOptions configures a paginated query.
type QueryOptions struct {
	IndexName string
	// Filter is applied server-side after the key condition.
	Filter expressions.ConditionExpression
	// Projection limits the attributes fetched.
	Projection     expressions.ProjectionExpression
	ConsistentRead bool
	// ScanIndexForward reverses the sort order when set to false.
	ScanIndexForward *bool
	// Limit caps the total number of items yielded; zero means unbounded.
	Limit int
	// PageSize caps the items per RPC; zero defers to the server default.
	PageSize int32
	// StartKey resumes iteration from a previous LastEvaluatedKey, given as
	// unmarshalled property values.
	StartKey map[string]any

	Logger          *zap.Logger
	TableNamePrefix string
	// CallOptions are applied to every outbound RPC.
	CallOptions []func(*dynamodb.Options)
}

// QueryPaginator lazily iterates a query's result set, fetching pages on
// demand and tracking the continuation key for resumption.
type QueryPaginator struct {
	*iterator
	client QueryAPI
	input  dynamodb.QueryInput
	opts   QueryOptions
	logger *zap.Logger
	opID   string
}

// NewQueryPaginator prepares a query over the constructor's item type. The
// keyCondition must name the partition key and may constrain the sort key.
func NewQueryPaginator(client QueryAPI, ctor item.Constructor, keyCondition expressions.ConditionExpression, opts *QueryOptions) (*QueryPaginator, error) {
	if opts == nil {
		opts = &QueryOptions{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	exemplar := ctor()
	sch, err := item.SchemaOf(exemplar)
	if err != nil {
		return nil, err
	}
	table, err := item.TableNameOf(exemplar, opts.TableNamePrefix)
	if err != nil {
		return nil, err
	}

	attrs := expressions.NewExpressionAttributes()
	serializedKey, err := expressions.SerializeConditionExpression(keyCondition, sch, attrs)
	if err != nil {
		return nil, err
	}

	input := dynamodb.QueryInput{
		TableName:              aws.String(table),
		KeyConditionExpression: aws.String(serializedKey),
		ScanIndexForward:       opts.ScanIndexForward,
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	}
	if opts.IndexName != "" {
		input.IndexName = aws.String(opts.IndexName)
	}
	if opts.ConsistentRead {
		input.ConsistentRead = aws.Bool(true)
	}
	if opts.Filter != nil {
		serialized, err := expressions.SerializeConditionExpression(opts.Filter, sch, attrs)
		if err != nil {
			return nil, err
		}
		input.FilterExpression = aws.String(serialized)
	}
	if len(opts.Projection) > 0 {
		serialized, err := expressions.SerializeProjectionExpression(opts.Projection, sch, attrs)
		if err != nil {
			return nil, err
		}
		input.ProjectionExpression = aws.String(serialized)
	}
	input.ExpressionAttributeNames = attrs.Names()
	input.ExpressionAttributeValues = attrs.Values()

	startKey, err := marshalStartKey(sch, opts.StartKey, opts.IndexName)
	if err != nil {
		return nil, err
	}

	p := &QueryPaginator{
		client: client,
		input:  input,
		opts:   *opts,
		logger: logger,
		opID:   uuid.NewString(),
	}
	p.iterator = newIterator(p, ctor, sch, opts.IndexName, opts.Limit, opts.PageSize, startKey)
	return p, nil
}

// Next yields the next item. ok=false with a nil error marks the end of the
// result set or the configured limit.
func (p *QueryPaginator) Next(ctx context.Context) (item.Item, bool, error) {
	return p.iterator.next(ctx)
}

// Pages switches the paginator to page-at-a-time iteration. Per-item Next
// calls fail afterwards.
func (p *QueryPaginator) Pages() *Pages {
	p.iterator.pagesMode = true
	return &Pages{it: p.iterator}
}

func (p *QueryPaginator) fetch(ctx context.Context, startKey map[string]types.AttributeValue, limit *int32) (*page, error) {
	input := p.input
	input.ExclusiveStartKey = startKey
	input.Limit = limit

	p.logger.Debug("fetching query page",
		zap.String("operation_id", p.opID),
		zap.String("table", aws.ToString(input.TableName)),
		zap.Bool("resumed", startKey != nil))

	out, err := p.client.Query(ctx, &input, p.opts.CallOptions...)
	if err != nil {
		return nil, appErrors.WrapTransport(err, "Query failed")
	}
	return &page{
		items:            out.Items,
		lastEvaluatedKey: out.LastEvaluatedKey,
		count:            out.Count,
		scannedCount:     out.ScannedCount,
		capacity:         out.ConsumedCapacity,
	}, nil
}

// Pages is the page-at-a-time view over a paginator. Metadata accessors on
// the originating paginator remain live.
type Pages struct {
	it *iterator
}

// Next yields the next page of hydrated items. ok=false with a nil error
// marks the end of the result set or the configured limit.
func (p *Pages) Next(ctx context.Context) ([]item.Item, bool, error) {
	return p.it.nextPage(ctx)
}

