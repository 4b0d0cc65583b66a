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

// ScanAPI is the slice of the store client the scan paginator consumes.
type ScanAPI interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// ScanOptions configures a paginated scan.
type ScanOptions struct {
	IndexName string
	// Filter is applied server-side to each evaluated item.
	Filter expressions.ConditionExpression
	// Projection limits the attributes fetched.
	Projection     expressions.ProjectionExpression
	ConsistentRead bool
	// Limit caps the total number of items yielded; zero means unbounded.
	Limit int
	// PageSize caps the items per RPC; zero defers to the server default.
	PageSize int32
	// Segment and TotalSegments restrict the scan to one segment of a
	// partitioned table scan. Both must be set together.
	Segment       *int32
	TotalSegments *int32
	// StartKey resumes iteration from a previous LastEvaluatedKey, given as
	// unmarshalled property values.
	StartKey map[string]any

	Logger          *zap.Logger
	TableNamePrefix string
	// CallOptions are applied to every outbound RPC.
	CallOptions []func(*dynamodb.Options)
}

// ScanPaginator lazily iterates a scan's result set, fetching pages on demand
// and tracking the continuation key for resumption.
type ScanPaginator struct {
	*iterator
	client ScanAPI
	input  dynamodb.ScanInput
	opts   ScanOptions
	logger *zap.Logger
	opID   string
}

// NewScanPaginator prepares a scan over the constructor's item type.
func NewScanPaginator(client ScanAPI, ctor item.Constructor, opts *ScanOptions) (*ScanPaginator, error) {
	if opts == nil {
		opts = &ScanOptions{}
	}
	if (opts.Segment == nil) != (opts.TotalSegments == nil) {
		return nil, appErrors.NewInvalidValue("Segment and TotalSegments must be set together", opts.Segment)
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

	input := dynamodb.ScanInput{
		TableName:              aws.String(table),
		Segment:                opts.Segment,
		TotalSegments:          opts.TotalSegments,
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	}
	if opts.IndexName != "" {
		input.IndexName = aws.String(opts.IndexName)
	}
	if opts.ConsistentRead {
		input.ConsistentRead = aws.Bool(true)
	}

	attrs := expressions.NewExpressionAttributes()
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

	p := &ScanPaginator{
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
func (p *ScanPaginator) Next(ctx context.Context) (item.Item, bool, error) {
	return p.iterator.next(ctx)
}

// Pages switches the paginator to page-at-a-time iteration. Per-item Next
// calls fail afterwards.
func (p *ScanPaginator) Pages() *Pages {
	p.iterator.pagesMode = true
	return &Pages{it: p.iterator}
}

func (p *ScanPaginator) fetch(ctx context.Context, startKey map[string]types.AttributeValue, limit *int32) (*page, error) {
	input := p.input
	input.ExclusiveStartKey = startKey
	input.Limit = limit

	p.logger.Debug("fetching scan page",
		zap.String("operation_id", p.opID),
		zap.String("table", aws.ToString(input.TableName)),
		zap.Int32("segment", aws.ToInt32(input.Segment)),
		zap.Bool("resumed", startKey != nil))

	out, err := p.client.Scan(ctx, &input, p.opts.CallOptions...)
	if err != nil {
		return nil, appErrors.WrapTransport(err, "Scan failed")
	}
	return &page{
		items:            out.Items,
		lastEvaluatedKey: out.LastEvaluatedKey,
		count:            out.Count,
		scannedCount:     out.ScannedCount,
		capacity:         out.ConsumedCapacity,
	}, nil
}
