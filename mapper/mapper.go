// Package mapper is the data-mapper façade: single-item Get/Put/Delete/Update
// with optimistic-locking version attributes, Query and Scan delegation to
// the paginators, and batch operation entry points, all driven by the item
// metadata protocol.
package mapper

import (
	"context"

	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
)

// Version is reported to the store through the user-agent header.
const Version = "0.7.3"

// userAgentKey identifies this mapper in the store client's user agent.
const userAgentKey = "dynamodb-data-mapper"

// ReadConsistency selects between eventually and strongly consistent reads.
type ReadConsistency string

const (
	ReadConsistencyEventual ReadConsistency = "eventual"
	ReadConsistencyStrong   ReadConsistency = "strong"
)

// Client is the slice of the store client the mapper consumes.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Config holds mapper-level defaults. Per-operation options override them.
type Config struct {
	Client Client
	// ReadConsistency defaults to eventual.
	ReadConsistency ReadConsistency
	// SkipVersionCheck suppresses version conditions and increments on every
	// operation when true.
	SkipVersionCheck bool
	// TableNamePrefix is prepended to every table name items report.
	TableNamePrefix string
	Logger          *zap.Logger
}

// DataMapper maps application items to store records.
type DataMapper struct {
	client      Client
	consistency ReadConsistency
	skipVersion bool
	tablePrefix string
	logger      *zap.Logger
	callOptions []func(*dynamodb.Options)
}

// New creates a mapper from the given configuration.
func New(cfg Config) *DataMapper {
	consistency := cfg.ReadConsistency
	if consistency == "" {
		consistency = ReadConsistencyEventual
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DataMapper{
		client:      cfg.Client,
		consistency: consistency,
		skipVersion: cfg.SkipVersionCheck,
		tablePrefix: cfg.TableNamePrefix,
		logger:      logger,
		callOptions: []func(*dynamodb.Options){withUserAgent},
	}
}

// withUserAgent appends the mapper's identifier to the outbound user agent.
func withUserAgent(o *dynamodb.Options) {
	o.APIOptions = append(o.APIOptions, awsmiddleware.AddUserAgentKeyValue(userAgentKey, Version))
}
