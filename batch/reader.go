package batch

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"dynamapper/expressions"
	"dynamapper/item"
	"dynamapper/marshaller"
	appErrors "dynamapper/pkg/errors"
	"dynamapper/schema"
)

// BatchGetAPI is the slice of the store client the read batcher consumes.
type BatchGetAPI interface {
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
}

// ReadTableOptions carries per-table read settings.
type ReadTableOptions struct {
	ConsistentRead bool
	// Projection limits the attributes fetched. Key properties are always
	// included so responses can be correlated with their requests.
	Projection expressions.ProjectionExpression
}

// ReadBatcherOptions configures a batch get operation.
type ReadBatcherOptions struct {
	Logger          *zap.Logger
	TableNamePrefix string
	// ConsistentRead applies to tables without a PerTable entry.
	ConsistentRead bool
	// PerTable is keyed by the unprefixed table name items report.
	PerTable map[string]ReadTableOptions
	// Rand overrides the backoff delay distribution's random source.
	Rand func() float64
	// CallOptions are applied to every outbound RPC.
	CallOptions []func(*dynamodb.Options)
}

// ReadBatcher streams items through the store's batch-get RPC. Input items
// carry their key attributes; each is hydrated with the fetched attributes
// and yielded on the output stream. The stream is exhausted when the input is
// exhausted and every unprocessed key has been retried through to completion.
type ReadBatcher struct {
	*engine
	client BatchGetAPI
	opts   ReadBatcherOptions
}

// NewReadBatcher starts a batch get operation over the producer's elements.
func NewReadBatcher(client BatchGetAPI, producer Producer[ReadElement], opts *ReadBatcherOptions) *ReadBatcher {
	if opts == nil {
		opts = &ReadBatcherOptions{}
	}
	r := &ReadBatcher{
		engine: newEngine(MaxReadBatchSize, opts.Logger, uuid.NewString(), opts.Rand),
		client: client,
		opts:   *opts,
	}
	r.engine.d = r
	pump(r.engine, producer, func(e ReadElement) inputMsg { return inputMsg{read: &e} })
	return r
}

// Next yields the next hydrated item. ok=false with a nil error marks the end
// of the stream.
func (r *ReadBatcher) Next(ctx context.Context) (item.Item, bool, error) {
	return r.engine.next(ctx)
}

// Close releases the input pump and any pending retry waiters.
func (r *ReadBatcher) Close() {
	r.engine.close()
}

func (r *ReadBatcher) enqueue(msg inputMsg) error {
	it := msg.read.Item
	sch, err := item.SchemaOf(it)
	if err != nil {
		return err
	}
	table, err := item.TableNameOf(it, r.opts.TableNamePrefix)
	if err != nil {
		return err
	}

	state, ok := r.tables[table]
	if !ok {
		state, err = r.newTableState(table, it.DynamoTableName(), sch)
		if err != nil {
			return err
		}
		r.tables[table] = state
	}

	key, err := marshaller.MarshalKey(sch, it.DynamoProperties())
	if err != nil {
		return err
	}
	id, err := marshaller.ItemIdentifier(key, state.keyProperties)
	if err != nil {
		return err
	}
	state.configs[id] = &itemConfig{schema: sch, item: it}
	r.route(state, &element{table: table, id: id, attrs: key})
	return nil
}

func (r *ReadBatcher) newTableState(table, unprefixed string, sch schema.Schema) (*tableState, error) {
	state := &tableState{
		name:          table,
		keyProperties: schema.KeyProperties(sch),
		configs:       make(map[string]*itemConfig),
	}

	tableOpts, ok := r.opts.PerTable[unprefixed]
	if !ok {
		state.consistentRead = r.opts.ConsistentRead
		return state, nil
	}
	state.consistentRead = tableOpts.ConsistentRead
	if len(tableOpts.Projection) == 0 {
		return state, nil
	}

	projection := append(expressions.ProjectionExpression(nil), tableOpts.Projection...)
	projected := make(map[string]bool, len(projection))
	for _, p := range projection {
		if len(p.Elements) > 0 {
			projected[p.Elements[0].Name] = true
		}
	}
	for _, name := range schema.KeyPropertyNames(sch) {
		if !projected[name] {
			projection = append(projection, expressions.Path(name))
		}
	}

	attrs := expressions.NewExpressionAttributes()
	serialized, err := expressions.SerializeProjectionExpression(projection, sch, attrs)
	if err != nil {
		return nil, err
	}
	state.projection = aws.String(serialized)
	state.exprNames = attrs.Names()
	return state, nil
}

func (r *ReadBatcher) dispatch(ctx context.Context, batch []*element) error {
	request := make(map[string]types.KeysAndAttributes, 1)
	for _, el := range batch {
		state := r.tables[el.table]
		kaa, ok := request[el.table]
		if !ok {
			kaa = types.KeysAndAttributes{
				ProjectionExpression:     state.projection,
				ExpressionAttributeNames: state.exprNames,
			}
			if state.consistentRead {
				kaa.ConsistentRead = aws.Bool(true)
			}
		}
		kaa.Keys = append(kaa.Keys, el.attrs)
		request[el.table] = kaa
	}

	r.logger.Debug("dispatching batch get",
		zap.String("operation_id", r.opID),
		zap.Int("batch_size", len(batch)),
		zap.Int("tables", len(request)))

	out, err := r.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request}, r.opts.CallOptions...)
	if err != nil {
		return appErrors.WrapTransport(err, "BatchGetItem failed")
	}

	for table, items := range out.Responses {
		state, ok := r.tables[table]
		if !ok {
			continue
		}
		state.decrementBackoff()
		for _, av := range items {
			id, err := marshaller.ItemIdentifier(av, state.keyProperties)
			if err != nil {
				return err
			}
			cfg, ok := state.configs[id]
			if !ok {
				r.logger.Warn("response item has no matching request",
					zap.String("operation_id", r.opID),
					zap.String("table", table),
					zap.String("item_id", id))
				continue
			}
			props, err := marshaller.UnmarshalItem(cfg.schema, av)
			if err != nil {
				return err
			}
			cfg.item.DynamoHydrate(props)
			r.out = append(r.out, cfg.item)
		}
	}

	for table, kaa := range out.UnprocessedKeys {
		if len(kaa.Keys) == 0 {
			continue
		}
		state, ok := r.tables[table]
		if !ok {
			continue
		}
		state.backoffFactor++
		retry := make([]*element, 0, len(kaa.Keys))
		for _, key := range kaa.Keys {
			id, err := marshaller.ItemIdentifier(key, state.keyProperties)
			if err != nil {
				return err
			}
			retry = append(retry, &element{table: table, id: id, attrs: key})
		}
		r.throttle(state, retry)
	}
	return nil
}
