package batch

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"dynamapper/item"
	"dynamapper/marshaller"
	appErrors "dynamapper/pkg/errors"
	"dynamapper/schema"
)

// BatchWriteAPI is the slice of the store client the write batcher consumes.
type BatchWriteAPI interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// WriteBatcherOptions configures a batch write operation.
type WriteBatcherOptions struct {
	Logger          *zap.Logger
	TableNamePrefix string
	// Rand overrides the backoff delay distribution's random source.
	Rand func() float64
	// CallOptions are applied to every outbound RPC.
	CallOptions []func(*dynamodb.Options)
}

// WriteBatcher streams put and delete writes through the store's batch-write
// RPC and echoes each input item on the output stream once it is durable. An
// item the server reports as unprocessed is not echoed until a retry
// succeeds.
type WriteBatcher struct {
	*engine
	client BatchWriteAPI
	opts   WriteBatcherOptions
}

// NewWriteBatcher starts a batch write operation over the producer's elements.
func NewWriteBatcher(client BatchWriteAPI, producer Producer[WriteElement], opts *WriteBatcherOptions) *WriteBatcher {
	if opts == nil {
		opts = &WriteBatcherOptions{}
	}
	w := &WriteBatcher{
		engine: newEngine(MaxWriteBatchSize, opts.Logger, uuid.NewString(), opts.Rand),
		client: client,
		opts:   *opts,
	}
	w.engine.d = w
	pump(w.engine, producer, func(e WriteElement) inputMsg { return inputMsg{write: &e} })
	return w
}

// Next yields the next acknowledged item. ok=false with a nil error marks the
// end of the stream.
func (w *WriteBatcher) Next(ctx context.Context) (item.Item, bool, error) {
	return w.engine.next(ctx)
}

// Close releases the input pump and any pending retry waiters.
func (w *WriteBatcher) Close() {
	w.engine.close()
}

func (w *WriteBatcher) enqueue(msg inputMsg) error {
	it := msg.write.Item
	kind := msg.write.Kind
	if kind != PutWrite && kind != DeleteWrite {
		return appErrors.NewInvalidValue("unrecognized write kind", string(kind))
	}

	sch, err := item.SchemaOf(it)
	if err != nil {
		return err
	}
	table, err := item.TableNameOf(it, w.opts.TableNamePrefix)
	if err != nil {
		return err
	}

	state, ok := w.tables[table]
	if !ok {
		state = &tableState{
			name:          table,
			keyProperties: schema.KeyProperties(sch),
			configs:       make(map[string]*itemConfig),
		}
		w.tables[table] = state
	}

	var attrs map[string]types.AttributeValue
	if kind == PutWrite {
		attrs, err = marshaller.MarshalItem(sch, it.DynamoProperties())
	} else {
		attrs, err = marshaller.MarshalKey(sch, it.DynamoProperties())
	}
	if err != nil {
		return err
	}
	id, err := marshaller.ItemIdentifier(attrs, state.keyProperties)
	if err != nil {
		return err
	}
	state.configs[id] = &itemConfig{schema: sch, item: it}
	w.route(state, &element{table: table, id: id, kind: kind, attrs: attrs})
	return nil
}

func (w *WriteBatcher) dispatch(ctx context.Context, batch []*element) error {
	request := make(map[string][]types.WriteRequest, 1)
	sentByTable := make(map[string][]*element, 1)
	for _, el := range batch {
		var wr types.WriteRequest
		if el.kind == PutWrite {
			wr.PutRequest = &types.PutRequest{Item: el.attrs}
		} else {
			wr.DeleteRequest = &types.DeleteRequest{Key: el.attrs}
		}
		request[el.table] = append(request[el.table], wr)
		sentByTable[el.table] = append(sentByTable[el.table], el)
	}

	w.logger.Debug("dispatching batch write",
		zap.String("operation_id", w.opID),
		zap.Int("batch_size", len(batch)),
		zap.Int("tables", len(request)))

	out, err := w.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: request}, w.opts.CallOptions...)
	if err != nil {
		return appErrors.WrapTransport(err, "BatchWriteItem failed")
	}

	for table, sent := range sentByTable {
		state := w.tables[table]

		retry, err := w.unprocessedElements(state, out.UnprocessedItems[table])
		if err != nil {
			return err
		}
		unprocessed := make(map[string]bool, len(retry))
		for _, el := range retry {
			unprocessed[el.id] = true
		}

		processed := 0
		for _, el := range sent {
			if unprocessed[el.id] {
				continue
			}
			processed++
			cfg := state.configs[el.id]
			if cfg == nil {
				continue
			}
			if el.kind == PutWrite {
				props, err := marshaller.UnmarshalItem(cfg.schema, el.attrs)
				if err != nil {
					return err
				}
				cfg.item.DynamoHydrate(props)
			}
			w.out = append(w.out, cfg.item)
		}

		if processed > 0 {
			state.decrementBackoff()
		}
		if len(retry) > 0 {
			state.backoffFactor++
			w.throttle(state, retry)
		}
	}
	return nil
}

// unprocessedElements rebuilds elements from the server's unprocessed write
// requests, preserving server-reported order.
func (w *WriteBatcher) unprocessedElements(state *tableState, requests []types.WriteRequest) ([]*element, error) {
	if len(requests) == 0 {
		return nil, nil
	}
	retry := make([]*element, 0, len(requests))
	for _, wr := range requests {
		var el element
		el.table = state.name
		switch {
		case wr.PutRequest != nil:
			el.kind = PutWrite
			el.attrs = wr.PutRequest.Item
		case wr.DeleteRequest != nil:
			el.kind = DeleteWrite
			el.attrs = wr.DeleteRequest.Key
		default:
			continue
		}
		id, err := marshaller.ItemIdentifier(el.attrs, state.keyProperties)
		if err != nil {
			return nil, err
		}
		el.id = id
		retry = append(retry, &el)
	}
	return retry, nil
}
