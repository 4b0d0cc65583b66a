package mapper

import (
	"dynamapper/batch"
	"dynamapper/item"
)

// BatchGetOptions configures a batch read on the façade.
type BatchGetOptions struct {
	// ReadConsistency overrides the mapper default for tables without a
	// PerTable entry.
	ReadConsistency ReadConsistency
	// PerTable is keyed by the unprefixed table name items report.
	PerTable map[string]batch.ReadTableOptions
}

// BatchWriteOptions configures a batch write on the façade.
type BatchWriteOptions struct{}

// BatchGet streams the given items through the batch-get engine. Each input
// carries its key attributes; hydrated instances arrive on the returned
// stream in completion order.
func (m *DataMapper) BatchGet(items []item.Item, opts *BatchGetOptions) *batch.ReadBatcher {
	elems := make([]batch.ReadElement, len(items))
	for i, it := range items {
		elems[i] = batch.ReadElement{Item: it}
	}
	return m.BatchGetStream(batch.NewSliceProducer(elems), opts)
}

// BatchGetStream is BatchGet over an arbitrary producer, for unbounded or
// asynchronous inputs.
func (m *DataMapper) BatchGetStream(producer batch.Producer[batch.ReadElement], opts *BatchGetOptions) *batch.ReadBatcher {
	if opts == nil {
		opts = &BatchGetOptions{}
	}
	return batch.NewReadBatcher(m.client, producer, &batch.ReadBatcherOptions{
		Logger:          m.logger,
		TableNamePrefix: m.tablePrefix,
		ConsistentRead:  m.readConsistency(opts.ReadConsistency) == ReadConsistencyStrong,
		PerTable:        opts.PerTable,
		CallOptions:     m.callOptions,
	})
}

// BatchPut streams puts of the given items through the batch-write engine.
func (m *DataMapper) BatchPut(items []item.Item, opts *BatchWriteOptions) *batch.WriteBatcher {
	elems := make([]batch.WriteElement, len(items))
	for i, it := range items {
		elems[i] = batch.Put(it)
	}
	return m.BatchWriteStream(batch.NewSliceProducer(elems), opts)
}

// BatchDelete streams deletes of the given items through the batch-write
// engine.
func (m *DataMapper) BatchDelete(items []item.Item, opts *BatchWriteOptions) *batch.WriteBatcher {
	elems := make([]batch.WriteElement, len(items))
	for i, it := range items {
		elems[i] = batch.Delete(it)
	}
	return m.BatchWriteStream(batch.NewSliceProducer(elems), opts)
}

// BatchWrite streams a mixed sequence of puts and deletes.
func (m *DataMapper) BatchWrite(elems []batch.WriteElement, opts *BatchWriteOptions) *batch.WriteBatcher {
	return m.BatchWriteStream(batch.NewSliceProducer(elems), opts)
}

// BatchWriteStream is BatchWrite over an arbitrary producer.
func (m *DataMapper) BatchWriteStream(producer batch.Producer[batch.WriteElement], opts *BatchWriteOptions) *batch.WriteBatcher {
	_ = opts
	return batch.NewWriteBatcher(m.client, producer, &batch.WriteBatcherOptions{
		Logger:          m.logger,
		TableNamePrefix: m.tablePrefix,
		CallOptions:     m.callOptions,
	})
}
