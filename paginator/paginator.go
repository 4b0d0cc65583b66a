// Package paginator wraps the store's cursor-based Query and Scan RPCs as
// restartable lazy sequences, and coordinates parallel segmented scans with
// resumable per-segment state.
package paginator

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"dynamapper/item"
	"dynamapper/marshaller"
	appErrors "dynamapper/pkg/errors"
	"dynamapper/schema"
)

// page is one RPC's worth of results.
type page struct {
	items            []map[string]types.AttributeValue
	lastEvaluatedKey map[string]types.AttributeValue
	count            int32
	scannedCount     int32
	capacity         *types.ConsumedCapacity
}

// fetcher issues one paginated RPC.
type fetcher interface {
	fetch(ctx context.Context, startKey map[string]types.AttributeValue, limit *int32) (*page, error)
}

// iterator is the shared pagination core: it owns the cursor, aggregates
// metadata, clamps per-RPC limits, and hydrates items through a constructor.
type iterator struct {
	f        fetcher
	ctor     item.Constructor
	sch      schema.Schema
	keyProps []string

	limit    int
	pageSize int32

	yielded      int
	count        int64
	scannedCount int64
	capacity     []types.ConsumedCapacity

	pending        []map[string]types.AttributeValue
	startKey       map[string]types.AttributeValue
	lastYieldedKey map[string]types.AttributeValue
	exhausted      bool
	pagesMode      bool
}

func newIterator(f fetcher, ctor item.Constructor, sch schema.Schema, indexName string, limit int, pageSize int32, startKey map[string]types.AttributeValue) *iterator {
	return &iterator{
		f:        f,
		ctor:     ctor,
		sch:      sch,
		keyProps: continuationKeyProperties(sch, indexName),
		limit:    limit,
		pageSize: pageSize,
		startKey: startKey,
	}
}

// continuationKeyProperties lists the physical attribute names that make up a
// continuation key. For an index these are the table's key attributes plus
// the index's.
func continuationKeyProperties(sch schema.Schema, indexName string) []string {
	props := schema.KeyProperties(sch)
	if indexName == "" {
		return props
	}
	seen := make(map[string]bool, len(props)+2)
	for _, p := range props {
		seen[p] = true
	}
	for _, p := range schema.KeyProperties(sch, indexName) {
		if !seen[p] {
			props = append(props, p)
		}
	}
	return props
}

// marshalStartKey converts an unmarshalled continuation key back to wire
// attributes via the key members of the schema.
func marshalStartKey(sch schema.Schema, startKey map[string]any, indexName string) (map[string]types.AttributeValue, error) {
	if startKey == nil {
		return nil, nil
	}
	key, err := marshaller.MarshalKey(sch, startKey)
	if err != nil {
		return nil, err
	}
	if indexName != "" {
		indexKey, err := marshaller.MarshalKey(sch, startKey, indexName)
		if err != nil {
			return nil, err
		}
		for name, av := range indexKey {
			key[name] = av
		}
	}
	if len(key) == 0 {
		return nil, appErrors.NewInvalidValue("start key has no key properties", startKey)
	}
	return key, nil
}

func (it *iterator) next(ctx context.Context) (item.Item, bool, error) {
	if it.pagesMode {
		return nil, false, appErrors.NewProtocolViolation("per-item iteration is disabled once Pages is obtained")
	}
	if it.limitReached() {
		return nil, false, nil
	}
	for len(it.pending) == 0 {
		if it.exhausted {
			return nil, false, nil
		}
		if err := it.fetchPage(ctx); err != nil {
			return nil, false, err
		}
	}

	raw := it.pending[0]
	it.pending = it.pending[1:]
	hydrated, err := it.hydrate(raw)
	if err != nil {
		return nil, false, err
	}
	it.recordYield(raw)
	return hydrated, true, nil
}

func (it *iterator) nextPage(ctx context.Context) ([]item.Item, bool, error) {
	if it.limitReached() || (it.exhausted && len(it.pending) == 0) {
		return nil, false, nil
	}
	if len(it.pending) == 0 {
		if err := it.fetchPage(ctx); err != nil {
			return nil, false, err
		}
		if len(it.pending) == 0 && it.exhausted {
			return nil, false, nil
		}
	}

	raw := it.pending
	it.pending = nil
	out := make([]item.Item, 0, len(raw))
	for i, avItem := range raw {
		if it.limitReached() {
			// Keep the unyielded remainder so the continuation key stays
			// the last yielded item's key, not the server's.
			it.pending = raw[i:]
			break
		}
		hydrated, err := it.hydrate(avItem)
		if err != nil {
			return nil, false, err
		}
		it.recordYield(avItem)
		out = append(out, hydrated)
	}
	if len(out) == 0 {
		return nil, false, nil
	}
	return out, true, nil
}

func (it *iterator) hydrate(raw map[string]types.AttributeValue) (item.Item, error) {
	props, err := marshaller.UnmarshalItem(it.sch, raw)
	if err != nil {
		return nil, err
	}
	hydrated := it.ctor()
	hydrated.DynamoHydrate(props)
	return hydrated, nil
}

func (it *iterator) recordYield(raw map[string]types.AttributeValue) {
	it.yielded++
	key := make(map[string]types.AttributeValue, len(it.keyProps))
	for _, name := range it.keyProps {
		if av, ok := raw[name]; ok {
			key[name] = av
		}
	}
	it.lastYieldedKey = key
}

func (it *iterator) limitReached() bool {
	return it.limit > 0 && it.yielded >= it.limit
}

// fetchPage issues one RPC, clamping Limit to min(pageSize, limit - yielded)
// to avoid over-fetch.
func (it *iterator) fetchPage(ctx context.Context) error {
	var rpcLimit *int32
	if it.pageSize > 0 {
		size := it.pageSize
		rpcLimit = &size
	}
	if it.limit > 0 {
		remaining := int32(it.limit - it.yielded)
		if rpcLimit == nil || remaining < *rpcLimit {
			rpcLimit = &remaining
		}
	}

	p, err := it.f.fetch(ctx, it.startKey, rpcLimit)
	if err != nil {
		return err
	}
	it.count += int64(p.count)
	it.scannedCount += int64(p.scannedCount)
	if p.capacity != nil {
		it.capacity = append(it.capacity, *p.capacity)
	}
	it.pending = p.items
	it.startKey = p.lastEvaluatedKey
	it.exhausted = p.lastEvaluatedKey == nil
	return nil
}

// Count reports the number of items yielded so far.
func (it *iterator) Count() int64 { return it.count }

// ScannedCount reports the number of items the server evaluated; this differs
// from Count when a filter expression is in play.
func (it *iterator) ScannedCount() int64 { return it.scannedCount }

// ConsumedCapacity reports the capacity consumed across all pages fetched.
func (it *iterator) ConsumedCapacity() []types.ConsumedCapacity { return it.capacity }

// LastEvaluatedKey reports the continuation for resumability, unmarshalled by
// the iterator's schema. While items remain pending locally it is the key of
// the last yielded item, not the server's last-evaluated key; nil means the
// sequence is complete.
func (it *iterator) LastEvaluatedKey() map[string]any {
	raw := it.startKey
	if len(it.pending) > 0 {
		raw = it.lastYieldedKey
	}
	if raw == nil {
		return nil
	}
	props, err := marshaller.UnmarshalItem(it.sch, raw)
	if err != nil {
		return nil
	}
	return props
}
