package mapper

import (
	"sort"

	"dynamapper/expressions"
	"dynamapper/item"
	"dynamapper/paginator"
	appErrors "dynamapper/pkg/errors"
	"dynamapper/schema"
)

// QueryOptions configures a paginated query on the façade.
type QueryOptions struct {
	IndexName        string
	Filter           expressions.ConditionExpression
	Projection       expressions.ProjectionExpression
	ReadConsistency  ReadConsistency
	ScanIndexForward *bool
	Limit            int
	PageSize         int32
	StartKey         map[string]any
}

// ScanOptions configures a paginated scan on the façade.
type ScanOptions struct {
	IndexName       string
	Filter          expressions.ConditionExpression
	Projection      expressions.ProjectionExpression
	ReadConsistency ReadConsistency
	Limit           int
	PageSize        int32
	Segment         *int32
	TotalSegments   *int32
	StartKey        map[string]any
}

// ParallelScanOptions configures a parallel scan on the façade.
type ParallelScanOptions struct {
	Filter          expressions.ConditionExpression
	Projection      expressions.ProjectionExpression
	ReadConsistency ReadConsistency
	PageSize        int32
	State           paginator.ScanState
}

// Query runs a key-conditioned query over the constructor's item type. The
// keyCondition is either a ConditionExpression or the permissive map form
// map[string]any whose values are literals (equality) or Predicates.
func (m *DataMapper) Query(ctor item.Constructor, keyCondition any, opts *QueryOptions) (*paginator.QueryPaginator, error) {
	if opts == nil {
		opts = &QueryOptions{}
	}
	sch, err := item.SchemaOf(ctor())
	if err != nil {
		return nil, err
	}
	condition, err := lowerKeyCondition(sch, keyCondition, opts.IndexName)
	if err != nil {
		return nil, err
	}
	return paginator.NewQueryPaginator(m.client, ctor, condition, &paginator.QueryOptions{
		IndexName:        opts.IndexName,
		Filter:           opts.Filter,
		Projection:       opts.Projection,
		ConsistentRead:   m.readConsistency(opts.ReadConsistency) == ReadConsistencyStrong,
		ScanIndexForward: opts.ScanIndexForward,
		Limit:            opts.Limit,
		PageSize:         opts.PageSize,
		StartKey:         opts.StartKey,
		Logger:           m.logger,
		TableNamePrefix:  m.tablePrefix,
		CallOptions:      m.callOptions,
	})
}

// Scan runs a scan over the constructor's item type.
func (m *DataMapper) Scan(ctor item.Constructor, opts *ScanOptions) (*paginator.ScanPaginator, error) {
	if opts == nil {
		opts = &ScanOptions{}
	}
	return paginator.NewScanPaginator(m.client, ctor, &paginator.ScanOptions{
		IndexName:       opts.IndexName,
		Filter:          opts.Filter,
		Projection:      opts.Projection,
		ConsistentRead:  m.readConsistency(opts.ReadConsistency) == ReadConsistencyStrong,
		Limit:           opts.Limit,
		PageSize:        opts.PageSize,
		Segment:         opts.Segment,
		TotalSegments:   opts.TotalSegments,
		StartKey:        opts.StartKey,
		Logger:          m.logger,
		TableNamePrefix: m.tablePrefix,
		CallOptions:     m.callOptions,
	})
}

// ParallelScan runs a segmented scan over the constructor's item type, merged
// into one stream and resumable through its ScanState.
func (m *DataMapper) ParallelScan(ctor item.Constructor, segments int, opts *ParallelScanOptions) (*paginator.ParallelScanner, error) {
	if opts == nil {
		opts = &ParallelScanOptions{}
	}
	return paginator.NewParallelScanner(m.client, ctor, segments, &paginator.ParallelScanOptions{
		Filter:          opts.Filter,
		Projection:      opts.Projection,
		ConsistentRead:  m.readConsistency(opts.ReadConsistency) == ReadConsistencyStrong,
		PageSize:        opts.PageSize,
		State:           opts.State,
		Logger:          m.logger,
		TableNamePrefix: m.tablePrefix,
		CallOptions:     m.callOptions,
	})
}

func (m *DataMapper) readConsistency(override ReadConsistency) ReadConsistency {
	if override != "" {
		return override
	}
	return m.consistency
}

// lowerKeyCondition normalizes the permissive key-condition forms to one
// condition tree. Map entries are ordered hash key first, then range key,
// remaining properties sorted by name; a single entry stays unwrapped.
func lowerKeyCondition(sch schema.Schema, keyCondition any, indexName string) (expressions.ConditionExpression, error) {
	switch kc := keyCondition.(type) {
	case expressions.ConditionExpression:
		return kc, nil
	case map[string]any:
		if len(kc) == 0 {
			return nil, appErrors.NewInvalidValue("empty key condition", kc)
		}
		props := make([]string, 0, len(kc))
		for name := range kc {
			props = append(props, name)
		}
		sort.Slice(props, func(i, j int) bool {
			ri, rj := keyRank(sch, props[i], indexName), keyRank(sch, props[j], indexName)
			if ri != rj {
				return ri < rj
			}
			return props[i] < props[j]
		})

		conditions := make([]expressions.ConditionExpression, 0, len(props))
		for _, name := range props {
			subject := expressions.Path(name)
			if pred, ok := kc[name].(expressions.Predicate); ok {
				conditions = append(conditions, pred(subject))
				continue
			}
			conditions = append(conditions, expressions.Equals(subject, kc[name]))
		}
		if len(conditions) == 1 {
			return conditions[0], nil
		}
		return expressions.And{Conditions: conditions}, nil
	default:
		return nil, appErrors.NewInvalidValue("unsupported key condition form", keyCondition)
	}
}

func keyRank(sch schema.Schema, prop, indexName string) int {
	t, ok := sch[prop]
	if !ok {
		return 2
	}
	keyType := t.KeyType
	if indexName != "" {
		keyType = t.IndexKeys[indexName]
	}
	switch keyType {
	case schema.HashKey:
		return 0
	case schema.RangeKey:
		return 1
	default:
		return 2
	}
}
