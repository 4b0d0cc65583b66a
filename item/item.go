// Package item defines the metadata protocol mapped types implement: every
// item exposes its schema and target table name, reads its current property
// values, and accepts hydrated properties after an unmarshal. The mapper and
// batch engine manipulate heterogeneous tables through this protocol without
// reflection.
package item

import (
	"fmt"

	appErrors "dynamapper/pkg/errors"
	"dynamapper/schema"
)

// Item is implemented by application types the mapper can persist.
type Item interface {
	// DynamoTableName returns the unprefixed table the item belongs to.
	DynamoTableName() string
	// DynamoSchema returns the item's attached schema.
	DynamoSchema() schema.Schema
	// DynamoProperties returns the item's current property values keyed by
	// property name. The mapper reads the returned map and never mutates it.
	DynamoProperties() map[string]any
	// DynamoHydrate replaces the item's property values with unmarshalled
	// ones, keyed by property name.
	DynamoHydrate(props map[string]any)
}

// Constructor produces a fresh, empty instance of a mapped type.
type Constructor func() Item

// SchemaOf returns the schema attached to v, or a protocol violation when v
// does not implement the item protocol.
func SchemaOf(v any) (schema.Schema, error) {
	it, ok := v.(Item)
	if !ok {
		return nil, appErrors.NewProtocolViolation(fmt.Sprintf("%T does not expose a schema", v))
	}
	s := it.DynamoSchema()
	if s == nil {
		return nil, appErrors.NewProtocolViolation(fmt.Sprintf("%T exposes a nil schema", v))
	}
	return s, nil
}

// TableNameOf returns the table name attached to v with the optional global
// prefix prepended, or a protocol violation when v does not implement the
// item protocol.
func TableNameOf(v any, prefix string) (string, error) {
	it, ok := v.(Item)
	if !ok {
		return "", appErrors.NewProtocolViolation(fmt.Sprintf("%T does not expose a table name", v))
	}
	name := it.DynamoTableName()
	if name == "" {
		return "", appErrors.NewProtocolViolation(fmt.Sprintf("%T exposes an empty table name", v))
	}
	return prefix + name, nil
}

// Record is a map-backed Item for callers that assemble schemas at runtime.
type Record struct {
	Table  string
	Schema schema.Schema
	Props  map[string]any
}

var _ Item = (*Record)(nil)

func (r *Record) DynamoTableName() string     { return r.Table }
func (r *Record) DynamoSchema() schema.Schema { return r.Schema }
func (r *Record) DynamoProperties() map[string]any {
	if r.Props == nil {
		return map[string]any{}
	}
	return r.Props
}
func (r *Record) DynamoHydrate(props map[string]any) { r.Props = props }
