// Package schema defines the value-type algebra that drives every other part of
// the mapper: the SchemaType tagged variant describing how one logical attribute
// is represented in DynamoDB, and the Schema mapping from property name to type.
package schema

import (
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Tag identifies a SchemaType variant.
type Tag string

const (
	TagBinary     Tag = "Binary"
	TagBoolean    Tag = "Boolean"
	TagNumber     Tag = "Number"
	TagString     Tag = "String"
	TagDate       Tag = "Date"
	TagNull       Tag = "Null"
	TagDocument   Tag = "Document"
	TagMap        Tag = "Map"
	TagList       Tag = "List"
	TagTuple      Tag = "Tuple"
	TagSet        Tag = "Set"
	TagCollection Tag = "Collection"
	TagHash       Tag = "Hash"
	TagAny        Tag = "Any"
	TagCustom     Tag = "Custom"
)

// KeyType describes an attribute's participation in a primary or index key.
type KeyType string

const (
	HashKey  KeyType = "HASH"
	RangeKey KeyType = "RANGE"
)

// MarshalFunc converts a native value to an attribute value for Custom types.
type MarshalFunc func(value any) (types.AttributeValue, error)

// UnmarshalFunc converts an attribute value back to a native value for Custom types.
type UnmarshalFunc func(av types.AttributeValue) (any, error)

// SchemaType describes how one logical attribute is represented in the store.
//
// Composite variants reference other SchemaType values by pointer, so recursive
// document definitions (a Document whose members include itself) are expressed
// directly without an ownership loop.
type SchemaType struct {
	Tag Tag

	// AttributeName is the physical name in the store. Defaults to the
	// property name when empty.
	AttributeName string

	// KeyType marks participation in the table's primary key.
	KeyType KeyType

	// IndexKeys maps index name to the key role this attribute plays there.
	IndexKeys map[string]KeyType

	// VersionAttribute marks a Number attribute used for optimistic locking.
	VersionAttribute bool

	// DefaultProvider is invoked when the native value is absent on write.
	DefaultProvider func() any

	// Members holds the nested schema for Document types.
	Members Schema

	// NewInstance seeds the native value produced when unmarshalling a
	// Document; when nil a fresh map is used.
	NewInstance func() map[string]any

	// MemberType holds the element type for Map, List and Set types.
	MemberType *SchemaType

	// TupleMembers holds the ordered member types for Tuple types.
	TupleMembers []*SchemaType

	// Marshal and Unmarshal implement Custom types.
	Marshal   MarshalFunc
	Unmarshal UnmarshalFunc
}

// Schema maps application property names to their attribute descriptors.
// Property names are unique; order is irrelevant.
type Schema map[string]*SchemaType

// PhysicalName returns the attribute name stored in DynamoDB for the given
// property, honoring the AttributeName override.
func (t *SchemaType) PhysicalName(property string) string {
	if t.AttributeName != "" {
		return t.AttributeName
	}
	return property
}

// IsKey reports whether the type has a key role for the optionally named index.
// With no index name, the table's primary key is consulted.
func IsKey(t *SchemaType, indexName ...string) bool {
	if t == nil {
		return false
	}
	if len(indexName) > 0 && indexName[0] != "" {
		_, ok := t.IndexKeys[indexName[0]]
		return ok
	}
	return t.KeyType == HashKey || t.KeyType == RangeKey
}

// KeyProperties returns the physical attribute names of the schema's key
// properties in canonical order: sorted by property name.
func KeyProperties(s Schema, indexName ...string) []string {
	props := make([]string, 0, 2)
	for name := range s {
		if IsKey(s[name], indexName...) {
			props = append(props, name)
		}
	}
	sort.Strings(props)

	names := make([]string, len(props))
	for i, p := range props {
		names[i] = s[p].PhysicalName(p)
	}
	return names
}

// KeyPropertyNames returns the schema's key property names (not physical
// attribute names) in canonical sorted order.
func KeyPropertyNames(s Schema, indexName ...string) []string {
	props := make([]string, 0, 2)
	for name := range s {
		if IsKey(s[name], indexName...) {
			props = append(props, name)
		}
	}
	sort.Strings(props)
	return props
}

// PropertyNames returns every property name in canonical sorted order, so
// that expressions built by iterating a schema are deterministic.
func PropertyNames(s Schema) []string {
	props := make([]string, 0, len(s))
	for name := range s {
		props = append(props, name)
	}
	sort.Strings(props)
	return props
}

// VersionProperty returns the property name of the schema's version attribute,
// or "" when the schema has none.
func VersionProperty(s Schema) string {
	for name, t := range s {
		if t.Tag == TagNumber && t.VersionAttribute {
			return name
		}
	}
	return ""
}
