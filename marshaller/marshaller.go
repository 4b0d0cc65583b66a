// Package marshaller converts between native Go values and DynamoDB's tagged
// attribute values, driven by a schema. Native items are property maps
// (map[string]any); marshalled items are maps from physical attribute name to
// attribute value.
package marshaller

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	appErrors "dynamapper/pkg/errors"
	"dynamapper/schema"
)

// MarshalItem converts a native property map to a marshalled item. Properties
// absent from the schema are ignored and never transmitted; properties whose
// native value is absent are omitted unless their type provides a default.
func MarshalItem(s schema.Schema, props map[string]any) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(s))
	for name, t := range s {
		av, err := MarshalValue(t, props[name])
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		if av != nil {
			out[t.PhysicalName(name)] = av
		}
	}
	return out, nil
}

// MarshalKey is MarshalItem restricted to the properties that participate in
// the (optionally named) index's key.
func MarshalKey(s schema.Schema, props map[string]any, indexName ...string) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, 2)
	for name, t := range s {
		if !schema.IsKey(t, indexName...) {
			continue
		}
		av, err := MarshalValue(t, props[name])
		if err != nil {
			return nil, fmt.Errorf("key property %q: %w", name, err)
		}
		if av != nil {
			out[t.PhysicalName(name)] = av
		}
	}
	return out, nil
}

// MarshalValue converts one native value according to its schema type. A nil
// return with a nil error means the value is absent and must be omitted from
// the marshalled item.
func MarshalValue(t *schema.SchemaType, value any) (types.AttributeValue, error) {
	if t == nil {
		return nil, appErrors.NewInvalidSchema("nil schema type")
	}
	if value == nil {
		if t.DefaultProvider == nil {
			return nil, nil
		}
		value = t.DefaultProvider()
		if value == nil {
			return nil, nil
		}
	}

	switch t.Tag {
	case schema.TagBinary:
		return marshalBinary(value)
	case schema.TagBoolean:
		return &types.AttributeValueMemberBOOL{Value: coerceBool(value)}, nil
	case schema.TagNumber:
		d, err := CoerceDecimal(value)
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberN{Value: d.String()}, nil
	case schema.TagString:
		s := coerceString(value)
		if s == "" {
			return &types.AttributeValueMemberNULL{Value: true}, nil
		}
		return &types.AttributeValueMemberS{Value: s}, nil
	case schema.TagDate:
		return marshalDate(value)
	case schema.TagNull:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case schema.TagDocument:
		return marshalDocument(t, value)
	case schema.TagMap:
		return marshalMap(t, value)
	case schema.TagList:
		return marshalList(t.MemberType, value)
	case schema.TagTuple:
		return marshalTuple(t, value)
	case schema.TagSet:
		return marshalSet(t, value)
	case schema.TagCollection, schema.TagHash, schema.TagAny:
		return attributevalue.Marshal(value)
	case schema.TagCustom:
		if t.Marshal == nil {
			return nil, appErrors.NewInvalidSchema("custom type without marshal function")
		}
		return t.Marshal(value)
	default:
		return nil, appErrors.NewInvalidSchema(fmt.Sprintf("unrecognized schema type tag %q", t.Tag))
	}
}

func marshalBinary(value any) (types.AttributeValue, error) {
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return nil, appErrors.NewInvalidValue("value cannot be converted to binary", value)
	}
	if len(b) == 0 {
		return &types.AttributeValueMemberNULL{Value: true}, nil
	}
	return &types.AttributeValueMemberB{Value: b}, nil
}

func marshalDate(value any) (types.AttributeValue, error) {
	var epoch int64
	switch v := value.(type) {
	case time.Time:
		epoch = v.Unix()
	case string:
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, appErrors.NewInvalidValue("string is not an ISO-8601 date", value)
		}
		epoch = parsed.Unix()
	case int:
		epoch = int64(v)
	case int64:
		epoch = v
	case float64:
		// Seconds precision only; sub-second information is truncated.
		epoch = int64(v)
	default:
		return nil, appErrors.NewInvalidValue("value cannot be converted to a date", value)
	}
	return &types.AttributeValueMemberN{Value: decimal.NewFromInt(epoch).String()}, nil
}

func marshalDocument(t *schema.SchemaType, value any) (types.AttributeValue, error) {
	props, ok := value.(map[string]any)
	if !ok {
		return nil, appErrors.NewInvalidValue("document value must be a property map", value)
	}
	nested, err := MarshalItem(t.Members, props)
	if err != nil {
		return nil, err
	}
	return &types.AttributeValueMemberM{Value: nested}, nil
}

func marshalMap(t *schema.SchemaType, value any) (types.AttributeValue, error) {
	if t.MemberType == nil {
		return nil, appErrors.NewInvalidSchema("map type without member type")
	}
	members, ok := value.(map[string]any)
	if !ok {
		return nil, appErrors.NewInvalidValue("map value must be a map of string to value", value)
	}
	out := make(map[string]types.AttributeValue, len(members))
	for k, member := range members {
		av, err := MarshalValue(t.MemberType, member)
		if err != nil {
			return nil, fmt.Errorf("map member %q: %w", k, err)
		}
		if av != nil {
			out[k] = av
		}
	}
	return &types.AttributeValueMemberM{Value: out}, nil
}

func marshalList(memberType *schema.SchemaType, value any) (types.AttributeValue, error) {
	if memberType == nil {
		return nil, appErrors.NewInvalidSchema("list type without member type")
	}
	members, ok := value.([]any)
	if !ok {
		return nil, appErrors.NewInvalidValue("list value must be a slice", value)
	}
	out := make([]types.AttributeValue, 0, len(members))
	for i, member := range members {
		av, err := MarshalValue(memberType, member)
		if err != nil {
			return nil, fmt.Errorf("list member %d: %w", i, err)
		}
		if av != nil {
			out = append(out, av)
		}
	}
	return &types.AttributeValueMemberL{Value: out}, nil
}

func marshalTuple(t *schema.SchemaType, value any) (types.AttributeValue, error) {
	members, ok := value.([]any)
	if !ok {
		return nil, appErrors.NewInvalidValue("tuple value must be a slice", value)
	}
	out := make([]types.AttributeValue, 0, len(t.TupleMembers))
	for i, memberType := range t.TupleMembers {
		// Length mismatch is allowed: missing positions produce absent
		// values that are filtered.
		var member any
		if i < len(members) {
			member = members[i]
		}
		av, err := MarshalValue(memberType, member)
		if err != nil {
			return nil, fmt.Errorf("tuple member %d: %w", i, err)
		}
		if av != nil {
			out = append(out, av)
		}
	}
	return &types.AttributeValueMemberL{Value: out}, nil
}

func marshalSet(t *schema.SchemaType, value any) (types.AttributeValue, error) {
	if t.MemberType == nil {
		return nil, appErrors.NewInvalidSchema("set type without member type")
	}
	switch t.MemberType.Tag {
	case schema.TagString:
		return marshalStringSet(value)
	case schema.TagNumber:
		return marshalNumberSet(value)
	case schema.TagBinary:
		return marshalBinarySet(value)
	default:
		return nil, appErrors.NewInvalidSchema(fmt.Sprintf("unrecognized set member type %q", t.MemberType.Tag))
	}
}

func marshalStringSet(value any) (types.AttributeValue, error) {
	members, err := setMembers(value)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(members))
	out := make([]string, 0, len(members))
	for _, m := range members {
		s := coerceString(m)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return &types.AttributeValueMemberNULL{Value: true}, nil
	}
	return &types.AttributeValueMemberSS{Value: out}, nil
}

func marshalNumberSet(value any) (types.AttributeValue, error) {
	members, err := setMembers(value)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(members))
	out := make([]string, 0, len(members))
	for _, m := range members {
		d, err := CoerceDecimal(m)
		if err != nil {
			return nil, err
		}
		s := d.String()
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return &types.AttributeValueMemberNULL{Value: true}, nil
	}
	return &types.AttributeValueMemberNS{Value: out}, nil
}

func marshalBinarySet(value any) (types.AttributeValue, error) {
	members, err := setMembers(value)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(members))
	out := make([][]byte, 0, len(members))
	for _, m := range members {
		b, ok := m.([]byte)
		if !ok {
			if s, isStr := m.(string); isStr {
				b = []byte(s)
			} else {
				return nil, appErrors.NewInvalidValue("set member cannot be converted to binary", m)
			}
		}
		if len(b) == 0 || seen[string(b)] {
			continue
		}
		seen[string(b)] = true
		out = append(out, b)
	}
	if len(out) == 0 {
		return &types.AttributeValueMemberNULL{Value: true}, nil
	}
	return &types.AttributeValueMemberBS{Value: out}, nil
}

func setMembers(value any) ([]any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	case [][]byte:
		out := make([]any, len(v))
		for i, b := range v {
			out[i] = b
		}
		return out, nil
	case []int:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, nil
	case []decimal.Decimal:
		out := make([]any, len(v))
		for i, d := range v {
			out[i] = d
		}
		return out, nil
	default:
		return nil, appErrors.NewInvalidValue("set value must be a slice", value)
	}
}

// CoerceDecimal converts the supported native number representations to a
// decimal value with a canonical base-10 rendering.
func CoerceDecimal(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int32:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case uint:
		return decimal.NewFromInt(int64(v)), nil
	case float32:
		return decimal.NewFromFloat(float64(v)), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Decimal{}, appErrors.NewInvalidValue("string is not a decimal number", value)
		}
		return d, nil
	default:
		return decimal.Decimal{}, appErrors.NewInvalidValue("value cannot be converted to a number", value)
	}
}

func coerceBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	default:
		return value != nil
	}
}

func coerceString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
