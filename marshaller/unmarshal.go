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

// UnmarshalItem converts a marshalled item back to a native property map. The
// result is keyed by property name, not attribute name. Attributes without a
// schema property are ignored; absent values are omitted from the result.
func UnmarshalItem(s schema.Schema, item map[string]types.AttributeValue) (map[string]any, error) {
	out := make(map[string]any, len(s))
	for name, t := range s {
		av, ok := item[t.PhysicalName(name)]
		if !ok {
			continue
		}
		v, err := UnmarshalValue(t, av)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		if v != nil {
			out[name] = v
		}
	}
	return out, nil
}

// UnmarshalValue converts one attribute value back to its native form. A nil
// return with a nil error means the value is absent (NULL-marshalled empties
// round-trip to absent).
func UnmarshalValue(t *schema.SchemaType, av types.AttributeValue) (any, error) {
	if t == nil {
		return nil, appErrors.NewInvalidSchema("nil schema type")
	}
	if _, isNull := av.(*types.AttributeValueMemberNULL); isNull {
		return nil, nil
	}

	switch t.Tag {
	case schema.TagBinary:
		b, ok := av.(*types.AttributeValueMemberB)
		if !ok {
			return nil, appErrors.NewInvalidValue("attribute is not binary", av)
		}
		return b.Value, nil
	case schema.TagBoolean:
		b, ok := av.(*types.AttributeValueMemberBOOL)
		if !ok {
			return nil, appErrors.NewInvalidValue("attribute is not boolean", av)
		}
		return b.Value, nil
	case schema.TagNumber:
		n, ok := av.(*types.AttributeValueMemberN)
		if !ok {
			return nil, appErrors.NewInvalidValue("attribute is not a number", av)
		}
		d, err := decimal.NewFromString(n.Value)
		if err != nil {
			return nil, appErrors.NewInvalidValue("attribute is not a decimal string", av)
		}
		return d, nil
	case schema.TagString:
		s, ok := av.(*types.AttributeValueMemberS)
		if !ok {
			return nil, appErrors.NewInvalidValue("attribute is not a string", av)
		}
		return s.Value, nil
	case schema.TagDate:
		n, ok := av.(*types.AttributeValueMemberN)
		if !ok {
			return nil, appErrors.NewInvalidValue("attribute is not an epoch-second number", av)
		}
		d, err := decimal.NewFromString(n.Value)
		if err != nil {
			return nil, appErrors.NewInvalidValue("attribute is not a decimal string", av)
		}
		return time.Unix(d.IntPart(), 0).UTC(), nil
	case schema.TagNull:
		return nil, nil
	case schema.TagDocument:
		return unmarshalDocument(t, av)
	case schema.TagMap:
		return unmarshalMap(t, av)
	case schema.TagList:
		return unmarshalList(t.MemberType, av)
	case schema.TagTuple:
		return unmarshalTuple(t, av)
	case schema.TagSet:
		return unmarshalSet(t, av)
	case schema.TagCollection, schema.TagHash, schema.TagAny:
		var out any
		if err := attributevalue.Unmarshal(av, &out); err != nil {
			return nil, appErrors.NewInvalidValue("attribute cannot be auto-unmarshalled", av)
		}
		return out, nil
	case schema.TagCustom:
		if t.Unmarshal == nil {
			return nil, appErrors.NewInvalidSchema("custom type without unmarshal function")
		}
		return t.Unmarshal(av)
	default:
		return nil, appErrors.NewInvalidSchema(fmt.Sprintf("unrecognized schema type tag %q", t.Tag))
	}
}

func unmarshalDocument(t *schema.SchemaType, av types.AttributeValue) (any, error) {
	m, ok := av.(*types.AttributeValueMemberM)
	if !ok {
		return nil, appErrors.NewInvalidValue("attribute is not a map", av)
	}
	props, err := UnmarshalItem(t.Members, m.Value)
	if err != nil {
		return nil, err
	}
	if t.NewInstance != nil {
		seeded := t.NewInstance()
		for k, v := range props {
			seeded[k] = v
		}
		return seeded, nil
	}
	return props, nil
}

func unmarshalMap(t *schema.SchemaType, av types.AttributeValue) (any, error) {
	if t.MemberType == nil {
		return nil, appErrors.NewInvalidSchema("map type without member type")
	}
	m, ok := av.(*types.AttributeValueMemberM)
	if !ok {
		return nil, appErrors.NewInvalidValue("attribute is not a map", av)
	}
	out := make(map[string]any, len(m.Value))
	for k, member := range m.Value {
		v, err := UnmarshalValue(t.MemberType, member)
		if err != nil {
			return nil, fmt.Errorf("map member %q: %w", k, err)
		}
		if v != nil {
			out[k] = v
		}
	}
	return out, nil
}

func unmarshalList(memberType *schema.SchemaType, av types.AttributeValue) (any, error) {
	if memberType == nil {
		return nil, appErrors.NewInvalidSchema("list type without member type")
	}
	l, ok := av.(*types.AttributeValueMemberL)
	if !ok {
		return nil, appErrors.NewInvalidValue("attribute is not a list", av)
	}
	out := make([]any, 0, len(l.Value))
	for i, member := range l.Value {
		v, err := UnmarshalValue(memberType, member)
		if err != nil {
			return nil, fmt.Errorf("list member %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func unmarshalTuple(t *schema.SchemaType, av types.AttributeValue) (any, error) {
	l, ok := av.(*types.AttributeValueMemberL)
	if !ok {
		return nil, appErrors.NewInvalidValue("attribute is not a list", av)
	}
	out := make([]any, 0, len(t.TupleMembers))
	for i, memberType := range t.TupleMembers {
		if i >= len(l.Value) {
			break
		}
		v, err := UnmarshalValue(memberType, l.Value[i])
		if err != nil {
			return nil, fmt.Errorf("tuple member %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func unmarshalSet(t *schema.SchemaType, av types.AttributeValue) (any, error) {
	if t.MemberType == nil {
		return nil, appErrors.NewInvalidSchema("set type without member type")
	}
	switch t.MemberType.Tag {
	case schema.TagString:
		ss, ok := av.(*types.AttributeValueMemberSS)
		if !ok {
			return nil, appErrors.NewInvalidValue("attribute is not a string set", av)
		}
		return append([]string(nil), ss.Value...), nil
	case schema.TagNumber:
		ns, ok := av.(*types.AttributeValueMemberNS)
		if !ok {
			return nil, appErrors.NewInvalidValue("attribute is not a number set", av)
		}
		out := make([]decimal.Decimal, 0, len(ns.Value))
		for _, s := range ns.Value {
			d, err := decimal.NewFromString(s)
			if err != nil {
				return nil, appErrors.NewInvalidValue("set member is not a decimal string", s)
			}
			out = append(out, d)
		}
		return out, nil
	case schema.TagBinary:
		bs, ok := av.(*types.AttributeValueMemberBS)
		if !ok {
			return nil, appErrors.NewInvalidValue("attribute is not a binary set", av)
		}
		out := make([][]byte, len(bs.Value))
		for i, b := range bs.Value {
			out[i] = append([]byte(nil), b...)
		}
		return out, nil
	default:
		return nil, appErrors.NewInvalidSchema(fmt.Sprintf("unrecognized set member type %q", t.MemberType.Tag))
	}
}
