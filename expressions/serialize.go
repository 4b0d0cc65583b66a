package expressions

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"dynamapper/marshaller"
	appErrors "dynamapper/pkg/errors"
	"dynamapper/schema"
)

// SerializeConditionExpression normalizes a condition tree against the schema
// and emits the store's textual dialect, allocating placeholder tokens from
// the shared ExpressionAttributes.
func SerializeConditionExpression(c ConditionExpression, s schema.Schema, attrs *ExpressionAttributes) (string, error) {
	sz := &serializer{schema: s, attrs: attrs}
	return sz.condition(c)
}

// SerializeProjectionExpression emits a comma-joined projection list.
func SerializeProjectionExpression(p ProjectionExpression, s schema.Schema, attrs *ExpressionAttributes) (string, error) {
	sz := &serializer{schema: s, attrs: attrs}
	parts := make([]string, len(p))
	for i, path := range p {
		parts[i] = sz.path(path)
	}
	return strings.Join(parts, ", "), nil
}

// SerializeUpdateExpression emits SET, REMOVE, ADD and DELETE clauses with
// verbs in that order, clauses comma-joined within each verb.
func SerializeUpdateExpression(u *UpdateExpression, s schema.Schema, attrs *ExpressionAttributes) (string, error) {
	sz := &serializer{schema: s, attrs: attrs}
	var verbs []string

	if len(u.toSet) > 0 {
		clauses := make([]string, len(u.toSet))
		for i, c := range u.toSet {
			subject := sz.path(c.Subject)
			value, err := sz.operand(c.Subject, c.Value)
			if err != nil {
				return "", err
			}
			clauses[i] = subject + " = " + value
		}
		verbs = append(verbs, "SET "+strings.Join(clauses, ", "))
	}
	if len(u.toRemove) > 0 {
		clauses := make([]string, len(u.toRemove))
		for i, p := range u.toRemove {
			clauses[i] = sz.path(p)
		}
		verbs = append(verbs, "REMOVE "+strings.Join(clauses, ", "))
	}
	if len(u.toAdd) > 0 {
		clauses, err := sz.spacedClauses(u.toAdd)
		if err != nil {
			return "", err
		}
		verbs = append(verbs, "ADD "+strings.Join(clauses, ", "))
	}
	if len(u.toDelete) > 0 {
		clauses, err := sz.spacedClauses(u.toDelete)
		if err != nil {
			return "", err
		}
		verbs = append(verbs, "DELETE "+strings.Join(clauses, ", "))
	}

	return strings.Join(verbs, " "), nil
}

type serializer struct {
	schema schema.Schema
	attrs  *ExpressionAttributes
}

func (sz *serializer) condition(c ConditionExpression) (string, error) {
	switch v := c.(type) {
	case Comparison:
		// Path tokens are allocated before value tokens so the shared
		// counter interleaves them in subject-first order.
		subject := sz.path(v.Subject)
		operand, err := sz.operand(v.Subject, v.Operand)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", subject, v.Operator, operand), nil
	case Between:
		subject := sz.path(v.Subject)
		lower, err := sz.operand(v.Subject, v.Lower)
		if err != nil {
			return "", err
		}
		upper, err := sz.operand(v.Subject, v.Upper)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", subject, lower, upper), nil
	case Membership:
		subject := sz.path(v.Subject)
		members := make([]string, len(v.Values))
		for i, member := range v.Values {
			serialized, err := sz.operand(v.Subject, member)
			if err != nil {
				return "", err
			}
			members[i] = serialized
		}
		return fmt.Sprintf("%s IN (%s)", subject, strings.Join(members, ", ")), nil
	case AttributeExists:
		return fmt.Sprintf("attribute_exists(%s)", sz.path(v.Subject)), nil
	case AttributeNotExists:
		return fmt.Sprintf("attribute_not_exists(%s)", sz.path(v.Subject)), nil
	case AttributeType:
		subject := sz.path(v.Subject)
		token := sz.attrs.AddValue(&types.AttributeValueMemberS{Value: v.ExpectedType})
		return fmt.Sprintf("attribute_type(%s, %s)", subject, token), nil
	case BeginsWith:
		subject := sz.path(v.Subject)
		operand, err := sz.operand(v.Subject, v.Prefix)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("begins_with(%s, %s)", subject, operand), nil
	case Contains:
		subject := sz.path(v.Subject)
		operand, err := sz.operand(v.Subject, v.Operand)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("contains(%s, %s)", subject, operand), nil
	case Not:
		child, err := sz.condition(v.Condition)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("NOT (%s)", child), nil
	case And:
		return sz.junction(v.Conditions, "AND")
	case Or:
		return sz.junction(v.Conditions, "OR")
	default:
		return "", appErrors.NewInvalidSchema(fmt.Sprintf("unrecognized condition variant %T", c))
	}
}

// junction parenthesizes every child, even a lone one, so precedence survives
// a round-trip.
func (sz *serializer) junction(children []ConditionExpression, op string) (string, error) {
	parts := make([]string, len(children))
	for i, child := range children {
		serialized, err := sz.condition(child)
		if err != nil {
			return "", err
		}
		parts[i] = "(" + serialized + ")"
	}
	return strings.Join(parts, " "+op+" "), nil
}

// path rewrites each element via the schema's attribute-name override,
// descending through documents the way the marshaller does, and allocates a
// name token per distinct rewritten element. Map keys and elements beyond the
// schema's typed territory keep their literal names.
func (sz *serializer) path(p AttributePath) string {
	var b strings.Builder
	var t *schema.SchemaType
	for i, e := range p.Elements {
		if e.IsIndex {
			fmt.Fprintf(&b, "[%d]", e.Index)
			t = indexMember(t, e.Index)
			continue
		}
		name := e.Name
		if i == 0 {
			if head, ok := sz.schema[e.Name]; ok {
				name = head.PhysicalName(e.Name)
				t = head
			}
		} else {
			if t != nil && t.Tag == schema.TagDocument {
				if member, ok := t.Members[e.Name]; ok {
					name = member.PhysicalName(e.Name)
					t = member
				} else {
					t = nil
				}
			} else if t != nil && t.Tag == schema.TagMap {
				t = t.MemberType
			} else {
				t = nil
			}
			b.WriteByte('.')
		}
		b.WriteString(sz.attrs.AddName(name))
	}
	return b.String()
}

// indexMember resolves the type addressed by a [n] path element.
func indexMember(t *schema.SchemaType, index int) *schema.SchemaType {
	if t == nil {
		return nil
	}
	switch t.Tag {
	case schema.TagList, schema.TagSet:
		return t.MemberType
	case schema.TagTuple:
		if index < len(t.TupleMembers) {
			return t.TupleMembers[index]
		}
	}
	return nil
}

// operand serializes a comparison operand: paths render as token paths,
// mathematical expressions recurse, everything else becomes a value token.
// Constants are marshalled through the schema type addressed by the subject
// path, so Custom types serialize through the user's marshal function.
func (sz *serializer) operand(subject AttributePath, operand any) (string, error) {
	switch v := operand.(type) {
	case AttributePath:
		return sz.path(v), nil
	case MathematicalExpression:
		left, err := sz.operand(subject, v.Left)
		if err != nil {
			return "", err
		}
		right, err := sz.operand(subject, v.Right)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", left, v.Operator, right), nil
	case types.AttributeValue:
		return sz.attrs.AddValue(v), nil
	default:
		av, err := sz.marshalConstant(subject, v)
		if err != nil {
			return "", err
		}
		return sz.attrs.AddValue(av), nil
	}
}

func (sz *serializer) marshalConstant(subject AttributePath, value any) (types.AttributeValue, error) {
	if t := sz.typeAt(subject); t != nil {
		av, err := marshaller.MarshalValue(t, value)
		if err != nil {
			return nil, err
		}
		if av == nil {
			av = &types.AttributeValueMemberNULL{Value: true}
		}
		return av, nil
	}
	return attributevalue.Marshal(value)
}

// typeAt resolves the schema type addressed by a path, descending through
// documents, maps, lists and tuples. Returns nil when the path leaves the
// schema's typed territory.
func (sz *serializer) typeAt(p AttributePath) *schema.SchemaType {
	if len(p.Elements) == 0 || p.Elements[0].IsIndex {
		return nil
	}
	t, ok := sz.schema[p.Elements[0].Name]
	if !ok {
		return nil
	}
	for _, e := range p.Elements[1:] {
		if t == nil {
			return nil
		}
		switch t.Tag {
		case schema.TagDocument:
			if e.IsIndex {
				return nil
			}
			t = t.Members[e.Name]
		case schema.TagMap, schema.TagList, schema.TagSet:
			t = t.MemberType
		case schema.TagTuple:
			if !e.IsIndex || e.Index >= len(t.TupleMembers) {
				return nil
			}
			t = t.TupleMembers[e.Index]
		default:
			return nil
		}
	}
	return t
}

func (sz *serializer) spacedClauses(clauses []updateClause) ([]string, error) {
	out := make([]string, len(clauses))
	for i, c := range clauses {
		subject := sz.path(c.Subject)
		value, err := sz.operand(c.Subject, c.Value)
		if err != nil {
			return nil, err
		}
		out[i] = subject + " " + value
	}
	return out, nil
}
