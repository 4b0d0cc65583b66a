package expressions

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynamapper/schema"
)

func keySchema() schema.Schema {
	return schema.Schema{
		"snap": {Tag: schema.TagString, KeyType: schema.HashKey},
		"pop":  {Tag: schema.TagNumber, KeyType: schema.RangeKey},
	}
}

func TestSerializeCondition_SharedCounterInterleavesNamesAndValues(t *testing.T) {
	// Arrange
	attrs := NewExpressionAttributes()

	// Act
	serialized, err := SerializeConditionExpression(Equals(Path("snap"), "crackle"), keySchema(), attrs)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "#attr0 = :val1", serialized)
	assert.Equal(t, map[string]string{"#attr0": "snap"}, attrs.Names())
	assert.Equal(t, map[string]types.AttributeValue{
		":val1": &types.AttributeValueMemberS{Value: "crackle"},
	}, attrs.Values())
}

func TestSerializeCondition_AndOfEqualsAndBetween(t *testing.T) {
	attrs := NewExpressionAttributes()
	condition := And{Conditions: []ConditionExpression{
		Equals(Path("snap"), "crackle"),
		Between{Subject: Path("pop"), Lower: 10, Upper: 20},
	}}

	serialized, err := SerializeConditionExpression(condition, keySchema(), attrs)

	require.NoError(t, err)
	assert.Equal(t, "(#attr0 = :val1) AND (#attr2 BETWEEN :val3 AND :val4)", serialized)
	assert.Equal(t, map[string]string{"#attr0": "snap", "#attr2": "pop"}, attrs.Names())
	assert.Equal(t, map[string]types.AttributeValue{
		":val1": &types.AttributeValueMemberS{Value: "crackle"},
		":val3": &types.AttributeValueMemberN{Value: "10"},
		":val4": &types.AttributeValueMemberN{Value: "20"},
	}, attrs.Values())
}

func TestSerializeCondition_SingleChildAndStillParenthesized(t *testing.T) {
	attrs := NewExpressionAttributes()
	condition := And{Conditions: []ConditionExpression{
		Equals(Path("snap"), "crackle"),
	}}

	serialized, err := SerializeConditionExpression(condition, keySchema(), attrs)

	require.NoError(t, err)
	assert.Equal(t, "(#attr0 = :val1)", serialized)
}

func TestSerializeCondition_AttributeNotExists(t *testing.T) {
	attrs := NewExpressionAttributes()
	s := schema.Schema{
		"key":     {Tag: schema.TagString, KeyType: schema.HashKey},
		"version": {Tag: schema.TagNumber, VersionAttribute: true},
	}

	serialized, err := SerializeConditionExpression(AttributeNotExists{Subject: Path("version")}, s, attrs)

	require.NoError(t, err)
	assert.Equal(t, "attribute_not_exists(#attr0)", serialized)
	assert.Equal(t, map[string]string{"#attr0": "version"}, attrs.Names())
	assert.Nil(t, attrs.Values())
}

func TestSerializeCondition_FunctionsAndMembership(t *testing.T) {
	attrs := NewExpressionAttributes()
	condition := Or{Conditions: []ConditionExpression{
		BeginsWith{Subject: Path("snap"), Prefix: "cra"},
		Membership{Subject: Path("snap"), Values: []any{"a", "b"}},
		Not{Condition: AttributeExists{Subject: Path("snap")}},
	}}

	serialized, err := SerializeConditionExpression(condition, keySchema(), attrs)

	require.NoError(t, err)
	assert.Equal(t,
		"(begins_with(#attr0, :val1)) OR (#attr0 IN (:val2, :val3)) OR (NOT (attribute_exists(#attr0)))",
		serialized)
}

func TestSerializeCondition_NestedPathAllocatesTokenPerElement(t *testing.T) {
	attrs := NewExpressionAttributes()
	s := schema.Schema{
		"doc": {Tag: schema.TagDocument, Members: schema.Schema{
			"list": {Tag: schema.TagList, MemberType: &schema.SchemaType{Tag: schema.TagString}},
		}},
	}

	serialized, err := SerializeConditionExpression(Equals(Path("doc.list[3]"), "x"), s, attrs)

	require.NoError(t, err)
	assert.Equal(t, "#attr0.#attr1[3] = :val2", serialized)
	assert.Equal(t, map[string]string{"#attr0": "doc", "#attr1": "list"}, attrs.Names())
}

func TestSerializeCondition_NestedDocumentMemberUsesPhysicalName(t *testing.T) {
	// Arrange
	attrs := NewExpressionAttributes()
	s := schema.Schema{
		"doc": {Tag: schema.TagDocument, Members: schema.Schema{
			"createdAt": {Tag: schema.TagString, AttributeName: "created_at"},
			"revisions": {Tag: schema.TagList, MemberType: &schema.SchemaType{
				Tag: schema.TagDocument, Members: schema.Schema{
					"editedBy": {Tag: schema.TagString, AttributeName: "edited_by"},
				},
			}},
		}},
	}

	// Act
	serialized, err := SerializeConditionExpression(And{Conditions: []ConditionExpression{
		Equals(Path("doc.createdAt"), "x"),
		Equals(Path("doc.revisions[0].editedBy"), "y"),
	}}, s, attrs)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "(#attr0.#attr1 = :val2) AND (#attr0.#attr3[0].#attr4 = :val5)", serialized)
	assert.Equal(t, map[string]string{
		"#attr0": "doc",
		"#attr1": "created_at",
		"#attr3": "revisions",
		"#attr4": "edited_by",
	}, attrs.Names())
}

func TestSerializeCondition_CustomTypeMarshalsOperandThroughUserFunc(t *testing.T) {
	// Arrange
	attrs := NewExpressionAttributes()
	called := 0
	s := schema.Schema{
		"color": {Tag: schema.TagCustom, Marshal: func(value any) (types.AttributeValue, error) {
			called++
			return &types.AttributeValueMemberS{Value: "hex:" + value.(string)}, nil
		}},
	}

	// Act
	serialized, err := SerializeConditionExpression(Equals(Path("color"), "ff0000"), s, attrs)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "#attr0 = :val1", serialized)
	assert.Equal(t, 1, called)
	assert.Equal(t, map[string]types.AttributeValue{
		":val1": &types.AttributeValueMemberS{Value: "hex:ff0000"},
	}, attrs.Values())
}

func TestSerializeCondition_HeadElementUsesPhysicalName(t *testing.T) {
	attrs := NewExpressionAttributes()
	s := schema.Schema{
		"createdAt": {Tag: schema.TagDate, AttributeName: "created_at"},
	}

	serialized, err := SerializeConditionExpression(
		GreaterThan(Path("createdAt"), 1622550645), s, attrs)

	require.NoError(t, err)
	assert.Equal(t, "#attr0 > :val1", serialized)
	assert.Equal(t, map[string]string{"#attr0": "created_at"}, attrs.Names())
}

func TestSerializeProjection_Idempotent(t *testing.T) {
	// Arrange
	attrs := NewExpressionAttributes()
	projection := ProjectionExpression{Path("snap"), Path("pop")}

	// Act
	first, err := SerializeProjectionExpression(projection, keySchema(), attrs)
	require.NoError(t, err)
	second, err := SerializeProjectionExpression(projection, keySchema(), attrs)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, first, second)
	assert.Equal(t, "#attr0, #attr1", first)
	assert.Len(t, attrs.Names(), 2)
}

func TestSerializeUpdate_VerbOrder(t *testing.T) {
	attrs := NewExpressionAttributes()
	s := schema.Schema{
		"title":   {Tag: schema.TagString},
		"legacy":  {Tag: schema.TagString},
		"hits":    {Tag: schema.TagNumber},
		"aliases": {Tag: schema.TagSet, MemberType: &schema.SchemaType{Tag: schema.TagString}},
	}
	update := NewUpdateExpression().
		Set(Path("title"), "fresh").
		Remove(Path("legacy")).
		Add(Path("hits"), 1).
		Delete(Path("aliases"), []any{"old"})

	serialized, err := SerializeUpdateExpression(update, s, attrs)

	require.NoError(t, err)
	assert.Equal(t, "SET #attr0 = :val1 REMOVE #attr2 ADD #attr3 :val4 DELETE #attr5 :val6", serialized)
}

func TestSerializeUpdate_MathematicalExpression(t *testing.T) {
	attrs := NewExpressionAttributes()
	s := schema.Schema{
		"version": {Tag: schema.TagNumber, VersionAttribute: true},
	}
	update := NewUpdateExpression().Set(Path("version"), MathematicalExpression{
		Left:     Path("version"),
		Operator: "+",
		Right:    1,
	})

	serialized, err := SerializeUpdateExpression(update, s, attrs)

	require.NoError(t, err)
	assert.Equal(t, "SET #attr0 = #attr0 + :val1", serialized)
	assert.Equal(t, map[string]types.AttributeValue{
		":val1": &types.AttributeValueMemberN{Value: "1"},
	}, attrs.Values())
}

// Token to referent mapping stays injective across mixed serializations on
// one ExpressionAttributes.
func TestExpressionAttributes_UniqueTokens(t *testing.T) {
	attrs := NewExpressionAttributes()
	s := keySchema()

	_, err := SerializeConditionExpression(Equals(Path("snap"), "a"), s, attrs)
	require.NoError(t, err)
	_, err = SerializeConditionExpression(Equals(Path("pop"), 1), s, attrs)
	require.NoError(t, err)
	_, err = SerializeProjectionExpression(ProjectionExpression{Path("snap")}, s, attrs)
	require.NoError(t, err)

	names := attrs.Names()
	values := attrs.Values()
	tokens := make(map[string]bool, len(names)+len(values))
	for token := range names {
		assert.False(t, tokens[token])
		tokens[token] = true
	}
	for token := range values {
		assert.False(t, tokens[token])
		tokens[token] = true
	}
	assert.Len(t, tokens, len(names)+len(values))
}
