package marshaller

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "dynamapper/pkg/errors"
	"dynamapper/schema"
)

func scalarSchema() schema.Schema {
	return schema.Schema{
		"id":      {Tag: schema.TagString, KeyType: schema.HashKey},
		"count":   {Tag: schema.TagNumber},
		"active":  {Tag: schema.TagBoolean},
		"payload": {Tag: schema.TagBinary},
		"when":    {Tag: schema.TagDate},
	}
}

func TestMarshalItem_ScalarRoundTrip(t *testing.T) {
	// Arrange
	s := scalarSchema()
	when := time.Date(2021, 6, 1, 12, 30, 45, 0, time.UTC)
	props := map[string]any{
		"id":      "item-1",
		"count":   42,
		"active":  true,
		"payload": []byte{0x01, 0x02},
		"when":    when,
	}

	// Act
	marshalled, err := MarshalItem(s, props)
	require.NoError(t, err)
	roundTripped, err := UnmarshalItem(s, marshalled)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, "item-1", roundTripped["id"])
	assert.Equal(t, true, roundTripped["active"])
	assert.Equal(t, []byte{0x01, 0x02}, roundTripped["payload"])
	back, ok := roundTripped["when"].(time.Time)
	require.True(t, ok)
	assert.True(t, when.Equal(back))
	count, ok := roundTripped["count"].(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, count.Equal(decimal.NewFromInt(42)))
}

func TestMarshalItem_SkipsPropertiesOutsideSchema(t *testing.T) {
	s := scalarSchema()

	marshalled, err := MarshalItem(s, map[string]any{
		"id":        "item-1",
		"ephemeral": "not stored",
	})

	require.NoError(t, err)
	assert.Contains(t, marshalled, "id")
	assert.NotContains(t, marshalled, "ephemeral")
}

func TestMarshalItem_AppliesDefaultProvider(t *testing.T) {
	s := schema.Schema{
		"id":        {Tag: schema.TagString, KeyType: schema.HashKey},
		"createdAt": {Tag: schema.TagString, DefaultProvider: func() any { return "generated" }},
	}

	marshalled, err := MarshalItem(s, map[string]any{"id": "item-1"})

	require.NoError(t, err)
	av, ok := marshalled["createdAt"].(*types.AttributeValueMemberS)
	require.True(t, ok)
	assert.Equal(t, "generated", av.Value)
}

func TestMarshalValue_DateTruncatesSubSecondPrecision(t *testing.T) {
	dateType := &schema.SchemaType{Tag: schema.TagDate}
	when := time.Date(2021, 6, 1, 12, 30, 45, 999_000_000, time.UTC)

	av, err := MarshalValue(dateType, when)

	require.NoError(t, err)
	n, ok := av.(*types.AttributeValueMemberN)
	require.True(t, ok)
	assert.Equal(t, "1622550645", n.Value)
}

func TestMarshalValue_EmptyStringIsNull(t *testing.T) {
	av, err := MarshalValue(&schema.SchemaType{Tag: schema.TagString}, "")

	require.NoError(t, err)
	_, ok := av.(*types.AttributeValueMemberNULL)
	assert.True(t, ok)
}

func TestMarshalValue_SetDeduplicatesMembers(t *testing.T) {
	setType := &schema.SchemaType{
		Tag:        schema.TagSet,
		MemberType: &schema.SchemaType{Tag: schema.TagString},
	}

	av, err := MarshalValue(setType, []any{"a", "b", "a", "b", "c"})

	require.NoError(t, err)
	ss, ok := av.(*types.AttributeValueMemberSS)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ss.Value)
}

func TestMarshalValue_EmptySetIsNull(t *testing.T) {
	setType := &schema.SchemaType{
		Tag:        schema.TagSet,
		MemberType: &schema.SchemaType{Tag: schema.TagNumber},
	}

	av, err := MarshalValue(setType, []any{})

	require.NoError(t, err)
	_, ok := av.(*types.AttributeValueMemberNULL)
	assert.True(t, ok)
}

func TestMarshalValue_UnknownSetMemberTagFails(t *testing.T) {
	setType := &schema.SchemaType{
		Tag:        schema.TagSet,
		MemberType: &schema.SchemaType{Tag: schema.TagDocument},
	}

	_, err := MarshalValue(setType, []any{map[string]any{}})

	assert.True(t, appErrors.IsInvalidSchema(err))
}

func TestMarshalValue_NumberCoercionFailure(t *testing.T) {
	_, err := MarshalValue(&schema.SchemaType{Tag: schema.TagNumber}, struct{}{})

	assert.True(t, appErrors.IsInvalidValue(err))
}

func TestMarshalValue_DocumentRoundTrip(t *testing.T) {
	docType := &schema.SchemaType{
		Tag: schema.TagDocument,
		Members: schema.Schema{
			"street": {Tag: schema.TagString},
			"number": {Tag: schema.TagNumber},
		},
	}
	native := map[string]any{"street": "Main St", "number": 12}

	av, err := MarshalValue(docType, native)
	require.NoError(t, err)
	back, err := UnmarshalValue(docType, av)
	require.NoError(t, err)

	doc, ok := back.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Main St", doc["street"])
	number, ok := doc["number"].(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, number.Equal(decimal.NewFromInt(12)))
}

func TestMarshalKey_IsKeySubsetOfMarshalledItem(t *testing.T) {
	// Arrange
	s := schema.Schema{
		"partition": {Tag: schema.TagString, KeyType: schema.HashKey},
		"sort":      {Tag: schema.TagNumber, KeyType: schema.RangeKey},
		"body":      {Tag: schema.TagString},
	}
	props := map[string]any{"partition": "p", "sort": 7, "body": "content"}

	// Act
	full, err := MarshalItem(s, props)
	require.NoError(t, err)
	key, err := MarshalKey(s, props)
	require.NoError(t, err)

	// Assert
	require.Len(t, key, 2)
	for name, av := range key {
		assert.Equal(t, full[name], av)
	}
	assert.NotContains(t, key, "body")
}

func TestMarshalKey_HonorsIndexName(t *testing.T) {
	s := schema.Schema{
		"id":    {Tag: schema.TagString, KeyType: schema.HashKey},
		"owner": {Tag: schema.TagString, IndexKeys: map[string]schema.KeyType{"by-owner": schema.HashKey}},
	}
	props := map[string]any{"id": "item-1", "owner": "user-1"}

	key, err := MarshalKey(s, props, "by-owner")

	require.NoError(t, err)
	assert.Contains(t, key, "owner")
	assert.NotContains(t, key, "id")
}

func TestCoerceDecimal_AcceptedForms(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  string
	}{
		{"int", 42, "42"},
		{"int64", int64(-7), "-7"},
		{"float64", 2.5, "2.5"},
		{"string", "123.456", "123.456"},
		{"decimal", decimal.RequireFromString("9000000000000000000000"), "9000000000000000000000"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CoerceDecimal(tc.value)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
		})
	}
}
