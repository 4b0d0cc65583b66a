package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynamapper/expressions"
	"dynamapper/item"
	appErrors "dynamapper/pkg/errors"
	"dynamapper/schema"
)

func widgetSchema() schema.Schema {
	return schema.Schema{
		"id":   {Tag: schema.TagString, KeyType: schema.HashKey},
		"body": {Tag: schema.TagString},
	}
}

func widget(id string) *item.Record {
	return &item.Record{
		Table:  "widgets",
		Schema: widgetSchema(),
		Props:  map[string]any{"id": id},
	}
}

type mockBatchGetClient struct {
	calls []*dynamodb.BatchGetItemInput
	fn    func(params *dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error)
}

func (m *mockBatchGetClient) BatchGetItem(_ context.Context, params *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	m.calls = append(m.calls, params)
	return m.fn(params)
}

// echoResponses answers every requested key with the key plus a body
// attribute.
func echoResponses(params *dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error) {
	out := &dynamodb.BatchGetItemOutput{Responses: map[string][]map[string]types.AttributeValue{}}
	for table, kaa := range params.RequestItems {
		for _, key := range kaa.Keys {
			av := map[string]types.AttributeValue{
				"id":   key["id"],
				"body": &types.AttributeValueMemberS{Value: "filled"},
			}
			out.Responses[table] = append(out.Responses[table], av)
		}
	}
	return out, nil
}

func drainReads(t *testing.T, r *ReadBatcher) []item.Item {
	t.Helper()
	var got []item.Item
	for {
		it, ok, err := r.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			return got
		}
		got = append(got, it)
	}
}

func TestReadBatcher_PartitionsInputIntoMaxSizedBatches(t *testing.T) {
	// Arrange
	client := &mockBatchGetClient{fn: echoResponses}
	elems := make([]ReadElement, 325)
	for i := range elems {
		elems[i] = ReadElement{Item: widget(fmt.Sprintf("item-%03d", i))}
	}

	// Act
	r := NewReadBatcher(client, NewSliceProducer(elems), nil)
	got := drainReads(t, r)

	// Assert
	assert.Len(t, got, 325)
	require.Len(t, client.calls, 4)
	sizes := make([]int, len(client.calls))
	for i, call := range client.calls {
		sizes[i] = len(call.RequestItems["widgets"].Keys)
	}
	assert.Equal(t, []int{100, 100, 100, 25}, sizes)
}

func TestReadBatcher_PreservesInputOrderPerTable(t *testing.T) {
	client := &mockBatchGetClient{fn: echoResponses}
	elems := make([]ReadElement, 150)
	for i := range elems {
		elems[i] = ReadElement{Item: widget(fmt.Sprintf("item-%03d", i))}
	}

	r := NewReadBatcher(client, NewSliceProducer(elems), nil)
	drainReads(t, r)

	require.Len(t, client.calls, 2)
	var sent []string
	for _, call := range client.calls {
		for _, key := range call.RequestItems["widgets"].Keys {
			sent = append(sent, key["id"].(*types.AttributeValueMemberS).Value)
		}
	}
	require.Len(t, sent, 150)
	for i, id := range sent {
		assert.Equal(t, fmt.Sprintf("item-%03d", i), id)
	}
}

func TestReadBatcher_HydratesInputInstances(t *testing.T) {
	client := &mockBatchGetClient{fn: echoResponses}
	first := widget("item-0")

	r := NewReadBatcher(client, NewSliceProducer([]ReadElement{{Item: first}}), nil)
	got := drainReads(t, r)

	require.Len(t, got, 1)
	assert.Same(t, first, got[0])
	assert.Equal(t, "filled", first.Props["body"])
}

func TestReadBatcher_RetriesUnprocessedKeys(t *testing.T) {
	// Arrange: the first call reports one key unprocessed.
	failed := false
	client := &mockBatchGetClient{}
	client.fn = func(params *dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error) {
		keys := params.RequestItems["widgets"].Keys
		if !failed {
			failed = true
			out := &dynamodb.BatchGetItemOutput{
				Responses: map[string][]map[string]types.AttributeValue{},
				UnprocessedKeys: map[string]types.KeysAndAttributes{
					"widgets": {Keys: keys[:1]},
				},
			}
			for _, key := range keys[1:] {
				out.Responses["widgets"] = append(out.Responses["widgets"], map[string]types.AttributeValue{
					"id": key["id"], "body": &types.AttributeValueMemberS{Value: "filled"},
				})
			}
			return out, nil
		}
		return echoResponses(params)
	}
	elems := make([]ReadElement, 3)
	for i := range elems {
		elems[i] = ReadElement{Item: widget(fmt.Sprintf("item-%d", i))}
	}

	// Act
	r := NewReadBatcher(client, NewSliceProducer(elems), &ReadBatcherOptions{Rand: func() float64 { return 0 }})
	got := drainReads(t, r)

	// Assert: every item yielded exactly once despite the retry.
	assert.Len(t, got, 3)
	assert.Len(t, client.calls, 2)
	retried := client.calls[1].RequestItems["widgets"].Keys
	require.Len(t, retried, 1)
	assert.Equal(t, "item-0", retried[0]["id"].(*types.AttributeValueMemberS).Value)
}

func TestReadBatcher_TransportErrorTerminatesStream(t *testing.T) {
	client := &mockBatchGetClient{fn: func(*dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error) {
		return nil, errors.New("connection reset")
	}}

	r := NewReadBatcher(client, NewSliceProducer([]ReadElement{{Item: widget("item-0")}}), nil)
	_, ok, err := r.Next(context.Background())

	assert.False(t, ok)
	assert.True(t, appErrors.IsTransport(err))
}

func TestReadBatcher_AppliesPerTableProjectionAndConsistency(t *testing.T) {
	client := &mockBatchGetClient{fn: echoResponses}
	opts := &ReadBatcherOptions{
		PerTable: map[string]ReadTableOptions{
			"widgets": {
				ConsistentRead: true,
				Projection:     expressions.ProjectionExpression{expressions.Path("body")},
			},
		},
	}

	r := NewReadBatcher(client, NewSliceProducer([]ReadElement{{Item: widget("item-0")}}), opts)
	drainReads(t, r)

	require.Len(t, client.calls, 1)
	kaa := client.calls[0].RequestItems["widgets"]
	require.NotNil(t, kaa.ProjectionExpression)
	// Key properties are appended so responses can be correlated.
	assert.Equal(t, "#attr0, #attr1", *kaa.ProjectionExpression)
	assert.Equal(t, map[string]string{"#attr0": "body", "#attr1": "id"}, kaa.ExpressionAttributeNames)
	require.NotNil(t, kaa.ConsistentRead)
	assert.True(t, *kaa.ConsistentRead)
}
