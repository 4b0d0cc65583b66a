package mapper

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dynamapper/expressions"
	"dynamapper/item"
	"dynamapper/marshaller"
	appErrors "dynamapper/pkg/errors"
	"dynamapper/schema"
)

// GetOptions configures a single-item read.
type GetOptions struct {
	// ReadConsistency overrides the mapper default when non-empty.
	ReadConsistency ReadConsistency
	// Projection limits the attributes fetched.
	Projection expressions.ProjectionExpression
}

// PutOptions configures a single-item put.
type PutOptions struct {
	// Condition guards the put; a version condition is combined with it.
	Condition expressions.ConditionExpression
	// SkipVersionCheck overrides the mapper default when non-nil.
	SkipVersionCheck *bool
}

// DeleteOptions configures a single-item delete.
type DeleteOptions struct {
	Condition expressions.ConditionExpression
	// ReturnValues defaults to ALL_OLD.
	ReturnValues     types.ReturnValue
	SkipVersionCheck *bool
}

// OnMissing selects how an update treats schema properties absent from the
// item.
type OnMissing string

const (
	// RemoveMissing removes absent attributes from the stored item.
	RemoveMissing OnMissing = "remove"
	// SkipMissing leaves absent attributes untouched.
	SkipMissing OnMissing = "skip"
)

// UpdateOptions configures a single-item update.
type UpdateOptions struct {
	Condition expressions.ConditionExpression
	// OnMissing defaults to RemoveMissing.
	OnMissing        OnMissing
	SkipVersionCheck *bool
}

// Get fetches the item identified by the input's key attributes and hydrates
// the same instance with the response. A response without an item fails with
// an ItemNotFound error carrying the request.
func (m *DataMapper) Get(ctx context.Context, it item.Item, opts *GetOptions) (item.Item, error) {
	if opts == nil {
		opts = &GetOptions{}
	}
	sch, err := item.SchemaOf(it)
	if err != nil {
		return nil, err
	}
	table, err := item.TableNameOf(it, m.tablePrefix)
	if err != nil {
		return nil, err
	}
	key, err := marshaller.MarshalKey(sch, it.DynamoProperties())
	if err != nil {
		return nil, err
	}

	input := &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       key,
	}
	consistency := m.consistency
	if opts.ReadConsistency != "" {
		consistency = opts.ReadConsistency
	}
	if consistency == ReadConsistencyStrong {
		input.ConsistentRead = aws.Bool(true)
	}
	if len(opts.Projection) > 0 {
		attrs := expressions.NewExpressionAttributes()
		serialized, err := expressions.SerializeProjectionExpression(opts.Projection, sch, attrs)
		if err != nil {
			return nil, err
		}
		input.ProjectionExpression = aws.String(serialized)
		input.ExpressionAttributeNames = attrs.Names()
	}

	m.logger.Debug("get item", zap.String("table", table))
	out, err := m.client.GetItem(ctx, input, m.callOptions...)
	if err != nil {
		return nil, appErrors.WrapTransport(err, "GetItem failed")
	}
	if len(out.Item) == 0 {
		return nil, appErrors.NewItemNotFound("item not found", input)
	}
	props, err := marshaller.UnmarshalItem(sch, out.Item)
	if err != nil {
		return nil, err
	}
	it.DynamoHydrate(props)
	return it, nil
}

// Put writes the full item, synthesizing an optimistic-lock condition when
// the schema declares a version attribute. The input instance is hydrated
// with the stored image, including the written version.
func (m *DataMapper) Put(ctx context.Context, it item.Item, opts *PutOptions) (item.Item, error) {
	if opts == nil {
		opts = &PutOptions{}
	}
	sch, err := item.SchemaOf(it)
	if err != nil {
		return nil, err
	}
	table, err := item.TableNameOf(it, m.tablePrefix)
	if err != nil {
		return nil, err
	}
	props := it.DynamoProperties()
	marshalled, err := marshaller.MarshalItem(sch, props)
	if err != nil {
		return nil, err
	}

	condition := opts.Condition
	skip := m.skipVersionCheck(opts.SkipVersionCheck)
	if vprop := schema.VersionProperty(sch); vprop != "" {
		phys := sch[vprop].PhysicalName(vprop)
		current, present := versionValue(props, vprop)
		if !present {
			marshalled[phys] = &types.AttributeValueMemberN{Value: "0"}
			if !skip {
				condition = combineConditions(condition, expressions.AttributeNotExists{Subject: expressions.Path(vprop)})
			}
		} else if !skip {
			condition = combineConditions(condition, expressions.Equals(expressions.Path(vprop), current))
			next, err := marshaller.CoerceDecimal(current)
			if err != nil {
				return nil, err
			}
			marshalled[phys] = &types.AttributeValueMemberN{Value: next.Add(decimal.NewFromInt(1)).String()}
		}
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      marshalled,
	}
	if condition != nil {
		attrs := expressions.NewExpressionAttributes()
		serialized, err := expressions.SerializeConditionExpression(condition, sch, attrs)
		if err != nil {
			return nil, err
		}
		input.ConditionExpression = aws.String(serialized)
		input.ExpressionAttributeNames = attrs.Names()
		input.ExpressionAttributeValues = attrs.Values()
	}

	m.logger.Debug("put item", zap.String("table", table))
	if _, err := m.client.PutItem(ctx, input, m.callOptions...); err != nil {
		return nil, appErrors.WrapTransport(err, "PutItem failed")
	}
	stored, err := marshaller.UnmarshalItem(sch, marshalled)
	if err != nil {
		return nil, err
	}
	it.DynamoHydrate(stored)
	return it, nil
}

// Delete removes the item identified by the input's key attributes and
// returns the previous stored image when the store reports one, nil
// otherwise.
func (m *DataMapper) Delete(ctx context.Context, it item.Item, opts *DeleteOptions) (item.Item, error) {
	if opts == nil {
		opts = &DeleteOptions{}
	}
	sch, err := item.SchemaOf(it)
	if err != nil {
		return nil, err
	}
	table, err := item.TableNameOf(it, m.tablePrefix)
	if err != nil {
		return nil, err
	}
	props := it.DynamoProperties()
	key, err := marshaller.MarshalKey(sch, props)
	if err != nil {
		return nil, err
	}

	condition := opts.Condition
	if vprop := schema.VersionProperty(sch); vprop != "" && !m.skipVersionCheck(opts.SkipVersionCheck) {
		if current, present := versionValue(props, vprop); present {
			condition = combineConditions(condition, expressions.Equals(expressions.Path(vprop), current))
		} else {
			condition = combineConditions(condition, expressions.AttributeNotExists{Subject: expressions.Path(vprop)})
		}
	}

	returnValues := opts.ReturnValues
	if returnValues == "" {
		returnValues = types.ReturnValueAllOld
	}
	input := &dynamodb.DeleteItemInput{
		TableName:    aws.String(table),
		Key:          key,
		ReturnValues: returnValues,
	}
	if condition != nil {
		attrs := expressions.NewExpressionAttributes()
		serialized, err := expressions.SerializeConditionExpression(condition, sch, attrs)
		if err != nil {
			return nil, err
		}
		input.ConditionExpression = aws.String(serialized)
		input.ExpressionAttributeNames = attrs.Names()
		input.ExpressionAttributeValues = attrs.Values()
	}

	m.logger.Debug("delete item", zap.String("table", table))
	out, err := m.client.DeleteItem(ctx, input, m.callOptions...)
	if err != nil {
		return nil, appErrors.WrapTransport(err, "DeleteItem failed")
	}
	if len(out.Attributes) == 0 {
		return nil, nil
	}
	props, err = marshaller.UnmarshalItem(sch, out.Attributes)
	if err != nil {
		return nil, err
	}
	it.DynamoHydrate(props)
	return it, nil
}

// Update writes the item's non-key properties through an update expression,
// synthesizing the version condition and increment, and hydrates the input
// instance from the ALL_NEW response attributes.
func (m *DataMapper) Update(ctx context.Context, it item.Item, opts *UpdateOptions) (item.Item, error) {
	if opts == nil {
		opts = &UpdateOptions{}
	}
	sch, err := item.SchemaOf(it)
	if err != nil {
		return nil, err
	}
	table, err := item.TableNameOf(it, m.tablePrefix)
	if err != nil {
		return nil, err
	}
	props := it.DynamoProperties()
	key, err := marshaller.MarshalKey(sch, props)
	if err != nil {
		return nil, err
	}

	onMissing := opts.OnMissing
	if onMissing == "" {
		onMissing = RemoveMissing
	}
	skip := m.skipVersionCheck(opts.SkipVersionCheck)
	condition := opts.Condition
	vprop := schema.VersionProperty(sch)

	update := expressions.NewUpdateExpression()
	for _, name := range schema.PropertyNames(sch) {
		t := sch[name]
		if schema.IsKey(t) || name == vprop {
			continue
		}
		value, present := props[name]
		if !present || value == nil {
			if onMissing == RemoveMissing {
				update.Remove(expressions.Path(name))
			}
			continue
		}
		av, err := marshaller.MarshalValue(t, value)
		if err != nil {
			return nil, err
		}
		if av == nil {
			// Marshalled to absent (empty string, empty set).
			if onMissing == RemoveMissing {
				update.Remove(expressions.Path(name))
			}
			continue
		}
		update.Set(expressions.Path(name), av)
	}

	if vprop != "" {
		vpath := expressions.Path(vprop)
		current, present := versionValue(props, vprop)
		if !present {
			if !skip {
				condition = combineConditions(condition, expressions.AttributeNotExists{Subject: vpath})
			}
			update.Set(vpath, 0)
		} else if !skip {
			condition = combineConditions(condition, expressions.Equals(vpath, current))
			update.Set(vpath, expressions.MathematicalExpression{Left: vpath, Operator: "+", Right: 1})
		}
	}

	attrs := expressions.NewExpressionAttributes()
	serializedUpdate, err := expressions.SerializeUpdateExpression(update, sch, attrs)
	if err != nil {
		return nil, err
	}
	input := &dynamodb.UpdateItemInput{
		TableName:        aws.String(table),
		Key:              key,
		UpdateExpression: aws.String(serializedUpdate),
		ReturnValues:     types.ReturnValueAllNew,
	}
	if condition != nil {
		serialized, err := expressions.SerializeConditionExpression(condition, sch, attrs)
		if err != nil {
			return nil, err
		}
		input.ConditionExpression = aws.String(serialized)
	}
	input.ExpressionAttributeNames = attrs.Names()
	input.ExpressionAttributeValues = attrs.Values()

	m.logger.Debug("update item", zap.String("table", table))
	out, err := m.client.UpdateItem(ctx, input, m.callOptions...)
	if err != nil {
		return nil, appErrors.WrapTransport(err, "UpdateItem failed")
	}
	if len(out.Attributes) == 0 {
		return nil, appErrors.NewNoReturnedAttributes("update returned no attributes")
	}
	updated, err := marshaller.UnmarshalItem(sch, out.Attributes)
	if err != nil {
		return nil, err
	}
	it.DynamoHydrate(updated)
	return it, nil
}

func (m *DataMapper) skipVersionCheck(override *bool) bool {
	if override != nil {
		return *override
	}
	return m.skipVersion
}

// versionValue reports the item's current version; a nil property counts as
// absent.
func versionValue(props map[string]any, vprop string) (any, bool) {
	if v, ok := props[vprop]; ok && v != nil {
		return v, true
	}
	return nil, false
}

// combineConditions conjoins the caller's condition with the synthesized
// version condition, caller first.
func combineConditions(user, synthesized expressions.ConditionExpression) expressions.ConditionExpression {
	if user == nil {
		return synthesized
	}
	return expressions.And{Conditions: []expressions.ConditionExpression{user, synthesized}}
}
