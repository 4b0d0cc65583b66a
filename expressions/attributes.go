// Package expressions models DynamoDB's condition, projection, update and
// mathematical expressions as symbolic trees, and serializes them to the
// store's textual dialect with schema-directed attribute-name substitution.
package expressions

import (
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ExpressionAttributes allocates the placeholder tokens used in one serialized
// expression and keeps the token-to-substitution bijection for inclusion in
// request inputs. Name and value tokens draw from a single shared counter, so
// their numbering interleaves; this is an observable contract.
//
// An instance is single-use per serialized expression set and never shared
// across operations.
type ExpressionAttributes struct {
	counter int
	names   map[string]string
	values  map[string]types.AttributeValue
	byName  map[string]string
}

// NewExpressionAttributes creates an empty placeholder allocator.
func NewExpressionAttributes() *ExpressionAttributes {
	return &ExpressionAttributes{
		names:  make(map[string]string),
		values: make(map[string]types.AttributeValue),
		byName: make(map[string]string),
	}
}

// AddName returns the token substituting the given physical attribute name.
// The same name always yields the same token within one instance.
func (ea *ExpressionAttributes) AddName(name string) string {
	if token, ok := ea.byName[name]; ok {
		return token
	}
	token := "#attr" + strconv.Itoa(ea.counter)
	ea.counter++
	ea.names[token] = name
	ea.byName[name] = token
	return token
}

// AddValue records an attribute value and returns its fresh token.
func (ea *ExpressionAttributes) AddValue(av types.AttributeValue) string {
	token := ":val" + strconv.Itoa(ea.counter)
	ea.counter++
	ea.values[token] = av
	return token
}

// Names returns a snapshot of the token-to-attribute-name substitutions, or
// nil when no names were allocated.
func (ea *ExpressionAttributes) Names() map[string]string {
	if len(ea.names) == 0 {
		return nil
	}
	out := make(map[string]string, len(ea.names))
	for k, v := range ea.names {
		out[k] = v
	}
	return out
}

// Values returns a snapshot of the token-to-value substitutions, or nil when
// no values were allocated.
func (ea *ExpressionAttributes) Values() map[string]types.AttributeValue {
	if len(ea.values) == 0 {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(ea.values))
	for k, v := range ea.values {
		out[k] = v
	}
	return out
}
