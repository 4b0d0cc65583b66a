package marshaller

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	appErrors "dynamapper/pkg/errors"
)

// ItemIdentifier derives a deterministic string from a marshalled item's key
// attributes, taken in keyProperties order. Each component is formatted as
// name=scalar-value and the components are joined by colons. The batch engine
// uses the identifier to correlate a sent request with its response or its
// unprocessed-retry entry, so identifiers must be distinct per distinct key
// within one batch operation.
func ItemIdentifier(item map[string]types.AttributeValue, keyProperties []string) (string, error) {
	parts := make([]string, 0, len(keyProperties))
	for _, name := range keyProperties {
		av, ok := item[name]
		if !ok {
			return "", appErrors.NewInvalidValue(fmt.Sprintf("key attribute %q missing from marshalled item", name), item)
		}
		scalar, err := scalarPayload(av)
		if err != nil {
			return "", err
		}
		parts = append(parts, name+"="+scalar)
	}
	return strings.Join(parts, ":"), nil
}

// scalarPayload extracts the first non-empty scalar in tagged-union order:
// Binary, Number, String.
func scalarPayload(av types.AttributeValue) (string, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberB:
		if len(v.Value) > 0 {
			return base64.StdEncoding.EncodeToString(v.Value), nil
		}
	case *types.AttributeValueMemberN:
		if v.Value != "" {
			return v.Value, nil
		}
	case *types.AttributeValueMemberS:
		if v.Value != "" {
			return v.Value, nil
		}
	}
	return "", appErrors.NewInvalidValue("key attribute has no scalar payload", av)
}
