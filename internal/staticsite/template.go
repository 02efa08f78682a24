package staticsite

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/awslabs/goformation/v7/cloudformation"
)

// Document renders template with its intrinsics resolved to their JSON form
// and decodes it into generic values, the shape policy evaluation works on.
func Document(template *cloudformation.Template) (map[string]any, error) {
	data, err := template.JSON()
	if err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode template: %w", err)
	}
	return doc, nil
}

// applyOverrides deep-merges overrides into the properties of resource and
// decodes the result back into it. Property names the resource type does not
// define are rejected.
func applyOverrides(resource cloudformation.Resource, overrides map[string]any) error {
	if len(overrides) == 0 {
		return nil
	}

	data, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", resource.AWSCloudFormationType(), err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode %s: %w", resource.AWSCloudFormationType(), err)
	}

	properties, _ := doc["Properties"].(map[string]any)
	if properties == nil {
		properties = map[string]any{}
	}
	encoded, _ := encodeIntrinsics(overrides).(map[string]any)
	if err := Merge(properties, encoded); err != nil {
		return err
	}
	doc["Properties"] = properties

	if data, err = json.Marshal(doc); err != nil {
		return fmt.Errorf("failed to marshal overrides: %w", err)
	}
	if err := json.Unmarshal(data, resource); err != nil {
		return fmt.Errorf("invalid override for %s: %w", resource.AWSCloudFormationType(), err)
	}
	return nil
}

// encodeIntrinsics rewrites intrinsic function objects such as {"Ref": "X"}
// into the encoded string form the typed resources carry, so they can be set
// on string properties.
func encodeIntrinsics(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = encodeIntrinsics(item)
		}
		if len(out) == 1 {
			for key := range out {
				if key == "Ref" || strings.HasPrefix(key, "Fn::") {
					data, err := json.Marshal(out)
					if err != nil {
						return out
					}
					return base64.StdEncoding.EncodeToString(data)
				}
			}
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = encodeIntrinsics(item)
		}
		return out
	default:
		return value
	}
}
