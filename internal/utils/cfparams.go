package utils

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/savaki/static-site-cn/internal/errors"
)

// MergeParameters merges multiple parameter maps with later maps having higher precedence
// Returns a CloudFormation parameter list with merged results
func MergeParameters(pp ...map[string]string) []types.Parameter {
	m := map[string]string{}
	for _, p := range pp {
		maps.Copy(m, p)
	}

	var results []types.Parameter
	for _, k := range slices.Sorted(maps.Keys(m)) {
		v := m[k]
		results = append(results, types.Parameter{
			ParameterKey:   aws.String(k),
			ParameterValue: aws.String(v),
		})
	}

	return results
}

// ParseParameters parses KEY=VALUE pairs from the command line. The value may
// itself contain '='.
func ParseParameters(pairs []string) (map[string]string, error) {
	m := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q, want KEY=VALUE", errors.ErrInvalidParameter, pair)
		}
		m[key] = value
	}
	return m, nil
}
