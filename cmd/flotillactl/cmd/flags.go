package cmd

import (
	"strconv"
	"strings"

	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
)

// keyValues parses "key=value" pairs. Later pairs override earlier ones.
func keyValues(flag string, pairs []string) (map[string]string, error) {
	result := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, &flotillaerrors.ErrInvalidArgument{Name: flag, Value: pair, Message: "expected key=value"}
		}
		result[key] = value
	}
	return result, nil
}

// roleCounts parses "role=count" pairs.
func roleCounts(pairs []string) (map[string]int, error) {
	values, err := keyValues("role", pairs)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(values))
	for role, value := range values {
		count, err := strconv.Atoi(value)
		if err != nil {
			return nil, &flotillaerrors.ErrInvalidArgument{Name: "role", Value: role + "=" + value, Message: "count is not an integer"}
		}
		counts[role] = count
	}
	return counts, nil
}

// roleOptions parses "role.key=value" triples; the role name ends at the first dot.
func roleOptions(triples []string) (map[string]map[string]string, error) {
	values, err := keyValues("roleopt", triples)
	if err != nil {
		return nil, err
	}
	options := make(map[string]map[string]string)
	for roleKey, value := range values {
		role, key, ok := strings.Cut(roleKey, ".")
		if !ok || role == "" || key == "" {
			return nil, &flotillaerrors.ErrInvalidArgument{Name: "roleopt", Value: roleKey, Message: "expected role.key=value"}
		}
		if options[role] == nil {
			options[role] = make(map[string]string)
		}
		options[role][key] = value
	}
	return options, nil
}
