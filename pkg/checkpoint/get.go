package checkpoint

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Get returns the value at a dotted path into the checkpoint's JSON form,
// e.g. "progress.remaining", "current.scenario" or
// "completed_scenarios.0.confidence". An empty path returns the whole
// document. Numeric segments index arrays.
func (c *Checkpoint) Get(path string) (any, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return navigate(doc, path)
}

func navigate(data any, path string) (any, error) {
	path = strings.TrimPrefix(path, "$.")
	path = strings.TrimPrefix(path, "$")
	if path == "" {
		return data, nil
	}
	current := data
	walked := ""
	for _, part := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			val, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("key %q not found at %q", part, walked)
			}
			current = val
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("%q: expected array index, got %q", walked, part)
			}
			if i < 0 {
				i += len(node)
			}
			if i < 0 || i >= len(node) {
				return nil, fmt.Errorf("%q: index %s out of range (len %d)", walked, part, len(node))
			}
			current = node[i]
		default:
			return nil, fmt.Errorf("%q is a %T, cannot descend into %q", walked, current, part)
		}
		if walked == "" {
			walked = part
		} else {
			walked += "." + part
		}
	}
	return current, nil
}
