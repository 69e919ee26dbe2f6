// Package strings provides helpers for list-valued query parameters.
package strings

import (
	"strings"
)

// SplitDedupeLower flattens repeated and comma-separated values into a list of
// lowercased, trimmed, unique entries. Empty entries are dropped and first
// occurrence order is kept.
//
//	SplitDedupeLower([]string{"Pending, approved", "pending", ""})
//	// []string{"pending", "approved"}
func SplitDedupeLower(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var result []string
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			v := strings.ToLower(strings.TrimSpace(part))
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			result = append(result, v)
		}
	}
	return result
}
