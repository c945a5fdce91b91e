package client

import (
	"sort"
	"strings"
)

func joinKeys(keys []string) string {
	return strings.Join(keys, ",")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
