package main

import (
	"fmt"
	"sort"
	"strings"
)

// collationReport counts translated columns per stripped source collation.
type collationReport map[string]int

func (r collationReport) add(collations ...string) {
	for _, c := range collations {
		r[strings.ToLower(c)]++
	}
}

// warnings reports the collations found and flags case-insensitive (_ci)
// ones, which become case-sensitive comparisons in PostgreSQL.
func (r collationReport) warnings() []string {
	if len(r) == 0 {
		return nil
	}
	keys := sortedKeys(r)
	warnings := []string{fmt.Sprintf("source collations stripped: %s", strings.Join(keys, ", "))}
	for _, coll := range keys {
		if !strings.HasSuffix(coll, "_ci") {
			continue
		}
		warnings = append(warnings, fmt.Sprintf(
			"%d column(s) use %s (case-insensitive); PostgreSQL text comparisons are case-sensitive by default",
			r[coll], coll))
	}
	return warnings
}

// sortedKeys returns the keys of a map in sorted order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
