// Package jsondiff computes shallow structural diffs between two JSON
// documents. The diff is advisory: version rows also carry the full before
// and after snapshots, so the comparison deliberately stays at the top
// level.
package jsondiff

import (
	"reflect"
	"sort"
)

// Diff walks the top-level fields of old and new and reports added,
// modified and removed keys. Values are compared with deep equality, so a
// nested change surfaces as a modification of its top-level key. Returns
// nil when the documents are equal.
func Diff(old, new map[string]any) map[string]any {
	added := map[string]any{}
	modified := map[string]any{}
	removed := map[string]any{}

	for _, k := range sortedKeys(new) {
		nv := new[k]
		ov, ok := old[k]
		switch {
		case !ok:
			added[k] = nv
		case !reflect.DeepEqual(ov, nv):
			modified[k] = map[string]any{"old": ov, "new": nv}
		}
	}
	for _, k := range sortedKeys(old) {
		if _, ok := new[k]; !ok {
			removed[k] = old[k]
		}
	}

	if len(added) == 0 && len(modified) == 0 && len(removed) == 0 {
		return nil
	}

	out := map[string]any{}
	if len(added) > 0 {
		out["added"] = added
	}
	if len(modified) > 0 {
		out["modified"] = modified
	}
	if len(removed) > 0 {
		out["removed"] = removed
	}
	return out
}

// sortedKeys keeps the walk order deterministic so serialized diffs are
// stable across runs.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
