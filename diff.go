package satchel

import (
	"bytes"
	"sort"
)

// Diff returns the sorted set of keys whose presence or byte value
// differs between the two map snapshots. Diff(m, m) is empty and
// membership is symmetric in its arguments. O(len(old) + len(new)).
func Diff(old, new map[string][]byte) []string {
	var changed []string
	for k, ov := range old {
		nv, ok := new[k]
		if !ok || !bytes.Equal(ov, nv) {
			changed = append(changed, k)
		}
	}
	for k := range new {
		if _, ok := old[k]; !ok {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}
