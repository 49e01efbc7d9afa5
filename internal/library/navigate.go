package library

import "sort"

// cursor is a position that may point at a key that no longer exists.
type cursor struct {
	key uint16
	set bool
}

func sortedKeys[V any](m map[uint16]V) []uint16 {
	keys := make([]uint16, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// after returns the first key greater than the cursor, or the first key when unset.
func (c cursor) after(keys []uint16) (uint16, bool) {
	for _, k := range keys {
		if !c.set || k > c.key {
			return k, true
		}
	}
	return 0, false
}

// before returns the last key lower than the cursor, or the last key when unset.
func (c cursor) before(keys []uint16) (uint16, bool) {
	for i := len(keys) - 1; i >= 0; i-- {
		if !c.set || keys[i] < c.key {
			return keys[i], true
		}
	}
	return 0, false
}
