package domain

import (
	"strconv"
	"strings"
)

// ProvisionalPrefix marks client-generated message ids. Server ids are
// non-negative integers, so the prefix can never collide with them.
const ProvisionalPrefix = "-"

// ProvisionalID builds a provisional id from a local timestamp.
func ProvisionalID(ts int64) string {
	return ProvisionalPrefix + strconv.FormatInt(ts, 10)
}

// IsProvisional reports whether id was generated locally and not yet confirmed.
func IsProvisional(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// ParseID parses a confirmed, numeric message id.
func ParseID(id string) (uint64, bool) {
	if id == "" || IsProvisional(id) {
		return 0, false
	}
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// AddUnique appends v to list unless it is already present.
func AddUnique(list []string, v string) ([]string, bool) {
	for _, x := range list {
		if x == v {
			return list, false
		}
	}
	return append(list, v), true
}

// Remove returns list without v, preserving order.
func Remove(list []string, v string) ([]string, bool) {
	out := make([]string, 0, len(list))
	removed := false
	for _, x := range list {
		if x == v {
			removed = true
			continue
		}
		out = append(out, x)
	}
	if !removed {
		return list, false
	}
	return out, true
}
