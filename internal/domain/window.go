package domain

import (
	"cmp"
	"slices"
)

// DedupeAndSort orders a message window newest first. Provisional messages
// have no server id yet and sit ahead of every confirmed one, newest
// timestamp first. Confirmed messages follow in strictly descending id order.
// When two entries share an id the earlier one in msgs wins.
func DedupeAndSort(msgs []Message) []Message {
	seen := make(map[string]struct{}, len(msgs))
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	slices.SortStableFunc(out, compareNewestFirst)
	return out
}

func compareNewestFirst(a, b Message) int {
	an, aok := ParseID(a.ID)
	bn, bok := ParseID(b.ID)
	switch {
	case !aok && !bok:
		if c := cmp.Compare(b.Timestamp, a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	case !aok:
		return -1
	case !bok:
		return 1
	}
	return cmp.Compare(bn, an)
}

// HeadID returns the highest confirmed id in the window.
func HeadID(window []Message) (uint64, bool) {
	for _, m := range window {
		if n, ok := ParseID(m.ID); ok {
			return n, true
		}
	}
	return 0, false
}

// Prepend merges incoming at the new end of the window and evicts from the
// old end when the window exceeds size. A size <= 0 means unbounded.
func Prepend(window, incoming []Message, size int) []Message {
	merged := DedupeAndSort(append(slices.Clone(incoming), window...))
	if size > 0 && len(merged) > size {
		merged = merged[:size]
	}
	return merged
}

// Append merges incoming at the old end of the window and evicts from the
// new end when the window exceeds size.
func Append(window, incoming []Message, size int) []Message {
	merged := DedupeAndSort(append(slices.Clone(window), incoming...))
	if size > 0 && len(merged) > size {
		merged = merged[len(merged)-size:]
	}
	return merged
}

// IndexOf returns the position of the first message matching pred, or -1.
func IndexOf(window []Message, pred func(*Message) bool) int {
	for i := range window {
		if pred(&window[i]) {
			return i
		}
	}
	return -1
}
