package domain

import (
	"cmp"
	"slices"
)

// SortChats returns conversation ids ordered by descending last activity.
// Ties break on conversation id ascending, so the order is total and
// re-sorting an already sorted directory changes nothing.
func SortChats(chats map[string]*Chat) []string {
	ids := make([]string, 0, len(chats))
	for id := range chats {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if c := cmp.Compare(chats[b].Conversation.LastActive, chats[a].Conversation.LastActive); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return ids
}
