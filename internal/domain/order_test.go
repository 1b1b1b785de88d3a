package domain

import (
	"slices"
	"testing"
)

func chatAt(id string, active int64) *Chat {
	return &Chat{Conversation: Conversation{ID: id, LastActive: active}}
}

func TestSortChatsByActivityThenID(t *testing.T) {
	chats := map[string]*Chat{
		"b": chatAt("b", 10),
		"a": chatAt("a", 10),
		"c": chatAt("c", 30),
		"d": chatAt("d", 5),
	}
	got := SortChats(chats)
	want := []string{"c", "a", "b", "d"}
	if !slices.Equal(got, want) {
		t.Errorf("SortChats = %v, want %v", got, want)
	}
}

func TestSortChatsIsStable(t *testing.T) {
	chats := map[string]*Chat{
		"x": chatAt("x", 1),
		"y": chatAt("y", 1),
		"z": chatAt("z", 2),
	}
	first := SortChats(chats)
	for i := 0; i < 10; i++ {
		if again := SortChats(chats); !slices.Equal(first, again) {
			t.Fatalf("re-sort changed order: %v -> %v", first, again)
		}
	}
}
