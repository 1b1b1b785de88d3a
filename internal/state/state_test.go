package state

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/domain"
	"github.com/matheus3301/chatsync/internal/patch"
)

func seeded(t *testing.T) (*Store, *bus.Bus) {
	t.Helper()
	b := bus.New()
	s := New("~zod", 10, b)
	s.Load([]domain.Chat{
		{
			Conversation: domain.Conversation{ID: "c1", Name: "one", Members: []string{"~zod", "~bus"}, LastActive: 100},
			Messages: []domain.Message{
				{ID: "5", Author: "~bus", Kind: domain.KindText, Content: "hi", Reactions: domain.Reactions{"👍": {"~bus"}}},
				{ID: "4", Author: "~zod", Kind: domain.KindText, Content: "yo"},
			},
		},
		{Conversation: domain.Conversation{ID: "c2", Name: "two", LastActive: 200}},
	})
	return s, b
}

func TestDispatchSortsDirectory(t *testing.T) {
	s, b := seeded(t)
	ch, unsub := b.Subscribe("directory.", 4)
	defer unsub()

	s.Dispatch(func(st *State) {
		st.Chat("c1").Conversation.LastActive = 300
	})

	got := []string{}
	for _, c := range s.Sorted() {
		got = append(got, c.Conversation.ID)
	}
	if diff := cmp.Diff([]string{"c1", "c2"}, got); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}

	select {
	case evt := <-ch:
		change, ok := evt.Payload.(DirectoryChange)
		if !ok || !change.Reordered {
			t.Fatalf("expected reordered change, got %+v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no directory event")
	}
}

func TestChatReturnsCopy(t *testing.T) {
	s, _ := seeded(t)
	c, ok := s.Chat("c1")
	if !ok {
		t.Fatal("c1 missing")
	}
	c.Conversation.Members[0] = "~nec"
	c.Messages[0].Reactions["👍"][0] = "~nec"

	again, _ := s.Chat("c1")
	if again.Conversation.Members[0] != "~zod" || again.Messages[0].Reactions["👍"][0] != "~bus" {
		t.Fatal("caller mutation leaked into state")
	}
}

func TestLoadDropsStaleActive(t *testing.T) {
	s, _ := seeded(t)
	s.Dispatch(func(st *State) { st.Active = "c2" })
	s.Load([]domain.Chat{{Conversation: domain.Conversation{ID: "c1"}}})
	if s.Active() != "" {
		t.Fatalf("expected active cleared, got %q", s.Active())
	}
}

func TestPatchTargetRoundTrip(t *testing.T) {
	s, _ := seeded(t)
	log := patch.NewLog()

	var before domain.Chat
	s.View(func(st *State) { before = st.Chat("c1").Clone() })

	s.Dispatch(func(st *State) {
		_, err := log.Record("a1", st, func(tx *patch.Tx) error {
			if err := tx.Set(ChatPath("c1", FieldName), "renamed"); err != nil {
				return err
			}
			if err := tx.Set(ChatPath("c1", FieldMembers), []string{"~zod"}); err != nil {
				return err
			}
			if err := tx.Set(ReactionPath("c1", "5", "👍"), []string{"~bus", "~zod"}); err != nil {
				return err
			}
			if err := tx.Set(ReactionPath("c1", "4", "🔥"), []string{"~zod"}); err != nil {
				return err
			}
			if err := tx.Set(MessagePath("c1", "-9", FieldMessage), domain.Message{ID: "-9", Timestamp: 9, Status: domain.StatusPending}); err != nil {
				return err
			}
			return tx.Set(ChatPath("c1", FieldUnreads), 3)
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	})

	mid, _ := s.Chat("c1")
	if mid.Conversation.Name != "renamed" || len(mid.Messages) != 3 || mid.Messages[0].ID != "-9" {
		t.Fatalf("patch not applied: %+v", mid)
	}

	s.Dispatch(func(st *State) {
		if err := log.Rollback("a1", st); err != nil {
			t.Fatalf("rollback: %v", err)
		}
	})

	after, _ := s.Chat("c1")
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("rollback did not restore (-want +got):\n%s", diff)
	}
}

func TestRemoveChatRestoresOnRollback(t *testing.T) {
	s, _ := seeded(t)
	log := patch.NewLog()
	s.Dispatch(func(st *State) {
		st.Active = "c1"
		if _, err := log.Record("leave", st, func(tx *patch.Tx) error {
			return tx.Delete(ChatPath("c1", FieldChat))
		}); err != nil {
			t.Fatalf("record: %v", err)
		}
	})
	if _, ok := s.Chat("c1"); ok {
		t.Fatal("expected c1 removed")
	}
	if s.Active() != "" {
		t.Fatal("expected active cleared with removed chat")
	}

	s.Dispatch(func(st *State) {
		if err := log.Rollback("leave", st); err != nil {
			t.Fatalf("rollback: %v", err)
		}
	})
	c, ok := s.Chat("c1")
	if !ok || len(c.Messages) != 2 {
		t.Fatalf("chat not restored: %+v", c)
	}
	if ids := s.Sorted(); len(ids) != 2 {
		t.Fatalf("expected 2 chats in order, got %d", len(ids))
	}
}

func TestSetErrors(t *testing.T) {
	s, _ := seeded(t)
	s.View(func(st *State) {
		if err := st.Set(ChatPath("nope", FieldName), "x"); !errors.Is(err, ErrUnknownConversation) {
			t.Errorf("expected ErrUnknownConversation, got %v", err)
		}
		if err := st.Set(MessagePath("c1", "77", FieldStatus), domain.StatusFailed); !errors.Is(err, ErrUnknownMessage) {
			t.Errorf("expected ErrUnknownMessage, got %v", err)
		}
		if err := st.Set(ChatPath("c1", FieldName), 42); err == nil {
			t.Error("expected type error")
		}
		if err := st.Set(ActivePath(), 42); err == nil {
			t.Error("expected type error for active")
		}
		if err := st.Set(ChatPath("c1", "bogus"), 1); !errors.Is(err, ErrUnknownField) {
			t.Errorf("expected ErrUnknownField, got %v", err)
		}
		if err := st.Delete(ChatPath("c1", FieldName)); err == nil {
			t.Error("expected delete of scalar field to fail")
		}
	})
}

func TestSetTypeMismatchLeavesField(t *testing.T) {
	s, _ := seeded(t)
	s.View(func(st *State) {
		tests := []struct {
			field string
			value any
		}{
			{FieldName, 1},
			{FieldMembers, "~nec"},
			{FieldLeaders, 7},
			{FieldMuted, "yes"},
			{FieldLastActive, 5},
			{FieldLastRead, 5},
			{FieldUnreads, int64(5)},
			{FieldLastMessage, domain.Message{ID: "9"}},
		}
		for _, tt := range tests {
			t.Run(tt.field, func(t *testing.T) {
				before, _ := st.Get(ChatPath("c1", tt.field))
				if err := st.Set(ChatPath("c1", tt.field), tt.value); err == nil {
					t.Fatal("expected type error")
				}
				after, _ := st.Get(ChatPath("c1", tt.field))
				if diff := cmp.Diff(before, after); diff != "" {
					t.Errorf("field changed on error (-before +after):\n%s", diff)
				}
			})
		}
	})
}

func TestActiveRestoresOnRollback(t *testing.T) {
	s, _ := seeded(t)
	log := patch.NewLog()
	s.Dispatch(func(st *State) {
		st.Active = "c1"
		if _, err := log.Record("leave", st, func(tx *patch.Tx) error {
			if err := tx.Set(ActivePath(), ""); err != nil {
				return err
			}
			return tx.Delete(ChatPath("c1", FieldChat))
		}); err != nil {
			t.Fatalf("record: %v", err)
		}
	})
	if s.Active() != "" {
		t.Fatal("expected active cleared")
	}

	s.Dispatch(func(st *State) {
		if err := log.Rollback("leave", st); err != nil {
			t.Fatalf("rollback: %v", err)
		}
	})
	if got := s.Active(); got != "c1" {
		t.Fatalf("active = %q, want c1", got)
	}
	if _, ok := s.Chat("c1"); !ok {
		t.Fatal("chat not restored")
	}
}

func TestUpdateWithoutChangeIsSilent(t *testing.T) {
	s, b := seeded(t)
	ch, unsub := b.Subscribe("directory.", 4)
	defer unsub()

	s.Update(func(*State) bool { return false })
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %+v", evt)
	default:
	}

	s.Update(func(st *State) bool {
		st.Chat("c1").Conversation.Muted = true
		return true
	})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no directory event")
	}
}

func TestReset(t *testing.T) {
	s, _ := seeded(t)
	s.Dispatch(func(st *State) {
		st.Search = &domain.Search{UID: "u"}
	})
	s.Reset()
	if len(s.Sorted()) != 0 {
		t.Fatal("expected empty directory")
	}
	if _, ok := s.Search(); ok {
		t.Fatal("expected search cleared")
	}
}
