package merge

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/domain"
	"github.com/matheus3301/chatsync/internal/event"
	"github.com/matheus3301/chatsync/internal/link/linktest"
	"github.com/matheus3301/chatsync/internal/optimistic"
	"github.com/matheus3301/chatsync/internal/outbox"
	"github.com/matheus3301/chatsync/internal/patch"
	"github.com/matheus3301/chatsync/internal/state"
)

type readRecorder struct {
	mu    sync.Mutex
	reads []string
}

func (r *readRecorder) NotifyRead(_ context.Context, convo, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads = append(r.reads, convo+"/"+id)
}

func msg(id, author string) domain.Message {
	n, _ := domain.ParseID(id)
	return domain.Message{ID: id, Author: author, Kind: domain.KindText, Content: "m" + id, Timestamp: int64(n) * 10, Status: domain.StatusDelivered}
}

// newChat returns a store holding c1 with window [5,4,3] and c2 empty.
func newChat(t *testing.T, active string) (*Engine, *state.Store, *readRecorder) {
	t.Helper()
	s := state.New("~zod", 10, bus.New())
	s.Load([]domain.Chat{
		{
			Conversation: domain.Conversation{ID: "c1", Members: []string{"~zod", "~bus"}, LastActive: 50},
			Messages:     []domain.Message{msg("5", "~bus"), msg("4", "~zod"), msg("3", "~bus")},
			Unreads:      2,
		},
		{Conversation: domain.Conversation{ID: "c2", LastActive: 10}},
	})
	s.Dispatch(func(st *state.State) { st.Active = active })
	reads := &readRecorder{}
	return NewEngine(s, reads, nil, nil, zap.NewNop()), s, reads
}

func ids(c domain.Chat) []string {
	out := make([]string, len(c.Messages))
	for i, m := range c.Messages {
		out[i] = m.ID
	}
	return out
}

func chat(t *testing.T, s *state.Store, id string) domain.Chat {
	t.Helper()
	c, ok := s.Chat(id)
	if !ok {
		t.Fatalf("%s missing", id)
	}
	return c
}

func TestOpenConversationContiguousMessage(t *testing.T) {
	e, s, reads := newChat(t, "c1")
	e.HandleMessage(context.Background(), event.Message{Convo: "c1", Message: msg("6", "~bus")})

	c := chat(t, s, "c1")
	if c.Unreads != 0 {
		t.Errorf("unreads = %d, want 0", c.Unreads)
	}
	if c.Conversation.LastRead != "6" {
		t.Errorf("last read = %q, want 6", c.Conversation.LastRead)
	}
	if diff := cmp.Diff([]string{"6", "5", "4", "3"}, ids(c)); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}
	if c.Messages[0].Status != domain.StatusDelivered {
		t.Errorf("status = %q", c.Messages[0].Status)
	}
	if c.Conversation.LastActive != 60 || c.LastMessage == nil || c.LastMessage.ID != "6" {
		t.Errorf("last activity not updated: %+v %+v", c.Conversation, c.LastMessage)
	}
	if diff := cmp.Diff([]string{"c1/6"}, reads.reads); diff != "" {
		t.Errorf("reads mismatch (-want +got):\n%s", diff)
	}
}

func TestClosedConversationCountsUnread(t *testing.T) {
	e, s, reads := newChat(t, "")
	e.HandleMessage(context.Background(), event.Message{Convo: "c1", Message: msg("6", "~bus")})

	c := chat(t, s, "c1")
	if c.Unreads != 3 {
		t.Errorf("unreads = %d, want 3", c.Unreads)
	}
	if diff := cmp.Diff([]string{"5", "4", "3"}, ids(c)); diff != "" {
		t.Errorf("window changed (-want +got):\n%s", diff)
	}
	if c.LastMessage == nil || c.LastMessage.ID != "6" {
		t.Errorf("last message not cached: %+v", c.LastMessage)
	}
	if len(reads.reads) != 0 {
		t.Errorf("unexpected read notifications %v", reads.reads)
	}
}

func TestReplayIsIdempotent(t *testing.T) {
	for _, active := range []string{"", "c1"} {
		t.Run("active="+active, func(t *testing.T) {
			e, s, _ := newChat(t, active)
			ev := event.Message{Convo: "c1", Message: msg("6", "~bus")}

			e.HandleMessage(context.Background(), ev)
			once := chat(t, s, "c1")
			e.HandleMessage(context.Background(), ev)
			twice := chat(t, s, "c1")

			if diff := cmp.Diff(once, twice); diff != "" {
				t.Fatalf("replay changed state (-once +twice):\n%s", diff)
			}
		})
	}
}

func TestGapIsDropped(t *testing.T) {
	e, s, _ := newChat(t, "c1")
	b := bus.New()
	e.bus = b
	dropped, unsub := b.Subscribe(bus.ChatMessageDropped, 1)
	defer unsub()

	e.HandleMessage(context.Background(), event.Message{Convo: "c1", Message: msg("8", "~bus")})

	c := chat(t, s, "c1")
	if diff := cmp.Diff([]string{"5", "4", "3"}, ids(c)); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}
	if c.Conversation.LastRead != "8" || c.LastMessage.ID != "8" {
		t.Errorf("read/last message should still advance: %+v", c.Conversation)
	}
	select {
	case <-dropped:
	default:
		t.Error("expected drop event")
	}
}

func TestEmptyWindowAcceptsAnyID(t *testing.T) {
	e, s, _ := newChat(t, "c2")
	e.HandleMessage(context.Background(), event.Message{Convo: "c2", Message: msg("42", "~bus")})
	if diff := cmp.Diff([]string{"42"}, ids(chat(t, s, "c2"))); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}
}

func TestUnknownConversationIgnored(t *testing.T) {
	e, s, _ := newChat(t, "c1")
	before := s.Sorted()
	e.HandleMessage(context.Background(), event.Message{Convo: "nope", Message: msg("1", "~bus")})
	if diff := cmp.Diff(before, s.Sorted()); diff != "" {
		t.Fatalf("state changed (-want +got):\n%s", diff)
	}
}

func TestOutOfOrderMessageKeepsUnreads(t *testing.T) {
	e, s, _ := newChat(t, "")
	e.HandleMessage(context.Background(), event.Message{Convo: "c1", Message: msg("2", "~bus")})
	c := chat(t, s, "c1")
	if c.Unreads != 2 {
		t.Errorf("unreads = %d, want 2", c.Unreads)
	}
	if c.Conversation.LastActive != 50 {
		t.Errorf("last active moved to %d", c.Conversation.LastActive)
	}
}

func TestSelfAuthoredResetsUnreads(t *testing.T) {
	e, s, _ := newChat(t, "")
	e.HandleMessage(context.Background(), event.Message{Convo: "c1", Message: msg("6", "~zod")})
	if got := chat(t, s, "c1").Unreads; got != 0 {
		t.Errorf("unreads = %d, want 0", got)
	}
}

func TestUnreadsNeverDecreaseFromOthers(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	e, s, _ := newChat(t, "")
	prev := chat(t, s, "c1").Unreads
	for i := 0; i < 200; i++ {
		id := rng.Intn(40) + 1
		m := msg(strconv.Itoa(id), "~bus")
		e.HandleMessage(context.Background(), event.Message{Convo: "c1", Message: m})
		got := chat(t, s, "c1").Unreads
		if got < prev {
			t.Fatalf("unreads decreased from %d to %d on id %d", prev, got, id)
		}
		prev = got
	}
}

func TestReconcileOptimisticEcho(t *testing.T) {
	e, s, _ := newChat(t, "c1")
	s.Dispatch(func(st *state.State) {
		c := st.Chat("c1")
		c.Messages = domain.Prepend(c.Messages, []domain.Message{{
			ID: "-100", Identifier: "-100", Author: "~zod", Kind: domain.KindText,
			Content: "hi", Timestamp: 100, Status: domain.StatusPending,
		}}, st.WindowSize)
	})

	echo := domain.Message{ID: "6", Author: "~zod", Kind: domain.KindText, Content: "hi", Timestamp: 101}
	e.HandleMessage(context.Background(), event.Message{Convo: "c1", Message: echo})

	c := chat(t, s, "c1")
	if diff := cmp.Diff([]string{"6", "5", "4", "3"}, ids(c)); diff != "" {
		t.Fatalf("window mismatch (-want +got):\n%s", diff)
	}
	head := c.Messages[0]
	if head.Status != domain.StatusDelivered || head.Identifier != "-100" || head.Timestamp != 101 {
		t.Fatalf("unexpected head %+v", head)
	}
}

func TestEditOverwritesInPlace(t *testing.T) {
	e, s, _ := newChat(t, "c1")
	edited := msg("4", "~zod")
	edited.Content = "fixed"
	edited.Edited = true
	edited.Reactions = domain.Reactions{"👍": {"~bus"}}

	e.HandleMessage(context.Background(), event.Message{Convo: "c1", Message: edited})

	c := chat(t, s, "c1")
	if diff := cmp.Diff([]string{"5", "4", "3"}, ids(c)); diff != "" {
		t.Fatalf("window mismatch (-want +got):\n%s", diff)
	}
	if m := c.Messages[1]; m.Content != "fixed" || !m.Edited || len(m.Reactions["👍"]) != 1 {
		t.Fatalf("edit not applied: %+v", m)
	}
}

func TestAdminSideEffects(t *testing.T) {
	tests := []struct {
		name    string
		kind    domain.Kind
		content string
		check   func(t *testing.T, c domain.Conversation)
	}{
		{"member-add", domain.KindMemberAdd, "~nec ~bus", func(t *testing.T, c domain.Conversation) {
			if diff := cmp.Diff([]string{"~zod", "~bus", "~nec"}, c.Members); diff != "" {
				t.Error(diff)
			}
		}},
		{"member-remove", domain.KindMemberRemove, "~bus", func(t *testing.T, c domain.Conversation) {
			if diff := cmp.Diff([]string{"~zod"}, c.Members); diff != "" {
				t.Error(diff)
			}
		}},
		{"leader-add", domain.KindLeaderAdd, "~bus", func(t *testing.T, c domain.Conversation) {
			if diff := cmp.Diff([]string{"~bus"}, c.Leaders); diff != "" {
				t.Error(diff)
			}
		}},
		{"change-name", domain.KindChangeName, "new name", func(t *testing.T, c domain.Conversation) {
			if c.Name != "new name" {
				t.Errorf("name = %q", c.Name)
			}
		}},
	}
	for _, tt := range tests {
		for _, active := range []string{"", "c1"} {
			t.Run(tt.name+"/active="+active, func(t *testing.T) {
				e, s, _ := newChat(t, active)
				// Out of order: admin effects apply regardless.
				m := domain.Message{ID: "1", Author: "~bus", Kind: tt.kind, Content: tt.content}
				e.HandleMessage(context.Background(), event.Message{Convo: "c1", Message: m})
				e.HandleMessage(context.Background(), event.Message{Convo: "c1", Message: m})
				tt.check(t, chat(t, s, "c1").Conversation)
			})
		}
	}
}

func TestSendAndDeliveredReceipts(t *testing.T) {
	e, s, _ := newChat(t, "c1")
	pending := domain.Message{ID: "-200", Identifier: "-200", Author: "~zod", Kind: domain.KindText, Content: "hi", Timestamp: 200, Status: domain.StatusPending}
	s.Dispatch(func(st *state.State) {
		c := st.Chat("c1")
		c.Messages = domain.Prepend(c.Messages, []domain.Message{pending}, st.WindowSize)
	})

	e.HandleSending(context.Background(), event.Sending{Convo: "c1", Identifier: "-200"})
	if got := chat(t, s, "c1").Messages[0].Status; got != domain.StatusSent {
		t.Fatalf("status = %q, want sent", got)
	}

	e.HandleDelivered(context.Background(), event.Delivered{Convo: "c1", Identifier: "-200", ID: "6"})
	c := chat(t, s, "c1")
	head := c.Messages[0]
	if head.ID != "6" || head.Status != domain.StatusDelivered {
		t.Fatalf("unexpected head %+v", head)
	}
	if c.LastMessage == nil || c.LastMessage.ID != "6" {
		t.Fatalf("last message = %+v", c.LastMessage)
	}
	if c.Conversation.LastActive != 200 || c.Conversation.LastRead != "6" {
		t.Errorf("last active = %d, last read = %q", c.Conversation.LastActive, c.Conversation.LastRead)
	}

	// A late sending receipt must not downgrade a delivered message.
	e.HandleSending(context.Background(), event.Sending{Convo: "c1", Identifier: "-200"})
	if got := chat(t, s, "c1").Messages[0].Status; got != domain.StatusDelivered {
		t.Fatalf("status = %q, want delivered", got)
	}
}

func TestOwnSendBumpsConversation(t *testing.T) {
	e, s, reads := newChat(t, "c1")
	ctx := context.Background()
	s.Dispatch(func(st *state.State) { st.Chat("c2").Conversation.LastActive = 1000 })

	engine := optimistic.NewEngine(s, patch.NewLog(), nil, nil, time.Second, zap.NewNop())
	sender := outbox.NewSender(engine, linktest.New(), "pongo", zap.NewNop())
	sent, err := sender.Send(ctx, outbox.SendRequest{Convo: "c1", Content: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	engine.Wait()

	e.HandleSending(ctx, event.Sending{Convo: "c1", Identifier: sent.ID})
	e.HandleDelivered(ctx, event.Delivered{Convo: "c1", Identifier: sent.ID, ID: "6"})

	c := chat(t, s, "c1")
	if diff := cmp.Diff([]string{"6", "5", "4", "3"}, ids(c)); diff != "" {
		t.Errorf("window (-want +got):\n%s", diff)
	}
	if c.LastMessage == nil || c.LastMessage.ID != "6" || c.LastMessage.Status != domain.StatusDelivered {
		t.Fatalf("last message = %+v", c.LastMessage)
	}
	if c.Conversation.LastActive != sent.Timestamp || c.Conversation.LastRead != "6" {
		t.Errorf("last active = %d, last read = %q", c.Conversation.LastActive, c.Conversation.LastRead)
	}
	if got := s.Sorted()[0].Conversation.ID; got != "c1" {
		t.Errorf("directory head = %s, want c1", got)
	}

	// The echo reconciles in place and refreshes the cached last message.
	echo := domain.Message{ID: "6", Identifier: sent.ID, Author: "~zod", Kind: domain.KindText, Content: "hi", Timestamp: sent.Timestamp + 5}
	e.HandleMessage(ctx, event.Message{Convo: "c1", Message: echo})

	c = chat(t, s, "c1")
	if diff := cmp.Diff([]string{"6", "5", "4", "3"}, ids(c)); diff != "" {
		t.Errorf("window after echo (-want +got):\n%s", diff)
	}
	if c.Conversation.LastActive != sent.Timestamp+5 || c.LastMessage.Timestamp != sent.Timestamp+5 {
		t.Errorf("last active = %d, last message ts = %d", c.Conversation.LastActive, c.LastMessage.Timestamp)
	}
	if c.Unreads != 0 {
		t.Errorf("unreads = %d", c.Unreads)
	}
	reads.mu.Lock()
	defer reads.mu.Unlock()
	if diff := cmp.Diff([]string{"c1/6"}, reads.reads); diff != "" {
		t.Errorf("reads (-want +got):\n%s", diff)
	}
}
