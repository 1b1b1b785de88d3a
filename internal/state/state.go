// Package state owns the process-wide directory and is the single gateway
// through which every mutation flows.
package state

import (
	"slices"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/domain"
)

// State is the mutable session state. It is only reachable inside
// Store.Dispatch and Store.View.
type State struct {
	Self       string
	WindowSize int
	Chats      map[string]*domain.Chat
	Order      []string
	Active     string
	Search     *domain.Search
}

// Chat returns the live chat for id, or nil.
func (s *State) Chat(id string) *domain.Chat {
	return s.Chats[id]
}

// FindMessage returns the chat and window index of the first message in
// convo matching pred. The index is -1 when nothing matches.
func (s *State) FindMessage(convo string, pred func(*domain.Message) bool) (*domain.Chat, int) {
	chat := s.Chats[convo]
	if chat == nil {
		return nil, -1
	}
	return chat, domain.IndexOf(chat.Messages, pred)
}

// DirectoryChange is the payload of bus.DirectoryChanged.
type DirectoryChange struct {
	Order     []string
	Reordered bool
}

// Store serializes all mutation of State.
type Store struct {
	mu  sync.Mutex
	st  State
	bus *bus.Bus
}

// New creates an empty store for the given session identity.
func New(self string, windowSize int, b *bus.Bus) *Store {
	return &Store{
		st: State{
			Self:       self,
			WindowSize: windowSize,
			Chats:      make(map[string]*domain.Chat),
		},
		bus: b,
	}
}

// Dispatch runs fn with exclusive access to the state, then recomputes the
// directory order. fn must not block on I/O.
func (s *Store) Dispatch(fn func(st *State)) {
	s.Update(func(st *State) bool {
		fn(st)
		return true
	})
}

// Update is Dispatch for mutations that may turn out to be no-ops: when fn
// reports false the state is assumed untouched and no change is published.
func (s *Store) Update(fn func(st *State) bool) {
	order, reordered, changed := s.apply(fn)
	if changed {
		s.bus.Emit(bus.DirectoryChanged, DirectoryChange{Order: order, Reordered: reordered})
	}
}

func (s *Store) apply(fn func(st *State) bool) ([]string, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !fn(&s.st) {
		return nil, false, false
	}
	prev := s.st.Order
	s.st.Order = domain.SortChats(s.st.Chats)
	return slices.Clone(s.st.Order), !slices.Equal(prev, s.st.Order), true
}

// View runs fn with read access to the state. fn must not retain pointers.
func (s *Store) View(fn func(st *State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.st)
}

// Self returns the identity of the signed-in user.
func (s *Store) Self() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Self
}

// Active returns the id of the open conversation, if any.
func (s *Store) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Active
}

// Chat returns a copy of the chat with the given id.
func (s *Store) Chat(id string) (domain.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.st.Chats[id]
	if c == nil {
		return domain.Chat{}, false
	}
	return c.Clone(), true
}

// Sorted returns copies of every chat in directory order.
func (s *Store) Sorted() []domain.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Chat, 0, len(s.st.Order))
	for _, id := range s.st.Order {
		if c := s.st.Chats[id]; c != nil {
			out = append(out, c.Clone())
		}
	}
	return out
}

// Search returns the current search state.
func (s *Store) Search() (domain.Search, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.Search == nil {
		return domain.Search{}, false
	}
	out := *s.st.Search
	out.Results = slices.Clone(out.Results)
	return out, true
}

// Snapshot copies the directory in order for persistence.
func (s *Store) Snapshot() []domain.Chat {
	return s.Sorted()
}

// Load replaces every chat with the given set. The open conversation is kept
// only if it is still present.
func (s *Store) Load(chats []domain.Chat) {
	s.Dispatch(func(st *State) {
		st.Chats = make(map[string]*domain.Chat, len(chats))
		for _, c := range chats {
			cc := c.Clone()
			cc.Messages = domain.DedupeAndSort(cc.Messages)
			st.Chats[cc.Conversation.ID] = &cc
		}
		if st.Chats[st.Active] == nil {
			st.Active = ""
		}
	})
}

// Reset drops all session state.
func (s *Store) Reset() {
	s.Dispatch(func(st *State) {
		st.Chats = make(map[string]*domain.Chat)
		st.Active = ""
		st.Search = nil
	})
}
