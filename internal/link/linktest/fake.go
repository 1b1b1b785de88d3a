// Package linktest provides an in-memory backend for tests.
package linktest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/link"
)

// Poke is one recorded write.
type Poke struct {
	App  string
	Mark string
	Tag  string
	Body json.RawMessage
}

// Decode unmarshals the inner action object into v.
func (p Poke) Decode(v any) error {
	return json.Unmarshal(p.Body, v)
}

type sub struct {
	path    string
	onEvent func(json.RawMessage)
	onQuit  func(error)
}

// Fake implements link.Link in memory. Pokes succeed unless failed by tag;
// scries return what was set with SetScry; pushes run handlers synchronously.
type Fake struct {
	mu        sync.Mutex
	pokes     []Poke
	fail      map[string]error
	hold      map[string]chan struct{}
	scries    map[string]json.RawMessage
	scryCalls map[string]int
	once      map[string]json.RawMessage
	respond   map[string]Responder
	subs      map[int]*sub
	next      int
}

// Responder builds the push a successful poke provokes. An empty path means
// no push.
type Responder func(p Poke) (path string, v any)

var _ link.Link = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		fail:      make(map[string]error),
		hold:      make(map[string]chan struct{}),
		scries:    make(map[string]json.RawMessage),
		scryCalls: make(map[string]int),
		once:      make(map[string]json.RawMessage),
		respond:   make(map[string]Responder),
		subs:      make(map[int]*sub),
	}
}

// Respond makes every successful poke with tag push what r returns.
func (f *Fake) Respond(tag string, r Responder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond[tag] = r
}

// FailTag makes every poke with the given action tag fail with err.
// A nil err clears the failure.
func (f *Fake) FailTag(tag string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, tag)
		return
	}
	f.fail[tag] = err
}

// HoldTag blocks pokes with the given tag until release is called.
func (f *Fake) HoldTag(tag string) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.hold[tag] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.hold, tag)
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *Fake) Poke(ctx context.Context, app, mark string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal poke: %w", err)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil || len(body) != 1 {
		return fmt.Errorf("poke body is not a single-key object: %s", data)
	}
	p := Poke{App: app, Mark: mark}
	for tag, inner := range body {
		p.Tag, p.Body = tag, inner
	}

	f.mu.Lock()
	f.pokes = append(f.pokes, p)
	hold := f.hold[p.Tag]
	f.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	err = f.fail[p.Tag]
	r := f.respond[p.Tag]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if r != nil {
		if path, v := r(p); path != "" {
			f.Push(path, v)
		}
	}
	return nil
}

// Pokes returns recorded pokes with the given tag, or all pokes if tag is empty.
func (f *Fake) Pokes(tag string) []Poke {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Poke
	for _, p := range f.pokes {
		if tag == "" || p.Tag == tag {
			out = append(out, p)
		}
	}
	return out
}

// SetScry sets the value returned for path.
func (f *Fake) SetScry(path string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	f.scries[path] = data
	f.mu.Unlock()
}

// ScryCalls returns how many times path was read.
func (f *Fake) ScryCalls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scryCalls[path]
}

func (f *Fake) Scry(_ context.Context, _, path string, out any) error {
	f.mu.Lock()
	f.scryCalls[path]++
	data, ok := f.scries[path]
	f.mu.Unlock()
	if !ok {
		return &link.HTTPError{StatusCode: http.StatusNotFound, Message: path}
	}
	return json.Unmarshal(data, out)
}

// SetOnce arranges for v to be delivered to the next subscription on path.
func (f *Fake) SetOnce(path string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	f.once[path] = data
	f.mu.Unlock()
}

func (f *Fake) Subscribe(_ context.Context, _, path string, onEvent func(json.RawMessage), onQuit func(error)) (int, error) {
	f.mu.Lock()
	f.next++
	id := f.next
	f.subs[id] = &sub{path: path, onEvent: onEvent, onQuit: onQuit}
	reply, ok := f.once[path]
	delete(f.once, path)
	f.mu.Unlock()

	if ok && onEvent != nil {
		go onEvent(reply)
	}
	return id, nil
}

func (f *Fake) Unsubscribe(id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[id]; !ok {
		return fmt.Errorf("%w: %d", link.ErrUnknownSubscription, id)
	}
	delete(f.subs, id)
	return nil
}

func (f *Fake) SubscribeOnce(ctx context.Context, app, path string, timeout time.Duration) (json.RawMessage, error) {
	return link.AwaitOnce(ctx, f, app, path, timeout)
}

// Subscriptions returns the number of live subscriptions on path.
func (f *Fake) Subscriptions(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.subs {
		if s.path == path {
			n++
		}
	}
	return n
}

// Push delivers v to every subscription on path, synchronously and in
// subscription order.
func (f *Fake) Push(path string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	for _, s := range f.matching(path) {
		if s.onEvent != nil {
			s.onEvent(data)
		}
	}
}

// Quit ends every subscription on path with err.
func (f *Fake) Quit(path string, err error) {
	subs := f.matching(path)
	f.mu.Lock()
	for id, s := range f.subs {
		if s.path == path {
			delete(f.subs, id)
		}
	}
	f.mu.Unlock()
	for _, s := range subs {
		if s.onQuit != nil {
			s.onQuit(err)
		}
	}
}

func (f *Fake) matching(path string) []*sub {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int, 0, len(f.subs))
	for id, s := range f.subs {
		if s.path == path {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	out := make([]*sub, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.subs[id])
	}
	return out
}
