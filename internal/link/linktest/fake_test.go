package linktest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/link"
)

func TestFakeRecordsAndFailsPokes(t *testing.T) {
	f := New()
	ctx := context.Background()

	if err := link.PokeAction(ctx, f, "pongo", link.SendReaction{Convo: "c1", On: "5", Reaction: "+1"}); err != nil {
		t.Fatal(err)
	}
	pokes := f.Pokes("send-reaction")
	if len(pokes) != 1 || pokes[0].Mark != "pongo-action" {
		t.Fatalf("pokes = %+v", pokes)
	}
	var body link.SendReaction
	if err := pokes[0].Decode(&body); err != nil || body.On != "5" {
		t.Errorf("body = %+v (%v)", body, err)
	}

	boom := errors.New("boom")
	f.FailTag("send-reaction", boom)
	if err := link.PokeAction(ctx, f, "pongo", link.SendReaction{Convo: "c1", On: "5", Reaction: "+1"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	f.FailTag("send-reaction", nil)
	if err := link.PokeAction(ctx, f, "pongo", link.SendReaction{Convo: "c1", On: "5", Reaction: "+1"}); err != nil {
		t.Errorf("cleared failure still fails: %v", err)
	}

	if err := f.Poke(ctx, "pongo", "pongo-action", map[string]int{"a": 1, "b": 2}); err == nil {
		t.Error("multi-key body should be rejected")
	}
}

func TestFakeScryMissingIsNotFound(t *testing.T) {
	f := New()
	var out []string
	err := f.Scry(context.Background(), "pongo", "/conversations", &out)
	if !link.IsStatus(err, http.StatusNotFound) {
		t.Errorf("err = %v, want 404", err)
	}
	if f.ScryCalls("/conversations") != 1 {
		t.Errorf("scry calls = %d", f.ScryCalls("/conversations"))
	}
}

func TestFakeSubscribeOnce(t *testing.T) {
	f := New()
	f.SetOnce("/invite/c1", map[string]string{"id": "c1"})

	data, err := f.SubscribeOnce(context.Background(), "pongo", "/invite/c1", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]string
	if err := json.Unmarshal(data, &got); err != nil || got["id"] != "c1" {
		t.Errorf("reply = %s (%v)", data, err)
	}
	if n := f.Subscriptions("/invite/c1"); n != 0 {
		t.Errorf("subscriptions left open = %d", n)
	}

	if _, err := f.SubscribeOnce(context.Background(), "pongo", "/invite/c2", 20*time.Millisecond); !errors.Is(err, link.ErrTimeout) {
		t.Errorf("err = %v, want timeout", err)
	}
}

func TestFakeQuitEndsSubscriptions(t *testing.T) {
	f := New()
	ctx := context.Background()

	var events int
	quit := make(chan error, 1)
	id, err := f.Subscribe(ctx, "pongo", "/updates", func(json.RawMessage) { events++ }, func(err error) { quit <- err })
	if err != nil {
		t.Fatal(err)
	}
	f.Push("/updates", map[string]any{"sending": map[string]string{"convo": "c1"}})
	f.Push("/elsewhere", 1)
	if events != 1 {
		t.Errorf("events = %d, want 1", events)
	}

	gone := errors.New("gone")
	f.Quit("/updates", gone)
	select {
	case err := <-quit:
		if !errors.Is(err, gone) {
			t.Errorf("quit err = %v", err)
		}
	default:
		t.Fatal("onQuit not called")
	}
	if err := f.Unsubscribe(id); !errors.Is(err, link.ErrUnknownSubscription) {
		t.Errorf("unsubscribe after quit = %v", err)
	}
}
