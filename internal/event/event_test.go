package event

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/matheus3301/chatsync/internal/domain"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Event
	}{
		{
			name: "message",
			in:   `{"message":{"convo":"c1","message":{"id":"6","author":"~bus","kind":"text","content":"hi","timestamp":60}}}`,
			want: Message{Convo: "c1", Message: domain.Message{ID: "6", Author: "~bus", Kind: domain.KindText, Content: "hi", Timestamp: 60}},
		},
		{
			name: "sending",
			in:   `{"sending":{"convo":"c1","identifier":"-5"}}`,
			want: Sending{Convo: "c1", Identifier: "-5"},
		},
		{
			name: "delivered",
			in:   `{"delivered":{"convo":"c1","identifier":"-5","id":"7"}}`,
			want: Delivered{Convo: "c1", Identifier: "-5", ID: "7"},
		},
		{
			name: "invite",
			in:   `{"invite":{"id":"c9","from":"~nec","name":"nine"}}`,
			want: Invite{ID: "c9", From: "~nec", Name: "nine"},
		},
		{
			name: "reserved",
			in:   `{"message_list":[1,2]}`,
			want: MessageList{Raw: []byte(`[1,2]`)},
		},
		{
			name: "unknown tag",
			in:   `{"gossip":{}}`,
			want: Unknown{Keys: []string{"gossip"}, Raw: []byte(`{"gossip":{}}`)},
		},
		{
			name: "two tags",
			in:   `{"sending":{},"delivered":{}}`,
			want: Unknown{Keys: []string{"delivered", "sending"}, Raw: []byte(`{"sending":{},"delivered":{}}`)},
		},
		{
			name: "empty object",
			in:   `{}`,
			want: Unknown{Keys: []string{}, Raw: []byte(`{}`)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.in))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	for _, in := range []string{`[]`, `not json`, `{"message":"oops"}`} {
		if _, err := Decode([]byte(in)); err == nil {
			t.Errorf("Decode(%s) expected error", in)
		}
	}
}

type recorder struct {
	calls []string
}

func (r *recorder) HandleMessage(_ context.Context, ev Message) {
	r.calls = append(r.calls, "message:"+ev.Message.ID)
}

func (r *recorder) HandleSending(_ context.Context, ev Sending) {
	r.calls = append(r.calls, "sending:"+ev.Identifier)
}

func (r *recorder) HandleDelivered(_ context.Context, ev Delivered) {
	r.calls = append(r.calls, "delivered:"+ev.ID)
}

func (r *recorder) HandleInvite(_ context.Context, ev Invite) {
	r.calls = append(r.calls, "invite:"+ev.ID)
}

func TestRouterPreservesArrivalOrder(t *testing.T) {
	rec := &recorder{}
	r := NewRouter(rec, rec, nil, zap.NewNop())

	frames := []string{
		`{"sending":{"convo":"c1","identifier":"-1"}}`,
		`{"gossip":{}}`,
		`{"message":{"convo":"c1","message":{"id":"3"}}}`,
		`{"search_result":[]}`,
		`garbage`,
		`{"delivered":{"convo":"c1","identifier":"-1","id":"4"}}`,
		`{"invite":{"id":"c2"}}`,
	}
	for _, f := range frames {
		r.Route(context.Background(), []byte(f))
	}

	want := []string{"sending:-1", "message:3", "delivered:4", "invite:c2"}
	if diff := cmp.Diff(want, rec.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
}
