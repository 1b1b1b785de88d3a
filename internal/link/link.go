// Package link talks to the chat backend: fire-and-forget pokes, point in
// time scries, and long-lived push subscriptions.
package link

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrTimeout             = errors.New("link: timeout")
	ErrClosed              = errors.New("link: closed")
	ErrUnknownSubscription = errors.New("link: unknown subscription")
)

// Poker sends a write to the backend.
type Poker interface {
	Poke(ctx context.Context, app, mark string, payload any) error
}

// Scrier reads a snapshot from the backend into out.
type Scrier interface {
	Scry(ctx context.Context, app, path string, out any) error
}

// Subscriber manages push subscriptions. onQuit, if set, is called once when
// the stream ends for any reason other than Unsubscribe.
type Subscriber interface {
	Subscribe(ctx context.Context, app, path string, onEvent func(json.RawMessage), onQuit func(error)) (int, error)
	Unsubscribe(id int) error
}

// Link is the full backend surface used by the engine.
type Link interface {
	Poker
	Scrier
	Subscriber
	SubscribeOnce(ctx context.Context, app, path string, timeout time.Duration) (json.RawMessage, error)
}

// AwaitOnce subscribes to path, returns the first event and unsubscribes.
// It fails with ErrTimeout if nothing arrives within timeout.
func AwaitOnce(ctx context.Context, s Subscriber, app, path string, timeout time.Duration) (json.RawMessage, error) {
	return AwaitOnceAfter(ctx, s, app, path, timeout, nil)
}

// AwaitOnceAfter is AwaitOnce with trigger run once the subscription is open,
// so a reply provoked by trigger cannot be missed. A trigger error aborts the
// wait.
func AwaitOnceAfter(ctx context.Context, s Subscriber, app, path string, timeout time.Duration, trigger func(context.Context) error) (json.RawMessage, error) {
	events := make(chan json.RawMessage, 1)
	quit := make(chan error, 1)

	id, err := s.Subscribe(ctx, app, path,
		func(data json.RawMessage) {
			select {
			case events <- data:
			default:
			}
		},
		func(err error) {
			select {
			case quit <- err:
			default:
			}
		})
	if err != nil {
		return nil, err
	}
	defer s.Unsubscribe(id) //nolint:errcheck // best-effort

	if trigger != nil {
		if err := trigger(ctx); err != nil {
			return nil, err
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data := <-events:
		return data, nil
	case err := <-quit:
		return nil, fmt.Errorf("subscription %s ended: %w", path, err)
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, path, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
