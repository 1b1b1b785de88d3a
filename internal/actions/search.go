package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/domain"
	"github.com/matheus3301/chatsync/internal/event"
	"github.com/matheus3301/chatsync/internal/link"
	"github.com/matheus3301/chatsync/internal/state"
)

var ErrUnexpectedReply = errors.New("actions: unexpected search reply")

// SearchRequest filters a message search. Empty filters match everything.
type SearchRequest struct {
	Phrase     string
	OnlyIn     string
	OnlyAuthor string
}

// Search starts a search and returns its uid. The search state goes from
// loading to done, or to error on failure or timeout. A newer search
// replaces an older one; late results for the older uid are discarded.
func (s *Service) Search(ctx context.Context, req SearchRequest) string {
	uid := uuid.NewString()
	s.store.Dispatch(func(st *state.State) {
		st.Search = &domain.Search{
			UID:        uid,
			Phrase:     req.Phrase,
			OnlyIn:     req.OnlyIn,
			OnlyAuthor: req.OnlyAuthor,
			Status:     domain.SearchLoading,
		}
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		hits, err := s.runSearch(context.WithoutCancel(ctx), uid, req)
		s.finishSearch(uid, hits, err)
	}()
	return uid
}

func (s *Service) runSearch(ctx context.Context, uid string, req SearchRequest) ([]domain.SearchHit, error) {
	data, err := link.AwaitOnceAfter(ctx, s.link, s.opts.App, "/search-results/"+uid, s.opts.SearchTimeout,
		func(ctx context.Context) error {
			return s.poke(ctx, link.Search{
				UID:        uid,
				Phrase:     req.Phrase,
				OnlyIn:     link.Optional(req.OnlyIn),
				OnlyAuthor: link.Optional(req.OnlyAuthor),
			})
		})
	if err != nil {
		return nil, err
	}

	ev, err := event.Decode(data)
	if err != nil {
		return nil, err
	}
	res, ok := ev.(event.SearchResult)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedReply, ev.Tag())
	}
	var hits []domain.SearchHit
	if err := json.Unmarshal(res.Raw, &hits); err != nil {
		return nil, fmt.Errorf("decode search results: %w", err)
	}
	return hits, nil
}

func (s *Service) finishSearch(uid string, hits []domain.SearchHit, err error) {
	var current *domain.Search
	s.store.Dispatch(func(st *state.State) {
		if st.Search == nil || st.Search.UID != uid {
			return
		}
		if err != nil {
			st.Search.Status = domain.SearchError
			st.Search.Err = err.Error()
		} else {
			st.Search.Status = domain.SearchDone
			st.Search.Results = hits
		}
		cp := *st.Search
		current = &cp
	})
	if current == nil {
		s.logger.Debug("discarding stale search", zap.String("uid", uid))
		return
	}
	if err != nil {
		s.logger.Warn("search failed", zap.String("uid", uid), zap.Error(err))
	}
	s.bus.Emit(bus.SearchFinished, *current)
}
