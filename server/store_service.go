package server

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"

	"github.com/chazu/lurk/store"
)

// StoreService implements the lurk.v1.StoreService handlers.
type StoreService struct {
	sessions *SessionStore
}

// NewStoreService creates a StoreService.
func NewStoreService(sessions *SessionStore) *StoreService {
	return &StoreService{sessions: sessions}
}

// Fetch returns every entry reachable from the requested pointer.
func (s *StoreService) Fetch(
	ctx context.Context,
	req *connect.Request[FetchRequest],
) (*connect.Response[FetchResponse], error) {
	session, ok := s.sessions.Get(req.Msg.SessionID)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", req.Msg.SessionID))
	}
	st := session.Store
	ptrs, err := st.Closure(req.Msg.Ptr)
	if errors.Is(err, store.ErrNotFound) {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	entries, err := st.Entries(ptrs)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&FetchResponse{Entries: entries}), nil
}
