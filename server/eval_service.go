package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"

	"github.com/chazu/lurk/eval"
	"github.com/chazu/lurk/persist"
	"github.com/chazu/lurk/reader"
	"github.com/chazu/lurk/trace"
)

// EvalService implements the lurk.v1.EvalService handlers.
type EvalService struct {
	worker   *Worker
	sessions *SessionStore
	limit    int
	db       *persist.DB
}

// NewEvalService creates an EvalService. Runs are bounded by limit; when
// db is non-nil every run is persisted.
func NewEvalService(worker *Worker, sessions *SessionStore, limit int, db *persist.DB) *EvalService {
	return &EvalService{
		worker:   worker,
		sessions: sessions,
		limit:    limit,
		db:       db,
	}
}

// CreateSession creates a new session with an empty store.
func (s *EvalService) CreateSession(
	ctx context.Context,
	req *connect.Request[CreateSessionRequest],
) (*connect.Response[CreateSessionResponse], error) {
	session, err := s.sessions.Create(req.Msg.Name)
	if err != nil {
		return nil, connect.NewError(connect.CodeResourceExhausted, err)
	}
	log.Infof("session %s created", session.ID)
	f := session.Store.Field()
	return connect.NewResponse(&CreateSessionResponse{
		SessionID: session.ID,
		Field:     f.Name(),
		Params:    f.HashParams(),
	}), nil
}

// DestroySession releases a session and its store.
func (s *EvalService) DestroySession(
	ctx context.Context,
	req *connect.Request[DestroySessionRequest],
) (*connect.Response[DestroySessionResponse], error) {
	if req.Msg.SessionID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session_id is required"))
	}
	if !s.sessions.Destroy(req.Msg.SessionID) {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", req.Msg.SessionID))
	}
	return connect.NewResponse(&DestroySessionResponse{}), nil
}

// Eval reads one expression and runs it to completion in the session.
// Evaluation errors are reported in the response; exhausting the limit is
// too, with the partial run's iteration count.
func (s *EvalService) Eval(
	ctx context.Context,
	req *connect.Request[EvalRequest],
) (*connect.Response[EvalResponse], error) {
	msg := req.Msg
	if msg.Source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}
	session, ok := s.sessions.Get(msg.SessionID)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", msg.SessionID))
	}
	if msg.Limit < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("limit must not be negative"))
	}
	limit := s.limit
	if msg.Limit > 0 && msg.Limit < limit {
		limit = msg.Limit
	}

	expr, err := reader.Read(session.Store, msg.Source)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	v, err := s.worker.Do(ctx, func() (any, error) {
		t, err := eval.NewEvaluator(session.Store, expr, session.Env, limit).Run()
		if err != nil && !errors.Is(err, eval.ErrResourceExhausted) {
			return nil, err
		}
		return t, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, connect.NewError(connect.CodeCanceled, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	t := v.(*eval.Trace)
	return connect.NewResponse(s.describe(session, t, msg.IncludeTrace)), nil
}

func (s *EvalService) describe(session *Session, t *eval.Trace, includeTrace bool) *EvalResponse {
	st := session.Store
	o := t.Outcome()
	resp := &EvalResponse{
		Value:      t.Final.Expr,
		Result:     reader.Print(st, t.Final.Expr),
		Status:     o.Status.String(),
		Iterations: t.Iterations(),
	}
	if o.Status == eval.StatusError {
		resp.ErrorKind = o.Kind.String()
		resp.Irritant = reader.Print(st, o.Irritant)
		resp.Value = o.Irritant
		resp.Result = resp.Irritant
	}
	if includeTrace {
		var buf bytes.Buffer
		if err := trace.Write(&buf, trace.NewBundle(st.Field(), t.Frames)); err != nil {
			log.Errorf("encoding trace: %s", err)
		} else {
			resp.Trace = buf.Bytes()
		}
	}
	if s.db != nil {
		id, err := s.db.SaveTrace(st, t)
		if err != nil {
			log.Errorf("persisting run: %s", err)
		} else {
			resp.RunID = id.String()
		}
	}
	return resp
}
