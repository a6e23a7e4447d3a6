// Package server exposes evaluation and store access over Connect, gRPC
// and gRPC-Web, using CBOR-encoded messages.
package server

import (
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/lurk/field"
	"github.com/chazu/lurk/persist"
)

var log = commonlog.GetLogger("lurk.server")

// DefaultLimit bounds runs when no limit option is given.
const DefaultLimit = 1_000_000

// Server is the evaluation service. It serves Connect, gRPC and gRPC-Web
// on the same port.
type Server struct {
	worker   *Worker
	sessions *SessionStore
	mux      *http.ServeMux
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	field       field.Field
	limit       int
	maxSessions int
	db          *persist.DB
}

// WithField sets the field every session's store uses.
func WithField(f field.Field) ServerOption {
	return func(c *serverConfig) { c.field = f }
}

// WithLimit sets the maximum number of frames per run.
func WithLimit(n int) ServerOption {
	return func(c *serverConfig) { c.limit = n }
}

// WithMaxSessions caps the number of live sessions.
func WithMaxSessions(n int) ServerOption {
	return func(c *serverConfig) { c.maxSessions = n }
}

// WithDB persists every run to db.
func WithDB(db *persist.DB) ServerOption {
	return func(c *serverConfig) { c.db = db }
}

// New creates a Server.
func New(opts ...ServerOption) *Server {
	cfg := &serverConfig{
		field: field.Default(),
		limit: DefaultLimit,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	worker := NewWorker()
	sessions := NewSessionStore(cfg.field, cfg.maxSessions)
	s := &Server{
		worker:   worker,
		sessions: sessions,
		mux:      http.NewServeMux(),
	}

	evalSvc := NewEvalService(worker, sessions, cfg.limit, cfg.db)
	storeSvc := NewStoreService(sessions)
	codec := connect.WithCodec(Codec{})

	s.mux.Handle(CreateSessionProcedure, connect.NewUnaryHandler(CreateSessionProcedure, evalSvc.CreateSession, codec))
	s.mux.Handle(DestroySessionProcedure, connect.NewUnaryHandler(DestroySessionProcedure, evalSvc.DestroySession, codec))
	s.mux.Handle(EvalProcedure, connect.NewUnaryHandler(EvalProcedure, evalSvc.Eval, codec))
	s.mux.Handle(FetchProcedure, connect.NewUnaryHandler(FetchProcedure, storeSvc.Fetch, codec))
	return s
}

// Handler returns the HTTP handler serving every procedure.
func (s *Server) Handler() http.Handler { return s.mux }

// Sessions returns the server's session store.
func (s *Server) Sessions() *SessionStore { return s.sessions }

// ListenAndServe starts the HTTP server on the given address, accepting
// HTTP/1.1 and unencrypted HTTP/2 so gRPC clients can connect without TLS.
func (s *Server) ListenAndServe(addr string) error {
	var protocols http.Protocols
	protocols.SetHTTP1(true)
	protocols.SetUnencryptedHTTP2(true)
	srv := &http.Server{
		Addr:      addr,
		Handler:   s.mux,
		Protocols: &protocols,
	}
	fmt.Printf("lurk server listening on %s\n", addr)
	fmt.Printf("  Connect (HTTP/CBOR): http://%s%s\n", addr, EvalProcedure)
	fmt.Printf("  gRPC (CBOR):         grpc://%s\n", addr)
	return srv.ListenAndServe()
}

// Stop shuts down the server's worker.
func (s *Server) Stop() {
	s.worker.Stop()
}
