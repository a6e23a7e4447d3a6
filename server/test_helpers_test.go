package server

import (
	"context"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
// ---------------------------------------------------------------------------

// testEnv bundles a running server and a client for it.
type testEnv struct {
	Server *Server
	HTTP   *httptest.Server
	Client *Client
}

// newTestEnv starts a server on an httptest listener. It is stopped when
// the test ends.
func newTestEnv(t *testing.T, opts ...ServerOption) *testEnv {
	t.Helper()
	s := New(opts...)
	hs := httptest.NewUnstartedServer(s.Handler())
	hs.EnableHTTP2 = true
	hs.StartTLS()
	t.Cleanup(func() {
		hs.Close()
		s.Stop()
	})
	return &testEnv{
		Server: s,
		HTTP:   hs,
		Client: NewClient(hs.Client(), hs.URL),
	}
}

// newSession creates a session and returns its id.
func (e *testEnv) newSession(t *testing.T) string {
	t.Helper()
	resp, err := e.Client.CreateSession(bg(), &CreateSessionRequest{Name: t.Name()})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return resp.SessionID
}

func connectReq[T any](msg *T) *connect.Request[T] {
	return connect.NewRequest(msg)
}

func bg() context.Context {
	return context.Background()
}
