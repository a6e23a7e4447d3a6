package server

import (
	"github.com/chazu/lurk/field"
	"github.com/chazu/lurk/store"
)

// Procedure paths.
const (
	CreateSessionProcedure  = "/lurk.v1.EvalService/CreateSession"
	DestroySessionProcedure = "/lurk.v1.EvalService/DestroySession"
	EvalProcedure           = "/lurk.v1.EvalService/Eval"
	FetchProcedure          = "/lurk.v1.StoreService/Fetch"
)

// CreateSessionRequest asks for a new session with its own store.
type CreateSessionRequest struct {
	Name string `cbor:"1,keyasint,omitempty"`
}

// CreateSessionResponse identifies the new session and the field its
// pointers live in.
type CreateSessionResponse struct {
	SessionID string           `cbor:"1,keyasint"`
	Field     string           `cbor:"2,keyasint"`
	Params    field.HashParams `cbor:"3,keyasint"`
}

// DestroySessionRequest releases a session.
type DestroySessionRequest struct {
	SessionID string `cbor:"1,keyasint"`
}

// DestroySessionResponse is empty.
type DestroySessionResponse struct{}

// EvalRequest evaluates one expression in a session. A zero Limit uses the
// server's limit; larger limits are capped to it.
type EvalRequest struct {
	SessionID    string `cbor:"1,keyasint"`
	Source       string `cbor:"2,keyasint"`
	Limit        int    `cbor:"3,keyasint,omitempty"`
	IncludeTrace bool   `cbor:"4,keyasint,omitempty"`
}

// EvalResponse reports how a run ended. Trace holds an encoded trace
// bundle when it was requested.
type EvalResponse struct {
	Result     string    `cbor:"1,keyasint"`
	Value      store.Ptr `cbor:"2,keyasint"`
	Status     string    `cbor:"3,keyasint"`
	ErrorKind  string    `cbor:"4,keyasint,omitempty"`
	Irritant   string    `cbor:"5,keyasint,omitempty"`
	Iterations int       `cbor:"6,keyasint"`
	Trace      []byte    `cbor:"7,keyasint,omitempty"`
	RunID      string    `cbor:"8,keyasint,omitempty"`
}

// FetchRequest asks for the content reachable from Ptr.
type FetchRequest struct {
	SessionID string    `cbor:"1,keyasint"`
	Ptr       store.Ptr `cbor:"2,keyasint"`
}

// FetchResponse carries the closure of the requested pointer as store
// entries, ready for store.Import.
type FetchResponse struct {
	Entries []store.Entry `cbor:"1,keyasint"`
}
