package server

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client calls a Server over the Connect protocol.
type Client struct {
	createSession  *connect.Client[CreateSessionRequest, CreateSessionResponse]
	destroySession *connect.Client[DestroySessionRequest, DestroySessionResponse]
	eval           *connect.Client[EvalRequest, EvalResponse]
	fetch          *connect.Client[FetchRequest, FetchResponse]
}

// NewClient returns a client for the server at baseURL. Extra options,
// such as connect.WithGRPC(), are passed to every procedure.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &Client{
		createSession: connect.NewClient[CreateSessionRequest, CreateSessionResponse](
			httpClient, baseURL+CreateSessionProcedure, opts...),
		destroySession: connect.NewClient[DestroySessionRequest, DestroySessionResponse](
			httpClient, baseURL+DestroySessionProcedure, opts...),
		eval: connect.NewClient[EvalRequest, EvalResponse](
			httpClient, baseURL+EvalProcedure, opts...),
		fetch: connect.NewClient[FetchRequest, FetchResponse](
			httpClient, baseURL+FetchProcedure, opts...),
	}
}

// CreateSession calls EvalService.CreateSession.
func (c *Client) CreateSession(ctx context.Context, req *CreateSessionRequest) (*CreateSessionResponse, error) {
	resp, err := c.createSession.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// DestroySession calls EvalService.DestroySession.
func (c *Client) DestroySession(ctx context.Context, req *DestroySessionRequest) error {
	_, err := c.destroySession.CallUnary(ctx, connect.NewRequest(req))
	return err
}

// Eval calls EvalService.Eval.
func (c *Client) Eval(ctx context.Context, req *EvalRequest) (*EvalResponse, error) {
	resp, err := c.eval.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Fetch calls StoreService.Fetch.
func (c *Client) Fetch(ctx context.Context, req *FetchRequest) (*FetchResponse, error) {
	resp, err := c.fetch.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
