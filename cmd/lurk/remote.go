package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/chazu/lurk/server"
)

// runRemote evaluates expr in a fresh session on the server at addr, using
// gRPC framing with the server's CBOR codec.
func runRemote(addr, expr string, limit int) error {
	if expr == "" {
		return errors.New("-remote needs an expression (-e)")
	}
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(server.Codec{})),
	)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var created server.CreateSessionResponse
	if err := conn.Invoke(ctx, server.CreateSessionProcedure, &server.CreateSessionRequest{Name: "cli"}, &created); err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	defer conn.Invoke(ctx, server.DestroySessionProcedure,
		&server.DestroySessionRequest{SessionID: created.SessionID}, &server.DestroySessionResponse{})

	var resp server.EvalResponse
	req := &server.EvalRequest{SessionID: created.SessionID, Source: expr, Limit: limit}
	if err := conn.Invoke(ctx, server.EvalProcedure, req, &resp); err != nil {
		return fmt.Errorf("evaluating: %w", err)
	}

	switch resp.Status {
	case "error":
		fmt.Printf("[%d iterations] => error: %s %s\n", resp.Iterations, resp.ErrorKind, resp.Irritant)
	case "exhausted":
		fmt.Printf("[%d iterations] => limit reached\n", resp.Iterations)
	default:
		fmt.Printf("[%d iterations] => %s\n", resp.Iterations, resp.Result)
	}
	return nil
}
