// Package rpcwire defines the gob-encoded frames exchanged between the
// async RPC server and its client, shared so both sides encode/decode the
// identical Go type rather than relying on gob's structural matching
// across two independently-defined types.
package rpcwire

import "github.com/lutongjia9090/tinykv/internal/kv"

// Request is one call frame. ID lets a response complete out of order
// relative to the request that produced it: the server's worker pool may
// finish two concurrent calls on the same connection in either order, the
// same way a real gRPC stream does not promise same-stream completion
// order across distinct calls.
type Request struct {
	ID    uint64
	Op    kv.Op
	Key   string
	Value string
	Kvs   []kv.Pair
}

// Response is one reply frame, carrying the ID of the request it answers.
type Response struct {
	ID      uint64
	Success bool
	Message string
	Value   string
	Kvs     []kv.Pair
}

// ToRequest strips the wire envelope down to the wire-independent model.
func ToRequest(w Request) kv.Request {
	return kv.Request{Op: w.Op, Key: w.Key, Value: w.Value, Kvs: w.Kvs}
}

// ToResponse converts a Response frame to the wire-independent model.
func ToResponse(w Response) kv.Response {
	return kv.Response{Success: w.Success, Message: w.Message, Value: w.Value, Kvs: w.Kvs}
}

// NewResponse builds a Response frame from a handler result, tagging it
// with the request ID it answers.
func NewResponse(id uint64, resp kv.Response) Response {
	return Response{
		ID:      id,
		Success: resp.Success,
		Message: resp.Message,
		Value:   resp.Value,
		Kvs:     resp.Kvs,
	}
}
