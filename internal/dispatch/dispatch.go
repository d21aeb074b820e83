// Package dispatch holds the operation handler table shared by the
// line-protocol server and the async RPC server. Both original servers
// (original_source/tiny_kv_storage/src/server/kv_server.cc's InitHandlers
// and src/grpc_server/async_grpc_kv_server.cc's per-op Process methods)
// implement the identical storage-facing logic twice, once per wire
// format; here it is factored into one table so the two servers can never
// drift apart on semantics.
package dispatch

import "github.com/lutongjia9090/tinykv/internal/kv"

// Engine is the subset of storage.Engine the handlers need. Declared here
// rather than imported so this package has no dependency on the storage
// engine's concrete types, only its behavior.
type Engine interface {
	Put(key, value string) bool
	Get(key string) (string, bool)
	Delete(key string) bool
}

// Handle executes req against engine and returns the Response, independent
// of wire format. Unknown/invalid ops yield StatusUnknownOp.
func Handle(engine Engine, req kv.Request) kv.Response {
	switch req.Op {
	case kv.Get:
		return handleGet(engine, req)
	case kv.Put:
		return handlePut(engine, req)
	case kv.Delete:
		return handleDelete(engine, req)
	case kv.MultiGet:
		return handleMultiGet(engine, req)
	case kv.MultiPut:
		return handleMultiPut(engine, req)
	case kv.MultiDelete:
		return handleMultiDelete(engine, req)
	default:
		return kv.Response{Success: false, Message: kv.StatusUnknownOp}
	}
}

func handleGet(engine Engine, req kv.Request) kv.Response {
	value, ok := engine.Get(req.Key)
	if !ok {
		return kv.Response{Success: false, Message: kv.StatusKeyNotFound}
	}
	return kv.Response{Success: true, Message: kv.StatusSuccess, Value: value}
}

func handlePut(engine Engine, req kv.Request) kv.Response {
	ok := engine.Put(req.Key, req.Value)
	if !ok {
		return kv.Response{Success: false, Message: kv.StatusFail}
	}
	return kv.Response{Success: true, Message: kv.StatusSuccess}
}

func handleDelete(engine Engine, req kv.Request) kv.Response {
	ok := engine.Delete(req.Key)
	if !ok {
		return kv.Response{Success: false, Message: kv.StatusFail}
	}
	return kv.Response{Success: true, Message: kv.StatusSuccess}
}

func handleMultiGet(engine Engine, req kv.Request) kv.Response {
	kvs := make([]kv.Pair, len(req.Kvs))
	for i, p := range req.Kvs {
		value, ok := engine.Get(p.Key)
		if !ok {
			value = ""
		}
		kvs[i] = kv.Pair{Key: p.Key, Value: value}
	}
	return kv.Response{Success: true, Message: kv.StatusSuccess, Kvs: kvs}
}

func handleMultiPut(engine Engine, req kv.Request) kv.Response {
	success := true
	for _, p := range req.Kvs {
		if !engine.Put(p.Key, p.Value) {
			success = false
		}
	}
	if !success {
		return kv.Response{Success: false, Message: kv.StatusPartialFailure}
	}
	return kv.Response{Success: true, Message: kv.StatusSuccess}
}

func handleMultiDelete(engine Engine, req kv.Request) kv.Response {
	success := true
	for _, p := range req.Kvs {
		if !engine.Delete(p.Key) {
			success = false
		}
	}
	if !success {
		return kv.Response{Success: false, Message: kv.StatusPartialFailure}
	}
	return kv.Response{Success: true, Message: kv.StatusSuccess}
}
