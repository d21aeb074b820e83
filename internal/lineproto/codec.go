// Package lineproto implements the whitespace-tokenized, CRLF-terminated
// line protocol from spec.md §4.4, grounded on
// original_source/tiny_kv_storage/src/server/kv_server.cc's ParseRequest
// and SerializeResponse.
package lineproto

import (
	"strings"

	"github.com/lutongjia9090/tinykv/internal/kv"
)

// Terminator is the two-byte line terminator used by every request and
// response.
const Terminator = "\r\n"

// EmptyValueToken stands in for an empty string inside a multi-key kvs
// list on the wire. The protocol is whitespace-tokenized, so an empty
// value written as zero bytes produces no token at all -- the reader has
// no way to tell "this key has an empty value" from "this key is
// missing". MultiGet's missing-key semantics (spec.md §4.3/§7) make empty
// values routine, so every empty Pair.Value is written as this sentinel
// and decoded back to "" on the way in.
const EmptyValueToken = "\x00"

// Parse decodes one CRLF-stripped line into a Request. Malformed input
// (missing verb, wrong token count) yields kv.Invalid, the same result as
// an unknown verb; the line server answers both with "unknown operation",
// matching the original's behavior of routing both cases through the same
// handler-not-found path.
func Parse(line string) kv.Request {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return kv.Request{Op: kv.Invalid}
	}

	verb, args := fields[0], fields[1:]

	switch verb {
	case "GET":
		if len(args) != 1 {
			return kv.Request{Op: kv.Invalid}
		}
		return kv.Request{Op: kv.Get, Key: args[0]}

	case "DEL":
		if len(args) != 1 {
			return kv.Request{Op: kv.Invalid}
		}
		return kv.Request{Op: kv.Delete, Key: args[0]}

	case "PUT":
		if len(args) != 2 {
			return kv.Request{Op: kv.Invalid}
		}
		return kv.Request{Op: kv.Put, Key: args[0], Value: args[1]}

	case "MGET", "MDEL":
		op := kv.MultiGet
		if verb == "MDEL" {
			op = kv.MultiDelete
		}
		if len(args) == 0 {
			return kv.Request{Op: kv.Invalid}
		}
		pairs := make([]kv.Pair, len(args))
		for i, k := range args {
			pairs[i] = kv.Pair{Key: k}
		}
		return kv.Request{Op: op, Kvs: pairs}

	case "MPUT":
		if len(args) == 0 || len(args)%2 != 0 {
			return kv.Request{Op: kv.Invalid}
		}
		pairs := make([]kv.Pair, 0, len(args)/2)
		for i := 0; i < len(args); i += 2 {
			value := args[i+1]
			if value == EmptyValueToken {
				value = ""
			}
			pairs = append(pairs, kv.Pair{Key: args[i], Value: value})
		}
		return kv.Request{Op: kv.MultiPut, Kvs: pairs}

	default:
		return kv.Request{Op: kv.Invalid}
	}
}

// Serialize encodes a Response as a single line, without the trailing
// terminator (the caller appends Terminator when writing to the wire).
func Serialize(resp kv.Response) string {
	var b strings.Builder

	if resp.Success {
		b.WriteString("SUCCESS ")
	} else {
		b.WriteString("FAIL ")
	}
	b.WriteString(resp.Message)

	if resp.Value != "" {
		b.WriteByte(' ')
		b.WriteString(resp.Value)
	}

	for _, p := range resp.Kvs {
		b.WriteByte(' ')
		b.WriteString(p.Key)
		b.WriteByte(' ')
		if p.Value == "" {
			b.WriteString(EmptyValueToken)
		} else {
			b.WriteString(p.Value)
		}
	}

	return b.String()
}
