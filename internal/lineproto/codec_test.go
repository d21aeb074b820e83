package lineproto

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lutongjia9090/tinykv/internal/kv"
)

func TestParseGet(t *testing.T) {
	req := Parse("GET foo")
	require.Equal(t, kv.Request{Op: kv.Get, Key: "foo"}, req)
}

func TestParsePut(t *testing.T) {
	req := Parse("PUT foo bar")
	require.Equal(t, kv.Request{Op: kv.Put, Key: "foo", Value: "bar"}, req)
}

func TestParseDel(t *testing.T) {
	req := Parse("DEL foo")
	require.Equal(t, kv.Request{Op: kv.Delete, Key: "foo"}, req)
}

func TestParseMGet(t *testing.T) {
	req := Parse("MGET a b c")
	require.Equal(t, kv.Request{Op: kv.MultiGet, Kvs: []kv.Pair{{Key: "a"}, {Key: "b"}, {Key: "c"}}}, req)
}

func TestParseMPut(t *testing.T) {
	req := Parse("MPUT a 1 b 2")
	require.Equal(t, kv.Request{Op: kv.MultiPut, Kvs: []kv.Pair{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}}, req)
}

func TestParseMDel(t *testing.T) {
	req := Parse("MDEL a b")
	require.Equal(t, kv.Request{Op: kv.MultiDelete, Kvs: []kv.Pair{{Key: "a"}, {Key: "b"}}}, req)
}

func TestParseInvalidCases(t *testing.T) {
	cases := []string{
		"",
		"GET",
		"GET a b",
		"PUT a",
		"PUT a b c",
		"DEL",
		"MPUT a",
		"MPUT a b c",
		"BOGUS a b",
	}
	for _, line := range cases {
		require.Equal(t, kv.Invalid, Parse(line).Op, "line: %q", line)
	}
}

func TestParseCollapsesExtraWhitespace(t *testing.T) {
	req := Parse("GET   foo  ")
	require.Equal(t, kv.Request{Op: kv.Get, Key: "foo"}, req)
}

func TestSerializeSuccessWithValue(t *testing.T) {
	line := Serialize(kv.Response{Success: true, Message: kv.StatusSuccess, Value: "bar"})
	require.Equal(t, "SUCCESS success bar", line)
}

func TestSerializeFailNoValue(t *testing.T) {
	line := Serialize(kv.Response{Success: false, Message: kv.StatusKeyNotFound})
	require.Equal(t, "FAIL key not found", line)
}

func TestSerializeMultiGetPairs(t *testing.T) {
	resp := kv.Response{
		Success: true,
		Message: kv.StatusSuccess,
		Kvs:     []kv.Pair{{Key: "a", Value: "1"}, {Key: "b", Value: ""}},
	}
	line := Serialize(resp)
	require.Equal(t, "SUCCESS success a 1 b "+EmptyValueToken, line)
}

func TestParseMPutDecodesEmptyValueToken(t *testing.T) {
	req := Parse("MPUT a " + EmptyValueToken + " b 2")
	require.Equal(t, kv.Request{Op: kv.MultiPut, Kvs: []kv.Pair{{Key: "a", Value: ""}, {Key: "b", Value: "2"}}}, req)
}
