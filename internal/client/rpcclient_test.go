package client

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lutongjia9090/tinykv/internal/kv"
	"github.com/lutongjia9090/tinykv/internal/rpcserver"
	"github.com/lutongjia9090/tinykv/internal/storage"
)

func startRPCServer(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	srv := rpcserver.New(addr, storage.NewMemory(), 2)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })

	return addr
}

func TestRPCClientPutThenGet(t *testing.T) {
	addr := startRPCServer(t)
	c := NewRPCClient(addr)
	defer c.Disconnect()

	require.True(t, c.Put("k1", "v1"))

	ok, v := c.Get("k1")
	require.True(t, ok)
	require.Equal(t, "v1", v)
}

func TestRPCClientGetMissing(t *testing.T) {
	addr := startRPCServer(t)
	c := NewRPCClient(addr)
	defer c.Disconnect()

	ok, _ := c.Get("missing")
	require.False(t, ok)
}

func TestRPCClientDelete(t *testing.T) {
	addr := startRPCServer(t)
	c := NewRPCClient(addr)
	defer c.Disconnect()

	require.True(t, c.Put("k1", "v1"))
	require.True(t, c.Delete("k1"))

	ok, _ := c.Get("k1")
	require.False(t, ok)
}

func TestRPCClientMultiGetAndMultiPut(t *testing.T) {
	addr := startRPCServer(t)
	c := NewRPCClient(addr)
	defer c.Disconnect()

	require.True(t, c.MultiPut([]kv.Pair{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}))

	kvs, ok := c.MultiGet([]string{"a", "b", "c"})
	require.True(t, ok)
	require.Equal(t, []kv.Pair{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}, {Key: "c", Value: ""}}, kvs)
}

func TestRPCClientMultiDelete(t *testing.T) {
	addr := startRPCServer(t)
	c := NewRPCClient(addr)
	defer c.Disconnect()

	require.True(t, c.MultiPut([]kv.Pair{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}))
	require.True(t, c.MultiDelete([]string{"a", "b"}))

	ok, _ := c.Get("a")
	require.False(t, ok)
}

func TestRPCClientAsyncGetInvokesCallback(t *testing.T) {
	addr := startRPCServer(t)
	c := NewRPCClient(addr)
	defer c.Disconnect()

	require.True(t, c.Put("k1", "v1"))

	var wg sync.WaitGroup
	wg.Add(1)

	var got kv.Response
	c.AsyncGet("k1", func(resp kv.Response) {
		got = resp
		wg.Done()
	})

	waitOrTimeout(t, &wg, time.Second)
	require.True(t, got.Success)
	require.Equal(t, "v1", got.Value)
}

func TestRPCClientManyConcurrentAsyncCallsAllSucceed(t *testing.T) {
	addr := startRPCServer(t)
	c := NewRPCClient(addr)
	defer c.Disconnect()

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)

	results := make([]bool, n)
	var mu sync.Mutex

	for i := 0; i < n; i++ {
		i := i
		c.AsyncPut("k", "v", func(resp kv.Response) {
			mu.Lock()
			results[i] = resp.Success
			mu.Unlock()
			wg.Done()
		})
	}

	waitOrTimeout(t, &wg, 2*time.Second)
	for i, ok := range results {
		require.Truef(t, ok, "call %d failed", i)
	}
}

func TestRPCClientLastErrorOnConnectFailure(t *testing.T) {
	c := NewRPCClient("127.0.0.1:1")
	ok, _ := c.Get("k")
	require.False(t, ok)
	require.NotEmpty(t, c.LastError())
}

func TestRPCClientDisconnectFailsPendingCalls(t *testing.T) {
	addr := startRPCServer(t)
	c := NewRPCClient(addr)
	require.True(t, c.Connect())

	var got kv.Response
	var wg sync.WaitGroup
	wg.Add(1)

	c.pendingMu.Lock()
	c.pending[999] = &pendingCall{cb: func(resp kv.Response) {
		got = resp
		wg.Done()
	}}
	c.pendingMu.Unlock()

	c.Disconnect()

	waitOrTimeout(t, &wg, time.Second)
	require.False(t, got.Success)
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for callback")
	}
}
