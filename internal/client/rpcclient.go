package client

import (
	"encoding/gob"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lutongjia9090/tinykv/internal/kv"
	"github.com/lutongjia9090/tinykv/internal/rpcwire"
)

// AsyncCallback receives the outcome of one asynchronous RPC call.
type AsyncCallback func(resp kv.Response)

// pendingCall is either a synchronous waiter (ch) or an asynchronous
// callback (cb), never both.
type pendingCall struct {
	ch chan rpcwire.Response
	cb AsyncCallback
}

// RPCClient is a client for the async RPC server, offering both a
// synchronous and a callback-based asynchronous surface per spec.md
// §4.6. A single background goroutine reads every response off the wire
// and either wakes a synchronous waiter or invokes its callback inline --
// the Go analogue of the original's background completion-queue-draining
// thread.
type RPCClient struct {
	addr    string
	timeout time.Duration

	mu        sync.Mutex
	conn      net.Conn
	enc       *gob.Encoder
	connected bool
	lastErr   string

	nextID uint64

	pendingMu sync.Mutex
	pending   map[uint64]*pendingCall
}

// NewRPCClient constructs a client for the RPC server at addr ("ip:port").
func NewRPCClient(addr string) *RPCClient {
	return &RPCClient{
		addr:    addr,
		timeout: 5 * time.Second,
		pending: make(map[uint64]*pendingCall),
	}
}

// Connect dials the server and starts the background response reader. It
// is idempotent while already connected.
func (c *RPCClient) Connect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *RPCClient) connectLocked() bool {
	if c.connected {
		return true
	}

	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		c.lastErr = fmt.Sprintf("failed to connect server: %v", err)
		return false
	}

	c.conn = conn
	c.enc = gob.NewEncoder(conn)
	c.connected = true

	go c.readLoop(conn)
	return true
}

// Disconnect closes the connection and fails every pending call.
func (c *RPCClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectLocked()
}

func (c *RPCClient) disconnectLocked() {
	if !c.connected {
		return
	}
	c.connected = false
	c.conn.Close()

	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]*pendingCall)
	c.pendingMu.Unlock()

	for _, p := range pending {
		if p.ch != nil {
			close(p.ch)
		} else if p.cb != nil {
			p.cb(kv.Response{Success: false, Message: "transport error"})
		}
	}
}

// LastError returns the most recent transport-level error message.
func (c *RPCClient) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *RPCClient) readLoop(conn net.Conn) {
	dec := gob.NewDecoder(conn)
	for {
		var resp rpcwire.Response
		if err := dec.Decode(&resp); err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.lastErr = fmt.Sprintf("failed to receive response: %v", err)
				c.disconnectLocked()
			}
			c.mu.Unlock()
			return
		}

		c.pendingMu.Lock()
		p, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.pendingMu.Unlock()

		if !ok {
			continue
		}
		if p.ch != nil {
			p.ch <- resp
		} else if p.cb != nil {
			p.cb(rpcwire.ToResponse(resp))
		}
	}
}

// send encodes req and registers p to receive its response.
func (c *RPCClient) send(req rpcwire.Request, p *pendingCall) bool {
	c.mu.Lock()
	if !c.connectLocked() {
		c.mu.Unlock()
		if p.cb != nil {
			p.cb(kv.Response{Success: false, Message: "transport error"})
		}
		return false
	}
	enc := c.enc
	c.mu.Unlock()

	c.pendingMu.Lock()
	c.pending[req.ID] = p
	c.pendingMu.Unlock()

	if err := enc.Encode(req); err != nil {
		c.mu.Lock()
		c.lastErr = fmt.Sprintf("failed to send request: %v", err)
		c.mu.Unlock()

		c.pendingMu.Lock()
		delete(c.pending, req.ID)
		c.pendingMu.Unlock()

		if p.cb != nil {
			p.cb(kv.Response{Success: false, Message: "transport error"})
		}
		return false
	}
	return true
}

func (c *RPCClient) callSync(req rpcwire.Request) (kv.Response, bool) {
	ch := make(chan rpcwire.Response, 1)
	if !c.send(req, &pendingCall{ch: ch}) {
		return kv.Response{}, false
	}

	resp, ok := <-ch
	if !ok {
		return kv.Response{}, false
	}
	return rpcwire.ToResponse(resp), true
}

func (c *RPCClient) callAsync(req rpcwire.Request, cb AsyncCallback) {
	c.send(req, &pendingCall{cb: cb})
}

func (c *RPCClient) newID() uint64 {
	return atomic.AddUint64(&c.nextID, 1)
}

// Get fetches a value synchronously.
func (c *RPCClient) Get(key string) (bool, string) {
	resp, ok := c.callSync(rpcwire.Request{ID: c.newID(), Op: kv.Get, Key: key})
	if !ok {
		return false, ""
	}
	return resp.Success, resp.Value
}

// Put stores a value synchronously.
func (c *RPCClient) Put(key, value string) bool {
	resp, ok := c.callSync(rpcwire.Request{ID: c.newID(), Op: kv.Put, Key: key, Value: value})
	return ok && resp.Success
}

// Delete removes a key synchronously.
func (c *RPCClient) Delete(key string) bool {
	resp, ok := c.callSync(rpcwire.Request{ID: c.newID(), Op: kv.Delete, Key: key})
	return ok && resp.Success
}

// MultiGet fetches many values synchronously.
func (c *RPCClient) MultiGet(keys []string) ([]kv.Pair, bool) {
	kvs := make([]kv.Pair, len(keys))
	for i, k := range keys {
		kvs[i] = kv.Pair{Key: k}
	}
	resp, ok := c.callSync(rpcwire.Request{ID: c.newID(), Op: kv.MultiGet, Kvs: kvs})
	if !ok {
		return nil, false
	}
	return resp.Kvs, resp.Success
}

// MultiPut stores many key/value pairs synchronously.
func (c *RPCClient) MultiPut(kvs []kv.Pair) bool {
	resp, ok := c.callSync(rpcwire.Request{ID: c.newID(), Op: kv.MultiPut, Kvs: kvs})
	return ok && resp.Success
}

// MultiDelete removes many keys synchronously.
func (c *RPCClient) MultiDelete(keys []string) bool {
	kvs := make([]kv.Pair, len(keys))
	for i, k := range keys {
		kvs[i] = kv.Pair{Key: k}
	}
	resp, ok := c.callSync(rpcwire.Request{ID: c.newID(), Op: kv.MultiDelete, Kvs: kvs})
	return ok && resp.Success
}

// AsyncGet fetches a value asynchronously; cb runs on the client's
// background reader goroutine once the response arrives.
func (c *RPCClient) AsyncGet(key string, cb AsyncCallback) {
	c.callAsync(rpcwire.Request{ID: c.newID(), Op: kv.Get, Key: key}, cb)
}

// AsyncPut stores a value asynchronously.
func (c *RPCClient) AsyncPut(key, value string, cb AsyncCallback) {
	c.callAsync(rpcwire.Request{ID: c.newID(), Op: kv.Put, Key: key, Value: value}, cb)
}

// AsyncDelete removes a key asynchronously.
func (c *RPCClient) AsyncDelete(key string, cb AsyncCallback) {
	c.callAsync(rpcwire.Request{ID: c.newID(), Op: kv.Delete, Key: key}, cb)
}

// AsyncMultiGet fetches many values asynchronously.
func (c *RPCClient) AsyncMultiGet(keys []string, cb AsyncCallback) {
	kvs := make([]kv.Pair, len(keys))
	for i, k := range keys {
		kvs[i] = kv.Pair{Key: k}
	}
	c.callAsync(rpcwire.Request{ID: c.newID(), Op: kv.MultiGet, Kvs: kvs}, cb)
}

// AsyncMultiPut stores many key/value pairs asynchronously.
func (c *RPCClient) AsyncMultiPut(kvs []kv.Pair, cb AsyncCallback) {
	c.callAsync(rpcwire.Request{ID: c.newID(), Op: kv.MultiPut, Kvs: kvs}, cb)
}

// AsyncMultiDelete removes many keys asynchronously.
func (c *RPCClient) AsyncMultiDelete(keys []string, cb AsyncCallback) {
	kvs := make([]kv.Pair, len(keys))
	for i, k := range keys {
		kvs[i] = kv.Pair{Key: k}
	}
	c.callAsync(rpcwire.Request{ID: c.newID(), Op: kv.MultiDelete, Kvs: kvs}, cb)
}
