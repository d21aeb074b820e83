// Package rpcserver implements the completion-queue-driven async RPC
// server from spec.md §4.5, grounded on
// original_source/tiny_kv_storage/src/grpc_server/async_grpc_kv_server.{h,cc}.
//
// The original is built on real gRPC: its ServerCompletionQueue and
// per-method RequestGet/RequestPut/... registrations are provided by the
// grpc-core runtime. storj.io/drpc and google.golang.org/grpc both hide
// that exact mechanism behind a handler-registration API with no exposed
// completion queue, so neither library can express the CREATE/PROCESS/
// FINISH state machine the spec calls out as the core invariant of this
// component (see SPEC_FULL.md §3). This implementation builds the
// completion queue itself, as a buffered channel of *rpcContext, and uses
// a per-operation acceptor channel in place of grpc's RequestXxx call:
// receiving from an acceptor channel is "a call was matched to this
// registration"; sending a fresh context back into it is the
// self-replication step that keeps the method's acceptor queue from
// emptying.
package rpcserver

import (
	"encoding/gob"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/lutongjia9090/tinykv/internal/dispatch"
	"github.com/lutongjia9090/tinykv/internal/kv"
	"github.com/lutongjia9090/tinykv/internal/logging"
	"github.com/lutongjia9090/tinykv/internal/rpcwire"
)

// contextState mirrors the CREATE/PROCESS/FINISH lifecycle of one
// in-flight call.
type contextState int

const (
	stateCreate contextState = iota
	stateProcess
	stateFinish
)

// acceptorDepth is the buffer size of each operation's acceptor channel;
// the completion queue is sized to acceptorDepth per operation kind. Start
// seeds one CREATE-state context per kind and every worker pass puts back
// exactly one sibling for the context it took, so an acceptor channel holds
// at most one context: a reader with a further call of the same kind blocks
// until a worker has picked up the previous one.
const acceptorDepth = 64

// call binds a decoded request to the connection it arrived on, so its
// response can be written back to the right peer.
type call struct {
	conn *wireConn
	req  rpcwire.Request
}

// rpcContext is one CREATE/PROCESS/FINISH slot for a single operation
// kind. A context in CREATE state carries no call; receiving one from an
// acceptor channel and attaching a call is what drives it to PROCESS.
type rpcContext struct {
	op    kv.Op
	state contextState
	call  call
}

// wireConn wraps one accepted connection with its gob codec and a mutex
// serializing writes, since two workers may finish calls on the same
// connection concurrently.
type wireConn struct {
	id   uuid.UUID
	conn net.Conn
	dec  *gob.Decoder
	enc  *gob.Encoder
	mu   sync.Mutex
}

func newWireConn(c net.Conn) *wireConn {
	return &wireConn{id: uuid.New(), conn: c, dec: gob.NewDecoder(c), enc: gob.NewEncoder(c)}
}

func (c *wireConn) writeResponse(id uint64, resp kv.Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(rpcwire.NewResponse(id, resp))
}

// allOps is the fixed set of method acceptors the server maintains, one
// per operation kind named in the spec.
var allOps = []kv.Op{kv.Get, kv.Put, kv.Delete, kv.MultiGet, kv.MultiPut, kv.MultiDelete}

// Server is the async RPC server. The zero value is not usable; construct
// with New.
type Server struct {
	addr       string
	engine     dispatch.Engine
	numWorkers int

	listener net.Listener

	acceptors map[kv.Op]chan *rpcContext
	cq        chan *rpcContext

	mu       sync.Mutex
	running  bool
	conns    map[*wireConn]struct{}
	shutdown chan struct{}
	acceptWG sync.WaitGroup
	connWG   sync.WaitGroup
	workerWG sync.WaitGroup
}

// New constructs a server bound to addr ("ip:port"), dispatching requests
// against engine with numWorkers completion-queue workers.
func New(addr string, engine dispatch.Engine, numWorkers int) *Server {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	return &Server{
		addr:       addr,
		engine:     engine,
		numWorkers: numWorkers,
		acceptors:  make(map[kv.Op]chan *rpcContext, len(allOps)),
		cq:         make(chan *rpcContext, acceptorDepth*len(allOps)),
		conns:      make(map[*wireConn]struct{}),
	}
}

// Start binds the listener, seeds one CREATE-state acceptor per operation
// kind, and launches the accept loop and worker pool. Start is idempotent
// while running.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.shutdown = make(chan struct{})

	for _, op := range allOps {
		ch := make(chan *rpcContext, acceptorDepth)
		ch <- &rpcContext{op: op, state: stateCreate}
		s.acceptors[op] = ch
	}

	s.running = true

	s.acceptWG.Add(1)
	go s.acceptLoop()

	for i := 0; i < s.numWorkers; i++ {
		s.workerWG.Add(1)
		go s.worker()
	}

	logging.Infof("rpcserver: listening on %s with %d workers", s.addr, s.numWorkers)
	return nil
}

// Stop drains in-flight calls, joins the accept loop, the per-connection
// readers and the worker pool, and persists file-backed storage if the
// engine supports it.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.shutdown)
	s.listener.Close()
	s.mu.Unlock()

	s.acceptWG.Wait()

	s.mu.Lock()
	for wc := range s.conns {
		wc.conn.Close()
	}
	s.mu.Unlock()

	s.connWG.Wait()
	close(s.cq)
	s.workerWG.Wait()

	if p, ok := s.engine.(interface{ Persist() error }); ok {
		return p.Persist()
	}
	return nil
}

func (s *Server) acceptLoop() {
	defer s.acceptWG.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		wc := newWireConn(conn)
		s.mu.Lock()
		s.conns[wc] = struct{}{}
		s.mu.Unlock()

		logging.Debugf("rpcserver: conn %s from %s connected", wc.id, conn.RemoteAddr())

		s.connWG.Add(1)
		go s.readLoop(wc)
	}
}

func (s *Server) readLoop(wc *wireConn) {
	defer s.connWG.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, wc)
		s.mu.Unlock()
		wc.conn.Close()
		logging.Debugf("rpcserver: conn %s disconnected", wc.id)
	}()

	for {
		var req rpcwire.Request
		if err := wc.dec.Decode(&req); err != nil {
			return
		}

		acceptor, known := s.acceptors[req.Op]
		if !known {
			// Unknown operation kind: answer directly, no context needed.
			wc.writeResponse(req.ID, kv.Response{Success: false, Message: kv.StatusUnknownOp})
			continue
		}

		var ctx *rpcContext
		var ok bool
		select {
		case ctx, ok = <-acceptor:
			if !ok {
				return
			}
		case <-s.shutdown:
			return
		}
		ctx.call = call{conn: wc, req: req}
		s.cq <- ctx
	}
}

// worker drains the completion queue. Each context arrives here exactly
// once, always in CREATE state: the socket write that stands in for
// grpc's Finish() is a synchronous call in this implementation, so unlike
// the original there is no separate completion event to wait for before
// the PROCESS -> FINISH transition, and both happen in the same pass.
func (s *Server) worker() {
	defer s.workerWG.Done()

	for ctx := range s.cq {
		sibling := &rpcContext{op: ctx.op, state: stateCreate}
		s.acceptors[ctx.op] <- sibling

		ctx.state = stateProcess
		resp := dispatch.Handle(s.engine, rpcwire.ToRequest(ctx.call.req))

		if err := ctx.call.conn.writeResponse(ctx.call.req.ID, resp); err != nil {
			logging.Warnf("rpcserver: write response: %v", err)
		}
		ctx.state = stateFinish
		// Recycle: the context is now unreachable and GC-collectible.
	}
}
