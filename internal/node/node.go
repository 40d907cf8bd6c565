// Package node wires together the transport, consensus engine, applier and
// context store into a single running process node, and implements the
// node-side operator CLI.
package node

import (
	"context"
	"fmt"
	"net"
	"time"

	ctxstore "github.com/jabolina/contextd/internal/context"
	"github.com/jabolina/contextd/internal/apply"
	"github.com/jabolina/contextd/internal/consensus"
	"github.com/jabolina/contextd/internal/generator"
	"github.com/jabolina/contextd/internal/ingress"
	"github.com/jabolina/contextd/internal/logging"
	"github.com/jabolina/contextd/internal/wire"
)

// Node is one running process node: a single connection to the relay, a
// consensus engine, an applier over a context store, and the pending
// ingress queue.
type Node struct {
	ID int
	N  int

	conn    *wire.Conn
	engine  *consensus.Engine
	applier *apply.Applier
	queue   *ingress.Queue
	log     logging.Logger
	runner  *consensus.TrackedRunner

	ctx    context.Context
	cancel context.CancelFunc
}

// nodeTransport adapts a single relay connection to the consensus.Transport
// interface: every Send, regardless of logical dest, goes out over the one
// physical socket to the relay, which does the actual routing.
type nodeTransport struct {
	conn *wire.Conn
}

func (t *nodeTransport) Send(dest int, f wire.Frame) error {
	f.Dest = dest
	return t.conn.Send(f)
}

// Dial connects to the relay at targetHost:targetPort, binding locally to
// targetPort+1+id first so the relay can recover this node's id from the
// source port.
func Dial(id, n int, targetHost string, targetPort int, gen generator.Generator, log logging.Logger) (*Node, error) {
	localAddr := &net.TCPAddr{Port: targetPort + 1 + id}
	dialer := net.Dialer{LocalAddr: localAddr, Timeout: 10 * time.Second}

	nc, err := dialer.Dial("tcp", fmt.Sprintf("%s:%d", targetHost, targetPort))
	if err != nil {
		return nil, fmt.Errorf("node: dial relay: %w", err)
	}

	conn := wire.NewConn(nc)
	conn.SetLogger(log)
	store := ctxstore.New()
	responses := apply.NewResponses()
	applier := apply.New(id, store, gen, responses, log)
	queue := ingress.New()
	runner := &consensus.TrackedRunner{}

	engine := consensus.New(id, n, &nodeTransport{conn: conn}, queue, applier, log, runner)

	ctx, cancel := context.WithCancel(context.Background())
	nd := &Node{
		ID:      id,
		N:       n,
		conn:    conn,
		engine:  engine,
		applier: applier,
		queue:   queue,
		log:     log,
		runner:  runner,
		ctx:     ctx,
		cancel:  cancel,
	}

	runner.Spawn(engine.Run)
	runner.Spawn(nd.listen)

	return nd, nil
}

// listen is the single frame-reading loop for this node's relay connection;
// each received frame is handled by its own spawned task so one slow
// handler never stalls the read loop.
func (nd *Node) listen() {
	for {
		f, err := nd.conn.Recv()
		if err != nil {
			nd.log.Debugf("node %d: relay connection closed: %v", nd.ID, err)
			nd.Shutdown()
			return
		}
		nd.runner.Spawn(func() {
			nd.engine.HandleFrame(f)
		})
	}
}

// Shutdown tears the node down: cancels its context, stops the consensus
// engine and closes the relay connection.
func (nd *Node) Shutdown() {
	select {
	case <-nd.ctx.Done():
		return
	default:
	}
	nd.cancel()
	nd.engine.Shutdown()
	nd.conn.Close()
}

// Wait blocks until every goroutine spawned by this node has exited.
func (nd *Node) Wait() {
	nd.runner.Wait()
}

// Applier exposes the applier for CLI reads/writes.
func (nd *Node) Applier() *apply.Applier {
	return nd.applier
}

// Enqueue pushes a command string onto the pending-operations queue.
func (nd *Node) Enqueue(command string) {
	nd.queue.Push(command)
}
