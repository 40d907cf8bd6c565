// Package relay implements the star-topology network overlay: a central
// forwarder that accepts one connection per node, learns each peer's
// logical node id from its source port, maintains an N×N connectivity
// matrix, and forwards or drops frames accordingly. It also synthesises
// KILL frames on operator request.
//
// The peer table is a mutex-guarded map populated by one accept loop and one
// goroutine per connected peer; known participants are added incrementally
// as connections arrive rather than configured up front.
package relay

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jabolina/contextd/internal/logging"
	"github.com/jabolina/contextd/internal/wire"
)

// ForwardDelay is the fixed minimum delay applied to every forwarded frame.
// This is a deliberate testing aid that exposes timeout handling in the
// consensus layer; it is part of the contract the test suite relies on, not
// an incidental implementation detail.
const ForwardDelay = 3 * time.Second

// Relay is the star-topology overlay server.
type Relay struct {
	basePort int
	n        int
	log      logging.Logger

	listener net.Listener

	mu      sync.Mutex
	peers   map[int]*wire.Conn
	matrix  [][]bool
	closing bool
}

// New creates a Relay for n nodes, listening (once Listen is called) on
// basePort. Nodes are expected to bind locally to basePort+1+id before
// connecting, so the relay can recover id from the client's source port.
func New(basePort, n int, log logging.Logger) *Relay {
	matrix := make([][]bool, n)
	for i := range matrix {
		matrix[i] = make([]bool, n)
	}
	return &Relay{
		basePort: basePort,
		n:        n,
		log:      log,
		peers:    make(map[int]*wire.Conn),
		matrix:   matrix,
	}
}

// nodeIDFromAddr recovers the logical node id from a peer's source port:
// id = port - base_port - 1.
func (r *Relay) nodeIDFromAddr(addr net.Addr) (int, bool) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return 0, false
	}
	id := tcpAddr.Port - r.basePort - 1
	if id < 0 || id >= r.n {
		return 0, false
	}
	return id, true
}

// Listen accepts peer connections until ctx is cancelled or Shutdown is
// called.
func (r *Relay) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", r.basePort))
	if err != nil {
		return fmt.Errorf("relay: listen on %d: %w", r.basePort, err)
	}
	r.listener = ln
	r.log.Infof("relay: listening on %d for %d nodes", r.basePort, r.n)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			r.mu.Lock()
			closing := r.closing
			r.mu.Unlock()
			if closing {
				return nil
			}
			return fmt.Errorf("relay: accept: %w", err)
		}
		go r.handleConn(conn)
	}
}

func (r *Relay) handleConn(nc net.Conn) {
	id, ok := r.nodeIDFromAddr(nc.RemoteAddr())
	if !ok {
		r.log.Warnf("relay: rejecting connection from %s, invalid source port", nc.RemoteAddr())
		nc.Close()
		return
	}

	c := wire.NewConn(nc)
	c.SetLogger(r.log)
	r.addPeer(id, c)
	r.log.Infof("relay: node %d connected from %s", id, nc.RemoteAddr())

	defer r.removePeer(id)

	for {
		frame, err := c.Recv()
		if err != nil {
			r.log.Debugf("relay: node %d connection closed: %v", id, err)
			return
		}
		r.dispatch(id, frame)
	}
}

// addPeer registers a newly connected peer and marks it connected to every
// already-connected peer.
func (r *Relay) addPeer(id int, c *wire.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[id] = c
	for j := range r.matrix[id] {
		if j == id {
			continue
		}
		if _, connected := r.peers[j]; connected {
			r.matrix[id][j] = true
			r.matrix[j][id] = true
		}
	}
}

func (r *Relay) removePeer(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.peers[id]; ok {
		c.Close()
		delete(r.peers, id)
	}
}

// dispatch forwards a frame received from src, applying the matrix check.
func (r *Relay) dispatch(src int, f wire.Frame) {
	r.mu.Lock()
	dest, known := r.peers[f.Dest]
	allowed := f.Src == wire.RelayNode || (f.Dest >= 0 && f.Dest < r.n && r.matrix[src][f.Dest])
	r.mu.Unlock()

	if !known {
		r.log.Debugf("relay: dropping frame for unknown dest %d", f.Dest)
		return
	}
	if !allowed {
		r.log.Debugf("relay: dropping frame %s->%d, link down", f.Header, f.Dest)
		return
	}

	time.AfterFunc(ForwardDelay, func() {
		if err := dest.Send(f); err != nil {
			r.log.Debugf("relay: forward to %d failed: %v", f.Dest, err)
		}
	})
}

// FailLink sets M[s][d] = M[d][s] = false.
func (r *Relay) FailLink(s, d int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s < 0 || s >= r.n || d < 0 || d >= r.n {
		return
	}
	r.matrix[s][d] = false
	r.matrix[d][s] = false
}

// FixLink sets M[s][d] = M[d][s] = true.
func (r *Relay) FixLink(s, d int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s < 0 || s >= r.n || d < 0 || d >= r.n {
		return
	}
	r.matrix[s][d] = true
	r.matrix[d][s] = true
}

// FailNode forges a KILL frame to node n, bypassing the connectivity matrix
// (src = -1), then closes that peer's socket.
func (r *Relay) FailNode(n int) {
	r.mu.Lock()
	peer, ok := r.peers[n]
	r.mu.Unlock()
	if !ok {
		r.log.Warnf("relay: failNode %d: not connected", n)
		return
	}

	kill := wire.Frame{Header: wire.Kill, Src: wire.RelayNode, Dest: n}
	if err := peer.Send(kill); err != nil {
		r.log.Debugf("relay: failNode %d: send KILL failed: %v", n, err)
	}
	r.removePeer(n)
}

// Shutdown stops accepting connections and closes every peer socket.
func (r *Relay) Shutdown() {
	r.mu.Lock()
	r.closing = true
	peers := make([]*wire.Conn, 0, len(r.peers))
	for _, c := range r.peers {
		peers = append(peers, c)
	}
	r.peers = make(map[int]*wire.Conn)
	r.mu.Unlock()

	if r.listener != nil {
		r.listener.Close()
	}
	for _, c := range peers {
		c.Close()
	}
}
