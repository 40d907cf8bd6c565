package relay

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/jabolina/contextd/internal/logging"
	"github.com/jabolina/contextd/internal/wire"
	"github.com/stretchr/testify/require"
)

// startTestRelay starts a real Relay listening on basePort for n nodes and
// arranges for it to be torn down at the end of the test. Each test uses a
// distinct basePort so closed client sockets from one test never collide
// with a fresh bind in the next.
func startTestRelay(t *testing.T, basePort, n int) *Relay {
	t.Helper()
	log := logging.New("relay-test")
	r := New(basePort, n, log)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = r.Listen(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		r.Shutdown()
	})
	time.Sleep(50 * time.Millisecond)
	return r
}

// dialNode opens a real TCP connection to the relay at basePort, binding
// locally to basePort+1+id so the relay recovers id from the source port,
// the same way a production node dials in.
func dialNode(t *testing.T, basePort, id int) *wire.Conn {
	t.Helper()
	localAddr := &net.TCPAddr{Port: basePort + 1 + id}
	dialer := net.Dialer{LocalAddr: localAddr, Timeout: 2 * time.Second}
	nc, err := dialer.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", basePort))
	require.NoError(t, err)
	conn := wire.NewConn(nc)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRelay_RejectsInvalidSourcePort(t *testing.T) {
	const basePort = 29010
	startTestRelay(t, basePort, 3)

	// A source port well outside [basePort+1, basePort+3] maps to no valid
	// node id; the relay must reject and close the connection.
	localAddr := &net.TCPAddr{Port: basePort + 1000}
	dialer := net.Dialer{LocalAddr: localAddr, Timeout: 2 * time.Second}
	nc, err := dialer.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", basePort))
	require.NoError(t, err)
	defer nc.Close()

	conn := wire.NewConn(nc)
	_, err = conn.Recv()
	require.Error(t, err, "relay must close a connection whose source port doesn't map to a valid node id")
}

func TestRelay_ForwardsFrameWhenLinkUp(t *testing.T) {
	const basePort = 29020
	startTestRelay(t, basePort, 3)

	c0 := dialNode(t, basePort, 0)
	c1 := dialNode(t, basePort, 1)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, c0.Send(wire.Frame{Header: wire.Ack, Src: 0, Dest: 1}))

	received := make(chan wire.Frame, 1)
	go func() {
		f, err := c1.Recv()
		if err == nil {
			received <- f
		}
	}()

	select {
	case f := <-received:
		require.Equal(t, wire.Ack, f.Header)
	case <-time.After(ForwardDelay + 2*time.Second):
		t.Fatal("frame never delivered across an up link")
	}
}

func TestRelay_FailLinkDropsFrame(t *testing.T) {
	const basePort = 29030
	r := startTestRelay(t, basePort, 3)

	c0 := dialNode(t, basePort, 0)
	c1 := dialNode(t, basePort, 1)
	time.Sleep(50 * time.Millisecond)

	r.FailLink(0, 1)
	require.NoError(t, c0.Send(wire.Frame{Header: wire.Ack, Src: 0, Dest: 1}))

	received := make(chan struct{})
	go func() {
		_, _ = c1.Recv()
		close(received)
	}()

	select {
	case <-received:
		t.Fatal("frame delivered across a failed link")
	case <-time.After(ForwardDelay + 1*time.Second):
	}
}

func TestRelay_FixLinkRestoresDelivery(t *testing.T) {
	const basePort = 29040
	r := startTestRelay(t, basePort, 3)

	c0 := dialNode(t, basePort, 0)
	c1 := dialNode(t, basePort, 1)
	time.Sleep(50 * time.Millisecond)

	r.FailLink(0, 1)
	r.FixLink(0, 1)

	require.NoError(t, c0.Send(wire.Frame{Header: wire.Ack, Src: 0, Dest: 1}))

	received := make(chan wire.Frame, 1)
	go func() {
		f, err := c1.Recv()
		if err == nil {
			received <- f
		}
	}()

	select {
	case f := <-received:
		require.Equal(t, wire.Ack, f.Header)
	case <-time.After(ForwardDelay + 2*time.Second):
		t.Fatal("frame never delivered after fixing the link")
	}
}

func TestRelay_FailNodeSendsKillAndClosesSocket(t *testing.T) {
	const basePort = 29050
	r := startTestRelay(t, basePort, 3)

	c2 := dialNode(t, basePort, 2)
	time.Sleep(50 * time.Millisecond)

	r.FailNode(2)

	f, err := c2.Recv()
	require.NoError(t, err)
	require.Equal(t, wire.Kill, f.Header)
	require.Equal(t, wire.RelayNode, f.Src)
	require.Equal(t, 2, f.Dest)

	_, err = c2.Recv()
	require.Error(t, err, "relay must close the peer socket right after sending KILL")
}

func TestRelay_FailNodeBypassesConnectivityMatrix(t *testing.T) {
	const basePort = 29060
	r := startTestRelay(t, basePort, 3)

	c1 := dialNode(t, basePort, 1)
	time.Sleep(50 * time.Millisecond)

	// Partition node 1 from every other node before killing it: FailNode
	// forges its KILL frame with src=-1, which bypasses the connectivity
	// matrix check entirely, so a partitioned node can still be killed.
	r.FailLink(0, 1)
	r.FailLink(1, 2)

	r.FailNode(1)

	f, err := c1.Recv()
	require.NoError(t, err)
	require.Equal(t, wire.Kill, f.Header)
}
