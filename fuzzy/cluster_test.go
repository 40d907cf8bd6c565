// Package fuzzy end-to-end exercises a real relay plus real node processes
// talking over actual TCP sockets: after a sequence of commands, every
// node's context store agrees.
package fuzzy

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jabolina/contextd/internal/generator"
	"github.com/jabolina/contextd/internal/logging"
	"github.com/jabolina/contextd/internal/node"
	"github.com/jabolina/contextd/internal/relay"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const testBasePort = 27510

func startCluster(t *testing.T, n int) (*relay.Relay, []*node.Node) {
	log := logging.New("fuzzy")
	r := relay.New(testBasePort, n, log)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = r.Listen(ctx)
	}()
	t.Cleanup(cancel)
	time.Sleep(50 * time.Millisecond)

	nodes := make([]*node.Node, n)
	for i := 0; i < n; i++ {
		nd, err := node.Dial(i, n, "127.0.0.1", testBasePort, generator.NullGenerator{}, log.With(logging.Fields{"node": i}))
		require.NoError(t, err)
		nodes[i] = nd
	}
	return r, nodes
}

func stopCluster(r *relay.Relay, nodes []*node.Node) {
	for _, nd := range nodes {
		nd.Shutdown()
	}
	for _, nd := range nodes {
		nd.Wait()
	}
	r.Shutdown()
}

// Test_SequentialCommands drives a create/query sequence through one node
// and checks that every node's context store converges on the same text.
func Test_SequentialCommands(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)

	r, nodes := startCluster(t, 3)
	defer stopCluster(r, nodes)

	// Every Eventually below budgets for relay.ForwardDelay (>=3s) on each of
	// the up to four hops a first decision needs (election's PROPOSE/PROMISE
	// round trip, then the accept phase's ACCEPT/ACCEPTED round trip).
	nodes[0].Enqueue("create 1")
	require.Eventually(t, func() bool {
		text, ok := nodes[0].Applier().Store().Get(1)
		return ok && text == ""
	}, 20*time.Second, 50*time.Millisecond)

	nodes[1].Enqueue("query 1 what is the answer")
	require.Eventually(t, func() bool {
		text, ok := nodes[1].Applier().Store().Get(1)
		return ok && text != ""
	}, 20*time.Second, 50*time.Millisecond)

	for i, nd := range nodes {
		require.Eventuallyf(t, func() bool {
			text, ok := nd.Applier().Store().Get(1)
			return ok && text != ""
		}, 20*time.Second, 50*time.Millisecond, "node %d never converged", i)
	}

	first, _ := nodes[0].Applier().Store().Get(1)
	for i, nd := range nodes {
		text, _ := nd.Applier().Store().Get(1)
		require.Equal(t, first, text, fmt.Sprintf("node %d diverged from node 0", i))
	}
}

// Test_ConcurrentCommands issues create requests against every node
// concurrently and checks that each node eventually holds the context it
// issued.
func Test_ConcurrentCommands(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)

	r, nodes := startCluster(t, 3)
	defer stopCluster(r, nodes)

	for i, nd := range nodes {
		nd.Enqueue(fmt.Sprintf("create %d", 10+i))
	}

	for i, nd := range nodes {
		id := 10 + i
		require.Eventuallyf(t, func() bool {
			_, ok := nd.Applier().Store().Get(id)
			return ok
		}, 20*time.Second, 50*time.Millisecond, "context %d never created locally on node %d", id, i)
	}
}
