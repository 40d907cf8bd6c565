package consensus

import "github.com/jabolina/contextd/internal/wire"

// Transport is the engine's only way to talk to other nodes. A node's
// implementation sends frames through its single relay connection; tests can
// substitute an in-memory fake that wires several engines directly together.
type Transport interface {
	// Send delivers f to the peer with node id dest. Errors are logged by
	// the caller and never block the consensus loop indefinitely.
	Send(dest int, f wire.Frame) error
}

// broadcast sends f to every node in [0, n) other than self, tagging Src.
// Each send is spawned through the engine's Runner so one slow or
// unreachable peer can never hold up delivery to the others.
func (e *Engine) broadcast(f wire.Frame) {
	f.Src = e.selfID
	for peer := 0; peer < e.n; peer++ {
		if peer == e.selfID {
			continue
		}
		target := f
		target.Dest = peer
		e.runner.Spawn(func() {
			if err := e.transport.Send(target.Dest, target); err != nil {
				e.log.Debugf("consensus: broadcast to %d failed: %v", target.Dest, err)
			}
		})
	}
}

func (e *Engine) send(dest int, f wire.Frame) {
	f.Src = e.selfID
	f.Dest = dest
	if err := e.transport.Send(dest, f); err != nil {
		e.log.Debugf("consensus: send to %d failed: %v", dest, err)
	}
}
