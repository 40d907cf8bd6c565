package consensus

import "github.com/jabolina/contextd/internal/wire"

// HandleFrame dispatches one received frame to the acceptor/learner/ack-
// receiver logic. It is called from a per-frame handler task spawned by the
// node's listener: multiple HandleFrame calls may run concurrently with
// each other and with the proposer loop.
func (e *Engine) HandleFrame(f wire.Frame) {
	switch f.Header {
	case wire.Propose:
		e.handlePropose(f)
	case wire.Promise:
		e.handleVote(f, roundPromising)
	case wire.Accept:
		e.handleAccept(f)
	case wire.Accepted:
		e.handleVote(f, roundAccepting)
	case wire.Decide:
		e.handleDecide(f)
	case wire.Forward:
		e.handleForward(f)
	case wire.Ack:
		e.handleAck(f)
	case wire.Response:
		e.handleResponse(f)
	case wire.Kill:
		e.log.Warnf("consensus: node %d received KILL", e.selfID)
		e.Shutdown()
	default:
		e.log.Warnf("consensus: node %d received unknown frame header %q", e.selfID, f.Header)
	}
}

// handlePropose is the acceptor side of leader election: reply PROMISE iff
// the ballot is not strictly less than promised_ballot.
func (e *Engine) handlePropose(f wire.Frame) {
	e.mu.Lock()
	grant := f.Ballot.GreaterOrEqual(e.promisedBallot)
	if grant {
		e.promisedBallot = f.Ballot
		e.leaderID = f.Src
	}
	e.mu.Unlock()

	if !grant {
		e.log.Debugf("consensus: node %d refused PROPOSE %s from %d", e.selfID, f.Ballot, f.Src)
		return
	}
	e.send(f.Src, wire.Frame{Header: wire.Promise, Ballot: f.Ballot})
}

// handleAccept is the acceptor side of the accept phase: reply ACCEPTED iff
// the ballot is not strictly less than promised_ballot.
func (e *Engine) handleAccept(f wire.Frame) {
	e.mu.Lock()
	grant := f.Ballot.GreaterOrEqual(e.promisedBallot)
	if grant {
		e.promisedBallot = f.Ballot
		e.leaderID = f.Src
	}
	e.mu.Unlock()

	if !grant {
		e.log.Debugf("consensus: node %d refused ACCEPT %s from %d", e.selfID, f.Ballot, f.Src)
		return
	}
	e.send(f.Src, wire.Frame{Header: wire.Accepted, Ballot: f.Ballot})
}

// handleVote counts a PROMISE or ACCEPTED reply against the currently
// active round, ignoring it if it doesn't match the round's kind and
// ballot: a stale reply from an earlier round must not be miscounted into a
// new one.
func (e *Engine) handleVote(f wire.Frame, kind roundKind) {
	e.mu.Lock()
	if e.roundKind == kind && f.Ballot.Equal(e.roundBallot) {
		e.roundCount++
		e.roundCond.Broadcast()
	}
	e.mu.Unlock()
}

// handleDecide applies the decided command locally as a non-leader and
// merges the sender's context snapshot.
func (e *Engine) handleDecide(f wire.Frame) {
	outcome := e.applier.Apply(e.ctx, f.Message, false, f.Src)
	e.applier.Store().Merge(f.Contexts)

	if outcome.SendResponse {
		e.send(f.Src, wire.Frame{
			Header:    wire.Response,
			ContextID: outcome.ContextID,
			Message:   outcome.ResponseText,
		})
	}
}

// handleForward enqueues the forwarded command into the local pending queue
// if this node believes itself leader, then ACKs. If leadership has been
// lost (leaderID == -1), the request is silently forfeited: the forwarder's
// own 10s timeout will trigger a re-election.
func (e *Engine) handleForward(f wire.Frame) {
	if !e.isLeader() {
		e.log.Debugf("consensus: node %d dropped FORWARD from %d, not leader", e.selfID, f.Src)
		return
	}
	e.queue.Push(f.Message)
	e.send(f.Src, wire.Frame{Header: wire.Ack})
}

func (e *Engine) handleAck(f wire.Frame) {
	e.mu.Lock()
	if e.roundKind == roundForwarding {
		e.roundCount = e.roundNeeded
		e.roundCond.Broadcast()
	}
	e.mu.Unlock()
}

func (e *Engine) handleResponse(f wire.Frame) {
	e.applier.RecordRemoteResponse(f.ContextID, f.Src, f.Message)
}
