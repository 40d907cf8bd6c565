// Package consensus implements the per-node multi-decree leader-based
// consensus state machine: ballots, leader election, accept/decide rounds,
// forwarding, and timeouts. Quorum is majority-of-N, counted per round so a
// stale reply from an earlier round is never miscounted into the current
// one. Round state is reset just before broadcasting; the lock is not held
// across the broadcast, and replies are matched against the round's kind
// and ballot instead.
package consensus

import (
	"context"
	"sync"
	"time"

	"github.com/jabolina/contextd/internal/apply"
	"github.com/jabolina/contextd/internal/ingress"
	"github.com/jabolina/contextd/internal/logging"
	"github.com/jabolina/contextd/internal/wire"
)

// Default round timeouts. Tests may shrink these via the unexported timeout
// fields below to avoid real 10s waits.
const (
	defaultElectionTimeout = 10 * time.Second
	defaultAcceptTimeout   = 10 * time.Second
	defaultForwardTimeout  = 10 * time.Second
)

type roundKind int

const (
	roundNone roundKind = iota
	roundPromising
	roundAccepting
	roundForwarding
)

// Engine is the per-node consensus state machine. One Engine exists per
// node; it owns the pending queue, the applier, and the node's ballot/leader
// bookkeeping.
type Engine struct {
	selfID    int
	n         int
	majority  int // floor(N/2); the proposer's own vote brings the total to majority+1
	transport Transport
	queue     *ingress.Queue
	applier   *apply.Applier
	log       logging.Logger
	runner    Runner

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	seq            int
	promisedBallot wire.Ballot
	leaderID       int // -1 means unknown

	roundCond   *sync.Cond
	roundKind   roundKind
	roundBallot wire.Ballot
	roundCount  int
	roundNeeded int
	roundTimedOut bool

	backoff time.Duration // grows on repeated accept timeouts, reset on decide

	electionTimeout time.Duration
	acceptTimeout   time.Duration
	forwardTimeout  time.Duration
}

// New creates an Engine for selfID among n nodes.
func New(selfID, n int, transport Transport, queue *ingress.Queue, applier *apply.Applier, log logging.Logger, runner Runner) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		selfID:    selfID,
		n:         n,
		majority:  n / 2,
		transport: transport,
		queue:     queue,
		applier:   applier,
		log:       log,
		runner:    runner,
		ctx:       ctx,
		cancel:    cancel,
		leaderID:  -1,

		electionTimeout: defaultElectionTimeout,
		acceptTimeout:   defaultAcceptTimeout,
		forwardTimeout:  defaultForwardTimeout,
	}
	e.roundCond = sync.NewCond(&e.mu)
	return e
}

// Shutdown cancels the engine's context and unblocks the proposer loop.
func (e *Engine) Shutdown() {
	e.cancel()
	e.queue.Close()
	e.mu.Lock()
	e.roundTimedOut = true
	e.roundCond.Broadcast()
	e.mu.Unlock()
}

func (e *Engine) selfBallot() wire.Ballot {
	e.mu.Lock()
	seq := e.seq
	e.mu.Unlock()
	return wire.Ballot{Seq: seq, ID: e.selfID, Op: e.applier.NextOp()}
}

func (e *Engine) bumpSeq() {
	e.mu.Lock()
	e.seq++
	e.mu.Unlock()
}

func (e *Engine) isLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leaderID == e.selfID
}

func (e *Engine) leader() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leaderID
}

// Run is the proposer loop: it waits on the pending queue and drives each
// head command through election/forward/accept until it is decided or
// unrecoverably dropped.
func (e *Engine) Run() {
	for {
		if !e.queue.WaitNonEmpty() {
			return
		}
		cmd, ok := e.queue.Peek()
		if !ok {
			continue
		}

		select {
		case <-e.ctx.Done():
			return
		default:
		}

		switch leader := e.leader(); {
		case leader == -1:
			if e.runElection() {
				continue // next iteration sees leaderID == selfID
			}
			e.bumpSeq()
			e.queue.Pop()

		case leader != e.selfID:
			if e.forward(cmd.Text, leader) {
				e.queue.Pop()
				continue
			}
			if e.runElection() {
				continue
			}
			e.bumpSeq()
			e.queue.Pop()

		default: // leader == selfID
			if e.acceptPhase(cmd.Text) {
				e.queue.Pop()
				e.backoff = 0
				continue
			}
			// Accept timeout: the head command is retained and retried, but
			// back off growing delays instead of spinning tight against a
			// steadily unreachable quorum.
			e.sleepBackoff()
		}
	}
}

func (e *Engine) sleepBackoff() {
	if e.backoff == 0 {
		e.backoff = 50 * time.Millisecond
	} else if e.backoff < 2*time.Second {
		e.backoff *= 2
		if e.backoff > 2*time.Second {
			e.backoff = 2 * time.Second
		}
	}
	select {
	case <-time.After(e.backoff):
	case <-e.ctx.Done():
	}
}

// runElection runs a leader election: set promisedBallot to self's ballot,
// broadcast PROPOSE, wait up to 10s for a majority of PROMISE replies.
func (e *Engine) runElection() bool {
	ballot := e.selfBallot()

	e.mu.Lock()
	e.promisedBallot = ballot
	e.startRoundLocked(roundPromising, ballot, e.majority)
	e.mu.Unlock()

	e.broadcast(wire.Frame{Header: wire.Propose, Ballot: ballot})

	ok := e.waitRound(e.electionTimeout)
	if ok {
		e.mu.Lock()
		e.leaderID = e.selfID
		e.mu.Unlock()
		e.log.Infof("consensus: node %d won election with ballot %s", e.selfID, ballot)
	} else {
		e.log.Warnf("consensus: node %d election with ballot %s timed out", e.selfID, ballot)
	}
	return ok
}

// acceptPhase broadcasts ACCEPT, waits up to 10s for a majority of
// ACCEPTED, then applies and broadcasts DECIDE.
func (e *Engine) acceptPhase(command string) bool {
	ballot := e.selfBallot()

	e.mu.Lock()
	e.startRoundLocked(roundAccepting, ballot, e.majority)
	e.mu.Unlock()

	e.broadcast(wire.Frame{Header: wire.Accept, Ballot: ballot, Message: command})

	if !e.waitRound(e.acceptTimeout) {
		e.log.Warnf("consensus: node %d accept phase for ballot %s timed out", e.selfID, ballot)
		return false
	}

	e.decideAsLeader(ballot, command)
	return true
}

// decideAsLeader applies the decided command locally (is_leader=true) and
// broadcasts DECIDE with the post-apply context snapshot.
func (e *Engine) decideAsLeader(ballot wire.Ballot, command string) {
	outcome := e.applier.Apply(e.ctx, command, true, e.selfID)
	_ = outcome // the leader never owes itself a RESPONSE frame

	e.broadcast(wire.Frame{
		Header:   wire.Decide,
		Ballot:   ballot,
		Message:  command,
		Contexts: e.applier.Store().Snapshot(),
	})
}

// forward sends FORWARD to the believed leader and waits up to 10s for ACK.
func (e *Engine) forward(command string, leader int) bool {
	e.mu.Lock()
	e.startRoundLocked(roundForwarding, wire.Ballot{}, 1)
	e.mu.Unlock()

	e.send(leader, wire.Frame{Header: wire.Forward, Message: command})

	ok := e.waitRound(e.forwardTimeout)
	if !ok {
		e.log.Warnf("consensus: node %d forward to leader %d timed out", e.selfID, leader)
	}
	return ok
}

// startRoundLocked resets the round-vote state under e.mu. Callers release
// e.mu before broadcasting; replies are matched against
// roundBallot/roundKind so a stale reply from an earlier round never gets
// miscounted into a new one.
func (e *Engine) startRoundLocked(kind roundKind, ballot wire.Ballot, needed int) {
	e.roundKind = kind
	e.roundBallot = ballot
	e.roundCount = 0
	e.roundNeeded = needed
	e.roundTimedOut = false
}

// waitRound blocks until the active round reaches its vote threshold or the
// given duration elapses.
func (e *Engine) waitRound(timeout time.Duration) bool {
	timer := time.AfterFunc(timeout, func() {
		e.mu.Lock()
		e.roundTimedOut = true
		e.roundCond.Broadcast()
		e.mu.Unlock()
	})
	defer timer.Stop()

	e.mu.Lock()
	defer e.mu.Unlock()
	for e.roundCount < e.roundNeeded && !e.roundTimedOut {
		e.roundCond.Wait()
	}
	success := e.roundCount >= e.roundNeeded
	e.roundKind = roundNone
	return success
}
