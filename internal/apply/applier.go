package apply

import (
	"context"
	"sync"

	ctxstore "github.com/jabolina/contextd/internal/context"
	"github.com/jabolina/contextd/internal/generator"
	"github.com/jabolina/contextd/internal/logging"
)

// Outcome describes the side effect a caller (the consensus engine) must
// perform after Apply returns: whether to send a RESPONSE frame back to the
// decision's source node, and with what payload.
type Outcome struct {
	SendResponse bool
	ContextID    int
	ResponseText string
}

// Applier applies decided log entries to the local context store: Apply
// mutates the Store and returns an Outcome describing any follow-up the
// caller owes the network, keeping "commit to the store" separate from
// "compute the network reply".
type Applier struct {
	store     *ctxstore.Store
	gen       generator.Generator
	responses *Responses
	log       logging.Logger
	selfID    int

	mu       sync.Mutex
	nextSlot int // highest applied slot + 1; derives the proposer's next ballot op
}

// New creates an Applier for selfID, backed by store, gen and responses.
func New(selfID int, store *ctxstore.Store, gen generator.Generator, responses *Responses, log logging.Logger) *Applier {
	return &Applier{store: store, gen: gen, responses: responses, log: log, selfID: selfID}
}

// NextOp returns the op component a proposer should use for its next
// ballot: the highest applied slot + 1, derived under the same lock that guards
// slot consumption, not read racily off a separately maintained counter.
func (a *Applier) NextOp() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nextSlot
}

// Apply applies the decided command string for the given decision source
// node (the node whose PROPOSE/ACCEPT drove this decision) as isLeader
// indicates. It always consumes the slot -- a parse failure or a store
// precondition failure still advances NextOp.
func (a *Applier) Apply(ctx context.Context, command string, isLeader bool, decisionSrc int) Outcome {
	defer a.advanceSlot()

	cmd, err := Parse(command)
	if err != nil {
		a.log.Warnf("apply: dropping malformed command %q: %v", command, err)
		return Outcome{}
	}

	switch cmd.Kind {
	case Create:
		if !a.store.Create(cmd.ContextID) {
			a.log.Warnf("apply: create %d rejected, context already exists", cmd.ContextID)
		}
		return Outcome{}

	case Query:
		return a.applyQuery(ctx, cmd, isLeader, decisionSrc)

	case Choose:
		if !a.store.AppendAnswer(cmd.ContextID, cmd.Text) {
			a.log.Warnf("apply: choose on missing context %d", cmd.ContextID)
		} else {
			a.responses.Clear(cmd.ContextID)
		}
		return Outcome{}

	default:
		return Outcome{}
	}
}

func (a *Applier) applyQuery(ctx context.Context, cmd Command, isLeader bool, decisionSrc int) Outcome {
	if !a.store.AppendQuery(cmd.ContextID, cmd.Text) {
		a.log.Warnf("apply: query on missing context %d", cmd.ContextID)
		return Outcome{}
	}

	// Snapshot under the store's own lock (AppendQuery already released it),
	// then call the generator with no store lock held. The answer goes to the
	// collected-responses buffer, not into the store.
	prompt, ok := a.store.Get(cmd.ContextID)
	if !ok {
		return Outcome{}
	}
	prompt += "\nAnswer: "

	answer, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		a.log.Errorf("apply: generator failed for context %d: %v", cmd.ContextID, err)
		// Query slot applied without appending an answer locally; the log
		// still advances (handled by the deferred advanceSlot).
		return Outcome{}
	}

	a.responses.Record(cmd.ContextID, a.selfID, answer)

	if !isLeader {
		return Outcome{SendResponse: true, ContextID: cmd.ContextID, ResponseText: answer}
	}
	return Outcome{}
}

func (a *Applier) advanceSlot() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextSlot++
}

// RecordRemoteResponse stores a RESPONSE frame's payload under serverID,
// called by the consensus engine when a RESPONSE frame arrives from a peer.
func (a *Applier) RecordRemoteResponse(contextID, serverID int, text string) {
	a.responses.Record(contextID, serverID, text)
}

// Responses exposes the collected-responses buffer for the CLI layer's
// `choose <id> <server_id>` substitution.
func (a *Applier) Responses() *Responses {
	return a.responses
}

// Store exposes the context store for local, non-replicated reads (`view`,
// `viewall`).
func (a *Applier) Store() *ctxstore.Store {
	return a.store
}
