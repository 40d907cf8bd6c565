package apply

import "sync"

// Responses is the collected-responses buffer: per context id, the mapping
// server_id -> generated text, populated as RESPONSE frames arrive and as
// the local node applies its own query. It is not part of replicated state,
// and is bounded by evicting a context's entries whenever that context's
// answer is chosen (Clear), since at that point the collected candidates
// are no longer useful.
type Responses struct {
	mu   sync.Mutex
	data map[int]map[int]string
}

// NewResponses creates an empty collected-responses buffer.
func NewResponses() *Responses {
	return &Responses{data: make(map[int]map[int]string)}
}

// Record stores the generated text produced by serverID for contextID.
func (r *Responses) Record(contextID, serverID int, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byServer, ok := r.data[contextID]
	if !ok {
		byServer = make(map[int]string)
		r.data[contextID] = byServer
	}
	byServer[serverID] = text
}

// Get returns a copy of the server_id -> text mapping collected so far for
// contextID.
func (r *Responses) Get(contextID int) map[int]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	byServer := r.data[contextID]
	out := make(map[int]string, len(byServer))
	for k, v := range byServer {
		out[k] = v
	}
	return out
}

// Lookup returns the single recorded text for (contextID, serverID), used by
// the node CLI when substituting a `choose <id> <server_id>` command into
// its chosen text before enqueueing.
func (r *Responses) Lookup(contextID, serverID int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byServer, ok := r.data[contextID]
	if !ok {
		return "", false
	}
	text, ok := byServer[serverID]
	return text, ok
}

// Clear evicts all collected candidates for contextID, called once the
// operator has chosen one of them.
func (r *Responses) Clear(contextID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, contextID)
}
