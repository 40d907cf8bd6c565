package node

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// RunCLI reads operator commands from in, one per line, until EOF or an
// "exit" line: create, query, choose, view, viewall, exit. Output is
// written to out (typically os.Stdout).
func (nd *Node) RunCLI(in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)

		switch fields[0] {
		case "create", "query":
			nd.Enqueue(line)

		case "choose":
			nd.handleChoose(fields, out)

		case "view":
			nd.handleView(fields, out)

		case "viewall":
			nd.handleViewAll(out)

		case "exit":
			return

		default:
			nd.log.Warnf("node %d: unknown command %q", nd.ID, line)
		}
	}
}

// handleChoose implements the client-side substitution: `choose <id>
// <server_id>` is rewritten to `choose <id> <text>` using the collected
// response buffer, which is then cleared for that context.
func (nd *Node) handleChoose(fields []string, out io.Writer) {
	if len(fields) != 3 {
		nd.log.Warnf("node %d: malformed choose command", nd.ID)
		return
	}
	id, err1 := strconv.Atoi(fields[1])
	serverID, err2 := strconv.Atoi(fields[2])
	if err1 != nil || err2 != nil {
		nd.log.Warnf("node %d: malformed choose command", nd.ID)
		return
	}

	text, ok := nd.applier.Responses().Lookup(id, serverID)
	if !ok {
		fmt.Fprintf(out, "no collected response for context %d from server %d\n", id, serverID)
		return
	}
	nd.applier.Responses().Clear(id)

	nd.Enqueue(fmt.Sprintf("choose %d %s", id, text))
}

func (nd *Node) handleView(fields []string, out io.Writer) {
	if len(fields) != 2 {
		nd.log.Warnf("node %d: malformed view command", nd.ID)
		return
	}
	id, err := strconv.Atoi(fields[1])
	if err != nil {
		nd.log.Warnf("node %d: malformed view command", nd.ID)
		return
	}
	text, ok := nd.applier.Store().Get(id)
	if !ok {
		return
	}
	fmt.Fprintln(out, text)
}

func (nd *Node) handleViewAll(out io.Writer) {
	for id, text := range nd.applier.Store().Snapshot() {
		fmt.Fprintf(out, "%d: %s\n", id, text)
	}
}
