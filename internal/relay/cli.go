package relay

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/jabolina/contextd/internal/logging"
)

// RunCLI reads operator commands from in, one per line, until EOF or an
// "exit" line: failLink, fixLink, failNode, exit. Unknown or ill-formed
// lines are logged and ignored. It returns true if the operator issued
// "exit".
func (r *Relay) RunCLI(in io.Reader, log logging.Logger) (exited bool) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)

		switch fields[0] {
		case "failLink":
			s, d, ok := parsePair(fields)
			if !ok {
				log.Warnf("relay: malformed failLink command %q", line)
				continue
			}
			r.FailLink(s, d)

		case "fixLink":
			s, d, ok := parsePair(fields)
			if !ok {
				log.Warnf("relay: malformed fixLink command %q", line)
				continue
			}
			r.FixLink(s, d)

		case "failNode":
			if len(fields) != 2 {
				log.Warnf("relay: malformed failNode command %q", line)
				continue
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				log.Warnf("relay: malformed failNode command %q", line)
				continue
			}
			r.FailNode(n)

		case "exit":
			return true

		default:
			log.Warnf("relay: unknown command %q", line)
		}
	}
	return false
}

func parsePair(fields []string) (int, int, bool) {
	if len(fields) != 3 {
		return 0, 0, false
	}
	s, err1 := strconv.Atoi(fields[1])
	d, err2 := strconv.Atoi(fields[2])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return s, d, true
}
