package port

import "slices"

// reservation is the outcome of one group-allocation attempt: the reserved
// ports, or a non-empty reason why the attempt failed.
type reservation struct {
	ports  []int
	reason failReason
}

// failReason explains why a group-allocation attempt failed. The empty
// reason means the attempt succeeded.
type failReason string

const (
	reasonNoRoom        failReason = "limit reached"
	reasonProbeFailed   failReason = "probe failed"
	reasonGap           failReason = "candidate not adjacent"
	reasonHeld          failReason = "candidate already held"
	reasonExcluded      failReason = "candidate excluded"
	reasonNotContiguous failReason = "candidates not contiguous"
)

// reserve makes one attempt at reserving total contiguous ports starting the
// search at the cursor, and moves the cursor for the next attempt. Callers
// must hold p.mu.
//
// The first candidate is whatever port the probe confirms for the cursor
// (the OS picks one when the cursor is 0). Every further candidate must be
// confirmed at exactly previous+1. Nothing is added to the held set unless
// the whole run checks out.
func (p *Pool) reserve(total int) reservation {
	ports, reason := p.collect(total)
	if reason != "" {
		// Step past the cursor so the next attempt probes a different port.
		// Stepping past 65535 wraps to 0, which hands the choice to the OS
		// and keeps the cursor inside the port range.
		p.next = wrapPort(p.next + 1)
		return reservation{reason: reason}
	}

	for _, port := range ports {
		p.held[port] = struct{}{}
	}
	// Continue after the highest reserved port. collect returns the run
	// sorted, so that is the last element. A run ending at 65535 wraps the
	// cursor to 0 in the same way as a failed attempt does.
	p.next = wrapPort(ports[len(ports)-1] + 1)
	return reservation{ports: ports}
}

func (p *Pool) collect(total int) ([]int, failReason) {
	if len(p.held)+total > p.limit {
		return nil, reasonNoRoom
	}

	ports := make([]int, 0, total)
	want := p.next
	for i := 0; i < total; i++ {
		// The first candidate may be anything the probe confirms (the OS
		// chooses when want is 0). Every later candidate has to land on
		// exactly the port after the previous one, otherwise the run has a
		// hole and the whole attempt is abandoned.
		if i > 0 {
			want = ports[i-1] + 1
			if want > maxPort {
				return nil, reasonGap
			}
		}

		got, err := p.scanner.Probe(want)
		if err != nil {
			p.logger.Debug().Err(err).Int("port", want).Msg("probe failed")
			return nil, reasonProbeFailed
		}
		if i > 0 && got != want {
			return nil, reasonGap
		}
		ports = append(ports, got)
	}

	// Nothing is reserved yet, so bailing out here leaves the held set
	// untouched.
	for _, port := range ports {
		if _, ok := p.held[port]; ok {
			return nil, reasonHeld
		}
		if _, ok := p.excluded[port]; ok {
			return nil, reasonExcluded
		}
	}

	if !isContiguous(ports) {
		return nil, reasonNotContiguous
	}

	slices.Sort(ports)
	// An empty reason is what reserve treats as success.
	return ports, ""
}

// isContiguous reports whether ports is exactly the run min, min+1, ...,
// min+n-1 in some order: the ports must be distinct and satisfy
// sum(p) - n*min == n(n-1)/2.
func isContiguous(ports []int) bool {
	n := len(ports)
	if n == 0 {
		return false
	}

	lowest := slices.Min(ports)
	sum := 0
	seen := make(map[int]struct{}, n)
	for _, port := range ports {
		if _, dup := seen[port]; dup {
			return false
		}
		seen[port] = struct{}{}
		sum += port
	}
	return sum-n*lowest == n*(n-1)/2
}
