package forensic1394

import "time"

// requestTimeout is the per-completion wait before a batch aborts with
// IOTimeout. Targets that stop responding mid-acquisition must not wedge
// the caller indefinitely.
const requestTimeout = 150 * time.Millisecond

// Request is a single physically-addressed operation: a device address,
// a length, and a caller-owned buffer. It is used both for single-shot
// and vectored reads/writes and is only borrowed for the duration of
// the call — the library never retains a Request's Buffer afterward.
type Request struct {
	Address uint64
	Length  int
	Buffer  []byte
}

// runBatch is the pipelining engine spec.md §4.4 describes: it submits
// greedily while fewer than the backend's pipeline depth are in flight,
// waits for exactly one completion, applies it, and repeats until every
// request has completed or the batch aborts. Each backend call submits
// or reports a single request; all pipelining decisions live here so
// they are shared by every platform backend instead of being
// reimplemented per backend.
//
// On success every Buffer in reqs has been filled (for reads) or
// accepted (for writes); on abort, Buffers for requests that had not
// yet completed are left untouched and the caller must treat their
// address range as indeterminate.
func runBatch(d *Device, reqs []Request, dir direction) Result {
	if !d.isOpen {
		panic("forensic1394: request on unopened Device")
	}
	if len(reqs) == 0 {
		return Success
	}

	ops := make([]wireOp, len(reqs))
	for i, r := range reqs {
		if r.Length > d.maxRequest {
			return IOSize
		}
		ops[i] = wireOp{address: r.Address, data: r.Buffer[:r.Length], direction: dir}
	}

	backend := d.bus.backend
	depth := backend.pipelineDepth(d, dir)
	if depth < 1 {
		depth = 1
	}

	submit := func(i int) Result {
		if err := backend.submitRequest(d, ops[i], i); err != nil {
			return IOError
		}
		return Success
	}

	next := 0
	inFlight := 0
	for next < len(ops) && inFlight < depth {
		if res := submit(next); res != Success {
			return res
		}
		next++
		inFlight++
	}

	for inFlight > 0 {
		c, res := backend.awaitCompletion(d, requestTimeout)
		if res != Success {
			return res
		}
		inFlight--

		if c.timedOut {
			return IOTimeout
		}
		switch c.rcode {
		case rcodeComplete:
			if dir == dirRead {
				if c.length != reqs[c.closure].Length {
					return IOError
				}
				copy(reqs[c.closure].Buffer, c.data)
			}
		case rcodeBusy:
			return Busy
		case rcodeGeneration:
			return BusReset
		default:
			return IOError
		}

		if next < len(ops) {
			if res := submit(next); res != Success {
				return res
			}
			next++
			inFlight++
		}
	}
	return Success
}
