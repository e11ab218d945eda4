package forensic1394

import "fmt"

// Result is the closed set of non-positive status codes returned by
// operations that can fail at the platform or transport level. Zero is
// success; the remaining values are negative so an out-parameter that
// otherwise carries a non-negative count (see Bus.Enumerate) can carry
// either the count or an error in the same machine word.
type Result int

const (
	Success Result = 0
	// OtherError is an unclassified platform failure.
	OtherError Result = -1
	// BusReset means the bus generation changed mid-transaction; every
	// Device handle on the affected Bus is now invalid.
	BusReset Result = -2
	// NoPerm means at least one FireWire node was not accessible due to
	// permissions, and (per Bus.Enumerate's contract) zero devices were
	// enumerated as a result.
	NoPerm Result = -3
	// Busy means the target node reported the transaction as busy.
	Busy Result = -4
	// IOError is a generic transport error.
	IOError Result = -5
	// IOSize means the request size was rejected by the kernel or the
	// target (too large for the advertised or negotiated max request).
	IOSize Result = -6
	// IOTimeout means no completion arrived within the request timeout.
	IOTimeout Result = -7
)

var resultStrings = map[Result]string{
	Success:    "Success",
	OtherError: "Other error",
	BusReset:   "Bus reset",
	NoPerm:     "Permission denied",
	Busy:       "Busy",
	IOError:    "Input/output error",
	IOSize:     "Invalid request size",
	IOTimeout:  "Timed out",
}

// String returns a human-readable description of r, or "" if r is not
// one of the named Result constants.
func (r Result) String() string {
	return resultStrings[r]
}

// Error lets Result satisfy the error interface so it can be returned
// directly where Go idiom expects an error rather than a bare code.
// Success.Error() is never called in practice: callers check the
// Result before treating it as an error.
func (r Result) Error() string {
	if s, ok := resultStrings[r]; ok {
		return s
	}
	return fmt.Sprintf("forensic1394: unknown result %d", int(r))
}
