package wasminterp

// Result is the two-valued status every fallible boundary operation reports.
// Failure detail travels separately, through the diagnostics sink or an
// execution result's message.
type Result uint8

const (
	ResultOk Result = iota
	ResultError
)

func (r Result) String() string {
	if r == ResultOk {
		return "ok"
	}
	return "error"
}

// Ok reports whether r is ResultOk.
func (r Result) Ok() bool {
	return r == ResultOk
}
