package harness

// TraceEvent is one journaled service call.
type TraceEvent struct {
	Seq      int64  `json:"seq"`
	Op       string `json:"op"`
	Name     string `json:"name,omitempty"`
	Instance string `json:"instance,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Stream is everything the service wrote to its output.
	Stream string `json:"stream"`

	// Lines are the status lines after the preamble, without the leading
	// comma.
	Lines []string `json:"lines"`

	// Trace is the journaled call sequence.
	Trace []TraceEvent `json:"trace"`

	// Spawned lists the generators the service asked to start.
	Spawned []string `json:"spawned,omitempty"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{Pass: true, Lines: []string{}, Trace: []TraceEvent{}, Errors: []string{}}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
