package models

// Outcome is what happened to one source in one dispatch batch.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeTimeout Outcome = "timeout"
	OutcomeError   Outcome = "error"
	OutcomeInvalid Outcome = "invalid"
)

// SourceResponse is the result of one dispatch attempt against one source.
type SourceResponse struct {
	SourceID  string  `json:"source_id"`
	Text      string  `json:"text,omitempty"`
	Err       string  `json:"error,omitempty"`
	Outcome   Outcome `json:"outcome"`
	ElapsedMs int64   `json:"elapsed_ms"`
}

// DispatchReport lists, per outcome, the sources of one batch in declared order.
type DispatchReport struct {
	Valid     []string         `json:"valid"`
	TimedOut  []string         `json:"timed_out"`
	Errored   []string         `json:"errored"`
	Invalid   []string         `json:"invalid"`
	ElapsedMs map[string]int64 `json:"elapsed_ms,omitempty"`
}

// Record files sourceID under outcome.
func (r *DispatchReport) Record(sourceID string, outcome Outcome, elapsedMs int64) {
	switch outcome {
	case OutcomeOK:
		r.Valid = append(r.Valid, sourceID)
	case OutcomeTimeout:
		r.TimedOut = append(r.TimedOut, sourceID)
	case OutcomeError:
		r.Errored = append(r.Errored, sourceID)
	case OutcomeInvalid:
		r.Invalid = append(r.Invalid, sourceID)
	}
	if r.ElapsedMs == nil {
		r.ElapsedMs = make(map[string]int64)
	}
	r.ElapsedMs[sourceID] = elapsedMs
}

// SubqueryResult is the outcome of the simple path for one (sub)query.
type SubqueryResult struct {
	Subquery
	Sources []string       `json:"sources"`
	Answer  string         `json:"answer"`
	Cached  bool           `json:"cached"`
	Report  DispatchReport `json:"report"`
}

// QueryResponse is returned for every submitted query.
type QueryResponse struct {
	RequestID      string           `json:"request_id"`
	Query          string           `json:"query"`
	Classification Classification   `json:"classification"`
	Answer         string           `json:"answer"`
	Cached         bool             `json:"cached"`
	Subqueries     []SubqueryResult `json:"subqueries"`
	QueryTime      int64            `json:"query_time_ms"`
}
