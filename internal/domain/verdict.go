package domain

// Verdict is the Data Sanitizer outcome for one tick.
type Verdict string

const (
	VerdictAllow  Verdict = "ALLOW"
	VerdictSkip   Verdict = "SKIP"
	VerdictReject Verdict = "REJECT"
	VerdictFreeze Verdict = "FREEZE"
)

// SanitizeResult carries the verdict and the measurements behind it.
type SanitizeResult struct {
	Verdict   Verdict `json:"verdict"`
	Reason    Reason  `json:"reason,omitempty"`
	Detail    string  `json:"detail,omitempty"`
	LatencyMs float64 `json:"latency_ms"`
	SpreadBps float64 `json:"spread_bps"`
	AgeMs     float64 `json:"age_ms"`
}

// Encodable zeroes measurements that came out NaN or infinite.
func (r SanitizeResult) Encodable() SanitizeResult {
	for _, v := range []*float64{&r.LatencyMs, &r.SpreadBps, &r.AgeMs} {
		if !finite(*v) {
			*v = 0
		}
	}
	return r
}

// EngineState is the orchestration state machine.
type EngineState string

const (
	StateStopped EngineState = "STOPPED"
	StateRunning EngineState = "RUNNING"
	StateFrozen  EngineState = "FROZEN"
)
