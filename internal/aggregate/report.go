package aggregate

import "time"

// OutcomeStatus tags the result of aggregating one URL.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// Outcome is the result for one URL hash in a pass. Reason is set for
// skipped URLs, whose ratings stay unprocessed for the next pass.
type Outcome struct {
	URLHash    string        `json:"url_hash"`
	Status     OutcomeStatus `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	Domain     string        `json:"domain,omitempty"`
	Ratings    int           `json:"ratings,omitempty"`
	FinalScore float64       `json:"final_score,omitempty"`
}

// BatchReport summarizes one aggregation pass.
type BatchReport struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcomes   []Outcome `json:"outcomes,omitempty"`
	Processed  int       `json:"processed"`
	Skipped    int       `json:"skipped"`
	// Marked is the number of ratings flipped to processed.
	Marked    int  `json:"marked"`
	Cancelled bool `json:"cancelled,omitempty"`
}

// ProcessedCount returns the number of URLs scored and persisted.
func (r *BatchReport) ProcessedCount() int {
	if r == nil {
		return 0
	}
	return r.Processed
}

// SkipRate is the share of attempted URLs that were skipped.
func (r *BatchReport) SkipRate() float64 {
	if r == nil || r.Processed+r.Skipped == 0 {
		return 0
	}
	return float64(r.Skipped) / float64(r.Processed+r.Skipped)
}

// Duration is the wall time of the pass.
func (r *BatchReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *BatchReport) tally() {
	r.Processed, r.Skipped = 0, 0
	for _, o := range r.Outcomes {
		if o.Status == OutcomeSuccess {
			r.Processed++
		} else {
			r.Skipped++
		}
	}
}
