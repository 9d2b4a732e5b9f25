// Package collection defines the structured result of a collection run.
package collection

// Result reports one collection attempt for one account. A failed run
// persists nothing and leaves the sync watermark untouched; the causes
// land in Errors instead of propagating.
type Result struct {
	AccountID       string   `json:"account_id"`
	Provider        string   `json:"provider,omitempty"`
	Success         bool     `json:"success"`
	RecordsObtained int      `json:"records_obtained"`
	RecordsSaved    int      `json:"records_saved"`
	DurationMS      int64    `json:"duration_ms"`
	Errors          []string `json:"errors,omitempty"`
}

// AddError appends a contained failure and marks the run unsuccessful.
func (r *Result) AddError(msg string) {
	r.Success = false
	r.Errors = append(r.Errors, msg)
}
