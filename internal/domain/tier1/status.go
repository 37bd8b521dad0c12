package tier1

import "time"

// JobStatus is the read-side view of one batch with item/result counts.
type JobStatus struct {
	BatchID      string         `json:"batch_id"`
	Schema       string         `json:"schema"`
	Status       string         `json:"status"`
	Model        string         `json:"model,omitempty"`
	RequestCount int            `json:"request_count"`
	CreatedAt    time.Time      `json:"created_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	TotalItems   int            `json:"total_items"`
	OK           int            `json:"ok"`
	ParseError   int            `json:"parse_error"`
	Error        int            `json:"error"`
	Processed    int            `json:"processed"`
	Pending      int            `json:"pending"`
	IsTerminal   bool           `json:"is_terminal"`
}

// Finalize fills the derived counters.
func (j *JobStatus) Finalize() {
	j.Processed = j.OK + j.ParseError + j.Error
	j.Pending = j.TotalItems - j.Processed
	if j.Pending < 0 {
		j.Pending = 0
	}
	j.IsTerminal = IsTerminal(j.Status)
}

type StatusSummary struct {
	Jobs       int `json:"jobs"`
	Terminal   int `json:"terminal"`
	InFlight   int `json:"in_flight"`
	TotalItems int `json:"total_items"`
	Processed  int `json:"processed"`
	Pending    int `json:"pending"`
	OK         int `json:"ok"`
	ParseError int `json:"parse_error"`
	Error      int `json:"error"`
}

func Summarize(jobs []JobStatus) StatusSummary {
	var s StatusSummary
	for _, j := range jobs {
		s.Jobs++
		if j.IsTerminal {
			s.Terminal++
		} else {
			s.InFlight++
		}
		s.TotalItems += j.TotalItems
		s.Processed += j.Processed
		s.Pending += j.Pending
		s.OK += j.OK
		s.ParseError += j.ParseError
		s.Error += j.Error
	}
	return s
}
