// internal/domain/entity/job_record.go
package entity

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a flexible search job.
//
//	pending ──► processing ──► completed
//	   │            │  ▲
//	   │            └──┘ (one patch per batch)
//	   └────────────┴──────► failed
//
// completed and failed are terminal.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

var validTransitions = map[JobStatus][]JobStatus{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusProcessing, StatusCompleted, StatusFailed},
}

// ParseJobStatus converts a raw string to a JobStatus
func ParseJobStatus(s string) (JobStatus, error) {
	st := JobStatus(s)
	switch st {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// IsTerminal reports whether no further mutation is accepted
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsTransitionAllowed returns true when moving from → to is permitted
func IsTransitionAllowed(from, to JobStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Progress is the user-visible advancement of a run
type Progress struct {
	Total                  int `json:"total" bson:"total"`
	Checked                int `json:"checked" bson:"checked"`
	Percentage             int `json:"percentage" bson:"percentage"`
	EstimatedTimeRemaining int `json:"estimatedTimeRemaining" bson:"estimatedTimeRemaining"`
}

// Statistics summarises a finished run. Dates are empty when nothing was found.
type Statistics struct {
	CheapestDate      string  `json:"cheapestDate" bson:"cheapestDate"`
	MostExpensiveDate string  `json:"mostExpensiveDate" bson:"mostExpensiveDate"`
	AveragePrice      float64 `json:"averagePrice" bson:"averagePrice"`
	TotalOptionsFound int     `json:"totalOptionsFound" bson:"totalOptionsFound"`
}

// Results is a snapshot of the aggregation. Statistics is nil until the run is finalized.
type Results struct {
	TopResults    []FareQuote        `json:"topResults" bson:"topResults"`
	PriceCalendar map[string]float64 `json:"priceCalendar" bson:"priceCalendar"`
	Statistics    *Statistics        `json:"statistics,omitempty" bson:"statistics,omitempty"`
}

// EmptyResults returns a results snapshot with non-nil collections
func EmptyResults() Results {
	return Results{
		TopResults:    []FareQuote{},
		PriceCalendar: map[string]float64{},
	}
}

// JobRecord is the durable state of one flexible search
type JobRecord struct {
	JobID     string        `json:"jobId" bson:"jobId"`
	UserID    string        `json:"userId" bson:"userId"`
	Request   SearchRequest `json:"request" bson:"request"`
	Status    JobStatus     `json:"status" bson:"status"`
	Progress  Progress      `json:"progress" bson:"progress"`
	Results   Results       `json:"results" bson:"results"`
	Error     string        `json:"error,omitempty" bson:"error,omitempty"`
	Attempts  int           `json:"attempts" bson:"attempts"`
	CreatedAt time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// NewJobRecord builds the pending record written at submit time
func NewJobRecord(jobID string, req SearchRequest, now time.Time) JobRecord {
	total := req.Range.TotalDates()
	return JobRecord{
		JobID:   jobID,
		UserID:  req.UserID,
		Request: req,
		Status:  StatusPending,
		Progress: Progress{
			Total:                  total,
			EstimatedTimeRemaining: total * 2,
		},
		Results:   EmptyResults(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobPatch is a partial update of a JobRecord. Nil fields are left untouched.
type JobPatch struct {
	Status   *JobStatus `json:"status,omitempty"`
	Progress *Progress  `json:"progress,omitempty"`
	Results  *Results   `json:"results,omitempty"`
	Error    *string    `json:"error,omitempty"`
	Attempts *int       `json:"attempts,omitempty"`
}

// Apply mutates rec with the patch. Terminal records are rejected with ErrJobTerminal.
func (p JobPatch) Apply(rec *JobRecord, now time.Time) error {
	if rec.Status.IsTerminal() {
		return fmt.Errorf("job %s is %s: %w", rec.JobID, rec.Status, ErrJobTerminal)
	}
	if p.Status != nil && *p.Status != rec.Status && !IsTransitionAllowed(rec.Status, *p.Status) {
		return fmt.Errorf("job %s cannot move from %s to %s", rec.JobID, rec.Status, *p.Status)
	}

	if p.Status != nil {
		rec.Status = *p.Status
	}
	if p.Progress != nil {
		rec.Progress = *p.Progress
	}
	if p.Results != nil {
		rec.Results = *p.Results
	}
	if p.Error != nil {
		rec.Error = *p.Error
	}
	if p.Attempts != nil {
		rec.Attempts = *p.Attempts
	}
	rec.UpdatedAt = now
	return nil
}

// StatusPtr is a small helper for building patches
func StatusPtr(s JobStatus) *JobStatus { return &s }

// StringPtr is a small helper for building patches
func StringPtr(s string) *string { return &s }

// IntPtr is a small helper for building patches
func IntPtr(i int) *int { return &i }
