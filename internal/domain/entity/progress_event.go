package entity

import "time"

// EventType classifies progress events on the feed
type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// ProgressEvent is one message on a job's progress feed
type ProgressEvent struct {
	Type       EventType   `json:"type"`
	JobID      string      `json:"jobId"`
	Progress   Progress    `json:"progress"`
	TopResults []FareQuote `json:"topResults,omitempty"`
	Results    *Results    `json:"results,omitempty"`
	Error      string      `json:"error,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// IsTerminal reports whether the event ends the stream
func (e ProgressEvent) IsTerminal() bool {
	return e.Type == EventCompleted || e.Type == EventFailed
}

// Notification is the "search finished" message sent to the owning user
type Notification struct {
	JobID         string
	UserID        string
	Email         string
	Title         string
	Body          string
	Origin        string
	Destination   string
	CheapestPrice float64
	Savings       float64
	Currency      string
}
