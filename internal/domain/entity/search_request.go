// internal/domain/entity/search_request.go
package entity

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-day format used for price calendar keys and the API
const DateLayout = "2006-01-02"

// SearchRange names the window of outbound dates around the center date
type SearchRange string

const (
	RangeWeek      SearchRange = "week"
	RangeMonth     SearchRange = "month"
	RangeTwoMonths SearchRange = "two-months"
)

// ParseSearchRange converts a raw string to a SearchRange
func ParseSearchRange(s string) (SearchRange, error) {
	r := SearchRange(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RangeWeek, RangeMonth, RangeTwoMonths:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown search range %q", ErrInvalidRequest, s)
}

// Window returns the days searched before and after the center date.
// Unknown ranges behave like a week.
func (r SearchRange) Window() (before, after int) {
	switch r {
	case RangeMonth:
		return 15, 15
	case RangeTwoMonths:
		return 30, 30
	default:
		return 3, 3
	}
}

// TotalDates returns how many outbound dates the range covers
func (r SearchRange) TotalDates() int {
	before, after := r.Window()
	return before + after + 1
}

// Passengers is the traveller shape of a search
type Passengers struct {
	Adults   int `json:"adults" bson:"adults"`
	Children int `json:"children" bson:"children"`
}

// SearchRequest is an accepted flexible search. It is never mutated after submit.
type SearchRequest struct {
	UserID       string      `json:"userId" bson:"userId"`
	Origin       string      `json:"origin" bson:"origin"`
	Destination  string      `json:"destination" bson:"destination"`
	CenterDate   time.Time   `json:"centerDate" bson:"centerDate"`
	Nights       int         `json:"duration" bson:"duration"`
	Passengers   Passengers  `json:"passengers" bson:"passengers"`
	Range        SearchRange `json:"searchRange" bson:"searchRange"`
	ContactEmail string      `json:"contactEmail,omitempty" bson:"contactEmail,omitempty"`
}

// Normalize upper-cases airport codes and truncates the center date to a UTC day
func (r SearchRequest) Normalize() SearchRequest {
	r.Origin = strings.ToUpper(strings.TrimSpace(r.Origin))
	r.Destination = strings.ToUpper(strings.TrimSpace(r.Destination))
	r.CenterDate = TruncateDay(r.CenterDate)
	return r
}

// Validate checks the request invariants. Every error wraps ErrInvalidRequest.
func (r SearchRequest) Validate() error {
	if len(r.Origin) != 3 {
		return fmt.Errorf("%w: origin must be a 3-letter IATA code, got %q", ErrInvalidRequest, r.Origin)
	}
	if len(r.Destination) != 3 {
		return fmt.Errorf("%w: destination must be a 3-letter IATA code, got %q", ErrInvalidRequest, r.Destination)
	}
	if r.Origin == r.Destination {
		return fmt.Errorf("%w: origin and destination are both %s", ErrInvalidRequest, r.Origin)
	}
	if r.CenterDate.IsZero() {
		return fmt.Errorf("%w: center date is required", ErrInvalidRequest)
	}
	if r.Nights < 0 {
		return fmt.Errorf("%w: duration must be >= 0, got %d", ErrInvalidRequest, r.Nights)
	}
	if r.Passengers.Adults < 1 {
		return fmt.Errorf("%w: at least one adult is required, got %d", ErrInvalidRequest, r.Passengers.Adults)
	}
	if r.Passengers.Children < 0 {
		return fmt.Errorf("%w: children must be >= 0, got %d", ErrInvalidRequest, r.Passengers.Children)
	}
	if _, err := ParseSearchRange(string(r.Range)); err != nil {
		return err
	}
	return nil
}

// TruncateDay drops the clock part of t and moves it to UTC midnight of the same calendar day
func TruncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
