// internal/domain/entity/fare_quote.go
package entity

import (
	"fmt"
	"time"
)

// FareQuery identifies one round-trip price lookup
type FareQuery struct {
	Origin        string
	Destination   string
	DepartureDate time.Time
	Nights        int
	Adults        int
	Children      int
}

// ReturnDate is the departure date advanced by the stay length
func (q FareQuery) ReturnDate() time.Time {
	return q.DepartureDate.AddDate(0, 0, q.Nights)
}

// CacheKey identifies the query in the result cache, e.g. OTP:BCN:2024-03-15:5:2:0
func (q FareQuery) CacheKey() string {
	return fmt.Sprintf("%s:%s:%s:%d:%d:%d",
		q.Origin, q.Destination, q.DepartureDate.Format(DateLayout), q.Nights, q.Adults, q.Children)
}

// FareQuote is the cheapest offer found for one departure date.
// Savings and SavingsPercentage are only set on the finalized top results.
type FareQuote struct {
	DepartureDate     time.Time `json:"departureDate" bson:"departureDate"`
	ReturnDate        time.Time `json:"returnDate" bson:"returnDate"`
	Price             float64   `json:"price" bson:"price"`
	Currency          string    `json:"currency" bson:"currency"`
	Airline           string    `json:"airline" bson:"airline"`
	Stops             int       `json:"stops" bson:"stops"`
	Duration          string    `json:"duration" bson:"duration"`
	DeepLink          string    `json:"deepLink" bson:"deepLink"`
	Savings           float64   `json:"savings" bson:"savings"`
	SavingsPercentage int       `json:"savingsPercentage" bson:"savingsPercentage"`
}

// DateKey is the price calendar key of the quote
func (q FareQuote) DateKey() string {
	return q.DepartureDate.Format(DateLayout)
}
