package amadeus

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"flexsearch-service/internal/domain/entity"
	"flexsearch-service/internal/domain/repository"
	"flexsearch-service/pkg/utils"
)

var mockCarriers = []string{"Wizz Air", "Ryanair", "Lufthansa"}

// MockClient produces deterministic fares for development without API credentials.
// The same query always yields the same quote.
type MockClient struct {
	affiliateID string
	latency     time.Duration
}

// NewMockClient creates a mock fare client. latency simulates upstream delay.
func NewMockClient(affiliateID string, latency time.Duration) repository.FareLookupClient {
	return &MockClient{affiliateID: affiliateID, latency: latency}
}

// LookupFare implements repository.FareLookupClient
func (m *MockClient) LookupFare(ctx context.Context, query entity.FareQuery) (*entity.FareQuote, error) {
	if err := utils.Sleep(ctx, m.latency); err != nil {
		return nil, err
	}

	h := fnv.New64a()
	fmt.Fprint(h, query.CacheKey())
	seed := h.Sum64()

	// 150..349 EUR per adult, a bit more on weekends
	perAdult := 150 + float64(seed%200)
	if wd := query.DepartureDate.Weekday(); wd == time.Friday || wd == time.Saturday {
		perAdult += 40
	}
	price := perAdult*float64(query.Adults) + perAdult*0.75*float64(query.Children)

	stops := 0
	if (seed>>8)%10 >= 7 {
		stops = 1
	}

	return &entity.FareQuote{
		DepartureDate: query.DepartureDate,
		ReturnDate:    query.ReturnDate(),
		Price:         math.Round(price),
		Currency:      currencyCode,
		Airline:       mockCarriers[(seed>>16)%uint64(len(mockCarriers))],
		Stops:         stops,
		Duration:      fmt.Sprintf("%dh%dm", 2+(seed>>24)%3, (seed>>32)%60),
		DeepLink: utils.SkyscannerLink(query.Origin, query.Destination, query.DepartureDate, query.ReturnDate(),
			query.Adults, query.Children, m.affiliateID),
	}, nil
}
