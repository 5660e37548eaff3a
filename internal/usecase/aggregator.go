package usecase

import (
	"math"
	"sort"

	"flexsearch-service/internal/domain/entity"
)

// DefaultTopN is the number of ranked quotes kept in results
const DefaultTopN = 5

// Aggregator accumulates quotes for one run. Quotes must be added in date-range
// order so that ranking ties fall back to that order.
type Aggregator struct {
	topN     int
	quotes   []entity.FareQuote
	byDate   map[string]int
	calendar map[string]float64
}

// NewAggregator creates an empty aggregator keeping topN ranked quotes
func NewAggregator(topN int) *Aggregator {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Aggregator{
		topN:     topN,
		byDate:   make(map[string]int),
		calendar: make(map[string]float64),
	}
}

// Add merges a quote. A second quote for the same date replaces the first in place.
func (a *Aggregator) Add(q entity.FareQuote) {
	key := q.DateKey()
	a.calendar[key] = q.Price
	if i, ok := a.byDate[key]; ok {
		a.quotes[i] = q
		return
	}
	a.byDate[key] = len(a.quotes)
	a.quotes = append(a.quotes, q)
}

// Count is the number of dates that produced a quote
func (a *Aggregator) Count() int {
	return len(a.quotes)
}

// TopResults returns the cheapest quotes, stable on equal prices
func (a *Aggregator) TopResults() []entity.FareQuote {
	ranked := make([]entity.FareQuote, len(a.quotes))
	copy(ranked, a.quotes)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Price < ranked[j].Price
	})
	if len(ranked) > a.topN {
		ranked = ranked[:a.topN]
	}
	return ranked
}

// Snapshot returns the partial results published while the run is in flight
func (a *Aggregator) Snapshot() entity.Results {
	return entity.Results{
		TopResults:    a.TopResults(),
		PriceCalendar: a.copyCalendar(),
	}
}

// Finalize computes statistics and savings against the final average price
func (a *Aggregator) Finalize() entity.Results {
	stats := &entity.Statistics{TotalOptionsFound: len(a.quotes)}

	if len(a.quotes) > 0 {
		var sum float64
		cheapest, priciest := a.quotes[0], a.quotes[0]
		for _, q := range a.quotes {
			sum += q.Price
			if q.Price < cheapest.Price || (q.Price == cheapest.Price && q.DepartureDate.Before(cheapest.DepartureDate)) {
				cheapest = q
			}
			if q.Price > priciest.Price || (q.Price == priciest.Price && q.DepartureDate.Before(priciest.DepartureDate)) {
				priciest = q
			}
		}
		stats.AveragePrice = math.Round(sum / float64(len(a.quotes)))
		stats.CheapestDate = cheapest.DateKey()
		stats.MostExpensiveDate = priciest.DateKey()
	}

	top := a.TopResults()
	for i := range top {
		top[i].Savings = math.Round(stats.AveragePrice - top[i].Price)
		if stats.AveragePrice != 0 {
			top[i].SavingsPercentage = int(math.Round((stats.AveragePrice - top[i].Price) / stats.AveragePrice * 100))
		}
	}

	return entity.Results{
		TopResults:    top,
		PriceCalendar: a.copyCalendar(),
		Statistics:    stats,
	}
}

func (a *Aggregator) copyCalendar() map[string]float64 {
	out := make(map[string]float64, len(a.calendar))
	for k, v := range a.calendar {
		out[k] = v
	}
	return out
}
