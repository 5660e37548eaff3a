package amadeus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"flexsearch-service/internal/domain/entity"
	"flexsearch-service/internal/domain/repository"
	"flexsearch-service/pkg/logger"
	"flexsearch-service/pkg/utils"
)

const (
	// DefaultBaseURL is the Amadeus self-service test environment
	DefaultBaseURL = "https://test.api.amadeus.com"

	flightOffersPath = "/v2/shopping/flight-offers"
	maxOffers        = 50
	currencyCode     = "EUR"
)

// Client looks up round-trip fares with the Amadeus Flight Offers Search API.
// The http client is expected to attach the OAuth2 bearer token.
type Client struct {
	baseURL     string
	http        *http.Client
	airlines    repository.AirlineRepository
	affiliateID string
	logger      logger.Logger
}

// NewClient creates a new Amadeus fare client. airlines may be nil, in which
// case quotes carry the raw carrier code.
func NewClient(
	httpClient *http.Client,
	baseURL string,
	affiliateID string,
	airlines repository.AirlineRepository,
	logger logger.Logger,
) repository.FareLookupClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        httpClient,
		airlines:    airlines,
		affiliateID: affiliateID,
		logger:      logger,
	}
}

// offersResponse mirrors the parts of the Flight Offers response we use
type offersResponse struct {
	Data []offer `json:"data"`
}

type offer struct {
	Price struct {
		Total    string `json:"total"`
		Currency string `json:"currency"`
	} `json:"price"`
	Itineraries []itinerary `json:"itineraries"`
	// ValidatingAirlineCodes is a fallback when segments are missing
	ValidatingAirlineCodes []string `json:"validatingAirlineCodes"`
}

type itinerary struct {
	Duration string    `json:"duration"`
	Segments []segment `json:"segments"`
}

type segment struct {
	CarrierCode string `json:"carrierCode"`
}

// LookupFare implements repository.FareLookupClient and returns the cheapest offer
func (c *Client) LookupFare(ctx context.Context, query entity.FareQuery) (*entity.FareQuote, error) {
	params := url.Values{}
	params.Set("originLocationCode", query.Origin)
	params.Set("destinationLocationCode", query.Destination)
	params.Set("departureDate", query.DepartureDate.Format(entity.DateLayout))
	params.Set("returnDate", query.ReturnDate().Format(entity.DateLayout))
	params.Set("adults", strconv.Itoa(query.Adults))
	if query.Children > 0 {
		params.Set("children", strconv.Itoa(query.Children))
	}
	params.Set("currencyCode", currencyCode)
	params.Set("max", strconv.Itoa(maxOffers))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+flightOffersPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: http GET: %v", entity.ErrTransientLookup, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", entity.ErrTransientLookup, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: amadeus returned %d", entity.ErrTransientLookup, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("amadeus returned %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var apiResp offersResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}

	best, price, ok := cheapestOffer(apiResp.Data)
	if !ok {
		return nil, nil
	}

	return c.toQuote(ctx, query, best, price), nil
}

func (c *Client) toQuote(ctx context.Context, query entity.FareQuery, o offer, price float64) *entity.FareQuote {
	carrier := ""
	stops := 0
	duration := ""
	if len(o.Itineraries) > 0 {
		first := o.Itineraries[0]
		if len(first.Segments) > 0 {
			carrier = first.Segments[0].CarrierCode
			stops = len(first.Segments) - 1
		}
		duration = formatDuration(first.Duration)
	}
	if carrier == "" && len(o.ValidatingAirlineCodes) > 0 {
		carrier = o.ValidatingAirlineCodes[0]
	}

	currency := o.Price.Currency
	if currency == "" {
		currency = currencyCode
	}

	return &entity.FareQuote{
		DepartureDate: query.DepartureDate,
		ReturnDate:    query.ReturnDate(),
		Price:         price,
		Currency:      currency,
		Airline:       c.airlineLabel(ctx, carrier),
		Stops:         stops,
		Duration:      duration,
		DeepLink: utils.SkyscannerLink(query.Origin, query.Destination, query.DepartureDate, query.ReturnDate(),
			query.Adults, query.Children, c.affiliateID),
	}
}

func (c *Client) airlineLabel(ctx context.Context, code string) string {
	if c.airlines == nil || code == "" {
		return code
	}
	airline, err := c.airlines.GetByCode(ctx, code)
	if err != nil {
		c.logger.Debug("Airline lookup failed, using carrier code", "code", code, "error", err)
		return code
	}
	return airline.Label()
}

// cheapestOffer picks the lowest total price. Offers with unparsable prices are skipped.
func cheapestOffer(offers []offer) (offer, float64, bool) {
	var (
		best  offer
		price float64
		found bool
	)
	for _, o := range offers {
		p, err := strconv.ParseFloat(o.Price.Total, 64)
		if err != nil {
			continue
		}
		if !found || p < price {
			best, price, found = o, p, true
		}
	}
	return best, price, found
}

// formatDuration turns an ISO-8601 duration like PT2H35M into 2h35m
func formatDuration(iso string) string {
	return strings.ToLower(strings.TrimPrefix(iso, "PT"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
