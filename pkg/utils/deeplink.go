package utils

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const skyscannerBaseURL = "https://www.skyscanner.com/transport/flights"

// SkyscannerLink builds the affiliate booking link for a round trip.
// Dates use Skyscanner's yymmdd path format.
func SkyscannerLink(origin, destination string, departure, ret time.Time, adults, children int, affiliateID string) string {
	q := url.Values{}
	q.Set("adults", strconv.Itoa(adults))
	q.Set("children", strconv.Itoa(children))
	q.Set("cabinclass", "economy")
	q.Set("rtn", "1")
	q.Set("preferdirects", "false")
	q.Set("outboundaltsenabled", "false")
	q.Set("inboundaltsenabled", "false")
	if affiliateID != "" {
		q.Set("associateid", affiliateID)
	}

	return fmt.Sprintf("%s/%s/%s/%s/%s/?%s",
		skyscannerBaseURL,
		url.PathEscape(strings.ToLower(origin)),
		url.PathEscape(strings.ToLower(destination)),
		departure.Format("060102"),
		ret.Format("060102"),
		q.Encode(),
	)
}

