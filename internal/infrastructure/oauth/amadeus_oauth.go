package oauth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const amadeusTokenPath = "/v1/security/oauth2/token"

// NewAmadeusHTTPClient returns an http.Client that authenticates every request
// with an Amadeus client-credentials token, refreshing it before expiry
func NewAmadeusHTTPClient(ctx context.Context, baseURL, apiKey, apiSecret string, timeout time.Duration) *http.Client {
	cfg := clientcredentials.Config{
		ClientID:     apiKey,
		ClientSecret: apiSecret,
		TokenURL:     strings.TrimRight(baseURL, "/") + amadeusTokenPath,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	// the token endpoint shares the request timeout
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout})
	client := cfg.Client(ctx)
	client.Timeout = timeout
	return client
}
