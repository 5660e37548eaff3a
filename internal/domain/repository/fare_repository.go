package repository

import (
	"context"

	"flexsearch-service/internal/domain/entity"
)

// FareLookupClient asks a pricing provider for the cheapest quote of one query.
// A nil quote with a nil error means nothing was found; transient failures wrap
// entity.ErrTransientLookup.
type FareLookupClient interface {
	LookupFare(ctx context.Context, query entity.FareQuery) (*entity.FareQuote, error)
}
