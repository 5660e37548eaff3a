package repository

import (
	"context"

	"flexsearch-service/internal/domain/entity"
)

// AirlineRepository defines the interface for airline operations
type AirlineRepository interface {
	GetByCode(ctx context.Context, code string) (*entity.Airline, error)
}

// AirportRepository defines the interface for airport lookups used by request validation
type AirportRepository interface {
	GetByCode(ctx context.Context, code string) (*entity.Airport, error)
}
