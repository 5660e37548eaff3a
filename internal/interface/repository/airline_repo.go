package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"flexsearch-service/internal/domain/entity"
	"flexsearch-service/internal/domain/repository"

	"gorm.io/gorm"
)

// GormAirlineRepository implements the AirlineRepository interface.
// Carrier names rarely change, so lookups are memoized for the process lifetime.
type GormAirlineRepository struct {
	db *gorm.DB

	mu    sync.RWMutex
	cache map[string]entity.Airline
}

// NewGormAirlineRepository creates a new GORM airline repository
func NewGormAirlineRepository(db *gorm.DB) repository.AirlineRepository {
	return &GormAirlineRepository{
		db:    db,
		cache: make(map[string]entity.Airline),
	}
}

// Airlines GORM model for database mapping
type Airlines struct {
	ID        uint           `gorm:"primaryKey"`
	Code      string         `gorm:"column:code;unique"`
	Name      string         `gorm:"column:name;unique"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the default table name
func (Airlines) TableName() string {
	return "m_airlines"
}

// GetByCode finds an airline by its IATA code
func (r *GormAirlineRepository) GetByCode(ctx context.Context, code string) (*entity.Airline, error) {
	code = strings.ToUpper(code)

	r.mu.RLock()
	cached, ok := r.cache[code]
	r.mu.RUnlock()
	if ok {
		return &cached, nil
	}

	var airline Airlines
	result := r.db.WithContext(ctx).Where("code = ?", code).First(&airline)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("airline %s: %w", code, result.Error)
		}
		return nil, result.Error
	}

	// Convert GORM model to domain entity
	out := entity.Airline{Code: airline.Code, Name: airline.Name}

	r.mu.Lock()
	r.cache[code] = out
	r.mu.Unlock()

	return &out, nil
}
