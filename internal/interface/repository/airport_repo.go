package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"flexsearch-service/internal/domain/entity"
	"flexsearch-service/internal/domain/repository"

	"gorm.io/gorm"
)

// GormAirportRepository implements the AirportRepository interface over the
// airport reference table
type GormAirportRepository struct {
	db *gorm.DB
}

// NewGormAirportRepository creates a new GORM airport repository
func NewGormAirportRepository(db *gorm.DB) repository.AirportRepository {
	return &GormAirportRepository{
		db: db,
	}
}

// Timezonelist GORM model for database mapping. The table is keyed by airport code.
type Timezonelist struct {
	ID          uint           `gorm:"primaryKey"`
	AirportCode string         `gorm:"column:airportcode;unique"`
	AirportName string         `gorm:"column:airport_name"`
	CityCode    string         `gorm:"column:citycode"`
	CityName    string         `gorm:"column:cityname"`
	TzName      string         `gorm:"column:tzname"`
	DeletedAt   gorm.DeletedAt `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName overrides the default table name
func (Timezonelist) TableName() string {
	return "m_timezone_list"
}

// GetByCode finds an airport by IATA code. Unknown codes are invalid requests.
func (r *GormAirportRepository) GetByCode(ctx context.Context, code string) (*entity.Airport, error) {
	var row Timezonelist
	result := r.db.WithContext(ctx).Where("airportcode = ?", strings.ToUpper(code)).First(&row)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: unknown airport %s", entity.ErrInvalidRequest, code)
	}
	if result.Error != nil {
		return nil, result.Error
	}

	return &entity.Airport{
		Code:     row.AirportCode,
		Name:     row.AirportName,
		CityCode: row.CityCode,
		CityName: row.CityName,
		TzName:   row.TzName,
	}, nil
}
