package usecase

import (
	"time"

	"flexsearch-service/internal/domain/entity"
)

// GenerateDateRange returns the outbound dates searched for a request, ascending,
// centered on center. Dates are calendar days at UTC midnight.
func GenerateDateRange(center time.Time, r entity.SearchRange) []time.Time {
	before, after := r.Window()
	day := entity.TruncateDay(center)

	dates := make([]time.Time, 0, before+after+1)
	for offset := -before; offset <= after; offset++ {
		dates = append(dates, day.AddDate(0, 0, offset))
	}
	return dates
}
