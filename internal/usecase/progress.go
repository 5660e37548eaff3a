package usecase

import (
	"math"
	"time"

	"flexsearch-service/internal/domain/entity"
)

// secondsPerDateGuess is the ETA used before any date has been checked
const secondsPerDateGuess = 2

// InitialEstimate is the ETA in seconds for a run that has not started
func InitialEstimate(total int) int {
	return total * secondsPerDateGuess
}

// ComputeProgress derives percentage and ETA from the dates checked so far
func ComputeProgress(total, checked int, elapsed time.Duration) entity.Progress {
	p := entity.Progress{Total: total, Checked: checked}
	if total <= 0 {
		p.Percentage = 100
		return p
	}

	p.Percentage = int(math.Round(float64(checked) / float64(total) * 100))
	if checked == 0 {
		p.EstimatedTimeRemaining = InitialEstimate(total)
		return p
	}

	perDate := elapsed.Seconds() / float64(checked)
	p.EstimatedTimeRemaining = int(math.Round(perDate * float64(total-checked)))
	return p
}
