package batch

import (
	"math"
	"time"

	"github.com/kiranshivaraju/batchtrack/pkg/models"
)

const gramsPerKg = 1000.0

// Recompute overwrites every derived field of b from its phases. It is the
// last step before any batch write and gives the same result when repeated.
func Recompute(b *models.Batch) {
	b.TotalWorkTime = TotalWorkTime(b)
	b.TotalCost = TotalCost(b)
	b.TotalElapsedTimeHours = ElapsedHours(b.StartTime, b.FinishTime)
	b.CostPerKgDried = CostPerKgDried(b.TotalCost, DriedWeightGrams(b.Vacuum.Entries))
}

// TotalWorkTime sums the work time of every present phase.
func TotalWorkTime(b *models.Batch) float64 {
	total := b.Seasoning.WorkTime + b.Vacuum.WorkTime
	if b.Sourcing != nil {
		total += b.Sourcing.TimeTaken
	}
	if b.Prepping != nil {
		total += b.Prepping.WorkTime
	}
	if b.Curing != nil {
		total += b.Curing.WorkTime
	}
	return total
}

// TotalCost is the meat purchase plus seasoning and vacuum consumables.
// Ingredient consumption is not priced here.
func TotalCost(b *models.Batch) float64 {
	total := b.Seasoning.ConsumableCost + b.Vacuum.ConsumableCost
	if b.Sourcing != nil {
		total += b.Sourcing.AmountKg * b.Sourcing.PricePerKg
	}
	return total
}

// ElapsedHours is zero until both timestamps are set.
func ElapsedHours(start time.Time, finish *time.Time) float64 {
	if start.IsZero() || finish == nil {
		return 0
	}
	return finish.Sub(start).Hours()
}

func DriedWeightGrams(entries []models.VacuumEntry) float64 {
	var total float64
	for _, e := range entries {
		total += e.DriedWeight
	}
	return total
}

// CostPerKgDried divides cost by dried output in kilograms. It returns 0
// when there is no output so the result is always a finite number.
func CostPerKgDried(totalCost, driedGrams float64) float64 {
	if driedGrams == 0 {
		return 0
	}
	v := totalCost / (driedGrams / gramsPerKg)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
