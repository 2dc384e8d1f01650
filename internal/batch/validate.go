package batch

import (
	"math"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchtrack/pkg/models"
)

func validateSourcing(p *models.SourcingPhase) error {
	if p == nil {
		return fieldError(models.PhaseSourcing, "payload", "is required")
	}
	switch {
	case !nonNegative(p.AmountKg):
		return fieldError(models.PhaseSourcing, "amount_kg", "must be a finite, non-negative number")
	case !nonNegative(p.PricePerKg):
		return fieldError(models.PhaseSourcing, "price_per_kg", "must be a finite, non-negative number")
	case !nonNegative(p.TimeTaken):
		return fieldError(models.PhaseSourcing, "time_taken", "must be a finite, non-negative number")
	case !finite(p.AmountKg * p.PricePerKg):
		return fieldError(models.PhaseSourcing, "price_per_kg", "amount_kg times price_per_kg is out of range")
	}
	return nil
}

func validatePrepping(p *models.PreppingPhase) error {
	if p == nil {
		return fieldError(models.PhasePrepping, "payload", "is required")
	}
	switch {
	case !nonNegative(p.TrimmedWeightKg):
		return fieldError(models.PhasePrepping, "trimmed_weight_kg", "must be a finite, non-negative number")
	case !nonNegative(p.WasteKg):
		return fieldError(models.PhasePrepping, "waste_kg", "must be a finite, non-negative number")
	case !nonNegative(p.WorkTime):
		return fieldError(models.PhasePrepping, "work_time", "must be a finite, non-negative number")
	}
	return nil
}

func validateCuring(p *models.CuringPhase) error {
	if p == nil {
		return fieldError(models.PhaseCuring, "payload", "is required")
	}
	switch {
	case !nonNegative(p.SaltPercent):
		return fieldError(models.PhaseCuring, "salt_percent", "must be a finite, non-negative number")
	case p.DurationDays < 0:
		return fieldError(models.PhaseCuring, "duration_days", "must not be negative")
	case !nonNegative(p.WorkTime):
		return fieldError(models.PhaseCuring, "work_time", "must be a finite, non-negative number")
	}
	return nil
}

func validateTotals(phase models.Phase, workTime, consumableCost float64) error {
	if !nonNegative(workTime) {
		return fieldError(phase, "work_time", "must be a finite, non-negative number")
	}
	if !nonNegative(consumableCost) {
		return fieldError(phase, "consumable_cost", "must be a finite, non-negative number")
	}
	return nil
}

// validateRef enforces that an entry never names both an ingredient and a
// mix, and that a meaningful entry names exactly one.
func validateRef(phase models.Phase, i int, ref models.StockRef, meaningful bool) error {
	if ref.Both() {
		return entryError(phase, i, "ingredient_id", "must reference an ingredient or an ingredient mix, not both")
	}
	if meaningful && ref.Empty() {
		return entryError(phase, i, "ingredient_id", "an ingredient or ingredient mix is required")
	}
	return nil
}

func checkDuplicate(phase models.Phase, i int, id uuid.UUID, seen map[uuid.UUID]bool) error {
	if id == uuid.Nil {
		return nil
	}
	if seen[id] {
		return entryError(phase, i, "id", "duplicate entry id")
	}
	seen[id] = true
	return nil
}

func validateSeasoningEntries(entries []models.SeasoningEntry) error {
	seen := make(map[uuid.UUID]bool, len(entries))
	for i, e := range entries {
		if err := checkDuplicate(models.PhaseSeasoning, i, e.ID, seen); err != nil {
			return err
		}
		if e.CutCount < 0 {
			return entryError(models.PhaseSeasoning, i, "cut_count", "must not be negative")
		}
		if !nonNegative(e.SpiceAmountUsed) {
			return entryError(models.PhaseSeasoning, i, "spice_amount_used", "must be a finite, non-negative number")
		}
		if err := validateRef(models.PhaseSeasoning, i, e.StockRef, e.Meaningful()); err != nil {
			return err
		}
	}
	return nil
}

func validateVacuumEntries(entries []models.VacuumEntry) error {
	seen := make(map[uuid.UUID]bool, len(entries))
	for i, e := range entries {
		if err := checkDuplicate(models.PhaseVacuum, i, e.ID, seen); err != nil {
			return err
		}
		if e.OriginalSlices < 0 {
			return entryError(models.PhaseVacuum, i, "original_slices", "must not be negative")
		}
		if e.VacuumedSlices < 0 {
			return entryError(models.PhaseVacuum, i, "vacuumed_slices", "must not be negative")
		}
		if !nonNegative(e.DriedWeight) {
			return entryError(models.PhaseVacuum, i, "dried_weight", "must be a finite, non-negative number")
		}
		if err := validateRef(models.PhaseVacuum, i, e.StockRef, e.Meaningful()); err != nil {
			return err
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// nonNegative rejects negative numbers as well as NaN and infinities.
func nonNegative(v float64) bool {
	return finite(v) && v >= 0
}

// validateDerived rejects a batch whose recomputed totals overflowed. Each
// input may be finite while their sum or product is not.
func validateDerived(phase models.Phase, b *models.Batch) error {
	switch {
	case !finite(b.TotalWorkTime):
		return fieldError(phase, "work_time", "total work time is out of range")
	case !finite(b.TotalCost):
		return fieldError(phase, "consumable_cost", "total cost is out of range")
	case !finite(b.TotalElapsedTimeHours), !finite(b.CostPerKgDried):
		return fieldError(phase, "payload", "derived totals are out of range")
	}
	return nil
}
