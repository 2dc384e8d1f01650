package models

import (
	"fmt"

	"github.com/google/uuid"
)

// Phase names a processing stage of a batch.
type Phase string

const (
	PhaseSourcing  Phase = "sourcing"
	PhasePrepping  Phase = "prepping"
	PhaseCuring    Phase = "curing"
	PhaseSeasoning Phase = "seasoning"
	PhaseVacuum    Phase = "vacuum"
)

var validPhases = map[Phase]bool{
	PhaseSourcing:  true,
	PhasePrepping:  true,
	PhaseCuring:    true,
	PhaseSeasoning: true,
	PhaseVacuum:    true,
}

// ParsePhase converts a path segment into a Phase.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !validPhases[p] {
		return "", fmt.Errorf("unknown phase %q: must be one of sourcing, prepping, curing, seasoning, vacuum", s)
	}
	return p, nil
}

type SourcingPhase struct {
	MeatType   string  `json:"meat_type"`
	CutType    string  `json:"cut_type"`
	Supplier   string  `json:"supplier"`
	AmountKg   float64 `json:"amount_kg"`
	PricePerKg float64 `json:"price_per_kg"`
	TimeTaken  float64 `json:"time_taken"`
}

type PreppingPhase struct {
	TrimmedWeightKg float64 `json:"trimmed_weight_kg"`
	WasteKg         float64 `json:"waste_kg"`
	Notes           string  `json:"notes"`
	WorkTime        float64 `json:"work_time"`
}

type CuringPhase struct {
	CureType     string  `json:"cure_type"`
	SaltPercent  float64 `json:"salt_percent"`
	DurationDays int     `json:"duration_days"`
	Notes        string  `json:"notes"`
	WorkTime     float64 `json:"work_time"`
}

// SeasoningPhase records spice applications. Each entry consumes ingredient
// or ingredient-mix stock.
type SeasoningPhase struct {
	Entries        []SeasoningEntry `json:"entries"`
	ConsumableCost float64          `json:"consumable_cost"`
	WorkTime       float64          `json:"work_time"`
}

// VacuumPhase records packed output. Each entry adds dried weight to the
// finished product made from the entry's ingredient or mix.
type VacuumPhase struct {
	Entries        []VacuumEntry `json:"entries"`
	ConsumableCost float64       `json:"consumable_cost"`
	WorkTime       float64       `json:"work_time"`
}

func NewSeasoningPhase() SeasoningPhase {
	return SeasoningPhase{Entries: []SeasoningEntry{}}
}

func NewVacuumPhase() VacuumPhase {
	return VacuumPhase{Entries: []VacuumEntry{}}
}

// StockRef points at the ingredient or ingredient mix an entry draws from.
// At most one of the two IDs is set on a valid entry.
type StockRef struct {
	IngredientID    *uuid.UUID `json:"ingredient_id,omitempty"`
	IngredientMixID *uuid.UUID `json:"ingredient_mix_id,omitempty"`
}

// Empty reports whether neither reference is set.
func (r StockRef) Empty() bool {
	return r.IngredientID == nil && r.IngredientMixID == nil
}

// Both reports whether both references are set.
func (r StockRef) Both() bool {
	return r.IngredientID != nil && r.IngredientMixID != nil
}

// Target returns the referenced id and whether it is a mix.
func (r StockRef) Target() (id uuid.UUID, isMix bool, ok bool) {
	switch {
	case r.IngredientID != nil:
		return *r.IngredientID, false, true
	case r.IngredientMixID != nil:
		return *r.IngredientMixID, true, true
	default:
		return uuid.Nil, false, false
	}
}

// Equal compares the referenced ids, not the pointers.
func (r StockRef) Equal(o StockRef) bool {
	return eqID(r.IngredientID, o.IngredientID) && eqID(r.IngredientMixID, o.IngredientMixID)
}

func eqID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type SeasoningEntry struct {
	ID              uuid.UUID `json:"id"`
	CutCount        int       `json:"cut_count"`
	SpiceAmountUsed float64   `json:"spice_amount_used"`
	StockRef
	RackPositions []string `json:"rack_positions"`
}

// Meaningful reports whether the entry carries quantity data that must be
// tied to an ingredient or mix.
func (e SeasoningEntry) Meaningful() bool {
	return e.CutCount != 0 && e.SpiceAmountUsed != 0
}

type VacuumEntry struct {
	ID               uuid.UUID  `json:"id"`
	SeasoningEntryID *uuid.UUID `json:"seasoning_entry_id,omitempty"`
	StockRef
	OriginalSlices int     `json:"original_slices"`
	VacuumedSlices int     `json:"vacuumed_slices"`
	DriedWeight    float64 `json:"dried_weight"`
}

func (e VacuumEntry) Meaningful() bool {
	return e.DriedWeight != 0
}
