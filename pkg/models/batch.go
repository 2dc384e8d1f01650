// Package models contains shared data models used across the batchtrack codebase.
package models

import "time"

// BatchSequence is the counter name batch identifiers are drawn from.
const BatchSequence = "batch"

// Batch is one production run tracked from sourcing through vacuum packing.
// The Total* and CostPerKgDried fields are derived from the phases and are
// recomputed on every write; they are never set directly.
type Batch struct {
	ID         int64      `db:"id"          json:"id"`
	StartTime  time.Time  `db:"start_time"  json:"start_time"`
	FinishTime *time.Time `db:"finish_time" json:"finish_time,omitempty"`

	Sourcing  *SourcingPhase `db:"sourcing"  json:"sourcing"`
	Prepping  *PreppingPhase `db:"prepping"  json:"prepping"`
	Curing    *CuringPhase   `db:"curing"    json:"curing"`
	Seasoning SeasoningPhase `db:"seasoning" json:"seasoning"`
	Vacuum    VacuumPhase    `db:"vacuum"    json:"vacuum"`

	TotalWorkTime         float64 `db:"total_work_time"          json:"total_work_time"`
	TotalCost             float64 `db:"total_cost"               json:"total_cost"`
	TotalElapsedTimeHours float64 `db:"total_elapsed_time_hours" json:"total_elapsed_time_hours"`
	CostPerKgDried        float64 `db:"cost_per_kg_dried"        json:"cost_per_kg_dried"`

	Version   int64     `db:"version"    json:"version"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NewBatch returns a batch holding only its sourcing phase. Seasoning and
// vacuum start as empty phases with non-nil entry lists.
func NewBatch(id int64, sourcing SourcingPhase, now time.Time) *Batch {
	return &Batch{
		ID:        id,
		StartTime: now,
		Sourcing:  &sourcing,
		Seasoning: NewSeasoningPhase(),
		Vacuum:    NewVacuumPhase(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Finished reports whether the batch has reached its terminal state.
func (b *Batch) Finished() bool {
	return b.FinishTime != nil
}

// Normalize replaces nil entry lists with empty ones. Rows decoded from
// storage or JSON go through here so the phases are never half-built.
func (b *Batch) Normalize() {
	if b.Seasoning.Entries == nil {
		b.Seasoning.Entries = []SeasoningEntry{}
	}
	if b.Vacuum.Entries == nil {
		b.Vacuum.Entries = []VacuumEntry{}
	}
	for i := range b.Seasoning.Entries {
		if b.Seasoning.Entries[i].RackPositions == nil {
			b.Seasoning.Entries[i].RackPositions = []string{}
		}
	}
}
