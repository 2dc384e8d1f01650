package batch

import (
	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchtrack/pkg/models"
)

// Adjustment is the change in quantity one entry represents against one
// ingredient or mix reference. For seasoning it is extra spice used; for
// vacuum it is extra dried weight produced.
type Adjustment struct {
	EntryID uuid.UUID
	Ref     models.StockRef
	Delta   float64
}

// line is the part of an entry the diff cares about.
type line struct {
	id  uuid.UUID
	ref models.StockRef
	qty float64
}

// SeasoningDeltas pairs old and new seasoning entries by id and returns the
// spice-amount change per entry.
func SeasoningDeltas(prev, next []models.SeasoningEntry) []Adjustment {
	return diff(seasoningLines(prev), seasoningLines(next))
}

// VacuumDeltas pairs old and new vacuum entries by id and returns the
// dried-weight change per entry.
func VacuumDeltas(prev, next []models.VacuumEntry) []Adjustment {
	return diff(vacuumLines(prev), vacuumLines(next))
}

func seasoningLines(entries []models.SeasoningEntry) []line {
	out := make([]line, 0, len(entries))
	for _, e := range entries {
		out = append(out, line{id: e.ID, ref: e.StockRef, qty: e.SpiceAmountUsed})
	}
	return out
}

func vacuumLines(entries []models.VacuumEntry) []line {
	out := make([]line, 0, len(entries))
	for _, e := range entries {
		out = append(out, line{id: e.ID, ref: e.StockRef, qty: e.DriedWeight})
	}
	return out
}

// diff walks next in order, then the entries of prev that disappeared.
// An id new to next starts from zero; an id missing from next is reversed in
// full. When an entry switches reference, the old reference gets its amount
// back and the new one takes the whole new amount. Zero changes and entries
// without a reference produce nothing.
func diff(prev, next []line) []Adjustment {
	old := make(map[uuid.UUID]line, len(prev))
	for _, l := range prev {
		old[l.id] = l
	}

	var out []Adjustment
	emit := func(id uuid.UUID, ref models.StockRef, delta float64) {
		if delta == 0 || ref.Empty() {
			return
		}
		out = append(out, Adjustment{EntryID: id, Ref: ref, Delta: delta})
	}

	seen := make(map[uuid.UUID]bool, len(next))
	for _, n := range next {
		seen[n.id] = true
		o, existed := old[n.id]
		switch {
		case !existed:
			emit(n.id, n.ref, n.qty)
		case o.ref.Equal(n.ref):
			emit(n.id, n.ref, n.qty-o.qty)
		default:
			emit(n.id, o.ref, -o.qty)
			emit(n.id, n.ref, n.qty)
		}
	}

	for _, o := range prev {
		if !seen[o.id] {
			emit(o.id, o.ref, -o.qty)
		}
	}
	return out
}

// AdoptIDs fills in the nil ids of a submitted entry list. An entry without
// an id takes the id of the stored entry at the same position, unless some
// submitted entry already carries that id; otherwise it gets a fresh one.
// Clients that echo ids back are always paired by identity.
//
// Reordering id-less entries therefore re-pairs them by position. The net
// stock change per reference still comes out right, but the ledger rows for
// that write carry the entry id of whichever entry now sits at each position.
// Clients that need a stable per-entry history must echo the ids.
func AdoptIDs(submitted, stored []uuid.UUID) []uuid.UUID {
	claimed := make(map[uuid.UUID]bool, len(submitted))
	for _, id := range submitted {
		if id != uuid.Nil {
			claimed[id] = true
		}
	}

	out := make([]uuid.UUID, len(submitted))
	copy(out, submitted)
	for i, id := range out {
		if id != uuid.Nil {
			continue
		}
		if i < len(stored) && !claimed[stored[i]] {
			out[i] = stored[i]
			claimed[stored[i]] = true
			continue
		}
		out[i] = uuid.New()
	}
	return out
}
