// Package batch implements the production-run lifecycle: creation, phase
// submission with stock propagation, completion and deletion.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchtrack/internal/cache"
	"github.com/kiranshivaraju/batchtrack/internal/store"
	"github.com/kiranshivaraju/batchtrack/pkg/models"
)

// DefaultPageSize is used when List is called without a limit.
const DefaultPageSize = 20

// PhaseInput is a phase submission. Only the field matching Phase is read.
// A nil Entries list on Seasoning or Vacuum keeps the stored entries.
type PhaseInput struct {
	Phase     models.Phase
	Sourcing  *models.SourcingPhase
	Prepping  *models.PreppingPhase
	Curing    *models.CuringPhase
	Seasoning *models.SeasoningPhase
	Vacuum    *models.VacuumPhase

	// ExpectedVersion, when non-zero, must equal the stored batch version.
	ExpectedVersion int64
}

// Service orchestrates batch writes. Every write runs in one store
// transaction that holds the batch row lock, so concurrent updates of the
// same batch are applied one after another.
type Service struct {
	store    store.Store
	cache    cache.Cache
	cacheTTL time.Duration
	now      func() time.Time
}

// NewService creates a new Service.
func NewService(st store.Store, ca cache.Cache, cacheTTL time.Duration) *Service {
	return &Service{
		store:    st,
		cache:    ca,
		cacheTTL: cacheTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create allocates the next batch number and stores a batch holding only
// its sourcing phase. The number and the row commit together.
func (s *Service) Create(ctx context.Context, sourcing models.SourcingPhase) (*models.Batch, error) {
	if err := validateSourcing(&sourcing); err != nil {
		return nil, err
	}

	var created *models.Batch
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		id, err := tx.NextSequence(ctx, models.BatchSequence)
		if err != nil {
			return err
		}
		b := models.NewBatch(id, sourcing, s.now())
		Recompute(b)
		if err := validateDerived(models.PhaseSourcing, b); err != nil {
			return err
		}
		if err := tx.InsertBatch(ctx, b); err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		return nil, s.failure("create batch", 0, err)
	}

	s.remember(ctx, created)
	slog.Info("batch created", "batch_id", created.ID)
	return created, nil
}

// UpdatePhase replaces one phase of a batch. Seasoning and vacuum changes are
// diffed against the stored entries and the difference is applied to stock
// in the same transaction as the batch write.
func (s *Service) UpdatePhase(ctx context.Context, id int64, in PhaseInput) (*models.Batch, error) {
	var updated *models.Batch
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		b, err := s.lock(ctx, tx, id, in.ExpectedVersion)
		if err != nil {
			return err
		}

		switch in.Phase {
		case models.PhaseSourcing:
			if err := validateSourcing(in.Sourcing); err != nil {
				return err
			}
			b.Sourcing = in.Sourcing
		case models.PhasePrepping:
			if err := validatePrepping(in.Prepping); err != nil {
				return err
			}
			b.Prepping = in.Prepping
		case models.PhaseCuring:
			if err := validateCuring(in.Curing); err != nil {
				return err
			}
			b.Curing = in.Curing
		case models.PhaseSeasoning:
			if err := s.replaceSeasoning(ctx, tx, b, in.Seasoning); err != nil {
				return err
			}
		case models.PhaseVacuum:
			if err := s.replaceVacuum(ctx, tx, b, in.Vacuum); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w %q", ErrUnknownPhase, in.Phase)
		}

		Recompute(b)
		if err := validateDerived(in.Phase, b); err != nil {
			return err
		}
		if err := s.save(ctx, tx, b); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, s.failure("update phase "+string(in.Phase), id, err)
	}

	s.remember(ctx, updated)
	return updated, nil
}

// Finish stamps the finish time. A batch can only be finished once.
func (s *Service) Finish(ctx context.Context, id int64) (*models.Batch, error) {
	var finished *models.Batch
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		b, err := s.lock(ctx, tx, id, 0)
		if err != nil {
			return err
		}
		if b.Finished() {
			return ErrAlreadyFinished
		}
		now := s.now()
		b.FinishTime = &now
		if err := s.save(ctx, tx, b); err != nil {
			return err
		}
		finished = b
		return nil
	})
	if err != nil {
		return nil, s.failure("finish batch", id, err)
	}

	s.remember(ctx, finished)
	slog.Info("batch finished", "batch_id", id, "elapsed_hours", finished.TotalElapsedTimeHours)
	return finished, nil
}

// Delete removes the batch row. Stock changes the batch caused stay applied.
func (s *Service) Delete(ctx context.Context, id int64) (*models.Batch, error) {
	var deleted *models.Batch
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		b, err := tx.DeleteBatch(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return ErrBatchNotFound
		}
		if err != nil {
			return err
		}
		deleted = b
		return nil
	})
	if err != nil {
		return nil, s.failure("delete batch", id, err)
	}

	s.invalidate(ctx, id)
	slog.Info("batch deleted", "batch_id", id)
	return deleted, nil
}

// Get reads a batch, serving from the cache when possible. A miss fills the
// cache without overwriting, so a write that lands between the store read
// and the fill keeps its newer entry.
func (s *Service) Get(ctx context.Context, id int64) (*models.Batch, error) {
	if b, ok := s.cached(ctx, id); ok {
		return b, nil
	}

	b, err := s.store.GetBatch(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, s.failure("get batch", id, err)
	}

	s.fill(ctx, b)
	return b, nil
}

// List returns one page of batches, newest first, with the total count.
// Pages start at 1.
func (s *Service) List(ctx context.Context, page, limit int) ([]*models.Batch, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	batches, total, err := s.store.ListBatches(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, s.failure("list batches", 0, err)
	}
	return batches, total, nil
}

// Movements returns the stock ledger written by a batch's phase updates.
// Rows survive batch deletion, so no existence check is made.
func (s *Service) Movements(ctx context.Context, id int64) ([]*models.StockMovement, error) {
	movements, err := s.store.ListStockMovements(ctx, id)
	if err != nil {
		return nil, s.failure("list stock movements", id, err)
	}
	return movements, nil
}

func (s *Service) lock(ctx context.Context, tx store.Tx, id int64, expectedVersion int64) (*models.Batch, error) {
	b, err := tx.LockBatch(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, err
	}
	if expectedVersion != 0 && expectedVersion != b.Version {
		return nil, ErrVersionConflict
	}
	return b, nil
}

// save recomputes the derived fields and writes b under a version check.
func (s *Service) save(ctx context.Context, tx store.Tx, b *models.Batch) error {
	prev := b.Version
	b.Version = prev + 1
	b.UpdatedAt = s.now()
	Recompute(b)

	err := tx.UpdateBatch(ctx, b, prev)
	if errors.Is(err, store.ErrConflict) {
		return ErrVersionConflict
	}
	return err
}

func (s *Service) replaceSeasoning(ctx context.Context, tx store.Tx, b *models.Batch, in *models.SeasoningPhase) error {
	if in == nil {
		return fieldError(models.PhaseSeasoning, "payload", "is required")
	}
	if err := validateTotals(models.PhaseSeasoning, in.WorkTime, in.ConsumableCost); err != nil {
		return err
	}

	entries := b.Seasoning.Entries
	if in.Entries != nil {
		if err := validateSeasoningEntries(in.Entries); err != nil {
			return err
		}
		entries = slices.Clone(in.Entries)
		ids := AdoptIDs(seasoningIDs(entries), seasoningIDs(b.Seasoning.Entries))
		for i := range entries {
			entries[i].ID = ids[i]
			if entries[i].RackPositions == nil {
				entries[i].RackPositions = []string{}
			}
		}
	}

	for _, adj := range SeasoningDeltas(b.Seasoning.Entries, entries) {
		if err := s.consume(ctx, tx, b.ID, adj); err != nil {
			return err
		}
	}

	b.Seasoning = models.SeasoningPhase{
		Entries:        entries,
		ConsumableCost: in.ConsumableCost,
		WorkTime:       in.WorkTime,
	}
	return nil
}

func (s *Service) replaceVacuum(ctx context.Context, tx store.Tx, b *models.Batch, in *models.VacuumPhase) error {
	if in == nil {
		return fieldError(models.PhaseVacuum, "payload", "is required")
	}
	if err := validateTotals(models.PhaseVacuum, in.WorkTime, in.ConsumableCost); err != nil {
		return err
	}

	entries := b.Vacuum.Entries
	if in.Entries != nil {
		entries = slices.Clone(in.Entries)
		if err := inheritRefs(entries, b.Seasoning.Entries); err != nil {
			return err
		}
		if err := validateVacuumEntries(entries); err != nil {
			return err
		}
		ids := AdoptIDs(vacuumIDs(entries), vacuumIDs(b.Vacuum.Entries))
		for i := range entries {
			entries[i].ID = ids[i]
		}
	}

	for _, adj := range VacuumDeltas(b.Vacuum.Entries, entries) {
		if err := s.produce(ctx, tx, b.ID, adj); err != nil {
			return err
		}
	}

	b.Vacuum = models.VacuumPhase{
		Entries:        entries,
		ConsumableCost: in.ConsumableCost,
		WorkTime:       in.WorkTime,
	}
	return nil
}

// inheritRefs gives vacuum entries that name no ingredient or mix the one of
// their seasoning entry: the linked one when seasoning_entry_id is set,
// otherwise the one at the same position.
func inheritRefs(entries []models.VacuumEntry, seasoning []models.SeasoningEntry) error {
	byID := make(map[uuid.UUID]models.StockRef, len(seasoning))
	for _, se := range seasoning {
		byID[se.ID] = se.StockRef
	}
	for i := range entries {
		if link := entries[i].SeasoningEntryID; link != nil {
			ref, ok := byID[*link]
			if !ok {
				return entryError(models.PhaseVacuum, i, "seasoning_entry_id", "no seasoning entry with this id")
			}
			if entries[i].StockRef.Empty() {
				entries[i].StockRef = ref
			}
			continue
		}
		if entries[i].StockRef.Empty() && i < len(seasoning) {
			se := seasoning[i]
			entries[i].StockRef = se.StockRef
			entries[i].SeasoningEntryID = &se.ID
		}
	}
	return nil
}

func seasoningIDs(entries []models.SeasoningEntry) []uuid.UUID {
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func vacuumIDs(entries []models.VacuumEntry) []uuid.UUID {
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

// consume applies a seasoning adjustment: more spice used means less stock.
func (s *Service) consume(ctx context.Context, tx store.Tx, batchID int64, adj Adjustment) error {
	refID, isMix, ok := adj.Ref.Target()
	if !ok {
		return nil
	}

	targetType := models.TargetIngredient
	decrement := tx.DecrementIngredientStock
	if isMix {
		targetType = models.TargetIngredientMix
		decrement = tx.DecrementIngredientMixStock
	}

	after, err := decrement(ctx, refID, adj.Delta)
	if errors.Is(err, store.ErrNotFound) {
		s.skipped(batchID, models.PhaseSeasoning, adj, targetType, refID)
		return nil
	}
	if err != nil {
		return err
	}
	if !finite(after) {
		return fieldError(models.PhaseSeasoning, "entries", "stock change is out of range")
	}
	return s.record(ctx, tx, batchID, models.PhaseSeasoning, adj.EntryID, targetType, refID, -adj.Delta, after)
}

// produce applies a vacuum adjustment to the product made from the entry's
// ingredient or mix: more dried weight means more stock.
func (s *Service) produce(ctx context.Context, tx store.Tx, batchID int64, adj Adjustment) error {
	refID, _, ok := adj.Ref.Target()
	if !ok {
		return nil
	}

	product, err := tx.FindProductByDefaultIngredient(ctx, refID)
	if errors.Is(err, store.ErrNotFound) {
		s.skipped(batchID, models.PhaseVacuum, adj, models.TargetProduct, refID)
		return nil
	}
	if err != nil {
		return err
	}

	after, err := tx.IncrementProductStock(ctx, product.ID, adj.Delta)
	if errors.Is(err, store.ErrNotFound) {
		s.skipped(batchID, models.PhaseVacuum, adj, models.TargetProduct, product.ID)
		return nil
	}
	if err != nil {
		return err
	}
	if !finite(after) {
		return fieldError(models.PhaseVacuum, "entries", "stock change is out of range")
	}
	return s.record(ctx, tx, batchID, models.PhaseVacuum, adj.EntryID, models.TargetProduct, product.ID, adj.Delta, after)
}

func (s *Service) record(ctx context.Context, tx store.Tx, batchID int64, phase models.Phase, entryID uuid.UUID,
	targetType string, targetID uuid.UUID, change, after float64) error {
	return tx.RecordStockMovement(ctx, &models.StockMovement{
		ID:             uuid.New(),
		BatchID:        batchID,
		Phase:          phase,
		EntryID:        entryID,
		TargetType:     targetType,
		TargetID:       targetID,
		QuantityChange: change,
		QuantityAfter:  after,
		CreatedAt:      s.now(),
	})
}

// skipped logs an adjustment whose target does not exist. The change is
// dropped and the rest of the update goes ahead.
func (s *Service) skipped(batchID int64, phase models.Phase, adj Adjustment, targetType string, targetID uuid.UUID) {
	slog.Warn("stock adjustment skipped: target not found",
		"batch_id", batchID,
		"phase", phase,
		"entry_id", adj.EntryID,
		"target_type", targetType,
		"target_id", targetID,
		"delta", adj.Delta,
	)
}

// failure passes client errors through unchanged and logs everything else
// with the operation that hit it.
func (s *Service) failure(op string, id int64, err error) error {
	if IsClientError(err) {
		return err
	}
	slog.Error("batch operation failed", "op", op, "batch_id", id, "error", err)
	return fmt.Errorf("%s: %w", op, err)
}

// --- cache ---

func (s *Service) cached(ctx context.Context, id int64) (*models.Batch, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, found, err := s.cache.Get(ctx, cache.BatchKey(id))
	if err != nil {
		slog.Warn("batch cache read failed", "batch_id", id, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var b models.Batch
	if err := json.Unmarshal(raw, &b); err != nil {
		slog.Warn("batch cache entry unreadable", "batch_id", id, "error", err)
		s.invalidate(ctx, id)
		return nil, false
	}
	b.Normalize()
	return &b, true
}

// remember writes b through to the cache after a committed write.
func (s *Service) remember(ctx context.Context, b *models.Batch) {
	raw, ok := s.encode(b)
	if !ok {
		return
	}
	if err := s.cache.Set(ctx, cache.BatchKey(b.ID), raw, s.cacheTTL); err != nil {
		slog.Warn("batch cache write failed", "batch_id", b.ID, "error", err)
		s.invalidate(ctx, b.ID)
	}
}

// fill caches a batch read from the store unless an entry already exists.
func (s *Service) fill(ctx context.Context, b *models.Batch) {
	raw, ok := s.encode(b)
	if !ok {
		return
	}
	if _, err := s.cache.SetNX(ctx, cache.BatchKey(b.ID), raw, s.cacheTTL); err != nil {
		slog.Warn("batch cache fill failed", "batch_id", b.ID, "error", err)
	}
}

func (s *Service) encode(b *models.Batch) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := json.Marshal(b)
	if err != nil {
		slog.Error("batch cache encode failed", "batch_id", b.ID, "error", err)
		return nil, false
	}
	return raw, true
}

func (s *Service) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.BatchKey(id)); err != nil {
		slog.Warn("batch cache invalidation failed", "batch_id", id, "error", err)
	}
}
