package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/batchtrack/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// Rollback after a successful Commit is a no-op.
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- Batches ---

const batchColumns = `id, start_time, finish_time, sourcing, prepping, curing, seasoning, vacuum,
	total_work_time, total_cost, total_elapsed_time_hours, cost_per_kg_dried,
	version, created_at, updated_at`

func scanBatch(row pgx.Row) (*models.Batch, error) {
	var b models.Batch
	var sourcing, prepping, curing, seasoning, vacuum []byte
	if err := row.Scan(&b.ID, &b.StartTime, &b.FinishTime,
		&sourcing, &prepping, &curing, &seasoning, &vacuum,
		&b.TotalWorkTime, &b.TotalCost, &b.TotalElapsedTimeHours, &b.CostPerKgDried,
		&b.Version, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}

	if err := unmarshalOptional(sourcing, &b.Sourcing); err != nil {
		return nil, fmt.Errorf("decode sourcing: %w", err)
	}
	if err := unmarshalOptional(prepping, &b.Prepping); err != nil {
		return nil, fmt.Errorf("decode prepping: %w", err)
	}
	if err := unmarshalOptional(curing, &b.Curing); err != nil {
		return nil, fmt.Errorf("decode curing: %w", err)
	}
	if err := json.Unmarshal(seasoning, &b.Seasoning); err != nil {
		return nil, fmt.Errorf("decode seasoning: %w", err)
	}
	if err := json.Unmarshal(vacuum, &b.Vacuum); err != nil {
		return nil, fmt.Errorf("decode vacuum: %w", err)
	}
	b.Normalize()
	return &b, nil
}

// unmarshalOptional decodes a nullable JSONB column into a pointer field.
func unmarshalOptional[T any](raw []byte, dst **T) error {
	if raw == nil {
		*dst = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	*dst = &v
	return nil
}

// marshalOptional encodes a phase pointer, mapping nil to SQL NULL.
func marshalOptional[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

type phaseColumns struct {
	sourcing, prepping, curing any
	seasoning, vacuum          []byte
}

func encodePhases(b *models.Batch) (*phaseColumns, error) {
	b.Normalize()
	var (
		pc  phaseColumns
		err error
	)
	if pc.sourcing, err = marshalOptional(b.Sourcing); err != nil {
		return nil, fmt.Errorf("encode sourcing: %w", err)
	}
	if pc.prepping, err = marshalOptional(b.Prepping); err != nil {
		return nil, fmt.Errorf("encode prepping: %w", err)
	}
	if pc.curing, err = marshalOptional(b.Curing); err != nil {
		return nil, fmt.Errorf("encode curing: %w", err)
	}
	if pc.seasoning, err = json.Marshal(b.Seasoning); err != nil {
		return nil, fmt.Errorf("encode seasoning: %w", err)
	}
	if pc.vacuum, err = json.Marshal(b.Vacuum); err != nil {
		return nil, fmt.Errorf("encode vacuum: %w", err)
	}
	return &pc, nil
}

func getBatch(ctx context.Context, q querier, id int64, forUpdate bool) (*models.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	b, err := scanBatch(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) GetBatch(ctx context.Context, id int64) (*models.Batch, error) {
	return getBatch(ctx, s.pool, id, false)
}

func (s *PostgresStore) ListBatches(ctx context.Context, limit, offset int) ([]*models.Batch, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM batches`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count batches: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+batchColumns+` FROM batches ORDER BY id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	batches := []*models.Batch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, total, rows.Err()
}

// --- Stock movements ---

func (s *PostgresStore) ListStockMovements(ctx context.Context, batchID int64) ([]*models.StockMovement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, batch_id, phase, entry_id, target_type, target_id, quantity_change, quantity_after, created_at
		 FROM stock_movements WHERE batch_id = $1 ORDER BY created_at, id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list stock movements: %w", err)
	}
	defer rows.Close()

	movements := []*models.StockMovement{}
	for rows.Next() {
		var m models.StockMovement
		if err := rows.Scan(&m.ID, &m.BatchID, &m.Phase, &m.EntryID, &m.TargetType, &m.TargetID,
			&m.QuantityChange, &m.QuantityAfter, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stock movement: %w", err)
		}
		movements = append(movements, &m)
	}
	return movements, rows.Err()
}

// --- Ingredients ---

func (s *PostgresStore) CreateIngredient(ctx context.Context, ing *models.Ingredient) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingredients (id, name, unit, stock, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ing.ID, ing.Name, ing.Unit, ing.Stock, ing.CreatedAt, ing.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create ingredient: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetIngredient(ctx context.Context, id uuid.UUID) (*models.Ingredient, error) {
	var i models.Ingredient
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, unit, stock, created_at, updated_at FROM ingredients WHERE id = $1`, id,
	).Scan(&i.ID, &i.Name, &i.Unit, &i.Stock, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ingredient: %w", err)
	}
	return &i, nil
}

// --- Ingredient mixes ---

func (s *PostgresStore) CreateIngredientMix(ctx context.Context, mix *models.IngredientMix) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingredient_mixes (id, name, stock, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		mix.ID, mix.Name, mix.Stock, mix.CreatedAt, mix.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create ingredient mix: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetIngredientMix(ctx context.Context, id uuid.UUID) (*models.IngredientMix, error) {
	var m models.IngredientMix
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, stock, created_at, updated_at FROM ingredient_mixes WHERE id = $1`, id,
	).Scan(&m.ID, &m.Name, &m.Stock, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ingredient mix: %w", err)
	}
	return &m, nil
}

// --- Products ---

func (s *PostgresStore) CreateProduct(ctx context.Context, p *models.Product) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (id, name, default_ingredient_id, stock, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, p.DefaultIngredientID, p.Stock, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, default_ingredient_id, stock, created_at, updated_at FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.DefaultIngredientID, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// --- Transaction ---

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) NextSequence(ctx context.Context, name string) (int64, error) {
	var value int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO sequences (name, value) VALUES ($1, 1)
		 ON CONFLICT (name) DO UPDATE SET value = sequences.value + 1
		 RETURNING value`, name,
	).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", name, err)
	}
	return value, nil
}

func (t *pgTx) InsertBatch(ctx context.Context, b *models.Batch) error {
	pc, err := encodePhases(b)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO batches (`+batchColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		b.ID, b.StartTime, b.FinishTime, pc.sourcing, pc.prepping, pc.curing, pc.seasoning, pc.vacuum,
		b.TotalWorkTime, b.TotalCost, b.TotalElapsedTimeHours, b.CostPerKgDried,
		b.Version, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func (t *pgTx) LockBatch(ctx context.Context, id int64) (*models.Batch, error) {
	return getBatch(ctx, t.tx, id, true)
}

func (t *pgTx) UpdateBatch(ctx context.Context, b *models.Batch, expectedVersion int64) error {
	pc, err := encodePhases(b)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE batches SET finish_time = $3, sourcing = $4, prepping = $5, curing = $6,
		   seasoning = $7, vacuum = $8, total_work_time = $9, total_cost = $10,
		   total_elapsed_time_hours = $11, cost_per_kg_dried = $12, version = $13, updated_at = $14
		 WHERE id = $1 AND version = $2`,
		b.ID, expectedVersion, b.FinishTime, pc.sourcing, pc.prepping, pc.curing, pc.seasoning, pc.vacuum,
		b.TotalWorkTime, b.TotalCost, b.TotalElapsedTimeHours, b.CostPerKgDried,
		b.Version, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (t *pgTx) DeleteBatch(ctx context.Context, id int64) (*models.Batch, error) {
	b, err := scanBatch(t.tx.QueryRow(ctx,
		`DELETE FROM batches WHERE id = $1 RETURNING `+batchColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delete batch: %w", err)
	}
	return b, nil
}

func (t *pgTx) DecrementIngredientStock(ctx context.Context, id uuid.UUID, amount float64) (float64, error) {
	return adjustStock(ctx, t.tx, "ingredients", id, -amount)
}

func (t *pgTx) DecrementIngredientMixStock(ctx context.Context, id uuid.UUID, amount float64) (float64, error) {
	return adjustStock(ctx, t.tx, "ingredient_mixes", id, -amount)
}

func (t *pgTx) IncrementProductStock(ctx context.Context, id uuid.UUID, amount float64) (float64, error) {
	return adjustStock(ctx, t.tx, "products", id, amount)
}

// adjustStock adds delta to a stock column in a single statement so
// concurrent adjustments never overwrite each other.
func adjustStock(ctx context.Context, q querier, table string, id uuid.UUID, delta float64) (float64, error) {
	var stock float64
	err := q.QueryRow(ctx,
		`UPDATE `+table+` SET stock = stock + $2, updated_at = NOW() WHERE id = $1 RETURNING stock`,
		id, delta,
	).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("adjust %s stock: %w", table, err)
	}
	return stock, nil
}

func (t *pgTx) FindProductByDefaultIngredient(ctx context.Context, refID uuid.UUID) (*models.Product, error) {
	var p models.Product
	err := t.tx.QueryRow(ctx,
		`SELECT id, name, default_ingredient_id, stock, created_at, updated_at
		 FROM products WHERE default_ingredient_id = $1 ORDER BY created_at, id LIMIT 1`, refID,
	).Scan(&p.ID, &p.Name, &p.DefaultIngredientID, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find product by default ingredient: %w", err)
	}
	return &p, nil
}

func (t *pgTx) RecordStockMovement(ctx context.Context, m *models.StockMovement) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO stock_movements (id, batch_id, phase, entry_id, target_type, target_id, quantity_change, quantity_after, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.BatchID, m.Phase, m.EntryID, m.TargetType, m.TargetID, m.QuantityChange, m.QuantityAfter, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("record stock movement: %w", err)
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
