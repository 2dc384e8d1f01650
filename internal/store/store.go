package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchtrack/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrConflict is returned when a versioned write finds the row has moved on.
var ErrConflict = errors.New("stale write: record version changed")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// WithTx runs fn inside a single transaction. Any error returned by fn
	// rolls back every write fn made.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetBatch(ctx context.Context, id int64) (*models.Batch, error)
	// ListBatches returns one page of batches, newest first, and the total count.
	ListBatches(ctx context.Context, limit, offset int) ([]*models.Batch, int, error)
	ListStockMovements(ctx context.Context, batchID int64) ([]*models.StockMovement, error)

	CreateIngredient(ctx context.Context, ing *models.Ingredient) error
	GetIngredient(ctx context.Context, id uuid.UUID) (*models.Ingredient, error)
	CreateIngredientMix(ctx context.Context, mix *models.IngredientMix) error
	GetIngredientMix(ctx context.Context, id uuid.UUID) (*models.IngredientMix, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Tx is the set of writes that must commit together with a batch change.
type Tx interface {
	// NextSequence increments the named counter and returns the new value,
	// creating the counter at 1 if it does not exist.
	NextSequence(ctx context.Context, name string) (int64, error)

	InsertBatch(ctx context.Context, b *models.Batch) error
	// LockBatch loads a batch and holds its row lock until the transaction ends.
	LockBatch(ctx context.Context, id int64) (*models.Batch, error)
	// UpdateBatch writes b if the stored version still equals expectedVersion.
	UpdateBatch(ctx context.Context, b *models.Batch, expectedVersion int64) error
	DeleteBatch(ctx context.Context, id int64) (*models.Batch, error)

	// Stock changes are applied in one statement and return the new stock.
	DecrementIngredientStock(ctx context.Context, id uuid.UUID, amount float64) (float64, error)
	DecrementIngredientMixStock(ctx context.Context, id uuid.UUID, amount float64) (float64, error)
	FindProductByDefaultIngredient(ctx context.Context, refID uuid.UUID) (*models.Product, error)
	IncrementProductStock(ctx context.Context, id uuid.UUID, amount float64) (float64, error)

	RecordStockMovement(ctx context.Context, m *models.StockMovement) error
}
