package models

import (
	"time"

	"github.com/google/uuid"
)

// Ingredient is a raw seasoning input. Stock is consumed by seasoning entries.
type Ingredient struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	Unit      string    `db:"unit"       json:"unit"`
	Stock     float64   `db:"stock"      json:"stock"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IngredientMix is a pre-blended seasoning with its own stock.
type IngredientMix struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	Stock     float64   `db:"stock"      json:"stock"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Product is a finished good. DefaultIngredientID holds either an ingredient
// or an ingredient-mix id; vacuum output for that seasoning lands here.
type Product struct {
	ID                  uuid.UUID `db:"id"                    json:"id"`
	Name                string    `db:"name"                  json:"name"`
	DefaultIngredientID uuid.UUID `db:"default_ingredient_id" json:"default_ingredient_id"`
	Stock               float64   `db:"stock"                 json:"stock"`
	CreatedAt           time.Time `db:"created_at"            json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"            json:"updated_at"`
}

const (
	TargetIngredient    = "ingredient"
	TargetIngredientMix = "ingredient_mix"
	TargetProduct       = "product"
)

// StockMovement is one applied stock change caused by a phase update.
type StockMovement struct {
	ID             uuid.UUID `db:"id"              json:"id"`
	BatchID        int64     `db:"batch_id"        json:"batch_id"`
	Phase          Phase     `db:"phase"           json:"phase"`
	EntryID        uuid.UUID `db:"entry_id"        json:"entry_id"`
	TargetType     string    `db:"target_type"     json:"target_type"`
	TargetID       uuid.UUID `db:"target_id"       json:"target_id"`
	QuantityChange float64   `db:"quantity_change" json:"quantity_change"`
	QuantityAfter  float64   `db:"quantity_after"  json:"quantity_after"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
}
