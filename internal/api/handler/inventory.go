package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchtrack/internal/api/response"
	"github.com/kiranshivaraju/batchtrack/internal/store"
	"github.com/kiranshivaraju/batchtrack/pkg/models"
)

// InventoryStore is the part of the store the inventory handlers use.
type InventoryStore interface {
	CreateIngredient(ctx context.Context, ing *models.Ingredient) error
	GetIngredient(ctx context.Context, id uuid.UUID) (*models.Ingredient, error)
	CreateIngredientMix(ctx context.Context, mix *models.IngredientMix) error
	GetIngredientMix(ctx context.Context, id uuid.UUID) (*models.IngredientMix, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type stockRequest struct {
	Name  string  `json:"name"`
	Unit  string  `json:"unit"`
	Stock float64 `json:"stock"`

	DefaultIngredientID *uuid.UUID `json:"default_ingredient_id"`
}

func decodeStockRequest(w http.ResponseWriter, r *http.Request) (*stockRequest, bool) {
	var req stockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return nil, false
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
		return nil, false
	}
	if req.Stock < 0 {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "stock must not be negative", nil)
		return nil, false
	}
	return &req, true
}

// NewCreateIngredientHandler returns an http.HandlerFunc for POST /api/v1/ingredients.
func NewCreateIngredientHandler(st InventoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeStockRequest(w, r)
		if !ok {
			return
		}
		unit := req.Unit
		if unit == "" {
			unit = "g"
		}

		now := time.Now().UTC()
		ing := &models.Ingredient{
			ID: uuid.New(), Name: req.Name, Unit: unit, Stock: req.Stock,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := st.CreateIngredient(r.Context(), ing); err != nil {
			writeInventoryError(w, "create ingredient", err)
			return
		}
		response.Created(w, ing)
	}
}

// NewGetIngredientHandler returns an http.HandlerFunc for GET /api/v1/ingredients/{id}.
func NewGetIngredientHandler(st InventoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := resourceID(w, r)
		if !ok {
			return
		}
		ing, err := st.GetIngredient(r.Context(), id)
		if err != nil {
			writeInventoryError(w, "get ingredient", err)
			return
		}
		response.JSON(w, ing)
	}
}

// NewCreateIngredientMixHandler returns an http.HandlerFunc for POST /api/v1/ingredient-mixes.
func NewCreateIngredientMixHandler(st InventoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeStockRequest(w, r)
		if !ok {
			return
		}

		now := time.Now().UTC()
		mix := &models.IngredientMix{
			ID: uuid.New(), Name: req.Name, Stock: req.Stock,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := st.CreateIngredientMix(r.Context(), mix); err != nil {
			writeInventoryError(w, "create ingredient mix", err)
			return
		}
		response.Created(w, mix)
	}
}

// NewGetIngredientMixHandler returns an http.HandlerFunc for GET /api/v1/ingredient-mixes/{id}.
func NewGetIngredientMixHandler(st InventoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := resourceID(w, r)
		if !ok {
			return
		}
		mix, err := st.GetIngredientMix(r.Context(), id)
		if err != nil {
			writeInventoryError(w, "get ingredient mix", err)
			return
		}
		response.JSON(w, mix)
	}
}

// NewCreateProductHandler returns an http.HandlerFunc for POST /api/v1/products.
// default_ingredient_id may name an ingredient or an ingredient mix.
func NewCreateProductHandler(st InventoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeStockRequest(w, r)
		if !ok {
			return
		}
		if req.DefaultIngredientID == nil || *req.DefaultIngredientID == uuid.Nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "default_ingredient_id is required", nil)
			return
		}

		now := time.Now().UTC()
		p := &models.Product{
			ID: uuid.New(), Name: req.Name, DefaultIngredientID: *req.DefaultIngredientID, Stock: req.Stock,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := st.CreateProduct(r.Context(), p); err != nil {
			writeInventoryError(w, "create product", err)
			return
		}
		response.Created(w, p)
	}
}

// NewGetProductHandler returns an http.HandlerFunc for GET /api/v1/products/{id}.
func NewGetProductHandler(st InventoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := resourceID(w, r)
		if !ok {
			return
		}
		p, err := st.GetProduct(r.Context(), id)
		if err != nil {
			writeInventoryError(w, "get product", err)
			return
		}
		response.JSON(w, p)
	}
}

func resourceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "id must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func writeInventoryError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, store.ErrDuplicateKey):
		response.Error(w, http.StatusConflict, "CONFLICT", "A record with this name already exists", nil)
	default:
		slog.Error("inventory operation failed", "op", op, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
