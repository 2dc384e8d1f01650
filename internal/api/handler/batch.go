package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/batchtrack/internal/api/response"
	"github.com/kiranshivaraju/batchtrack/internal/batch"
	"github.com/kiranshivaraju/batchtrack/pkg/models"
)

// BatchService defines the batch operations the handlers depend on.
type BatchService interface {
	Create(ctx context.Context, sourcing models.SourcingPhase) (*models.Batch, error)
	UpdatePhase(ctx context.Context, id int64, in batch.PhaseInput) (*models.Batch, error)
	Finish(ctx context.Context, id int64) (*models.Batch, error)
	Delete(ctx context.Context, id int64) (*models.Batch, error)
	Get(ctx context.Context, id int64) (*models.Batch, error)
	List(ctx context.Context, page, limit int) ([]*models.Batch, int, error)
	Movements(ctx context.Context, id int64) ([]*models.StockMovement, error)
}

// NewCreateBatchHandler returns an http.HandlerFunc for POST /api/v1/batches.
// The body is the sourcing phase of the new batch.
func NewCreateBatchHandler(svc BatchService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sourcing models.SourcingPhase
		if err := json.NewDecoder(r.Body).Decode(&sourcing); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		b, err := svc.Create(r.Context(), sourcing)
		if err != nil {
			writeBatchError(w, err)
			return
		}

		setETag(w, b)
		response.Created(w, b)
	}
}

const maxPageSize = 100

// NewListBatchesHandler returns an http.HandlerFunc for GET /api/v1/batches.
// Supports ?page= (default 1) and ?limit= (default 20, max 100).
func NewListBatchesHandler(svc BatchService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := queryInt(r, "page", 1)
		limit := queryInt(r, "limit", batch.DefaultPageSize)
		if page < 1 {
			page = 1
		}
		if limit < 1 {
			limit = batch.DefaultPageSize
		}
		if limit > maxPageSize {
			limit = maxPageSize
		}

		batches, total, err := svc.List(r.Context(), page, limit)
		if err != nil {
			writeBatchError(w, err)
			return
		}

		response.Collection(w, batches, response.Page(page, limit, total))
	}
}

// NewGetBatchHandler returns an http.HandlerFunc for GET /api/v1/batches/{batchID}.
func NewGetBatchHandler(svc BatchService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := batchID(w, r)
		if !ok {
			return
		}

		b, err := svc.Get(r.Context(), id)
		if err != nil {
			writeBatchError(w, err)
			return
		}

		setETag(w, b)
		response.JSON(w, b)
	}
}

// NewUpdatePhaseHandler returns an http.HandlerFunc for
// PUT /api/v1/batches/{batchID}/phases/{phase}. The body is the phase object.
// An If-Match header carrying the batch version rejects stale writes.
func NewUpdatePhaseHandler(svc BatchService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := batchID(w, r)
		if !ok {
			return
		}

		phase, err := models.ParsePhase(chi.URLParam(r, "phase"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(),
				map[string]any{"phase": chi.URLParam(r, "phase")})
			return
		}

		in := batch.PhaseInput{Phase: phase}
		if h := r.Header.Get("If-Match"); h != "" {
			v, err := strconv.ParseInt(strings.Trim(h, `"`), 10, 64)
			if err != nil || v <= 0 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"If-Match must be a positive batch version", nil)
				return
			}
			in.ExpectedVersion = v
		}

		dec := json.NewDecoder(r.Body)
		switch phase {
		case models.PhaseSourcing:
			err = dec.Decode(&in.Sourcing)
		case models.PhasePrepping:
			err = dec.Decode(&in.Prepping)
		case models.PhaseCuring:
			err = dec.Decode(&in.Curing)
		case models.PhaseSeasoning:
			err = dec.Decode(&in.Seasoning)
		case models.PhaseVacuum:
			err = dec.Decode(&in.Vacuum)
		}
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		b, err := svc.UpdatePhase(r.Context(), id, in)
		if err != nil {
			writeBatchError(w, err)
			return
		}

		setETag(w, b)
		response.JSON(w, b)
	}
}

// NewFinishBatchHandler returns an http.HandlerFunc for POST /api/v1/batches/{batchID}/finish.
func NewFinishBatchHandler(svc BatchService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := batchID(w, r)
		if !ok {
			return
		}

		b, err := svc.Finish(r.Context(), id)
		if err != nil {
			writeBatchError(w, err)
			return
		}

		setETag(w, b)
		response.JSON(w, b)
	}
}

// NewDeleteBatchHandler returns an http.HandlerFunc for DELETE /api/v1/batches/{batchID}.
func NewDeleteBatchHandler(svc BatchService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := batchID(w, r)
		if !ok {
			return
		}

		b, err := svc.Delete(r.Context(), id)
		if err != nil {
			writeBatchError(w, err)
			return
		}

		response.JSON(w, map[string]any{"deleted": b})
	}
}

// NewBatchMovementsHandler returns an http.HandlerFunc for GET /api/v1/batches/{batchID}/movements.
func NewBatchMovementsHandler(svc BatchService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := batchID(w, r)
		if !ok {
			return
		}

		movements, err := svc.Movements(r.Context(), id)
		if err != nil {
			writeBatchError(w, err)
			return
		}
		response.JSON(w, movements)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

func batchID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "batchID"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "batchID must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func setETag(w http.ResponseWriter, b *models.Batch) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(b.Version, 10)))
}

// writeBatchError maps service errors onto the error envelope.
func writeBatchError(w http.ResponseWriter, err error) {
	var ve *batch.ValidationError
	switch {
	case errors.As(err, &ve):
		details := map[string]any{"phase": ve.Phase, "field": ve.Field}
		if ve.Index >= 0 {
			details["index"] = ve.Index
		}
		response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", ve.Error(), details)
	case errors.Is(err, batch.ErrUnknownPhase):
		response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
	case errors.Is(err, batch.ErrBatchNotFound):
		response.Error(w, http.StatusNotFound, "BATCH_NOT_FOUND", "Batch not found", nil)
	case errors.Is(err, batch.ErrVersionConflict):
		response.Error(w, http.StatusConflict, "CONFLICT",
			"Batch was modified by another request; reload and retry", nil)
	case errors.Is(err, batch.ErrAlreadyFinished):
		response.Error(w, http.StatusConflict, "BATCH_FINISHED", "Batch is already finished", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
