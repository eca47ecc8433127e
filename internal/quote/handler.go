package quote

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pricing/internal/catalog"
	"github.com/noah-isme/backend-pricing/internal/common"
	"github.com/noah-isme/backend-pricing/internal/document"
	"github.com/noah-isme/backend-pricing/internal/obs"
	"github.com/noah-isme/backend-pricing/internal/pricing"
	"github.com/noah-isme/backend-pricing/internal/resilience"
)

// Handler exposes the quote service over HTTP.
type Handler struct {
	Svc       *Service
	Validator *validator.Validate
	Logger    zerolog.Logger
}

// Routes mounts the pricing endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/quotes", h.Quote)
	r.Post("/price-tiers/resolve", h.ResolveTier)
	r.Post("/price-tiers/margin", h.Margin)
	r.Post("/units/convert", h.ConvertUnits)
	r.Post("/currency/convert", h.ConvertCurrency)
}

// Quote prices a full document.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req Request
	if !h.decode(w, r, &req) {
		return
	}
	q, err := h.Svc.Quote(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, q)
}

// ResolveTier runs the price cascade for one target.
func (h *Handler) ResolveTier(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Svc.ResolveTier(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, res)
}

// Margin recomputes a tier after a margin, price or threshold edit.
func (h *Handler) Margin(w http.ResponseWriter, r *http.Request) {
	var req MarginRequest
	if !h.decode(w, r, &req) {
		return
	}
	tier, err := h.Svc.Margin(req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, tier)
}

// ConvertUnits expresses a quantity in base units.
func (h *Handler) ConvertUnits(w http.ResponseWriter, r *http.Request) {
	var req UnitRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Svc.ConvertUnits(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, res)
}

// ConvertCurrency converts an amount to or from the functional currency.
func (h *Handler) ConvertCurrency(w http.ResponseWriter, r *http.Request) {
	var req CurrencyRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Svc.ConvertCurrency(req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, res)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := common.DecodeJSON(r.Body, dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
			return false
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	if h.Validator == nil {
		return true
	}
	if err := h.Validator.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Namespace()] = fe.Tag()
			}
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request", fields)
			return false
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := classify(err)
	if appErr.Status() >= http.StatusInternalServerError {
		logger := obs.LoggerFrom(r.Context(), h.Logger)
		logger.Error().Err(err).Str("path", r.URL.Path).Str("code", appErr.Code).Msg("quote_failed")
	}
	obs.CountEngineError(appErr.Code)
	var lineErr *pricing.LineError
	if errors.As(err, &lineErr) {
		appErr = appErr.WithDetails(map[string]int{"line": lineErr.Index})
	}
	common.WriteError(w, appErr)
}

// classify maps service failures onto API errors.
func classify(err error) *common.AppError {
	if appErr, ok := common.AsAppError(err); ok {
		return appErr
	}
	switch {
	case errors.Is(err, pricing.ErrInvalidRate):
		return common.NewAppError("INVALID_RATE", "exchange rate must be positive for a non-functional currency", http.StatusUnprocessableEntity, err)
	case errors.Is(err, pricing.ErrDiscountExceedsLine):
		return common.NewAppError("DISCOUNT_EXCEEDS_LINE", "line discount exceeds the line amount", http.StatusUnprocessableEntity, err)
	case errors.Is(err, pricing.ErrNegativeDiscount):
		return common.NewAppError("NEGATIVE_DISCOUNT", "discounts must not be negative", http.StatusUnprocessableEntity, err)
	case errors.Is(err, pricing.ErrDuplicateUnit), errors.Is(err, pricing.ErrInvalidFactor):
		return common.NewAppError("INVALID_UNIT_PLAN", err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, document.ErrInvalidQuantity), errors.Is(err, document.ErrNegativePrice),
		errors.Is(err, document.ErrMissingItem), errors.Is(err, ErrInvalidRequest):
		return common.NewAppError("INVALID_REQUEST", err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, catalog.ErrNotFound):
		return common.NewAppError("ITEM_NOT_FOUND", err.Error(), http.StatusNotFound, err)
	case errors.Is(err, catalog.ErrInvalidSnapshot):
		return common.NewAppError("INVALID_CATALOG_SNAPSHOT", "catalog returned an unusable item", http.StatusBadGateway, err)
	case errors.Is(err, resilience.ErrOpenCircuit):
		return common.NewAppError("CATALOG_UNAVAILABLE", "catalog temporarily unavailable", http.StatusServiceUnavailable, err)
	case errors.Is(err, catalog.ErrUpstream):
		return common.NewAppError("CATALOG_UPSTREAM", "catalog request failed", http.StatusBadGateway, err)
	default:
		return common.NewAppError("INTERNAL", "internal error", http.StatusInternalServerError, err)
	}
}
