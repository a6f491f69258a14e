package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tenant-onboarding/internal/domain"
	"github.com/tenant-onboarding/internal/dto"
	"github.com/tenant-onboarding/internal/middleware"
	"github.com/tenant-onboarding/internal/service"
)

var errMissingTenant = errors.New("tenant is not set on the request")

// base - общие для обработчиков ответы и разбор запросов
type base struct {
	validator *validator.Validate
	logger    *slog.Logger
}

func newBase(logger *slog.Logger) base {
	return base{validator: service.NewValidator(), logger: logger}
}

func (h *base) tenant(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := middleware.TenantFrom(r.Context())
	if !ok {
		h.logger.Error("tenant middleware is not installed", slog.String("path", r.URL.Path))
		h.handleServiceError(w, r, errMissingTenant)
		return uuid.Nil, false
	}
	return id, true
}

func (h *base) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid "+name, err.Error())
		return uuid.Nil, false
	}
	return id, true
}

// decode читает JSON тело и проверяет его тегами validate
func (h *base) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		if fields := service.ValidationFields(err); fields != nil {
			h.handleServiceError(w, r, domain.NewValidationError(fields))
			return false
		}
		h.respondError(w, http.StatusBadRequest, "validation error", err.Error())
		return false
	}
	return true
}

func (h *base) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &verr):
		h.respondJSON(w, http.StatusUnprocessableEntity, dto.ErrorResponse{
			Error:  domain.ErrValidationFailed.Error(),
			Fields: verr.Fields,
		})
	case errors.Is(err, domain.ErrInvalidStep),
		errors.Is(err, domain.ErrInvalidTargetType),
		errors.Is(err, domain.ErrEmptyFile):
		h.respondError(w, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, domain.ErrFileTooLarge), errors.As(err, &maxBytes):
		h.respondError(w, http.StatusRequestEntityTooLarge, domain.ErrFileTooLarge.Error(), "")
	case errors.Is(err, domain.ErrDepartmentNotFound),
		errors.Is(err, domain.ErrPositionNotFound),
		errors.Is(err, domain.ErrImportJobNotFound),
		errors.Is(err, domain.ErrStepDataNotFound):
		h.respondError(w, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, domain.ErrInvalidStepOrder),
		errors.Is(err, domain.ErrStepNotSkippable),
		errors.Is(err, domain.ErrSetupAlreadyActivated),
		errors.Is(err, domain.ErrDuplicateCode),
		errors.Is(err, domain.ErrHasDependentPositions),
		errors.Is(err, domain.ErrInvalidJobTransition),
		errors.Is(err, domain.ErrImportJobLeased):
		h.respondError(w, http.StatusConflict, err.Error(), "")
	default:
		h.logger.Error("internal error",
			slog.Any("error", err),
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.RequestIDFrom(r.Context())),
		)
		h.respondError(w, http.StatusInternalServerError, "internal server error", "")
	}
}

func (h *base) respondJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.Any("error", err))
	}
}

func (h *base) respondError(w http.ResponseWriter, status int, errMsg, details string) {
	resp := dto.ErrorResponse{Error: errMsg}
	if details != "" {
		resp.Message = details
	}
	h.respondJSON(w, status, resp)
}
