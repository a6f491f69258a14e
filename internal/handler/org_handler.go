package handler

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tenant-onboarding/internal/domain"
	"github.com/tenant-onboarding/internal/dto"
	"github.com/tenant-onboarding/internal/service"
)

// OrgHandler обслуживает ручной ввод подразделений и должностей
type OrgHandler struct {
	base
	org service.OrgService
}

func NewOrgHandler(org service.OrgService, logger *slog.Logger) *OrgHandler {
	return &OrgHandler{base: newBase(logger), org: org}
}

func (h *OrgHandler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req dto.CreateDepartmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	dept, err := h.org.CreateDepartment(r.Context(), tenantID, &req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, toDepartmentResponse(dept))
}

func (h *OrgHandler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}

	depts, err := h.org.ListDepartments(r.Context(), tenantID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	resp := make([]dto.DepartmentResponse, 0, len(depts))
	for i := range depts {
		resp = append(resp, toDepartmentResponse(&depts[i]))
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// GetDepartment возвращает подразделение; include_positions=true добавляет его должности
func (h *OrgHandler) GetDepartment(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	dept, err := h.org.GetDepartment(r.Context(), tenantID, id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	resp := toDepartmentResponse(dept)

	if r.URL.Query().Get("include_positions") == "true" {
		positions, err := h.org.ListPositions(r.Context(), tenantID, &dept.ID)
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}
		resp.Positions = make([]dto.PositionResponse, 0, len(positions))
		for i := range positions {
			resp.Positions = append(resp.Positions, toPositionResponse(&positions[i]))
		}
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func (h *OrgHandler) UpdateDepartment(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req dto.UpdateDepartmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	dept, err := h.org.UpdateDepartment(r.Context(), tenantID, id, &req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toDepartmentResponse(dept))
}

func (h *OrgHandler) DeleteDepartment(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.org.DeleteDepartment(r.Context(), tenantID, id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrgHandler) CreatePosition(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req dto.CreatePositionRequest
	if !h.decode(w, r, &req) {
		return
	}

	pos, err := h.org.CreatePosition(r.Context(), tenantID, &req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, toPositionResponse(pos))
}

// ListPositions поддерживает фильтр ?department_id=
func (h *OrgHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}

	var deptID *uuid.UUID
	if raw := r.URL.Query().Get("department_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid department_id", err.Error())
			return
		}
		deptID = &id
	}

	positions, err := h.org.ListPositions(r.Context(), tenantID, deptID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	resp := make([]dto.PositionResponse, 0, len(positions))
	for i := range positions {
		resp = append(resp, toPositionResponse(&positions[i]))
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func (h *OrgHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	pos, err := h.org.GetPosition(r.Context(), tenantID, id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toPositionResponse(pos))
}

func (h *OrgHandler) UpdatePosition(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req dto.UpdatePositionRequest
	if !h.decode(w, r, &req) {
		return
	}

	pos, err := h.org.UpdatePosition(r.Context(), tenantID, id, &req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toPositionResponse(pos))
}

func (h *OrgHandler) DeletePosition(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.org.DeletePosition(r.Context(), tenantID, id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toDepartmentResponse(d *domain.Department) dto.DepartmentResponse {
	return dto.DepartmentResponse{
		ID:        d.ID,
		Code:      d.Code,
		Name:      d.Name,
		CreatedAt: d.CreatedAt,
	}
}

func toPositionResponse(p *domain.Position) dto.PositionResponse {
	return dto.PositionResponse{
		ID:           p.ID,
		Code:         p.Code,
		Title:        p.Title,
		DepartmentID: p.DepartmentID,
		CreatedAt:    p.CreatedAt,
	}
}
