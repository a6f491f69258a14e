package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/tenant-onboarding/internal/domain"
	"github.com/tenant-onboarding/internal/dto"
	"github.com/tenant-onboarding/internal/service"
)

// maxStepBody ограничивает размер JSON формы шага
const maxStepBody = 1 << 20

type WizardHandler struct {
	base
	wizard service.WizardService
}

func NewWizardHandler(wizard service.WizardService, logger *slog.Logger) *WizardHandler {
	return &WizardHandler{base: newBase(logger), wizard: wizard}
}

// Progress возвращает прогресс и состояние всех шагов
func (h *WizardHandler) Progress(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}

	overview, err := h.wizard.Overview(r.Context(), tenantID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	resp := toProgressResponse(overview.Progress)
	resp.Steps = make([]dto.StepDefinitionResponse, 0, len(overview.Steps))
	for _, s := range overview.Steps {
		resp.Steps = append(resp.Steps, dto.StepDefinitionResponse{
			StepDefinition: s.StepDefinition,
			Completed:      s.Completed,
			Skipped:        s.Skipped,
			Saved:          s.Saved,
			Draft:          s.Draft,
		})
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func (h *WizardHandler) GetStep(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	step, ok := h.step(w, r)
	if !ok {
		return
	}

	view, err := h.wizard.GetStep(r.Context(), tenantID, step)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toStepResponse(view))
}

// SaveStep сохраняет данные шага и завершает его
func (h *WizardHandler) SaveStep(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	step, ok := h.step(w, r)
	if !ok {
		return
	}
	raw, ok := h.body(w, r)
	if !ok {
		return
	}

	res, err := h.wizard.SaveStep(r.Context(), tenantID, step, raw)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, dto.SaveStepResponse{
		Step:     res.Step,
		Payload:  res.Payload,
		Progress: toProgressResponse(res.Progress),
	})
}

// SaveDraft сохраняет незавершённую форму без продвижения мастера
func (h *WizardHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	step, ok := h.step(w, r)
	if !ok {
		return
	}
	raw, ok := h.body(w, r)
	if !ok {
		return
	}

	view, err := h.wizard.SaveDraft(r.Context(), tenantID, step, raw)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toStepResponse(view))
}

func (h *WizardHandler) SkipStep(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	step, ok := h.step(w, r)
	if !ok {
		return
	}

	progress, err := h.wizard.SkipStep(r.Context(), tenantID, step)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toProgressResponse(progress))
}

func (h *WizardHandler) step(w http.ResponseWriter, r *http.Request) (int, bool) {
	step, err := strconv.Atoi(mux.Vars(r)["step"])
	if err != nil {
		h.handleServiceError(w, r, domain.ErrInvalidStep)
		return 0, false
	}
	return step, true
}

func (h *WizardHandler) body(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxStepBody))
	if err != nil {
		h.handleServiceError(w, r, err)
		return nil, false
	}
	return raw, true
}

func toProgressResponse(p *domain.SetupProgress) dto.ProgressResponse {
	return dto.ProgressResponse{
		TenantID:       p.TenantID,
		CurrentStep:    p.CurrentStep,
		CompletedSteps: append([]int{}, p.CompletedSteps...),
		SkippedSteps:   append([]int{}, p.SkippedSteps...),
		Activated:      p.Activated,
		ActivatedAt:    p.ActivatedAt,
	}
}

func toStepResponse(v *service.StepView) dto.StepResponse {
	return dto.StepResponse{
		Step:    v.Step,
		Found:   v.Found,
		Draft:   v.Draft,
		Payload: v.Payload,
	}
}
