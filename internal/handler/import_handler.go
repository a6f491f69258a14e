package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/tenant-onboarding/internal/domain"
	"github.com/tenant-onboarding/internal/dto"
	"github.com/tenant-onboarding/internal/service"
)

const (
	formatCSV  = "csv"
	formatXLSX = "xlsx"
	formatJSON = "json"

	// запас на заголовки multipart сверх лимита файла
	multipartOverhead = 1 << 20
)

type ImportHandler struct {
	base
	imports   service.ImportService
	templates service.TemplateService
	maxUpload int64
}

func NewImportHandler(
	imports service.ImportService,
	templates service.TemplateService,
	maxUpload int64,
	logger *slog.Logger,
) *ImportHandler {
	return &ImportHandler{
		base:      newBase(logger),
		imports:   imports,
		templates: templates,
		maxUpload: maxUpload,
	}
}

// Template отдаёт шаблон файла импорта в формате csv, xlsx или json
func (h *ImportHandler) Template(w http.ResponseWriter, r *http.Request) {
	target, err := domain.ParseTargetType(mux.Vars(r)["type"])
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = formatCSV
	}

	var (
		data        []byte
		contentType string
	)
	switch format {
	case formatCSV:
		data, err = h.templates.RenderCSV(target)
		contentType = "text/csv; charset=utf-8"
	case formatXLSX:
		data, err = h.templates.RenderXLSX(target)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case formatJSON:
		tpl, err := h.templates.GetTemplate(target)
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}
		h.respondJSON(w, http.StatusOK, tpl)
		return
	default:
		h.respondError(w, http.StatusBadRequest, "unsupported format", "use csv, xlsx or json")
		return
	}
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	fileName := strings.ToLower(string(target)) + "_template." + format
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+fileName+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("failed to write template", slog.Any("error", err))
	}
}

// Upload принимает multipart форму с полями file и targetType
func (h *ImportHandler) Upload(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			h.handleServiceError(w, r, domain.ErrFileTooLarge)
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	target, err := domain.ParseTargetType(r.FormValue("targetType"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "file is required", err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	job, err := h.imports.Upload(r.Context(), tenantID, target, header.Filename, data)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, toImportJobResponse(job, false))
}

// Process запускает обработку и сразу возвращает задание в PROCESSING
func (h *ImportHandler) Process(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	job, err := h.imports.Process(r.Context(), tenantID, id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, toImportJobResponse(job, false))
}

func (h *ImportHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	job, err := h.imports.GetJob(r.Context(), tenantID, id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toImportJobResponse(job, true))
}

func (h *ImportHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}

	jobs, err := h.imports.ListJobs(r.Context(), tenantID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	resp := make([]dto.ImportJobResponse, 0, len(jobs))
	for i := range jobs {
		resp = append(resp, toImportJobResponse(&jobs[i], false))
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func toImportJobResponse(j *domain.ImportJob, withRows bool) dto.ImportJobResponse {
	resp := dto.ImportJobResponse{
		ID:            j.ID,
		TargetType:    j.TargetType,
		FileName:      j.FileName,
		Status:        j.Status,
		AcceptedCount: j.AcceptedCount,
		RejectedCount: j.RejectedCount,
		Error:         j.Error,
		CreatedAt:     j.CreatedAt,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
	}
	if withRows {
		resp.RowResults = j.RowResults
	}
	return resp
}
