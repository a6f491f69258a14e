package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/tenant-onboarding/internal/domain"
	"github.com/tenant-onboarding/internal/dto"
	"github.com/tenant-onboarding/internal/metrics"
	"github.com/tenant-onboarding/internal/repository"
	"golang.org/x/sync/errgroup"
)

// FileStore хранит исходные файлы импорта
type FileStore interface {
	Save(ctx context.Context, key string, r io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Remove(ctx context.Context, ref string) error
}

// Dispatcher передаёт задание в PROCESSING на асинхронное выполнение
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID uuid.UUID) error
}

// ImportOptions - ограничения загрузки и параллелизма
type ImportOptions struct {
	MaxUploadBytes int64
	RowConcurrency int

	// LeaseDuration - на сколько исполнитель закрепляет задание; продлевается каждые LeaseDuration/2
	LeaseDuration   time.Duration
	DispatchTimeout time.Duration
}

// ImportService определяет интерфейс импорта подразделений и должностей
type ImportService interface {
	Upload(ctx context.Context, tenantID uuid.UUID, targetType domain.TargetType, fileName string, data []byte) (*domain.ImportJob, error)
	Process(ctx context.Context, tenantID, jobID uuid.UUID) (*domain.ImportJob, error)
	Execute(ctx context.Context, jobID uuid.UUID) (*domain.ImportJob, error)
	GetJob(ctx context.Context, tenantID, jobID uuid.UUID) (*domain.ImportJob, error)
	ListJobs(ctx context.Context, tenantID uuid.UUID) ([]domain.ImportJob, error)
	PendingJobs(ctx context.Context) ([]uuid.UUID, error)
	StalledJobs(ctx context.Context) ([]uuid.UUID, error)
	PurgeFinished(ctx context.Context, before time.Time) (int64, error)
}

type importService struct {
	jobRepo    repository.ImportJobRepository
	files      FileStore
	org        OrgService
	templates  TemplateService
	dispatcher Dispatcher
	validator  *validator.Validate
	opts       ImportOptions
	logger     *slog.Logger
	now        func() time.Time
}

// NewImportService создаёт новый экземпляр сервиса
func NewImportService(
	jobRepo repository.ImportJobRepository,
	files FileStore,
	org OrgService,
	templates TemplateService,
	dispatcher Dispatcher,
	opts ImportOptions,
	logger *slog.Logger,
) ImportService {
	if opts.RowConcurrency <= 0 {
		opts.RowConcurrency = 1
	}
	if opts.LeaseDuration <= 0 {
		opts.LeaseDuration = time.Minute
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 5 * time.Second
	}
	return &importService{
		jobRepo:    jobRepo,
		files:      files,
		org:        org,
		templates:  templates,
		dispatcher: dispatcher,
		validator:  NewValidator(),
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *importService) Upload(ctx context.Context, tenantID uuid.UUID, targetType domain.TargetType, fileName string, data []byte) (*domain.ImportJob, error) {
	if _, err := s.templates.GetTemplate(targetType); err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, domain.ErrEmptyFile
	}
	if s.opts.MaxUploadBytes > 0 && int64(len(data)) > s.opts.MaxUploadBytes {
		return nil, domain.ErrFileTooLarge
	}

	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	mime := mimetype.Detect(data)
	contentType, ext := mime.String(), mime.Extension()
	// Некоторые редакторы пишут xlsx так, что сигнатура видна только как zip
	if mime.Is("application/zip") && strings.EqualFold(path.Ext(name), ".xlsx") {
		contentType, ext = xlsxContentType, ".xlsx"
	}

	job := &domain.ImportJob{
		ID:          uuid.New(),
		TenantID:    tenantID,
		TargetType:  targetType,
		FileName:    name,
		ContentType: contentType,
		Status:      domain.ImportUploaded,
	}

	key := path.Join(tenantID.String(), job.ID.String()+ext)
	ref, err := s.files.Save(ctx, key, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	job.SourceFileRef = ref

	if err := s.jobRepo.Create(ctx, job); err != nil {
		_ = s.files.Remove(ctx, ref)
		return nil, err
	}

	s.logger.Info("import uploaded",
		slog.String("tenant_id", tenantID.String()),
		slog.String("job_id", job.ID.String()),
		slog.String("target_type", string(targetType)),
		slog.String("content_type", job.ContentType),
		slog.Int("size", len(data)),
	)
	return job, nil
}

// Process переводит задание в PROCESSING синхронно и отдаёт его исполнителю.
// Вызывающий опрашивает GetJob до терминального статуса.
func (s *importService) Process(ctx context.Context, tenantID, jobID uuid.UUID) (*domain.ImportJob, error) {
	if _, err := s.jobRepo.GetForTenant(ctx, tenantID, jobID); err != nil {
		return nil, err
	}
	if err := s.jobRepo.MarkProcessing(ctx, jobID, s.now().UTC()); err != nil {
		return nil, err
	}

	// Отмена запроса не прерывает отправку; неотправленное задание подберёт worker.Watchdog
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.DispatchTimeout)
	defer cancel()

	if err := s.dispatcher.Dispatch(dispatchCtx, jobID); err != nil {
		s.logger.Error("failed to dispatch import job",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("dispatch import job: %w", err)
	}

	return s.jobRepo.GetForTenant(ctx, tenantID, jobID)
}

// Execute выполняет задание в статусе PROCESSING до COMPLETED или FAILED.
// Задание, закреплённое за другим исполнителем, даёт ErrImportJobLeased.
func (s *importService) Execute(ctx context.Context, jobID uuid.UUID) (*domain.ImportJob, error) {
	job, err := s.jobRepo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.ImportProcessing {
		return nil, domain.ErrInvalidJobTransition
	}
	if err := s.jobRepo.Claim(ctx, jobID, s.now().UTC(), s.opts.LeaseDuration); err != nil {
		return nil, err
	}

	started := s.now()
	logger := s.logger.With(
		slog.String("tenant_id", job.TenantID.String()),
		slog.String("job_id", job.ID.String()),
		slog.String("target_type", string(job.TargetType)),
	)

	release := s.holdLease(ctx, jobID, logger)
	results, runErr := s.run(ctx, job)
	release()

	job.RowResults = results
	job.AcceptedCount, job.RejectedCount = 0, 0
	for _, r := range results {
		if r.Status == domain.RowAccepted {
			job.AcceptedCount++
		} else {
			job.RejectedCount++
		}
	}

	var rowErr *domain.RowError
	switch {
	case runErr == nil:
		job.Status = domain.ImportCompleted
	case errors.As(runErr, &rowErr):
		job.Status = domain.ImportFailed
		job.Error = rowErr.Message
		job.RowResults = []domain.RowResult{{
			Status:  domain.RowRejected,
			Reason:  rowErr.Kind,
			Message: rowErr.Message,
		}}
		job.AcceptedCount, job.RejectedCount = 0, 1
	default:
		job.Status = domain.ImportFailed
		job.Error = runErr.Error()
	}

	completed := s.now().UTC()
	job.CompletedAt = &completed

	// Завершение не зависит от контекста вызывающего
	if err := s.jobRepo.Finish(context.WithoutCancel(ctx), job); err != nil {
		return nil, err
	}

	elapsed := s.now().Sub(started)
	metrics.ImportFinished(string(job.TargetType), string(job.Status), job.AcceptedCount, job.RejectedCount, elapsed)
	logger.Info("import finished",
		slog.String("status", string(job.Status)),
		slog.Int("accepted", job.AcceptedCount),
		slog.Int("rejected", job.RejectedCount),
		slog.Duration("duration", elapsed),
	)

	if err := s.files.Remove(ctx, job.SourceFileRef); err != nil {
		logger.Warn("failed to remove import file", slog.String("error", err.Error()))
	}
	return job, nil
}

func (s *importService) GetJob(ctx context.Context, tenantID, jobID uuid.UUID) (*domain.ImportJob, error) {
	return s.jobRepo.GetForTenant(ctx, tenantID, jobID)
}

func (s *importService) ListJobs(ctx context.Context, tenantID uuid.UUID) ([]domain.ImportJob, error) {
	return s.jobRepo.ListByTenant(ctx, tenantID)
}

// PendingJobs возвращает задания, оставшиеся в PROCESSING после остановки
func (s *importService) PendingJobs(ctx context.Context) ([]uuid.UUID, error) {
	jobs, err := s.jobRepo.ListByStatus(ctx, domain.ImportProcessing)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return ids, nil
}

// StalledJobs возвращает задания, чья аренда истекла или которые никто не взял за LeaseDuration
func (s *importService) StalledJobs(ctx context.Context) ([]uuid.UUID, error) {
	now := s.now().UTC()
	jobs, err := s.jobRepo.ListStalled(ctx, now, now.Add(-s.opts.LeaseDuration))
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return ids, nil
}

func (s *importService) PurgeFinished(ctx context.Context, before time.Time) (int64, error) {
	return s.jobRepo.PurgeFinished(ctx, before)
}

// holdLease продлевает аренду задания, пока не вызвана возвращённая функция
func (s *importService) holdLease(ctx context.Context, jobID uuid.UUID, logger *slog.Logger) func() {
	ctx = context.WithoutCancel(ctx)
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(s.opts.LeaseDuration / 2)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				until := s.now().UTC().Add(s.opts.LeaseDuration)
				if err := s.jobRepo.Heartbeat(ctx, jobID, until); err != nil {
					logger.Warn("failed to extend import lease", slog.String("error", err.Error()))
				}
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}

// run разбирает файл и обрабатывает строки параллельно.
// *domain.RowError означает непригодный файл, прочие ошибки - сбой хранилища.
func (s *importService) run(ctx context.Context, job *domain.ImportJob) ([]domain.RowResult, error) {
	tpl, err := s.templates.GetTemplate(job.TargetType)
	if err != nil {
		return nil, err
	}

	rc, err := s.files.Open(ctx, job.SourceFileRef)
	if err != nil {
		return nil, domain.NewRowError(domain.RowUnparsableFile, "source file unavailable: %v", err)
	}
	defer rc.Close()

	table, err := parseImportFile(rc, job.ContentType, tpl)
	if err != nil {
		return nil, domain.NewRowError(domain.RowUnparsableFile, "%v", err)
	}

	var knownCodes []string
	if job.TargetType == domain.TargetPositions {
		if knownCodes, err = s.org.DepartmentCodes(ctx, job.TenantID); err != nil {
			return nil, err
		}
	}

	results := make([]domain.RowResult, len(table.rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.RowConcurrency)
	for _, group := range groupByCode(table) {
		g.Go(func() error {
			// Код достаётся первой строке группы, которая реально записана
			claimedBy := 0
			for _, i := range group {
				row := table.rows[i]
				res, err := s.processRow(gctx, job, table, row, claimedBy, knownCodes)
				if err != nil {
					return fmt.Errorf("row %d: %w", row.Number, err)
				}
				results[i] = res
				if claimedBy == 0 && res.Status == domain.RowAccepted {
					claimedBy = row.Number
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return compactResults(results), err
	}
	return results, nil
}

func (s *importService) processRow(
	ctx context.Context,
	job *domain.ImportJob,
	table *importTable,
	row importRow,
	claimedBy int,
	knownCodes []string,
) (domain.RowResult, error) {
	code := table.value(row, ColumnCode)
	res := domain.RowResult{Row: row.Number, Code: code}

	if len(row.Cells) != table.width {
		return reject(res, domain.NewRowError(domain.RowMalformedValue,
			"expected %d columns, got %d", table.width, len(row.Cells))), nil
	}

	var (
		entityID uuid.UUID
		rowErr   *domain.RowError
		err      error
	)
	switch job.TargetType {
	case domain.TargetDepartments:
		entityID, rowErr, err = s.importDepartment(ctx, job.TenantID, table, row, claimedBy)
	case domain.TargetPositions:
		entityID, rowErr, err = s.importPosition(ctx, job.TenantID, table, row, claimedBy, knownCodes)
	default:
		return res, domain.ErrInvalidTargetType
	}
	if err != nil {
		return res, err
	}
	if rowErr != nil {
		return reject(res, rowErr), nil
	}

	res.Status = domain.RowAccepted
	res.EntityID = &entityID
	return res, nil
}

func (s *importService) importDepartment(
	ctx context.Context,
	tenantID uuid.UUID,
	table *importTable,
	row importRow,
	claimedBy int,
) (uuid.UUID, *domain.RowError, error) {
	req := &dto.CreateDepartmentRequest{
		Code: table.value(row, ColumnCode),
		Name: table.value(row, ColumnName),
	}
	if rowErr := requireCells(map[string]string{ColumnCode: req.Code, ColumnName: req.Name}); rowErr != nil {
		return uuid.Nil, rowErr, nil
	}
	if rowErr := inFileDuplicate(req.Code, claimedBy); rowErr != nil {
		return uuid.Nil, rowErr, nil
	}
	if rowErr := s.checkValues(req); rowErr != nil {
		return uuid.Nil, rowErr, nil
	}

	dept, err := s.org.CreateDepartment(ctx, tenantID, req)
	switch {
	case errors.Is(err, domain.ErrDuplicateCode):
		return uuid.Nil, domain.NewRowError(domain.RowDuplicateCode, "department code %q already exists", req.Code), nil
	case errors.Is(err, domain.ErrValidationFailed):
		return uuid.Nil, domain.NewRowError(domain.RowMissingRequiredField, "%v", err), nil
	case err != nil:
		return uuid.Nil, nil, err
	}
	return dept.ID, nil, nil
}

func (s *importService) importPosition(
	ctx context.Context,
	tenantID uuid.UUID,
	table *importTable,
	row importRow,
	claimedBy int,
	knownCodes []string,
) (uuid.UUID, *domain.RowError, error) {
	code := table.value(row, ColumnCode)
	title := table.value(row, ColumnTitle)
	deptCode := table.value(row, ColumnDepartmentCode)
	deptID := table.value(row, ColumnDepartmentID)

	reference := map[string]string{ColumnDepartmentCode: deptCode}
	if !table.has(ColumnDepartmentCode) || (deptCode == "" && deptID != "") {
		reference = map[string]string{ColumnDepartmentID: deptID}
	}
	cells := map[string]string{ColumnCode: code, ColumnTitle: title}
	for k, v := range reference {
		cells[k] = v
	}
	if rowErr := requireCells(cells); rowErr != nil {
		return uuid.Nil, rowErr, nil
	}
	if rowErr := inFileDuplicate(code, claimedBy); rowErr != nil {
		return uuid.Nil, rowErr, nil
	}

	var dept *domain.Department
	var err error
	if _, byID := reference[ColumnDepartmentID]; byID {
		id, parseErr := uuid.Parse(deptID)
		if parseErr != nil {
			return uuid.Nil, domain.NewRowError(domain.RowMalformedValue, "departmentId %q is not a valid UUID", deptID), nil
		}
		dept, err = s.org.GetDepartment(ctx, tenantID, id)
	} else {
		dept, err = s.org.FindDepartmentByCode(ctx, tenantID, deptCode)
	}
	switch {
	case errors.Is(err, domain.ErrDepartmentNotFound):
		return uuid.Nil, unresolved(deptCode, deptID, knownCodes), nil
	case err != nil:
		return uuid.Nil, nil, err
	}

	req := &dto.CreatePositionRequest{Code: code, Title: title, DepartmentID: dept.ID}
	if rowErr := s.checkValues(req); rowErr != nil {
		return uuid.Nil, rowErr, nil
	}

	pos, err := s.org.CreatePosition(ctx, tenantID, req)
	switch {
	case errors.Is(err, domain.ErrDuplicateCode):
		return uuid.Nil, domain.NewRowError(domain.RowDuplicateCode, "position code %q already exists", code), nil
	case errors.Is(err, domain.ErrValidationFailed):
		return uuid.Nil, domain.NewRowError(domain.RowMissingRequiredField, "%v", err), nil
	case errors.Is(err, domain.ErrDepartmentNotFound):
		// Подразделение удалено между поиском и созданием
		return uuid.Nil, unresolved(deptCode, deptID, knownCodes), nil
	case err != nil:
		return uuid.Nil, nil, err
	}
	return pos.ID, nil, nil
}

// checkValues проверяет длины и форматы полей теми же правилами, что и ручной ввод
func (s *importService) checkValues(req any) *domain.RowError {
	err := s.validator.Struct(req)
	if err == nil {
		return nil
	}
	fields := ValidationFields(err)
	if len(fields) == 0 {
		return domain.NewRowError(domain.RowMalformedValue, "%v", err)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return domain.NewRowError(domain.RowMalformedValue, "%s %s", keys[0], fields[keys[0]])
}

func requireCells(cells map[string]string) *domain.RowError {
	var missing []string
	for name, v := range cells {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return domain.NewRowError(domain.RowMissingRequiredField, "missing value for %s", strings.Join(missing, ", "))
}

func inFileDuplicate(code string, claimedBy int) *domain.RowError {
	if claimedBy == 0 {
		return nil
	}
	return domain.NewRowError(domain.RowDuplicateCode, "code %q already used in row %d of this file", code, claimedBy)
}

// groupByCode группирует индексы строк по ключу кода в порядке файла.
// Строки без кода образуют отдельные группы.
func groupByCode(table *importTable) [][]int {
	groups := make([][]int, 0, len(table.rows))
	byKey := make(map[string]int, len(table.rows))
	for i, row := range table.rows {
		key := domain.CodeKey(table.value(row, ColumnCode))
		if key == "" {
			groups = append(groups, []int{i})
			continue
		}
		if g, ok := byKey[key]; ok {
			groups[g] = append(groups[g], i)
			continue
		}
		byKey[key] = len(groups)
		groups = append(groups, []int{i})
	}
	return groups
}

func unresolved(deptCode, deptID string, knownCodes []string) *domain.RowError {
	if deptCode == "" {
		return domain.NewRowError(domain.RowUnresolvedReference, "department %s not found", deptID)
	}
	if hint := suggestCode(deptCode, knownCodes); hint != "" {
		return domain.NewRowError(domain.RowUnresolvedReference, "department %q not found (did you mean %q?)", deptCode, hint)
	}
	return domain.NewRowError(domain.RowUnresolvedReference, "department %q not found", deptCode)
}

// suggestCode ищет ближайший существующий код для подсказки
func suggestCode(code string, known []string) string {
	if ranks := fuzzy.RankFindNormalizedFold(code, known); len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}

	best, bestDist := "", 3
	for _, k := range known {
		if d := fuzzy.LevenshteinDistance(strings.ToLower(code), strings.ToLower(k)); d < bestDist {
			best, bestDist = k, d
		}
	}
	return best
}

func reject(res domain.RowResult, rowErr *domain.RowError) domain.RowResult {
	res.Status = domain.RowRejected
	res.Reason = rowErr.Kind
	res.Message = rowErr.Message
	return res
}

func compactResults(results []domain.RowResult) []domain.RowResult {
	out := results[:0:0]
	for _, r := range results {
		if r.Row != 0 {
			out = append(out, r)
		}
	}
	return out
}
