package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tenant-onboarding/internal/lock"
	"github.com/tenant-onboarding/internal/repository"
	"github.com/tenant-onboarding/internal/service"
	"github.com/tenant-onboarding/internal/storage"
	"github.com/tenant-onboarding/internal/testdb"
)

const (
	validCompany = `{"legalName": "Acme Comércio Ltda", "tradeName": "Acme", "taxId": "11.222.333/0001-81"}`
	validLabor   = `{"weeklyHours": 44, "dailyHours": 8}`
	validAdmins  = `{"admins": [{"name": "Ana Souza", "email": "ana@acme.com.br", "password": "s3cret!", "passwordConfirmation": "s3cret!"}]}`
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRefresher struct {
	calls chan uuid.UUID
	err   error
}

func newFakeRefresher() *fakeRefresher {
	return &fakeRefresher{calls: make(chan uuid.UUID, 8)}
}

func (r *fakeRefresher) RefreshBranding(_ context.Context, tenantID uuid.UUID) error {
	r.calls <- tenantID
	return r.err
}

// recordingDispatcher запоминает задания; тесты вызывают Execute сами
type recordingDispatcher struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, jobID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, jobID)
	return nil
}

type testEnv struct {
	db         *gorm.DB
	progress   repository.SetupProgressRepository
	steps      repository.StepDataRepository
	jobs       repository.ImportJobRepository
	tracker    service.ProgressTracker
	wizard     service.WizardService
	org        service.OrgService
	templates  service.TemplateService
	imports    service.ImportService
	refresher  *fakeRefresher
	dispatcher *recordingDispatcher
	storageDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testdb.New(t)
	locker := lock.NewTenantLocker()

	env := &testEnv{
		db:         db,
		progress:   repository.NewSetupProgressRepository(db),
		steps:      repository.NewStepDataRepository(db),
		jobs:       repository.NewImportJobRepository(db),
		templates:  service.NewTemplateService(),
		refresher:  newFakeRefresher(),
		dispatcher: &recordingDispatcher{},
		storageDir: t.TempDir(),
	}

	env.tracker = service.NewProgressTracker(locker, env.progress, env.steps)
	env.wizard = service.NewWizardService(
		locker,
		repository.NewTransactor(db),
		env.progress,
		env.steps,
		env.refresher,
		discardLogger(),
	)
	env.org = service.NewOrgService(
		lock.NewTenantLocker(),
		repository.NewDepartmentRepository(db),
		repository.NewPositionRepository(db),
	)
	env.imports = env.newImportService(service.ImportOptions{MaxUploadBytes: 1 << 20, RowConcurrency: 4})
	return env
}

// newImportService собирает сервис импорта поверх хранилищ окружения
func (env *testEnv) newImportService(opts service.ImportOptions) service.ImportService {
	return service.NewImportService(
		env.jobs,
		storage.NewLocalFileStore(env.storageDir),
		env.org,
		env.templates,
		env.dispatcher,
		opts,
		discardLogger(),
	)
}

var errBoom = errors.New("boom")
