package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ref-service/internal/apperr"
	"ref-service/internal/store"
	"ref-service/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memIdentityRepo struct {
	mu        sync.Mutex
	records   map[string]*models.IdentityRecord
	creates   int
	getErr    error
	createErr error
}

func newMemIdentityRepo() *memIdentityRepo {
	return &memIdentityRepo{records: make(map[string]*models.IdentityRecord)}
}

func (r *memIdentityRepo) GetByID(_ context.Context, id string) (*models.IdentityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	rec, ok := r.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *memIdentityRepo) Create(_ context.Context, rec *models.IdentityRecord) (*models.IdentityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	if _, ok := r.records[rec.ID]; ok {
		return nil, store.ErrAlreadyExists
	}
	r.creates++
	cp := *rec
	r.records[rec.ID] = &cp
	out := cp
	return &out, nil
}

func (r *memIdentityRepo) TouchProcessedAt(_ context.Context, id string, at time.Time) (*models.IdentityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	rec.ProcessedAt = at
	cp := *rec
	return &cp, nil
}

func (r *memIdentityRepo) SetRefCode(_ context.Context, id, code string) (*models.IdentityRecord, error) {
	return nil, errors.New("не используется")
}

func (r *memIdentityRepo) List(_ context.Context) ([]*models.IdentityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.IdentityRecord, 0, len(r.records))
	for _, rec := range r.records {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memIdentityRepo) ListMissingRefCode(context.Context, int) ([]*models.IdentityRecord, error) {
	return nil, nil
}

func (r *memIdentityRepo) RefCodeExists(context.Context, string) (bool, error) {
	return false, nil
}

type stubIssuer struct {
	code  string
	err   error
	calls int
}

func (s *stubIssuer) EnsureIdentityCode(_ context.Context, rec *models.IdentityRecord) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.code, nil
}

func (s *stubIssuer) GetReferralLink(code string) string {
	return "jobsy.com/ref/" + code
}

type stubArchiver struct {
	payloads [][]byte
	err      error
}

func (a *stubArchiver) Archive(_ context.Context, _ string, payload []byte) error {
	a.payloads = append(a.payloads, payload)
	return a.err
}

type countingRecorder map[string]int

func (c countingRecorder) RecordIngest(result string) { c[result]++ }

func newTestService(repo *memIdentityRepo, issuer *stubIssuer) (*Service, countingRecorder, *time.Time) {
	rec := countingRecorder{}
	svc := NewService(repo, issuer, nil, rec, zap.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc, rec, &now
}

func insertEvent(id, email string) *models.IdentityEvent {
	return &models.IdentityEvent{
		Type:   "INSERT",
		Table:  "identities",
		Schema: "auth",
		Record: &models.IdentityRecord{ID: id, Email: email},
	}
}

func TestProcessCreatesRecordWithLink(t *testing.T) {
	repo := newMemIdentityRepo()
	issuer := &stubIssuer{code: "ABC123"}
	svc, rec, _ := newTestService(repo, issuer)

	out, err := svc.Process(context.Background(), insertEvent("id-1", "a@example.com"))

	require.NoError(t, err)
	assert.Equal(t, "id-1", out.ID)
	assert.Equal(t, "a@example.com", out.Email)
	assert.Equal(t, "jobsy.com/ref/ABC123", out.ReferralLink)
	require.NotNil(t, out.RefCode)
	assert.Equal(t, "ABC123", *out.RefCode)
	assert.Equal(t, 1, rec[ResultCreated])
}

func TestProcessIsIdempotent(t *testing.T) {
	repo := newMemIdentityRepo()
	svc, rec, now := newTestService(repo, &stubIssuer{code: "ABC123"})
	ctx := context.Background()

	provider := "google"
	event := insertEvent("id-1", "a@example.com")
	event.Record.Provider = &provider

	first, err := svc.Process(ctx, event)
	require.NoError(t, err)

	*now = now.Add(time.Minute)
	changed := insertEvent("id-1", "changed@example.com")
	second, err := svc.Process(ctx, changed)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.creates)
	assert.Len(t, repo.records, 1)
	assert.Equal(t, first.ID, second.ID)
	// повторная доставка не меняет остальные поля
	assert.Equal(t, "a@example.com", second.Email)
	assert.Equal(t, "google", *second.Provider)
	assert.True(t, second.ProcessedAt.After(first.ProcessedAt))
	assert.Equal(t, 1, rec[ResultCreated])
	assert.Equal(t, 1, rec[ResultUpdated])
}

// Сценарий 4: неподдерживаемое событие
func TestProcessRejectsUnsupportedEvents(t *testing.T) {
	tests := []struct {
		name  string
		typ   string
		table string
	}{
		{"UPDATE", "UPDATE", "identities"},
		{"DELETE", "DELETE", "identities"},
		{"другая таблица", "INSERT", "users"},
		{"нижний регистр", "insert", "identities"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemIdentityRepo()
			issuer := &stubIssuer{code: "ABC123"}
			svc, rec, _ := newTestService(repo, issuer)

			event := insertEvent("id-1", "a@example.com")
			event.Type, event.Table = tt.typ, tt.table

			_, err := svc.Process(context.Background(), event)

			assert.ErrorIs(t, err, apperr.ErrUnsupportedOperation)
			assert.Empty(t, repo.records)
			assert.Equal(t, 0, issuer.calls)
			assert.Equal(t, 1, rec[ResultRejected])
		})
	}
}

func TestProcessMissingFields(t *testing.T) {
	tests := []struct {
		name  string
		event *models.IdentityEvent
		field string
	}{
		{"нет записи", &models.IdentityEvent{Type: "INSERT", Table: "identities"}, "record"},
		{"нет id", insertEvent("", "a@example.com"), "id"},
		{"пробелы вместо id", insertEvent("   ", "a@example.com"), "id"},
		{"нет email", insertEvent("id-1", ""), "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemIdentityRepo()
			svc, _, _ := newTestService(repo, &stubIssuer{code: "ABC123"})

			_, err := svc.Process(context.Background(), tt.event)

			require.ErrorIs(t, err, apperr.ErrMissingField)
			assert.Contains(t, err.Error(), tt.field)
			assert.Empty(t, repo.records)
		})
	}
}

func TestProcessCodeIssuanceFailureIsSwallowed(t *testing.T) {
	repo := newMemIdentityRepo()
	svc, _, _ := newTestService(repo, &stubIssuer{err: apperr.CodeGenerationExhausted(10)})

	out, err := svc.Process(context.Background(), insertEvent("id-1", "a@example.com"))

	require.NoError(t, err)
	assert.Equal(t, "id-1", out.ID)
	assert.Empty(t, out.ReferralLink)
	assert.Nil(t, out.RefCode)
	assert.Len(t, repo.records, 1)
}

func TestProcessStoreFailure(t *testing.T) {
	repo := newMemIdentityRepo()
	repo.getErr = errors.New("connection reset")
	svc, rec, _ := newTestService(repo, &stubIssuer{code: "ABC123"})

	_, err := svc.Process(context.Background(), insertEvent("id-1", "a@example.com"))

	assert.ErrorIs(t, err, apperr.ErrStore)
	assert.Equal(t, 1, rec[ResultFailed])
}

func TestProcessConcurrentInsertFallsBackToUpdate(t *testing.T) {
	repo := newMemIdentityRepo()
	svc, rec, _ := newTestService(repo, &stubIssuer{code: "ABC123"})

	// запись появилась между поиском и вставкой
	repo.records["id-1"] = &models.IdentityRecord{ID: "id-1", Email: "a@example.com"}
	svc.identityRepo = &raceRepo{memIdentityRepo: repo}

	out, err := svc.Process(context.Background(), insertEvent("id-1", "a@example.com"))

	require.NoError(t, err)
	assert.Equal(t, "id-1", out.ID)
	assert.Equal(t, 1, rec[ResultUpdated])
}

// raceRepo не находит запись при поиске, хотя она уже есть
type raceRepo struct {
	*memIdentityRepo
}

func (r *raceRepo) GetByID(context.Context, string) (*models.IdentityRecord, error) {
	return nil, store.ErrNotFound
}

func TestProcessPayload(t *testing.T) {
	repo := newMemIdentityRepo()
	svc, _, _ := newTestService(repo, &stubIssuer{code: "ABC123"})
	archiver := &stubArchiver{}
	svc.archiver = archiver

	payload := []byte(`{
		"type": "INSERT",
		"table": "identities",
		"schema": "auth",
		"record": {
			"id": "id-1",
			"email": "a@example.com",
			"provider": "google",
			"identity_data": {"email": "a@example.com", "email_verified": true, "full_name": "A"},
			"created_at": "2026-02-28T10:00:00Z"
		},
		"old_record": null
	}`)

	out, err := svc.ProcessPayload(context.Background(), payload)

	require.NoError(t, err)
	require.NotNil(t, out.IdentityData)
	assert.True(t, out.IdentityData.EmailVerified)
	assert.Equal(t, "A", out.IdentityData.FullName)
	require.NotNil(t, out.CreatedAt)
	assert.Equal(t, 2026, out.CreatedAt.Year())
	assert.Len(t, archiver.payloads, 1)

	_, err = svc.ProcessPayload(context.Background(), []byte(`{not json`))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestProcessPayloadArchiveFailureIgnored(t *testing.T) {
	repo := newMemIdentityRepo()
	svc, _, _ := newTestService(repo, &stubIssuer{code: "ABC123"})
	svc.archiver = &stubArchiver{err: errors.New("bucket missing")}

	_, err := svc.ProcessPayload(context.Background(), []byte(`{"type":"INSERT","table":"identities","record":{"id":"id-1","email":"a@example.com"}}`))
	assert.NoError(t, err)
}

func TestProcessFile(t *testing.T) {
	repo := newMemIdentityRepo()
	svc, _, _ := newTestService(repo, &stubIssuer{code: "ABC123"})

	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"INSERT","table":"identities","record":{"id":"id-1","email":"a@example.com"}}`), 0o600))

	out, err := svc.ProcessFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "id-1", out.ID)

	_, err = svc.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
