// Package ingest обрабатывает события создания идентичностей.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"ref-service/internal/apperr"
	"ref-service/internal/store"
	"ref-service/pkg/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Результаты обработки для метрик
const (
	ResultCreated  = "created"
	ResultUpdated  = "updated"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// CodeIssuer выдает реферальный код записи идентичности
type CodeIssuer interface {
	EnsureIdentityCode(ctx context.Context, rec *models.IdentityRecord) (string, error)
	GetReferralLink(code string) string
}

// Archiver сохраняет исходные события
type Archiver interface {
	Archive(ctx context.Context, name string, payload []byte) error
}

// Recorder принимает метрики обработки событий
type Recorder interface {
	RecordIngest(result string)
}

// Service обрабатывает события вебхука и сохраняет идентичности
type Service struct {
	identityRepo store.IdentityRepository
	issuer       CodeIssuer
	archiver     Archiver
	recorder     Recorder
	validate     *validator.Validate
	now          func() time.Time
	logger       *zap.Logger
}

// NewService создает сервис обработки событий. archiver и recorder могут быть nil.
func NewService(identityRepo store.IdentityRepository, issuer CodeIssuer, archiver Archiver, recorder Recorder, logger *zap.Logger) *Service {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &Service{
		identityRepo: identityRepo,
		issuer:       issuer,
		archiver:     archiver,
		recorder:     recorder,
		validate:     validate,
		now:          time.Now,
		logger:       logger,
	}
}

// ProcessFile читает событие из JSON файла и обрабатывает его
func (s *Service) ProcessFile(ctx context.Context, path string) (*models.IdentityRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла: %w", err)
	}
	return s.ProcessPayload(ctx, data)
}

// ProcessPayload разбирает сырое событие и обрабатывает его
func (s *Service) ProcessPayload(ctx context.Context, data []byte) (*models.IdentityRecord, error) {
	var event models.IdentityEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.record(ResultRejected)
		return nil, apperr.Validation("некорректный JSON: %v", err)
	}

	s.archive(ctx, data)

	return s.Process(ctx, &event)
}

// Process проверяет событие, сохраняет запись и выдает ей реферальный код
func (s *Service) Process(ctx context.Context, event *models.IdentityEvent) (*models.IdentityRecord, error) {
	if err := s.check(event); err != nil {
		s.record(ResultRejected)
		s.logger.Warn("событие отклонено", zap.Error(err))
		return nil, err
	}

	rec, result, err := s.upsert(ctx, event.Record)
	if err != nil {
		s.record(ResultFailed)
		return nil, err
	}
	s.record(result)

	s.logger.Info("запись идентичности обработана",
		zap.String("id", rec.ID),
		zap.String("result", result))

	code, err := s.issuer.EnsureIdentityCode(ctx, rec)
	if err != nil {
		s.logger.Warn("не удалось выдать реферальный код",
			zap.String("id", rec.ID),
			zap.Error(err))
		return rec, nil
	}

	rec.RefCode = &code
	rec.ReferralLink = s.issuer.GetReferralLink(code)
	return rec, nil
}

func (s *Service) check(event *models.IdentityEvent) error {
	if event == nil {
		return apperr.Validation("пустое событие")
	}
	if event.Type != models.EventTypeInsert || event.Table != models.EventTableIdentities {
		return apperr.UnsupportedOperation(event.Type, event.Table)
	}
	if event.Record == nil {
		return apperr.MissingField("record")
	}

	event.Record.ID = strings.TrimSpace(event.Record.ID)
	event.Record.Email = strings.TrimSpace(event.Record.Email)

	if err := s.validate.Struct(event.Record); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return apperr.MissingField(fieldErrs[0].Field())
		}
		return apperr.Validation("некорректная запись: %v", err)
	}

	return nil
}

// upsert создает запись или обновляет только processed_at у существующей
func (s *Service) upsert(ctx context.Context, in *models.IdentityRecord) (*models.IdentityRecord, string, error) {
	now := s.now().UTC()

	_, err := s.identityRepo.GetByID(ctx, in.ID)
	switch {
	case err == nil:
		return s.touch(ctx, in.ID, now)
	case !errors.Is(err, store.ErrNotFound):
		return nil, "", apperr.Store(err, "ошибка поиска записи идентичности")
	}

	rec := *in
	rec.ProcessedAt = now
	rec.RefCode = nil
	rec.ReferralLink = ""

	created, err := s.identityRepo.Create(ctx, &rec)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// параллельная доставка того же события
			return s.touch(ctx, in.ID, now)
		}
		return nil, "", apperr.Store(err, "ошибка создания записи идентичности")
	}

	return created, ResultCreated, nil
}

func (s *Service) touch(ctx context.Context, id string, now time.Time) (*models.IdentityRecord, string, error) {
	rec, err := s.identityRepo.TouchProcessedAt(ctx, id, now)
	if err != nil {
		return nil, "", apperr.Store(err, "ошибка обновления записи идентичности")
	}
	return rec, ResultUpdated, nil
}

// List возвращает все записи идентичностей
func (s *Service) List(ctx context.Context) ([]*models.IdentityRecord, error) {
	records, err := s.identityRepo.List(ctx)
	if err != nil {
		return nil, apperr.Store(err, "ошибка получения записей")
	}
	return records, nil
}

func (s *Service) archive(ctx context.Context, data []byte) {
	if s.archiver == nil {
		return
	}
	name := fmt.Sprintf("%s-%s.json", s.now().UTC().Format("20060102T150405"), uuid.NewString())
	if err := s.archiver.Archive(ctx, name, data); err != nil {
		s.logger.Warn("не удалось сохранить событие в архив", zap.String("name", name), zap.Error(err))
	}
}

func (s *Service) record(result string) {
	if s.recorder != nil {
		s.recorder.RecordIngest(result)
	}
}
