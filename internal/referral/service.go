package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ref-service/internal/apperr"
	"ref-service/internal/config"
	"ref-service/internal/store"
	"ref-service/pkg/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RecentTransactionsLimit количество транзакций в статистике
const RecentTransactionsLimit = 50

// rewardTimeout ограничивает обход цепочки после того, как запрос уже завершен клиентом
const rewardTimeout = 10 * time.Second

// Recorder принимает метрики реферальной программы
type Recorder interface {
	RecordRegistration(withParent bool)
	RecordReward(level int, amount float64, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordRegistration(bool) {}
func (nopRecorder) RecordReward(int, float64, error) {}

// Service представляет сервис для управления реферальной системой
type Service struct {
	referralRepo store.ReferralRepository
	identityRepo store.IdentityRepository
	codes        *CodeGenerator
	validate     *validator.Validate
	recorder     Recorder
	cfg          config.ReferralConfig
	newID        func() string
	logger       *zap.Logger
}

// CreateUserRequest запрос на создание участника
type CreateUserRequest struct {
	// ID задается, когда участник создается для существующей идентичности
	ID         string
	Email      string
	ParentCode string
}

// NewService создает новый сервис рефералов
func NewService(referralRepo store.ReferralRepository, identityRepo store.IdentityRepository, cfg config.ReferralConfig, recorder Recorder, logger *zap.Logger) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if cfg.MaxRewardDepth < 1 || cfg.MaxRewardDepth > config.MaxRewardDepth {
		cfg.MaxRewardDepth = config.MaxRewardDepth
	}
	return &Service{
		referralRepo: referralRepo,
		identityRepo: identityRepo,
		codes:        NewCodeGenerator(cfg.CodeAttempts, logger),
		validate:     validator.New(),
		recorder:     recorder,
		cfg:          cfg,
		newID:        uuid.NewString,
		logger:       logger,
	}
}

// Register возвращает существующего участника с таким email или создает нового
func (s *Service) Register(ctx context.Context, email, parentCode string) (*models.Registration, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperr.Validation("email обязателен")
	}

	existing, err := s.referralRepo.GetUserByEmail(ctx, email)
	if err == nil {
		return &models.Registration{User: existing}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Store(err, "ошибка поиска пользователя")
	}

	return s.CreateUser(ctx, CreateUserRequest{Email: email, ParentCode: parentCode})
}

// CreateUser создает участника, привязывает его к пригласившему и начисляет награды цепочке
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*models.Registration, error) {
	email := strings.TrimSpace(req.Email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, apperr.Validation("некорректный email: %s", email)
	}

	parent, err := s.resolveParent(ctx, req.ParentCode)
	if err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = s.newID()
	}

	user := &models.ReferralUser{
		ID:         id,
		Email:      email,
		RefTree:    models.NewRefTree(parent),
		PlanType:   models.PlanTypeFree,
		BalanceEUR: decimal.Zero,
		BalanceJBC: decimal.Zero,
		KYCStatus:  models.KYCStatusPending,
	}
	if parent != nil {
		user.RefParent = &parent.ID
	}

	// Проверка кода и вставка не атомарны: при гонке уникальный индекс
	// отклоняет вставку, и код подбирается заново из того же остатка попыток.
	remaining := s.codes.MaxAttempts()
	for {
		code, err := s.codes.generateWithin(ctx, s.codeTaken, &remaining)
		if err != nil {
			return nil, err
		}
		user.RefCode = code

		err = s.referralRepo.CreateUser(ctx, user)
		if err == nil {
			break
		}

		switch {
		case errors.Is(err, store.ErrDuplicateRefCode):
			if remaining == 0 {
				return nil, apperr.CodeGenerationExhausted(s.codes.MaxAttempts())
			}
			s.logger.Warn("реферальный код занят при вставке, пробуем снова",
				zap.String("code", code),
				zap.Int("remaining", remaining))
			continue
		case errors.Is(err, store.ErrDuplicateEmail):
			return s.existing(ctx, s.referralRepo.GetUserByEmail, email)
		case errors.Is(err, store.ErrAlreadyExists):
			return s.existing(ctx, s.referralRepo.GetUserByID, id)
		default:
			return nil, apperr.Store(err, "ошибка создания пользователя")
		}
	}

	s.recorder.RecordRegistration(parent != nil)
	s.logger.Info("создан участник реферальной программы",
		zap.String("user_id", user.ID),
		zap.String("ref_code", user.RefCode),
		zap.Int("level", user.RefTree.Level))

	reg := &models.Registration{User: user, Created: true}
	if parent != nil {
		rewardCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rewardTimeout)
		defer cancel()
		reg.Rewards = s.AwardReferralRewards(rewardCtx, user.ID, user.RefTree.Chain)
	}

	return reg, nil
}

func (s *Service) existing(ctx context.Context, get func(context.Context, string) (*models.ReferralUser, error), key string) (*models.Registration, error) {
	user, err := get(ctx, key)
	if err != nil {
		return nil, apperr.Store(err, "ошибка получения существующего пользователя")
	}
	return &models.Registration{User: user}, nil
}

// resolveParent находит пригласившего. Неизвестный код в строгом режиме
// отклоняет регистрацию, иначе регистрация идет без пригласившего.
func (s *Service) resolveParent(ctx context.Context, parentCode string) (*models.ReferralUser, error) {
	raw := strings.TrimSpace(parentCode)
	if raw == "" {
		return nil, nil
	}
	code := NormalizeCode(raw)

	var parent *models.ReferralUser
	if IsValidCode(code) {
		found, err := s.referralRepo.GetUserByRefCode(ctx, code)
		switch {
		case err == nil:
			parent = found
		case !errors.Is(err, store.ErrNotFound):
			return nil, apperr.Store(err, "ошибка поиска пригласившего")
		}
	}

	if parent == nil {
		if s.cfg.StrictParent {
			return nil, apperr.Validation("неизвестный реферальный код: %s", raw)
		}
		s.logger.Warn("реферальный код пригласившего не найден, регистрация без пригласившего",
			zap.String("ref_parent_code", raw))
	}

	return parent, nil
}

func (s *Service) codeTaken(ctx context.Context, code string) (bool, error) {
	checks := []ExistsFunc{s.referralRepo.RefCodeExists}
	if s.identityRepo != nil {
		checks = append(checks, s.identityRepo.RefCodeExists)
	}
	return anyExists(checks...)(ctx, code)
}

// NormalizeCode приводит код к верхнему регистру и убирает префикс ref_
func NormalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if len(code) > 4 && strings.EqualFold(code[:4], "ref_") {
		code = code[4:]
	}
	return strings.ToUpper(code)
}

// GetUserByEmail получает участника по email
func (s *Service) GetUserByEmail(ctx context.Context, email string) (*models.ReferralUser, error) {
	user, err := s.referralRepo.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("пользователь не найден")
		}
		return nil, apperr.Store(err, "ошибка получения пользователя")
	}
	return user, nil
}

// GetReferralLink формирует полную реферальную ссылку
func (s *Service) GetReferralLink(code string) string {
	return fmt.Sprintf("%s/ref/%s", strings.TrimRight(s.cfg.SiteDomain, "/"), code)
}

// GetReferralStats получает статистику рефералов пользователя
func (s *Service) GetReferralStats(ctx context.Context, userID string) (*models.ReferralStats, error) {
	user, err := s.referralRepo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("пользователь не найден")
		}
		return nil, apperr.Store(err, "ошибка получения пользователя")
	}

	count, err := s.referralRepo.CountDirectReferrals(ctx, userID)
	if err != nil {
		return nil, apperr.Store(err, "ошибка получения статистики рефералов")
	}

	txs, err := s.referralRepo.ListTransactions(ctx, userID, RecentTransactionsLimit)
	if err != nil {
		return nil, apperr.Store(err, "ошибка получения транзакций")
	}
	if txs == nil {
		txs = []*models.RewardTransaction{}
	}

	return &models.ReferralStats{
		UserID:          user.ID,
		RefCode:         user.RefCode,
		DirectReferrals: count,
		BalanceEUR:      user.BalanceEUR,
		BalanceJBC:      user.BalanceJBC,
		Transactions:    txs,
	}, nil
}

// EnsureIdentityCode выдает реферальный код записи идентичности.
// Код берется у участника с тем же email, при отсутствии участник создается.
func (s *Service) EnsureIdentityCode(ctx context.Context, rec *models.IdentityRecord) (string, error) {
	if rec.RefCode != nil && *rec.RefCode != "" {
		return *rec.RefCode, nil
	}

	user, err := s.referralRepo.GetUserByEmail(ctx, rec.Email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return "", apperr.Store(err, "ошибка поиска пользователя")
		}
		reg, err := s.CreateUser(ctx, CreateUserRequest{ID: rec.ID, Email: rec.Email})
		if err != nil {
			return "", err
		}
		user = reg.User
	}

	updated, err := s.identityRepo.SetRefCode(ctx, rec.ID, user.RefCode)
	if err != nil {
		return "", apperr.Store(err, "ошибка сохранения реферального кода")
	}

	s.logger.Info("реферальный код назначен записи идентичности",
		zap.String("identity_id", rec.ID),
		zap.String("ref_code", *updated.RefCode))

	return *updated.RefCode, nil
}
