package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ref-service/internal/config"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Ошибки хранилища, которые вызывающий код различает через errors.Is
var (
	ErrNotFound         = errors.New("запись не найдена")
	ErrAlreadyExists    = errors.New("запись уже существует")
	ErrDuplicateRefCode = errors.New("реферальный код уже занят")
	ErrDuplicateEmail   = errors.New("email уже зарегистрирован")
)

const uniqueViolation = "23505"

// Store представляет интерфейс для работы с базой данных
type Store interface {
	Identity() IdentityRepository
	Referral() ReferralRepository
	Close() error
}

// store реализует интерфейс Store
type store struct {
	db       *pgxpool.Pool
	logger   *zap.Logger
	identity IdentityRepository
	referral ReferralRepository
}

// NewStore создает новое подключение к базе данных
func NewStore(cfg *config.Config, logger *zap.Logger) (Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Создание пула подключений
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	// Настройка пула
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка проверки подключения к базе данных: %w", err)
	}

	logger.Info("успешное подключение к базе данных PostgreSQL")

	return New(db, logger), nil
}

// New собирает Store поверх готового пула
func New(db *pgxpool.Pool, logger *zap.Logger) Store {
	return &store{
		db:       db,
		logger:   logger,
		identity: NewIdentityRepository(db, logger),
		referral: NewReferralRepository(db, logger),
	}
}

// Identity возвращает репозиторий записей идентичностей
func (s *store) Identity() IdentityRepository {
	return s.identity
}

// Referral возвращает репозиторий реферальной программы
func (s *store) Referral() ReferralRepository {
	return s.referral
}

// Close закрывает подключение к базе данных
func (s *store) Close() error {
	s.db.Close()
	s.logger.Info("подключение к базе данных закрыто")
	return nil
}

// uniqueConstraint возвращает имя нарушенного ограничения уникальности
func uniqueConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}
