package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ref-service/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// IdentityRepository определяет интерфейс для работы с таблицей user_identities
type IdentityRepository interface {
	GetByID(ctx context.Context, id string) (*models.IdentityRecord, error)
	Create(ctx context.Context, rec *models.IdentityRecord) (*models.IdentityRecord, error)
	TouchProcessedAt(ctx context.Context, id string, at time.Time) (*models.IdentityRecord, error)
	SetRefCode(ctx context.Context, id, code string) (*models.IdentityRecord, error)
	List(ctx context.Context) ([]*models.IdentityRecord, error)
	ListMissingRefCode(ctx context.Context, limit int) ([]*models.IdentityRecord, error)
	RefCodeExists(ctx context.Context, code string) (bool, error)
}

const identityColumns = `id, email, user_id, provider, provider_id, identity_data,
	created_at, updated_at, last_sign_in_at, processed_at, ref_code`

// PostgresIdentityRepository реализует IdentityRepository для PostgreSQL
type PostgresIdentityRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewIdentityRepository создает новый репозиторий идентичностей
func NewIdentityRepository(db *pgxpool.Pool, logger *zap.Logger) IdentityRepository {
	return &PostgresIdentityRepository{
		db:     db,
		logger: logger,
	}
}

func scanIdentity(row pgx.Row) (*models.IdentityRecord, error) {
	rec := &models.IdentityRecord{}
	err := row.Scan(
		&rec.ID,
		&rec.Email,
		&rec.UserID,
		&rec.Provider,
		&rec.ProviderID,
		&rec.IdentityData,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.LastSignInAt,
		&rec.ProcessedAt,
		&rec.RefCode,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetByID получает запись по id
func (r *PostgresIdentityRepository) GetByID(ctx context.Context, id string) (*models.IdentityRecord, error) {
	query := `SELECT ` + identityColumns + ` FROM user_identities WHERE id = $1`

	rec, err := scanIdentity(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи идентичности: %w", err)
	}

	return rec, nil
}

// Create вставляет новую запись и возвращает ее из базы
func (r *PostgresIdentityRepository) Create(ctx context.Context, rec *models.IdentityRecord) (*models.IdentityRecord, error) {
	query := `
		INSERT INTO user_identities (id, email, user_id, provider, provider_id, identity_data,
			created_at, updated_at, last_sign_in_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + identityColumns

	created, err := scanIdentity(r.db.QueryRow(
		ctx, query,
		rec.ID,
		rec.Email,
		rec.UserID,
		rec.Provider,
		rec.ProviderID,
		rec.IdentityData,
		rec.CreatedAt,
		rec.UpdatedAt,
		rec.LastSignInAt,
		rec.ProcessedAt,
	))
	if err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("ошибка создания записи идентичности: %w", err)
	}

	return created, nil
}

// TouchProcessedAt обновляет только processed_at
func (r *PostgresIdentityRepository) TouchProcessedAt(ctx context.Context, id string, at time.Time) (*models.IdentityRecord, error) {
	query := `
		UPDATE user_identities
		SET processed_at = $2
		WHERE id = $1
		RETURNING ` + identityColumns

	rec, err := scanIdentity(r.db.QueryRow(ctx, query, id, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления processed_at: %w", err)
	}

	return rec, nil
}

// SetRefCode проставляет реферальный код, если он еще не назначен.
// Если код уже есть, возвращается запись с существующим кодом.
func (r *PostgresIdentityRepository) SetRefCode(ctx context.Context, id, code string) (*models.IdentityRecord, error) {
	query := `
		UPDATE user_identities
		SET ref_code = COALESCE(ref_code, $2)
		WHERE id = $1
		RETURNING ` + identityColumns

	rec, err := scanIdentity(r.db.QueryRow(ctx, query, id, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка сохранения реферального кода: %w", err)
	}

	return rec, nil
}

// List возвращает все записи, новые первыми
func (r *PostgresIdentityRepository) List(ctx context.Context) ([]*models.IdentityRecord, error) {
	query := `SELECT ` + identityColumns + `
		FROM user_identities
		ORDER BY created_at DESC NULLS LAST, processed_at DESC`

	return r.list(ctx, query)
}

// ListMissingRefCode возвращает записи без реферального кода
func (r *PostgresIdentityRepository) ListMissingRefCode(ctx context.Context, limit int) ([]*models.IdentityRecord, error) {
	query := `SELECT ` + identityColumns + `
		FROM user_identities
		WHERE ref_code IS NULL
		ORDER BY processed_at
		LIMIT $1`

	return r.list(ctx, query, limit)
}

func (r *PostgresIdentityRepository) list(ctx context.Context, query string, args ...any) ([]*models.IdentityRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения записей идентичностей: %w", err)
	}
	defer rows.Close()

	records := make([]*models.IdentityRecord, 0)
	for rows.Next() {
		rec, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи идентичности: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения записей идентичностей: %w", err)
	}

	return records, nil
}

// RefCodeExists проверяет, занят ли код записью идентичности
func (r *PostgresIdentityRepository) RefCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM user_identities WHERE ref_code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки реферального кода: %w", err)
	}
	return exists, nil
}
