package store

import (
	"context"
	"errors"
	"fmt"

	"ref-service/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReferralRepository определяет интерфейс для работы с участниками и начислениями
type ReferralRepository interface {
	CreateUser(ctx context.Context, user *models.ReferralUser) error
	GetUserByID(ctx context.Context, id string) (*models.ReferralUser, error)
	GetUserByEmail(ctx context.Context, email string) (*models.ReferralUser, error)
	GetUserByRefCode(ctx context.Context, code string) (*models.ReferralUser, error)
	RefCodeExists(ctx context.Context, code string) (bool, error)
	CountDirectReferrals(ctx context.Context, userID string) (int, error)
	CreateTransaction(ctx context.Context, tx *models.RewardTransaction) error
	AddBalanceJBC(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]*models.RewardTransaction, error)
}

// Имена ограничений уникальности из миграции 00002
const (
	usersRefCodeConstraint = "users_ref_code_key"
	usersEmailConstraint   = "users_email_key"
	usersPkeyConstraint    = "users_pkey"
)

const userColumns = `id, email, ref_code, ref_parent, ref_tree, plan_type,
	balance_eur, balance_jbc, kyc_status, created_at, updated_at`

// PostgresReferralRepository реализует ReferralRepository для PostgreSQL
type PostgresReferralRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewReferralRepository создает новый репозиторий реферальной программы
func NewReferralRepository(db *pgxpool.Pool, logger *zap.Logger) ReferralRepository {
	return &PostgresReferralRepository{
		db:     db,
		logger: logger,
	}
}

func scanUser(row pgx.Row) (*models.ReferralUser, error) {
	user := &models.ReferralUser{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.RefCode,
		&user.RefParent,
		&user.RefTree,
		&user.PlanType,
		&user.BalanceEUR,
		&user.BalanceJBC,
		&user.KYCStatus,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if user.RefTree.Chain == nil {
		user.RefTree.Chain = []string{}
	}
	if err := checkUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

// checkUser отклоняет неизвестные значения plan_type и kyc_status
func checkUser(user *models.ReferralUser) error {
	if !user.PlanType.IsValid() {
		return fmt.Errorf("некорректный plan_type %q у пользователя %s", user.PlanType, user.ID)
	}
	if !user.KYCStatus.IsValid() {
		return fmt.Errorf("некорректный kyc_status %q у пользователя %s", user.KYCStatus, user.ID)
	}
	return nil
}

// CreateUser создает участника. created_at и updated_at заполняются базой.
func (r *PostgresReferralRepository) CreateUser(ctx context.Context, user *models.ReferralUser) error {
	if err := checkUser(user); err != nil {
		return err
	}

	query := `
		INSERT INTO users (id, email, ref_code, ref_parent, ref_tree, plan_type,
			balance_eur, balance_jbc, kyc_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(
		ctx, query,
		user.ID,
		user.Email,
		user.RefCode,
		user.RefParent,
		user.RefTree,
		user.PlanType,
		user.BalanceEUR,
		user.BalanceJBC,
		user.KYCStatus,
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if constraint, ok := uniqueConstraint(err); ok {
			switch constraint {
			case usersRefCodeConstraint:
				return ErrDuplicateRefCode
			case usersEmailConstraint:
				return ErrDuplicateEmail
			case usersPkeyConstraint:
				return ErrAlreadyExists
			}
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}

	return nil
}

func (r *PostgresReferralRepository) getUser(ctx context.Context, where string, arg any) (*models.ReferralUser, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where + ` = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}

	return user, nil
}

// GetUserByID получает участника по id
func (r *PostgresReferralRepository) GetUserByID(ctx context.Context, id string) (*models.ReferralUser, error) {
	return r.getUser(ctx, "id", id)
}

// GetUserByEmail получает участника по email
func (r *PostgresReferralRepository) GetUserByEmail(ctx context.Context, email string) (*models.ReferralUser, error) {
	return r.getUser(ctx, "email", email)
}

// GetUserByRefCode получает владельца реферального кода
func (r *PostgresReferralRepository) GetUserByRefCode(ctx context.Context, code string) (*models.ReferralUser, error) {
	return r.getUser(ctx, "ref_code", code)
}

// RefCodeExists проверяет, занят ли код участником
func (r *PostgresReferralRepository) RefCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE ref_code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки реферального кода: %w", err)
	}
	return exists, nil
}

// CountDirectReferrals считает участников, приглашенных напрямую
func (r *PostgresReferralRepository) CountDirectReferrals(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE ref_parent = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчета рефералов: %w", err)
	}
	return count, nil
}

// CreateTransaction добавляет запись в журнал начислений
func (r *PostgresReferralRepository) CreateTransaction(ctx context.Context, tx *models.RewardTransaction) error {
	query := `
		INSERT INTO transactions (id, user_id, source_user, type, amount, level, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.QueryRow(
		ctx, query,
		tx.ID,
		tx.UserID,
		tx.SourceUser,
		tx.Type,
		tx.Amount,
		tx.Level,
		tx.Status,
	).Scan(&tx.CreatedAt)

	if err != nil {
		return fmt.Errorf("ошибка создания транзакции: %w", err)
	}

	return nil
}

// AddBalanceJBC атомарно увеличивает баланс JBC и возвращает новое значение
func (r *PostgresReferralRepository) AddBalanceJBC(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	query := `
		UPDATE users
		SET balance_jbc = balance_jbc + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING balance_jbc`

	var balance decimal.Decimal
	err := r.db.QueryRow(ctx, query, userID, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("ошибка обновления баланса: %w", err)
	}

	return balance, nil
}

// ListTransactions возвращает последние начисления пользователя, новые первыми
func (r *PostgresReferralRepository) ListTransactions(ctx context.Context, userID string, limit int) ([]*models.RewardTransaction, error) {
	query := `
		SELECT id, user_id, source_user, type, amount, level, status, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, level
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения транзакций: %w", err)
	}
	defer rows.Close()

	txs := make([]*models.RewardTransaction, 0)
	for rows.Next() {
		tx := &models.RewardTransaction{}
		err := rows.Scan(
			&tx.ID,
			&tx.UserID,
			&tx.SourceUser,
			&tx.Type,
			&tx.Amount,
			&tx.Level,
			&tx.Status,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования транзакции: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения транзакций: %w", err)
	}

	return txs, nil
}
