package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlanType представляет тарифный план участника реферальной программы
type PlanType string

const (
	PlanTypeFree   PlanType = "free"
	PlanTypeActive PlanType = "active"
)

// IsValid проверяет валидность тарифного плана
func (p PlanType) IsValid() bool {
	switch p {
	case PlanTypeFree, PlanTypeActive:
		return true
	default:
		return false
	}
}

// KYCStatus представляет статус проверки KYC
type KYCStatus string

const (
	KYCStatusPending  KYCStatus = "pending"
	KYCStatusApproved KYCStatus = "approved"
	KYCStatusRejected KYCStatus = "rejected"
)

// IsValid проверяет валидность статуса KYC
func (s KYCStatus) IsValid() bool {
	switch s {
	case KYCStatusPending, KYCStatusApproved, KYCStatusRejected:
		return true
	default:
		return false
	}
}

// RefTree описывает положение пользователя в реферальном дереве.
// Chain содержит предков от ближайшего к корню, Level равен len(Chain).
type RefTree struct {
	Chain []string `json:"chain"`
	Level int      `json:"level"`
}

// NewRefTree строит дерево для пользователя, приглашенного parent.
func NewRefTree(parent *ReferralUser) RefTree {
	if parent == nil {
		return RefTree{Chain: []string{}}
	}

	chain := make([]string, 0, len(parent.RefTree.Chain)+1)
	chain = append(chain, parent.ID)
	chain = append(chain, parent.RefTree.Chain...)

	return RefTree{Chain: chain, Level: len(chain)}
}

// ReferralUser представляет участника реферальной программы
type ReferralUser struct {
	ID         string          `json:"id"`
	Email      string          `json:"email"`
	RefCode    string          `json:"ref_code"`
	RefParent  *string         `json:"ref_parent"`
	RefTree    RefTree         `json:"ref_tree"`
	PlanType   PlanType        `json:"plan_type"`
	BalanceEUR decimal.Decimal `json:"balance_eur"`
	BalanceJBC decimal.Decimal `json:"balance_jbc"`
	KYCStatus  KYCStatus       `json:"kyc_status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// TransactionType представляет тип начисления
type TransactionType string

const (
	TransactionTypeJBC TransactionType = "jbc"
)

// TransactionStatus представляет статус начисления
type TransactionStatus string

const (
	TransactionStatusConfirmed TransactionStatus = "confirmed"
)

// RewardTransaction запись журнала реферальных начислений. Только добавляется.
type RewardTransaction struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	SourceUser string            `json:"source_user"`
	Type       TransactionType   `json:"type"`
	Amount     decimal.Decimal   `json:"amount"`
	Level      int               `json:"level"`
	Status     TransactionStatus `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ReferralStats представляет статистику рефералов пользователя
type ReferralStats struct {
	UserID          string               `json:"userId"`
	RefCode         string               `json:"refCode"`
	DirectReferrals int                  `json:"directReferrals"`
	BalanceEUR      decimal.Decimal      `json:"balanceEur"`
	BalanceJBC      decimal.Decimal      `json:"balanceJbc"`
	Transactions    []*RewardTransaction `json:"transactions"`
}

// RewardCredit одно успешное начисление в цепочке
type RewardCredit struct {
	UserID string
	Level  int
	Amount decimal.Decimal
}

// RewardReport итог распространения наград. Ошибка здесь не влияет на регистрацию.
type RewardReport struct {
	Credits []RewardCredit
	Total   decimal.Decimal
	Err     error
}

// Levels возвращает количество оплаченных уровней
func (r *RewardReport) Levels() int {
	if r == nil {
		return 0
	}
	return len(r.Credits)
}

// Registration результат регистрации участника
type Registration struct {
	User    *ReferralUser
	Created bool
	Rewards *RewardReport
}
