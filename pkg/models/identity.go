package models

import (
	"time"
)

// Допустимые значения события вебхука
const (
	EventTypeInsert      = "INSERT"
	EventTableIdentities = "identities"
)

// IdentityData содержит данные провайдера аутентификации
type IdentityData struct {
	Iss           string `json:"iss,omitempty"`
	Sub           string `json:"sub,omitempty"`
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
	Picture       string `json:"picture,omitempty"`
	FullName      string `json:"full_name,omitempty"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	ProviderID    string `json:"provider_id,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	PhoneVerified bool   `json:"phone_verified,omitempty"`
}

// IdentityRecord представляет запись таблицы user_identities
type IdentityRecord struct {
	ID           string        `json:"id" validate:"required"`
	Email        string        `json:"email" validate:"required"`
	UserID       *string       `json:"user_id"`
	Provider     *string       `json:"provider"`
	ProviderID   *string       `json:"provider_id"`
	IdentityData *IdentityData `json:"identity_data"`
	CreatedAt    *time.Time    `json:"created_at"`
	UpdatedAt    *time.Time    `json:"updated_at"`
	LastSignInAt *time.Time    `json:"last_sign_in_at"`
	ProcessedAt  time.Time     `json:"processed_at"`
	RefCode      *string       `json:"ref_code"`
	ReferralLink string        `json:"referral_link,omitempty"`
}

// IdentityEvent представляет событие изменения таблицы identities
type IdentityEvent struct {
	Type      string          `json:"type"`
	Table     string          `json:"table"`
	Schema    string          `json:"schema"`
	Record    *IdentityRecord `json:"record"`
	OldRecord *IdentityRecord `json:"old_record"`
}
