package store

import (
	"errors"
	"fmt"
	"testing"

	"ref-service/pkg/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestUniqueConstraint(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		constraint string
		ok         bool
	}{
		{
			name:       "нарушение уникальности кода",
			err:        &pgconn.PgError{Code: "23505", ConstraintName: usersRefCodeConstraint},
			constraint: usersRefCodeConstraint,
			ok:         true,
		},
		{
			name:       "обернутая ошибка",
			err:        fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: usersEmailConstraint}),
			constraint: usersEmailConstraint,
			ok:         true,
		},
		{
			name: "другая ошибка postgres",
			err:  &pgconn.PgError{Code: "23503", ConstraintName: "users_ref_parent_fkey"},
		},
		{
			name: "не ошибка postgres",
			err:  errors.New("connection refused"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			constraint, ok := uniqueConstraint(tt.err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.constraint, constraint)
		})
	}
}

func TestCheckUser(t *testing.T) {
	valid := func() *models.ReferralUser {
		return &models.ReferralUser{ID: "u-1", PlanType: models.PlanTypeFree, KYCStatus: models.KYCStatusPending}
	}

	assert.NoError(t, checkUser(valid()))

	active := valid()
	active.PlanType, active.KYCStatus = models.PlanTypeActive, models.KYCStatusApproved
	assert.NoError(t, checkUser(active))

	badPlan := valid()
	badPlan.PlanType = "gold"
	assert.ErrorContains(t, checkUser(badPlan), "plan_type")

	badKYC := valid()
	badKYC.KYCStatus = ""
	assert.ErrorContains(t, checkUser(badKYC), "kyc_status")
}
