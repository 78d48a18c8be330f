package server

import (
	"net/http"
	"strings"
	"time"

	"ref-service/internal/apperr"
	"ref-service/pkg/models"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Email         string `json:"email"`
	RefParentCode string `json:"refParentCode"`
}

type registrationResponse struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	RefCode      string          `json:"ref_code"`
	ReferralLink string          `json:"referral_link"`
	Created      bool            `json:"created"`
	Rewards      *rewardsSummary `json:"rewards,omitempty"`
}

type rewardsSummary struct {
	Levels int     `json:"levels"`
	Total  float64 `json:"total"`
}

type linkResponse struct {
	RefCode      string `json:"ref_code"`
	ReferralLink string `json:"referral_link"`
}

type transactionResponse struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	SourceUser string    `json:"source_user"`
	Type       string    `json:"type"`
	Amount     float64   `json:"amount"`
	Level      int       `json:"level"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

type statsResponse struct {
	UserID          string                `json:"userId"`
	RefCode         string                `json:"refCode"`
	DirectReferrals int                   `json:"directReferrals"`
	BalanceEUR      float64               `json:"balanceEur"`
	BalanceJBC      float64               `json:"balanceJbc"`
	Transactions    []transactionResponse `json:"transactions"`
}

type userResponse struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	RefCode      string         `json:"ref_code"`
	RefParent    *string        `json:"ref_parent"`
	RefTree      models.RefTree `json:"ref_tree"`
	PlanType     string         `json:"plan_type"`
	BalanceEUR   float64        `json:"balance_eur"`
	BalanceJBC   float64        `json:"balance_jbc"`
	KYCStatus    string         `json:"kyc_status"`
	ReferralLink string         `json:"referral_link"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, "Некорректный запрос", apperr.Validation("некорректное тело запроса: %v", err))
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		s.respondError(c, "Email обязателен", apperr.Validation("email обязателен"))
		return
	}

	reg, err := s.referral.Register(c.Request.Context(), req.Email, req.RefParentCode)
	if err != nil {
		s.respondError(c, "Ошибка при регистрации пользователя", err)
		return
	}

	resp := registrationResponse{
		ID:           reg.User.ID,
		Email:        reg.User.Email,
		RefCode:      reg.User.RefCode,
		ReferralLink: s.referral.GetReferralLink(reg.User.RefCode),
		Created:      reg.Created,
	}
	if reg.Rewards != nil {
		resp.Rewards = &rewardsSummary{
			Levels: reg.Rewards.Levels(),
			Total:  reg.Rewards.Total.InexactFloat64(),
		}
	}

	if !reg.Created {
		respondOK(c, http.StatusOK, "Пользователь уже зарегистрирован", resp)
		return
	}
	respondOK(c, http.StatusCreated, "Пользователь зарегистрирован", resp)
}

func (s *Server) referralLink(c *gin.Context) {
	user, ok := s.userByEmailQuery(c)
	if !ok {
		return
	}

	respondOK(c, http.StatusOK, "", linkResponse{
		RefCode:      user.RefCode,
		ReferralLink: s.referral.GetReferralLink(user.RefCode),
	})
}

func (s *Server) referralStats(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("userId"))
	if userID == "" {
		s.respondError(c, "userId обязателен", apperr.Validation("параметр userId обязателен"))
		return
	}

	stats, err := s.referral.GetReferralStats(c.Request.Context(), userID)
	if err != nil {
		s.respondError(c, "Ошибка при получении статистики", err)
		return
	}

	resp := statsResponse{
		UserID:          stats.UserID,
		RefCode:         stats.RefCode,
		DirectReferrals: stats.DirectReferrals,
		BalanceEUR:      stats.BalanceEUR.InexactFloat64(),
		BalanceJBC:      stats.BalanceJBC.InexactFloat64(),
		Transactions:    make([]transactionResponse, 0, len(stats.Transactions)),
	}
	for _, tx := range stats.Transactions {
		resp.Transactions = append(resp.Transactions, transactionResponse{
			ID:         tx.ID,
			UserID:     tx.UserID,
			SourceUser: tx.SourceUser,
			Type:       string(tx.Type),
			Amount:     tx.Amount.InexactFloat64(),
			Level:      tx.Level,
			Status:     string(tx.Status),
			CreatedAt:  tx.CreatedAt,
		})
	}

	respondOK(c, http.StatusOK, "", resp)
}

func (s *Server) referralUser(c *gin.Context) {
	user, ok := s.userByEmailQuery(c)
	if !ok {
		return
	}

	respondOK(c, http.StatusOK, "", userResponse{
		ID:           user.ID,
		Email:        user.Email,
		RefCode:      user.RefCode,
		RefParent:    user.RefParent,
		RefTree:      user.RefTree,
		PlanType:     string(user.PlanType),
		BalanceEUR:   user.BalanceEUR.InexactFloat64(),
		BalanceJBC:   user.BalanceJBC.InexactFloat64(),
		KYCStatus:    string(user.KYCStatus),
		ReferralLink: s.referral.GetReferralLink(user.RefCode),
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	})
}

func (s *Server) userByEmailQuery(c *gin.Context) (*models.ReferralUser, bool) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		s.respondError(c, "Email обязателен", apperr.Validation("параметр email обязателен"))
		return nil, false
	}

	user, err := s.referral.GetUserByEmail(c.Request.Context(), email)
	if err != nil {
		s.respondError(c, "Ошибка при получении пользователя", err)
		return nil, false
	}
	return user, true
}
