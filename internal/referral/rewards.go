package referral

import (
	"context"
	"fmt"

	"ref-service/internal/config"
	"ref-service/pkg/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var one = decimal.NewFromInt(1)

// RewardAmount возвращает награду JBC для уровня: 1 / 2^(level-1).
// Для уровней вне 1..12 награды нет.
func RewardAmount(level int) (decimal.Decimal, bool) {
	if level < 1 || level > config.MaxRewardDepth {
		return decimal.Zero, false
	}
	return one.Div(decimal.NewFromInt(int64(1) << (level - 1))), true
}

// AwardReferralRewards начисляет награды предкам нового пользователя.
// chain содержит предков от ближайшего. Первая ошибка останавливает обход
// и попадает в отчет, наружу не возвращается.
func (s *Service) AwardReferralRewards(ctx context.Context, newUserID string, chain []string) *models.RewardReport {
	report := &models.RewardReport{Total: decimal.Zero}

	depth := min(len(chain), s.cfg.MaxRewardDepth)
	for level := 1; level <= depth; level++ {
		beneficiary := chain[level-1]
		amount, ok := RewardAmount(level)
		if !ok {
			break
		}

		tx := &models.RewardTransaction{
			ID:         s.newID(),
			UserID:     beneficiary,
			SourceUser: newUserID,
			Type:       models.TransactionTypeJBC,
			Amount:     amount,
			Level:      level,
			Status:     models.TransactionStatusConfirmed,
		}
		if err := s.referralRepo.CreateTransaction(ctx, tx); err != nil {
			s.failReward(report, newUserID, beneficiary, level, fmt.Errorf("ошибка записи транзакции: %w", err))
			break
		}

		balance, err := s.referralRepo.AddBalanceJBC(ctx, beneficiary, amount)
		if err != nil {
			s.failReward(report, newUserID, beneficiary, level, fmt.Errorf("ошибка начисления баланса: %w", err))
			break
		}

		report.Credits = append(report.Credits, models.RewardCredit{UserID: beneficiary, Level: level, Amount: amount})
		report.Total = report.Total.Add(amount)
		s.recorder.RecordReward(level, amount.InexactFloat64(), nil)

		s.logger.Debug("начислена реферальная награда",
			zap.String("user_id", beneficiary),
			zap.String("source_user", newUserID),
			zap.Int("level", level),
			zap.String("amount", amount.String()),
			zap.String("balance_jbc", balance.String()))
	}

	return report
}

func (s *Service) failReward(report *models.RewardReport, newUserID, beneficiary string, level int, err error) {
	report.Err = fmt.Errorf("уровень %d: %w", level, err)
	s.recorder.RecordReward(level, 0, err)
	s.logger.Error("ошибка начисления реферальной награды",
		zap.String("user_id", beneficiary),
		zap.String("source_user", newUserID),
		zap.Int("level", level),
		zap.Error(err))
}
