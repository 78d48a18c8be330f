package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"ref-service/internal/config"
	"ref-service/internal/referral"
	"ref-service/internal/store"
	"ref-service/pkg/models"

	"go.uber.org/zap"
)

type codeIssuer interface {
	EnsureIdentityCode(ctx context.Context, rec *models.IdentityRecord) (string, error)
}

type result struct {
	found  int
	issued int
	failed int
}

func main() {
	var (
		limit  = flag.Int("limit", 100, "Максимальное количество записей за запуск")
		dryRun = flag.Bool("dry-run", false, "Показать записи без кода без выдачи кодов")
	)
	flag.Parse()

	// Инициализация логгера
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Ошибка инициализации логгера:", err)
	}
	defer logger.Sync()

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	// Подключение к базе данных
	store, err := store.NewStore(cfg, logger)
	if err != nil {
		logger.Fatal("Ошибка подключения к базе данных", zap.Error(err))
	}
	defer store.Close()

	referralService := referral.NewService(store.Referral(), store.Identity(), cfg.Referral, nil, logger)

	res, err := backfill(context.Background(), store.Identity(), referralService, *limit, *dryRun, logger)
	if err != nil {
		logger.Fatal("Ошибка выдачи реферальных кодов", zap.Error(err))
	}

	logger.Info("Выдача реферальных кодов завершена",
		zap.Int("found", res.found),
		zap.Int("issued", res.issued),
		zap.Int("failed", res.failed),
		zap.Bool("dry_run", *dryRun))
}

// backfill выдает коды записям идентичностей, у которых их нет.
// Ошибка по одной записи не останавливает обработку остальных.
func backfill(ctx context.Context, repo store.IdentityRepository, issuer codeIssuer, limit int, dryRun bool, logger *zap.Logger) (result, error) {
	if limit <= 0 {
		return result{}, fmt.Errorf("некорректный limit: %d", limit)
	}

	records, err := repo.ListMissingRefCode(ctx, limit)
	if err != nil {
		return result{}, fmt.Errorf("ошибка получения записей без кода: %w", err)
	}

	res := result{found: len(records)}
	for _, rec := range records {
		if dryRun {
			logger.Info("DRY RUN: запись без реферального кода",
				zap.String("id", rec.ID),
				zap.String("email", rec.Email))
			continue
		}

		code, err := issuer.EnsureIdentityCode(ctx, rec)
		if err != nil {
			res.failed++
			logger.Warn("Не удалось выдать реферальный код",
				zap.String("id", rec.ID),
				zap.Error(err))
			continue
		}

		res.issued++
		logger.Info("Выдан реферальный код",
			zap.String("id", rec.ID),
			zap.String("ref_code", code))
	}

	return res, nil
}
