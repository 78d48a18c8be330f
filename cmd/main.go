package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ref-service/internal/archive"
	"ref-service/internal/config"
	"ref-service/internal/ingest"
	"ref-service/internal/metrics"
	"ref-service/internal/migrations"
	"ref-service/internal/referral"
	"ref-service/internal/server"
	"ref-service/internal/store"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	migrationsStatus := flag.Bool("migrations-status", false, "Показать статус миграций и выйти")
	flag.Parse()

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Инициализация логгера
	logger, err := initLogger(&cfg.App)
	if err != nil {
		fmt.Printf("Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *migrationsStatus {
		if err := migrations.GetMigrationStatus(cfg, logger); err != nil {
			logger.Fatal("ошибка получения статуса миграций", zap.Error(err))
		}
		return
	}

	logger.Info("запуск сервиса RefService", zap.String("env", cfg.App.Env))

	// Инициализация базы данных
	store, err := store.NewStore(cfg, logger)
	if err != nil {
		logger.Fatal("ошибка инициализации базы данных", zap.Error(err))
	}
	defer store.Close()

	// Применение миграций
	if err := migrations.RunMigrations(cfg, logger); err != nil {
		logger.Fatal("ошибка применения миграций", zap.Error(err))
	}

	metricsSystem := metrics.New(logger)

	referralService := referral.NewService(store.Referral(), store.Identity(), cfg.Referral, metricsSystem, logger)

	var archiver ingest.Archiver
	if cfg.Archive.Enabled() {
		s3Archiver, err := archive.NewS3Archiver(context.Background(), cfg.Archive, logger)
		if err != nil {
			logger.Fatal("ошибка инициализации архива событий", zap.Error(err))
		}
		archiver = s3Archiver
	}

	ingestService := ingest.NewService(store.Identity(), referralService, archiver, metricsSystem, logger)

	srv := server.New(cfg, ingestService, referralService, metricsSystem, logger)

	// Обработка сигналов для graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	logger.Info("приложение запущено и готово к работе",
		zap.String("address", fmt.Sprintf("http://localhost:%d", cfg.App.Port)),
	)

	select {
	case sig := <-sigChan:
		logger.Info("получен сигнал завершения, начинаем graceful shutdown", zap.String("signal", sig.String()))
	case err := <-errChan:
		if err != nil {
			logger.Error("HTTP сервер остановлен с ошибкой", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("ошибка при остановке HTTP сервера", zap.Error(err))
	}

	logger.Info("приложение завершено")
}

// initLogger инициализирует логгер. В разработке вывод консольный, иначе JSON.
func initLogger(cfg *config.AppConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapCfg.Level = cfg.GetLogLevel()
	zapCfg.OutputPaths = []string{"stdout", "logs/app.log"}
	zapCfg.ErrorOutputPaths = []string{"stderr", "logs/error.log"}

	// Создаем директорию для логов если её нет
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории логов: %w", err)
	}

	return zapCfg.Build()
}
