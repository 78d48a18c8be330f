package migrations

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"ref-service/internal/config"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// RunMigrations применяет миграции к базе данных
func RunMigrations(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("начало применения миграций")

	db, err := sql.Open("postgres", cfg.Database.GetURL())
	if err != nil {
		return fmt.Errorf("ошибка подключения к базе данных для миграций: %w", err)
	}
	defer db.Close()

	if err := Up(db, getMigrationPath(cfg.Database.MigrationPath, logger)); err != nil {
		return err
	}

	logger.Info("миграции успешно применены")
	return nil
}

// Up применяет миграции из каталога к открытому подключению
func Up(db *sql.DB, migrationPath string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("ошибка установки диалекта: %w", err)
	}

	if err := goose.Up(db, migrationPath); err != nil {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	return nil
}

// GetMigrationStatus выводит статус миграций
func GetMigrationStatus(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("проверка статуса миграций")

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("ошибка установки диалекта: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.GetURL())
	if err != nil {
		return fmt.Errorf("ошибка подключения к базе данных для миграций: %w", err)
	}
	defer db.Close()

	if err := goose.Status(db, getMigrationPath(cfg.Database.MigrationPath, logger)); err != nil {
		return fmt.Errorf("ошибка получения статуса миграций: %w", err)
	}

	return nil
}

// getMigrationPath ищет каталог миграций как указан в конфигурации, а для
// относительного пути также от рабочей директории вверх по родительским
// каталогам.
func getMigrationPath(configPath string, logger *zap.Logger) string {
	if isDir(configPath) {
		return configPath
	}
	if filepath.IsAbs(configPath) {
		logger.Warn("директория с миграциями не найдена", zap.String("path", configPath))
		return configPath
	}

	dir, err := os.Getwd()
	if err != nil {
		logger.Warn("не удалось получить текущую директорию, используем путь из конфигурации", zap.Error(err))
		return configPath
	}

	for {
		candidate := filepath.Join(dir, configPath)
		if isDir(candidate) {
			logger.Info("найден путь к миграциям", zap.String("path", candidate))
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	logger.Warn("директория с миграциями не найдена", zap.String("path", configPath))
	return configPath
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
