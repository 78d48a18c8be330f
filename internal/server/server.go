// Package server предоставляет HTTP интерфейс сервиса на gin.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ref-service/internal/config"
	"ref-service/internal/metrics"
	"ref-service/pkg/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ServiceName имя сервиса в ответе проверки здоровья
const ServiceName = "RefService"

// IngestService обрабатывает события идентичностей
type IngestService interface {
	ProcessFile(ctx context.Context, path string) (*models.IdentityRecord, error)
	ProcessPayload(ctx context.Context, data []byte) (*models.IdentityRecord, error)
	List(ctx context.Context) ([]*models.IdentityRecord, error)
}

// ReferralService управляет участниками реферальной программы
type ReferralService interface {
	Register(ctx context.Context, email, parentCode string) (*models.Registration, error)
	GetUserByEmail(ctx context.Context, email string) (*models.ReferralUser, error)
	GetReferralLink(code string) string
	GetReferralStats(ctx context.Context, userID string) (*models.ReferralStats, error)
}

// Server HTTP сервер приложения
type Server struct {
	cfg        *config.Config
	ingest     IngestService
	referral   ReferralService
	router     *gin.Engine
	httpServer *http.Server
	now        func() time.Time
	logger     *zap.Logger
}

// New создает сервер и регистрирует маршруты. m может быть nil.
func New(cfg *config.Config, ingest IngestService, referral ReferralService, m *metrics.Metrics, logger *zap.Logger) *Server {
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(requestID(), requestLogger(logger), recovery(logger))
	if m != nil {
		router.Use(m.Middleware())
	}

	s := &Server{
		cfg:      cfg,
		ingest:   ingest,
		referral: referral,
		router:   router,
		now:      time.Now,
		logger:   logger,
	}

	router.GET("/health", s.health)
	router.GET("/records", s.listRecords)
	router.POST("/upload", s.upload)
	router.POST("/process", s.process)

	api := router.Group("/api/referral")
	api.POST("/register", s.register)
	api.GET("/link", s.referralLink)
	api.GET("/stats", s.referralStats)
	api.GET("/user", s.referralUser)

	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler возвращает корневой обработчик
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run запускает сервер и блокируется до остановки
func (s *Server) Run() error {
	s.logger.Info("сервис запущен",
		zap.String("addr", s.httpServer.Addr),
		zap.String("env", s.cfg.App.Env))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ошибка HTTP сервера: %w", err)
	}
	return nil
}

// Shutdown корректно останавливает сервер
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"service":   ServiceName,
	})
}
