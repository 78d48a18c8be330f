package server

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"ref-service/internal/apperr"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const uploadField = "jsonFile"

func (s *Server) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.Upload.MaxBytes)

	file, err := c.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			s.respondError(c, "Файл слишком большой", apperr.Validation("размер файла превышает %d байт", tooLarge.Limit))
		default:
			s.respondError(c, "Файл не был загружен", apperr.Validation("поле %s не содержит файла", uploadField))
		}
		return
	}

	if !isJSONFile(file.Filename, file.Header.Get("Content-Type")) {
		s.respondError(c, "Только JSON файлы разрешены", apperr.Validation("неподдерживаемый файл: %s", file.Filename))
		return
	}

	if err := os.MkdirAll(s.cfg.Upload.Dir, 0o755); err != nil {
		s.respondError(c, "Ошибка при обработке файла", fmt.Errorf("ошибка создания директории загрузок: %w", err))
		return
	}

	path := s.uploadPath(file.Filename)
	defer s.removeUpload(c, path)

	if err := c.SaveUploadedFile(file, path); err != nil {
		s.respondError(c, "Ошибка при обработке файла", fmt.Errorf("ошибка сохранения файла: %w", err))
		return
	}

	rec, err := s.ingest.ProcessFile(c.Request.Context(), path)
	if err != nil {
		s.respondError(c, "Ошибка при обработке файла", err)
		return
	}

	respondOK(c, http.StatusOK, "Данные успешно обработаны", rec)
}

// uploadPath возвращает уникальный путь загрузки внутри каталога загрузок
func (s *Server) uploadPath(filename string) string {
	name := fmt.Sprintf("%d-%s-%s", s.now().UnixMilli(), uuid.NewString(), filepath.Base(filename))
	return filepath.Join(s.cfg.Upload.Dir, name)
}

func (s *Server) removeUpload(c *gin.Context, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.reqLogger(c).Warn("не удалось удалить загруженный файл",
			zap.String("path", path),
			zap.Error(err))
	}
}

func (s *Server) process(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.Upload.MaxBytes)

	data, err := c.GetRawData()
	if err != nil {
		s.respondError(c, "Ошибка при обработке данных", apperr.Validation("не удалось прочитать тело запроса: %v", err))
		return
	}

	rec, err := s.ingest.ProcessPayload(c.Request.Context(), data)
	if err != nil {
		s.respondError(c, "Ошибка при обработке данных", err)
		return
	}

	respondOK(c, http.StatusOK, "Данные успешно обработаны", rec)
}

func (s *Server) listRecords(c *gin.Context) {
	records, err := s.ingest.List(c.Request.Context())
	if err != nil {
		s.respondError(c, "Ошибка при получении записей", err)
		return
	}

	respondOK(c, http.StatusOK, "", records)
}

func (s *Server) reqLogger(c *gin.Context) *zap.Logger {
	if l, ok := c.Get(loggerKey); ok {
		if logger, ok := l.(*zap.Logger); ok {
			return logger
		}
	}
	return s.logger
}

// isJSONFile принимает файлы с типом application/json или расширением .json
func isJSONFile(name, contentType string) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "application/json" {
		return true
	}
	return strings.EqualFold(filepath.Ext(name), ".json")
}
