package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"валидация", Validation("email обязателен"), http.StatusBadRequest, CodeValidation},
		{"не найдено", NotFound("пользователь не найден"), http.StatusNotFound, CodeNotFound},
		{"хранилище", Store(errors.New("conn refused"), "ошибка получения пользователя"), http.StatusInternalServerError, CodeStore},
		{"коды исчерпаны", CodeGenerationExhausted(10), http.StatusInternalServerError, CodeCodeGenerationExhausted},
		{"неподдерживаемая операция", UnsupportedOperation("UPDATE", "identities"), http.StatusBadRequest, CodeUnsupportedOperation},
		{"нет поля", MissingField("email"), http.StatusUnprocessableEntity, CodeMissingField},
		{"неизвестная ошибка", errors.New("boom"), http.StatusInternalServerError, CodeInternal},
		{"обернутая ошибка", fmt.Errorf("обработка: %w", NotFound("нет")), http.StatusNotFound, CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
			assert.Equal(t, tt.code, CodeOf(tt.err))
		})
	}
}

func TestSentinels(t *testing.T) {
	err := fmt.Errorf("регистрация: %w", CodeGenerationExhausted(10))

	assert.True(t, errors.Is(err, ErrCodeGenerationExhausted))
	assert.False(t, errors.Is(err, ErrStore))
	assert.True(t, errors.Is(MissingField("id"), ErrMissingField))
}

func TestStoreErrorKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Store(cause, "ошибка сохранения")

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection reset")
	assert.NotEmpty(t, StackTrace(err))
	assert.Empty(t, StackTrace(Validation("плохой запрос")))
}
