// Package apperr описывает категории ошибок сервиса и их соответствие HTTP статусам.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	pkgerrors "github.com/pkg/errors"
)

// Kind категория ошибки
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindStore
	KindCodeGenerationExhausted
	KindUnsupportedOperation
	KindMissingField
)

// Стабильные коды ошибок для клиентов
const (
	CodeInternal                = "ERR_INTERNAL"
	CodeValidation              = "ERR_VALIDATION"
	CodeNotFound                = "ERR_NOT_FOUND"
	CodeStore                   = "ERR_STORE"
	CodeCodeGenerationExhausted = "ERR_CODE_GENERATION_EXHAUSTED"
	CodeUnsupportedOperation    = "ERR_UNSUPPORTED_OPERATION"
	CodeMissingField            = "ERR_MISSING_FIELD"
)

var kindCodes = map[Kind]string{
	KindInternal:                CodeInternal,
	KindValidation:              CodeValidation,
	KindNotFound:                CodeNotFound,
	KindStore:                   CodeStore,
	KindCodeGenerationExhausted: CodeCodeGenerationExhausted,
	KindUnsupportedOperation:    CodeUnsupportedOperation,
	KindMissingField:            CodeMissingField,
}

var kindStatuses = map[Kind]int{
	KindInternal:                http.StatusInternalServerError,
	KindValidation:              http.StatusBadRequest,
	KindNotFound:                http.StatusNotFound,
	KindStore:                   http.StatusInternalServerError,
	KindCodeGenerationExhausted: http.StatusInternalServerError,
	KindUnsupportedOperation:    http.StatusBadRequest,
	KindMissingField:            http.StatusUnprocessableEntity,
}

// Error ошибка уровня сервиса с категорией и причиной
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error реализует интерфейс error
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap возвращает причину
func (e *Error) Unwrap() error {
	return e.Err
}

// Code возвращает стабильный код ошибки
func (e *Error) Code() string {
	return kindCodes[e.Kind]
}

// Is сравнивает ошибки по категории, чтобы работали сентинелы вида ErrCodeGenerationExhausted
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Сентинелы для errors.Is
var (
	ErrValidation              = &Error{Kind: KindValidation}
	ErrNotFound                = &Error{Kind: KindNotFound}
	ErrStore                   = &Error{Kind: KindStore}
	ErrCodeGenerationExhausted = &Error{Kind: KindCodeGenerationExhausted}
	ErrUnsupportedOperation    = &Error{Kind: KindUnsupportedOperation}
	ErrMissingField            = &Error{Kind: KindMissingField}
)

// Validation ошибка входных данных
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound ресурс не найден
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Store ошибка хранилища. К причине добавляется стек вызовов.
func Store(err error, format string, args ...any) *Error {
	return &Error{Kind: KindStore, Message: fmt.Sprintf(format, args...), Err: pkgerrors.WithStack(err)}
}

// CodeGenerationExhausted не удалось подобрать уникальный код
func CodeGenerationExhausted(attempts int) *Error {
	return &Error{
		Kind:    KindCodeGenerationExhausted,
		Message: fmt.Sprintf("не удалось сгенерировать уникальный реферальный код после %d попыток", attempts),
	}
}

// UnsupportedOperation событие не поддерживается
func UnsupportedOperation(eventType, table string) *Error {
	return &Error{
		Kind:    KindUnsupportedOperation,
		Message: fmt.Sprintf("неподдерживаемый тип операции или таблица: %s/%s", eventType, table),
	}
}

// MissingField в записи отсутствует обязательное поле
func MissingField(field string) *Error {
	return &Error{
		Kind:    KindMissingField,
		Message: fmt.Sprintf("отсутствует обязательное поле: %s", field),
	}
}

// KindOf возвращает категорию ошибки. Неизвестные ошибки считаются внутренними.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// CodeOf возвращает стабильный код ошибки
func CodeOf(err error) string {
	return kindCodes[KindOf(err)]
}

// HTTPStatus возвращает HTTP статус для ошибки
func HTTPStatus(err error) int {
	return kindStatuses[KindOf(err)]
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// StackTrace возвращает стек первой ошибки в цепочке, у которой он есть
func StackTrace(err error) string {
	var st stackTracer
	if errors.As(err, &st) {
		return fmt.Sprintf("%+v", st.StackTrace())
	}
	return ""
}
