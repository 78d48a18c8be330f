package referral

import (
	"context"
	"fmt"
	"math/rand"

	"ref-service/internal/apperr"

	"go.uber.org/zap"
)

const (
	// CodeLength длина реферального кода
	CodeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// DefaultCodeAttempts количество попыток подобрать свободный код
	DefaultCodeAttempts = 10
)

// ExistsFunc проверяет, занят ли код
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// CodeGenerator генерирует реферальные коды из [A-Z0-9]
type CodeGenerator struct {
	maxAttempts int
	intn        func(n int) int
	logger      *zap.Logger
}

// NewCodeGenerator создает генератор кодов
func NewCodeGenerator(maxAttempts int, logger *zap.Logger) *CodeGenerator {
	if maxAttempts < 1 {
		maxAttempts = DefaultCodeAttempts
	}
	return &CodeGenerator{
		maxAttempts: maxAttempts,
		intn:        rand.Intn,
		logger:      logger,
	}
}

// MaxAttempts возвращает лимит попыток
func (g *CodeGenerator) MaxAttempts() int {
	return g.maxAttempts
}

// Generate возвращает случайный код. Уникальность не проверяется.
func (g *CodeGenerator) Generate() string {
	code := make([]byte, CodeLength)
	for i := range code {
		code[i] = codeAlphabet[g.intn(len(codeAlphabet))]
	}
	return string(code)
}

// GenerateUnique подбирает код, который exists считает свободным
func (g *CodeGenerator) GenerateUnique(ctx context.Context, exists ExistsFunc) (string, error) {
	remaining := g.maxAttempts
	return g.generateWithin(ctx, exists, &remaining)
}

// generateWithin подбирает свободный код, расходуя общий остаток попыток.
// Каждый сгенерированный код стоит одну попытку.
func (g *CodeGenerator) generateWithin(ctx context.Context, exists ExistsFunc, remaining *int) (string, error) {
	for *remaining > 0 {
		*remaining--
		attempt := g.maxAttempts - *remaining
		code := g.Generate()

		taken, err := exists(ctx, code)
		if err != nil {
			return "", apperr.Store(err, "ошибка проверки уникальности реферального кода")
		}
		if !taken {
			return code, nil
		}

		g.logger.Warn("сгенерированный код уже существует, пробуем снова",
			zap.String("code", code),
			zap.Int("attempt", attempt))
	}

	return "", apperr.CodeGenerationExhausted(g.maxAttempts)
}

// IsValidCode проверяет формат реферального кода
func IsValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// anyExists объединяет проверки нескольких хранилищ в одно пространство кодов
func anyExists(checks ...ExistsFunc) ExistsFunc {
	return func(ctx context.Context, code string) (bool, error) {
		for _, check := range checks {
			taken, err := check(ctx, code)
			if err != nil {
				return false, fmt.Errorf("проверка кода %s: %w", code, err)
			}
			if taken {
				return true, nil
			}
		}
		return false, nil
	}
}
