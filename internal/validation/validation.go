// Package validation содержит проверки полей входящих запросов.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mmeshcher/gamification-engine/internal/model"
)

// ErrInvalidRequest возвращается, если поля запроса не прошли проверку.
var ErrInvalidRequest = errors.New("invalid request")

// Идентификаторы внешние и непрозрачные, но ограничены по длине и алфавиту,
// чтобы их можно было безопасно писать в журнал и использовать в URL.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:@-]{0,127}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	mustRegister(v, "identifier", func(fl validator.FieldLevel) bool {
		return IsValidIdentifier(fl.Field().String())
	})
	mustRegister(v, "currency", func(fl validator.FieldLevel) bool {
		switch model.Currency(fl.Field().String()) {
		case model.CurrencyCoins, model.CurrencyGems:
			return true
		}
		return false
	})
	mustRegister(v, "streaktype", func(fl validator.FieldLevel) bool {
		return model.StreakType(fl.Field().String()).Valid()
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %s: %v", tag, err))
	}
}

// IsValidIdentifier проверяет идентификатор счёта или товара.
func IsValidIdentifier(id string) bool {
	return identifierPattern.MatchString(id)
}

// Struct проверяет запрос по тегам validate. Ошибка оборачивает ErrInvalidRequest
// и перечисляет поля, не прошедшие проверку.
func Struct(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(fields, ", "))
}
