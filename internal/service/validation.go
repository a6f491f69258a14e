package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tenant-onboarding/internal/domain"
)

// NewValidator возвращает валидатор с тегом cnpj и именами полей из json-тегов
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	// Ошибка регистрации возможна только при пустом имени тега
	_ = v.RegisterValidation("cnpj", func(fl validator.FieldLevel) bool {
		return domain.ValidCNPJ(fl.Field().String())
	})

	return v
}

// ValidationFields переводит ошибки validator в карту поле -> сообщение.
// Для прочих ошибок возвращает nil.
func ValidationFields(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe.Namespace())] = fieldMessage(fe)
	}
	return fields
}

// fieldPath отбрасывает имя корневой структуры: "Administrators.admins[0].email" -> "admins[0].email"
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "cnpj":
		return "is not a valid CNPJ"
	case "email":
		return "is not a valid email"
	case "eqfield":
		return "must match " + strings.ToLower(fe.Param()[:1]) + fe.Param()[1:]
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed on '%s'", fe.Tag())
	}
}
