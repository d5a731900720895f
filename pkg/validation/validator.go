package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/xzegga/ait-saas-sso/pkg/idperr"
)

// Messages shared by the input types across the SDK.
const (
	MsgInvalidEmail     = "Invalid email address"
	MsgPasswordTooShort = "Password must be at least 6 characters"
	MsgFullNameRequired = "Full name is required"
	MsgProductRequired  = "Product ID is required"
	MsgPlanRequired     = "Plan ID is required"
)

// MinPasswordLength is the shortest password the backend accepts.
const MinPasswordLength = 6

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator returns the shared validator with the custom rules registered.
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// report the msg tag in place of the field name
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			if msg := f.Tag.Get("msg"); msg != "" {
				return msg
			}
			return f.Name
		})
		mustRegister(v, "idp_email", func(fl validator.FieldLevel) bool {
			return IsValidEmail(fl.Field().String())
		})
		mustRegister(v, "notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		instance = v
	})
	return instance
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validator: %v", tag, err))
	}
}

// Struct validates s and returns the first failure as a validation error.
func Struct(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return idperr.Validation(message(fieldErrs[0]))
	}
	return idperr.Validation(err.Error())
}

// message prefers the field's msg tag and falls back to a generic sentence.
func message(e validator.FieldError) string {
	if e.Field() != e.StructField() {
		return e.Field()
	}
	switch e.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", e.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", e.Field(), e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", e.Field(), e.Param())
	case "uuid":
		return fmt.Sprintf("%s must be a UUID", e.Field())
	default:
		return fmt.Sprintf("%s is invalid", e.Field())
	}
}

// IsValidEmail reports whether email looks like local@domain.tld.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// Email validates an email address.
func Email(email string) error {
	if !IsValidEmail(email) {
		return idperr.Validation(MsgInvalidEmail)
	}
	return nil
}

// Password validates a new password.
func Password(password string) error {
	if len(password) < MinPasswordLength {
		return idperr.Validation(MsgPasswordTooShort)
	}
	return nil
}
