package validate

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-verify-api/internal/domain"
)

// v is the package-level singleton validator. It is initialised once at
// package load time. Custom registrations happen in init() before the first
// call to Struct.
var v = validator.New()

func init() {
	v.RegisterStructValidation(serviceInputLevel, domain.ServiceInput{})
	_ = v.RegisterValidation("service_type", func(fl validator.FieldLevel) bool {
		return domain.ServiceType(fl.Field().String()).Valid()
	})
}

// serviceInputLevel enforces the rule that link-verify subscriptions carry a link route.
func serviceInputLevel(sl validator.StructLevel) {
	in := sl.Current().Interface().(domain.ServiceInput)
	if in.ServiceType.RequiresLinkRoute() && in.LinkRoute == "" {
		sl.ReportError(in.LinkRoute, "LinkRoute", "verificationLinkRoute", "required_for_link", "")
	}
}

// Struct validates the given struct using its validate tags.
// Returns a human-readable error wrapping domain.ErrBadRequest, or nil.
func Struct(s any) error {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
		}
		var msgs []string
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%s: %w", strings.Join(msgs, "; "), domain.ErrBadRequest)
	}
	return nil
}
