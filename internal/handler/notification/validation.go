package notification

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/notification-service/internal/model"
)

var (
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 \-]{5,14}$`)
	registerOnce sync.Once
)

// registerValidators adds the domain rules to gin's validator engine.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			return phonePattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("event_type", func(fl validator.FieldLevel) bool {
			return model.EventType(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("notification_type", func(fl validator.FieldLevel) bool {
			return model.NotificationType(fl.Field().String()).Valid()
		})
	})
}

// validationMessage turns binding errors into one readable line per field.
func validationMessage(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}

	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return strings.Join(msgs, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	field := jsonName(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_if":
		// param is "<Field> <value>"
		parts := strings.Fields(fe.Param())
		if len(parts) == 2 {
			return fmt.Sprintf("%s is required for %s notifications", field, parts[1])
		}
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "email":
		return field + " must be a valid email address"
	case "phone":
		return field + " must be a valid phone number"
	case "event_type":
		return fmt.Sprintf("%q is not a known event type", fe.Value())
	case "notification_type":
		return fmt.Sprintf("%q is not a valid notification type", fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

var jsonNames = map[string]string{
	"NotificationType": "notification_type",
	"EventType":        "event_type",
	"RecipientName":    "recipient_name",
	"RecipientEmail":   "recipient_email",
	"RecipientPhone":   "recipient_phone",
	"Subject":          "subject",
	"Message":          "message",
}

func jsonName(field string) string {
	if n, ok := jsonNames[field]; ok {
		return n
	}
	return field
}
