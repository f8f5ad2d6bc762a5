package intake

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"inidars/internal/model"

	"github.com/go-playground/validator/v10"
)

// Validator normalizes inbound events and checks them against the struct
// tags on model.Event.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{validate: v, now: time.Now}
}

// Normalize lowercases protocol and action, canonicalizes both addresses
// and fills a missing timestamp, then validates the result.
func (v *Validator) Normalize(event *model.Event) error {
	event.Protocol = strings.ToLower(strings.TrimSpace(event.Protocol))
	event.Action = strings.ToLower(strings.TrimSpace(event.Action))
	event.SourceIP = strings.TrimSpace(event.SourceIP)
	event.DestIP = strings.TrimSpace(event.DestIP)
	if event.Timestamp.IsZero() {
		event.Timestamp = v.now().UTC()
	}

	if err := v.validate.Struct(event); err != nil {
		return toValidationError(err)
	}

	// Both pass the "ip" tag, so these cannot fail.
	event.SourceIP, _ = model.CanonicalIP(event.SourceIP)
	event.DestIP, _ = model.CanonicalIP(event.DestIP)
	return nil
}

func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &model.ValidationError{Message: err.Error()}
	}

	fe := fieldErrs[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "ip":
		msg = fmt.Sprintf("malformed IP address %q", fe.Value())
	case "gte":
		msg = fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		msg = fmt.Sprintf("must be <= %s", fe.Param())
	case "max":
		msg = fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		msg = fmt.Sprintf("failed %q validation", fe.Tag())
	}
	return &model.ValidationError{Field: fe.Field(), Message: msg}
}
