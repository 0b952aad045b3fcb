// Package schema holds the single validation rule set shared by the add and
// edit marker forms. Validate is pure: it never touches the network and never
// mutates its input.
package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pkordes/change-observer/internal/domain"
)

// Field paths used in domain.FieldError.
const (
	FieldName      = "name"
	FieldLatitude  = "coordinate.latitude"
	FieldLongitude = "coordinate.longitude"
)

// FieldEmail returns the field path of the i-th subscribed email.
func FieldEmail(i int) string { return fmt.Sprintf("subscribedEmails[%d]", i) }

// Messages reported for each rule.
const (
	MsgNameRequired       = "name required"
	MsgInvalidLatitude    = "invalid latitude format"
	MsgInvalidLongitude   = "invalid longitude format"
	MsgLatitudeOutOfRange = "latitude out of range"
	MsgLongitudeRange     = "longitude out of range"
	MsgInvalidEmail       = "invalid email format"
)

// Policy switches optional rules on. The zero value applies the format rules only.
type Policy struct {
	// CheckRange rejects latitudes outside [-90, 90] and longitudes outside [-180, 180].
	CheckRange bool
}

var decimalDegrees = regexp.MustCompile(`^-?\d*\.?\d+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("decimaldeg", func(fl validator.FieldLevel) bool {
		return decimalDegrees.MatchString(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("schema: register decimaldeg: %v", err))
	}
	return v
}

// ValidEmail reports whether s is email-shaped.
func ValidEmail(s string) bool {
	return validate.Var(s, "required,email") == nil
}

// Validate checks draft against the rule set and returns the normalised draft:
// the name trimmed and a nil email list replaced by an empty one. On failure
// the error is a *domain.ValidationError listing every offending field.
func Validate(draft domain.MarkerDraft, p Policy) (domain.MarkerDraft, error) {
	var fields []domain.FieldError
	fail := func(field, msg string) {
		fields = append(fields, domain.FieldError{Field: field, Message: msg})
	}

	out := domain.MarkerDraft{
		Name:             strings.TrimSpace(draft.Name),
		Coordinate:       draft.Coordinate,
		SubscribedEmails: append([]string{}, draft.SubscribedEmails...),
	}

	if out.Name == "" {
		fail(FieldName, MsgNameRequired)
	}

	if validate.Var(out.Coordinate.Latitude, "decimaldeg") != nil {
		fail(FieldLatitude, MsgInvalidLatitude)
	} else if p.CheckRange && !inRange(out.Coordinate.Latitude, 90) {
		fail(FieldLatitude, MsgLatitudeOutOfRange)
	}
	if validate.Var(out.Coordinate.Longitude, "decimaldeg") != nil {
		fail(FieldLongitude, MsgInvalidLongitude)
	} else if p.CheckRange && !inRange(out.Coordinate.Longitude, 180) {
		fail(FieldLongitude, MsgLongitudeRange)
	}

	for i, email := range out.SubscribedEmails {
		if !ValidEmail(email) {
			fail(FieldEmail(i), MsgInvalidEmail)
		}
	}

	if len(fields) > 0 {
		return draft, &domain.ValidationError{Fields: fields}
	}
	return out, nil
}

func inRange(s string, limit float64) bool {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false
	}
	return validate.Var(f, fmt.Sprintf("gte=%g,lte=%g", -limit, limit)) == nil
}
