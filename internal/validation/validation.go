// Package validation holds the shape checks applied to credentials before
// they reach the user store. The same rules are rendered into the frontend,
// so the client never carries its own copy of them.
package validation

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	validator "github.com/go-playground/validator/v10"
)

// addressChar matches one character that is neither "@" nor whitespace. The
// whitespace set is spelled out literally: the pattern must match the same
// characters in RE2 and in a browser RegExp, which disagree on \s.
const addressChar = "[^@\t\n\v\f\r \u00a0\u1680\u2000-\u200a\u2028\u2029\u202f\u205f\u3000\ufeff]"

const (
	// EmailPattern accepts a single "@" followed by a domain with at least one dot.
	EmailPattern = "^" + addressChar + "+@" + addressChar + "+\\." + addressChar + "+$"

	// MinPasswordLength is counted in runes, not bytes or UTF-16 code units.
	MinPasswordLength = 6

	// MinNameLength applies to the name with surrounding whitespace removed.
	MinNameLength = 2
)

// Messages returned to the client when a check fails.
const (
	MsgInvalidEmail    = "Invalid email format"
	MsgInvalidPassword = "Password must be at least 6 characters"
	MsgInvalidName     = "Name must be at least 2 characters"

	MsgMissingCredentials = "Email and password are required"
)

// Struct tags registered by New.
const (
	TagEmail    = "dashemail"
	TagPassword = "dashpassword"
	TagName     = "dashname"
)

var emailRegexp = regexp.MustCompile(EmailPattern)

var tagMessages = map[string]string{
	TagEmail:    MsgInvalidEmail,
	TagPassword: MsgInvalidPassword,
	TagName:     MsgInvalidName,
}

// FieldError names the first request field that failed validation together
// with the message shown to the client.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Rules is the client-facing view of the checks.
type Rules struct {
	EmailPattern      string `json:"emailPattern"`
	MinPasswordLength int    `json:"minPasswordLength"`
	MinNameLength     int    `json:"minNameLength"`
}

// IsValidEmail reports whether s looks like an address. No DNS lookups are made.
func IsValidEmail(s string) bool {
	return emailRegexp.MatchString(s)
}

// IsValidPassword reports whether s has at least MinPasswordLength runes.
func IsValidPassword(s string) bool {
	return utf8.RuneCountInString(s) >= MinPasswordLength
}

// IsValidName reports whether s, trimmed, has at least MinNameLength runes.
func IsValidName(s string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) >= MinNameLength
}

// CurrentRules returns the rules the frontend renders into its page.
func CurrentRules() Rules {
	return Rules{
		EmailPattern:      EmailPattern,
		MinPasswordLength: MinPasswordLength,
		MinNameLength:     MinNameLength,
	}
}

// Validator wraps a go-playground validator with the dash* tags registered.
type Validator struct {
	validate *validator.Validate
}

// New returns a Validator that understands the dashemail, dashpassword and
// dashname struct tags.
func New() (*Validator, error) {
	validate := validator.New()

	checks := map[string]func(string) bool{
		TagEmail:    IsValidEmail,
		TagPassword: IsValidPassword,
		TagName:     IsValidName,
	}
	for tag, check := range checks {
		check := check
		err := validate.RegisterValidation(tag, func(fieldLevel validator.FieldLevel) bool {
			return check(fieldLevel.Field().String())
		})
		if err != nil {
			return nil, err
		}
	}

	return &Validator{validate: validate}, nil
}

// Struct validates s and returns the first failing field in declaration order,
// or nil when every field passes.
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return err
	}

	first := validationErrors[0]
	message, ok := tagMessages[first.Tag()]
	if !ok {
		message = "Invalid " + strings.ToLower(first.Field())
	}

	return &FieldError{
		Field:   strings.ToLower(first.Field()),
		Message: message,
	}
}
