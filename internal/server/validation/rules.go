// Package validation checks user-supplied form fields. Each field has an
// ordered list of rules; every failing rule contributes its message, so a
// client sees all problems with a field at once.
package validation

import (
	"errors"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Errors maps a field name to its failure messages, in rule order.
type Errors map[string][]string

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f + " " + strings.Join(e[f], ", "))
	}
	return b.String()
}

// Rule is one named check on a string field.
type Rule struct {
	Name string
	rule validation.Rule
}

func stringRule(name, message string, ok func(string) bool) Rule {
	return Rule{Name: name, rule: validation.By(func(v any) error {
		s, _ := v.(string)
		if !ok(s) {
			return errors.New(message)
		}
		return nil
	})}
}

var (
	NameRules = []Rule{
		{Name: "required", rule: validation.Required.Error("cannot be empty")},
		{Name: "max_length", rule: validation.RuneLength(0, 50).Error("cannot be longer than 50 characters")},
	}

	EmailRules = []Rule{
		{Name: "format", rule: validation.Required.Error("is not a valid email")},
		{Name: "format", rule: is.EmailFormat.Error("is not a valid email")},
		{Name: "max_length", rule: validation.RuneLength(0, 50).Error("cannot be longer than 50 characters")},
	}

	PasswordRules = []Rule{
		stringRule("at_least_8", "must contain at least 8 characters", func(s string) bool {
			return utf8.RuneCountInString(s) >= 8
		}),
		stringRule("at_most_32", "must contain at most 32 characters", func(s string) bool {
			return utf8.RuneCountInString(s) <= 32
		}),
		stringRule("ascii", "must contain only latin letters, digits and special characters", func(s string) bool {
			for i := 0; i < len(s); i++ {
				if s[i] > unicode.MaxASCII {
					return false
				}
			}
			return true
		}),
		stringRule("lowercase", "must contain at least one lowercase letter", containsAny(unicode.IsLower)),
		stringRule("uppercase", "must contain at least one uppercase letter", containsAny(unicode.IsUpper)),
		stringRule("digit", "must contain at least one digit", containsAny(unicode.IsDigit)),
	}
)

func containsAny(pred func(rune) bool) func(string) bool {
	return func(s string) bool {
		return strings.IndexFunc(s, pred) >= 0
	}
}

// Check runs rules against value and returns the messages of the failing
// ones. Duplicate messages are reported once.
func Check(value string, rules []Rule) []string {
	var msgs []string
	for _, r := range rules {
		err := validation.Validate(value, r.rule)
		if err == nil {
			continue
		}
		msg := err.Error()
		if len(msgs) > 0 && msgs[len(msgs)-1] == msg {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// Builder accumulates per-field results.
type Builder struct {
	errs Errors
}

// Field checks value against rules and records failures under name.
func (b *Builder) Field(name, value string, rules []Rule) *Builder {
	if msgs := Check(value, rules); len(msgs) > 0 {
		if b.errs == nil {
			b.errs = Errors{}
		}
		b.errs[name] = append(b.errs[name], msgs...)
	}
	return b
}

// Err returns the collected Errors, or nil when every field passed.
func (b *Builder) Err() error {
	if len(b.errs) == 0 {
		return nil
	}
	return b.errs
}

// Signup validates the registration form.
func Signup(name, email, password string) error {
	return (&Builder{}).
		Field("name", name, NameRules).
		Field("email", email, EmailRules).
		Field("password", password, PasswordRules).
		Err()
}

// ChangePassword validates the new password; the current one is checked
// against the stored hash instead.
func ChangePassword(newPassword string) error {
	return (&Builder{}).
		Field("new_password", newPassword, PasswordRules).
		Err()
}
