package validator

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"
)

// Required validates that a string is not empty after trimming whitespace.
func Required(field, value string) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) != "" },
		Error: ValidationError{Field: field, Message: "field is required"},
	}
}

func MaxLen(field, value string, max int) Rule {
	return Rule{
		Check: func() bool { return len([]rune(value)) <= max },
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters long", max)},
	}
}

// Email validates an RFC 5322 address that also carries a dotted domain.
func Email(field, value string) Rule {
	return Rule{
		Check: func() bool {
			addr, err := mail.ParseAddress(strings.TrimSpace(value))
			if err != nil || addr.Name != "" {
				return false
			}
			local, domain, ok := strings.Cut(addr.Address, "@")
			if !ok || local == "" {
				return false
			}
			for part := range strings.SplitSeq(domain, ".") {
				if part == "" {
					return false
				}
			}
			return strings.Contains(domain, ".")
		},
		Error: ValidationError{Field: field, Message: "must be a valid email address"},
	}
}

// PasswordPolicy describes the accepted password shape.
type PasswordPolicy struct {
	MinLength        int
	MaxLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigits    bool
	RequireSpecial   bool
}

// DefaultPasswordPolicy accepts 8-128 characters mixing cases and digits.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        8,
		MaxLength:        128,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireDigits:    true,
	}
}

func Password(field, value string, policy PasswordPolicy) Rule {
	return Rule{
		Check: func() bool {
			n := len([]rune(value))
			if n < policy.MinLength || (policy.MaxLength > 0 && n > policy.MaxLength) {
				return false
			}
			var upper, lower, digit, special bool
			for _, r := range value {
				switch {
				case unicode.IsUpper(r):
					upper = true
				case unicode.IsLower(r):
					lower = true
				case unicode.IsDigit(r):
					digit = true
				case unicode.IsPunct(r), unicode.IsSymbol(r):
					special = true
				}
			}
			return (upper || !policy.RequireUppercase) &&
				(lower || !policy.RequireLowercase) &&
				(digit || !policy.RequireDigits) &&
				(special || !policy.RequireSpecial)
		},
		Error: ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be %d-%d characters with required character types", policy.MinLength, policy.MaxLength),
		},
	}
}
