// Package validation provides custom validation rules for the application.
package validation

import (
	"net/netip"
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/apikeys/internal/errors"
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)

// PlaintextSegment validates a prefix or environment tag embedded in a plaintext token.
// It must not contain the segment delimiter, the lookup separator or whitespace.
var PlaintextSegment = validation.NewStringRuleWithError(
	func(s string) bool {
		return !strings.ContainsAny(s, "_| \t\r\n")
	},
	validation.NewError("validation_plaintext_segment", "must not contain '_', '|' or whitespace"),
)

// IPOrCIDR validates an exact IP address or a CIDR prefix.
var IPOrCIDR = validation.NewStringRuleWithError(
	func(s string) bool {
		if strings.Contains(s, "/") {
			_, err := netip.ParsePrefix(s)
			return err == nil
		}
		_, err := netip.ParseAddr(s)
		return err == nil
	},
	validation.NewError("validation_ip_or_cidr", "must be a valid IP address or CIDR prefix"),
)

// Host validates a bare host[:port] allow-list entry with no scheme or path.
var Host = validation.NewStringRuleWithError(
	func(s string) bool {
		return s != "" && !strings.Contains(s, "://") && !strings.ContainsAny(s, "/?# \t")
	},
	validation.NewError("validation_host", "must be a host[:port] without scheme or path"),
)
