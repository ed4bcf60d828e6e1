package audit

import (
	"strings"

	dErrors "cdigit/pkg/domain-errors"
)

// Category names one of the four append-only logs.
type Category string

const (
	CategoryAuthentication   Category = "authentication"
	CategoryAuthorization    Category = "authorization"
	CategoryApproval         Category = "approval"
	CategorySignatureBinding Category = "signature_binding"
)

var allCategories = []Category{
	CategoryAuthentication,
	CategoryAuthorization,
	CategoryApproval,
	CategorySignatureBinding,
}

// Categories lists every category in a stable order.
func Categories() []Category {
	return append([]Category(nil), allCategories...)
}

func (c Category) String() string { return string(c) }

func (c Category) IsValid() bool {
	for _, known := range allCategories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory accepts the canonical names plus "signature-binding".
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !c.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown audit category %q", s)
	}
	return c, nil
}
