// Package policy holds the static authorization model of the branch: the
// role→permission matrix, the monetary approval thresholds and the voucher
// status adjacency table. Everything here is loaded once at start-up and
// never mutated; all lookups are pure.
package policy

import (
	"strings"

	dErrors "cdigit/pkg/domain-errors"
)

// Policy bundles the permission matrix, the threshold tables and the roles
// entitled to approve above-threshold transactions.
type Policy struct {
	matrix     PermissionMatrix
	thresholds Thresholds
	approvers  RoleSet
}

// Config is the un-validated, load-time shape of a policy.
type Config struct {
	BaseCurrency  string
	ApproverRoles []Role
	Grants        map[Role][]Permission
	Base          map[TransactionType]map[Segment]float64
	Foreign       map[string]float64
}

// Default returns the built-in branch policy.
func Default() *Policy {
	p, err := New(DefaultConfig())
	if err != nil {
		panic("policy: built-in configuration is invalid: " + err.Error())
	}
	return p
}

// DefaultConfig returns the built-in configuration, suitable as a base for overrides.
func DefaultConfig() Config {
	t := defaultThresholds()
	return Config{
		BaseCurrency:  t.BaseCurrency,
		ApproverRoles: []Role{RoleManager, RoleAdmin},
		Grants:        defaultGrants(),
		Base:          t.Base,
		Foreign:       t.Foreign,
	}
}

// New validates cfg and builds an immutable Policy.
func New(cfg Config) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := make(map[TransactionType]map[Segment]float64, len(cfg.Base))
	for txType, bySegment := range cfg.Base {
		copied := make(map[Segment]float64, len(bySegment))
		for seg, limit := range bySegment {
			copied[seg] = limit
		}
		base[txType] = copied
	}
	foreign := make(map[string]float64, len(cfg.Foreign))
	for currency, limit := range cfg.Foreign {
		foreign[strings.ToUpper(currency)] = limit
	}

	return &Policy{
		matrix: NewPermissionMatrix(cfg.Grants),
		thresholds: Thresholds{
			BaseCurrency: strings.ToUpper(cfg.BaseCurrency),
			Base:         base,
			Foreign:      foreign,
		},
		approvers: append(RoleSet(nil), cfg.ApproverRoles...),
	}, nil
}

// Validate rejects unknown roles and permissions and non-positive limits.
func (c Config) Validate() error {
	if len(strings.TrimSpace(c.BaseCurrency)) != 3 {
		return dErrors.New(dErrors.CodeValidation, "base currency must be a 3-letter code")
	}
	if len(c.ApproverRoles) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one approver role is required")
	}
	for _, r := range c.ApproverRoles {
		if !r.IsValid() {
			return dErrors.Newf(dErrors.CodeValidation, "unknown approver role %q", r)
		}
	}
	for role, perms := range c.Grants {
		if !role.IsValid() {
			return dErrors.Newf(dErrors.CodeValidation, "unknown role %q in permission matrix", role)
		}
		for _, p := range perms {
			if !p.IsValid() {
				return dErrors.Newf(dErrors.CodeValidation, "unknown permission %q for role %s", p, role)
			}
		}
	}
	for txType, bySegment := range c.Base {
		if txType == "" {
			return dErrors.New(dErrors.CodeValidation, "threshold transaction type cannot be empty")
		}
		for seg, limit := range bySegment {
			if limit <= 0 {
				return dErrors.Newf(dErrors.CodeValidation, "threshold for %s/%s must be positive", txType, seg)
			}
		}
	}
	for currency, limit := range c.Foreign {
		if len(currency) != 3 {
			return dErrors.Newf(dErrors.CodeValidation, "invalid currency code %q", currency)
		}
		if limit <= 0 {
			return dErrors.Newf(dErrors.CodeValidation, "foreign threshold for %s must be positive", currency)
		}
	}
	return nil
}

// HasPermission is an exact-membership lookup; unknown roles return false.
func (p *Policy) HasPermission(role Role, perm Permission) bool {
	return p.matrix.Has(role, perm)
}

// HasAnyPermission reports whether role holds at least one of perms.
func (p *Policy) HasAnyPermission(role Role, perms ...Permission) bool {
	for _, perm := range perms {
		if p.matrix.Has(role, perm) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether role holds every one of perms. An empty
// list is trivially satisfied.
func (p *Policy) HasAllPermissions(role Role, perms ...Permission) bool {
	for _, perm := range perms {
		if !p.matrix.Has(role, perm) {
			return false
		}
	}
	return true
}

// PermissionsFor lists the permissions of role.
func (p *Policy) PermissionsFor(role Role) []Permission {
	return p.matrix.For(role)
}

// RequiresTransactionApproval evaluates the threshold tables. The
// foreign-currency limit is checked before the base limit and short-circuits.
func (p *Policy) RequiresTransactionApproval(check TransactionCheck) ApprovalDecision {
	return p.thresholds.Evaluate(check, p.ApproverRoles())
}

// ApproverRoles returns a copy of the roles entitled to approve.
func (p *Policy) ApproverRoles() RoleSet {
	return append(RoleSet(nil), p.approvers...)
}

// BaseCurrency returns the ledger currency.
func (p *Policy) BaseCurrency() string {
	return p.thresholds.BaseCurrency
}

// IsValidTransition delegates to the status adjacency table.
func (p *Policy) IsValidTransition(from, to VoucherStatus) bool {
	return IsValidTransition(from, to)
}
