package policy

import (
	"strings"

	dErrors "cdigit/pkg/domain-errors"
)

// Permission is a fine-grained capability tag.
type Permission string

const (
	PermVoucherCreate  Permission = "voucher.create"
	PermVoucherView    Permission = "voucher.view"
	PermVoucherVerify  Permission = "voucher.verify"
	PermVoucherApprove Permission = "voucher.approve"
	PermVoucherReject  Permission = "voucher.reject"

	PermDepositCreate     Permission = "transaction.deposit.create"
	PermWithdrawalCreate  Permission = "transaction.withdrawal.create"
	PermWithdrawalApprove Permission = "transaction.withdrawal.approve"
	PermTransferCreate    Permission = "transaction.transfer.create"
	PermTransferApprove   Permission = "transaction.transfer.approve"
	PermRTGSApprove       Permission = "transaction.rtgs.approve"
	PermFXApprove         Permission = "transaction.fx.approve"

	PermSignatureBind   Permission = "signature.bind"
	PermSignatureVerify Permission = "signature.verify"

	PermWorkflowView       Permission = "workflow.view"
	PermWorkflowStatistics Permission = "workflow.statistics"

	PermAuditView   Permission = "audit.view"
	PermAuditExport Permission = "audit.export"

	PermSystemAdmin Permission = "system.admin"
)

var allPermissions = []Permission{
	PermVoucherCreate, PermVoucherView, PermVoucherVerify, PermVoucherApprove, PermVoucherReject,
	PermDepositCreate, PermWithdrawalCreate, PermWithdrawalApprove,
	PermTransferCreate, PermTransferApprove, PermRTGSApprove, PermFXApprove,
	PermSignatureBind, PermSignatureVerify,
	PermWorkflowView, PermWorkflowStatistics,
	PermAuditView, PermAuditExport,
	PermSystemAdmin,
}

// Permissions returns every known permission.
func Permissions() []Permission {
	return append([]Permission(nil), allPermissions...)
}

func (p Permission) String() string { return string(p) }

func (p Permission) IsValid() bool {
	for _, known := range allPermissions {
		if p == known {
			return true
		}
	}
	return false
}

// ParsePermission resolves a permission tag. Tags are lower-case dotted names.
func ParsePermission(s string) (Permission, error) {
	p := Permission(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown permission %q", s)
	}
	return p, nil
}
