package policy

import "sort"

// PermissionMatrix maps each role to the exact set of permissions it holds.
// No role inherits another role's permissions.
type PermissionMatrix struct {
	grants map[Role]map[Permission]struct{}
}

// NewPermissionMatrix copies grants into an immutable matrix. Unknown roles or
// permissions are rejected by the caller (see Validate).
func NewPermissionMatrix(grants map[Role][]Permission) PermissionMatrix {
	m := PermissionMatrix{grants: make(map[Role]map[Permission]struct{}, len(grants))}
	for role, perms := range grants {
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		m.grants[role] = set
	}
	return m
}

// Has reports exact membership. An unknown role holds nothing.
func (m PermissionMatrix) Has(role Role, perm Permission) bool {
	_, ok := m.grants[role][perm]
	return ok
}

// For returns the sorted permissions held by role.
func (m PermissionMatrix) For(role Role) []Permission {
	out := make([]Permission, 0, len(m.grants[role]))
	for p := range m.grants[role] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func defaultGrants() map[Role][]Permission {
	return map[Role][]Permission{
		RoleCustomer: {
			PermVoucherCreate, PermVoucherView,
			PermDepositCreate, PermWithdrawalCreate, PermTransferCreate,
			PermSignatureBind,
		},
		RoleMaker: {
			PermVoucherCreate, PermVoucherView, PermVoucherVerify,
			PermDepositCreate, PermWithdrawalCreate, PermTransferCreate,
			PermSignatureBind, PermSignatureVerify,
			PermWorkflowView,
		},
		RoleManager: {
			PermVoucherView, PermVoucherVerify, PermVoucherApprove, PermVoucherReject,
			PermWithdrawalApprove, PermTransferApprove, PermRTGSApprove, PermFXApprove,
			PermSignatureBind, PermSignatureVerify,
			PermWorkflowView, PermWorkflowStatistics,
			PermAuditView,
		},
		RoleAdmin: Permissions(),
	}
}
