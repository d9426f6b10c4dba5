package auth

import (
	"context"
	"slices"
)

const (
	RolePayrollAdmin = "payroll_admin"
	RolePayrollClerk = "payroll_clerk"
	RoleAuditor      = "auditor"
)

const (
	PermPayrollRead      = "payroll.read"
	PermPayrollWrite     = "payroll.write"
	PermPayrollPost      = "payroll.post"
	PermPayrollVoid      = "payroll.void"
	PermPayrollExport    = "payroll.export"
	PermPayrollSeed      = "payroll.seed"
	PermAuditRead        = "audit.read"
	PermNotificationsUse = "notifications.use"
)

var DefaultPermissions = []string{
	PermPayrollRead,
	PermPayrollWrite,
	PermPayrollPost,
	PermPayrollVoid,
	PermPayrollExport,
	PermPayrollSeed,
	PermAuditRead,
	PermNotificationsUse,
}

var RolePermissions = map[string][]string{
	RolePayrollAdmin: DefaultPermissions,
	RolePayrollClerk: {
		PermPayrollRead,
		PermPayrollWrite,
		PermPayrollSeed,
		PermNotificationsUse,
	},
	RoleAuditor: {
		PermPayrollRead,
		PermAuditRead,
		PermNotificationsUse,
	},
}

// StaticPermissions answers permission checks from RolePermissions. Roles arrive in the identity token.
type StaticPermissions struct{}

func (StaticPermissions) HasPermission(_ context.Context, role, permission string) (bool, error) {
	perms, ok := RolePermissions[role]
	if !ok {
		return false, nil
	}
	return slices.Contains(perms, permission), nil
}

func ValidRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}
