package auth

import "context"

const (
	RolePayrollClerk    = "payroll_clerk"
	RolePayrollApprover = "payroll_approver"
	RoleAuditor         = "auditor"
	RoleSystemAdmin     = "system_admin"
)

const (
	PermPayrollRead     = "payroll.read"
	PermPayrollWrite    = "payroll.write"
	PermSalaryAuthorize = "salary.authorize"
	PermEmployeesPurge  = "employees.purge"
	PermAuditRead       = "audit.read"
	PermMaintenanceRun  = "maintenance.run"
)

var DefaultPermissions = []string{
	PermPayrollRead,
	PermPayrollWrite,
	PermSalaryAuthorize,
	PermEmployeesPurge,
	PermAuditRead,
	PermMaintenanceRun,
}

// RolePermissions is the static grant table. Requesting a salary edit needs
// payroll.write; confirming one needs salary.authorize.
var RolePermissions = map[string][]string{
	RolePayrollClerk: {
		PermPayrollRead,
		PermPayrollWrite,
	},
	RolePayrollApprover: {
		PermPayrollRead,
		PermPayrollWrite,
		PermSalaryAuthorize,
	},
	RoleAuditor: {
		PermPayrollRead,
		PermAuditRead,
	},
	RoleSystemAdmin: {
		PermPayrollRead,
		PermPayrollWrite,
		PermSalaryAuthorize,
		PermEmployeesPurge,
		PermAuditRead,
		PermMaintenanceRun,
	},
}

// StaticPermissions answers permission checks from RolePermissions.
type StaticPermissions struct{}

func (StaticPermissions) HasPermission(_ context.Context, role, permission string) (bool, error) {
	for _, granted := range RolePermissions[role] {
		if granted == permission {
			return true, nil
		}
	}
	return false, nil
}
