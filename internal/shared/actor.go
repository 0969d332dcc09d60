package shared

// Role enumerates the roles supplied by the identity provider.
type Role string

const (
	RoleSuperAdmin     Role = "super_admin"
	RoleFacultyAdmin   Role = "faculty_admin"
	RoleUnitAdmin      Role = "unit_admin"
	RoleUnitStaff      Role = "unit_staff"
	RoleWarehouseStaff Role = "warehouse_staff"
)

// Actor is the authenticated principal threaded explicitly through every
// service operation. The location ids are zero when the role carries none.
type Actor struct {
	ID          int64
	Role        Role
	UnitID      int64
	FacultyID   int64
	WarehouseID int64
}

// Action enumerates the workflow entry points gated by capability resolution.
type Action string

const (
	ActionRequestCreate         Action = "request.create"
	ActionRequestApproveUnit    Action = "request.approve_unit"
	ActionRequestApproveFaculty Action = "request.approve_faculty"
	ActionRequestCancel         Action = "request.cancel"
	ActionRequestFulfill        Action = "request.fulfill"
	ActionProcurementCreate     Action = "procurement.create"
	ActionProcurementEdit       Action = "procurement.edit"
	ActionProcurementApprove    Action = "procurement.approve"
	ActionProcurementReceive    Action = "procurement.receive"
	ActionUsageReport           Action = "usage.report"
	ActionUsageDelete           Action = "usage.delete"
	ActionOpname                Action = "opname.reconcile"
	ActionCatalogManage         Action = "catalog.manage"
	ActionReportingView         Action = "reporting.view"
	ActionJobsTrigger           Action = "jobs.trigger"
)

// Scope names the target location of an operation. Zero fields are unchecked.
type Scope struct {
	UnitID      int64
	FacultyID   int64
	WarehouseID int64
}

// capabilities is the single allow table mapping actions to roles. Every
// workflow entry point resolves here instead of inlining role checks.
var capabilities = map[Action][]Role{
	ActionRequestCreate:         {RoleUnitStaff, RoleUnitAdmin},
	ActionRequestApproveUnit:    {RoleUnitAdmin},
	ActionRequestApproveFaculty: {RoleFacultyAdmin},
	ActionRequestCancel:         {RoleUnitStaff, RoleUnitAdmin},
	ActionRequestFulfill:        {RoleWarehouseStaff},
	ActionProcurementCreate:     {RoleWarehouseStaff, RoleSuperAdmin},
	ActionProcurementEdit:       {RoleWarehouseStaff, RoleSuperAdmin},
	ActionProcurementApprove:    {RoleFacultyAdmin, RoleSuperAdmin},
	ActionProcurementReceive:    {RoleWarehouseStaff, RoleSuperAdmin},
	ActionUsageReport:           {RoleUnitStaff},
	ActionUsageDelete:           {RoleUnitStaff, RoleUnitAdmin},
	ActionOpname:                {RoleWarehouseStaff, RoleSuperAdmin},
	ActionCatalogManage:         {RoleSuperAdmin, RoleWarehouseStaff},
	ActionReportingView:         {RoleSuperAdmin, RoleFacultyAdmin, RoleUnitAdmin, RoleWarehouseStaff},
	ActionJobsTrigger:           {RoleSuperAdmin},
}

// Authorize resolves (role, action, scope) to allow or an AuthorizationError.
// Super admins bypass location scoping; other roles must match the scope
// dimension their role is bound to.
func Authorize(actor Actor, action Action, scope Scope) error {
	allowed, ok := capabilities[action]
	if !ok {
		return E(KindAuthorization, "aksi %s tidak dikenal", action)
	}
	if actor.Role == RoleSuperAdmin {
		for _, role := range allowed {
			if role == RoleSuperAdmin {
				return nil
			}
		}
		// Super admin is not granted unit-level actions it is not listed for.
		return E(KindAuthorization, "peran %s tidak diizinkan untuk %s", actor.Role, action)
	}
	granted := false
	for _, role := range allowed {
		if role == actor.Role {
			granted = true
			break
		}
	}
	if !granted {
		return E(KindAuthorization, "peran %s tidak diizinkan untuk %s", actor.Role, action)
	}
	switch actor.Role {
	case RoleUnitStaff, RoleUnitAdmin:
		if scope.UnitID != 0 && scope.UnitID != actor.UnitID {
			return E(KindAuthorization, "unit tidak sesuai dengan penugasan aktor")
		}
	case RoleFacultyAdmin:
		if scope.FacultyID != 0 && scope.FacultyID != actor.FacultyID {
			return E(KindAuthorization, "fakultas tidak sesuai dengan penugasan aktor")
		}
	case RoleWarehouseStaff:
		if scope.WarehouseID != 0 && scope.WarehouseID != actor.WarehouseID {
			return E(KindAuthorization, "gudang tidak sesuai dengan penugasan aktor")
		}
	}
	return nil
}
