// Package authz decides whether an identity may perform an action on a
// resource. Evaluation is pure and deterministic: a static rule table keyed
// by role, evaluated top-down with first-match semantics, denying by default.
package authz

import "github.com/pronas-pcd/pronas-core/internal/identity"

// Resource identifies a kind of protected data.
type Resource string

const (
	ResourceIdentity    Resource = "identity"
	ResourceInstitution Resource = "institution"
	ResourceProject     Resource = "project"
	ResourceDocument    Resource = "document"
	ResourceReport      Resource = "report"
	ResourceAudit       Resource = "audit"
	ResourceSystem      Resource = "system"
)

// Action identifies an operation on a resource.
type Action string

const (
	ActionCreate   Action = "create"
	ActionRead     Action = "read"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionLogin    Action = "login"
	ActionLogout   Action = "logout"
	ActionDownload Action = "download"
	ActionUpload   Action = "upload"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionExport   Action = "export"
)

type rule struct {
	resource Resource
	actions  []Action
}

// Manager and Operator grants. Admin short-circuits to allow and Auditor to
// read-only before the table is consulted, so neither needs rows here.
var ruleTable = map[identity.Role][]rule{
	identity.RoleManager: {
		{ResourceInstitution, []Action{ActionRead, ActionUpdate}},
		{ResourceProject, []Action{ActionRead, ActionCreate, ActionUpdate}},
		{ResourceDocument, []Action{ActionRead, ActionCreate}},
	},
	identity.RoleOperator: {
		{ResourceProject, []Action{ActionRead, ActionCreate}},
		{ResourceDocument, []Action{ActionRead, ActionCreate}},
	},
}

// CanPerform reports whether the identity may perform action on resource.
// Unknown role/resource/action combinations are denied.
func CanPerform(ident *identity.Identity, resource Resource, action Action) bool {
	if ident == nil || !ident.Active {
		return false
	}
	switch ident.Role {
	case identity.RoleAdmin:
		return true
	case identity.RoleAuditor:
		// Export is a read in bulk; nothing else.
		return action == ActionRead || action == ActionExport
	}
	// Tenant-scoped roles without an institution cannot act at all.
	if ident.Role.TenantScoped() && ident.InstitutionID == nil {
		return false
	}
	for _, r := range ruleTable[ident.Role] {
		if r.resource != resource {
			continue
		}
		for _, a := range r.actions {
			if a == action {
				return true
			}
		}
		return false
	}
	return false
}

// CanAccessInstitution reports whether the identity may touch data belonging
// to the given institution. Auditors deliberately bypass tenant isolation;
// oversight requires visibility across every institution.
func CanAccessInstitution(ident *identity.Identity, institutionID int64) bool {
	if ident == nil || !ident.Active {
		return false
	}
	switch ident.Role {
	case identity.RoleAdmin, identity.RoleAuditor:
		return true
	case identity.RoleManager, identity.RoleOperator:
		return ident.InstitutionID != nil && *ident.InstitutionID == institutionID
	}
	return false
}
