// Package audit produces the regulation-grade trail of security-relevant
// operations. Records are append-only: nothing in this package, its SQL, or
// its HTTP surface can update or delete a record once written.
package audit

import "time"

// Action names the audited operation. Kept as this package's own constants
// so the trail's vocabulary is stable even if the permission layer evolves.
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

// Resource names the kind of data acted on.
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

// Sensitivity classifies the data touched by an audited operation.
type Sensitivity string

const (
	SensitivityPublic       Sensitivity = "public"
	SensitivityInternal     Sensitivity = "internal"
	SensitivityConfidential Sensitivity = "confidential"
	SensitivityRestricted   Sensitivity = "restricted"
)

// ClassifyResource derives the sensitivity tag from the resource kind. The
// tag is a static lookup, never caller-supplied, so a handler cannot
// under-classify the data it touched.
func ClassifyResource(resource Resource) Sensitivity {
	switch resource {
	case ResourceIdentity, ResourceDocument:
		return SensitivityConfidential
	case ResourceInstitution, ResourceProject, ResourceReport:
		return SensitivityInternal
	case ResourceAudit:
		return SensitivityRestricted
	default:
		return SensitivityInternal
	}
}

// IsMutation reports whether the action changes state. A failed append for a
// mutation is fatal-class; for a read it degrades to a warning.
func IsMutation(action Action) bool {
	switch action {
	case ActionRead, ActionDownload, ActionExport, ActionLogin, ActionLogout:
		return false
	}
	return true
}

// Record is one immutable row of the audit trail. Actor email and role are
// denormalized at write time: the actor's role may change later, and the
// record must reflect the role at the time of the action.
type Record struct {
	ID          string
	Action      Action
	Resource    Resource
	ResourceID  *int64
	ActorID     int64
	ActorEmail  string
	ActorRole   string
	IP          string
	UserAgent   string
	SessionID   string
	Description string
	Previous    map[string]any
	New         map[string]any
	Success     bool
	ErrorMsg    string
	Sensitivity Sensitivity
	CreatedAt   time.Time
}
