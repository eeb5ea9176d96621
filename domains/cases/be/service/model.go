package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mediamatex/lexarbitra-vue/platform/go/casedb"
)

// Case lifecycle statuses as stored on the landlord reference and mirrored
// into tenant rows.
const (
	StatusDraft    = "draft"
	StatusActive   = "active"
	StatusClosed   = "closed"
	StatusArchived = "archived"
)

// initiatedAtLayout is the wire and tenant-storage format for case initiation
// dates.
const initiatedAtLayout = "2006-01-02"

// placeholderValue fills the database columns of a reference row between its
// creation and the completion of provisioning. A row still carrying it never
// provisioned successfully.
const placeholderValue = "pending"

// CaseReference is the landlord registry entry for one case: display fields
// plus the addressing of the physical tenant database that holds the case
// data. DatabasePassword is stored encrypted; for file-backed databases it is
// empty and DatabaseHost carries the file path.
type CaseReference struct {
	ID               uuid.UUID
	CaseNumber       string
	Title            string
	Status           string
	InitiatedAt      time.Time
	CreatedBy        *uuid.UUID
	TenantCaseID     *uuid.UUID
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string
	DatabaseHost     string
	BackendKind      casedb.BackendKind
	ConnectionName   string
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// caseRef projects the reference down to the addressing fields the
// switchboard needs.
func (r CaseReference) caseRef() *casedb.CaseRef {
	return &casedb.CaseRef{
		ID:               r.ID,
		ConnectionName:   r.ConnectionName,
		DatabaseName:     r.DatabaseName,
		DatabaseUser:     r.DatabaseUser,
		DatabasePassword: r.DatabasePassword,
		DatabaseHost:     r.DatabaseHost,
		BackendKind:      r.BackendKind,
		IsActive:         r.IsActive,
	}
}

// tenantCase builds the tenant row mirroring this reference under the given
// tenant-side id.
func (r CaseReference) tenantCase(tenantID string) casedb.TenantCase {
	var createdBy *string
	if r.CreatedBy != nil {
		s := r.CreatedBy.String()
		createdBy = &s
	}
	return casedb.TenantCase{
		ID:          tenantID,
		CaseNumber:  r.CaseNumber,
		Title:       r.Title,
		Status:      r.Status,
		InitiatedAt: r.InitiatedAt.Format(initiatedAtLayout),
		CreatedBy:   createdBy,
	}
}

// tenantMutation builds the mirror update for this reference's tenant row.
func (r CaseReference) tenantMutation() casedb.TenantCaseMutation {
	return casedb.TenantCaseMutation{
		CaseNumber: r.CaseNumber,
		Title:      r.Title,
		Status:     r.Status,
	}
}

// Repository persists case references in the landlord database.
type Repository interface {
	Create(ctx context.Context, ref CaseReference) (CaseReference, error)
	Update(ctx context.Context, ref CaseReference) (CaseReference, error)
	// Find returns a reference regardless of activation state, or ErrCaseNotFound.
	Find(ctx context.Context, id uuid.UUID) (CaseReference, error)
	// FindActive returns the active reference for the id, or nil when the row
	// is missing or inactive. Both absences look the same to callers.
	FindActive(ctx context.Context, id uuid.UUID) (*CaseReference, error)
	List(ctx context.Context, limit, offset int) ([]CaseReference, int, error)
	// ListSynced returns every reference whose tenant_case_id is set.
	ListSynced(ctx context.Context) ([]CaseReference, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
