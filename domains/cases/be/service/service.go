// Package service orchestrates the case lifecycle: every case gets its own
// physical tenant database, provisioned on create, migrated, linked back to
// the landlord registry row and torn down on delete. The landlord row is the
// source of truth; tenant databases are reachable only through it.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mediamatex/lexarbitra-vue/platform/go/casedb"
	"github.com/mediamatex/lexarbitra-vue/platform/go/secrets"
)

// Deps wires the service. Repo, Provisioner, Switchboard, Migrator and
// TenantCases are required; Cipher is optional and disables credential
// encryption at rest when nil.
type Deps struct {
	Repo        Repository
	Provisioner DatabaseProvisioner
	Switchboard *casedb.Switchboard
	Migrator    SchemaMigrator
	TenantCases TenantCases
	Cipher      *secrets.Cipher
	Logger      *zap.Logger
}

// Service implements the case lifecycle operations.
type Service struct {
	repo        Repository
	provisioner DatabaseProvisioner
	switchboard *casedb.Switchboard
	migrator    SchemaMigrator
	tenantCases TenantCases
	cipher      *secrets.Cipher
	validate    *validator.Validate
	logger      *zap.Logger
}

// New constructs the service.
func New(deps Deps) (*Service, error) {
	if deps.Repo == nil || deps.Provisioner == nil || deps.Switchboard == nil ||
		deps.Migrator == nil || deps.TenantCases == nil {
		return nil, fmt.Errorf("case service: missing required dependency")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Service{
		repo:        deps.Repo,
		provisioner: deps.Provisioner,
		switchboard: deps.Switchboard,
		migrator:    deps.Migrator,
		tenantCases: deps.TenantCases,
		cipher:      deps.Cipher,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      deps.Logger,
	}, nil
}

// CreateInput is the payload for creating a case.
type CreateInput struct {
	CaseNumber  string     `json:"case_number" validate:"required,max=100"`
	Title       string     `json:"title" validate:"required,max=255"`
	Status      string     `json:"status" validate:"omitempty,oneof=draft active closed archived"`
	InitiatedAt string     `json:"initiated_at" validate:"required,datetime=2006-01-02"`
	CreatedBy   *uuid.UUID `json:"created_by"`
}

// CreateResult is the outcome of CreateCase. DatabasePending is set when the
// physical database was provisioned but could not be migrated or linked; the
// reference stays active so the setup can be completed later.
type CreateResult struct {
	Reference       CaseReference
	DatabasePending bool
}

// CreateCase runs the full creation workflow: registry placeholder, physical
// database provisioning, credential storage, activation, schema migration and
// the initial tenant row. A provisioning failure rolls the placeholder back; a
// failure after provisioning leaves the case in a recoverable degraded state
// instead of destroying a database that may already hold data.
func (s *Service) CreateCase(ctx context.Context, in CreateInput) (CreateResult, error) {
	if err := s.validate.Struct(in); err != nil {
		return CreateResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	initiatedAt, err := time.Parse(initiatedAtLayout, in.InitiatedAt)
	if err != nil {
		return CreateResult{}, fmt.Errorf("%w: initiated_at: %v", ErrInvalidInput, err)
	}
	status := in.Status
	if status == "" {
		status = StatusDraft
	}

	id := uuid.New()
	ref := CaseReference{
		ID:             id,
		CaseNumber:     in.CaseNumber,
		Title:          in.Title,
		Status:         status,
		InitiatedAt:    initiatedAt,
		CreatedBy:      in.CreatedBy,
		DatabaseName:   placeholderValue,
		DatabaseUser:   placeholderValue,
		DatabaseHost:   placeholderValue,
		BackendKind:    s.provisioner.Kind(),
		ConnectionName: casedb.ConnectionName(id),
		IsActive:       false,
	}

	ref, err = s.repo.Create(ctx, ref)
	if err != nil {
		return CreateResult{}, fmt.Errorf("create case reference: %w", err)
	}

	comment := "LexArbitra case database for " + in.CaseNumber
	db, err := s.provisioner.CreateDatabase(ctx, id.String(), comment)
	if err != nil {
		s.rollbackPlaceholder(ctx, id)
		return CreateResult{}, &ProvisioningError{Stage: "provision", Err: err}
	}

	password := db.Password
	if password != "" && s.cipher != nil {
		password, err = s.cipher.Encrypt(password)
		if err != nil {
			s.provisioner.DeleteDatabase(ctx, db.Name)
			s.rollbackPlaceholder(ctx, id)
			return CreateResult{}, &ProvisioningError{Stage: "encrypt credentials", Err: err}
		}
	}

	ref.DatabaseName = db.Name
	ref.DatabaseUser = db.User
	ref.DatabasePassword = password
	ref.DatabaseHost = db.Host
	ref.IsActive = true

	ref, err = s.repo.Update(ctx, ref)
	if err != nil {
		s.provisioner.DeleteDatabase(ctx, db.Name)
		s.rollbackPlaceholder(ctx, id)
		return CreateResult{}, &ProvisioningError{Stage: "store credentials", Err: err}
	}

	handle, err := s.switchboard.Activate(ctx, ref.caseRef())
	if err != nil || handle == nil {
		return s.degraded(ref, "activate tenant connection", err), nil
	}
	defer handle.Release()

	if _, err := s.migrator.Run(ctx, handle); err != nil {
		return s.degraded(ref, "migrate tenant schema", err), nil
	}

	tenantID := uuid.New()
	if err := s.tenantCases.Insert(ctx, handle, ref.tenantCase(tenantID.String())); err != nil {
		return s.degraded(ref, "insert tenant case row", err), nil
	}

	ref.TenantCaseID = &tenantID
	linked, err := s.repo.Update(ctx, ref)
	if err != nil {
		// Tenant row exists but the back-link was lost; sync validation finds
		// and repairs this. Report the reference as stored, without the link.
		ref.TenantCaseID = nil
		return s.degraded(ref, "link tenant case id", err), nil
	}
	ref = linked

	s.logger.Info("case created",
		zap.String("case_id", id.String()),
		zap.String("case_number", ref.CaseNumber),
		zap.String("database", ref.DatabaseName),
		zap.String("backend", string(ref.BackendKind)),
	)
	return CreateResult{Reference: ref}, nil
}

func (s *Service) rollbackPlaceholder(ctx context.Context, id uuid.UUID) {
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error("failed to roll back placeholder reference",
			zap.String("case_id", id.String()), zap.Error(err))
	}
}

func (s *Service) degraded(ref CaseReference, stage string, err error) CreateResult {
	s.logger.Warn("case created in degraded state",
		zap.String("case_id", ref.ID.String()),
		zap.String("stage", stage),
		zap.Error(err),
	)
	return CreateResult{Reference: ref, DatabasePending: true}
}

// DisplayAvailability describes whether the tenant side of a case could be
// read for display.
type DisplayAvailability string

const (
	// AvailabilityOK means the tenant row was read successfully.
	AvailabilityOK DisplayAvailability = "ok"
	// AvailabilityPending means the case has no linked tenant row yet.
	AvailabilityPending DisplayAvailability = "database_pending"
	// AvailabilityUnreachable means the tenant database could not be reached
	// or its row is missing.
	AvailabilityUnreachable DisplayAvailability = "database_unreachable"
)

// CaseView is the merged landlord/tenant view of one case.
type CaseView struct {
	Reference    CaseReference
	Tenant       *casedb.TenantCase
	Availability DisplayAvailability
}

// GetCase returns the landlord reference regardless of activation state.
func (s *Service) GetCase(ctx context.Context, id uuid.UUID) (CaseReference, error) {
	return s.repo.Find(ctx, id)
}

// GetCaseForDisplay merges the landlord reference with its tenant row. A case
// whose tenant database is unreachable is still displayable from the landlord
// fields; only a missing or inactive reference is a not-found.
func (s *Service) GetCaseForDisplay(ctx context.Context, id uuid.UUID) (CaseView, error) {
	ref, err := s.repo.FindActive(ctx, id)
	if err != nil {
		return CaseView{}, err
	}
	if ref == nil {
		return CaseView{}, ErrCaseNotFound
	}

	view := CaseView{Reference: *ref, Availability: AvailabilityPending}
	if ref.TenantCaseID == nil {
		return view, nil
	}

	handle, err := s.switchboard.Activate(ctx, ref.caseRef())
	if err != nil || handle == nil {
		s.logger.Warn("tenant database unreachable for display",
			zap.String("case_id", id.String()), zap.Error(err))
		view.Availability = AvailabilityUnreachable
		return view, nil
	}
	defer handle.Release()

	tc, err := s.tenantCases.FindByID(ctx, handle, ref.TenantCaseID.String())
	if err != nil {
		s.logger.Warn("tenant case row unreadable",
			zap.String("case_id", id.String()), zap.Error(err))
		view.Availability = AvailabilityUnreachable
		return view, nil
	}

	view.Tenant = &tc
	view.Availability = AvailabilityOK
	return view, nil
}

// ListCases pages through case references, newest first.
func (s *Service) ListCases(ctx context.Context, limit, offset int) ([]CaseReference, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

// UpdateInput carries the mutable case fields; nil means unchanged.
type UpdateInput struct {
	CaseNumber *string `json:"case_number" validate:"omitempty,max=100"`
	Title      *string `json:"title" validate:"omitempty,max=255"`
	Status     *string `json:"status" validate:"omitempty,oneof=draft active closed archived"`
}

// UpdateResult reports an update. TenantMirrored is false when the tenant row
// could not be brought in line; the landlord row is authoritative either way.
type UpdateResult struct {
	Reference      CaseReference
	TenantMirrored bool
}

// UpdateCase writes the landlord reference and mirrors the display fields into
// the tenant row on a best-effort basis.
func (s *Service) UpdateCase(ctx context.Context, id uuid.UUID, in UpdateInput) (UpdateResult, error) {
	if err := s.validate.Struct(in); err != nil {
		return UpdateResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	ref, err := s.repo.Find(ctx, id)
	if err != nil {
		return UpdateResult{}, err
	}
	if in.CaseNumber != nil {
		ref.CaseNumber = *in.CaseNumber
	}
	if in.Title != nil {
		ref.Title = *in.Title
	}
	if in.Status != nil {
		ref.Status = *in.Status
	}

	ref, err = s.repo.Update(ctx, ref)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("update case reference: %w", err)
	}

	result := UpdateResult{Reference: ref}
	if !ref.IsActive || ref.TenantCaseID == nil {
		return result, nil
	}

	handle, err := s.switchboard.Activate(ctx, ref.caseRef())
	if err != nil || handle == nil {
		s.logger.Warn("tenant mirror skipped, database unreachable",
			zap.String("case_id", id.String()), zap.Error(err))
		return result, nil
	}
	defer handle.Release()

	affected, err := s.tenantCases.Update(ctx, handle, ref.TenantCaseID.String(), ref.tenantMutation())
	if err != nil || affected == 0 {
		s.logger.Warn("tenant mirror failed",
			zap.String("case_id", id.String()),
			zap.Int64("rows", affected),
			zap.Error(err),
		)
		return result, nil
	}

	result.TenantMirrored = true
	return result, nil
}

// DeleteReport describes a completed deletion. DatabaseDeleted is false when
// the physical database could not be removed; the registry row is gone either
// way so the case no longer resolves.
type DeleteReport struct {
	CaseID          uuid.UUID
	DatabaseName    string
	DatabaseDeleted bool
}

// DeleteCase tears a case down: connection first, then the physical database,
// and the registry row last so a half-deleted case stays findable. Deleting a
// physical database that is already gone counts as success.
func (s *Service) DeleteCase(ctx context.Context, id uuid.UUID) (DeleteReport, error) {
	ref, err := s.repo.Find(ctx, id)
	if err != nil {
		return DeleteReport{}, err
	}

	s.switchboard.Deactivate(ref.ConnectionName)

	report := DeleteReport{CaseID: id, DatabaseName: ref.DatabaseName, DatabaseDeleted: true}
	if ref.DatabaseName != placeholderValue {
		target := ref.DatabaseName
		if ref.BackendKind == casedb.BackendLocal || strings.HasSuffix(ref.DatabaseHost, ".sqlite") {
			target = ref.DatabaseHost
		}
		report.DatabaseDeleted = s.provisioner.DeleteDatabase(ctx, target)
		if !report.DatabaseDeleted {
			s.logger.Error("physical case database could not be deleted",
				zap.String("case_id", id.String()),
				zap.String("database", ref.DatabaseName),
			)
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return report, fmt.Errorf("delete case reference: %w", err)
	}

	s.logger.Info("case deleted",
		zap.String("case_id", id.String()),
		zap.Bool("database_deleted", report.DatabaseDeleted),
	)
	return report, nil
}

// TestReport is the connectivity diagnosis for one case database.
type TestReport struct {
	CaseID         uuid.UUID
	ConnectionName string
	DatabaseName   string
	BackendKind    casedb.BackendKind
	Reachable      bool
	Tables         []string
	TenantCases    int
	Error          string
}

// TestCaseDatabase opens the case's tenant database and inspects it. An
// unreachable database is a normal report, not an error.
func (s *Service) TestCaseDatabase(ctx context.Context, id uuid.UUID) (TestReport, error) {
	ref, err := s.repo.FindActive(ctx, id)
	if err != nil {
		return TestReport{}, err
	}
	if ref == nil {
		return TestReport{}, ErrCaseNotFound
	}

	report := TestReport{
		CaseID:         id,
		ConnectionName: ref.ConnectionName,
		DatabaseName:   ref.DatabaseName,
		BackendKind:    ref.BackendKind,
	}

	handle, err := s.switchboard.Activate(ctx, ref.caseRef())
	if err != nil || handle == nil {
		if err != nil {
			report.Error = err.Error()
		} else {
			report.Error = "connection could not be activated"
		}
		return report, nil
	}
	defer handle.Release()

	report.Reachable = true
	if tables, err := casedb.ListTables(ctx, handle); err == nil {
		report.Tables = tables
	}
	if count, err := s.tenantCases.Count(ctx, handle); err == nil {
		report.TenantCases = count
	}
	return report, nil
}

// SyncIssue is one landlord/tenant inconsistency found by ValidateSync.
type SyncIssue struct {
	CaseID         uuid.UUID
	ConnectionName string
	Problem        string
	Detail         string
	Fixed          bool
}

const (
	problemUnreachable   = "unreachable"
	problemMissingTenant = "missing_tenant_row"
	problemFieldMismatch = "field_mismatch"
)

// ValidateSync checks every linked case for landlord/tenant drift: unreachable
// databases, tenant rows that vanished, and display fields that no longer
// match. With fix set, missing rows are recreated from the landlord fields and
// mismatched rows are overwritten; the landlord side always wins.
func (s *Service) ValidateSync(ctx context.Context, fix bool) ([]SyncIssue, error) {
	refs, err := s.repo.ListSynced(ctx)
	if err != nil {
		return nil, err
	}

	var issues []SyncIssue
	for _, ref := range refs {
		issue := s.validateOne(ctx, ref, fix)
		if issue != nil {
			issues = append(issues, *issue)
		}
	}
	return issues, nil
}

func (s *Service) validateOne(ctx context.Context, ref CaseReference, fix bool) *SyncIssue {
	issue := &SyncIssue{CaseID: ref.ID, ConnectionName: ref.ConnectionName}

	handle, err := s.switchboard.Activate(ctx, ref.caseRef())
	if err != nil || handle == nil {
		issue.Problem = problemUnreachable
		if err != nil {
			issue.Detail = err.Error()
		} else {
			issue.Detail = "reference inactive or connection not activatable"
		}
		return issue
	}
	defer handle.Release()

	tc, err := s.tenantCases.FindByID(ctx, handle, ref.TenantCaseID.String())
	if err != nil {
		issue.Problem = problemMissingTenant
		issue.Detail = err.Error()
		if fix {
			if insErr := s.tenantCases.Insert(ctx, handle, ref.tenantCase(ref.TenantCaseID.String())); insErr == nil {
				issue.Fixed = true
			} else {
				issue.Detail = insErr.Error()
			}
		}
		return issue
	}

	var drift []string
	if tc.CaseNumber != ref.CaseNumber {
		drift = append(drift, "case_number")
	}
	if tc.Title != ref.Title {
		drift = append(drift, "title")
	}
	if tc.Status != ref.Status {
		drift = append(drift, "status")
	}
	if len(drift) == 0 {
		return nil
	}

	issue.Problem = problemFieldMismatch
	issue.Detail = strings.Join(drift, ", ")
	if fix {
		if _, updErr := s.tenantCases.Update(ctx, handle, tc.ID, ref.tenantMutation()); updErr == nil {
			issue.Fixed = true
		}
	}
	return issue
}

// RefreshCredentials recreates the physical database for a case whose
// credentials or database have been lost: the old database is dropped, a new
// one provisioned and migrated, and the tenant row rebuilt from the landlord
// fields. This is a recovery tool; tenant data beyond the mirrored case row is
// not preserved.
func (s *Service) RefreshCredentials(ctx context.Context, id uuid.UUID) (CreateResult, error) {
	ref, err := s.repo.Find(ctx, id)
	if err != nil {
		return CreateResult{}, err
	}

	s.switchboard.Deactivate(ref.ConnectionName)

	if ref.DatabaseName != placeholderValue {
		target := ref.DatabaseName
		if ref.BackendKind == casedb.BackendLocal || strings.HasSuffix(ref.DatabaseHost, ".sqlite") {
			target = ref.DatabaseHost
		}
		if !s.provisioner.DeleteDatabase(ctx, target) {
			s.logger.Warn("stale case database not deleted before refresh",
				zap.String("case_id", id.String()),
				zap.String("database", ref.DatabaseName),
			)
		}
	}

	comment := "LexArbitra case database for " + ref.CaseNumber + " (refreshed)"
	db, err := s.provisioner.CreateDatabase(ctx, id.String(), comment)
	if err != nil {
		return CreateResult{}, &ProvisioningError{Stage: "provision", Err: err}
	}

	password := db.Password
	if password != "" && s.cipher != nil {
		password, err = s.cipher.Encrypt(password)
		if err != nil {
			return CreateResult{}, &ProvisioningError{Stage: "encrypt credentials", Err: err}
		}
	}

	ref.DatabaseName = db.Name
	ref.DatabaseUser = db.User
	ref.DatabasePassword = password
	ref.DatabaseHost = db.Host
	ref.BackendKind = s.provisioner.Kind()
	ref.IsActive = true

	ref, err = s.repo.Update(ctx, ref)
	if err != nil {
		return CreateResult{}, &ProvisioningError{Stage: "store credentials", Err: err}
	}

	handle, err := s.switchboard.Activate(ctx, ref.caseRef())
	if err != nil || handle == nil {
		return s.degraded(ref, "activate refreshed connection", err), nil
	}
	defer handle.Release()

	if _, err := s.migrator.Run(ctx, handle); err != nil {
		return s.degraded(ref, "migrate refreshed schema", err), nil
	}

	tenantID := uuid.New()
	if ref.TenantCaseID != nil {
		tenantID = *ref.TenantCaseID
	}
	if err := s.tenantCases.Insert(ctx, handle, ref.tenantCase(tenantID.String())); err != nil {
		return s.degraded(ref, "rebuild tenant case row", err), nil
	}

	if ref.TenantCaseID == nil {
		ref.TenantCaseID = &tenantID
		linked, uerr := s.repo.Update(ctx, ref)
		if uerr != nil {
			ref.TenantCaseID = nil
			return s.degraded(ref, "link tenant case id", uerr), nil
		}
		ref = linked
	}

	s.logger.Info("case database refreshed",
		zap.String("case_id", id.String()),
		zap.String("database", ref.DatabaseName),
	)
	return CreateResult{Reference: ref}, nil
}

// BackendInfo is the debug summary of the provisioning backend.
type BackendInfo struct {
	Backend     casedb.BackendKind
	Reachable   bool
	TotalCases  int
	LinkedCases int
}

// DatabaseInfo reports which backend is configured, whether it responds, and
// how many cases are registered and linked.
func (s *Service) DatabaseInfo(ctx context.Context) (BackendInfo, error) {
	info := BackendInfo{
		Backend:   s.provisioner.Kind(),
		Reachable: s.provisioner.TestConnectivity(ctx),
	}

	_, total, err := s.repo.List(ctx, 1, 0)
	if err != nil {
		return BackendInfo{}, err
	}
	info.TotalCases = total

	linked, err := s.repo.ListSynced(ctx)
	if err != nil {
		return BackendInfo{}, err
	}
	info.LinkedCases = len(linked)
	return info, nil
}
