// Package repo implements the case reference repository over the landlord
// Postgres database, plus an in-memory variant for tests.
package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mediamatex/lexarbitra-vue/domains/cases/be/service"
	"github.com/mediamatex/lexarbitra-vue/platform/go/casedb"
	"github.com/mediamatex/lexarbitra-vue/platform/go/persistence"
)

// Postgres persists case references through the landlord store.
type Postgres struct {
	store *persistence.CaseReferenceStore
}

// NewPostgres constructs the repository.
func NewPostgres(store *persistence.CaseReferenceStore) *Postgres {
	return &Postgres{store: store}
}

func (r *Postgres) Create(ctx context.Context, ref service.CaseReference) (service.CaseReference, error) {
	rec, err := r.store.Create(ctx, toRecord(ref))
	if err != nil {
		return service.CaseReference{}, err
	}
	return fromRecord(rec), nil
}

func (r *Postgres) Update(ctx context.Context, ref service.CaseReference) (service.CaseReference, error) {
	rec, err := r.store.Update(ctx, toRecord(ref))
	if errors.Is(err, persistence.ErrNotFound) {
		return service.CaseReference{}, service.ErrCaseNotFound
	}
	if err != nil {
		return service.CaseReference{}, err
	}
	return fromRecord(rec), nil
}

func (r *Postgres) Find(ctx context.Context, id uuid.UUID) (service.CaseReference, error) {
	rec, err := r.store.Get(ctx, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return service.CaseReference{}, service.ErrCaseNotFound
	}
	if err != nil {
		return service.CaseReference{}, err
	}
	return fromRecord(rec), nil
}

func (r *Postgres) FindActive(ctx context.Context, id uuid.UUID) (*service.CaseReference, error) {
	rec, err := r.store.GetActive(ctx, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ref := fromRecord(rec)
	return &ref, nil
}

func (r *Postgres) List(ctx context.Context, limit, offset int) ([]service.CaseReference, int, error) {
	recs, total, err := r.store.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return fromRecords(recs), total, nil
}

func (r *Postgres) ListSynced(ctx context.Context) ([]service.CaseReference, error) {
	recs, err := r.store.ListWithTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return fromRecords(recs), nil
}

func (r *Postgres) Delete(ctx context.Context, id uuid.UUID) error {
	err := r.store.Delete(ctx, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return service.ErrCaseNotFound
	}
	return err
}

func toRecord(ref service.CaseReference) persistence.CaseReferenceRecord {
	return persistence.CaseReferenceRecord{
		ID:               ref.ID,
		CaseNumber:       ref.CaseNumber,
		Title:            ref.Title,
		Status:           ref.Status,
		InitiatedAt:      ref.InitiatedAt,
		CreatedBy:        ref.CreatedBy,
		TenantCaseID:     ref.TenantCaseID,
		DatabaseName:     ref.DatabaseName,
		DatabaseUser:     ref.DatabaseUser,
		DatabasePassword: ref.DatabasePassword,
		DatabaseHost:     ref.DatabaseHost,
		BackendKind:      string(ref.BackendKind),
		ConnectionName:   ref.ConnectionName,
		IsActive:         ref.IsActive,
		CreatedAt:        ref.CreatedAt,
		UpdatedAt:        ref.UpdatedAt,
	}
}

func fromRecord(rec persistence.CaseReferenceRecord) service.CaseReference {
	return service.CaseReference{
		ID:               rec.ID,
		CaseNumber:       rec.CaseNumber,
		Title:            rec.Title,
		Status:           rec.Status,
		InitiatedAt:      rec.InitiatedAt,
		CreatedBy:        rec.CreatedBy,
		TenantCaseID:     rec.TenantCaseID,
		DatabaseName:     rec.DatabaseName,
		DatabaseUser:     rec.DatabaseUser,
		DatabasePassword: rec.DatabasePassword,
		DatabaseHost:     rec.DatabaseHost,
		BackendKind:      casedb.BackendKind(rec.BackendKind),
		ConnectionName:   rec.ConnectionName,
		IsActive:         rec.IsActive,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
}

func fromRecords(recs []persistence.CaseReferenceRecord) []service.CaseReference {
	out := make([]service.CaseReference, 0, len(recs))
	for _, rec := range recs {
		out = append(out, fromRecord(rec))
	}
	return out
}
