package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/mediamatex/lexarbitra-vue/database"
)

// ErrNotFound is returned when a requested landlord row does not exist.
var ErrNotFound = errors.New("persistence: not found")

// CaseReferenceRecord is the landlord-side registry row mapping a logical case
// to its physical tenant database.
type CaseReferenceRecord struct {
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
	BackendKind      string
	ConnectionName   string
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CaseReferenceStore persists CaseReferenceRecord rows in the landlord database.
type CaseReferenceStore struct {
	pool *pgxpool.Pool
}

// NewCaseReferenceStore constructs the store and applies the registry DDL.
func NewCaseReferenceStore(ctx context.Context, pool *pgxpool.Pool) (*CaseReferenceStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("case reference store requires pool")
	}
	if _, err := pool.Exec(ctx, sqlassets.CaseReferencesSQL); err != nil {
		return nil, fmt.Errorf("apply case_references schema: %w", err)
	}
	return &CaseReferenceStore{pool: pool}, nil
}

const caseReferenceColumns = `
	id, case_number, title, status, initiated_at, created_by, tenant_case_id,
	database_name, database_user, database_password, database_host,
	backend_kind, connection_name, is_active, created_at, updated_at`

// Create inserts a new registry row.
func (s *CaseReferenceStore) Create(ctx context.Context, rec CaseReferenceRecord) (CaseReferenceRecord, error) {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO case_references (`+caseReferenceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		rec.ID, rec.CaseNumber, rec.Title, rec.Status, rec.InitiatedAt, rec.CreatedBy,
		rec.TenantCaseID, rec.DatabaseName, rec.DatabaseUser, rec.DatabasePassword,
		rec.DatabaseHost, rec.BackendKind, rec.ConnectionName, rec.IsActive,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return CaseReferenceRecord{}, fmt.Errorf("insert case reference: %w", err)
	}
	return rec, nil
}

// Update writes all mutable columns of an existing row.
func (s *CaseReferenceStore) Update(ctx context.Context, rec CaseReferenceRecord) (CaseReferenceRecord, error) {
	rec.UpdatedAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx, `
		UPDATE case_references SET
			case_number = $2, title = $3, status = $4, initiated_at = $5,
			created_by = $6, tenant_case_id = $7, database_name = $8,
			database_user = $9, database_password = $10, database_host = $11,
			backend_kind = $12, connection_name = $13, is_active = $14,
			updated_at = $15
		WHERE id = $1`,
		rec.ID, rec.CaseNumber, rec.Title, rec.Status, rec.InitiatedAt, rec.CreatedBy,
		rec.TenantCaseID, rec.DatabaseName, rec.DatabaseUser, rec.DatabasePassword,
		rec.DatabaseHost, rec.BackendKind, rec.ConnectionName, rec.IsActive,
		rec.UpdatedAt,
	)
	if err != nil {
		return CaseReferenceRecord{}, fmt.Errorf("update case reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return CaseReferenceRecord{}, ErrNotFound
	}
	return rec, nil
}

// Get returns a row by id regardless of activation state.
func (s *CaseReferenceStore) Get(ctx context.Context, id uuid.UUID) (CaseReferenceRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+caseReferenceColumns+`
		FROM case_references WHERE id = $1`, id)
	return scanCaseReference(row)
}

// GetActive returns a row by id only when is_active is set.
func (s *CaseReferenceStore) GetActive(ctx context.Context, id uuid.UUID) (CaseReferenceRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+caseReferenceColumns+`
		FROM case_references WHERE id = $1 AND is_active = TRUE`, id)
	return scanCaseReference(row)
}

// List returns rows ordered by creation time, newest first.
func (s *CaseReferenceStore) List(ctx context.Context, limit, offset int) ([]CaseReferenceRecord, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM case_references`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count case references: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+caseReferenceColumns+`
		FROM case_references
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list case references: %w", err)
	}
	defer rows.Close()

	var out []CaseReferenceRecord
	for rows.Next() {
		rec, err := scanCaseReference(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

// ListWithTenantID returns every row whose tenant_case_id is set. Used by the
// landlord/tenant sync validation.
func (s *CaseReferenceStore) ListWithTenantID(ctx context.Context) ([]CaseReferenceRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+caseReferenceColumns+`
		FROM case_references
		WHERE tenant_case_id IS NOT NULL
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list synced case references: %w", err)
	}
	defer rows.Close()

	var out []CaseReferenceRecord
	for rows.Next() {
		rec, err := scanCaseReference(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes a row permanently.
func (s *CaseReferenceStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM case_references WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete case reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCaseReference(row pgx.Row) (CaseReferenceRecord, error) {
	var rec CaseReferenceRecord
	err := row.Scan(
		&rec.ID, &rec.CaseNumber, &rec.Title, &rec.Status, &rec.InitiatedAt,
		&rec.CreatedBy, &rec.TenantCaseID, &rec.DatabaseName, &rec.DatabaseUser,
		&rec.DatabasePassword, &rec.DatabaseHost, &rec.BackendKind,
		&rec.ConnectionName, &rec.IsActive, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return CaseReferenceRecord{}, ErrNotFound
	}
	if err != nil {
		return CaseReferenceRecord{}, fmt.Errorf("scan case reference: %w", err)
	}
	return rec, nil
}
