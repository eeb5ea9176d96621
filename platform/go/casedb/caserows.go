package casedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrTenantCaseNotFound is returned when a tenant case row does not exist.
var ErrTenantCaseNotFound = errors.New("casedb: tenant case not found")

// TenantCase is the case row inside a tenant database. The tenant side is
// deliberately schema-less from the landlord's point of view; this struct is
// the typed boundary over the raw statements, not an ORM mapping.
type TenantCase struct {
	ID          string  `db:"id"`
	CaseNumber  string  `db:"case_number"`
	Title       string  `db:"title"`
	Status      string  `db:"status"`
	InitiatedAt string  `db:"initiated_at"`
	CreatedBy   *string `db:"created_by"`
}

// TenantCaseMutation carries the fields mirrored from the landlord reference
// into the tenant row on update.
type TenantCaseMutation struct {
	CaseNumber string
	Title      string
	Status     string
}

// TenantCaseRepository reads and writes tenant case rows through an active
// handle. All statements use driver-agnostic placeholders so the same code
// serves MySQL and SQLite backends.
type TenantCaseRepository struct{}

// NewTenantCaseRepository constructs a TenantCaseRepository.
func NewTenantCaseRepository() *TenantCaseRepository { return &TenantCaseRepository{} }

func nowStamp() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05")
}

// Insert writes a new case row into the tenant database.
func (r *TenantCaseRepository) Insert(ctx context.Context, h *Handle, tc TenantCase) error {
	stamp := nowStamp()
	_, err := h.DB().ExecContext(ctx, `
		INSERT INTO case_files (id, case_number, title, status, initiated_at, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tc.ID, tc.CaseNumber, tc.Title, tc.Status, tc.InitiatedAt, tc.CreatedBy, stamp, stamp,
	)
	if err != nil {
		return fmt.Errorf("insert tenant case: %w", err)
	}
	return nil
}

// FindByID returns the tenant case row or ErrTenantCaseNotFound.
func (r *TenantCaseRepository) FindByID(ctx context.Context, h *Handle, id string) (TenantCase, error) {
	var tc TenantCase
	err := h.DB().GetContext(ctx, &tc, `
		SELECT id, case_number, title, status, initiated_at, created_by
		FROM case_files WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return TenantCase{}, ErrTenantCaseNotFound
	}
	if err != nil {
		return TenantCase{}, fmt.Errorf("read tenant case: %w", err)
	}
	return tc, nil
}

// Update mirrors landlord display fields into the tenant row. Returns the
// number of rows touched; zero means the row has gone missing.
func (r *TenantCaseRepository) Update(ctx context.Context, h *Handle, id string, mut TenantCaseMutation) (int64, error) {
	res, err := h.DB().ExecContext(ctx, `
		UPDATE case_files SET case_number = ?, title = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		mut.CaseNumber, mut.Title, mut.Status, nowStamp(), id,
	)
	if err != nil {
		return 0, fmt.Errorf("update tenant case: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update tenant case rows affected: %w", err)
	}
	return affected, nil
}

// Count returns the number of case rows in the tenant database.
func (r *TenantCaseRepository) Count(ctx context.Context, h *Handle) (int, error) {
	var count int
	if err := h.DB().GetContext(ctx, &count, `SELECT COUNT(*) FROM case_files`); err != nil {
		return 0, fmt.Errorf("count tenant cases: %w", err)
	}
	return count, nil
}
