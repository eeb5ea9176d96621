package sqlassets

import "embed"

// CaseReferencesSQL is the landlord-side DDL for the case reference registry.
//
//go:embed schema/landlord/case_references.sql
var CaseReferencesSQL string

// TenantMigrationsFS holds the versioned migration set applied to every
// per-case tenant database. The SQL is kept portable between MySQL (remote
// KAS-provisioned databases) and SQLite (local file-backed databases).
//
//go:embed migrations/tenant/*.sql
var TenantMigrationsFS embed.FS

// TenantMigrationsPath is the directory inside TenantMigrationsFS that the
// migration runner reads from.
const TenantMigrationsPath = "migrations/tenant"
