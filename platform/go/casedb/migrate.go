package casedb

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	sqlassets "github.com/mediamatex/lexarbitra-vue/database"
)

// tenantCaseTable is the primary table every tenant database must carry before
// any case data is written.
const tenantCaseTable = "case_files"

// ErrSchemaIncomplete is returned when migrations ran but the tenant case
// table still does not exist.
var ErrSchemaIncomplete = errors.New("casedb: tenant schema incomplete after migration")

// MigrationReport describes the outcome of a tenant migration run.
type MigrationReport struct {
	Version       uint
	Dirty         bool
	TablesPresent []string
}

// Migrator applies the embedded tenant migration set to a single open handle.
// Runs are idempotent: migrate tracks applied versions inside each tenant
// database, and an already-migrated database is a no-op.
type Migrator struct {
	logger *zap.Logger
}

// NewMigrator constructs a Migrator.
func NewMigrator(logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{logger: logger}
}

// Run migrates the handle's database up to the latest version and then
// verifies by introspection that the tenant case table exists. A missing table
// after a successful run is a hard failure; data must never be written into an
// unverified schema.
func (m *Migrator) Run(ctx context.Context, h *Handle) (MigrationReport, error) {
	if h == nil {
		return MigrationReport{}, fmt.Errorf("casedb: migrator requires an active handle")
	}

	driver, err := migrationDriver(h)
	if err != nil {
		return MigrationReport{}, err
	}

	src, err := iofs.New(sqlassets.TenantMigrationsFS, sqlassets.TenantMigrationsPath)
	if err != nil {
		return MigrationReport{}, fmt.Errorf("open tenant migration source: %w", err)
	}

	mig, err := migrate.NewWithInstance("iofs", src, h.Name(), driver)
	if err != nil {
		return MigrationReport{}, fmt.Errorf("create migration instance: %w", err)
	}

	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return MigrationReport{}, fmt.Errorf("run tenant migrations: %w", err)
	}

	report := MigrationReport{}
	if version, dirty, err := mig.Version(); err == nil {
		report.Version = version
		report.Dirty = dirty
	}

	tables, err := ListTables(ctx, h)
	if err != nil {
		return MigrationReport{}, err
	}
	report.TablesPresent = tables

	ok, err := HasTable(ctx, h, tenantCaseTable)
	if err != nil {
		return MigrationReport{}, err
	}
	if !ok {
		return report, fmt.Errorf("%w: table %q missing in %s", ErrSchemaIncomplete, tenantCaseTable, h.Name())
	}

	m.logger.Info("tenant schema migrated",
		zap.String("connection_name", h.Name()),
		zap.Uint("version", report.Version),
		zap.Strings("tables", report.TablesPresent),
	)
	return report, nil
}

func migrationDriver(h *Handle) (database.Driver, error) {
	switch h.Kind() {
	case BackendLocal:
		driver, err := migratesqlite.WithInstance(h.DB().DB, &migratesqlite.Config{})
		if err != nil {
			return nil, fmt.Errorf("create sqlite migration driver: %w", err)
		}
		return driver, nil
	case BackendRemote:
		driver, err := migratemysql.WithInstance(h.DB().DB, &migratemysql.Config{})
		if err != nil {
			return nil, fmt.Errorf("create mysql migration driver: %w", err)
		}
		return driver, nil
	default:
		return nil, fmt.Errorf("no migration driver for backend kind %q", h.Kind())
	}
}

// HasTable reports whether the named table exists in the handle's database.
func HasTable(ctx context.Context, h *Handle, name string) (bool, error) {
	var query string
	switch h.Kind() {
	case BackendLocal:
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	case BackendRemote:
		query = `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`
	default:
		return false, fmt.Errorf("no introspection for backend kind %q", h.Kind())
	}

	var count int
	if err := h.DB().GetContext(ctx, &count, query, name); err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return count > 0, nil
}

// ListTables returns the table names present in the handle's database.
func ListTables(ctx context.Context, h *Handle) ([]string, error) {
	var query string
	switch h.Kind() {
	case BackendLocal:
		query = `SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`
	case BackendRemote:
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name`
	default:
		return nil, fmt.Errorf("no introspection for backend kind %q", h.Kind())
	}

	var tables []string
	if err := h.DB().SelectContext(ctx, &tables, query); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}
