package service

import (
	"context"

	"github.com/mediamatex/lexarbitra-vue/platform/go/casedb"
)

// ProvisionedDatabase is the credential set produced by a provisioning backend.
// For file-backed databases User and Password are empty and Host carries the
// file path.
type ProvisionedDatabase struct {
	Name     string
	User     string
	Password string
	Host     string
}

// DatabaseProvisioner creates and deletes the physical databases backing
// cases. CreateDatabase is called exactly once per case and is not retried
// here; DeleteDatabase and TestConnectivity never return errors, only failure
// values, so callers can treat them uniformly.
type DatabaseProvisioner interface {
	CreateDatabase(ctx context.Context, caseID string, comment string) (ProvisionedDatabase, error)
	// DeleteDatabase is idempotent: deleting a database that no longer exists
	// reports success.
	DeleteDatabase(ctx context.Context, nameOrPath string) bool
	// TestConnectivity is a lightweight reachability probe.
	TestConnectivity(ctx context.Context) bool
	// Kind reports which backend this provisioner addresses; it is stored on
	// every reference the provisioner creates.
	Kind() casedb.BackendKind
}

// SchemaMigrator brings a freshly activated tenant database up to the expected
// schema and verifies it.
type SchemaMigrator interface {
	Run(ctx context.Context, h *casedb.Handle) (casedb.MigrationReport, error)
}

// TenantCases is the typed boundary over raw tenant-row statements.
type TenantCases interface {
	Insert(ctx context.Context, h *casedb.Handle, tc casedb.TenantCase) error
	FindByID(ctx context.Context, h *casedb.Handle, id string) (casedb.TenantCase, error)
	Update(ctx context.Context, h *casedb.Handle, id string, mut casedb.TenantCaseMutation) (int64, error)
	Count(ctx context.Context, h *casedb.Handle) (int, error)
}
