// Package provisioning supplies the two DatabaseProvisioner backends: the KAS
// hosting API for production MySQL databases and a directory of SQLite files
// for local development.
package provisioning

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mediamatex/lexarbitra-vue/domains/cases/be/service"
	"github.com/mediamatex/lexarbitra-vue/platform/go/casedb"
)

const sqliteExt = ".sqlite"

// Local provisions file-backed SQLite databases in a single directory. The
// provisioned "host" is the file path; there are no credentials.
type Local struct {
	dir    string
	logger *zap.Logger
}

// NewLocal constructs a Local provisioner rooted at dir.
func NewLocal(dir string, logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{dir: dir, logger: logger}
}

// Kind reports the backend discriminator stored on references this
// provisioner creates.
func (l *Local) Kind() casedb.BackendKind { return casedb.BackendLocal }

// CreateDatabase creates an empty database file named after the case id.
func (l *Local) CreateDatabase(ctx context.Context, caseID, comment string) (service.ProvisionedDatabase, error) {
	name := "case_" + strings.ReplaceAll(caseID, "-", "_")
	path := filepath.Join(l.dir, name+sqliteExt)

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return service.ProvisionedDatabase{}, fmt.Errorf("create case database directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return service.ProvisionedDatabase{}, fmt.Errorf("create case database file: %w", err)
	}
	if err := f.Close(); err != nil {
		return service.ProvisionedDatabase{}, fmt.Errorf("create case database file: %w", err)
	}

	l.logger.Info("local case database created",
		zap.String("case_id", caseID),
		zap.String("path", path),
	)
	return service.ProvisionedDatabase{Name: name, Host: path}, nil
}

// DeleteDatabase removes a database file by name or path. A file that is
// already gone counts as deleted.
func (l *Local) DeleteDatabase(ctx context.Context, nameOrPath string) bool {
	path := nameOrPath
	if !strings.HasSuffix(path, sqliteExt) {
		path = filepath.Join(l.dir, nameOrPath+sqliteExt)
	}

	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		l.logger.Error("local case database not deleted", zap.String("path", path), zap.Error(err))
		return false
	}
	return true
}

// TestConnectivity checks that the database directory can be written to.
func (l *Local) TestConnectivity(ctx context.Context) bool {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return false
	}
	probe := filepath.Join(l.dir, ".write-probe")
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false
	}
	_ = f.Close()
	_ = os.Remove(probe)
	return true
}

// ListDatabases returns the case database files currently in the directory.
func (l *Local) ListDatabases() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read case database directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), sqliteExt) {
			names = append(names, strings.TrimSuffix(e.Name(), sqliteExt))
		}
	}
	return names, nil
}
