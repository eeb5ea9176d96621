package casedb

import (
	"context"
	"fmt"
	"strings"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mediamatex/lexarbitra-vue/platform/go/secrets"
)

// SwitchboardConfig carries the defaults inherited by every tenant connection
// profile plus the credential cipher.
type SwitchboardConfig struct {
	// LocalMode enables the legacy host-suffix fallback for rows without a
	// stored backend kind.
	LocalMode bool
	// MySQLPort is the default port for remote tenant databases (3306 if zero).
	MySQLPort int
	// Cipher decrypts stored database passwords. Optional; without it stored
	// values are used verbatim.
	Cipher *secrets.Cipher
	Logger *zap.Logger
}

// Switchboard opens tenant database connections for case references and keeps
// a name-keyed registry of the handles currently open. Unlike a plain global
// connection table, Activate hands ownership of the handle to the caller, so
// release is scoped to the request that opened it and concurrent requests
// cannot clobber each other's connections through shared mutable state.
type Switchboard struct {
	cfg SwitchboardConfig

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewSwitchboard constructs a Switchboard.
func NewSwitchboard(cfg SwitchboardConfig) *Switchboard {
	if cfg.MySQLPort == 0 {
		cfg.MySQLPort = 3306
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Switchboard{cfg: cfg, handles: make(map[string]*Handle)}
}

// Handle is an open connection to one tenant database. The caller that
// obtained it from Activate owns it and must call Release when done with the
// last tenant access, success or failure.
type Handle struct {
	name string
	kind BackendKind
	db   *sqlx.DB
	sb   *Switchboard

	releaseOnce sync.Once
}

// DB exposes the underlying sqlx database.
func (h *Handle) DB() *sqlx.DB { return h.db }

// Name returns the registered connection name.
func (h *Handle) Name() string { return h.name }

// Kind returns the backend kind the handle was opened against.
func (h *Handle) Kind() BackendKind { return h.kind }

// Release closes the connection and removes it from the switchboard registry.
// Safe to call more than once.
func (h *Handle) Release() {
	h.releaseOnce.Do(func() {
		h.sb.remove(h)
		_ = h.db.Close()
	})
}

// Activate opens a tenant database connection for the given reference and
// registers it under the reference's connection name. A nil or inactive
// reference yields (nil, nil) with no side effects; callers treat a nil handle
// as "switch failed", never as a fault. Re-activating a name replaces and
// closes any stale handle registered under it, so rotated credentials are
// never served from a cached connection.
func (s *Switchboard) Activate(ctx context.Context, ref *CaseRef) (*Handle, error) {
	if ref == nil || !ref.IsActive {
		return nil, nil
	}
	if ref.ConnectionName == "" {
		return nil, fmt.Errorf("case reference %s has no connection name", ref.ID)
	}

	kind := s.resolveKind(ref)

	driver, dsn, err := s.buildDSN(ref, kind)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection %s: %w", kind, ref.ConnectionName, err)
	}

	h := &Handle{name: ref.ConnectionName, kind: kind, db: db, sb: s}
	s.register(h)

	if err := db.PingContext(ctx); err != nil {
		h.Release()
		return nil, fmt.Errorf("ping tenant database %s: %w", ref.DatabaseName, err)
	}

	s.cfg.Logger.Debug("tenant connection activated",
		zap.String("connection_name", ref.ConnectionName),
		zap.String("database", ref.DatabaseName),
		zap.String("backend", string(kind)),
	)
	return h, nil
}

// Deactivate closes and removes whatever handle is registered under the name.
// Safe to call for names that were never registered.
func (s *Switchboard) Deactivate(name string) {
	s.mu.Lock()
	h := s.handles[name]
	delete(s.handles, name)
	s.mu.Unlock()

	if h != nil {
		h.releaseOnce.Do(func() {
			_ = h.db.Close()
		})
	}
}

// Registered reports whether a handle is currently registered under the name.
func (s *Switchboard) Registered(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handles[name]
	return ok
}

// CloseAll releases every registered handle; used at shutdown.
func (s *Switchboard) CloseAll() {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.handles = make(map[string]*Handle)
	s.mu.Unlock()

	for _, h := range handles {
		h.releaseOnce.Do(func() {
			_ = h.db.Close()
		})
	}
}

func (s *Switchboard) register(h *Handle) {
	s.mu.Lock()
	old := s.handles[h.name]
	s.handles[h.name] = h
	s.mu.Unlock()

	if old != nil && old != h {
		old.releaseOnce.Do(func() {
			_ = old.db.Close()
		})
	}
}

// remove deletes the registry entry only if it still points at this handle, so
// a released handle never evicts a newer registration under the same name.
func (s *Switchboard) remove(h *Handle) {
	s.mu.Lock()
	if s.handles[h.name] == h {
		delete(s.handles, h.name)
	}
	s.mu.Unlock()
}

func (s *Switchboard) resolveKind(ref *CaseRef) BackendKind {
	switch ref.BackendKind {
	case BackendLocal, BackendRemote:
		return ref.BackendKind
	}
	// Legacy rows: local iff local mode is on and the host looks like a file.
	if s.cfg.LocalMode && strings.HasSuffix(ref.DatabaseHost, localFileSuffix) {
		return BackendLocal
	}
	return BackendRemote
}

func (s *Switchboard) buildDSN(ref *CaseRef, kind BackendKind) (driver, dsn string, err error) {
	switch kind {
	case BackendLocal:
		// For file-backed databases the host field carries the file path.
		return "sqlite", "file:" + ref.DatabaseHost + "?_pragma=foreign_keys(1)", nil
	case BackendRemote:
		password := ref.DatabasePassword
		if password != "" && s.cfg.Cipher != nil {
			password = s.cfg.Cipher.DecryptOrPlaintext(password)
		}
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&collation=utf8mb4_unicode_ci&parseTime=true",
			ref.DatabaseUser, password, ref.DatabaseHost, s.cfg.MySQLPort, ref.DatabaseName)
		return "mysql", dsn, nil
	default:
		return "", "", fmt.Errorf("unresolvable backend kind for case %s", ref.ID)
	}
}
