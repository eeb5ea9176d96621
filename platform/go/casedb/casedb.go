// Package casedb manages runtime connections to per-case tenant databases:
// opening and releasing scoped handles, running the tenant migration set, and
// reading or writing the opaque tenant case rows.
package casedb

import (
	"strings"

	"github.com/google/uuid"
)

// BackendKind discriminates how a case reference's physical database is
// addressed. It is decided once when the case is created and stored on the
// reference; legacy rows carry an empty kind and fall back to host sniffing.
type BackendKind string

const (
	// BackendRemote is a networked MySQL database provisioned by the hosting API.
	BackendRemote BackendKind = "remote"
	// BackendLocal is a file-backed SQLite database on local disk.
	BackendLocal BackendKind = "local"
	// BackendUnknown marks legacy rows written before the discriminator existed.
	BackendUnknown BackendKind = ""
)

// CaseRef is the switchboard's view of a landlord case reference: just the
// addressing fields required to open the tenant database.
type CaseRef struct {
	ID               uuid.UUID
	ConnectionName   string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string // encrypted at rest; empty for file-backed databases
	DatabaseHost     string // hostname, or the file path for file-backed databases
	BackendKind      BackendKind
	IsActive         bool
}

// ConnectionName derives the deterministic runtime connection handle for a
// case id: "case_" with the id's dashes replaced by underscores.
func ConnectionName(id uuid.UUID) string {
	return "case_" + strings.ReplaceAll(id.String(), "-", "_")
}

// localFileSuffix is the extension sniffed on legacy rows to recognize
// file-backed databases whose backend kind was never recorded.
const localFileSuffix = ".sqlite"
