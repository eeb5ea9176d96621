package casedb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func localRef(t *testing.T, dir string) *CaseRef {
	t.Helper()
	id := uuid.New()
	return &CaseRef{
		ID:             id,
		ConnectionName: ConnectionName(id),
		DatabaseName:   "case_test",
		DatabaseHost:   filepath.Join(dir, "case_test.sqlite"),
		BackendKind:    BackendLocal,
		IsActive:       true,
	}
}

func testSwitchboard(t *testing.T) *Switchboard {
	t.Helper()
	return NewSwitchboard(SwitchboardConfig{
		LocalMode: true,
		Logger:    zaptest.NewLogger(t),
	})
}

func TestConnectionNameFormat(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("0d9b6f2a-4c31-4e52-9f8d-1a2b3c4d5e6f")
	require.Equal(t, "case_0d9b6f2a_4c31_4e52_9f8d_1a2b3c4d5e6f", ConnectionName(id))
}

func TestActivateNilAndInactiveRefs(t *testing.T) {
	t.Parallel()
	sb := testSwitchboard(t)

	h, err := sb.Activate(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, h)

	ref := localRef(t, t.TempDir())
	ref.IsActive = false
	h, err = sb.Activate(context.Background(), ref)
	require.NoError(t, err)
	require.Nil(t, h)
}

func TestActivateRequiresConnectionName(t *testing.T) {
	t.Parallel()
	sb := testSwitchboard(t)

	ref := localRef(t, t.TempDir())
	ref.ConnectionName = ""
	_, err := sb.Activate(context.Background(), ref)
	require.ErrorContains(t, err, "no connection name")
}

func TestActivateAndReleaseLocalDatabase(t *testing.T) {
	t.Parallel()
	sb := testSwitchboard(t)
	ref := localRef(t, t.TempDir())

	h, err := sb.Activate(context.Background(), ref)
	require.NoError(t, err)
	require.NotNil(t, h)
	require.Equal(t, ref.ConnectionName, h.Name())
	require.Equal(t, BackendLocal, h.Kind())
	require.True(t, sb.Registered(ref.ConnectionName))

	var one int
	require.NoError(t, h.DB().Get(&one, "SELECT 1"))
	require.Equal(t, 1, one)

	h.Release()
	require.False(t, sb.Registered(ref.ConnectionName))

	// Release is idempotent.
	h.Release()
}

func TestReactivateReplacesStaleHandle(t *testing.T) {
	t.Parallel()
	sb := testSwitchboard(t)
	ref := localRef(t, t.TempDir())
	ctx := context.Background()

	first, err := sb.Activate(ctx, ref)
	require.NoError(t, err)
	second, err := sb.Activate(ctx, ref)
	require.NoError(t, err)
	require.NotSame(t, first, second)
	require.True(t, sb.Registered(ref.ConnectionName))

	// The stale handle was closed by re-registration; releasing it must not
	// evict the newer handle.
	first.Release()
	require.True(t, sb.Registered(ref.ConnectionName))

	second.Release()
	require.False(t, sb.Registered(ref.ConnectionName))
}

func TestDeactivateUnregisteredNameIsSafe(t *testing.T) {
	t.Parallel()
	sb := testSwitchboard(t)
	sb.Deactivate("case_never_registered")
}

func TestDeactivateClosesRegisteredHandle(t *testing.T) {
	t.Parallel()
	sb := testSwitchboard(t)
	ref := localRef(t, t.TempDir())

	h, err := sb.Activate(context.Background(), ref)
	require.NoError(t, err)
	require.NotNil(t, h)

	sb.Deactivate(ref.ConnectionName)
	require.False(t, sb.Registered(ref.ConnectionName))
	require.Error(t, h.DB().Ping())
}

func TestCloseAll(t *testing.T) {
	t.Parallel()
	sb := testSwitchboard(t)
	dir := t.TempDir()

	a, err := sb.Activate(context.Background(), localRef(t, dir))
	require.NoError(t, err)
	b, err := sb.Activate(context.Background(), localRef(t, dir))
	require.NoError(t, err)

	sb.CloseAll()
	require.False(t, sb.Registered(a.Name()))
	require.False(t, sb.Registered(b.Name()))
}

func TestResolveKindLegacySniffing(t *testing.T) {
	t.Parallel()

	local := NewSwitchboard(SwitchboardConfig{LocalMode: true})
	remote := NewSwitchboard(SwitchboardConfig{LocalMode: false})

	legacyFile := &CaseRef{DatabaseHost: "/var/data/case_ab.sqlite"}
	require.Equal(t, BackendLocal, local.resolveKind(legacyFile))
	// Without local mode a file-looking host still resolves remote.
	require.Equal(t, BackendRemote, remote.resolveKind(legacyFile))

	legacyHost := &CaseRef{DatabaseHost: "db.example.test"}
	require.Equal(t, BackendRemote, local.resolveKind(legacyHost))

	// An explicit kind wins over sniffing.
	explicit := &CaseRef{DatabaseHost: "db.example.test", BackendKind: BackendLocal}
	require.Equal(t, BackendLocal, local.resolveKind(explicit))
}

func TestBuildDSN(t *testing.T) {
	t.Parallel()
	sb := NewSwitchboard(SwitchboardConfig{MySQLPort: 3306})

	driver, dsn, err := sb.buildDSN(&CaseRef{DatabaseHost: "/data/case_ab.sqlite"}, BackendLocal)
	require.NoError(t, err)
	require.Equal(t, "sqlite", driver)
	require.Contains(t, dsn, "/data/case_ab.sqlite")

	driver, dsn, err = sb.buildDSN(&CaseRef{
		DatabaseName:     "case_ab",
		DatabaseUser:     "w012345_3",
		DatabasePassword: "pw",
		DatabaseHost:     "db.example.test",
	}, BackendRemote)
	require.NoError(t, err)
	require.Equal(t, "mysql", driver)
	require.Equal(t, "w012345_3:pw@tcp(db.example.test:3306)/case_ab?charset=utf8mb4&collation=utf8mb4_unicode_ci&parseTime=true", dsn)
}
