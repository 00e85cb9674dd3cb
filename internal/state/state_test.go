package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagenomi/tvm/internal/backend"
)

func TestCache_RecordLookupFlush(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewStore[InstalledState](tmpDir)
	require.NoError(t, err)

	require.NoError(t, store.Lock())
	defer store.Unlock()

	cache := NewCache(store)
	cache.Init(nil)

	zig := backend.NewIdentifier("zig", "", backend.KindArchive)
	_, ok := cache.Lookup(zig)
	assert.False(t, ok)

	cache.Record(zig, "0.11.0", filepath.Join(tmpDir, "zig", "0.11.0"))

	rec, ok := cache.Lookup(zig)
	require.True(t, ok)
	assert.Equal(t, "0.11.0", rec.Version)
	assert.Equal(t, filepath.Join(tmpDir, "zig", "0.11.0"), rec.InstallPath)
	assert.WithinDuration(t, time.Now(), rec.InstalledAt, time.Minute)

	require.NoError(t, cache.Flush())

	data, err := os.ReadFile(store.StatePath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "0.11.0")
}

func TestCache_FlushNoopWhenClean(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewStore[InstalledState](tmpDir)
	require.NoError(t, err)
	require.NoError(t, store.Lock())
	defer store.Unlock()

	cache := NewCache(store)
	cache.Init(nil)

	require.NoError(t, cache.Flush())
	_, err = os.Stat(store.StatePath())
	assert.True(t, os.IsNotExist(err))
}

func TestCache_Reset(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewStore[InstalledState](tmpDir)
	require.NoError(t, err)
	require.NoError(t, store.Lock())
	defer store.Unlock()

	cache := NewCache(store)
	cache.Init(nil)

	cache.Record(backend.NewIdentifier("go", "", backend.KindDelegated), "1.25.0", "/x")
	cache.Reset()

	require.NoError(t, cache.Flush())
	_, err = os.Stat(store.StatePath())
	assert.True(t, os.IsNotExist(err), "Reset should clear dirty flag without writing")
}

func TestCache_Snapshot(t *testing.T) {
	store, err := NewStore[InstalledState](t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Lock())
	defer store.Unlock()

	cache := NewCache(store)
	cache.Init(nil)

	snap := cache.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, Version, snap.Version)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewStore[InstalledState](tmpDir)
	require.NoError(t, err)
	require.NoError(t, store.Lock())
	defer store.Unlock()

	st := NewInstalledState()
	st.Tools["zig"] = &ToolRecord{Version: "0.11.0", InstallPath: "/i/zig/0.11.0", InstalledAt: time.Now()}
	require.NoError(t, store.Save(st))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Contains(t, loaded.Tools, "zig")
	assert.Equal(t, "0.11.0", loaded.Tools["zig"].Version)
}

func TestStore_LoadWithoutLockFails(t *testing.T) {
	store, err := NewStore[InstalledState](t.TempDir())
	require.NoError(t, err)

	_, err = store.Load()
	assert.Error(t, err)
}

func TestStore_SaveWithoutLockFails(t *testing.T) {
	store, err := NewStore[InstalledState](t.TempDir())
	require.NoError(t, err)

	err = store.Save(NewInstalledState())
	assert.Error(t, err)
}

func TestStore_LoadMissingFileReturnsEmpty(t *testing.T) {
	store, err := NewStore[InstalledState](t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Lock())
	defer store.Unlock()

	st, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, st.Tools)
}

func TestStore_LockExclusion(t *testing.T) {
	dir := t.TempDir()
	a, err := NewStore[InstalledState](dir)
	require.NoError(t, err)
	b, err := NewStore[InstalledState](dir)
	require.NoError(t, err)

	require.NoError(t, a.Lock())
	defer a.Unlock()

	err = b.Lock()
	assert.Error(t, err)
}

func TestStore_LoadReadOnlyNeedsNoLock(t *testing.T) {
	store, err := NewStore[InstalledState](t.TempDir())
	require.NoError(t, err)

	st, err := store.LoadReadOnly()
	require.NoError(t, err)
	assert.Empty(t, st.Tools)
}

func TestValidateInstalledState(t *testing.T) {
	st := NewInstalledState()
	st.Tools["bad"] = &ToolRecord{}
	st.Tools["ok"] = &ToolRecord{Version: "1.0.0", InstallPath: "/i/ok/1.0.0"}
	st.Version = "99"

	result := ValidateInstalledState(st)
	assert.True(t, result.IsValid(), "warnings never invalidate state")
	assert.True(t, result.HasWarnings())

	var fields []string
	for _, w := range result.Warnings {
		fields = append(fields, w.Field)
	}
	assert.Contains(t, fields, "version")
	assert.Contains(t, fields, "tools.bad.version")
	assert.Contains(t, fields, "tools.bad.installPath")
}

func TestValidateInstalledState_Clean(t *testing.T) {
	st := NewInstalledState()
	st.Tools["ok"] = &ToolRecord{Version: "1.0.0", InstallPath: "/i/ok/1.0.0"}

	result := ValidateInstalledState(st)
	assert.True(t, result.IsValid())
	assert.False(t, result.HasWarnings())
}

func TestDiffInstalledStates_AddedRemovedModified(t *testing.T) {
	old := NewInstalledState()
	old.Tools["zig"] = &ToolRecord{Version: "0.11.0", InstallPath: "/i/zig/0.11.0"}
	old.Tools["node"] = &ToolRecord{Version: "20.0.0", InstallPath: "/i/node/20.0.0"}

	cur := NewInstalledState()
	cur.Tools["zig"] = &ToolRecord{Version: "0.12.0", InstallPath: "/i/zig/0.12.0"}
	cur.Tools["python"] = &ToolRecord{Version: "3.12.0", InstallPath: "/i/python/3.12.0"}

	diff := DiffInstalledStates(old, cur)
	require.True(t, diff.HasChanges())

	added, modified, removed := diff.Summary()
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, modified)
	assert.Equal(t, 1, removed)

	byName := make(map[string]ResourceDiff)
	for _, c := range diff.Changes {
		byName[c.Name] = c
	}

	assert.Equal(t, DiffModified, byName["zig"].Type)
	assert.Equal(t, "0.11.0", byName["zig"].OldVersion)
	assert.Equal(t, "0.12.0", byName["zig"].NewVersion)

	assert.Equal(t, DiffAdded, byName["python"].Type)
	assert.Equal(t, DiffRemoved, byName["node"].Type)
}

func TestDiffInstalledStates_NoChanges(t *testing.T) {
	st := NewInstalledState()
	st.Tools["zig"] = &ToolRecord{Version: "0.11.0", InstallPath: "/i/zig/0.11.0"}

	diff := DiffInstalledStates(st, st)
	assert.False(t, diff.HasChanges())
}

func TestDiffInstalledStates_RegistryChange(t *testing.T) {
	old := NewInstalledState()
	old.Registry = &RegistryState{Aqua: &AquaRegistryState{Ref: "v4.0.0"}}

	cur := NewInstalledState()
	cur.Registry = &RegistryState{Aqua: &AquaRegistryState{Ref: "v4.1.0"}}

	diff := DiffInstalledStates(old, cur)
	require.Len(t, diff.Changes, 1)
	assert.Equal(t, "registry", diff.Changes[0].Kind)
	assert.Equal(t, DiffModified, diff.Changes[0].Type)
	assert.Equal(t, "v4.0.0", diff.Changes[0].OldVersion)
	assert.Equal(t, "v4.1.0", diff.Changes[0].NewVersion)
}

func TestBackup_CreateAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewStore[InstalledState](tmpDir)
	require.NoError(t, err)
	require.NoError(t, store.Lock())
	defer store.Unlock()

	// No state file yet: backup is a no-op.
	require.NoError(t, CreateBackup(store))
	_, err = os.Stat(BackupPath(store.StatePath()))
	assert.True(t, os.IsNotExist(err))

	st := NewInstalledState()
	st.Tools["zig"] = &ToolRecord{Version: "0.11.0", InstallPath: "/i/zig/0.11.0"}
	require.NoError(t, store.Save(st))

	require.NoError(t, CreateBackup(store))

	loaded, err := LoadBackup[InstalledState](store.StatePath())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Contains(t, loaded.Tools, "zig")
}

func TestBackup_LoadMissingReturnsNil(t *testing.T) {
	loaded, err := LoadBackup[InstalledState](filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
