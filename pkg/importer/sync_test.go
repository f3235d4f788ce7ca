package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigipctl/bigipctl/pkg/storage"
)

func writePolicyFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestSyncOnce_ImportsDirectory(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "app1.xml", "<policy one/>")
	writePolicyFile(t, dir, "app2.plc", "binary-export")
	writePolicyFile(t, dir, "notes.txt", "not a policy")

	device := newFakeDevice()
	im := testImporter(device, Options{})
	history := storage.NewMemoryHistoryStore(0)

	syncer, err := NewSyncer(im, history, SyncOptions{Dir: dir, Partition: "Common"}, nil)
	require.NoError(t, err)

	require.NoError(t, syncer.SyncOnce(context.Background()))

	// Both policy files were uploaded, the text file was ignored.
	assert.Len(t, device.uploads, 2)
	assert.Contains(t, device.uploads, "app1.xml")
	assert.Contains(t, device.uploads, "app2.plc")
	assert.Len(t, device.submitted, 2)

	records, err := history.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, record := range records {
		assert.True(t, record.Changed)
		assert.Equal(t, "create", record.Action)
		assert.Empty(t, record.Error)
		assert.NotEmpty(t, record.ID)
	}
}

func TestSyncOnce_ExistingSkippedWithoutForce(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "app1.xml", "<policy/>")

	device := newFakeDevice()
	device.addPolicy("Common", "app1")
	im := testImporter(device, Options{})
	history := storage.NewMemoryHistoryStore(0)

	syncer, err := NewSyncer(im, history, SyncOptions{Dir: dir, Partition: "Common"}, nil)
	require.NoError(t, err)

	require.NoError(t, syncer.SyncOnce(context.Background()))
	assert.Empty(t, device.uploads)

	records, err := history.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Changed)
	assert.Equal(t, "skip", records[0].Action)
}

func TestSyncOnce_ReportsFailures(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "broken.xml", "<policy/>")

	device := &erroringDevice{code: 500, body: "internal error"}
	im := testImporter(device, Options{})

	syncer, err := NewSyncer(im, nil, SyncOptions{Dir: dir}, nil)
	require.NoError(t, err)

	err = syncer.SyncOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to import")
}

func TestNewSyncer_RequiresDir(t *testing.T) {
	_, err := NewSyncer(nil, nil, SyncOptions{}, nil)
	assert.Error(t, err)
}

func TestPolicyNameFromFile(t *testing.T) {
	assert.Equal(t, "app1", policyNameFromFile("/srv/policies/app1.xml"))
	assert.Equal(t, "app2", policyNameFromFile("app2.plc"))
}
