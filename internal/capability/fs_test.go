package capability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fozzylabs/fozzy/internal/decision"
)

func TestFS_OverlayReadWrite(t *testing.T) {
	fs := NewFS(map[string]string{"seed.txt": "base"})

	data, ok := fs.Read("seed.txt")
	require.True(t, ok)
	assert.Equal(t, "base", data)

	fs.Write("seed.txt", "overlaid")
	data, ok = fs.Read("seed.txt")
	require.True(t, ok)
	assert.Equal(t, "overlaid", data)

	fs.Delete("seed.txt")
	_, ok = fs.Read("seed.txt")
	assert.False(t, ok)

	_, ok = fs.Read("missing.txt")
	assert.False(t, ok)
}

func TestFS_SnapshotRestore(t *testing.T) {
	fs := NewFS(nil)
	fs.Write("a.txt", "one")

	fs.Snapshot("before")
	fs.Write("a.txt", "two")
	fs.Write("b.txt", "new")

	require.NoError(t, fs.Restore("before"))

	data, ok := fs.Read("a.txt")
	require.True(t, ok)
	assert.Equal(t, "one", data)
	_, ok = fs.Read("b.txt")
	assert.False(t, ok)

	// Writes after restore land above the snapshot again.
	fs.Write("c.txt", "post")
	require.NoError(t, fs.Restore("before"))
	_, ok = fs.Read("c.txt")
	assert.False(t, ok)
}

func TestFS_RestoreDiscardsLaterSnapshots(t *testing.T) {
	fs := NewFS(nil)
	fs.Snapshot("early")
	fs.Write("x", "1")
	fs.Snapshot("late")

	require.NoError(t, fs.Restore("early"))
	assert.Error(t, fs.Restore("late"), "snapshots above the restore point are gone")
}

func TestFS_UnknownSnapshot(t *testing.T) {
	fs := NewFS(nil)
	assert.Error(t, fs.Restore("never-taken"))
}

func TestHostFS_SandboxRejectsEscapes(t *testing.T) {
	h := &HostFS{root: t.TempDir()}

	_, err := h.resolve("/etc/passwd")
	assert.Error(t, err)

	_, err = h.resolve("../outside.txt")
	assert.Error(t, err)

	_, err = h.resolve("sub/../../outside.txt")
	assert.Error(t, err)

	resolved, err := h.resolve("sub/../inside.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.root, "inside.txt"), resolved)
}

func TestFS_HostReadRecordsDecision(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte("host data"), 0o644))

	fs := NewFS(nil).WithHost(root)
	log := decision.NewRecorder()

	data, err := fs.HostRead(log, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, "host data", data)
	require.Equal(t, 1, log.Len())
	assert.Equal(t, decision.KindFSResult, log.Decisions()[0].Kind)

	// Replay serves the recorded result without touching the disk.
	require.NoError(t, os.Remove(filepath.Join(root, "f.txt")))
	replay := decision.NewReplayer(log.Decisions())
	data, err = fs.HostRead(replay, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, "host data", data)
}
