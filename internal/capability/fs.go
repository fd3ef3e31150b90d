package capability

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fozzylabs/fozzy/internal/decision"
	"github.com/fozzylabs/fozzy/internal/errs"
)

type fsEntry struct {
	data      string
	tombstone bool
}

type fsLayer map[string]fsEntry

// FS is the scripted filesystem: a copy-on-write overlay above the
// scenario's seed files. Snapshots are layer-count tokens — restoring
// truncates the layer stack, so no snapshot ever copies file data.
type FS struct {
	base      map[string]string
	layers    []fsLayer
	snapshots map[string]int
	host      *HostFS
}

// NewFS creates a scripted filesystem seeded with the scenario overlay.
func NewFS(seed map[string]string) *FS {
	base := make(map[string]string, len(seed))
	for k, v := range seed {
		base[k] = v
	}
	return &FS{
		base:      base,
		layers:    []fsLayer{{}},
		snapshots: make(map[string]int),
	}
}

// WithHost attaches a host backend rooted at dir.
func (f *FS) WithHost(root string) *FS {
	f.host = &HostFS{root: root}
	return f
}

// Write stores data at path in the top layer.
func (f *FS) Write(path, data string) {
	f.layers[len(f.layers)-1][path] = fsEntry{data: data}
}

// Delete tombstones path in the top layer.
func (f *FS) Delete(path string) {
	f.layers[len(f.layers)-1][path] = fsEntry{tombstone: true}
}

// Read resolves path through the layer stack, newest layer first.
func (f *FS) Read(path string) (string, bool) {
	for i := len(f.layers) - 1; i >= 0; i-- {
		if e, ok := f.layers[i][path]; ok {
			if e.tombstone {
				return "", false
			}
			return e.data, true
		}
	}
	data, ok := f.base[path]
	return data, ok
}

// Snapshot records the current overlay depth under name and returns the
// version token. Later writes land in a fresh layer above the token.
func (f *FS) Snapshot(name string) int {
	token := len(f.layers)
	f.snapshots[name] = token
	f.layers = append(f.layers, fsLayer{})
	return token
}

// Restore reverts the overlay to the named snapshot. Restoring discards
// every layer above the token, including snapshots taken after it.
func (f *FS) Restore(name string) error {
	token, ok := f.snapshots[name]
	if !ok {
		return errs.Newf(errs.KindCapability, "fs: unknown snapshot %q", name)
	}
	if token > len(f.layers) {
		return errs.Newf(errs.KindCapability, "fs: snapshot %q is stale (overlay already restored below it)", name)
	}
	f.layers = f.layers[:token]
	for n, t := range f.snapshots {
		if t > token {
			delete(f.snapshots, n)
		}
	}
	f.layers = append(f.layers, fsLayer{})
	return nil
}

// Paths returns every readable path, sorted. Used by journaling rewinds
// and tests.
func (f *FS) Paths() []string {
	seen := make(map[string]bool)
	for p := range f.base {
		seen[p] = true
	}
	for _, l := range f.layers {
		for p := range l {
			seen[p] = true
		}
	}
	var out []string
	for p := range seen {
		if _, ok := f.Read(p); ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Depth returns the current overlay depth. Guarded blocks snapshot by
// depth and truncate on rewind.
func (f *FS) Depth() int {
	return len(f.layers)
}

// PushLayer adds an anonymous overlay layer and returns the depth token.
func (f *FS) PushLayer() int {
	token := len(f.layers)
	f.layers = append(f.layers, fsLayer{})
	return token
}

// TruncateTo discards layers above the depth token.
func (f *FS) TruncateTo(token int) {
	if token <= len(f.layers) {
		f.layers = f.layers[:token]
		f.layers = append(f.layers, fsLayer{})
	}
}

// HostRead reads through the host backend, recording the result so replay
// never touches the disk.
func (f *FS) HostRead(log *decision.Log, path string) (string, error) {
	if f.host == nil {
		return "", errs.New(errs.KindCapability, "fs: host backend not configured")
	}
	payload, err := log.Observe(decision.KindFSResult, "read "+path, func() (map[string]any, error) {
		data, err := f.host.read(path)
		if err != nil {
			return nil, err
		}
		return map[string]any{"data": data}, nil
	})
	if err != nil {
		return "", err
	}
	return payloadString(payload, "data"), nil
}

// HostFS is the sandboxed host filesystem backend.
type HostFS struct {
	root string
}

func (h *HostFS) read(path string) (string, error) {
	resolved, err := h.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", errs.Newf(errs.KindCapability, "fs: host read %s: %v", path, err)
	}
	return truncate(string(data), HostBodyCeiling), nil
}

// resolve jails path under the root, rejecting absolute paths and any
// traversal that escapes it.
func (h *HostFS) resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", errs.Newf(errs.KindCapability, "fs: absolute path %q escapes sandbox", path)
	}
	clean := filepath.Clean(path)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errs.Newf(errs.KindCapability, "fs: path %q escapes sandbox", path)
	}
	return filepath.Join(h.root, clean), nil
}
