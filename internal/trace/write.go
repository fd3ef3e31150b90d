package trace

import (
	"os"
	"path/filepath"

	"github.com/fozzylabs/fozzy/internal/errs"
)

// WriteAtomic writes data to path via a temp file in the same directory
// plus rename, so a killed writer never leaves a partial file at the
// destination.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Newf(errs.KindCapability, "trace: create %s: %v", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".fozzy-tmp-*")
	if err != nil {
		return errs.Newf(errs.KindCapability, "trace: temp file: %v", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.Newf(errs.KindCapability, "trace: write: %v", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errs.Newf(errs.KindCapability, "trace: close: %v", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errs.Newf(errs.KindCapability, "trace: rename: %v", err)
	}
	return nil
}

// WriteFile seals and writes a trace honoring the collision policy.
// The policy is stamped into the header so a trace records how it was
// allowed to land.
func WriteFile(path string, f *File, policy string, pretty bool) error {
	if policy == "" {
		policy = CollisionError
	}
	f.Header.CollisionPolicy = policy
	if err := f.Seal(); err != nil {
		return err
	}
	data, err := EncodeBytes(f, pretty)
	if err != nil {
		return err
	}

	_, statErr := os.Stat(path)
	exists := statErr == nil

	switch policy {
	case CollisionError:
		if exists {
			return errs.Newf(errs.KindValidation, "trace: %s already exists (collision policy error)", path)
		}
	case CollisionOverwrite:
		// WriteAtomic replaces in place.
	case CollisionAppend:
		if exists {
			prev, err := os.ReadFile(path)
			if err != nil {
				return errs.Newf(errs.KindCapability, "trace: read existing %s: %v", path, err)
			}
			data = append(prev, data...)
		}
	default:
		return errs.Newf(errs.KindValidation, "trace: unknown collision policy %q", policy)
	}

	return WriteAtomic(path, data)
}
