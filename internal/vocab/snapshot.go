package vocab

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// StoreSnapshotName is the file a compiled Store is written to inside a
// snapshot directory.
const StoreSnapshotName = "vocab.snap"

// SnapshotVersion is bumped whenever a snapshot payload changes shape.
const SnapshotVersion = 1

// ErrSnapshotVersion is returned for snapshots written by an incompatible version.
var ErrSnapshotVersion = errors.New("unsupported snapshot version")

type storeSnapshot struct {
	Version int            `cbor:"1,keyasint"`
	IDs     map[string]int `cbor:"2,keyasint"`
}

// SaveSnapshot writes v as a zstd-framed CBOR document.
func SaveSnapshot(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot %q: %w", path, err)
	}
	zw, err := zstd.NewWriter(f)
	if err != nil {
		_ = f.Close()
		return err
	}
	if err := cbor.NewEncoder(zw).Encode(v); err != nil {
		_ = zw.Close()
		_ = f.Close()
		return fmt.Errorf("failed to encode snapshot %q: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// LoadSnapshot decodes a document written by SaveSnapshot into v.
func LoadSnapshot(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()

	if err := cbor.NewDecoder(zr).Decode(v); err != nil {
		return fmt.Errorf("failed to decode snapshot %q: %w", path, err)
	}
	return nil
}

// Compile writes the store into dir, creating dir when needed.
func (s *Store) Compile(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return SaveSnapshot(filepath.Join(dir, StoreSnapshotName), storeSnapshot{
		Version: SnapshotVersion,
		IDs:     s.ids,
	})
}

// LoadStoreSnapshot reads a store written by Compile.
func LoadStoreSnapshot(path string, unknown int) (*Store, error) {
	var snap storeSnapshot
	if err := LoadSnapshot(path, &snap); err != nil {
		return nil, err
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrSnapshotVersion, snap.Version)
	}
	return NewFromMap(snap.IDs, unknown), nil
}
