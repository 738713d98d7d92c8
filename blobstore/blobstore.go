// Package blobstore implements the Blob Store: a content-addressed
// spill area on local disk used only in canonical mode to let the
// Order Planner's global sort run ahead of blob emission without
// holding every payload in memory (spec §4.2).
package blobstore

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/alitto/pond"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/h2non/filetype"
	"github.com/klauspost/compress/gzip"
)

// fanout is the radix used to split a serial into nested directories,
// the reference value from spec §4.2 ("no single directory holds so
// many children that filesystem performance degrades").
const fanout = 256

// cvsIgnoreBoilerplate is the constant prefix concatenated before a
// ".cvsignore" master's payload (spec §4.2).
const cvsIgnoreBoilerplate = "# cvs-fast-export cvsignore translation\n"

// Store is the fan-out blob spill area. It exists only in canonical
// mode; fast mode never constructs one. root names the temp
// directory's own path within fs ("" for an in-memory store, where
// there is nothing else sharing the filesystem root).
type Store struct {
	fs   billy.Filesystem
	root string
}

// NewStore creates a Store rooted at a freshly made temp directory
// under parentDir (e.g. os.TempDir()), matching spec §6's
// "<TMPDIR or /tmp>/cvs-fast-export-XXXXXX/" layout.
func NewStore(parentDir string) (*Store, error) {
	fs := osfs.New(parentDir)
	tmp := "cvs-fast-export-" + randomSuffix()
	if err := fs.MkdirAll(tmp, 0755); err != nil {
		return nil, fmt.Errorf("blobstore: create temp root: %w", err)
	}
	return &Store{fs: fs, root: tmp}, nil
}

func randomSuffix() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "000000"
	}
	return hex.EncodeToString(b[:])
}

// NewMemStore returns a Store backed entirely by an in-memory
// filesystem, for tests that exercise the fan-out/compression logic
// without touching disk.
func NewMemStore() *Store {
	return &Store{fs: memfs.New(), root: ""}
}

// Root returns the Store's root path within its filesystem, mainly
// for diagnostics.
func (s *Store) Root() string { return s.root }

// fanoutPath splits serial into three nested digit groups and a leaf
// name, e.g. serial 1234567 -> "1/234/567" with leaf "=1234567",
// matching spec §6's "leaf names prefixed by =".
func fanoutPath(serial int64, isCvsIgnore bool) (dir, leaf string) {
	n := fmt.Sprintf("%08d", serial%100000000)
	dir = path.Join(n[0:2], n[2:5], n[5:8])
	prefix := "="
	if isCvsIgnore {
		prefix = "=i"
	}
	leaf = prefix + n
	return dir, leaf
}

// shouldCompress applies the teacher's content-sniffing heuristic:
// skip compressing media that is already compressed (images, video,
// archives, audio); otherwise compress.
func shouldCompress(payload []byte) bool {
	head := payload
	if len(head) > 261 {
		head = head[:261]
	}
	if filetype.IsImage(head) || filetype.IsVideo(head) || filetype.IsArchive(head) || filetype.IsAudio(head) {
		return false
	}
	return true
}

// Write creates a file at the fan-out path derived from serial.
// isCvsIgnore concatenates the CVS-ignore boilerplate ahead of
// payload when the source master's interned name is ".cvsignore".
func (s *Store) Write(serial int64, isCvsIgnore bool, payload []byte) error {
	dir, leaf := fanoutPath(serial, isCvsIgnore)
	fullDir := path.Join(s.root, dir)
	if err := s.fs.MkdirAll(fullDir, 0755); err != nil {
		return fmt.Errorf("blobstore: mkdir %s: %w", fullDir, err)
	}

	var buf bytes.Buffer
	if isCvsIgnore {
		buf.WriteString(cvsIgnoreBoilerplate)
	}
	buf.Write(payload)

	compressed := shouldCompress(buf.Bytes())
	name := leaf
	if compressed {
		name += ".gz"
	}
	f, err := s.fs.Create(path.Join(fullDir, name))
	if err != nil {
		return fmt.Errorf("blobstore: create %s: %w", name, err)
	}
	defer f.Close()

	if compressed {
		zw := gzip.NewWriter(f)
		if _, err := zw.Write(buf.Bytes()); err != nil {
			zw.Close()
			return fmt.Errorf("blobstore: compress write: %w", err)
		}
		return zw.Close()
	}
	_, err = f.Write(buf.Bytes())
	return err
}

// ReadAndUnlink opens the fan-out path for serial, returning its
// (decompressed) content, and removes the underlying file.
func (s *Store) ReadAndUnlink(serial int64, isCvsIgnore bool) ([]byte, error) {
	dir, leaf := fanoutPath(serial, isCvsIgnore)
	fullDir := path.Join(s.root, dir)

	plainPath := path.Join(fullDir, leaf)
	gzPath := plainPath + ".gz"

	if f, err := s.fs.Open(gzPath); err == nil {
		defer f.Close()
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("blobstore: gzip reader: %w", err)
		}
		defer zr.Close()
		data, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("blobstore: read: %w", err)
		}
		_ = s.fs.Remove(gzPath)
		return data, nil
	}

	f, err := s.fs.Open(plainPath)
	if err != nil {
		return nil, fmt.Errorf("blobstore: open %s: %w", plainPath, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("blobstore: read: %w", err)
	}
	_ = s.fs.Remove(plainPath)
	return data, nil
}

// DestroyAll recursively removes the temporary root. Subdirectories
// are removed in parallel via a worker pool: this runs strictly after
// the export stream's last byte has been written, so it cannot affect
// any ordering guarantee (spec §5).
func (s *Store) DestroyAll() error {
	if s.root == "" {
		return nil // in-memory store: nothing on disk to clean up
	}
	entries, err := s.fs.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("blobstore: readdir %s: %w", s.root, err)
	}

	queue := len(entries)
	if queue == 0 {
		queue = 1
	}
	pool := pond.New(8, queue)

	var mu sync.Mutex
	var firstErr error
	for _, e := range entries {
		entry := e
		pool.Submit(func() {
			rmErr := util.RemoveAll(s.fs, path.Join(s.root, entry.Name()))
			if rmErr == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if firstErr == nil {
				firstErr = fmt.Errorf("blobstore: cleanup %s: %w", entry.Name(), rmErr)
			}
		})
	}
	pool.StopAndWait()
	if firstErr != nil {
		return firstErr
	}
	if rmErr := util.RemoveAll(s.fs, s.root); rmErr != nil {
		return fmt.Errorf("blobstore: remove root %s: %w", s.root, rmErr)
	}
	return nil
}
