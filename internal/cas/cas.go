// Package cas implements the content-addressable store: typed-content
// hashing, gzip-compressed on-disk storage laid out as
// "<base>/<hash[0..P]>/<hash[P..]>", reference counting with
// physical-delete-on-zero semantics, and a concurrency-bounded batch
// put. Writes go through a temp file and rename so a crash never leaves
// a partial object at its final path.
package cas

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // content identity hash, not used for security
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/posixfs/posixfs/pkg/errno"
)

// ObjectType is one of the four CAS object kinds.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
	TypeTag    ObjectType = "tag"
)

func validType(t ObjectType) bool {
	switch t {
	case TypeBlob, TypeTree, TypeCommit, TypeTag:
		return true
	default:
		return false
	}
}

var hashPattern = regexp.MustCompile(`^[0-9a-fA-F]{40}$|^[0-9a-fA-F]{64}$`)

// Store is a content-addressable object store rooted at a base directory.
type Store struct {
	mu         sync.Mutex
	base       string
	prefixLen  int
	onPut      func(hash string)
	onDelete   func(hash string)
}

// Options configures a Store.
type Options struct {
	Base string
	// PrefixLen is the number of leading hex chars used as the directory
	// shard (default 2; valid 1..8).
	PrefixLen int
	// OnPut/OnDelete, when set, notify a coherence layer (internal/cascache)
	// of existence changes so its bloom/positive caches stay accurate.
	OnPut    func(hash string)
	OnDelete func(hash string)
}

// New creates (if necessary) the base directory and returns a Store.
func New(opts Options) (*Store, error) {
	prefixLen := opts.PrefixLen
	if prefixLen == 0 {
		prefixLen = 2
	}
	if prefixLen < 1 || prefixLen > 8 {
		return nil, fmt.Errorf("cas: prefix length must be 1..8, got %d", prefixLen)
	}
	if opts.Base == "" {
		return nil, fmt.Errorf("cas: base directory required")
	}
	if err := os.MkdirAll(opts.Base, 0o750); err != nil {
		return nil, fmt.Errorf("cas: creating base directory: %w", err)
	}
	return &Store{base: opts.Base, prefixLen: prefixLen, onPut: opts.OnPut, onDelete: opts.OnDelete}, nil
}

// objectPath returns the sharded "<base>/<hash[0..P]>/<hash[P..]>" path for
// a (lowercased) hash.
func (s *Store) objectPath(hash string) string {
	return filepath.Join(s.base, hash[:s.prefixLen], hash[s.prefixLen:])
}

func (s *Store) refcountPath(hash string) string {
	return s.objectPath(hash) + ".refcount"
}

func normalizeHash(hash string) (string, error) {
	if !hashPattern.MatchString(hash) {
		return "", fmt.Errorf("invalid hash: %q", hash)
	}
	return strings.ToLower(hash), nil
}

// header builds the "<type> <len>\0" prefix that is hashed and stored ahead
// of the payload bytes.
func header(t ObjectType, n int) []byte {
	return []byte(fmt.Sprintf("%s %d\x00", t, n))
}

// Hash computes the typed-content hash of (type, bytes) without storing
// anything.
func Hash(data []byte, t ObjectType) string {
	h := sha1.New() //nolint:gosec
	h.Write(header(t, len(data)))
	h.Write(data)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Put stores (data, t) if not already present, or increments the existing
// object's refcount, and returns its hash.
func (s *Store) Put(data []byte, t ObjectType) (hash string, written bool, err error) {
	if !validType(t) {
		return "", false, errno.New(errno.EINVAL).WithSyscall("cas.put")
	}
	hash = Hash(data, t)

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.objectPath(hash)
	if _, statErr := os.Stat(path); statErr == nil {
		if err := s.bumpRefcount(hash, 1); err != nil {
			return "", false, err
		}
		return hash, false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", false, fmt.Errorf("cas: creating shard directory: %w", err)
	}
	if err := writeCompressed(path, header(t, len(data)), data); err != nil {
		return "", false, fmt.Errorf("cas: writing object: %w", err)
	}
	if err := s.writeRefcount(hash, 1); err != nil {
		return "", false, err
	}
	if s.onPut != nil {
		s.onPut(hash)
	}
	return hash, true, nil
}

// Get fetches and decompresses the object for hash, validating its stored
// length against the header. ok is false if absent.
func (s *Store) Get(hash string) (t ObjectType, data []byte, ok bool, err error) {
	hash, err = normalizeHash(hash)
	if err != nil {
		return "", nil, false, err
	}

	path := s.objectPath(hash)
	f, openErr := os.Open(path) //nolint:gosec // path built from validated hex hash
	if openErr != nil {
		if os.IsNotExist(openErr) {
			return "", nil, false, nil
		}
		return "", nil, false, openErr
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", nil, false, fmt.Errorf("cas: decompressing object %s: %w", hash, err)
	}
	defer func() { _ = gz.Close() }()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return "", nil, false, fmt.Errorf("cas: reading object %s: %w", hash, err)
	}

	nul := bytes.IndexByte(raw, 0)
	if nul < 0 {
		return "", nil, false, fmt.Errorf("cas: object %s missing header terminator", hash)
	}
	head := string(raw[:nul])
	parts := strings.SplitN(head, " ", 2)
	if len(parts) != 2 {
		return "", nil, false, fmt.Errorf("cas: object %s malformed header %q", hash, head)
	}
	length, convErr := strconv.Atoi(parts[1])
	if convErr != nil {
		return "", nil, false, fmt.Errorf("cas: object %s malformed length %q", hash, parts[1])
	}
	body := raw[nul+1:]
	if length != len(body) {
		return "", nil, false, fmt.Errorf("cas: object %s length mismatch: header says %d, got %d", hash, length, len(body))
	}
	return ObjectType(parts[0]), body, true, nil
}

// Has reports whether hash names a stored object.
func (s *Store) Has(hash string) bool {
	hash, err := normalizeHash(hash)
	if err != nil {
		return false
	}
	_, err = os.Stat(s.objectPath(hash))
	return err == nil
}

// GetRefCount returns the stored refcount for hash, or 0 if absent.
func (s *Store) GetRefCount(hash string) (int, error) {
	hash, err := normalizeHash(hash)
	if err != nil {
		return 0, err
	}
	return s.readRefcount(hash), nil
}

// Delete decrements hash's refcount, physically removing the object only on
// the transition to 0; it never goes negative, and is a no-op if hash is
// not stored.
func (s *Store) Delete(hash string) error {
	hash, err := normalizeHash(hash)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasLocked(hash) {
		return nil
	}
	count := s.readRefcount(hash) - 1
	if count <= 0 {
		return s.removeLocked(hash)
	}
	return s.writeRefcount(hash, count)
}

// ForceDelete removes hash's object and refcount sidecar unconditionally
//; a no-op if hash is not stored.
func (s *Store) ForceDelete(hash string) error {
	hash, err := normalizeHash(hash)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasLocked(hash) {
		return nil
	}
	return s.removeLocked(hash)
}

func (s *Store) hasLocked(hash string) bool {
	_, err := os.Stat(s.objectPath(hash))
	return err == nil
}

func (s *Store) removeLocked(hash string) error {
	if err := os.Remove(s.objectPath(hash)); err != nil && !os.IsNotExist(err) {
		return err
	}
	_ = os.Remove(s.refcountPath(hash))
	if s.onDelete != nil {
		s.onDelete(hash)
	}
	return nil
}

func (s *Store) bumpRefcount(hash string, delta int) error {
	return s.writeRefcount(hash, s.readRefcount(hash)+delta)
}

func (s *Store) readRefcount(hash string) int {
	data, err := os.ReadFile(s.refcountPath(hash)) //nolint:gosec
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return n
}

// writeRefcount persists count atomically via temp-file+rename.
func (s *Store) writeRefcount(hash string, count int) error {
	path := s.refcountPath(hash)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(count)), 0o640); err != nil {
		return fmt.Errorf("cas: writing refcount: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("cas: committing refcount: %w", err)
	}
	return nil
}

func writeCompressed(path string, header, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640) //nolint:gosec
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write(header); err != nil {
		_ = gz.Close()
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if _, err := gz.Write(data); err != nil {
		_ = gz.Close()
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := gz.Close(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// BatchItem is one input to PutBatch.
type BatchItem struct {
	Data []byte
	Type ObjectType
}

// BatchResult reports the outcome of one PutBatch item, preserving the
// input index.
type BatchResult struct {
	Index   int
	Hash    string
	Written bool
	Err     error
}

// BatchOptions parametrize PutBatch.
type BatchOptions struct {
	// Concurrency bounds simultaneous puts; 1 makes the batch fully
	// sequential, giving deterministic refcount accumulation for
	// intra-batch duplicates.
	Concurrency int
	OnProgress  func(done, total int)
}

// PutBatch puts every item, preserving input index in the result slice. At
// concurrency 1, intra-batch duplicate refcounts accumulate in input order;
// at higher concurrency the store-wide mutex in Put still conserves the
// refcount total, just not the interleaving.
func (s *Store) PutBatch(items []BatchItem, opts BatchOptions) []BatchResult {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]BatchResult, len(items))

	if concurrency == 1 {
		for i, item := range items {
			hash, written, err := s.Put(item.Data, item.Type)
			results[i] = BatchResult{Index: i, Hash: hash, Written: written, Err: err}
			if opts.OnProgress != nil {
				opts.OnProgress(i+1, len(items))
			}
		}
		return results
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)
	var doneCount int
	var doneMu sync.Mutex
	for i, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, item BatchItem) {
			defer wg.Done()
			defer func() { <-sem }()
			hash, written, err := s.Put(item.Data, item.Type)
			results[i] = BatchResult{Index: i, Hash: hash, Written: written, Err: err}
			if opts.OnProgress != nil {
				doneMu.Lock()
				doneCount++
				opts.OnProgress(doneCount, len(items))
				doneMu.Unlock()
			}
		}(i, item)
	}
	wg.Wait()
	return results
}
