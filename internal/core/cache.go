package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"regsim/internal/dataio"
)

// CacheEntry is the stored result of a successful step: its harvested
// artifacts, keyed by TaskHash.
type CacheEntry struct {
	Hash      TaskHash
	Artifacts []CachedArtifact
}

// CachedArtifact is one output file of a cached step. Path is relative to
// the working directory.
type CachedArtifact struct {
	Path    string
	Content []byte
}

// Cache stores and retrieves step results.
type Cache interface {
	Has(hash TaskHash) (bool, error)

	// Get returns nil, nil when the entry does not exist or cannot be used.
	Get(hash TaskHash) (*CacheEntry, error)

	Put(entry *CacheEntry) error
}

// FileCache implements Cache on the filesystem. Artifact contents are
// stored once per distinct digest and entries refer to them:
//
//	{CacheDir}/blobs/{digest[0:2]}/{digest}
//	{CacheDir}/entries/{hash[0:2]}/{hash}.json
//
// Blobs are written before the entry that names them, so a readable entry
// always has its blobs.
type FileCache struct {
	CacheDir string
}

type entryFile struct {
	Hash      TaskHash  `json:"hash"`
	Artifacts []blobRef `json:"artifacts"`
}

type blobRef struct {
	Path   string `json:"path"`
	Digest string `json:"sha256"`
	Size   int    `json:"size"`
}

// NewFileCache creates a filesystem cache rooted at cacheDir.
func NewFileCache(cacheDir string) *FileCache {
	return &FileCache{CacheDir: cacheDir}
}

func (c *FileCache) Has(hash TaskHash) (bool, error) {
	_, err := os.Stat(c.entryPath(hash))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("checking cache entry: %w", err)
	}
}

// Get loads the entry for hash and its blobs. A blob that is missing or no
// longer matches its digest makes the entry a miss; the next Put rewrites it.
func (c *FileCache) Get(hash TaskHash) (*CacheEntry, error) {
	data, err := os.ReadFile(c.entryPath(hash))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}
	var ef entryFile
	if err := json.Unmarshal(data, &ef); err != nil {
		return nil, fmt.Errorf("parsing cache entry %s: %w", hash, err)
	}

	entry := &CacheEntry{Hash: ef.Hash, Artifacts: make([]CachedArtifact, len(ef.Artifacts))}
	for i, ref := range ef.Artifacts {
		content, err := os.ReadFile(c.blobPath(ref.Digest))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading blob of %s: %w", ref.Path, err)
		}
		if len(content) != ref.Size || digest(content) != ref.Digest {
			return nil, nil
		}
		entry.Artifacts[i] = CachedArtifact{Path: ref.Path, Content: content}
	}
	return entry, nil
}

// Put stores entry, replacing any previous entry for the same hash.
func (c *FileCache) Put(entry *CacheEntry) error {
	if entry == nil {
		return errors.New("cache entry is nil")
	}
	ef := entryFile{Hash: entry.Hash, Artifacts: make([]blobRef, len(entry.Artifacts))}
	for i, a := range entry.Artifacts {
		d := digest(a.Content)
		if err := c.putBlob(d, a.Content); err != nil {
			return fmt.Errorf("storing %s: %w", a.Path, err)
		}
		ef.Artifacts[i] = blobRef{Path: a.Path, Digest: d, Size: len(a.Content)}
	}
	data, err := json.MarshalIndent(ef, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	if err := dataio.WriteFileAtomic(c.entryPath(entry.Hash), data, 0o644); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

func (c *FileCache) putBlob(d string, content []byte) error {
	path := c.blobPath(d)
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, content) {
		return nil
	}
	return dataio.WriteFileAtomic(path, content, 0o644)
}

func (c *FileCache) entryPath(hash TaskHash) string {
	return filepath.Join(c.CacheDir, "entries", shard(string(hash)), string(hash)+".json")
}

func (c *FileCache) blobPath(d string) string {
	return filepath.Join(c.CacheDir, "blobs", shard(d), d)
}

func shard(key string) string {
	if len(key) < 2 {
		return "_"
	}
	return key[:2]
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// MemoryCache implements Cache in memory. It is safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[TaskHash]*CacheEntry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[TaskHash]*CacheEntry)}
}

func (c *MemoryCache) Has(hash TaskHash) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[hash]
	return ok, nil
}

// Get returns a deep copy of the entry for hash.
func (c *MemoryCache) Get(hash TaskHash) (*CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.entries[hash]; ok {
		return entry.clone(), nil
	}
	return nil, nil
}

// Put stores a deep copy of entry.
func (c *MemoryCache) Put(entry *CacheEntry) error {
	if entry == nil {
		return errors.New("cache entry is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Hash] = entry.clone()
	return nil
}

// Len returns the number of stored entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (e *CacheEntry) clone() *CacheEntry {
	out := &CacheEntry{Hash: e.Hash, Artifacts: make([]CachedArtifact, len(e.Artifacts))}
	for i, a := range e.Artifacts {
		out.Artifacts[i] = CachedArtifact{Path: a.Path, Content: bytes.Clone(a.Content)}
	}
	return out
}
