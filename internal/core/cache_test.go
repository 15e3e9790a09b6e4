package core

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func sampleEntry(hash TaskHash) *CacheEntry {
	return &CacheEntry{
		Hash: hash,
		Artifacts: []CachedArtifact{
			{Path: "out/data_1.l1.coef.csv", Content: []byte("coef\n2.9\n1.4\n")},
			{Path: "out/bin.dat", Content: []byte{0x00, 0x01, 0x02, 0xff}},
		},
	}
}

func caches(t *testing.T) map[string]Cache {
	return map[string]Cache{
		"memory": NewMemoryCache(),
		"file":   NewFileCache(t.TempDir()),
	}
}

func TestCache_PutThenHasAndGet(t *testing.T) {
	for name, cache := range caches(t) {
		t.Run(name, func(t *testing.T) {
			hash := TaskHash("abc123def456")

			exists, err := cache.Has(hash)
			if err != nil {
				t.Fatalf("Has failed: %v", err)
			}
			if exists {
				t.Fatal("hash should not exist initially")
			}

			original := sampleEntry(hash)
			if err := cache.Put(original); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if exists, _ := cache.Has(hash); !exists {
				t.Fatal("hash should exist after Put")
			}

			got, err := cache.Get(hash)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got.Hash != hash {
				t.Errorf("hash mismatch: %s", got.Hash)
			}
			if len(got.Artifacts) != len(original.Artifacts) {
				t.Fatalf("artifact count mismatch: %d != %d", len(got.Artifacts), len(original.Artifacts))
			}
			for i := range original.Artifacts {
				if got.Artifacts[i].Path != original.Artifacts[i].Path {
					t.Errorf("artifact %d path mismatch", i)
				}
				if !bytes.Equal(got.Artifacts[i].Content, original.Artifacts[i].Content) {
					t.Errorf("artifact %d content mismatch", i)
				}
			}
		})
	}
}

func TestCache_GetNonExistentIsNil(t *testing.T) {
	for name, cache := range caches(t) {
		t.Run(name, func(t *testing.T) {
			entry, err := cache.Get(TaskHash("missing"))
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if entry != nil {
				t.Error("expected nil entry for missing hash")
			}
		})
	}
}

func TestCache_PutNilFails(t *testing.T) {
	for name, cache := range caches(t) {
		t.Run(name, func(t *testing.T) {
			if err := cache.Put(nil); err == nil {
				t.Error("expected error for nil entry")
			}
		})
	}
}

func TestMemoryCache_IsolatesMutations(t *testing.T) {
	cache := NewMemoryCache()
	entry := sampleEntry("h")
	if err := cache.Put(entry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	entry.Artifacts[0].Content[0] = 'X'

	got, _ := cache.Get("h")
	if got.Artifacts[0].Content[0] == 'X' {
		t.Error("cache entry was mutated through the caller's slice")
	}
	got.Artifacts[0].Content[0] = 'Y'
	again, _ := cache.Get("h")
	if again.Artifacts[0].Content[0] == 'Y' {
		t.Error("cache entry was mutated through a returned copy")
	}
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	cache := NewMemoryCache()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hash := TaskHash(strings.Repeat("a", i+1))
			_ = cache.Put(&CacheEntry{Hash: hash})
			_, _ = cache.Has(hash)
			_, _ = cache.Get(hash)
		}()
	}
	wg.Wait()
	if cache.Len() != 16 {
		t.Fatalf("expected 16 entries, got %d", cache.Len())
	}
}

func TestFileCache_ContentAddressedLayout(t *testing.T) {
	dir := t.TempDir()
	cache := NewFileCache(dir)
	entry := sampleEntry("abcdef0123456789")
	entry.Artifacts = append(entry.Artifacts, CachedArtifact{Path: "out/copy.csv", Content: entry.Artifacts[0].Content})
	if err := cache.Put(entry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	meta, err := os.ReadFile(filepath.Join(dir, "entries", "ab", "abcdef0123456789.json"))
	if err != nil {
		t.Fatalf("entry file missing: %v", err)
	}
	if strings.Contains(string(meta), "2.9") {
		t.Errorf("artifact content leaked into entry file: %s", meta)
	}
	blobs, _ := filepath.Glob(filepath.Join(dir, "blobs", "*", "*"))
	if len(blobs) != 2 {
		t.Errorf("expected identical contents to share a blob, got %v", blobs)
	}
	for _, a := range entry.Artifacts {
		if _, err := os.Stat(filepath.Join(dir, "blobs", digest(a.Content)[:2], digest(a.Content))); err != nil {
			t.Errorf("blob of %s missing: %v", a.Path, err)
		}
	}
}

func TestFileCache_CorruptBlobIsAMiss(t *testing.T) {
	dir := t.TempDir()
	cache := NewFileCache(dir)
	entry := sampleEntry("ffee")
	if err := cache.Put(entry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	d := digest(entry.Artifacts[0].Content)
	blob := filepath.Join(dir, "blobs", d[:2], d)
	if err := os.WriteFile(blob, []byte("coef\n9.9\n1.4\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := cache.Get("ffee")
	if err != nil || got != nil {
		t.Fatalf("corrupt blob must read as a miss, got %v, %v", got, err)
	}

	if err := cache.Put(entry); err != nil {
		t.Fatalf("Put after corruption failed: %v", err)
	}
	got, err = cache.Get("ffee")
	if err != nil || got == nil {
		t.Fatalf("Get after rewrite: %v, %v", got, err)
	}
	if string(got.Artifacts[0].Content) != string(entry.Artifacts[0].Content) {
		t.Fatalf("blob not rewritten: %q", got.Artifacts[0].Content)
	}
}

func TestFileCache_MissingBlobIsAMiss(t *testing.T) {
	dir := t.TempDir()
	cache := NewFileCache(dir)
	entry := sampleEntry("ffee")
	if err := cache.Put(entry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	d := digest(entry.Artifacts[0].Content)
	if err := os.Remove(filepath.Join(dir, "blobs", d[:2], d)); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got, err := cache.Get("ffee"); err != nil || got != nil {
		t.Fatalf("missing blob must read as a miss, got %v, %v", got, err)
	}
}

func TestFileCache_PutReplacesEntry(t *testing.T) {
	cache := NewFileCache(t.TempDir())
	hash := TaskHash("ffee")
	if err := cache.Put(sampleEntry(hash)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	replacement := &CacheEntry{Hash: hash, Artifacts: []CachedArtifact{{Path: "only.csv", Content: []byte("v\n")}}}
	if err := cache.Put(replacement); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}
	got, err := cache.Get(hash)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Artifacts) != 1 || got.Artifacts[0].Path != "only.csv" {
		t.Fatalf("entry not replaced: %+v", got.Artifacts)
	}
}
