package core

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReplay_RestoresArtifactsBitForBit(t *testing.T) {
	dir := t.TempDir()
	entry := sampleEntry("h")

	res, err := NewReplayer(dir).Replay(entry)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if res.ArtifactsRestored != 2 || res.Hash != "h" || len(res.Paths) != 2 {
		t.Fatalf("unexpected replay result: %+v", res)
	}
	for _, a := range entry.Artifacts {
		got, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(a.Path)))
		if err != nil {
			t.Fatalf("artifact %s not restored: %v", a.Path, err)
		}
		if string(got) != string(a.Content) {
			t.Errorf("artifact %s differs", a.Path)
		}
	}
}

func TestReplay_OnlyRewritesDivergentFiles(t *testing.T) {
	dir := t.TempDir()
	entry := sampleEntry("h")
	writeFiles(t, dir, map[string]string{
		entry.Artifacts[0].Path: string(entry.Artifacts[0].Content),
		entry.Artifacts[1].Path: "tampered",
	})

	res, err := NewReplayer(dir).Replay(entry)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if res.ArtifactsRestored != 1 || res.Restored[0] != entry.Artifacts[1].Path {
		t.Fatalf("expected only the tampered artifact to be restored, got %+v", res)
	}
	got, _ := os.ReadFile(filepath.Join(dir, filepath.FromSlash(entry.Artifacts[1].Path)))
	if string(got) != string(entry.Artifacts[1].Content) {
		t.Errorf("tampered artifact not restored")
	}
}

func TestReplay_RejectsBrokenEntriesBeforeWriting(t *testing.T) {
	dir := t.TempDir()
	r := NewReplayer(dir)
	if _, err := r.Replay(nil); err == nil {
		t.Error("expected error for nil entry")
	}
	broken := []*CacheEntry{
		{Artifacts: []CachedArtifact{{Path: "good.csv", Content: []byte("a")}, {Path: "", Content: []byte("a")}}},
		{Artifacts: []CachedArtifact{{Path: "good.csv", Content: []byte("a")}, {Path: "a.csv"}}},
	}
	for i, e := range broken {
		if _, err := r.Replay(e); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "good.csv")); !os.IsNotExist(err) {
		t.Errorf("nothing may be written for a broken entry, stat err=%v", err)
	}
}
