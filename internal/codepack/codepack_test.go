package codepack

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ShayCichocki/regatta/internal/scratch"
)

// countingStore wraps a FileStore and counts Put calls.
type countingStore struct {
	scratch.FileStore
	mu   sync.Mutex
	puts int
}

func (c *countingStore) Put(ctx context.Context, uri string, data []byte) error {
	c.mu.Lock()
	c.puts++
	c.mu.Unlock()
	return c.FileStore.Put(ctx, uri, data)
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestEnsurePackagesOnce(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, workDir, "main.go", "package main")
	writeFile(t, workDir, "go.mod", "module example")

	store := &countingStore{}
	s := scratch.NewWithStore(t.TempDir(), store)
	p := New(s, workDir, nil)

	ctx := context.Background()
	ref1, err := p.Ensure(ctx)
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if !strings.Contains(ref1, "/code/") || !strings.HasSuffix(ref1, ".tar.gz") {
		t.Errorf("unexpected code reference %q", ref1)
	}

	ref2, err := p.Ensure(ctx)
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if ref2 != ref1 {
		t.Errorf("expected cached reference %q, got %q", ref1, ref2)
	}
	if store.puts != 1 {
		t.Errorf("expected 1 upload, got %d", store.puts)
	}
}

func TestEnsureConcurrentFirstCalls(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, workDir, "main.go", "package main")

	store := &countingStore{}
	s := scratch.NewWithStore(t.TempDir(), store)
	p := New(s, workDir, nil)

	var wg sync.WaitGroup
	refs := make([]string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref, err := p.Ensure(context.Background())
			if err != nil {
				t.Errorf("ensure: %v", err)
			}
			refs[i] = ref
		}(i)
	}
	wg.Wait()

	for _, ref := range refs[1:] {
		if ref != refs[0] {
			t.Fatalf("expected a single winner, got %q and %q", refs[0], ref)
		}
	}
	if store.puts != 1 {
		t.Errorf("expected 1 upload across concurrent calls, got %d", store.puts)
	}
}

func TestFindFilesIncludes(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, workDir, "main.go", "package main")
	writeFile(t, workDir, "pkg/deep/util.go", "package deep")
	writeFile(t, workDir, "go.mod", "module example")
	writeFile(t, workDir, "README.md", "docs")
	writeFile(t, workDir, ".git/config", "hidden")
	writeFile(t, workDir, "vendor/dep/dep.go", "package dep")

	p := New(nil, workDir, nil)
	files, err := p.findFiles()
	if err != nil {
		t.Fatalf("find files: %v", err)
	}

	want := []string{"go.mod", "main.go", "pkg/deep/util.go"}
	if len(files) != len(want) {
		t.Fatalf("expected %v, got %v", want, files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("expected %q at %d, got %q", want[i], i, files[i])
		}
	}
}

func TestCustomIncludes(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, workDir, "workflow.txt", "steps")
	writeFile(t, workDir, "main.go", "package main")

	p := New(nil, workDir, []string{"**/*.txt"})
	files, err := p.findFiles()
	if err != nil {
		t.Fatalf("find files: %v", err)
	}
	if len(files) != 1 || files[0] != "workflow.txt" {
		t.Errorf("expected only workflow.txt, got %v", files)
	}
}

func TestTarRoundTrip(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, workDir, "a.go", "package a")
	writeFile(t, workDir, "sub/b.go", "package b")

	data, err := createTar(workDir, []string{"a.go", "sub/b.go"})
	if err != nil {
		t.Fatalf("create tar: %v", err)
	}

	dest := t.TempDir()
	if err := ExtractTar(data, dest); err != nil {
		t.Fatalf("extract tar: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dest, "sub", "b.go"))
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(got) != "package b" {
		t.Errorf("unexpected content %q", got)
	}
}
